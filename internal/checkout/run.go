package checkout

import (
	"errors"
	"strings"

	"github.com/oklog/ulid/v2"

	"cartpilot/internal"
	"cartpilot/internal/events"
	"cartpilot/internal/util"
)

type Confirmation struct {
	SourceID    string `json:"sourceId"`
	OrderNumber string `json:"orderNumber"`
}

// Machine pulls Step one transition at a time.
type Machine struct {
	order         Order
	pos           Position
	narrator      *events.Narrator
	newOrderID    func() string
	confirmations []Confirmation
}

func NewMachine(cart internal.UnifiedCart, n *events.Narrator) *Machine {
	if n == nil {
		n = events.NewNarrator(nil, nil)
	}
	return &Machine{
		order:      OrderFromCart(cart),
		pos:        Start(),
		narrator:   n,
		newOrderID: func() string { return ulid.Make().String() },
	}
}

// Next computes the next snapshot. It returns false once checkout is complete.
func (m *Machine) Next() (internal.CheckoutProgress, bool, error) {
	next, out, err := Step(m.order, m.pos)
	if errors.Is(err, ErrAlreadyComplete) {
		return internal.CheckoutProgress{}, false, nil
	}
	if err != nil {
		return internal.CheckoutProgress{}, false, err
	}
	m.pos = next

	if out.Confirmed != "" {
		id := m.newOrderID()
		m.confirmations = append(m.confirmations, Confirmation{SourceID: out.Confirmed, OrderNumber: id})
		m.narrator.Result(internal.StageCheckout, "✓ %s order confirmed! Order #%s", util.TitleCase(out.Confirmed), strings.ToUpper(id))
	}
	for _, note := range out.Notes {
		m.narrator.Emit(internal.StageCheckout, note.Kind, "%s", note.Message)
	}
	return out.Progress, true, nil
}

func (m *Machine) Position() Position {
	return m.pos
}

func (m *Machine) Confirmations() []Confirmation {
	out := make([]Confirmation, len(m.confirmations))
	copy(out, m.confirmations)
	return out
}

// Run drives the machine to completion, handing every snapshot to onProgress.
func Run(cart internal.UnifiedCart, n *events.Narrator, onProgress func(internal.CheckoutProgress)) ([]Confirmation, error) {
	m := NewMachine(cart, n)
	for {
		p, ok, err := m.Next()
		if err != nil {
			return m.Confirmations(), err
		}
		if !ok {
			return m.Confirmations(), nil
		}
		if onProgress != nil {
			onProgress(p)
		}
	}
}
