package checkout

import (
	"errors"
	"fmt"
	"math"

	"cartpilot/internal"
	"cartpilot/internal/util"
)

const (
	collectingPct  = 5.0
	validatingPct  = 15.0
	processingPct  = 20.0
	processingSpan = 70.0
	completePct    = 100.0
)

// Phase is the sub-step inside a processing_<source> state.
type Phase int

const (
	PhaseNone Phase = iota
	PhaseEnter
	PhaseAddToCart
	PhaseApplyShipping
	PhaseConfirm
)

var ErrAlreadyComplete = errors.New("checkout already complete")

// Order is the part of a cart the state machine needs.
type Order struct {
	Sources   []internal.DeliveryEstimate
	LineCount int
	Total     float64
}

func OrderFromCart(c internal.UnifiedCart) Order {
	return Order{Sources: c.DeliverySchedule, LineCount: len(c.Lines), Total: c.TotalCost}
}

type Position struct {
	State     internal.CheckoutState
	Phase     Phase
	Source    int
	Completed []string
}

func Start() Position {
	return Position{State: internal.CheckoutIdle}
}

type Note struct {
	Kind    internal.EventKind
	Message string
}

// Output is what one transition emits. Confirmed names the source whose
// order was confirmed by this transition, if any.
type Output struct {
	Progress  internal.CheckoutProgress
	Notes     []Note
	Confirmed string
}

// Step advances pos by one transition. It does not mutate pos.
func Step(order Order, pos Position) (Position, Output, error) {
	n := len(order.Sources)
	completed := append([]string{}, pos.Completed...)

	switch {
	case pos.State == internal.CheckoutIdle:
		next := Position{State: internal.CheckoutCollectingInfo, Completed: completed}
		return next, Output{
			Progress: snapshot(next, collectingPct, "", "Collecting shipping and payment information..."),
			Notes:    []Note{{Kind: internal.KindThinking, Message: "Starting autonomous checkout sequence..."}},
		}, nil

	case pos.State == internal.CheckoutCollectingInfo:
		next := Position{State: internal.CheckoutValidating, Completed: completed}
		return next, Output{
			Progress: snapshot(next, validatingPct, "", "Validating cart items and availability..."),
			Notes: []Note{{Kind: internal.KindAction, Message: fmt.Sprintf("📋 Validating %s across %s",
				util.Plural(order.LineCount, "item"), util.Plural(n, "source"))}},
		}, nil

	case pos.State == internal.CheckoutValidating:
		if n == 0 {
			return complete(order, completed, "")
		}
		return enter(order, 0, completed)

	case pos.State == internal.CheckoutComplete:
		return pos, Output{}, ErrAlreadyComplete
	}

	if _, ok := pos.State.ProcessingSource(); !ok || pos.Source < 0 || pos.Source >= n {
		return pos, Output{}, fmt.Errorf("unknown checkout state %q", pos.State)
	}
	src := order.Sources[pos.Source].SourceID
	next := Position{State: pos.State, Source: pos.Source, Completed: completed}

	switch pos.Phase {
	case PhaseEnter:
		next.Phase = PhaseAddToCart
		return next, Output{Progress: snapshot(next, progressAt(n, pos.Source, 1), src, fmt.Sprintf("Adding items to %s cart...", src))}, nil
	case PhaseAddToCart:
		next.Phase = PhaseApplyShipping
		return next, Output{Progress: snapshot(next, progressAt(n, pos.Source, 2), src, fmt.Sprintf("Applying shipping to %s order...", src))}, nil
	case PhaseApplyShipping:
		next.Phase = PhaseConfirm
		return next, Output{Progress: snapshot(next, progressAt(n, pos.Source, 3), src, fmt.Sprintf("Confirming %s order...", src))}, nil
	case PhaseConfirm:
		completed = append(completed, src)
		if pos.Source+1 < n {
			next, out, err := enter(order, pos.Source+1, completed)
			out.Confirmed = src
			return next, out, err
		}
		return complete(order, completed, src)
	default:
		return pos, Output{}, fmt.Errorf("unknown checkout phase %d", pos.Phase)
	}
}

func enter(order Order, idx int, completed []string) (Position, Output, error) {
	est := order.Sources[idx]
	next := Position{State: internal.ProcessingState(est.SourceID), Phase: PhaseEnter, Source: idx, Completed: completed}
	return next, Output{
		Progress: snapshot(next, progressAt(len(order.Sources), idx, 0), est.SourceID,
			fmt.Sprintf("Processing %s order...", util.TitleCase(est.SourceID))),
		Notes: []Note{{Kind: internal.KindAction, Message: fmt.Sprintf("🛒 Processing %s: %s, %s",
			est.SourceID, util.Plural(est.LineCount, "item"), util.FormatMoney(est.Cost))}},
	}, nil
}

func complete(order Order, completed []string, confirmed string) (Position, Output, error) {
	next := Position{State: internal.CheckoutComplete, Completed: completed}
	return next, Output{
		Progress: snapshot(next, completePct, "", "All orders placed successfully!"),
		Notes: []Note{{Kind: internal.KindResult, Message: fmt.Sprintf("🎉 Checkout complete! %s placed, total: %s",
			util.Plural(len(order.Sources), "order"), util.FormatMoney(order.Total))}},
		Confirmed: confirmed,
	}, nil
}

var phaseOffsets = [...]float64{0, 0.3, 0.6, 0.9}

// progressAt gives each source an equal slice of the processing span; sub 0
// is entry into the source. Values are whole percents, halves rounded up.
func progressAt(sources, idx, sub int) float64 {
	per := processingSpan / float64(sources)
	return math.Floor(processingPct + float64(idx)*per + per*phaseOffsets[sub] + 0.5)
}

func snapshot(pos Position, pct float64, current, msg string) internal.CheckoutProgress {
	done := make([]string, len(pos.Completed))
	copy(done, pos.Completed)
	return internal.CheckoutProgress{
		State:            pos.State,
		ProgressPct:      pct,
		CurrentSource:    current,
		CompletedSources: done,
		Message:          msg,
	}
}
