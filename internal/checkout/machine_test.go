package checkout

import (
	"testing"

	"github.com/stretchr/testify/require"

	"cartpilot/internal"
	"cartpilot/internal/events"
)

func twoSourceCart() internal.UnifiedCart {
	return internal.UnifiedCart{
		Lines:     make([]internal.CartLine, 3),
		TotalCost: 120,
		DeliverySchedule: []internal.DeliveryEstimate{
			{SourceID: "amazon", LineCount: 2, Cost: 80},
			{SourceID: "walmart", LineCount: 1, Cost: 40},
		},
	}
}

func collect(t *testing.T, cart internal.UnifiedCart, n *events.Narrator) []internal.CheckoutProgress {
	t.Helper()
	var out []internal.CheckoutProgress
	_, err := Run(cart, n, func(p internal.CheckoutProgress) { out = append(out, p) })
	require.NoError(t, err)
	return out
}

func TestRunTwoSources(t *testing.T) {
	snaps := collect(t, twoSourceCart(), nil)

	wantPct := []float64{5, 15, 20, 31, 41, 52, 55, 66, 76, 87, 100}
	require.Len(t, snaps, len(wantPct))
	for i, s := range snaps {
		require.Equal(t, wantPct[i], s.ProgressPct, "snapshot %d", i)
	}

	require.Equal(t, internal.CheckoutCollectingInfo, snaps[0].State)
	require.Equal(t, internal.CheckoutValidating, snaps[1].State)
	require.Equal(t, internal.ProcessingState("amazon"), snaps[2].State)
	require.Equal(t, "Processing Amazon order...", snaps[2].Message)
	require.Equal(t, "Confirming amazon order...", snaps[5].Message)
	require.Equal(t, internal.ProcessingState("walmart"), snaps[6].State)
	require.Equal(t, []string{"amazon"}, snaps[6].CompletedSources)

	last := snaps[len(snaps)-1]
	require.Equal(t, internal.CheckoutComplete, last.State)
	require.Equal(t, 100.0, last.ProgressPct)
	require.Equal(t, []string{"amazon", "walmart"}, last.CompletedSources)
	require.Empty(t, last.CurrentSource)
}

func TestProgressSingleSource(t *testing.T) {
	var got []float64
	for sub := 0; sub < 4; sub++ {
		got = append(got, progressAt(1, 0, sub))
	}
	require.Equal(t, []float64{20, 41, 62, 83}, got)
	require.Equal(t, []float64{20, 27, 34, 41}, []float64{progressAt(3, 0, 0), progressAt(3, 0, 1), progressAt(3, 0, 2), progressAt(3, 0, 3)})
	require.Equal(t, 67.0, progressAt(3, 2, 0))
}

func TestProgressMonotonicAndCurrentSource(t *testing.T) {
	for sources := 1; sources <= 5; sources++ {
		cart := internal.UnifiedCart{}
		for i := 0; i < sources; i++ {
			cart.DeliverySchedule = append(cart.DeliverySchedule, internal.DeliveryEstimate{SourceID: string(rune('a' + i)), LineCount: 1})
		}
		snaps := collect(t, cart, nil)

		prev := 0.0
		for i, s := range snaps {
			require.GreaterOrEqual(t, s.ProgressPct, prev)
			prev = s.ProgressPct
			_, processing := s.State.ProcessingSource()
			require.Equal(t, processing, s.CurrentSource != "", "snapshot %d", i)
		}
		require.Equal(t, 100.0, prev)
		require.Len(t, snaps[len(snaps)-1].CompletedSources, sources)
	}
}

func TestRunEmptySchedule(t *testing.T) {
	snaps := collect(t, internal.UnifiedCart{}, nil)
	require.Len(t, snaps, 3)
	require.Equal(t, internal.CheckoutComplete, snaps[2].State)
	require.Empty(t, snaps[2].CompletedSources)
}

func TestStepIsPure(t *testing.T) {
	order := OrderFromCart(twoSourceCart())
	pos := Position{State: internal.ProcessingState("amazon"), Phase: PhaseConfirm, Source: 0, Completed: []string{}}

	next1, out1, err := Step(order, pos)
	require.NoError(t, err)
	next2, out2, err := Step(order, pos)
	require.NoError(t, err)

	require.Equal(t, next1, next2)
	require.Equal(t, out1, out2)
	require.Empty(t, pos.Completed)
	require.Equal(t, "amazon", out1.Confirmed)
	require.Equal(t, PhaseEnter, next1.Phase)
	require.Equal(t, 1, next1.Source)
}

func TestStepAfterComplete(t *testing.T) {
	_, _, err := Step(Order{}, Position{State: internal.CheckoutComplete})
	require.ErrorIs(t, err, ErrAlreadyComplete)

	_, _, err = Step(Order{}, Position{State: "shipping"})
	require.Error(t, err)
}

func TestMachineNarratesAndConfirms(t *testing.T) {
	q := events.NewQueue()
	m := NewMachine(twoSourceCart(), events.NewNarrator(q, nil))
	ids := []string{"01AAA", "01BBB"}
	m.newOrderID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	count := 0
	for {
		_, ok, err := m.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		count++
	}
	require.Equal(t, 11, count)

	_, ok, err := m.Next()
	require.NoError(t, err)
	require.False(t, ok)

	require.Equal(t, []Confirmation{{SourceID: "amazon", OrderNumber: "01AAA"}, {SourceID: "walmart", OrderNumber: "01BBB"}}, m.Confirmations())

	var msgs []string
	for _, ev := range q.Events() {
		require.Equal(t, internal.StageCheckout, ev.StageID)
		msgs = append(msgs, ev.Message)
	}
	require.Equal(t, []string{
		"Starting autonomous checkout sequence...",
		"📋 Validating 3 items across 2 sources",
		"🛒 Processing amazon: 2 items, $80.00",
		"✓ Amazon order confirmed! Order #01AAA",
		"🛒 Processing walmart: 1 item, $40.00",
		"✓ Walmart order confirmed! Order #01BBB",
		"🎉 Checkout complete! 2 orders placed, total: $120.00",
	}, msgs)
}

func TestRunUsesULIDOrderNumbers(t *testing.T) {
	confs, err := Run(twoSourceCart(), nil, nil)
	require.NoError(t, err)
	require.Len(t, confs, 2)
	require.Len(t, confs[0].OrderNumber, 26)
	require.NotEqual(t, confs[0].OrderNumber, confs[1].OrderNumber)
}
