package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"cartpilot/internal"
)

func explainContext() *PipelineContext {
	a1 := internal.CandidateItem{ID: "a1", Name: "Chips", Category: "snacks", Price: 2, Rating: 4.5, DeliveryDays: 2, SourceID: "amazon", InStock: true}
	a2 := internal.CandidateItem{ID: "a2", Name: "Soda", Category: "snacks", Price: 1, Rating: 3.1, DeliveryDays: 9, SourceID: "amazon", InStock: true}

	pc := NewContext()
	pc.State = StateComplete
	pc.Mode = internal.ModeCheapest
	pc.Candidates = map[string][]internal.CandidateItem{"amazon": {a1, a2}}
	pc.Ranked = map[string][]internal.ScoredItem{"snacks": {{
		CandidateItem:  a1,
		Score:          0.8,
		Rank:           1,
		ScoreBreakdown: internal.ScoreBreakdown{PriceScore: 0.5, DeliveryScore: 0.6, RatingScore: 0.9, BudgetFitScore: 1},
	}}}
	pc.Cart.Lines = []internal.CartLine{{Item: pc.Ranked["snacks"][0], Quantity: 3}}
	return pc
}

func TestExplainRankedItem(t *testing.T) {
	pc := explainContext()

	ex, err := pc.Explain("snacks", "a1", "")
	require.NoError(t, err)
	require.True(t, ex.Selected)
	require.Equal(t, internal.ModeCheapest, ex.Mode)
	require.Equal(t, 1, ex.Item.Rank)
	require.Contains(t, ex.Text, "Ranked #1 because:")
	require.Contains(t, ex.Text, "Price efficiency: 50%")

	ex, err = pc.Explain("snacks", "a1", "amazon")
	require.NoError(t, err)
	require.Equal(t, "amazon", ex.Item.SourceID)
}

func TestExplainMissingItems(t *testing.T) {
	pc := explainContext()

	_, err := pc.Explain("snacks", "a2", "")
	require.ErrorIs(t, err, ErrFilteredOut)

	_, err = pc.Explain("snacks", "a1", "walmart")
	require.ErrorIs(t, err, ErrNotRanked)

	_, err = pc.Explain("badges", "a1", "")
	require.ErrorIs(t, err, ErrNotRanked)

	_, err = NewContext().Explain("snacks", "a1", "")
	require.ErrorIs(t, err, ErrNotReady)
}

func TestExplainAfterRun(t *testing.T) {
	svc := NewService(partyCatalog(), WithClock(clock))
	pc := NewContext()
	require.NoError(t, svc.Execute(context.Background(), pc, partyGoal, internal.ModeBalanced, nil))

	line := pc.Cart.Lines[0]
	ex, err := pc.Explain(line.Item.Category, line.Item.ID, line.Item.SourceID)
	require.NoError(t, err)
	require.True(t, ex.Selected)
	require.Equal(t, line.Item.Rank, ex.Item.Rank)
}
