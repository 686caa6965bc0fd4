package cart

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cartpilot/internal"
	"cartpilot/internal/events"
)

var now = time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return now }

func candidate(id, category, source string, price, rating float64, days int) internal.CandidateItem {
	return internal.CandidateItem{ID: id, Name: "Item " + id, Category: category, SourceID: source, Price: price, Rating: rating, DeliveryDays: days, InStock: true}
}

func line(c internal.CandidateItem, qty int, alts ...internal.CandidateItem) internal.CartLine {
	l := internal.CartLine{Item: internal.ScoredItem{CandidateItem: c, Score: 0.8, Rank: 1}, Quantity: qty}
	for i, a := range alts {
		l.Alternates = append(l.Alternates, internal.ScoredItem{CandidateItem: a, Score: 0.5, Rank: i + 2})
	}
	return l
}

func sampleCandidates() []internal.CandidateItem {
	return []internal.CandidateItem{
		candidate("a-snk", "snacks", "amazon", 2, 4.5, 1),
		candidate("w-snk", "snacks", "walmart", 3, 4.2, 3),
		candidate("b-snk", "snacks", "bestbuy", 4, 4.0, 5),
		candidate("w-bdg", "badges", "walmart", 1, 4.7, 2),
		candidate("a-bdg", "badges", "amazon", 2, 4.1, 2),
	}
}

func sampleCart() internal.UnifiedCart {
	cands := sampleCandidates()
	lines := []internal.CartLine{
		line(cands[0], 10, cands[1], cands[2]),
		line(cands[3], 5, cands[4]),
	}
	total := 0.0
	for _, l := range lines {
		total += l.Cost()
	}
	return internal.UnifiedCart{Lines: lines, MaxBudget: 100, TotalCost: total, BudgetRemaining: 100 - total, BudgetUtilizationPct: total}
}

func TestGroupBuildsScheduleInLineOrder(t *testing.T) {
	a := NewAssembler(0, fixedClock)
	c := a.Group(sampleCart())

	require.Len(t, c.DeliverySchedule, 2)
	require.Equal(t, []string{"amazon", "walmart"}, c.Sources())
	require.Equal(t, 1, c.DeliverySchedule[0].LineCount)
	require.Equal(t, 20.0, c.DeliverySchedule[0].Cost)
	require.Equal(t, "Thu, Mar 6", c.DeliverySchedule[0].EstimatedDate)
	require.Equal(t, "Fri, Mar 7", c.DeliverySchedule[1].EstimatedDate)
	require.Len(t, c.BySource["walmart"], 1)
}

func TestSavings(t *testing.T) {
	a := NewAssembler(DefaultSingleSourceMarkup, fixedClock)
	c := a.Group(sampleCart())
	s := a.Savings(c, sampleCandidates())

	// snacks avg 3 × 10 + badges avg 1.5 × 5
	require.Equal(t, 37.5, s.RandomShoppingCost)
	require.Equal(t, 25.0, s.AIOptimizedCost)
	require.Equal(t, 12.5, s.MoneySaved)
	require.Equal(t, 33.3, s.PercentSaved)
	// bestbuy: 4×10 + 1×1.2×5
	require.Equal(t, 46.0, s.SingleSourceCost)
	require.Equal(t, 2, s.DeliveryDaysSaved)
	require.Equal(t, 0.6, s.QualityScoreGain)

	require.InDelta(t, s.RandomShoppingCost-s.AIOptimizedCost, s.MoneySaved, 0.01)
	require.InDelta(t, s.MoneySaved/s.RandomShoppingCost*100, s.PercentSaved, 0.05)
}

func TestSavingsMarkupOverride(t *testing.T) {
	a := NewAssembler(1.5, fixedClock)
	s := a.Savings(sampleCart(), sampleCandidates())
	// bestbuy: 4×10 + 1×1.5×5
	require.Equal(t, 47.5, s.SingleSourceCost)
}

func TestSavingsDoesNotMutateCart(t *testing.T) {
	a := NewAssembler(0, fixedClock)
	c := sampleCart()
	before := c.Lines[0]
	a.Savings(c, sampleCandidates())
	require.Equal(t, before, c.Lines[0])
	require.Nil(t, c.BySource)
}

func TestSavingsEmptyCart(t *testing.T) {
	s := NewAssembler(0, fixedClock).Savings(internal.UnifiedCart{MaxBudget: 50, BudgetRemaining: 50}, sampleCandidates())
	require.Zero(t, s.RandomShoppingCost)
	require.Zero(t, s.PercentSaved)
	require.Zero(t, s.DeliveryDaysSaved)
	require.Zero(t, s.QualityScoreGain)
}

func TestBuildNarrates(t *testing.T) {
	q := events.NewQueue()
	a := NewAssembler(0, fixedClock)
	c, s := a.Build(sampleCart(), sampleCandidates(), events.NewNarrator(q, fixedClock))

	require.Len(t, c.DeliverySchedule, 2)
	require.Equal(t, 12.5, s.MoneySaved)

	evs := q.Events()
	require.Len(t, evs, 4)
	require.Equal(t, "💰 Saved $12.50 vs random shopping (33.3% savings)", evs[1].Message)
	require.Equal(t, "⚡ Optimized delivery: 2 days faster than average", evs[2].Message)
	require.Equal(t, "✓ Cart ready: amazon (1 item, $20.00), walmart (1 item, $5.00)", evs[3].Message)
}

func TestGroupKeepsFirstAppearanceOrder(t *testing.T) {
	cands := sampleCandidates()
	c := internal.UnifiedCart{Lines: []internal.CartLine{
		line(cands[3], 2),
		line(cands[2], 1),
		line(cands[0], 3),
	}}

	c = NewAssembler(0, fixedClock).Group(c)
	require.Equal(t, []string{"walmart", "bestbuy", "amazon"}, c.Sources())
}

func TestReplaceLine(t *testing.T) {
	a := NewAssembler(0, fixedClock)
	original := a.Group(sampleCart())

	updated, err := a.ReplaceLine(original, 0, "w-snk")
	require.NoError(t, err)

	require.Equal(t, "w-snk", updated.Lines[0].Item.ID)
	require.Equal(t, 10, updated.Lines[0].Quantity)
	require.Equal(t, "a-snk", updated.Lines[0].Alternates[0].ID)
	require.Len(t, updated.Lines[0].Alternates, 2)
	require.Equal(t, 35.0, updated.TotalCost)
	require.Equal(t, updated.MaxBudget, updated.TotalCost+updated.BudgetRemaining)
	require.Equal(t, []string{"walmart"}, updated.Sources())
	require.NotEmpty(t, updated.Lines[0].Decision.WhySelected)

	require.Equal(t, "a-snk", original.Lines[0].Item.ID)
}

func TestReplaceLineKeepsBudgetIdentity(t *testing.T) {
	a := NewAssembler(0, fixedClock)
	c := sampleCart()
	c.MaxBudget = 87.33
	c.BudgetRemaining = 62.33

	updated, err := a.ReplaceLine(c, 0, "w-snk")
	require.NoError(t, err)
	require.Equal(t, 35.0, updated.TotalCost)
	require.Equal(t, updated.MaxBudget, updated.TotalCost+updated.BudgetRemaining)
	require.InDelta(t, 52.33, updated.BudgetRemaining, 1e-9)
}

func TestReplaceLineCapsQuantityByBudget(t *testing.T) {
	a := NewAssembler(0, fixedClock)
	c := sampleCart()
	c.MaxBudget = 30
	c.BudgetRemaining = 5

	updated, err := a.ReplaceLine(c, 0, "b-snk")
	require.NoError(t, err)
	require.Equal(t, 6, updated.Lines[0].Quantity)
	require.LessOrEqual(t, updated.TotalCost, updated.MaxBudget)
}

func TestReplaceLineErrors(t *testing.T) {
	a := NewAssembler(0, fixedClock)
	c := sampleCart()

	_, err := a.ReplaceLine(c, 9, "w-snk")
	require.ErrorIs(t, err, ErrLineNotFound)

	_, err = a.ReplaceLine(c, 0, "nope")
	require.ErrorIs(t, err, ErrAlternateNotFound)

	c.Lines[0].Alternates[0].Price = 1000
	_, err = a.ReplaceLine(c, 0, "w-snk")
	require.ErrorIs(t, err, ErrOverBudget)
}
