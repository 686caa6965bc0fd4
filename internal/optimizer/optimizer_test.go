package optimizer

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"cartpilot/internal"
	"cartpilot/internal/events"
	"cartpilot/internal/util"
)

func scored(id, category string, price, rating float64, days int, score, priceScore float64) internal.ScoredItem {
	return internal.ScoredItem{
		CandidateItem: internal.CandidateItem{
			ID: id, Name: "Item " + id, Category: category, Price: price, Rating: rating,
			ReviewCount: 1200, DeliveryDays: days, SourceID: "amazon", InStock: true,
		},
		Score:          score,
		ScoreBreakdown: internal.ScoreBreakdown{PriceScore: priceScore},
	}
}

func category(name string, prio internal.Priority, qty int) internal.Category {
	return internal.Category{Name: name, DisplayName: name, EstimatedQuantity: qty, Priority: prio, BudgetAllocation: 0.2}
}

func plan(budget float64, cats ...internal.Category) internal.ProcurementPlan {
	return internal.ProcurementPlan{Categories: cats, Constraints: internal.PlanConstraints{MaxBudget: budget}}
}

func TestOptimizeSmallBudget(t *testing.T) {
	ranked := map[string][]internal.ScoredItem{
		"snacks": {scored("s1", "snacks", 8, 4.6, 1, 0.8, 0.8)},
		"prizes": {scored("p1", "prizes", 5, 4, 2, 0.7, 0.5)},
	}
	p := plan(30, category("snacks", internal.PriorityHigh, 3), category("prizes", internal.PriorityMedium, 1))

	cart := New(DefaultOptionalFloor).Optimize(ranked, p, nil)

	require.Len(t, cart.Lines, 1)
	require.Equal(t, 3, cart.Lines[0].Quantity)
	require.InDelta(t, 24.0, cart.TotalCost, 1e-9)
	require.InDelta(t, 6.0, cart.BudgetRemaining, 1e-9)
	require.InDelta(t, 80.0, cart.BudgetUtilizationPct, 1e-9)
}

func TestOptimizeSkipsUnaffordableTopPick(t *testing.T) {
	ranked := map[string][]internal.ScoredItem{
		"outerwear": {
			scored("expensive", "outerwear", 50, 5, 1, 0.9, 0.1),
			scored("budget", "outerwear", 8, 4, 3, 0.5, 0.8),
		},
	}
	cart := New(DefaultOptionalFloor).Optimize(ranked, plan(30, category("outerwear", internal.PriorityHigh, 1)), nil)

	require.Len(t, cart.Lines, 1)
	require.Equal(t, "budget", cart.Lines[0].Item.ID)
	require.Equal(t, 1, cart.Lines[0].Quantity)
}

func TestOptimizeQuantityCappedByBudget(t *testing.T) {
	ranked := map[string][]internal.ScoredItem{
		"snacks": {scored("s1", "snacks", 4, 4, 1, 0.8, 0.8)},
	}
	cart := New(DefaultOptionalFloor).Optimize(ranked, plan(30, category("snacks", internal.PriorityHigh, 120)), nil)

	require.Equal(t, 7, cart.Lines[0].Quantity)
	require.InDelta(t, 2.0, cart.BudgetRemaining, 1e-9)
}

func TestOptimizeRespectsBudgetAcrossPrefixes(t *testing.T) {
	ranked := map[string][]internal.ScoredItem{
		"snacks":      {scored("s", "snacks", 2.5, 4, 1, 0.8, 0.8), scored("s2", "snacks", 2, 3, 4, 0.6, 0.9)},
		"badges":      {scored("b", "badges", 1.2, 4.7, 2, 0.8, 0.6)},
		"prizes":      {scored("p", "prizes", 60, 4.8, 3, 0.7, 0.2)},
		"decorations": {scored("d", "decorations", 15, 4.1, 5, 0.5, 0.3)},
	}
	p := plan(300,
		category("snacks", internal.PriorityHigh, 75),
		category("badges", internal.PriorityHigh, 55),
		category("prizes", internal.PriorityMedium, 4),
		category("decorations", internal.PriorityLow, 3),
	)

	cart := New(DefaultOptionalFloor).Optimize(ranked, p, nil)

	running := 0.0
	for _, line := range cart.Lines {
		require.GreaterOrEqual(t, line.Quantity, 1)
		running += line.Cost()
		require.LessOrEqual(t, running, p.Constraints.MaxBudget+1e-9)
	}
	require.Equal(t, p.Constraints.MaxBudget, cart.TotalCost+cart.BudgetRemaining)
	require.InDelta(t, util.RoundMoney(running), cart.TotalCost, 1e-9)
	require.Equal(t, "snacks", cart.Lines[0].Item.Category)
	require.Equal(t, "badges", cart.Lines[1].Item.Category)
}

func TestOptimizeMustHaveBeforeOptional(t *testing.T) {
	ranked := map[string][]internal.ScoredItem{
		"prizes": {scored("p", "prizes", 20, 4, 1, 0.8, 0.5)},
		"snacks": {scored("s", "snacks", 10, 4, 1, 0.8, 0.5)},
	}
	p := plan(25, category("prizes", internal.PriorityMedium, 1), category("snacks", internal.PriorityHigh, 1))

	cart := New(DefaultOptionalFloor).Optimize(ranked, p, nil)

	require.Len(t, cart.Lines, 1)
	require.Equal(t, "s", cart.Lines[0].Item.ID)
}

func TestOptimizeSkipsMissingCategories(t *testing.T) {
	cart := New(DefaultOptionalFloor).Optimize(map[string][]internal.ScoredItem{}, plan(100, category("snacks", internal.PriorityHigh, 3)), nil)
	require.Empty(t, cart.Lines)
	require.Equal(t, 100.0, cart.BudgetRemaining)
	require.Equal(t, 0.0, cart.TotalCost)
}

func TestOptimizeZeroPriceUsesEstimate(t *testing.T) {
	ranked := map[string][]internal.ScoredItem{
		"badges": {scored("free", "badges", 0, 4, 1, 0.8, 1)},
	}
	cart := New(DefaultOptionalFloor).Optimize(ranked, plan(10, category("badges", internal.PriorityHigh, 12)), nil)
	require.Equal(t, 12, cart.Lines[0].Quantity)
	require.Equal(t, 10.0, cart.BudgetRemaining)
}

func TestDecisionTexts(t *testing.T) {
	selected := scored("sel", "snacks", 10, 4.6, 2, 0.8, 0.75)
	alts := []internal.ScoredItem{
		scored("cheap", "snacks", 7, 4.0, 2, 0.7, 0.9),
		scored("pricey", "snacks", 14, 4.9, 2, 0.6, 0.3),
		scored("third", "snacks", 12, 4.1, 5, 0.4, 0.3),
	}
	d := Explain(selected, alts, 42.5)

	require.Equal(t, []string{
		"Excellent value at $10.00",
		"Fast delivery in 2 days",
		"Highly rated at 4.6★ (1,200 reviews)",
		"Keeps total under budget ($42.50 remaining)",
	}, d.WhySelected)
	require.Len(t, d.WhyNotAlternatives, 2)
	require.Equal(t, "$3.00 cheaper but lower quality", d.WhyNotAlternatives[0].Reason)
	require.Equal(t, "Higher rated (4.9★) but $4.00 more expensive", d.WhyNotAlternatives[1].Reason)
}

func TestWhyNotBranches(t *testing.T) {
	sel := scored("sel", "x", 10, 4.5, 4, 0.8, 0.5)
	require.Equal(t, "$2.00 cheaper but slower delivery", whyNot(sel, scored("a", "x", 8, 4.5, 6, 0.5, 0)))
	require.Equal(t, "Faster delivery but more expensive", whyNot(sel, scored("b", "x", 11, 4.5, 1, 0.5, 0)))
	require.Equal(t, "Faster delivery but lower rated", whyNot(sel, scored("c", "x", 10, 4.0, 1, 0.5, 0)))
	require.Equal(t, "Lower overall score (0.500 vs 0.800)", whyNot(sel, scored("d", "x", 10, 4.0, 4, 0.5, 0)))
}

func TestAlternatesAreNextThree(t *testing.T) {
	products := []internal.ScoredItem{
		scored("1", "x", 1, 4, 1, 0.9, 0.9),
		scored("2", "x", 1, 4, 1, 0.8, 0.9),
		scored("3", "x", 1, 4, 1, 0.7, 0.9),
		scored("4", "x", 1, 4, 1, 0.6, 0.9),
		scored("5", "x", 1, 4, 1, 0.5, 0.9),
	}
	alts := alternatesOf(products, 0)
	require.Len(t, alts, 3)
	require.Equal(t, "2", alts[0].ID)
	require.Equal(t, "4", alts[2].ID)
	require.Empty(t, alternatesOf(products[:1], 0))

	alts = alternatesOf(products, 1)
	require.Equal(t, []string{"1", "3", "4"}, []string{alts[0].ID, alts[1].ID, alts[2].ID})
}

func TestAlternatesSkipSelectionAfterUnaffordableTopPick(t *testing.T) {
	ranked := map[string][]internal.ScoredItem{
		"outerwear": {
			scored("expensive", "outerwear", 50, 5, 1, 0.9, 0.1),
			scored("budget", "outerwear", 8, 4, 3, 0.5, 0.8),
			scored("mid", "outerwear", 20, 4.2, 2, 0.4, 0.5),
		},
	}
	cart := New(DefaultOptionalFloor).Optimize(ranked, plan(30, category("outerwear", internal.PriorityHigh, 1)), nil)

	line := cart.Lines[0]
	require.Equal(t, "budget", line.Item.ID)
	require.Len(t, line.Alternates, 2)
	for _, alt := range line.Alternates {
		require.NotEqual(t, "budget", alt.ID)
	}
	for _, note := range line.Decision.WhyNotAlternatives {
		require.NotEqual(t, "budget", note.ItemID)
	}
	require.Equal(t, "Higher rated (5★) but $42.00 more expensive", line.Decision.WhyNotAlternatives[0].Reason)
}

func TestBudgetIdentityIsExact(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	cents := func(lo, hi int) float64 { return float64(lo+rng.Intn(hi-lo)) / 100 }

	for i := 0; i < 2000; i++ {
		budget := cents(1000, 100000)
		ranked := map[string][]internal.ScoredItem{}
		var cats []internal.Category
		for j, name := range []string{"snacks", "badges", "prizes", "decorations"} {
			prio := internal.PriorityHigh
			if j > 1 {
				prio = internal.PriorityLow
			}
			cats = append(cats, category(name, prio, 1+rng.Intn(40)))
			for k := 0; k < 3; k++ {
				ranked[name] = append(ranked[name], scored(fmt.Sprintf("%s-%d", name, k), name, cents(1, 9000), 4, 2, 0.5, 0.5))
			}
		}

		cart := New(DefaultOptionalFloor).Optimize(ranked, plan(budget, cats...), nil)
		require.Equal(t, budget, cart.TotalCost+cart.BudgetRemaining, "budget=%v total=%v remaining=%v", budget, cart.TotalCost, cart.BudgetRemaining)
		require.InDelta(t, util.RoundMoney(cart.TotalCost), cart.TotalCost, 1e-9)
		require.GreaterOrEqual(t, cart.BudgetRemaining, 0.0)
	}
}

func TestOptimizeNarration(t *testing.T) {
	q := events.NewQueue()
	ranked := map[string][]internal.ScoredItem{"snacks": {scored("s1", "snacks", 8, 4.6, 1, 0.8, 0.8)}}
	New(DefaultOptionalFloor).Optimize(ranked, plan(30, category("snacks", internal.PriorityHigh, 3)), events.NewNarrator(q, nil))

	evs := q.Events()
	require.Equal(t, "Starting budget optimization with $30.00 available", evs[0].Message)
	require.Equal(t, "✓ Optimization complete: $24.00 spent (80.0% of budget), 1 item selected", evs[len(evs)-1].Message)
	for _, ev := range evs {
		require.Equal(t, internal.StageOptimizer, ev.StageID)
	}
}
