package optimizer

import (
	"fmt"

	"github.com/shopspring/decimal"

	"cartpilot/internal"
	"cartpilot/internal/events"
	"cartpilot/internal/util"
)

const (
	DefaultOptionalFloor = 10.0
	maxAlternates        = 3
	maxWhyNot            = 2
)

type Optimizer struct {
	// OptionalFloor stops the optional pass once the remaining budget drops below it.
	OptionalFloor float64
}

func New(optionalFloor float64) *Optimizer {
	if optionalFloor < 0 {
		optionalFloor = DefaultOptionalFloor
	}
	return &Optimizer{OptionalFloor: optionalFloor}
}

// Optimize picks one item per category greedily: must-have categories first,
// then optional ones while the remaining budget stays above the floor. Lines
// are never revisited once committed.
func (o *Optimizer) Optimize(ranked map[string][]internal.ScoredItem, plan internal.ProcurementPlan, n *events.Narrator) internal.UnifiedCart {
	if n == nil {
		n = events.NewNarrator(nil, nil)
	}
	maxBudget := plan.Constraints.MaxBudget
	remaining := util.Decimal(maxBudget)
	spent := decimal.Zero
	floor := util.Decimal(o.OptionalFloor)
	var lines []internal.CartLine

	n.Thinking(internal.StageOptimizer, "Starting budget optimization with %s available", util.FormatMoney(maxBudget))

	var mustHave, optional []internal.Category
	for _, c := range plan.Categories {
		if c.Priority == internal.PriorityHigh {
			mustHave = append(mustHave, c)
		} else {
			optional = append(optional, c)
		}
	}

	n.Action(internal.StageOptimizer, "Phase 1: Fulfilling %d must-have categories first", len(mustHave))
	for _, cat := range mustHave {
		line, cost, ok := pick(ranked[cat.Name], cat, remaining)
		if !ok {
			continue
		}
		remaining = remaining.Sub(cost)
		spent = spent.Add(cost)
		lines = append(lines, line)
		n.Decision(internal.StageOptimizer, "✓ %s: Selected %q × %d = %s",
			cat.DisplayName, util.Truncate(line.Item.Name, 25), line.Quantity, util.FormatMoney(line.Cost()))
	}

	n.Action(internal.StageOptimizer, "Phase 2: Adding optional items with %s remaining", util.FormatMoney(remaining.InexactFloat64()))
	for _, cat := range optional {
		if remaining.LessThan(floor) {
			break
		}
		line, cost, ok := pick(ranked[cat.Name], cat, remaining)
		if !ok {
			continue
		}
		remaining = remaining.Sub(cost)
		spent = spent.Add(cost)
		lines = append(lines, line)
		n.Decision(internal.StageOptimizer, "+ %s: Added %q = %s",
			cat.DisplayName, util.Truncate(line.Item.Name, 25), util.FormatMoney(line.Cost()))
	}

	cart := internal.UnifiedCart{
		Lines:                lines,
		MaxBudget:            maxBudget,
		BudgetUtilizationPct: util.Utilization(maxBudget, spent),
	}
	cart.TotalCost, cart.BudgetRemaining = util.SplitBudget(maxBudget, spent)

	n.Result(internal.StageOptimizer, "✓ Optimization complete: %s spent (%.1f%% of budget), %s selected",
		util.FormatMoney(cart.TotalCost), cart.BudgetUtilizationPct, util.Plural(len(lines), "item"))
	return cart
}

// pick chooses the best-ranked item that fits in remaining and returns its
// line with the exact line cost.
func pick(products []internal.ScoredItem, cat internal.Category, remaining decimal.Decimal) (internal.CartLine, decimal.Decimal, bool) {
	idx := -1
	for i, p := range products {
		if util.Decimal(p.Price).LessThanOrEqual(remaining) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return internal.CartLine{}, decimal.Zero, false
	}
	best := products[idx]
	price := util.Decimal(best.Price)

	qty := cat.EstimatedQuantity
	if price.IsPositive() {
		qty = min(cat.EstimatedQuantity, int(remaining.Div(price).Floor().IntPart()))
	}
	cost := price.Mul(decimal.NewFromInt(int64(qty)))
	if qty <= 0 || cost.GreaterThan(remaining) {
		return internal.CartLine{}, decimal.Zero, false
	}

	alternates := alternatesOf(products, idx)
	return internal.CartLine{
		Item:       best,
		Quantity:   qty,
		Alternates: alternates,
		Decision:   Explain(best, alternates, remaining.Sub(cost).InexactFloat64()),
	}, cost, true
}

// alternatesOf returns up to three other items in ranked order. Higher-ranked
// items that did not fit stay in the list so the rationale can say why they
// lost.
func alternatesOf(products []internal.ScoredItem, selected int) []internal.ScoredItem {
	out := []internal.ScoredItem{}
	for i, p := range products {
		if i == selected {
			continue
		}
		if len(out) == maxAlternates {
			break
		}
		out = append(out, p)
	}
	return out
}

// Explain builds the selection rationale for an item given the budget left after it.
func Explain(selected internal.ScoredItem, alternates []internal.ScoredItem, remainingAfter float64) internal.Decision {
	var why []string
	switch {
	case selected.ScoreBreakdown.PriceScore > 0.7:
		why = append(why, fmt.Sprintf("Excellent value at %s", util.FormatMoney(selected.Price)))
	case selected.ScoreBreakdown.PriceScore > 0.4:
		why = append(why, fmt.Sprintf("Good balance of price (%s) and quality", util.FormatMoney(selected.Price)))
	}
	if selected.DeliveryDays <= 2 {
		why = append(why, fmt.Sprintf("Fast delivery in %s", util.Plural(selected.DeliveryDays, "day")))
	}
	if selected.Rating >= 4.5 {
		why = append(why, fmt.Sprintf("Highly rated at %g★ (%s reviews)", selected.Rating, util.FormatCount(selected.ReviewCount)))
	}
	why = append(why, fmt.Sprintf("Keeps total under budget (%s remaining)", util.FormatMoney(remainingAfter)))

	notes := []internal.AlternativeNote{}
	for i, alt := range alternates {
		if i >= maxWhyNot {
			break
		}
		notes = append(notes, internal.AlternativeNote{
			ItemID:   alt.ID,
			ItemName: alt.Name,
			Reason:   whyNot(selected, alt),
		})
	}
	return internal.Decision{WhySelected: why, WhyNotAlternatives: notes}
}

func whyNot(selected, alt internal.ScoredItem) string {
	switch {
	case alt.Price < selected.Price:
		tradeoff := "slower delivery"
		if alt.Rating < selected.Rating {
			tradeoff = "lower quality"
		}
		return fmt.Sprintf("%s cheaper but %s", util.FormatMoney(selected.Price-alt.Price), tradeoff)
	case alt.Rating > selected.Rating:
		return fmt.Sprintf("Higher rated (%g★) but %s more expensive", alt.Rating, util.FormatMoney(alt.Price-selected.Price))
	case alt.DeliveryDays < selected.DeliveryDays:
		if alt.Price > selected.Price {
			return "Faster delivery but more expensive"
		}
		return "Faster delivery but lower rated"
	default:
		return fmt.Sprintf("Lower overall score (%.3f vs %.3f)", alt.Score, selected.Score)
	}
}
