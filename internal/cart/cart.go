package cart

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cartpilot/internal"
	"cartpilot/internal/events"
	"cartpilot/internal/optimizer"
	"cartpilot/internal/util"
)

const (
	// DefaultSingleSourceMarkup prices a line at a source with no same-category offer.
	DefaultSingleSourceMarkup = 1.2

	BaselineDeliveryDays = 4
	BaselineRating       = 4.0

	deliveryDateLayout = "Mon, Jan 2"
)

var (
	ErrLineNotFound      = errors.New("cart line not found")
	ErrAlternateNotFound = errors.New("alternate not found")
	ErrOverBudget        = errors.New("alternate does not fit remaining budget")
)

type Assembler struct {
	SingleSourceMarkup float64
	now                func() time.Time
}

func NewAssembler(markup float64, now func() time.Time) *Assembler {
	if markup <= 0 {
		markup = DefaultSingleSourceMarkup
	}
	if now == nil {
		now = time.Now
	}
	return &Assembler{SingleSourceMarkup: markup, now: now}
}

// Group fills BySource and DeliverySchedule. Sources keep the order in which
// they first appear in the cart lines.
func (a *Assembler) Group(c internal.UnifiedCart) internal.UnifiedCart {
	bySource := map[string][]internal.CartLine{}
	var order []string
	for _, line := range c.Lines {
		src := line.Item.SourceID
		if _, ok := bySource[src]; !ok {
			order = append(order, src)
		}
		bySource[src] = append(bySource[src], line)
	}

	schedule := make([]internal.DeliveryEstimate, 0, len(order))
	for _, src := range order {
		lines := bySource[src]
		maxDays := 0
		cost := 0.0
		for _, l := range lines {
			maxDays = max(maxDays, l.Item.DeliveryDays)
			cost += l.Cost()
		}
		schedule = append(schedule, internal.DeliveryEstimate{
			SourceID:      src,
			LineCount:     len(lines),
			EstimatedDate: a.now().AddDate(0, 0, maxDays).Format(deliveryDateLayout),
			Cost:          util.RoundMoney(cost),
		})
	}

	c.BySource = bySource
	c.DeliverySchedule = schedule
	return c
}

// Savings compares the cart with unoptimized shopping over the same candidates.
func (a *Assembler) Savings(c internal.UnifiedCart, candidates []internal.CandidateItem) internal.SavingsAnalysis {
	byCategory := map[string][]internal.CandidateItem{}
	var sources []string
	seen := map[string]bool{}
	for _, p := range candidates {
		byCategory[p.Category] = append(byCategory[p.Category], p)
		if !seen[p.SourceID] {
			seen[p.SourceID] = true
			sources = append(sources, p.SourceID)
		}
	}

	random := 0.0
	for _, line := range c.Lines {
		ps := byCategory[line.Item.Category]
		if len(ps) == 0 {
			continue
		}
		sum := 0.0
		for _, p := range ps {
			sum += p.Price
		}
		random += sum / float64(len(ps)) * float64(line.Quantity)
	}

	single := 0.0
	for _, src := range sources {
		total := 0.0
		for _, line := range c.Lines {
			if p, ok := firstFrom(byCategory[line.Item.Category], src); ok {
				total += p.Price * float64(line.Quantity)
			} else {
				total += line.Item.Price * a.SingleSourceMarkup * float64(line.Quantity)
			}
		}
		single = math.Max(single, total)
	}

	saved := random - c.TotalCost
	percent := 0.0
	if random > 0 {
		percent = saved / random * 100
	}

	daysSaved := 0
	gain := 0.0
	if len(c.Lines) > 0 {
		maxDays := 0
		ratingSum := 0.0
		for _, line := range c.Lines {
			maxDays = max(maxDays, line.Item.DeliveryDays)
			ratingSum += line.Item.Rating
		}
		daysSaved = max(0, BaselineDeliveryDays-maxDays)
		gain = ratingSum/float64(len(c.Lines)) - BaselineRating
	}

	return internal.SavingsAnalysis{
		RandomShoppingCost: util.RoundMoney(random),
		SingleSourceCost:   util.RoundMoney(single),
		AIOptimizedCost:    util.RoundMoney(c.TotalCost),
		MoneySaved:         util.RoundMoney(saved),
		PercentSaved:       util.RoundPercent(percent),
		DeliveryDaysSaved:  daysSaved,
		QualityScoreGain:   util.RoundMoney(gain),
	}
}

func firstFrom(items []internal.CandidateItem, source string) (internal.CandidateItem, bool) {
	for _, p := range items {
		if p.SourceID == source {
			return p, true
		}
	}
	return internal.CandidateItem{}, false
}

// Build groups the cart and computes its savings, narrating both.
func (a *Assembler) Build(c internal.UnifiedCart, candidates []internal.CandidateItem, n *events.Narrator) (internal.UnifiedCart, internal.SavingsAnalysis) {
	if n == nil {
		n = events.NewNarrator(nil, a.now)
	}
	n.Thinking(internal.StageCart, "Building unified multi-source cart...")

	c = a.Group(c)
	savings := a.Savings(c, candidates)

	n.Result(internal.StageCart, "💰 Saved %s vs random shopping (%.1f%% savings)", util.FormatMoney(savings.MoneySaved), savings.PercentSaved)
	if savings.DeliveryDaysSaved > 0 {
		n.Result(internal.StageCart, "⚡ Optimized delivery: %s faster than average", util.Plural(savings.DeliveryDaysSaved, "day"))
	}

	parts := make([]string, 0, len(c.DeliverySchedule))
	for _, d := range c.DeliverySchedule {
		parts = append(parts, fmt.Sprintf("%s (%s, %s)", d.SourceID, util.Plural(d.LineCount, "item"), util.FormatMoney(d.Cost)))
	}
	if len(parts) == 0 {
		n.Result(internal.StageCart, "✓ Cart ready: no items fit the budget")
	} else {
		n.Result(internal.StageCart, "✓ Cart ready: %s", strings.Join(parts, ", "))
	}
	return c, savings
}

// ReplaceLine swaps the item of line idx for one of its alternates. The
// replaced item becomes an alternate and totals are recomputed. The cart
// passed in is not modified.
func (a *Assembler) ReplaceLine(c internal.UnifiedCart, idx int, alternateID string) (internal.UnifiedCart, error) {
	if idx < 0 || idx >= len(c.Lines) {
		return c, fmt.Errorf("%w: %d", ErrLineNotFound, idx)
	}
	line := c.Lines[idx]

	pos := -1
	for i, alt := range line.Alternates {
		if alt.ID == alternateID {
			pos = i
			break
		}
	}
	if pos < 0 {
		return c, fmt.Errorf("%w: %s", ErrAlternateNotFound, alternateID)
	}
	chosen := line.Alternates[pos]

	lineCost := func(l internal.CartLine) decimal.Decimal {
		return util.Decimal(l.Item.Price).Mul(decimal.NewFromInt(int64(l.Quantity)))
	}
	available := util.Decimal(c.BudgetRemaining).Round(2).Add(lineCost(line))
	price := util.Decimal(chosen.Price)
	qty := line.Quantity
	if price.IsPositive() {
		qty = min(line.Quantity, int(available.Div(price).Floor().IntPart()))
	}
	if qty <= 0 {
		return c, fmt.Errorf("%w: %s", ErrOverBudget, alternateID)
	}
	after := available.Sub(price.Mul(decimal.NewFromInt(int64(qty))))

	alternates := make([]internal.ScoredItem, 0, len(line.Alternates))
	alternates = append(alternates, line.Item)
	for i, alt := range line.Alternates {
		if i != pos {
			alternates = append(alternates, alt)
		}
	}

	replaced := internal.CartLine{
		Item:       chosen,
		Quantity:   qty,
		Alternates: alternates,
		Decision:   optimizer.Explain(chosen, alternates, after.InexactFloat64()),
	}

	lines := make([]internal.CartLine, len(c.Lines))
	copy(lines, c.Lines)
	lines[idx] = replaced

	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(lineCost(l))
	}
	out := c
	out.Lines = lines
	out.TotalCost, out.BudgetRemaining = util.SplitBudget(out.MaxBudget, total)
	out.BudgetUtilizationPct = util.Utilization(out.MaxBudget, total)
	return a.Group(out), nil
}
