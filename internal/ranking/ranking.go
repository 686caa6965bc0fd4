package ranking

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"cartpilot/internal"
	"cartpilot/internal/events"
	"cartpilot/internal/util"
)

const (
	preferredSourceBoost = 1.15
	ratingBonus          = 1.1
	slowDeliveryPenalty  = 0.5
)

type Weights struct {
	Price     float64 `json:"price"`
	Delivery  float64 `json:"delivery"`
	Rating    float64 `json:"rating"`
	BudgetFit float64 `json:"budgetFit"`
}

var modeWeights = map[internal.OptimizationMode]Weights{
	internal.ModeBalanced:       {Price: 0.35, Delivery: 0.25, Rating: 0.20, BudgetFit: 0.20},
	internal.ModeCheapest:       {Price: 0.60, Delivery: 0.15, Rating: 0.15, BudgetFit: 0.10},
	internal.ModeFastest:        {Price: 0.20, Delivery: 0.50, Rating: 0.15, BudgetFit: 0.15},
	internal.ModeHighestQuality: {Price: 0.15, Delivery: 0.15, Rating: 0.55, BudgetFit: 0.15},
}

// WeightsFor returns the weights of mode; unknown modes score as balanced.
func WeightsFor(mode internal.OptimizationMode) Weights {
	if w, ok := modeWeights[mode]; ok {
		return w
	}
	return modeWeights[internal.ModeBalanced]
}

func (w Weights) Sum() float64 {
	return w.Price + w.Delivery + w.Rating + w.BudgetFit
}

// Rank scores candidates per plan category. Categories with no candidates are
// left out of the result.
func Rank(items []internal.CandidateItem, plan internal.ProcurementPlan, mode internal.OptimizationMode, prefs internal.Preferences, n *events.Narrator) map[string][]internal.ScoredItem {
	if n == nil {
		n = events.NewNarrator(nil, nil)
	}
	w := WeightsFor(mode)

	prefInfo := ""
	if prefs.PreferredSource != "" && prefs.PreferredSource != internal.AnySource {
		prefInfo = " | Preferred: " + prefs.PreferredSource
	}
	n.Thinking(internal.StageRanking, "Applying %s scoring model: %.0f%% price, %.0f%% delivery, %.0f%% rating, %.0f%% budget fit%s",
		mode, w.Price*100, w.Delivery*100, w.Rating*100, w.BudgetFit*100, prefInfo)

	byCategory := map[string][]internal.CandidateItem{}
	for _, item := range items {
		byCategory[item.Category] = append(byCategory[item.Category], item)
	}

	out := map[string][]internal.ScoredItem{}
	total := 0
	for _, cat := range plan.Categories {
		candidates := byCategory[cat.Name]
		if len(candidates) == 0 {
			continue
		}
		scored := RankCategory(candidates, plan.Constraints.MaxBudget*cat.BudgetAllocation, w, prefs)
		out[cat.Name] = scored
		total += len(scored)

		top := scored[0]
		n.Result(internal.StageRanking, "%s: Top pick %q (score: %.3f)", cat.DisplayName, util.Truncate(top.Name, 30), top.Score)
	}

	n.Result(internal.StageRanking, "✓ Ranked %d products across %d categories", total, len(out))
	return out
}

// RankCategory scores one category's candidates against a per-category target
// spend and returns them sorted by score, best first, with 1-based ranks.
func RankCategory(candidates []internal.CandidateItem, target float64, w Weights, prefs internal.Preferences) []internal.ScoredItem {
	maxPrice := 0.0
	maxDays := 0
	for _, c := range candidates {
		maxPrice = math.Max(maxPrice, c.Price)
		maxDays = max(maxDays, c.DeliveryDays)
	}

	scored := make([]internal.ScoredItem, 0, len(candidates))
	for _, c := range candidates {
		b := breakdown(c, maxPrice, maxDays, target, prefs)
		scored = append(scored, internal.ScoredItem{
			CandidateItem:  c,
			Score:          total(b, w, c, prefs),
			ScoreBreakdown: b,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	for i := range scored {
		scored[i].Rank = i + 1
	}
	return scored
}

func breakdown(c internal.CandidateItem, maxPrice float64, maxDays int, target float64, prefs internal.Preferences) internal.ScoreBreakdown {
	price := 1.0
	if maxPrice > 0 {
		price = 1 - c.Price/maxPrice
	}

	delivery := 1 - float64(c.DeliveryDays)/float64(max(maxDays, 1))
	if c.DeliveryDays > prefs.MaxDeliveryDays {
		delivery *= slowDeliveryPenalty
	}

	rating := c.Rating / 5
	if c.Rating >= prefs.MinRating {
		rating = math.Min(1, rating*ratingBonus)
	}

	fit := 0.0
	if target > 0 {
		fit = math.Max(0, 1-math.Abs(c.Price-target)/target)
	}

	return internal.ScoreBreakdown{
		PriceScore:     util.RoundTo(clamp01(price), 2),
		DeliveryScore:  util.RoundTo(clamp01(delivery), 2),
		RatingScore:    util.RoundTo(clamp01(rating), 2),
		BudgetFitScore: util.RoundTo(clamp01(fit), 2),
	}
}

func total(b internal.ScoreBreakdown, w Weights, c internal.CandidateItem, prefs internal.Preferences) float64 {
	score := w.Price*b.PriceScore + w.Delivery*b.DeliveryScore + w.Rating*b.RatingScore + w.BudgetFit*b.BudgetFitScore
	if prefs.PreferredSource != "" && prefs.PreferredSource != internal.AnySource && c.SourceID == prefs.PreferredSource {
		score = math.Min(1, score*preferredSourceBoost)
	}
	return util.RoundTo(clamp01(score), 3)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Explain renders why an item holds its rank under mode.
func Explain(item internal.ScoredItem, mode internal.OptimizationMode) string {
	w := WeightsFor(mode)
	b := item.ScoreBreakdown
	var sb strings.Builder
	fmt.Fprintf(&sb, "Ranked #%d because:\n", item.Rank)
	fmt.Fprintf(&sb, "• Price efficiency: %.0f%% (%.0f%% weight)\n", b.PriceScore*100, w.Price*100)
	fmt.Fprintf(&sb, "• Delivery speed: %.0f%% (%.0f%% weight)\n", b.DeliveryScore*100, w.Delivery*100)
	fmt.Fprintf(&sb, "• Quality rating: %.0f%% (%.0f%% weight)\n", b.RatingScore*100, w.Rating*100)
	fmt.Fprintf(&sb, "• Budget fit: %.0f%% (%.0f%% weight)\n", b.BudgetFitScore*100, w.BudgetFit*100)
	fmt.Fprintf(&sb, "Final score: %.3f", item.Score)
	return sb.String()
}
