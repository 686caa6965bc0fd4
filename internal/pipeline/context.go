package pipeline

import (
	"sort"
	"time"

	"cartpilot/internal"
	"cartpilot/internal/checkout"
)

type State string

const (
	StateIdle         State = "idle"
	StatePlanning     State = "planning"
	StateSourcing     State = "sourcing"
	StateRanking      State = "ranking"
	StateOptimizing   State = "optimizing"
	StateCartBuilding State = "cart_building"
	StateComplete     State = "complete"
	StateCheckingOut  State = "checking_out"
	StateCheckedOut   State = "checked_out"
)

// PipelineContext is everything one run produced, threaded through each
// stage. A failed run leaves it reset to idle.
type PipelineContext struct {
	State         State
	TraceID       string
	Goal          string
	Mode          internal.OptimizationMode
	Preferences   internal.Preferences
	Plan          internal.ProcurementPlan
	SourceOrder   []string
	Candidates    map[string][]internal.CandidateItem
	Ranked        map[string][]internal.ScoredItem
	Cart          internal.UnifiedCart
	Savings       internal.SavingsAnalysis
	Metrics       internal.Metrics
	Checkout      internal.CheckoutProgress
	Confirmations []checkout.Confirmation
	StartedAt     time.Time
}

func NewContext() *PipelineContext {
	pc := &PipelineContext{}
	pc.Reset()
	return pc
}

func (pc *PipelineContext) Reset() {
	*pc = PipelineContext{
		State:    StateIdle,
		Checkout: internal.CheckoutProgress{State: internal.CheckoutIdle, CompletedSources: []string{}},
	}
}

// Ready reports whether the run finished and its cart can be reworked or
// checked out.
func (pc *PipelineContext) Ready() bool {
	return pc.State == StateComplete
}

// Sources lists candidate sources in search order, then any others sorted.
func (pc *PipelineContext) Sources() []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(pc.Candidates))
	for _, id := range pc.SourceOrder {
		if _, ok := pc.Candidates[id]; ok && !seen[id] {
			out = append(out, id)
			seen[id] = true
		}
	}
	var rest []string
	for id := range pc.Candidates {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

// FlatCandidates concatenates candidates in Sources order.
func (pc *PipelineContext) FlatCandidates() []internal.CandidateItem {
	var out []internal.CandidateItem
	for _, id := range pc.Sources() {
		out = append(out, pc.Candidates[id]...)
	}
	return out
}

type Result struct {
	TraceID    string                              `json:"traceId"`
	Goal       string                              `json:"goal"`
	Mode       internal.OptimizationMode           `json:"mode"`
	Plan       internal.ProcurementPlan            `json:"plan"`
	Candidates map[string][]internal.CandidateItem `json:"-"`
	Ranked     map[string][]internal.ScoredItem    `json:"ranked"`
	Cart       internal.UnifiedCart                `json:"cart"`
	Savings    internal.SavingsAnalysis            `json:"savings"`
	Metrics    internal.Metrics                    `json:"metrics"`
}

func (pc *PipelineContext) Result() Result {
	return Result{
		TraceID:    pc.TraceID,
		Goal:       pc.Goal,
		Mode:       pc.Mode,
		Plan:       pc.Plan,
		Candidates: pc.Candidates,
		Ranked:     pc.Ranked,
		Cart:       pc.Cart,
		Savings:    pc.Savings,
		Metrics:    pc.Metrics,
	}
}
