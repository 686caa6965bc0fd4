package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"cartpilot/internal"
	"cartpilot/internal/cart"
	"cartpilot/internal/checkout"
	"cartpilot/internal/events"
	"cartpilot/internal/observability"
	"cartpilot/internal/optimizer"
	"cartpilot/internal/planner"
	"cartpilot/internal/ranking"
	"cartpilot/internal/util"
)

var (
	ErrCatalogUnavailable = errors.New("catalog unavailable")
	ErrNotReady           = errors.New("no completed run to work on")
	ErrEmptyCart          = errors.New("cart is empty")
)

type CatalogSource interface {
	FetchCandidates(ctx context.Context, categories []string) (map[string][]internal.CandidateItem, error)
}

// SourceLister is implemented by catalogs that know their sources up front.
type SourceLister interface {
	SourceIDs() []string
	DisplayName(source string) string
}

type PreferenceStore interface {
	LoadPreferences(ctx context.Context) (internal.Preferences, error)
}

type Service struct {
	catalog   CatalogSource
	prefs     PreferenceStore
	planner   *planner.Planner
	optimizer *optimizer.Optimizer
	assembler *cart.Assembler
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
}

type Option func(*Service)

func WithPreferences(store PreferenceStore) Option {
	return func(s *Service) { s.prefs = store }
}

func WithPlanner(p *planner.Planner) Option {
	return func(s *Service) { s.planner = p }
}

func WithOptimizer(o *optimizer.Optimizer) Option {
	return func(s *Service) { s.optimizer = o }
}

func WithAssembler(a *cart.Assembler) Option {
	return func(s *Service) { s.assembler = a }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(catalog CatalogSource, opts ...Option) *Service {
	s := &Service{
		catalog: catalog,
		now:     time.Now,
		newID:   func() string { return ulid.Make().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = observability.OrNop(s.logger)
	if s.planner == nil {
		s.planner = planner.New(planner.WithClock(s.now), planner.WithLogger(s.logger))
	}
	if s.optimizer == nil {
		s.optimizer = optimizer.New(optimizer.DefaultOptionalFloor)
	}
	if s.assembler == nil {
		s.assembler = cart.NewAssembler(cart.DefaultSingleSourceMarkup, s.now)
	}
	return s
}

// Run executes one pipeline run in a fresh context.
func (s *Service) Run(ctx context.Context, goal string, mode internal.OptimizationMode, sink events.Sink) (Result, error) {
	pc := NewContext()
	if err := s.Execute(ctx, pc, goal, mode, sink); err != nil {
		return Result{}, err
	}
	return pc.Result(), nil
}

// Execute runs every stage against pc. On failure the error is narrated once
// on the system stage and pc is reset to idle.
func (s *Service) Execute(ctx context.Context, pc *PipelineContext, goal string, mode internal.OptimizationMode, sink events.Sink) error {
	n := events.NewNarrator(sink, s.now)
	if err := s.execute(ctx, pc, goal, mode, n); err != nil {
		pc.Reset()
		n.Result(internal.StageSystem, "Error: %v", err)
		s.logger.Error("pipeline run failed", zap.String("goal", goal), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) execute(ctx context.Context, pc *PipelineContext, goal string, mode internal.OptimizationMode, n *events.Narrator) error {
	pc.Reset()
	if _, ok := internal.ParseMode(string(mode)); !ok {
		mode = internal.ModeBalanced
	}
	pc.TraceID = s.newID()
	pc.Goal = goal
	pc.Mode = mode
	pc.StartedAt = s.now()
	pc.Preferences = s.loadPreferences(ctx)

	pc.State = StatePlanning
	pc.Plan = s.planner.Plan(ctx, goal, n)

	pc.State = StateSourcing
	if err := s.source(ctx, pc, n); err != nil {
		return err
	}

	s.rework(pc, n)
	s.logger.Info("pipeline run complete",
		zap.String("trace_id", pc.TraceID),
		zap.String("mode", string(pc.Mode)),
		zap.Int("lines", len(pc.Cart.Lines)),
		zap.Float64("total", pc.Cart.TotalCost),
	)
	return nil
}

func (s *Service) loadPreferences(ctx context.Context) internal.Preferences {
	if s.prefs == nil {
		return internal.DefaultPreferences()
	}
	prefs, err := s.prefs.LoadPreferences(ctx)
	if err != nil {
		s.logger.Warn("falling back to default preferences", zap.Error(err))
		return internal.DefaultPreferences()
	}
	return prefs
}

func (s *Service) source(ctx context.Context, pc *PipelineContext, n *events.Narrator) error {
	start := s.now()
	categories := pc.Plan.CategoryNames()

	lister, hasLister := s.catalog.(SourceLister)
	if hasLister {
		pc.SourceOrder = lister.SourceIDs()
		n.Thinking(internal.StageSourcing, "Initiating parallel search across %d sources for %d categories", len(pc.SourceOrder), len(categories))
	} else {
		n.Thinking(internal.StageSourcing, "Initiating parallel search for %d categories", len(categories))
	}

	if s.catalog == nil {
		return fmt.Errorf("%w: no catalog configured", ErrCatalogUnavailable)
	}
	candidates, err := s.catalog.FetchCandidates(ctx, categories)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
	}
	pc.Candidates = candidates

	narrated := pc.SourceOrder
	if len(narrated) == 0 {
		narrated = pc.Sources()
	}
	total := 0
	for _, id := range narrated {
		name := util.TitleCase(id)
		if hasLister {
			name = lister.DisplayName(id)
		}
		count := len(candidates[id])
		total += count
		n.Result(internal.StageSourcing, "✓ %s: Found %d matching products", name, count)
	}
	if total == 0 {
		return fmt.Errorf("%w: no candidates for %v", ErrCatalogUnavailable, categories)
	}

	searched := len(pc.SourceOrder)
	if searched == 0 {
		searched = len(candidates)
	}
	pc.Metrics.CandidatesScanned = total
	pc.Metrics.SourcesAnalyzed = searched
	n.Result(internal.StageSourcing, "✓ Sourcing complete in %dms. Total: %s from %s",
		s.now().Sub(start).Milliseconds(), util.Plural(total, "product"), util.Plural(searched, "source"))
	return nil
}

// rework runs ranking, optimization and cart assembly over the plan and
// candidates already in pc.
func (s *Service) rework(pc *PipelineContext, n *events.Narrator) {
	pc.State = StateRanking
	pc.Ranked = ranking.Rank(pc.FlatCandidates(), pc.Plan, pc.Mode, pc.Preferences, n)

	pc.State = StateOptimizing
	unified := s.optimizer.Optimize(pc.Ranked, pc.Plan, n)

	pc.State = StateCartBuilding
	pc.Cart, pc.Savings = s.assembler.Build(unified, pc.FlatCandidates(), n)

	s.refreshMetrics(pc)
	pc.Checkout = internal.CheckoutProgress{State: internal.CheckoutIdle, CompletedSources: []string{}}
	pc.Confirmations = nil
	pc.State = StateComplete
}

func (s *Service) refreshMetrics(pc *PipelineContext) {
	m := pc.Metrics
	m.OptimizerLineCount = len(pc.Cart.Lines)
	m.Elapsed = s.now().Sub(pc.StartedAt)
	m.BudgetEfficiency = util.RoundPercent(pc.Cart.BudgetUtilizationPct)
	m.AverageQualityScore = 0
	m.DeliveryScore = 0

	if len(pc.Cart.Lines) > 0 {
		sum := 0.0
		maxDays := 0
		for _, l := range pc.Cart.Lines {
			sum += l.Item.Rating
			maxDays = max(maxDays, l.Item.DeliveryDays)
		}
		m.AverageQualityScore = util.RoundTo(sum/float64(len(pc.Cart.Lines)), 2)
		m.DeliveryScore = math.Max(0, float64(100-maxDays*10))
	}
	pc.Metrics = m
}

// Reoptimize re-ranks and re-optimizes a completed run under another mode,
// reusing its plan and candidates.
func (s *Service) Reoptimize(ctx context.Context, pc *PipelineContext, mode internal.OptimizationMode, sink events.Sink) error {
	if !pc.Ready() {
		return ErrNotReady
	}
	parsed, ok := internal.ParseMode(string(mode))
	if !ok {
		return fmt.Errorf("unknown optimization mode %q", mode)
	}
	n := events.NewNarrator(sink, s.now)
	n.Thinking(internal.StageRanking, "Re-optimizing for %s mode with %s", parsed, util.Plural(pc.Metrics.CandidatesScanned, "cached product"))

	pc.Mode = parsed
	pc.StartedAt = s.now()
	pc.Preferences = s.loadPreferences(ctx)
	s.rework(pc, n)
	return nil
}

// ReplaceLine swaps line idx of the run's cart for one of its alternates and
// refreshes savings and metrics.
func (s *Service) ReplaceLine(pc *PipelineContext, idx int, alternateID string, sink events.Sink) error {
	if !pc.Ready() {
		return ErrNotReady
	}
	updated, err := s.assembler.ReplaceLine(pc.Cart, idx, alternateID)
	if err != nil {
		return err
	}
	pc.Cart = updated
	pc.Savings = s.assembler.Savings(updated, pc.FlatCandidates())
	s.refreshMetrics(pc)

	line := updated.Lines[idx]
	events.NewNarrator(sink, s.now).Decision(internal.StageCart, "Swapped in %q × %d for %s (%s remaining)",
		line.Item.Name, line.Quantity, line.Item.Category, util.FormatMoney(updated.BudgetRemaining))
	return nil
}

// Checkout pulls the checkout state machine for cart to completion.
func (s *Service) Checkout(ctx context.Context, c internal.UnifiedCart, sink events.Sink, onProgress func(internal.CheckoutProgress)) ([]checkout.Confirmation, error) {
	if len(c.Lines) == 0 {
		return nil, ErrEmptyCart
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(c.DeliverySchedule) == 0 {
		c = s.assembler.Group(c)
	}
	confirmations, err := checkout.Run(c, events.NewNarrator(sink, s.now), onProgress)
	if err != nil {
		return confirmations, err
	}
	s.logger.Info("checkout complete", zap.Int("orders", len(confirmations)), zap.Float64("total", c.TotalCost))
	return confirmations, nil
}

// CheckoutRun checks out a completed run, recording progress in pc.
func (s *Service) CheckoutRun(ctx context.Context, pc *PipelineContext, sink events.Sink, onProgress func(internal.CheckoutProgress)) error {
	if !pc.Ready() {
		return ErrNotReady
	}
	pc.State = StateCheckingOut
	confirmations, err := s.Checkout(ctx, pc.Cart, sink, func(p internal.CheckoutProgress) {
		pc.Checkout = p
		if onProgress != nil {
			onProgress(p)
		}
	})
	pc.Confirmations = confirmations
	if err != nil {
		pc.State = StateComplete
		return err
	}
	pc.State = StateCheckedOut
	return nil
}
