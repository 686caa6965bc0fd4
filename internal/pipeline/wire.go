package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"cartpilot/internal/cart"
	"cartpilot/internal/catalog"
	"cartpilot/internal/config"
	"cartpilot/internal/optimizer"
	"cartpilot/internal/planner"
	"cartpilot/internal/storage"
)

// FromConfig wires a Service over the configured catalog, with preferences
// stored in db. The LLM interpreter is only used when LLM_API_URL is set.
func FromConfig(ctx context.Context, cfg config.Config, db *storage.DB, logger *zap.Logger) (*Service, *catalog.Unified, error) {
	unified, err := catalog.FromConfig(ctx, cfg, db, logger)
	if err != nil {
		return nil, nil, err
	}

	plannerOpts := []planner.Option{planner.WithLogger(logger)}
	if cfg.LLMAPIURL != "" {
		timeout := time.Duration(cfg.LLMTimeoutMs) * time.Millisecond
		plannerOpts = append(plannerOpts, planner.WithInterpreter(
			planner.NewLLMInterpreter(cfg.LLMAPIURL, cfg.LLMAPIKey, cfg.LLMModel, timeout, nil)))
	}

	svc := NewService(unified,
		WithPreferences(db),
		WithPlanner(planner.New(plannerOpts...)),
		WithOptimizer(optimizer.New(cfg.OptionalBudgetFloor)),
		WithAssembler(cart.NewAssembler(cfg.SingleSourceMarkup, nil)),
		WithLogger(logger),
	)
	return svc, unified, nil
}
