package listener

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"cartpilot/internal/config"
	"cartpilot/internal/connectors"
	gmailconnector "cartpilot/internal/connectors/gmail"
	imapconnector "cartpilot/internal/connectors/imap"
	"cartpilot/internal/observability"
)

type Fetcher interface {
	FetchAndStore(ctx context.Context, label string, max int) (connectors.FetchResult, error)
}

type Processor interface {
	ProcessPending(ctx context.Context, limit int, provider string) (processed, skipped int, err error)
}

// Service polls the mailbox and turns new goal requests into planned carts.
type Service struct {
	cfg       config.Config
	provider  string
	fetcher   Fetcher
	processor Processor
	logger    *zap.Logger
}

type CycleResult struct {
	Fetched   int
	Stored    int
	Processed int
	Skipped   int
}

func NewService(cfg config.Config, fetcher Fetcher, processor Processor, logger *zap.Logger) *Service {
	return &Service{
		cfg:       cfg,
		provider:  Provider(cfg),
		fetcher:   fetcher,
		processor: processor,
		logger:    observability.OrNop(logger),
	}
}

func Provider(cfg config.Config) string {
	return strings.ToLower(strings.TrimSpace(cfg.MailListenerProvider))
}

// NewConnector builds the mail connector named by MAIL_LISTENER_PROVIDER.
func NewConnector(ctx context.Context, cfg config.Config) (connectors.MailConnector, error) {
	switch p := Provider(cfg); p {
	case "gmail":
		return gmailconnector.NewConnector(ctx, cfg)
	case "imap":
		return imapconnector.NewConnector(cfg)
	default:
		return nil, fmt.Errorf("unsupported listener provider: %s", p)
	}
}

// Run cycles until ctx is canceled. Cycle errors are logged, not returned.
func (s *Service) Run(ctx context.Context) error {
	interval := time.Duration(max(1, s.cfg.MailListenerIntervalSec)) * time.Second
	s.logger.Info("mail listener started", zap.String("provider", s.provider), zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("listener cycle failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			s.logger.Info("mail listener stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Service) RunOnce(ctx context.Context) (CycleResult, error) {
	fetched, err := s.fetcher.FetchAndStore(ctx, s.cfg.MailListenerLabel, s.cfg.MailListenerFetchMax)
	if err != nil {
		return CycleResult{}, fmt.Errorf("fetch: %w", err)
	}
	res := CycleResult{Fetched: fetched.Fetched, Stored: fetched.Stored}

	res.Processed, res.Skipped, err = s.processor.ProcessPending(ctx, s.cfg.MailListenerProcessBatch, s.provider)
	if err != nil {
		return res, fmt.Errorf("process: %w", err)
	}

	s.logger.Info("listener cycle done",
		zap.String("provider", s.provider),
		zap.Int("fetched", res.Fetched),
		zap.Int("stored", res.Stored),
		zap.Int("processed", res.Processed),
		zap.Int("skipped", res.Skipped),
	)
	return res, nil
}
