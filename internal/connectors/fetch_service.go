package connectors

import (
	"context"

	"go.uber.org/zap"

	"cartpilot/internal/observability"
	"cartpilot/internal/storage"
)

type FetchService struct {
	connector MailConnector
	store     *MailStoreService
	logger    *zap.Logger
}

type FetchResult struct {
	Fetched int
	Stored  int
}

func NewFetchService(db *storage.DB, rawMailDir string, connector MailConnector, logger *zap.Logger) *FetchService {
	return &FetchService{
		connector: connector,
		store:     NewMailStoreService(db, rawMailDir),
		logger:    observability.OrNop(logger),
	}
}

func (s *FetchService) FetchAndStore(ctx context.Context, label string, max int) (FetchResult, error) {
	messages, err := s.connector.FetchInbox(ctx, label, max)
	if err != nil {
		return FetchResult{}, err
	}

	stored := 0
	for _, msg := range messages {
		if len(msg.Raw) == 0 {
			s.logger.Warn("skipping empty message", zap.String("provider", msg.Provider), zap.String("message_id", msg.MessageID))
			continue
		}
		row, err := s.store.Store(ctx, msg)
		if err != nil {
			return FetchResult{Fetched: len(messages), Stored: stored}, err
		}
		s.logger.Debug("stored goal request", zap.Int("request_id", row.ID), zap.String("subject", row.Subject))
		stored++
	}

	return FetchResult{Fetched: len(messages), Stored: stored}, nil
}
