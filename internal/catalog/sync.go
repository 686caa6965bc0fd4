package catalog

import (
	"context"
	"time"

	"go.uber.org/zap"

	"cartpilot/internal"
	"cartpilot/internal/config"
	"cartpilot/internal/observability"
	"cartpilot/internal/storage"
)

const lastSyncKey = "catalog.last_sync"

// SyncService mirrors the retailer API product feed into the sqlite cache.
type SyncService struct {
	db     *storage.DB
	client *Client
	logger *zap.Logger
	now    func() time.Time
}

func NewSyncService(db *storage.DB, cfg config.Config, logger *zap.Logger) *SyncService {
	return &SyncService{db: db, client: NewClient(cfg), logger: observability.OrNop(logger), now: time.Now}
}

// Sync pulls products changed since the last sync, or everything when full
// is set or no sync has happened yet.
func (s *SyncService) Sync(ctx context.Context, full bool) (int, error) {
	var since string
	if !full {
		last, err := s.db.GetMetadata(ctx, lastSyncKey)
		if err != nil {
			return 0, err
		}
		if last != nil {
			since = *last
		}
	}
	startedAt := s.now().UTC().Format(time.RFC3339)

	products, err := s.client.ScrollAll(ctx, since)
	if err != nil {
		return 0, err
	}

	keep := products[:0]
	skipped := 0
	for _, p := range products {
		if p.SourceID == "" || p.Category == "" {
			skipped++
			continue
		}
		keep = append(keep, p)
	}
	if skipped > 0 {
		s.logger.Warn("skipped products without source or category", zap.Int("count", skipped))
	}

	if len(keep) > 0 {
		if err := s.db.UpsertProducts(ctx, keep); err != nil {
			return 0, err
		}
	}
	if err := s.db.SetMetadata(ctx, lastSyncKey, startedAt); err != nil {
		return 0, err
	}
	s.logger.Info("catalog synced", zap.Int("products", len(keep)), zap.Bool("full", full || since == ""), zap.String("since", since))
	return len(keep), nil
}

func (s *SyncService) Cached(ctx context.Context, categories []string) ([]internal.CandidateItem, error) {
	return s.db.ListProducts(ctx, "", categories)
}
