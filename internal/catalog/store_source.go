package catalog

import (
	"context"

	"cartpilot/internal"
	"cartpilot/internal/storage"
)

// StoreSource serves one retailer from the synced sqlite product cache.
type StoreSource struct {
	db *storage.DB
	id string
}

func NewStoreSource(db *storage.DB, id string) *StoreSource {
	return &StoreSource{db: db, id: id}
}

func (s *StoreSource) ID() string { return s.id }

func (s *StoreSource) Search(ctx context.Context, categories []string, maxResults int) ([]internal.CandidateItem, error) {
	items, err := s.db.ListProducts(ctx, s.id, categories)
	if err != nil {
		return nil, err
	}
	return limitPerCategory(inStock(items), maxResults), nil
}
