package usage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/zamadev/sandbox/internal/metrics"
	"github.com/zamadev/sandbox/internal/model"
)

// Service answers usage queries for one user at a time over a cached dataset.
type Service struct {
	cache   *Cache
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewService wires the usage service. rec may be nil.
func NewService(cache *Cache, logger *slog.Logger, rec metrics.Recorder) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Service{cache: cache, logger: logger, metrics: rec}
}

// Load returns the whole dataset. force bypasses the cache.
func (s *Service) Load(ctx context.Context, force bool) ([]model.KeyUsage, error) {
	data, hit, err := s.cache.GetOrLoad(ctx, force)
	s.metrics.RecordUsageLoad(s.cache.Source(), hit)
	if err != nil {
		s.logger.Error("failed to load usage data", "source", s.cache.Source(), "error", err)
		return nil, fmt.Errorf("load usage data: %w", err)
	}
	if !hit {
		s.logger.Debug("usage data loaded", "source", s.cache.Source(), "keys", len(data))
	}
	return data, nil
}

// UsageByKey returns the usage of one key of userID, or nil when the dataset
// has none.
func (s *Service) UsageByKey(ctx context.Context, keyID, userID string) (*model.KeyUsage, error) {
	data, err := s.Load(ctx, false)
	if err != nil {
		return nil, err
	}
	return FindByKey(data, keyID, userID), nil
}

// UsageByUser returns every key usage of userID.
func (s *Service) UsageByUser(ctx context.Context, userID string) ([]model.KeyUsage, error) {
	data, err := s.Load(ctx, false)
	if err != nil {
		return nil, err
	}
	return FilterByUser(data, userID), nil
}

// DailyUsage returns the user's usage aggregated across keys by day, newest
// first.
func (s *Service) DailyUsage(ctx context.Context, userID string) ([]model.DailyUsage, error) {
	keys, err := s.UsageByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return AggregateDaily(keys), nil
}

// Events returns every event of the user, newest first.
func (s *Service) Events(ctx context.Context, userID string) ([]model.UsageEvent, error) {
	keys, err := s.UsageByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return FlattenEvents(keys), nil
}

// ClearCache forces the next query to reload the dataset.
func (s *Service) ClearCache() {
	s.cache.Invalidate()
	s.logger.Info("usage cache cleared")
}
