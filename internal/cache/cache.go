package cache

import (
	"context"
	"time"

	"battrack/backend/internal/domain"
)

type SyncReportCache interface {
	Get(ctx context.Context, key string) (*domain.SyncReport, bool, error)
	Set(ctx context.Context, key string, value *domain.SyncReport, ttl time.Duration) error
}

type NoopSyncReportCache struct{}

func (NoopSyncReportCache) Get(_ context.Context, _ string) (*domain.SyncReport, bool, error) {
	return nil, false, nil
}

func (NoopSyncReportCache) Set(_ context.Context, _ string, _ *domain.SyncReport, _ time.Duration) error {
	return nil
}
