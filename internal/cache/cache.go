package cache

import (
	"context"
	"time"

	"pumpdesk/backend/internal/domain"
)

type RateCache interface {
	Get(ctx context.Context, key string) (*domain.RateSet, bool, error)
	Set(ctx context.Context, key string, value *domain.RateSet, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

type NoopRateCache struct{}

func (NoopRateCache) Get(_ context.Context, _ string) (*domain.RateSet, bool, error) {
	return nil, false, nil
}

func (NoopRateCache) Set(_ context.Context, _ string, _ *domain.RateSet, _ time.Duration) error {
	return nil
}

func (NoopRateCache) Invalidate(_ context.Context, _ string) error {
	return nil
}
