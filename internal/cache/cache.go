package cache

import (
	"context"
	"time"

	"posledger/internal/domain"
)

// SchemeCache holds the discount scheme list so the commit path does not hit
// the database for master data on every line. A miss or cache error always
// falls through to the repository; the cache is never authoritative.
type SchemeCache interface {
	Get(ctx context.Context, key string) ([]domain.DiscountScheme, bool, error)
	Set(ctx context.Context, key string, schemes []domain.DiscountScheme, ttl time.Duration) error
}

type NoopSchemeCache struct{}

func (NoopSchemeCache) Get(_ context.Context, _ string) ([]domain.DiscountScheme, bool, error) {
	return nil, false, nil
}

func (NoopSchemeCache) Set(_ context.Context, _ string, _ []domain.DiscountScheme, _ time.Duration) error {
	return nil
}
