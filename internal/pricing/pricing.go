// Package pricing resolves the effective unit price of a line item from the
// competing discount schemes. Resolve is a pure function: identical inputs
// always produce identical output, which matters because the caller re-runs
// it whenever the sale channel flips for an already-built cart.
package pricing

import (
	"context"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"posledger/internal/cache"
	"posledger/internal/domain"
)

var oneHundred = decimal.NewFromInt(100)

// Resolution reports the outcome for one product on one channel.
type Resolution struct {
	BasePrice      decimal.Decimal
	EffectivePrice decimal.Decimal
	Discount       decimal.Decimal
	Winner         *domain.DiscountScheme
}

// Resolve picks the base price for the channel, filters the schemes down to
// the ones in effect at asOf, and applies the single best discount. Product
// scope always beats category scope: category schemes are consulted only
// when no product scheme yields a positive discount.
func Resolve(product domain.Product, channel string, schemes []domain.DiscountScheme, asOf time.Time) Resolution {
	base := basePrice(product, channel)
	if base.Sign() <= 0 {
		return Resolution{BasePrice: decimal.Zero, EffectivePrice: decimal.Zero, Discount: decimal.Zero}
	}

	var productScoped, categoryScoped []domain.DiscountScheme
	for _, scheme := range schemes {
		if !inEffect(scheme, asOf) {
			continue
		}
		switch {
		case scheme.Scope == domain.SchemeScopeProduct && scheme.Target == product.Name:
			productScoped = append(productScoped, scheme)
		case scheme.Scope == domain.SchemeScopeCategory && scheme.Target == product.Category:
			categoryScoped = append(categoryScoped, scheme)
		}
	}

	discount, winner := bestDiscount(base, productScoped)
	if winner == nil {
		discount, winner = bestDiscount(base, categoryScoped)
	}

	effective := base.Sub(discount)
	if effective.Sign() < 0 {
		effective = decimal.Zero
	}
	return Resolution{BasePrice: base, EffectivePrice: effective, Discount: discount, Winner: winner}
}

func basePrice(product domain.Product, channel string) decimal.Decimal {
	if channel == domain.ChannelWholesale && product.WholesalePrice.Sign() > 0 {
		return product.WholesalePrice
	}
	return product.SalesPrice
}

func inEffect(scheme domain.DiscountScheme, asOf time.Time) bool {
	if !scheme.Active {
		return false
	}
	if scheme.StartDate != nil && asOf.Before(*scheme.StartDate) {
		return false
	}
	if scheme.EndDate != nil && asOf.After(*scheme.EndDate) {
		return false
	}
	return true
}

// bestDiscount returns the largest positive discount among the candidates,
// each clamped to [0, base]. A scheme that yields nothing positive never
// wins, so zero and negative values can never change a price.
func bestDiscount(base decimal.Decimal, candidates []domain.DiscountScheme) (decimal.Decimal, *domain.DiscountScheme) {
	best := decimal.Zero
	var winner *domain.DiscountScheme
	for i := range candidates {
		value := discountValue(base, candidates[i])
		if value.GreaterThan(best) {
			best = value
			winner = &candidates[i]
		}
	}
	return best, winner
}

func discountValue(base decimal.Decimal, scheme domain.DiscountScheme) decimal.Decimal {
	var value decimal.Decimal
	switch scheme.Kind {
	case domain.SchemeKindPercentage:
		value = base.Mul(scheme.Value).Div(oneHundred)
	case domain.SchemeKindFixedAmount:
		value = scheme.Value
	default:
		return decimal.Zero
	}
	if value.Sign() < 0 {
		return decimal.Zero
	}
	if value.GreaterThan(base) {
		return base
	}
	return value
}

// SchemeSource is the slice of the repository the engine needs.
type SchemeSource interface {
	ListDiscountSchemes(ctx context.Context) ([]domain.DiscountScheme, error)
}

const schemeCacheKey = "pos:discount-schemes"

// Engine loads the scheme list through a cache so per-line resolution on the
// commit path does not requery master data. Cache failures degrade to
// repository reads.
type Engine struct {
	source   SchemeSource
	cache    cache.SchemeCache
	cacheTTL time.Duration
}

func NewEngine(source SchemeSource, cacheStore cache.SchemeCache, cacheTTL time.Duration) *Engine {
	if cacheStore == nil {
		cacheStore = cache.NoopSchemeCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}

	return &Engine{
		source:   source,
		cache:    cacheStore,
		cacheTTL: cacheTTL,
	}
}

func (e *Engine) Schemes(ctx context.Context) ([]domain.DiscountScheme, error) {
	if cached, ok, err := e.cache.Get(ctx, schemeCacheKey); err == nil && ok {
		return cached, nil
	}

	schemes, err := e.source.ListDiscountSchemes(ctx)
	if err != nil {
		return nil, err
	}
	if err := e.cache.Set(ctx, schemeCacheKey, schemes, e.cacheTTL); err != nil {
		log.Printf("[pricing] WARN: scheme cache set failed: %v", err)
	}
	return schemes, nil
}

// ResolveFor runs Resolve with the engine's current scheme view.
func (e *Engine) ResolveFor(ctx context.Context, product domain.Product, channel string, asOf time.Time) (Resolution, error) {
	schemes, err := e.Schemes(ctx)
	if err != nil {
		return Resolution{}, err
	}
	return Resolve(product, channel, schemes, asOf), nil
}
