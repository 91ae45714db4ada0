package reporting

import (
	"context"
	"fmt"
	"time"

	"stoqplus/backend/internal/cache"
)

// Engine memoizes built reports per store for a short TTL.
type Engine struct {
	cache    cache.ReportCache
	cacheTTL time.Duration
}

func NewEngine(cacheStore cache.ReportCache, cacheTTL time.Duration) *Engine {
	if cacheStore == nil {
		cacheStore = cache.Noop{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	return &Engine{cache: cacheStore, cacheTTL: cacheTTL}
}

// Key names a cached report of a store.
func Key(storeID string, report string, period string) string {
	return fmt.Sprintf("report:%s:%s:%s", storeID, report, period)
}

// Load returns the cached report under key or builds and caches it. Cache
// failures fall through to build; they never fail the request.
func Load[T any](ctx context.Context, e *Engine, key string, build func(context.Context) (T, error)) (T, error) {
	var cached T
	if ok, err := e.cache.Get(ctx, key, &cached); err == nil && ok {
		return cached, nil
	}

	report, err := build(ctx)
	if err != nil {
		return report, err
	}
	_ = e.cache.Set(ctx, key, report, e.cacheTTL)
	return report, nil
}

// Invalidate drops every cached report of the store.
func (e *Engine) Invalidate(ctx context.Context, storeID string) error {
	keys := []string{Key(storeID, "advanced", "")}
	for _, p := range []string{Period7Days, PeriodMonth, PeriodYear} {
		keys = append(keys, Key(storeID, "dashboard", p))
	}
	for _, p := range []string{Period7Days, Period30Days, PeriodYear} {
		keys = append(keys, Key(storeID, "financial", p))
	}
	return e.cache.Delete(ctx, keys...)
}
