// Package pricefeed maintains the cached asset0-per-asset1 price ratio a pool
// normalizes deposits against. The ratio is refreshed from external feeds at
// most once per refresh interval, except for explicit refreshes.
package pricefeed

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lbp/pool-engine/internal/chain"
	"github.com/lbp/pool-engine/internal/ratio"
)

// DefaultInterval is how long a cached ratio is reused.
const DefaultInterval = 24 * time.Hour

var (
	ErrStalePrice = errors.New("pricefeed: stale price")
	ErrNoSources  = errors.New("pricefeed: no sources configured")
)

// Source produces a shifted price ratio.
type Source interface {
	Ratio(ctx context.Context) (decimal.Decimal, error)
}

// PairSource derives the ratio from two USD-denominated feeds:
// price0 * 2^31 / price1.
type PairSource struct {
	Feed0 chain.PriceFeed
	Feed1 chain.PriceFeed

	// MaxAge rejects answers older than this. Zero disables the check.
	MaxAge time.Duration
	Now    func() time.Time
}

func (s PairSource) Ratio(ctx context.Context) (decimal.Decimal, error) {
	p0, err := s.read(ctx, s.Feed0)
	if err != nil {
		return decimal.Zero, fmt.Errorf("feed0: %w", err)
	}
	p1, err := s.read(ctx, s.Feed1)
	if err != nil {
		return decimal.Zero, fmt.Errorf("feed1: %w", err)
	}
	return ratio.FromPrices(p0, p1)
}

func (s PairSource) read(ctx context.Context, feed chain.PriceFeed) (decimal.Decimal, error) {
	if feed == nil {
		return decimal.Zero, ErrNoSources
	}
	answer, updatedAt, err := feed.LatestAnswer(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	if s.MaxAge > 0 {
		now := time.Now
		if s.Now != nil {
			now = s.Now
		}
		if age := now().Sub(updatedAt); age > s.MaxAge {
			return decimal.Zero, fmt.Errorf("%w: answer is %s old", ErrStalePrice, age)
		}
	}
	return answer, nil
}

// MedianSource combines several sources and reports the median ratio.
// A failing source fails the whole read.
type MedianSource []Source

func (m MedianSource) Ratio(ctx context.Context) (decimal.Decimal, error) {
	if len(m) == 0 {
		return decimal.Zero, ErrNoSources
	}
	values := make([]decimal.Decimal, 0, len(m))
	for i, src := range m {
		r, err := src.Ratio(ctx)
		if err != nil {
			return decimal.Zero, fmt.Errorf("source %d: %w", i, err)
		}
		values = append(values, r)
	}
	sort.Slice(values, func(i, j int) bool { return values[i].LessThan(values[j]) })
	mid := len(values) / 2
	if len(values)%2 == 1 {
		return values[mid], nil
	}
	return ratio.MulDiv(values[mid-1].Add(values[mid]), decimal.NewFromInt(1), decimal.NewFromInt(2)), nil
}

// Normalizer caches a ratio between refreshes. It is not safe for
// concurrent use; a pool calls it under its own lock.
type Normalizer struct {
	source     Source
	interval   time.Duration
	maxRetries int
	backoff    time.Duration

	ratio      decimal.Decimal
	lastUpdate time.Time
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithInterval overrides DefaultInterval.
func WithInterval(d time.Duration) Option {
	return func(n *Normalizer) {
		if d > 0 {
			n.interval = d
		}
	}
}

// WithRetry retries failed source reads with exponential backoff.
func WithRetry(maxRetries int, backoff time.Duration) Option {
	return func(n *Normalizer) {
		n.maxRetries = maxRetries
		n.backoff = backoff
	}
}

// NewNormalizer creates a Normalizer with an empty cache.
func NewNormalizer(source Source, opts ...Option) *Normalizer {
	n := &Normalizer{
		source:   source,
		interval: DefaultInterval,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Current returns the cached ratio, refreshing it first when the cache is
// empty or at least one interval old. refreshed reports whether the source
// was queried.
func (n *Normalizer) Current(ctx context.Context, now time.Time) (r decimal.Decimal, refreshed bool, err error) {
	if !n.lastUpdate.IsZero() && now.Sub(n.lastUpdate) < n.interval {
		return n.ratio, false, nil
	}
	r, err = n.Refresh(ctx, now)
	if err != nil {
		return decimal.Zero, false, err
	}
	return r, true, nil
}

// Refresh queries the source unconditionally and caches the result.
func (n *Normalizer) Refresh(ctx context.Context, now time.Time) (decimal.Decimal, error) {
	if n.source == nil {
		return decimal.Zero, ErrNoSources
	}
	var r decimal.Decimal
	err := withRetry(ctx, n.maxRetries, n.backoff, func(ctx context.Context) error {
		var err error
		r, err = n.source.Ratio(ctx)
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}
	n.ratio = r
	if now.After(n.lastUpdate) {
		n.lastUpdate = now
	}
	return r, nil
}

// Ratio returns the cached ratio without refreshing. Zero until the first
// refresh.
func (n *Normalizer) Ratio() decimal.Decimal { return n.ratio }

// LastUpdate returns the time of the last successful refresh.
func (n *Normalizer) LastUpdate() time.Time { return n.lastUpdate }

// Reset restores the cache, used to roll back a failed call.
func (n *Normalizer) Reset(r decimal.Decimal, lastUpdate time.Time) {
	n.ratio = r
	n.lastUpdate = lastUpdate
}
