package chain

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// FeedRegistry names the static feeds a daemon exposes to pool creation.
type FeedRegistry struct {
	mu    sync.RWMutex
	feeds map[string]*StaticFeed
	now   func() time.Time
}

// NewFeedRegistry creates an empty registry; nil now means time.Now.
func NewFeedRegistry(now func() time.Time) *FeedRegistry {
	if now == nil {
		now = time.Now
	}
	return &FeedRegistry{feeds: make(map[string]*StaticFeed), now: now}
}

// Feed returns the feed registered under name.
func (r *FeedRegistry) Feed(name string) (PriceFeed, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.feeds[name]
	return f, ok
}

// Set updates the answer of name, registering the feed on first use.
func (r *FeedRegistry) Set(name string, answer decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if f, ok := r.feeds[name]; ok {
		f.UpdateAnswer(answer)
		return
	}
	r.feeds[name] = NewStaticFeed(answer, r.now)
}
