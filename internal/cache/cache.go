package cache

/*
greenlink — finds URLs and domains in source code and checks them for green hosting
Copyright (C) 2025  Pepijn van der Stap <rxtls@vanderstap.info>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

/*
Package cache holds classification results keyed by normalized domain.

Entries carry the instant they were created and expire lazily: an entry older than the
expiry window is evicted the next time it is read, there is no background sweep. The whole
cache round-trips through a single JSON blob so it can be hydrated from and persisted to a
durable Store.
*/

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/x-stp/greenlink/internal/greencheck"
	"github.com/x-stp/greenlink/internal/metrics"
)

// ExpiryWindow is the default maximum age of an entry.
const ExpiryWindow = 7 * 24 * time.Hour

// Entry is a classification result plus the instant it was recorded.
type Entry struct {
	greencheck.Result
	Timestamp time.Time `json:"timestamp"`
}

// Age reports how old the entry is at now.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.Timestamp)
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now, mostly for tests that need to move time forward.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithExpiry overrides ExpiryWindow. Non-positive values are ignored.
func WithExpiry(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.expiry = d
		}
	}
}

// Cache maps a domain to its most recent classification.
// It is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[string]Entry
	now     func() time.Time
	expiry  time.Duration
}

// New returns an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]Entry),
		now:     time.Now,
		expiry:  ExpiryWindow,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Now returns the cache's notion of the current time.
func (c *Cache) Now() time.Time {
	return c.now()
}

// Expiry returns the configured expiry window.
func (c *Cache) Expiry() time.Duration {
	return c.expiry
}

// Get returns the entry for domain if present and younger than the expiry window.
// An expired entry is removed as a side effect.
func (c *Cache) Get(domain string) (Entry, bool) {
	m := metrics.GetMetrics()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[domain]
	if !ok {
		m.CacheRequests.WithLabelValues("miss").Inc()
		return Entry{}, false
	}
	if c.expired(e, c.now()) {
		delete(c.entries, domain)
		m.CacheRequests.WithLabelValues("expired").Inc()
		m.CacheEvictions.WithLabelValues("expired").Inc()
		m.CacheEntries.Set(float64(len(c.entries)))
		return Entry{}, false
	}
	m.CacheRequests.WithLabelValues("hit").Inc()
	return e, true
}

// Set inserts or overwrites the entry for domain.
func (c *Cache) Set(domain string, result greencheck.Result, ts time.Time) {
	c.mu.Lock()
	c.entries[domain] = Entry{Result: result, Timestamp: ts}
	n := len(c.entries)
	c.mu.Unlock()

	metrics.GetMetrics().CacheEntries.Set(float64(n))
}

// Clear removes every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	n := len(c.entries)
	c.entries = make(map[string]Entry)
	c.mu.Unlock()

	m := metrics.GetMetrics()
	m.CacheEvictions.WithLabelValues("cleared").Add(float64(n))
	m.CacheEntries.Set(0)
}

// Len returns the number of stored entries, expired ones included until they are read.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Snapshot copies the entries that are still fresh. It does not evict.
func (c *Cache) Snapshot() map[string]Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	out := make(map[string]Entry, len(c.entries))
	for d, e := range c.entries {
		if !c.expired(e, now) {
			out[d] = e
		}
	}
	return out
}

// Domains returns the fresh domains in lexical order.
func (c *Cache) Domains() []string {
	snap := c.Snapshot()
	out := make([]string, 0, len(snap))
	for d := range snap {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Stats summarises the fresh entries.
type Stats struct {
	Total       int `json:"total"`
	Green       int `json:"green"`
	NotVerified int `json:"notVerified"`
	Errored     int `json:"errored"`
}

// Stats counts fresh entries by status.
func (c *Cache) Stats() Stats {
	var s Stats
	for _, e := range c.Snapshot() {
		s.Total++
		switch e.Status() {
		case greencheck.StatusGreen:
			s.Green++
		case greencheck.StatusError:
			s.Errored++
		default:
			s.NotVerified++
		}
	}
	return s
}

func (c *Cache) expired(e Entry, now time.Time) bool {
	return now.Sub(e.Timestamp) >= c.expiry
}

// wireEntry is the persisted shape of an entry. Timestamps are Unix milliseconds.
type wireEntry struct {
	Green     *bool  `json:"green"`
	HostedBy  string `json:"hostedBy,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Serialize encodes every stored entry as a JSON object keyed by domain.
func (c *Cache) Serialize() ([]byte, error) {
	c.mu.Lock()
	wire := make(map[string]wireEntry, len(c.entries))
	for d, e := range c.entries {
		wire[d] = wireEntry{
			Green:     e.Green,
			HostedBy:  e.HostedBy,
			Error:     e.Error,
			Timestamp: e.Timestamp.UnixMilli(),
		}
	}
	c.mu.Unlock()

	data, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize cache: %w", err)
	}
	return data, nil
}

// Hydrate loads entries from a blob produced by Serialize, skipping entries already
// expired at hydration time. Loaded entries overwrite existing ones. A malformed blob
// leaves the cache untouched. An empty blob is not an error.
func (c *Cache) Hydrate(data []byte) (loaded, dropped int, err error) {
	if len(data) == 0 {
		return 0, 0, nil
	}
	var wire map[string]wireEntry
	if err := json.Unmarshal(data, &wire); err != nil {
		return 0, 0, fmt.Errorf("failed to decode cache snapshot: %w", err)
	}

	c.mu.Lock()
	now := c.now()
	for d, w := range wire {
		if d == "" {
			dropped++
			continue
		}
		e := Entry{
			Result: greencheck.Result{
				Green:    w.Green,
				HostedBy: w.HostedBy,
				Error:    w.Error,
			},
			Timestamp: time.UnixMilli(w.Timestamp),
		}
		if c.expired(e, now) {
			dropped++
			continue
		}
		c.entries[d] = e
		loaded++
	}
	n := len(c.entries)
	c.mu.Unlock()

	m := metrics.GetMetrics()
	m.CacheEvictions.WithLabelValues("hydrate_expired").Add(float64(dropped))
	m.CacheEntries.Set(float64(n))
	return loaded, dropped, nil
}

// Merge folds a blob produced by Serialize into the cache. A stored entry is taken when
// the cache has no entry for its domain or holds an older one; expired stored entries are
// skipped. A malformed blob leaves the cache untouched.
func (c *Cache) Merge(data []byte) (merged int, err error) {
	if len(data) == 0 {
		return 0, nil
	}
	var wire map[string]wireEntry
	if err := json.Unmarshal(data, &wire); err != nil {
		return 0, fmt.Errorf("failed to decode cache snapshot: %w", err)
	}

	c.mu.Lock()
	now := c.now()
	for d, w := range wire {
		if d == "" {
			continue
		}
		e := Entry{
			Result: greencheck.Result{
				Green:    w.Green,
				HostedBy: w.HostedBy,
				Error:    w.Error,
			},
			Timestamp: time.UnixMilli(w.Timestamp),
		}
		if c.expired(e, now) {
			continue
		}
		if cur, ok := c.entries[d]; ok && !cur.Timestamp.Before(e.Timestamp) {
			continue
		}
		c.entries[d] = e
		merged++
	}
	n := len(c.entries)
	c.mu.Unlock()

	metrics.GetMetrics().CacheEntries.Set(float64(n))
	return merged, nil
}
