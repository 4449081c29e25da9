package core

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
Package core composes the matcher, the classification cache and the classification client
into batch inspection, and drives workspace scans on top of it.

An Inspector owns a lookup Scheduler. Each Classify call partitions its domains into
cache hits and misses, fans the misses out over the pool, waits for all of them, writes
each result into the cache as it arrives and persists the cache once per batch.
*/

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/x-stp/greenlink/internal/cache"
	"github.com/x-stp/greenlink/internal/greencheck"
	"github.com/x-stp/greenlink/internal/matcher"
	"github.com/x-stp/greenlink/internal/metrics"
)

// Classifier looks up a single domain. Failures are reported inside the Result.
type Classifier interface {
	Lookup(ctx context.Context, domain string) greencheck.Result
}

// Config tunes an Inspector.
type Config struct {
	// Workers is the lookup pool size. Zero selects DefaultWorkers.
	Workers int
}

// Inspector classifies domains through a cache.
type Inspector struct {
	cache      *cache.Cache
	classifier Classifier
	store      cache.Store
	sched      *Scheduler
	persistMu  sync.Mutex
}

// NewInspector starts the lookup pool. store may be nil for a cache without durability.
// Call Close to stop the pool.
func NewInspector(c *cache.Cache, classifier Classifier, store cache.Store, cfg Config) *Inspector {
	if c == nil {
		c = cache.New()
	}
	return &Inspector{
		cache:      c,
		classifier: classifier,
		store:      store,
		sched:      NewScheduler(context.Background(), cfg.Workers),
	}
}

// Cache returns the inspector's cache.
func (in *Inspector) Cache() *cache.Cache {
	return in.cache
}

// Restore hydrates the cache from the durable store.
func (in *Inspector) Restore(ctx context.Context) error {
	return in.cache.Restore(ctx, in.store)
}

// ClearCache empties the cache and its durable copy.
func (in *Inspector) ClearCache(ctx context.Context) error {
	in.persistMu.Lock()
	defer in.persistMu.Unlock()
	return in.cache.Reset(ctx, in.store)
}

// Close stops the lookup pool.
func (in *Inspector) Close() {
	in.sched.Shutdown()
}

// Classify returns a result for every distinct normalized domain in domains.
// Fresh cache entries are served without a lookup. Per-domain failures are results,
// never errors; the only error is ErrNoDomains for empty input.
func (in *Inspector) Classify(ctx context.Context, domains []string) (map[string]greencheck.Result, error) {
	unique := uniqueNormalized(domains)
	if len(unique) == 0 {
		return nil, ErrNoDomains
	}

	results := make(map[string]greencheck.Result, len(unique))
	pending := make([]string, 0, len(unique))
	for _, d := range unique {
		if e, ok := in.cache.Get(d); ok {
			results[d] = e.Result
			continue
		}
		pending = append(pending, d)
	}
	if len(pending) == 0 {
		return results, nil
	}
	if metrics.IsMetricsEnabled() {
		metrics.GetMetrics().BatchLookups.Observe(float64(len(pending)))
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		written int
	)
	record := func(d string, r greencheck.Result, cacheIt bool) {
		if cacheIt {
			in.cache.Set(d, r, in.cache.Now())
		}
		mu.Lock()
		results[d] = r
		if cacheIt {
			written++
		}
		mu.Unlock()
	}

	for _, d := range pending {
		wg.Add(1)
		err := in.submit(ctx, d, func(lctx context.Context, domain string) {
			defer wg.Done()
			r := in.classifier.Lookup(lctx, domain)
			// Results produced because the caller went away are not worth remembering.
			record(domain, r, lctx.Err() == nil || r.Known())
		})
		if err != nil {
			wg.Done()
			record(d, greencheck.Failed(err.Error()), false)
		}
	}
	wg.Wait()

	// A panicking lookup leaves no result behind.
	for _, d := range pending {
		if _, ok := results[d]; !ok {
			results[d] = greencheck.Failed("lookup aborted")
		}
	}

	if written > 0 {
		in.persist(ctx)
	}
	return results, nil
}

// submit queues a lookup, backing off while the target worker's queue is full.
func (in *Inspector) submit(ctx context.Context, domain string, fn LookupFunc) error {
	delay := SubmitRetryBaseDelay
	for {
		err := in.sched.SubmitWork(ctx, domain, fn)
		if err == nil || !IsRetryable(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		if delay *= 2; delay > SubmitRetryMaxDelay {
			delay = SubmitRetryMaxDelay
		}
	}
}

func (in *Inspector) persist(ctx context.Context) {
	if in.store == nil {
		return
	}
	in.persistMu.Lock()
	defer in.persistMu.Unlock()
	// Persist even if the caller's context ended; the results are already cached.
	if err := in.cache.Persist(context.WithoutCancel(ctx), in.store); err != nil {
		log.Printf("inspector: continuing without durable cache: %v", err)
	}
}

// Finding pairs a match with the classification of its domain.
type Finding struct {
	matcher.Match
	greencheck.Result
	Status string `json:"status"`
}

// Inspection is the outcome of inspecting one text.
type Inspection struct {
	Matches []matcher.Match              `json:"matches"`
	Results map[string]greencheck.Result `json:"results"`
}

// Findings returns one Finding per match, in match order.
func (i Inspection) Findings() []Finding {
	out := make([]Finding, 0, len(i.Matches))
	for _, m := range i.Matches {
		r, ok := i.Results[m.Domain]
		if !ok {
			r = greencheck.Failed("not classified")
		}
		out = append(out, Finding{Match: m, Result: r, Status: r.Status()})
	}
	return out
}

// Inspect extracts the domains in text and classifies them. Text without domains
// yields an empty Inspection, not an error.
func (in *Inspector) Inspect(ctx context.Context, text string) (Inspection, error) {
	matches := matcher.Extract(text)
	insp := Inspection{
		Matches: matches,
		Results: map[string]greencheck.Result{},
	}
	if insp.Matches == nil {
		insp.Matches = []matcher.Match{}
	}
	domains := matcher.Domains(matches)
	if len(domains) == 0 {
		return insp, nil
	}
	results, err := in.Classify(ctx, domains)
	if err != nil {
		return insp, err
	}
	insp.Results = results
	return insp, nil
}

func uniqueNormalized(domains []string) []string {
	seen := make(map[string]struct{}, len(domains))
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		n := matcher.Normalize(d)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
