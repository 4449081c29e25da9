package main

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

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/x-stp/greenlink/internal/cache"
	"github.com/x-stp/greenlink/internal/client"
	"github.com/x-stp/greenlink/internal/config"
	"github.com/x-stp/greenlink/internal/core"
	"github.com/x-stp/greenlink/internal/greencheck"
	"github.com/x-stp/greenlink/internal/matcher"
	"github.com/x-stp/greenlink/internal/metrics"
	"github.com/x-stp/greenlink/internal/report"
	"github.com/x-stp/greenlink/internal/store"
	transporthttp "github.com/x-stp/greenlink/internal/transport/http"
)

// app holds what every classifying command needs.
type app struct {
	store      cache.Store
	closeStore func() error
	inspector  *core.Inspector
}

// newApp opens the configured store, restores the cache from it and starts the lookup
// pool. A store that cannot be read is logged and the command continues with an empty
// cache.
func newApp(ctx context.Context) (*app, error) {
	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := metrics.StartMetricsServer(cfg.MetricsAddr); err != nil {
		log.Printf("Failed to start metrics server: %v", err)
	}

	classifier := greencheck.NewClient(greencheck.Config{
		BaseURL:           cfg.APIURL,
		Timeout:           cfg.LookupTimeout,
		RequestsPerSecond: cfg.RatePerSecond,
	})
	c := cache.New(cache.WithExpiry(cfg.CacheExpiry))
	in := core.NewInspector(c, classifier, st, core.Config{Workers: cfg.Workers})

	if err := in.Restore(ctx); err != nil {
		log.Printf("Continuing with an empty cache: %v", err)
	}
	return &app{store: st, closeStore: closeStore, inspector: in}, nil
}

func (a *app) Close() {
	a.inspector.Close()
	if a.closeStore != nil {
		if err := a.closeStore(); err != nil {
			log.Printf("Failed to close store: %v", err)
		}
	}
}

func openStore(ctx context.Context, c config.Config) (cache.Store, func() error, error) {
	switch c.Store {
	case config.StoreMemory:
		return store.NewMemoryStore(), nil, nil
	case config.StoreRedis:
		rc, err := store.Connect(c.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		rs := store.NewRedisStore(rc)
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := rs.Ping(pingCtx); err != nil {
			log.Printf("Redis store unavailable, results will not be persisted: %v", err)
		}
		return rs, rs.Close, nil
	default:
		dir := c.CacheDir
		if dir == "" {
			dir = store.DefaultDir()
		}
		if cfg.Debug {
			log.Printf("Using file store at %s", filepath.Join(dir, cache.StorageKey+".json"))
		}
		return store.NewFileStore(dir), nil, nil
	}
}

func runExtract(w io.Writer, args []string) error {
	var (
		data []byte
		err  error
	)
	if len(args) == 0 || args[0] == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	matches := matcher.Extract(string(data))
	if jsonOutput {
		if matches == nil {
			matches = []matcher.Match{}
		}
		return writeJSON(w, matches)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "START\tEND\tKIND\tDOMAIN\tTEXT")
	for _, m := range matches {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\n", m.Start, m.End, m.Kind, m.Domain, m.Text)
	}
	return tw.Flush()
}

func runCheck(ctx context.Context, w io.Writer, domains []string) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.inspector.Classify(ctx, domains)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(w, results)
	}
	return writeResults(w, results)
}

func writeResults(w io.Writer, results map[string]greencheck.Result) error {
	names := make([]string, 0, len(results))
	for d := range results {
		names = append(names, d)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DOMAIN\tSTATUS\tHOSTED BY\tERROR")
	for _, d := range names {
		r := results[d]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d, r.Status(), r.HostedBy, r.Error)
	}
	return tw.Flush()
}

func runScan(ctx context.Context, w io.Writer, roots []string) error {
	if workspaceMode {
		log.Println("Enabling workspace mode for HTTP client")
		client.ConfigureWorkspaceMode()
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	started := time.Now()
	scanner := core.NewWorkspaceScanner(a.inspector, core.ScanConfig{
		Concurrency:  cfg.ScanConcurrency,
		MaxFileBytes: cfg.MaxFileBytes,
	})
	res, err := scanner.Scan(ctx, roots...)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if showStats {
		s := res.Stats
		fmt.Fprintf(os.Stderr, "Scanned %d files (%d skipped, %d failed) in %s: %d matches, %d domains, %d green, %d not verified, %d errored\n",
			s.FilesScanned, s.FilesSkipped, s.FilesFailed, time.Since(started).Round(time.Millisecond),
			s.Matches, s.Domains, s.Green, s.NotVerified, s.Errored)
	}

	if outputPath != "" {
		return writeReport(res, roots[0])
	}
	if jsonOutput {
		return writeJSON(w, res)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tOFFSET\tDOMAIN\tSTATUS\tHOSTED BY\tERROR")
	for _, f := range res.Files {
		for _, fd := range f.Findings {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n", f.Path, fd.Start, fd.Domain, fd.Status, fd.HostedBy, fd.Error)
		}
	}
	return tw.Flush()
}

// writeReport writes res as CSV. A directory output gets a name derived from root.
func writeReport(res core.ScanResult, root string) error {
	path := outputPath
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, report.DefaultFilename(root, false))
	}
	rw, err := report.Create(path, report.Options{Compress: compress})
	if err != nil {
		return err
	}
	if err := rw.WriteScan(res); err != nil {
		rw.Abort()
		return err
	}
	if err := rw.Close(); err != nil {
		return err
	}
	log.Printf("Wrote %d findings to %s", rw.Rows(), rw.Path())
	return nil
}

func runCacheStats(ctx context.Context, w io.Writer) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	s := a.inspector.Cache().Stats()
	if jsonOutput {
		return writeJSON(w, s)
	}
	fmt.Fprintf(w, "Cached domains: %d\n", s.Total)
	fmt.Fprintf(w, "    \\- Green:         %d\n", s.Green)
	fmt.Fprintf(w, "    \\- Not verified:  %d\n", s.NotVerified)
	fmt.Fprintf(w, "    \\- Errored:       %d\n", s.Errored)
	fmt.Fprintf(w, "Entries expire after %s\n", a.inspector.Cache().Expiry())
	return nil
}

func runCacheList(ctx context.Context, w io.Writer) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	c := a.inspector.Cache()
	snap := c.Snapshot()
	if jsonOutput {
		return writeJSON(w, snap)
	}
	now := c.Now()
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DOMAIN\tSTATUS\tHOSTED BY\tAGE\tERROR")
	for _, d := range c.Domains() {
		e, ok := snap[d]
		if !ok {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d, e.Status(), e.HostedBy, e.Age(now).Round(time.Second), e.Error)
	}
	return tw.Flush()
}

func runCacheClear(ctx context.Context, w io.Writer) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	n := a.inspector.Cache().Len()
	if err := a.inspector.ClearCache(ctx); err != nil {
		return err
	}
	fmt.Fprintf(w, "Cleared %d cached domains.\n", n)
	return nil
}

func runServe(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	router := transporthttp.NewRouter(transporthttp.NewHandler(a.inspector, core.NewTracker()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return transporthttp.RunHTTPServer(gctx, cfg.ListenAddr, router)
	})
	g.Go(func() error {
		<-gctx.Done()
		// One more write on the way out in case a batch persist failed.
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.inspector.Cache().Persist(flushCtx, a.store); err != nil {
			log.Printf("serve: final cache flush failed: %v", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("serve: stopped with error: %v", err)
		return err
	}
	log.Printf("serve: stopped gracefully")
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
