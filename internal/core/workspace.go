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

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/x-stp/greenlink/internal/greencheck"
	"github.com/x-stp/greenlink/internal/matcher"
	"github.com/x-stp/greenlink/internal/metrics"
)

var skippedDirs = map[string]struct{}{
	".git":         {},
	".hg":          {},
	".svn":         {},
	"node_modules": {},
	"vendor":       {},
	"dist":         {},
	"build":        {},
	"out":          {},
	".vscode-test": {},
}

// ScanConfig tunes a WorkspaceScanner.
type ScanConfig struct {
	// Concurrency bounds parallel file reads. Zero selects DefaultScanConcurrency.
	Concurrency int
	// MaxFileBytes skips larger files. Zero selects DefaultMaxFileBytes.
	MaxFileBytes int64
}

// FileFindings are the classified matches of one file.
type FileFindings struct {
	Path     string    `json:"path"`
	Findings []Finding `json:"findings"`
}

// ScanStats summarises a workspace scan.
type ScanStats struct {
	FilesScanned int `json:"filesScanned"`
	FilesSkipped int `json:"filesSkipped"`
	FilesFailed  int `json:"filesFailed"`
	Matches      int `json:"matches"`
	Domains      int `json:"domains"`
	Green        int `json:"green"`
	NotVerified  int `json:"notVerified"`
	Errored      int `json:"errored"`
}

// ScanResult is the outcome of a workspace scan. Files are sorted by path and only
// files with at least one match are listed.
type ScanResult struct {
	Files []FileFindings `json:"files"`
	Stats ScanStats      `json:"stats"`
}

// WorkspaceScanner extracts domains from every text file under a set of roots and
// classifies them in a single batch.
type WorkspaceScanner struct {
	inspector    *Inspector
	concurrency  int
	maxFileBytes int64
}

// NewWorkspaceScanner returns a scanner classifying through inspector.
func NewWorkspaceScanner(inspector *Inspector, cfg ScanConfig) *WorkspaceScanner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultScanConcurrency
	}
	if cfg.MaxFileBytes <= 0 {
		cfg.MaxFileBytes = DefaultMaxFileBytes
	}
	return &WorkspaceScanner{
		inspector:    inspector,
		concurrency:  cfg.Concurrency,
		maxFileBytes: cfg.MaxFileBytes,
	}
}

type fileMatches struct {
	path    string
	matches []matcher.Match
}

// Scan walks roots, which may be files or directories. Unreadable files are counted
// and skipped; a missing root or a cancelled context aborts the scan.
func (s *WorkspaceScanner) Scan(ctx context.Context, roots ...string) (ScanResult, error) {
	if len(roots) == 0 {
		return ScanResult{}, errNoRoots
	}

	var (
		res   ScanResult
		mu    sync.Mutex
		found []fileMatches
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if path == root {
					return err
				}
				log.Printf("scan: skipping %s: %v", path, err)
				return nil
			}
			if gctx.Err() != nil {
				return gctx.Err()
			}
			if d.IsDir() {
				if _, skip := skippedDirs[d.Name()]; skip && path != root {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}

			g.Go(func() error {
				matches, status := s.scanFile(path)
				recordFile(status)

				mu.Lock()
				defer mu.Unlock()
				switch status {
				case "scanned":
					res.Stats.FilesScanned++
				case "error":
					res.Stats.FilesFailed++
				default:
					res.Stats.FilesSkipped++
				}
				if len(matches) > 0 {
					found = append(found, fileMatches{path: path, matches: matches})
				}
				return nil
			})
			return nil
		})
		if err != nil {
			_ = g.Wait()
			return res, fmt.Errorf("failed to walk %s: %w", root, err)
		}
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	var all []matcher.Match
	for _, f := range found {
		all = append(all, f.matches...)
	}
	res.Stats.Matches = len(all)
	domains := matcher.Domains(all)
	res.Stats.Domains = len(domains)
	if len(domains) == 0 {
		return res, nil
	}

	results, err := s.inspector.Classify(ctx, domains)
	if err != nil {
		return res, err
	}
	for _, r := range results {
		switch r.Status() {
		case greencheck.StatusGreen:
			res.Stats.Green++
		case greencheck.StatusError:
			res.Stats.Errored++
		default:
			res.Stats.NotVerified++
		}
	}

	sort.Slice(found, func(i, j int) bool { return found[i].path < found[j].path })
	res.Files = make([]FileFindings, 0, len(found))
	for _, f := range found {
		insp := Inspection{Matches: f.matches, Results: results}
		res.Files = append(res.Files, FileFindings{Path: f.path, Findings: insp.Findings()})
	}
	return res, nil
}

// scanFile returns the matches in path and a status label for metrics.
func (s *WorkspaceScanner) scanFile(path string) ([]matcher.Match, string) {
	f, err := os.Open(path)
	if err != nil {
		log.Printf("scan: failed to open %s: %v", path, err)
		return nil, "error"
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		log.Printf("scan: failed to stat %s: %v", path, err)
		return nil, "error"
	}
	if info.Size() > s.maxFileBytes {
		return nil, "skipped_large"
	}

	data, err := io.ReadAll(io.LimitReader(f, s.maxFileBytes+1))
	if err != nil {
		log.Printf("scan: failed to read %s: %v", path, err)
		return nil, "error"
	}
	if int64(len(data)) > s.maxFileBytes {
		return nil, "skipped_large"
	}
	if isBinary(data) {
		return nil, "skipped_binary"
	}
	return matcher.Extract(string(data)), "scanned"
}

func isBinary(data []byte) bool {
	sniff := data
	if len(sniff) > binarySniffBytes {
		sniff = sniff[:binarySniffBytes]
	}
	return bytes.IndexByte(sniff, 0) >= 0
}

func recordFile(status string) {
	if metrics.IsMetricsEnabled() {
		metrics.GetMetrics().FilesScanned.WithLabelValues(status).Inc()
	}
}

var errNoRoots = errors.New("no paths to scan")
