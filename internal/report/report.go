package report

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
Package report writes workspace scan findings as CSV.

Output goes to <path>.tmp through a buffered (and optionally gzip-compressed) writer and is
renamed into place on Close, so a crashed or cancelled scan never leaves a truncated report
at the final path.
*/

import (
	"bufio"
	"compress/gzip"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/x-stp/greenlink/internal/core"
	"github.com/x-stp/greenlink/internal/util"
)

// DefaultBufferSize is the bufio size in front of the file or gzip stream.
const DefaultBufferSize = 64 * 1024

// Header is the CSV header row.
var Header = []string{"file", "start", "end", "domain", "status", "hosted_by", "error"}

// ErrClosed is returned when writing to a closed Writer.
var ErrClosed = errors.New("report writer closed")

// Options configures a Writer.
type Options struct {
	// Compress gzips the output and appends ".gz" to the path if missing.
	Compress bool
	// BufferSize overrides DefaultBufferSize.
	BufferSize int
}

// Writer is a CSV report safe for concurrent use.
type Writer struct {
	mu        sync.Mutex
	file      *os.File
	gzWriter  *gzip.Writer
	bufWriter *bufio.Writer
	csv       *csv.Writer
	filePath  string
	finalPath string
	rows      int
	closed    bool
}

// Create opens a report that will appear at path once closed. The header row is written
// immediately.
func Create(path string, opts Options) (*Writer, error) {
	if opts.Compress && !strings.HasSuffix(path, ".gz") {
		path += ".gz"
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmpPath := path + ".tmp"
	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", tmpPath, err)
	}

	w := &Writer{
		file:      file,
		filePath:  tmpPath,
		finalPath: path,
	}
	if opts.Compress {
		gzw, err := gzip.NewWriterLevel(file, gzip.BestSpeed)
		if err != nil {
			file.Close()
			os.Remove(tmpPath)
			return nil, fmt.Errorf("failed to create gzip writer: %w", err)
		}
		w.gzWriter = gzw
		w.bufWriter = bufio.NewWriterSize(gzw, opts.BufferSize)
	} else {
		w.bufWriter = bufio.NewWriterSize(file, opts.BufferSize)
	}
	w.csv = csv.NewWriter(w.bufWriter)

	if err := w.csv.Write(Header); err != nil {
		w.Abort()
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	return w, nil
}

// Path returns where the report appears after Close.
func (w *Writer) Path() string {
	return w.finalPath
}

// Rows returns the number of data rows written so far.
func (w *Writer) Rows() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rows
}

// WriteFinding appends one row.
func (w *Writer) WriteFinding(file string, f core.Finding) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	row := []string{
		file,
		strconv.Itoa(f.Start),
		strconv.Itoa(f.End),
		f.Domain,
		f.Status,
		f.HostedBy,
		f.Error,
	}
	if err := w.csv.Write(row); err != nil {
		return fmt.Errorf("failed to write row for %s: %w", file, err)
	}
	w.rows++
	return nil
}

// WriteScan appends every finding of a scan, file by file.
func (w *Writer) WriteScan(res core.ScanResult) error {
	for _, ff := range res.Files {
		for _, f := range ff.Findings {
			if err := w.WriteFinding(ff.Path, f); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close flushes every layer, syncs the file and renames it into place. The temp file
// is removed if any step fails.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	var errs []error
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		errs = append(errs, fmt.Errorf("csv flush: %w", err))
	}
	if err := w.bufWriter.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("buffer flush: %w", err))
	}
	if w.gzWriter != nil {
		if err := w.gzWriter.Close(); err != nil {
			errs = append(errs, fmt.Errorf("gzip close: %w", err))
		}
	}
	if err := w.file.Sync(); err != nil {
		errs = append(errs, fmt.Errorf("sync: %w", err))
	}
	if err := w.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close: %w", err))
	}
	if len(errs) > 0 {
		os.Remove(w.filePath)
		return fmt.Errorf("failed to finish report %s: %w", w.finalPath, errors.Join(errs...))
	}
	if err := os.Rename(w.filePath, w.finalPath); err != nil {
		os.Remove(w.filePath)
		return fmt.Errorf("failed to rename %s to %s: %w", w.filePath, w.finalPath, err)
	}
	return nil
}

// Abort discards the report.
func (w *Writer) Abort() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	if w.gzWriter != nil {
		w.gzWriter.Close()
	}
	w.file.Close()
	os.Remove(w.filePath)
}

// DefaultFilename derives a report name from the scanned root,
// e.g. "greenlink-home_me_project.csv".
func DefaultFilename(root string, compress bool) string {
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}
	name := "greenlink-" + util.SanitizeFilename(strings.Trim(filepath.ToSlash(abs), "/")) + ".csv"
	if compress {
		name += ".gz"
	}
	return name
}
