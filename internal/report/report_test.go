package report

import (
	"compress/gzip"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/x-stp/greenlink/internal/core"
	"github.com/x-stp/greenlink/internal/greencheck"
	"github.com/x-stp/greenlink/internal/matcher"
)

func sampleScan() core.ScanResult {
	green := greencheck.Verified(true, "Leaf Hosting")
	failed := greencheck.Failed("rate limited")
	return core.ScanResult{Files: []core.FileFindings{
		{Path: "src/app.js", Findings: []core.Finding{
			{Match: matcher.Match{Text: "https://leaf.io/x", Domain: "leaf.io", Start: 10, End: 27}, Result: green, Status: green.Status()},
			{Match: matcher.Match{Text: "grey.net", Domain: "grey.net", Start: 40, End: 48}, Result: failed, Status: failed.Status()},
		}},
	}}
}

func readCSV(t *testing.T, path string, gz bool) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	var r *csv.Reader
	if gz {
		zr, err := gzip.NewReader(f)
		if err != nil {
			t.Fatalf("gzip reader: %v", err)
		}
		defer zr.Close()
		r = csv.NewReader(zr)
	} else {
		r = csv.NewReader(f)
	}
	rows, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	return rows
}

func TestWriterPlain(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "out", "report.csv")

	w, err := Create(path, Options{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := w.WriteScan(sampleScan()); err != nil {
		t.Fatalf("WriteScan: %v", err)
	}
	if _, err := os.Stat(path); err == nil {
		t.Fatalf("final file must not exist before Close")
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind")
	}

	rows := readCSV(t, path, false)
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	if strings.Join(rows[0], ",") != "file,start,end,domain,status,hosted_by,error" {
		t.Fatalf("unexpected header %v", rows[0])
	}
	if strings.Join(rows[1], ",") != "src/app.js,10,27,leaf.io,green,Leaf Hosting," {
		t.Fatalf("unexpected row %v", rows[1])
	}
	if rows[2][4] != "error" || rows[2][6] != "rate limited" {
		t.Fatalf("unexpected row %v", rows[2])
	}
	if w.Rows() != 2 {
		t.Fatalf("Rows() = %d", w.Rows())
	}
	if err := w.WriteFinding("x", core.Finding{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestWriterCompressed(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "report.csv")

	w, err := Create(path, Options{Compress: true, BufferSize: 16})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if w.Path() != path+".gz" {
		t.Fatalf("Path() = %q", w.Path())
	}
	if err := w.WriteScan(sampleScan()); err != nil {
		t.Fatalf("WriteScan: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if rows := readCSV(t, w.Path(), true); len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
}

func TestWriterAbort(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "report.csv")
	w, err := Create(path, Options{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	w.Abort()
	for _, p := range []string{path, path + ".tmp"} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Fatalf("%s should not exist after Abort", p)
		}
	}
}

func TestDefaultFilename(t *testing.T) {
	t.Parallel()
	got := DefaultFilename("/srv/my:project", true)
	if got != "greenlink-srv_my_project.csv.gz" {
		t.Fatalf("DefaultFilename = %q", got)
	}
}
