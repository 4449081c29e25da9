package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/x-stp/greenlink/internal/cache"
	"github.com/x-stp/greenlink/internal/greencheck"
)

func TestFileStoreLoadMissing(t *testing.T) {
	t.Parallel()
	s := NewFileStore(filepath.Join(t.TempDir(), "nested", "dir"))

	data, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load on missing file: %v", err)
	}
	if data != nil {
		t.Fatalf("expected nil data, got %q", data)
	}
	if _, err := os.Stat(filepath.Dir(s.Path())); !os.IsNotExist(err) {
		t.Fatalf("Load must not create the directory")
	}
}

func TestFileStoreSaveLoadClear(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	s := NewFileStore(dir)

	if got, want := s.Path(), filepath.Join(dir, "greenDomainCache.json"); got != want {
		t.Fatalf("Path() = %q, want %q", got, want)
	}
	if err := s.Save(ctx, []byte(`{"a.com":{"green":true,"timestamp":1}}`)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save(ctx, []byte(`{}`)); err != nil {
		t.Fatalf("second Save: %v", err)
	}
	data, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(data) != "{}" {
		t.Fatalf("Load = %q, want latest blob", data)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear twice: %v", err)
	}
	if data, _ := s.Load(ctx); data != nil {
		t.Fatalf("expected empty after Clear, got %q", data)
	}
}

func TestFileStoreConcurrentSaves(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewFileStore(t.TempDir())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Save(ctx, []byte(`{"x.com":{"green":false,"timestamp":5}}`)); err != nil {
				t.Errorf("Save: %v", err)
			}
		}()
	}
	wg.Wait()

	data, err := s.Load(ctx)
	if err != nil || string(data) != `{"x.com":{"green":false,"timestamp":5}}` {
		t.Fatalf("Load = %q, %v", data, err)
	}
}

func TestFileStoreWithCache(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewFileStore(t.TempDir())

	c := cache.New()
	c.Set("leaf.dev", greencheck.Verified(true, "Leaf Hosting"), time.Now())
	if err := c.Persist(ctx, s); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	restored := cache.New()
	if err := restored.Restore(ctx, s); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	e, ok := restored.Get("leaf.dev")
	if !ok || e.HostedBy != "Leaf Hosting" {
		t.Fatalf("restored entry = %+v, ok=%v", e, ok)
	}
}

func TestSharedStoreKeepsEveryWriter(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		store func(t *testing.T) cache.Store
	}{
		{"file", func(t *testing.T) cache.Store { return NewFileStore(t.TempDir()) }},
		{"memory", func(t *testing.T) cache.Store { return NewMemoryStore() }},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			s := tt.store(t)

			a, b := cache.New(), cache.New()
			if err := a.Restore(ctx, s); err != nil {
				t.Fatalf("Restore a: %v", err)
			}
			if err := b.Restore(ctx, s); err != nil {
				t.Fatalf("Restore b: %v", err)
			}

			b.Set("b.example.com", greencheck.Verified(true, "B Hosting"), time.Now())
			if err := b.Persist(ctx, s); err != nil {
				t.Fatalf("Persist b: %v", err)
			}
			a.Set("a.example.com", greencheck.Verified(false, ""), time.Now())
			if err := a.Persist(ctx, s); err != nil {
				t.Fatalf("Persist a: %v", err)
			}

			fresh := cache.New()
			if err := fresh.Restore(ctx, s); err != nil {
				t.Fatalf("Restore: %v", err)
			}
			got := fresh.Domains()
			if len(got) != 2 || got[0] != "a.example.com" || got[1] != "b.example.com" {
				t.Fatalf("store holds %v, want both writers' entries", got)
			}
		})
	}
}

func TestFileStoreConcurrentPersists(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewFileStore(t.TempDir())

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := cache.New()
			c.Set("host"+string(rune('a'+i))+".example.com", greencheck.Verified(true, ""), time.Now())
			if err := c.Persist(ctx, s); err != nil {
				t.Errorf("Persist: %v", err)
			}
		}(i)
	}
	wg.Wait()

	fresh := cache.New()
	if err := fresh.Restore(ctx, s); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if fresh.Len() != writers {
		t.Fatalf("expected %d entries after concurrent persists, got %v", writers, fresh.Domains())
	}
}

func TestMemoryStoreCopies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore()

	if data, err := s.Load(ctx); err != nil || data != nil {
		t.Fatalf("empty Load = %q, %v", data, err)
	}
	blob := []byte("abc")
	_ = s.Save(ctx, blob)
	blob[0] = 'z'
	data, _ := s.Load(ctx)
	if string(data) != "abc" {
		t.Fatalf("store must copy on save, got %q", data)
	}
	_ = s.Clear(ctx)
	if data, _ := s.Load(ctx); data != nil {
		t.Fatalf("expected nil after Clear")
	}
}

func TestConnectParsesURL(t *testing.T) {
	t.Parallel()
	c, err := Connect("redis://localhost:6380/2")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()
	if c.Options().Addr != "localhost:6380" || c.Options().DB != 2 {
		t.Fatalf("unexpected options: addr=%s db=%d", c.Options().Addr, c.Options().DB)
	}

	c2, err := Connect("127.0.0.1:6379")
	if err != nil {
		t.Fatalf("Connect host:port: %v", err)
	}
	defer c2.Close()
	if c2.Options().Addr != "127.0.0.1:6379" {
		t.Fatalf("unexpected addr %s", c2.Options().Addr)
	}

	if _, err := Connect(""); err == nil {
		t.Fatalf("expected error for empty address")
	}
	if _, err := Connect("redis://localhost:6379/notanumber"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestRedisStoreUnreachable(t *testing.T) {
	t.Parallel()
	// Port 1 on loopback refuses connections.
	c, err := Connect("127.0.0.1:1")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	s := NewRedisStore(c)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := s.Load(ctx); err == nil {
		t.Fatalf("expected Load error against unreachable redis")
	}
	if err := s.Save(ctx, []byte("{}")); err == nil {
		t.Fatalf("expected Save error against unreachable redis")
	}
}
