package greencheck

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		BaseURL:    srv.URL + "/api/v3/greencheck",
		Timeout:    2 * time.Second,
		HTTPClient: srv.Client(),
	})
}

func TestLookupGreen(t *testing.T) {
	t.Parallel()
	paths := make(chan string, 1)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.EscapedPath()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"url":"example.org","green":true,"hosted_by":"Leaf Cloud","hosted_by_website":"leaf.cloud"}`))
	})

	res := c.Lookup(context.Background(), "example.org")
	if !res.IsGreen() || res.HostedBy != "Leaf Cloud" || res.Error != "" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if gotPath := <-paths; gotPath != "/api/v3/greencheck/example.org" {
		t.Errorf("request path = %q", gotPath)
	}
}

func TestLookupNotGreenWithoutProvider(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"green":false}`))
	})
	res := c.Lookup(context.Background(), "example.com")
	if !res.Known() || res.IsGreen() || res.HostedBy != "" || res.Error != "" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Status() != StatusNotVerified {
		t.Errorf("Status() = %q", res.Status())
	}
}

func TestLookupFailures(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name    string
		handler http.HandlerFunc
		wantErr string
	}{
		{
			name:    "rate limited",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTooManyRequests) },
			wantErr: MsgRateLimited,
		},
		{
			name:    "server error",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) },
			wantErr: "HTTP 502",
		},
		{
			name:    "not json",
			handler: func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("<html>")) },
			wantErr: "malformed response",
		},
		{
			name:    "missing green",
			handler: func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`{"hosted_by":"x"}`)) },
			wantErr: "missing green field",
		},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := newTestClient(t, tc.handler)
			res := c.Lookup(context.Background(), "example.com")
			if res.Known() {
				t.Fatalf("expected undetermined result, got %+v", res)
			}
			if !strings.Contains(res.Error, tc.wantErr) {
				t.Errorf("Error = %q, want it to contain %q", res.Error, tc.wantErr)
			}
			if res.Status() != StatusError {
				t.Errorf("Status() = %q", res.Status())
			}
		})
	}
}

func TestLookupTransportFailure(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c := NewClient(Config{BaseURL: base, Timeout: time.Second})
	res := c.Lookup(context.Background(), "example.com")
	if res.Known() || res.Error == "" {
		t.Fatalf("expected transport failure, got %+v", res)
	}
}

func TestLookupTimeout(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	c := NewClient(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond, HTTPClient: srv.Client()})
	res := c.Lookup(context.Background(), "slow.example.com")
	if res.Known() || !strings.Contains(res.Error, "timeout") {
		t.Fatalf("expected timeout failure, got %+v", res)
	}
}

func TestLookupEscapesDomain(t *testing.T) {
	t.Parallel()
	paths := make(chan string, 1)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.EscapedPath()
		_, _ = w.Write([]byte(`{"green":true}`))
	})
	c.Lookup(context.Background(), "a b.example.com")
	if raw := <-paths; !strings.HasSuffix(raw, "/a%20b.example.com") {
		t.Errorf("escaped path = %q", raw)
	}
}
