package matcher

import (
	"strings"
	"testing"
)

func TestExtractURLWithPath(t *testing.T) {
	t.Parallel()
	text := "visit https://example-green.dev/page?x=1 today"
	got := Extract(text)
	if len(got) != 1 {
		t.Fatalf("Extract(%q) returned %d matches, want 1: %+v", text, len(got), got)
	}
	m := got[0]
	if m.Domain != "example-green.dev" {
		t.Errorf("Domain = %q, want %q", m.Domain, "example-green.dev")
	}
	if m.Text != "https://example-green.dev/page?x=1" {
		t.Errorf("Text = %q", m.Text)
	}
	if m.Start != strings.Index(text, "https://") || text[m.Start:m.End] != m.Text {
		t.Errorf("offsets [%d,%d) do not cover %q", m.Start, m.End, m.Text)
	}
	if m.Kind != KindURL {
		t.Errorf("Kind = %v, want url", m.Kind)
	}
}

func TestExtractBareDomain(t *testing.T) {
	t.Parallel()
	got := Extract("see api.foo.io for details")
	if len(got) != 1 || got[0].Domain != "api.foo.io" || got[0].Kind != KindBare {
		t.Fatalf("unexpected matches: %+v", got)
	}
	if got[0].Start != 4 || got[0].End != 14 {
		t.Errorf("offsets = [%d,%d), want [4,14)", got[0].Start, got[0].End)
	}
}

func TestExtractSuppressesCode(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name string
		text string
	}{
		{"denylisted receiver with call", "logger.info(url)"},
		{"console call", "console.log('hi')"},
		{"denylisted receiver without call", "x = this.example.com"},
		{"method call on custom receiver", "myLogger.info(msg)"},
		{"property chain", "foo_bar.baz.com"},
		{"module exports", "module.exports = {}"},
		{"file name", "open package.json and README.md"},
		{"typescript import", "import x from './util.ts'"},
		{"unknown tld", "video.width = 10"},
		{"email address", "mail user@example.com"},
		{"localhost url", "http://localhost.test:3000/"},
		{"ipv4 address", "connect to 10.0.0.1 now"},
		{"java package", "import com.example.app;"},
		{"two label member token", "print(user.name)"},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Extract(tc.text); len(got) != 0 {
				t.Errorf("Extract(%q) = %+v, want no matches", tc.text, got)
			}
		})
	}
}

func TestExtractAccepts(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name   string
		text   string
		domain string
	}{
		{"quoted host", `const host = "cdn.example.org";`, "cdn.example.org"},
		{"www stripped", "go to www.Example.COM.", "example.com"},
		{"url with port", "fetch('https://api.example.net:8443/v1')", "api.example.net"},
		{"url trailing period", "Docs: https://example.com/docs.", "example.com"},
		{"url in markdown", "[site](https://green.example.io)", "green.example.io"},
		{"short real domain", "see t.co", "t.co"},
		{"lookahead backs off to a label boundary", "see docs.example.com.io_tmp", "docs.example.com"},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Extract(tc.text)
			if len(got) != 1 || got[0].Domain != tc.domain {
				t.Fatalf("Extract(%q) = %+v, want one match for %q", tc.text, got, tc.domain)
			}
		})
	}
}

func TestExtractURLTrailingPunctuationSpan(t *testing.T) {
	t.Parallel()
	got := Extract("Docs: https://example.com/docs.")
	if len(got) != 1 || got[0].Text != "https://example.com/docs" {
		t.Fatalf("unexpected matches: %+v", got)
	}
}

func TestExtractURLClaimsItsPath(t *testing.T) {
	t.Parallel()
	got := Extract("https://example.com/redirect/other.example.org")
	if len(got) != 1 || got[0].Domain != "example.com" {
		t.Fatalf("expected only the URL host, got %+v", got)
	}
}

func TestExtractQueryDomainInsideURL(t *testing.T) {
	t.Parallel()
	text := "https://example.com/a?u=x.example.org&v=1"
	got := Extract(text)
	if len(got) != 1 || got[0].Domain != "example.com" || got[0].End != len(text) {
		t.Fatalf("expected a single URL match, got %+v", got)
	}

	start := strings.Index(text, "x.example.org")
	end := start + len("x.example.org")
	if rule := suppressedBy(text, start, end, []span{{got[0].Start, got[0].End}}); rule != RuleOverlap {
		t.Fatalf("suppressedBy = %q, want %q", rule, RuleOverlap)
	}
}

func TestExtractOrderedAndDisjoint(t *testing.T) {
	t.Parallel()
	texts := []string{
		"a.example.com https://b.example.org/x c.example.net",
		`fetch("https://one.example.io"); // see two.example.dev and https://three.example.co/path?q=1`,
		"www.example.com www.example.com www.example.com",
		strings.Repeat("docs.example.com ", 50),
		"",
	}
	for _, text := range texts {
		got := Extract(text)
		for i := range got {
			m := got[i]
			if m.Start < 0 || m.End > len(text) || m.Start >= m.End {
				t.Fatalf("bad offsets %+v for %q", m, text)
			}
			if text[m.Start:m.End] != m.Text {
				t.Fatalf("span text mismatch %+v", m)
			}
			if i > 0 {
				prev := got[i-1]
				if m.Start < prev.Start {
					t.Fatalf("matches out of order: %+v then %+v", prev, m)
				}
				if m.Start < prev.End {
					t.Fatalf("matches overlap: %+v and %+v", prev, m)
				}
			}
		}
	}
}

func TestExtractMixedOrder(t *testing.T) {
	t.Parallel()
	got := Extract("a.example.com https://b.example.org/x c.example.net")
	want := []string{"a.example.com", "b.example.org", "c.example.net"}
	if len(got) != len(want) {
		t.Fatalf("got %d matches, want %d: %+v", len(got), len(want), got)
	}
	for i, d := range want {
		if got[i].Domain != d {
			t.Errorf("match %d domain = %q, want %q", i, got[i].Domain, d)
		}
	}
}

func TestDomainsDedupes(t *testing.T) {
	t.Parallel()
	got := Domains(Extract("www.example.com and example.com and https://EXAMPLE.com/x and other.example.org"))
	if len(got) != 2 || got[0] != "example.com" || got[1] != "other.example.org" {
		t.Fatalf("Domains = %v", got)
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		input    string
		expected string
	}{
		{"Example.COM", "example.com"},
		{"www.example.com", "example.com"},
		{"WWW.Example.com.", "example.com"},
		{"www.com", "www.com"},
		{" .example.org. ", "example.org"},
	}
	for _, tc := range testCases {
		if got := Normalize(tc.input); got != tc.expected {
			t.Errorf("Normalize(%q) = %q; want %q", tc.input, got, tc.expected)
		}
	}
}

func TestAcceptable(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		domain string
		want   bool
	}{
		{"example.com", true},
		{"a.io", true},
		{"a.b", false},
		{"localhost.dev", false},
		{"192.168.1.1", false},
		{"package.json", false},
		{"tsconfig.json", false},
		{"readme.md", false},
		{"example.notatld", false},
		{"console.com", false},
		{"user.name", false},
		{"example.name", false},
		{"sub.example.name", true},
	}
	for _, tc := range testCases {
		if got := Acceptable(tc.domain); got != tc.want {
			t.Errorf("Acceptable(%q) = %v; want %v", tc.domain, got, tc.want)
		}
	}
}

func BenchmarkExtract(b *testing.B) {
	src := strings.Repeat(`const api = "https://api.example.com/v1"; logger.info(config.value); // see docs.example.org`+"\n", 200)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Extract(src)
	}
}
