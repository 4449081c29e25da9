/*
Package matcher locates URLs and bare domain names in arbitrary text, typically source code.

Extraction runs two passes over the same text. The first pass finds protocol-qualified URLs
and claims their spans. The second pass finds bare hostnames and filters out the dotted
identifiers, method calls and file names that dominate source files. Every surviving
candidate must then pass Acceptable. The matcher is a heuristic: it prefers precision over
recall and never resolves or validates a name against DNS.

Offsets are byte offsets into the scanned text; End is exclusive.
*/
package matcher

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
	"regexp"
	"sort"
	"strings"

	"github.com/x-stp/greenlink/internal/metrics"
)

// Kind tells which pass produced a Match.
type Kind int

const (
	// KindURL is a protocol-qualified URL (pass 1).
	KindURL Kind = iota
	// KindBare is a bare hostname (pass 2).
	KindBare
)

func (k Kind) String() string {
	if k == KindURL {
		return "url"
	}
	return "bare"
}

// Match is one occurrence of a URL or domain in scanned text.
type Match struct {
	Text   string `json:"matchedText"`
	Domain string `json:"domain"`
	Start  int    `json:"startOffset"`
	End    int    `json:"endOffset"`
	Kind   Kind   `json:"-"`
}

// Suppression rule names, used as metric labels.
const (
	RuleIdentifier     = "identifier"
	RulePropertyAccess = "property_access"
	RuleMethodCall     = "method_call"
	RuleOverlap        = "overlap"
	RuleRejected       = "rejected"
)

const hostPattern = `(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}`

var (
	urlPattern  = regexp.MustCompile(`(?i)https?://(?:www\.)?(` + hostPattern + `)(?::[0-9]{1,5})?(?:[/?#][^\s"'<>()\[\]{}` + "`" + `]*)?`)
	barePattern = regexp.MustCompile(hostPattern)
	hostOnly    = regexp.MustCompile(`^` + hostPattern + `$`)
	leadingIPv4 = regexp.MustCompile(`^[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}`)
)

type span struct{ start, end int }

func (s span) overlaps(o span) bool { return s.start < o.end && o.start < s.end }

// Extract returns every accepted URL or domain occurrence in text, ordered by Start.
// Matches never overlap.
func Extract(text string) []Match {
	if text == "" {
		return nil
	}

	urls := scanURLs(text)
	claimed := make([]span, 0, len(urls))
	for _, m := range urls {
		claimed = append(claimed, span{m.Start, m.End})
	}
	bare := scanBare(text, claimed)

	out := make([]Match, 0, len(urls)+len(bare))
	for _, group := range [][]Match{urls, bare} {
		for _, m := range group {
			if !Acceptable(m.Domain) {
				recordSuppressed(RuleRejected)
				continue
			}
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	recordMatches(out)
	return out
}

// Domains returns the unique domains of matches in first-seen order.
func Domains(matches []Match) []string {
	seen := make(map[string]struct{}, len(matches))
	domains := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m.Domain]; ok {
			continue
		}
		seen[m.Domain] = struct{}{}
		domains = append(domains, m.Domain)
	}
	return domains
}

// scanURLs is pass 1. Every URL span is claimed, accepted or not, so a URL whose host
// is rejected does not leak bare matches out of its path.
func scanURLs(text string) []Match {
	var out []Match
	for _, loc := range urlPattern.FindAllStringSubmatchIndex(text, -1) {
		start, end := loc[0], loc[1]
		hostStart, hostEnd := loc[2], loc[3]
		if hostEnd < len(text) && (isIdentByte(text[hostEnd]) || text[hostEnd] == '-') {
			continue
		}
		end = trimTrailingPunct(text, hostEnd, end)
		out = append(out, Match{
			Text:   text[start:end],
			Domain: Normalize(text[hostStart:hostEnd]),
			Start:  start,
			End:    end,
			Kind:   KindURL,
		})
	}
	return out
}

// scanBare is pass 2. RE2 has no lookaround, so the lookbehind and lookahead are checked
// by hand: a failed lookaround retries one byte later (as a backtracking engine would),
// while a suppressed candidate is skipped whole.
func scanBare(text string, claimed []span) []Match {
	var out []Match
	pos := 0
	for pos < len(text) {
		loc := barePattern.FindStringIndex(text[pos:])
		if loc == nil {
			break
		}
		start, end := pos+loc[0], pos+loc[1]
		if start > 0 && blocksLookbehind(text[start-1]) {
			pos = start + 1
			continue
		}
		end, ok := settleEnd(text, start, end)
		if !ok {
			pos = start + 1
			continue
		}
		pos = end

		if rule := suppressedBy(text, start, end, claimed); rule != "" {
			recordSuppressed(rule)
			continue
		}
		out = append(out, Match{
			Text:   text[start:end],
			Domain: Normalize(text[start:end]),
			Start:  start,
			End:    end,
			Kind:   KindBare,
		})
	}
	return out
}

// settleEnd applies the negative lookahead. When the greedy candidate is followed by an
// identifier byte it falls back to shorter label boundaries that still form a hostname.
func settleEnd(text string, start, end int) (int, bool) {
	for end > start {
		if end >= len(text) || !isIdentByte(text[end]) {
			return end, true
		}
		cut := strings.LastIndexByte(text[start:end], '.')
		if cut <= 0 {
			return 0, false
		}
		end = start + cut
		if !hostOnly.MatchString(text[start:end]) {
			return 0, false
		}
	}
	return 0, false
}

func suppressedBy(text string, start, end int, claimed []span) string {
	candidate := text[start:end]
	first := strings.ToLower(candidate[:strings.IndexByte(candidate, '.')])
	if inSet(identifierTokens, first) {
		return RuleIdentifier
	}
	if start >= 2 && text[start-1] == '.' && isIdentByte(text[start-2]) {
		return RulePropertyAccess
	}
	if end < len(text) && text[end] == '(' {
		return RuleMethodCall
	}
	s := span{start, end}
	for _, c := range claimed {
		if s.overlaps(c) {
			return RuleOverlap
		}
	}
	return ""
}

// Acceptable reports whether a normalized domain passes the final validation step.
func Acceptable(domain string) bool {
	d := strings.ToLower(domain)
	if len(d) < 4 {
		return false
	}
	if strings.Contains(d, "localhost") || leadingIPv4.MatchString(d) {
		return false
	}
	labels := strings.Split(d, ".")
	if len(labels) < 2 {
		return false
	}
	last := labels[len(labels)-1]
	if inSet(configFilenames, d) || inSet(fileExtensions, last) {
		return false
	}
	if !inSet(knownTLDs, last) {
		return false
	}
	if len(labels) == 2 && (inSet(identifierTokens, labels[0]) || inSet(memberTokens, labels[1])) {
		return false
	}
	return true
}

// Normalize lowercases a hostname, trims stray dots and drops a leading "www." label
// when a registrable name remains.
func Normalize(host string) string {
	d := strings.ToLower(strings.Trim(strings.TrimSpace(host), "."))
	if strings.HasPrefix(d, "www.") && strings.Count(d, ".") >= 2 {
		d = d[len("www."):]
	}
	return d
}

func isIdentByte(b byte) bool {
	return b == '_' || b == '$' ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func blocksLookbehind(b byte) bool {
	return isIdentByte(b) || b == '@' || b == '/'
}

// trimTrailingPunct drops sentence punctuation that trails a URL path, never cutting
// into the host.
func trimTrailingPunct(text string, hostEnd, end int) int {
	for end > hostEnd && strings.IndexByte(".,;:!?", text[end-1]) >= 0 {
		end--
	}
	return end
}

func recordSuppressed(rule string) {
	if !metrics.IsMetricsEnabled() {
		return
	}
	metrics.GetMetrics().MatchesSuppressed.WithLabelValues(rule).Inc()
}

func recordMatches(matches []Match) {
	if !metrics.IsMetricsEnabled() {
		return
	}
	m := metrics.GetMetrics()
	for _, match := range matches {
		m.MatchesTotal.WithLabelValues(match.Kind.String()).Inc()
	}
}
