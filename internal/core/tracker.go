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
	"sync"

	"github.com/zeebo/xxh3"

	"github.com/x-stp/greenlink/internal/metrics"
)

// Tracker remembers a content fingerprint per document so unchanged documents can skip
// re-inspection.
type Tracker struct {
	mu     sync.Mutex
	hashes map[string]uint64
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{hashes: make(map[string]uint64)}
}

// Changed records text as the current content of id and reports whether it differs
// from what was recorded before. A document seen for the first time has changed.
func (t *Tracker) Changed(id, text string) bool {
	h := xxh3.HashString(text)

	t.mu.Lock()
	prev, ok := t.hashes[id]
	t.hashes[id] = h
	t.mu.Unlock()

	if ok && prev == h {
		if metrics.IsMetricsEnabled() {
			metrics.GetMetrics().DocumentsUnchanged.Inc()
		}
		return false
	}
	return true
}

// Forget drops the fingerprint for id.
func (t *Tracker) Forget(id string) {
	t.mu.Lock()
	delete(t.hashes, id)
	t.mu.Unlock()
}

// Reset drops every fingerprint, forcing the next inspection of each document.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.hashes = make(map[string]uint64)
	t.mu.Unlock()
}

// Len returns the number of tracked documents.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.hashes)
}
