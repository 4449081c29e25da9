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
	"time"
)

// Tuning constants for the lookup pipeline.
const (
	// DefaultWorkers is the lookup pool size when none is configured. Lookups are network
	// bound, so the pool is sized for the classification service rather than for CPUs.
	DefaultWorkers = 8
	// MaxWorkers caps configured pool sizes.
	MaxWorkers = 256

	// WorkerQueueCapacity is the buffered depth of each worker's queue.
	WorkerQueueCapacity = 64

	// SubmitRetryBaseDelay is the first pause after ErrQueueFull. It doubles per attempt
	// up to SubmitRetryMaxDelay.
	SubmitRetryBaseDelay = 5 * time.Millisecond
	SubmitRetryMaxDelay  = 250 * time.Millisecond

	// DefaultScanConcurrency bounds how many files a workspace scan reads at once.
	DefaultScanConcurrency = 16
	// DefaultMaxFileBytes skips files larger than this during workspace scans.
	DefaultMaxFileBytes = 2 << 20
	// binarySniffBytes is how much of a file is checked for NUL bytes.
	binarySniffBytes = 8000
)
