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

import "errors"

// customError carries a retryable flag alongside the message.
type customError struct {
	message   string
	retryable bool
}

// NewError creates an error that reports whether the failed operation may be retried.
func NewError(msg string, retryable bool) error {
	return &customError{
		message:   msg,
		retryable: retryable,
	}
}

func (e *customError) Error() string {
	return e.message
}

// IsRetryable reports whether the error was created as retryable.
func (e *customError) IsRetryable() bool {
	return e.retryable
}

// IsRetryable reports whether err, or any error it wraps, is a retryable *customError.
func IsRetryable(err error) bool {
	var ce *customError
	if errors.As(err, &ce) {
		return ce.IsRetryable()
	}
	return false
}

var (
	// ErrQueueFull is returned by SubmitWork when the target worker's queue is at capacity.
	ErrQueueFull = NewError("queue full", true)
	// ErrWorkerShutdown is returned once the scheduler has been shut down.
	ErrWorkerShutdown = NewError("worker shutdown", false)
	// ErrNoDomains is returned by Classify when given nothing to classify.
	ErrNoDomains = NewError("no domains to classify", false)
)
