package greencheck

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

// Result status strings, also used as metric labels.
const (
	StatusGreen       = "green"
	StatusNotVerified = "not-verified"
	StatusError       = "error"
)

// Result is the classification of one domain.
// Green is nil when the lookup could not determine an answer; Error then says why.
// A false Green means the service was asked and has no record of green hosting.
type Result struct {
	Green    *bool  `json:"green"`
	HostedBy string `json:"hostedBy,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Known reports whether the service gave a definite answer.
func (r Result) Known() bool { return r.Green != nil }

// IsGreen reports whether the domain is confirmed as green hosted.
func (r Result) IsGreen() bool { return r.Green != nil && *r.Green }

// Status collapses the result for display; errors render as not verified upstream
// but keep their own status here for diagnostics.
func (r Result) Status() string {
	switch {
	case r.IsGreen():
		return StatusGreen
	case r.Green == nil:
		return StatusError
	default:
		return StatusNotVerified
	}
}

// Failed builds an undetermined result carrying msg.
func Failed(msg string) Result {
	return Result{Error: msg}
}

// Verified builds a definite result.
func Verified(green bool, hostedBy string) Result {
	return Result{Green: &green, HostedBy: hostedBy}
}
