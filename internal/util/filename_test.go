package util

import (
	"strings"
	"testing"
)

func TestSanitizeFilename(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in, want string
	}{
		{"home/me/project", "home_me_project"},
		{`C:\src\app`, "C__src_app"},
		{"my repo?", "my_repo_"},
		{"", "root"},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if got := SanitizeFilename(strings.Repeat("x", 300)); len(got) != maxFilenameLength {
		t.Errorf("expected truncation to %d, got %d", maxFilenameLength, len(got))
	}
}
