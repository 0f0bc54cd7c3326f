package storage

import "testing"

func TestSanitizeSearchTerm(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"normal text", "checkout", "checkout"},
		{"percent", "100%", "100\\%"},
		{"underscore", "order_update", "order\\_update"},
		{"backslash", "a\\b", "a\\\\b"},
		{"mixed", "a%_\\", "a\\%\\_\\\\"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := sanitizeSearchTerm(tt.input); got != tt.expected {
				t.Errorf("sanitizeSearchTerm(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
