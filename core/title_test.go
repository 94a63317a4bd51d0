package core

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestGenerateTitle(t *testing.T) {
	long := strings.Repeat("word ", 40)

	tests := []struct {
		name     string
		text     string
		want     string
		truncate bool
	}{
		{
			name: "short first line",
			text: "Refund policy\n\nRefunds are issued within 14 days.",
			want: "Refund policy",
		},
		{
			name: "skips blank lines",
			text: "\n\n   \nShipping times\nbody",
			want: "Shipping times",
		},
		{
			name: "collapses inner whitespace",
			text: "Account    \t settings",
			want: "Account settings",
		},
		{
			name:     "long line truncated on word boundary",
			text:     long,
			truncate: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GenerateTitle(tt.text)
			if !tt.truncate {
				if got != tt.want {
					t.Errorf("GenerateTitle() = %q, want %q", got, tt.want)
				}
				return
			}
			if !strings.HasSuffix(got, Ellipsis) {
				t.Errorf("GenerateTitle() = %q, want %q suffix", got, Ellipsis)
			}
			body := strings.TrimSuffix(got, Ellipsis)
			if utf8.RuneCountInString(body) > MaxTitleLength {
				t.Errorf("GenerateTitle() body length = %d, want <= %d", utf8.RuneCountInString(body), MaxTitleLength)
			}
			if strings.HasSuffix(body, "wor") || strings.HasSuffix(body, " ") {
				t.Errorf("GenerateTitle() = %q, cut mid-word or left trailing space", got)
			}
		})
	}
}
