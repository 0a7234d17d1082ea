package casenum

import (
	"reflect"
	"testing"
)

func TestVariants(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "two digit year expands to four",
			input: "756/16936/23",
			want:  []string{"756/16936/23", "756/16936/2023"},
		},
		{
			name:  "four digit year collapses to two",
			input: "756/16936/2023",
			want:  []string{"756/16936/2023", "756/16936/23"},
		},
		{
			name:  "two digit year above cutoff is 19xx",
			input: "910/100/98",
			want:  []string{"910/100/98", "910/100/1998"},
		},
		{
			name:  "whitespace and stray characters are stripped",
			input: " 756 / 16936 / 23р. ",
			want:  []string{"756/16936/23", "756/16936/2023"},
		},
		{
			name:  "no year part keeps single variant",
			input: "16936",
			want:  []string{"16936"},
		},
		{
			name:  "blank input yields nothing",
			input: "   ",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Variants(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Variants(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestYear(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"756/16936/23", 2023},
		{"756/16936/2023", 2023},
		{"910/100/98", 1998},
		{"910/100/24-н", 2024},
		{"16936", 0},
		{"", 0},
		{"756/16936/abcd", 0},
	}

	for _, tt := range tests {
		if got := Year(tt.input); got != tt.want {
			t.Errorf("Year(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}
