package core

import (
	"testing"

	"github.com/JonMunkholm/tabled/internal/model"
)

func TestSuggestMapping(t *testing.T) {
	columns := []model.Column{{Name: "unit_price"}, {Name: "qty"}, {Name: "name"}, {Name: "email"}}

	tests := []struct {
		name    string
		headers []string
		want    map[int]string
	}{
		{
			name:    "normalized names",
			headers: []string{"Unit Price", "QTY", "Name"},
			want:    map[int]string{0: "unit_price", 1: "qty", 2: "name"},
		},
		{
			name:    "transposed letters below threshold",
			headers: []string{"Emial"},
			want:    map[int]string{},
		},
		{
			name:    "close match",
			headers: []string{"e-mails"},
			want:    map[int]string{0: "email"},
		},
		{
			name:    "column used once",
			headers: []string{"name", "Name "},
			want:    map[int]string{0: "name"},
		},
		{
			name:    "unrelated",
			headers: []string{"colour", ""},
			want:    map[int]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SuggestMapping(tt.headers, columns)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d matches %+v, want %d", len(got), got, len(tt.want))
			}
			for _, m := range got {
				if tt.want[m.SourceIndex] != m.TargetColumn {
					t.Errorf("header %d -> %s, want %s", m.SourceIndex, m.TargetColumn, tt.want[m.SourceIndex])
				}
				if m.Score < MappingMatchThreshold || m.Score > 1 {
					t.Errorf("score %v out of range", m.Score)
				}
			}
		})
	}
}

func TestHeaderSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"Unit Price", "unit_price", 1},
		{"abc", "abd", 1 - 1.0/3},
		{"", "x", 0},
		{"!!", "x", 0},
	}
	for _, tt := range tests {
		if got := headerSimilarity(tt.a, tt.b); got != tt.want {
			t.Errorf("headerSimilarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"kitten", "sitting", 3},
		{"qty", "", 3},
		{"naïve", "naive", 1},
	}
	for _, tt := range tests {
		if got := levenshtein(tt.a, tt.b); got != tt.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}
