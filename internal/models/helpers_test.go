package models

import (
	"slices"
	"testing"
)

func TestIsNullLike(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"empty", "", true},
		{"whitespace", "   ", true},
		{"NA", "NA", true},
		{"n/a lowercase", "n/a", true},
		{"NaN", "NaN", true},
		{"null", "null", true},
		{"None", "None", true},
		{"excel #N/A", "#N/A", true},
		{"pandas <NA>", "<NA>", true},
		{"negative nan", "-nan", true},
		{"#NA", "#NA", true},
		{"nil is a name", "nil", false},
		{"company name", "Acme Corp", false},
		{"zero", "0", false},
		{"contains na", "Nathan", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsNullLike(tt.in)
			if got != tt.want {
				t.Errorf("IsNullLike(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestFailureMarkerIsNullLike(t *testing.T) {
	if !IsNullLike(FailureMarker) {
		t.Errorf("IsNullLike(%q) = false, want true", FailureMarker)
	}
	got := DistinctEntities([]string{"Acme Corp", FailureMarker, "Globex", FailureMarker})
	if !slices.Equal(got, []string{"Acme Corp", "Globex"}) {
		t.Errorf("DistinctEntities = %v", got)
	}
}

func TestDistinctEntities(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"nil", nil, []string{}},
		{"keeps first occurrence order", []string{"b", "a", "b", "c", "a"}, []string{"b", "a", "c"}},
		{"drops null-like", []string{"Acme", "", "NaN", "Globex", "N/A"}, []string{"Acme", "Globex"}},
		{"trims before comparing", []string{" Acme ", "Acme", "Acme\t"}, []string{"Acme"}},
		{"case sensitive", []string{"acme", "Acme"}, []string{"acme", "Acme"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistinctEntities(tt.in)
			if !slices.Equal(got, tt.want) {
				t.Errorf("DistinctEntities(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
