package model

import (
	"fmt"
	"sort"
)

// Alternative is a runner-up category candidate.
type Alternative struct {
	Category   string  `json:"category"`
	Reasoning  string  `json:"reasoning,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Validate ensures the Alternative has valid data.
func (a *Alternative) Validate() error {
	if a.Category == "" {
		return fmt.Errorf("category name is required")
	}

	if a.Confidence < 0.0 || a.Confidence > 1.0 {
		return fmt.Errorf("confidence must be between 0.0 and 1.0, got %.2f", a.Confidence)
	}

	return nil
}

// Alternatives is a slice of Alternative that supports sorting and utility methods.
type Alternatives []Alternative

// Len implements sort.Interface.
func (a Alternatives) Len() int {
	return len(a)
}

// Less implements sort.Interface - higher confidence comes first.
func (a Alternatives) Less(i, j int) bool {
	if a[i].Confidence != a[j].Confidence {
		return a[i].Confidence > a[j].Confidence
	}
	return a[i].Category < a[j].Category
}

// Swap implements sort.Interface.
func (a Alternatives) Swap(i, j int) {
	a[i], a[j] = a[j], a[i]
}

// Sort sorts the alternatives by confidence in descending order.
func (a Alternatives) Sort() {
	sort.Stable(a)
}

// Top returns the most confident alternative, or nil if empty.
func (a Alternatives) Top() *Alternative {
	if len(a) == 0 {
		return nil
	}
	a.Sort()
	return &a[0]
}

// Below returns the alternatives strictly less confident than ceiling,
// excluding the named category.
func (a Alternatives) Below(ceiling float64, exclude string) Alternatives {
	var out Alternatives
	for _, alt := range a {
		if alt.Category == exclude {
			continue
		}
		if alt.Confidence < ceiling {
			out = append(out, alt)
		}
	}
	out.Sort()
	return out
}

// Validate ensures all alternatives are valid and distinct.
func (a Alternatives) Validate() error {
	seen := make(map[string]bool)

	for i, alt := range a {
		if err := alt.Validate(); err != nil {
			return fmt.Errorf("invalid alternative at index %d: %w", i, err)
		}
		if seen[alt.Category] {
			return fmt.Errorf("duplicate category %q in alternatives", alt.Category)
		}
		seen[alt.Category] = true
	}

	return nil
}
