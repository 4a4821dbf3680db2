// Package classification provides built-in transaction patterns and their
// detection.
package classification

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/Veraticus/the-books-must-balance/internal/model"
)

// PatternType represents the type of transaction pattern.
type PatternType string

const (
	// PatternTypeIncome represents income transactions.
	PatternTypeIncome PatternType = "income"
	// PatternTypeExpense represents expense transactions.
	PatternTypeExpense PatternType = "expense"
	// PatternTypeTransfer represents transfer transactions.
	PatternTypeTransfer PatternType = "transfer"
)

// Pattern represents a transaction classification pattern.
type Pattern struct {
	Name       string
	Type       PatternType
	Category   string
	Regex      string
	Priority   int     // Higher priority patterns are checked first
	Confidence float64 // Base confidence when pattern matches (0.0-1.0)
}

// CompiledPattern holds a compiled regex pattern with metadata.
type CompiledPattern struct {
	compiledRegex *regexp.Regexp
	Pattern
}

// PatternDetector finds the built-in patterns a transaction matches.
// It is immutable after construction and safe for concurrent use.
type PatternDetector struct {
	patterns []CompiledPattern
}

// NewPatternDetector creates a new pattern detector with the given patterns.
func NewPatternDetector(patterns []Pattern) (*PatternDetector, error) {
	compiled := make([]CompiledPattern, 0, len(patterns))

	for _, p := range patterns {
		regex, err := regexp.Compile(caseInsensitive(p.Regex))
		if err != nil {
			return nil, fmt.Errorf("failed to compile pattern %s: %w", p.Name, err)
		}

		compiled = append(compiled, CompiledPattern{
			Pattern:       p,
			compiledRegex: regex,
		})
	}

	sort.SliceStable(compiled, func(i, j int) bool {
		return compiled[i].Priority > compiled[j].Priority
	})

	return &PatternDetector{patterns: compiled}, nil
}

// MustDefaultDetector returns a detector over DefaultPatterns.
func MustDefaultDetector() *PatternDetector {
	detector, err := NewPatternDetector(DefaultPatterns())
	if err != nil {
		panic(err)
	}
	return detector
}

// Match represents a pattern match result.
type Match struct {
	PatternName string
	Type        PatternType
	Category    string
	Confidence  float64
}

// Classify returns the highest priority pattern matching txn.
func (pd *PatternDetector) Classify(txn model.TransactionInput) (*Match, bool) {
	matches := pd.Candidates(txn)
	if len(matches) == 0 {
		return nil, false
	}
	return &matches[0], true
}

// Candidates returns every matching pattern, one per category, in priority order.
func (pd *PatternDetector) Candidates(txn model.TransactionInput) []Match {
	searchText := strings.ToLower(txn.Description + " " + txn.Merchant)

	var matches []Match
	seen := make(map[string]bool)
	for _, pattern := range pd.patterns {
		if seen[pattern.Category] || !pattern.compiledRegex.MatchString(searchText) {
			continue
		}
		seen[pattern.Category] = true

		confidence := pattern.Confidence
		// Boost confidence when the pattern's own name appears verbatim.
		if strings.Contains(searchText, strings.ToLower(pattern.Name)) {
			confidence = minFloat(confidence+0.1, 1.0)
		}

		matches = append(matches, Match{
			PatternName: pattern.Name,
			Type:        pattern.Type,
			Category:    pattern.Category,
			Confidence:  confidence,
		})
	}

	return matches
}

// Patterns returns the detector's patterns in priority order.
func (pd *PatternDetector) Patterns() []Pattern {
	out := make([]Pattern, len(pd.patterns))
	for i, p := range pd.patterns {
		out[i] = p.Pattern
	}
	return out
}

// GetPatternCount returns the number of loaded patterns.
func (pd *PatternDetector) GetPatternCount() int {
	return len(pd.patterns)
}

func caseInsensitive(regex string) string {
	if strings.HasPrefix(regex, "(?i)") {
		return regex
	}
	return "(?i)" + regex
}

// minFloat returns the minimum of two float64 values.
func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
