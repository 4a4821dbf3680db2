package pattern

import (
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/Veraticus/the-books-must-balance/internal/model"
)

// ruleMatcher evaluates single rules, compiling each regex pattern once.
type ruleMatcher struct {
	compiled map[string]*regexp.Regexp
	invalid  map[string]bool
	mu       sync.RWMutex
}

func newRuleMatcher() *ruleMatcher {
	return &ruleMatcher{
		compiled: make(map[string]*regexp.Regexp),
		invalid:  make(map[string]bool),
	}
}

// matches reports whether rule fires for txn.
func (m *ruleMatcher) matches(rule model.CategorizationRule, txn model.TransactionInput) bool {
	if !rule.IsActive {
		return false
	}
	if !rule.InAmountRange(txn.AbsAmount()) {
		return false
	}

	candidates := []string{txn.Description}
	if strings.TrimSpace(txn.Merchant) != "" {
		candidates = append(candidates, txn.Merchant)
	}

	if rule.IsRegex {
		re := m.regex(rule.Pattern)
		if re == nil {
			return false
		}
		for _, text := range candidates {
			if re.MatchString(text) {
				return true
			}
		}
		return false
	}

	needle := strings.ToLower(strings.TrimSpace(rule.Pattern))
	if needle == "" {
		return false
	}
	words := strings.Fields(Normalize(rule.Pattern))

	for _, text := range candidates {
		if strings.Contains(strings.ToLower(text), needle) {
			return true
		}
		if containsWords(strings.Fields(Normalize(text)), words) {
			return true
		}
	}
	return false
}

// containsWords reports whether words appear in text as a contiguous run of
// whole words. "at t" must not match inside "great taste".
func containsWords(text, words []string) bool {
	if len(words) == 0 || len(words) > len(text) {
		return false
	}
	for i := 0; i+len(words) <= len(text); i++ {
		if slices.Equal(text[i:i+len(words)], words) {
			return true
		}
	}
	return false
}

// regex returns the compiled pattern, or nil when it does not compile.
// Patterns are compiled case-insensitively.
func (m *ruleMatcher) regex(pattern string) *regexp.Regexp {
	m.mu.RLock()
	re, ok := m.compiled[pattern]
	bad := m.invalid[pattern]
	m.mu.RUnlock()
	if ok {
		return re
	}
	if bad {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	compiled, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		m.invalid[pattern] = true
		return nil
	}
	m.compiled[pattern] = compiled
	return compiled
}
