package aspects

import (
	"strings"
	"sync"
	"time"

	"github.com/dlclark/regexp2"
)

const matchTimeout = 50 * time.Millisecond

// compiledPattern is either a compiled expression or, when the stored text is
// not a valid expression, a lower-cased literal matched as a substring.
type compiledPattern struct {
	re      *regexp2.Regexp
	literal string
}

// matcher caches compiled keyword patterns. Patterns are insert-only, so a
// cached compilation never goes stale.
type matcher struct {
	mu    sync.RWMutex
	cache map[string]*compiledPattern
}

func newMatcher() *matcher {
	return &matcher{cache: make(map[string]*compiledPattern)}
}

func (m *matcher) compile(pattern string) *compiledPattern {
	m.mu.RLock()
	cp, ok := m.cache[pattern]
	m.mu.RUnlock()
	if ok {
		return cp
	}

	re, err := regexp2.Compile(pattern, regexp2.IgnoreCase)
	if err != nil {
		cp = &compiledPattern{literal: strings.ToLower(pattern)}
	} else {
		re.MatchTimeout = matchTimeout
		cp = &compiledPattern{re: re}
	}
	m.mu.Lock()
	m.cache[pattern] = cp
	m.mu.Unlock()
	return cp
}

// Match reports whether pattern matches text, case-insensitively.
// A match that times out counts as no match.
func (m *matcher) Match(pattern, text string) bool {
	if strings.TrimSpace(pattern) == "" {
		return false
	}
	cp := m.compile(pattern)
	if cp.re == nil {
		return strings.Contains(strings.ToLower(text), cp.literal)
	}
	ok, err := cp.re.MatchString(text)
	return err == nil && ok
}
