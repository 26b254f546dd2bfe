// Package listen implements continuous voice command input: a
// restartable recognition session over an unreliable engine, plus
// phrase matching with duplicate-fire protection.
package listen

import (
	"strings"
	"sync"
	"time"

	"github.com/foodly/companion/internal/domain"
)

// MatcherOption configures the Matcher.
type MatcherOption func(*Matcher)

// WithThrottleWindow sets the minimum time between two accepted
// command fires.
func WithThrottleWindow(d time.Duration) MatcherOption {
	return func(m *Matcher) { m.window = d }
}

// WithClock overrides the time source. Tests use this to step time
// deterministically.
func WithClock(now func() time.Time) MatcherOption {
	return func(m *Matcher) { m.now = now }
}

// Matcher decides whether a transcript expresses a registered command.
// A single spoken phrase produces several overlapping interim results
// that would each match on their own, so once a command fires, further
// matches inside the throttle window are suppressed — across all
// commands, not per command.
type Matcher struct {
	window time.Duration
	now    func() time.Time

	mu        sync.Mutex
	lastFired time.Time
}

// NewMatcher creates a phrase matcher with the default throttle window.
func NewMatcher(opts ...MatcherOption) *Matcher {
	m := &Matcher{
		window: domain.DefaultThrottleWindow,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Match returns the first command in registration order with a phrase
// that is a substring of the transcript, recording a fire. Commands
// earlier in the slice deliberately win over later ones. Returns false
// when nothing matches or a previous fire is still inside the throttle
// window.
//
// Substring (not exact, not tokenized) matching is intentional:
// continuous speech accumulates filler words around the command
// ("okay next step please").
func (m *Matcher) Match(transcript string, commands []domain.Command) (domain.Command, bool) {
	text := strings.ToLower(strings.TrimSpace(transcript))
	if text == "" {
		return domain.Command{}, false
	}

	for _, cmd := range commands {
		for _, phrase := range cmd.Phrases {
			if !strings.Contains(text, strings.ToLower(phrase)) {
				continue
			}
			if !m.tryFire() {
				return domain.Command{}, false
			}
			return cmd, true
		}
	}
	return domain.Command{}, false
}

// tryFire records a fire unless one happened inside the window.
func (m *Matcher) tryFire() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if !m.lastFired.IsZero() && now.Sub(m.lastFired) < m.window {
		return false
	}
	m.lastFired = now
	return true
}
