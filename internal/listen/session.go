package listen

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/foodly/companion/internal/domain"
	"github.com/foodly/companion/internal/logger"
)

// SessionOption configures the recognition session.
type SessionOption func(*Session)

// WithRestartDelay sets the pause before restarting the engine after
// an unexpected end.
func WithRestartDelay(d time.Duration) SessionOption {
	return func(s *Session) { s.restartDelay = d }
}

// WithStateHook registers a callback invoked (without the session lock
// held) whenever the observable state changes. Used by the display.
func WithStateHook(fn func(domain.RecognitionState)) SessionOption {
	return func(s *Session) { s.onState = fn }
}

// Session presents a continuous, restartable listening capability over
// an engine that stops itself after silences, errors, and aborts.
//
// The listening *intent* — not the raw engine state — is the single
// source of truth: Start and Stop set intent and are idempotent, and
// the session converges the engine toward the intent within a bounded
// restart delay. Engine callbacks may arrive on any goroutine.
type Session struct {
	engine  domain.RecognitionEngine // nil when the capability is absent
	matcher *Matcher
	log     *logger.Logger

	restartDelay time.Duration
	onState      func(domain.RecognitionState)

	mu           sync.Mutex
	intent       bool // true while the caller wants to be listening
	state        domain.RecognitionState
	commands     []domain.Command // re-read on every result event
	finalText    string           // committed fragments of the utterance
	interimText  string           // provisional tail, rebuilt per event
	selfAborted  bool             // the next aborted error is ours
	restartTimer *time.Timer
	closed       bool
}

// NewSession wraps the engine. A nil engine yields an unsupported
// session on which every operation is a safe no-op — voice control
// degrades to manual navigation.
func NewSession(engine domain.RecognitionEngine, matcher *Matcher, log *logger.Logger, opts ...SessionOption) *Session {
	s := &Session{
		engine:       engine,
		matcher:      matcher,
		log:          log,
		restartDelay: domain.DefaultRestartDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	if engine != nil {
		engine.SetHandlers(s.handleResult, s.handleEnd, s.handleError)
	}
	return s
}

// Supported reports whether a recognition engine is available. Probed
// once at session creation.
func (s *Session) Supported() bool { return s.engine != nil }

// SetCommands atomically swaps the active command set. The recognition
// callback reads the current set on every event, so a swap is visible
// to the very next result — never a stale capture.
func (s *Session) SetCommands(commands []domain.Command) {
	s.mu.Lock()
	s.commands = commands
	s.mu.Unlock()
}

// Start sets listening intent and asks the engine to capture.
// Idempotent: calling while already starting or listening is a no-op,
// and "already started" engine errors are swallowed.
func (s *Session) Start() {
	if s.engine == nil {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.intent = true
	if s.state == domain.RecognitionStarting || s.state == domain.RecognitionListening {
		s.mu.Unlock()
		return
	}
	s.setStateLocked(domain.RecognitionStarting)
	s.mu.Unlock()

	if err := s.engine.Start(); err != nil && !errors.Is(err, domain.ErrAlreadyStarted) {
		s.log.Error("listen: engine start failed: %v", err)
		s.mu.Lock()
		s.intent = false
		s.setStateLocked(domain.RecognitionErrorStopped)
		s.mu.Unlock()
	}
}

// Stop clears listening intent and stops the engine. Idempotent.
func (s *Session) Stop() {
	if s.engine == nil {
		return
	}

	s.mu.Lock()
	s.intent = false
	s.cancelRestartLocked()
	s.finalText = ""
	s.interimText = ""
	s.setStateLocked(domain.RecognitionStopped)
	s.mu.Unlock()

	s.engine.Stop()
}

// Toggle flips listening intent.
func (s *Session) Toggle() {
	if s.IsListening() {
		s.Stop()
	} else {
		s.Start()
	}
}

// IsListening reflects intent, not raw engine state, so UI toggles are
// idempotent across engine restarts.
func (s *Session) IsListening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.intent
}

// State returns the current recognition state.
func (s *Session) State() domain.RecognitionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transcript returns the current utterance's combined final and
// interim text.
func (s *Session) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalText + s.interimText
}

// Close tears the session down. Callbacks are detached before the
// final abort so no late engine event fires into a disposed session.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.intent = false
	s.cancelRestartLocked()
	s.setStateLocked(domain.RecognitionStopped)
	s.mu.Unlock()

	if s.engine != nil {
		s.engine.SetHandlers(nil, nil, nil)
		s.engine.Abort()
	}
}

// ── Engine events ────────────────────────────────────────────────

// handleResult folds newly available result entries into the working
// transcript and immediately attempts a phrase match. Matching happens
// mid-utterance — waiting for finality adds too much latency while
// cooking.
func (s *Session) handleResult(ev domain.RecognitionEvent) {
	s.mu.Lock()
	if s.closed || !s.intent {
		s.mu.Unlock()
		return
	}
	// First result confirms the engine is actually capturing.
	if s.state == domain.RecognitionStarting {
		s.setStateLocked(domain.RecognitionListening)
	}

	// Only entries past the boundary index are new; finals accumulate,
	// the interim tail is rebuilt each event.
	interim := ""
	for i := ev.ResultIndex; i >= 0 && i < len(ev.Results); i++ {
		r := ev.Results[i]
		if r.IsFinal {
			s.finalText += r.Text
		} else {
			interim += r.Text
		}
	}
	s.interimText = interim

	working := s.finalText + s.interimText
	commands := s.commands
	s.mu.Unlock()

	cmd, ok := s.matcher.Match(working, commands)
	if !ok {
		return
	}
	s.log.Info("listen: matched command %q in %q", cmd.Name, strings.TrimSpace(working))

	// Clear the utterance and flush the engine's buffer so the same
	// words cannot re-match on the next interim event. The abort is
	// ours — its error event must stay benign.
	s.mu.Lock()
	s.finalText = ""
	s.interimText = ""
	s.selfAborted = true
	s.mu.Unlock()
	s.engine.Abort()

	if cmd.Effect != nil {
		cmd.Effect()
	}
}

// handleEnd restarts the engine after a short delay when the session
// still wants to listen. The delay keeps a failing engine from
// spinning, and the timer re-checks intent before acting so a Stop
// during the delay wins.
func (s *Session) handleEnd() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || !s.intent {
		return
	}

	// The engine run ending is the utterance boundary: the working
	// transcript starts fresh on the next run.
	s.finalText = ""
	s.interimText = ""

	s.setStateLocked(domain.RecognitionStarting)
	s.cancelRestartLocked()
	s.restartTimer = time.AfterFunc(s.restartDelay, s.restart)
}

func (s *Session) restart() {
	s.mu.Lock()
	if s.closed || !s.intent {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if err := s.engine.Start(); err != nil && !errors.Is(err, domain.ErrAlreadyStarted) {
		s.log.Error("listen: engine restart failed: %v", err)
		s.mu.Lock()
		s.intent = false
		s.setStateLocked(domain.RecognitionErrorStopped)
		s.mu.Unlock()
	}
}

// handleError classifies engine errors. No-speech timeouts and aborts
// the session itself triggered are part of normal operation; anything
// else ends the session until the user re-toggles.
func (s *Session) handleError(err domain.RecognitionError) {
	s.mu.Lock()

	switch err.Code {
	case domain.RecognitionErrNoSpeech:
		s.mu.Unlock()
		s.log.Debug("listen: no speech, keeping intent")
		return
	case domain.RecognitionErrAborted:
		if s.selfAborted {
			s.selfAborted = false
			s.mu.Unlock()
			s.log.Debug("listen: self-triggered abort")
			return
		}
	}

	s.intent = false
	s.cancelRestartLocked()
	s.setStateLocked(domain.RecognitionErrorStopped)
	s.mu.Unlock()

	s.log.Error("listen: fatal engine error: %v", &err)
}

// ── helpers ──────────────────────────────────────────────────────

// setStateLocked updates state and schedules the hook. Must be called
// with s.mu held; the hook runs without the lock.
func (s *Session) setStateLocked(state domain.RecognitionState) {
	if s.state == state {
		return
	}
	s.state = state
	if s.onState != nil {
		go s.onState(state)
	}
}

func (s *Session) cancelRestartLocked() {
	if s.restartTimer != nil {
		s.restartTimer.Stop()
		s.restartTimer = nil
	}
}
