package listen

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/foodly/companion/internal/domain"
	"github.com/foodly/companion/internal/logger"
)

// fakeEngine is a scriptable recognition engine.
type fakeEngine struct {
	mu       sync.Mutex
	running  bool
	starts   int
	stops    int
	aborts   int
	onResult func(domain.RecognitionEvent)
	onEnd    func()
	onError  func(domain.RecognitionError)
}

func (f *fakeEngine) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return domain.ErrAlreadyStarted
	}
	f.running = true
	f.starts++
	return nil
}

func (f *fakeEngine) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
	f.stops++
}

func (f *fakeEngine) Abort() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
	f.aborts++
}

func (f *fakeEngine) SetHandlers(onResult func(domain.RecognitionEvent), onEnd func(), onError func(domain.RecognitionError)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onResult = onResult
	f.onEnd = onEnd
	f.onError = onError
}

func (f *fakeEngine) emit(ev domain.RecognitionEvent) {
	f.mu.Lock()
	h := f.onResult
	f.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

func (f *fakeEngine) emitEnd() {
	f.mu.Lock()
	f.running = false
	h := f.onEnd
	f.mu.Unlock()
	if h != nil {
		h()
	}
}

func (f *fakeEngine) emitError(code domain.RecognitionErrorCode) {
	f.mu.Lock()
	h := f.onError
	f.mu.Unlock()
	if h != nil {
		h(domain.RecognitionError{Code: code})
	}
}

func (f *fakeEngine) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

func (f *fakeEngine) abortCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.aborts
}

// interim builds a single-entry interim event, the shape a streaming
// engine produces while an utterance is still provisional.
func interim(text string) domain.RecognitionEvent {
	return domain.RecognitionEvent{
		Results:     []domain.Transcript{{Text: text}},
		ResultIndex: 0,
	}
}

func setupSession(t *testing.T) (*Session, *fakeEngine) {
	t.Helper()
	log := logger.New(logger.LevelOff, nil)
	eng := &fakeEngine{}
	s := NewSession(eng, NewMatcher(WithThrottleWindow(0)), log,
		WithRestartDelay(time.Millisecond),
	)
	t.Cleanup(s.Close)
	return s, eng
}

// waitFor polls cond for up to a second.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestStartIsIdempotent(t *testing.T) {
	s, eng := setupSession(t)

	s.Start()
	s.Start()
	s.Start()

	if got := eng.startCount(); got != 1 {
		t.Fatalf("engine started %d times, want 1", got)
	}
	if !s.IsListening() {
		t.Fatal("session should be listening")
	}
}

func TestUnsupportedSessionIsInert(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	s := NewSession(nil, NewMatcher(), log)

	if s.Supported() {
		t.Fatal("nil engine should be unsupported")
	}
	// None of these may panic.
	s.Start()
	s.Stop()
	s.Toggle()
	s.Close()
	if s.IsListening() {
		t.Fatal("unsupported session can never be listening")
	}
}

func TestTranscriptAccumulation(t *testing.T) {
	s, eng := setupSession(t)
	s.Start()

	// Final fragments accumulate, the interim tail is rebuilt.
	eng.emit(domain.RecognitionEvent{
		Results:     []domain.Transcript{{Text: "chop the ", IsFinal: true}},
		ResultIndex: 0,
	})
	eng.emit(domain.RecognitionEvent{
		Results: []domain.Transcript{
			{Text: "chop the ", IsFinal: true},
			{Text: "onions"},
		},
		ResultIndex: 1,
	})

	if got := s.Transcript(); got != "chop the onions" {
		t.Fatalf("transcript = %q, want %q", got, "chop the onions")
	}

	// The utterance ends with the engine run.
	eng.emitEnd()
	if got := s.Transcript(); got != "" {
		t.Fatalf("transcript after end = %q, want empty", got)
	}
}

func TestCommandFiresOnceAndFlushesUtterance(t *testing.T) {
	s, eng := setupSession(t)

	var fired atomic.Int32
	s.SetCommands([]domain.Command{
		{Name: "next", Phrases: []string{"next", "skip"}, Effect: func() { fired.Add(1) }},
	})
	s.Start()

	// Partial fragment: no match, no effect.
	eng.emit(interim("nex"))
	if got := fired.Load(); got != 0 {
		t.Fatalf("effect fired %d times on partial fragment, want 0", got)
	}

	// Full utterance matches mid-utterance, without waiting for a final.
	eng.emit(interim("next step please"))
	if got := fired.Load(); got != 1 {
		t.Fatalf("effect fired %d times, want 1", got)
	}
	if got := s.Transcript(); got != "" {
		t.Fatalf("transcript after match = %q, want empty", got)
	}
	if got := eng.abortCount(); got != 1 {
		t.Fatalf("engine aborted %d times, want 1 (utterance flush)", got)
	}

	// The session's own abort is benign and the engine restarts.
	eng.emitError(domain.RecognitionErrAborted)
	if !s.IsListening() {
		t.Fatal("self-triggered abort must preserve listening intent")
	}
	eng.emitEnd()
	waitFor(t, func() bool { return eng.startCount() == 2 }, "engine did not restart after flush")
}

func TestRestartAfterUnexpectedEnd(t *testing.T) {
	s, eng := setupSession(t)
	s.Start()

	eng.emitEnd()
	waitFor(t, func() bool { return eng.startCount() == 2 }, "engine did not restart after end")
	if !s.IsListening() {
		t.Fatal("session should still be listening")
	}
}

func TestStopDuringRestartDelayWins(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	eng := &fakeEngine{}
	s := NewSession(eng, NewMatcher(), log, WithRestartDelay(50*time.Millisecond))
	t.Cleanup(s.Close)

	s.Start()
	eng.emitEnd()
	s.Stop()

	time.Sleep(100 * time.Millisecond)
	if got := eng.startCount(); got != 1 {
		t.Fatalf("engine started %d times, want 1 (restart cancelled)", got)
	}
	if s.IsListening() {
		t.Fatal("session should be stopped")
	}
}

func TestBenignErrorsPreserveIntent(t *testing.T) {
	s, eng := setupSession(t)
	s.Start()

	eng.emitError(domain.RecognitionErrNoSpeech)
	if !s.IsListening() {
		t.Fatal("no-speech timeout must not clear intent")
	}
}

func TestFatalErrorStopsSession(t *testing.T) {
	s, eng := setupSession(t)
	s.Start()

	eng.emitError(domain.RecognitionErrNotAllowed)
	if s.IsListening() {
		t.Fatal("fatal error must force intent off")
	}
	if got := s.State(); got != domain.RecognitionErrorStopped {
		t.Fatalf("state = %v, want error-stopped", got)
	}

	// No automatic retry: an end event must not reschedule a start.
	eng.emitEnd()
	time.Sleep(20 * time.Millisecond)
	if got := eng.startCount(); got != 1 {
		t.Fatalf("engine started %d times after fatal error, want 1", got)
	}
}

func TestCommandSwapIsVisibleToNextEvent(t *testing.T) {
	s, eng := setupSession(t)

	var first, second atomic.Int32
	s.SetCommands([]domain.Command{
		{Name: "first", Phrases: []string{"continue"}, Effect: func() { first.Add(1) }},
	})
	s.Start()

	s.SetCommands([]domain.Command{
		{Name: "second", Phrases: []string{"continue"}, Effect: func() { second.Add(1) }},
	})
	eng.emit(interim("continue"))

	if first.Load() != 0 || second.Load() != 1 {
		t.Fatalf("fired first=%d second=%d, want 0/1 (no stale capture)", first.Load(), second.Load())
	}
}

func TestCloseDetachesCallbacks(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	eng := &fakeEngine{}
	s := NewSession(eng, NewMatcher(), log, WithRestartDelay(time.Millisecond))

	s.Start()
	s.Close()

	eng.mu.Lock()
	detached := eng.onResult == nil && eng.onEnd == nil && eng.onError == nil
	aborts := eng.aborts
	eng.mu.Unlock()

	if !detached {
		t.Fatal("close must detach engine callbacks before the final abort")
	}
	if aborts != 1 {
		t.Fatalf("engine aborted %d times on close, want 1", aborts)
	}
}

func TestToggleFlipsIntent(t *testing.T) {
	s, _ := setupSession(t)

	s.Toggle()
	if !s.IsListening() {
		t.Fatal("toggle from stopped should start listening")
	}
	s.Toggle()
	if s.IsListening() {
		t.Fatal("toggle from listening should stop")
	}
}
