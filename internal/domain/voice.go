package domain

import "time"

// Command binds a set of spoken trigger phrases to an effect. Phrases
// are matched case-insensitively as substrings of the working
// transcript, in slice order. A command is immutable once built; the
// active command set is swapped atomically via the recognition session.
type Command struct {
	Name    string   // short identifier for logging
	Phrases []string // ordered triggers, most specific first
	Effect  func()   // zero-argument action, runs on match
}

// Transcript is one recognition result entry. Interim entries are
// provisional and may still change; final entries are committed.
type Transcript struct {
	Text    string
	IsFinal bool
}

// RecognitionEvent mirrors a continuous-recognition result callback.
// Results is the cumulative entry list for the current engine run;
// ResultIndex marks the boundary of entries new since the last event.
type RecognitionEvent struct {
	Results     []Transcript
	ResultIndex int
}

// RecognitionErrorCode classifies engine errors. The recognition
// session treats no-speech timeouts and self-triggered aborts as
// benign; everything else is fatal for the session.
type RecognitionErrorCode string

const (
	RecognitionErrNoSpeech     RecognitionErrorCode = "no-speech"
	RecognitionErrAborted      RecognitionErrorCode = "aborted"
	RecognitionErrNotAllowed   RecognitionErrorCode = "not-allowed"
	RecognitionErrAudioCapture RecognitionErrorCode = "audio-capture"
	RecognitionErrNetwork      RecognitionErrorCode = "network"
)

// RecognitionError is an error event from the recognition engine.
type RecognitionError struct {
	Code    RecognitionErrorCode
	Message string
}

// Error implements the error interface.
func (e *RecognitionError) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Message
}

// RecognitionState is the observable state of a recognition session.
type RecognitionState int

const (
	RecognitionStopped RecognitionState = iota
	RecognitionStarting
	RecognitionListening
	RecognitionErrorStopped
)

// String returns a human-readable recognition state.
func (s RecognitionState) String() string {
	switch s {
	case RecognitionStopped:
		return "stopped"
	case RecognitionStarting:
		return "starting"
	case RecognitionListening:
		return "listening"
	case RecognitionErrorStopped:
		return "error-stopped"
	default:
		return "unknown"
	}
}

// NarrationState is the observable state of the narration player.
type NarrationState int

const (
	NarrationIdle NarrationState = iota
	NarrationSpeaking
)

// String returns a human-readable narration state.
func (s NarrationState) String() string {
	switch s {
	case NarrationIdle:
		return "idle"
	case NarrationSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// SessionCursor is the mutable position of a cooking session. It is
// owned exclusively by the session controller; callers see copies.
type SessionCursor struct {
	CurrentStepIndex   int
	CompletedSteps     map[int]bool
	AutoAdvanceEnabled bool
	IsAutoPlaying      bool
}

// Voice describes one synthesis voice from the backend catalog.
type Voice struct {
	ID          string
	Name        string
	Locale      string
	Gender      string
	Description string
}

// Utterance is one synthesis request with per-utterance callbacks.
// Callbacks may be nil. OnEnd fires only on natural completion, never
// after a cancel.
type Utterance struct {
	Text   string
	Voice  string  // voice ID, empty for the engine default
	Rate   float64 // 1.0 = normal
	Pitch  float64 // 1.0 = normal
	Volume float64 // 0..1

	OnStart func()
	OnEnd   func()
	OnError func(error)
}

// Tunable defaults observed in the original client. Both are
// overridable through configuration.
const (
	// DefaultThrottleWindow collapses duplicate command matches from
	// overlapping interim and final fragments of one utterance.
	DefaultThrottleWindow = 400 * time.Millisecond

	// DefaultAdvancePause is the breath between a step's narration
	// finishing and the next step starting in auto-play.
	DefaultAdvancePause = 3 * time.Second

	// DefaultRestartDelay spaces engine restarts after an unexpected
	// end so a failing engine cannot spin in a tight loop.
	DefaultRestartDelay = 100 * time.Millisecond
)
