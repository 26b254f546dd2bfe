package domain

import "context"

// RecipeSource provides recipes. The backend is an external
// collaborator; implementations can be in-memory or HTTP-backed.
type RecipeSource interface {
	List(ctx context.Context) ([]RecipeSummary, error)
	Get(ctx context.Context, id string) (*Recipe, error)
}

// RecognitionEngine is the platform speech-to-text capability. The
// engine is assumed to stop itself after silences, errors, or explicit
// aborts; the recognition session layers continuity on top.
//
// Handlers are registered before Start and detached (all nil) at
// teardown so no late event fires into a disposed session. Engines may
// deliver events from any goroutine.
type RecognitionEngine interface {
	// Start begins capturing. Returns ErrAlreadyStarted if a run is
	// already in progress.
	Start() error
	// Stop ends the current run gracefully; buffered results may still
	// be delivered before the end event.
	Stop()
	// Abort ends the current run immediately, discarding the utterance
	// buffer. Emits an aborted error followed by the end event.
	Abort()
	// SetHandlers registers the event callbacks. Nil detaches.
	SetHandlers(onResult func(RecognitionEvent), onEnd func(), onError func(RecognitionError))
}

// SpeechSynthesizer is the text-to-speech capability used as the
// narration fallback backend.
type SpeechSynthesizer interface {
	// Speak synthesizes and plays the utterance asynchronously.
	Speak(u *Utterance)
	// Cancel stops any in-progress synthesis and playback. Pending
	// utterance callbacks become inert. Idempotent.
	Cancel()
	Pause()
	Resume()
	// Voices lists the available synthesis voices.
	Voices() []Voice
}

// ClipPlayer plays pre-rendered narration clips by reference. It is
// the preferred narration backend when a step carries an audio ref.
type ClipPlayer interface {
	// Play resolves and plays the clip asynchronously. Exactly one of
	// onEnded (natural completion) or onError fires, unless Stop is
	// called first, in which case neither does.
	Play(ref string, onEnded func(), onError func(error))
	// Stop cancels playback and renders pending callbacks inert.
	Stop()
	Pause()
	Resume()
}

// PrefStore persists user preferences as plain string key/value pairs.
// Injected into the session controller so there is no hidden
// process-wide state.
type PrefStore interface {
	Get(key string) (string, bool)
	Set(key, value string) error
}
