package listen

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	audiotranscriber "github.com/sklyt/whisper/pkg"

	"github.com/foodly/companion/internal/domain"
	"github.com/foodly/companion/internal/logger"
)

// WhisperOption configures the whisper engine.
type WhisperOption func(*WhisperEngine)

// WithChunkDuration sets how long each recorded chunk lasts.
func WithChunkDuration(d time.Duration) WhisperOption {
	return func(e *WhisperEngine) { e.chunk = d }
}

// WithSilenceChunks sets how many consecutive empty chunks end the
// current run once speech has been heard.
func WithSilenceChunks(n int) WhisperOption {
	return func(e *WhisperEngine) { e.maxSilent = n }
}

// WithTempDir sets the directory for temporary WAV files.
func WithTempDir(dir string) WhisperOption {
	return func(e *WhisperEngine) { e.tempDir = dir }
}

// WithEchoGuard installs a probe for "narration is audible right now".
// Chunks recorded while it reports true are discarded so the companion
// does not transcribe its own voice. Best-effort mitigation only.
func WithEchoGuard(narrating func() bool) WhisperOption {
	return func(e *WhisperEngine) { e.narrating = narrating }
}

// envAnnotation matches whisper environmental annotations like
// "(keyboard clicking)" or "[laughter]".
var envAnnotation = regexp.MustCompile(`[\(\[][a-zA-Z][a-zA-Z\s]*[\)\]]`)

// WhisperEngine implements domain.RecognitionEngine over a local
// whisper-cpp binary. Each run records fixed-length microphone chunks,
// transcribes them, and emits every non-empty chunk as a committed
// (final) result entry; a run of empty chunks ends the utterance and
// the run. The recognition session restarts it for continuity.
type WhisperEngine struct {
	bin       string
	model     string
	tempDir   string
	chunk     time.Duration
	maxSilent int
	narrating func() bool
	log       *logger.Logger

	mu       sync.Mutex
	onResult func(domain.RecognitionEvent)
	onEnd    func()
	onError  func(domain.RecognitionError)
	running  bool
	aborted  bool
	cancel   context.CancelFunc
}

// NewWhisperEngine creates the local recognition engine. Returns an
// error when the whisper binary or model is unreachable, which callers
// treat as the capability being unsupported.
func NewWhisperEngine(bin, model string, log *logger.Logger, opts ...WhisperOption) (*WhisperEngine, error) {
	e := &WhisperEngine{
		bin:       bin,
		model:     model,
		tempDir:   ".foodly-stt",
		chunk:     1 * time.Second,
		maxSilent: 2,
		log:       log,
	}
	for _, opt := range opts {
		opt(e)
	}

	if _, err := exec.LookPath(e.bin); err != nil {
		return nil, fmt.Errorf("whisper binary %q: %w", e.bin, err)
	}
	if _, err := os.Stat(e.model); err != nil {
		return nil, fmt.Errorf("whisper model %q: %w", e.model, err)
	}
	if err := os.MkdirAll(e.tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating temp dir: %w", err)
	}
	return e, nil
}

// SetHandlers implements domain.RecognitionEngine.
func (e *WhisperEngine) SetHandlers(onResult func(domain.RecognitionEvent), onEnd func(), onError func(domain.RecognitionError)) {
	e.mu.Lock()
	e.onResult = onResult
	e.onEnd = onEnd
	e.onError = onError
	e.mu.Unlock()
}

// Start implements domain.RecognitionEngine.
func (e *WhisperEngine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return domain.ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.running = true
	e.aborted = false

	go e.run(ctx)
	return nil
}

// Stop implements domain.RecognitionEngine.
func (e *WhisperEngine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running && e.cancel != nil {
		e.cancel()
	}
}

// Abort implements domain.RecognitionEngine. The utterance buffer is
// discarded and an aborted error precedes the end event.
func (e *WhisperEngine) Abort() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running && e.cancel != nil {
		e.aborted = true
		e.cancel()
	}
}

// run is one engine run: chunked record-transcribe until silence,
// cancellation, or abort.
func (e *WhisperEngine) run(ctx context.Context) {
	defer e.finish()

	var results []domain.Transcript
	silent := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if e.narrating != nil && e.narrating() {
			sleepCtx(ctx, 200*time.Millisecond)
			continue
		}

		text := e.recordChunk(ctx, e.chunk)

		// The chunk is contaminated if narration started mid-recording.
		if e.narrating != nil && e.narrating() {
			e.log.Debug("whisper: discarding chunk, narration audible")
			continue
		}

		text = cleanTranscription(text)
		if text == "" {
			silent++
			if len(results) > 0 && silent >= e.maxSilent {
				e.log.Debug("whisper: silence, ending run")
				return
			}
			continue
		}
		silent = 0

		e.log.Debug("whisper: chunk %q", text)
		results = append(results, domain.Transcript{Text: text + " ", IsFinal: true})

		e.mu.Lock()
		onResult := e.onResult
		e.mu.Unlock()
		if onResult != nil {
			ev := domain.RecognitionEvent{
				Results:     append([]domain.Transcript(nil), results...),
				ResultIndex: len(results) - 1,
			}
			onResult(ev)
		}
	}
}

// finish marks the run done and delivers abort/end events in order.
func (e *WhisperEngine) finish() {
	e.mu.Lock()
	e.running = false
	e.cancel = nil
	aborted := e.aborted
	e.aborted = false
	onEnd := e.onEnd
	onError := e.onError
	e.mu.Unlock()

	if aborted && onError != nil {
		onError(domain.RecognitionError{Code: domain.RecognitionErrAborted})
	}
	if onEnd != nil {
		onEnd()
	}
}

// recordChunk does one record-transcribe cycle and returns the text.
func (e *WhisperEngine) recordChunk(ctx context.Context, duration time.Duration) string {
	var result string
	var wg sync.WaitGroup
	wg.Add(1)

	callback := func(text string) {
		result = text
		wg.Done()
	}

	verbose := e.log.GetLevel() >= logger.LevelVerbose
	t, err := audiotranscriber.NewTranscriber(e.bin, e.model, e.tempDir, "wav", callback, verbose)
	if err != nil {
		e.log.Error("whisper: transcriber init failed: %v", err)
		sleepCtx(ctx, 2*time.Second)
		return ""
	}

	if err := t.Start(); err != nil {
		e.log.Error("whisper: recording start failed: %v", err)
		sleepCtx(ctx, 2*time.Second)
		return ""
	}

	select {
	case <-time.After(duration):
	case <-ctx.Done():
		t.Stop()
		wg.Wait()
		return ""
	}

	t.Stop()
	wg.Wait()
	return result
}

// cleanTranscription normalizes whitespace and strips whisper
// artifacts: bracketed annotations, timestamp prefixes, and known
// silence hallucinations.
func cleanTranscription(s string) string {
	s = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)
	s = envAnnotation.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), " ")

	// Timestamp prefix like "[00:00:00.000 --> 00:00:05.000]".
	if strings.HasPrefix(s, "[") {
		if idx := strings.Index(s, "]"); idx != -1 && idx < 40 {
			s = strings.TrimSpace(s[idx+1:])
		}
	}

	hallucinations := []string{
		"...", "you", "thank you.", "thanks for watching!",
		"thank you for watching.", "bye.", "bye!", "the end.",
		"[blank_audio]", "[blank audio]",
	}
	lower := strings.ToLower(s)
	for _, h := range hallucinations {
		if lower == h {
			return ""
		}
	}
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}
