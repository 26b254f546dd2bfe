package listen

import (
	"context"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/foodly/companion/internal/domain"
	"github.com/foodly/companion/internal/logger"
)

// StreamOption configures the streaming engine.
type StreamOption func(*StreamEngine)

// WithDialTimeout bounds the websocket dial.
func WithDialTimeout(d time.Duration) StreamOption {
	return func(e *StreamEngine) { e.dialTimeout = d }
}

// WithSendQueue sets the outbound audio queue capacity.
func WithSendQueue(n int) StreamOption {
	return func(e *StreamEngine) { e.queueCap = n }
}

// WithCapture attaches a microphone source. The engine runs it for the
// lifetime of each recognition run, pumping its frames to the service.
func WithCapture(c CaptureSource) StreamOption {
	return func(e *StreamEngine) { e.capture = c }
}

// streamMessage is one transcript event from the transcription
// service: interim and final text plus provider errors.
type streamMessage struct {
	Type string `json:"type"` // "interim" | "final" | "error"
	Text string `json:"text"`
}

// StreamEngine implements domain.RecognitionEngine over a live
// websocket transcription service. The attached CaptureSource pumps
// PCM16 microphone audio into SendAudio for each run; interim results
// rewrite the provisional tail entry, finals commit it.
type StreamEngine struct {
	url         string
	apiKey      string
	dialTimeout time.Duration
	queueCap    int
	capture     CaptureSource // nil when a caller feeds SendAudio itself
	log         *logger.Logger

	mu         sync.Mutex
	onResult   func(domain.RecognitionEvent)
	onEnd      func()
	onError    func(domain.RecognitionError)
	running    bool
	aborted    bool
	cancel     context.CancelFunc
	sendQ      chan []byte
	results    []domain.Transcript
	captureErr error
}

// NewStreamEngine creates the remote recognition engine.
func NewStreamEngine(url, apiKey string, log *logger.Logger, opts ...StreamOption) *StreamEngine {
	e := &StreamEngine{
		url:         url,
		apiKey:      apiKey,
		dialTimeout: 10 * time.Second,
		queueCap:    8,
		log:         log,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetHandlers implements domain.RecognitionEngine.
func (e *StreamEngine) SetHandlers(onResult func(domain.RecognitionEvent), onEnd func(), onError func(domain.RecognitionError)) {
	e.mu.Lock()
	e.onResult = onResult
	e.onEnd = onEnd
	e.onError = onError
	e.mu.Unlock()
}

// Start implements domain.RecognitionEngine.
func (e *StreamEngine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return domain.ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.running = true
	e.aborted = false
	e.results = nil
	e.captureErr = nil
	e.sendQ = make(chan []byte, e.queueCap)

	go e.run(ctx)
	return nil
}

// Stop implements domain.RecognitionEngine.
func (e *StreamEngine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running && e.cancel != nil {
		e.cancel()
	}
}

// Abort implements domain.RecognitionEngine.
func (e *StreamEngine) Abort() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running && e.cancel != nil {
		e.aborted = true
		e.cancel()
	}
}

// SendAudio queues one PCM16 frame for the service. Drops the frame
// under backpressure rather than stalling the capture path.
func (e *StreamEngine) SendAudio(pcm []byte) bool {
	e.mu.Lock()
	q := e.sendQ
	running := e.running
	e.mu.Unlock()

	if !running || q == nil {
		return false
	}
	select {
	case q <- pcm:
		return true
	default:
		return false
	}
}

func (e *StreamEngine) run(ctx context.Context) {
	dialCtx, cancel := context.WithTimeout(ctx, e.dialTimeout)
	conn, _, err := websocket.Dial(dialCtx, e.url, &websocket.DialOptions{
		HTTPHeader: e.authHeader(),
	})
	cancel()
	if err != nil {
		e.log.Error("stream: dial failed: %v", err)
		e.finish(&domain.RecognitionError{Code: domain.RecognitionErrNetwork, Message: err.Error()})
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	go e.writeLoop(ctx, conn)
	if e.capture != nil {
		go e.captureLoop(ctx)
	}

	for {
		var msg streamMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if ctx.Err() != nil {
				// Stop, Abort, or a dead microphone ended the run.
				e.mu.Lock()
				capErr := e.captureErr
				e.captureErr = nil
				e.mu.Unlock()
				if capErr != nil {
					e.finish(&domain.RecognitionError{Code: domain.RecognitionErrAudioCapture, Message: capErr.Error()})
				} else {
					e.finish(nil)
				}
				return
			}
			e.log.Error("stream: read failed: %v", err)
			e.finish(&domain.RecognitionError{Code: domain.RecognitionErrNetwork, Message: err.Error()})
			return
		}
		e.handleMessage(msg)
	}
}

// captureLoop feeds microphone frames into the send queue. A device
// failure ends the whole run so the session can surface it.
func (e *StreamEngine) captureLoop(ctx context.Context) {
	err := e.capture.Run(ctx, e.SendAudio)
	if err == nil || ctx.Err() != nil {
		return
	}
	e.log.Error("stream: capture failed: %v", err)
	e.mu.Lock()
	e.captureErr = err
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (e *StreamEngine) writeLoop(ctx context.Context, conn *websocket.Conn) {
	e.mu.Lock()
	q := e.sendQ
	e.mu.Unlock()
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-q:
			if err := conn.Write(ctx, websocket.MessageBinary, frame); err != nil {
				e.log.Debug("stream: write failed: %v", err)
				return
			}
		}
	}
}

// handleMessage folds one service message into the cumulative result
// list. Interims rewrite the provisional tail; finals commit it.
func (e *StreamEngine) handleMessage(msg streamMessage) {
	e.mu.Lock()
	switch msg.Type {
	case "interim", "final":
		entry := domain.Transcript{Text: msg.Text, IsFinal: msg.Type == "final"}
		n := len(e.results)
		if n > 0 && !e.results[n-1].IsFinal {
			e.results[n-1] = entry
		} else {
			e.results = append(e.results, entry)
		}
		ev := domain.RecognitionEvent{
			Results:     append([]domain.Transcript(nil), e.results...),
			ResultIndex: len(e.results) - 1,
		}
		onResult := e.onResult
		e.mu.Unlock()
		if onResult != nil {
			onResult(ev)
		}
	case "error":
		onError := e.onError
		e.mu.Unlock()
		if onError != nil {
			onError(domain.RecognitionError{Code: domain.RecognitionErrNetwork, Message: msg.Text})
		}
	default:
		e.mu.Unlock()
	}
}

// finish marks the run done and delivers trailing events in order.
func (e *StreamEngine) finish(fatal *domain.RecognitionError) {
	e.mu.Lock()
	e.running = false
	e.cancel = nil
	e.sendQ = nil
	aborted := e.aborted
	e.aborted = false
	onEnd := e.onEnd
	onError := e.onError
	e.mu.Unlock()

	if onError != nil {
		if aborted {
			onError(domain.RecognitionError{Code: domain.RecognitionErrAborted})
		} else if fatal != nil {
			onError(*fatal)
		}
	}
	if onEnd != nil {
		onEnd()
	}
}

func (e *StreamEngine) authHeader() http.Header {
	h := http.Header{}
	if e.apiKey != "" {
		h.Set("Authorization", "Token "+e.apiKey)
	}
	return h
}
