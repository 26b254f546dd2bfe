package narrate

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tosone/minimp3"

	"github.com/foodly/companion/internal/domain"
	"github.com/foodly/companion/internal/logger"
)

// ClipOption configures the clip player.
type ClipOption func(*Clips)

// WithClipTimeout bounds the clip fetch.
func WithClipTimeout(d time.Duration) ClipOption {
	return func(c *Clips) { c.httpClient.Timeout = d }
}

// Compile-time interface check.
var _ domain.ClipPlayer = (*Clips)(nil)

// Clips plays pre-rendered MP3 narration clips served by the backend.
// Relative refs (the backend hands out "/static/audio/..." paths) are
// resolved against the configured origin.
type Clips struct {
	origin     string
	httpClient *http.Client
	sink       *Sink
	log        *logger.Logger

	mu  sync.Mutex
	gen uint64
}

// NewClips creates the clip backend.
func NewClips(origin string, sink *Sink, log *logger.Logger, opts ...ClipOption) *Clips {
	c := &Clips{
		origin:     strings.TrimRight(origin, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		sink:       sink,
		log:        log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Play implements domain.ClipPlayer. Fetch, decode, and playback run
// in the background; exactly one of onEnded/onError fires unless Stop
// intervenes first.
func (c *Clips) Play(ref string, onEnded func(), onError func(error)) {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	go func() {
		fail := func(err error) {
			if c.current(gen) && onError != nil {
				onError(err)
			}
		}

		url := c.Resolve(ref)
		data, err := c.fetch(url)
		if err != nil {
			fail(err)
			return
		}

		dec, pcm, err := minimp3.DecodeFull(data)
		if err != nil {
			fail(fmt.Errorf("decoding clip: %w", err))
			return
		}
		if dec.SampleRate != SampleRate || dec.Channels != ChannelCount {
			// The backend renders clips at the sink's format; anything
			// else plays at the wrong speed, so treat it as a failure.
			fail(fmt.Errorf("clip format %dHz/%dch, sink wants %dHz/%dch",
				dec.SampleRate, dec.Channels, SampleRate, ChannelCount))
			return
		}

		if !c.current(gen) {
			return // stopped while fetching
		}
		c.sink.Play(pcm, func(stopped bool) {
			if stopped || !c.current(gen) {
				return
			}
			if onEnded != nil {
				onEnded()
			}
		})
	}()
}

// Stop implements domain.ClipPlayer. Idempotent.
func (c *Clips) Stop() {
	c.mu.Lock()
	c.gen++
	c.mu.Unlock()
	c.sink.Stop()
}

// Pause implements domain.ClipPlayer.
func (c *Clips) Pause() { c.sink.Pause() }

// Resume implements domain.ClipPlayer.
func (c *Clips) Resume() { c.sink.Resume() }

// Resolve turns a possibly-relative audio ref into an absolute URL.
func (c *Clips) Resolve(ref string) string {
	if strings.Contains(ref, "://") {
		return ref
	}
	if !strings.HasPrefix(ref, "/") {
		ref = "/" + ref
	}
	return c.origin + ref
}

func (c *Clips) fetch(url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching clip: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("clip fetch returned %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading clip: %w", err)
	}
	c.log.Debug("narrate: fetched clip %s (%d bytes)", url, len(data))
	return data, nil
}

func (c *Clips) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen
}
