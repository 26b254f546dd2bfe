package narrate

import (
	"context"
	"sync"

	"github.com/foodly/companion/internal/domain"
	"github.com/foodly/companion/internal/logger"
)

// synthClient is the HTTP synthesis surface Synth needs. Satisfied by
// *AzureClient.
type synthClient interface {
	Synthesize(ctx context.Context, req SynthRequest) ([]byte, error)
}

// SynthOption configures the synthesizer.
type SynthOption func(*Synth)

// WithVoiceCatalog overrides the voice catalog.
func WithVoiceCatalog(voices []domain.Voice) SynthOption {
	return func(s *Synth) { s.catalog = voices }
}

// WithDefaultVoice sets the voice used when an utterance names none.
func WithDefaultVoice(id string) SynthOption {
	return func(s *Synth) { s.defaultVoice = id }
}

// Compile-time interface check.
var _ domain.SpeechSynthesizer = (*Synth)(nil)

// Synth implements domain.SpeechSynthesizer: synthesize over HTTP
// (with caching), play through the shared sink. Cancel renders any
// in-flight utterance's callbacks inert via a generation counter.
type Synth struct {
	client       synthClient
	sink         *Sink
	cache        *Cache
	catalog      []domain.Voice
	defaultVoice string
	log          *logger.Logger

	mu  sync.Mutex
	gen uint64
}

// NewSynth creates the synthesis backend.
func NewSynth(client synthClient, sink *Sink, cache *Cache, log *logger.Logger, opts ...SynthOption) *Synth {
	s := &Synth{
		client:       client,
		sink:         sink,
		cache:        cache,
		catalog:      DefaultVoiceCatalog,
		defaultVoice: "en-US-ChristopherNeural",
		log:          log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Speak implements domain.SpeechSynthesizer. Asynchronous; the
// utterance callbacks fire from a background goroutine.
func (s *Synth) Speak(u *domain.Utterance) {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	voice := u.Voice
	if voice == "" {
		voice = s.defaultVoice
	}

	go func() {
		audio, err := s.synthesizeCached(u, voice)
		if err != nil {
			if s.current(gen) && u.OnError != nil {
				u.OnError(err)
			}
			return
		}
		pcm, err := extractPCM(audio)
		if err != nil {
			if s.current(gen) && u.OnError != nil {
				u.OnError(err)
			}
			return
		}
		if !s.current(gen) {
			return // cancelled while synthesizing
		}
		if u.OnStart != nil {
			u.OnStart()
		}
		s.sink.Play(pcm, func(stopped bool) {
			if stopped || !s.current(gen) {
				return
			}
			if u.OnEnd != nil {
				u.OnEnd()
			}
		})
	}()
}

// Cancel implements domain.SpeechSynthesizer. Idempotent.
func (s *Synth) Cancel() {
	s.mu.Lock()
	s.gen++
	s.mu.Unlock()
	s.sink.Stop()
}

// Pause implements domain.SpeechSynthesizer.
func (s *Synth) Pause() { s.sink.Pause() }

// Resume implements domain.SpeechSynthesizer.
func (s *Synth) Resume() { s.sink.Resume() }

// Voices implements domain.SpeechSynthesizer.
func (s *Synth) Voices() []domain.Voice {
	return append([]domain.Voice(nil), s.catalog...)
}

func (s *Synth) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen
}

func (s *Synth) synthesizeCached(u *domain.Utterance, voice string) ([]byte, error) {
	req := SynthRequest{
		Text:   u.Text,
		Voice:  voice,
		Rate:   u.Rate,
		Pitch:  u.Pitch,
		Volume: u.Volume,
	}
	if s.cache != nil {
		if audio, ok := s.cache.Get(req); ok {
			return audio, nil
		}
	}
	audio, err := s.client.Synthesize(context.Background(), req)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Put(req, audio)
	}
	return audio, nil
}

// Prefetch pre-synthesizes texts into the cache so playback starts
// instantly when they are spoken. Renders at the narration prosody so
// the entries are the ones the player's Speaks will actually hit.
// Non-blocking.
func (s *Synth) Prefetch(texts ...string) {
	if s.cache == nil {
		return
	}
	for _, text := range texts {
		req := SynthRequest{
			Text:   text,
			Voice:  s.defaultVoice,
			Rate:   defaultRate,
			Pitch:  defaultPitch,
			Volume: defaultVolume,
		}
		if text == "" || s.cache.Has(req) {
			continue
		}
		go func(req SynthRequest) {
			audio, err := s.client.Synthesize(context.Background(), req)
			if err != nil {
				s.log.Debug("narrate: prefetch failed: %v", err)
				return
			}
			s.cache.Put(req, audio)
		}(req)
	}
}
