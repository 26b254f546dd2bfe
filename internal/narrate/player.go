package narrate

import (
	"sync"

	"github.com/foodly/companion/internal/domain"
	"github.com/foodly/companion/internal/logger"
)

// PlayerOption configures the narration player.
type PlayerOption func(*Player)

// WithVoice sets the synthesis voice for all narration.
func WithVoice(id string) PlayerOption {
	return func(p *Player) { p.voice = id }
}

// WithProsody overrides the fixed narration prosody.
func WithProsody(rate, pitch, volume float64) PlayerOption {
	return func(p *Player) {
		p.rate, p.pitch, p.volume = rate, pitch, volume
	}
}

// Narration prosody, shared with Prefetch so pre-warmed cache entries
// land under the same key later Speaks look up.
const (
	defaultRate   = 0.95
	defaultPitch  = 1.0
	defaultVolume = 1.0
)

type backendKind int

const (
	backendNone backendKind = iota
	backendClip
	backendSynth
)

// Player speaks text through one of two backends — a pre-rendered
// server clip (preferred, for voice consistency) or on-device
// synthesis (fallback) — behind one speaking/not-speaking signal.
//
// Every error path degrades to the fallback backend or to a silent
// not-speaking state; nothing propagates to the caller. A generation
// counter makes callbacks of superseded speaks inert, so onComplete
// fires exactly once per successful Speak, never after Stop, and never
// twice when a fallback substitution happens.
type Player struct {
	synth domain.SpeechSynthesizer // nil when synthesis is unavailable
	clips domain.ClipPlayer        // nil when clip playback is unavailable
	log   *logger.Logger

	voice  string
	rate   float64
	pitch  float64
	volume float64

	mu     sync.Mutex
	gen    uint64
	state  domain.NarrationState
	active backendKind
}

// NewPlayer creates a narration player. Either backend may be nil;
// with both nil the player is unsupported and silently skips.
func NewPlayer(synth domain.SpeechSynthesizer, clips domain.ClipPlayer, log *logger.Logger, opts ...PlayerOption) *Player {
	p := &Player{
		synth: synth,
		clips: clips,
		log:   log,
		// Fixed moderate defaults tuned for clarity while cooking.
		rate:   defaultRate,
		pitch:  defaultPitch,
		volume: defaultVolume,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Supported reports whether any narration backend is available.
func (p *Player) Supported() bool {
	return p.synth != nil || p.clips != nil
}

// IsSpeaking is the unified speaking signal across both backends.
func (p *Player) IsSpeaking() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == domain.NarrationSpeaking
}

// State returns the narration state.
func (p *Player) State() domain.NarrationState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Speak voices text, preferring the pre-rendered clip when audioRef is
// non-empty and falling back to synthesis on any playback failure. Any
// prior playback on either backend is fully stopped first, keeping the
// single-speaker invariant. onComplete may be nil.
func (p *Player) Speak(text, audioRef string, onComplete func()) {
	p.mu.Lock()
	p.gen++
	gen := p.gen
	p.state = domain.NarrationSpeaking
	p.active = backendNone
	p.mu.Unlock()

	p.stopBackends()

	var once sync.Once
	complete := func() {
		p.mu.Lock()
		if p.gen != gen {
			p.mu.Unlock()
			return
		}
		p.state = domain.NarrationIdle
		p.active = backendNone
		p.mu.Unlock()
		once.Do(func() {
			if onComplete != nil {
				onComplete()
			}
		})
	}

	if audioRef != "" && p.clips != nil {
		p.setActive(gen, backendClip)
		p.clips.Play(audioRef, complete, func(err error) {
			p.log.Warn("narrate: clip failed, falling back to synthesis: %v", err)
			if !p.current(gen) {
				return
			}
			p.speakSynth(gen, text, complete)
		})
		return
	}
	p.speakSynth(gen, text, complete)
}

// speakSynth runs the synthesis path, or goes silently idle when the
// capability is missing or errors.
func (p *Player) speakSynth(gen uint64, text string, complete func()) {
	if p.synth == nil {
		p.goIdle(gen)
		return
	}
	p.setActive(gen, backendSynth)
	p.synth.Speak(&domain.Utterance{
		Text:   text,
		Voice:  p.voice,
		Rate:   p.rate,
		Pitch:  p.pitch,
		Volume: p.volume,
		OnEnd:  complete,
		OnError: func(err error) {
			p.log.Warn("narrate: synthesis failed, skipping narration: %v", err)
			p.goIdle(gen)
		},
	})
}

// Stop cancels both backends unconditionally and resets to
// not-speaking. Idempotent, safe before any Speak, and guarantees the
// cancelled speak's onComplete never fires.
func (p *Player) Stop() {
	p.mu.Lock()
	p.gen++
	p.state = domain.NarrationIdle
	p.active = backendNone
	p.mu.Unlock()

	p.stopBackends()
}

// Pause forwards to whichever backend is active. No-op otherwise.
func (p *Player) Pause() {
	switch p.activeBackend() {
	case backendClip:
		p.clips.Pause()
	case backendSynth:
		p.synth.Pause()
	}
}

// Resume forwards to whichever backend is active. No-op otherwise.
func (p *Player) Resume() {
	switch p.activeBackend() {
	case backendClip:
		p.clips.Resume()
	case backendSynth:
		p.synth.Resume()
	}
}

func (p *Player) stopBackends() {
	if p.clips != nil {
		p.clips.Stop()
	}
	if p.synth != nil {
		p.synth.Cancel()
	}
}

func (p *Player) setActive(gen uint64, kind backendKind) {
	p.mu.Lock()
	if p.gen == gen {
		p.active = kind
	}
	p.mu.Unlock()
}

func (p *Player) activeBackend() backendKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

func (p *Player) current(gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gen == gen
}

func (p *Player) goIdle(gen uint64) {
	p.mu.Lock()
	if p.gen == gen {
		p.state = domain.NarrationIdle
		p.active = backendNone
	}
	p.mu.Unlock()
}
