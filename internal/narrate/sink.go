// Package narrate speaks step text through one of two interchangeable
// backends — pre-rendered audio clips from the backend, or on-device
// synthesis — behind a single speaking/not-speaking signal.
package narrate

import (
	"bytes"
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/foodly/companion/internal/logger"
)

// Audio parameters shared by both backends: the synthesis format is
// requested at this rate and the backend renders clips to match.
const (
	SampleRate   = 24000
	ChannelCount = 1
)

// playback is one in-flight PCM stream on the sink.
type playback struct {
	player  *oto.Player
	mu      sync.Mutex
	stopped bool
	paused  bool
}

func (pb *playback) flags() (stopped, paused bool) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.stopped, pb.paused
}

// Sink plays raw PCM through the system audio device. Exactly one
// playback is active at a time; starting a new one replaces the old.
type Sink struct {
	ctx *oto.Context
	log *logger.Logger

	mu     sync.Mutex
	active *playback
}

// NewSink initializes the system audio context. Returns an error when
// no audio device is available, which callers treat as narration being
// unsupported.
func NewSink(log *logger.Logger) (*Sink, error) {
	op := &oto.NewContextOptions{
		SampleRate:   SampleRate,
		ChannelCount: ChannelCount,
		Format:       oto.FormatSignedInt16LE,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, err
	}
	<-ready

	log.Debug("narrate: audio sink ready (rate=%d, channels=%d)", SampleRate, ChannelCount)
	return &Sink{ctx: ctx, log: log}, nil
}

// Play starts playback of raw PCM and returns immediately. done is
// called exactly once, with stopped=true when Stop cut the playback
// short and false on natural completion.
func (s *Sink) Play(pcm []byte, done func(stopped bool)) {
	pb := &playback{player: s.ctx.NewPlayer(bytes.NewReader(pcm))}

	s.mu.Lock()
	if s.active != nil {
		s.active.mu.Lock()
		s.active.stopped = true
		s.active.player.Pause()
		s.active.mu.Unlock()
	}
	s.active = pb
	s.mu.Unlock()

	pb.player.Play()
	s.log.Debug("narrate: playing %d bytes of PCM", len(pcm))

	go s.watch(pb, done)
}

// watch polls the playback until it stops or drains, then reports.
func (s *Sink) watch(pb *playback, done func(stopped bool)) {
	for {
		stopped, paused := pb.flags()
		if stopped {
			break
		}
		if !paused && !pb.player.IsPlaying() {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	s.mu.Lock()
	if s.active == pb {
		s.active = nil
	}
	s.mu.Unlock()

	stopped, _ := pb.flags()
	pb.player.Close()
	if done != nil {
		done(stopped)
	}
}

// Stop interrupts the active playback, if any. Safe to call at any
// time, including when nothing is playing.
func (s *Sink) Stop() {
	s.mu.Lock()
	pb := s.active
	s.mu.Unlock()
	if pb == nil {
		return
	}
	pb.mu.Lock()
	pb.stopped = true
	pb.player.Pause()
	pb.mu.Unlock()
	s.log.Debug("narrate: playback interrupted")
}

// Pause suspends the active playback without ending it.
func (s *Sink) Pause() {
	s.mu.Lock()
	pb := s.active
	s.mu.Unlock()
	if pb == nil {
		return
	}
	pb.mu.Lock()
	if !pb.stopped {
		pb.paused = true
		pb.player.Pause()
	}
	pb.mu.Unlock()
}

// Resume continues a paused playback.
func (s *Sink) Resume() {
	s.mu.Lock()
	pb := s.active
	s.mu.Unlock()
	if pb == nil {
		return
	}
	pb.mu.Lock()
	if pb.paused && !pb.stopped {
		pb.paused = false
		pb.player.Play()
	}
	pb.mu.Unlock()
}

// extractPCM strips the RIFF/WAV header and returns the raw PCM data.
func extractPCM(wav []byte) ([]byte, error) {
	if len(wav) < 44 {
		return nil, errors.New("wav data too short")
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return nil, errors.New("not a valid WAV file")
	}

	// Walk chunks to find "data".
	pos := 12
	for pos < len(wav)-8 {
		chunkID := string(wav[pos : pos+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[pos+4 : pos+8]))
		if chunkID == "data" {
			start := pos + 8
			end := start + chunkSize
			if end > len(wav) {
				end = len(wav)
			}
			return wav[start:end], nil
		}
		pos += 8 + chunkSize
		if chunkSize%2 != 0 {
			pos++ // chunks are word-aligned
		}
	}
	return nil, errors.New("data chunk not found in WAV")
}
