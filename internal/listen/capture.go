package listen

import (
	"context"
	"fmt"
	"strings"

	"github.com/gen2brain/malgo"

	"github.com/foodly/companion/internal/logger"
)

// CaptureSource feeds microphone PCM into a recognition engine. Run
// blocks until ctx is cancelled or the device fails; frame reports
// whether the engine accepted the data, so sources may drop on
// backpressure instead of buffering.
type CaptureSource interface {
	Run(ctx context.Context, frame func(pcm []byte) bool) error
}

// captureSampleRate matches what streaming transcription services
// expect for PCM16 mono input.
const captureSampleRate = 16000

// MicCapture captures microphone audio via miniaudio as 16 kHz mono
// PCM16 frames. One device is opened per Run and torn down when the
// run's context is cancelled.
type MicCapture struct {
	log *logger.Logger
}

// Compile-time interface check.
var _ CaptureSource = (*MicCapture)(nil)

// NewMicCapture creates the capture source. Device availability is
// only known once Run opens the device.
func NewMicCapture(log *logger.Logger) *MicCapture {
	return &MicCapture{log: log}
}

// Run opens the default capture device and pushes every period's PCM
// to frame until ctx is cancelled.
func (c *MicCapture) Run(ctx context.Context, frame func(pcm []byte) bool) error {
	mCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
		c.log.Debug("mic: %s", strings.TrimSpace(msg))
	})
	if err != nil {
		return fmt.Errorf("audio context init: %w", err)
	}
	defer func() { _ = mCtx.Uninit(); mCtx.Free() }()

	devCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	devCfg.SampleRate = captureSampleRate
	devCfg.Capture.Format = malgo.FormatS16
	devCfg.Capture.Channels = 1
	devCfg.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(_ []byte, raw []byte, _ uint32) {
			if len(raw) == 0 {
				return
			}
			// The device owns raw; hand the engine its own copy.
			pcm := make([]byte, len(raw))
			copy(pcm, raw)
			frame(pcm)
		},
	}

	device, err := malgo.InitDevice(mCtx.Context, devCfg, callbacks)
	if err != nil {
		return fmt.Errorf("capture device init: %w", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return fmt.Errorf("capture start: %w", err)
	}
	defer func() { _ = device.Stop() }()
	c.log.Debug("mic: capture started (rate=%d)", captureSampleRate)

	<-ctx.Done()
	return nil
}
