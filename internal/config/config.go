// Package config loads runtime configuration from the environment with
// sensible defaults for every tunable.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/foodly/companion/internal/domain"
)

// Config holds everything the companion needs at startup.
type Config struct {
	Backend struct {
		Origin string // base URL for recipes and narration clips
	}
	Voice struct {
		Provider     string // "whisper", "stream", or "off"
		ThrottleMs   int
		RestartMs    int
		WhisperBin   string
		WhisperModel string
		StreamURL    string
		StreamKey    string
	}
	Narration struct {
		VoiceID        string
		Locale         string // preferred voice locale, e.g. "en-US"
		AdvancePauseMs int
		CacheDir       string
		DiskCache      bool
	}
	Azure struct {
		SpeechKey    string
		SpeechRegion string
	}
	PrefsFile string
}

// Load reads configuration from the environment. Every key has a
// default, so Load never fails.
func Load() Config {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("backend.origin", "http://localhost:8000")
	v.SetDefault("voice.provider", "whisper")
	v.SetDefault("voice.throttle_ms", int(domain.DefaultThrottleWindow/time.Millisecond))
	v.SetDefault("voice.restart_delay_ms", int(domain.DefaultRestartDelay/time.Millisecond))
	v.SetDefault("voice.whisper_bin", "whisper-cli")
	v.SetDefault("voice.whisper_model", "bin/ggml-small.bin")
	v.SetDefault("narration.voice_id", "en-US-ChristopherNeural")
	v.SetDefault("narration.locale", "en-US")
	v.SetDefault("narration.advance_pause_ms", int(domain.DefaultAdvancePause/time.Millisecond))
	v.SetDefault("narration.cache_dir", ".foodly-cache")
	v.SetDefault("narration.disk_cache", true)
	v.SetDefault("prefs_file", ".foodly-prefs.json")

	// Map envs
	v.BindEnv("backend.origin", "FOODLY_BACKEND_ORIGIN")
	v.BindEnv("voice.provider", "FOODLY_VOICE_PROVIDER")
	v.BindEnv("voice.throttle_ms", "FOODLY_VOICE_THROTTLE_MS")
	v.BindEnv("voice.restart_delay_ms", "FOODLY_VOICE_RESTART_DELAY_MS")
	v.BindEnv("voice.whisper_bin", "FOODLY_WHISPER_BIN")
	v.BindEnv("voice.whisper_model", "FOODLY_WHISPER_MODEL")
	v.BindEnv("voice.stream_url", "FOODLY_STREAM_URL")
	v.BindEnv("voice.stream_key", "FOODLY_STREAM_KEY")
	v.BindEnv("narration.voice_id", "FOODLY_VOICE_ID")
	v.BindEnv("narration.locale", "FOODLY_VOICE_LOCALE")
	v.BindEnv("narration.advance_pause_ms", "FOODLY_ADVANCE_PAUSE_MS")
	v.BindEnv("narration.cache_dir", "FOODLY_CACHE_DIR")
	v.BindEnv("narration.disk_cache", "FOODLY_DISK_CACHE")
	v.BindEnv("azure.speech_key", "AZURE_SPEECH_KEY")
	v.BindEnv("azure.speech_region", "AZURE_SPEECH_REGION")
	v.BindEnv("prefs_file", "FOODLY_PREFS_FILE")

	var c Config
	c.Backend.Origin = strings.TrimRight(v.GetString("backend.origin"), "/")
	c.Voice.Provider = v.GetString("voice.provider")
	c.Voice.ThrottleMs = v.GetInt("voice.throttle_ms")
	c.Voice.RestartMs = v.GetInt("voice.restart_delay_ms")
	c.Voice.WhisperBin = v.GetString("voice.whisper_bin")
	c.Voice.WhisperModel = v.GetString("voice.whisper_model")
	c.Voice.StreamURL = v.GetString("voice.stream_url")
	c.Voice.StreamKey = v.GetString("voice.stream_key")
	c.Narration.VoiceID = v.GetString("narration.voice_id")
	c.Narration.Locale = v.GetString("narration.locale")
	c.Narration.AdvancePauseMs = v.GetInt("narration.advance_pause_ms")
	c.Narration.CacheDir = v.GetString("narration.cache_dir")
	c.Narration.DiskCache = v.GetBool("narration.disk_cache")
	c.Azure.SpeechKey = v.GetString("azure.speech_key")
	c.Azure.SpeechRegion = v.GetString("azure.speech_region")
	c.PrefsFile = v.GetString("prefs_file")
	return c
}

// ThrottleWindow returns the command debounce window as a duration.
func (c Config) ThrottleWindow() time.Duration {
	return time.Duration(c.Voice.ThrottleMs) * time.Millisecond
}

// RestartDelay returns the engine restart delay as a duration.
func (c Config) RestartDelay() time.Duration {
	return time.Duration(c.Voice.RestartMs) * time.Millisecond
}

// AdvancePause returns the auto-advance pause as a duration.
func (c Config) AdvancePause() time.Duration {
	return time.Duration(c.Narration.AdvancePauseMs) * time.Millisecond
}
