package narrate

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/foodly/companion/internal/logger"
)

// AzureOption configures the Azure TTS client.
type AzureOption func(*AzureClient)

// WithAudioFormat sets the audio output format.
func WithAudioFormat(format string) AzureOption {
	return func(c *AzureClient) { c.format = format }
}

// WithHTTPTimeout sets the HTTP client timeout for synthesis requests.
func WithHTTPTimeout(d time.Duration) AzureOption {
	return func(c *AzureClient) { c.httpClient.Timeout = d }
}

// SynthRequest is one synthesis call: text plus voice and prosody.
type SynthRequest struct {
	Text   string
	Voice  string
	Rate   float64 // 1.0 = normal
	Pitch  float64 // 1.0 = normal
	Volume float64 // 0..1
}

// AzureClient synthesizes speech via Azure Cognitive Services. The
// output format matches the sink's PCM parameters.
type AzureClient struct {
	subscriptionKey string
	region          string
	format          string
	httpClient      *http.Client
	log             *logger.Logger
}

// NewAzureClient creates a synthesis client with the given credentials.
func NewAzureClient(key, region string, log *logger.Logger, opts ...AzureOption) *AzureClient {
	c := &AzureClient{
		subscriptionKey: key,
		region:          region,
		format:          "riff-24khz-16bit-mono-pcm",
		httpClient:      &http.Client{Timeout: 30 * time.Second},
		log:             log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Synthesize converts text to WAV bytes.
func (c *AzureClient) Synthesize(ctx context.Context, req SynthRequest) ([]byte, error) {
	url := fmt.Sprintf("https://%s.tts.speech.microsoft.com/cognitiveservices/v1", c.region)

	ssml := buildSSML(req)
	c.log.Debug("azure tts: synthesizing %d chars with voice %s", len(req.Text), req.Voice)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(ssml))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Ocp-Apim-Subscription-Key", c.subscriptionKey)
	httpReq.Header.Set("Content-Type", "application/ssml+xml")
	httpReq.Header.Set("X-Microsoft-OutputFormat", c.format)
	httpReq.Header.Set("User-Agent", "FoodlyCompanion/1.0")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("tts request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("azure tts error %d: %s", resp.StatusCode, string(body))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading audio data: %w", err)
	}

	c.log.Debug("azure tts: got %d bytes of audio", len(audio))
	return audio, nil
}

// buildSSML renders the synthesis request with prosody attributes.
// Rate and pitch are expressed as signed percentages off normal.
func buildSSML(req SynthRequest) string {
	rate := int((req.Rate - 1.0) * 100)
	pitch := int((req.Pitch - 1.0) * 100)
	volume := int(req.Volume * 100)
	return fmt.Sprintf(
		`<speak version='1.0' xml:lang='en-US'><voice name='%s'><prosody rate='%+d%%' pitch='%+d%%' volume='%d'>%s</prosody></voice></speak>`,
		req.Voice, rate, pitch, volume, escapeSSML(req.Text),
	)
}

// escapeSSML escapes the XML-significant characters in spoken text.
func escapeSSML(text string) string {
	r := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&apos;",
	)
	return r.Replace(text)
}
