// Package elevenlabs provides an ElevenLabs-backed TTS provider using the
// ElevenLabs streaming WebSocket API. It implements the tts.Provider interface.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/MrWong99/prosodia/pkg/audio"
	"github.com/MrWong99/prosodia/pkg/provider/tts"
	"github.com/MrWong99/prosodia/pkg/types"
	"github.com/coder/websocket"
)

const (
	defaultStreamBase = "wss://api.elevenlabs.io"
	defaultAPIBase    = "https://api.elevenlabs.io"
	streamPathFmt     = "/v1/text-to-speech/%s/stream-input"
	voicesPath        = "/v1/voices"
	defaultModel      = "eleven_flash_v2_5"
	defaultOutputFmt  = "pcm_16000"
)

// ElevenLabs accepts speaking speeds in this range only.
const (
	minSpeed = 0.7
	maxSpeed = 1.2
)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithOutputFormat sets the audio output format. Only the raw PCM formats
// ("pcm_16000", "pcm_22050", "pcm_24000", ...) are accepted.
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		p.outputFormat = format
	}
}

// WithBaseURLs overrides the WebSocket and REST endpoints. Used by tests and
// by deployments routing through a proxy.
func WithBaseURLs(stream, api string) Option {
	return func(p *Provider) {
		p.streamBase = strings.TrimRight(stream, "/")
		p.apiBase = strings.TrimRight(api, "/")
	}
}

// WithHTTPClient sets the client used for REST calls.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements tts.Provider backed by the ElevenLabs streaming API.
type Provider struct {
	apiKey       string
	model        string
	outputFormat string
	format       audio.Format
	streamBase   string
	apiBase      string
	httpClient   *http.Client
}

// New creates a new ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		streamBase:   defaultStreamBase,
		apiBase:      defaultAPIBase,
		httpClient:   &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	f, err := parseOutputFormat(p.outputFormat)
	if err != nil {
		return nil, err
	}
	p.format = f
	return p, nil
}

// parseOutputFormat maps an ElevenLabs "pcm_<rate>" format name onto the
// mono PCM format it produces.
func parseOutputFormat(s string) (audio.Format, error) {
	rate, ok := strings.CutPrefix(s, "pcm_")
	if !ok {
		return audio.Format{}, fmt.Errorf("elevenlabs: output format %q is not raw PCM", s)
	}
	n, err := strconv.Atoi(rate)
	if err != nil || n <= 0 {
		return audio.Format{}, fmt.Errorf("elevenlabs: output format %q has no valid sample rate", s)
	}
	return audio.Format{SampleRate: n, Channels: 1}, nil
}

// OutputFormat reports the PCM format selected at construction.
func (p *Provider) OutputFormat() audio.Format { return p.format }

// ---- WebSocket message types ----

// textMessage is the JSON payload sent to ElevenLabs for each text fragment.
type textMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

// audioResponse is the JSON message received from ElevenLabs over the WebSocket.
type audioResponse struct {
	Audio   string `json:"audio"` // base64-encoded PCM
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// boiMessage is used for the initial "begin of input" handshake.
type boiMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key"`
}

// settingsFor builds the voice settings for voice. SpeedFactor is clamped to
// the range ElevenLabs accepts; zero leaves the provider default.
func settingsFor(voice types.VoiceProfile) *voiceSettings {
	vs := &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75}
	if voice.SpeedFactor > 0 {
		vs.Speed = math.Min(maxSpeed, math.Max(minSpeed, voice.SpeedFactor))
	}
	return vs
}

// SynthesizeStream opens a WebSocket to ElevenLabs, pipes text fragments from
// the text channel, and returns a channel emitting raw PCM audio chunks.
//
// The returned audio channel is closed when synthesis is complete or ctx is cancelled.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error) {
	if voice.ID == "" {
		return nil, errors.New("elevenlabs: voice.ID must not be empty")
	}

	conn, _, err := websocket.Dial(ctx, p.streamURL(voice.ID), nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}

	boi := boiMessage{
		Text:          " ", // ElevenLabs requires a non-empty first text value
		VoiceSettings: settingsFor(voice),
		XiAPIKey:      p.apiKey,
	}
	boiBytes, _ := json.Marshal(boi)
	if err := conn.Write(ctx, websocket.MessageText, boiBytes); err != nil {
		conn.Close(websocket.StatusInternalError, "failed to send BOI")
		return nil, fmt.Errorf("elevenlabs: send BOI: %w", err)
	}

	audioCh := make(chan []byte, 64)

	go func() {
		defer close(audioCh)
		defer conn.Close(websocket.StatusNormalClosure, "done")

		readDone := make(chan struct{})
		go func() {
			defer close(readDone)
			p.readAudio(ctx, conn, audioCh)
		}()

		for {
			select {
			case fragment, ok := <-text:
				if !ok {
					flushBytes, _ := buildWSMessage("", nil)
					_ = conn.Write(ctx, websocket.MessageText, flushBytes)
					<-readDone
					return
				}
				if fragment == "" {
					continue
				}
				msgBytes, _ := buildWSMessage(fragment, nil)
				if err := conn.Write(ctx, websocket.MessageText, msgBytes); err != nil {
					slog.Warn("elevenlabs: write fragment", "err", err)
					tts.ReportStreamError(ctx, fmt.Errorf("elevenlabs: write fragment: %w", err))
					return
				}
			case <-readDone:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return audioCh, nil
}

// readAudio forwards decoded audio until the server signals the final
// message, reports an error or the connection ends.
func (p *Provider) readAudio(ctx context.Context, conn *websocket.Conn, out chan<- []byte) {
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				tts.ReportStreamError(ctx, fmt.Errorf("elevenlabs: connection closed before final message: %w", err))
			}
			return
		}
		var resp audioResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			continue
		}
		if resp.Error != "" {
			slog.Warn("elevenlabs: stream error", "err", resp.Error, "message", resp.Message)
			tts.ReportStreamError(ctx, fmt.Errorf("elevenlabs: stream error: %s", resp.Error))
			return
		}
		if resp.Audio != "" {
			pcm, err := base64.StdEncoding.DecodeString(resp.Audio)
			if err == nil {
				select {
				case out <- pcm:
				case <-ctx.Done():
					return
				}
			}
		}
		if resp.IsFinal {
			return
		}
	}
}

// ---- ListVoices ----

// voicesResponse is the top-level response from GET /v1/voices.
type voicesResponse struct {
	Voices []elevenLabsVoice `json:"voices"`
}

// elevenLabsVoice is a single voice entry from the ElevenLabs API.
type elevenLabsVoice struct {
	VoiceID  string            `json:"voice_id"`
	Name     string            `json:"name"`
	Category string            `json:"category"`
	Labels   map[string]string `json:"labels"`
}

// ListVoices returns all voices available from ElevenLabs for the configured API key.
func (p *Provider) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBase+voicesPath, nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: list voices: unexpected status %d", resp.StatusCode)
	}

	var vr voicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices decode: %w", err)
	}
	return vr.profiles(), nil
}

// ---- helpers ----

func (vr voicesResponse) profiles() []types.VoiceProfile {
	profiles := make([]types.VoiceProfile, 0, len(vr.Voices))
	for _, v := range vr.Voices {
		meta := make(map[string]string, len(v.Labels)+1)
		for k, val := range v.Labels {
			meta[k] = val
		}
		if v.Category != "" {
			meta["category"] = v.Category
		}
		profiles = append(profiles, types.VoiceProfile{
			ID:       v.VoiceID,
			Name:     v.Name,
			Provider: "elevenlabs",
			Metadata: meta,
		})
	}
	return profiles
}

// buildWSMessage constructs the JSON text payload for a single text fragment.
func buildWSMessage(text string, vs *voiceSettings) ([]byte, error) {
	return json.Marshal(textMessage{Text: text, VoiceSettings: vs})
}

// streamURL constructs the WebSocket URL for a given voice.
func (p *Provider) streamURL(voiceID string) string {
	q := url.Values{}
	q.Set("model_id", p.model)
	q.Set("output_format", p.outputFormat)
	return p.streamBase + fmt.Sprintf(streamPathFmt, url.PathEscape(voiceID)) + "?" + q.Encode()
}

// parseVoicesResponse parses a raw JSON byte slice (matching the ElevenLabs
// /v1/voices response) into a slice of VoiceProfile values.
func parseVoicesResponse(data []byte) ([]types.VoiceProfile, error) {
	var vr voicesResponse
	if err := json.Unmarshal(data, &vr); err != nil {
		return nil, err
	}
	return vr.profiles(), nil
}

var _ tts.Provider = (*Provider)(nil)
