// Package openai provides a TTS provider backed by the OpenAI speech API.
//
// Speech is requested as raw 24 kHz mono PCM so the response body can be
// forwarded without decoding.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/MrWong99/prosodia/pkg/audio"
	"github.com/MrWong99/prosodia/pkg/provider/tts"
	"github.com/MrWong99/prosodia/pkg/types"
)

// DefaultModel is the default OpenAI speech model.
const DefaultModel = oai.SpeechModelGPT4oMiniTTS

// DefaultVoice is used when the requested profile has no ID.
const DefaultVoice = string(oai.AudioSpeechNewParamsVoiceCoral)

// DefaultInstructions steer instruction-capable models towards a clear
// reference reading.
const DefaultInstructions = "Speak clearly with natural English stress and intonation, like a pronunciation coach modelling a phrase."

// pcmRate is the sample rate of the speech API's "pcm" response format.
const pcmRate = 24000

// The speech API accepts speeds in this range.
const (
	minSpeed = 0.25
	maxSpeed = 4.0
)

const chunkSize = 4096

// voices is the fixed catalogue of built-in OpenAI voices.
var voices = []string{"alloy", "ash", "ballad", "coral", "echo", "fable", "nova", "onyx", "sage", "shimmer", "verse"}

// Ensure Provider implements the tts.Provider interface.
var _ tts.Provider = (*Provider)(nil)

// Provider implements tts.Provider using the OpenAI speech endpoint.
type Provider struct {
	client       oai.Client
	model        string
	instructions string
}

type config struct {
	baseURL      string
	organization string
	instructions string
	timeout      time.Duration
	maxRetries   int
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithOrganization sets the OpenAI organization ID on all requests.
func WithOrganization(org string) Option {
	return func(c *config) {
		c.organization = org
	}
}

// WithInstructions replaces [DefaultInstructions]. Ignored by tts-1 models.
func WithInstructions(s string) Option {
	return func(c *config) {
		c.instructions = s
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithMaxRetries sets how often the client retries failed requests. The SDK
// default applies when unset.
func WithMaxRetries(n int) Option {
	return func(c *config) {
		c.maxRetries = n
	}
}

// New constructs a Provider. If model is empty, [DefaultModel] is used.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai tts: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}
	cfg := &config{instructions: DefaultInstructions, maxRetries: -1}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.organization != "" {
		reqOpts = append(reqOpts, option.WithOrganization(cfg.organization))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}
	if cfg.maxRetries >= 0 {
		reqOpts = append(reqOpts, option.WithMaxRetries(cfg.maxRetries))
	}

	p := &Provider{client: oai.NewClient(reqOpts...), model: model}
	if !strings.HasPrefix(model, "tts-1") {
		p.instructions = cfg.instructions
	}
	return p, nil
}

// OutputFormat reports 24 kHz mono, the speech API's raw PCM format.
func (p *Provider) OutputFormat() audio.Format {
	return audio.Format{SampleRate: pcmRate, Channels: 1}
}

// ListVoices returns the built-in OpenAI voices.
func (p *Provider) ListVoices(context.Context) ([]types.VoiceProfile, error) {
	out := make([]types.VoiceProfile, 0, len(voices))
	for _, v := range voices {
		out = append(out, types.VoiceProfile{ID: v, Name: v, Provider: "openai"})
	}
	return out, nil
}

// params builds the request for one utterance.
func (p *Provider) params(text string, voice types.VoiceProfile) oai.AudioSpeechNewParams {
	id := voice.ID
	if id == "" {
		id = DefaultVoice
	}
	params := oai.AudioSpeechNewParams{
		Input:          text,
		Model:          p.model,
		Voice:          oai.AudioSpeechNewParamsVoice(id),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
	}
	if voice.SpeedFactor > 0 {
		params.Speed = param.NewOpt(math.Min(maxSpeed, math.Max(minSpeed, voice.SpeedFactor)))
	}
	if p.instructions != "" {
		params.Instructions = param.NewOpt(p.instructions)
	}
	return params
}

// SynthesizeStream collects the text channel into one utterance, requests it
// from the speech API and streams the PCM body as it arrives.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error) {
	out := make(chan []byte, 16)
	go func() {
		defer close(out)

		var sb strings.Builder
		for {
			select {
			case fragment, ok := <-text:
				if !ok {
					p.stream(ctx, strings.TrimSpace(sb.String()), voice, out)
					return
				}
				sb.WriteString(fragment)
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (p *Provider) stream(ctx context.Context, text string, voice types.VoiceProfile, out chan<- []byte) {
	if text == "" {
		return
	}
	resp, err := p.client.Audio.Speech.New(ctx, p.params(text, voice))
	if err != nil {
		slog.Warn("openai tts: speech request failed", "err", err)
		tts.ReportStreamError(ctx, fmt.Errorf("openai tts: %w", err))
		return
	}
	defer resp.Body.Close()

	// Keep chunks sample-aligned.
	var carry []byte
	buf := make([]byte, chunkSize)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			data := append(carry, buf[:n]...)
			even := len(data) &^ 1
			carry = append([]byte(nil), data[even:]...)
			if even > 0 {
				chunk := make([]byte, even)
				copy(chunk, data[:even])
				select {
				case out <- chunk:
				case <-ctx.Done():
					return
				}
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				err = fmt.Errorf("openai tts: read speech body: %w", err)
				slog.Warn("openai tts: read speech body", "err", err)
				tts.ReportStreamError(ctx, err)
			}
			return
		}
	}
}
