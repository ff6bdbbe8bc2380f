// Package coqui provides a TTS provider backed by a locally running Coqui
// server, either the standard Coqui TTS server or the XTTS v2 API server. It
// implements the tts.Provider interface.
//
// Two API modes are supported:
//
//   - APIModeStandard (default): GET /api/tts with query parameters; the voice
//     catalogue comes from GET /details.
//
//   - APIModeXTTS: POST /tts_to_audio/ with a JSON body; the voice catalogue
//     comes from GET /studio_speakers.
//
// Both servers answer one WAV file per request. SynthesizeStream splits the
// incoming text into sentences, synthesises up to maxInFlight of them
// concurrently and emits the PCM in sentence order, resampled to the analysis
// rate.
//
//	p, _ := coqui.New("http://localhost:5002", coqui.WithLanguage("en"))
//	pcm, err := tts.Synthesize(ctx, p, "hello world", voice)
package coqui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"
	"unicode"

	"golang.org/x/sync/semaphore"

	"github.com/MrWong99/prosodia/pkg/audio"
	"github.com/MrWong99/prosodia/pkg/provider/tts"
	"github.com/MrWong99/prosodia/pkg/types"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

const (
	defaultLanguage        = "en"
	defaultTimeout         = 30 * time.Second
	ttsEndpoint            = "/tts_to_audio/"
	studioSpeakersEndpoint = "/studio_speakers"
	apiTTSEndpoint         = "/api/tts"
	detailsEndpoint        = "/details"

	// maxInFlight bounds concurrent synthesis requests per stream.
	maxInFlight = 4

	// pcmChunkSize is the size of each PCM chunk emitted on the audio channel.
	pcmChunkSize = 4096

	// maxResponseBytes caps one WAV response (about five minutes at 22 kHz).
	maxResponseBytes = 16 << 20
)

// APIMode selects which Coqui server API the provider will target.
type APIMode string

const (
	// APIModeXTTS targets the Coqui XTTS v2 API server (/tts_to_audio/).
	APIModeXTTS APIMode = "xtts"

	// APIModeStandard targets the standard Coqui TTS server (/api/tts).
	APIModeStandard APIMode = "standard"
)

// Option is a functional option for configuring a Coqui Provider.
type Option func(*Provider)

// WithLanguage sets the language code sent to the TTS server (e.g., "en").
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithAPIMode sets the server API mode.
func WithAPIMode(mode APIMode) Option {
	return func(p *Provider) {
		p.apiMode = mode
	}
}

// Provider implements tts.Provider backed by a Coqui TTS server. It is safe
// for concurrent use.
type Provider struct {
	serverURL  string
	language   string
	httpClient *http.Client
	apiMode    APIMode
	decoder    *audio.Normalizer
}

// New creates a Provider that targets the server at serverURL (e.g.,
// "http://localhost:5002").
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		apiMode:    APIModeStandard,
		httpClient: &http.Client{Timeout: defaultTimeout},
		decoder:    audio.NewNormalizer(),
	}
	for _, o := range opts {
		o(p)
	}
	if p.apiMode != APIModeStandard && p.apiMode != APIModeXTTS {
		return nil, fmt.Errorf("coqui: unknown API mode %q", p.apiMode)
	}
	return p, nil
}

// OutputFormat reports the analysis format: every WAV response is decoded and
// resampled before it is emitted.
func (p *Provider) OutputFormat() audio.Format {
	return audio.Format{SampleRate: audio.SampleRate, Channels: audio.Channels}
}

// ttsRequest is the JSON body sent to POST /tts_to_audio/ (XTTS mode).
type ttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

// detailsResponse is the JSON body returned by GET /details (standard mode).
// Speakers is nil for single-speaker models.
type detailsResponse struct {
	ModelName string   `json:"model_name"`
	Language  string   `json:"language"`
	Speakers  []string `json:"speakers"`
}

// SynthesizeStream reads the whole text channel, splits it into sentences and
// emits each sentence's PCM in order. A failed sentence ends the stream.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error) {
	// XTTS needs a reference speaker; the standard server works without one
	// for single-speaker models.
	if voice.ID == "" && p.apiMode == APIModeXTTS {
		return nil, errors.New("coqui: voice.ID must not be empty (required for XTTS mode)")
	}

	audioCh := make(chan []byte, 16)
	go func() {
		defer close(audioCh)

		var sb strings.Builder
		for {
			select {
			case fragment, ok := <-text:
				if !ok {
					p.emit(ctx, splitSentences(sb.String()), voice, audioCh)
					return
				}
				sb.WriteString(fragment)
			case <-ctx.Done():
				return
			}
		}
	}()
	return audioCh, nil
}

// emit synthesises sentences concurrently and forwards their PCM in order.
// The first failed sentence ends the stream and cancels the rest.
func (p *Provider) emit(ctx context.Context, sentences []string, voice types.VoiceProfile, out chan<- []byte) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		pcm []byte
		err error
	}
	results := make([]chan result, len(sentences))
	sem := semaphore.NewWeighted(maxInFlight)
	for i, s := range sentences {
		results[i] = make(chan result, 1)
		go func() {
			if err := sem.Acquire(ctx, 1); err != nil {
				results[i] <- result{err: err}
				return
			}
			defer sem.Release(1)
			pcm, err := p.synthesize(ctx, s, voice)
			results[i] <- result{pcm: pcm, err: err}
		}()
	}

	for i := range sentences {
		var r result
		select {
		case r = <-results[i]:
		case <-ctx.Done():
			return
		}
		if r.err != nil {
			slog.Warn("coqui: synthesis failed", "sentence", i, "err", r.err)
			tts.ReportStreamError(ctx, fmt.Errorf("coqui: sentence %d: %w", i, r.err))
			return
		}
		for pcm := r.pcm; len(pcm) > 0; {
			end := min(pcmChunkSize, len(pcm))
			select {
			case out <- pcm[:end]:
			case <-ctx.Done():
				return
			}
			pcm = pcm[end:]
		}
	}
}

// synthesize renders one sentence and returns it as analysis-rate PCM.
func (p *Provider) synthesize(ctx context.Context, sentence string, voice types.VoiceProfile) ([]byte, error) {
	var (
		req *http.Request
		err error
	)
	if p.apiMode == APIModeXTTS {
		req, err = p.xttsRequest(ctx, sentence, voice)
	} else {
		req, err = p.standardRequest(ctx, sentence, voice)
	}
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	req.Header.Set("Accept", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: %s %s returned status %d", req.Method, req.URL.Path, resp.StatusCode)
	}

	wav, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("coqui: read WAV response: %w", err)
	}
	buf, err := p.decoder.Decode(wav)
	if err != nil {
		return nil, fmt.Errorf("coqui: decode WAV response: %w", err)
	}
	if buf.Empty() {
		return nil, fmt.Errorf("coqui: empty WAV response")
	}
	return audio.EncodePCM16(buf.Samples), nil
}

func (p *Provider) xttsRequest(ctx context.Context, sentence string, voice types.VoiceProfile) (*http.Request, error) {
	data, err := json.Marshal(ttsRequest{Text: sentence, SpeakerWav: voice.ID, Language: p.language})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+ttsEndpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (p *Provider) standardRequest(ctx context.Context, sentence string, voice types.VoiceProfile) (*http.Request, error) {
	params := url.Values{}
	params.Set("text", sentence)
	if voice.ID != "" {
		params.Set("speaker_id", voice.ID)
	}
	if p.language != "" {
		params.Set("language_id", p.language)
	}
	return http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+apiTTSEndpoint+"?"+params.Encode(), nil)
}

// ListVoices retrieves the voices the server offers. XTTS servers list their
// studio speakers; standard servers list the model's speakers, or a single
// profile named after the model for single-speaker models.
func (p *Provider) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	if p.apiMode == APIModeStandard {
		var details detailsResponse
		if err := p.getJSON(ctx, detailsEndpoint, &details); err != nil {
			return nil, err
		}
		return details.profiles(), nil
	}

	var speakers map[string]json.RawMessage
	if err := p.getJSON(ctx, studioSpeakersEndpoint, &speakers); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(speakers))
	for name := range speakers {
		names = append(names, name)
	}
	slices.Sort(names)
	return voiceProfiles(names, map[string]string{"type": "studio"}), nil
}

func (d detailsResponse) profiles() []types.VoiceProfile {
	if len(d.Speakers) > 0 {
		speakers := slices.Clone(d.Speakers)
		slices.Sort(speakers)
		return voiceProfiles(speakers, map[string]string{"type": "speaker", "model_name": d.ModelName})
	}
	name := d.ModelName
	if name == "" {
		name = "default"
	}
	return voiceProfiles([]string{name}, map[string]string{"type": "single-speaker", "model_name": name})
}

func voiceProfiles(names []string, meta map[string]string) []types.VoiceProfile {
	out := make([]types.VoiceProfile, 0, len(names))
	for _, n := range names {
		out = append(out, types.VoiceProfile{ID: n, Name: n, Provider: "coqui", Metadata: meta})
	}
	return out
}

func (p *Provider) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+path, nil)
	if err != nil {
		return fmt.Errorf("coqui: create list-voices request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("coqui: GET %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("coqui: GET %s returned status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("coqui: decode %s: %w", path, err)
	}
	return nil
}

// splitSentences splits s after each '.', '!' or '?' that ends the text or
// is followed by whitespace, so "Dr.Who" and "3.14" stay whole. Empty
// sentences are dropped.
func splitSentences(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '.' && c != '!' && c != '?' {
			continue
		}
		if i+1 < len(s) && !unicode.IsSpace(rune(s[i+1])) {
			continue
		}
		if sentence := strings.TrimSpace(s[start : i+1]); sentence != "" {
			out = append(out, sentence)
		}
		start = i + 1
	}
	if rest := strings.TrimSpace(s[start:]); rest != "" {
		out = append(out, rest)
	}
	return out
}
