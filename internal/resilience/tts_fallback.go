package resilience

import (
	"context"
	"strings"

	"github.com/MrWong99/prosodia/pkg/audio"
	"github.com/MrWong99/prosodia/pkg/provider/tts"
	"github.com/MrWong99/prosodia/pkg/types"
)

// TTSFallback implements [tts.Provider] over an ordered list of TTS backends.
//
// Reference utterances are short, so each request is synthesised in full by
// one backend before any audio is returned. A backend that fails mid-stream
// or returns no audio is therefore retried on the next one. Backends may
// differ in output format; TTSFallback emits mono PCM at the highest sample
// rate among its backends, so no backend's audio is downsampled before it
// reaches a listener.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
	rate  int
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback returns a fallback chain with primary tried first.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	f := &TTSFallback{group: NewFallbackGroup(primary, primaryName, cfg), rate: audio.SampleRate}
	f.raiseRate(primary)
	return f
}

// AddFallback appends a backend. Call it before the chain is used.
func (f *TTSFallback) AddFallback(name string, p tts.Provider) {
	f.group.AddFallback(name, p)
	f.raiseRate(p)
}

func (f *TTSFallback) raiseRate(p tts.Provider) {
	f.rate = max(f.rate, p.OutputFormat().SampleRate)
}

// Status reports every backend's breaker state in order.
func (f *TTSFallback) Status() []EntryStatus { return f.group.Status() }

// SynthesizeStream reads all of text, synthesises it on the first healthy
// backend and returns the result as a single chunk. It blocks until
// synthesis has finished.
func (f *TTSFallback) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error) {
	s, err := collect(ctx, text)
	if err != nil {
		return nil, err
	}
	rate := f.rate
	buf, err := ExecuteWithResult(ctx, f.group, func(ctx context.Context, p tts.Provider) (audio.Buffer, error) {
		b, err := tts.SynthesizeNative(ctx, p, s, voice)
		if err != nil {
			return b, err
		}
		mono := audio.Resample(audio.Downmix(b.Float64(), b.Channels), b.SampleRate, rate)
		return audio.Buffer{Samples: audio.Quantize16(mono), SampleRate: rate, Channels: 1}, nil
	})
	if err != nil {
		return nil, err
	}
	out := make(chan []byte, 1)
	out <- audio.EncodePCM16(buf.Samples)
	close(out)
	return out, nil
}

// ListVoices returns the voices of the first healthy backend.
func (f *TTSFallback) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	return ExecuteWithResult(ctx, f.group, func(ctx context.Context, p tts.Provider) ([]types.VoiceProfile, error) {
		return p.ListVoices(ctx)
	})
}

// OutputFormat is mono at the highest backend sample rate, and never below
// the analysis rate.
func (f *TTSFallback) OutputFormat() audio.Format {
	return audio.Format{SampleRate: f.rate, Channels: 1}
}

func collect(ctx context.Context, text <-chan string) (string, error) {
	var sb strings.Builder
	for {
		select {
		case t, ok := <-text:
			if !ok {
				return sb.String(), nil
			}
			sb.WriteString(t)
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}
