// Package tts defines the Provider interface for the Text-to-Speech backends
// that render reference utterances.
//
// A TTS provider wraps a speech synthesis service (e.g., ElevenLabs, OpenAI or
// a local Coqui server) and presents a uniform streaming interface. The
// reference resolver renders the target phrase through a provider and runs
// the same prosody extractors over the result; the guide endpoint renders a
// stress-marked version of the phrase for the learner to listen to.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/prosodia/pkg/audio"
	"github.com/MrWong99/prosodia/pkg/types"
)

// ErrNoAudio is returned by [Synthesize] when the provider closed its stream
// without emitting any audio.
var ErrNoAudio = errors.New("tts: no audio produced")

// Provider is the abstraction over any TTS backend.
//
// Implementations must be safe for concurrent use. Multiple synthesis
// requests may run in parallel.
type Provider interface {
	// SynthesizeStream consumes text fragments from the text channel and returns a
	// channel that emits raw little-endian int16 PCM byte slices, in the format
	// reported by OutputFormat, as they are synthesised.
	//
	// The returned audio channel is closed by the implementation when all text has
	// been synthesised or when ctx is cancelled. The caller must drain the audio
	// channel to avoid blocking the provider's internal goroutines.
	//
	// Returns a non-nil error only if the stream cannot be started. Errors
	// encountered during synthesis close the audio channel early and are
	// passed to [ReportStreamError] so callers that opened ctx with
	// [WithStreamErrors] can tell a truncated stream from a complete one.
	SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error)

	// ListVoices returns all voice profiles available from this provider.
	ListVoices(ctx context.Context) ([]types.VoiceProfile, error)

	// OutputFormat reports the sample rate and channel count of the PCM emitted
	// by SynthesizeStream.
	OutputFormat() audio.Format
}

type streamErrorsKey struct{}

type streamErrors struct {
	mu  sync.Mutex
	err error
}

// WithStreamErrors returns a context under which providers record the
// failure that ended a stream early, and a function returning the first
// such failure.
func WithStreamErrors(ctx context.Context) (context.Context, func() error) {
	se := &streamErrors{}
	return context.WithValue(ctx, streamErrorsKey{}, se), func() error {
		se.mu.Lock()
		defer se.mu.Unlock()
		return se.err
	}
}

// ReportStreamError records err against the stream running under ctx. It is
// a no-op when err is nil or ctx was not set up with [WithStreamErrors].
func ReportStreamError(ctx context.Context, err error) {
	se, ok := ctx.Value(streamErrorsKey{}).(*streamErrors)
	if !ok || err == nil {
		return
	}
	se.mu.Lock()
	if se.err == nil {
		se.err = err
	}
	se.mu.Unlock()
}

// Synthesize renders text in one call and returns the concatenated PCM. It
// returns ctx.Err() if ctx ends before the stream completes, the provider's
// error if the stream was cut short, and [ErrNoAudio] if the stream closes
// empty.
func Synthesize(ctx context.Context, p Provider, text string, voice types.VoiceProfile) ([]byte, error) {
	pcm, _, err := synthesize(ctx, p, text, voice)
	return pcm, err
}

// SynthesizeBuffer renders text and normalises the result into an analysis
// buffer.
func SynthesizeBuffer(ctx context.Context, p Provider, text string, voice types.VoiceProfile) (audio.Buffer, error) {
	pcm, f, err := synthesize(ctx, p, text, voice)
	if err != nil {
		return audio.NewBuffer(nil), err
	}
	return audio.FromPCM16(pcm, f)
}

// SynthesizeNative renders text and returns it at the provider's own sample
// rate and channel layout, for playback rather than analysis.
func SynthesizeNative(ctx context.Context, p Provider, text string, voice types.VoiceProfile) (audio.Buffer, error) {
	pcm, f, err := synthesize(ctx, p, text, voice)
	if err != nil {
		return audio.NewBuffer(nil), err
	}
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return audio.NewBuffer(nil), fmt.Errorf("tts: invalid output format %s", f)
	}
	return audio.Buffer{
		Samples:    audio.Quantize16(audio.PCM16ToFloat(pcm)),
		SampleRate: f.SampleRate,
		Channels:   f.Channels,
	}, nil
}

func synthesize(ctx context.Context, p Provider, text string, voice types.VoiceProfile) ([]byte, audio.Format, error) {
	f := p.OutputFormat()
	in := make(chan string, 1)
	in <- text
	close(in)

	sctx, streamErr := WithStreamErrors(ctx)
	out, err := p.SynthesizeStream(sctx, in, voice)
	if err != nil {
		return nil, f, fmt.Errorf("tts: start stream: %w", err)
	}
	var pcm []byte
	for chunk := range out {
		pcm = append(pcm, chunk...)
	}
	if err := ctx.Err(); err != nil {
		return nil, f, err
	}
	if err := streamErr(); err != nil {
		return nil, f, fmt.Errorf("tts: stream interrupted after %d bytes: %w", len(pcm), err)
	}
	if len(pcm) == 0 {
		return nil, f, ErrNoAudio
	}
	return pcm, f, nil
}
