// Package audio turns arbitrary recorded speech payloads into the fixed
// analysis format used by the prosody extractors: mono, 16 kHz, samples
// quantised to 16-bit and then converted to float32 in [-1, 1].
//
// The entry point is [Normalizer.Normalize], which sniffs the container
// (RIFF/WAVE, Ogg/Opus or an optionally configured raw PCM layout), decodes,
// downmixes, resamples and quantises. Normalize fails closed: an undecodable
// payload yields an empty [Buffer] and a logged warning. The error is
// returned alongside for callers that count failures, but the buffer is
// always safe to analyse, so every downstream stage must cope with empty
// input.
package audio

import (
	"fmt"
	"time"
)

// Analysis format. Every [Buffer] returned by [Normalizer.Normalize] uses it.
const (
	SampleRate = 16000
	Channels   = 1
	BitDepth   = 16
)

// Buffer is an immutable block of normalised mono samples. Callers must not
// modify Samples after construction.
type Buffer struct {
	// Samples are in [-1, 1].
	Samples []float32

	// SampleRate in Hz. Always [SampleRate] for normalised buffers.
	SampleRate int

	// Channels is always 1 after normalisation.
	Channels int
}

// NewBuffer wraps samples recorded at the analysis sample rate.
func NewBuffer(samples []float32) Buffer {
	return Buffer{Samples: samples, SampleRate: SampleRate, Channels: Channels}
}

// Len returns the number of samples.
func (b Buffer) Len() int { return len(b.Samples) }

// Empty reports whether the buffer holds no samples.
func (b Buffer) Empty() bool { return len(b.Samples) == 0 }

// Duration returns the playback length of the buffer.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(int64(len(b.Samples)) * int64(time.Second) / int64(b.SampleRate))
}

// Seconds returns the playback length in seconds.
func (b Buffer) Seconds() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(len(b.Samples)) / float64(b.SampleRate)
}

// Float64 returns a float64 copy of the samples, the representation used by
// the numeric extractors.
func (b Buffer) Float64() []float64 {
	out := make([]float64, len(b.Samples))
	for i, s := range b.Samples {
		out[i] = float64(s)
	}
	return out
}

// String returns a short description such as "16000Hz mono 1.50s".
func (b Buffer) String() string {
	return fmt.Sprintf("%s %.2fs", formatString(b.SampleRate, b.Channels), b.Seconds())
}

// formatString returns a human-readable string for a sample rate and channel count,
// e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
