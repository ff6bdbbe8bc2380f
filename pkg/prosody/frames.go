// Package prosody extracts prosodic features from a normalised speech
// buffer: a per-frame pitch contour, stressed frames, voiced-segment rhythm
// intervals and whole-buffer fluency metrics.
//
// All extractors share the same framing: a [FrameSize]-sample window moved
// by [HopSize] samples. They are pure functions of the buffer, tolerate empty
// or very short input, and never return an error. [Extract] runs all four and
// shares intermediate results between them.
package prosody

import "github.com/MrWong99/prosodia/pkg/audio"

// Analysis framing and pitch search parameters.
const (
	FrameSize = 1024
	HopSize   = 512

	// MinPitchHz and MaxPitchHz bound the periodicity search to the human
	// voice range.
	MinPitchHz = 50
	MaxPitchHz = 500

	// PitchNormHz maps a detected frequency onto [0,1]; values above it clamp
	// to 1.
	PitchNormHz = 300
)

// frames splits samples into overlapping analysis windows. A non-empty
// buffer shorter than one window yields a single zero-padded frame; an empty
// buffer yields none.
func frames(samples []float64) [][]float64 {
	n := len(samples)
	if n == 0 {
		return nil
	}
	if n < FrameSize {
		f := make([]float64, FrameSize)
		copy(f, samples)
		return [][]float64{f}
	}
	out := make([][]float64, 0, (n-FrameSize)/HopSize+1)
	for i := 0; i+FrameSize <= n; i += HopSize {
		out = append(out, samples[i:i+FrameSize])
	}
	return out
}

// FrameCount returns the number of analysis frames for a buffer of n samples.
func FrameCount(n int) int {
	switch {
	case n <= 0:
		return 0
	case n < FrameSize:
		return 1
	default:
		return (n-FrameSize)/HopSize + 1
	}
}

// FrameSeconds is the duration one hop represents at the analysis rate.
const FrameSeconds = float64(HopSize) / audio.SampleRate

func energy(frame []float64) float64 {
	var e float64
	for _, s := range frame {
		e += s * s
	}
	return e
}
