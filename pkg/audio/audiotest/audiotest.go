// Package audiotest provides synthetic speech-like fixtures for tests.
package audiotest

import (
	"math"
	"testing"

	"github.com/MrWong99/prosodia/pkg/audio"
)

// Segment is one voiced stretch of a synthetic utterance.
type Segment struct {
	// Start and Length are in seconds.
	Start, Length float64
}

// DefaultSegments mimic a short two-word phrase: four syllable-sized voiced
// stretches separated by pauses.
var DefaultSegments = []Segment{
	{Start: 0.10, Length: 0.35},
	{Start: 0.55, Length: 0.35},
	{Start: 1.00, Length: 0.35},
	{Start: 1.45, Length: 0.35},
}

// Speech returns seconds of audio with a voiced, slowly falling pitch glide
// (200 Hz minus 35 Hz per second plus a second harmonic) inside each segment
// and digital silence elsewhere.
func Speech(seconds float64, segments ...Segment) audio.Buffer {
	if len(segments) == 0 {
		segments = DefaultSegments
	}
	n := int(seconds * audio.SampleRate)
	out := make([]float32, n)
	for _, seg := range segments {
		start := int(seg.Start * audio.SampleRate)
		end := min(n, int((seg.Start+seg.Length)*audio.SampleRate))
		var phase float64
		for i := start; i < end; i++ {
			t := float64(i) / audio.SampleRate
			f := 200 - 35*t
			phase += 2 * math.Pi * f / audio.SampleRate
			out[i] = float32(0.5*math.Sin(phase) + 0.15*math.Sin(2*phase))
		}
	}
	return audio.NewBuffer(out)
}

// HelloWorld is a two-second utterance with the default segments.
func HelloWorld() audio.Buffer {
	return Speech(2)
}

// Silence returns seconds of digital silence.
func Silence(seconds float64) audio.Buffer {
	return audio.NewBuffer(make([]float32, int(seconds*audio.SampleRate)))
}

// WAV encodes b as a 16-bit WAV file and returns its bytes.
func WAV(tb testing.TB, b audio.Buffer) []byte {
	tb.Helper()
	data, err := audio.WAVBytes(b)
	if err != nil {
		tb.Fatalf("audiotest: encode: %v", err)
	}
	return data
}
