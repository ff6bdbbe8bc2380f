package prosody

import (
	"github.com/MrWong99/prosodia/pkg/audio"
	"github.com/MrWong99/prosodia/pkg/types"
)

// Extract runs every extractor over buf, framing the buffer and tracking
// pitch once for all of them.
func Extract(buf audio.Buffer) types.IntonationPattern {
	samples := buf.Float64()
	fs := frames(samples)
	hz := frequencies(fs)

	contour := make([]float64, len(hz))
	voiced := 0
	for i, f := range hz {
		contour[i] = normalizePitch(f)
		if contour[i] > 0 {
			voiced++
		}
	}
	intervals, placeholder := rhythm(samples, fs)

	return types.IntonationPattern{
		PitchContour:      contour,
		StressPoints:      detectStress(fs, hz),
		RhythmIntervals:   intervals,
		PlaceholderRhythm: placeholder,
		Fluency:           fluency(samples),
		Frames:            len(fs),
		VoicedFrames:      voiced,
	}
}
