package prosody

import "github.com/MrWong99/prosodia/pkg/audio"

// voicedEnergyRatio is the fraction of the buffer's mean squared amplitude a
// frame's mean squared amplitude must exceed to count as voiced.
const voicedEnergyRatio = 0.1

// PlaceholderRhythm is returned when no voiced segment is found, so that
// interval statistics stay defined.
var PlaceholderRhythm = []float64{0.3, 0.5}

// RhythmIntervals returns the durations, in seconds, of contiguous voiced
// segments. The second return value is true when no segment was found and
// the placeholder sequence was returned instead.
func RhythmIntervals(buf audio.Buffer) ([]float64, bool) {
	samples := buf.Float64()
	return rhythm(samples, frames(samples))
}

func rhythm(samples []float64, fs [][]float64) ([]float64, bool) {
	if len(samples) == 0 || len(fs) == 0 {
		return placeholder(), true
	}
	threshold := voicedEnergyRatio * energy(samples) / float64(len(samples))

	var out []float64
	run := 0
	for _, f := range fs {
		if energy(f)/float64(len(f)) > threshold {
			run++
			continue
		}
		if run > 0 {
			out = append(out, float64(run)*FrameSeconds)
			run = 0
		}
	}
	if run > 0 {
		out = append(out, float64(run)*FrameSeconds)
	}
	if len(out) == 0 {
		return placeholder(), true
	}
	return out, false
}

func placeholder() []float64 {
	return append([]float64(nil), PlaceholderRhythm...)
}
