package prosody

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/MrWong99/prosodia/pkg/audio"
	"github.com/MrWong99/prosodia/pkg/types"
)

// silenceAmplitudeRatio is the fraction of the mean absolute amplitude below
// which a sample counts as silence.
const silenceAmplitudeRatio = 0.1

// Fluency computes the whole-buffer fluency metrics.
func Fluency(buf audio.Buffer) types.FluencyMetrics {
	return fluency(buf.Float64())
}

func fluency(samples []float64) types.FluencyMetrics {
	duration := float64(len(samples)) / audio.SampleRate
	m := types.FluencyMetrics{SilenceRatio: 1, Duration: duration}
	if len(samples) == 0 {
		return m
	}

	var meanAbs float64
	for _, s := range samples {
		meanAbs += math.Abs(s)
	}
	meanAbs /= float64(len(samples))

	if meanAbs > 0 {
		threshold := silenceAmplitudeRatio * meanAbs
		silent := 0
		for _, s := range samples {
			if math.Abs(s) < threshold {
				silent++
			}
		}
		m.SilenceRatio = float64(silent) / float64(len(samples))
	}

	if len(samples) > 1 {
		diff := make([]float64, len(samples)-1)
		for i := range diff {
			diff[i] = samples[i+1] - samples[i]
		}
		m.VariationRate = math.Sqrt(stat.PopVariance(diff, nil))
	}

	m.SpeechRate = (1 - m.SilenceRatio) * duration
	return m
}
