package scoring

import (
	"math"

	"github.com/MrWong99/prosodia/pkg/types"
)

// Neutral scores used when a comparison is undefined.
const (
	sparsePitchScore       = 40
	undefinedSimilarity    = 60
	noReferenceRhythmScore = 70
	sparseRegularityScore  = 70
)

// EvaluatePitch rewards natural pitch variation and, when the reference has
// a contour, similarity of contour shape (30% variation, 70% similarity).
func EvaluatePitch(p types.IntonationPattern, ref types.ReferencePattern) float64 {
	voiced := p.Voiced()
	if len(voiced) < minVoicedFrames {
		return sparsePitchScore
	}
	_, std := meanStd(voiced)
	variation := pitchVariationBand.score(std)
	if len(ref.PitchContour) < 2 {
		return variation
	}

	similarity := float64(undefinedSimilarity)
	if r, ok := correlation(voiced, ref.PitchContour); ok {
		similarity = math.Max(40, 50+50*r)
	}
	return 0.3*variation + 0.7*similarity
}

// EvaluateRhythm blends interval consistency (40%), pace (35%) and
// similarity to the reference's mean interval (25%).
func EvaluateRhythm(p types.IntonationPattern, ref types.ReferencePattern) float64 {
	intervals := p.RhythmIntervals
	if len(intervals) == 0 {
		intervals = []float64{0.3, 0.5}
	}
	mean, _ := meanStd(intervals)
	consistency := rhythmConsistencyBand.score(cv(intervals))
	pace := rhythmPaceBand.score(mean)

	similarity := float64(noReferenceRhythmScore)
	if refMean, _ := meanStd(ref.RhythmIntervals); refMean > 0 {
		similarity = rhythmSimilarityBand.score(math.Abs(mean-refMean) / refMean)
	}
	return 0.4*consistency + 0.35*pace + 0.25*similarity
}

// EvaluateStress rewards a stress-point count near one per three words
// (60%) and regular spacing between stress points (40%).
func EvaluateStress(p types.IntonationPattern, words int) float64 {
	expected := math.Max(1, float64(words)/3)
	count := float64(len(p.StressPoints))
	countScore := stressCountBand.score(math.Abs(count-expected) / expected)

	regularity := float64(sparseRegularityScore)
	if len(p.StressPoints) >= 3 {
		gaps := make([]float64, len(p.StressPoints)-1)
		for i := range gaps {
			gaps[i] = float64(p.StressPoints[i+1] - p.StressPoints[i])
		}
		regularity = stressRegularityBand.score(cv(gaps))
	}
	return 0.6*countScore + 0.4*regularity
}

// EvaluateFluency averages the silence-ratio, speech-rate and
// amplitude-variation scores. Speech rate is estimated as target words per
// voiced second.
func EvaluateFluency(m types.FluencyMetrics, words int) float64 {
	silence := fluencySilenceBand.score(m.SilenceRatio)

	rate := fluencyRateBand.floor
	if m.SpeechRate > 0 {
		rate = fluencyRateBand.score(float64(words) / m.SpeechRate)
	}
	variation := fluencyVariationBand.score(m.VariationRate)
	return (silence + rate + variation) / 3
}
