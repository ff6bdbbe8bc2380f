// Package scoring turns extracted prosodic features and a reference pattern
// into bounded pronunciation scores.
//
// Each dimension has its own evaluator mapping raw features onto [0,100]
// through piecewise-linear bands with an absolute floor. [Evaluate] blends
// the four dimensions, applies the proficiency-level multiplier and the
// per-dimension clamps, estimates confidence from data sufficiency and
// decomposes the overall score across the reference phonemes. Everything is
// deterministic.
package scoring

import (
	"math"

	"github.com/MrWong99/prosodia/pkg/phonetic"
	"github.com/MrWong99/prosodia/pkg/types"
)

// Overall blend weights.
const (
	WeightPitch   = 0.30
	WeightRhythm  = 0.35
	WeightStress  = 0.15
	WeightFluency = 0.20
)

// minVoicedFrames is the number of voiced pitch frames below which the
// recording counts as insufficient data.
const minVoicedFrames = 3

// minVoicedCoverage is the voiced share of analysis frames below which the
// recording counts as insufficient data.
const minVoicedCoverage = 0.15

// insufficientCap caps every raw dimension score when data is insufficient.
const insufficientCap = 50

// Confidence model. Data sufficiency reaches 1 once fullVoicedCoverage of
// the frames are voiced and the voiced time covers secondsPerSyllable for
// every expected syllable.
const (
	fullVoicedCoverage  = 0.4
	secondsPerSyllable  = 0.15
	insufficientMaxConf = 0.5
)

// Score bounds per dimension.
var (
	overallBounds = [2]float64{40, 100}
	pitchBounds   = [2]float64{20, 100}
	rhythmBounds  = [2]float64{20, 100}
	stressBounds  = [2]float64{50, 100}
	fluencyBounds = [2]float64{50, 100}
)

var levelMultipliers = map[types.Level]float64{
	types.LevelA1: 1.15,
	types.LevelA2: 1.10,
	types.LevelB1: 1.05,
	types.LevelB2: 1.00,
	types.LevelC1: 0.975,
	types.LevelC2: 0.95,
}

// Multiplier returns the leniency multiplier for level. Invalid levels use
// the default level's multiplier.
func Multiplier(level types.Level) float64 {
	if m, ok := levelMultipliers[level]; ok {
		return m
	}
	return levelMultipliers[types.DefaultLevel]
}

// Raw holds the unscaled per-dimension scores.
type Raw struct {
	Pitch, Rhythm, Stress, Fluency float64
}

// Weighted returns the blended overall score before level adjustment.
func (r Raw) Weighted() float64 {
	return WeightPitch*r.Pitch + WeightRhythm*r.Rhythm + WeightStress*r.Stress + WeightFluency*r.Fluency
}

// Insufficient reports whether p carries too little voiced data for reliable
// scoring: too few voiced frames, or voiced frames that make up only a sliver
// of a mostly silent recording.
func Insufficient(p types.IntonationPattern) bool {
	return p.VoicedFrames < minVoicedFrames || voicedCoverage(p) < minVoicedCoverage
}

// voicedCoverage is the fraction of analysis frames that carry pitch.
func voicedCoverage(p types.IntonationPattern) float64 {
	frames := p.Frames
	if frames == 0 {
		frames = len(p.PitchContour)
	}
	if frames == 0 {
		return 0
	}
	return math.Min(1, float64(p.VoicedFrames)/float64(frames))
}

// Dimensions evaluates the four raw dimension scores. When the recording has
// insufficient data each score is capped.
func Dimensions(p types.IntonationPattern, ref types.ReferencePattern) Raw {
	r := Raw{
		Pitch:   EvaluatePitch(p, ref),
		Rhythm:  EvaluateRhythm(p, ref),
		Stress:  EvaluateStress(p, len(ref.Words)),
		Fluency: EvaluateFluency(p.Fluency, len(ref.Words)),
	}
	if Insufficient(p) {
		r.Pitch = math.Min(r.Pitch, insufficientCap)
		r.Rhythm = math.Min(r.Rhythm, insufficientCap)
		r.Stress = math.Min(r.Stress, insufficientCap)
		r.Fluency = math.Min(r.Fluency, insufficientCap)
	}
	return r
}

// Evaluate produces the full score for one recording. Feedback and
// suggestions are left empty for the feedback generator to fill.
func Evaluate(p types.IntonationPattern, ref types.ReferencePattern, level types.Level) types.Score {
	if !level.IsValid() {
		level = types.DefaultLevel
	}
	raw := Dimensions(p, ref)
	return Scale(raw, level, p, ref)
}

// Scale applies the level multiplier and clamps to raw, then adds
// confidence and phoneme scores.
func Scale(raw Raw, level types.Level, p types.IntonationPattern, ref types.ReferencePattern) types.Score {
	m := Multiplier(level)
	overall := round1(clamp(raw.Weighted()*m, overallBounds[0], overallBounds[1]))
	return types.Score{
		Overall:       overall,
		Pitch:         round1(clamp(raw.Pitch*m, pitchBounds[0], pitchBounds[1])),
		Rhythm:        round1(clamp(raw.Rhythm*m, rhythmBounds[0], rhythmBounds[1])),
		Stress:        round1(clamp(raw.Stress*m, stressBounds[0], stressBounds[1])),
		Fluency:       round1(clamp(raw.Fluency*m, fluencyBounds[0], fluencyBounds[1])),
		PhonemeScores: PhonemeScores(ref.Phonemes, overall),
		Confidence:    Confidence(p, ref),
		Level:         level,
		ReferenceTier: ref.Tier,
	}
}

// phonemeOffsets shift the overall score for sounds that are typically
// harder (negative) or easier (positive) for learners.
var phonemeOffsets = map[string]float64{
	"TH": -10, "DH": -10,
	"R": -8,
	"L": -5, "V": -5,
	"W": -3,
	"B": 2, "P": 2,
	"M": 3, "N": 3,
}

// PhonemeScores decomposes overall across the distinct phonemes of the
// reference. Without phonemes the map holds a single "overall" entry.
func PhonemeScores(phonemes []string, overall float64) map[string]float64 {
	if len(phonemes) == 0 {
		return map[string]float64{"overall": overall}
	}
	out := make(map[string]float64, len(phonemes))
	for _, ph := range phonemes {
		base := phonetic.BasePhoneme(ph)
		out[base] = round1(clamp(overall+phonemeOffsets[base], 0, 100))
	}
	return out
}

// Confidence estimates how reliable a score is. Evidence of speech structure
// (rhythm intervals, stress points, a plausible contour) only counts in
// proportion to how much of the recording is voiced relative to what ref
// expects, and insufficient data never exceeds 0.5. The result is in
// [0.4, 0.95].
func Confidence(p types.IntonationPattern, ref types.ReferencePattern) float64 {
	evidence := 0.2
	if !p.PlaceholderRhythm {
		switch {
		case len(p.RhythmIntervals) >= 2:
			evidence += 0.15
		case len(p.RhythmIntervals) == 1:
			evidence += 0.05
		}
	}
	if len(p.StressPoints) >= 1 {
		evidence += 0.1
	}
	if voiced := p.Voiced(); len(voiced) >= 2 {
		if _, std := meanStd(voiced); std >= 0.01 && std <= 0.4 {
			evidence += 0.1
		}
	}

	c := 0.4 + sufficiency(p, ref)*evidence
	if Insufficient(p) {
		c = math.Min(c, insufficientMaxConf)
	}
	return math.Round(clamp(c, 0.4, 0.95)*100) / 100
}

// sufficiency rates the amount of voiced material in [0,1]: the smaller of
// the voiced frame coverage and the voiced time against the expected
// syllable count.
func sufficiency(p types.IntonationPattern, ref types.ReferencePattern) float64 {
	coverage := voicedCoverage(p) / fullVoicedCoverage
	syllables := max(ref.Syllables, len(ref.Words), 1)
	speech := p.Fluency.SpeechRate / (float64(syllables) * secondsPerSyllable)
	return clamp(math.Min(coverage, speech), 0, 1)
}
