// Package feedback turns a pronunciation score into prioritised,
// human-readable feedback and practice suggestions. It is a pure function of
// the five scores and the proficiency level.
package feedback

import (
	"sort"

	"github.com/MrWong99/prosodia/pkg/types"
)

// MaxItems bounds both output lists.
const MaxItems = 3

// weakThreshold is the dimension score below which a dimension gets its own
// feedback sentence and suggestion.
const weakThreshold = 70

// maxDimensionItems leaves room for the per-level suggestion.
const maxDimensionItems = MaxItems - 1

type overallBand struct {
	min     float64
	message string
}

// overallBands are checked in order; the first band whose minimum the
// overall score reaches wins.
var overallBands = []overallBand{
	{94, "Excellent pronunciation! Your speech sounds very natural."},
	{88, "Very good pronunciation with only minor areas to polish."},
	{78, "Good pronunciation, but some aspects need attention."},
	{68, "Fair pronunciation with several areas to work on."},
	{55, "Your pronunciation is developing; keep practising the basics."},
	{0, "Pronunciation needs significant improvement."},
}

type advice struct {
	feedback   string
	suggestion string
}

var dimensionAdvice = map[types.Dimension]advice{
	types.DimensionPitch: {
		feedback:   "Your intonation patterns could be more varied.",
		suggestion: "Practice reading with more emotional expression",
	},
	types.DimensionRhythm: {
		feedback:   "Work on maintaining consistent speech rhythm.",
		suggestion: "Practice with a metronome or rhythmic exercises",
	},
	types.DimensionStress: {
		feedback:   "Focus on word and sentence stress patterns.",
		suggestion: "Listen to native speakers and mark stressed syllables",
	},
	types.DimensionFluency: {
		feedback:   "Try to speak more smoothly with fewer pauses.",
		suggestion: "Practice reading aloud daily for fluency",
	},
}

var levelAdvice = map[types.Level]string{
	types.LevelA1: "Focus on clear pronunciation of individual sounds",
	types.LevelA2: "Work on word stress in common vocabulary",
	types.LevelB1: "Develop natural sentence stress patterns",
	types.LevelB2: "Master subtle intonation changes for meaning",
	types.LevelC1: "Refine subtle pronunciation nuances",
	types.LevelC2: "Perfect near-native pronunciation features",
}

// Headline returns the top-line sentence for an overall score.
func Headline(overall float64) string {
	for _, b := range overallBands {
		if overall >= b.min {
			return b.message
		}
	}
	return overallBands[len(overallBands)-1].message
}

// Weak returns the dimensions scoring below the feedback threshold, lowest
// score first. Ties keep the fixed pitch, rhythm, stress, fluency order.
func Weak(s types.Score) []types.Dimension {
	var out []types.Dimension
	for _, d := range types.Dimensions {
		if s.Of(d) < weakThreshold {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return s.Of(out[i]) < s.Of(out[j])
	})
	return out
}

// Generate returns the feedback and suggestion lists for s at level. Both
// lists hold at most [MaxItems] entries and feedback is never empty.
func Generate(s types.Score, level types.Level) (feedback, suggestions []string) {
	feedback = append(feedback, Headline(s.Overall))
	for _, d := range Weak(s) {
		if len(suggestions) == maxDimensionItems {
			break
		}
		a := dimensionAdvice[d]
		feedback = append(feedback, a.feedback)
		suggestions = append(suggestions, a.suggestion)
	}
	if !level.IsValid() {
		level = types.DefaultLevel
	}
	suggestions = append(suggestions, levelAdvice[level])
	return feedback, suggestions
}

// Apply fills the feedback fields of s in place and returns it.
func Apply(s types.Score) types.Score {
	s.Feedback, s.Suggestions = Generate(s, s.Level)
	return s
}
