// Package types defines the shared data model used across all prosodia
// packages.
//
// These types form the lingua franca between the audio normalizer, the
// feature extractors, the reference resolver, the scoring engine and the
// feedback generator. Each package keeps its own internal types; the
// cross-cutting records live here to avoid circular imports.
package types

import (
	"strings"
	"time"
)

// Level is a learner proficiency level on the six-band CEFR-like scale.
// The zero value is not a valid level; use [ParseLevel] or one of the
// constants.
type Level int

const (
	LevelA1 Level = iota + 1
	LevelA2
	LevelB1
	LevelB2
	LevelC1
	LevelC2
)

// DefaultLevel is used when a caller supplies an unknown level string.
const DefaultLevel = LevelB1

// Levels lists every valid level from most lenient to strictest.
var Levels = []Level{LevelA1, LevelA2, LevelB1, LevelB2, LevelC1, LevelC2}

var levelNames = map[string]Level{
	"a1":                 LevelA1,
	"a2":                 LevelA2,
	"b1":                 LevelB1,
	"b2":                 LevelB2,
	"c1":                 LevelC1,
	"c2":                 LevelC2,
	"beginner":           LevelA1,
	"elementary":         LevelA2,
	"intermediate":       LevelB1,
	"upper-intermediate": LevelB2,
	"upper_intermediate": LevelB2,
	"advanced":           LevelC1,
	"proficient":         LevelC2,
	"near-native":        LevelC2,
	"near_native":        LevelC2,
}

// ParseLevel maps a CEFR code ("A1".."C2") or level name ("beginner",
// "near-native", ...) to a [Level]. The second return value is false when s
// is not recognised, in which case [DefaultLevel] is returned.
func ParseLevel(s string) (Level, bool) {
	l, ok := levelNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return DefaultLevel, false
	}
	return l, true
}

// IsValid reports whether l is one of the six defined levels.
func (l Level) IsValid() bool {
	return l >= LevelA1 && l <= LevelC2
}

// String returns the CEFR code of the level.
func (l Level) String() string {
	switch l {
	case LevelA1:
		return "A1"
	case LevelA2:
		return "A2"
	case LevelB1:
		return "B1"
	case LevelB2:
		return "B2"
	case LevelC1:
		return "C1"
	case LevelC2:
		return "C2"
	default:
		return "unknown"
	}
}

// MarshalText implements [encoding.TextMarshaler].
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler]. Unknown values decode
// to [DefaultLevel] rather than failing.
func (l *Level) UnmarshalText(b []byte) error {
	*l, _ = ParseLevel(string(b))
	return nil
}

// FluencyMetrics holds the scalar fluency features of one recording.
type FluencyMetrics struct {
	// SilenceRatio is the fraction of samples below 10% of the mean absolute
	// amplitude (0–1). An all-zero buffer has ratio 1.
	SilenceRatio float64 `json:"silence_ratio"`

	// VariationRate is the standard deviation of the first difference of the
	// waveform.
	VariationRate float64 `json:"variation_rate"`

	// SpeechRate is the voiced duration in seconds. The scoring engine divides
	// the target word count by it to estimate words per second.
	SpeechRate float64 `json:"speech_rate"`

	// Duration is the total buffer length in seconds.
	Duration float64 `json:"duration"`
}

// IntonationPattern is the set of prosodic features extracted from one
// recording. It is produced once per request and never mutated.
type IntonationPattern struct {
	// PitchContour holds one normalised pitch value in [0,1] per analysis
	// frame. Unvoiced or silent frames are 0.
	PitchContour []float64 `json:"pitch_contour"`

	// StressPoints are the frame indices judged as stressed.
	StressPoints []int `json:"stress_points"`

	// RhythmIntervals are the durations, in seconds, of contiguous voiced
	// segments.
	RhythmIntervals []float64 `json:"rhythm_intervals"`

	// PlaceholderRhythm is true when no voiced segment was found and
	// RhythmIntervals carries the default placeholder sequence.
	PlaceholderRhythm bool `json:"placeholder_rhythm"`

	// Fluency carries the whole-buffer fluency metrics.
	Fluency FluencyMetrics `json:"fluency"`

	// Frames is the number of analysis frames.
	Frames int `json:"frames"`

	// VoicedFrames is the number of frames with a non-zero pitch value.
	VoicedFrames int `json:"voiced_frames"`
}

// Voiced returns the non-zero values of the pitch contour in time order.
func (p IntonationPattern) Voiced() []float64 {
	out := make([]float64, 0, p.VoicedFrames)
	for _, v := range p.PitchContour {
		if v > 0 {
			out = append(out, v)
		}
	}
	return out
}

// Tier identifies which fallback tier produced a [ReferencePattern].
type Tier string

const (
	TierCurated   Tier = "curated"
	TierSynthetic Tier = "synthetic"
	TierHeuristic Tier = "heuristic"
)

// ReferencePattern is the expected prosody for a target phrase.
type ReferencePattern struct {
	// Text is the normalised target phrase.
	Text string `json:"text"`

	// Words are the lower-cased alphabetic tokens of Text.
	Words []string `json:"words"`

	// Syllables is the expected syllable count summed across words.
	Syllables int `json:"syllables"`

	// StressPattern is the concatenated 0/1 stress pattern of all words.
	StressPattern []int `json:"stress_pattern"`

	// PitchContour holds expected normalised pitch values in [0,1].
	PitchContour []float64 `json:"pitch_contour"`

	// RhythmIntervals optionally holds expected voiced-segment durations in
	// seconds.
	RhythmIntervals []float64 `json:"rhythm_intervals,omitempty"`

	// Phonemes is the concatenated phoneme sequence of every word found in
	// the dictionary. Empty for the heuristic tier.
	Phonemes []string `json:"phonemes,omitempty"`

	// Tier records which resolver tier produced the pattern.
	Tier Tier `json:"tier"`
}

// Score is the pronunciation assessment returned for one request. Every score
// is in [0,100] and Confidence is in [0,1].
type Score struct {
	Overall       float64            `json:"overall_score"`
	Pitch         float64            `json:"pitch_score"`
	Rhythm        float64            `json:"rhythm_score"`
	Stress        float64            `json:"stress_score"`
	Fluency       float64            `json:"fluency_score"`
	PhonemeScores map[string]float64 `json:"phoneme_scores"`
	Feedback      []string           `json:"detailed_feedback"`
	Suggestions   []string           `json:"suggestions"`
	Confidence    float64            `json:"confidence"`

	// Level is the proficiency level the score was computed for.
	Level Level `json:"level"`

	// ReferenceTier records which reference tier the score was compared
	// against.
	ReferenceTier Tier `json:"reference_tier"`
}

// Dimension names one of the four scored dimensions.
type Dimension string

const (
	DimensionPitch   Dimension = "pitch"
	DimensionRhythm  Dimension = "rhythm"
	DimensionStress  Dimension = "stress"
	DimensionFluency Dimension = "fluency"
)

// Dimensions lists the four dimensions in their fixed tie-break order.
var Dimensions = []Dimension{DimensionPitch, DimensionRhythm, DimensionStress, DimensionFluency}

// Of returns the score of dimension d.
func (s Score) Of(d Dimension) float64 {
	switch d {
	case DimensionPitch:
		return s.Pitch
	case DimensionRhythm:
		return s.Rhythm
	case DimensionStress:
		return s.Stress
	case DimensionFluency:
		return s.Fluency
	}
	return 0
}

// Difficulty is the pronunciation difficulty tier of a single word.
type Difficulty string

const (
	DifficultyEasy     Difficulty = "easy"
	DifficultyMedium   Difficulty = "medium"
	DifficultyHard     Difficulty = "hard"
	DifficultyVeryHard Difficulty = "very_hard"
)

// ReferenceInfo is the read-only description of a dictionary word returned by
// the secondary query surface.
type ReferenceInfo struct {
	Word          string     `json:"word"`
	Phonemes      []string   `json:"phonemes"`
	IPA           string     `json:"ipa"`
	SyllableCount int        `json:"syllable_count"`
	StressPattern []int      `json:"stress_pattern"`
	Difficulty    Difficulty `json:"difficulty"`
	FrequencyRank int        `json:"frequency_rank"`
}

// Comparison is the result of scoring a recording against a single reference
// word.
type Comparison struct {
	Word             string      `json:"reference_word"`
	Score            Score       `json:"user_pronunciation"`
	Strengths        []Dimension `json:"strengths"`
	ImprovementAreas []Dimension `json:"improvement_areas"`
}

// VoiceProfile describes a TTS voice used to render reference utterances.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which TTS provider this voice belongs to.
	Provider string

	// SpeedFactor adjusts speaking rate (0.5–2.0, 1.0 = default). Zero means
	// provider default.
	SpeedFactor float64

	// Metadata holds provider-specific voice attributes.
	Metadata map[string]string
}

// SynthesisTimeout is the default upper bound on one reference-voice
// synthesis round-trip.
const SynthesisTimeout = 5 * time.Second
