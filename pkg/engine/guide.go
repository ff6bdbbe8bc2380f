package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/prosodia/pkg/audio"
	"github.com/MrWong99/prosodia/pkg/feedback"
	"github.com/MrWong99/prosodia/pkg/phonetic"
	"github.com/MrWong99/prosodia/pkg/provider/tts"
	"github.com/MrWong99/prosodia/pkg/types"
)

// ErrNoGuideVoice is returned by [Engine.Guide] when no TTS provider is
// configured.
var ErrNoGuideVoice = errors.New("engine: no guide voice configured")

// guideStressThreshold is the stress score below which the guide text marks
// stressed words.
const guideStressThreshold = 70

// baseWordsPerMinute is the neutral TTS speaking rate.
const baseWordsPerMinute = 150

// guideWordsPerMinute slows the guide down for beginners.
var guideWordsPerMinute = map[types.Level]float64{
	types.LevelA1: 120,
	types.LevelA2: 130,
	types.LevelB1: 140,
	types.LevelB2: 150,
	types.LevelC1: 160,
	types.LevelC2: 170,
}

// GuideSpeed returns the TTS speed factor for level.
func GuideSpeed(level types.Level) float64 {
	wpm, ok := guideWordsPerMinute[level]
	if !ok {
		wpm = guideWordsPerMinute[types.DefaultLevel]
	}
	return wpm / baseWordsPerMinute
}

// GuideText upper-cases every word whose dictionary entry carries primary
// stress. Punctuation and unknown words are kept as written.
func (e *Engine) GuideText(text string) string {
	fields := strings.Fields(text)
	for i, f := range fields {
		if entry, ok := e.dict.Lookup(phonetic.NormalizeWord(f)); ok && entry.HasPrimaryStress() {
			fields[i] = strings.ToUpper(f)
		}
	}
	return strings.Join(fields, " ")
}

// Guide renders a model reading of text as a WAV file at the voice's own
// sample rate, spoken at the level's guide speed. Stressed words are marked when stressScore is below
// the guide threshold.
func (e *Engine) Guide(ctx context.Context, text string, level types.Level, stressScore float64) ([]byte, error) {
	if e.guide == nil {
		return nil, ErrNoGuideVoice
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrMissingText
	}
	ctx, span := e.tracer.Start(ctx, "engine.Guide")
	defer span.End()

	if !level.IsValid() {
		level = e.defaultLevel
	}
	if stressScore < guideStressThreshold {
		text = e.GuideText(text)
	}
	voice := e.voice
	voice.SpeedFactor = GuideSpeed(level)

	t := time.Now()
	buf, err := tts.SynthesizeNative(ctx, e.guide, text, voice)
	e.rec.RecordStage(ctx, StageGuide, time.Since(t))
	if err != nil {
		return nil, fmt.Errorf("engine: guide: %w", err)
	}
	return audio.WAVBytes(buf)
}

// FeatureSet describes what the engine supports.
type FeatureSet struct {
	Dimensions          []types.Dimension `json:"analysis_dimensions"`
	PhonemeAnalysis     bool              `json:"phoneme_analysis"`
	LevelAdaptive       bool              `json:"level_adaptive"`
	ComparativeAnalysis bool              `json:"comparative_analysis"`
	CorrectedAudioGuide bool              `json:"corrected_audio_guide"`
	SupportedLevels     []string          `json:"supported_levels"`
	AudioContainers     []string          `json:"audio_containers"`
	ReferenceTiers      []types.Tier      `json:"reference_tiers"`
	SampleRate          int               `json:"sample_rate"`
	MaxFeedbackItems    int               `json:"max_feedback_items"`
}

// Features reports the engine's capabilities.
func (e *Engine) Features() FeatureSet {
	levels := make([]string, 0, len(types.Levels))
	for _, l := range types.Levels {
		levels = append(levels, l.String())
	}
	tiers := []types.Tier{types.TierCurated}
	if e.resolver.HasSynthesizer() {
		tiers = append(tiers, types.TierSynthetic)
	}
	tiers = append(tiers, types.TierHeuristic)
	return FeatureSet{
		Dimensions:          types.Dimensions,
		PhonemeAnalysis:     true,
		LevelAdaptive:       true,
		ComparativeAnalysis: true,
		CorrectedAudioGuide: e.guide != nil,
		SupportedLevels:     levels,
		AudioContainers:     []string{string(audio.ContainerWAV), string(audio.ContainerOggOpus)},
		ReferenceTiers:      tiers,
		SampleRate:          audio.SampleRate,
		MaxFeedbackItems:    feedback.MaxItems,
	}
}
