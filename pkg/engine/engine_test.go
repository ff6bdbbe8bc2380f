package engine_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"reflect"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/prosodia/pkg/audio"
	"github.com/MrWong99/prosodia/pkg/audio/audiotest"
	"github.com/MrWong99/prosodia/pkg/engine"
	"github.com/MrWong99/prosodia/pkg/phonetic"
	"github.com/MrWong99/prosodia/pkg/provider/tts/mock"
	"github.com/MrWong99/prosodia/pkg/reference"
	"github.com/MrWong99/prosodia/pkg/types"
)

// fakeRecorder captures every measurement. Safe for concurrent use.
type fakeRecorder struct {
	mu       sync.Mutex
	analyses []types.Tier
	stages   map[string]int
	degraded []string
	inFlight int64
	peak     int64
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{stages: make(map[string]int)}
}

func (r *fakeRecorder) RecordAnalysis(_ context.Context, _ types.Level, tier types.Tier, _ time.Duration, _ float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.analyses = append(r.analyses, tier)
}

func (r *fakeRecorder) RecordStage(_ context.Context, stage string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages[stage]++
}

func (r *fakeRecorder) RecordDegraded(_ context.Context, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.degraded = append(r.degraded, reason)
}

func (r *fakeRecorder) AddInFlight(_ context.Context, delta int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inFlight += delta
	r.peak = max(r.peak, r.inFlight)
}

func newEngine(t *testing.T, opts ...engine.Option) *engine.Engine {
	t.Helper()
	store := phonetic.NewBuiltin()
	return engine.New(store, reference.NewResolver(store), opts...)
}

func checkBounds(t *testing.T, s types.Score) {
	t.Helper()
	for _, d := range types.Dimensions {
		if v := s.Of(d); v < 0 || v > 100 {
			t.Errorf("%s = %v out of [0,100]", d, v)
		}
	}
	if s.Overall < 0 || s.Overall > 100 {
		t.Errorf("overall = %v out of [0,100]", s.Overall)
	}
	if s.Confidence < 0.4 || s.Confidence > 0.95 {
		t.Errorf("confidence = %v out of [0.4,0.95]", s.Confidence)
	}
	if len(s.Feedback) == 0 || len(s.Feedback) > 3 || len(s.Suggestions) > 3 {
		t.Errorf("feedback/suggestions lengths = %d/%d", len(s.Feedback), len(s.Suggestions))
	}
}

func TestAnalyze_HelloWorld(t *testing.T) {
	e := newEngine(t)
	wav := audiotest.WAV(t, audiotest.HelloWorld())

	s := e.Analyze(context.Background(), engine.Request{Audio: wav, Text: "Hello, world!", Level: types.LevelA1})
	checkBounds(t, s)
	if s.Overall < 60 {
		t.Errorf("overall = %v, want at least 60", s.Overall)
	}
	if s.Confidence < 0.6 {
		t.Errorf("confidence = %v, want at least 0.6", s.Confidence)
	}
	if s.ReferenceTier != types.TierCurated {
		t.Errorf("tier = %s, want curated", s.ReferenceTier)
	}
	if s.Level != types.LevelA1 {
		t.Errorf("level = %s, want A1", s.Level)
	}
	if _, ok := s.PhonemeScores["HH"]; !ok {
		t.Errorf("phoneme scores missing HH: %v", s.PhonemeScores)
	}
}

func TestAnalyze_EmptyAudio(t *testing.T) {
	rec := newFakeRecorder()
	e := newEngine(t, engine.WithRecorder(rec))

	s := e.Analyze(context.Background(), engine.Request{Text: "hello world", Level: types.LevelB1})
	checkBounds(t, s)
	if s.Overall < 40 {
		t.Errorf("overall = %v, want at least 40", s.Overall)
	}
	if s.Confidence > 0.5 {
		t.Errorf("confidence = %v, want at most 0.5", s.Confidence)
	}
	if !slices.Contains(rec.degraded, "decode") || !slices.Contains(rec.degraded, "insufficient_data") {
		t.Errorf("degraded = %v, want decode and insufficient_data", rec.degraded)
	}
}

func TestAnalyze_UndecodableAudio(t *testing.T) {
	e := newEngine(t)
	s := e.Analyze(context.Background(), engine.Request{Audio: []byte("definitely not audio"), Text: "water"})
	checkBounds(t, s)
	if s.Level != types.DefaultLevel {
		t.Errorf("level = %s, want default %s", s.Level, types.DefaultLevel)
	}
}

func TestAnalyze_StrictnessIsMonotonic(t *testing.T) {
	e := newEngine(t)
	wav := audiotest.WAV(t, audiotest.HelloWorld())
	ctx := context.Background()

	prev := math.Inf(1)
	for _, l := range types.Levels {
		s := e.Analyze(ctx, engine.Request{Audio: wav, Text: "hello world", Level: l})
		if s.Overall > prev+1e-9 {
			t.Errorf("%s overall %v exceeds more lenient level's %v", l, s.Overall, prev)
		}
		prev = s.Overall
	}
}

func TestAnalyze_Deterministic(t *testing.T) {
	e := newEngine(t, engine.WithWorkers(2))
	req := engine.Request{Audio: audiotest.WAV(t, audiotest.HelloWorld()), Text: "hello world", Level: types.LevelB2}

	a := e.Analyze(context.Background(), req)
	b := e.Analyze(context.Background(), req)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("scores differ:\n%+v\n%+v", a, b)
	}
}

func TestAnalyze_HeuristicReference(t *testing.T) {
	e := newEngine(t)
	s := e.Analyze(context.Background(), engine.Request{
		Audio: audiotest.WAV(t, audiotest.HelloWorld()),
		Text:  "zorblax quixotic",
	})
	checkBounds(t, s)
	if s.ReferenceTier != types.TierHeuristic {
		t.Errorf("tier = %s, want heuristic", s.ReferenceTier)
	}
}

func TestAnalyze_SyntheticReference(t *testing.T) {
	store := phonetic.NewBuiltin()
	prov := &mock.Provider{SynthesizeChunks: [][]byte{audio.EncodePCM16(audiotest.HelloWorld().Samples)}}
	synth := reference.NewTTSSynthesizer(prov, types.VoiceProfile{ID: "ref"})
	e := engine.New(store, reference.NewResolver(store, reference.WithSynthesizer(synth)))

	s := e.Analyze(context.Background(), engine.Request{
		Audio: audiotest.WAV(t, audiotest.HelloWorld()),
		Text:  "hello zorblax",
	})
	checkBounds(t, s)
	if s.ReferenceTier != types.TierSynthetic {
		t.Errorf("tier = %s, want synthetic", s.ReferenceTier)
	}
	if prov.Calls() != 1 {
		t.Errorf("synthesizer calls = %d, want 1", prov.Calls())
	}
}

func TestAnalyze_CancelledContext(t *testing.T) {
	rec := newFakeRecorder()
	e := newEngine(t, engine.WithRecorder(rec))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := e.Analyze(ctx, engine.Request{Audio: audiotest.WAV(t, audiotest.HelloWorld()), Text: "hello world"})
	checkBounds(t, s)
	if s.ReferenceTier == "" {
		t.Error("reference tier is empty after cancellation")
	}
	if len(rec.analyses) != 1 {
		t.Errorf("RecordAnalysis calls = %d, want 1", len(rec.analyses))
	}
}

func TestAnalyze_Recorder(t *testing.T) {
	rec := newFakeRecorder()
	e := newEngine(t, engine.WithRecorder(rec))
	e.Analyze(context.Background(), engine.Request{Audio: audiotest.WAV(t, audiotest.HelloWorld()), Text: "hello world"})

	if !slices.Equal(rec.analyses, []types.Tier{types.TierCurated}) {
		t.Errorf("analyses = %v", rec.analyses)
	}
	for _, stage := range []string{engine.StageDecode, engine.StageExtract, engine.StageReference, engine.StageScore} {
		if rec.stages[stage] != 1 {
			t.Errorf("stage %s recorded %d times, want 1", stage, rec.stages[stage])
		}
	}
	if len(rec.degraded) != 0 {
		t.Errorf("degraded = %v, want none", rec.degraded)
	}
	if rec.inFlight != 0 || rec.peak != 1 {
		t.Errorf("in-flight = %d (peak %d), want 0 (peak 1)", rec.inFlight, rec.peak)
	}
}

func TestAnalyze_Concurrent(t *testing.T) {
	e := newEngine(t, engine.WithWorkers(2))
	wav := audiotest.WAV(t, audiotest.HelloWorld())
	want := e.Analyze(context.Background(), engine.Request{Audio: wav, Text: "hello world"})

	var wg sync.WaitGroup
	scores := make([]types.Score, 8)
	for i := range scores {
		wg.Add(1)
		go func() {
			defer wg.Done()
			scores[i] = e.Analyze(context.Background(), engine.Request{Audio: wav, Text: "hello world"})
		}()
	}
	wg.Wait()
	for i, s := range scores {
		if !reflect.DeepEqual(s, want) {
			t.Errorf("concurrent score %d differs from sequential score", i)
		}
	}
}

func TestRequest_Validate(t *testing.T) {
	tests := []struct {
		name string
		req  engine.Request
		want error
	}{
		{name: "valid", req: engine.Request{Text: "hello"}},
		{name: "empty text", req: engine.Request{Audio: []byte{1}}, want: engine.ErrMissingText},
		{name: "blank text", req: engine.Request{Text: "  \t"}, want: engine.ErrMissingText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.req.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCompare(t *testing.T) {
	e := newEngine(t)

	t.Run("partition", func(t *testing.T) {
		c := e.Compare(context.Background(), audiotest.WAV(t, audiotest.HelloWorld()), "  Hello ", types.LevelA1)
		if c.Word != "hello" {
			t.Errorf("word = %q, want hello", c.Word)
		}
		for _, d := range c.Strengths {
			if c.Score.Of(d) < 75 {
				t.Errorf("strength %s scores %v", d, c.Score.Of(d))
			}
			if slices.Contains(c.ImprovementAreas, d) {
				t.Errorf("%s is both strength and improvement area", d)
			}
		}
		for _, d := range c.ImprovementAreas {
			if c.Score.Of(d) >= 60 {
				t.Errorf("improvement area %s scores %v", d, c.Score.Of(d))
			}
		}
	})

	t.Run("silence needs pitch work", func(t *testing.T) {
		c := e.Compare(context.Background(), audiotest.WAV(t, audiotest.Silence(1)), "water", types.LevelC2)
		if !slices.Contains(c.ImprovementAreas, types.DimensionPitch) {
			t.Errorf("improvement areas = %v, want pitch", c.ImprovementAreas)
		}
	})
}

func TestReferenceInfo(t *testing.T) {
	e := newEngine(t)

	info, sugg, ok := e.ReferenceInfo(context.Background(), "Important")
	if !ok {
		t.Fatal("important not found")
	}
	if info.Word != "important" || info.SyllableCount != 3 || !slices.Equal(info.StressPattern, []int{0, 1, 0}) {
		t.Errorf("info = %+v", info)
	}
	if info.Difficulty != types.DifficultyVeryHard {
		t.Errorf("difficulty = %s, want very_hard", info.Difficulty)
	}
	if info.IPA == "" || info.FrequencyRank != 25 {
		t.Errorf("ipa = %q, rank = %d", info.IPA, info.FrequencyRank)
	}
	if sugg != nil {
		t.Errorf("suggestions = %v, want none for a known word", sugg)
	}

	info, _, ok = e.ReferenceInfo(context.Background(), "zorblax")
	if ok {
		t.Errorf("zorblax found: %+v", info)
	}
	if info.Word != "zorblax" {
		t.Errorf("word = %q, want zorblax", info.Word)
	}
}

func TestGuideSpeed(t *testing.T) {
	if got := engine.GuideSpeed(types.LevelA1); math.Abs(got-0.8) > 1e-9 {
		t.Errorf("A1 speed = %v, want 0.8", got)
	}
	if got := engine.GuideSpeed(types.LevelB2); got != 1 {
		t.Errorf("B2 speed = %v, want 1", got)
	}
	if engine.GuideSpeed(types.Level(0)) != engine.GuideSpeed(types.DefaultLevel) {
		t.Error("invalid level should use the default speed")
	}
	prev := 0.0
	for _, l := range types.Levels {
		if s := engine.GuideSpeed(l); s <= prev {
			t.Errorf("%s speed %v not above %v", l, s, prev)
		} else {
			prev = s
		}
	}
}

func TestGuideText(t *testing.T) {
	e := newEngine(t)
	tests := []struct {
		in, want string
	}{
		{"Hello, important world!", "HELLO, IMPORTANT WORLD!"},
		{"hello zorblax", "HELLO zorblax"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := e.GuideText(tt.in); got != tt.want {
			t.Errorf("GuideText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestGuide(t *testing.T) {
	pcm := audio.EncodePCM16(audiotest.Silence(0.1).Samples)

	t.Run("no voice", func(t *testing.T) {
		_, err := newEngine(t).Guide(context.Background(), "hello", types.LevelA1, 50)
		if !errors.Is(err, engine.ErrNoGuideVoice) {
			t.Errorf("err = %v, want ErrNoGuideVoice", err)
		}
	})

	t.Run("weak stress marks words", func(t *testing.T) {
		prov := &mock.Provider{SynthesizeChunks: [][]byte{pcm}}
		e := newEngine(t, engine.WithGuideVoice(prov, types.VoiceProfile{ID: "guide", Name: "Guide"}))

		wav, err := e.Guide(context.Background(), "hello world", types.LevelA1, 50)
		if err != nil {
			t.Fatalf("Guide: %v", err)
		}
		if !bytes.HasPrefix(wav, []byte("RIFF")) {
			t.Errorf("output is not a WAV file: % x", wav[:min(len(wav), 12)])
		}
		if prov.Calls() != 1 {
			t.Fatalf("calls = %d, want 1", prov.Calls())
		}
		v := prov.SynthesizeStreamCalls[0].Voice
		if v.ID != "guide" || math.Abs(v.SpeedFactor-0.8) > 1e-9 {
			t.Errorf("voice = %+v, want guide at 0.8", v)
		}
		if prov.Texts[0] != "HELLO WORLD" {
			t.Errorf("text = %q, want HELLO WORLD", prov.Texts[0])
		}
	})

	t.Run("good stress keeps text", func(t *testing.T) {
		prov := &mock.Provider{SynthesizeChunks: [][]byte{pcm}}
		e := newEngine(t, engine.WithGuideVoice(prov, types.VoiceProfile{ID: "guide"}))
		if _, err := e.Guide(context.Background(), "hello world", types.LevelC2, 85); err != nil {
			t.Fatalf("Guide: %v", err)
		}
		if prov.Texts[0] != "hello world" {
			t.Errorf("text = %q, want unchanged", prov.Texts[0])
		}
	})

	t.Run("provider error", func(t *testing.T) {
		prov := &mock.Provider{SynthesizeErr: errors.New("boom")}
		e := newEngine(t, engine.WithGuideVoice(prov, types.VoiceProfile{ID: "guide"}))
		if _, err := e.Guide(context.Background(), "hello", types.LevelB1, 90); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("native sample rate", func(t *testing.T) {
		prov := &mock.Provider{
			SynthesizeChunks: [][]byte{make([]byte, 2*2400)},
			Format:           audio.Format{SampleRate: 24000, Channels: 1},
		}
		e := newEngine(t, engine.WithGuideVoice(prov, types.VoiceProfile{ID: "guide"}))
		wav, err := e.Guide(context.Background(), "hello", types.LevelB1, 50)
		if err != nil {
			t.Fatalf("Guide: %v", err)
		}
		if len(wav) < 44 {
			t.Fatalf("wav too short: %d bytes", len(wav))
		}
		if rate := binary.LittleEndian.Uint32(wav[24:28]); rate != 24000 {
			t.Errorf("wav sample rate = %d, want 24000", rate)
		}
	})

	t.Run("truncated stream", func(t *testing.T) {
		prov := &mock.Provider{SynthesizeChunks: [][]byte{pcm}, StreamErr: errors.New("connection reset")}
		e := newEngine(t, engine.WithGuideVoice(prov, types.VoiceProfile{ID: "guide"}))
		if _, err := e.Guide(context.Background(), "hello", types.LevelB1, 50); err == nil {
			t.Error("expected error for a stream cut short")
		}
	})

	t.Run("empty text", func(t *testing.T) {
		e := newEngine(t, engine.WithGuideVoice(&mock.Provider{}, types.VoiceProfile{ID: "guide"}))
		if _, err := e.Guide(context.Background(), " ", types.LevelB1, 90); !errors.Is(err, engine.ErrMissingText) {
			t.Errorf("err = %v, want ErrMissingText", err)
		}
	})
}

func TestFeatures(t *testing.T) {
	f := newEngine(t).Features()
	if f.CorrectedAudioGuide {
		t.Error("guide reported without a voice")
	}
	if !slices.Equal(f.ReferenceTiers, []types.Tier{types.TierCurated, types.TierHeuristic}) {
		t.Errorf("tiers = %v", f.ReferenceTiers)
	}
	if len(f.SupportedLevels) != 6 || f.SupportedLevels[0] != "A1" || f.SupportedLevels[5] != "C2" {
		t.Errorf("levels = %v", f.SupportedLevels)
	}
	if len(f.Dimensions) != 4 || f.SampleRate != audio.SampleRate || f.MaxFeedbackItems != 3 {
		t.Errorf("features = %+v", f)
	}

	store := phonetic.NewBuiltin()
	synth := reference.NewTTSSynthesizer(&mock.Provider{}, types.VoiceProfile{ID: "ref"})
	full := engine.New(store, reference.NewResolver(store, reference.WithSynthesizer(synth)),
		engine.WithGuideVoice(&mock.Provider{}, types.VoiceProfile{ID: "guide"})).Features()
	if !full.CorrectedAudioGuide {
		t.Error("guide not reported with a voice")
	}
	if !slices.Contains(full.ReferenceTiers, types.TierSynthetic) {
		t.Errorf("tiers = %v, want synthetic", full.ReferenceTiers)
	}
}
