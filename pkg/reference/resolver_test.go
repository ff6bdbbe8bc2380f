package reference_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/prosodia/pkg/audio"
	"github.com/MrWong99/prosodia/pkg/audio/audiotest"
	"github.com/MrWong99/prosodia/pkg/phonetic"
	"github.com/MrWong99/prosodia/pkg/provider/tts/mock"
	"github.com/MrWong99/prosodia/pkg/reference"
	"github.com/MrWong99/prosodia/pkg/types"
)

type fakeSynth struct {
	buf   audio.Buffer
	err   error
	delay time.Duration
	calls int
}

func (f *fakeSynth) Synthesize(ctx context.Context, text string) (audio.Buffer, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return audio.Buffer{}, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	return f.buf, f.err
}

func builtinStore(t *testing.T) *phonetic.Store {
	t.Helper()
	s := phonetic.NewBuiltin()
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return s
}

func TestResolve_Curated(t *testing.T) {
	synth := &fakeSynth{buf: audiotest.HelloWorld()}
	r := reference.NewResolver(builtinStore(t), reference.WithSynthesizer(synth))

	res := r.Trace(context.Background(), "Hello, World!")
	p := res.Pattern
	if p.Tier != types.TierCurated {
		t.Fatalf("tier = %s, want curated", p.Tier)
	}
	if synth.calls != 0 {
		t.Error("synthesizer should not run when the curated tier succeeds")
	}
	wantPath := []reference.State{reference.StateNoReference, reference.StateTryCurated, reference.StateResolved}
	if !slices.Equal(res.Path, wantPath) {
		t.Errorf("path = %v, want %v", res.Path, wantPath)
	}
	if p.Text != "hello world" || p.Syllables != 3 {
		t.Errorf("text/syllables = %q/%d", p.Text, p.Syllables)
	}
	if !slices.Equal(p.StressPattern, []int{0, 1, 1}) {
		t.Errorf("stress = %v", p.StressPattern)
	}
	if !slices.Equal(p.PitchContour, []float64{1, 0.8, 0.6}) {
		t.Errorf("contour = %v", p.PitchContour)
	}
	if !slices.Equal(p.RhythmIntervals, []float64{0.5, 0.25}) {
		t.Errorf("rhythm = %v", p.RhythmIntervals)
	}
	if len(p.Phonemes) != 8 {
		t.Errorf("phonemes = %v", p.Phonemes)
	}
}

func TestResolve_Synthetic(t *testing.T) {
	synth := &fakeSynth{buf: audiotest.HelloWorld()}
	r := reference.NewResolver(builtinStore(t), reference.WithSynthesizer(synth))

	res := r.Trace(context.Background(), "hello zorblax")
	p := res.Pattern
	if p.Tier != types.TierSynthetic {
		t.Fatalf("tier = %s, want synthetic", p.Tier)
	}
	if synth.calls != 1 {
		t.Errorf("synthesizer calls = %d, want 1", synth.calls)
	}
	if len(p.PitchContour) < 30 {
		t.Errorf("synthetic contour has %d values, want the voiced frames", len(p.PitchContour))
	}
	if len(p.RhythmIntervals) != 4 {
		t.Errorf("rhythm = %v, want four extracted intervals", p.RhythmIntervals)
	}
	// hello: 2 syllables from the dictionary; zorblax: 7/3+1 = 3 estimated.
	if p.Syllables != 5 {
		t.Errorf("syllables = %d, want 5", p.Syllables)
	}
}

func TestResolve_HeuristicFallbacks(t *testing.T) {
	tests := []struct {
		name  string
		synth reference.Synthesizer
	}{
		{name: "no synthesizer"},
		{name: "synthesizer error", synth: &fakeSynth{err: errors.New("boom")}},
		{name: "silent synthesis", synth: &fakeSynth{buf: audiotest.Silence(1)}},
		{name: "synthesizer timeout", synth: &fakeSynth{buf: audiotest.HelloWorld(), delay: time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := []reference.Option{reference.WithTimeout(20 * time.Millisecond)}
			if tt.synth != nil {
				opts = append(opts, reference.WithSynthesizer(tt.synth))
			}
			r := reference.NewResolver(builtinStore(t), opts...)
			res := r.Trace(context.Background(), "zorblax quixotic")
			p := res.Pattern
			if p.Tier != types.TierHeuristic {
				t.Fatalf("tier = %s, want heuristic", p.Tier)
			}
			if res.Path[len(res.Path)-2] != reference.StateTryHeuristic {
				t.Errorf("path = %v", res.Path)
			}
			// zorblax 7/3+1 = 3, quixotic 8/3+1 = 3.
			if p.Syllables != 6 || !slices.Equal(p.StressPattern, []int{0, 1, 0, 0, 1, 0}) {
				t.Errorf("syllables/stress = %d/%v", p.Syllables, p.StressPattern)
			}
			if len(p.PitchContour) != 6 || p.PitchContour[5] != 0.2 {
				t.Errorf("contour = %v", p.PitchContour)
			}
			if len(p.StressPattern) != p.Syllables {
				t.Error("stress pattern length must equal syllable count")
			}
		})
	}
}

func TestResolve_EmptyText(t *testing.T) {
	r := reference.NewResolver(builtinStore(t))
	p := r.Resolve(context.Background(), "  123 ?! ")
	if p.Tier != types.TierHeuristic || p.Syllables != 1 || len(p.PitchContour) != 1 {
		t.Errorf("pattern = %+v", p)
	}
}

func TestTTSSynthesizer(t *testing.T) {
	pcm := audio.EncodePCM16(audiotest.HelloWorld().Samples)
	prov := &mock.Provider{SynthesizeChunks: [][]byte{pcm[:len(pcm)/2], pcm[len(pcm)/2:]}}
	voice := types.VoiceProfile{ID: "v1", SpeedFactor: 0.9}

	s := reference.NewTTSSynthesizer(prov, voice)
	buf, err := s.Synthesize(context.Background(), "hello zorblax")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if buf.Len() != audiotest.HelloWorld().Len() {
		t.Errorf("buffer length = %d", buf.Len())
	}
	if prov.Calls() != 1 || prov.SynthesizeStreamCalls[0].Voice.ID != "v1" || prov.Texts[0] != "hello zorblax" {
		t.Errorf("provider calls = %+v, texts = %q", prov.SynthesizeStreamCalls, prov.Texts)
	}

	r := reference.NewResolver(builtinStore(t), reference.WithSynthesizer(s))
	if p := r.Resolve(context.Background(), "hello zorblax"); p.Tier != types.TierSynthetic {
		t.Errorf("tier = %s, want synthetic", p.Tier)
	}
}

func TestState_String(t *testing.T) {
	if reference.StateTrySynthetic.String() != "try_synthetic" || reference.State(42).String() != "State(42)" {
		t.Error("unexpected state names")
	}
}
