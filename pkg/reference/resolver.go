// Package reference resolves the expected prosodic pattern for a target
// phrase.
//
// A [Resolver] walks a fixed chain of tiers and stops at the first that
// succeeds:
//
//	NoReference → TryCurated → TrySynthetic → TryHeuristic → Resolved
//
// The curated tier composes the pattern from dictionary entries and needs
// every word to be known. The synthetic tier renders the phrase through a
// [Synthesizer] and runs the prosody extractors over the result. The
// heuristic tier estimates syllables from word length and always succeeds,
// so Resolve never fails.
package reference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/MrWong99/prosodia/pkg/audio"
	"github.com/MrWong99/prosodia/pkg/phonetic"
	"github.com/MrWong99/prosodia/pkg/prosody"
	"github.com/MrWong99/prosodia/pkg/types"
)

var (
	// ErrNoSynthesizer is reported by the synthetic tier when no synthesizer
	// is configured.
	ErrNoSynthesizer = errors.New("reference: no synthesizer configured")

	// ErrInsufficientAudio is reported when synthesised audio has too few
	// voiced frames to serve as a reference.
	ErrInsufficientAudio = errors.New("reference: synthesised audio has too little voiced speech")

	// errIncomplete marks a curated lookup that missed at least one word.
	errIncomplete = errors.New("reference: phrase not fully covered by dictionary")
)

// Contour and timing constants for composed patterns.
const (
	contourStep     = 0.2
	contourFloor    = 0.2
	syllableSeconds = 0.25

	// minVoicedFrames is the voiced-frame count a synthesised reference
	// must reach.
	minVoicedFrames = 3
)

// Lexicon is the dictionary view the resolver needs. *phonetic.Store
// satisfies it.
type Lexicon interface {
	Lookup(word string) (phonetic.Entry, bool)
}

// Synthesizer renders text into an analysis buffer.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (audio.Buffer, error)
}

// State is one step of the resolution state machine.
type State int

const (
	StateNoReference State = iota
	StateTryCurated
	StateTrySynthetic
	StateTryHeuristic
	StateResolved
)

func (s State) String() string {
	switch s {
	case StateNoReference:
		return "no_reference"
	case StateTryCurated:
		return "try_curated"
	case StateTrySynthetic:
		return "try_synthetic"
	case StateTryHeuristic:
		return "try_heuristic"
	case StateResolved:
		return "resolved"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithSynthesizer enables the synthetic tier.
func WithSynthesizer(s Synthesizer) Option {
	return func(r *Resolver) {
		r.synth = s
	}
}

// WithTimeout bounds one synthetic-tier attempt. Defaults to
// [types.SynthesisTimeout].
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// Resolver produces a [types.ReferencePattern] for a phrase. It is safe for
// concurrent use.
type Resolver struct {
	lex     Lexicon
	synth   Synthesizer
	timeout time.Duration
}

// NewResolver returns a Resolver backed by lex.
func NewResolver(lex Lexicon, opts ...Option) *Resolver {
	r := &Resolver{lex: lex, timeout: types.SynthesisTimeout}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Result is a resolved pattern together with the states visited.
type Result struct {
	Pattern types.ReferencePattern
	Path    []State
}

// Resolve runs the tier chain for text. It always returns a pattern.
func (r *Resolver) Resolve(ctx context.Context, text string) types.ReferencePattern {
	return r.Trace(ctx, text).Pattern
}

// Trace is Resolve that also reports the visited states.
func (r *Resolver) Trace(ctx context.Context, text string) Result {
	words := phonetic.Words(text)
	norm := strings.Join(words, " ")
	res := Result{Path: []State{StateNoReference}}

	state := StateTryCurated
	for state != StateResolved {
		res.Path = append(res.Path, state)
		var (
			p   types.ReferencePattern
			err error
		)
		switch state {
		case StateTryCurated:
			p, err = r.curated(words)
			state = StateTrySynthetic
		case StateTrySynthetic:
			p, err = r.synthetic(ctx, norm, words)
			state = StateTryHeuristic
		case StateTryHeuristic:
			p = r.heuristic(words)
		}
		if err != nil {
			if !errors.Is(err, errIncomplete) && !errors.Is(err, ErrNoSynthesizer) {
				slog.WarnContext(ctx, "reference: tier failed, falling back",
					"tier", res.Path[len(res.Path)-1].String(),
					"text", norm,
					"err", err,
				)
			}
			continue
		}
		p.Text = norm
		p.Words = words
		res.Pattern = p
		state = StateResolved
	}
	res.Path = append(res.Path, StateResolved)
	return res
}

// curated composes the pattern from dictionary entries. Every word must be
// known.
func (r *Resolver) curated(words []string) (types.ReferencePattern, error) {
	if len(words) == 0 || r.lex == nil {
		return types.ReferencePattern{}, errIncomplete
	}
	var p types.ReferencePattern
	for _, w := range words {
		e, ok := r.lex.Lookup(w)
		if !ok {
			return types.ReferencePattern{}, errIncomplete
		}
		addEntry(&p, e)
	}
	p.PitchContour = descendingContour(p.Syllables)
	p.Tier = types.TierCurated
	return p, nil
}

// synthetic renders the phrase and extracts its contour and rhythm. The
// syllable and stress skeleton comes from the heuristic composition.
func (r *Resolver) synthetic(ctx context.Context, text string, words []string) (types.ReferencePattern, error) {
	if r.synth == nil {
		return types.ReferencePattern{}, ErrNoSynthesizer
	}
	if text == "" {
		return types.ReferencePattern{}, errIncomplete
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	buf, err := r.synth.Synthesize(ctx, text)
	if err != nil {
		return types.ReferencePattern{}, fmt.Errorf("reference: synthesize: %w", err)
	}
	ip := prosody.Extract(buf)
	if ip.VoicedFrames < minVoicedFrames {
		return types.ReferencePattern{}, fmt.Errorf("%w (%d voiced frames)", ErrInsufficientAudio, ip.VoicedFrames)
	}

	p := r.heuristic(words)
	p.PitchContour = ip.Voiced()
	if !ip.PlaceholderRhythm {
		p.RhythmIntervals = ip.RhythmIntervals
	}
	p.Tier = types.TierSynthetic
	return p, nil
}

// heuristic uses dictionary data where available and estimates unknown
// words as one syllable per three letters plus one, with the canonical
// stress table. It always succeeds.
func (r *Resolver) heuristic(words []string) types.ReferencePattern {
	var p types.ReferencePattern
	for _, w := range words {
		if r.lex != nil {
			if e, ok := r.lex.Lookup(w); ok {
				addEntry(&p, e)
				continue
			}
		}
		n := len(w)/3 + 1
		p.Syllables += n
		p.StressPattern = append(p.StressPattern, phonetic.CanonicalStress(n)...)
		p.RhythmIntervals = append(p.RhythmIntervals, float64(n)*syllableSeconds)
	}
	if p.Syllables == 0 {
		p.Syllables = 1
		p.StressPattern = []int{1}
	}
	p.PitchContour = descendingContour(p.Syllables)
	p.Tier = types.TierHeuristic
	return p
}

// addEntry appends one dictionary word to p.
func addEntry(p *types.ReferencePattern, e phonetic.Entry) {
	n := max(1, e.Syllables)
	stress := e.Stress
	if !e.HasPrimaryStress() || len(stress) != n {
		stress = phonetic.CanonicalStress(n)
	}
	p.Syllables += n
	p.StressPattern = append(p.StressPattern, stress...)
	p.Phonemes = append(p.Phonemes, e.Phonemes...)
	p.RhythmIntervals = append(p.RhythmIntervals, float64(n)*syllableSeconds)
}

// descendingContour returns n values falling by contourStep from 1, never
// below contourFloor.
func descendingContour(n int) []float64 {
	out := make([]float64, max(1, n))
	for i := range out {
		out[i] = math.Max(contourFloor, 1-contourStep*float64(i))
	}
	return out
}

// HasSynthesizer reports whether the synthetic tier is enabled.
func (r *Resolver) HasSynthesizer() bool { return r.synth != nil }
