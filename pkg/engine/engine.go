// Package engine is the public entry point of the pronunciation analysis
// engine.
//
// An [Engine] ties the audio normaliser, the prosody extractors, the
// reference resolver, the scoring engine and the feedback generator into a
// single call. [Engine.Analyze] never fails: decode problems, silent input,
// missing reference data and collaborator outages all degrade into a
// complete score with an honest confidence value.
//
// Feature extraction is CPU-bound and runs on a bounded worker pool while the
// reference is resolved concurrently; both branches join before scoring.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/MrWong99/prosodia/pkg/audio"
	"github.com/MrWong99/prosodia/pkg/feedback"
	"github.com/MrWong99/prosodia/pkg/phonetic"
	"github.com/MrWong99/prosodia/pkg/prosody"
	"github.com/MrWong99/prosodia/pkg/provider/tts"
	"github.com/MrWong99/prosodia/pkg/reference"
	"github.com/MrWong99/prosodia/pkg/scoring"
	"github.com/MrWong99/prosodia/pkg/types"
)

const tracerName = "github.com/MrWong99/prosodia/pkg/engine"

// ErrMissingText is returned by [Request.Validate] when the target phrase is
// empty.
var ErrMissingText = errors.New("engine: target text is required")

// Dictionary is the phonetic store view the engine needs. *phonetic.Store
// satisfies it.
type Dictionary interface {
	reference.Lexicon
	Initialize(ctx context.Context) error
	Suggest(word string, limit int) []string
}

// Request is one scoring request.
type Request struct {
	// Audio is the encoded recording. Empty audio is scored, not rejected.
	Audio []byte

	// Text is the phrase the learner was asked to say.
	Text string

	// Level selects leniency and advice. Invalid levels use the engine's
	// default level.
	Level types.Level
}

// Validate reports malformed requests.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return ErrMissingText
	}
	return nil
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers bounds concurrent feature extraction. Defaults to
// runtime.GOMAXPROCS(0).
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithNormalizer replaces the default audio normaliser.
func WithNormalizer(n *audio.Normalizer) Option {
	return func(e *Engine) {
		e.normalizer = n
	}
}

// WithRecorder sets the metrics sink.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.rec = r
		}
	}
}

// WithDefaultLevel sets the level used for requests with an invalid level.
func WithDefaultLevel(l types.Level) Option {
	return func(e *Engine) {
		if l.IsValid() {
			e.defaultLevel = l
		}
	}
}

// WithGuideVoice enables [Engine.Guide] through p with voice.
func WithGuideVoice(p tts.Provider, voice types.VoiceProfile) Option {
	return func(e *Engine) {
		e.guide = p
		e.voice = voice
	}
}

// Engine scores pronunciation. It holds no per-request state and is safe for
// concurrent use.
type Engine struct {
	dict         Dictionary
	resolver     *reference.Resolver
	normalizer   *audio.Normalizer
	rec          Recorder
	workers      int
	sem          *semaphore.Weighted
	defaultLevel types.Level
	guide        tts.Provider
	voice        types.VoiceProfile
	tracer       trace.Tracer
}

// New builds an Engine around dict and resolver.
func New(dict Dictionary, resolver *reference.Resolver, opts ...Option) *Engine {
	e := &Engine{
		dict:         dict,
		resolver:     resolver,
		normalizer:   audio.NewNormalizer(),
		rec:          nopRecorder{},
		workers:      runtime.GOMAXPROCS(0),
		defaultLevel: types.DefaultLevel,
		tracer:       otel.Tracer(tracerName),
	}
	for _, o := range opts {
		o(e)
	}
	e.sem = semaphore.NewWeighted(int64(e.workers))
	return e
}

// Analyze scores one recording. It always returns a complete score.
func (e *Engine) Analyze(ctx context.Context, req Request) types.Score {
	start := time.Now()
	level := req.Level
	if !level.IsValid() {
		level = e.defaultLevel
	}
	ctx, span := e.tracer.Start(ctx, "engine.Analyze", trace.WithAttributes(
		attribute.String("level", level.String()),
		attribute.Int("audio.bytes", len(req.Audio)),
		attribute.Int("text.length", len(req.Text)),
	))
	defer span.End()
	e.rec.AddInFlight(ctx, 1)
	defer e.rec.AddInFlight(ctx, -1)

	if err := e.dict.Initialize(ctx); err != nil {
		e.rec.RecordDegraded(ctx, "store")
		slog.WarnContext(ctx, "engine: phonetic store not ready, continuing with partial data", "err", err)
	}

	pattern, ref := e.features(ctx, req)

	scoreStart := time.Now()
	score := feedback.Apply(scoring.Evaluate(pattern, ref, level))
	e.rec.RecordStage(ctx, StageScore, time.Since(scoreStart))

	if scoring.Insufficient(pattern) {
		e.rec.RecordDegraded(ctx, "insufficient_data")
	}
	d := time.Since(start)
	e.rec.RecordAnalysis(ctx, level, ref.Tier, d, score.Confidence)
	span.SetAttributes(
		attribute.String("reference.tier", string(ref.Tier)),
		attribute.Float64("score.overall", score.Overall),
		attribute.Float64("score.confidence", score.Confidence),
	)
	slog.DebugContext(ctx, "engine: analysis complete",
		"level", level.String(),
		"tier", string(ref.Tier),
		"overall", score.Overall,
		"confidence", score.Confidence,
		"duration", d,
	)
	return score
}

// features runs extraction on the worker pool and reference resolution in
// parallel. If ctx ends before extraction ran, an empty pattern is used.
func (e *Engine) features(ctx context.Context, req Request) (types.IntonationPattern, types.ReferencePattern) {
	var (
		pattern types.IntonationPattern
		ref     types.ReferencePattern
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := e.sem.Acquire(gctx, 1); err != nil {
			return err
		}
		defer e.sem.Release(1)
		buf := e.decode(gctx, req.Audio)
		t := time.Now()
		pattern = prosody.Extract(buf)
		e.rec.RecordStage(gctx, StageExtract, time.Since(t))
		return nil
	})
	g.Go(func() error {
		ctx, span := e.tracer.Start(gctx, "engine.reference")
		defer span.End()
		t := time.Now()
		ref = e.resolver.Resolve(ctx, req.Text)
		e.rec.RecordStage(ctx, StageReference, time.Since(t))
		span.SetAttributes(attribute.String("reference.tier", string(ref.Tier)))
		return nil
	})
	if err := g.Wait(); err != nil {
		e.rec.RecordDegraded(ctx, "cancelled")
		slog.WarnContext(ctx, "engine: extraction skipped, scoring empty pattern", "err", err)
		trace.SpanFromContext(ctx).SetStatus(codes.Error, err.Error())
		pattern = prosody.Extract(audio.NewBuffer(nil))
		if ref.Tier == "" {
			ref = e.resolver.Resolve(ctx, req.Text)
		}
	}
	return pattern, ref
}

// decode normalises payload, recording decode failures.
func (e *Engine) decode(ctx context.Context, payload []byte) audio.Buffer {
	ctx, span := e.tracer.Start(ctx, "engine.decode")
	defer span.End()

	t := time.Now()
	buf, err := e.normalizer.Normalize(ctx, payload)
	e.rec.RecordStage(ctx, StageDecode, time.Since(t))
	if err != nil {
		e.rec.RecordDegraded(ctx, "decode")
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.Float64("audio.seconds", buf.Seconds()))
	return buf
}

// Compare scores the recording against a single reference word and sorts
// the dimensions into strengths and improvement areas.
func (e *Engine) Compare(ctx context.Context, payload []byte, word string, level types.Level) types.Comparison {
	s := e.Analyze(ctx, Request{Audio: payload, Text: word, Level: level})
	c := types.Comparison{Word: phonetic.NormalizeWord(word), Score: s}
	for _, d := range types.Dimensions {
		switch v := s.Of(d); {
		case v >= strengthThreshold:
			c.Strengths = append(c.Strengths, d)
		case v < improvementThreshold:
			c.ImprovementAreas = append(c.ImprovementAreas, d)
		}
	}
	return c
}

// Compare partitions.
const (
	strengthThreshold    = 75
	improvementThreshold = 60
)

// suggestLimit caps did-you-mean suggestions.
const suggestLimit = 5

// ReferenceInfo describes one dictionary word. When the word is unknown ok
// is false and suggestions holds phonetically similar dictionary words.
func (e *Engine) ReferenceInfo(ctx context.Context, word string) (info types.ReferenceInfo, suggestions []string, ok bool) {
	if err := e.dict.Initialize(ctx); err != nil {
		slog.WarnContext(ctx, "engine: phonetic store not ready", "err", err)
	}
	w := phonetic.NormalizeWord(word)
	entry, found := e.dict.Lookup(w)
	if !found {
		return types.ReferenceInfo{Word: w}, e.dict.Suggest(w, suggestLimit), false
	}
	return types.ReferenceInfo{
		Word:          entry.Word,
		Phonemes:      entry.Phonemes,
		IPA:           phonetic.IPA(entry.Phonemes),
		SyllableCount: entry.Syllables,
		StressPattern: entry.Stress,
		Difficulty:    phonetic.Difficulty(entry.Word, entry.Phonemes),
		FrequencyRank: entry.FrequencyRank,
	}, nil, true
}
