package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/prosodia/pkg/provider/tts"
	"github.com/MrWong99/prosodia/pkg/types"
)

// Provider request statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
	StatusEmpty = "empty"
)

// instrumentedTTS records latency, outcome and a span for every synthesis.
type instrumentedTTS struct {
	tts.Provider
	name string
	m    *Metrics
}

// InstrumentTTS wraps p so that each SynthesizeStream call is traced and
// measured under name. The measurement ends when the audio stream closes.
// A stream the backend cut short counts as an error and is passed on to the
// caller's [tts.WithStreamErrors] sink.
func InstrumentTTS(p tts.Provider, name string, m *Metrics) tts.Provider {
	return &instrumentedTTS{Provider: p, name: name, m: m}
}

func (t *instrumentedTTS) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error) {
	start := time.Now()
	ctx, span := StartSpan(ctx, "tts.synthesize", trace.WithAttributes(
		attribute.String("tts.provider", t.name),
		attribute.String("tts.voice", voice.ID),
	))
	sctx, streamErr := tts.WithStreamErrors(ctx)
	in, err := t.Provider.SynthesizeStream(sctx, text, voice)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.End()
		t.m.RecordProviderRequest(ctx, t.name, StatusError, time.Since(start))
		return nil, err
	}

	out := make(chan []byte, cap(in))
	go func() {
		defer close(out)
		defer span.End()
		var n int
		for chunk := range in {
			n += len(chunk)
			out <- chunk
		}
		status := StatusOK
		switch err := streamErr(); {
		case ctx.Err() != nil:
			status = StatusError
			span.SetStatus(codes.Error, ctx.Err().Error())
		case err != nil:
			status = StatusError
			span.RecordError(err)
			span.SetStatus(codes.Error, "stream interrupted")
			tts.ReportStreamError(ctx, err)
		case n == 0:
			status = StatusEmpty
			span.SetStatus(codes.Error, "no audio")
		}
		span.SetAttributes(attribute.Int("tts.bytes", n))
		t.m.RecordProviderRequest(ctx, t.name, status, time.Since(start))
	}()
	return out, nil
}
