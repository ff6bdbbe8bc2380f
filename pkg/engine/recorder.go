package engine

import (
	"context"
	"time"

	"github.com/MrWong99/prosodia/pkg/types"
)

// Stage names reported to [Recorder.RecordStage].
const (
	StageDecode    = "decode"
	StageExtract   = "extract"
	StageReference = "reference"
	StageScore     = "score"
	StageGuide     = "guide"
)

// Recorder receives engine measurements. Implementations must be safe for
// concurrent use.
type Recorder interface {
	// RecordAnalysis is called once per completed Analyze call.
	RecordAnalysis(ctx context.Context, level types.Level, tier types.Tier, d time.Duration, confidence float64)

	// RecordStage reports the latency of one pipeline stage.
	RecordStage(ctx context.Context, stage string, d time.Duration)

	// RecordDegraded counts a locally recovered failure. reason is one of
	// "decode", "insufficient_data", "cancelled" or "store".
	RecordDegraded(ctx context.Context, reason string)

	// AddInFlight adjusts the number of analyses in progress.
	AddInFlight(ctx context.Context, delta int64)
}

type nopRecorder struct{}

func (nopRecorder) RecordAnalysis(context.Context, types.Level, types.Tier, time.Duration, float64) {}
func (nopRecorder) RecordStage(context.Context, string, time.Duration)                             {}
func (nopRecorder) RecordDegraded(context.Context, string)                                         {}
func (nopRecorder) AddInFlight(context.Context, int64)                                             {}
