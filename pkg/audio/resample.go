package audio

import (
	"fmt"
	"log/slog"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Resample converts mono samples from srcRate to dstRate with a band-limited
// polyphase resampler. If the resampler cannot be built or produces no output
// the samples are linearly interpolated instead.
func Resample(samples []float64, srcRate, dstRate int) []float64 {
	if srcRate == dstRate || len(samples) == 0 {
		return samples
	}
	out, err := resampleHQ(samples, srcRate, dstRate)
	if err != nil || len(out) == 0 {
		slog.Debug("audio: high quality resample unavailable, using linear interpolation",
			"from", srcRate,
			"to", dstRate,
			"err", err,
		)
		return ResampleLinear(samples, srcRate, dstRate)
	}
	return out
}

func resampleHQ(samples []float64, srcRate, dstRate int) ([]float64, error) {
	if srcRate <= 0 || dstRate <= 0 {
		return nil, fmt.Errorf("audio: invalid sample rates %d -> %d", srcRate, dstRate)
	}
	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(srcRate),
		OutputRate: float64(dstRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("audio: create resampler: %w", err)
	}
	out, err := r.Process(samples)
	if err != nil {
		return nil, fmt.Errorf("audio: resample: %w", err)
	}
	for i, s := range out {
		out[i] = clampUnit(s)
	}
	return out, nil
}
