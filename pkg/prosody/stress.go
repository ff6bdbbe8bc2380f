package prosody

import "github.com/MrWong99/prosodia/pkg/audio"

const (
	stressEnergyWeight = 0.6
	stressPitchWeight  = 0.4

	// stressThreshold is the multiple of the mean composite score a frame
	// must exceed to count as stressed.
	stressThreshold = 1.8
)

// StressPoints returns the indices of stressed frames. The result is never
// empty for a non-empty buffer: if no frame clears the threshold, the single
// highest-scoring frame is returned.
func StressPoints(buf audio.Buffer) []int {
	fs := frames(buf.Float64())
	return detectStress(fs, frequencies(fs))
}

// detectStress combines min-max normalised frame energy and pitch into a
// composite score per frame.
func detectStress(fs [][]float64, hz []float64) []int {
	if len(fs) == 0 {
		return nil
	}
	energies := make([]float64, len(fs))
	for i, f := range fs {
		energies[i] = energy(f)
	}
	e := minMax(energies)
	p := minMax(hz)

	composite := make([]float64, len(fs))
	var mean float64
	for i := range composite {
		composite[i] = stressEnergyWeight*e[i] + stressPitchWeight*p[i]
		mean += composite[i]
	}
	mean /= float64(len(composite))

	threshold := stressThreshold * mean
	var out []int
	best := 0
	for i, c := range composite {
		if c > threshold {
			out = append(out, i)
		}
		if c > composite[best] {
			best = i
		}
	}
	if len(out) == 0 {
		out = []int{best}
	}
	return out
}

// minMax scales values onto [0,1]. A constant series maps to all zeros.
func minMax(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	if hi-lo == 0 {
		return out
	}
	for i, v := range values {
		out[i] = (v - lo) / (hi - lo)
	}
	return out
}
