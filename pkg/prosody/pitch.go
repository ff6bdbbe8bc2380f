package prosody

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/MrWong99/prosodia/pkg/audio"
)

const (
	// voicingThreshold is the minimum ratio of the best in-range
	// autocorrelation peak to the zero-lag energy for a frame to count as
	// voiced.
	voicingThreshold = 0.3

	// silenceRMS is the frame RMS below which a frame is treated as silent.
	silenceRMS = 1e-3
)

// pitchTracker estimates the fundamental frequency of fixed-size frames with
// an FFT-based autocorrelation. It reuses its buffers and is not safe for
// concurrent use.
type pitchTracker struct {
	fft    *fourier.FFT
	padded []float64
	coeff  []complex128
	acf    []float64
	minLag int
	maxLag int
}

func newPitchTracker() *pitchTracker {
	// Zero-padding to twice the frame length turns the circular
	// autocorrelation into a linear one.
	n := 2 * FrameSize
	return &pitchTracker{
		fft:    fourier.NewFFT(n),
		padded: make([]float64, n),
		minLag: audio.SampleRate / MaxPitchHz,
		maxLag: audio.SampleRate / MinPitchHz,
	}
}

// frequency returns the dominant frequency of frame in Hz, or 0 when the
// frame is silent or unvoiced.
func (p *pitchTracker) frequency(frame []float64) float64 {
	if len(frame) == 0 || math.Sqrt(energy(frame)/float64(len(frame))) < silenceRMS {
		return 0
	}
	copy(p.padded, frame)
	clear(p.padded[len(frame):])

	p.coeff = p.fft.Coefficients(p.coeff, p.padded)
	for i, c := range p.coeff {
		a := cmplx.Abs(c)
		p.coeff[i] = complex(a*a, 0)
	}
	p.acf = p.fft.Sequence(p.acf, p.coeff)

	r0 := p.acf[0]
	if r0 <= 0 {
		return 0
	}
	maxLag := min(p.maxLag, len(frame)-1)
	best, bestVal := 0, math.Inf(-1)
	for lag := p.minLag; lag <= maxLag; lag++ {
		if p.acf[lag] > bestVal {
			best, bestVal = lag, p.acf[lag]
		}
	}
	if best == 0 || bestVal < voicingThreshold*r0 {
		return 0
	}
	return float64(audio.SampleRate) / float64(best)
}

// normalizePitch maps a frequency onto [0,1].
func normalizePitch(hz float64) float64 {
	return min(hz/PitchNormHz, 1)
}

// frequencies returns the dominant frequency of each frame.
func frequencies(fs [][]float64) []float64 {
	if len(fs) == 0 {
		return nil
	}
	pt := newPitchTracker()
	out := make([]float64, len(fs))
	for i, f := range fs {
		out[i] = pt.frequency(f)
	}
	return out
}

// PitchContour returns one normalised pitch value in [0,1] per analysis
// frame. Silent and unvoiced frames are 0.
func PitchContour(buf audio.Buffer) []float64 {
	hz := frequencies(frames(buf.Float64()))
	out := make([]float64, len(hz))
	for i, f := range hz {
		out[i] = normalizePitch(f)
	}
	return out
}
