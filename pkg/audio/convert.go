package audio

import (
	"encoding/binary"
	"math"
)

// Format describes the sample rate and channel count of a decoded stream.
type Format struct {
	SampleRate int
	Channels   int
}

// String returns e.g. "48000Hz stereo".
func (f Format) String() string { return formatString(f.SampleRate, f.Channels) }

// PCM16ToFloat converts little-endian int16 PCM to float64 samples in
// [-1, 1). A trailing odd byte is ignored.
func PCM16ToFloat(pcm []byte) []float64 {
	out := make([]float64, len(pcm)/2)
	for i := range out {
		out[i] = float64(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768
	}
	return out
}

// Int16ToFloat converts int16 samples to float64 samples in [-1, 1).
func Int16ToFloat(samples []int16) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = float64(s) / 32768
	}
	return out
}

// IntToFloat converts integer samples of the given bit depth to float64 in
// [-1, 1]. 8-bit input is treated as unsigned, as in WAV files.
func IntToFloat(data []int, bitDepth int) []float64 {
	out := make([]float64, len(data))
	if bitDepth <= 0 {
		bitDepth = 16
	}
	if bitDepth == 8 {
		for i, s := range data {
			out[i] = float64(s-128) / 128
		}
		return out
	}
	scale := float64(int64(1) << (bitDepth - 1))
	for i, s := range data {
		out[i] = clampUnit(float64(s) / scale)
	}
	return out
}

// Downmix averages interleaved multi-channel samples into mono. Mono input is
// returned unchanged. Incomplete trailing frames are dropped.
func Downmix(interleaved []float64, channels int) []float64 {
	if channels <= 1 {
		return interleaved
	}
	frames := len(interleaved) / channels
	out := make([]float64, frames)
	for i := range frames {
		var sum float64
		for c := range channels {
			sum += interleaved[i*channels+c]
		}
		out[i] = sum / float64(channels)
	}
	return out
}

// Quantize16 rounds every sample to the nearest 16-bit level and returns the
// result as float32 in [-1, 1). Values outside [-1, 1] are clamped.
func Quantize16(samples []float64) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(float64(toInt16(s)) / 32768)
	}
	return out
}

// EncodePCM16 converts float samples to little-endian int16 PCM.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(toInt16(float64(s))))
	}
	return out
}

// ResampleLinear resamples mono float samples from srcRate to dstRate using
// linear interpolation. If the rates are equal or invalid the input is
// returned unchanged.
func ResampleLinear(samples []float64, srcRate, dstRate int) []float64 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) < 2 {
		return samples
	}
	dstSamples := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]float64, dstSamples)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := samples[srcIdx]
		s1 := s0
		if srcIdx+1 < len(samples) {
			s1 = samples[srcIdx+1]
		}
		out[i] = s0*(1-frac) + s1*frac
	}
	return out
}

func toInt16(s float64) int16 {
	v := math.Round(s * 32768)
	if v > math.MaxInt16 {
		return math.MaxInt16
	} else if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

func clampUnit(v float64) float64 {
	if v > 1 {
		return 1
	} else if v < -1 {
		return -1
	}
	return v
}
