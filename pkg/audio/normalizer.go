package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
)

var (
	// ErrUnsupportedFormat is returned by [Normalizer.Decode] when the
	// container cannot be identified or is not supported.
	ErrUnsupportedFormat = errors.New("audio: unsupported format")

	// ErrEmptyPayload is returned by [Normalizer.Decode] for a zero-length
	// payload.
	ErrEmptyPayload = errors.New("audio: empty payload")
)

// Container identifies a sniffed audio container.
type Container string

const (
	ContainerWAV     Container = "wav"
	ContainerOggOpus Container = "ogg"
	ContainerRaw     Container = "raw"
	ContainerUnknown Container = "unknown"
)

// Option configures a [Normalizer].
type Option func(*Normalizer)

// WithRawFormat makes the normalizer accept headerless little-endian int16
// PCM in the given format when no known container is detected. Without this
// option unknown payloads are rejected.
func WithRawFormat(f Format) Option {
	return func(n *Normalizer) {
		if f.SampleRate > 0 && f.Channels > 0 {
			n.raw = &f
		}
	}
}

// WithMaxDuration truncates decoded audio to at most seconds. Zero disables
// the limit.
func WithMaxDuration(seconds float64) Option {
	return func(n *Normalizer) {
		if seconds > 0 {
			n.maxSamples = int(seconds * SampleRate)
		}
	}
}

// Normalizer decodes arbitrary speech payloads into the analysis format. It
// holds no per-request state and is safe for concurrent use.
type Normalizer struct {
	raw        *Format
	maxSamples int
}

// NewNormalizer returns a Normalizer configured with opts.
func NewNormalizer(opts ...Option) *Normalizer {
	n := &Normalizer{}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Sniff identifies the container of payload from its magic bytes.
func (n *Normalizer) Sniff(payload []byte) Container {
	switch {
	case len(payload) >= 12 && bytes.Equal(payload[:4], []byte("RIFF")) && bytes.Equal(payload[8:12], []byte("WAVE")):
		return ContainerWAV
	case len(payload) >= 4 && bytes.Equal(payload[:4], oggCapture):
		return ContainerOggOpus
	case n.raw != nil && len(payload) >= 2:
		return ContainerRaw
	default:
		return ContainerUnknown
	}
}

// Decode converts payload into a normalised [Buffer]: mono, [SampleRate],
// quantised to 16 bits. It returns an error when the payload cannot be
// decoded.
func (n *Normalizer) Decode(payload []byte) (Buffer, error) {
	if len(payload) == 0 {
		return NewBuffer(nil), ErrEmptyPayload
	}

	var (
		samples []float64
		f       Format
		err     error
	)
	switch c := n.Sniff(payload); c {
	case ContainerWAV:
		samples, f, err = decodeWAV(payload)
	case ContainerOggOpus:
		samples, f, err = decodeOggOpus(payload)
	case ContainerRaw:
		samples, f = PCM16ToFloat(payload), *n.raw
	default:
		err = ErrUnsupportedFormat
	}
	if err != nil {
		return NewBuffer(nil), err
	}

	mono := Downmix(samples, f.Channels)
	mono = Resample(mono, f.SampleRate, SampleRate)
	if n.maxSamples > 0 && len(mono) > n.maxSamples {
		mono = mono[:n.maxSamples]
	}
	return NewBuffer(Quantize16(mono)), nil
}

// Normalize is [Normalizer.Decode] that fails closed: the returned buffer
// is always usable, and on a decode failure it is empty, the failure is
// logged as a warning and err says why.
func (n *Normalizer) Normalize(ctx context.Context, payload []byte) (Buffer, error) {
	buf, err := n.Decode(payload)
	if err != nil {
		slog.WarnContext(ctx, "audio: decode failed, continuing with empty buffer",
			"bytes", len(payload),
			"container", string(n.Sniff(payload)),
			"err", err,
		)
		return NewBuffer(nil), err
	}
	return buf, nil
}

// FromPCM16 builds a normalised buffer from little-endian int16 PCM in the
// given format, as produced by the TTS backends.
func FromPCM16(pcm []byte, f Format) (Buffer, error) {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return NewBuffer(nil), fmt.Errorf("audio: invalid pcm format %s", f)
	}
	mono := Downmix(PCM16ToFloat(pcm), f.Channels)
	return NewBuffer(Quantize16(Resample(mono, f.SampleRate, SampleRate))), nil
}
