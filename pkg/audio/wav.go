package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVE format tags from the fmt chunk.
const (
	wavFormatPCM        = 1
	wavFormatFloat      = 3
	wavFormatExtensible = 0xFFFE
)

// decodeWAV decodes a RIFF/WAVE payload into interleaved float samples.
// Integer PCM goes through go-audio/wav; IEEE float data is read directly
// because the decoder treats it as integer bit patterns.
func decodeWAV(payload []byte) ([]float64, Format, error) {
	dec := wav.NewDecoder(bytes.NewReader(payload))
	if !dec.IsValidFile() {
		return nil, Format{}, fmt.Errorf("audio: wav: %w", ErrUnsupportedFormat)
	}
	f := Format{SampleRate: int(dec.SampleRate), Channels: int(dec.NumChans)}
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return nil, Format{}, errors.New("audio: wav: missing format chunk")
	}

	switch dec.WavAudioFormat {
	case wavFormatFloat:
		samples, err := decodeWAVFloat(dec)
		return samples, f, err
	case wavFormatPCM, wavFormatExtensible:
	default:
		return nil, Format{}, fmt.Errorf("audio: wav: format tag %d: %w", dec.WavAudioFormat, ErrUnsupportedFormat)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, Format{}, fmt.Errorf("audio: wav: decode: %w", err)
	}
	if buf == nil {
		return nil, Format{}, errors.New("audio: wav: missing data chunk")
	}
	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = int(dec.BitDepth)
	}
	return IntToFloat(buf.Data, bitDepth), f, nil
}

// decodeWAVFloat reads a 32- or 64-bit little-endian IEEE float data chunk.
// Non-finite samples become silence.
func decodeWAVFloat(dec *wav.Decoder) ([]float64, error) {
	if err := dec.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("audio: wav: %w", err)
	}
	if dec.PCMChunk == nil {
		return nil, errors.New("audio: wav: missing data chunk")
	}
	data, err := io.ReadAll(dec.PCMChunk)
	if err != nil {
		return nil, fmt.Errorf("audio: wav: read float data: %w", err)
	}

	var (
		width int
		read  func([]byte) float64
	)
	switch dec.BitDepth {
	case 32:
		width = 4
		read = func(b []byte) float64 { return float64(math.Float32frombits(binary.LittleEndian.Uint32(b))) }
	case 64:
		width = 8
		read = func(b []byte) float64 { return math.Float64frombits(binary.LittleEndian.Uint64(b)) }
	default:
		return nil, fmt.Errorf("audio: wav: %d-bit float: %w", dec.BitDepth, ErrUnsupportedFormat)
	}

	out := make([]float64, len(data)/width)
	for i := range out {
		v := read(data[i*width:])
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		out[i] = v
	}
	return out, nil
}

// EncodeWAV writes b as a 16-bit PCM WAV file.
func EncodeWAV(w io.WriteSeeker, b Buffer) error {
	rate := b.SampleRate
	if rate <= 0 {
		rate = SampleRate
	}
	channels := b.Channels
	if channels <= 0 {
		channels = Channels
	}
	enc := wav.NewEncoder(w, rate, BitDepth, channels, 1)
	data := make([]int, len(b.Samples))
	for i, s := range b.Samples {
		data[i] = int(toInt16(float64(s)))
	}
	ib := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: rate},
		Data:           data,
		SourceBitDepth: BitDepth,
	}
	if err := enc.Write(ib); err != nil {
		return fmt.Errorf("audio: wav: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("audio: wav: close: %w", err)
	}
	return nil
}

// WAVBytes encodes b as a 16-bit PCM WAV file in memory.
func WAVBytes(b Buffer) ([]byte, error) {
	var f memFile
	if err := EncodeWAV(&f, b); err != nil {
		return nil, err
	}
	return f.buf, nil
}

// memFile is an in-memory io.WriteSeeker; the WAV encoder seeks back to
// patch chunk sizes once the data length is known.
type memFile struct {
	buf []byte
	pos int
}

func (f *memFile) Write(p []byte) (int, error) {
	if end := f.pos + len(p); end > len(f.buf) {
		f.buf = append(f.buf, make([]byte, end-len(f.buf))...)
	}
	n := copy(f.buf[f.pos:], p)
	f.pos += n
	return n, nil
}

func (f *memFile) Seek(offset int64, whence int) (int64, error) {
	var base int
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = f.pos
	case io.SeekEnd:
		base = len(f.buf)
	default:
		return 0, fmt.Errorf("audio: wav: invalid whence %d", whence)
	}
	pos := base + int(offset)
	if pos < 0 {
		return 0, fmt.Errorf("audio: wav: negative seek position %d", pos)
	}
	f.pos = pos
	return int64(pos), nil
}
