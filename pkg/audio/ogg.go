package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"layeh.com/gopus"
)

// Opus is decoded straight into the analysis format; libopus resamples and
// downmixes internally.
const (
	opusDecodeRate = SampleRate
	// opusMaxFrame is 120 ms at the decode rate, the largest Opus packet.
	opusMaxFrame = opusDecodeRate * 120 / 1000
	// opusGranuleRate is the fixed granule clock of Ogg/Opus streams.
	opusGranuleRate = 48000
)

var (
	oggCapture = []byte("OggS")
	opusHead   = []byte("OpusHead")
	opusTags   = []byte("OpusTags")
)

// oggPackets splits an Ogg bitstream into its packets, in order. Only the
// first logical stream is returned; pages from other serials are skipped.
func oggPackets(data []byte) ([][]byte, error) {
	var (
		packets [][]byte
		partial []byte
		serial  uint32
		first   = true
	)
	for len(data) > 0 {
		if len(data) < 27 || !bytes.Equal(data[:4], oggCapture) {
			return nil, errors.New("audio: ogg: bad page header")
		}
		pageSerial := binary.LittleEndian.Uint32(data[14:18])
		nsegs := int(data[26])
		if len(data) < 27+nsegs {
			return nil, errors.New("audio: ogg: truncated segment table")
		}
		lacing := data[27 : 27+nsegs]
		bodyLen := 0
		for _, l := range lacing {
			bodyLen += int(l)
		}
		start := 27 + nsegs
		if len(data) < start+bodyLen {
			return nil, errors.New("audio: ogg: truncated page body")
		}
		body := data[start : start+bodyLen]
		data = data[start+bodyLen:]

		if first {
			serial = pageSerial
			first = false
		}
		if pageSerial != serial {
			continue
		}

		off := 0
		for _, l := range lacing {
			partial = append(partial, body[off:off+int(l)]...)
			off += int(l)
			if l < 255 {
				packets = append(packets, partial)
				partial = nil
			}
		}
	}
	return packets, nil
}

// decodeOggOpus decodes an Ogg/Opus payload into mono float samples at the
// analysis rate.
func decodeOggOpus(payload []byte) ([]float64, Format, error) {
	packets, err := oggPackets(payload)
	if err != nil {
		return nil, Format{}, err
	}
	if len(packets) == 0 || len(packets[0]) < 19 || !bytes.Equal(packets[0][:8], opusHead) {
		return nil, Format{}, fmt.Errorf("audio: ogg: %w", ErrUnsupportedFormat)
	}
	preSkip := int(binary.LittleEndian.Uint16(packets[0][10:12])) * opusDecodeRate / opusGranuleRate

	dec, err := gopus.NewDecoder(opusDecodeRate, Channels)
	if err != nil {
		return nil, Format{}, fmt.Errorf("audio: create opus decoder: %w", err)
	}

	var pcm []int16
	for _, pkt := range packets[1:] {
		if bytes.HasPrefix(pkt, opusTags) || len(pkt) == 0 {
			continue
		}
		frame, err := dec.Decode(pkt, opusMaxFrame, false)
		if err != nil {
			return nil, Format{}, fmt.Errorf("audio: opus decode: %w", err)
		}
		pcm = append(pcm, frame...)
	}
	if preSkip > len(pcm) {
		preSkip = len(pcm)
	}
	return Int16ToFloat(pcm[preSkip:]), Format{SampleRate: opusDecodeRate, Channels: Channels}, nil
}
