// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to feed controlled audio chunks to consumers and to verify that
// the correct VoiceProfile and text fragments are passed to the TTS backend.
//
// Example:
//
//	p := &mock.Provider{
//	    SynthesizeChunks: [][]byte{pcm},
//	    Format:           audio.Format{SampleRate: 16000, Channels: 1},
//	}
//	ch, _ := p.SynthesizeStream(ctx, textCh, voice)
package mock

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/prosodia/pkg/audio"
	"github.com/MrWong99/prosodia/pkg/provider/tts"
	"github.com/MrWong99/prosodia/pkg/types"
)

// SynthesizeStreamCall records a single invocation of SynthesizeStream.
type SynthesizeStreamCall struct {
	// Ctx is the context passed to SynthesizeStream.
	Ctx context.Context
	// Voice is the VoiceProfile passed to SynthesizeStream.
	Voice types.VoiceProfile
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// SynthesizeChunks is the sequence of audio byte slices emitted on the channel
	// returned by SynthesizeStream.
	SynthesizeChunks [][]byte

	// SynthesizeErr, if non-nil, is returned as the error from SynthesizeStream
	// instead of starting a channel.
	SynthesizeErr error

	// StreamErr, if non-nil, is reported through tts.ReportStreamError after
	// SynthesizeChunks were emitted, simulating a stream cut short.
	StreamErr error

	// Delay, if positive, is waited (or ctx cancellation, whichever comes first)
	// before the first chunk is emitted.
	Delay time.Duration

	// ListVoicesResult is returned by ListVoices.
	ListVoicesResult []types.VoiceProfile

	// ListVoicesErr, if non-nil, is returned as the error from ListVoices.
	ListVoicesErr error

	// Format is returned by OutputFormat. The zero value reports 16 kHz mono.
	Format audio.Format

	// --- Call records ---

	// SynthesizeStreamCalls records every call to SynthesizeStream in order.
	SynthesizeStreamCalls []SynthesizeStreamCall

	// Texts records the full text consumed by each SynthesizeStream call, in
	// completion order.
	Texts []string

	// ListVoicesCalls counts calls to ListVoices.
	ListVoicesCalls int
}

// SynthesizeStream records the call and, if SynthesizeErr is nil, returns a
// channel that emits SynthesizeChunks then closes, reporting StreamErr first
// when set.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, error) {
	p.mu.Lock()
	p.SynthesizeStreamCalls = append(p.SynthesizeStreamCalls, SynthesizeStreamCall{Ctx: ctx, Voice: voice})
	if p.SynthesizeErr != nil {
		err := p.SynthesizeErr
		p.mu.Unlock()
		return nil, err
	}
	chunks := make([][]byte, len(p.SynthesizeChunks))
	copy(chunks, p.SynthesizeChunks)
	delay := p.Delay
	streamErr := p.StreamErr
	p.mu.Unlock()

	ch := make(chan []byte, len(chunks))
	go func() {
		defer close(ch)
		var sb strings.Builder
		for t := range text {
			sb.WriteString(t)
		}
		p.mu.Lock()
		p.Texts = append(p.Texts, sb.String())
		p.mu.Unlock()

		if delay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}
		for _, chunk := range chunks {
			select {
			case <-ctx.Done():
				return
			case ch <- chunk:
			}
		}
		tts.ReportStreamError(ctx, streamErr)
	}()
	return ch, nil
}

// ListVoices records the call and returns ListVoicesResult, ListVoicesErr.
func (p *Provider) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ListVoicesCalls++
	return p.ListVoicesResult, p.ListVoicesErr
}

// OutputFormat returns Format, defaulting to 16 kHz mono.
func (p *Provider) OutputFormat() audio.Format {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Format.SampleRate == 0 {
		return audio.Format{SampleRate: audio.SampleRate, Channels: audio.Channels}
	}
	return p.Format
}

// Calls returns the number of SynthesizeStream calls so far. Thread-safe.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.SynthesizeStreamCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeStreamCalls = nil
	p.Texts = nil
	p.ListVoicesCalls = 0
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
