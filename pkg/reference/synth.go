package reference

import (
	"context"

	"github.com/MrWong99/prosodia/pkg/audio"
	"github.com/MrWong99/prosodia/pkg/provider/tts"
	"github.com/MrWong99/prosodia/pkg/types"
)

// TTSSynthesizer adapts a [tts.Provider] to [Synthesizer].
type TTSSynthesizer struct {
	Provider tts.Provider
	Voice    types.VoiceProfile
}

// NewTTSSynthesizer returns a Synthesizer rendering through p with voice.
func NewTTSSynthesizer(p tts.Provider, voice types.VoiceProfile) *TTSSynthesizer {
	return &TTSSynthesizer{Provider: p, Voice: voice}
}

// Synthesize renders text and normalises it to the analysis format.
func (s *TTSSynthesizer) Synthesize(ctx context.Context, text string) (audio.Buffer, error) {
	return tts.SynthesizeBuffer(ctx, s.Provider, text, s.Voice)
}

var _ Synthesizer = (*TTSSynthesizer)(nil)
