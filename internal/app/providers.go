package app

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrWong99/prosodia/internal/config"
	"github.com/MrWong99/prosodia/pkg/provider/tts"
	"github.com/MrWong99/prosodia/pkg/provider/tts/coqui"
	"github.com/MrWong99/prosodia/pkg/provider/tts/elevenlabs"
	oaitts "github.com/MrWong99/prosodia/pkg/provider/tts/openai"
)

// NamedTTS is one configured reference-voice backend.
type NamedTTS struct {
	Name     string
	Provider tts.Provider
}

// Providers holds the external backends. Built from config by
// [BuildProviders] or supplied directly by tests.
type Providers struct {
	// TTS lists reference-voice backends in failover order.
	TTS []NamedTTS
}

// RegisterBuiltinProviders wires the TTS backends shipped with prosodia
// into reg. Provider-specific settings come from the entry's options map:
//
//   - elevenlabs: output_format, stream_url
//   - coqui:      language, api_mode, timeout
//   - openai:     instructions, organization, timeout
func RegisterBuiltinProviders(reg *config.Registry) {
	reg.RegisterTTS("elevenlabs", func(e config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if e.Model != "" {
			opts = append(opts, elevenlabs.WithModel(e.Model))
		}
		if f := optString(e.Options, "output_format"); f != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(f))
		}
		if e.BaseURL != "" {
			stream := optString(e.Options, "stream_url")
			if stream == "" {
				stream = websocketURL(e.BaseURL)
			}
			opts = append(opts, elevenlabs.WithBaseURLs(stream, e.BaseURL))
		}
		return elevenlabs.New(e.APIKey, opts...)
	})

	reg.RegisterTTS("coqui", func(e config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if lang := optString(e.Options, "language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if mode := optString(e.Options, "api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		d, err := optDuration(e.Options, "timeout")
		if err != nil {
			return nil, err
		}
		if d > 0 {
			opts = append(opts, coqui.WithTimeout(d))
		}
		return coqui.New(e.BaseURL, opts...)
	})

	reg.RegisterTTS("openai", func(e config.ProviderEntry) (tts.Provider, error) {
		var opts []oaitts.Option
		if e.BaseURL != "" {
			opts = append(opts, oaitts.WithBaseURL(e.BaseURL))
		}
		if s := optString(e.Options, "instructions"); s != "" {
			opts = append(opts, oaitts.WithInstructions(s))
		}
		if org := optString(e.Options, "organization"); org != "" {
			opts = append(opts, oaitts.WithOrganization(org))
		}
		d, err := optDuration(e.Options, "timeout")
		if err != nil {
			return nil, err
		}
		if d > 0 {
			opts = append(opts, oaitts.WithTimeout(d))
		}
		return oaitts.New(e.APIKey, e.Model, opts...)
	})
}

// BuildProviders instantiates every configured TTS backend. Entries whose
// name has no registered factory are skipped with a warning; factory errors
// are fatal.
func BuildProviders(cfg *config.Config, reg *config.Registry) (*Providers, error) {
	p := &Providers{}
	for _, e := range cfg.Reference.Providers {
		prov, err := reg.CreateTTS(e)
		if err != nil {
			if errors.Is(err, config.ErrProviderNotRegistered) {
				slog.Warn("tts provider not available, skipping", "name", e.Name)
				continue
			}
			return nil, err
		}
		slog.Info("provider created", "kind", "tts", "name", e.Name, "model", e.Model)
		p.TTS = append(p.TTS, NamedTTS{Name: e.Name, Provider: prov})
	}
	return p, nil
}

// optString extracts a string option. Missing keys and non-string values
// yield "".
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optDuration parses a duration option such as "20s".
func optDuration(opts map[string]any, key string) (time.Duration, error) {
	s := optString(opts, key)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("app: option %s: %w", key, err)
	}
	return d, nil
}

// websocketURL maps an http(s) base URL onto its ws(s) counterpart.
func websocketURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base
}
