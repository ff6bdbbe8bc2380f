package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/prosodia/pkg/types"
)

// KnownTTSProviders lists the built-in TTS provider names. [Validate] warns
// about other names.
var KnownTTSProviders = []string{"elevenlabs", "coqui", "openai"}

// Load reads the YAML file at path, applies defaults and validates it.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r, applies defaults and validates the
// result. An empty document yields the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cfg for coherence and returns all problems joined.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}
	if cfg.Server.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must not be negative"))
	}

	if cfg.Phonetics.LoadTimeout < 0 {
		errs = append(errs, errors.New("phonetics.load_timeout must not be negative"))
	}
	if cfg.Phonetics.DictionaryPath == "" && cfg.Phonetics.DictionaryURL == "" {
		slog.Warn("no pronouncing dictionary configured; using the built-in word table")
	}

	if cfg.Reference.Timeout < 0 {
		errs = append(errs, errors.New("reference.timeout must not be negative"))
	}
	errs = append(errs, validateVoice("reference.voice", cfg.Reference.Voice)...)
	if len(cfg.Reference.Providers) > 0 && cfg.Reference.Voice.VoiceID == "" {
		errs = append(errs, errors.New("reference.voice.voice_id is required when reference.providers is set"))
	}
	seen := make(map[string]int, len(cfg.Reference.Providers))
	for i, p := range cfg.Reference.Providers {
		prefix := fmt.Sprintf("reference.providers[%d]", i)
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		if prev, ok := seen[p.Name]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q duplicates reference.providers[%d]", prefix, p.Name, prev))
		}
		seen[p.Name] = i
		validateProviderName(p.Name)
	}
	cb := cfg.Reference.CircuitBreaker
	if cb.MaxFailures < 0 || cb.HalfOpenMax < 0 || cb.ResetTimeout < 0 {
		errs = append(errs, errors.New("reference.circuit_breaker values must not be negative"))
	}

	if cfg.Guide.Enabled {
		if len(cfg.Reference.Providers) == 0 {
			errs = append(errs, errors.New("guide.enabled requires at least one entry in reference.providers"))
		}
		errs = append(errs, validateVoice("guide.voice", cfg.Guide.Voice)...)
	}

	if cfg.Analysis.Workers < 0 {
		errs = append(errs, errors.New("analysis.workers must not be negative"))
	}
	if cfg.Analysis.MaxAudioSeconds < 0 {
		errs = append(errs, errors.New("analysis.max_audio_seconds must not be negative"))
	}
	if r := cfg.Telemetry.TraceSampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("telemetry.trace_sample_ratio %v must be within [0, 1]", r))
	}
	if lvl := cfg.Analysis.DefaultLevel; lvl != "" {
		if _, ok := types.ParseLevel(lvl); !ok {
			errs = append(errs, fmt.Errorf("analysis.default_level %q is invalid; valid values: A1..C2 or %s",
				lvl, strings.Join(levelNames(), ", ")))
		}
	}

	return errors.Join(errs...)
}

func validateVoice(prefix string, v VoiceConfig) []error {
	if v.SpeedFactor != 0 && (v.SpeedFactor < 0.5 || v.SpeedFactor > 2.0) {
		return []error{fmt.Errorf("%s.speed_factor %.2f is out of range [0.5, 2.0]", prefix, v.SpeedFactor)}
	}
	return nil
}

func levelNames() []string {
	return []string{"beginner", "elementary", "intermediate", "upper-intermediate", "advanced", "near-native"}
}

// validateProviderName warns when name is not a built-in provider.
func validateProviderName(name string) {
	if slices.Contains(KnownTTSProviders, name) {
		return
	}
	slog.Warn("unknown tts provider name; may be a typo or a third-party provider",
		"name", name,
		"known", KnownTTSProviders,
	)
}
