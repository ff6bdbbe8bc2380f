// Package config provides the configuration schema, loader, and TTS provider
// registry for the prosodia server.
package config

import (
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/prosodia/pkg/types"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level maps l onto a slog level. Unknown values map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Duration is a time.Duration written in YAML as a Go duration string
// ("5s", "1m30s").
type Duration time.Duration

// UnmarshalYAML implements [yaml.Unmarshaler].
func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements [yaml.Marshaler].
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Defaults applied by [Config.ApplyDefaults].
const (
	DefaultListenAddr      = ":8080"
	DefaultServiceName     = "prosodia"
	DefaultLoadTimeout     = Duration(30 * time.Second)
	DefaultShutdownTimeout = Duration(15 * time.Second)
	DefaultMaxAudioSeconds = 60.0
)

// Config is the root configuration, usually loaded with [Load].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Phonetics PhoneticsConfig `yaml:"phonetics"`
	Reference ReferenceConfig `yaml:"reference"`
	Guide     GuideConfig     `yaml:"guide"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the HTTP API (e.g. ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`

	// TLS enables HTTPS when set.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds PEM file paths.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// PhoneticsConfig locates the pronouncing dictionary and the word frequency
// list. Local paths win over URLs. With neither set the built-in table is
// used.
type PhoneticsConfig struct {
	DictionaryURL  string   `yaml:"dictionary_url"`
	FrequencyURL   string   `yaml:"frequency_url"`
	DictionaryPath string   `yaml:"dictionary_path"`
	FrequencyPath  string   `yaml:"frequency_path"`
	LoadTimeout    Duration `yaml:"load_timeout"`
}

// ReferenceConfig configures the synthetic reference tier.
type ReferenceConfig struct {
	// Timeout bounds one synthetic reference attempt.
	Timeout Duration `yaml:"timeout"`

	// Voice is the voice used to render reference utterances.
	Voice VoiceConfig `yaml:"voice"`

	// Providers lists TTS backends in preference order. The first entry is
	// the primary; the rest are fallbacks. Empty disables the synthetic
	// tier.
	Providers []ProviderEntry `yaml:"providers"`

	// CircuitBreaker tunes the per-backend breakers.
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// GuideConfig enables the corrected-pronunciation audio guide. The guide
// uses the reference providers.
type GuideConfig struct {
	Enabled bool        `yaml:"enabled"`
	Voice   VoiceConfig `yaml:"voice"`
}

// CircuitBreakerConfig mirrors resilience.CircuitBreakerConfig.
type CircuitBreakerConfig struct {
	MaxFailures  int      `yaml:"max_failures"`
	ResetTimeout Duration `yaml:"reset_timeout"`
	HalfOpenMax  int      `yaml:"half_open_max"`
}

// ProviderEntry is the configuration block of one TTS backend. Name selects
// the factory in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider ("elevenlabs", "coqui", "openai").
	Name string `yaml:"name"`

	// APIKey authenticates against the provider's API if needed.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// VoiceConfig selects a provider voice.
type VoiceConfig struct {
	// VoiceID is the provider-specific voice identifier.
	VoiceID string `yaml:"voice_id"`

	// SpeedFactor adjusts speaking rate in [0.5, 2.0]. 0 keeps the
	// provider default.
	SpeedFactor float64 `yaml:"speed_factor"`
}

// Profile converts v into a voice profile.
func (v VoiceConfig) Profile() types.VoiceProfile {
	return types.VoiceProfile{ID: v.VoiceID, Name: v.VoiceID, SpeedFactor: v.SpeedFactor}
}

// AnalysisConfig tunes the scoring pipeline.
type AnalysisConfig struct {
	// Workers bounds concurrent feature extraction. Default:
	// runtime.GOMAXPROCS(0).
	Workers int `yaml:"workers"`

	// DefaultLevel is used for requests without a valid level. Accepts CEFR
	// codes or level names.
	DefaultLevel string `yaml:"default_level"`

	// MaxAudioSeconds truncates longer recordings.
	MaxAudioSeconds float64 `yaml:"max_audio_seconds"`
}

// Level returns the parsed default level, or [types.DefaultLevel] when the
// field is empty or invalid.
func (a AnalysisConfig) Level() types.Level {
	if l, ok := types.ParseLevel(a.DefaultLevel); ok {
		return l
	}
	return types.DefaultLevel
}

// TelemetryConfig configures OpenTelemetry resources.
type TelemetryConfig struct {
	ServiceName string `yaml:"service_name"`

	// TraceSampleRatio is the fraction of new request traces recorded, in
	// [0, 1]. Zero records every trace. Requests arriving with a sampled
	// parent are always recorded.
	TraceSampleRatio float64 `yaml:"trace_sample_ratio"`
}

// ApplyDefaults fills zero fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Phonetics.LoadTimeout == 0 {
		c.Phonetics.LoadTimeout = DefaultLoadTimeout
	}
	if c.Reference.Timeout == 0 {
		c.Reference.Timeout = Duration(types.SynthesisTimeout)
	}
	if c.Analysis.Workers <= 0 {
		c.Analysis.Workers = runtime.GOMAXPROCS(0)
	}
	if c.Analysis.MaxAudioSeconds == 0 {
		c.Analysis.MaxAudioSeconds = DefaultMaxAudioSeconds
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = DefaultServiceName
	}
}
