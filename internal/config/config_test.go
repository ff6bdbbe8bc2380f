package config_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/prosodia/internal/config"
	"github.com/MrWong99/prosodia/pkg/audio"
	"github.com/MrWong99/prosodia/pkg/provider/tts"
	"github.com/MrWong99/prosodia/pkg/types"
)

const fullYAML = `
server:
  listen_addr: ":9090"
  log_level: debug
  shutdown_timeout: 5s
phonetics:
  dictionary_path: /data/cmudict.dict
  frequency_url: https://example.com/freq.txt
  load_timeout: 1m
reference:
  timeout: 3s
  voice:
    voice_id: coral
    speed_factor: 0.9
  providers:
    - name: openai
      api_key: sk-test
      model: gpt-4o-mini-tts
    - name: coqui
      base_url: http://localhost:5002
      options:
        api_mode: xtts
  circuit_breaker:
    max_failures: 2
    reset_timeout: 45s
guide:
  enabled: true
  voice:
    voice_id: alloy
analysis:
  workers: 3
  default_level: intermediate
  max_audio_seconds: 30
telemetry:
  service_name: prosodia-test
  trace_sample_ratio: 0.25
`

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(fullYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.ListenAddr != ":9090" || cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Server.ShutdownTimeout.Std() != 5*time.Second {
		t.Errorf("shutdown_timeout = %v", cfg.Server.ShutdownTimeout.Std())
	}
	if cfg.Phonetics.LoadTimeout.Std() != time.Minute || cfg.Phonetics.DictionaryPath != "/data/cmudict.dict" {
		t.Errorf("phonetics = %+v", cfg.Phonetics)
	}
	if cfg.Reference.Timeout.Std() != 3*time.Second {
		t.Errorf("reference.timeout = %v", cfg.Reference.Timeout.Std())
	}
	if len(cfg.Reference.Providers) != 2 || cfg.Reference.Providers[1].Options["api_mode"] != "xtts" {
		t.Errorf("providers = %+v", cfg.Reference.Providers)
	}
	if cfg.Reference.CircuitBreaker.MaxFailures != 2 || cfg.Reference.CircuitBreaker.ResetTimeout.Std() != 45*time.Second {
		t.Errorf("circuit_breaker = %+v", cfg.Reference.CircuitBreaker)
	}
	if v := cfg.Reference.Voice.Profile(); v.ID != "coral" || v.SpeedFactor != 0.9 {
		t.Errorf("voice profile = %+v", v)
	}
	if !cfg.Guide.Enabled || cfg.Guide.Voice.VoiceID != "alloy" {
		t.Errorf("guide = %+v", cfg.Guide)
	}
	if cfg.Analysis.Workers != 3 || cfg.Analysis.Level() != types.LevelB1 || cfg.Analysis.MaxAudioSeconds != 30 {
		t.Errorf("analysis = %+v", cfg.Analysis)
	}
	if cfg.Telemetry.ServiceName != "prosodia-test" || cfg.Telemetry.TraceSampleRatio != 0.25 {
		t.Errorf("telemetry = %+v", cfg.Telemetry)
	}
}

func TestLoadFromReader_EmptyGetsDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.ListenAddr != config.DefaultListenAddr || cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Reference.Timeout.Std() != types.SynthesisTimeout {
		t.Errorf("reference.timeout = %v, want %v", cfg.Reference.Timeout.Std(), types.SynthesisTimeout)
	}
	if cfg.Analysis.Workers != runtime.GOMAXPROCS(0) {
		t.Errorf("workers = %d", cfg.Analysis.Workers)
	}
	if cfg.Analysis.Level() != types.DefaultLevel {
		t.Errorf("default level = %s", cfg.Analysis.Level())
	}
	if cfg.Telemetry.ServiceName != config.DefaultServiceName {
		t.Errorf("service_name = %q", cfg.Telemetry.ServiceName)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("server:\n  listen_adr: \":1\"\n"))
	if err == nil || !strings.Contains(err.Error(), "listen_adr") {
		t.Errorf("err = %v, want unknown field error", err)
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "prosodia.yaml")
	if err := os.WriteFile(path, []byte("server:\n  listen_addr: \":7070\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.ListenAddr != ":7070" {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}

	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file err = %v, want ErrNotExist", err)
	}
}

func TestDuration_YAML(t *testing.T) {
	t.Parallel()
	var v struct {
		D config.Duration `yaml:"d"`
	}
	if err := yaml.Unmarshal([]byte("d: 1m30s"), &v); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if v.D.Std() != 90*time.Second {
		t.Errorf("D = %v", v.D.Std())
	}
	out, err := yaml.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if strings.TrimSpace(string(out)) != "d: 1m30s" {
		t.Errorf("Marshal = %q", out)
	}
	if err := yaml.Unmarshal([]byte("d: soon"), &v); err == nil {
		t.Error("expected error for invalid duration")
	}
}

func TestLogLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in    config.LogLevel
		valid bool
		level slog.Level
	}{
		{config.LogDebug, true, slog.LevelDebug},
		{config.LogInfo, true, slog.LevelInfo},
		{config.LogWarn, true, slog.LevelWarn},
		{config.LogError, true, slog.LevelError},
		{"verbose", false, slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := tt.in.IsValid(); got != tt.valid {
			t.Errorf("%q.IsValid() = %v", tt.in, got)
		}
		if got := tt.in.Level(); got != tt.level {
			t.Errorf("%q.Level() = %v, want %v", tt.in, got, tt.level)
		}
	}
}

// stubTTS is a minimal tts.Provider.
type stubTTS struct{ entry config.ProviderEntry }

func (s *stubTTS) SynthesizeStream(context.Context, <-chan string, types.VoiceProfile) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}
func (s *stubTTS) ListVoices(context.Context) ([]types.VoiceProfile, error) { return nil, nil }
func (s *stubTTS) OutputFormat() audio.Format                              { return audio.Format{SampleRate: 16000, Channels: 1} }

func TestRegistry(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	if _, err := reg.CreateTTS(config.ProviderEntry{Name: "coqui"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("unregistered err = %v, want ErrProviderNotRegistered", err)
	}

	reg.RegisterTTS("stub", func(e config.ProviderEntry) (tts.Provider, error) {
		return &stubTTS{entry: e}, nil
	})
	errFactory := errors.New("bad api key")
	reg.RegisterTTS("broken", func(config.ProviderEntry) (tts.Provider, error) {
		return nil, errFactory
	})

	p, err := reg.CreateTTS(config.ProviderEntry{Name: "stub", Model: "m1"})
	if err != nil {
		t.Fatalf("CreateTTS: %v", err)
	}
	if s, ok := p.(*stubTTS); !ok || s.entry.Model != "m1" {
		t.Errorf("provider = %#v", p)
	}
	if _, err := reg.CreateTTS(config.ProviderEntry{Name: "broken"}); !errors.Is(err, errFactory) {
		t.Errorf("factory err = %v, want wrapped errFactory", err)
	}
	if got := reg.TTSNames(); !slices.Equal(got, []string{"broken", "stub"}) {
		t.Errorf("TTSNames() = %v", got)
	}
}
