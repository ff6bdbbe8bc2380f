// Package app wires the prosodia subsystems into a running server.
//
// New builds the phonetic store, the TTS fallback chain, the reference
// resolver and the engine, then mounts the HTTP API, health probes and the
// Prometheus endpoint behind the observability middleware. Run loads the
// dictionary in the background and serves until ctx ends; Shutdown drains
// in-flight requests.
//
// Tests inject doubles through functional options (WithStore, WithMetrics).
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/MrWong99/prosodia/internal/api"
	"github.com/MrWong99/prosodia/internal/config"
	"github.com/MrWong99/prosodia/internal/health"
	"github.com/MrWong99/prosodia/internal/observe"
	"github.com/MrWong99/prosodia/internal/resilience"
	"github.com/MrWong99/prosodia/pkg/audio"
	"github.com/MrWong99/prosodia/pkg/engine"
	"github.com/MrWong99/prosodia/pkg/phonetic"
	"github.com/MrWong99/prosodia/pkg/reference"
)

// readHeaderTimeout bounds slow-loris style clients.
const readHeaderTimeout = 10 * time.Second

// maxBytesPerSecond is the upload budget per second of audio: 48 kHz
// stereo 32-bit float, the largest common recording format. 64-bit float
// uploads near the duration limit are cut off by the body limit.
const maxBytesPerSecond = 48000 * 2 * 4

// App owns the subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics

	store    *phonetic.Store
	tts      *resilience.TTSFallback
	resolver *reference.Resolver
	engine   *engine.Engine
	handler  http.Handler
	server   *http.Server

	mu   sync.Mutex
	addr net.Addr

	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithStore injects a phonetic store instead of building one from config.
func WithStore(s *phonetic.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics injects the metric instruments. Default: observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New wires the application. providers may be nil, which disables the
// synthetic reference tier and the pronunciation guide.
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.store == nil {
		a.store = newStore(cfg.Phonetics)
	}

	a.initTTS()
	a.initEngine()
	a.initHTTP()
	return a, nil
}

func newStore(c config.PhoneticsConfig) *phonetic.Store {
	return phonetic.New(
		phonetic.WithDictionaryURL(c.DictionaryURL),
		phonetic.WithFrequencyURL(c.FrequencyURL),
		phonetic.WithDictionaryPath(c.DictionaryPath),
		phonetic.WithFrequencyPath(c.FrequencyPath),
		phonetic.WithLoadTimeout(c.LoadTimeout.Std()),
	)
}

// initTTS chains the configured backends behind circuit breakers. Each
// backend is instrumented individually so failovers stay visible.
func (a *App) initTTS() {
	if len(a.providers.TTS) == 0 {
		return
	}
	cb := a.cfg.Reference.CircuitBreaker
	fcfg := resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  cb.MaxFailures,
			ResetTimeout: cb.ResetTimeout.Std(),
			HalfOpenMax:  cb.HalfOpenMax,
			OnStateChange: func(name string, _, to resilience.State) {
				a.metrics.RecordBreakerTransition(name, to.String())
			},
		},
	}
	primary := a.providers.TTS[0]
	a.tts = resilience.NewTTSFallback(observe.InstrumentTTS(primary.Provider, primary.Name, a.metrics), primary.Name, fcfg)
	for _, p := range a.providers.TTS[1:] {
		a.tts.AddFallback(p.Name, observe.InstrumentTTS(p.Provider, p.Name, a.metrics))
	}
}

func (a *App) initEngine() {
	ropts := []reference.Option{reference.WithTimeout(a.cfg.Reference.Timeout.Std())}
	if a.tts != nil {
		ropts = append(ropts, reference.WithSynthesizer(
			reference.NewTTSSynthesizer(a.tts, a.cfg.Reference.Voice.Profile()),
		))
	}
	a.resolver = reference.NewResolver(a.store, ropts...)

	eopts := []engine.Option{
		engine.WithWorkers(a.cfg.Analysis.Workers),
		engine.WithNormalizer(audio.NewNormalizer(audio.WithMaxDuration(a.cfg.Analysis.MaxAudioSeconds))),
		engine.WithRecorder(a.metrics),
		engine.WithDefaultLevel(a.cfg.Analysis.Level()),
	}
	if a.cfg.Guide.Enabled && a.tts != nil {
		voice := a.cfg.Guide.Voice
		if voice.VoiceID == "" {
			voice = a.cfg.Reference.Voice
		}
		eopts = append(eopts, engine.WithGuideVoice(a.tts, voice.Profile()))
	}
	a.engine = engine.New(a.store, a.resolver, eopts...)
}

func (a *App) initHTTP() {
	mux := http.NewServeMux()

	maxBody := int64(a.cfg.Analysis.MaxAudioSeconds*maxBytesPerSecond*4/3) + 1<<20
	api.New(a.engine, api.WithMaxBodyBytes(maxBody)).Register(mux)

	checks := []health.Checker{health.ReadyCheck("phonetics", a.store.Ready)}
	if a.tts != nil {
		checks = append(checks, health.BreakerCheck("tts", a.tts.Status))
	}
	health.New(checks...).Register(mux)
	mux.Handle("GET /metrics", observe.MetricsHandler())

	a.handler = observe.Middleware(a.metrics)(mux)
	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// Engine returns the wired engine, for one-shot use without the server.
func (a *App) Engine() *engine.Engine { return a.engine }

// Store returns the phonetic store.
func (a *App) Store() *phonetic.Store { return a.store }

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Addr returns the bound listen address once Run is serving, or nil.
func (a *App) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.addr
}

// Run starts the dictionary load in the background and serves HTTP until
// ctx is cancelled. It returns ctx.Err() on cancellation and nil when
// Shutdown stopped the server first.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen %q: %w", a.cfg.Server.ListenAddr, err)
	}
	a.mu.Lock()
	a.addr = ln.Addr()
	a.mu.Unlock()

	go a.loadStore(ctx)

	errCh := make(chan error, 1)
	go func() {
		if tls := a.cfg.Server.TLS; tls != nil {
			errCh <- a.server.ServeTLS(ln, tls.CertFile, tls.KeyFile)
			return
		}
		errCh <- a.server.Serve(ln)
	}()

	slog.Info("app running",
		"addr", ln.Addr().String(),
		"tls", a.cfg.Server.TLS != nil,
		"tts_backends", len(a.providers.TTS),
		"guide", a.cfg.Guide.Enabled && a.tts != nil,
	)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	}
}

// loadStore initialises the dictionary. Requests arriving earlier wait for
// it inside the engine; /readyz reports 503 until it completes.
func (a *App) loadStore(ctx context.Context) {
	if err := a.store.Initialize(ctx); err != nil {
		slog.Warn("phonetic store initialisation abandoned", "err", err)
		return
	}
	slog.Info("phonetic store ready", "source", string(a.store.Source()), "entries", a.store.Len())
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx expires.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		slog.Info("shutting down")
		if e := a.server.Shutdown(ctx); e != nil {
			err = fmt.Errorf("app: shutdown: %w", e)
			return
		}
		slog.Info("shutdown complete")
	})
	return err
}
