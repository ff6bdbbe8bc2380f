// Command prosodia runs the pronunciation analysis server.
//
// Without mode flags it serves the HTTP API. Two one-shot modes work
// against the same wiring without opening a port:
//
//	prosodia -score take1.wav -text "hello world" -level B1
//	prosodia -lookup important
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/MrWong99/prosodia/internal/app"
	"github.com/MrWong99/prosodia/internal/config"
	"github.com/MrWong99/prosodia/internal/observe"
	"github.com/MrWong99/prosodia/pkg/engine"
	"github.com/MrWong99/prosodia/pkg/types"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, stdout io.Writer) int {
	fs := flag.NewFlagSet("prosodia", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "path to the YAML configuration file")
	scorePath := fs.String("score", "", "score this audio file and exit")
	text := fs.String("text", "", "target phrase for -score")
	level := fs.String("level", "", "learner level for -score (A1..C2 or a level name)")
	lookup := fs.String("lookup", "", "print dictionary data for a word and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	oneShot := *scorePath != "" || *lookup != ""

	cfg, err := loadConfig(*configPath, oneShot)
	if err != nil {
		fmt.Fprintf(os.Stderr, "prosodia: %v\n", err)
		return 1
	}
	slog.SetDefault(newLogger(cfg.Server.LogLevel))

	reg := config.NewRegistry()
	app.RegisterBuiltinProviders(reg)
	providers, err := app.BuildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if oneShot {
		a, err := app.New(cfg, providers)
		if err != nil {
			slog.Error("failed to initialise application", "err", err)
			return 1
		}
		if err := a.Store().Initialize(ctx); err != nil {
			slog.Error("phonetic store not loaded", "err", err)
			return 1
		}
		if *lookup != "" {
			return runLookup(ctx, a.Engine(), *lookup, stdout)
		}
		return runScore(ctx, a.Engine(), *scorePath, *text, *level, stdout)
	}

	return serve(ctx, cfg, providers)
}

// loadConfig reads path. One-shot modes fall back to defaults when the file
// does not exist.
func loadConfig(path string, allowMissing bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		if !allowMissing {
			return nil, fmt.Errorf("config file %q not found; copy configs/example.yaml to get started", path)
		}
		cfg, err = config.LoadFromReader(strings.NewReader(""))
	}
	return cfg, err
}

func serve(ctx context.Context, cfg *config.Config, providers *app.Providers) int {
	telemetry, err := observe.Setup(ctx, observe.TelemetryConfig{
		ServiceName:      cfg.Telemetry.ServiceName,
		ServiceVersion:   version,
		TraceSampleRatio: cfg.Telemetry.TraceSampleRatio,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	slog.Info("prosodia starting",
		"version", version,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"default_level", cfg.Analysis.Level().String(),
		"workers", cfg.Analysis.Workers,
	)

	// Instruments are created after Setup so they bind to the
	// Prometheus-backed meter provider.
	a, err := app.New(cfg, providers, app.WithMetrics(observe.DefaultMetrics()))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	code := 0
	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		code = 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
	defer cancel()

	slog.Info("stopping")
	if err := a.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		code = 1
	}
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return code
}

func runScore(ctx context.Context, eng *engine.Engine, path, text, level string, stdout io.Writer) int {
	payload, err := os.ReadFile(path)
	if err != nil {
		slog.Error("read audio", "err", err)
		return 1
	}
	req := engine.Request{Audio: payload, Text: text}
	if l, ok := types.ParseLevel(level); ok {
		req.Level = l
	}
	if err := req.Validate(); err != nil {
		slog.Error("invalid request", "err", err)
		return 2
	}
	return printJSON(stdout, eng.Analyze(ctx, req))
}

func runLookup(ctx context.Context, eng *engine.Engine, word string, stdout io.Writer) int {
	info, suggestions, ok := eng.ReferenceInfo(ctx, word)
	if !ok {
		fmt.Fprintf(stdout, "%q is not in the dictionary", info.Word)
		if len(suggestions) > 0 {
			fmt.Fprintf(stdout, "; did you mean %v?", suggestions)
		}
		fmt.Fprintln(stdout)
		return 1
	}
	return printJSON(stdout, info)
}

func printJSON(w io.Writer, v any) int {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		slog.Error("encode output", "err", err)
		return 1
	}
	return 0
}

func newLogger(level config.LogLevel) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level.Level()}))
}
