// Package health provides HTTP liveness and readiness handlers.
//
//   - /healthz is the liveness probe and always returns 200 OK.
//   - /readyz returns 200 once every required [Checker] passes. Optional
//     checkers only downgrade the reported status to "degraded".
//
// Responses are JSON objects with a top-level "status" field ("ok",
// "degraded" or "fail") and a "checks" map holding each checker's result.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/prosodia/internal/resilience"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Response statuses.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusFail     = "fail"
)

// Checker is a named readiness probe.
type Checker struct {
	// Name keys the result in the JSON response, e.g. "phonetics".
	Name string

	// Check returns nil when the dependency is usable. It must respect
	// context cancellation.
	Check func(ctx context.Context) error

	// Optional marks a dependency the server can run without. Its failure
	// yields "degraded" instead of 503.
	Optional bool
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz. The checker list is fixed at
// construction time.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler] that runs checkers concurrently on each /readyz
// request.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// Healthz always returns 200 OK.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: StatusOK})
}

// Readyz evaluates every checker under a [checkTimeout] deadline derived
// from the request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	var (
		mu       sync.Mutex
		checks   = make(map[string]string, len(h.checkers))
		failed   bool
		degraded bool
	)

	var g errgroup.Group
	for _, c := range h.checkers {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()
			err := c.Check(ctx)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				checks[c.Name] = StatusOK
			case c.Optional:
				checks[c.Name] = StatusDegraded + ": " + err.Error()
				degraded = true
			default:
				checks[c.Name] = StatusFail + ": " + err.Error()
				failed = true
			}
			return nil
		})
	}
	_ = g.Wait()

	res := result{Status: StatusOK, Checks: checks}
	status := http.StatusOK
	switch {
	case failed:
		res.Status = StatusFail
		status = http.StatusServiceUnavailable
	case degraded:
		res.Status = StatusDegraded
	}
	writeJSON(w, status, res)
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// ErrNotReady is reported by [ReadyCheck] before the dependency is ready.
var ErrNotReady = errors.New("not ready")

// ReadyCheck adapts a readiness flag such as the phonetic store's Ready
// method into a required [Checker].
func ReadyCheck(name string, ready func() bool) Checker {
	return Checker{
		Name: name,
		Check: func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !ready() {
				return ErrNotReady
			}
			return nil
		},
	}
}

// BreakerCheck reports an optional [Checker] that fails when every backend
// of a fallback chain has its circuit breaker open. Analysis still works in
// that state, using the heuristic reference instead of synthesis.
func BreakerCheck(name string, status func() []resilience.EntryStatus) Checker {
	return Checker{
		Name:     name,
		Optional: true,
		Check: func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			entries := status()
			var open []string
			for _, e := range entries {
				if e.State == resilience.StateOpen {
					open = append(open, e.Name)
				}
			}
			if len(entries) > 0 && len(open) == len(entries) {
				return fmt.Errorf("all circuits open: %s", strings.Join(open, ", "))
			}
			return nil
		},
	}
}

// writeJSON encodes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
