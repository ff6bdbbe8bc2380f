package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/prosodia/internal/resilience"
)

func ok(context.Context) error { return nil }

func fails(msg string) func(context.Context) error {
	return func(context.Context) error { return errors.New(msg) }
}

func readyz(t *testing.T, h *Handler) (int, result) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))
	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return rec.Code, body
}

func TestHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	New(Checker{Name: "x", Check: fails("down")}).Healthz(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body.Status != StatusOK {
		t.Errorf("status = %q", body.Status)
	}
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name       string
		checkers   []Checker
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "no checkers",
			wantCode:   http.StatusOK,
			wantStatus: StatusOK,
		},
		{
			name: "all pass",
			checkers: []Checker{
				{Name: "phonetics", Check: ok},
				{Name: "tts", Check: ok, Optional: true},
			},
			wantCode:   http.StatusOK,
			wantStatus: StatusOK,
			wantChecks: map[string]string{"phonetics": "ok", "tts": "ok"},
		},
		{
			name: "required fails",
			checkers: []Checker{
				{Name: "phonetics", Check: fails("not ready")},
				{Name: "tts", Check: ok, Optional: true},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: StatusFail,
			wantChecks: map[string]string{"phonetics": "fail: not ready", "tts": "ok"},
		},
		{
			name: "optional fails",
			checkers: []Checker{
				{Name: "phonetics", Check: ok},
				{Name: "tts", Check: fails("all circuits open"), Optional: true},
			},
			wantCode:   http.StatusOK,
			wantStatus: StatusDegraded,
			wantChecks: map[string]string{"tts": "degraded: all circuits open"},
		},
		{
			name: "required failure wins over degraded",
			checkers: []Checker{
				{Name: "phonetics", Check: fails("timeout")},
				{Name: "tts", Check: fails("quota"), Optional: true},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: StatusFail,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := readyz(t, New(tt.checkers...))
			if code != tt.wantCode {
				t.Errorf("code = %d, want %d", code, tt.wantCode)
			}
			if body.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", body.Status, tt.wantStatus)
			}
			for k, v := range tt.wantChecks {
				if body.Checks[k] != v {
					t.Errorf("checks[%s] = %q, want %q", k, body.Checks[k], v)
				}
			}
		})
	}
}

func TestReadyz_RespectsContextCancellation(t *testing.T) {
	h := New(Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestRegister(t *testing.T) {
	mux := http.NewServeMux()
	New(Checker{Name: "test", Check: ok}).Register(mux)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d, want 200", path, rec.Code)
		}
	}
}

func TestReadyCheck(t *testing.T) {
	ready := false
	c := ReadyCheck("phonetics", func() bool { return ready })
	if c.Optional {
		t.Error("ReadyCheck should be required")
	}
	if err := c.Check(context.Background()); !errors.Is(err, ErrNotReady) {
		t.Errorf("err = %v, want ErrNotReady", err)
	}
	ready = true
	if err := c.Check(context.Background()); err != nil {
		t.Errorf("err = %v, want nil", err)
	}
}

func TestBreakerCheck(t *testing.T) {
	tests := []struct {
		name    string
		entries []resilience.EntryStatus
		wantErr bool
	}{
		{name: "no backends"},
		{
			name: "one open one closed",
			entries: []resilience.EntryStatus{
				{Name: "openai", State: resilience.StateOpen},
				{Name: "coqui", State: resilience.StateClosed},
			},
		},
		{
			name: "half-open counts as available",
			entries: []resilience.EntryStatus{
				{Name: "openai", State: resilience.StateHalfOpen},
			},
		},
		{
			name: "all open",
			entries: []resilience.EntryStatus{
				{Name: "openai", State: resilience.StateOpen},
				{Name: "coqui", State: resilience.StateOpen},
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := BreakerCheck("tts", func() []resilience.EntryStatus { return tt.entries })
			if !c.Optional {
				t.Error("BreakerCheck should be optional")
			}
			err := c.Check(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !strings.Contains(err.Error(), "openai, coqui") {
				t.Errorf("err = %q, want backend names", err)
			}
		})
	}
}
