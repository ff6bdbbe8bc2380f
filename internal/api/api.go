// Package api exposes the pronunciation engine over HTTP.
//
// Routes:
//
//   - POST /v1/score           score a recording against a target phrase
//   - POST /v1/compare         score a recording against one reference word
//   - GET  /v1/reference/{word} dictionary data for one word
//   - GET  /v1/features        capability descriptor
//   - POST /v1/guide           corrected-pronunciation guide audio (WAV)
//
// Scoring requests accept three body encodings: JSON with base64 audio,
// multipart/form-data with an "audio" file part, or a raw audio body with
// text and level in the query string. Malformed requests get 400; every
// well-formed request gets a complete score, however poor the audio.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/MrWong99/prosodia/internal/observe"
	"github.com/MrWong99/prosodia/pkg/engine"
	"github.com/MrWong99/prosodia/pkg/types"
)

// Analyzer is the engine surface the handlers use. *engine.Engine
// satisfies it.
type Analyzer interface {
	Analyze(ctx context.Context, req engine.Request) types.Score
	Compare(ctx context.Context, payload []byte, word string, level types.Level) types.Comparison
	ReferenceInfo(ctx context.Context, word string) (types.ReferenceInfo, []string, bool)
	Guide(ctx context.Context, text string, level types.Level, stressScore float64) ([]byte, error)
	Features() engine.FeatureSet
}

var _ Analyzer = (*engine.Engine)(nil)

// Request errors.
var (
	ErrMissingWord        = errors.New("api: reference word is required")
	ErrUnsupportedMedia   = errors.New("api: unsupported content type")
	ErrBodyTooLarge       = errors.New("api: request body too large")
	errMalformedMultipart = errors.New("api: malformed multipart body")
)

// DefaultMaxBodyBytes bounds request bodies when no limit is configured.
const DefaultMaxBodyBytes int64 = 32 << 20

// multipartMemory is the in-memory share of a multipart upload; the rest
// spills to temporary files.
const multipartMemory = 8 << 20

// Option configures a Server.
type Option func(*Server)

// WithMaxBodyBytes bounds request bodies. Non-positive values are ignored.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBody = n
		}
	}
}

// Server holds the HTTP handlers. It is safe for concurrent use.
type Server struct {
	a       Analyzer
	maxBody int64
}

// New creates a Server backed by a.
func New(a Analyzer, opts ...Option) *Server {
	s := &Server{a: a, maxBody: DefaultMaxBodyBytes}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register adds all routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/score", s.handleScore)
	mux.HandleFunc("POST /v1/compare", s.handleCompare)
	mux.HandleFunc("GET /v1/reference/{word}", s.handleReference)
	mux.HandleFunc("GET /v1/features", s.handleFeatures)
	mux.HandleFunc("POST /v1/guide", s.handleGuide)
}

// audioRequest is the decoded form of a scoring request. Audio travels as
// base64 in JSON bodies.
type audioRequest struct {
	Audio []byte `json:"audio"`
	Text  string `json:"text"`
	Word  string `json:"word"`
	Level string `json:"level"`
}

// parseLevel returns the requested level, or zero so the engine applies its
// configured default.
func parseLevel(s string) types.Level {
	if l, ok := types.ParseLevel(s); ok {
		return l
	}
	return 0
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	in, err := s.readAudioRequest(w, r)
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}
	req := engine.Request{Audio: in.Audio, Text: in.Text, Level: parseLevel(in.Level)}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, s.a.Analyze(r.Context(), req))
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	in, err := s.readAudioRequest(w, r)
	if err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}
	word := in.Word
	if word == "" {
		word = in.Text
	}
	if strings.TrimSpace(word) == "" {
		writeError(w, r, http.StatusBadRequest, ErrMissingWord)
		return
	}
	writeJSON(w, http.StatusOK, s.a.Compare(r.Context(), in.Audio, word, parseLevel(in.Level)))
}

// notFound is the 404 body of a reference lookup.
type notFound struct {
	Error       string   `json:"error"`
	Word        string   `json:"word"`
	Suggestions []string `json:"suggestions"`
}

func (s *Server) handleReference(w http.ResponseWriter, r *http.Request) {
	word := r.PathValue("word")
	if strings.TrimSpace(word) == "" {
		writeError(w, r, http.StatusBadRequest, ErrMissingWord)
		return
	}
	info, suggestions, ok := s.a.ReferenceInfo(r.Context(), word)
	if !ok {
		if suggestions == nil {
			suggestions = []string{}
		}
		writeJSON(w, http.StatusNotFound, notFound{
			Error:       "word not found",
			Word:        info.Word,
			Suggestions: suggestions,
		})
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleFeatures(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.a.Features())
}

// guideRequest asks for corrected-pronunciation audio. An omitted stress
// score counts as weak stress, so stressed words are emphasised.
type guideRequest struct {
	Text        string  `json:"text"`
	Level       string  `json:"level"`
	StressScore float64 `json:"stress_score"`
}

func (s *Server) handleGuide(w http.ResponseWriter, r *http.Request) {
	var in guideRequest
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	if err := decodeJSON(r.Body, &in); err != nil {
		writeError(w, r, statusFor(err), err)
		return
	}
	wav, err := s.a.Guide(r.Context(), in.Text, parseLevel(in.Level), in.StressScore)
	switch {
	case errors.Is(err, engine.ErrMissingText):
		writeError(w, r, http.StatusBadRequest, err)
		return
	case errors.Is(err, engine.ErrNoGuideVoice):
		writeError(w, r, http.StatusNotImplemented, err)
		return
	case err != nil:
		writeError(w, r, http.StatusBadGateway, err)
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(wav)
}

// readAudioRequest decodes a scoring request in any supported encoding.
func (s *Server) readAudioRequest(w http.ResponseWriter, r *http.Request) (audioRequest, error) {
	var in audioRequest
	mediaType := "application/json"
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil {
			return in, fmt.Errorf("%w: %w", ErrUnsupportedMedia, err)
		}
		mediaType = mt
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)

	switch {
	case mediaType == "application/json":
		err := decodeJSON(r.Body, &in)
		return in, err

	case mediaType == "multipart/form-data":
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			if tooLarge(err) {
				return in, ErrBodyTooLarge
			}
			return in, fmt.Errorf("%w: %w", errMalformedMultipart, err)
		}
		in.Text = r.FormValue("text")
		in.Word = r.FormValue("word")
		in.Level = r.FormValue("level")
		f, _, err := r.FormFile("audio")
		switch {
		case errors.Is(err, http.ErrMissingFile):
			return in, nil
		case err != nil:
			return in, fmt.Errorf("%w: %w", errMalformedMultipart, err)
		}
		defer f.Close()
		in.Audio, err = io.ReadAll(f)
		return in, err

	case strings.HasPrefix(mediaType, "audio/") || mediaType == "application/octet-stream":
		q := r.URL.Query()
		in.Text, in.Word, in.Level = q.Get("text"), q.Get("word"), q.Get("level")
		body, err := io.ReadAll(r.Body)
		if tooLarge(err) {
			return in, ErrBodyTooLarge
		}
		in.Audio = body
		return in, err

	default:
		return in, fmt.Errorf("%w: %s", ErrUnsupportedMedia, mediaType)
	}
}

// decodeJSON reads one JSON object from body, rejecting unknown fields.
func decodeJSON(body io.Reader, v any) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if tooLarge(err) {
			return ErrBodyTooLarge
		}
		return fmt.Errorf("api: decode body: %w", err)
	}
	return nil
}

func tooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrBodyTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrUnsupportedMedia):
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusBadRequest
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	l := observe.Logger(r.Context())
	if status >= http.StatusInternalServerError {
		l.Warn("api: request failed", "status", status, "err", err)
	} else {
		l.Debug("api: request rejected", "status", status, "err", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
