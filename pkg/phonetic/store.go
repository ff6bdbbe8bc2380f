// Package phonetic provides the read-only phonetic reference store: word to
// phoneme sequence, syllable count, stress pattern and frequency rank.
//
// A [Store] is constructed explicitly and populated once by
// [Store.Initialize]. Initialization is idempotent and safe to call
// concurrently: concurrent callers share the same in-flight load. Loading
// never fails; when the bulk CMU dictionary or frequency list cannot be read
// the store falls back to a small built-in table and logs a warning. After
// initialization the table is immutable and lookups take no locks.
package phonetic

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Default bulk data sources.
const (
	DefaultDictionaryURL = "https://raw.githubusercontent.com/cmusphinx/cmudict/master/cmudict.dict"
	DefaultFrequencyURL  = "https://raw.githubusercontent.com/first20hours/google-10000-english/master/20k.txt"
	defaultLoadTimeout   = 30 * time.Second
)

// Source identifies where the loaded dictionary came from.
type Source string

const (
	SourceNone    Source = ""
	SourceBuiltin Source = "builtin"
	SourceBulk    Source = "bulk"
)

// Option is a functional option for configuring a [Store].
type Option func(*Store)

// WithDictionaryURL sets the HTTP location of the CMU dictionary. An empty
// URL disables the remote source.
func WithDictionaryURL(url string) Option {
	return func(s *Store) { s.dictURL = url }
}

// WithFrequencyURL sets the HTTP location of the frequency list. An empty
// URL disables the remote source.
func WithFrequencyURL(url string) Option {
	return func(s *Store) { s.freqURL = url }
}

// WithDictionaryPath reads the dictionary from a local file. A local path
// takes precedence over the URL.
func WithDictionaryPath(path string) Option {
	return func(s *Store) { s.dictPath = path }
}

// WithFrequencyPath reads the frequency list from a local file. A local path
// takes precedence over the URL.
func WithFrequencyPath(path string) Option {
	return func(s *Store) { s.freqPath = path }
}

// WithHTTPClient overrides the HTTP client used for remote sources.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Store) { s.client = c }
}

// WithLoadTimeout bounds the whole initialization. Default: 30s.
func WithLoadTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.loadTimeout = d
		}
	}
}

// table is an immutable snapshot of the loaded data.
type table struct {
	entries map[string]Entry
	source  Source

	indexOnce sync.Once
	index     map[string][]string
}

// Store is the phonetic reference store. The zero value is not usable; use
// [New]. All methods are safe for concurrent use.
type Store struct {
	dictURL, freqURL   string
	dictPath, freqPath string
	client             *http.Client
	loadTimeout        time.Duration

	group    singleflight.Group
	tbl      atomic.Pointer[table]
	done     chan struct{}
	doneOnce sync.Once
}

// New returns an uninitialised [Store]. Without options it loads the public
// CMU dictionary and frequency list over HTTP.
func New(opts ...Option) *Store {
	s := &Store{
		dictURL:     DefaultDictionaryURL,
		freqURL:     DefaultFrequencyURL,
		client:      &http.Client{},
		loadTimeout: defaultLoadTimeout,
		done:        make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// NewBuiltin returns a store that is already initialised with the built-in
// fallback table. Useful for tests and offline tools.
func NewBuiltin() *Store {
	s := New(WithDictionaryURL(""), WithFrequencyURL(""))
	s.publish(buildTable(builtinPhonemes(), builtinRanks(), SourceBuiltin))
	return s
}

// Initialize loads the dictionary if it has not been loaded yet. Concurrent
// callers wait for the same load. The load itself is detached from ctx
// cancellation and bounded by the load timeout, so an abandoned caller
// never leaves the store half-initialised. Initialize returns ctx.Err() if
// ctx ends before the load finishes and nil otherwise.
func (s *Store) Initialize(ctx context.Context) error {
	if s.Ready() {
		return nil
	}
	ch := s.group.DoChan("init", func() (any, error) {
		if s.Ready() {
			return nil, nil
		}
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.loadTimeout)
		defer cancel()
		s.publish(s.load(lctx))
		return nil, nil
	})
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until the first initialization completes or ctx ends.
func (s *Store) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ready reports whether initialization has completed.
func (s *Store) Ready() bool {
	return s.tbl.Load() != nil
}

// Source reports where the loaded table came from. It returns [SourceNone]
// before initialization.
func (s *Store) Source() Source {
	if t := s.tbl.Load(); t != nil {
		return t.source
	}
	return SourceNone
}

// Len returns the number of dictionary entries.
func (s *Store) Len() int {
	if t := s.tbl.Load(); t != nil {
		return len(t.entries)
	}
	return 0
}

// Lookup returns the entry for word. word is normalised first. The second
// return value is false when the word is unknown or the store is not
// initialised.
func (s *Store) Lookup(word string) (Entry, bool) {
	t := s.tbl.Load()
	if t == nil {
		return Entry{}, false
	}
	e, ok := t.entries[NormalizeWord(word)]
	return e, ok
}

func (s *Store) publish(t *table) {
	s.tbl.Store(t)
	s.doneOnce.Do(func() { close(s.done) })
}

// load reads both bulk sources, falling back to the built-in data for
// whichever one fails.
func (s *Store) load(ctx context.Context) *table {
	start := time.Now()
	source := SourceBulk

	dict, err := s.loadDictionary(ctx)
	if err != nil {
		slog.Warn("phonetic: dictionary unavailable, using built-in table", "err", err)
		dict = builtinPhonemes()
		source = SourceBuiltin
	}
	ranks, err := s.loadFrequencies(ctx)
	if err != nil {
		slog.Warn("phonetic: frequency list unavailable, using built-in list", "err", err)
		ranks = builtinRanks()
	}

	t := buildTable(dict, ranks, source)
	slog.Info("phonetic: store initialised",
		"source", string(source),
		"entries", len(t.entries),
		"duration", time.Since(start),
	)
	return t
}

func (s *Store) loadDictionary(ctx context.Context) (map[string][]string, error) {
	rc, err := s.open(ctx, s.dictPath, s.dictURL)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	dict, err := ParseDictionary(rc)
	if err != nil {
		return nil, err
	}
	if len(dict) == 0 {
		return nil, fmt.Errorf("phonetic: dictionary is empty")
	}
	return dict, nil
}

func (s *Store) loadFrequencies(ctx context.Context) (map[string]int, error) {
	rc, err := s.open(ctx, s.freqPath, s.freqURL)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	ranks, err := ParseFrequencies(rc)
	if err != nil {
		return nil, err
	}
	if len(ranks) == 0 {
		return nil, fmt.Errorf("phonetic: frequency list is empty")
	}
	return ranks, nil
}

// open returns a reader for the local path when set, otherwise for the URL.
func (s *Store) open(ctx context.Context, path, url string) (io.ReadCloser, error) {
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("phonetic: open %s: %w", path, err)
		}
		return f, nil
	}
	if url == "" {
		return nil, fmt.Errorf("phonetic: no source configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("phonetic: build request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("phonetic: fetch %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("phonetic: fetch %s: status %d", url, resp.StatusCode)
	}
	return resp.Body, nil
}

func buildTable(dict map[string][]string, ranks map[string]int, source Source) *table {
	unknownRank := len(ranks) + 1
	entries := make(map[string]Entry, len(dict))
	for w, p := range dict {
		rank, ok := ranks[w]
		if !ok {
			rank = unknownRank
		}
		entries[w] = NewEntry(w, p, rank)
	}
	return &table{entries: entries, source: source}
}
