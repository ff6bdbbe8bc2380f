package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/prosodia/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by [Registry.CreateTTS] when no factory
// is registered under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// TTSFactory builds a TTS provider from its configuration block.
type TTSFactory func(ProviderEntry) (tts.Provider, error)

// Registry maps provider names to constructors. It is safe for concurrent
// use.
type Registry struct {
	mu  sync.RWMutex
	tts map[string]TTSFactory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tts: make(map[string]TTSFactory)}
}

// RegisterTTS registers factory under name, replacing any earlier
// registration.
func (r *Registry) RegisterTTS(name string, factory TTSFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = factory
}

// TTSNames returns the registered names in sorted order.
func (r *Registry) TTSNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tts))
	for n := range r.tts {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// CreateTTS builds the provider registered under entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	r.mu.RLock()
	factory, ok := r.tts[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: tts/%q", ErrProviderNotRegistered, entry.Name)
	}
	p, err := factory(entry)
	if err != nil {
		return nil, fmt.Errorf("config: create tts/%q: %w", entry.Name, err)
	}
	return p, nil
}
