package scanner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"NewsDigest/internal/config"
)

// ErrUnknownType is returned by Factory.Build for an unregistered type tag.
var ErrUnknownType = errors.New("unknown source type")

// Scanner is a single source adapter (dev.to, Telegram, RSS, etc.).
// Scan returns a JSON-encoded article array or a single article object;
// limit <= 0 means no limit.
type Scanner interface {
	Name() string
	Scan(ctx context.Context, limit int) ([]byte, error)
}

// Constructor builds an adapter from its config block.
type Constructor func(cfg config.SourceConfig) (Scanner, error)

// Factory maps type tags to adapter constructors.
type Factory struct {
	mu    sync.RWMutex
	kinds map[string]Constructor
}

// NewFactory builds an empty factory.
func NewFactory() *Factory {
	return &Factory{kinds: map[string]Constructor{}}
}

// Register adds or replaces the constructor for a type tag.
func (f *Factory) Register(kind string, ctor Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.kinds == nil {
		f.kinds = map[string]Constructor{}
	}
	f.kinds[kind] = ctor
}

// Build resolves the constructor by cfg.Type and runs it.
func (f *Factory) Build(cfg config.SourceConfig) (Scanner, error) {
	f.mu.RLock()
	ctor, ok := f.kinds[cfg.Type]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("source %s: %w %q", cfg.Name, ErrUnknownType, cfg.Type)
	}

	sc, err := ctor(cfg)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", cfg.Name, err)
	}
	return sc, nil
}

// Kinds lists registered type tags in lexical order.
func (f *Factory) Kinds() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	kinds := make([]string, 0, len(f.kinds))
	for k := range f.kinds {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
