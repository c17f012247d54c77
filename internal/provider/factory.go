package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"agenthub/internal/config"
	"agenthub/internal/domain"
)

// Constructor creates a provider from a config entry.
type Constructor func(pc config.ProviderConfig, logger *slog.Logger) domain.CompletionProvider

// Factory creates and caches completion providers from config.
type Factory struct {
	cfg          *config.Config
	logger       *slog.Logger
	constructors map[string]Constructor
	cache        map[string]domain.CompletionProvider
	mu           sync.RWMutex
}

// NewFactory creates a provider factory with the built-in constructors registered.
func NewFactory(cfg *config.Config, logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Factory{
		cfg:          cfg,
		logger:       logger,
		constructors: make(map[string]Constructor),
		cache:        make(map[string]domain.CompletionProvider),
	}
	f.registerDefaults()
	return f
}

// RegisterConstructor adds (or replaces) a provider constructor by type name.
func (f *Factory) RegisterConstructor(typeName string, ctor Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.constructors[typeName] = ctor
}

func (f *Factory) registerDefaults() {
	f.constructors["ollama"] = func(pc config.ProviderConfig, logger *slog.Logger) domain.CompletionProvider {
		return NewOllama(OllamaConfig{APIBase: pc.APIBase, Model: pc.Model, Logger: logger})
	}
	f.constructors["openai"] = func(pc config.ProviderConfig, logger *slog.Logger) domain.CompletionProvider {
		return NewOpenAI(OpenAIConfig{APIKey: pc.APIKey, APIBase: pc.APIBase, Model: pc.Model, Logger: logger})
	}
	f.constructors["claude"] = func(pc config.ProviderConfig, logger *slog.Logger) domain.CompletionProvider {
		return NewClaude(ClaudeConfig{APIKey: pc.APIKey, Model: pc.Model, Logger: logger})
	}
}

// Get returns the provider with the given name, or the default if name is
// empty. Created providers are cached so the same instance is reused.
func (f *Factory) Get(name string) (domain.CompletionProvider, error) {
	if name == "" {
		name = f.cfg.General.DefaultProvider
	}

	f.mu.RLock()
	if cached, ok := f.cache[name]; ok {
		f.mu.RUnlock()
		return cached, nil
	}
	f.mu.RUnlock()

	f.mu.Lock()
	defer f.mu.Unlock()

	// Re-check under write lock (another goroutine may have created it).
	if cached, ok := f.cache[name]; ok {
		return cached, nil
	}

	pc, ok := f.cfg.Providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
	if !pc.Enabled {
		return nil, fmt.Errorf("provider %s is disabled", name)
	}

	typeName := pc.Type
	if typeName == "" {
		typeName = name
	}

	ctor, found := f.constructors[typeName]

	var p domain.CompletionProvider
	if found {
		p = ctor(pc, f.logger)
	} else if pc.APIBase != "" && pc.APIKey != "" {
		// Unknown types with credentials are treated as OpenAI-compatible.
		p = NewOpenAI(OpenAIConfig{APIKey: pc.APIKey, APIBase: pc.APIBase, Model: pc.Model, Logger: f.logger})
	} else {
		return nil, fmt.Errorf("provider %s: no constructor for type %q and no API base/key configured", name, typeName)
	}

	f.cache[name] = p
	return p, nil
}

// DefaultProvider returns the configured default provider.
func (f *Factory) DefaultProvider() (domain.CompletionProvider, error) {
	return f.Get("")
}

// CompletionChain returns the default provider, wrapped in a failover chain
// over the remaining enabled providers when more than one is configured. The
// default provider is always tried first; the rest follow in name order so
// the chain is stable across restarts.
func (f *Factory) CompletionChain() (domain.CompletionProvider, error) {
	primary, err := f.DefaultProvider()
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(f.cfg.Providers))
	for name, pc := range f.cfg.Providers {
		if !pc.Enabled || name == f.cfg.General.DefaultProvider {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	chain := []domain.CompletionProvider{primary}
	for _, name := range names {
		p, err := f.Get(name)
		if err != nil {
			f.logger.Warn("skipping provider in failover chain", "provider", name, "err", err)
			continue
		}
		chain = append(chain, p)
	}
	if len(chain) == 1 {
		return primary, nil
	}
	return NewFailover(chain, f.logger), nil
}

// HealthyProvider returns the first provider that passes a health check, or nil.
func (f *Factory) HealthyProvider(ctx context.Context) domain.CompletionProvider {
	for name := range f.cfg.Providers {
		p, err := f.Get(name)
		if err != nil || p == nil {
			continue
		}
		if p.Healthy(ctx) == nil {
			return p
		}
	}
	return nil
}
