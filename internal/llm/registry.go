package llm

import (
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/soyeahso/roombot/internal/config"
	"github.com/soyeahso/roombot/internal/logging"
)

// Registry manages LLM provider clients and resolves model references to clients.
type Registry struct {
	mu       sync.RWMutex
	clients  map[string]Client // provider name → client
	aliases  map[string]string // model alias → provider name
	fallback string            // default provider name
	chain    []string          // fallback order after the primary
	log      *logging.Logger
}

// NewRegistry creates an empty provider registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		clients: make(map[string]Client),
		aliases: make(map[string]string),
		log:     log.Sub("llm.registry"),
	}
}

// Register adds a client under the given provider name.
func (r *Registry) Register(name string, client Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[name] = client
	r.log.Info().Str("provider", name).Msg("registered LLM provider")
}

// Alias maps a model name/alias to a provider.
func (r *Registry) Alias(model, provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[model] = provider
}

// SetFallback sets the default provider used when no model/provider match is found.
func (r *Registry) SetFallback(provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = provider
}

// SetChain sets the providers tried, in order, after the primary fails.
func (r *Registry) SetChain(providers ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chain = slices.Clone(providers)
}

// Resolve returns the Client for the given model reference.
// Resolution order: exact provider name → alias → fallback.
func (r *Registry) Resolve(model string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolveLocked(model)
}

func (r *Registry) resolveLocked(model string) (Client, error) {
	if c, ok := r.clients[model]; ok {
		return c, nil
	}
	if provider, ok := r.aliases[model]; ok {
		if c, ok := r.clients[provider]; ok {
			return c, nil
		}
	}
	if r.fallback != "" {
		if c, ok := r.clients[r.fallback]; ok {
			return c, nil
		}
	}
	return nil, fmt.Errorf("no LLM provider for model %q", model)
}

// Candidates returns the primary client followed by the configured
// fallbacks, without duplicates.
func (r *Registry) Candidates(primary string) ([]Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	first, err := r.resolveLocked(primary)
	if err != nil {
		return nil, err
	}
	out := []Client{first}
	seen := map[string]bool{first.Name(): true}
	for _, name := range r.chain {
		c, err := r.resolveLocked(name)
		if err != nil || seen[c.Name()] {
			continue
		}
		seen[c.Name()] = true
		out = append(out, c)
	}
	return out, nil
}

// List returns all registered provider names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.clients))
	for n := range r.clients {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NewRegistryFromConfig builds a Registry from the llm config section.
// Each provider's model name and aliases resolve to it; the primary becomes
// the fallback and the configured fallbacks form the failover chain.
func NewRegistryFromConfig(cfg config.LLMConfig, log *logging.Logger) *Registry {
	reg := NewRegistry(log)

	for name, p := range cfg.Providers {
		var client Client
		switch p.API {
		case "anthropic":
			client = NewAnthropicClient(name, p.APIKey, p.BaseURL, p.Model)
		case "openai":
			client = NewOpenAIClient(name, p.APIKey, p.BaseURL, p.Model)
		default:
			reg.log.Warn().Str("provider", name).Str("api", p.API).Msg("unsupported provider api, skipping")
			continue
		}
		reg.Register(name, client)
		if p.Model != "" {
			reg.Alias(p.Model, name)
		}
		for _, alias := range p.Aliases {
			reg.Alias(alias, name)
		}
	}

	if cfg.Primary != "" {
		if c, err := reg.Resolve(cfg.Primary); err == nil {
			reg.SetFallback(c.Name())
		}
	}
	reg.SetChain(cfg.Fallbacks...)
	return reg
}
