package providers

import (
	"context"
	"sort"
	"sync"
	"time"
)

// DefaultModelsTTL is how long a fetched model list is reused.
const DefaultModelsTTL = 10 * time.Minute

type cachedModels struct {
	models    []string
	fetchedAt time.Time
}

// ModelCatalog lists the models a provider offers. OpenAI-compatible and
// SSE providers are queried on GET /models; batch providers answer from their
// static list. Results are cached per provider for the TTL.
type ModelCatalog struct {
	registry *Registry
	ttl      time.Duration

	mu    sync.RWMutex
	cache map[string]cachedModels
	now   func() time.Time
}

// NewModelCatalog returns a catalog over r. A non-positive ttl selects
// DefaultModelsTTL.
func NewModelCatalog(r *Registry, ttl time.Duration) *ModelCatalog {
	if ttl <= 0 {
		ttl = DefaultModelsTTL
	}
	return &ModelCatalog{
		registry: r,
		ttl:      ttl,
		cache:    make(map[string]cachedModels),
		now:      time.Now,
	}
}

// List returns the sorted model ids for provider. It fails with the same
// errors as Registry.Adapter before any network access.
func (c *ModelCatalog) List(ctx context.Context, provider string) ([]string, error) {
	c.registry.mu.RLock()
	spec, cred, err := c.registry.usableLocked(provider)
	c.registry.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	k := key(spec.Name)
	c.mu.RLock()
	entry, ok := c.cache[k]
	c.mu.RUnlock()
	if ok && c.now().Sub(entry.fetchedAt) < c.ttl {
		return append([]string(nil), entry.models...), nil
	}

	models, err := c.fetch(ctx, spec, cred)
	if err != nil {
		return nil, err
	}
	sort.Strings(models)

	c.mu.Lock()
	c.cache[k] = cachedModels{models: models, fetchedAt: c.now()}
	c.mu.Unlock()
	return append([]string(nil), models...), nil
}

// Invalidate drops cached lists so the next List refetches. With no names it
// clears every provider.
func (c *ModelCatalog) Invalidate(providers ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(providers) == 0 {
		c.cache = make(map[string]cachedModels)
		return
	}
	for _, p := range providers {
		delete(c.cache, key(p))
	}
}

func (c *ModelCatalog) fetch(ctx context.Context, spec Spec, cred Credential) ([]string, error) {
	if spec.Family == FamilyBatch {
		return append([]string(nil), spec.DefaultModels...), nil
	}
	client := newOpenAIClient(spec, cred.APIKey, c.registry.httpClient)
	list, err := client.ListModels(ctx)
	if err != nil {
		return nil, wrapOpenAIError(ctx, spec.Name, "models", err)
	}
	out := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		if m.ID != "" {
			out = append(out, m.ID)
		}
	}
	return out, nil
}
