package cache

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dgallion1/studyguide/internal/llm"
	"github.com/dgallion1/studyguide/internal/logger"
	"github.com/dgallion1/studyguide/internal/metrics"
)

// CachedGenerator serves completions from a Cache and falls through to the
// wrapped generator on a miss. Cache failures are logged and skipped.
type CachedGenerator struct {
	next      llm.Generator
	cache     Cache
	namespace string
	ttl       time.Duration
	backend   string
	log       *logger.Logger
	group     singleflight.Group
}

func NewCachedGenerator(next llm.Generator, c Cache, namespace string, ttl time.Duration, backend string, log *logger.Logger) *CachedGenerator {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = logger.Nop()
	}
	return &CachedGenerator{
		next:      next,
		cache:     c,
		namespace: namespace,
		ttl:       ttl,
		backend:   backend,
		log:       log.With("cache", backend),
	}
}

func (g *CachedGenerator) Complete(ctx context.Context, req llm.Request) (llm.Completion, error) {
	key := Key(g.namespace, req.Model, req.SystemPrompt, req.Prompt)

	flight := key
	if bypassed(ctx) {
		g.log.Debug("cache bypassed", "key", key)
		flight = key + "#bypass"
	} else if out, ok := g.lookup(ctx, key); ok {
		return out, nil
	}

	// Concurrent misses for one key share a single upstream call. Forced
	// refreshes never join a normal lookup's call.
	ran := false
	v, err, shared := g.group.Do(flight, func() (any, error) {
		ran = true
		out, err := g.next.Complete(ctx, req)
		if err != nil {
			return llm.Completion{}, err
		}
		g.store(ctx, key, out)
		return out, nil
	})
	if err != nil {
		return llm.Completion{}, err
	}
	out := v.(llm.Completion)
	if shared && !ran {
		g.log.Debug("shared in-flight completion", "key", key)
		out.Shared = true
	}
	return out, nil
}

func (g *CachedGenerator) lookup(ctx context.Context, key string) (llm.Completion, bool) {
	data, ok, err := g.cache.Get(ctx, key)
	if err != nil {
		g.log.Warn("cache get failed", "key", key, "error", err)
		metrics.CacheRequests.WithLabelValues(g.backend, "error").Inc()
		return llm.Completion{}, false
	}
	if !ok {
		metrics.CacheRequests.WithLabelValues(g.backend, "miss").Inc()
		g.log.Debug("cache miss", "key", key)
		return llm.Completion{}, false
	}

	var out llm.Completion
	if err := json.Unmarshal(data, &out); err != nil {
		g.log.Warn("cached completion unreadable", "key", key, "error", err)
		metrics.CacheRequests.WithLabelValues(g.backend, "error").Inc()
		return llm.Completion{}, false
	}
	metrics.CacheRequests.WithLabelValues(g.backend, "hit").Inc()
	g.log.Info("cache hit", "key", key)
	out.Cached = true
	return out, true
}

func (g *CachedGenerator) store(ctx context.Context, key string, out llm.Completion) {
	data, err := json.Marshal(out)
	if err != nil {
		g.log.Warn("encode completion for cache", "key", key, "error", err)
		return
	}
	if err := g.cache.Set(ctx, key, data, g.ttl); err != nil {
		g.log.Warn("cache set failed", "key", key, "error", err)
	}
}
