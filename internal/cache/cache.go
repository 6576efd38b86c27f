// Package cache stores chat completions so identical prompts are not paid
// for twice.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

const (
	DefaultNamespace = "perplexity_api"
	DefaultTTL       = time.Hour
)

// Cache is a byte store with per-entry expiry. A miss is (nil, false, nil).
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Type     string // memory | redis | none
	RedisURL string
}

// New builds the backend named by opts.Type.
func New(ctx context.Context, opts Options) (Cache, error) {
	switch opts.Type {
	case "", "memory":
		m := NewMemory()
		m.StartJanitor(DefaultSweepInterval)
		return m, nil
	case "redis":
		return NewRedis(ctx, opts.RedisURL)
	case "none":
		return Noop{}, nil
	default:
		return nil, fmt.Errorf("unknown cache type %q", opts.Type)
	}
}

// Key derives the cache key for a completion request.
func Key(namespace, model, systemPrompt, prompt string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(systemPrompt))
	h.Write([]byte{0})
	h.Write([]byte(prompt))
	return namespace + ":" + hex.EncodeToString(h.Sum(nil))
}

type bypassKey struct{}

// Bypass marks ctx so the next lookup skips the cache and overwrites the
// stored entry with a fresh response.
func Bypass(ctx context.Context) context.Context {
	return context.WithValue(ctx, bypassKey{}, true)
}

func bypassed(ctx context.Context) bool {
	v, _ := ctx.Value(bypassKey{}).(bool)
	return v
}

// Noop never stores anything.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]byte, bool, error)        { return nil, false, nil }
func (Noop) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (Noop) Close() error                                             { return nil }
