package embedding

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// Cached memoises an Embedder. Concurrent requests for the same text share
// one upstream call.
type Cached struct {
	next  Embedder
	cache *cache.Cache
	group singleflight.Group
}

// NewCached wraps next with a cache whose entries live for ttl.
func NewCached(next Embedder, ttl time.Duration) *Cached {
	return &Cached{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (c *Cached) Name() string { return c.next.Name() }

// Embed returns the vector for text. The shared upstream call is detached
// from any single caller's cancellation; each caller still stops waiting when
// its own ctx is done.
func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		return clone(v.([]float32)), nil
	}
	ch := c.group.DoChan(text, func() (any, error) {
		vec, err := c.next.Embed(context.WithoutCancel(ctx), text)
		if err != nil {
			return nil, err
		}
		c.cache.SetDefault(text, vec)
		return vec, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return clone(r.Val.([]float32)), nil
	}
}

func clone(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
