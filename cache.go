package geiri

import (
	"context"
	"sync"
	"time"

	"github.com/geiri-is/geiri/posts"
)

// PostCache is an in-memory cache of published posts with a TTL.
type PostCache struct {
	mu      sync.RWMutex
	posts   []posts.BlogPost
	fetched time.Time
	ttl     time.Duration
	repo    *posts.Repository
}

// NewPostCache creates a PostCache backed by the given repository.
func NewPostCache(repo *posts.Repository, ttl time.Duration) *PostCache {
	return &PostCache{repo: repo, ttl: ttl}
}

func (c *PostCache) valid() bool {
	return c.posts != nil && time.Since(c.fetched) < c.ttl
}

// Invalidate clears the cache so the next read triggers a fresh load.
func (c *PostCache) Invalidate() {
	c.mu.Lock()
	c.posts = nil
	c.mu.Unlock()
}

// ListPublished returns published posts, newest first. It takes a read
// lock first and only takes the write lock when a reload is needed.
func (c *PostCache) ListPublished(ctx context.Context) ([]posts.BlogPost, error) {
	c.mu.RLock()
	if c.valid() {
		list := c.posts
		c.mu.RUnlock()
		return list, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.valid() {
		return c.posts, nil
	}
	list, err := c.repo.ListPublished(ctx)
	if err != nil {
		return nil, err
	}
	c.posts = list
	c.fetched = time.Now()
	return list, nil
}

// GetPublished returns a published post by slug from the cache.
func (c *PostCache) GetPublished(ctx context.Context, slug string) (posts.BlogPost, error) {
	list, err := c.ListPublished(ctx)
	if err != nil {
		return posts.BlogPost{}, err
	}
	for _, p := range list {
		if p.Slug == slug {
			return p, nil
		}
	}
	return posts.BlogPost{}, posts.ErrNotFound
}
