package posts

import (
	"context"
	"fmt"
	"sync"
	"time"
)

var _ Backend = (*MemoryBackend)(nil)

// MemoryBackend keeps posts in process memory. Nothing survives a restart;
// it exists for development when no document store is configured.
type MemoryBackend struct {
	mu    sync.RWMutex
	posts map[string]BlogPost
	seed  sync.Once
	now   func() time.Time
}

// MemoryOption configures a MemoryBackend.
type MemoryOption func(*MemoryBackend)

// WithoutSeed skips the sample post normally added on first access.
func WithoutSeed() MemoryOption {
	return func(b *MemoryBackend) {
		b.seed.Do(func() {})
	}
}

// NewMemoryBackend returns an empty backend that adds one published
// sample post the first time it is used.
func NewMemoryBackend(opts ...MemoryOption) *MemoryBackend {
	b := &MemoryBackend{posts: make(map[string]BlogPost), now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *MemoryBackend) seedOnce() {
	b.seed.Do(func() {
		now := b.now().UTC()
		sample := BlogPost{
			ID:           "sample-1",
			Slug:         "welcome",
			Title:        "Welcome",
			Summary:      "First post. Connect a document store and start publishing.",
			BodyMarkdown: "# Welcome\n\nThis is a starter post. Publish your first real update from the admin API.",
			Tags:         []string{"intro"},
			ProductArea:  AreaTeams,
			Status:       StatusPublished,
			PublishedAt:  &now,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		b.mu.Lock()
		b.posts[sample.ID] = sample
		b.mu.Unlock()
	})
}

func (b *MemoryBackend) Get(_ context.Context, id string) (BlogPost, error) {
	b.seedOnce()
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.posts[id]
	if !ok {
		return BlogPost{}, ErrNotFound
	}
	return p.clone(), nil
}

func (b *MemoryBackend) List(_ context.Context, status Status) ([]BlogPost, error) {
	b.seedOnce()
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]BlogPost, 0, len(b.posts))
	for _, p := range b.posts {
		if status == "" || p.Status == status {
			out = append(out, p.clone())
		}
	}
	return out, nil
}

func (b *MemoryBackend) FindBySlug(_ context.Context, slug string) ([]BlogPost, error) {
	b.seedOnce()
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []BlogPost
	for _, p := range b.posts {
		if p.Slug == slug {
			out = append(out, p.clone())
		}
	}
	return out, nil
}

func (b *MemoryBackend) Create(_ context.Context, p BlogPost) error {
	b.seedOnce()
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.posts[p.ID]; ok {
		return fmt.Errorf("%w: %s", ErrConflict, p.ID)
	}
	b.posts[p.ID] = p.clone()
	return nil
}

func (b *MemoryBackend) Replace(_ context.Context, p BlogPost) error {
	b.seedOnce()
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.posts[p.ID]; !ok {
		return ErrNotFound
	}
	b.posts[p.ID] = p.clone()
	return nil
}
