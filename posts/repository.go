package posts

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Backend persists posts. Implementations return ErrNotFound for unknown ids.
type Backend interface {
	Get(ctx context.Context, id string) (BlogPost, error)
	// List returns every post with the given status, or all posts for "".
	List(ctx context.Context, status Status) ([]BlogPost, error)
	FindBySlug(ctx context.Context, slug string) ([]BlogPost, error)
	Create(ctx context.Context, p BlogPost) error
	Replace(ctx context.Context, p BlogPost) error
}

// Repository implements post CRUD and status transitions over a Backend.
type Repository struct {
	backend         Backend
	now             func() time.Time
	newID           func() string
	maxSlugAttempts int
}

// Option configures a Repository.
type Option func(*Repository)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		r.now = now
	}
}

// WithIDGenerator overrides the post id generator.
func WithIDGenerator(fn func() string) Option {
	return func(r *Repository) {
		r.newID = fn
	}
}

// NewRepository creates a Repository backed by b.
func NewRepository(b Backend, opts ...Option) *Repository {
	r := &Repository{
		backend:         b,
		now:             time.Now,
		newID:           uuid.NewString,
		maxSlugAttempts: MaxSlugAttempts,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Repository) timestamp() time.Time {
	return r.now().UTC()
}

// Create stores a new draft post with a unique slug derived from the
// supplied slug or the title.
func (r *Repository) Create(ctx context.Context, in CreateInput) (BlogPost, error) {
	in = in.normalize()
	if err := in.Validate(); err != nil {
		return BlogPost{}, err
	}
	source := in.Slug
	if source == "" {
		source = in.Title
	}
	slug, err := r.ensureUniqueSlug(ctx, BaseSlug(source), "")
	if err != nil {
		return BlogPost{}, err
	}

	now := r.timestamp()
	p := BlogPost{
		ID:           r.newID(),
		Slug:         slug,
		Title:        in.Title,
		Summary:      in.Summary,
		BodyMarkdown: in.BodyMarkdown,
		Tags:         in.Tags,
		ProductArea:  in.ProductArea,
		Status:       StatusDraft,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := r.backend.Create(ctx, p); err != nil {
		return BlogPost{}, fmt.Errorf("create post: %w", err)
	}
	return p, nil
}

// Update applies the present fields of patch to the post with id.
func (r *Repository) Update(ctx context.Context, id string, patch Patch) (BlogPost, error) {
	existing, err := r.backend.Get(ctx, id)
	if err != nil {
		return BlogPost{}, err
	}
	if err := patch.validate(existing); err != nil {
		return BlogPost{}, err
	}

	next := existing.clone()
	if patch.Title.Set {
		next.Title = strings.TrimSpace(patch.Title.Value)
	}
	if patch.Summary.Set {
		next.Summary = patch.Summary.Value
	}
	if patch.BodyMarkdown.Set {
		next.BodyMarkdown = patch.BodyMarkdown.Value
	}
	if patch.Tags.Set {
		next.Tags = normalizeTags(patch.Tags.Value)
	}
	if patch.ProductArea.Set {
		next.ProductArea = patch.ProductArea.Value
	}

	var base string
	switch {
	case patch.Slug.Set && strings.TrimSpace(patch.Slug.Value) != "":
		base = BaseSlug(patch.Slug.Value)
	case patch.Slug.Set, patch.Title.Set:
		base = BaseSlug(next.Title)
	}
	if base != "" {
		if next.Slug, err = r.ensureUniqueSlug(ctx, base, existing.ID); err != nil {
			return BlogPost{}, err
		}
	}

	now := r.timestamp()
	if patch.Status.Set {
		next.Status = patch.Status.Value
		if next.Status == StatusPublished && next.PublishedAt == nil {
			next.PublishedAt = &now
		}
	}
	next.UpdatedAt = now

	if err := r.backend.Replace(ctx, next); err != nil {
		return BlogPost{}, fmt.Errorf("update post %s: %w", id, err)
	}
	return next, nil
}

// Publish marks the post published. The first publish time is kept on
// every later publish.
func (r *Repository) Publish(ctx context.Context, id string) (BlogPost, error) {
	p, err := r.backend.Get(ctx, id)
	if err != nil {
		return BlogPost{}, err
	}
	now := r.timestamp()
	p.Status = StatusPublished
	if p.PublishedAt == nil {
		p.PublishedAt = &now
	}
	p.UpdatedAt = now
	if err := r.backend.Replace(ctx, p); err != nil {
		return BlogPost{}, fmt.Errorf("publish post %s: %w", id, err)
	}
	return p, nil
}

// SetExternalPostID records the LinkedIn post id on the post.
func (r *Repository) SetExternalPostID(ctx context.Context, id, urn string) (BlogPost, error) {
	p, err := r.backend.Get(ctx, id)
	if err != nil {
		return BlogPost{}, err
	}
	p.LinkedInPostURN = &urn
	p.UpdatedAt = r.timestamp()
	if err := r.backend.Replace(ctx, p); err != nil {
		return BlogPost{}, fmt.Errorf("set linkedin post id on %s: %w", id, err)
	}
	return p, nil
}

// ListPublished returns published posts, most recently published first.
func (r *Repository) ListPublished(ctx context.Context) ([]BlogPost, error) {
	list, err := r.backend.List(ctx, StatusPublished)
	if err != nil {
		return nil, fmt.Errorf("list published posts: %w", err)
	}
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i].PublishedAt, list[j].PublishedAt
		if a == nil || b == nil {
			return a != nil
		}
		return a.After(*b)
	})
	return list, nil
}

// ListAll returns every post, most recently updated first.
func (r *Repository) ListAll(ctx context.Context) ([]BlogPost, error) {
	list, err := r.backend.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].UpdatedAt.After(list[j].UpdatedAt)
	})
	return list, nil
}

// GetByID returns the post with id.
func (r *Repository) GetByID(ctx context.Context, id string) (BlogPost, error) {
	return r.backend.Get(ctx, id)
}

// GetBySlug returns the post with slug; with requirePublished only a
// published post matches.
func (r *Repository) GetBySlug(ctx context.Context, slug string, requirePublished bool) (BlogPost, error) {
	matches, err := r.backend.FindBySlug(ctx, slug)
	if err != nil {
		return BlogPost{}, fmt.Errorf("find post %q: %w", slug, err)
	}
	for _, p := range matches {
		if !requirePublished || p.Published() {
			return p, nil
		}
	}
	return BlogPost{}, ErrNotFound
}
