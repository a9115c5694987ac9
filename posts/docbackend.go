package posts

import (
	"context"
	"errors"

	"github.com/geiri-is/geiri/docstore"
)

// Partition is the partition key every post document is stored under.
const Partition = "post"

var _ Backend = (*DocBackend)(nil)

// DocBackend stores posts as documents in a docstore container.
type DocBackend struct {
	c docstore.Container
}

// NewDocBackend returns a Backend over the given container.
func NewDocBackend(c docstore.Container) *DocBackend {
	return &DocBackend{c: c}
}

func (b *DocBackend) Get(ctx context.Context, id string) (BlogPost, error) {
	var p BlogPost
	if err := b.c.Read(ctx, Partition, id, &p); err != nil {
		return BlogPost{}, mapDocErr(err)
	}
	return p, nil
}

func (b *DocBackend) List(ctx context.Context, status Status) ([]BlogPost, error) {
	var filters []docstore.Filter
	if status != "" {
		filters = append(filters, docstore.Where("status", string(status)))
	}
	return docstore.QueryAll[BlogPost](ctx, b.c, Partition, filters...)
}

func (b *DocBackend) FindBySlug(ctx context.Context, slug string) ([]BlogPost, error) {
	return docstore.QueryAll[BlogPost](ctx, b.c, Partition, docstore.Where("slug", slug))
}

func (b *DocBackend) Create(ctx context.Context, p BlogPost) error {
	return mapDocErr(b.c.Create(ctx, Partition, p.ID, p))
}

func (b *DocBackend) Replace(ctx context.Context, p BlogPost) error {
	return mapDocErr(b.c.Replace(ctx, Partition, p.ID, p))
}

func mapDocErr(err error) error {
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, docstore.ErrConflict):
		return ErrConflict
	}
	return err
}
