// Package docstore is a small JSON document store. Documents live in named
// containers and are addressed by a partition key and an id, the way the
// site stores posts and its LinkedIn secret. A postgres database is the
// remote backend; a sqlite file serves single-instance deployments.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("docstore: document not found")
	// ErrConflict is returned by Create when the key is already taken.
	ErrConflict = errors.New("docstore: document already exists")
	// ErrNotConfigured is returned by Open for an empty DSN.
	ErrNotConfigured = errors.New("docstore: not configured")
	// ErrInvalidField is returned for filter fields that are not plain identifiers.
	ErrInvalidField = errors.New("docstore: invalid filter field")
)

// Store hands out containers and owns the underlying connection.
type Store interface {
	Container(name string) Container
	Close() error
}

// Container is a named collection of JSON documents.
type Container interface {
	// Read decodes the document into dst.
	Read(ctx context.Context, partition, id string, dst any) error
	// Query returns the raw bodies of documents in partition matching all filters.
	Query(ctx context.Context, partition string, filters ...Filter) ([]json.RawMessage, error)
	Create(ctx context.Context, partition, id string, doc any) error
	Replace(ctx context.Context, partition, id string, doc any) error
}

// Op is a filter comparison.
type Op string

const (
	Eq Op = "="
	Ne Op = "!="
)

// Filter compares a top-level JSON string field of the document body.
type Filter struct {
	Field string
	Op    Op
	Value string
}

// Where builds an equality filter.
func Where(field, value string) Filter {
	return Filter{Field: field, Op: Eq, Value: value}
}

// WhereNot builds an inequality filter.
func WhereNot(field, value string) Filter {
	return Filter{Field: field, Op: Ne, Value: value}
}

var fieldRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

func (f Filter) validate() error {
	if !fieldRe.MatchString(f.Field) {
		return fmt.Errorf("%w: %q", ErrInvalidField, f.Field)
	}
	if f.Op != Eq && f.Op != Ne {
		return fmt.Errorf("docstore: unsupported operator %q", f.Op)
	}
	return nil
}

// Open connects to the store named by dsn. postgres:// and postgresql://
// DSNs use postgres; sqlite://path or a bare path uses a sqlite file.
func Open(ctx context.Context, dsn string, log zerolog.Logger) (Store, error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "":
		return nil, ErrNotConfigured
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return OpenPostgres(ctx, dsn, log)
	default:
		return OpenSQLite(ctx, strings.TrimPrefix(dsn, "sqlite://"), log)
	}
}

// Upsert replaces the document, creating it when it does not exist yet.
func Upsert(ctx context.Context, c Container, partition, id string, doc any) error {
	err := c.Replace(ctx, partition, id, doc)
	if errors.Is(err, ErrNotFound) {
		return c.Create(ctx, partition, id, doc)
	}
	return err
}

// QueryAll runs a query and decodes every result into T.
func QueryAll[T any](ctx context.Context, c Container, partition string, filters ...Filter) ([]T, error) {
	raws, err := c.Query(ctx, partition, filters...)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(raws))
	for _, raw := range raws {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("docstore: decode document: %w", err)
		}
		out = append(out, v)
	}
	return out, nil
}

func encode(doc any) (string, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("docstore: encode document: %w", err)
	}
	return string(b), nil
}
