package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-pg/pg/v10"
	"github.com/rs/zerolog"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS documents (
    collection    text        NOT NULL,
    partition_key text        NOT NULL,
    id            text        NOT NULL,
    body          jsonb       NOT NULL,
    created_at    timestamptz NOT NULL DEFAULT now(),
    updated_at    timestamptz NOT NULL DEFAULT now(),
    PRIMARY KEY (collection, partition_key, id)
);
CREATE INDEX IF NOT EXISTS idx_documents_slug
    ON documents (collection, partition_key, (body->>'slug'));
`

// PostgresStore keeps documents as jsonb rows in postgres.
type PostgresStore struct {
	db *pg.DB
}

// OpenPostgres connects to postgres, verifies the connection and ensures
// the documents table exists.
func OpenPostgres(ctx context.Context, dsn string, log zerolog.Logger) (*PostgresStore, error) {
	opt, err := pg.ParseURL(dsn)
	if err != nil {
		return nil, fmt.Errorf("docstore: parse postgres url: %w", err)
	}
	opt.MaxRetries = 3

	db := pg.Connect(opt)
	db.AddQueryHook(newQueryHook(log))
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("docstore: ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("docstore: ensure schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Container returns the named container.
func (s *PostgresStore) Container(name string) Container {
	return &pgContainer{db: s.db, name: name}
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type pgContainer struct {
	db   *pg.DB
	name string
}

func (c *pgContainer) Read(ctx context.Context, partition, id string, dst any) error {
	var body string
	_, err := c.db.QueryOneContext(ctx, pg.Scan(&body),
		`SELECT body::text FROM documents WHERE collection = ? AND partition_key = ? AND id = ?`,
		c.name, partition, id)
	if errors.Is(err, pg.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("docstore: read %s/%s: %w", c.name, id, err)
	}
	if err := json.Unmarshal([]byte(body), dst); err != nil {
		return fmt.Errorf("docstore: decode %s/%s: %w", c.name, id, err)
	}
	return nil
}

func (c *pgContainer) Query(ctx context.Context, partition string, filters ...Filter) ([]json.RawMessage, error) {
	var b strings.Builder
	b.WriteString(`SELECT body::text FROM documents WHERE collection = ? AND partition_key = ?`)
	args := []any{c.name, partition}
	for _, f := range filters {
		if err := f.validate(); err != nil {
			return nil, err
		}
		expr := fmt.Sprintf("(body->>'%s')", f.Field)
		if f.Op == Ne {
			expr = "COALESCE(" + expr + ", '')"
		}
		fmt.Fprintf(&b, " AND %s %s ?", expr, f.Op)
		args = append(args, f.Value)
	}
	b.WriteString(" ORDER BY id")

	var bodies []string
	if _, err := c.db.QueryContext(ctx, &bodies, b.String(), args...); err != nil {
		return nil, fmt.Errorf("docstore: query %s: %w", c.name, err)
	}
	out := make([]json.RawMessage, 0, len(bodies))
	for _, body := range bodies {
		out = append(out, json.RawMessage(body))
	}
	return out, nil
}

func (c *pgContainer) Create(ctx context.Context, partition, id string, doc any) error {
	body, err := encode(doc)
	if err != nil {
		return err
	}
	res, err := c.db.ExecContext(ctx,
		`INSERT INTO documents (collection, partition_key, id, body) VALUES (?, ?, ?, CAST(? AS jsonb))
		 ON CONFLICT (collection, partition_key, id) DO NOTHING`,
		c.name, partition, id, body)
	if err != nil {
		return fmt.Errorf("docstore: create %s/%s: %w", c.name, id, err)
	}
	if res.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (c *pgContainer) Replace(ctx context.Context, partition, id string, doc any) error {
	body, err := encode(doc)
	if err != nil {
		return err
	}
	res, err := c.db.ExecContext(ctx,
		`UPDATE documents SET body = CAST(? AS jsonb), updated_at = now()
		 WHERE collection = ? AND partition_key = ? AND id = ?`,
		body, c.name, partition, id)
	if err != nil {
		return fmt.Errorf("docstore: replace %s/%s: %w", c.name, id, err)
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// queryHook logs every postgres query at debug level.
type queryHook struct {
	log zerolog.Logger
}

func newQueryHook(log zerolog.Logger) *queryHook {
	return &queryHook{log: log.With().Str("component", "docstore").Str("backend", "postgres").Logger()}
}

func (h *queryHook) BeforeQuery(ctx context.Context, _ *pg.QueryEvent) (context.Context, error) {
	return ctx, nil
}

func (h *queryHook) AfterQuery(_ context.Context, event *pg.QueryEvent) error {
	if h.log.GetLevel() > zerolog.DebugLevel {
		return nil
	}
	query, err := event.FormattedQuery()
	if err != nil {
		h.log.Error().Err(err).Msg("format query")
		return nil
	}
	h.log.Debug().
		Str("query", string(query)).
		Dur("duration", time.Since(event.StartTime)).
		AnErr("query_error", event.Err).
		Msg("sql query executed")
	return nil
}
