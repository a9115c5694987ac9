package docstore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLiteStore keeps documents in a single sqlite table.
type SQLiteStore struct {
	db  *sql.DB
	log zerolog.Logger
}

// OpenSQLite opens (or creates) the sqlite database at path, ensures the
// data directory exists, and applies the embedded migrations.
func OpenSQLite(ctx context.Context, path string, log zerolog.Logger) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("docstore: create data dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("docstore: open sqlite: %w", err)
	}
	if path == ":memory:" {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(4)
		db.SetMaxIdleConns(4)
	}

	s := &SQLiteStore{db: db, log: log.With().Str("component", "docstore").Str("backend", "sqlite").Logger()}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// sqlitePragmas run on every new connection in the pool. WAL lets readers
// proceed during writes; busy_timeout makes writers wait instead of failing
// with SQLITE_BUSY.
var sqlitePragmas = []string{"busy_timeout(5000)", "journal_mode(WAL)", "synchronous(NORMAL)"}

func sqliteDSN(path string) string {
	q := url.Values{}
	for _, p := range sqlitePragmas {
		q.Add("_pragma", p)
	}
	return "file:" + path + "?" + q.Encode()
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("docstore: migrations fs: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db, fsys)
	if err != nil {
		return fmt.Errorf("docstore: migration provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("docstore: migrate: %w", err)
	}
	for _, r := range results {
		s.log.Debug().Str("migration", r.Source.Path).Dur("took", r.Duration).Msg("applied migration")
	}
	return nil
}

// Container returns the named container.
func (s *SQLiteStore) Container(name string) Container {
	return &sqliteContainer{db: s.db, name: name}
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type sqliteContainer struct {
	db   *sql.DB
	name string
}

func (c *sqliteContainer) Read(ctx context.Context, partition, id string, dst any) error {
	var body string
	err := c.db.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE collection = ? AND partition_key = ? AND id = ?`,
		c.name, partition, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
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

func (c *sqliteContainer) Query(ctx context.Context, partition string, filters ...Filter) ([]json.RawMessage, error) {
	var b strings.Builder
	b.WriteString(`SELECT body FROM documents WHERE collection = ? AND partition_key = ?`)
	args := []any{c.name, partition}
	for _, f := range filters {
		if err := f.validate(); err != nil {
			return nil, err
		}
		expr := fmt.Sprintf("json_extract(body, '$.%s')", f.Field)
		if f.Op == Ne {
			expr = "IFNULL(" + expr + ", '')"
		}
		fmt.Fprintf(&b, " AND %s %s ?", expr, f.Op)
		args = append(args, f.Value)
	}
	b.WriteString(" ORDER BY id")

	rows, err := c.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("docstore: query %s: %w", c.name, err)
	}
	defer rows.Close()

	var out []json.RawMessage
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("docstore: scan %s: %w", c.name, err)
		}
		out = append(out, json.RawMessage(body))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("docstore: query %s: %w", c.name, err)
	}
	return out, nil
}

func (c *sqliteContainer) Create(ctx context.Context, partition, id string, doc any) error {
	body, err := encode(doc)
	if err != nil {
		return err
	}
	res, err := c.db.ExecContext(ctx,
		`INSERT INTO documents (collection, partition_key, id, body) VALUES (?, ?, ?, ?)
		 ON CONFLICT (collection, partition_key, id) DO NOTHING`,
		c.name, partition, id, body)
	if err != nil {
		return fmt.Errorf("docstore: create %s/%s: %w", c.name, id, err)
	}
	return checkAffected(res, ErrConflict)
}

func (c *sqliteContainer) Replace(ctx context.Context, partition, id string, doc any) error {
	body, err := encode(doc)
	if err != nil {
		return err
	}
	res, err := c.db.ExecContext(ctx,
		`UPDATE documents SET body = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE collection = ? AND partition_key = ? AND id = ?`,
		body, c.name, partition, id)
	if err != nil {
		return fmt.Errorf("docstore: replace %s/%s: %w", c.name, id, err)
	}
	return checkAffected(res, ErrNotFound)
}

func checkAffected(res sql.Result, none error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("docstore: rows affected: %w", err)
	}
	if n == 0 {
		return none
	}
	return nil
}
