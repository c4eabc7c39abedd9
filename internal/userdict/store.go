// Package userdict keeps phrases the user has committed in a SQLite
// database and feeds them back as candidates.
package userdict

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jellydator/ttlcache/v3"
	_ "github.com/mattn/go-sqlite3"

	"imecore/internal/logging"
)

// DefaultCacheTTL bounds how long lookups stay cached.
const DefaultCacheTTL = 5 * time.Minute

// ErrClosed is returned after Close.
var ErrClosed = errors.New("user dictionary is closed")

// Entry is one learned phrase.
type Entry struct {
	Code      string
	Text      string
	Weight    float64
	Commits   int64
	Deleted   bool
	UpdatedAt time.Time
}

// Store is the SQLite-backed user dictionary.
// It is safe for concurrent use.
type Store struct {
	db     *sql.DB
	cache  *ttlcache.Cache[string, []Entry]
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*options)

type options struct {
	ttl    time.Duration
	logger *slog.Logger
}

// WithCacheTTL sets the lookup cache lifetime.
func WithCacheTTL(ttl time.Duration) Option {
	return func(o *options) { o.ttl = ttl }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Open opens or creates the database at path and migrates it.
func Open(path string, opts ...Option) (*Store, error) {
	o := options{ttl: DefaultCacheTTL}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.Default().WithComponent("userdict").Logger
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	c := ttlcache.New[string, []Entry](
		ttlcache.WithTTL[string, []Entry](o.ttl),
		ttlcache.WithDisableTouchOnHit[string, []Entry](),
	)
	go c.Start()

	return &Store{db: db, cache: c, logger: o.logger}, nil
}

// Close stops the cache and closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	s.cache.Stop()
	err := s.db.Close()
	s.db = nil
	return err
}

// SchemaVersion returns the applied schema version.
func (s *Store) SchemaVersion() (int, error) {
	if s.db == nil {
		return 0, ErrClosed
	}
	return schemaVersion(s.db)
}

// Commit records one use of text for code. A deleted entry is restored.
func (s *Store) Commit(ctx context.Context, code, text string) error {
	if s.db == nil {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entries (code, text, weight, commits, deleted, updated_ns)
		VALUES (?, ?, 1, 1, 0, ?)
		ON CONFLICT(code, text) DO UPDATE SET
			weight = CASE WHEN deleted THEN 1 ELSE weight + 1 END,
			commits = commits + 1,
			deleted = 0,
			updated_ns = excluded.updated_ns`,
		code, text, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("commit entry: %w", err)
	}
	s.cache.Delete(code)
	s.logger.Debug("committed", "code", code, "text", text)
	return nil
}

// Delete tombstones text for code so it is no longer offered. Deleting a
// phrase that was never learned records the tombstone anyway. It reports
// whether a live entry was removed.
func (s *Store) Delete(ctx context.Context, code, text string) (bool, error) {
	if s.db == nil {
		return false, ErrClosed
	}
	var live bool
	err := s.db.QueryRowContext(ctx,
		"SELECT deleted = 0 FROM entries WHERE code = ? AND text = ?", code, text,
	).Scan(&live)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("query entry: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entries (code, text, weight, commits, deleted, updated_ns)
		VALUES (?, ?, 0, 0, 1, ?)
		ON CONFLICT(code, text) DO UPDATE SET
			deleted = 1,
			updated_ns = excluded.updated_ns`,
		code, text, time.Now().UnixNano(),
	)
	if err != nil {
		return false, fmt.Errorf("delete entry: %w", err)
	}
	s.cache.Delete(code)
	s.logger.Debug("deleted", "code", code, "text", text, "live", live)
	return live, nil
}

// IsDeleted reports whether text carries a tombstone for code.
func (s *Store) IsDeleted(ctx context.Context, code, text string) (bool, error) {
	if s.db == nil {
		return false, ErrClosed
	}
	var deleted bool
	err := s.db.QueryRowContext(ctx,
		"SELECT deleted FROM entries WHERE code = ? AND text = ?", code, text,
	).Scan(&deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query entry: %w", err)
	}
	return deleted, nil
}

// Lookup returns the live entries for code, heaviest first.
func (s *Store) Lookup(ctx context.Context, code string) ([]Entry, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	if item := s.cache.Get(code); item != nil {
		return item.Value(), nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT code, text, weight, commits, deleted, updated_ns
		FROM entries
		WHERE code = ? AND deleted = 0
		ORDER BY weight DESC, updated_ns DESC`, code)
	if err != nil {
		return nil, fmt.Errorf("lookup %q: %w", code, err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	s.cache.Set(code, entries, ttlcache.DefaultTTL)
	return entries, nil
}

// List returns every entry ordered by code and weight. Tombstones are
// included only when withDeleted is set.
func (s *Store) List(ctx context.Context, withDeleted bool) ([]Entry, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	query := `
		SELECT code, text, weight, commits, deleted, updated_ns
		FROM entries`
	if !withDeleted {
		query += " WHERE deleted = 0"
	}
	query += " ORDER BY code, weight DESC"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Purge drops tombstones older than before and returns how many went.
func (s *Store) Purge(ctx context.Context, before time.Time) (int64, error) {
	if s.db == nil {
		return 0, ErrClosed
	}
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM entries WHERE deleted = 1 AND updated_ns < ?", before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("purge entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	s.cache.DeleteAll()
	return n, nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		var updated int64
		if err := rows.Scan(&e.Code, &e.Text, &e.Weight, &e.Commits, &e.Deleted, &updated); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.UpdatedAt = time.Unix(0, updated)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}
