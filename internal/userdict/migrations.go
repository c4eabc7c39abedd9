package userdict

import (
	"database/sql"
	"fmt"
	"time"
)

// Migration is one schema step.
type Migration struct {
	Version     int
	Description string
	Up          string
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Create entries table",
		Up: `
CREATE TABLE IF NOT EXISTS entries (
    code        TEXT NOT NULL,
    text        TEXT NOT NULL,
    weight      REAL NOT NULL DEFAULT 0,
    commits     INTEGER NOT NULL DEFAULT 0,
    deleted     INTEGER NOT NULL DEFAULT 0,
    updated_ns  INTEGER NOT NULL,
    PRIMARY KEY (code, text)
);
CREATE INDEX IF NOT EXISTS idx_entries_code ON entries(code, deleted, weight);
`,
	},
	{
		Version:     2,
		Description: "Index entries by update time",
		Up:          `CREATE INDEX IF NOT EXISTS idx_entries_updated ON entries(updated_ns);`,
	},
}

// LatestVersion is the schema version Open migrates to.
func LatestVersion() int { return migrations[len(migrations)-1].Version }

// migrate applies pending migrations, each in its own transaction.
func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version     INTEGER PRIMARY KEY,
			applied_at  INTEGER NOT NULL,
			description TEXT
		)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	current, err := schemaVersion(db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction for migration %d: %w", m.Version, err)
		}
		if _, err := tx.Exec(m.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, applied_at, description) VALUES (?, ?, ?)",
			m.Version, time.Now().UnixNano(), m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}

func schemaVersion(db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v); err != nil {
		return 0, fmt.Errorf("get schema version: %w", err)
	}
	return v, nil
}
