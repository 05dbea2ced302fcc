// Package traversedb persists traversability map snapshots to SQLite so a
// restarted daemon can serve the last derived map before its first
// recompute, and so the traversable-fraction history can be reported.
package traversedb

import (
	"database/sql"
	"fmt"
)

// DB wraps the snapshot database connection.
type DB struct {
	*sql.DB
}

// Open opens (creating if necessary) the snapshot database at path and runs
// pending migrations.
func Open(path string) (*DB, error) {
	sqldb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot db %s: %w", path, err)
	}
	// SQLite allows one writer; serialise access instead of surfacing
	// SQLITE_BUSY to callers.
	sqldb.SetMaxOpenConns(1)
	if _, err := sqldb.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("configuring snapshot db: %w", err)
	}
	db := &DB{sqldb}
	if err := db.MigrateUp(); err != nil {
		sqldb.Close()
		return nil, err
	}
	return db, nil
}
