package persist

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	_ "modernc.org/sqlite"
)

const snapshotTable = "form_snapshots"

// SQLiteStore implements Store on a single SQLite key-value table.
type SQLiteStore struct {
	drv *entsql.Driver
}

// OpenSQLite opens (or creates) the database at dsn and ensures the snapshot
// table exists.
func OpenSQLite(ctx context.Context, dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// SQLite allows one writer; a single connection keeps ":memory:" databases
	// shared across calls too.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{drv: entsql.OpenDB(dialect.SQLite, db)}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// ent's builder has no CREATE TABLE; the one table is declared directly.
const createSnapshotTable = `CREATE TABLE IF NOT EXISTS ` + snapshotTable + ` (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at DATETIME NOT NULL
)`

func (s *SQLiteStore) migrate(ctx context.Context) error {
	if err := s.drv.Exec(ctx, createSnapshotTable, []any{}, nil); err != nil {
		return fmt.Errorf("creating %s table: %w", snapshotTable, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.drv.Close()
}

func (s *SQLiteStore) Save(ctx context.Context, key string, snap Snapshot) error {
	blob, err := Encode(snap)
	if err != nil {
		return err
	}
	query, args := entsql.Dialect(dialect.SQLite).
		Insert(snapshotTable).
		Columns("key", "value", "updated_at").
		Values(key, string(blob), time.Now().UTC()).
		OnConflict(
			entsql.ConflictColumns("key"),
			entsql.ResolveWithNewValues(),
		).
		Query()
	if err := s.drv.Exec(ctx, query, args, nil); err != nil {
		return fmt.Errorf("saving snapshot %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, key string) (Snapshot, error) {
	query, args := entsql.Dialect(dialect.SQLite).
		Select("value").
		From(entsql.Table(snapshotTable)).
		Where(entsql.EQ("key", key)).
		Query()

	var rows entsql.Rows
	if err := s.drv.Query(ctx, query, args, &rows); err != nil {
		return Snapshot{}, fmt.Errorf("loading snapshot %s: %w", key, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return Snapshot{}, fmt.Errorf("loading snapshot %s: %w", key, err)
		}
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	var blob string
	if err := rows.Scan(&blob); err != nil {
		return Snapshot{}, fmt.Errorf("scanning snapshot %s: %w", key, err)
	}
	return Decode([]byte(blob))
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	query, args := entsql.Dialect(dialect.SQLite).
		Delete(snapshotTable).
		Where(entsql.EQ("key", key)).
		Query()
	if err := s.drv.Exec(ctx, query, args, nil); err != nil {
		return fmt.Errorf("deleting snapshot %s: %w", key, err)
	}
	return nil
}
