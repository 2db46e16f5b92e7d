package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/deusflow/datascout/internal/logger"
)

// PostgresStore keeps the seen set in a seen_items table. Rows within the
// retention window are loaded at open; Save writes the marks made during the
// run and purges expired rows in one transaction.
type PostgresStore struct {
	db        *sql.DB
	retention time.Duration
	seen      map[string]struct{}
	marked    map[string]time.Time
	now       func() time.Time
}

func NewPostgresStore(ctx context.Context, connectionString string, retention time.Duration) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	ps := &PostgresStore{
		db:        db,
		retention: retention,
		seen:      make(map[string]struct{}),
		marked:    make(map[string]time.Time),
		now:       time.Now,
	}

	if err := ps.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := ps.load(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("postgres seen store connected", "items", len(ps.seen))
	return ps, nil
}

func (ps *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS seen_items (
		id      TEXT PRIMARY KEY,
		seen_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_seen_items_seen_at ON seen_items(seen_at);
	`
	if _, err := ps.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

func (ps *PostgresStore) load(ctx context.Context) error {
	cutoff := ps.now().Add(-ps.retention)
	rows, err := ps.db.QueryContext(ctx, `SELECT id FROM seen_items WHERE seen_at > $1`, cutoff)
	if err != nil {
		return fmt.Errorf("failed to load seen items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("failed to scan seen item: %w", err)
		}
		ps.seen[id] = struct{}{}
	}
	return rows.Err()
}

func (ps *PostgresStore) Has(id string) bool {
	if _, ok := ps.marked[id]; ok {
		return true
	}
	_, ok := ps.seen[id]
	return ok
}

func (ps *PostgresStore) Mark(id string, at time.Time) {
	ps.marked[id] = at.UTC()
}

func (ps *PostgresStore) Len() int {
	n := len(ps.seen)
	for id := range ps.marked {
		if _, ok := ps.seen[id]; !ok {
			n++
		}
	}
	return n
}

func (ps *PostgresStore) Save(ctx context.Context) error {
	tx, err := ps.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO seen_items (id, seen_at) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET seen_at = EXCLUDED.seen_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for id, at := range ps.marked {
		if _, err := stmt.ExecContext(ctx, id, at); err != nil {
			return fmt.Errorf("failed to mark %s as seen: %w", id, err)
		}
	}

	cutoff := ps.now().Add(-ps.retention)
	res, err := tx.ExecContext(ctx, `DELETE FROM seen_items WHERE seen_at <= $1`, cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune seen items: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit seen items: %w", err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		logger.Info("pruned expired seen items", "rows", n)
	}
	for id := range ps.marked {
		ps.seen[id] = struct{}{}
	}
	ps.marked = make(map[string]time.Time)
	return nil
}

func (ps *PostgresStore) Close() error {
	if ps.db != nil {
		return ps.db.Close()
	}
	return nil
}
