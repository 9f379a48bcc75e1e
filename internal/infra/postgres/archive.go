package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"drive-in/internal/domain"
)

const schemaSQL = `
	CREATE TABLE IF NOT EXISTS drive_in_tickets (
		id UUID PRIMARY KEY,
		session_id UUID NOT NULL,
		items JSONB NOT NULL,
		item_count INTEGER NOT NULL,
		total INTEGER NOT NULL,
		placed_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	)
`

const insertSQL = `
	INSERT INTO drive_in_tickets (id, session_id, items, item_count, total, placed_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (id) DO NOTHING
`

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Archive stores every finished ticket for later reporting.
type Archive struct {
	db   execer
	pool *pgxpool.Pool
}

// Connect opens a pool, checks connectivity and makes sure the tickets
// table exists.
func Connect(ctx context.Context, dsn string) (*Archive, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}

	config.MaxConns = 4
	config.MinConns = 1
	config.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	a := &Archive{db: pool, pool: pool}
	if err := a.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return a, nil
}

func (a *Archive) EnsureSchema(ctx context.Context) error {
	if _, err := a.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("creating tickets table: %w", err)
	}
	return nil
}

func (a *Archive) Name() string {
	return "archive"
}

func (a *Archive) Dispatch(ctx context.Context, t domain.Ticket) error {
	items, err := json.Marshal(t.Items)
	if err != nil {
		return fmt.Errorf("encoding items: %w", err)
	}

	if _, err := a.db.Exec(ctx, insertSQL, t.ID, t.SessionID, items, len(t.Items), t.Total, t.PlacedAt); err != nil {
		return fmt.Errorf("archiving ticket %s: %w", t.ID, err)
	}
	return nil
}

func (a *Archive) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}
