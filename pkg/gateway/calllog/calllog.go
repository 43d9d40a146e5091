// Package calllog keeps an optional Postgres audit log of call decisions and
// their outcomes.
package calllog

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/vango-go/vai-callagent/pkg/core/session"
)

//go:embed migrations/*.sql
var migrations embed.FS

const writeTimeout = 5 * time.Second

// Querier is the subset of pgxpool.Pool the store uses.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store writes audit rows. It implements session.Auditor; write failures are
// logged and never reach the call.
type Store struct {
	db     Querier
	logger *slog.Logger
	close  func()
}

var _ session.Auditor = (*Store)(nil)

// Open connects, applies pending migrations, and returns a ready store.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("calllog: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("calllog: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	s := NewStore(pool, logger)
	s.close = pool.Close
	return s, nil
}

// Migrate applies the embedded migrations.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("calllog: migrations: %w", err)
	}
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return fmt.Errorf("calllog: migrations: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("calllog: migrate: %w", err)
	}
	return nil
}

func NewStore(db Querier, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

func (s *Store) Close() {
	if s != nil && s.close != nil {
		s.close()
	}
}

const insertDecision = `INSERT INTO voice_calls
	(id, room, caller_raw, caller_normalized, allowed, reason, started_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO NOTHING`

const updateClosed = `UPDATE voice_calls
SET closed_at = $2, turns = $3, record_path = $4
WHERE id = $1`

// Decided records the authorization decision.
func (s *Store) Decided(ctx context.Context, e session.AuditEntry) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	_, err := s.db.Exec(ctx, insertDecision,
		e.ID, e.Room, e.CallerRaw, e.CallerNormalized, e.Allowed, e.Reason, e.StartedAt.UTC())
	if err != nil {
		s.logger.Error("call log decision write failed", "call_id", e.ID, "error", err)
	}
}

// Closed records how the call ended. The call may end after the runtime has
// disconnected, so the write does not inherit cancellation.
func (s *Store) Closed(ctx context.Context, e session.AuditEntry) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	tag, err := s.db.Exec(ctx, updateClosed, e.ID, e.ClosedAt.UTC(), e.Turns, e.RecordPath)
	if err != nil {
		s.logger.Error("call log close write failed", "call_id", e.ID, "error", err)
		return
	}
	if tag.RowsAffected() == 0 {
		s.logger.Warn("call log close matched no decision row", "call_id", e.ID)
	}
}

const selectRecent = `SELECT id, room, caller_raw, caller_normalized, allowed, reason,
	started_at, closed_at, turns, record_path
FROM voice_calls
ORDER BY started_at DESC
LIMIT $1`

// Recent lists the latest calls, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]session.AuditEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(ctx, selectRecent, limit)
	if err != nil {
		return nil, fmt.Errorf("calllog: recent: %w", err)
	}
	defer rows.Close()

	var out []session.AuditEntry
	for rows.Next() {
		var (
			e        session.AuditEntry
			closedAt *time.Time
		)
		if err := rows.Scan(&e.ID, &e.Room, &e.CallerRaw, &e.CallerNormalized, &e.Allowed, &e.Reason,
			&e.StartedAt, &closedAt, &e.Turns, &e.RecordPath); err != nil {
			return nil, fmt.Errorf("calllog: recent: %w", err)
		}
		if closedAt != nil {
			e.ClosedAt = *closedAt
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("calllog: recent: %w", err)
	}
	return out, nil
}
