// Package pgstore persists the audit trail in PostgreSQL through pgx.
package pgstore

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/snapgallery/backoffice/internal/audit"
)

// Schema creates the activity_logs table and its indexes.
const Schema = `
CREATE TABLE IF NOT EXISTS activity_logs (
    id             BIGSERIAL PRIMARY KEY,
    created_at     TIMESTAMPTZ NOT NULL,
    action_type    TEXT NOT NULL,
    action_description TEXT NOT NULL DEFAULT '',
    user_id        BIGINT,
    admin_id       BIGINT,
    affected_table TEXT,
    affected_id    BIGINT,
    status         TEXT NOT NULL CHECK (status IN ('success', 'failed', 'warning')),
    ip_address     TEXT NOT NULL DEFAULT '',
    CONSTRAINT activity_logs_single_actor CHECK (user_id IS NULL OR admin_id IS NULL)
);
CREATE INDEX IF NOT EXISTS activity_logs_created_idx ON activity_logs (created_at DESC, id DESC);
CREATE INDEX IF NOT EXISTS activity_logs_action_idx ON activity_logs (action_type);
CREATE INDEX IF NOT EXISTS activity_logs_status_idx ON activity_logs (status);
CREATE INDEX IF NOT EXISTS activity_logs_user_idx ON activity_logs (user_id);
`

const selectColumns = `SELECT id, created_at, action_type, action_description, user_id, admin_id, affected_table, affected_id, status, ip_address FROM activity_logs`

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements audit.Store on a pgx pool or transaction.
type Store struct {
	db    dbtx
	clock audit.Clock
}

// New wraps db. A nil clock uses audit.SystemClock.
func New(db dbtx, clock audit.Clock) *Store {
	if clock == nil {
		clock = audit.SystemClock
	}
	return &Store{db: db, clock: clock}
}

// EnsureSchema applies Schema.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return audit.WrapStore("migrate", err)
	}
	return nil
}

// Append implements audit.Store.
func (s *Store) Append(ctx context.Context, entry audit.NewEntry) (audit.LogEntry, error) {
	if err := entry.Validate(); err != nil {
		return audit.LogEntry{}, err
	}
	at := s.clock().UTC().Truncate(time.Microsecond)
	var id int64
	err := s.db.QueryRow(ctx, `INSERT INTO activity_logs
        (created_at, action_type, action_description, user_id, admin_id, affected_table, affected_id, status, ip_address)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		at, string(entry.ActionType), entry.Description,
		entry.UserID, entry.AdminID, entry.AffectedTable, entry.AffectedID,
		string(entry.Status), entry.IPAddress,
	).Scan(&id)
	if err != nil {
		return audit.LogEntry{}, audit.WrapStore("append", err)
	}
	return entry.Build(id, at), nil
}

// Get implements audit.Store.
func (s *Store) Get(ctx context.Context, id int64) (audit.LogEntry, error) {
	row := s.db.QueryRow(ctx, selectColumns+` WHERE id = $1`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return audit.LogEntry{}, audit.ErrNotFound
	}
	if err != nil {
		return audit.LogEntry{}, audit.WrapStore("get", err)
	}
	return entry, nil
}

// Count implements audit.Store.
func (s *Store) Count(ctx context.Context, filter audit.Filter) (int, error) {
	where, args := buildWhere(filter)
	var total int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM activity_logs`+where, args...).Scan(&total); err != nil {
		return 0, audit.WrapStore("count", err)
	}
	return total, nil
}

// Find implements audit.Store.
func (s *Store) Find(ctx context.Context, filter audit.Filter, limit, offset int) ([]audit.LogEntry, error) {
	where, args := buildWhere(filter)
	query := selectColumns + where + ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		args = append(args, limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, audit.WrapStore("find", err)
	}
	defer rows.Close()

	entries := make([]audit.LogEntry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, audit.WrapStore("find", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, audit.WrapStore("find", err)
	}
	return entries, nil
}

// AggregateByAction implements audit.Store.
func (s *Store) AggregateByAction(ctx context.Context, since, until time.Time) (map[audit.ActionType]int, error) {
	rows, err := s.db.Query(ctx, `SELECT action_type, COUNT(*) FROM activity_logs
        WHERE created_at >= $1 AND created_at <= $2 GROUP BY action_type`, since.UTC(), until.UTC())
	if err != nil {
		return nil, audit.WrapStore("aggregate", err)
	}
	defer rows.Close()

	out := make(map[audit.ActionType]int)
	for rows.Next() {
		var action string
		var count int
		if err := rows.Scan(&action, &count); err != nil {
			return nil, audit.WrapStore("aggregate", err)
		}
		out[audit.ActionType(action)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, audit.WrapStore("aggregate", err)
	}
	return out, nil
}

// buildWhere renders filter as a WHERE clause with positional arguments.
func buildWhere(filter audit.Filter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, value any) {
		args = append(args, value)
		conds = append(conds, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args))))
	}
	if filter.ActionType != nil {
		add("action_type = ?", string(*filter.ActionType))
	}
	if filter.Status != nil {
		add("status = ?", string(*filter.Status))
	}
	if filter.UserID != nil {
		add("user_id = ?", *filter.UserID)
	}
	from, to := filter.Bounds()
	if !from.IsZero() {
		add("created_at >= ?", from)
	}
	if !to.IsZero() {
		add("created_at < ?", to)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanEntry(row pgx.Row) (audit.LogEntry, error) {
	var (
		e             audit.LogEntry
		createdAt     pgtype.Timestamptz
		action        string
		status        string
		userID        pgtype.Int8
		adminID       pgtype.Int8
		affectedTable pgtype.Text
		affectedID    pgtype.Int8
	)
	if err := row.Scan(&e.ID, &createdAt, &action, &e.Description, &userID, &adminID,
		&affectedTable, &affectedID, &status, &e.IPAddress); err != nil {
		return audit.LogEntry{}, err
	}
	if createdAt.Valid {
		e.CreatedAt = createdAt.Time.UTC()
	}
	e.ActionType = audit.ActionType(action)
	e.Status = audit.Status(status)
	if userID.Valid {
		e.UserID = audit.Int64(userID.Int64)
	}
	if adminID.Valid {
		e.AdminID = audit.Int64(adminID.Int64)
	}
	if affectedTable.Valid {
		e.AffectedTable = audit.String(affectedTable.String)
	}
	if affectedID.Valid {
		e.AffectedID = audit.Int64(affectedID.Int64)
	}
	return e, nil
}
