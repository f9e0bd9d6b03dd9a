// Package gormstore persists the audit trail through GORM. It serves the
// SQLite deployment and doubles as a portable Postgres backend.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/snapgallery/backoffice/internal/audit"
)

// ActivityLog is the row model of activity_logs.
type ActivityLog struct {
	ID            int64     `gorm:"primaryKey;autoIncrement"`
	CreatedAt     time.Time `gorm:"not null;index:activity_logs_created_idx,sort:desc,priority:1"`
	ActionType    string    `gorm:"not null;index"`
	Description   string    `gorm:"column:action_description;not null;default:''"`
	UserID        *int64    `gorm:"index;check:activity_logs_single_actor,user_id IS NULL OR admin_id IS NULL"`
	AdminID       *int64
	AffectedTable *string
	AffectedID    *int64
	Status        string `gorm:"not null;index;check:status IN ('success','failed','warning')"`
	IPAddress     string `gorm:"not null;default:''"`
}

// TableName pins the table name shared with the pgx store.
func (ActivityLog) TableName() string {
	return "activity_logs"
}

// Open connects with the named driver ("sqlite" or "postgres").
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("gormstore: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("gormstore: open %s: %w", driver, err)
	}
	if driver == "sqlite" {
		// A single connection keeps in-memory databases coherent.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("gormstore: sql handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// Store implements audit.Store on a *gorm.DB.
type Store struct {
	db    *gorm.DB
	clock audit.Clock
}

// New wraps db. A nil clock uses audit.SystemClock.
func New(db *gorm.DB, clock audit.Clock) *Store {
	if clock == nil {
		clock = audit.SystemClock
	}
	return &Store{db: db, clock: clock}
}

// Migrate creates or updates the activity_logs table.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&ActivityLog{}); err != nil {
		return audit.WrapStore("migrate", err)
	}
	return nil
}

// Append implements audit.Store.
func (s *Store) Append(ctx context.Context, entry audit.NewEntry) (audit.LogEntry, error) {
	if err := entry.Validate(); err != nil {
		return audit.LogEntry{}, err
	}
	row := ActivityLog{
		CreatedAt:     s.clock().UTC().Truncate(time.Microsecond),
		ActionType:    string(entry.ActionType),
		Description:   entry.Description,
		UserID:        entry.UserID,
		AdminID:       entry.AdminID,
		AffectedTable: entry.AffectedTable,
		AffectedID:    entry.AffectedID,
		Status:        string(entry.Status),
		IPAddress:     entry.IPAddress,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return audit.LogEntry{}, audit.WrapStore("append", err)
	}
	return entry.Build(row.ID, row.CreatedAt), nil
}

// Get implements audit.Store.
func (s *Store) Get(ctx context.Context, id int64) (audit.LogEntry, error) {
	var row ActivityLog
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return audit.LogEntry{}, audit.ErrNotFound
	}
	if err != nil {
		return audit.LogEntry{}, audit.WrapStore("get", err)
	}
	return row.entry(), nil
}

// Count implements audit.Store.
func (s *Store) Count(ctx context.Context, filter audit.Filter) (int, error) {
	var total int64
	if err := s.scoped(ctx, filter).Count(&total).Error; err != nil {
		return 0, audit.WrapStore("count", err)
	}
	return int(total), nil
}

// Find implements audit.Store.
func (s *Store) Find(ctx context.Context, filter audit.Filter, limit, offset int) ([]audit.LogEntry, error) {
	q := s.scoped(ctx, filter).Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	var rows []ActivityLog
	if err := q.Find(&rows).Error; err != nil {
		return nil, audit.WrapStore("find", err)
	}
	entries := make([]audit.LogEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, row.entry())
	}
	return entries, nil
}

type actionCount struct {
	ActionType string
	Total      int
}

// AggregateByAction implements audit.Store.
func (s *Store) AggregateByAction(ctx context.Context, since, until time.Time) (map[audit.ActionType]int, error) {
	var counts []actionCount
	err := s.db.WithContext(ctx).Model(&ActivityLog{}).
		Select("action_type, COUNT(*) AS total").
		Where("created_at >= ? AND created_at <= ?", since.UTC(), until.UTC()).
		Group("action_type").
		Scan(&counts).Error
	if err != nil {
		return nil, audit.WrapStore("aggregate", err)
	}
	out := make(map[audit.ActionType]int, len(counts))
	for _, c := range counts {
		out[audit.ActionType(c.ActionType)] = c.Total
	}
	return out, nil
}

func (s *Store) scoped(ctx context.Context, filter audit.Filter) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&ActivityLog{})
	if filter.ActionType != nil {
		q = q.Where("action_type = ?", string(*filter.ActionType))
	}
	if filter.Status != nil {
		q = q.Where("status = ?", string(*filter.Status))
	}
	if filter.UserID != nil {
		q = q.Where("user_id = ?", *filter.UserID)
	}
	from, to := filter.Bounds()
	if !from.IsZero() {
		q = q.Where("created_at >= ?", from.UTC())
	}
	if !to.IsZero() {
		q = q.Where("created_at < ?", to.UTC())
	}
	return q
}

func (r ActivityLog) entry() audit.LogEntry {
	return audit.NewEntry{
		ActionType:    audit.ActionType(r.ActionType),
		Description:   r.Description,
		UserID:        r.UserID,
		AdminID:       r.AdminID,
		AffectedTable: r.AffectedTable,
		AffectedID:    r.AffectedID,
		Status:        audit.Status(r.Status),
		IPAddress:     r.IPAddress,
	}.Build(r.ID, r.CreatedAt.UTC())
}
