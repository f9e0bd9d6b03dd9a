package audit

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// ActionType names the kind of activity an entry describes.
type ActionType string

// Known action types. Entries and filters only accept these names.
const (
	ActionLogin          ActionType = "login"
	ActionLogout         ActionType = "logout"
	ActionAccessDenied   ActionType = "access_denied"
	ActionUploadPhoto    ActionType = "upload_photo"
	ActionUpdatePhoto    ActionType = "update_photo"
	ActionDeletePhoto    ActionType = "delete_photo"
	ActionCreateUser     ActionType = "create_user"
	ActionUpdateUser     ActionType = "update_user"
	ActionDeleteUser     ActionType = "delete_user"
	ActionBanUser        ActionType = "ban_user"
	ActionAddComment     ActionType = "add_comment"
	ActionDeleteComment  ActionType = "delete_comment"
	ActionCreateAdmin    ActionType = "create_admin"
	ActionUpdateAdmin    ActionType = "update_admin"
	ActionDeleteAdmin    ActionType = "delete_admin"
	ActionUpdateSettings ActionType = "update_settings"
	ActionExportLogs     ActionType = "export_logs"
)

var knownActions = map[ActionType]struct{}{
	ActionLogin: {}, ActionLogout: {}, ActionAccessDenied: {},
	ActionUploadPhoto: {}, ActionUpdatePhoto: {}, ActionDeletePhoto: {},
	ActionCreateUser: {}, ActionUpdateUser: {}, ActionDeleteUser: {}, ActionBanUser: {},
	ActionAddComment: {}, ActionDeleteComment: {},
	ActionCreateAdmin: {}, ActionUpdateAdmin: {}, ActionDeleteAdmin: {},
	ActionUpdateSettings: {}, ActionExportLogs: {},
}

// Valid reports whether a is a known action type.
func (a ActionType) Valid() bool {
	_, ok := knownActions[a]
	return ok
}

// ParseActionType normalises raw and rejects unknown names.
func ParseActionType(raw string) (ActionType, error) {
	a := ActionType(strings.ToLower(strings.TrimSpace(raw)))
	if !a.Valid() {
		return "", &ValidationError{Field: "action_type", Reason: fmt.Sprintf("unknown action type %q", raw)}
	}
	return a, nil
}

// ParseActionTypes parses a comma separated list, skipping blanks.
func ParseActionTypes(raw string) ([]ActionType, error) {
	var out []ActionType
	for _, part := range strings.Split(raw, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		a, err := ParseActionType(part)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// Status is the outcome recorded for an entry.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusWarning Status = "warning"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusWarning:
		return true
	}
	return false
}

// ParseStatus normalises raw and rejects unknown statuses.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", raw)}
	}
	return s, nil
}

// LogEntry is one immutable audit record.
type LogEntry struct {
	ID            int64      `json:"id"`
	CreatedAt     time.Time  `json:"created_at"`
	ActionType    ActionType `json:"action_type"`
	Description   string     `json:"description"`
	UserID        *int64     `json:"user_id"`
	AdminID       *int64     `json:"admin_id"`
	AffectedTable *string    `json:"affected_table"`
	AffectedID    *int64     `json:"affected_id"`
	Status        Status     `json:"status"`
	IPAddress     string     `json:"ip_address"`
}

// NewEntry carries the caller supplied fields of an entry. The store assigns
// the id and the timestamp.
type NewEntry struct {
	ActionType    ActionType
	Description   string
	UserID        *int64
	AdminID       *int64
	AffectedTable *string
	AffectedID    *int64
	Status        Status
	IPAddress     string
}

// Validate enforces the entry invariants shared by every store.
func (e NewEntry) Validate() error {
	if !e.ActionType.Valid() {
		return &ValidationError{Field: "action_type", Reason: fmt.Sprintf("unknown action type %q", e.ActionType)}
	}
	if !e.Status.Valid() {
		return &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", e.Status)}
	}
	if e.UserID != nil && e.AdminID != nil {
		return &ValidationError{Field: "user_id", Reason: "user_id and admin_id are mutually exclusive"}
	}
	return nil
}

// Build materialises the stored entry from id and timestamp.
func (e NewEntry) Build(id int64, at time.Time) LogEntry {
	return LogEntry{
		ID:            id,
		CreatedAt:     at,
		ActionType:    e.ActionType,
		Description:   e.Description,
		UserID:        copyInt(e.UserID),
		AdminID:       copyInt(e.AdminID),
		AffectedTable: copyString(e.AffectedTable),
		AffectedID:    copyInt(e.AffectedID),
		Status:        e.Status,
		IPAddress:     e.IPAddress,
	}
}

// Filter is a conjunction of optional predicates. Nil fields impose no
// constraint. DateFrom and DateTo are calendar days; the range covers
// DateFrom 00:00:00 through DateTo 23:59:59 in the location of each value.
type Filter struct {
	ActionType *ActionType
	Status     *Status
	UserID     *int64
	DateFrom   *time.Time
	DateTo     *time.Time
}

// Bounds returns the half-open time range [from, to) implied by the date
// fields. Zero values mean unbounded.
func (f Filter) Bounds() (from, to time.Time) {
	if f.DateFrom != nil {
		from = startOfDay(*f.DateFrom)
	}
	if f.DateTo != nil {
		to = startOfDay(*f.DateTo).AddDate(0, 0, 1)
	}
	return from, to
}

// Matches evaluates the filter against e in memory.
func (f Filter) Matches(e LogEntry) bool {
	if f.ActionType != nil && e.ActionType != *f.ActionType {
		return false
	}
	if f.Status != nil && e.Status != *f.Status {
		return false
	}
	if f.UserID != nil && (e.UserID == nil || *e.UserID != *f.UserID) {
		return false
	}
	from, to := f.Bounds()
	if !from.IsZero() && e.CreatedAt.Before(from) {
		return false
	}
	if !to.IsZero() && !e.CreatedAt.Before(to) {
		return false
	}
	return true
}

// PageRequest selects one page of a filtered result.
type PageRequest struct {
	Page     int
	PageSize int
}

// NewPageRequest validates page and size.
func NewPageRequest(page, size int) (PageRequest, error) {
	p := PageRequest{Page: page, PageSize: size}
	return p, p.Validate()
}

// Validate checks page >= 1 and size > 0.
func (p PageRequest) Validate() error {
	if p.Page < 1 {
		return &ValidationError{Field: "page", Reason: "must be >= 1"}
	}
	if p.PageSize <= 0 {
		return &ValidationError{Field: "page_size", Reason: "must be > 0"}
	}
	if p.Page > math.MaxInt/p.PageSize {
		return &ValidationError{Field: "page", Reason: "out of range"}
	}
	return nil
}

// Offset is (page-1) * size.
func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// StatBucket aggregates entries of one action type over a window.
type StatBucket struct {
	ActionType ActionType `json:"action_type"`
	Count      int        `json:"count"`
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func copyInt(v *int64) *int64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func copyString(v *string) *string {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }

// String returns a pointer to v.
func String(v string) *string { return &v }
