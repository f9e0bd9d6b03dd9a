package audithttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/snapgallery/backoffice/internal/audit"
	"github.com/snapgallery/backoffice/internal/platform/httpx"
	"github.com/snapgallery/backoffice/internal/rbac"
)

const (
	defaultPageSize   = 50
	maxPageSize       = 200
	defaultWindowDays = 7
	maxWindowDays     = 365
	dateLayout        = "2006-01-02"
)

// QueryService is the read side of the audit trail.
type QueryService interface {
	Page(ctx context.Context, filter audit.Filter, req audit.PageRequest) (audit.PageResult, error)
	Get(ctx context.Context, id int64) (audit.LogEntry, error)
	Export(ctx context.Context, filter audit.Filter) ([]audit.LogEntry, error)
	TopActivity(ctx context.Context, windowDays int, priority []audit.ActionType, maxEntries int) ([]audit.StatBucket, error)
}

// Recorder appends entries.
type Recorder interface {
	Append(ctx context.Context, in audit.RecordInput) (audit.LogEntry, error)
}

// Config tunes the audit endpoints.
type Config struct {
	// Location interprets date_from and date_to. Defaults to UTC.
	Location *time.Location
	// Priority lists the action types TopActivity surfaces first.
	Priority []audit.ActionType
	// MaxEntries bounds /audit/stats when no limit is given.
	MaxEntries int
	// WindowDays is the default /audit/stats window.
	WindowDays int
	// ExportLimit caps export requests per principal per ExportWindow.
	ExportLimit  int
	ExportWindow time.Duration
}

// Handler serves the audit trail over JSON.
type Handler struct {
	logger   *slog.Logger
	service  QueryService
	recorder Recorder
	guard    *audit.Guard
	rbac     rbac.Middleware
	cfg      Config
}

// NewHandler builds the audit handler.
func NewHandler(logger *slog.Logger, service QueryService, recorder Recorder, guard *audit.Guard, rbacMW rbac.Middleware, cfg Config) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = audit.DefaultTopEntries
	}
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = defaultWindowDays
	}
	return &Handler{logger: logger, service: service, recorder: recorder, guard: guard, rbac: rbacMW, cfg: cfg}
}

type recordRequest struct {
	ActionType    string  `json:"action_type"`
	Description   string  `json:"description"`
	Status        string  `json:"status"`
	AffectedTable *string `json:"affected_table"`
	AffectedID    *int64  `json:"affected_id"`
}

type recordResponse struct {
	ID int64 `json:"id"`
}

type statsResponse struct {
	Days    int                `json:"days"`
	Buckets []audit.StatBucket `json:"buckets"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r, h.cfg.Location)
	if err != nil {
		h.respondError(w, r, "parse filter", err)
		return
	}
	req, err := parsePageRequest(r)
	if err != nil {
		h.respondError(w, r, "parse page", err)
		return
	}
	result, err := h.service.Page(r.Context(), filter, req)
	if err != nil {
		h.respondError(w, r, "list audit logs", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.respondError(w, r, "parse id", &audit.ValidationError{Field: "id", Reason: "must be a positive integer"})
		return
	}
	entry, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, "get audit log", err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) handleRecord(w http.ResponseWriter, r *http.Request) {
	principal, _ := rbac.PrincipalFromContext(r.Context())
	var body recordRequest
	if err := httpx.DecodeJSON(r, &body); err != nil {
		h.respondError(w, r, "decode record", &audit.ValidationError{Field: "body", Reason: err.Error()})
		return
	}
	action, err := audit.ParseActionType(body.ActionType)
	if err != nil {
		h.respondError(w, r, "parse record", err)
		return
	}
	status, err := audit.ParseStatus(body.Status)
	if err != nil {
		h.respondError(w, r, "parse record", err)
		return
	}
	userID, adminID := audit.ActorFields(principal)
	entry, err := h.recorder.Append(r.Context(), audit.RecordInput{
		ActionType:    action,
		Description:   body.Description,
		UserID:        userID,
		AdminID:       adminID,
		AffectedTable: body.AffectedTable,
		AffectedID:    body.AffectedID,
		Status:        status,
		ClientIP:      clientIP(r),
	})
	if err != nil {
		h.respondError(w, r, "record audit log", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, recordResponse{ID: entry.ID})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	days, err := intParam(q.Get("days"), h.cfg.WindowDays, "days")
	if err == nil && (days <= 0 || days > maxWindowDays) {
		err = &audit.ValidationError{Field: "days", Reason: fmt.Sprintf("must be between 1 and %d", maxWindowDays)}
	}
	if err != nil {
		h.respondError(w, r, "parse stats", err)
		return
	}
	limit, err := intParam(q.Get("limit"), h.cfg.MaxEntries, "limit")
	if err == nil && limit <= 0 {
		err = &audit.ValidationError{Field: "limit", Reason: "must be > 0"}
	}
	if err != nil {
		h.respondError(w, r, "parse stats", err)
		return
	}
	buckets, err := h.service.TopActivity(r.Context(), days, h.cfg.Priority, limit)
	if err != nil {
		h.respondError(w, r, "audit stats", err)
		return
	}
	httpx.JSON(w, http.StatusOK, statsResponse{Days: days, Buckets: buckets})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r, h.cfg.Location)
	if err != nil {
		h.respondError(w, r, "parse filter", err)
		return
	}
	principal, _ := rbac.PrincipalFromContext(r.Context())
	rc := audit.RequestContext{ClientIP: clientIP(r), RequestID: middleware.GetReqID(r.Context())}

	var rows []audit.LogEntry
	err = h.guard.Run(r.Context(), principal, rc, audit.Operation{
		Permission:  rbac.PermExportLogs,
		Action:      audit.ActionExportLogs,
		Description: "export audit logs",
		Target:      &audit.Target{Table: "activity_logs"},
	}, func(ctx context.Context) (audit.Outcome, error) {
		var err error
		rows, err = h.service.Export(ctx, filter)
		if err != nil {
			return audit.Outcome{}, err
		}
		return audit.Outcome{Description: fmt.Sprintf("exported %d audit logs", len(rows))}, nil
	})
	if err != nil {
		h.respondError(w, r, "export audit logs", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=\"audit-logs.csv\"")
	if err := audit.WriteCSV(w, rows); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, audit.ErrInvalidInput):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error()))
	case errors.Is(err, audit.ErrNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrNotFound, err.Error()))
	case errors.Is(err, rbac.ErrAccessDenied):
		httpx.RespondError(w, fmt.Errorf("%w: access denied", httpx.ErrForbidden))
	case errors.Is(err, audit.ErrStore), errors.Is(err, context.DeadlineExceeded):
		h.logger.Error(op, slog.Any("error", err), slog.String("request_id", middleware.GetReqID(r.Context())))
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrUnavailable, err))
	case errors.Is(err, context.Canceled):
		h.logger.Debug(op, slog.String("reason", "client gone"))
	default:
		h.logger.Error(op, slog.Any("error", err), slog.String("request_id", middleware.GetReqID(r.Context())))
		httpx.RespondError(w, err)
	}
}

func parseFilter(r *http.Request, loc *time.Location) (audit.Filter, error) {
	q := r.URL.Query()
	var filter audit.Filter
	if raw := strings.TrimSpace(q.Get("action_type")); raw != "" {
		action, err := audit.ParseActionType(raw)
		if err != nil {
			return audit.Filter{}, err
		}
		filter.ActionType = &action
	}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		status, err := audit.ParseStatus(raw)
		if err != nil {
			return audit.Filter{}, err
		}
		filter.Status = &status
	}
	if raw := strings.TrimSpace(q.Get("user_id")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return audit.Filter{}, &audit.ValidationError{Field: "user_id", Reason: "must be a positive integer"}
		}
		filter.UserID = &id
	}
	var err error
	if filter.DateFrom, err = dateParam(q.Get("date_from"), "date_from", loc); err != nil {
		return audit.Filter{}, err
	}
	if filter.DateTo, err = dateParam(q.Get("date_to"), "date_to", loc); err != nil {
		return audit.Filter{}, err
	}
	return filter, nil
}

func parsePageRequest(r *http.Request) (audit.PageRequest, error) {
	q := r.URL.Query()
	page, err := intParam(q.Get("page"), 1, "page")
	if err != nil {
		return audit.PageRequest{}, err
	}
	size, err := intParam(q.Get("page_size"), defaultPageSize, "page_size")
	if err != nil {
		return audit.PageRequest{}, err
	}
	if size > maxPageSize {
		return audit.PageRequest{}, &audit.ValidationError{Field: "page_size", Reason: fmt.Sprintf("must be <= %d", maxPageSize)}
	}
	return audit.NewPageRequest(page, size)
}

func dateParam(raw, field string, loc *time.Location) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(dateLayout, raw, loc)
	if err != nil {
		return nil, &audit.ValidationError{Field: field, Reason: "expected YYYY-MM-DD"}
	}
	return &t, nil
}

func intParam(raw string, fallback int, field string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &audit.ValidationError{Field: field, Reason: "must be an integer"}
	}
	return v, nil
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if net.ParseIP(host) == nil {
		return ""
	}
	return host
}
