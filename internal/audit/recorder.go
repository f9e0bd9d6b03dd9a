package audit

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/snapgallery/backoffice/internal/rbac"
)

// RecordInput is the append call contract.
type RecordInput struct {
	ActionType    ActionType `json:"action_type" validate:"required,action_type"`
	Description   string     `json:"description" validate:"max=2000"`
	UserID        *int64     `json:"user_id" validate:"omitempty,gt=0,excluded_with=AdminID"`
	AdminID       *int64     `json:"admin_id" validate:"omitempty,gt=0"`
	AffectedTable *string    `json:"affected_table" validate:"omitempty,min=1,max=64"`
	AffectedID    *int64     `json:"affected_id" validate:"omitempty,gt=0"`
	Status        Status     `json:"status" validate:"required,status"`
	ClientIP      string     `json:"client_ip" validate:"omitempty,ip"`
}

// RequestContext is the per-request metadata supplied by the caller.
type RequestContext struct {
	ClientIP  string
	RequestID string
}

// ActorFields maps a principal to the user_id/admin_id pair of an entry.
// System principals, and principals without an id, act anonymously.
func ActorFields(p rbac.Principal) (userID, adminID *int64) {
	if p.ID <= 0 {
		return nil, nil
	}
	switch p.Kind {
	case rbac.KindAdmin:
		return nil, Int64(p.ID)
	case rbac.KindUser:
		return Int64(p.ID), nil
	}
	return nil, nil
}

// Recorder appends entries on behalf of privileged operations. A failed
// append is reported to the caller but never retried.
type Recorder struct {
	store    Store
	logger   *slog.Logger
	metrics  *Metrics
	validate *validator.Validate
}

// NewRecorder constructs a Recorder.
func NewRecorder(store Store, logger *slog.Logger, metrics *Metrics) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, logger: logger, metrics: metrics, validate: NewValidator()}
}

// NewValidator returns a validator aware of the audit enumerations.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("action_type", func(fl validator.FieldLevel) bool {
		return ActionType(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("status", func(fl validator.FieldLevel) bool {
		return Status(fl.Field().String()).Valid()
	})
	return v
}

// Record appends one entry and returns its id.
func (r *Recorder) Record(ctx context.Context, in RecordInput) (int64, error) {
	entry, err := r.Append(ctx, in)
	if err != nil {
		return 0, err
	}
	return entry.ID, nil
}

// Append appends one entry and returns it as stored.
func (r *Recorder) Append(ctx context.Context, in RecordInput) (LogEntry, error) {
	if err := r.Validate(in); err != nil {
		r.logger.Warn("audit record rejected", slog.String("action_type", string(in.ActionType)), slog.Any("error", err))
		return LogEntry{}, err
	}
	if r.store == nil {
		return LogEntry{}, &StoreError{Op: "append", Err: errors.New("store not configured")}
	}
	entry, err := r.store.Append(ctx, NewEntry{
		ActionType:    in.ActionType,
		Description:   in.Description,
		UserID:        in.UserID,
		AdminID:       in.AdminID,
		AffectedTable: in.AffectedTable,
		AffectedID:    in.AffectedID,
		Status:        in.Status,
		IPAddress:     in.ClientIP,
	})
	r.metrics.observeAppend(in.Status, err)
	if err != nil {
		err = WrapStore("append", err)
		r.logger.Warn("audit append failed",
			slog.String("action_type", string(in.ActionType)),
			slog.String("status", string(in.Status)),
			slog.Any("error", err))
		return LogEntry{}, err
	}
	return entry, nil
}

// RecordFor records activity performed by principal, deriving the acting
// identity and client address from the arguments.
func (r *Recorder) RecordFor(ctx context.Context, p rbac.Principal, rc RequestContext, action ActionType, status Status, description string, target *Target) (int64, error) {
	userID, adminID := ActorFields(p)
	in := RecordInput{
		ActionType:  action,
		Description: description,
		UserID:      userID,
		AdminID:     adminID,
		Status:      status,
		ClientIP:    rc.ClientIP,
	}
	if target != nil {
		in.AffectedTable = String(target.Table)
		if target.ID > 0 {
			in.AffectedID = Int64(target.ID)
		}
	}
	id, err := r.Record(ctx, in)
	if err != nil && rc.RequestID != "" {
		r.logger.Warn("audit record dropped", slog.String("request_id", rc.RequestID))
	}
	return id, err
}

// Validate checks in against the append contract.
func (r *Recorder) Validate(in RecordInput) error {
	if err := r.validate.Struct(in); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return &ValidationError{Field: fe.Field(), Reason: "failed " + fe.Tag()}
		}
		return &ValidationError{Field: "input", Reason: err.Error()}
	}
	return nil
}

// Target identifies the record an operation affected.
type Target struct {
	Table string
	ID    int64
}
