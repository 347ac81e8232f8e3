// Package engine implements parcel tracking: the parcel state machine, issue
// lifecycle, container aggregation and listing queries. Every mutation runs
// in one store transaction that appends history and updates the current
// value together.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"parceltrack/internal/blob"
	"parceltrack/internal/config"
	"parceltrack/internal/db"
	"parceltrack/internal/domain"
	"parceltrack/internal/engine/auth"
	"parceltrack/internal/history"
	"parceltrack/internal/metrics"
	"parceltrack/internal/repo"
)

type Engine struct {
	DB      *sql.DB
	Dialect db.Dialect
	Repo    repo.Repo
	History history.Log
	Blobs   blob.Store
	Auth    auth.Authorizer
	Metrics *metrics.Metrics
	Config  *config.Config
	Logger  zerolog.Logger
	Now     func() time.Time

	transitions domain.TransitionTable
}

func New(conn *sql.DB, dialect db.Dialect, blobs blob.Store, cfg *config.Config) (Engine, error) {
	if conn == nil {
		return Engine{}, errors.New("database handle required")
	}
	if blobs == nil {
		return Engine{}, errors.New("blob store required")
	}
	if cfg == nil {
		cfg = config.Default()
	}
	table, err := cfg.TransitionTable()
	if err != nil {
		return Engine{}, err
	}
	return Engine{
		DB:          conn,
		Dialect:     dialect,
		Repo:        repo.Repo{DB: conn, Dialect: dialect},
		History:     history.Log{DB: conn, Dialect: dialect},
		Blobs:       blobs,
		Auth:        auth.NewAuthorizer(cfg.RolePermissions()),
		Config:      cfg,
		Logger:      zerolog.Nop(),
		Now:         time.Now,
		transitions: table,
	}, nil
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

// Transitions returns the parcel transition table in effect.
func (e Engine) Transitions() domain.TransitionTable {
	return e.transitions
}

func (e Engine) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// log prefers the request-scoped logger attached by the HTTP layer.
func (e Engine) log(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	l := e.Logger
	return &l
}

// fail converts err into an *Error at the operation boundary. Anything not
// already classified is logged and surfaced as internal.
func (e Engine) fail(ctx context.Context, op string, err error) error {
	var ee *Error
	if errors.As(err, &ee) {
		return err
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return &Error{Kind: KindForbidden, Code: "forbidden", Message: fe.Error(), Err: err}
	}
	if errors.Is(err, repo.ErrNotFound) {
		return &Error{Kind: KindNotFound, Code: "not_found", Message: op + ": not found", Err: err}
	}
	e.log(ctx).Error().Err(err).Str("op", op).Msg("operation failed")
	return &Error{Kind: KindInternal, Code: "internal", Message: "internal error", Err: fmt.Errorf("%s: %w", op, err)}
}

// removeObjects deletes stored attachment objects. Failures are logged and
// counted, never returned.
func (e Engine) removeObjects(ctx context.Context, keys []string) (removed, failed int) {
	for _, key := range keys {
		if key == "" {
			continue
		}
		if _, err := e.Blobs.Delete(ctx, key); err != nil {
			failed++
			e.Metrics.AttachmentCleanupFailed()
			e.log(ctx).Warn().Err(err).Str("key", key).Msg("attachment cleanup failed")
			continue
		}
		removed++
	}
	return removed, failed
}
