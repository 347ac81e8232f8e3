package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"parceltrack/internal/db"
	"parceltrack/internal/domain"
	"parceltrack/internal/engine/auth"
	"parceltrack/internal/history"
	"parceltrack/internal/repo"
)

// ParcelDeletion summarizes a parcel delete and its cascade.
type ParcelDeletion struct {
	ParcelID           string   `json:"parcel_id"`
	DeletedIssues      []string `json:"deleted_issues"`
	RemovedAttachments int      `json:"removed_attachments"`
	FailedAttachments  int      `json:"failed_attachments"`
}

// ReceiveParcel registers a new parcel in the Received state.
func (e Engine) ReceiveParcel(ctx context.Context, id string) (domain.Parcel, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Parcel{}, invalid("missing_id", "parcel id is required")
	}
	now := e.now()
	p := domain.Parcel{ID: id, CurrentState: domain.StateReceived, CreatedAt: now, LastEventAt: now}
	evt := domain.HistoryEvent{State: domain.StateReceived, Timestamp: now}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		exists, err := e.Repo.ParcelExists(ctx, tx, id)
		if err != nil {
			return err
		}
		if exists {
			return conflict("parcel_exists", "parcel %s already exists", id)
		}
		if err := e.Repo.InsertParcel(ctx, tx, p); err != nil {
			if db.IsUniqueViolation(err) {
				return conflict("parcel_exists", "parcel %s already exists", id)
			}
			return fmt.Errorf("insert parcel: %w", err)
		}
		return e.History.Append(ctx, tx, history.KindParcel, id, evt)
	})
	if err != nil {
		return domain.Parcel{}, e.fail(ctx, "receive parcel", err)
	}
	p.History = []domain.HistoryEvent{evt}
	e.Metrics.ParcelTransition(string(domain.StateReceived))
	e.log(ctx).Info().Str("parcel_id", id).Msg("parcel received")
	return p, nil
}

// TransitionParcel moves a parcel to target if the transition table allows it.
func (e Engine) TransitionParcel(ctx context.Context, id, target string) (domain.Parcel, error) {
	state, ok := domain.ParseParcelState(target)
	if !ok {
		return domain.Parcel{}, invalid("invalid_state", "unknown parcel state %q", target)
	}
	id = strings.TrimSpace(id)
	if err := e.transitionParcel(ctx, id, state); err != nil {
		return domain.Parcel{}, err
	}
	return e.GetParcel(ctx, id)
}

// transitionParcel commits one state change without reloading the parcel.
func (e Engine) transitionParcel(ctx context.Context, id string, state domain.ParcelState) error {
	var from domain.ParcelState
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		p, err := e.Repo.GetParcel(ctx, tx, id)
		if errors.Is(err, repo.ErrNotFound) {
			return notFound("parcel %s not found", id)
		}
		if err != nil {
			return err
		}
		if !e.transitions.Allows(p.CurrentState, state) {
			return &Error{
				Kind:    KindInvalidArgument,
				Code:    "invalid_transition",
				Message: fmt.Sprintf("parcel %s cannot move from %s to %s", id, p.CurrentState, state),
			}
		}
		from = p.CurrentState
		now := e.now()
		if err := e.History.Append(ctx, tx, history.KindParcel, id, domain.HistoryEvent{State: state, Timestamp: now}); err != nil {
			return err
		}
		return e.Repo.SetParcelState(ctx, tx, id, state, now)
	})
	if err != nil {
		return e.fail(ctx, "transition parcel", err)
	}
	e.Metrics.ParcelTransition(string(state))
	e.log(ctx).Info().Str("parcel_id", id).Str("from", string(from)).Str("to", string(state)).Msg("parcel transitioned")
	return nil
}

// GetParcel returns the parcel with its full history.
func (e Engine) GetParcel(ctx context.Context, id string) (domain.Parcel, error) {
	p, err := e.loadParcel(ctx, e.DB, strings.TrimSpace(id))
	if err != nil {
		return domain.Parcel{}, e.fail(ctx, "get parcel", err)
	}
	return p, nil
}

func (e Engine) loadParcel(ctx context.Context, q db.Querier, id string) (domain.Parcel, error) {
	p, err := e.Repo.GetParcel(ctx, q, id)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Parcel{}, notFound("parcel %s not found", id)
	}
	if err != nil {
		return domain.Parcel{}, err
	}
	if p.History, err = e.History.List(ctx, q, history.KindParcel, id); err != nil {
		return domain.Parcel{}, err
	}
	return p, nil
}

// DeleteParcel removes a parcel and every issue filed against it. Attachment
// objects are removed first; failures there do not stop the delete.
func (e Engine) DeleteParcel(ctx context.Context, principal auth.Principal, id string) (ParcelDeletion, error) {
	if err := e.Auth.Require(principal, auth.PermParcelDelete); err != nil {
		return ParcelDeletion{}, e.fail(ctx, "delete parcel", err)
	}
	id = strings.TrimSpace(id)
	exists, err := e.Repo.ParcelExists(ctx, nil, id)
	if err != nil {
		return ParcelDeletion{}, e.fail(ctx, "delete parcel", err)
	}
	if !exists {
		return ParcelDeletion{}, notFound("parcel %s not found", id)
	}
	issueIDs, err := e.Repo.ListIssueIDsByParcel(ctx, nil, id)
	if err != nil {
		return ParcelDeletion{}, e.fail(ctx, "delete parcel", err)
	}
	attachments, err := e.Repo.ListAttachmentsMany(ctx, nil, issueIDs)
	if err != nil {
		return ParcelDeletion{}, e.fail(ctx, "delete parcel", err)
	}
	var keys []string
	for _, issueID := range issueIDs {
		for _, a := range attachments[issueID] {
			keys = append(keys, a.Key)
		}
	}
	out := ParcelDeletion{ParcelID: id, DeletedIssues: issueIDs}
	if out.DeletedIssues == nil {
		out.DeletedIssues = []string{}
	}
	out.RemovedAttachments, out.FailedAttachments = e.removeObjects(ctx, keys)

	err = e.inTx(ctx, func(tx *sql.Tx) error {
		for _, issueID := range issueIDs {
			if err := e.deleteIssueRows(ctx, tx, issueID); err != nil {
				return err
			}
		}
		if err := e.History.Delete(ctx, tx, history.KindParcel, id); err != nil {
			return err
		}
		return e.Repo.DeleteParcel(ctx, tx, id)
	})
	if err != nil {
		return ParcelDeletion{}, e.fail(ctx, "delete parcel", err)
	}
	e.log(ctx).Info().
		Str("parcel_id", id).
		Str("actor_id", principal.ActorID).
		Int("issues", len(issueIDs)).
		Int("attachment_failures", out.FailedAttachments).
		Msg("parcel deleted")
	return out, nil
}
