package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"parceltrack/internal/blob"
	"parceltrack/internal/db"
	"parceltrack/internal/domain"
	"parceltrack/internal/engine/auth"
	"parceltrack/internal/history"
	"parceltrack/internal/repo"
)

// File is an uploaded attachment awaiting storage.
type File struct {
	Name        string
	ContentType string
	Reader      io.Reader
}

type IssueCreate struct {
	ParcelID    string
	Type        string
	Description string
	Files       []File
}

// IssueUpdate carries any non-empty combination of a status change, a
// comment and new attachments.
type IssueUpdate struct {
	Status  string
	Comment string
	Files   []File
}

type IssueFilter struct {
	Status   string
	ParcelID string
}

// IssueDeletion summarizes an issue delete.
type IssueDeletion struct {
	IssueID            string `json:"issue_id"`
	RemovedAttachments int    `json:"removed_attachments"`
	FailedAttachments  int    `json:"failed_attachments"`
}

// CreateIssue files the issue for a parcel. The issue id is derived from the
// parcel id, so each parcel has at most one.
func (e Engine) CreateIssue(ctx context.Context, in IssueCreate) (domain.Issue, error) {
	parcelID := strings.TrimSpace(in.ParcelID)
	typ := strings.TrimSpace(in.Type)
	desc := strings.TrimSpace(in.Description)
	if parcelID == "" || typ == "" || desc == "" {
		return domain.Issue{}, invalid("missing_field", "parcel_id, type and description are required")
	}
	id := domain.IssueID(parcelID)
	exists, err := e.Repo.IssueExists(ctx, nil, id)
	if err != nil {
		return domain.Issue{}, e.fail(ctx, "create issue", err)
	}
	if exists {
		return domain.Issue{}, conflict("issue_exists", "issue %s already exists", id)
	}
	if e.Config.Issues.RequireParcel {
		ok, err := e.Repo.ParcelExists(ctx, nil, parcelID)
		if err != nil {
			return domain.Issue{}, e.fail(ctx, "create issue", err)
		}
		if !ok {
			return domain.Issue{}, notFound("parcel %s not found", parcelID)
		}
	}

	now := e.now()
	atts, err := e.storeFiles(ctx, id, in.Files, now)
	if err != nil {
		return domain.Issue{}, e.fail(ctx, "create issue", err)
	}
	issue := domain.Issue{
		ID:          id,
		ParcelID:    parcelID,
		Type:        typ,
		Description: desc,
		Status:      domain.IssueOpen,
		CreatedAt:   now,
	}
	events := []domain.HistoryEvent{{Status: domain.IssueOpen, Timestamp: now}}
	if len(atts) > 0 {
		events = append(events, domain.HistoryEvent{Attachments: attachmentURLs(atts), Timestamp: now})
	}
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertIssue(ctx, tx, issue); err != nil {
			if db.IsUniqueViolation(err) {
				return conflict("issue_exists", "issue %s already exists", id)
			}
			return fmt.Errorf("insert issue: %w", err)
		}
		if err := e.Repo.InsertAttachments(ctx, tx, id, atts); err != nil {
			return fmt.Errorf("insert attachments: %w", err)
		}
		return e.History.Append(ctx, tx, history.KindIssue, id, events...)
	})
	if err != nil {
		e.removeObjects(ctx, attachmentKeys(atts))
		return domain.Issue{}, e.fail(ctx, "create issue", err)
	}
	e.Metrics.IssueUpdate("created")
	if len(atts) > 0 {
		e.Metrics.IssueUpdate("attachments")
	}
	e.log(ctx).Info().Str("issue_id", id).Str("parcel_id", parcelID).Int("attachments", len(atts)).Msg("issue created")
	return e.GetIssue(ctx, id)
}

// GetIssue returns the issue with its history and attachments.
func (e Engine) GetIssue(ctx context.Context, id string) (domain.Issue, error) {
	id = strings.TrimSpace(id)
	is, err := e.Repo.GetIssue(ctx, nil, id)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Issue{}, notFound("issue %s not found", id)
	}
	if err != nil {
		return domain.Issue{}, e.fail(ctx, "get issue", err)
	}
	if is.History, err = e.History.List(ctx, nil, history.KindIssue, id); err != nil {
		return domain.Issue{}, e.fail(ctx, "get issue", err)
	}
	if is.Attachments, err = e.Repo.ListAttachments(ctx, nil, id); err != nil {
		return domain.Issue{}, e.fail(ctx, "get issue", err)
	}
	return is, nil
}

func (e Engine) ListIssues(ctx context.Context, f IssueFilter) ([]domain.Issue, error) {
	var filter repo.IssueFilter
	if raw := strings.TrimSpace(f.Status); raw != "" {
		status, ok := domain.ParseIssueStatus(raw)
		if !ok {
			return nil, invalid("invalid_status", "unknown issue status %q", f.Status)
		}
		filter.Status = status
	}
	filter.ParcelID = strings.TrimSpace(f.ParcelID)
	items, err := e.Repo.ListIssues(ctx, nil, filter)
	if err != nil {
		return nil, e.fail(ctx, "list issues", err)
	}
	ids := make([]string, 0, len(items))
	for _, is := range items {
		ids = append(ids, is.ID)
	}
	histories, err := e.History.ListMany(ctx, nil, history.KindIssue, ids)
	if err != nil {
		return nil, e.fail(ctx, "list issues", err)
	}
	attachments, err := e.Repo.ListAttachmentsMany(ctx, nil, ids)
	if err != nil {
		return nil, e.fail(ctx, "list issues", err)
	}
	for i := range items {
		items[i].History = histories[items[i].ID]
		if items[i].History == nil {
			items[i].History = []domain.HistoryEvent{}
		}
		items[i].Attachments = attachments[items[i].ID]
		if items[i].Attachments == nil {
			items[i].Attachments = []domain.Attachment{}
		}
	}
	return items, nil
}

// UpdateIssue applies a combined update. Events are appended in the order
// status, comment, attachments, all with the same timestamp.
func (e Engine) UpdateIssue(ctx context.Context, id string, in IssueUpdate) (domain.Issue, error) {
	id = strings.TrimSpace(id)
	comment := strings.TrimSpace(in.Comment)
	rawStatus := strings.TrimSpace(in.Status)
	if rawStatus == "" && comment == "" && len(in.Files) == 0 {
		return domain.Issue{}, invalid("empty_update", "status, comment or attachments required")
	}
	var status domain.IssueStatus
	if rawStatus != "" {
		s, ok := domain.ParseIssueStatus(rawStatus)
		if !ok {
			return domain.Issue{}, invalid("invalid_status", "unknown issue status %q", in.Status)
		}
		status = s
	}
	exists, err := e.Repo.IssueExists(ctx, nil, id)
	if err != nil {
		return domain.Issue{}, e.fail(ctx, "update issue", err)
	}
	if !exists {
		return domain.Issue{}, notFound("issue %s not found", id)
	}

	now := e.now()
	atts, err := e.storeFiles(ctx, id, in.Files, now)
	if err != nil {
		return domain.Issue{}, e.fail(ctx, "update issue", err)
	}
	var (
		events []domain.HistoryEvent
		kinds  []string
	)
	if status != "" {
		events = append(events, domain.HistoryEvent{Status: status, Timestamp: now})
		kinds = append(kinds, "status")
	}
	if comment != "" {
		events = append(events, domain.HistoryEvent{Comment: comment, Timestamp: now})
		kinds = append(kinds, "comment")
	}
	if len(atts) > 0 {
		events = append(events, domain.HistoryEvent{Attachments: attachmentURLs(atts), Timestamp: now})
		kinds = append(kinds, "attachments")
	}
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if status != "" {
			if err := e.Repo.SetIssueStatus(ctx, tx, id, status); err != nil {
				if errors.Is(err, repo.ErrNotFound) {
					return notFound("issue %s not found", id)
				}
				return err
			}
		}
		if err := e.Repo.InsertAttachments(ctx, tx, id, atts); err != nil {
			return fmt.Errorf("insert attachments: %w", err)
		}
		return e.History.Append(ctx, tx, history.KindIssue, id, events...)
	})
	if err != nil {
		e.removeObjects(ctx, attachmentKeys(atts))
		return domain.Issue{}, e.fail(ctx, "update issue", err)
	}
	for _, k := range kinds {
		e.Metrics.IssueUpdate(k)
	}
	e.log(ctx).Info().Str("issue_id", id).Strs("changes", kinds).Msg("issue updated")
	return e.GetIssue(ctx, id)
}

func (e Engine) ChangeIssueStatus(ctx context.Context, id, status string) (domain.Issue, error) {
	if strings.TrimSpace(status) == "" {
		return domain.Issue{}, invalid("missing_status", "status is required")
	}
	return e.UpdateIssue(ctx, id, IssueUpdate{Status: status})
}

func (e Engine) AddIssueComment(ctx context.Context, id, comment string) (domain.Issue, error) {
	if strings.TrimSpace(comment) == "" {
		return domain.Issue{}, invalid("missing_comment", "comment is required")
	}
	return e.UpdateIssue(ctx, id, IssueUpdate{Comment: comment})
}

func (e Engine) AddIssueAttachments(ctx context.Context, id string, files []File) (domain.Issue, error) {
	if len(files) == 0 {
		return domain.Issue{}, invalid("missing_attachments", "at least one attachment is required")
	}
	return e.UpdateIssue(ctx, id, IssueUpdate{Files: files})
}

// DeleteIssue removes an issue, its history and its attachment objects.
func (e Engine) DeleteIssue(ctx context.Context, principal auth.Principal, id string) (IssueDeletion, error) {
	if err := e.Auth.Require(principal, auth.PermIssueDelete); err != nil {
		return IssueDeletion{}, e.fail(ctx, "delete issue", err)
	}
	id = strings.TrimSpace(id)
	exists, err := e.Repo.IssueExists(ctx, nil, id)
	if err != nil {
		return IssueDeletion{}, e.fail(ctx, "delete issue", err)
	}
	if !exists {
		return IssueDeletion{}, notFound("issue %s not found", id)
	}
	atts, err := e.Repo.ListAttachments(ctx, nil, id)
	if err != nil {
		return IssueDeletion{}, e.fail(ctx, "delete issue", err)
	}
	out := IssueDeletion{IssueID: id}
	out.RemovedAttachments, out.FailedAttachments = e.removeObjects(ctx, attachmentKeys(atts))
	if err := e.inTx(ctx, func(tx *sql.Tx) error { return e.deleteIssueRows(ctx, tx, id) }); err != nil {
		return IssueDeletion{}, e.fail(ctx, "delete issue", err)
	}
	e.log(ctx).Info().Str("issue_id", id).Str("actor_id", principal.ActorID).Msg("issue deleted")
	return out, nil
}

func (e Engine) deleteIssueRows(ctx context.Context, tx *sql.Tx, id string) error {
	if err := e.Repo.DeleteAttachments(ctx, tx, id); err != nil {
		return err
	}
	if err := e.History.Delete(ctx, tx, history.KindIssue, id); err != nil {
		return err
	}
	return e.Repo.DeleteIssue(ctx, tx, id)
}

// storeFiles writes uploads to the blob store. On failure the objects already
// written are removed before returning.
func (e Engine) storeFiles(ctx context.Context, issueID string, files []File, at time.Time) ([]domain.Attachment, error) {
	atts := make([]domain.Attachment, 0, len(files))
	for i, f := range files {
		if f.Reader == nil {
			e.removeObjects(ctx, attachmentKeys(atts))
			return nil, invalid("invalid_attachment", "attachment %d has no content", i)
		}
		key := blob.IssueKey(issueID, f.Name, at, i)
		info, err := e.Blobs.Put(ctx, key, f.Reader, blob.PutOptions{ContentType: f.ContentType})
		if err != nil {
			e.removeObjects(ctx, attachmentKeys(atts))
			return nil, fmt.Errorf("store attachment %q: %w", f.Name, err)
		}
		url := info.URL
		if url == "" {
			url = e.Blobs.URL(key)
		}
		name := strings.TrimSpace(f.Name)
		if name == "" {
			name = path.Base(key)
		}
		atts = append(atts, domain.Attachment{URL: url, OriginalName: name, AddedAt: at, Key: key})
	}
	return atts, nil
}

func attachmentURLs(atts []domain.Attachment) []string {
	out := make([]string, 0, len(atts))
	for _, a := range atts {
		out = append(out, a.URL)
	}
	return out
}

func attachmentKeys(atts []domain.Attachment) []string {
	out := make([]string, 0, len(atts))
	for _, a := range atts {
		out = append(out, a.Key)
	}
	return out
}
