package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"parceltrack/internal/db"
	"parceltrack/internal/domain"
)

// IssueFilter narrows ListIssues.
type IssueFilter struct {
	Status   domain.IssueStatus
	ParcelID string
}

// IssueSummary aggregates the issues filed against one parcel.
type IssueSummary struct {
	ParcelID  string
	Count     int
	IssueID   string
	CreatedAt time.Time
}

func (r Repo) InsertIssue(ctx context.Context, q db.Querier, is domain.Issue) error {
	_, err := r.querier(q).ExecContext(ctx, r.q(`INSERT INTO issues(id,parcel_id,type,description,status,created_at) VALUES (?,?,?,?,?,?)`),
		is.ID, is.ParcelID, is.Type, is.Description, string(is.Status), db.FormatTime(is.CreatedAt))
	return err
}

// GetIssue loads the issue row without history or attachments.
func (r Repo) GetIssue(ctx context.Context, q db.Querier, id string) (domain.Issue, error) {
	row := r.querier(q).QueryRowContext(ctx, r.q(`SELECT id,parcel_id,type,description,status,created_at FROM issues WHERE id=?`), id)
	is, err := scanIssue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Issue{}, ErrNotFound
	}
	return is, err
}

func (r Repo) IssueExists(ctx context.Context, q db.Querier, id string) (bool, error) {
	var n int
	err := r.querier(q).QueryRowContext(ctx, r.q(`SELECT 1 FROM issues WHERE id=?`), id).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (r Repo) ListIssues(ctx context.Context, q db.Querier, f IssueFilter) ([]domain.Issue, error) {
	query := `SELECT id,parcel_id,type,description,status,created_at FROM issues WHERE 1=1`
	var args []any
	if f.Status != "" {
		query += ` AND status=?`
		args = append(args, string(f.Status))
	}
	if f.ParcelID != "" {
		query += ` AND parcel_id=?`
		args = append(args, f.ParcelID)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.querier(q).QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []domain.Issue{}
	for rows.Next() {
		is, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, is)
	}
	return items, rows.Err()
}

// ListIssueIDsByParcel returns ids of issues referencing the parcel.
func (r Repo) ListIssueIDsByParcel(ctx context.Context, q db.Querier, parcelID string) ([]string, error) {
	rows, err := r.querier(q).QueryContext(ctx, r.q(`SELECT id FROM issues WHERE parcel_id=? ORDER BY id`), parcelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r Repo) SetIssueStatus(ctx context.Context, q db.Querier, id string, status domain.IssueStatus) error {
	res, err := r.querier(q).ExecContext(ctx, r.q(`UPDATE issues SET status=? WHERE id=?`), string(status), id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (r Repo) DeleteIssue(ctx context.Context, q db.Querier, id string) error {
	res, err := r.querier(q).ExecContext(ctx, r.q(`DELETE FROM issues WHERE id=?`), id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// IssueSummaries groups issues by parcel for the requested parcel ids. The
// representative issue is the derived "<parcel>-IN" one when present,
// otherwise the earliest created.
func (r Repo) IssueSummaries(ctx context.Context, q db.Querier, parcelIDs []string) (map[string]IssueSummary, error) {
	out := map[string]IssueSummary{}
	if len(parcelIDs) == 0 {
		return out, nil
	}
	rows, err := r.querier(q).QueryContext(ctx, r.q(`SELECT parcel_id, id, created_at FROM issues WHERE parcel_id IN (`+placeholders(len(parcelIDs))+`) ORDER BY parcel_id, created_at, id`),
		stringArgs(parcelIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var parcelID, id, createdAt string
		if err := rows.Scan(&parcelID, &id, &createdAt); err != nil {
			return nil, err
		}
		ts, err := db.ParseTime(createdAt)
		if err != nil {
			return nil, err
		}
		s := out[parcelID]
		s.ParcelID = parcelID
		s.Count++
		if s.IssueID == "" || id == domain.IssueID(parcelID) {
			s.IssueID = id
			s.CreatedAt = ts
		}
		out[parcelID] = s
	}
	return out, rows.Err()
}

// InsertAttachments appends attachment rows in order.
func (r Repo) InsertAttachments(ctx context.Context, q db.Querier, issueID string, atts []domain.Attachment) error {
	for _, a := range atts {
		if _, err := r.querier(q).ExecContext(ctx, r.q(`INSERT INTO issue_attachments(issue_id,url,original_name,object_key,added_at) VALUES (?,?,?,?,?)`),
			issueID, a.URL, a.OriginalName, a.Key, db.FormatTime(a.AddedAt)); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) ListAttachments(ctx context.Context, q db.Querier, issueID string) ([]domain.Attachment, error) {
	byIssue, err := r.ListAttachmentsMany(ctx, q, []string{issueID})
	if err != nil {
		return nil, err
	}
	atts := byIssue[issueID]
	if atts == nil {
		atts = []domain.Attachment{}
	}
	return atts, nil
}

// ListAttachmentsMany loads attachments for several issues, in insertion order.
func (r Repo) ListAttachmentsMany(ctx context.Context, q db.Querier, issueIDs []string) (map[string][]domain.Attachment, error) {
	out := map[string][]domain.Attachment{}
	if len(issueIDs) == 0 {
		return out, nil
	}
	rows, err := r.querier(q).QueryContext(ctx, r.q(`SELECT issue_id,url,original_name,object_key,added_at FROM issue_attachments WHERE issue_id IN (`+placeholders(len(issueIDs))+`) ORDER BY id`),
		stringArgs(issueIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			issueID, addedAt string
			a                domain.Attachment
		)
		if err := rows.Scan(&issueID, &a.URL, &a.OriginalName, &a.Key, &addedAt); err != nil {
			return nil, err
		}
		if a.AddedAt, err = db.ParseTime(addedAt); err != nil {
			return nil, err
		}
		out[issueID] = append(out[issueID], a)
	}
	return out, rows.Err()
}

func (r Repo) DeleteAttachments(ctx context.Context, q db.Querier, issueID string) error {
	_, err := r.querier(q).ExecContext(ctx, r.q(`DELETE FROM issue_attachments WHERE issue_id=?`), issueID)
	return err
}

func scanIssue(row rowScanner) (domain.Issue, error) {
	var (
		is                domain.Issue
		status, createdAt string
	)
	if err := row.Scan(&is.ID, &is.ParcelID, &is.Type, &is.Description, &status, &createdAt); err != nil {
		return domain.Issue{}, err
	}
	is.Status = domain.IssueStatus(status)
	var err error
	if is.CreatedAt, err = db.ParseTime(createdAt); err != nil {
		return domain.Issue{}, err
	}
	return is, nil
}
