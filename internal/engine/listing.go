package engine

import (
	"context"
	"strings"
	"time"

	"parceltrack/internal/domain"
	"parceltrack/internal/history"
	"parceltrack/internal/repo"
)

const (
	defaultPageSize = 10
	maxPageSize     = 200
)

// ParcelQuery drives ListParcels. Zero values select the defaults.
type ParcelQuery struct {
	Page     int
	PageSize int
	State    string
	Sort     string
	Order    string
}

type ParcelPage struct {
	TotalItems int             `json:"total_items"`
	Page       int             `json:"page"`
	PageSize   int             `json:"page_size"`
	Items      []domain.Parcel `json:"items"`
}

// IssueDetails summarizes the issues filed against one parcel.
type IssueDetails struct {
	ParcelID     string                `json:"parcel_id"`
	IssueCount   int                   `json:"issue_count"`
	FirstEventAt time.Time             `json:"first_event_at" format:"date-time"`
	History      []domain.HistoryEvent `json:"history"`
}

func (e Engine) pageLimits() (def, limit int) {
	def, limit = defaultPageSize, maxPageSize
	if e.Config != nil {
		if e.Config.Listing.DefaultPageSize > 0 {
			def = e.Config.Listing.DefaultPageSize
		}
		if e.Config.Listing.MaxPageSize > 0 {
			limit = e.Config.Listing.MaxPageSize
		}
	}
	return def, limit
}

// normalize applies defaults and clamps paging to [1, max].
func (e Engine) normalize(q ParcelQuery) (ParcelQuery, repo.ParcelFilter, error) {
	def, limit := e.pageLimits()
	if q.Page < 1 {
		q.Page = 1
	}
	switch {
	case q.PageSize == 0:
		q.PageSize = def
	case q.PageSize < 0:
		q.PageSize = 1
	case q.PageSize > limit:
		q.PageSize = limit
	}
	f := repo.ParcelFilter{Limit: q.PageSize, Offset: (q.Page - 1) * q.PageSize}
	if raw := strings.TrimSpace(q.State); raw != "" {
		state, ok := domain.ParseParcelState(raw)
		if !ok {
			return q, f, invalid("invalid_state", "unknown parcel state %q", q.State)
		}
		f.State = state
	}
	switch strings.ToLower(strings.TrimSpace(q.Sort)) {
	case "", string(repo.SortLastEvent):
		f.Sort = repo.SortLastEvent
	case string(repo.SortID):
		f.Sort = repo.SortID
	default:
		return q, f, invalid("invalid_sort", "sort must be last_event or id")
	}
	switch strings.ToLower(strings.TrimSpace(q.Order)) {
	case "", "desc":
		f.Desc = true
	case "asc":
	default:
		return q, f, invalid("invalid_order", "order must be asc or desc")
	}
	q.Sort = string(f.Sort)
	q.Order = "asc"
	if f.Desc {
		q.Order = "desc"
	}
	return q, f, nil
}

// ListParcels returns one page of parcels ordered by last event time or id.
// TotalItems counts every matching parcel regardless of paging.
func (e Engine) ListParcels(ctx context.Context, q ParcelQuery) (ParcelPage, error) {
	q, filter, err := e.normalize(q)
	if err != nil {
		return ParcelPage{}, err
	}
	items, total, err := e.Repo.ListParcels(ctx, nil, filter)
	if err != nil {
		return ParcelPage{}, e.fail(ctx, "list parcels", err)
	}
	ids := make([]string, 0, len(items))
	for _, p := range items {
		ids = append(ids, p.ID)
	}
	histories, err := e.History.ListMany(ctx, nil, history.KindParcel, ids)
	if err != nil {
		return ParcelPage{}, e.fail(ctx, "list parcels", err)
	}
	for i := range items {
		items[i].History = histories[items[i].ID]
		if items[i].History == nil {
			items[i].History = []domain.HistoryEvent{}
		}
	}
	return ParcelPage{TotalItems: total, Page: q.Page, PageSize: q.PageSize, Items: items}, nil
}

// IssueDetailsBatch returns issue details for each requested parcel that has
// at least one issue, in request order. Unknown parcel ids are omitted.
func (e Engine) IssueDetailsBatch(ctx context.Context, parcelIDs []string) ([]IssueDetails, error) {
	seen := map[string]bool{}
	ids := make([]string, 0, len(parcelIDs))
	for _, id := range parcelIDs {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, invalid("missing_parcel_ids", "parcel_ids must contain at least one id")
	}
	summaries, err := e.Repo.IssueSummaries(ctx, nil, ids)
	if err != nil {
		return nil, e.fail(ctx, "issue details", err)
	}
	issueIDs := make([]string, 0, len(summaries))
	for _, s := range summaries {
		issueIDs = append(issueIDs, s.IssueID)
	}
	histories, err := e.History.ListMany(ctx, nil, history.KindIssue, issueIDs)
	if err != nil {
		return nil, e.fail(ctx, "issue details", err)
	}
	out := []IssueDetails{}
	for _, id := range ids {
		s, ok := summaries[id]
		if !ok {
			continue
		}
		d := IssueDetails{
			ParcelID:     id,
			IssueCount:   s.Count,
			FirstEventAt: s.CreatedAt,
			History:      histories[s.IssueID],
		}
		if len(d.History) > 0 {
			d.FirstEventAt = d.History[0].Timestamp
		} else {
			d.History = []domain.HistoryEvent{}
		}
		out = append(out, d)
	}
	return out, nil
}
