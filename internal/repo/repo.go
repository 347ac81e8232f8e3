package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"parceltrack/internal/db"
	"parceltrack/internal/domain"
)

// Repo is the data access layer over the document tables. Methods take a
// db.Querier so callers choose between the pool and an open transaction.
type Repo struct {
	DB      *sql.DB
	Dialect db.Dialect
}

var ErrNotFound = errors.New("not found")

func (r Repo) q(query string) string {
	return r.Dialect.Rebind(query)
}

func (r Repo) querier(q db.Querier) db.Querier {
	if q == nil {
		return r.DB
	}
	return q
}

// ParcelSort selects the listing order key.
type ParcelSort string

const (
	SortLastEvent ParcelSort = "last_event"
	SortID        ParcelSort = "id"
)

// ParcelFilter drives ListParcels.
type ParcelFilter struct {
	State  domain.ParcelState
	Sort   ParcelSort
	Desc   bool
	Limit  int
	Offset int
}

func (r Repo) InsertParcel(ctx context.Context, q db.Querier, p domain.Parcel) error {
	_, err := r.querier(q).ExecContext(ctx, r.q(`INSERT INTO parcels(id,current_state,created_at,last_event_at) VALUES (?,?,?,?)`),
		p.ID, string(p.CurrentState), db.FormatTime(p.CreatedAt), db.FormatTime(p.LastEventAt))
	return err
}

// GetParcel loads the parcel row and its issue count, without history.
func (r Repo) GetParcel(ctx context.Context, q db.Querier, id string) (domain.Parcel, error) {
	row := r.querier(q).QueryRowContext(ctx, r.q(`SELECT p.id, p.current_state, p.created_at, p.last_event_at,
  (SELECT COUNT(*) FROM issues i WHERE i.parcel_id = p.id)
FROM parcels p WHERE p.id=?`), id)
	p, err := scanParcel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Parcel{}, ErrNotFound
	}
	return p, err
}

func (r Repo) ParcelExists(ctx context.Context, q db.Querier, id string) (bool, error) {
	var n int
	err := r.querier(q).QueryRowContext(ctx, r.q(`SELECT 1 FROM parcels WHERE id=?`), id).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// SetParcelState records the new current state and the timestamp of the
// history event appended alongside it.
func (r Repo) SetParcelState(ctx context.Context, q db.Querier, id string, state domain.ParcelState, lastEventAt time.Time) error {
	res, err := r.querier(q).ExecContext(ctx, r.q(`UPDATE parcels SET current_state=?, last_event_at=? WHERE id=?`),
		string(state), db.FormatTime(lastEventAt), id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (r Repo) DeleteParcel(ctx context.Context, q db.Querier, id string) error {
	res, err := r.querier(q).ExecContext(ctx, r.q(`DELETE FROM parcels WHERE id=?`), id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// ListParcels returns one page of parcels and the total matching count.
func (r Repo) ListParcels(ctx context.Context, q db.Querier, f ParcelFilter) ([]domain.Parcel, int, error) {
	qr := r.querier(q)
	var (
		where string
		args  []any
	)
	if f.State != "" {
		where = ` WHERE p.current_state=?`
		args = append(args, string(f.State))
	}
	var total int
	if err := qr.QueryRowContext(ctx, r.q(`SELECT COUNT(*) FROM parcels p`+where), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count parcels: %w", err)
	}
	dir := "ASC"
	if f.Desc {
		dir = "DESC"
	}
	order := fmt.Sprintf(`p.last_event_at %s, p.id %s`, dir, dir)
	if f.Sort == SortID {
		order = fmt.Sprintf(`p.id %s`, dir)
	}
	query := `SELECT p.id, p.current_state, p.created_at, p.last_event_at,
  (SELECT COUNT(*) FROM issues i WHERE i.parcel_id = p.id)
FROM parcels p` + where + ` ORDER BY ` + order + ` LIMIT ? OFFSET ?`
	args = append(args, f.Limit, f.Offset)
	rows, err := qr.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := []domain.Parcel{}
	for rows.Next() {
		p, err := scanParcel(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanParcel(row rowScanner) (domain.Parcel, error) {
	var (
		p                 domain.Parcel
		state             string
		createdAt, lastAt string
	)
	if err := row.Scan(&p.ID, &state, &createdAt, &lastAt, &p.IssueCount); err != nil {
		return domain.Parcel{}, err
	}
	p.CurrentState = domain.ParcelState(state)
	var err error
	if p.CreatedAt, err = db.ParseTime(createdAt); err != nil {
		return domain.Parcel{}, err
	}
	if p.LastEventAt, err = db.ParseTime(lastAt); err != nil {
		return domain.Parcel{}, err
	}
	return p, nil
}

func expectAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func stringArgs(values []string) []any {
	args := make([]any, 0, len(values))
	for _, v := range values {
		args = append(args, v)
	}
	return args
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

// uniqueSorted trims, drops blanks and duplicates, and sorts.
func uniqueSorted(values []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
