package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"parceltrack/internal/db"
	"parceltrack/internal/domain"
)

// EnsureContainer creates the container record if it does not exist yet.
func (r Repo) EnsureContainer(ctx context.Context, q db.Querier, id string, now time.Time) error {
	_, err := r.querier(q).ExecContext(ctx, r.q(`INSERT INTO containers(id,created_at) VALUES (?,?) ON CONFLICT(id) DO NOTHING`),
		id, db.FormatTime(now))
	return err
}

// AddMembers unions parcel ids into the container's membership.
func (r Repo) AddMembers(ctx context.Context, q db.Querier, containerID string, parcelIDs []string, now time.Time) error {
	for _, pid := range uniqueSorted(parcelIDs) {
		if _, err := r.querier(q).ExecContext(ctx, r.q(`INSERT INTO container_members(container_id,parcel_id,added_at) VALUES (?,?,?) ON CONFLICT(container_id,parcel_id) DO NOTHING`),
			containerID, pid, db.FormatTime(now)); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) RemoveMembers(ctx context.Context, q db.Querier, containerID string, parcelIDs []string) error {
	for _, pid := range uniqueSorted(parcelIDs) {
		if _, err := r.querier(q).ExecContext(ctx, r.q(`DELETE FROM container_members WHERE container_id=? AND parcel_id=?`), containerID, pid); err != nil {
			return err
		}
	}
	return nil
}

// GetContainer loads a container with its members sorted by id.
func (r Repo) GetContainer(ctx context.Context, q db.Querier, id string) (domain.Container, error) {
	var (
		c         domain.Container
		createdAt string
	)
	err := r.querier(q).QueryRowContext(ctx, r.q(`SELECT id, created_at FROM containers WHERE id=?`), id).Scan(&c.ID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Container{}, ErrNotFound
	}
	if err != nil {
		return domain.Container{}, err
	}
	if c.CreatedAt, err = db.ParseTime(createdAt); err != nil {
		return domain.Container{}, err
	}
	members, err := r.members(ctx, q, []string{id})
	if err != nil {
		return domain.Container{}, err
	}
	c.Members = members[id]
	if c.Members == nil {
		c.Members = []string{}
	}
	return c, nil
}

func (r Repo) ListContainers(ctx context.Context, q db.Querier) ([]domain.Container, error) {
	rows, err := r.querier(q).QueryContext(ctx, r.q(`SELECT id, created_at FROM containers ORDER BY id`))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []domain.Container{}
	var ids []string
	for rows.Next() {
		var (
			c         domain.Container
			createdAt string
		)
		if err := rows.Scan(&c.ID, &createdAt); err != nil {
			return nil, err
		}
		if c.CreatedAt, err = db.ParseTime(createdAt); err != nil {
			return nil, err
		}
		items = append(items, c)
		ids = append(ids, c.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	members, err := r.members(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].Members = members[items[i].ID]
		if items[i].Members == nil {
			items[i].Members = []string{}
		}
	}
	return items, nil
}

func (r Repo) members(ctx context.Context, q db.Querier, containerIDs []string) (map[string][]string, error) {
	out := map[string][]string{}
	if len(containerIDs) == 0 {
		return out, nil
	}
	rows, err := r.querier(q).QueryContext(ctx, r.q(`SELECT container_id, parcel_id FROM container_members WHERE container_id IN (`+placeholders(len(containerIDs))+`) ORDER BY container_id, parcel_id`),
		stringArgs(containerIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var cid, pid string
		if err := rows.Scan(&cid, &pid); err != nil {
			return nil, err
		}
		out[cid] = append(out[cid], pid)
	}
	return out, rows.Err()
}

// DeleteContainer removes the container and its membership rows. Member
// parcels are untouched.
func (r Repo) DeleteContainer(ctx context.Context, q db.Querier, id string) error {
	if _, err := r.querier(q).ExecContext(ctx, r.q(`DELETE FROM container_members WHERE container_id=?`), id); err != nil {
		return err
	}
	res, err := r.querier(q).ExecContext(ctx, r.q(`DELETE FROM containers WHERE id=?`), id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}
