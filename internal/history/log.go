package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"parceltrack/internal/db"
	"parceltrack/internal/domain"
)

// Kind names the entity family a timeline belongs to.
type Kind string

const (
	KindParcel Kind = "parcel"
	KindIssue  Kind = "issue"
)

// ErrEmptyEvent is returned when appending an event without payload.
var ErrEmptyEvent = errors.New("history event has no payload")

// Log is the append-only event store. Rows are ordered by their
// autoincrement id, which is the insertion sequence.
type Log struct {
	DB      *sql.DB
	Dialect db.Dialect
}

// querier falls back to the log's own handle when no transaction is given.
func (l Log) querier(q db.Querier) db.Querier {
	if q == nil {
		return l.DB
	}
	return q
}

// Append writes events in the given order. Callers pass the transaction that
// also updates the owning record.
func (l Log) Append(ctx context.Context, q db.Querier, kind Kind, entityID string, events ...domain.HistoryEvent) error {
	if entityID == "" {
		return errors.New("entity id required")
	}
	for _, evt := range events {
		if evt.Empty() {
			return ErrEmptyEvent
		}
		if evt.Timestamp.IsZero() {
			return errors.New("history event timestamp required")
		}
		var attachments any
		if len(evt.Attachments) > 0 {
			data, err := json.Marshal(evt.Attachments)
			if err != nil {
				return fmt.Errorf("marshal attachments: %w", err)
			}
			attachments = string(data)
		}
		_, err := l.querier(q).ExecContext(ctx, l.Dialect.Rebind(`INSERT INTO history_events(entity_kind,entity_id,state,status,comment,attachments_json,ts) VALUES (?,?,?,?,?,?,?)`),
			string(kind), entityID, nullable(string(evt.State)), nullable(string(evt.Status)), nullable(evt.Comment), attachments, db.FormatTime(evt.Timestamp))
		if err != nil {
			return fmt.Errorf("append %s history: %w", kind, err)
		}
	}
	return nil
}

// List returns an entity's timeline in insertion order.
func (l Log) List(ctx context.Context, q db.Querier, kind Kind, entityID string) ([]domain.HistoryEvent, error) {
	byID, err := l.ListMany(ctx, q, kind, []string{entityID})
	if err != nil {
		return nil, err
	}
	events := byID[entityID]
	if events == nil {
		events = []domain.HistoryEvent{}
	}
	return events, nil
}

// ListMany loads timelines for several entities with one query.
func (l Log) ListMany(ctx context.Context, q db.Querier, kind Kind, entityIDs []string) (map[string][]domain.HistoryEvent, error) {
	out := map[string][]domain.HistoryEvent{}
	if len(entityIDs) == 0 {
		return out, nil
	}
	args := make([]any, 0, len(entityIDs)+1)
	args = append(args, string(kind))
	for _, id := range entityIDs {
		args = append(args, id)
	}
	query := `SELECT entity_id, COALESCE(state,''), COALESCE(status,''), COALESCE(comment,''), COALESCE(attachments_json,''), ts
FROM history_events WHERE entity_kind=? AND entity_id IN (` + placeholders(len(entityIDs)) + `) ORDER BY id`
	rows, err := l.querier(q).QueryContext(ctx, l.Dialect.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			entityID, state, status, comment, attachments, ts string
		)
		if err := rows.Scan(&entityID, &state, &status, &comment, &attachments, &ts); err != nil {
			return nil, err
		}
		evt := domain.HistoryEvent{
			State:   domain.ParcelState(state),
			Status:  domain.IssueStatus(status),
			Comment: comment,
		}
		if attachments != "" {
			if err := json.Unmarshal([]byte(attachments), &evt.Attachments); err != nil {
				return nil, fmt.Errorf("decode attachments: %w", err)
			}
		}
		if evt.Timestamp, err = db.ParseTime(ts); err != nil {
			return nil, fmt.Errorf("decode history timestamp: %w", err)
		}
		out[entityID] = append(out[entityID], evt)
	}
	return out, rows.Err()
}

// Delete drops an entity's timeline; used only when the entity itself is removed.
func (l Log) Delete(ctx context.Context, q db.Querier, kind Kind, entityID string) error {
	_, err := l.querier(q).ExecContext(ctx, l.Dialect.Rebind(`DELETE FROM history_events WHERE entity_kind=? AND entity_id=?`), string(kind), entityID)
	return err
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
