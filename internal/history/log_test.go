package history

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parceltrack/internal/db"
	"parceltrack/internal/domain"
	"parceltrack/internal/migrate"
)

func openTestDB(t *testing.T) (*sql.DB, db.Dialect) {
	t.Helper()
	ctx := context.Background()
	conn, dialect, err := db.Open(ctx, db.Config{Driver: db.DriverSQLite, DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(ctx, conn, dialect))
	return conn, dialect
}

func TestAppendKeepsInsertionOrder(t *testing.T) {
	conn, dialect := openTestDB(t)
	ctx := context.Background()
	l := Log{Dialect: dialect}

	later := time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)
	earlier := later.Add(-time.Hour)

	require.NoError(t, l.Append(ctx, conn, KindParcel, "PKG1", domain.HistoryEvent{State: domain.StateReceived, Timestamp: later}))
	// a skewed clock must not reorder the timeline
	require.NoError(t, l.Append(ctx, conn, KindParcel, "PKG1", domain.HistoryEvent{State: domain.StateInTransitDomesticA, Timestamp: earlier}))

	events, err := l.List(ctx, conn, KindParcel, "PKG1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.StateReceived, events[0].State)
	assert.Equal(t, domain.StateInTransitDomesticA, events[1].State)
	assert.True(t, events[1].Timestamp.Equal(earlier))
}

func TestListFallsBackToOwnHandle(t *testing.T) {
	conn, dialect := openTestDB(t)
	ctx := context.Background()
	l := Log{DB: conn, Dialect: dialect}
	now := time.Now().UTC()

	require.NoError(t, l.Append(ctx, nil, KindIssue, "PKG1-IN", domain.HistoryEvent{Status: domain.IssueOpen, Timestamp: now}))

	events, err := l.List(ctx, nil, KindIssue, "PKG1-IN")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.IssueOpen, events[0].Status)

	byID, err := l.ListMany(ctx, nil, KindIssue, []string{"PKG1-IN"})
	require.NoError(t, err)
	assert.Len(t, byID["PKG1-IN"], 1)

	require.NoError(t, l.Delete(ctx, nil, KindIssue, "PKG1-IN"))
	events, err = l.List(ctx, nil, KindIssue, "PKG1-IN")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestAppendMergedIssueEvents(t *testing.T) {
	conn, dialect := openTestDB(t)
	ctx := context.Background()
	l := Log{Dialect: dialect}
	now := time.Date(2024, 5, 2, 10, 0, 0, 123456789, time.UTC)

	err := l.Append(ctx, conn, KindIssue, "PKG1-IN",
		domain.HistoryEvent{Status: domain.IssueOpen, Timestamp: now},
		domain.HistoryEvent{Comment: "box crushed", Timestamp: now},
		domain.HistoryEvent{Attachments: []string{"http://files/a.jpg", "http://files/b.jpg"}, Timestamp: now},
	)
	require.NoError(t, err)

	events, err := l.List(ctx, conn, KindIssue, "PKG1-IN")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, domain.IssueOpen, events[0].Status)
	assert.Equal(t, "box crushed", events[1].Comment)
	assert.Equal(t, []string{"http://files/a.jpg", "http://files/b.jpg"}, events[2].Attachments)
	for _, evt := range events {
		assert.True(t, evt.Timestamp.Equal(now))
	}

	// parcel timelines are kept apart from issue timelines with the same id
	parcelEvents, err := l.List(ctx, conn, KindParcel, "PKG1-IN")
	require.NoError(t, err)
	assert.Empty(t, parcelEvents)
}

func TestAppendRejectsEmptyEvent(t *testing.T) {
	conn, dialect := openTestDB(t)
	l := Log{Dialect: dialect}

	err := l.Append(context.Background(), conn, KindParcel, "PKG1", domain.HistoryEvent{Timestamp: time.Now()})
	require.ErrorIs(t, err, ErrEmptyEvent)

	err = l.Append(context.Background(), conn, KindParcel, "PKG1", domain.HistoryEvent{State: domain.StateReceived})
	require.Error(t, err)
}

func TestListManyAndDelete(t *testing.T) {
	conn, dialect := openTestDB(t)
	ctx := context.Background()
	l := Log{Dialect: dialect}
	now := time.Now().UTC()

	for _, id := range []string{"A", "B", "C"} {
		require.NoError(t, l.Append(ctx, conn, KindParcel, id, domain.HistoryEvent{State: domain.StateReceived, Timestamp: now}))
	}
	require.NoError(t, l.Append(ctx, conn, KindParcel, "A", domain.HistoryEvent{State: domain.StateInWarehouseA, Timestamp: now}))

	byID, err := l.ListMany(ctx, conn, KindParcel, []string{"A", "B", "missing"})
	require.NoError(t, err)
	assert.Len(t, byID["A"], 2)
	assert.Len(t, byID["B"], 1)
	assert.NotContains(t, byID, "C")
	assert.NotContains(t, byID, "missing")

	require.NoError(t, l.Delete(ctx, conn, KindParcel, "A"))
	events, err := l.List(ctx, conn, KindParcel, "A")
	require.NoError(t, err)
	assert.Empty(t, events)
}
