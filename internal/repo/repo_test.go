package repo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parceltrack/internal/db"
	"parceltrack/internal/domain"
	"parceltrack/internal/migrate"
)

func newTestRepo(t *testing.T) Repo {
	t.Helper()
	ctx := context.Background()
	conn, dialect, err := db.Open(ctx, db.Config{Driver: db.DriverSQLite, DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(ctx, conn, dialect))
	return Repo{DB: conn, Dialect: dialect}
}

func insertParcel(t *testing.T, r Repo, id string, state domain.ParcelState, at time.Time) {
	t.Helper()
	require.NoError(t, r.InsertParcel(context.Background(), nil, domain.Parcel{
		ID: id, CurrentState: state, CreatedAt: at, LastEventAt: at,
	}))
}

func TestInsertParcelDuplicateIsUniqueViolation(t *testing.T) {
	r := newTestRepo(t)
	now := time.Now().UTC()
	insertParcel(t, r, "PKG1", domain.StateReceived, now)

	err := r.InsertParcel(context.Background(), nil, domain.Parcel{ID: "PKG1", CurrentState: domain.StateReceived, CreatedAt: now, LastEventAt: now})
	require.Error(t, err)
	assert.True(t, db.IsUniqueViolation(err))
}

func TestListParcelsOrderingAndPaging(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	insertParcel(t, r, "A", domain.StateReceived, base.Add(2*time.Minute))
	insertParcel(t, r, "B", domain.StateReceived, base.Add(1*time.Minute))
	insertParcel(t, r, "C", domain.StateInWarehouseA, base.Add(2*time.Minute))

	items, total, err := r.ListParcels(ctx, nil, ParcelFilter{Sort: SortLastEvent, Desc: true, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, []string{"C", "A", "B"}, parcelIDs(items))

	items, _, err = r.ListParcels(ctx, nil, ParcelFilter{Sort: SortID, Desc: false, Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C"}, parcelIDs(items))

	items, total, err = r.ListParcels(ctx, nil, ParcelFilter{State: domain.StateReceived, Sort: SortID, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, []string{"A", "B"}, parcelIDs(items))
}

func TestSetParcelStateMissing(t *testing.T) {
	r := newTestRepo(t)
	err := r.SetParcelState(context.Background(), nil, "nope", domain.StateInWarehouseA, time.Now())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestContainerMembershipUnion(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, r.EnsureContainer(ctx, nil, "C1", now))
	require.NoError(t, r.AddMembers(ctx, nil, "C1", []string{"P2", "P1", "P1", " "}, now))
	require.NoError(t, r.EnsureContainer(ctx, nil, "C1", now.Add(time.Hour)))
	require.NoError(t, r.AddMembers(ctx, nil, "C1", []string{"P3", "P2"}, now))

	c, err := r.GetContainer(ctx, nil, "C1")
	require.NoError(t, err)
	assert.Equal(t, []string{"P1", "P2", "P3"}, c.Members)
	assert.True(t, c.CreatedAt.Equal(now))

	require.NoError(t, r.RemoveMembers(ctx, nil, "C1", []string{"P2"}))
	all, err := r.ListContainers(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, []string{"P1", "P3"}, all[0].Members)

	require.NoError(t, r.DeleteContainer(ctx, nil, "C1"))
	_, err = r.GetContainer(ctx, nil, "C1")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, r.DeleteContainer(ctx, nil, "C1"), ErrNotFound)
}

func TestIssueSummariesPrefersDerivedID(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, r.InsertIssue(ctx, nil, domain.Issue{ID: "legacy-1", ParcelID: "PKG1", Type: "Damaged", Description: "x", Status: domain.IssueOpen, CreatedAt: now}))
	require.NoError(t, r.InsertIssue(ctx, nil, domain.Issue{ID: "PKG1-IN", ParcelID: "PKG1", Type: "Damaged", Description: "y", Status: domain.IssueOpen, CreatedAt: now.Add(time.Second)}))

	sums, err := r.IssueSummaries(ctx, nil, []string{"PKG1", "PKG2"})
	require.NoError(t, err)
	require.Contains(t, sums, "PKG1")
	assert.NotContains(t, sums, "PKG2")
	assert.Equal(t, 2, sums["PKG1"].Count)
	assert.Equal(t, "PKG1-IN", sums["PKG1"].IssueID)

	p := domain.Parcel{ID: "PKG1", CurrentState: domain.StateReceived, CreatedAt: now, LastEventAt: now}
	require.NoError(t, r.InsertParcel(ctx, nil, p))
	got, err := r.GetParcel(ctx, nil, "PKG1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.IssueCount)
}

func TestAttachmentsRoundTrip(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, r.InsertIssue(ctx, nil, domain.Issue{ID: "PKG1-IN", ParcelID: "PKG1", Type: "Lost", Description: "gone", Status: domain.IssueOpen, CreatedAt: now}))

	require.NoError(t, r.InsertAttachments(ctx, nil, "PKG1-IN", []domain.Attachment{
		{URL: "http://files/a", OriginalName: "a.jpg", Key: "issues/PKG1-IN/a", AddedAt: now},
		{URL: "http://files/b", OriginalName: "b.jpg", Key: "issues/PKG1-IN/b", AddedAt: now},
	}))
	atts, err := r.ListAttachments(ctx, nil, "PKG1-IN")
	require.NoError(t, err)
	require.Len(t, atts, 2)
	assert.Equal(t, "a.jpg", atts[0].OriginalName)
	assert.Equal(t, "issues/PKG1-IN/b", atts[1].Key)

	require.NoError(t, r.DeleteAttachments(ctx, nil, "PKG1-IN"))
	atts, err = r.ListAttachments(ctx, nil, "PKG1-IN")
	require.NoError(t, err)
	assert.Empty(t, atts)
}

func TestAPIKeysHashedLookup(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, r.InsertAPIKey(ctx, nil, domain.APIKey{
		ID: "k1", ActorID: "ops-bot", Name: "ci", Roles: []string{"operator"}, KeyHash: HashAPIKey("secret-value"),
	}))

	key, err := r.GetAPIKeyByHash(ctx, HashAPIKey(" secret-value "))
	require.NoError(t, err)
	assert.Equal(t, "ops-bot", key.ActorID)
	assert.Equal(t, []string{"operator"}, key.Roles)

	keys, err := r.ListAPIKeys(ctx, "ops-bot")
	require.NoError(t, err)
	assert.Len(t, keys, 1)

	require.NoError(t, r.DeleteAPIKey(ctx, "k1"))
	_, err = r.GetAPIKeyByHash(ctx, HashAPIKey("secret-value"))
	require.ErrorIs(t, err, ErrNotFound)
}

func parcelIDs(items []domain.Parcel) []string {
	out := make([]string, 0, len(items))
	for _, p := range items {
		out = append(out, p.ID)
	}
	return out
}
