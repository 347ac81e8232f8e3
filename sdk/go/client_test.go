package parceltracksdk

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parceltrack/internal/blob/memory"
	"parceltrack/internal/config"
	"parceltrack/internal/db"
	"parceltrack/internal/domain"
	"parceltrack/internal/engine"
	"parceltrack/internal/migrate"
	"parceltrack/internal/repo"
	"parceltrack/internal/server"
)

func newAPI(t *testing.T) (*httptest.Server, engine.Engine) {
	t.Helper()
	ctx := context.Background()
	conn, dialect, err := db.Open(ctx, db.Config{Driver: db.DriverSQLite, DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(ctx, conn, dialect))
	cfg := config.Default()
	e, err := engine.New(conn, dialect, memory.New(), cfg)
	require.NoError(t, err)
	handler, err := server.New(server.Config{
		Engine: e,
		Auth:   server.AuthConfig{AllowAnonymous: true, AnonymousRole: "operator"},
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, e
}

func TestClientParcelsAndContainers(t *testing.T) {
	srv, _ := newAPI(t)
	c := New(srv.URL)
	ctx := context.Background()

	for _, id := range []string{"P1", "P2"} {
		require.NoError(t, c.ReceiveParcel(ctx, id))
	}
	err := c.ReceiveParcel(ctx, "P1")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, "parcel_exists", apiErr.Code)

	p, err := c.TransitionParcel(ctx, "P1", "InTransitInternational")
	require.NoError(t, err)
	assert.Equal(t, "InTransitInternational", p.CurrentState)
	assert.Len(t, p.History, 2)

	page, err := c.ListParcels(ctx, ListParcelsOptions{Sort: "id", Order: "asc", PageSize: 1, Page: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, page.TotalItems)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "P2", page.Items[0].ID)

	_, err = c.AddContainerMembers(ctx, "BOX", []string{"P1", "P2"})
	require.NoError(t, err)
	res, err := c.PropagateContainerState(ctx, "BOX", "InWarehouseB")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Modified)
	assert.Empty(t, res.Failures)

	box, err := c.RemoveContainerMembers(ctx, "BOX", []string{"P2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"P1"}, box.Members)

	err = c.DeleteContainer(ctx, "BOX")
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
}

func TestClientIssues(t *testing.T) {
	srv, e := newAPI(t)
	c := New(srv.URL)
	ctx := context.Background()

	id, err := c.CreateIssue(ctx, "P9", "Damaged", "wet box", File{Name: "photo.jpg", Content: strings.NewReader("jpeg")})
	require.NoError(t, err)
	assert.Equal(t, "P9-IN", id)

	is, err := c.UpdateIssue(ctx, id, "InProgress", "drying", File{Name: "note.txt", Content: strings.NewReader("n")})
	require.NoError(t, err)
	assert.Equal(t, "InProgress", is.Status)
	require.Len(t, is.History, 5)
	assert.Equal(t, "InProgress", is.History[2].Status)
	assert.Equal(t, "drying", is.History[3].Comment)
	assert.Len(t, is.History[4].Attachments, 1)
	assert.Len(t, is.Attachments, 2)

	_, err = c.AddIssueComment(ctx, id, "dry now")
	require.NoError(t, err)
	is, err = c.ChangeIssueStatus(ctx, id, "Resolved")
	require.NoError(t, err)
	assert.Equal(t, "Resolved", is.Status)

	items, err := c.ListIssues(ctx, "Resolved", "")
	require.NoError(t, err)
	assert.Len(t, items, 1)

	require.NoError(t, c.ReceiveParcel(ctx, "P9"))
	details, err := c.IssueDetails(ctx, []string{"P9"})
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.Equal(t, 1, details[0].IssueCount)

	require.NoError(t, e.Repo.InsertAPIKey(ctx, nil, domain.APIKey{
		ID: "k1", ActorID: "supervisor", Roles: []string{"admin"}, KeyHash: repo.HashAPIKey("sup-key"),
	}))
	admin := New(srv.URL)
	admin.APIKey = "sup-key"
	require.NoError(t, admin.DeleteIssue(ctx, id))
	_, err = c.GetIssue(ctx, id)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}
