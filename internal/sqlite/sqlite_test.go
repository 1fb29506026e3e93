package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr-karan/certwatch/internal/config"
	"github.com/mr-karan/certwatch/pkg/logger"
	"github.com/mr-karan/certwatch/pkg/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(Options{
		Logger: logger.Discard(),
		Config: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "certwatch.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedTeam(t *testing.T, db *DB, id string) *models.Team {
	t.Helper()
	team := &models.Team{
		ID:         id,
		Name:       "team-" + id,
		Alert1:     "a@x.com,b@x.com",
		Escalation: "oncall@x.com",
	}
	require.NoError(t, db.CreateTeam(context.Background(), team))
	return team
}

func TestNewRunsMigrationsIdempotently(t *testing.T) {
	path := filepath.Join(t.TempDir(), "certwatch.db")
	opts := Options{Logger: logger.Discard(), Config: config.SQLiteConfig{Path: path}}

	first, err := New(opts)
	require.NoError(t, err)
	require.NoError(t, first.Ping())
	require.NoError(t, first.Close())

	second, err := New(opts)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestTeams(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	team := seedTeam(t, db, "t1")
	assert.False(t, team.CreatedAt.IsZero())

	got, err := db.GetTeam(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "team-t1", got.Name)
	assert.Equal(t, "a@x.com,b@x.com", got.Alert1)
	assert.Empty(t, got.Alert2)
	assert.Equal(t, "oncall@x.com", got.Escalation)

	_, err = db.GetTeam(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	got.Alert3 = "lead@x.com"
	require.NoError(t, db.UpdateTeamContacts(ctx, got))
	got, err = db.GetTeam(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "lead@x.com", got.Alert3)

	teams, err := db.ListTeams(ctx)
	require.NoError(t, err)
	assert.Len(t, teams, 1)
}

func TestListExpiringCertificates(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedTeam(t, db, "t1")

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	certs := []*models.Certificate{
		{ID: "past", CommonName: "old.example.com", TeamID: "t1", ValidTo: now.Add(-time.Hour)},
		{ID: "soon", CommonName: "example.com", TeamID: "t1", ValidTo: now.AddDate(0, 0, 30)},
		{ID: "edge", CommonName: "edge.example.com", TeamID: "t1", ValidTo: now.AddDate(0, 0, 90)},
		{ID: "far", CommonName: "far.example.com", TeamID: "t1", ValidTo: now.AddDate(0, 0, 91)},
		{ID: "gone", CommonName: "gone.example.com", TeamID: "t1", ValidTo: now.AddDate(0, 0, 7)},
	}
	for _, c := range certs {
		require.NoError(t, db.CreateCertificate(ctx, c))
	}
	require.NoError(t, db.SoftDeleteCertificate(ctx, "gone", now))

	got, err := db.ListExpiringCertificates(ctx, now, now.AddDate(0, 0, 90))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "soon", got[0].ID)
	assert.Equal(t, "edge", got[1].ID)
	assert.True(t, got[0].ValidTo.Equal(now.AddDate(0, 0, 30)))

	deleted, err := db.GetCertificate(ctx, "gone")
	require.NoError(t, err)
	require.NotNil(t, deleted.DeletedAt)

	err = db.SoftDeleteCertificate(ctx, "gone", now)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestListExpiringServiceIDs(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedTeam(t, db, "t1")

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, db.CreateServiceID(ctx, &models.ServiceID{ID: "s1", Name: "svc-batch", RenewingTeamID: "t1", ExpDate: now.AddDate(0, 0, 15)}))
	require.NoError(t, db.CreateServiceID(ctx, &models.ServiceID{ID: "s2", Name: "svc-old", RenewingTeamID: "t1", ExpDate: now.AddDate(0, 0, -1)}))

	got, err := db.ListExpiringServiceIDs(ctx, now, now.AddDate(0, 0, 90))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "svc-batch", got[0].Name)
	assert.Equal(t, "t1", got[0].RenewingTeamID)
}

func TestNotificationHistory(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedTeam(t, db, "t1")

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	failed := &models.NotificationHistory{
		ItemID:           "c1",
		ItemType:         models.ItemTypeCertificate,
		ItemName:         "example.com",
		TeamID:           "t1",
		DaysUntilExpiry:  30,
		NotificationType: models.NotificationTypeExpiryUrgent,
		SentAt:           base,
		Status:           models.NotificationStatusFailed,
		ErrorMessage:     "No contacts found for team",
		TriggeredBy:      models.TriggeredBySystem,
	}
	require.NoError(t, db.InsertNotificationHistory(ctx, failed))

	exists, err := db.NotificationExists(ctx, "c1", 30, models.NotificationStatusSuccess)
	require.NoError(t, err)
	assert.False(t, exists)

	success := &models.NotificationHistory{
		ItemID:           "c1",
		ItemType:         models.ItemTypeCertificate,
		ItemName:         "example.com",
		TeamID:           "t1",
		DaysUntilExpiry:  30,
		NotificationType: models.NotificationTypeExpiryUrgent,
		Recipients:       []string{"a@x.com", "b@x.com"},
		SentAt:           base.Add(time.Minute),
		Status:           models.NotificationStatusSuccess,
		TriggeredBy:      models.TriggeredByAdmin,
	}
	require.NoError(t, db.InsertNotificationHistory(ctx, success))

	exists, err = db.NotificationExists(ctx, "c1", 30, models.NotificationStatusSuccess)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = db.NotificationExists(ctx, "c1", 15, models.NotificationStatusSuccess)
	require.NoError(t, err)
	assert.False(t, exists)

	dup := *success
	dup.ID = ""
	err = db.InsertNotificationHistory(ctx, &dup)
	assert.True(t, errors.Is(err, ErrDuplicateSuccess), "got %v", err)

	// Failed rows are not constrained.
	again := *failed
	again.ID = ""
	again.SentAt = base.Add(2 * time.Minute)
	require.NoError(t, db.InsertNotificationHistory(ctx, &again))

	history, err := db.ListNotificationHistory(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, again.ID, history[0].ID)
	assert.Equal(t, success.ID, history[1].ID)
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, history[1].Recipients)
	assert.Equal(t, "team-t1", history[1].TeamName)
	assert.Equal(t, models.TriggeredByAdmin, history[1].TriggeredBy)
	assert.Equal(t, []string{}, history[2].Recipients)
	assert.Equal(t, "No contacts found for team", history[2].ErrorMessage)

	limited, err := db.ListNotificationHistory(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestNotificationHistoryUnknownTeam(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.InsertNotificationHistory(ctx, &models.NotificationHistory{
		ItemID:           "s9",
		ItemType:         models.ItemTypeServiceID,
		ItemName:         "svc",
		TeamID:           "deleted-team",
		DaysUntilExpiry:  7,
		NotificationType: models.NotificationTypeExpiryUrgent,
		Status:           models.NotificationStatusFailed,
		TriggeredBy:      models.TriggeredBySystem,
	}))

	history, err := db.ListNotificationHistory(ctx, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Empty(t, history[0].TeamName)
}

func TestTryAcquireLease(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	ttl := 10 * time.Minute

	ok, err := db.TryAcquireLease(ctx, "notifications", "node-a", ttl, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = db.TryAcquireLease(ctx, "notifications", "node-b", ttl, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok, "lease held by node-a should block node-b")

	ok, err = db.TryAcquireLease(ctx, "notifications", "node-a", ttl, now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok, "holder can renew")

	ok, err = db.TryAcquireLease(ctx, "notifications", "node-b", ttl, now.Add(13*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok, "expired lease can be taken over")

	require.NoError(t, db.ReleaseLease(ctx, "notifications", "node-b"))
	ok, err = db.TryAcquireLease(ctx, "notifications", "node-a", ttl, now.Add(14*time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)
}
