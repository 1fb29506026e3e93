package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mr-karan/certwatch/internal/config"
	"github.com/mr-karan/certwatch/internal/expiry"
	"github.com/mr-karan/certwatch/internal/notifier"
	"github.com/mr-karan/certwatch/pkg/logger"
	"github.com/mr-karan/certwatch/pkg/models"
)

var testNow = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeRunner struct {
	report *notifier.RunReport
	err    error
	calls  []models.TriggeredBy
}

func (f *fakeRunner) Run(_ context.Context, triggeredBy models.TriggeredBy) (*notifier.RunReport, error) {
	f.calls = append(f.calls, triggeredBy)
	return f.report, f.err
}

type fakeHistory struct {
	rows      []*models.NotificationHistoryView
	err       error
	lastLimit int
}

func (f *fakeHistory) ListNotificationHistory(_ context.Context, limit int) ([]*models.NotificationHistoryView, error) {
	f.lastLimit = limit
	return f.rows, f.err
}

type fakeUpcoming struct {
	items []models.UpcomingExpiry
	at    time.Time
}

func (f *fakeUpcoming) Upcoming(_ context.Context, now time.Time, _ expiry.ThresholdSet) ([]models.UpcomingExpiry, error) {
	f.at = now
	return f.items, nil
}

type fakeHealth struct{ err error }

func (f fakeHealth) Ping() error { return f.err }

type fixture struct {
	srv      *Server
	runner   *fakeRunner
	history  *fakeHistory
	upcoming *fakeUpcoming
}

func newFixture(t *testing.T, health HealthChecker) *fixture {
	t.Helper()
	f := &fixture{
		runner:   &fakeRunner{report: &notifier.RunReport{Checked: 3, Sent: 1, Skipped: 2, Results: []notifier.ItemResult{}}},
		history:  &fakeHistory{},
		upcoming: &fakeUpcoming{},
	}
	cfg := config.Default()
	f.srv = New(Options{
		Config:         cfg.Server,
		Notifications:  cfg.Notifications,
		Runner:         f.runner,
		History:        f.history,
		Upcoming:       f.upcoming,
		Thresholds:     expiry.DefaultThresholds(),
		Health:         health,
		SMTPConfigured: true,
		Logger:         logger.Discard(),
		Version:        "test",
		Now:            func() time.Time { return testNow },
	})
	return f
}

func (f *fixture) do(t *testing.T, method, target string) (int, map[string]any) {
	t.Helper()
	resp, err := f.srv.App().Test(httptest.NewRequest(method, target, nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(body) > 0 {
		require.NoError(t, json.Unmarshal(body, &out), string(body))
	}
	return resp.StatusCode, out
}

func TestCheckNotifications(t *testing.T) {
	f := newFixture(t, nil)

	status, body := f.do(t, http.MethodGet, "/api/v1/notifications/check")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, false, body["degraded"])
	assert.EqualValues(t, 3, body["checked"])
	assert.EqualValues(t, 1, body["sent"])
	assert.EqualValues(t, 2, body["skipped"])
	assert.EqualValues(t, 0, body["failed"])
	assert.Equal(t, []models.TriggeredBy{models.TriggeredBySystem}, f.runner.calls)
}

func TestCheckNotificationsDegraded(t *testing.T) {
	f := newFixture(t, nil)
	f.runner.report = &notifier.RunReport{Checked: 2, Failed: 1}

	status, body := f.do(t, http.MethodGet, "/api/v1/notifications/check")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, true, body["degraded"])
}

func TestCheckNotificationsSystemicError(t *testing.T) {
	f := newFixture(t, nil)
	f.runner.err = errors.New("database is locked")

	status, body := f.do(t, http.MethodGet, "/api/v1/notifications/check")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "database is locked", body["error"])
	assert.NotContains(t, body, "success")
}

func TestSendNotifications(t *testing.T) {
	f := newFixture(t, nil)
	f.history.rows = []*models.NotificationHistoryView{
		{NotificationHistory: models.NotificationHistory{ID: "h1", ItemID: "c1", Status: models.NotificationStatusSuccess}, TeamName: "Platform"},
	}

	status, body := f.do(t, http.MethodPost, "/api/v1/admin/notifications/send")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, []models.TriggeredBy{models.TriggeredByAdmin}, f.runner.calls)

	data := body["data"].(map[string]any)
	assert.Equal(t, false, data["degraded"])
	assert.Contains(t, data, "report")
	history := data["history"].([]any)
	require.Len(t, history, 1)
	assert.Equal(t, "Platform", history[0].(map[string]any)["team_name"])
	assert.Equal(t, models.DefaultHistoryLimit, f.history.lastLimit)
}

func TestSendNotificationsRequiresPost(t *testing.T) {
	f := newFixture(t, nil)

	status, _ := f.do(t, http.MethodGet, "/api/v1/admin/notifications/send")
	assert.NotEqual(t, http.StatusOK, status)
	assert.Empty(t, f.runner.calls)
}

func TestSendNotificationsFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.runner.err = errors.New("boom")

	status, body := f.do(t, http.MethodPost, "/api/v1/admin/notifications/send")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, string(models.GeneralErrorType), body["error_type"])
}

func TestListHistory(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		status    int
		wantLimit int
	}{
		{"default limit", "", http.StatusOK, models.DefaultHistoryLimit},
		{"explicit limit", "?limit=5", http.StatusOK, 5},
		{"max limit", "?limit=500", http.StatusOK, 500},
		{"zero", "?limit=0", http.StatusBadRequest, 0},
		{"too large", "?limit=501", http.StatusBadRequest, 0},
		{"not a number", "?limit=ten", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			status, body := f.do(t, http.MethodGet, "/api/v1/notifications/history"+tt.query)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.wantLimit, f.history.lastLimit)
			if tt.status == http.StatusBadRequest {
				assert.Equal(t, string(models.ValidationErrorType), body["error_type"])
				return
			}
			assert.Equal(t, []any{}, body["data"])
		})
	}
}

func TestListHistoryStoreError(t *testing.T) {
	f := newFixture(t, nil)
	f.history.err = errors.New("disk I/O error")

	status, body := f.do(t, http.MethodGet, "/api/v1/notifications/history")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "error", body["status"])
}

func TestListUpcoming(t *testing.T) {
	f := newFixture(t, nil)
	next := 30
	until := 2
	f.upcoming.items = []models.UpcomingExpiry{{
		ExpiringItem: models.ExpiringItem{
			ID: "c1", Name: "api.example.com", Type: models.ItemTypeCertificate,
			TeamID: "t1", ExpiryDate: testNow.Add(32 * 24 * time.Hour), DaysRemaining: 32,
		},
		NextNotificationDay:       &next,
		DaysUntilNextNotification: &until,
	}}

	status, body := f.do(t, http.MethodGet, "/api/v1/notifications/upcoming")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, testNow, f.upcoming.at)

	items := body["data"].([]any)
	require.Len(t, items, 1)
	item := items[0].(map[string]any)
	assert.Equal(t, "api.example.com", item["name"])
	assert.EqualValues(t, 30, item["next_notification_day"])
	assert.EqualValues(t, 2, item["days_until_next_notification"])
}

func TestMeta(t *testing.T) {
	f := newFixture(t, nil)

	status, body := f.do(t, http.MethodGet, "/api/v1/meta")
	require.Equal(t, http.StatusOK, status)
	data := body["data"].(map[string]any)
	assert.Equal(t, "test", data["version"])
	assert.Equal(t, true, data["smtp_configured"])
	assert.EqualValues(t, 90, data["lookahead_days"])
	assert.Equal(t, []any{90.0, 60.0, 30.0, 15.0, 7.0, 1.0}, data["thresholds"])
}

func TestHealth(t *testing.T) {
	f := newFixture(t, fakeHealth{})
	status, _ := f.do(t, http.MethodGet, "/api/v1/health")
	assert.Equal(t, http.StatusOK, status)

	f = newFixture(t, fakeHealth{err: errors.New("closed")})
	status, body := f.do(t, http.MethodGet, "/api/v1/health")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, string(models.UnavailableErrorType), body["error_type"])
}

func TestUnknownRoute(t *testing.T) {
	f := newFixture(t, nil)
	status, body := f.do(t, http.MethodGet, "/api/v1/nope")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, string(models.NotFoundErrorType), body["error_type"])
}
