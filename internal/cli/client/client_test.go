package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mr-karan/certwatch/internal/cli/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(&config.Config{
		Server: config.ServerConfig{URL: server.URL, Timeout: 10 * time.Second},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return client
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"valid config", "https://example.com", false},
		{"missing URL", "", true},
		{"URL with trailing slash", "https://example.com/", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(&config.Config{
				Server: config.ServerConfig{URL: tt.url, Timeout: 30 * time.Second},
			})
			if tt.wantErr {
				if err == nil {
					t.Error("New() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("New() unexpected error: %v", err)
			}
			if client.baseURL != "https://example.com" {
				t.Errorf("New() baseURL = %q, want trailing slash trimmed", client.baseURL)
			}
		})
	}
}

func TestClient_DoJSON_Error(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"status":     "error",
			"message":    "invalid limit: must be between 1 and 500",
			"error_type": "ValidationError",
		})
	})

	err := client.DoJSON(context.Background(), RequestOptions{
		Method: http.MethodGet,
		Path:   "/test",
	}, nil)
	if err == nil {
		t.Fatal("DoJSON() expected error, got nil")
	}

	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("DoJSON() error type = %T, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Errorf("APIError.StatusCode = %d, want %d", apiErr.StatusCode, http.StatusBadRequest)
	}
	if apiErr.ErrorType != "ValidationError" {
		t.Errorf("APIError.ErrorType = %q, want %q", apiErr.ErrorType, "ValidationError")
	}
}

func TestClient_DoJSON_NonEnvelopeError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"database is locked"}`))
	})

	err := client.DoJSON(context.Background(), RequestOptions{Method: http.MethodGet, Path: "/x"}, nil)
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("DoJSON() error type = %T, want *APIError", err)
	}
	if apiErr.Message != `{"error":"database is locked"}` {
		t.Errorf("APIError.Message = %q, want raw body", apiErr.Message)
	}
}

func TestClient_SendNotifications(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("SendNotifications() method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/api/v1/admin/notifications/send" {
			t.Errorf("SendNotifications() path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"status":"success","data":{
			"degraded":true,
			"report":{"triggered_by":"admin","checked":2,"sent":1,"skipped":0,"failed":1,
				"results":[{"item":{"id":"c1","name":"api.example.com","type":"certificate"},"outcome":"sent"},
				           {"item":{"id":"s1","name":"svc-deploy","type":"service_id"},"outcome":"no_contacts","error":"No contacts found"}]},
			"history":[{"id":"h1","item_id":"c1","status":"success","team_name":"Platform"}]}}`))
	})

	res, err := client.SendNotifications(context.Background())
	if err != nil {
		t.Fatalf("SendNotifications() error = %v", err)
	}
	if !res.Degraded {
		t.Error("SendNotifications() degraded = false, want true")
	}
	if res.Report.Sent != 1 || res.Report.Failed != 1 {
		t.Errorf("SendNotifications() report = %+v", res.Report)
	}
	if len(res.Report.Results) != 2 || res.Report.Results[1].Error != "No contacts found" {
		t.Errorf("SendNotifications() results = %+v", res.Report.Results)
	}
	if len(res.History) != 1 || res.History[0].TeamName != "Platform" {
		t.Errorf("SendNotifications() history = %+v", res.History)
	}
}

func TestClient_ListHistory(t *testing.T) {
	var gotLimit string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotLimit = r.URL.Query().Get("limit")
		w.Write([]byte(`{"status":"success","data":[{"id":"h1","item_id":"c1","days_until_expiry":30}]}`))
	})

	rows, err := client.ListHistory(context.Background(), 25)
	if err != nil {
		t.Fatalf("ListHistory() error = %v", err)
	}
	if gotLimit != "25" {
		t.Errorf("ListHistory() limit param = %q, want 25", gotLimit)
	}
	if len(rows) != 1 || rows[0].DaysUntilExpiry != 30 {
		t.Errorf("ListHistory() rows = %+v", rows)
	}

	if _, err := client.ListHistory(context.Background(), 0); err != nil {
		t.Fatalf("ListHistory(0) error = %v", err)
	}
	if gotLimit != "" {
		t.Errorf("ListHistory(0) sent limit %q, want none", gotLimit)
	}
}

func TestClient_ListUpcoming(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/notifications/upcoming" {
			t.Errorf("ListUpcoming() path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"status":"success","data":[
			{"id":"c1","name":"api.example.com","type":"certificate","days_remaining":32,"next_notification_day":30,"days_until_next_notification":2},
			{"id":"c2","name":"old.example.com","type":"certificate","days_remaining":1,"next_notification_day":1,"days_until_next_notification":0}]}`))
	})

	items, err := client.ListUpcoming(context.Background())
	if err != nil {
		t.Fatalf("ListUpcoming() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("ListUpcoming() count = %d, want 2", len(items))
	}
	if items[0].NextNotificationDay == nil || *items[0].NextNotificationDay != 30 {
		t.Errorf("ListUpcoming()[0].NextNotificationDay = %v, want 30", items[0].NextNotificationDay)
	}
}

func TestClient_GetMeta(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","data":{"version":"v1.2.0","smtp_configured":true,"thresholds":[90,60,30,15,7,1]}}`))
	})

	meta, err := client.GetMeta(context.Background())
	if err != nil {
		t.Fatalf("GetMeta() error = %v", err)
	}
	if meta.Version != "v1.2.0" || !meta.SMTPConfigured || len(meta.Thresholds) != 6 {
		t.Errorf("GetMeta() = %+v", meta)
	}
}
