package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/arkstatus/arkmon/commands"
	"github.com/arkstatus/arkmon/eos"
	"github.com/arkstatus/arkmon/monitor"
	"github.com/arkstatus/arkmon/testutil"
)

func TestCorrelationHeader(t *testing.T) {
	router := NewRouter(nil, monitor.NewManager(monitor.Deps{}), nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	if rec.Header().Get("X-Correlation-ID") == "" {
		t.Fatal("missing generated correlation id")
	}

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("X-Correlation-ID", "corr-123")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Correlation-ID"); got != "corr-123" {
		t.Fatalf("correlation id = %q, want corr-123", got)
	}
}

func TestCommandEndpoint(t *testing.T) {
	m := testutil.NewMockEOSServer(t)
	m.MockToken("tok")
	m.MockServerList([]map[string]any{
		{"Name": "NA-PVP-2159", "ClusterId": "PVPCrossplay", "NumPlayers": 40},
		{"Name": "NA-PVP-5302", "ClusterId": "PVPCrossplay", "NumPlayers": 55},
	})
	client := &eos.Client{
		APIBase:      m.URL,
		CDNBase:      m.URL,
		DeploymentID: "dep-1",
		Cluster:      "PVPCrossplay",
		Auth: &eos.Authenticator{
			TokenURL:     m.URL + "/auth/v1/oauth/token",
			ClientID:     "client",
			ClientSecret: "secret",
			DeploymentID: "dep-1",
		},
	}
	cmds := &commands.Handler{EOS: client, Cluster: "PVPCrossplay"}
	router := NewRouter(nil, monitor.NewManager(monitor.Deps{}), cmds)

	body := `{"name":"list","options":{"pop":"0","op":">="}}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/commands", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("commands status = %d", rec.Code)
	}
	var resp struct {
		Replies []struct {
			Description string `json:"Description"`
		} `json:"replies"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Replies) != 1 || !strings.Contains(resp.Replies[0].Description, "NA-PVP-5302") {
		t.Fatalf("unexpected replies: %+v", resp.Replies)
	}
}

func TestCommandEndpointUnconfigured(t *testing.T) {
	router := NewRouter(nil, monitor.NewManager(monitor.Deps{}), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/commands", strings.NewReader(`{"name":"server"}`)))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestHealthAndStatus(t *testing.T) {
	database := testutil.SetupTestDB(t)
	router := NewRouter(database, monitor.NewManager(monitor.Deps{}), nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status status = %d", rec.Code)
	}
	var resp struct {
		UptimeSeconds int64           `json:"uptime_seconds"`
		Monitors      []any           `json:"monitors"`
		Sweep         json.RawMessage `json:"sweep"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if resp.Monitors == nil {
		t.Fatal("monitors should be an empty list, not null")
	}
}
