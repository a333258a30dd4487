package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// MockEOSServer creates a test server that mocks Epic Online Services responses
type MockEOSServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
}

// NewMockEOSServer creates a new mock EOS API server
func NewMockEOSServer(t *testing.T) *MockEOSServer {
	t.Helper()
	m := &MockEOSServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		if handler, ok := m.Handlers[key]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// MockToken adds a handler for the oauth token endpoint
func (m *MockEOSServer) MockToken(token string) {
	m.Handlers["/auth/v1/oauth/token"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": token,
			"token_type":   "bearer",
			"expires_in":   7200,
		})
	}
}

// MockServerList adds a handler for the CDN official server list
func (m *MockEOSServer) MockServerList(entries []map[string]any) {
	m.Handlers["/servers/asa/officialserverlist.json"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(entries)
	}
}

// MockSession adds a handler for a matchmaking session lookup
func (m *MockEOSServer) MockSession(deploymentID, sessionID string, body map[string]any) {
	m.Handlers["/matchmaking/v1/"+deploymentID+"/sessions/"+sessionID] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}
}

// MockIdentitySearch adds a handler for the product-users search endpoint
func (m *MockEOSServer) MockIdentitySearch(productUsers map[string]any) {
	m.Handlers["/user/v9/product-users/search"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"productUsers": productUsers})
	}
}
