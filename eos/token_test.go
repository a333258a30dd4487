package eos

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAuthenticatorToken(t *testing.T) {
	var gotAuth string
	var gotDeployment string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotDeployment = r.FormValue("deployment_id")
		if r.FormValue("grant_type") != "client_credentials" {
			t.Errorf("grant_type = %q", r.FormValue("grant_type"))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-123",
			"token_type":   "bearer",
			"expires_in":   7200,
		})
	}))
	defer srv.Close()

	a := &Authenticator{
		TokenURL:     srv.URL + "/auth/v1/oauth/token",
		ClientID:     "client",
		ClientSecret: "secret",
		DeploymentID: "dep-1",
	}
	tok, err := a.Token(context.Background())
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if tok != "tok-123" {
		t.Errorf("token = %q, want tok-123", tok)
	}
	if gotAuth == "" {
		t.Error("expected basic auth header")
	}
	if gotDeployment != "dep-1" {
		t.Errorf("deployment_id = %q, want dep-1", gotDeployment)
	}
}

func TestAuthenticatorTokenMissingCreds(t *testing.T) {
	a := &Authenticator{TokenURL: "http://localhost/token"}
	if _, err := a.Token(context.Background()); err == nil {
		t.Error("expected error with missing credentials")
	}
}

func TestAuthenticatorTokenEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"token_type": "bearer"})
	}))
	defer srv.Close()

	a := &Authenticator{TokenURL: srv.URL, ClientID: "c", ClientSecret: "s"}
	if _, err := a.Token(context.Background()); err == nil {
		t.Error("expected error on empty access_token")
	}
}
