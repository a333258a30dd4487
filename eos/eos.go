// Package eos contains minimal helpers to interact with Epic Online Services:
// matchmaking session lookup, RTC room membership snapshots, and batch
// product-user identity resolution, using a client-credentials access token.
package eos

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// ErrNotFound marks lookups for servers or sessions the backend does not
// know about. Callers treat it as a permanent condition, not a transient one.
var ErrNotFound = errors.New("not found")

// ServerEntry is one row of the CDN official server list.
type ServerEntry struct {
	Name         string `json:"Name"`
	NumPlayers   int    `json:"NumPlayers"`
	Ping         int    `json:"ServerPing"`
	IP           string `json:"IP"`
	Port         int    `json:"Port"`
	ClusterID    string `json:"ClusterId"`
	SessionID    string `json:"SessionID"`
	SessionIsPve int    `json:"SessionIsPve"`
}

// Session is the matchmaking view of a live server.
type Session struct {
	Name         string
	Day          string
	TotalPlayers int
	MaxPlayers   int
	Ping         int
	Address      string
}

// Identity is one resolved product-user account.
type Identity struct {
	PUID        string
	DisplayName string
	AccountID   string
	Platform    string
	LastLogin   string
}

// PlayerStore receives newly-seen identities as a side effect of lookups.
type PlayerStore interface {
	UpsertPlayer(ctx context.Context, puid, accountID, platform, displayName string) error
}

// Client provides the EOS calls the monitors and commands consume.
// All requests share one rate limiter so concurrent monitors cannot
// saturate the backend's connection concurrency.
type Client struct {
	APIBase      string
	CDNBase      string
	DeploymentID string
	Cluster      string
	Auth         *Authenticator
	Players      PlayerStore
	HTTPClient   *http.Client
	Limiter      *rate.Limiter
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return defaultHTTPClient
}

// Requests are bounded so a stuck backend cannot stall a monitor loop.
var defaultHTTPClient = &http.Client{Timeout: 10 * time.Second}

func (c *Client) wait(ctx context.Context) error {
	if c.Limiter == nil {
		return nil
	}
	return c.Limiter.Wait(ctx)
}
