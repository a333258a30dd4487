package eos

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
)

// ListServers fetches the CDN official server list.
func (c *Client) ListServers(ctx context.Context) ([]ServerEntry, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.CDNBase+"/servers/asa/officialserverlist.json", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http().Do(req)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server list request failed: %s", resp.Status)
	}
	var entries []ServerEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode server list: %w", err)
	}
	return entries, nil
}

// findServer locates a cluster server whose name contains the server number.
func (c *Client) findServer(ctx context.Context, serverNumber string) (*ServerEntry, error) {
	entries, err := c.ListServers(ctx)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		e := &entries[i]
		if e.ClusterID != c.Cluster {
			continue
		}
		if strings.Contains(e.Name, serverNumber) {
			return e, nil
		}
	}
	return nil, fmt.Errorf("server %s in cluster %s: %w", serverNumber, c.Cluster, ErrNotFound)
}

// SessionInfo resolves a server number to its live matchmaking session.
// Returns ErrNotFound when the server list has no matching entry or the
// entry carries no session id (the server is offline or delisted).
func (c *Client) SessionInfo(ctx context.Context, serverNumber string) (*Session, error) {
	entry, err := c.findServer(ctx, serverNumber)
	if err != nil {
		return nil, err
	}
	if entry.SessionID == "" {
		return nil, fmt.Errorf("server %s has no session id: %w", serverNumber, ErrNotFound)
	}

	tok, err := c.Auth.Token(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/matchmaking/v1/%s/sessions/%s", c.APIBase, c.DeploymentID, entry.SessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := c.http().Do(req)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("session %s: %w", entry.SessionID, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("session request failed: %s: %s", resp.Status, string(b))
	}

	var body struct {
		PublicData struct {
			TotalPlayers int `json:"totalPlayers"`
			Settings     struct {
				MaxPublicPlayers int `json:"maxPublicPlayers"`
			} `json:"settings"`
			Attributes map[string]any `json:"attributes"`
		} `json:"publicData"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}

	s := &Session{
		Name:         attrString(body.PublicData.Attributes, "CUSTOMSERVERNAME_s"),
		Day:          attrString(body.PublicData.Attributes, "DAYTIME_s"),
		TotalPlayers: body.PublicData.TotalPlayers,
		MaxPlayers:   body.PublicData.Settings.MaxPublicPlayers,
		Ping:         entry.Ping,
		Address:      fmt.Sprintf("%s:%d", entry.IP, entry.Port),
	}
	if s.Name == "" {
		s.Name = entry.Name
	}
	return s, nil
}

// LookupIdentities resolves product user ids to accounts in one batch call.
// Newly-seen identities are upserted into the player store as a side effect.
func (c *Client) LookupIdentities(ctx context.Context, puids []string) ([]Identity, error) {
	if len(puids) == 0 {
		return nil, nil
	}
	tok, err := c.Auth.Token(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(map[string][]string{"productUserIds": puids})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIBase+"/user/v9/product-users/search", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := c.http().Do(req)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("identity search failed: %s: %s", resp.Status, string(b))
	}

	var body struct {
		ProductUsers map[string]struct {
			Accounts []struct {
				AccountID          string `json:"accountId"`
				DisplayName        string `json:"displayName"`
				IdentityProviderID string `json:"identityProviderId"`
				LastLogin          string `json:"lastLogin"`
			} `json:"accounts"`
		} `json:"productUsers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode identity search: %w", err)
	}

	var out []Identity
	for puid, user := range body.ProductUsers {
		for _, acct := range user.Accounts {
			id := Identity{
				PUID:        puid,
				DisplayName: acct.DisplayName,
				AccountID:   acct.AccountID,
				Platform:    acct.IdentityProviderID,
				LastLogin:   acct.LastLogin,
			}
			out = append(out, id)
			if c.Players != nil {
				if err := c.Players.UpsertPlayer(ctx, id.PUID, id.AccountID, id.Platform, id.DisplayName); err != nil {
					slog.Warn("player upsert failed", slog.String("puid", id.PUID), slog.Any("err", err))
				}
			}
		}
	}
	return out, nil
}

func attrString(attrs map[string]any, key string) string {
	switch v := attrs[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatInt(int64(v), 10)
	default:
		return ""
	}
}

func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		slog.Warn("failed to close response body", slog.Any("err", err))
	}
}
