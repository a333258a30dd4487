package eos

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

// fallbackProbeUser is used when the ban list fetch fails. Any known product
// user id works; the RTC room only needs a syntactically valid participant.
const fallbackProbeUser = "LOGGER_Lethal"

// probeUser picks a product user id to request the room ticket with.
// The CDN ban list is a convenient public pool of valid ids.
func (c *Client) probeUser(ctx context.Context) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.CDNBase+"/asa/BanList.txt", nil)
	if err != nil {
		return fallbackProbeUser
	}
	resp, err := c.http().Do(req)
	if err != nil {
		return fallbackProbeUser
	}
	defer closeBody(resp)
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fallbackProbeUser
	}
	ids := strings.Fields(string(raw))
	if len(ids) < 2 {
		return fallbackProbeUser
	}
	//nolint:gosec // G404: math/rand is sufficient for picking a probe id, not used for security
	return strings.TrimRight(ids[1+rand.Intn(len(ids)-1)], ",;")
}

// roomTicket joins the RTC room as a muted participant and returns the
// realtime endpoint plus the participant token required by the handshake.
func (c *Client) roomTicket(ctx context.Context, roomID string) (baseURL, ticket, user string, err error) {
	tok, err := c.Auth.Token(ctx)
	if err != nil {
		return "", "", "", err
	}
	if err := c.wait(ctx); err != nil {
		return "", "", "", err
	}
	user = c.probeUser(ctx)
	payload, err := json.Marshal(map[string]any{
		"participants": []map[string]any{{"puid": user, "hardMuted": false}},
	})
	if err != nil {
		return "", "", "", err
	}
	url := fmt.Sprintf("%s/rtc/v1/%s/room/%s", c.APIBase, c.DeploymentID, roomID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", "", "", err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := c.http().Do(req)
	if err != nil {
		return "", "", "", err
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", "", "", fmt.Errorf("room ticket request failed: %s: %s", resp.Status, string(b))
	}
	var body struct {
		ClientBaseURL string `json:"clientBaseUrl"`
		Participants  []struct {
			Token string `json:"token"`
		} `json:"participants"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", "", "", fmt.Errorf("decode room ticket: %w", err)
	}
	if body.ClientBaseURL == "" || len(body.Participants) == 0 {
		return "", "", "", fmt.Errorf("room ticket response missing endpoint or participant")
	}
	return body.ClientBaseURL, body.Participants[0].Token, user, nil
}

// joinMessage is the RTC join handshake. The server answers with a single
// membership snapshot, after which the connection is no longer needed.
type joinMessage struct {
	Type      string   `json:"type"`
	Ticket    string   `json:"ticket"`
	UserToken string   `json:"user_token"`
	Options   []string `json:"options"`
	Version   string   `json:"version"`
	Device    struct {
		OS                 string `json:"os"`
		Model              string `json:"model"`
		Manufacturer       string `json:"manufacturer"`
		OnlinePlatformType string `json:"online_platform_type"`
	} `json:"device"`
}

// ListOccupants returns the product user ids currently in the server's RTC
// room: one ticket request, one websocket join handshake, one snapshot read.
func (c *Client) ListOccupants(ctx context.Context, roomID string) ([]string, error) {
	baseURL, ticket, user, err := c.roomTicket(ctx, roomID)
	if err != nil {
		return nil, err
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, baseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial room: %w", err)
	}
	if resp != nil {
		closeBody(resp)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
		_ = conn.SetWriteDeadline(deadline)
	}

	join := joinMessage{
		Type:      "join",
		Ticket:    ticket,
		UserToken: user,
		Options: []string{
			"subscribe", "dtx", "rtcp_rsize", "new_audio_only_reasons",
			"v2", "unified_plan", "speaking", "reserved_audio_streams",
		},
		Version: "1.16.2-32273396",
	}
	join.Device.OS = "Windows"
	join.Device.OnlinePlatformType = "0"
	if err := conn.WriteJSON(join); err != nil {
		return nil, fmt.Errorf("send join: %w", err)
	}

	var snapshot struct {
		Users []string `json:"users"`
	}
	if err := conn.ReadJSON(&snapshot); err != nil {
		return nil, fmt.Errorf("read membership snapshot: %w", err)
	}

	// Each entry is itself a JSON document carrying the member's user token.
	puids := make([]string, 0, len(snapshot.Users))
	for _, raw := range snapshot.Users {
		var member struct {
			UserToken string `json:"user_token"`
		}
		if err := json.Unmarshal([]byte(raw), &member); err != nil {
			return nil, fmt.Errorf("decode room member: %w", err)
		}
		puids = append(puids, member.UserToken)
	}
	return puids, nil
}
