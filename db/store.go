package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Server is one row of the server registry.
type Server struct {
	Number string
	RoomID string
	Tribe  string
}

// Player is one cached identity row.
type Player struct {
	PUID        string
	AccountID   string
	Platform    string
	DisplayName string
	Alias       string
}

// Join is one recorded first-seen join event.
type Join struct {
	Server   string
	JoinedAt time.Time
}

// Sample is one population history point.
type Sample struct {
	Players    int
	RecordedAt time.Time
}

// MonitorRow is one persisted monitor definition.
type MonitorRow struct {
	Server    string
	Kind      string
	ChannelID string
	GuildID   string
	Nickname  string
	Nature    string
}

// AlertRow is one persisted alert binding.
type AlertRow struct {
	Server         string
	GuildID        string
	AlertChannelID string
	Threshold      int
}

// RegisterServer adds a server to the registry or updates its room id.
func RegisterServer(ctx context.Context, db *sql.DB, s Server) error {
	_, err := db.ExecContext(ctx, `INSERT INTO ark_servers (server_number, room_id, tribe, updated_at)
		VALUES ($1,$2,$3,NOW())
		ON CONFLICT(server_number) DO UPDATE SET room_id=EXCLUDED.room_id, updated_at=NOW()`,
		s.Number, s.RoomID, s.Tribe)
	return err
}

// RoomID looks up the real-time room identifier for a server.
// Returns ErrNotFound for unknown servers and for servers without a room.
func RoomID(ctx context.Context, db *sql.DB, server string) (string, error) {
	var room string
	err := db.QueryRowContext(ctx, `SELECT room_id FROM ark_servers WHERE server_number=$1`, server).Scan(&room)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("server %s: %w", server, ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	if room == "" {
		return "", fmt.Errorf("server %s has no room id: %w", server, ErrNotFound)
	}
	return room, nil
}

// ServerExists reports whether a server is registered.
func ServerExists(ctx context.Context, db *sql.DB, server string) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx, `SELECT 1 FROM ark_servers WHERE server_number=$1`, server).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// SetTribe updates the tribe label for a registered server.
func SetTribe(ctx context.Context, db *sql.DB, server, tribe string) error {
	res, err := db.ExecContext(ctx, `UPDATE ark_servers SET tribe=$1, updated_at=NOW() WHERE server_number=$2`, tribe, server)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("server %s: %w", server, ErrNotFound)
	}
	return nil
}

// ListServers returns the full server registry.
func ListServers(ctx context.Context, db *sql.DB) ([]Server, error) {
	rows, err := db.QueryContext(ctx, `SELECT server_number, room_id, tribe FROM ark_servers ORDER BY server_number`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Server
	for rows.Next() {
		var s Server
		if err := rows.Scan(&s.Number, &s.RoomID, &s.Tribe); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// UpsertPlayer inserts or refreshes one identity row.
func UpsertPlayer(ctx context.Context, db *sql.DB, p Player) error {
	_, err := db.ExecContext(ctx, `INSERT INTO players (puid, account_id, platform, display_name, updated_at)
		VALUES ($1,$2,$3,$4,NOW())
		ON CONFLICT(puid, account_id, platform) DO UPDATE SET display_name=EXCLUDED.display_name, updated_at=NOW()`,
		p.PUID, p.AccountID, p.Platform, p.DisplayName)
	return err
}

// PlayerByPUID returns the cached identity for a product user id.
func PlayerByPUID(ctx context.Context, db *sql.DB, puid string) (Player, error) {
	var p Player
	err := db.QueryRowContext(ctx, `SELECT puid, account_id, platform, COALESCE(display_name,''), COALESCE(alias,'')
		FROM players WHERE puid=$1 LIMIT 1`, puid).Scan(&p.PUID, &p.AccountID, &p.Platform, &p.DisplayName, &p.Alias)
	if errors.Is(err, sql.ErrNoRows) {
		return Player{}, fmt.Errorf("player %s: %w", puid, ErrNotFound)
	}
	return p, err
}

// ResolvePUID maps a platform account id (Steam64, gamertag, PSN id) to a puid.
func ResolvePUID(ctx context.Context, db *sql.DB, accountID string) (string, error) {
	var puid string
	err := db.QueryRowContext(ctx, `SELECT puid FROM players WHERE account_id=$1 LIMIT 1`, accountID).Scan(&puid)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("account %s: %w", accountID, ErrNotFound)
	}
	return puid, err
}

// PlayerAlias returns the manually assigned alias for a puid, or "" if none.
func PlayerAlias(ctx context.Context, db *sql.DB, puid string) (string, error) {
	var alias string
	err := db.QueryRowContext(ctx, `SELECT COALESCE(alias,'') FROM players WHERE puid=$1 LIMIT 1`, puid).Scan(&alias)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return alias, err
}

// FindPlayer resolves a user-supplied query to a cached player, trying the
// puid, the platform account id, then a case-insensitive display-name or
// alias match.
func FindPlayer(ctx context.Context, db *sql.DB, query string) (Player, error) {
	var p Player
	err := db.QueryRowContext(ctx, `SELECT puid, account_id, platform, COALESCE(display_name,''), COALESCE(alias,'')
		FROM players
		WHERE puid=$1 OR account_id=$1 OR display_name ILIKE $1 OR alias ILIKE $1
		ORDER BY updated_at DESC LIMIT 1`, query).
		Scan(&p.PUID, &p.AccountID, &p.Platform, &p.DisplayName, &p.Alias)
	if errors.Is(err, sql.ErrNoRows) {
		return Player{}, fmt.Errorf("player query %q: %w", query, ErrNotFound)
	}
	return p, err
}

// MostJoinedServer returns the server a player has joined most often (by
// recorded join events) and that server's tribe label. Returns ErrNotFound
// when the player has no join history.
func MostJoinedServer(ctx context.Context, db *sql.DB, puid string) (server, tribe string, err error) {
	err = db.QueryRowContext(ctx, `SELECT pj.server_number, COALESCE(s.tribe,'')
		FROM player_joins pj
		LEFT JOIN ark_servers s ON s.server_number = pj.server_number
		WHERE pj.puid=$1
		GROUP BY pj.server_number, s.tribe
		ORDER BY COUNT(*) DESC
		LIMIT 1`, puid).Scan(&server, &tribe)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", fmt.Errorf("player %s joins: %w", puid, ErrNotFound)
	}
	return server, tribe, err
}

// RecentJoins returns a player's most recent join events, newest first.
func RecentJoins(ctx context.Context, db *sql.DB, puid string, limit int) ([]Join, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := db.QueryContext(ctx, `SELECT server_number, joined_at FROM player_joins
		WHERE puid=$1 ORDER BY joined_at DESC LIMIT $2`, puid, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Join
	for rows.Next() {
		var j Join
		if err := rows.Scan(&j.Server, &j.JoinedAt); err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// RecordPopulation appends one population sample to the history series.
func RecordPopulation(ctx context.Context, db *sql.DB, server string, players int) error {
	_, err := db.ExecContext(ctx, `INSERT INTO population_history (server_number, players) VALUES ($1,$2)`, server, players)
	return err
}

// PopulationSince returns population samples for a server recorded after the cutoff, oldest first.
func PopulationSince(ctx context.Context, db *sql.DB, server string, since time.Time) ([]Sample, error) {
	rows, err := db.QueryContext(ctx, `SELECT players, recorded_at FROM population_history
		WHERE server_number=$1 AND recorded_at >= $2 ORDER BY recorded_at`, server, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Sample
	for rows.Next() {
		var s Sample
		if err := rows.Scan(&s.Players, &s.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// RecordJoins appends first-seen join events for a server.
func RecordJoins(ctx context.Context, db *sql.DB, server string, puids []string, at time.Time) error {
	for _, puid := range puids {
		if _, err := db.ExecContext(ctx, `INSERT INTO player_joins (puid, server_number, joined_at) VALUES ($1,$2,$3)`,
			puid, server, at); err != nil {
			return err
		}
	}
	return nil
}

// UncachedPUIDs returns puids present in the join history but missing from the
// identity cache, for batch backfills.
func UncachedPUIDs(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT DISTINCT pj.puid FROM player_joins pj
		LEFT JOIN players p ON p.puid = pj.puid WHERE p.puid IS NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var puid string
		if err := rows.Scan(&puid); err != nil {
			return nil, err
		}
		out = append(out, puid)
	}
	return out, rows.Err()
}

// InsertMonitor persists a monitor definition. Duplicate keys are ignored.
func InsertMonitor(ctx context.Context, db *sql.DB, m MonitorRow) error {
	_, err := db.ExecContext(ctx, `INSERT INTO monitors (server_number, kind, channel_id, guild_id, nickname, nature)
		VALUES ($1,$2,$3,$4,$5,$6) ON CONFLICT(server_number, kind, channel_id, guild_id) DO NOTHING`,
		m.Server, m.Kind, m.ChannelID, m.GuildID, m.Nickname, m.Nature)
	return err
}

// DeleteMonitor removes a persisted monitor definition.
func DeleteMonitor(ctx context.Context, db *sql.DB, server, kind, channelID, guildID string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM monitors
		WHERE server_number=$1 AND kind=$2 AND channel_id=$3 AND guild_id=$4`, server, kind, channelID, guildID)
	return err
}

// ListMonitors returns every persisted monitor definition.
func ListMonitors(ctx context.Context, db *sql.DB) ([]MonitorRow, error) {
	rows, err := db.QueryContext(ctx, `SELECT server_number, kind, channel_id, guild_id, COALESCE(nickname,''), COALESCE(nature,'') FROM monitors`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []MonitorRow
	for rows.Next() {
		var m MonitorRow
		if err := rows.Scan(&m.Server, &m.Kind, &m.ChannelID, &m.GuildID, &m.Nickname, &m.Nature); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// UpsertAlert stores or replaces the alert binding for (server, guild).
func UpsertAlert(ctx context.Context, db *sql.DB, a AlertRow) error {
	_, err := db.ExecContext(ctx, `INSERT INTO alerts (server_number, guild_id, alert_channel_id, threshold)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT(server_number, guild_id) DO UPDATE SET alert_channel_id=EXCLUDED.alert_channel_id, threshold=EXCLUDED.threshold`,
		a.Server, a.GuildID, a.AlertChannelID, a.Threshold)
	return err
}

// GetAlert returns the alert binding for (server, guild), or ErrNotFound.
func GetAlert(ctx context.Context, db *sql.DB, server, guildID string) (AlertRow, error) {
	a := AlertRow{Server: server, GuildID: guildID}
	err := db.QueryRowContext(ctx, `SELECT alert_channel_id, threshold FROM alerts
		WHERE server_number=$1 AND guild_id=$2`, server, guildID).Scan(&a.AlertChannelID, &a.Threshold)
	if errors.Is(err, sql.ErrNoRows) {
		return AlertRow{}, fmt.Errorf("alert %s/%s: %w", server, guildID, ErrNotFound)
	}
	return a, err
}

// DeleteAlert removes the alert binding for (server, guild).
func DeleteAlert(ctx context.Context, db *sql.DB, server, guildID string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM alerts WHERE server_number=$1 AND guild_id=$2`, server, guildID)
	return err
}

// ListAlerts returns every persisted alert binding.
func ListAlerts(ctx context.Context, db *sql.DB) ([]AlertRow, error) {
	rows, err := db.QueryContext(ctx, `SELECT server_number, guild_id, alert_channel_id, threshold FROM alerts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AlertRow
	for rows.Next() {
		var a AlertRow
		if err := rows.Scan(&a.Server, &a.GuildID, &a.AlertChannelID, &a.Threshold); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
