// Package roster turns raw room occupant identities into annotated,
// channel-ready listings.
package roster

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/arkstatus/arkmon/db"
	"github.com/arkstatus/arkmon/eos"
	"github.com/arkstatus/arkmon/platform"
)

const (
	noAlias       = "No Alias"
	unknownServer = "?"
)

// Entry is one occupant with everything the listing shows.
type Entry struct {
	PUID        string
	DisplayName string
	Alias       string
	MainServer  string
	Tribe       string
}

// Annotate enriches identities with the locally-known alias and the server
// each player has joined most often. Lookup failures degrade to placeholder
// values; the listing never fails because one player is unknown.
func Annotate(ctx context.Context, dbc *sql.DB, ids []eos.Identity) []Entry {
	entries := make([]Entry, 0, len(ids))
	for _, id := range ids {
		e := Entry{
			PUID:        id.PUID,
			DisplayName: id.DisplayName,
			Alias:       noAlias,
			MainServer:  unknownServer,
		}
		if e.DisplayName == "" {
			e.DisplayName = shortPUID(id.PUID)
		}
		if alias, err := db.PlayerAlias(ctx, dbc, id.PUID); err == nil && alias != "" {
			e.Alias = alias
		} else if err != nil && !errors.Is(err, db.ErrNotFound) {
			slog.Warn("player alias lookup", "puid", id.PUID, "error", err)
		}
		if server, tribe, err := db.MostJoinedServer(ctx, dbc, id.PUID); err == nil {
			e.MainServer = server
			e.Tribe = tribe
		} else if !errors.Is(err, db.ErrNotFound) {
			slog.Warn("main server lookup", "puid", id.PUID, "error", err)
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return strings.ToLower(entries[i].DisplayName) < strings.ToLower(entries[j].DisplayName)
	})
	return entries
}

// Lines renders the fixed-width listing rows.
func Lines(entries []Entry) []string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("%-22s %-16s %s", clip(e.DisplayName, 22), clip(e.Alias, 16), e.MainServer))
	}
	return lines
}

// Pages builds the paginated roster report for one server: a header with the
// live count, the listing rows, and a per-main-server tally trailer.
func Pages(server, sessionName string, total, max int, entries []Entry) []platform.Report {
	title := fmt.Sprintf("%s Roster %d/%d", server, total, max)
	if sessionName != "" {
		title = fmt.Sprintf("%s  (%s)", title, sessionName)
	}
	return platform.SplitPages(title, Lines(entries), tally(entries))
}

// tally summarizes how many listed players call each server home.
func tally(entries []Entry) string {
	if len(entries) == 0 {
		return ""
	}
	counts := map[string]int{}
	for _, e := range entries {
		counts[e.MainServer]++
	}
	servers := make([]string, 0, len(counts))
	for s := range counts {
		servers = append(servers, s)
	}
	sort.Slice(servers, func(i, j int) bool {
		if counts[servers[i]] != counts[servers[j]] {
			return counts[servers[i]] > counts[servers[j]]
		}
		return servers[i] < servers[j]
	})
	parts := make([]string, 0, len(servers))
	for _, s := range servers {
		parts = append(parts, fmt.Sprintf("%s: %d", s, counts[s]))
	}
	return "From: " + strings.Join(parts, ", ")
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func shortPUID(puid string) string {
	if len(puid) <= 8 {
		return puid
	}
	return puid[:8]
}
