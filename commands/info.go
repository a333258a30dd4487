package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/arkstatus/arkmon/db"
	"github.com/arkstatus/arkmon/eos"
	"github.com/arkstatus/arkmon/platform"
	"github.com/arkstatus/arkmon/roster"
)

const (
	listPageSize   = 12
	joinHistoryLen = 10
	lookupBatch    = 20
)

// serverInfo answers /server with the live session view of one server.
func (h *Handler) serverInfo(ctx context.Context, resp platform.Responder, req Request) error {
	server := req.opt("server")
	sess, err := h.EOS.SessionInfo(ctx, server)
	if err != nil {
		if errors.Is(err, eos.ErrNotFound) {
			h.ephemeral(ctx, resp, fmt.Sprintf("Server %s was not found in the %s cluster.", server, h.Cluster))
			return nil
		}
		return err
	}
	r := platform.Report{
		Title: sess.Name,
		Color: platform.ColorBlue,
		Fields: []platform.Field{
			{Name: "Players", Value: fmt.Sprintf("%d/%d", sess.TotalPlayers, sess.MaxPlayers), Inline: true},
			{Name: "Day", Value: sess.Day, Inline: true},
			{Name: "Ping", Value: fmt.Sprintf("%d ms", sess.Ping), Inline: true},
			{Name: "Address", Value: sess.Address, Inline: false},
		},
		Timestamp: time.Now(),
	}
	return h.reply(ctx, resp, r)
}

// listServers answers /list: the cluster's non-PVE servers whose player
// count passes the comparison, busiest first, a fixed number per page.
func (h *Handler) listServers(ctx context.Context, resp platform.Responder, req Request) error {
	pop, err := req.intOpt("pop")
	if err != nil {
		h.ephemeral(ctx, resp, "A player-count bound is required, e.g. /list 50 +.")
		return nil
	}
	op := req.opt("op")
	if op == "" {
		op = "+"
	}
	if !validOp(op) {
		h.ephemeral(ctx, resp, "The comparison must be one of +, -, =, >, <, >= or <=.")
		return nil
	}

	entries, err := h.EOS.ListServers(ctx)
	if err != nil {
		return err
	}
	var matched []eos.ServerEntry
	for _, e := range entries {
		if e.ClusterID != h.Cluster || e.SessionIsPve != 0 {
			continue
		}
		if compare(e.NumPlayers, op, pop) {
			matched = append(matched, e)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].NumPlayers > matched[j].NumPlayers })

	if len(matched) == 0 {
		h.ephemeral(ctx, resp, fmt.Sprintf("No %s servers with players %s %d right now.", h.Cluster, op, pop))
		return nil
	}

	title := fmt.Sprintf("%s servers with players %s %d (%d)", h.Cluster, op, pop, len(matched))
	var pages []platform.Report
	for start := 0; start < len(matched); start += listPageSize {
		end := start + listPageSize
		if end > len(matched) {
			end = len(matched)
		}
		var b strings.Builder
		for _, e := range matched[start:end] {
			fmt.Fprintf(&b, "%-42s %3d  %4d ms\n", e.Name, e.NumPlayers, e.Ping)
		}
		pages = append(pages, platform.Report{
			Title:       title,
			Description: "```\n" + b.String() + "```",
			Color:       platform.ColorBlue,
		})
	}
	return resp.ReplyPaginated(ctx, platform.NewPaginator(pages))
}

func validOp(op string) bool {
	switch op {
	case "+", "-", ">", "<", ">=", "<=", "=", "==":
		return true
	}
	return false
}

func compare(n int, op string, bound int) bool {
	switch op {
	case ">":
		return n > bound
	case "<":
		return n < bound
	case "+", ">=":
		return n >= bound
	case "-", "<=":
		return n <= bound
	default:
		return n == bound
	}
}

// players answers /players with the annotated live roster of one server.
func (h *Handler) players(ctx context.Context, resp platform.Responder, req Request) error {
	server := req.opt("server")
	roomID, err := db.RoomID(ctx, h.DB, server)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.ephemeral(ctx, resp, fmt.Sprintf("Server %s has no registered room id.", server))
			return nil
		}
		return err
	}
	puids, err := h.EOS.ListOccupants(ctx, roomID)
	if err != nil {
		return err
	}
	ids, err := h.EOS.LookupIdentities(ctx, puids)
	if err != nil {
		return err
	}
	total, max, name := len(puids), 0, ""
	if sess, err := h.EOS.SessionInfo(ctx, server); err == nil {
		total, max, name = sess.TotalPlayers, sess.MaxPlayers, sess.Name
	}
	entries := roster.Annotate(ctx, h.DB, ids)
	pages := roster.Pages(server, name, total, max, entries)
	return resp.ReplyPaginated(ctx, platform.NewPaginator(pages))
}

// playerInfo answers /player_info for a puid, platform account id, display
// name or alias.
func (h *Handler) playerInfo(ctx context.Context, resp platform.Responder, req Request) error {
	query := req.opt("query")
	p, err := db.FindPlayer(ctx, h.DB, query)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.ephemeral(ctx, resp, fmt.Sprintf("No cached player matches %q. Sweeps fill the cache over time.", query))
			return nil
		}
		return err
	}

	title := p.DisplayName
	if title == "" {
		title = p.PUID
	}
	if p.Alias != "" {
		title = fmt.Sprintf("%s (%s)", title, p.Alias)
	}
	r := platform.Report{
		Title:  title,
		Color:  platform.ColorGreen,
		Footer: p.PUID,
		Fields: []platform.Field{
			{Name: "Platform", Value: platformLabel(p.Platform), Inline: true},
			{Name: "Account", Value: profileLink(p.Platform, p.AccountID, p.DisplayName), Inline: true},
		},
		Timestamp: time.Now(),
	}
	if server, tribe, err := db.MostJoinedServer(ctx, h.DB, p.PUID); err == nil {
		v := server
		if tribe != "" {
			v = fmt.Sprintf("%s (%s)", server, tribe)
		}
		r.Fields = append(r.Fields, platform.Field{Name: "Main Server", Value: v, Inline: true})
	}
	if joins, err := db.RecentJoins(ctx, h.DB, p.PUID, joinHistoryLen); err == nil && len(joins) > 0 {
		var b strings.Builder
		for _, j := range joins {
			fmt.Fprintf(&b, "%s  %s\n", j.JoinedAt.Format("2006-01-02 15:04"), j.Server)
		}
		r.Fields = append(r.Fields, platform.Field{Name: "Recent Joins", Value: b.String()})
	}
	return h.reply(ctx, resp, r)
}

func platformLabel(p string) string {
	switch strings.ToLower(p) {
	case "steam":
		return "Steam"
	case "epic":
		return "Epic"
	case "psn":
		return "PlayStation"
	case "xbl":
		return "Xbox"
	default:
		if p == "" {
			return "Unknown"
		}
		return p
	}
}

// profileLink renders the account reference, as a profile URL where the
// platform has public ones.
func profileLink(p, accountID, displayName string) string {
	if accountID == "" {
		return "unknown"
	}
	switch strings.ToLower(p) {
	case "steam":
		return fmt.Sprintf("[%s](https://steamcommunity.com/profiles/%s)", accountID, accountID)
	case "xbl":
		if displayName != "" {
			return fmt.Sprintf("[%s](https://www.xbox.com/play/user/%s)", accountID, displayName)
		}
		return accountID
	default:
		return accountID
	}
}

// updateEOS answers /update_eos: backfills identity data for every puid
// seen in join history but missing from the player cache.
func (h *Handler) updateEOS(ctx context.Context, resp platform.Responder, req Request) error {
	puids, err := db.UncachedPUIDs(ctx, h.DB)
	if err != nil {
		return err
	}
	if len(puids) == 0 {
		h.ephemeral(ctx, resp, "The player cache is already complete.")
		return nil
	}
	resolved := 0
	for start := 0; start < len(puids); start += lookupBatch {
		end := start + lookupBatch
		if end > len(puids) {
			end = len(puids)
		}
		ids, err := h.EOS.LookupIdentities(ctx, puids[start:end])
		if err != nil {
			h.ephemeral(ctx, resp, fmt.Sprintf("Resolved %d of %d before the lookup failed.", resolved, len(puids)))
			return nil
		}
		resolved += len(ids)
	}
	h.ephemeral(ctx, resp, fmt.Sprintf("Resolved %d identities for %d uncached players.", resolved, len(puids)))
	return nil
}
