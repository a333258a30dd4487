// Package commands implements the user-facing slash commands. Handlers are
// platform-agnostic: they consume parsed options and answer through a
// platform.Responder.
package commands

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/arkstatus/arkmon/db"
	"github.com/arkstatus/arkmon/eos"
	"github.com/arkstatus/arkmon/monitor"
	"github.com/arkstatus/arkmon/platform"
)

const (
	replyAttempts = 3
	replyBackoff  = 2 * time.Second
)

// Handler carries the dependencies the command set needs.
type Handler struct {
	DB      *sql.DB
	EOS     *eos.Client
	Manager *monitor.Manager
	Cluster string

	// retryWait is the pause between reply attempts, shortened in tests.
	retryWait time.Duration
}

// Request is one parsed command invocation.
type Request struct {
	Name      string
	GuildID   string
	ChannelID string
	Opts      map[string]string
}

func (r Request) opt(name string) string { return r.Opts[name] }

func (r Request) intOpt(name string) (int, error) {
	v := r.Opts[name]
	if v == "" {
		return 0, fmt.Errorf("missing option %q", name)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("option %q: %w", name, err)
	}
	return n, nil
}

// Dispatch routes a request to its handler. Handler errors never propagate
// to the caller; they are logged and answered with an ephemeral notice so a
// failing command cannot take the event loop down.
func (h *Handler) Dispatch(ctx context.Context, resp platform.Responder, req Request) {
	var err error
	switch req.Name {
	case "server":
		err = h.serverInfo(ctx, resp, req)
	case "list":
		err = h.listServers(ctx, resp, req)
	case "players":
		err = h.players(ctx, resp, req)
	case "player_info":
		err = h.playerInfo(ctx, resp, req)
	case "monitor":
		err = h.addMonitor(ctx, resp, req)
	case "remove_monitor":
		err = h.removeMonitor(ctx, resp, req)
	case "add_alert":
		err = h.addAlert(ctx, resp, req)
	case "remove_alert":
		err = h.removeAlert(ctx, resp, req)
	case "register_server":
		err = h.registerServer(ctx, resp, req)
	case "set_tribe":
		err = h.setTribe(ctx, resp, req)
	case "update_eos":
		err = h.updateEOS(ctx, resp, req)
	default:
		err = fmt.Errorf("unknown command %q", req.Name)
	}
	if err != nil {
		slog.Error("command failed", "command", req.Name, "guild", req.GuildID, "error", err)
		h.ephemeral(ctx, resp, "Something went wrong handling that command.")
	}
}

// reply sends a report with a small fixed retry budget.
func (h *Handler) reply(ctx context.Context, resp platform.Responder, r platform.Report) error {
	return h.withRetry(ctx, func() error { return resp.Reply(ctx, r) })
}

func (h *Handler) ephemeral(ctx context.Context, resp platform.Responder, text string) {
	if err := h.withRetry(ctx, func() error { return resp.ReplyEphemeral(ctx, text) }); err != nil {
		slog.Error("ephemeral reply failed", "error", err)
	}
}

func (h *Handler) withRetry(ctx context.Context, fn func() error) error {
	wait := h.retryWait
	if wait <= 0 {
		wait = replyBackoff
	}
	var err error
	for attempt := 1; attempt <= replyAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt < replyAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
	}
	return err
}

// addMonitor registers and starts a monitor for a server in the invoking
// channel (or an explicitly named one).
func (h *Handler) addMonitor(ctx context.Context, resp platform.Responder, req Request) error {
	server := req.opt("server")
	if server == "" {
		h.ephemeral(ctx, resp, "A server number is required.")
		return nil
	}
	kind, err := monitor.ParseKind(req.opt("kind"))
	if err != nil {
		h.ephemeral(ctx, resp, "Unknown monitor kind. Use population, roster or roster-diff.")
		return nil
	}
	channelID := req.opt("channel")
	if channelID == "" {
		channelID = req.ChannelID
	}

	if err := h.checkServer(ctx, server, kind); err != nil {
		h.ephemeral(ctx, resp, err.Error())
		return nil
	}

	key := monitor.NewKey(server, kind, channelID, req.GuildID)
	switch err := h.Manager.Add(ctx, key, req.opt("nickname"), req.opt("nature")); {
	case errors.Is(err, monitor.ErrExists):
		h.ephemeral(ctx, resp, fmt.Sprintf("A %s monitor for server %s already runs in that channel.", kind, server))
		return nil
	case err != nil:
		return err
	}
	h.ephemeral(ctx, resp, fmt.Sprintf("Started a %s monitor for server %s.", kind, server))
	return nil
}

// checkServer verifies the target is watchable before a monitor row is
// created: the session must resolve, and roster kinds additionally need a
// registered room id.
func (h *Handler) checkServer(ctx context.Context, server string, kind monitor.Kind) error {
	if _, err := h.EOS.SessionInfo(ctx, server); err != nil {
		if errors.Is(err, eos.ErrNotFound) {
			return fmt.Errorf("Server %s was not found in the %s cluster.", server, h.Cluster)
		}
		return fmt.Errorf("Could not reach the server list right now, try again shortly.")
	}
	if kind == monitor.KindRoster || kind == monitor.KindRosterDiff {
		if _, err := db.RoomID(ctx, h.DB, server); err != nil {
			return fmt.Errorf("Server %s has no registered room id, roster monitors need one.", server)
		}
	}
	return nil
}

func (h *Handler) removeMonitor(ctx context.Context, resp platform.Responder, req Request) error {
	kind, err := monitor.ParseKind(req.opt("kind"))
	if err != nil {
		h.ephemeral(ctx, resp, "Unknown monitor kind.")
		return nil
	}
	channelID := req.opt("channel")
	if channelID == "" {
		channelID = req.ChannelID
	}
	key := monitor.NewKey(req.opt("server"), kind, channelID, req.GuildID)
	switch err := h.Manager.Remove(ctx, key); {
	case errors.Is(err, monitor.ErrNoMonitor):
		h.ephemeral(ctx, resp, "No such monitor is running.")
		return nil
	case err != nil:
		return err
	}
	h.ephemeral(ctx, resp, fmt.Sprintf("Removed the %s monitor for server %s.", kind, key.Server))
	return nil
}

func (h *Handler) addAlert(ctx context.Context, resp platform.Responder, req Request) error {
	server := req.opt("server")
	threshold, err := req.intOpt("threshold")
	if err != nil {
		h.ephemeral(ctx, resp, "The threshold must be a whole number, negative for exodus alerts.")
		return nil
	}
	if threshold == 0 {
		h.ephemeral(ctx, resp, "A zero threshold would never fire. Pick a positive or negative value.")
		return nil
	}
	alertChannel := req.opt("channel")
	if alertChannel == "" {
		alertChannel = req.ChannelID
	}
	row := db.AlertRow{Server: server, GuildID: req.GuildID, AlertChannelID: alertChannel, Threshold: threshold}
	if err := db.UpsertAlert(ctx, h.DB, row); err != nil {
		return err
	}
	if !h.Manager.AttachAlert(server, req.GuildID, alertChannel, threshold) {
		h.ephemeral(ctx, resp, fmt.Sprintf(
			"Alert saved, but no population monitor watches server %s in this guild yet. It binds once one is started.", server))
		return nil
	}
	h.ephemeral(ctx, resp, fmt.Sprintf("Alerting on population swings of %+d for server %s.", threshold, server))
	return nil
}

func (h *Handler) removeAlert(ctx context.Context, resp platform.Responder, req Request) error {
	server := req.opt("server")
	if err := db.DeleteAlert(ctx, h.DB, server, req.GuildID); err != nil {
		return err
	}
	if h.Manager.DetachAlert(server, req.GuildID) {
		h.ephemeral(ctx, resp, fmt.Sprintf("Alert for server %s removed.", server))
	} else {
		h.ephemeral(ctx, resp, fmt.Sprintf("No live alert for server %s, cleared the stored binding.", server))
	}
	return nil
}

// registerServer adds a server to the registry, optionally with the RTC
// room id that roster monitors and sweeps read occupants from.
func (h *Handler) registerServer(ctx context.Context, resp platform.Responder, req Request) error {
	server := req.opt("server")
	if server == "" {
		h.ephemeral(ctx, resp, "A server number is required.")
		return nil
	}
	if _, err := h.EOS.SessionInfo(ctx, server); err != nil {
		if errors.Is(err, eos.ErrNotFound) {
			h.ephemeral(ctx, resp, fmt.Sprintf("Server %s was not found in the %s cluster.", server, h.Cluster))
			return nil
		}
		return err
	}
	if err := db.RegisterServer(ctx, h.DB, db.Server{Number: server, RoomID: req.opt("room_id")}); err != nil {
		return err
	}
	h.ephemeral(ctx, resp, fmt.Sprintf("Server %s registered.", server))
	return nil
}

func (h *Handler) setTribe(ctx context.Context, resp platform.Responder, req Request) error {
	server, tribe := req.opt("server"), req.opt("tribe")
	ok, err := db.ServerExists(ctx, h.DB, server)
	if err != nil {
		return err
	}
	if !ok {
		h.ephemeral(ctx, resp, fmt.Sprintf("Server %s is not in the registry.", server))
		return nil
	}
	if err := db.SetTribe(ctx, h.DB, server, tribe); err != nil {
		return err
	}
	h.ephemeral(ctx, resp, fmt.Sprintf("Server %s is now labeled tribe %q.", server, tribe))
	return nil
}
