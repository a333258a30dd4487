package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/arkstatus/arkmon/commands"
	"github.com/arkstatus/arkmon/platform"
)

// commandRequest is the admin command invocation body. It mirrors what the
// chat gateway passes to the dispatcher, so any command can be driven from
// curl for testing and operations.
type commandRequest struct {
	Name      string            `json:"name"`
	GuildID   string            `json:"guild_id"`
	ChannelID string            `json:"channel_id"`
	Options   map[string]string `json:"options"`
}

type commandResponse struct {
	Replies    []platform.Report `json:"replies"`
	Ephemerals []string          `json:"ephemerals"`
}

// collectResponder gathers command output for the JSON response instead of
// a chat interaction. Paginated replies are flattened to their pages.
type collectResponder struct {
	out commandResponse
}

func (c *collectResponder) Reply(ctx context.Context, r platform.Report) error {
	c.out.Replies = append(c.out.Replies, r)
	return nil
}

func (c *collectResponder) ReplyEphemeral(ctx context.Context, text string) error {
	c.out.Ephemerals = append(c.out.Ephemerals, text)
	return nil
}

func (c *collectResponder) ReplyPaginated(ctx context.Context, p *platform.Paginator) error {
	for {
		c.out.Replies = append(c.out.Replies, p.Current())
		if _, ok := p.Next(); !ok {
			return nil
		}
	}
}

func (h *Handlers) handleCommand(w http.ResponseWriter, r *http.Request) {
	if h.commands == nil {
		http.Error(w, "commands not configured", http.StatusServiceUnavailable)
		return
	}
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "missing command name", http.StatusBadRequest)
		return
	}
	resp := &collectResponder{}
	h.commands.Dispatch(r.Context(), resp, commands.Request{
		Name:      req.Name,
		GuildID:   req.GuildID,
		ChannelID: req.ChannelID,
		Opts:      req.Options,
	})
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp.out)
}
