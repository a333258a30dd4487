// Package platform defines the chat-platform boundary: the report payloads the
// bot produces and the delivery capabilities it consumes. Concrete clients
// (the chat SDK wiring) implement Messenger; everything else in the service
// talks to these types only.
package platform

import (
	"context"
	"time"
)

// Color selects the accent color of a rendered report.
type Color int

const (
	ColorNeutral Color = iota
	ColorBlue
	ColorGreen
	ColorRed
	ColorPurple
)

// Field is one labeled value inside a report.
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Report is one rich message. Image, when set, is attached as a PNG alongside
// the rendered content.
type Report struct {
	Title       string
	Description string
	Color       Color
	Fields      []Field
	Footer      string
	Timestamp   time.Time
	Image       []byte
}

// Messenger is the deliver-message / edit-channel capability of the chat
// platform. Every call may fail and is treated as transient by callers.
type Messenger interface {
	// Send delivers one report to a channel.
	Send(ctx context.Context, channelID string, r Report) error
	// EditChannelName renames a channel.
	EditChannelName(ctx context.Context, channelID, name string) error
	// Purge best-effort deletes the most recent messages in a channel.
	Purge(ctx context.Context, channelID string, limit int) error
}

// Responder answers one user command interaction. Ephemeral replies are only
// shown to the invoking user.
type Responder interface {
	Reply(ctx context.Context, r Report) error
	ReplyEphemeral(ctx context.Context, text string) error
	ReplyPaginated(ctx context.Context, p *Paginator) error
}

// maxPageBody bounds one report description, leaving headroom under the chat
// platform's per-message limit.
const maxPageBody = 3690

// SplitPages packs lines into as few code-block reports as fit the
// per-message size limit. Every page is self-contained; trailer, when
// non-empty, is appended after the code block of the final page.
func SplitPages(title string, lines []string, trailer string) []Report {
	if len(lines) == 0 {
		lines = []string{"(none)"}
	}
	var pages []Report
	body := "```\n"
	flush := func(last bool) {
		body += "```"
		if last && trailer != "" {
			body += "\n" + trailer
		}
		pages = append(pages, Report{Title: title, Description: body, Color: ColorGreen})
		body = "```\n"
	}
	for _, line := range lines {
		if len(body)+len(line)+1 > maxPageBody {
			flush(false)
		}
		body += line + "\n"
	}
	flush(true)
	return pages
}
