package platform

import (
	"context"
	"log/slog"
)

// LogMessenger writes reports to the log instead of a chat platform. It is
// the sink used when no chat transport is configured, and in tests.
type LogMessenger struct{}

func (LogMessenger) Send(ctx context.Context, channelID string, r Report) error {
	slog.Info("report", "channel", channelID, "title", r.Title, "description", r.Description)
	return nil
}

func (LogMessenger) EditChannelName(ctx context.Context, channelID, name string) error {
	slog.Info("channel rename", "channel", channelID, "name", name)
	return nil
}

func (LogMessenger) Purge(ctx context.Context, channelID string, limit int) error {
	return nil
}
