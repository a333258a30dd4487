// Package monitor implements the supervised polling tasks that watch game
// servers and push status into chat channels, plus the manager that owns the
// set of live monitors.
package monitor

import (
	"fmt"
	"strings"
)

// Kind selects a monitor's per-tick behavior. The set is closed; behavior is
// chosen once at construction.
type Kind string

const (
	// KindPopulation reports player-count changes and renames its channel.
	KindPopulation Kind = "population"
	// KindRoster posts the full occupant roster on a short cadence.
	KindRoster Kind = "roster"
	// KindRosterDiff announces individual joins and leaves between polls.
	KindRosterDiff Kind = "roster-diff"
)

// ParseKind accepts kind names plus the legacy numeric codes still present
// in old monitor rows and user habits ("1", "2", "3").
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "", string(KindPopulation):
		return KindPopulation, nil
	case "2", string(KindRoster):
		return KindRoster, nil
	case "3", string(KindRosterDiff), "rosterdiff", "diff":
		return KindRosterDiff, nil
	default:
		return "", fmt.Errorf("unknown monitor kind %q", s)
	}
}

// Key identifies one monitor. All components are canonical strings: server
// numbers and channel ids arrive as mixed integer/string values from
// different entry points, and key equality must not depend on the source
// representation.
type Key struct {
	Server    string
	Kind      Kind
	ChannelID string
	GuildID   string
}

// NewKey canonicalizes the components into a Key.
func NewKey(server string, kind Kind, channelID, guildID string) Key {
	return Key{
		Server:    strings.TrimSpace(server),
		Kind:      kind,
		ChannelID: strings.TrimSpace(channelID),
		GuildID:   strings.TrimSpace(guildID),
	}
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", k.Server, k.Kind, k.ChannelID, k.GuildID)
}
