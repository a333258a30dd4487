package monitor

import "fmt"

// populationState is the population monitor's persisted run state. The
// window holds the most recent per-tick player counts, oldest first,
// capped at windowCap entries. Timestamps are unix seconds.
type populationState struct {
	Window     []int `json:"window"`
	LastTick   int64 `json:"last_tick"`
	LastRename int64 `json:"last_rename"`
}

// diffState is the roster-diff monitor's persisted run state: the occupant
// set seen last tick plus the display names resolved for it, so a leave can
// still be announced by name.
type diffState struct {
	PUIDs []string          `json:"puids"`
	Names map[string]string `json:"names"`
}

const windowCap = 60

func populationDocKey(k Key) string {
	return fmt.Sprintf("monitor:population:%s:%s:%s", k.Server, k.ChannelID, k.GuildID)
}

func diffDocKey(k Key) string {
	return fmt.Sprintf("monitor:roster-diff:%s:%s:%s", k.Server, k.ChannelID, k.GuildID)
}

// appendSample pushes a count onto the window, dropping the oldest entry
// once the cap is reached.
func appendSample(window []int, n int) []int {
	window = append(window, n)
	if len(window) > windowCap {
		window = window[len(window)-windowCap:]
	}
	return window
}
