package notifications

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"cala2mqtt/internal/model"
)

// Watcher tracks per-heater alert conditions and sends a notification on
// each transition. The first state seen for a heater sets the baseline, so a
// restart does not replay old alerts, except for an active safety lockout
// which is always worth flagging.
type Watcher struct {
	mu        sync.Mutex
	lockout   map[string]bool
	connected map[string]bool
	seen      map[string]bool
}

func NewWatcher() *Watcher {
	return &Watcher{
		lockout:   make(map[string]bool),
		connected: make(map[string]bool),
		seen:      make(map[string]bool),
	}
}

// HandleState is a coordinator listener.
func (w *Watcher) HandleState(state model.State) {
	id := state.Heater.ID
	name := state.Heater.Name

	locked := state.Telemetry.SafetyLockout != nil && *state.Telemetry.SafetyLockout
	connected := state.Connected()

	w.mu.Lock()
	first := !w.seen[id]
	prevLocked := w.lockout[id]
	prevConnected := w.connected[id]
	w.seen[id] = true
	w.lockout[id] = locked
	w.connected[id] = connected
	w.mu.Unlock()

	if first {
		if locked {
			w.send("Water heater safety lockout",
				fmt.Sprintf("%s is in safety lockout", name))
		}
		return
	}

	if locked && !prevLocked {
		w.send("Water heater safety lockout",
			fmt.Sprintf("%s entered safety lockout", name))
	}
	if !locked && prevLocked {
		w.send("Water heater recovered",
			fmt.Sprintf("%s cleared its safety lockout", name))
	}

	if !connected && prevConnected {
		w.send("Water heater offline",
			fmt.Sprintf("%s lost its cloud connection", name))
	}
	if connected && !prevConnected {
		w.send("Water heater online",
			fmt.Sprintf("%s reconnected to the cloud", name))
	}
}

func (w *Watcher) send(title, message string) {
	if !Enabled() {
		return
	}
	if err := Send(title, message); err != nil {
		log.Warn().Err(err).Str("title", title).Msg("Failed to send notification")
	}
}
