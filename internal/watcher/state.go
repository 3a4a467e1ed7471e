package watcher

// State is the watcher's connection lifecycle position.
type State int32

const (
	StateNeverConnected State = iota
	StateConnecting
	StatePrefetching
	StateIdle      // connected, nothing received lately
	StateReceiving // connected, events flowing
)

var stateNames = map[State]string{
	StateNeverConnected: "never-connected",
	StateConnecting:     "connecting",
	StatePrefetching:    "prefetching",
	StateIdle:           "connected-idle",
	StateReceiving:      "connected-receiving",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Connected reports whether s has a live subscription.
func (s State) Connected() bool {
	return s == StateIdle || s == StateReceiving
}

// Snapshot is a consistent-enough read of the watcher for one render tick.
type Snapshot struct {
	Alive           bool
	Connected       bool
	Reconciled      bool
	State           State
	Reconciliations int64
}
