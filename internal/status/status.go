// Package status builds the dashboard footer: a status line on the left
// and clock plus event tallies on the right.
package status

import (
	"fmt"
	"strings"
	"time"

	"github.com/victorarias/gerrit-view/internal/format"
	"github.com/victorarias/gerrit-view/internal/protocol"
	"github.com/victorarias/gerrit-view/internal/watcher"
)

const (
	Initializing = "Initializing..."
	Prefetching  = "Connecting (prefetching)..."
	Connecting   = "Connecting..."
	Waiting      = "Waiting for events..."
	Processing   = "Processing events..."
)

// Line describes the watcher for one tick. drained is how many events the
// tick pulled off the queue.
func Line(snap watcher.Snapshot, drained int) string {
	switch {
	case !snap.Alive:
		return Initializing
	case !snap.Connected && !snap.Reconciled:
		return Prefetching
	case !snap.Connected:
		return Connecting
	case drained == 0:
		return Waiting
	default:
		return Processing
	}
}

// Details formats "<clock>, N events received" followed by the non-zero
// per-kind tallies.
func Details(now time.Time, counts map[protocol.Kind]int) string {
	total := 0
	var tallies []string
	for _, kind := range protocol.Kinds {
		n := counts[kind]
		if n == 0 {
			continue
		}
		total += n
		tallies = append(tallies, fmt.Sprintf("%s: %d", kind, n))
	}

	noun := "events"
	if total == 1 {
		noun = "event"
	}
	text := fmt.Sprintf("%s, %d %s received", format.FormatClock(now), total, noun)
	if len(tallies) > 0 {
		text += " (" + strings.Join(tallies, ", ") + ")"
	}
	return text
}
