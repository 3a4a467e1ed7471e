package dashboard

import (
	"fmt"
	"maps"

	"github.com/victorarias/gerrit-view/internal/board"
	"github.com/victorarias/gerrit-view/internal/logging"
	"github.com/victorarias/gerrit-view/internal/protocol"
)

// Dispatcher applies drained events to the board and keeps the per-kind
// tallies shown in the footer. It belongs to the render loop.
type Dispatcher struct {
	board    *board.Board
	log      *logging.Logger
	projects map[string]bool // empty means every project
	counts   map[protocol.Kind]int
	rejected int
}

func NewDispatcher(b *board.Board, log *logging.Logger, projects []string) *Dispatcher {
	d := &Dispatcher{
		board:  b,
		log:    log,
		counts: make(map[protocol.Kind]int),
	}
	if len(projects) > 0 {
		d.projects = make(map[string]bool, len(projects))
		for _, p := range projects {
			d.projects[p] = true
		}
	}
	return d
}

// Dispatch applies events in order. A failing event is logged and counted
// as rejected; the rest of the batch still runs.
func (d *Dispatcher) Dispatch(events []protocol.Event) {
	for _, ev := range events {
		if err := d.safeApply(ev); err != nil {
			d.rejected++
			d.log.Errorf("Failed handling event %s: %v", ev.Kind(), err)
		}
	}
}

func (d *Dispatcher) safeApply(ev protocol.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return d.Apply(ev)
}

// Apply routes one event to its board handler. Kinds outside
// protocol.Kinds are a protocol violation and return ErrUnknownEventKind.
// Events for projects outside the filter are skipped and not counted.
func (d *Dispatcher) Apply(ev protocol.Event) error {
	if !protocol.IsKnown(ev.Kind()) {
		return fmt.Errorf("%w: %q", protocol.ErrUnknownEventKind, ev.Kind())
	}
	if !d.accepts(ev) {
		return nil
	}

	change := ev.ChangeInfo()
	switch e := ev.(type) {
	case *protocol.PatchSetCreated:
		d.board.OnCreate(board.NewEntry(e))
	case *protocol.CommentAdded:
		d.board.OnUpdate(change.URL, protocol.Ptr(protocol.StatusFromApprovals(e.Approvals)), protocol.Ptr(e.Comment))
	case *protocol.ChangeMerged:
		d.board.OnUpdate(change.URL, protocol.Ptr(protocol.StatusMerged), nil)
	case *protocol.ChangeAbandoned:
		d.board.OnUpdate(change.URL, protocol.Ptr(protocol.StatusAbandoned), protocol.Ptr(e.Reason))
	case *protocol.ChangeRestored:
		d.board.OnUpdate(change.URL, protocol.Ptr(protocol.StatusRestored), protocol.Ptr(e.Reason))
	default:
		return fmt.Errorf("%w: %T", protocol.ErrUnknownEventKind, ev)
	}
	d.counts[ev.Kind()]++
	return nil
}

func (d *Dispatcher) accepts(ev protocol.Event) bool {
	if len(d.projects) == 0 {
		return true
	}
	return d.projects[ev.ChangeInfo().Project]
}

// Counts returns a copy of the per-kind tallies.
func (d *Dispatcher) Counts() map[protocol.Kind]int {
	return maps.Clone(d.counts)
}

// Total is the number of events applied to the board.
func (d *Dispatcher) Total() int {
	total := 0
	for _, n := range d.counts {
		total += n
	}
	return total
}

// Rejected is the number of events that failed to apply.
func (d *Dispatcher) Rejected() int {
	return d.rejected
}
