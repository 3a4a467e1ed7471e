// Package board keeps the bounded, sortable table of review requests.
//
// A Board is owned by a single goroutine (the render loop) and does no
// locking of its own.
package board

import (
	"fmt"
	"time"
)

// Board holds at most capacity entries. recent is newest-first and decides
// eviction; view is recent re-ordered by the active sort mode.
type Board struct {
	capacity int
	recent   []*Entry
	byID     map[string]*Entry
	mode     SortMode
	view     []*Entry
	now      func() time.Time
}

// New creates an empty board. capacity must be positive.
func New(capacity int) (*Board, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("board capacity must be positive, got %d", capacity)
	}
	return &Board{
		capacity: capacity,
		byID:     make(map[string]*Entry),
		now:      time.Now,
	}, nil
}

// SetClock overrides the clock used to stamp status changes (for testing).
func (b *Board) SetClock(now func() time.Time) {
	b.now = now
}

// OnCreate inserts e at the head of recency order, evicting the oldest
// entry when over capacity. An entry whose ID is already present is
// ignored; the return value reports whether e was inserted.
func (b *Board) OnCreate(e *Entry) bool {
	if _, exists := b.byID[e.ID]; exists {
		return false
	}

	b.recent = append(b.recent, nil)
	copy(b.recent[1:], b.recent)
	b.recent[0] = e
	b.byID[e.ID] = e

	for len(b.recent) > b.capacity {
		last := len(b.recent) - 1
		delete(b.byID, b.recent[last].ID)
		b.recent[last] = nil
		b.recent = b.recent[:last]
	}

	b.resort()
	return true
}

// OnUpdate sets the status label and/or comment of the entry with id. Nil
// or empty values leave the field alone. Unknown ids are ignored; the
// return value reports whether an entry was found.
func (b *Board) OnUpdate(id string, status, comment *string) bool {
	e, ok := b.byID[id]
	if !ok {
		return false
	}
	if comment != nil && *comment != "" {
		e.Comment = *comment
	}
	if status != nil && *status != "" {
		e.Status = *status
		e.StatusChanged = b.now()
	}
	return true
}

// SetSortMode switches the display order. Capacity and eviction are not
// affected.
func (b *Board) SetSortMode(mode SortMode) {
	b.mode = mode
	b.resort()
}

// CycleSort moves step positions through SortModes, wrapping around, and
// returns the new mode.
func (b *Board) CycleSort(step int) SortMode {
	n := len(SortModes)
	i := b.mode.index()
	if i < 0 {
		i = 0
	}
	next := ((i+step)%n + n) % n
	b.SetSortMode(SortModes[next])
	return b.mode
}

// SortMode returns the active display mode.
func (b *Board) SortMode() SortMode {
	return b.mode
}

func (b *Board) resort() {
	b.view = Sorted(b.recent, b.mode)
}

// Rows returns entries in display order. The slice must not be modified.
func (b *Board) Rows() []*Entry {
	return b.view
}

// Recent returns entries newest-first regardless of sort mode. The slice
// must not be modified.
func (b *Board) Recent() []*Entry {
	return b.recent
}

// Get looks up an entry by change URL.
func (b *Board) Get(id string) (*Entry, bool) {
	e, ok := b.byID[id]
	return e, ok
}

func (b *Board) Len() int {
	return len(b.recent)
}
