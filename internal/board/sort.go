package board

import (
	"cmp"
	"slices"
	"strings"

	"github.com/victorarias/gerrit-view/internal/format"
)

// SortField is the column a sort mode orders by.
type SortField int

const (
	SortNone SortField = iota
	SortCreated
	SortSubject
	SortUsername
	SortProject
	SortTopic
)

var sortFieldNames = map[SortField]string{
	SortNone:     "none",
	SortCreated:  "created",
	SortSubject:  "subject",
	SortUsername: "username",
	SortProject:  "project",
	SortTopic:    "topic",
}

func (f SortField) String() string {
	return sortFieldNames[f]
}

// SortMode is a (field, direction) pair.
type SortMode struct {
	Field      SortField
	Descending bool
}

// SortModes is the fixed cycle order; it starts and wraps at "none".
var SortModes = []SortMode{
	{Field: SortNone},
	{Field: SortCreated},
	{Field: SortCreated, Descending: true},
	{Field: SortSubject},
	{Field: SortSubject, Descending: true},
	{Field: SortUsername},
	{Field: SortUsername, Descending: true},
	{Field: SortProject},
	{Field: SortProject, Descending: true},
	{Field: SortTopic},
	{Field: SortTopic, Descending: true},
}

func (m SortMode) String() string {
	if m.Field == SortNone {
		return "none"
	}
	if m.Descending {
		return m.Field.String() + " ▼"
	}
	return m.Field.String() + " ▲"
}

func (m SortMode) index() int {
	return slices.Index(SortModes, m)
}

// Compare orders a before b ascending by field. Text fields compare the
// rendered cell text byte-wise; a missing creation time sorts first.
func Compare(a, b *Entry, field SortField) int {
	switch field {
	case SortCreated:
		az, bz := a.Created.IsZero(), b.Created.IsZero()
		switch {
		case az && bz:
			return 0
		case az:
			return -1
		case bz:
			return 1
		}
		return cmp.Compare(a.Created, b.Created)
	case SortSubject:
		return strings.Compare(format.Truncate(a.Subject), format.Truncate(b.Subject))
	case SortUsername:
		return strings.Compare(a.Username, b.Username)
	case SortProject:
		return strings.Compare(a.Project, b.Project)
	case SortTopic:
		return strings.Compare(a.Topic, b.Topic)
	}
	return 0
}

// Sorted returns a new slice of entries in mode order. Ties keep their
// input order ascending; descending is the exact reverse of ascending.
func Sorted(entries []*Entry, mode SortMode) []*Entry {
	out := slices.Clone(entries)
	if mode.Field == SortNone {
		return out
	}
	slices.SortStableFunc(out, func(a, b *Entry) int {
		return Compare(a, b, mode.Field)
	})
	if mode.Descending {
		slices.Reverse(out)
	}
	return out
}
