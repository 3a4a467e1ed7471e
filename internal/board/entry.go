package board

import (
	"time"

	"github.com/victorarias/gerrit-view/internal/format"
	"github.com/victorarias/gerrit-view/internal/protocol"
)

// Column is one cell position in a rendered row
type Column int

const (
	ColUsername Column = iota
	ColTopic
	ColURL
	ColProject
	ColSubject
	ColCreated
	ColStatus
	ColComment
)

// Columns lists every column in display order.
var Columns = []Column{ColUsername, ColTopic, ColURL, ColProject, ColSubject, ColCreated, ColStatus, ColComment}

var columnTitles = map[Column]string{
	ColUsername: "Username",
	ColTopic:    "Topic",
	ColURL:      "Url",
	ColProject:  "Project",
	ColSubject:  "Subject",
	ColCreated:  "Created On",
	ColStatus:   "Status",
	ColComment:  "Comment",
}

func (c Column) String() string {
	return columnTitles[c]
}

// Entry is one review request on the board. Identity fields are fixed at
// creation; Status and Comment change as events arrive.
type Entry struct {
	ID       string // change URL
	Username string
	Topic    string
	Project  string
	Subject  string
	Created  protocol.Epoch

	Status        string
	Comment       string
	StatusChanged time.Time
}

// NewEntry builds an entry from a creation event.
func NewEntry(ev *protocol.PatchSetCreated) *Entry {
	return &Entry{
		ID:       ev.Change.URL,
		Username: ev.Uploader.Username,
		Topic:    ev.Change.Topic,
		Project:  ev.Change.Project,
		Subject:  ev.Change.Subject,
		Created:  ev.PatchSet.CreatedOn,
	}
}

// Text returns the rendered cell text for col.
func (e *Entry) Text(col Column, now time.Time) string {
	switch col {
	case ColUsername:
		return e.Username
	case ColTopic:
		return e.Topic
	case ColURL:
		return e.ID
	case ColProject:
		return e.Project
	case ColSubject:
		return format.Truncate(e.Subject)
	case ColCreated:
		return format.FormatTimestamp(e.Created, now)
	case ColStatus:
		return e.Status
	case ColComment:
		return format.Truncate(format.OneLine(e.Comment))
	}
	return ""
}

// Row renders every column in order.
func (e *Entry) Row(now time.Time) []string {
	row := make([]string, len(Columns))
	for i, col := range Columns {
		row[i] = e.Text(col, now)
	}
	return row
}

// RecentlyChanged reports whether the status moved within window of now.
func (e *Entry) RecentlyChanged(now time.Time, window time.Duration) bool {
	if e.StatusChanged.IsZero() {
		return false
	}
	return now.Sub(e.StatusChanged) < window
}
