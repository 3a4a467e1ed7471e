// Package client talks to the Gerrit server. The watcher only sees the
// Dialer and Conn interfaces; SSH and a WebSocket relay implement them.
package client

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/victorarias/gerrit-view/internal/protocol"
)

// ErrClosed is returned by Recv once the connection has shut down.
var ErrClosed = errors.New("connection closed")

// Conn is one live connection to the review server
type Conn interface {
	// Query returns up to limit open changes. limit <= 0 returns nothing.
	Query(ctx context.Context, limit int) ([]protocol.ChangeRow, error)
	// Subscribe starts the pushed event stream.
	Subscribe(ctx context.Context) error
	// Recv blocks until the next raw event line arrives.
	Recv() ([]byte, error)
	// Alive reports whether the underlying stream is still up.
	Alive() bool
	Close() error
}

// Dialer opens connections
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
	String() string
}

// QueryString builds the open-changes search, narrowed to projects when any
// are given.
func QueryString(projects []string) string {
	q := "status:open"
	switch len(projects) {
	case 0:
	case 1:
		q += " project:" + projects[0]
	default:
		terms := make([]string, len(projects))
		for i, p := range projects {
			terms[i] = "project:" + p
		}
		q += " (" + strings.Join(terms, " OR ") + ")"
	}
	return q
}

// QueryCommand returns the remote command for a reconciliation query.
func QueryCommand(limit int, projects []string) string {
	return fmt.Sprintf("gerrit query --format=JSON --current-patch-set '%s' limit:%d", QueryString(projects), limit)
}

// StreamCommand is the remote command for the live event feed.
const StreamCommand = "gerrit stream-events"
