package client

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victorarias/gerrit-view/internal/client/mockserver"
	"github.com/victorarias/gerrit-view/internal/protocol"
)

func newServer(t *testing.T) *mockserver.Server {
	t.Helper()
	s := mockserver.New()
	t.Cleanup(s.Close)
	return s
}

func TestWebSocketConn_RecvUntilDropped(t *testing.T) {
	s := newServer(t)
	s.Push(`{"type":"change-merged","change":{"project":"p","url":"u1"}}`)
	s.Push("{\"type\":\"comment-added\",\"change\":{\"project\":\"p\",\"url\":\"u2\"}}\n")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	d := &WebSocketDialer{URL: s.WSURL()}
	conn, err := d.Dial(ctx)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.Subscribe(ctx))

	first, err := conn.Recv()
	require.NoError(t, err)
	ev, err := protocol.ParseEvent(first)
	require.NoError(t, err)
	assert.Equal(t, protocol.KindChangeMerged, ev.Kind())

	second, err := conn.Recv()
	require.NoError(t, err)
	assert.False(t, strings.HasSuffix(string(second), "\n"))
	assert.True(t, conn.Alive())

	s.DropStreams()
	_, err = conn.Recv()
	require.Error(t, err)
	assert.False(t, conn.Alive())
}

func TestWebSocketConn_QueryUsesREST(t *testing.T) {
	s := newServer(t)
	change := mockserver.MockChange{
		Project:  "openstack/nova",
		Number:   77,
		Subject:  "Fix",
		Topic:    "tp",
		Owner:    "owner",
		Uploader: "uploader",
		Created:  time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC),
	}
	s.AddChange(change)
	s.AddChange(mockserver.MockChange{Project: "openstack/swift", Number: 78, Created: change.Created})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	d := &WebSocketDialer{URL: s.WSURL(), RESTURL: s.URL + "/", Projects: []string{"openstack/nova"}}
	conn, err := d.Dial(ctx)
	require.NoError(t, err)
	defer conn.Close()

	rows, err := conn.Query(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	ev := rows[0].ToPatchSetCreated()
	assert.Equal(t, s.ChangeURL(change), ev.Change.URL)
	assert.Equal(t, "uploader", ev.Uploader.Username)
	assert.Equal(t, "tp", ev.Change.Topic)
	assert.Equal(t, protocol.NewEpoch(change.Created), ev.PatchSet.CreatedOn)

	queries := s.Queries()
	require.Len(t, queries, 1)
	assert.Contains(t, queries[0], "n=10")
	assert.Contains(t, queries[0], "project%3Aopenstack%2Fnova")
}

func TestWebSocketConn_QueryWithoutRESTIsEmpty(t *testing.T) {
	s := newServer(t)
	s.AddChange(mockserver.MockChange{Project: "p", Number: 1, Created: time.Now()})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := (&WebSocketDialer{URL: s.WSURL()}).Dial(ctx)
	require.NoError(t, err)
	defer conn.Close()

	rows, err := conn.Query(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Empty(t, s.Queries())
}

func TestWebSocketConn_QueryErrorStatus(t *testing.T) {
	s := newServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := (&WebSocketDialer{URL: s.WSURL(), RESTURL: s.URL + "/missing"}).Dial(ctx)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Query(ctx, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestWebSocketDialer_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := (&WebSocketDialer{URL: "ws://127.0.0.1:1/events"}).Dial(ctx)
	assert.Error(t, err)
}
