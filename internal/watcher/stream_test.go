package watcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victorarias/gerrit-view/internal/client"
	"github.com/victorarias/gerrit-view/internal/client/mockserver"
	"github.com/victorarias/gerrit-view/internal/eventqueue"
	"github.com/victorarias/gerrit-view/internal/logging"
	"github.com/victorarias/gerrit-view/internal/protocol"
)

// Runs the watcher against the fake relay: reconcile, stream, drop,
// reconnect with a one-row reconciliation.
func TestWatcher_WebSocketRelay(t *testing.T) {
	server := mockserver.New()
	defer server.Close()

	base := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)
	var changes []mockserver.MockChange
	for i := 1; i <= 3; i++ {
		c := mockserver.MockChange{
			Project:  "openstack/nova",
			Number:   i,
			Subject:  "change",
			Uploader: "jdoe",
			Created:  base.Add(time.Duration(i) * time.Hour),
		}
		server.AddChange(c)
		changes = append(changes, c)
	}

	dialer := &client.WebSocketDialer{URL: server.WSURL(), RESTURL: server.URL}
	q := eventqueue.New()
	w := New(dialer, q, logging.Discard(), Options{Prefetch: 2})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	var got []protocol.Event
	collect := func(n int) bool {
		got = append(got, q.DrainAvailable()...)
		return len(got) >= n
	}

	require.Eventually(t, func() bool { return collect(2) }, 5*time.Second, 10*time.Millisecond)
	require.Len(t, got, 2)
	assert.Equal(t, server.ChangeURL(changes[1]), got[0].ChangeInfo().URL)
	assert.Equal(t, server.ChangeURL(changes[2]), got[1].ChangeInfo().URL)
	assert.True(t, w.HasCompletedInitialReconciliation())

	require.Eventually(t, w.IsConnected, 5*time.Second, 10*time.Millisecond)
	server.Push(`{"type":"change-merged","change":{"project":"openstack/nova","url":"` + server.ChangeURL(changes[2]) + `"}}`)
	require.Eventually(t, func() bool { return collect(3) }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, protocol.KindChangeMerged, got[2].Kind())

	server.DropStreams()
	require.Eventually(t, func() bool { return server.Streams() == 2 && collect(4) }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, server.ChangeURL(changes[2]), got[3].ChangeInfo().URL)

	queries := server.Queries()
	require.Len(t, queries, 2)
	assert.Contains(t, queries[0], "n=2")
	assert.Contains(t, queries[1], "n=1")
	assert.Equal(t, int64(2), w.ReconciliationAttempts())
}
