package eventqueue

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victorarias/gerrit-view/internal/protocol"
)

func merged(url string) protocol.Event {
	return &protocol.ChangeMerged{Change: protocol.Change{URL: url}}
}

func TestQueue_DrainEmpty(t *testing.T) {
	q := New()
	assert.Nil(t, q.DrainAvailable())
	assert.Equal(t, 0, q.Len())
}

func TestQueue_FIFO(t *testing.T) {
	q := New()
	q.Enqueue(merged("a"))
	q.Enqueue(merged("b"))
	q.Enqueue(merged("c"))
	require.Equal(t, 3, q.Len())

	got := q.DrainAvailable()
	require.Len(t, got, 3)
	for i, want := range []string{"a", "b", "c"} {
		assert.Equal(t, want, got[i].ChangeInfo().URL)
	}
	assert.Nil(t, q.DrainAvailable(), "drain empties the queue")
}

func TestQueue_ConcurrentProducer(t *testing.T) {
	q := New()
	const n = 1000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			q.Enqueue(merged(fmt.Sprintf("c%d", i)))
		}
	}()

	var got []protocol.Event
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for {
		got = append(got, q.DrainAvailable()...)
		select {
		case <-done:
			got = append(got, q.DrainAvailable()...)
			require.Len(t, got, n)
			for i, ev := range got {
				assert.Equal(t, fmt.Sprintf("c%d", i), ev.ChangeInfo().URL)
			}
			return
		default:
		}
	}
}
