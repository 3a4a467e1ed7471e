// Package watcher keeps a connection to the review server open, replays a
// reconciliation query on every (re)connect and forwards pushed events to
// the event queue.
package watcher

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"

	"github.com/victorarias/gerrit-view/internal/client"
	"github.com/victorarias/gerrit-view/internal/eventqueue"
	"github.com/victorarias/gerrit-view/internal/logging"
	"github.com/victorarias/gerrit-view/internal/protocol"
)

// Defaults
const (
	DefaultAttempts  = 5
	DefaultBaseDelay = time.Second
	DefaultIdleAfter = 5 * time.Second
)

// Options tune a Watcher. Zero values pick the defaults.
type Options struct {
	Prefetch  int           // rows requested by the first reconciliation
	Attempts  int           // connect attempts per backoff cycle
	BaseDelay time.Duration // first backoff delay; doubles each attempt
	IdleAfter time.Duration // quiet time before the state reads idle
}

// Watcher is the only owner of the remote connection and the only
// producer into the queue. Its exported methods are safe to call from
// other goroutines.
type Watcher struct {
	dialer    client.Dialer
	queue     *eventqueue.Queue
	log       *logging.Logger
	prefetch  int
	attempts  int
	baseDelay time.Duration
	idleAfter time.Duration

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time

	connMu  sync.Mutex
	conn    client.Conn
	connLog *logrus.Entry

	alive           atomic.Bool
	state           atomic.Int32
	reconciled      atomic.Bool
	reconciliations atomic.Int64
	lastEvent       atomic.Int64 // unix nanos
}

func New(dialer client.Dialer, queue *eventqueue.Queue, log *logging.Logger, opts Options) *Watcher {
	if opts.Attempts <= 0 {
		opts.Attempts = DefaultAttempts
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultBaseDelay
	}
	if opts.IdleAfter <= 0 {
		opts.IdleAfter = DefaultIdleAfter
	}
	if opts.Prefetch < 0 {
		opts.Prefetch = 0
	}
	return &Watcher{
		dialer:    dialer,
		queue:     queue,
		log:       log,
		prefetch:  opts.Prefetch,
		attempts:  opts.Attempts,
		baseDelay: opts.BaseDelay,
		idleAfter: opts.IdleAfter,
		sleep:     sleepContext,
		now:       time.Now,
	}
}

// Start runs the watcher in a background goroutine until ctx is done.
func (w *Watcher) Start(ctx context.Context) {
	go w.Run(ctx)
}

// Run connects, reconciles and reads events until ctx is cancelled.
// Failures never escape: they are logged and turned into reconnects.
func (w *Watcher) Run(ctx context.Context) {
	w.alive.Store(true)
	stop := context.AfterFunc(ctx, w.dropConn)
	defer stop()
	defer w.dropConn()

	for ctx.Err() == nil {
		conn := w.current()
		if conn == nil {
			if err := w.ensureConnected(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				w.log.Fatalf("%v", err)
			}
			continue
		}
		w.consume(ctx, conn)
	}
}

// ensureConnected runs one backoff cycle: up to attempts connects, sleeping
// base*2^n after the n-th failure. Each call starts the schedule over.
func (w *Watcher) ensureConnected(ctx context.Context) error {
	backoff := retry.WithMaxRetries(uint64(w.attempts), retry.NewExponential(w.baseDelay))
	for {
		delay, stop := backoff.Next()
		if stop {
			return fmt.Errorf("could not connect to %s after %d attempts", w.dialer, w.attempts)
		}
		err := w.connect(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.log.Errorf("Exception while connecting to %s: %v", w.dialer, err)
		w.log.Infof("Trying connection again in %s", delay)
		if err := w.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func (w *Watcher) connect(ctx context.Context) error {
	w.state.Store(int32(StateConnecting))

	conn, err := w.dialer.Dial(ctx)
	if err != nil {
		return err
	}
	connLog := w.log.WithField("conn", uuid.NewString()[:8])
	connLog.Infof("Connected to %s", w.dialer)

	if err := w.reconcile(ctx, conn, connLog); err != nil {
		conn.Close()
		return fmt.Errorf("reconcile: %w", err)
	}
	if err := conn.Subscribe(ctx); err != nil {
		conn.Close()
		return fmt.Errorf("subscribe: %w", err)
	}

	w.connMu.Lock()
	w.conn = conn
	w.connLog = connLog
	w.connMu.Unlock()
	w.state.Store(int32(StateIdle))
	connLog.Info("Start watching gerrit event stream.")
	return nil
}

// reconcile replays open changes as creation events, oldest first. The
// first run asks for prefetch rows; later runs ask for one and trust the
// stream for the rest.
func (w *Watcher) reconcile(ctx context.Context, conn client.Conn, log *logrus.Entry) error {
	limit := w.prefetch
	if w.reconciled.Load() {
		limit = min(1, w.prefetch)
	}
	if limit <= 0 {
		w.reconciled.Store(true)
		return nil
	}
	if !w.reconciled.Load() {
		w.state.Store(int32(StatePrefetching))
	}

	w.reconciliations.Add(1)
	rows, err := conn.Query(ctx, limit)
	if err != nil {
		return err
	}
	if len(rows) > limit {
		log.Infof("Reconciliation returned %d rows, keeping newest %d", len(rows), limit)
	}
	events := protocol.SynthesizeCreated(rows, limit)
	for _, ev := range events {
		w.queue.Enqueue(ev)
	}
	w.reconciled.Store(true)
	log.Infof("Reconciled %d open changes", len(events))
	return nil
}

// consume reads one event. A failed read on a dead stream drops the
// connection so the next loop iteration reconnects.
func (w *Watcher) consume(ctx context.Context, conn client.Conn) {
	data, err := conn.Recv()
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.logger().Errorf("Exception encountered in event loop: %v", err)
		if !conn.Alive() {
			w.dropConn()
			w.state.Store(int32(StateConnecting))
		}
		return
	}
	if len(data) == 0 {
		return
	}

	ev, err := protocol.ParseEvent(data)
	if err != nil {
		w.logger().Errorf("Dropping event: %v", err)
		return
	}
	w.logger().Debugf("Placing event on producer queue: %s %s", ev.Kind(), ev.ChangeInfo().URL)
	w.queue.Enqueue(ev)
	w.lastEvent.Store(w.now().UnixNano())
}

func (w *Watcher) current() client.Conn {
	w.connMu.Lock()
	defer w.connMu.Unlock()
	return w.conn
}

func (w *Watcher) logger() *logrus.Entry {
	w.connMu.Lock()
	defer w.connMu.Unlock()
	if w.connLog == nil {
		return w.log.WithField("conn", "-")
	}
	return w.connLog
}

// dropConn closes and forgets the current connection, if any.
func (w *Watcher) dropConn() {
	w.connMu.Lock()
	conn := w.conn
	w.conn = nil
	w.connMu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// IsAlive reports whether Run has started.
func (w *Watcher) IsAlive() bool {
	return w.alive.Load()
}

// IsConnected reports whether the live stream is subscribed.
func (w *Watcher) IsConnected() bool {
	return w.State().Connected()
}

// HasCompletedInitialReconciliation reports whether the first
// reconciliation query has been replayed.
func (w *Watcher) HasCompletedInitialReconciliation() bool {
	return w.reconciled.Load()
}

// ReconciliationAttempts counts reconciliation queries issued so far.
func (w *Watcher) ReconciliationAttempts() int64 {
	return w.reconciliations.Load()
}

// State returns the lifecycle state; a connected watcher reads as
// receiving while events arrived within the idle window.
func (w *Watcher) State() State {
	s := State(w.state.Load())
	if s != StateIdle {
		return s
	}
	last := w.lastEvent.Load()
	if last != 0 && w.now().Sub(time.Unix(0, last)) < w.idleAfter {
		return StateReceiving
	}
	return StateIdle
}

// Snapshot reads every observable field at once.
func (w *Watcher) Snapshot() Snapshot {
	state := w.State()
	return Snapshot{
		Alive:           w.IsAlive(),
		Connected:       state.Connected(),
		Reconciled:      w.HasCompletedInitialReconciliation(),
		State:           state,
		Reconciliations: w.ReconciliationAttempts(),
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
