// Package dashboard is the foreground half of gerrit-view: a bubbletea
// model that drains the event queue on a timer, applies events to the
// board and renders the table.
package dashboard

import (
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/victorarias/gerrit-view/internal/board"
	"github.com/victorarias/gerrit-view/internal/eventqueue"
	"github.com/victorarias/gerrit-view/internal/logging"
	"github.com/victorarias/gerrit-view/internal/status"
	"github.com/victorarias/gerrit-view/internal/watcher"
)

const (
	DefaultInterval = time.Second
	// HighlightWindow is how long a row stays bold after its status changes.
	HighlightWindow = 5 * time.Second
	flashDuration   = 3 * time.Second
)

// StateSource exposes the watcher's observable state.
type StateSource interface {
	Snapshot() watcher.Snapshot
}

// ClipboardWriter is an interface for clipboard operations (allows mocking in tests)
type ClipboardWriter interface {
	WriteText(text string) error
}

type systemClipboard struct{}

func (systemClipboard) WriteText(text string) error {
	return clipboard.WriteAll(text)
}

// Options customize a Model. Zero values pick the defaults.
type Options struct {
	Interval  time.Duration
	Clipboard ClipboardWriter
	OpenURL   func(url string) error
	Now       func() time.Time
}

// Model is the bubbletea model for the dashboard
type Model struct {
	queue      *eventqueue.Queue
	source     StateSource
	board      *board.Board
	dispatcher *Dispatcher
	log        *logging.Logger

	keys      keyMap
	help      help.Model
	clipboard ClipboardWriter
	openURL   func(url string) error
	interval  time.Duration
	now       func() time.Time

	width      int
	height     int
	cursor     int
	statusLine string
	details    string
	flash      string
	flashErr   bool
	flashUntil time.Time
}

// NewModel creates a new dashboard model
func NewModel(queue *eventqueue.Queue, source StateSource, b *board.Board, d *Dispatcher, log *logging.Logger, opts Options) *Model {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Clipboard == nil {
		opts.Clipboard = systemClipboard{}
	}
	if opts.OpenURL == nil {
		opts.OpenURL = openBrowser
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	m := &Model{
		queue:      queue,
		source:     source,
		board:      b,
		dispatcher: d,
		log:        log,
		keys:       defaultKeyMap(),
		help:       help.New(),
		clipboard:  opts.Clipboard,
		openURL:    opts.OpenURL,
		interval:   opts.Interval,
		now:        opts.Now,
		statusLine: status.Initializing,
	}
	m.details = status.Details(m.now(), nil)
	return m
}

type tickMsg time.Time

type clipboardResultMsg struct {
	err error
}

type openResultMsg struct {
	url string
	err error
}

// TickCmd returns a command that fires the next drain cycle.
func TickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init schedules the first tick.
func (m *Model) Init() tea.Cmd {
	return TickCmd(m.interval)
}

// Update handles messages
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.Tick()
		return m, TickCmd(m.interval)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
	case tea.KeyMsg:
		return m.handleKey(msg)
	case clipboardResultMsg:
		if msg.err != nil {
			m.setFlash(fmt.Sprintf("copy failed: %v", msg.err), true)
		} else {
			m.setFlash("Copied to clipboard", false)
		}
	case openResultMsg:
		if msg.err != nil {
			m.log.Errorf("open %s: %v", msg.url, msg.err)
			m.setFlash(fmt.Sprintf("open failed: %v", msg.err), true)
		}
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Up):
		m.moveCursor(-1)
	case key.Matches(msg, m.keys.Down):
		m.moveCursor(1)
	case key.Matches(msg, m.keys.SortNext):
		mode := m.board.CycleSort(1)
		m.log.Debugf("Sort mode: %s", mode)
	case key.Matches(msg, m.keys.SortPrev):
		mode := m.board.CycleSort(-1)
		m.log.Debugf("Sort mode: %s", mode)
	case key.Matches(msg, m.keys.Open):
		if e := m.Selected(); e != nil {
			return m, m.openInBrowser(e.ID)
		}
	case key.Matches(msg, m.keys.Copy):
		if e := m.Selected(); e != nil {
			return m, m.copyURL(e.ID)
		}
	}
	return m, nil
}

// Tick drains the queue, applies the events and refreshes the footer.
func (m *Model) Tick() {
	events := m.queue.DrainAvailable()
	m.dispatcher.Dispatch(events)
	m.statusLine = status.Line(m.source.Snapshot(), len(events))
	m.details = status.Details(m.now(), m.dispatcher.Counts())
	m.clampCursor()
}

func (m *Model) moveCursor(delta int) {
	m.cursor += delta
	m.clampCursor()
}

func (m *Model) clampCursor() {
	n := m.board.Len()
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// Selected returns the entry under the cursor, or nil on an empty board.
func (m *Model) Selected() *board.Entry {
	rows := m.board.Rows()
	if m.cursor >= 0 && m.cursor < len(rows) {
		return rows[m.cursor]
	}
	return nil
}

func (m *Model) setFlash(text string, isErr bool) {
	m.flash = text
	m.flashErr = isErr
	m.flashUntil = m.now().Add(flashDuration)
}

func (m *Model) copyURL(url string) tea.Cmd {
	cb := m.clipboard
	return func() tea.Msg {
		return clipboardResultMsg{err: cb.WriteText(url)}
	}
}

func (m *Model) openInBrowser(url string) tea.Cmd {
	open := m.openURL
	return func() tea.Msg {
		return openResultMsg{url: url, err: open(url)}
	}
}

func openBrowser(url string) error {
	name := "xdg-open"
	if runtime.GOOS == "darwin" {
		name = "open"
	}
	cmd := exec.Command(name, url)
	if err := cmd.Start(); err != nil {
		return err
	}
	go cmd.Wait()
	return nil
}
