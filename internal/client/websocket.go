package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"

	"github.com/victorarias/gerrit-view/internal/protocol"
)

// WebSocketDialer reads stream-events relayed over a WebSocket, one event
// per text message. Reconciliation goes through Gerrit's REST API when
// RESTURL is set and is skipped otherwise.
type WebSocketDialer struct {
	URL        string
	RESTURL    string
	Projects   []string
	HTTPClient *http.Client
}

func (d *WebSocketDialer) String() string {
	return d.URL
}

func (d *WebSocketDialer) Dial(ctx context.Context) (Conn, error) {
	ws, _, err := websocket.Dial(ctx, d.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", d.URL, err)
	}
	ws.SetReadLimit(protocol.MaxLineSize)

	httpClient := d.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	readCtx, cancel := context.WithCancel(context.Background())
	c := &wsConn{
		ws:       ws,
		rest:     strings.TrimRight(d.RESTURL, "/"),
		projects: d.Projects,
		http:     httpClient,
		ctx:      readCtx,
		cancel:   cancel,
	}
	c.alive.Store(true)
	return c, nil
}

type wsConn struct {
	ws       *websocket.Conn
	rest     string
	projects []string
	http     *http.Client

	ctx    context.Context
	cancel context.CancelFunc
	alive  atomic.Bool
	close  sync.Once
}

// restChange is the subset of Gerrit's ChangeInfo the board needs.
type restChange struct {
	Project         string                  `json:"project"`
	Branch          string                  `json:"branch"`
	Topic           string                  `json:"topic"`
	ChangeID        string                  `json:"change_id"`
	Subject         string                  `json:"subject"`
	Status          string                  `json:"status"`
	Created         string                  `json:"created"`
	Updated         string                  `json:"updated"`
	Number          int                     `json:"_number"`
	Owner           restAccount             `json:"owner"`
	CurrentRevision string                  `json:"current_revision"`
	Revisions       map[string]restRevision `json:"revisions"`
}

type restAccount struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

type restRevision struct {
	Number   int         `json:"_number"`
	Ref      string      `json:"ref"`
	Created  string      `json:"created"`
	Uploader restAccount `json:"uploader"`
}

// Gerrit REST timestamps are UTC without a zone marker.
const restTimeLayout = "2006-01-02 15:04:05.000000000"

func parseRESTTime(s string) protocol.Epoch {
	if s == "" {
		return 0
	}
	t, err := time.ParseInLocation(restTimeLayout, s, time.UTC)
	if err != nil {
		return 0
	}
	return protocol.NewEpoch(t)
}

func (a restAccount) account() protocol.Account {
	return protocol.Account{Name: a.Name, Email: a.Email, Username: a.Username}
}

func (r restChange) row(base string) protocol.ChangeRow {
	row := protocol.ChangeRow{
		Change: protocol.Change{
			Project: r.Project,
			Branch:  r.Branch,
			Topic:   r.Topic,
			ID:      r.ChangeID,
			Subject: r.Subject,
			Owner:   r.Owner.account(),
			URL:     fmt.Sprintf("%s/c/%s/+/%d", base, r.Project, r.Number),
			Status:  r.Status,
		},
		Number:      protocol.FlexString(strconv.Itoa(r.Number)),
		CreatedOn:   parseRESTTime(r.Created),
		LastUpdated: parseRESTTime(r.Updated),
	}
	if rev, ok := r.Revisions[r.CurrentRevision]; ok {
		row.CurrentPatchSet = &protocol.PatchSet{
			Number:    protocol.FlexString(strconv.Itoa(rev.Number)),
			Revision:  r.CurrentRevision,
			Ref:       rev.Ref,
			Uploader:  rev.Uploader.account(),
			CreatedOn: parseRESTTime(rev.Created),
		}
	}
	return row
}

// xssiPrefix guards every Gerrit REST JSON body.
var xssiPrefix = []byte(")]}'")

func (c *wsConn) Query(ctx context.Context, limit int) ([]protocol.ChangeRow, error) {
	if limit <= 0 || c.rest == "" {
		return nil, nil
	}
	q := url.Values{}
	q.Set("q", QueryString(c.projects))
	q.Set("n", strconv.Itoa(limit))
	q.Add("o", "CURRENT_REVISION")
	q.Add("o", "DETAILED_ACCOUNTS")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.rest+"/changes/?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query changes: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read changes: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("query changes: %s: %s", resp.Status, bytes.TrimSpace(body))
	}
	body = bytes.TrimPrefix(bytes.TrimSpace(body), xssiPrefix)

	var changes []restChange
	if err := json.Unmarshal(body, &changes); err != nil {
		return nil, fmt.Errorf("%w: changes: %v", protocol.ErrMalformedEvent, err)
	}
	rows := make([]protocol.ChangeRow, 0, len(changes))
	for _, ch := range changes {
		rows = append(rows, ch.row(c.rest))
	}
	return rows, nil
}

// Subscribe is a no-op: the relay pushes as soon as the socket is open.
func (c *wsConn) Subscribe(ctx context.Context) error {
	if !c.alive.Load() {
		return ErrClosed
	}
	return nil
}

func (c *wsConn) Recv() ([]byte, error) {
	for {
		typ, data, err := c.ws.Read(c.ctx)
		if err != nil {
			c.alive.Store(false)
			return nil, err
		}
		if typ != websocket.MessageText {
			continue
		}
		return bytes.TrimSpace(data), nil
	}
}

func (c *wsConn) Alive() bool {
	return c.alive.Load()
}

func (c *wsConn) Close() error {
	var err error
	c.close.Do(func() {
		c.alive.Store(false)
		err = c.ws.Close(websocket.StatusNormalClosure, "")
		c.cancel()
	})
	return err
}
