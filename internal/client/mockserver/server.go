// Package mockserver is a fake Gerrit for tests: a stream-events relay on
// /events and the REST change query on /changes/.
package mockserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

// RequestLog captures a request for assertions
type RequestLog struct {
	Method string
	Path   string
	Query  string
}

// Server is a mock Gerrit server for testing
type Server struct {
	*httptest.Server
	mu       sync.Mutex
	requests []RequestLog
	changes  []MockChange
	events   chan string
	drop     chan struct{}
	streams  int
}

// MockChange is one open change served by the REST query.
type MockChange struct {
	Project  string
	Number   int
	Subject  string
	Topic    string
	Owner    string
	Uploader string
	Created  time.Time
}

const restTimeLayout = "2006-01-02 15:04:05.000000000"

var projectTerm = regexp.MustCompile(`project:([^\s()]+)`)

// New creates a new mock Gerrit server
func New() *Server {
	s := &Server{
		events: make(chan string, 64),
		drop:   make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRequest)
	s.Server = httptest.NewServer(mux)
	return s
}

// WSURL is the stream relay endpoint.
func (s *Server) WSURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + "/events"
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, RequestLog{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
	})
	s.mu.Unlock()

	switch {
	case r.URL.Path == "/events":
		s.handleEvents(w, r)
	case r.URL.Path == "/changes/" && r.Method == http.MethodGet:
		s.handleChanges(w, r)
	default:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"message": "Not Found"})
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	drop := s.drop
	s.streams++
	s.mu.Unlock()

	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-drop:
			conn.Close(websocket.StatusGoingAway, "dropped")
			return
		case <-ctx.Done():
			return
		case ev := <-s.events:
			if err := conn.Write(ctx, websocket.MessageText, []byte(ev)); err != nil {
				return
			}
		}
	}
}

// handleChanges answers like Gerrit's /changes/?q=...&n=N: newest first,
// behind the XSSI prefix.
func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var projects []string
	for _, m := range projectTerm.FindAllStringSubmatch(q.Get("q"), -1) {
		projects = append(projects, m[1])
	}
	limit, _ := strconv.Atoi(q.Get("n"))

	s.mu.Lock()
	var matched []MockChange
	for _, c := range s.changes {
		if len(projects) == 0 || slices.Contains(projects, c.Project) {
			matched = append(matched, c)
		}
	}
	s.mu.Unlock()

	slices.SortStableFunc(matched, func(a, b MockChange) int {
		return b.Created.Compare(a.Created)
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	items := make([]map[string]interface{}, 0, len(matched))
	for _, c := range matched {
		created := c.Created.UTC().Format(restTimeLayout)
		items = append(items, map[string]interface{}{
			"project":          c.Project,
			"topic":            c.Topic,
			"change_id":        fmt.Sprintf("I%040d", c.Number),
			"subject":          c.Subject,
			"status":           "NEW",
			"created":          created,
			"updated":          created,
			"_number":          c.Number,
			"owner":            map[string]string{"username": c.Owner},
			"current_revision": "rev1",
			"revisions": map[string]interface{}{
				"rev1": map[string]interface{}{
					"_number":  1,
					"ref":      fmt.Sprintf("refs/changes/%02d/%d/1", c.Number%100, c.Number),
					"created":  created,
					"uploader": map[string]string{"username": c.Uploader},
				},
			},
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(")]}'\n"))
	json.NewEncoder(w).Encode(items)
}

// AddChange adds an open change to the mock server
func (s *Server) AddChange(c MockChange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changes = append(s.changes, c)
}

// ChangeURL is the URL the REST transport derives for c.
func (s *Server) ChangeURL(c MockChange) string {
	return fmt.Sprintf("%s/c/%s/+/%d", s.URL, c.Project, c.Number)
}

// Push queues a raw stream-events line for the connected (or next) stream.
func (s *Server) Push(event string) {
	s.events <- event
}

// DropStreams closes every open stream; later connections are served
// normally.
func (s *Server) DropStreams() {
	s.mu.Lock()
	defer s.mu.Unlock()
	close(s.drop)
	s.drop = make(chan struct{})
}

// Close drops open streams and shuts the server down.
func (s *Server) Close() {
	s.DropStreams()
	s.Server.Close()
}

// Streams counts stream connections accepted so far.
func (s *Server) Streams() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streams
}

// Requests returns all captured requests
func (s *Server) Requests() []RequestLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RequestLog{}, s.requests...)
}

// Queries returns the raw query strings of REST change queries, in order.
func (s *Server) Queries() []string {
	var out []string
	for _, req := range s.Requests() {
		if req.Path == "/changes/" {
			out = append(out, req.Query)
		}
	}
	return out
}
