package mockserver

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/ssh"
)

// SSHServer is a fake Gerrit command port. It answers `gerrit query` with
// the configured rows and `gerrit stream-events` with pushed events. Any
// client key is accepted.
type SSHServer struct {
	Addr    string
	HostKey ssh.PublicKey

	listener net.Listener
	config   *ssh.ServerConfig
	events   chan string
	done     chan struct{}

	mu       sync.Mutex
	rows     []string
	commands []string
	users    []string
	drop     chan struct{}
	closed   bool
}

// NewSSH starts a fake SSH server on a loopback port.
func NewSSH() (*SSHServer, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		return nil, err
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}

	s := &SSHServer{
		Addr:     ln.Addr().String(),
		HostKey:  signer.PublicKey(),
		listener: ln,
		events:   make(chan string, 64),
		done:     make(chan struct{}),
		drop:     make(chan struct{}),
	}
	s.config = &ssh.ServerConfig{
		PublicKeyCallback: func(meta ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			s.mu.Lock()
			s.users = append(s.users, meta.User())
			s.mu.Unlock()
			return nil, nil
		},
	}
	s.config.AddHostKey(signer)

	go s.serve()
	return s, nil
}

func (s *SSHServer) serve() {
	for {
		nc, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handleConn(nc)
	}
}

func (s *SSHServer) handleConn(nc net.Conn) {
	sconn, chans, reqs, err := ssh.NewServerConn(nc, s.config)
	if err != nil {
		nc.Close()
		return
	}
	defer sconn.Close()
	go ssh.DiscardRequests(reqs)

	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			newCh.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		ch, requests, err := newCh.Accept()
		if err != nil {
			continue
		}
		go s.handleSession(ch, requests)
	}
}

func (s *SSHServer) handleSession(ch ssh.Channel, requests <-chan *ssh.Request) {
	defer ch.Close()
	for req := range requests {
		if req.Type != "exec" {
			req.Reply(false, nil)
			continue
		}
		var payload struct{ Command string }
		if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
			req.Reply(false, nil)
			continue
		}
		req.Reply(true, nil)

		s.mu.Lock()
		s.commands = append(s.commands, payload.Command)
		s.mu.Unlock()

		switch {
		case strings.HasPrefix(payload.Command, "gerrit query "):
			s.runQuery(ch)
		case payload.Command == "gerrit stream-events":
			s.runStream(ch)
		default:
			fmt.Fprintf(ch.Stderr(), "fatal: unknown command %q\n", payload.Command)
			exit(ch, 1)
		}
		return
	}
}

func (s *SSHServer) runQuery(ch ssh.Channel) {
	s.mu.Lock()
	rows := append([]string(nil), s.rows...)
	s.mu.Unlock()

	for _, row := range rows {
		fmt.Fprintln(ch, row)
	}
	fmt.Fprintf(ch, `{"type":"stats","rowCount":%d,"runTimeMilliseconds":3,"moreChanges":false}`+"\n", len(rows))
	exit(ch, 0)
}

func (s *SSHServer) runStream(ch ssh.Channel) {
	s.mu.Lock()
	drop := s.drop
	s.mu.Unlock()

	for {
		select {
		case <-drop:
			exit(ch, 0)
			return
		case <-s.done:
			return
		case ev := <-s.events:
			if _, err := fmt.Fprintln(ch, ev); err != nil {
				return
			}
		}
	}
}

func exit(ch ssh.Channel, status uint32) {
	ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{status}))
}

// AddRow adds a raw `gerrit query --format=JSON` result line.
func (s *SSHServer) AddRow(row string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, row)
}

// Push queues a stream-events line.
func (s *SSHServer) Push(event string) {
	s.events <- event
}

// DropStreams ends every running stream-events command.
func (s *SSHServer) DropStreams() {
	s.mu.Lock()
	defer s.mu.Unlock()
	close(s.drop)
	s.drop = make(chan struct{})
}

// Commands returns every exec'd command, in order.
func (s *SSHServer) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.commands...)
}

// Users returns the login names clients authenticated as.
func (s *SSHServer) Users() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.users...)
}

// Close stops accepting connections and ends running streams.
func (s *SSHServer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()
	return s.listener.Close()
}

// WriteClientKey writes a fresh unencrypted ed25519 private key into dir
// and returns its path.
func WriteClientKey(dir string) (string, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", err
	}
	block, err := ssh.MarshalPrivateKey(priv, "")
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, "id_ed25519")
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		return "", err
	}
	return path, nil
}
