package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/victorarias/gerrit-view/internal/protocol"
)

// SSHDialer connects to Gerrit's SSH command port.
type SSHDialer struct {
	Addr            string // host:port
	User            string
	KeyFile         string
	KnownHosts      string
	InsecureHostKey bool
	Projects        []string
}

func (d *SSHDialer) String() string {
	return fmt.Sprintf("ssh://%s@%s", d.User, d.Addr)
}

func (d *SSHDialer) clientConfig() (*ssh.ClientConfig, error) {
	if d.KeyFile == "" {
		return nil, fmt.Errorf("no ssh key file configured")
	}
	pem, err := os.ReadFile(d.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("read key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(pem)
	if err != nil {
		return nil, fmt.Errorf("parse key %s: %w", d.KeyFile, err)
	}

	var hostKeys ssh.HostKeyCallback
	if d.InsecureHostKey {
		hostKeys = ssh.InsecureIgnoreHostKey()
	} else {
		hostKeys, err = knownhosts.New(d.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("load known hosts: %w", err)
		}
	}

	return &ssh.ClientConfig{
		User:            d.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeys,
	}, nil
}

// Dial opens the TCP connection and completes the SSH handshake. No
// timeout is applied beyond ctx.
func (d *SSHDialer) Dial(ctx context.Context) (Conn, error) {
	cfg, err := d.clientConfig()
	if err != nil {
		return nil, err
	}

	var nd net.Dialer
	nc, err := nd.DialContext(ctx, "tcp", d.Addr)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", d.Addr, err)
	}
	c, chans, reqs, err := ssh.NewClientConn(nc, d.Addr, cfg)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ssh handshake %s: %w", d.Addr, err)
	}
	return &sshConn{
		client:   ssh.NewClient(c, chans, reqs),
		projects: d.Projects,
		done:     make(chan struct{}),
	}, nil
}

type sshConn struct {
	client   *ssh.Client
	projects []string

	stream  *ssh.Session
	scanner *bufio.Scanner
	done    chan struct{} // closed when the stream session exits
	dead    atomic.Bool
	close   sync.Once
}

func (c *sshConn) Query(ctx context.Context, limit int) ([]protocol.ChangeRow, error) {
	if limit <= 0 {
		return nil, nil
	}
	session, err := c.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("open query session: %w", err)
	}
	defer session.Close()
	stop := context.AfterFunc(ctx, func() { session.Close() })
	defer stop()

	out, err := session.Output(QueryCommand(limit, c.projects))
	if err != nil {
		return nil, fmt.Errorf("run query: %w", err)
	}
	return protocol.ParseQueryRows(out)
}

func (c *sshConn) Subscribe(ctx context.Context) error {
	session, err := c.client.NewSession()
	if err != nil {
		return fmt.Errorf("open stream session: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return fmt.Errorf("stream stdout: %w", err)
	}
	if err := session.Start(StreamCommand); err != nil {
		session.Close()
		return fmt.Errorf("start %q: %w", StreamCommand, err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), protocol.MaxLineSize)
	c.stream = session
	c.scanner = scanner

	go func() {
		session.Wait()
		close(c.done)
	}()
	return nil
}

func (c *sshConn) Recv() ([]byte, error) {
	if c.scanner == nil {
		return nil, fmt.Errorf("recv before subscribe")
	}
	if c.scanner.Scan() {
		line := c.scanner.Bytes()
		out := make([]byte, len(line))
		copy(out, line)
		return out, nil
	}
	c.dead.Store(true)
	if err := c.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func (c *sshConn) Alive() bool {
	if c.dead.Load() {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

func (c *sshConn) Close() error {
	var err error
	c.close.Do(func() {
		c.dead.Store(true)
		if c.stream != nil {
			c.stream.Close()
		}
		err = c.client.Close()
	})
	return err
}
