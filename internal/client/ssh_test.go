package client

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/victorarias/gerrit-view/internal/client/mockserver"
	"github.com/victorarias/gerrit-view/internal/protocol"
)

func newSSHServer(t *testing.T) *mockserver.SSHServer {
	t.Helper()
	s, err := mockserver.NewSSH()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sshDialer(t *testing.T, s *mockserver.SSHServer) *SSHDialer {
	t.Helper()
	key, err := mockserver.WriteClientKey(t.TempDir())
	require.NoError(t, err)
	return &SSHDialer{Addr: s.Addr, User: "jdoe", KeyFile: key, InsecureHostKey: true}
}

func TestSSHConn_QuerySkipsStats(t *testing.T) {
	s := newSSHServer(t)
	s.AddRow(`{"project":"openstack/nova","subject":"Fix","url":"https://review/1","createdOn":1380000000,"owner":{"username":"owner"}}`)
	s.AddRow(`{"project":"openstack/nova","subject":"Add","url":"https://review/2","createdOn":1380000100,"currentPatchSet":{"number":"4","createdOn":1380000500,"uploader":{"username":"jdoe"}}}`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	d := sshDialer(t, s)
	d.Projects = []string{"openstack/nova"}
	conn, err := d.Dial(ctx)
	require.NoError(t, err)
	defer conn.Close()

	rows, err := conn.Query(ctx, 5)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, protocol.Epoch(1380000000), rows[0].Created())
	assert.Equal(t, protocol.Epoch(1380000500), rows[1].Created())
	assert.Equal(t, "jdoe", rows[1].ToPatchSetCreated().Uploader.Username)

	assert.Equal(t, []string{QueryCommand(5, d.Projects)}, s.Commands())
	assert.Equal(t, []string{"jdoe"}, s.Users())
}

func TestSSHConn_StreamUntilDropped(t *testing.T) {
	s := newSSHServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := sshDialer(t, s).Dial(ctx)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.Subscribe(ctx))

	s.Push(`{"type":"change-abandoned","change":{"project":"p","url":"https://review/1"},"reason":"dup"}`)
	line, err := conn.Recv()
	require.NoError(t, err)
	ev, err := protocol.ParseEvent(line)
	require.NoError(t, err)
	abandoned, ok := ev.(*protocol.ChangeAbandoned)
	require.True(t, ok)
	assert.Equal(t, "dup", abandoned.Reason)
	assert.True(t, conn.Alive())

	s.DropStreams()
	_, err = conn.Recv()
	assert.ErrorIs(t, err, io.EOF)
	assert.False(t, conn.Alive())
	assert.Contains(t, s.Commands(), StreamCommand)
}

func TestSSHConn_RecvBeforeSubscribe(t *testing.T) {
	s := newSSHServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := sshDialer(t, s).Dial(ctx)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Recv()
	assert.Error(t, err)
}

func TestSSHDialer_KnownHosts(t *testing.T) {
	s := newSSHServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	d := sshDialer(t, s)
	d.InsecureHostKey = false
	d.KnownHosts = filepath.Join(t.TempDir(), "known_hosts")
	line := knownhosts.Line([]string{knownhosts.Normalize(s.Addr)}, s.HostKey)
	require.NoError(t, os.WriteFile(d.KnownHosts, []byte(line+"\n"), 0o600))

	conn, err := d.Dial(ctx)
	require.NoError(t, err)
	conn.Close()

	other := newSSHServer(t)
	line = knownhosts.Line([]string{knownhosts.Normalize(s.Addr)}, other.HostKey)
	require.NoError(t, os.WriteFile(d.KnownHosts, []byte(line+"\n"), 0o600))

	_, err = d.Dial(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ssh handshake")
}

func TestSSHDialer_Refused(t *testing.T) {
	s := newSSHServer(t)
	d := sshDialer(t, s)
	require.NoError(t, s.Close())

	_, err := d.Dial(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect")
}
