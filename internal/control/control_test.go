package control

import (
	"bufio"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clipguard/internal/bindtable"
	"clipguard/internal/digest"
	"clipguard/internal/logging"
)

// =============================================================================
// Parsing and encoding
// =============================================================================

func TestParse(t *testing.T) {
	tests := []struct {
		line string
		want Command
	}{
		{"BIND abc", Command{Op: OpBind, Arg: "abc"}},
		{"BIND  abc  ", Command{Op: OpBind, Arg: "abc"}},
		{"BIND", Command{Op: OpBind}},
		{"UNBIND abc", Command{Op: OpUnbind, Arg: "abc"}},
		{"BINDADDR bc1qexampleaddress", Command{Op: OpBindAddr, Arg: "bc1qexampleaddress"}},
		{"UNBINDADDR 0xabc", Command{Op: OpUnbindAddr, Arg: "0xabc"}},
		{"LIST", Command{Op: OpList}},
		{"LIST\r", Command{Op: OpList}},
		{"PING", Command{Op: OpPing}},
		{"LIST extra", Command{Op: OpUnknown}},
		{"bind abc", Command{Op: OpUnknown}},
		{"BINDX abc", Command{Op: OpUnknown}},
		{"", Command{Op: OpUnknown}},
		{"HELLO", Command{Op: OpUnknown}},
	}

	for _, tc := range tests {
		t.Run(tc.line, func(t *testing.T) {
			assert.Equal(t, tc.want, Parse(tc.line))
		})
	}
}

func TestResponseEncode(t *testing.T) {
	assert.Equal(t, "OK\n", string(OK().Encode()))
	assert.Equal(t, "ERR full\n", string(Err(ReasonFull).Encode()))
	assert.Equal(t, "PONG\n", string(Pong().Encode()))
	assert.Equal(t, "END\n", string(List(nil).Encode()))

	ts := time.Unix(1700000000, 0)
	got := string(List([]ListEntry{{Fingerprint: "aa", CreatedAt: ts}, {Fingerprint: "bb", CreatedAt: ts}}).Encode())
	assert.Equal(t, "FP aa 1700000000\nFP bb 1700000000\nEND\n", got)
}

func TestParseListLine(t *testing.T) {
	e, err := ParseListLine("FP abc 1700000000")
	require.NoError(t, err)
	assert.Equal(t, "abc", e.Fingerprint)
	assert.Equal(t, int64(1700000000), e.CreatedAt.Unix())

	for _, bad := range []string{"FP abc", "XX abc 1", "FP abc notanumber"} {
		_, err := ParseListLine(bad)
		assert.Error(t, err, bad)
	}
}

// =============================================================================
// Session framing
// =============================================================================

func TestSessionMultipleCommandsOneRead(t *testing.T) {
	s := NewSession("t", 0)
	lines, err := s.Feed([]byte("PING\nLIST\nBIND x\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"PING", "LIST", "BIND x"}, lines)
	assert.Equal(t, 0, s.Pending())
}

func TestSessionPartialLine(t *testing.T) {
	s := NewSession("t", 0)

	lines, err := s.Feed([]byte("PI"))
	require.NoError(t, err)
	assert.Empty(t, lines)
	assert.Equal(t, 2, s.Pending())

	lines, err = s.Feed([]byte("NG\r\nLI"))
	require.NoError(t, err)
	assert.Equal(t, []string{"PING"}, lines)

	lines, err = s.Feed([]byte("ST\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"LIST"}, lines)
}

func TestSessionLineTooLong(t *testing.T) {
	s := NewSession("t", 8)

	_, err := s.Feed([]byte("123456789"))
	assert.ErrorIs(t, err, ErrLineTooLong)

	s = NewSession("t", 8)
	lines, err := s.Feed([]byte("PING\n0123456789\n"))
	assert.ErrorIs(t, err, ErrLineTooLong)
	assert.Equal(t, []string{"PING"}, lines, "lines before the violation are still delivered")

	s = NewSession("t", 8)
	lines, err = s.Feed([]byte("12345678\n"))
	require.NoError(t, err, "exactly max bytes is allowed")
	assert.Equal(t, []string{"12345678"}, lines)
}

// =============================================================================
// Live server
// =============================================================================

// tableHandler answers commands from a bind table the way the agent does.
func tableHandler(table *bindtable.Table) Handler {
	return HandlerFunc(func(cmd Command) Response {
		switch cmd.Op {
		case OpPing:
			return Pong()
		case OpBind:
			switch err := table.Bind(cmd.Arg); {
			case err == nil:
				return OK()
			case errors.Is(err, bindtable.ErrFull):
				return Err(ReasonFull)
			default:
				return Err(ReasonInvalidFP)
			}
		case OpUnbind:
			if err := table.Unbind(cmd.Arg); err != nil {
				return Err(ReasonNotFound)
			}
			return OK()
		case OpList:
			var entries []ListEntry
			for _, e := range table.List() {
				entries = append(entries, ListEntry{Fingerprint: e.Fingerprint, CreatedAt: e.CreatedAt})
			}
			return List(entries)
		default:
			return Err(ReasonUnknown)
		}
	})
}

func startServer(t *testing.T, cfg ServerConfig, h Handler) *Server {
	t.Helper()
	if cfg.SocketPath == "" {
		cfg.SocketPath = filepath.Join(t.TempDir(), "c.sock")
	}
	cfg.Logger = logging.Nop()

	srv, err := NewServer(cfg)
	require.NoError(t, err)
	require.NoError(t, srv.Start())

	done := make(chan struct{})
	go func() {
		for {
			select {
			case req := <-srv.Requests():
				Dispatch(h, req)
			case <-done:
				return
			}
		}
	}()
	t.Cleanup(func() {
		srv.Stop()
		close(done)
	})
	return srv
}

func dialRaw(t *testing.T, path string) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, bufio.NewReader(conn)
}

func readLine(t *testing.T, conn net.Conn, r *bufio.Reader) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	return strings.TrimSuffix(line, "\n")
}

func TestServerSocketPermissions(t *testing.T) {
	srv := startServer(t, ServerConfig{}, tableHandler(bindtable.New(bindtable.Options{})))

	info, err := os.Stat(srv.SocketPath())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestServerProtocolRoundTrip(t *testing.T) {
	table := bindtable.New(bindtable.Options{})
	srv := startServer(t, ServerConfig{}, tableHandler(table))
	fp := digest.HexString("x")

	conn, r := dialRaw(t, srv.SocketPath())

	// Several commands in one write are answered in order.
	_, err := conn.Write([]byte("PING\nBIND " + fp + "\nBIND nothex\nLIST\nNOPE\n"))
	require.NoError(t, err)

	assert.Equal(t, "PONG", readLine(t, conn, r))
	assert.Equal(t, "OK", readLine(t, conn, r))
	assert.Equal(t, "ERR invalid-fp", readLine(t, conn, r))
	assert.True(t, strings.HasPrefix(readLine(t, conn, r), "FP "+fp+" "))
	assert.Equal(t, "END", readLine(t, conn, r))
	assert.Equal(t, "ERR unknown", readLine(t, conn, r))

	// A command split across writes is buffered until its newline.
	_, err = conn.Write([]byte("UNBI"))
	require.NoError(t, err)
	_, err = conn.Write([]byte("ND " + fp + "\n"))
	require.NoError(t, err)
	assert.Equal(t, "OK", readLine(t, conn, r))

	_, err = conn.Write([]byte("UNBIND " + fp + "\n"))
	require.NoError(t, err)
	assert.Equal(t, "ERR notfound", readLine(t, conn, r))
}

func TestServerCapacityResponse(t *testing.T) {
	table := bindtable.New(bindtable.Options{Capacity: 1})
	srv := startServer(t, ServerConfig{}, tableHandler(table))

	conn, r := dialRaw(t, srv.SocketPath())
	_, err := conn.Write([]byte("BIND " + digest.HexString("a") + "\nBIND " + digest.HexString("b") + "\n"))
	require.NoError(t, err)
	assert.Equal(t, "OK", readLine(t, conn, r))
	assert.Equal(t, "ERR full", readLine(t, conn, r))
}

func TestServerDropsOverlongLine(t *testing.T) {
	srv := startServer(t, ServerConfig{MaxLineBytes: 16}, tableHandler(bindtable.New(bindtable.Options{})))

	conn, r := dialRaw(t, srv.SocketPath())
	_, err := conn.Write([]byte(strings.Repeat("A", 64)))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = r.ReadString('\n')
	assert.Error(t, err, "server closes the connection without a response")

	require.Eventually(t, func() bool { return srv.ActiveConnections() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestServerConnectionAdmission(t *testing.T) {
	srv := startServer(t, ServerConfig{MaxConnections: 2}, tableHandler(bindtable.New(bindtable.Options{})))

	// Fill every slot and make sure each one is serving.
	c1, r1 := dialRaw(t, srv.SocketPath())
	c2, r2 := dialRaw(t, srv.SocketPath())
	for _, p := range []struct {
		c net.Conn
		r *bufio.Reader
	}{{c1, r1}, {c2, r2}} {
		_, err := p.c.Write([]byte("PING\n"))
		require.NoError(t, err)
		require.Equal(t, "PONG", readLine(t, p.c, p.r))
	}

	// The next connection is closed without a response.
	c3, r3 := dialRaw(t, srv.SocketPath())
	c3.Write([]byte("PING\n"))
	c3.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := r3.ReadString('\n')
	assert.Error(t, err)

	// Disconnecting reclaims the slot.
	require.NoError(t, c1.Close())
	require.Eventually(t, func() bool { return srv.ActiveConnections() == 1 }, 2*time.Second, 10*time.Millisecond)

	c4, r4 := dialRaw(t, srv.SocketPath())
	_, err = c4.Write([]byte("PING\n"))
	require.NoError(t, err)
	assert.Equal(t, "PONG", readLine(t, c4, r4))
}

func TestServerSameUserAdmitted(t *testing.T) {
	srv := startServer(t, ServerConfig{RequireSameUser: true}, tableHandler(bindtable.New(bindtable.Options{})))

	conn, r := dialRaw(t, srv.SocketPath())
	_, err := conn.Write([]byte("PING\n"))
	require.NoError(t, err)
	assert.Equal(t, "PONG", readLine(t, conn, r))
}

func TestServerRefusesLiveSocket(t *testing.T) {
	srv := startServer(t, ServerConfig{}, tableHandler(bindtable.New(bindtable.Options{})))

	second, err := NewServer(ServerConfig{SocketPath: srv.SocketPath(), Logger: logging.Nop()})
	require.NoError(t, err)
	assert.Error(t, second.Start())
}

func TestCleanupSocketRefusesRegularFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-a-socket")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0600))

	assert.Error(t, CleanupSocket(path))
	assert.NoError(t, CleanupSocket(filepath.Join(t.TempDir(), "missing")))
}

// =============================================================================
// Client
// =============================================================================

func TestClient(t *testing.T) {
	table := bindtable.New(bindtable.Options{})
	srv := startServer(t, ServerConfig{}, tableHandler(table))
	fp := digest.HexString("client")

	c, err := Dial(context.Background(), srv.SocketPath(), time.Second)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Ping())
	require.NoError(t, c.Bind(fp))

	entries, err := c.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, fp, entries[0].Fingerprint)

	err = c.Bind("short")
	var rerr *ResponseError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, ReasonInvalidFP, rerr.Reason)

	require.NoError(t, c.Unbind(fp))
	require.ErrorAs(t, c.Unbind(fp), &rerr)
	assert.Equal(t, ReasonNotFound, rerr.Reason)

	require.ErrorAs(t, c.BindAddr("bc1q"), &rerr)
	assert.Equal(t, ReasonUnknown, rerr.Reason, "this handler does not implement BINDADDR")

	assert.Error(t, c.Bind("a\nb"))
}

func TestDialMissingSocket(t *testing.T) {
	_, err := Dial(context.Background(), filepath.Join(t.TempDir(), "none.sock"), time.Second)
	assert.Error(t, err)
}
