package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"clipguard/internal/logging"
)

// DefaultMaxConnections bounds simultaneously open control connections.
const DefaultMaxConnections = 8

// Request is one command waiting for the reactor. The connection's reader
// goroutine blocks until Reply is called, so responses on a connection stay
// in request order.
type Request struct {
	ConnID  string
	Command Command

	reply chan Response
}

// Reply delivers the response. It must be called exactly once.
func (r *Request) Reply(resp Response) {
	r.reply <- resp
}

// Handler answers commands. The agent's reactor implements it.
type Handler interface {
	HandleCommand(cmd Command) Response
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(cmd Command) Response

func (f HandlerFunc) HandleCommand(cmd Command) Response { return f(cmd) }

// Dispatch answers req with h.
func Dispatch(h Handler, req *Request) {
	req.Reply(h.HandleCommand(req.Command))
}

// ServerConfig configures the control listener.
type ServerConfig struct {
	SocketPath     string
	MaxConnections int
	MaxLineBytes   int

	// RequireSameUser rejects peers whose uid differs from ours, where the
	// platform can report it.
	RequireSameUser bool

	WriteTimeout time.Duration
	Logger       *logging.Logger
}

// Server accepts control connections on a unix socket and forwards parsed
// commands on Requests. It never touches agent state itself.
type Server struct {
	cfg      ServerConfig
	log      *logging.Logger
	listener net.Listener
	requests chan *Request

	mu     sync.Mutex
	conns  map[string]net.Conn
	active atomic.Int32

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
}

// NewServer validates cfg and fills defaults.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.SocketPath == "" {
		return nil, errors.New("control: socket path required")
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = DefaultMaxConnections
	}
	if cfg.MaxLineBytes <= 0 {
		cfg.MaxLineBytes = DefaultMaxLineBytes
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:      cfg,
		log:      cfg.Logger.WithComponent("control"),
		requests: make(chan *Request),
		conns:    make(map[string]net.Conn),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Requests delivers commands from every connection. The consumer must
// Reply to each one.
func (s *Server) Requests() <-chan *Request {
	return s.requests
}

// Start binds the socket (owner-only) and begins accepting.
func (s *Server) Start() error {
	if err := os.MkdirAll(filepath.Dir(s.cfg.SocketPath), 0700); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}
	if IsSocketListening(s.cfg.SocketPath) {
		return fmt.Errorf("control: agent already listening on %s", s.cfg.SocketPath)
	}
	if err := CleanupSocket(s.cfg.SocketPath); err != nil {
		return fmt.Errorf("remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("listen on socket: %w", err)
	}
	if err := os.Chmod(s.cfg.SocketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("set socket permissions: %w", err)
	}

	s.listener = listener
	s.running.Store(true)

	s.wg.Add(1)
	go s.acceptLoop()

	s.log.Info("control socket listening", "path", s.cfg.SocketPath, "max_connections", s.cfg.MaxConnections)
	return nil
}

// Stop closes the listener and every connection, then removes the socket.
func (s *Server) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	s.cancel()
	s.listener.Close()

	s.mu.Lock()
	for _, c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.log.Warn("control connections did not drain")
	}

	return CleanupSocket(s.cfg.SocketPath)
}

// SocketPath returns the socket path.
func (s *Server) SocketPath() string { return s.cfg.SocketPath }

// ActiveConnections returns the number of admitted connections.
func (s *Server) ActiveConnections() int { return int(s.active.Load()) }

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn("accept failed", "error", err)
			continue
		}

		if int(s.active.Load()) >= s.cfg.MaxConnections {
			s.log.Debug("connection rejected", "reason", "capacity")
			conn.Close()
			continue
		}
		if s.cfg.RequireSameUser {
			ok, err := VerifyPeerIsCurrentUser(conn)
			if err != nil || !ok {
				s.log.Warn("connection rejected", "reason", "peer uid", "error", err)
				conn.Close()
				continue
			}
		}

		id := uuid.NewString()
		s.active.Add(1)
		s.mu.Lock()
		s.conns[id] = conn
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConnection(id, conn)
	}
}

func (s *Server) handleConnection(id string, conn net.Conn) {
	defer s.wg.Done()
	log := s.log.WithConn(id)
	defer func() {
		s.mu.Lock()
		delete(s.conns, id)
		s.mu.Unlock()
		s.active.Add(-1)
		conn.Close()
		log.Debug("connection closed")
	}()
	log.Debug("connection accepted")

	session := NewSession(id, s.cfg.MaxLineBytes)
	buf := make([]byte, 1024)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			lines, ferr := session.Feed(buf[:n])
			for _, line := range lines {
				if !s.serve(conn, id, line) {
					return
				}
			}
			if ferr != nil {
				log.Warn("dropping connection", "error", ferr)
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Debug("read failed", "error", err)
			}
			return
		}
	}
}

// serve forwards one line to the reactor and writes its response. It
// reports false when the connection should be dropped.
func (s *Server) serve(conn net.Conn, id, line string) bool {
	req := &Request{ConnID: id, Command: Parse(line), reply: make(chan Response, 1)}

	select {
	case s.requests <- req:
	case <-s.ctx.Done():
		return false
	}

	var resp Response
	select {
	case resp = <-req.reply:
	case <-s.ctx.Done():
		return false
	}

	conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	if _, err := conn.Write(resp.Encode()); err != nil {
		return false
	}
	return true
}
