package redisserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yndnr/tinykv/internal/telemetry/logger"
	"github.com/yndnr/tinykv/internal/telemetry/metric"
)

// Config holds the RESP server configuration.
type Config struct {
	// Address is the TCP listen address.
	Address string
	// ReadTimeout bounds how long the rest of a frame may take once its
	// first bytes arrived. Protects against slowloris clients.
	ReadTimeout time.Duration
	// WriteTimeout is the timeout for writing a reply.
	WriteTimeout time.Duration
	// IdleTimeout is how long a connection may sit between frames.
	IdleTimeout time.Duration
	// MaxBufferLen caps the unparsed bytes held per connection.
	MaxBufferLen int
	// RateLimit is the maximum number of commands per second per IP.
	// Set to 0 to disable rate limiting.
	RateLimit int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Address:      "127.0.0.1:6379",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  5 * time.Minute,
		MaxBufferLen: DefaultMaxBufferLen,
		RateLimit:    0,
	}
}

// Server accepts TCP connections and serves one goroutine per client.
type Server struct {
	cfg     *Config
	handler *CommandHandler
	metrics *metric.Registry
	logger  *slog.Logger

	ln      net.Listener
	running atomic.Bool
	wg      sync.WaitGroup

	connsMu sync.Mutex
	conns   map[*Conn]struct{}

	activeConns atomic.Int64
	totalConns  atomic.Uint64
}

// New creates a new RESP server backed by store. metrics may be nil.
func New(cfg *Config, store Store, metrics *metric.Registry, logger *slog.Logger) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		cfg:     cfg,
		handler: NewCommandHandler(store, cfg.RateLimit, metrics, logger),
		metrics: metrics,
		logger:  logger,
		conns:   make(map[*Conn]struct{}),
	}
}

// Start binds the listener and serves connections in the background.
// A bind failure is returned directly.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return err
	}
	s.ln = ln
	s.running.Store(true)

	s.logger.Info("redis server listening", "address", ln.Addr().String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.acceptLoop(ctx, ln); err != nil && s.running.Load() {
			s.logger.Error("accept loop stopped", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listen address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// ActiveConnections returns the number of open client connections.
func (s *Server) ActiveConnections() int64 {
	return s.activeConns.Load()
}

// TotalConnections returns the number of connections accepted since start.
func (s *Server) TotalConnections() uint64 {
	return s.totalConns.Load()
}

// Shutdown stops accepting, closes open connections and waits for their
// goroutines to return, or for ctx to be done.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	var firstErr error
	if s.ln != nil {
		if err := s.ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			firstErr = err
		}
	}

	s.connsMu.Lock()
	for c := range s.conns {
		_ = c.Close()
	}
	s.connsMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.logger.Info("redis server stopped")
	return firstErr
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		c, err := ln.Accept()
		if err != nil {
			if !s.running.Load() {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		conn := newConn(c, s.cfg.MaxBufferLen)
		s.track(conn, true)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.track(conn, false)
			s.serveConn(ctx, conn)
		}()
	}
}

func (s *Server) track(c *Conn, add bool) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()

	if add {
		s.conns[c] = struct{}{}
		s.activeConns.Add(1)
		s.totalConns.Add(1)
		if !s.running.Load() {
			_ = c.Close()
		}
		return
	}
	delete(s.conns, c)
	s.activeConns.Add(-1)
}

func (s *Server) serveConn(ctx context.Context, c *Conn) {
	ctx = logger.WithConnID(logger.WithLogger(ctx, logger.FromSlog(s.logger)), c.ID())
	log := logger.L(ctx).With("remote", c.RemoteAddr().String())

	defer c.Close()
	defer func() {
		if r := recover(); r != nil {
			log.Error("connection handler panic", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	log.Debug("connection opened")

	for {
		if ctx.Err() != nil || !s.running.Load() {
			return
		}

		req, trailing, err := c.ReadFrame(s.cfg.IdleTimeout, s.cfg.ReadTimeout)
		if err != nil {
			s.handleReadError(c, log, err)
			return
		}
		if trailing > 0 {
			log.Debug("discarding bytes after frame", "bytes", trailing)
		}

		reply := s.handler.Handle(c, req)

		if err := c.WriteFrame(reply, s.cfg.WriteTimeout); err != nil {
			log.Debug("write reply failed", "error", err)
			return
		}
	}
}

// handleReadError logs why a connection ends. Malformed input gets a final
// error reply before the connection is closed.
func (s *Server) handleReadError(c *Conn, log logger.Logger, err error) {
	switch {
	case errors.Is(err, io.EOF):
		log.Debug("connection closed by peer")
	case errors.Is(err, io.ErrUnexpectedEOF):
		s.metrics.ProtocolError("truncated")
		log.Debug("connection closed mid-frame")
	case errors.Is(err, net.ErrClosed):
		log.Debug("connection closed")
	case isTimeout(err):
		log.Debug("connection timed out")
	case errors.Is(err, ErrLimitExceeded):
		s.metrics.ProtocolError("limit")
		log.Warn("protocol limit exceeded", "error", err)
		s.replyProtocolError(c, err)
	case errors.Is(err, ErrProtocol):
		s.metrics.ProtocolError("malformed")
		log.Debug("protocol error", "error", err)
		s.replyProtocolError(c, err)
	default:
		log.Debug("connection read error", "error", err)
	}
}

func (s *Server) replyProtocolError(c *Conn, err error) {
	msg := strings.TrimPrefix(err.Error(), ErrProtocol.Error()+": ")
	_ = c.WriteFrame(ErrorFrame("ERR protocol error: "+msg), s.cfg.WriteTimeout)
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
