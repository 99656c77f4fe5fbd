// Package tcp implements the raw-socket transport: one accept loop handing
// each connection to its own goroutine, which loops reading request frames,
// dispatching them, and writing back responses until the client disconnects
// (§4.I). Socket tuning (TCP_NODELAY, keepalive) follows the optimizer
// defaults vaultaire's internal/perf.NetworkOptimizer applies to its own
// dialed connections, turned around onto accepted ones.
package tcp

import (
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/FairForge/brokerd/internal/auth"
	"github.com/FairForge/brokerd/internal/dispatch"
	"github.com/FairForge/brokerd/internal/metrics"
	"github.com/FairForge/brokerd/internal/protocol"
)

// Config tunes the accepted-connection socket options and frame limits.
type Config struct {
	Address         string
	MaxFramePayload uint32
	KeepAlive       bool
	KeepAlivePeriod time.Duration
	NoDelay         bool
}

// DefaultConfig mirrors the teacher's DefaultNetworkConfig tuning.
func DefaultConfig(address string) Config {
	return Config{
		Address:         address,
		MaxFramePayload: protocol.MaxFramePayload,
		KeepAlive:       true,
		KeepAlivePeriod: 30 * time.Second,
		NoDelay:         true,
	}
}

// Server accepts connections and routes their frames through a Dispatcher.
type Server struct {
	cfg        Config
	dispatcher *dispatch.Dispatcher
	sessions   *auth.Registry
	metrics    *metrics.Registry
	logger     *zap.Logger

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// New builds a Server bound to dispatcher and the shared session registry.
func New(cfg Config, dispatcher *dispatch.Dispatcher, sessions *auth.Registry, metricsReg *metrics.Registry, logger *zap.Logger) *Server {
	return &Server{cfg: cfg, dispatcher: dispatcher, sessions: sessions, metrics: metricsReg, logger: logger}
}

// ListenAndServe binds the listener and blocks accepting connections until
// Close is called, at which point it returns net.ErrClosed.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("tcp transport listening", zap.String("address", s.cfg.Address))
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		s.optimize(conn)
		s.wg.Add(1)
		go s.serve(conn)
	}
}

func (s *Server) optimize(conn net.Conn) {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	if s.cfg.NoDelay {
		_ = tcpConn.SetNoDelay(true)
	}
	if s.cfg.KeepAlive {
		_ = tcpConn.SetKeepAlive(true)
		_ = tcpConn.SetKeepAlivePeriod(s.cfg.KeepAlivePeriod)
	}
}

func (s *Server) serve(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	session := s.sessions.Open("tcp", conn.RemoteAddr().String())
	s.metrics.SetActiveClients(s.sessions.Count())
	defer func() {
		s.sessions.Close(session.ClientID)
		s.metrics.SetActiveClients(s.sessions.Count())
	}()

	for {
		req, err := protocol.ReadRequestFrame(conn, s.cfg.MaxFramePayload)
		if err != nil {
			if err != io.EOF {
				s.logger.Debug("tcp connection closed", zap.Error(err), zap.Uint32("client_id", session.ClientID))
			}
			return
		}
		resp := s.dispatcher.Handle(session, req)
		if err := protocol.WriteResponseFrame(conn, resp); err != nil {
			s.logger.Debug("tcp write failed", zap.Error(err), zap.Uint32("client_id", session.ClientID))
			return
		}
	}
}

// Close stops the listener only; connections already accepted are not closed
// and keep being served until their clients disconnect.
func (s *Server) Close() error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return nil
	}
	return ln.Close()
}

// Wait blocks until every accepted connection's goroutine has returned.
func (s *Server) Wait() {
	s.wg.Wait()
}
