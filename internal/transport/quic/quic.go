// Package quic implements the QUIC transport (§4.I, §6 quic.*): one session
// per connection, one request/response exchange per bidirectional stream, so
// a slow or stalled client never head-of-line blocks another's commands the
// way a single TCP connection would. Nothing in the teacher repo or the rest
// of the example pack touches QUIC, so this package reaches outside the pack
// for github.com/quic-go/quic-go; the accept/serve shape it builds still
// follows the tcp package's loop, itself grounded on the teacher's
// connection-handling idiom in internal/perf/network.go.
package quic

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"io"
	"math/big"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
	"go.uber.org/zap"

	"github.com/FairForge/brokerd/internal/auth"
	"github.com/FairForge/brokerd/internal/dispatch"
	"github.com/FairForge/brokerd/internal/metrics"
	"github.com/FairForge/brokerd/internal/protocol"
)

// Config tunes the QUIC transport per the §6 quic.* configuration section.
type Config struct {
	Address                  string
	MaxFramePayload          uint32
	MaxConcurrentBidiStreams int64
	SendWindow               uint64
	ReceiveWindow            uint64
	KeepAliveInterval        time.Duration
	MaxIdleTimeout           time.Duration
}

// Server accepts QUIC sessions and serves each bidirectional stream's
// request/response exchange through a Dispatcher.
type Server struct {
	cfg        Config
	dispatcher *dispatch.Dispatcher
	sessions   *auth.Registry
	metrics    *metrics.Registry
	logger     *zap.Logger

	mu     sync.Mutex
	ln     *quic.Listener
	wg     sync.WaitGroup
}

// New builds a Server bound to dispatcher and the shared session registry.
func New(cfg Config, dispatcher *dispatch.Dispatcher, sessions *auth.Registry, metricsReg *metrics.Registry, logger *zap.Logger) *Server {
	return &Server{cfg: cfg, dispatcher: dispatcher, sessions: sessions, metrics: metricsReg, logger: logger}
}

// ListenAndServe binds the QUIC listener with a self-signed certificate (a
// real deployment supplies its own via tls.Config; self-signing here keeps
// the transport usable out of the box, matching the tcp/http transports'
// zero-config defaults) and serves sessions until Close is called.
func (s *Server) ListenAndServe() error {
	tlsConf, err := selfSignedTLSConfig()
	if err != nil {
		return err
	}
	quicConf := &quic.Config{
		MaxIncomingStreams: s.cfg.MaxConcurrentBidiStreams,
		InitialStreamReceiveWindow:     s.cfg.ReceiveWindow,
		InitialConnectionReceiveWindow: s.cfg.ReceiveWindow,
		KeepAlivePeriod:                s.cfg.KeepAliveInterval,
		MaxIdleTimeout:                 s.cfg.MaxIdleTimeout,
	}
	ln, err := quic.ListenAddr(s.cfg.Address, tlsConf, quicConf)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	s.logger.Info("quic transport listening", zap.String("address", s.cfg.Address))
	ctx := context.Background()
	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			return err
		}
		s.wg.Add(1)
		go s.serveConnection(conn)
	}
}

func (s *Server) serveConnection(conn *quic.Conn) {
	defer s.wg.Done()

	session := s.sessions.Open("quic", conn.RemoteAddr().String())
	s.metrics.SetActiveClients(s.sessions.Count())
	defer func() {
		s.sessions.Close(session.ClientID)
		s.metrics.SetActiveClients(s.sessions.Count())
	}()

	ctx := context.Background()
	for {
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			return
		}
		go s.serveStream(session, stream)
	}
}

func (s *Server) serveStream(session *auth.Session, stream *quic.Stream) {
	defer stream.Close()
	req, err := protocol.ReadRequestFrame(stream, s.cfg.MaxFramePayload)
	if err != nil {
		if err != io.EOF {
			s.logger.Debug("quic stream closed", zap.Error(err), zap.Uint32("client_id", session.ClientID))
		}
		return
	}
	resp := s.dispatcher.Handle(session, req)
	if err := protocol.WriteResponseFrame(stream, resp); err != nil {
		s.logger.Debug("quic write failed", zap.Error(err), zap.Uint32("client_id", session.ClientID))
	}
}

// Close stops the listener; accepted connections drain their own streams.
func (s *Server) Close() error {
	s.mu.Lock()
	ln := s.ln
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

func selfSignedTLSConfig() (*tls.Config, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	template := x509.Certificate{SerialNumber: big.NewInt(1)}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, err
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}, NextProtos: []string{"brokerd"}}, nil
}
