// Package httpapi implements the HTTP/JSON transport: a 1:1 REST mapping
// onto the same command set TCP and QUIC clients reach through the binary
// protocol (§4.I, §6 http.*). Every handler builds the identical
// protocol.RequestFrame a binary client would send and routes it through the
// shared dispatch.Dispatcher, so authorization and engine semantics never
// diverge between transports. Routing follows vaultaire's internal/api
// server: a chi.Router, route registration grouped by concern, and a
// recover/log middleware chain; JWT bearer auth follows its requireJWT
// middleware shape.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/FairForge/brokerd/internal/auth"
	"github.com/FairForge/brokerd/internal/dispatch"
	"github.com/FairForge/brokerd/internal/ids"
	"github.com/FairForge/brokerd/internal/metrics"
	"github.com/FairForge/brokerd/internal/protocol"
)

// Config tunes the HTTP transport per the §6 http.* configuration section.
type Config struct {
	Address string
	CORS    bool
}

// Server wraps a chi.Router mapping REST endpoints onto dispatcher commands.
type Server struct {
	cfg        Config
	dispatcher *dispatch.Dispatcher
	sessions   *auth.Registry
	tokens     *auth.TokenIssuer
	metrics    *metrics.Registry
	logger     *zap.Logger
	router     chi.Router
	httpServer *http.Server
}

// New builds the Server and registers its routes.
func New(cfg Config, dispatcher *dispatch.Dispatcher, sessions *auth.Registry, tokens *auth.TokenIssuer, metricsReg *metrics.Registry, logger *zap.Logger) *Server {
	s := &Server{
		cfg:        cfg,
		dispatcher: dispatcher,
		sessions:   sessions,
		tokens:     tokens,
		metrics:    metricsReg,
		logger:     logger,
		router:     chi.NewRouter(),
	}
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.loggingMiddleware)
	if cfg.CORS {
		s.router.Use(s.corsMiddleware)
	}
	s.setupRoutes()
	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/metrics", promhttp.Handler().ServeHTTP)

	s.router.Post("/users/login", s.handleLogin)

	s.router.Route("/users", func(r chi.Router) {
		r.Use(s.requireJWT)
		r.Get("/", s.handleListUsers)
		r.Post("/", s.handleCreateUser)
	})

	s.router.Route("/streams", func(r chi.Router) {
		r.Use(s.requireJWT)
		r.Get("/", s.handleListStreams)
		r.Post("/", s.handleCreateStream)
		r.Delete("/{streamID}", s.handleDeleteStream)

		r.Post("/{streamID}/topics", s.handleCreateTopic)
		r.Delete("/{streamID}/topics/{topicID}", s.handleDeleteTopic)
		r.Post("/{streamID}/topics/{topicID}/partitions", s.handleCreatePartitions)
		r.Delete("/{streamID}/topics/{topicID}/partitions", s.handleDeletePartitions)

		r.Post("/{streamID}/topics/{topicID}/messages", s.handleSendMessages)
		r.Get("/{streamID}/topics/{topicID}/messages", s.handlePollMessages)

		r.Put("/{streamID}/topics/{topicID}/consumer-offsets", s.handleStoreConsumerOffset)
		r.Get("/{streamID}/topics/{topicID}/consumer-offsets", s.handleGetConsumerOffset)

		r.Post("/{streamID}/topics/{topicID}/consumer-groups", s.handleCreateConsumerGroup)
		r.Delete("/{streamID}/topics/{topicID}/consumer-groups/{groupID}", s.handleDeleteConsumerGroup)
		r.Post("/{streamID}/topics/{topicID}/consumer-groups/{groupID}/members/{consumerID}", s.handleJoinConsumerGroup)
		r.Delete("/{streamID}/topics/{topicID}/consumer-groups/{groupID}/members/{consumerID}", s.handleLeaveConsumerGroup)
	})
}

// ListenAndServe blocks serving HTTP until Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http transport listening", zap.String("address", s.cfg.Address))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown() error {
	return s.httpServer.Shutdown(context.Background())
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("latency", time.Since(start)))
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization,Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type sessionContextKey struct{}

// requireJWT validates the bearer token and attaches an authenticated
// in-process auth.Session (not tracked in the live client registry, since
// HTTP requests are not long-lived connections) to the request context.
func (s *Server) requireJWT(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		token = strings.TrimSpace(token)
		if token == "" {
			writeError(w, protocol.New(protocol.CodeUnauthenticated, "missing bearer token"))
			return
		}
		userID, err := s.tokens.Verify(token)
		if err != nil {
			writeError(w, protocol.New(protocol.CodeUnauthenticated, "invalid token"))
			return
		}
		session := &auth.Session{Transport: "http", RemoteAddress: r.RemoteAddr}
		session.Authenticate(userID)
		ctx := context.WithValue(r.Context(), sessionContextKey{}, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFrom(r *http.Request) *auth.Session {
	if s, ok := r.Context().Value(sessionContextKey{}).(*auth.Session); ok {
		return s
	}
	return &auth.Session{Transport: "http"}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code := protocol.CodeOf(err)
	status := http.StatusBadRequest
	switch code {
	case protocol.CodeUnauthenticated:
		status = http.StatusUnauthorized
	case protocol.CodeUnauthorized:
		status = http.StatusForbidden
	case protocol.CodeResourceNotFound, protocol.CodePartitionNotFound:
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func pathIdentifier(r *http.Request, key string) ids.Identifier {
	raw := chi.URLParam(r, key)
	if n, err := strconv.ParseUint(raw, 10, 32); err == nil {
		return ids.Numeric(uint32(n))
	}
	return ids.Name(raw)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": s.metrics.Uptime().String(),
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, protocol.New(protocol.CodeMalformedPayload, "invalid json body"))
		return
	}
	payload := protocol.EncodeLoginUserRequest(&protocol.LoginUserRequest{Username: req.Username, Password: req.Password})
	frame := &protocol.RequestFrame{CommandCode: protocol.CommandLoginUser, Payload: payload}
	session := &auth.Session{Transport: "http", RemoteAddress: r.RemoteAddr}
	resp := s.dispatcher.Handle(session, frame)
	if resp.Status != protocol.CodeOK {
		writeError(w, protocol.New(resp.Status, "login failed"))
		return
	}
	login, err := protocol.DecodeLoginResponse(resp.Payload)
	if err != nil {
		writeError(w, err)
		return
	}
	token, err := s.tokens.Issue(login.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"user_id": login.UserID, "token": token})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	frame := &protocol.RequestFrame{CommandCode: protocol.CommandGetUsers}
	resp := s.dispatcher.Handle(sessionFrom(r), frame)
	if resp.Status != protocol.CodeOK {
		writeError(w, protocol.New(resp.Status, "get users failed"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, protocol.New(protocol.CodeMalformedPayload, "invalid json body"))
		return
	}
	payload := protocol.EncodeCreateUserRequest(&protocol.CreateUserRequest{Username: req.Username, Password: req.Password})
	frame := &protocol.RequestFrame{CommandCode: protocol.CommandCreateUser, Payload: payload}
	resp := s.dispatcher.Handle(sessionFrom(r), frame)
	if resp.Status != protocol.CodeOK {
		writeError(w, protocol.New(resp.Status, "create user failed"))
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "created"})
}

func (s *Server) handleListStreams(w http.ResponseWriter, r *http.Request) {
	frame := &protocol.RequestFrame{CommandCode: protocol.CommandGetStreams}
	resp := s.dispatcher.Handle(sessionFrom(r), frame)
	if resp.Status != protocol.CodeOK {
		writeError(w, protocol.New(resp.Status, "get streams failed"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateStream(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StreamID uint32 `json:"stream_id"`
		Name     string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, protocol.New(protocol.CodeMalformedPayload, "invalid json body"))
		return
	}
	payload := protocol.EncodeCreateStreamRequest(&protocol.CreateStreamRequest{StreamID: ids.Numeric(req.StreamID), Name: req.Name})
	frame := &protocol.RequestFrame{CommandCode: protocol.CommandCreateStream, Payload: payload}
	resp := s.dispatcher.Handle(sessionFrom(r), frame)
	if resp.Status != protocol.CodeOK {
		writeError(w, protocol.New(resp.Status, "create stream failed"))
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "created"})
}

func (s *Server) handleDeleteStream(w http.ResponseWriter, r *http.Request) {
	frame := &protocol.RequestFrame{CommandCode: protocol.CommandDeleteStream, Payload: pathIdentifier(r, "streamID").Encode()}
	resp := s.dispatcher.Handle(sessionFrom(r), frame)
	if resp.Status != protocol.CodeOK {
		writeError(w, protocol.New(resp.Status, "delete stream failed"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateTopic(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TopicID           uint32 `json:"topic_id"`
		Name              string `json:"name"`
		PartitionsCount   uint32 `json:"partitions_count"`
		MessageExpiry     uint64 `json:"message_expiry"`
		MaxTopicSizeBytes uint64 `json:"max_topic_size_bytes"`
		ReplicationFactor uint8  `json:"replication_factor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, protocol.New(protocol.CodeMalformedPayload, "invalid json body"))
		return
	}
	payload := protocol.EncodeCreateTopicRequest(&protocol.CreateTopicRequest{
		StreamID: pathIdentifier(r, "streamID"), TopicID: ids.Numeric(req.TopicID), Name: req.Name,
		PartitionsCount: req.PartitionsCount, MessageExpiry: req.MessageExpiry,
		MaxTopicSizeBytes: req.MaxTopicSizeBytes, ReplicationFactor: req.ReplicationFactor,
	})
	frame := &protocol.RequestFrame{CommandCode: protocol.CommandCreateTopic, Payload: payload}
	resp := s.dispatcher.Handle(sessionFrom(r), frame)
	if resp.Status != protocol.CodeOK {
		writeError(w, protocol.New(resp.Status, "create topic failed"))
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "created"})
}

func (s *Server) handleDeleteTopic(w http.ResponseWriter, r *http.Request) {
	var buf []byte
	buf = append(buf, pathIdentifier(r, "streamID").Encode()...)
	buf = append(buf, pathIdentifier(r, "topicID").Encode()...)
	frame := &protocol.RequestFrame{CommandCode: protocol.CommandDeleteTopic, Payload: buf}
	resp := s.dispatcher.Handle(sessionFrom(r), frame)
	if resp.Status != protocol.CodeOK {
		writeError(w, protocol.New(resp.Status, "delete topic failed"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) partitionsPayload(r *http.Request, count uint32) []byte {
	return protocol.EncodeCreatePartitionsRequest(&protocol.CreatePartitionsRequest{
		StreamID: pathIdentifier(r, "streamID"), TopicID: pathIdentifier(r, "topicID"), PartitionCount: count,
	})
}

func (s *Server) handleCreatePartitions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Count uint32 `json:"count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, protocol.New(protocol.CodeMalformedPayload, "invalid json body"))
		return
	}
	frame := &protocol.RequestFrame{CommandCode: protocol.CommandCreatePartitions, Payload: s.partitionsPayload(r, req.Count)}
	resp := s.dispatcher.Handle(sessionFrom(r), frame)
	if resp.Status != protocol.CodeOK {
		writeError(w, protocol.New(resp.Status, "create partitions failed"))
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "created"})
}

func (s *Server) handleDeletePartitions(w http.ResponseWriter, r *http.Request) {
	count, _ := strconv.ParseUint(r.URL.Query().Get("count"), 10, 32)
	frame := &protocol.RequestFrame{CommandCode: protocol.CommandDeletePartitions, Payload: s.partitionsPayload(r, uint32(count))}
	resp := s.dispatcher.Handle(sessionFrom(r), frame)
	if resp.Status != protocol.CodeOK {
		writeError(w, protocol.New(resp.Status, "delete partitions failed"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSendMessages(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Partitioning string `json:"partitioning"`
		PartitionID  uint32 `json:"partition_id"`
		Key          string `json:"key"`
		Messages     []struct {
			Payload string `json:"payload"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, protocol.New(protocol.CodeMalformedPayload, "invalid json body"))
		return
	}
	kind := protocol.PartitioningBalanced
	switch req.Partitioning {
	case "partition_id":
		kind = protocol.PartitioningPartitionID
	case "messages_key":
		kind = protocol.PartitioningMessagesKey
	}
	messages := make([]protocol.WireMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = protocol.WireMessage{Payload: []byte(m.Payload)}
	}
	payload, err := protocol.EncodeSendMessagesRequest(&protocol.SendMessagesRequest{
		StreamID: pathIdentifier(r, "streamID"), TopicID: pathIdentifier(r, "topicID"),
		Partitioning: kind, PartitionID: req.PartitionID, MessagesKey: []byte(req.Key), Messages: messages,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	frame := &protocol.RequestFrame{CommandCode: protocol.CommandSendMessages, Payload: payload}
	resp := s.dispatcher.Handle(sessionFrom(r), frame)
	if resp.Status != protocol.CodeOK {
		writeError(w, protocol.New(resp.Status, "send messages failed"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

func (s *Server) handlePollMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	partitionID, _ := strconv.ParseUint(q.Get("partition_id"), 10, 32)
	consumerID, _ := strconv.ParseUint(q.Get("consumer_id"), 10, 32)
	count, _ := strconv.ParseUint(q.Get("count"), 10, 32)
	value, _ := strconv.ParseUint(q.Get("value"), 10, 64)
	kind := protocol.PollNext
	switch q.Get("kind") {
	case "offset":
		kind = protocol.PollOffset
	case "first":
		kind = protocol.PollFirst
	case "last":
		kind = protocol.PollLast
	case "timestamp":
		kind = protocol.PollTimestamp
	}
	consumerKind := protocol.ConsumerSingle
	if q.Get("consumer_kind") == "group" {
		consumerKind = protocol.ConsumerGroup
	}
	payload := protocol.EncodePollMessagesRequest(&protocol.PollMessagesRequest{
		StreamID: pathIdentifier(r, "streamID"), TopicID: pathIdentifier(r, "topicID"),
		PartitionID: uint32(partitionID), ConsumerKind: consumerKind, ConsumerID: uint32(consumerID),
		Kind: kind, Value: value, Count: uint32(count), AutoCommit: q.Get("auto_commit") == "true",
	})
	frame := &protocol.RequestFrame{CommandCode: protocol.CommandPollMessages, Payload: payload}
	resp := s.dispatcher.Handle(sessionFrom(r), frame)
	if resp.Status != protocol.CodeOK {
		writeError(w, protocol.New(resp.Status, "poll messages failed"))
		return
	}
	messages, err := protocol.DecodePollMessagesResponse(resp.Payload)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]map[string]interface{}, len(messages))
	for i, m := range messages {
		out[i] = map[string]interface{}{
			"offset":    m.Offset,
			"timestamp": m.Timestamp,
			"payload":   string(m.Payload),
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": out})
}

func (s *Server) handleStoreConsumerOffset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PartitionID uint32 `json:"partition_id"`
		ConsumerID  uint32 `json:"consumer_id"`
		Offset      uint64 `json:"offset"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, protocol.New(protocol.CodeMalformedPayload, "invalid json body"))
		return
	}
	payload := protocol.EncodeStoreConsumerOffsetRequest(&protocol.StoreConsumerOffsetRequest{
		StreamID: pathIdentifier(r, "streamID"), TopicID: pathIdentifier(r, "topicID"),
		PartitionID: req.PartitionID, ConsumerID: req.ConsumerID, Offset: req.Offset,
	})
	frame := &protocol.RequestFrame{CommandCode: protocol.CommandStoreConsumerOffset, Payload: payload}
	resp := s.dispatcher.Handle(sessionFrom(r), frame)
	if resp.Status != protocol.CodeOK {
		writeError(w, protocol.New(resp.Status, "store consumer offset failed"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stored"})
}

func (s *Server) handleGetConsumerOffset(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	partitionID, _ := strconv.ParseUint(q.Get("partition_id"), 10, 32)
	consumerID, _ := strconv.ParseUint(q.Get("consumer_id"), 10, 32)
	payload := protocol.EncodeStoreConsumerOffsetRequest(&protocol.StoreConsumerOffsetRequest{
		StreamID: pathIdentifier(r, "streamID"), TopicID: pathIdentifier(r, "topicID"),
		PartitionID: uint32(partitionID), ConsumerID: uint32(consumerID),
	})
	frame := &protocol.RequestFrame{CommandCode: protocol.CommandGetConsumerOffset, Payload: payload}
	resp := s.dispatcher.Handle(sessionFrom(r), frame)
	if resp.Status != protocol.CodeOK {
		writeError(w, protocol.New(resp.Status, "get consumer offset failed"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateConsumerGroup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GroupID uint32 `json:"group_id"`
		Name    string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, protocol.New(protocol.CodeMalformedPayload, "invalid json body"))
		return
	}
	payload := protocol.EncodeCreateConsumerGroupRequest(&protocol.CreateConsumerGroupRequest{
		StreamID: pathIdentifier(r, "streamID"), TopicID: pathIdentifier(r, "topicID"),
		GroupID: ids.Numeric(req.GroupID), Name: req.Name,
	})
	frame := &protocol.RequestFrame{CommandCode: protocol.CommandCreateConsumerGroup, Payload: payload}
	resp := s.dispatcher.Handle(sessionFrom(r), frame)
	if resp.Status != protocol.CodeOK {
		writeError(w, protocol.New(resp.Status, "create consumer group failed"))
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "created"})
}

func (s *Server) handleDeleteConsumerGroup(w http.ResponseWriter, r *http.Request) {
	payload := protocol.EncodeDeleteConsumerGroupRequest(&protocol.DeleteConsumerGroupRequest{
		StreamID: pathIdentifier(r, "streamID"), TopicID: pathIdentifier(r, "topicID"),
		GroupID: pathIdentifier(r, "groupID"),
	})
	frame := &protocol.RequestFrame{CommandCode: protocol.CommandDeleteConsumerGroup, Payload: payload}
	resp := s.dispatcher.Handle(sessionFrom(r), frame)
	if resp.Status != protocol.CodeOK {
		writeError(w, protocol.New(resp.Status, "delete consumer group failed"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) membershipPayload(r *http.Request) []byte {
	consumerID, _ := strconv.ParseUint(chi.URLParam(r, "consumerID"), 10, 32)
	return protocol.EncodeConsumerGroupMembershipRequest(&protocol.ConsumerGroupMembershipRequest{
		StreamID: pathIdentifier(r, "streamID"), TopicID: pathIdentifier(r, "topicID"),
		GroupID: pathIdentifier(r, "groupID"), ConsumerID: uint32(consumerID),
	})
}

func (s *Server) handleJoinConsumerGroup(w http.ResponseWriter, r *http.Request) {
	frame := &protocol.RequestFrame{CommandCode: protocol.CommandJoinConsumerGroup, Payload: s.membershipPayload(r)}
	resp := s.dispatcher.Handle(sessionFrom(r), frame)
	if resp.Status != protocol.CodeOK {
		writeError(w, protocol.New(resp.Status, "join consumer group failed"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "joined"})
}

func (s *Server) handleLeaveConsumerGroup(w http.ResponseWriter, r *http.Request) {
	frame := &protocol.RequestFrame{CommandCode: protocol.CommandLeaveConsumerGroup, Payload: s.membershipPayload(r)}
	resp := s.dispatcher.Handle(sessionFrom(r), frame)
	if resp.Status != protocol.CodeOK {
		writeError(w, protocol.New(resp.Status, "leave consumer group failed"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
