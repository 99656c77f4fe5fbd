// Package dispatch maps decoded wire commands to engine operations: it
// resolves the session, enforces the login-required and permission rules,
// invokes system/streaming, and serializes the result back to a response
// frame (§4.H). One Dispatcher is shared by every transport (TCP, QUIC,
// HTTP) so the authorization rules are enforced in exactly one place.
package dispatch

import (
	"time"

	"go.uber.org/zap"

	"github.com/FairForge/brokerd/internal/auth"
	"github.com/FairForge/brokerd/internal/ids"
	"github.com/FairForge/brokerd/internal/protocol"
	"github.com/FairForge/brokerd/internal/streaming"
	"github.com/FairForge/brokerd/internal/system"
)

// Dispatcher holds the single System every session's commands are routed
// against.
type Dispatcher struct {
	sys    *system.System
	clock  func() time.Time
	logger *zap.Logger
}

// New builds a Dispatcher bound to sys.
func New(sys *system.System, clock func() time.Time, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{sys: sys, clock: clock, logger: logger}
}

// Handle decodes and routes one command, returning the response frame to
// write back on the same connection the request arrived on.
func (d *Dispatcher) Handle(session *auth.Session, req *protocol.RequestFrame) *protocol.ResponseFrame {
	start := time.Now()
	resp := d.dispatch(session, req)
	d.sys.Metrics.RecordCommand(protocol.CommandName(req.CommandCode), statusLabel(resp.Status), time.Since(start))
	return resp
}

func statusLabel(status protocol.Code) string {
	if status == protocol.CodeOK {
		return "ok"
	}
	return "error"
}

func (d *Dispatcher) dispatch(session *auth.Session, req *protocol.RequestFrame) *protocol.ResponseFrame {
	if protocol.RequiresAuth(req.CommandCode) && !session.IsAuthenticated() {
		return protocol.ErrorResponse(protocol.New(protocol.CodeUnauthenticated, "login required"))
	}

	switch req.CommandCode {
	case protocol.CommandPing:
		return protocol.OKResponse(nil)
	case protocol.CommandLoginUser:
		return d.loginUser(session, req.Payload)
	case protocol.CommandLogoutUser:
		session.Logout()
		return protocol.OKResponse(nil)
	case protocol.CommandGetMe:
		return d.getMe(session)
	case protocol.CommandGetClients:
		return d.getClients(session)
	case protocol.CommandCreateUser:
		return d.createUser(session, req.Payload)
	case protocol.CommandGetUsers:
		return d.getUsers(session)
	case protocol.CommandGetStreams:
		return d.getStreams(session)
	case protocol.CommandCreateStream:
		return d.createStream(session, req.Payload)
	case protocol.CommandDeleteStream:
		return d.deleteStream(session, req.Payload)
	case protocol.CommandCreateTopic:
		return d.createTopic(session, req.Payload)
	case protocol.CommandDeleteTopic:
		return d.deleteTopic(session, req.Payload)
	case protocol.CommandCreatePartitions:
		return d.createPartitions(session, req.Payload)
	case protocol.CommandDeletePartitions:
		return d.deletePartitions(session, req.Payload)
	case protocol.CommandSendMessages:
		return d.sendMessages(session, req.Payload)
	case protocol.CommandPollMessages:
		return d.pollMessages(session, req.Payload)
	case protocol.CommandStoreConsumerOffset:
		return d.storeConsumerOffset(session, req.Payload)
	case protocol.CommandGetConsumerOffset:
		return d.getConsumerOffset(session, req.Payload)
	case protocol.CommandCreateConsumerGroup:
		return d.createConsumerGroup(req.Payload)
	case protocol.CommandDeleteConsumerGroup:
		return d.deleteConsumerGroup(req.Payload)
	case protocol.CommandJoinConsumerGroup:
		return d.joinConsumerGroup(req.Payload)
	case protocol.CommandLeaveConsumerGroup:
		return d.leaveConsumerGroup(req.Payload)
	default:
		return protocol.ErrorResponse(protocol.New(protocol.CodeInvalidCommand, protocol.CommandName(req.CommandCode)))
	}
}

func (d *Dispatcher) loginUser(session *auth.Session, payload []byte) *protocol.ResponseFrame {
	req, err := protocol.DecodeLoginUserRequest(payload)
	if err != nil {
		return protocol.ErrorResponse(err)
	}
	user, err := d.sys.Users.Authenticate(req.Username, req.Password)
	if err != nil {
		return protocol.ErrorResponse(err)
	}
	session.Authenticate(user.ID)
	return protocol.OKResponse(protocol.EncodeLoginResponse(&protocol.LoginResponse{UserID: user.ID}))
}

func (d *Dispatcher) getMe(session *auth.Session) *protocol.ResponseFrame {
	return protocol.OKResponse(protocol.EncodeLoginResponse(&protocol.LoginResponse{UserID: session.UserID()}))
}

func (d *Dispatcher) getClients(session *auth.Session) *protocol.ResponseFrame {
	if !d.requireGlobal(session, func(p auth.GlobalPermissions) bool { return p.ReadServers }) {
		return protocol.ErrorResponse(protocol.New(protocol.CodeUnauthorized, "read_servers required"))
	}
	return protocol.OKResponse(appendU32(nil, uint32(d.sys.Sessions.Count())))
}

func (d *Dispatcher) createUser(session *auth.Session, payload []byte) *protocol.ResponseFrame {
	if !d.requireGlobal(session, func(p auth.GlobalPermissions) bool { return p.ManageUsers }) {
		return protocol.ErrorResponse(protocol.New(protocol.CodeUnauthorized, "manage_users required"))
	}
	req, err := protocol.DecodeCreateUserRequest(payload)
	if err != nil {
		return protocol.ErrorResponse(err)
	}
	u, err := d.sys.Users.Create(req.Username, req.Password, auth.GlobalPermissions{ReadStreams: true, PollMessages: true, SendMessages: true})
	if err != nil {
		return protocol.ErrorResponse(err)
	}
	return protocol.OKResponse(appendU32(nil, u.ID))
}

func (d *Dispatcher) getUsers(session *auth.Session) *protocol.ResponseFrame {
	if !d.requireGlobal(session, func(p auth.GlobalPermissions) bool { return p.ReadUsers }) {
		return protocol.ErrorResponse(protocol.New(protocol.CodeUnauthorized, "read_users required"))
	}
	users := d.sys.Users.List()
	var buf []byte
	buf = appendU32(buf, uint32(len(users)))
	for _, u := range users {
		buf = appendU32(buf, u.ID)
	}
	return protocol.OKResponse(buf)
}

func (d *Dispatcher) requireGlobal(session *auth.Session, check func(auth.GlobalPermissions) bool) bool {
	u, err := d.sys.Users.ByID(session.UserID())
	if err != nil {
		return false
	}
	return check(u.Permissions.Global)
}

func (d *Dispatcher) getStreams(session *auth.Session) *protocol.ResponseFrame {
	if !d.requireGlobal(session, func(p auth.GlobalPermissions) bool { return p.ReadStreams }) {
		return protocol.ErrorResponse(protocol.New(protocol.CodeUnauthorized, "read_streams required"))
	}
	streams := d.sys.Streams()
	var buf []byte
	buf = appendU32(buf, uint32(len(streams)))
	for _, s := range streams {
		buf = appendU32(buf, s.ID)
		buf = append(buf, byte(len(s.Name)))
		buf = append(buf, s.Name...)
	}
	return protocol.OKResponse(buf)
}

func (d *Dispatcher) createStream(session *auth.Session, payload []byte) *protocol.ResponseFrame {
	if !d.requireGlobal(session, func(p auth.GlobalPermissions) bool { return p.ManageStreams }) {
		return protocol.ErrorResponse(protocol.New(protocol.CodeUnauthorized, "manage_streams required"))
	}
	req, err := protocol.DecodeCreateStreamRequest(payload)
	if err != nil {
		return protocol.ErrorResponse(err)
	}
	st, err := d.sys.CreateStream(req.Name)
	if err != nil {
		return protocol.ErrorResponse(err)
	}
	return protocol.OKResponse(appendU32(nil, st.ID))
}

func (d *Dispatcher) deleteStream(session *auth.Session, payload []byte) *protocol.ResponseFrame {
	if !d.requireGlobal(session, func(p auth.GlobalPermissions) bool { return p.ManageStreams }) {
		return protocol.ErrorResponse(protocol.New(protocol.CodeUnauthorized, "manage_streams required"))
	}
	id, _, err := ids.Decode(payload)
	if err != nil {
		return protocol.ErrorResponse(protocol.Wrap(protocol.CodeMalformedPayload, "decode stream identifier", err))
	}
	st, err := d.sys.Stream(id)
	if err != nil {
		return protocol.ErrorResponse(err)
	}
	if err := d.sys.DeleteStream(st.ID); err != nil {
		return protocol.ErrorResponse(err)
	}
	return protocol.OKResponse(nil)
}

func (d *Dispatcher) createTopic(session *auth.Session, payload []byte) *protocol.ResponseFrame {
	req, err := protocol.DecodeCreateTopicRequest(payload)
	if err != nil {
		return protocol.ErrorResponse(err)
	}
	st, err := d.sys.Stream(req.StreamID)
	if err != nil {
		return protocol.ErrorResponse(err)
	}
	if !d.requireResource(session, st.ID, 0, func(p auth.Permissions, sid, tid uint32) bool { return p.Global.ManageTopics }) {
		return protocol.ErrorResponse(protocol.New(protocol.CodeUnauthorized, "manage_topics required"))
	}
	t, err := st.CreateTopic(req.Name, int(req.PartitionsCount), req.MessageExpiry, req.MaxTopicSizeBytes)
	if err != nil {
		return protocol.ErrorResponse(err)
	}
	return protocol.OKResponse(appendU32(nil, t.ID))
}

func (d *Dispatcher) deleteTopic(session *auth.Session, payload []byte) *protocol.ResponseFrame {
	st, t, err := d.resolveStreamTopicIdentifiers(payload)
	if err != nil {
		return protocol.ErrorResponse(err)
	}
	if !d.requireGlobal(session, func(p auth.GlobalPermissions) bool { return p.ManageTopics }) {
		return protocol.ErrorResponse(protocol.New(protocol.CodeUnauthorized, "manage_topics required"))
	}
	if err := st.DeleteTopic(t.ID); err != nil {
		return protocol.ErrorResponse(err)
	}
	return protocol.OKResponse(nil)
}

func (d *Dispatcher) resolveStreamTopicIdentifiers(payload []byte) (*streaming.Stream, *streaming.Topic, error) {
	streamID, n, err := ids.Decode(payload)
	if err != nil {
		return nil, nil, protocol.Wrap(protocol.CodeMalformedPayload, "decode stream identifier", err)
	}
	topicID, _, err := ids.Decode(payload[n:])
	if err != nil {
		return nil, nil, protocol.Wrap(protocol.CodeMalformedPayload, "decode topic identifier", err)
	}
	st, err := d.sys.Stream(streamID)
	if err != nil {
		return nil, nil, err
	}
	t, err := st.Topic(topicID)
	if err != nil {
		return nil, nil, err
	}
	return st, t, nil
}

func (d *Dispatcher) createPartitions(session *auth.Session, payload []byte) *protocol.ResponseFrame {
	req, err := protocol.DecodeCreatePartitionsRequest(payload)
	if err != nil {
		return protocol.ErrorResponse(err)
	}
	st, err := d.sys.Stream(req.StreamID)
	if err != nil {
		return protocol.ErrorResponse(err)
	}
	t, err := st.Topic(req.TopicID)
	if err != nil {
		return protocol.ErrorResponse(err)
	}
	if !d.requireGlobal(session, func(p auth.GlobalPermissions) bool { return p.ManageTopics }) {
		return protocol.ErrorResponse(protocol.New(protocol.CodeUnauthorized, "manage_topics required"))
	}
	if err := t.AddPartitions(int(req.PartitionCount)); err != nil {
		return protocol.ErrorResponse(err)
	}
	return protocol.OKResponse(nil)
}

func (d *Dispatcher) deletePartitions(session *auth.Session, payload []byte) *protocol.ResponseFrame {
	req, err := protocol.DecodeCreatePartitionsRequest(payload)
	if err != nil {
		return protocol.ErrorResponse(err)
	}
	st, err := d.sys.Stream(req.StreamID)
	if err != nil {
		return protocol.ErrorResponse(err)
	}
	t, err := st.Topic(req.TopicID)
	if err != nil {
		return protocol.ErrorResponse(err)
	}
	if !d.requireGlobal(session, func(p auth.GlobalPermissions) bool { return p.ManageTopics }) {
		return protocol.ErrorResponse(protocol.New(protocol.CodeUnauthorized, "manage_topics required"))
	}
	if err := t.DeletePartitions(int(req.PartitionCount)); err != nil {
		return protocol.ErrorResponse(err)
	}
	return protocol.OKResponse(nil)
}

// requireResource is a small indirection kept for callers that want to
// evaluate per-resource overrides rather than the bare global flag; today
// every caller still only checks the global grant, but the seam lets a
// future per-stream/per-topic override plug in without changing call sites.
func (d *Dispatcher) requireResource(session *auth.Session, streamID, topicID uint32, check func(auth.Permissions, uint32, uint32) bool) bool {
	u, err := d.sys.Users.ByID(session.UserID())
	if err != nil {
		return false
	}
	return check(u.Permissions, streamID, topicID)
}

func (d *Dispatcher) sendMessages(session *auth.Session, payload []byte) *protocol.ResponseFrame {
	req, err := protocol.DecodeSendMessagesRequest(payload)
	if err != nil {
		return protocol.ErrorResponse(err)
	}
	_, t, err := d.resolveTopic(req.StreamID, req.TopicID)
	if err != nil {
		return protocol.ErrorResponse(err)
	}
	if !d.requireGlobal(session, func(p auth.GlobalPermissions) bool { return p.SendMessages }) {
		return protocol.ErrorResponse(protocol.New(protocol.CodeUnauthorized, "send_messages required"))
	}
	partitioning := streaming.Partitioning{Kind: req.Partitioning, PartitionID: req.PartitionID, Key: req.MessagesKey}
	pid, err := t.ResolvePartition(partitioning)
	if err != nil {
		return protocol.ErrorResponse(err)
	}
	p, err := t.Partition(pid)
	if err != nil {
		return protocol.ErrorResponse(err)
	}
	messages := make([]streaming.Message, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = streaming.Message{IDHi: m.IDHi, IDLo: m.IDLo, Headers: m.Headers, Payload: m.Payload}
	}
	appended, err := p.Append(messages, t.MaxTopicSizeBytes)
	if err != nil {
		return protocol.ErrorResponse(err)
	}
	totalBytes := 0
	for _, m := range appended {
		totalBytes += len(m.Payload)
	}
	d.sys.Metrics.RecordAppend(len(appended), totalBytes)
	return protocol.OKResponse(nil)
}

func (d *Dispatcher) resolveTopic(streamID, topicID ids.Identifier) (*streaming.Stream, *streaming.Topic, error) {
	st, err := d.sys.Stream(streamID)
	if err != nil {
		return nil, nil, err
	}
	t, err := st.Topic(topicID)
	if err != nil {
		return nil, nil, err
	}
	return st, t, nil
}

func (d *Dispatcher) pollMessages(session *auth.Session, payload []byte) *protocol.ResponseFrame {
	req, err := protocol.DecodePollMessagesRequest(payload)
	if err != nil {
		return protocol.ErrorResponse(err)
	}
	_, t, err := d.resolveTopic(req.StreamID, req.TopicID)
	if err != nil {
		return protocol.ErrorResponse(err)
	}
	if !d.requireGlobal(session, func(p auth.GlobalPermissions) bool { return p.PollMessages }) {
		return protocol.ErrorResponse(protocol.New(protocol.CodeUnauthorized, "poll_messages required"))
	}

	identity := streaming.ConsumerIdentity{ConsumerID: req.ConsumerID}
	partitionID := req.PartitionID
	if req.ConsumerKind == protocol.ConsumerGroup {
		g, err := t.ConsumerGroup(req.ConsumerID)
		if err != nil {
			return protocol.ErrorResponse(err)
		}
		pid, err := g.ResolveGroupPartition(req.ConsumerID)
		if err != nil {
			return protocol.ErrorResponse(err)
		}
		partitionID = pid
		identity = streaming.ConsumerIdentity{GroupID: g.ID, ConsumerID: req.ConsumerID}
	}

	p, err := t.Partition(partitionID)
	if err != nil {
		return protocol.ErrorResponse(err)
	}
	messages, err := p.Poll(req.Kind, req.Value, req.Count, req.AutoCommit, identity)
	if err != nil {
		return protocol.ErrorResponse(err)
	}
	wire := make([]protocol.WireMessage, len(messages))
	for i, m := range messages {
		wire[i] = protocol.WireMessage{
			Offset: m.Offset, Timestamp: m.Timestamp, IDHi: m.IDHi, IDLo: m.IDLo,
			Checksum: m.Checksum, Headers: m.Headers, Payload: m.Payload,
		}
	}
	respPayload, err := protocol.EncodePollMessagesResponse(wire)
	if err != nil {
		return protocol.ErrorResponse(err)
	}
	d.sys.Metrics.RecordPoll(len(messages))
	return protocol.OKResponse(respPayload)
}

func (d *Dispatcher) storeConsumerOffset(session *auth.Session, payload []byte) *protocol.ResponseFrame {
	req, err := protocol.DecodeStoreConsumerOffsetRequest(payload)
	if err != nil {
		return protocol.ErrorResponse(err)
	}
	_, t, err := d.resolveTopic(req.StreamID, req.TopicID)
	if err != nil {
		return protocol.ErrorResponse(err)
	}
	p, err := t.Partition(req.PartitionID)
	if err != nil {
		return protocol.ErrorResponse(err)
	}
	identity := streaming.ConsumerIdentity{ConsumerID: req.ConsumerID}
	if err := p.StoreConsumerOffset(identity, req.Offset); err != nil {
		return protocol.ErrorResponse(err)
	}
	return protocol.OKResponse(nil)
}

func (d *Dispatcher) getConsumerOffset(session *auth.Session, payload []byte) *protocol.ResponseFrame {
	req, err := protocol.DecodeStoreConsumerOffsetRequest(payload)
	if err != nil {
		return protocol.ErrorResponse(err)
	}
	_, t, err := d.resolveTopic(req.StreamID, req.TopicID)
	if err != nil {
		return protocol.ErrorResponse(err)
	}
	p, err := t.Partition(req.PartitionID)
	if err != nil {
		return protocol.ErrorResponse(err)
	}
	offset, ok := p.GetConsumerOffset(streaming.ConsumerIdentity{ConsumerID: req.ConsumerID})
	if !ok {
		return protocol.ErrorResponse(protocol.New(protocol.CodeResourceNotFound, "no stored consumer offset"))
	}
	return protocol.OKResponse(appendU64(nil, offset))
}

func (d *Dispatcher) createConsumerGroup(payload []byte) *protocol.ResponseFrame {
	req, err := protocol.DecodeCreateConsumerGroupRequest(payload)
	if err != nil {
		return protocol.ErrorResponse(err)
	}
	_, t, err := d.resolveTopic(req.StreamID, req.TopicID)
	if err != nil {
		return protocol.ErrorResponse(err)
	}
	g, err := t.CreateConsumerGroup(req.GroupID.Number(), req.Name)
	if err != nil {
		return protocol.ErrorResponse(err)
	}
	return protocol.OKResponse(appendU32(nil, g.ID))
}

func (d *Dispatcher) deleteConsumerGroup(payload []byte) *protocol.ResponseFrame {
	req, err := protocol.DecodeDeleteConsumerGroupRequest(payload)
	if err != nil {
		return protocol.ErrorResponse(err)
	}
	_, t, err := d.resolveTopic(req.StreamID, req.TopicID)
	if err != nil {
		return protocol.ErrorResponse(err)
	}
	if err := t.DeleteConsumerGroup(req.GroupID.Number()); err != nil {
		return protocol.ErrorResponse(err)
	}
	return protocol.OKResponse(nil)
}

func (d *Dispatcher) joinConsumerGroup(payload []byte) *protocol.ResponseFrame {
	req, err := protocol.DecodeConsumerGroupMembershipRequest(payload)
	if err != nil {
		return protocol.ErrorResponse(err)
	}
	_, t, err := d.resolveTopic(req.StreamID, req.TopicID)
	if err != nil {
		return protocol.ErrorResponse(err)
	}
	if _, err := t.JoinConsumerGroup(req.GroupID.Number(), req.GroupID.String(), req.ConsumerID); err != nil {
		return protocol.ErrorResponse(err)
	}
	return protocol.OKResponse(nil)
}

func (d *Dispatcher) leaveConsumerGroup(payload []byte) *protocol.ResponseFrame {
	req, err := protocol.DecodeConsumerGroupMembershipRequest(payload)
	if err != nil {
		return protocol.ErrorResponse(err)
	}
	_, t, err := d.resolveTopic(req.StreamID, req.TopicID)
	if err != nil {
		return protocol.ErrorResponse(err)
	}
	if err := t.LeaveConsumerGroup(req.GroupID.Number(), req.ConsumerID); err != nil {
		return protocol.ErrorResponse(err)
	}
	return protocol.OKResponse(nil)
}

func appendU32(buf []byte, v uint32) []byte {
	return append(buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func appendU64(buf []byte, v uint64) []byte {
	return append(buf,
		byte(v), byte(v>>8), byte(v>>16), byte(v>>24),
		byte(v>>32), byte(v>>40), byte(v>>48), byte(v>>56))
}
