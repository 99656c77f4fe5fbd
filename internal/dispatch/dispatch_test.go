package dispatch

import (
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/FairForge/brokerd/internal/auth"
	"github.com/FairForge/brokerd/internal/config"
	"github.com/FairForge/brokerd/internal/ids"
	"github.com/FairForge/brokerd/internal/protocol"
	"github.com/FairForge/brokerd/internal/system"
)

func testClock() time.Time { return time.Unix(1700000000, 0).UTC() }

func newTestDispatcher(t *testing.T) (*Dispatcher, *auth.Session) {
	t.Helper()
	cfg := config.Default()
	cfg.SystemPath = filepath.Join(t.TempDir(), "data")
	sys := system.New(cfg, testClock, zap.NewNop())
	if err := sys.Boot(); err != nil {
		t.Fatalf("Boot: %v", err)
	}
	d := New(sys, testClock, zap.NewNop())
	session := sys.Sessions.Open("tcp", "127.0.0.1:1")
	return d, session
}

func frame(code uint32, payload []byte) *protocol.RequestFrame {
	return &protocol.RequestFrame{CommandCode: code, Payload: payload}
}

func TestDispatchPingRequiresNoAuth(t *testing.T) {
	d, session := newTestDispatcher(t)
	resp := d.Handle(session, frame(protocol.CommandPing, nil))
	if resp.Status != protocol.CodeOK {
		t.Fatalf("got status %v, want OK", resp.Status)
	}
}

func TestDispatchAuthRequiredCommandRejectsUnauthenticated(t *testing.T) {
	d, session := newTestDispatcher(t)
	resp := d.Handle(session, frame(protocol.CommandGetStreams, nil))
	if resp.Status != protocol.CodeUnauthenticated {
		t.Fatalf("got status %v, want Unauthenticated", resp.Status)
	}
}

func loginAsRoot(t *testing.T, d *Dispatcher, session *auth.Session) {
	t.Helper()
	payload := protocol.EncodeLoginUserRequest(&protocol.LoginUserRequest{Username: "iggy", Password: "iggy"})
	resp := d.Handle(session, frame(protocol.CommandLoginUser, payload))
	if resp.Status != protocol.CodeOK {
		t.Fatalf("login failed with status %v", resp.Status)
	}
}

func TestDispatchLoginThenCreateStreamAndTopic(t *testing.T) {
	d, session := newTestDispatcher(t)
	loginAsRoot(t, d, session)

	createStreamPayload := protocol.EncodeCreateStreamRequest(&protocol.CreateStreamRequest{StreamID: ids.Numeric(0), Name: "orders"})
	resp := d.Handle(session, frame(protocol.CommandCreateStream, createStreamPayload))
	if resp.Status != protocol.CodeOK {
		t.Fatalf("CreateStream failed with status %v", resp.Status)
	}

	createTopicPayload := protocol.EncodeCreateTopicRequest(&protocol.CreateTopicRequest{
		StreamID: ids.Name("orders"), TopicID: ids.Numeric(0), Name: "events", PartitionsCount: 2,
	})
	resp = d.Handle(session, frame(protocol.CommandCreateTopic, createTopicPayload))
	if resp.Status != protocol.CodeOK {
		t.Fatalf("CreateTopic failed with status %v", resp.Status)
	}
}

func TestDispatchLogoutClearsAuthentication(t *testing.T) {
	d, session := newTestDispatcher(t)
	loginAsRoot(t, d, session)
	if !session.IsAuthenticated() {
		t.Fatalf("expected session authenticated after login")
	}
	resp := d.Handle(session, frame(protocol.CommandLogoutUser, nil))
	if resp.Status != protocol.CodeOK {
		t.Fatalf("Logout failed with status %v", resp.Status)
	}
	if session.IsAuthenticated() {
		t.Fatalf("expected session unauthenticated after logout")
	}
}

func TestDispatchSendAndPollMessagesRoundTrip(t *testing.T) {
	d, session := newTestDispatcher(t)
	loginAsRoot(t, d, session)

	d.Handle(session, frame(protocol.CommandCreateStream,
		protocol.EncodeCreateStreamRequest(&protocol.CreateStreamRequest{StreamID: ids.Numeric(0), Name: "orders"})))
	d.Handle(session, frame(protocol.CommandCreateTopic,
		protocol.EncodeCreateTopicRequest(&protocol.CreateTopicRequest{
			StreamID: ids.Name("orders"), TopicID: ids.Numeric(0), Name: "events", PartitionsCount: 1,
		})))

	sendReq := &protocol.SendMessagesRequest{
		StreamID: ids.Name("orders"), TopicID: ids.Name("events"),
		Partitioning: protocol.PartitioningBalanced,
		Messages:     []protocol.WireMessage{{Payload: []byte("hello")}},
	}
	sendPayload, err := protocol.EncodeSendMessagesRequest(sendReq)
	if err != nil {
		t.Fatalf("EncodeSendMessagesRequest: %v", err)
	}
	resp := d.Handle(session, frame(protocol.CommandSendMessages, sendPayload))
	if resp.Status != protocol.CodeOK {
		t.Fatalf("SendMessages failed with status %v", resp.Status)
	}

	pollReq := &protocol.PollMessagesRequest{
		StreamID: ids.Name("orders"), TopicID: ids.Name("events"),
		PartitionID: 1, Kind: protocol.PollFirst, Count: 10,
	}
	pollPayload := protocol.EncodePollMessagesRequest(pollReq)
	resp = d.Handle(session, frame(protocol.CommandPollMessages, pollPayload))
	if resp.Status != protocol.CodeOK {
		t.Fatalf("PollMessages failed with status %v", resp.Status)
	}
	messages, err := protocol.DecodePollMessagesResponse(resp.Payload)
	if err != nil {
		t.Fatalf("DecodePollMessagesResponse: %v", err)
	}
	if len(messages) != 1 || string(messages[0].Payload) != "hello" {
		t.Fatalf("got messages %+v, want one message with payload \"hello\"", messages)
	}
}

func TestDispatchUnknownCommandReturnsInvalidCommand(t *testing.T) {
	d, session := newTestDispatcher(t)
	resp := d.Handle(session, frame(999999, nil))
	if resp.Status != protocol.CodeInvalidCommand {
		t.Fatalf("got status %v, want InvalidCommand", resp.Status)
	}
}
