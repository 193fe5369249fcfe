package handlers_test

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PolyChat/protocol"
	"PolyChat/service/auth"
	"PolyChat/service/relay"
	"PolyChat/service/relay/handlers"
)

const testSecret = "relay-test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRelay(t *testing.T) (*relay.Server, string) {
	t.Helper()

	srv := relay.NewServer(relay.Config{
		FanoutWorkers: 2,
		FanoutQueue:   64,
		SendQueueSize: 64,
	}, auth.NewJWTVerifier(auth.DefaultOptions([]byte(testSecret))))
	handlers.RegisterAll(srv)

	r := gin.New()
	r.GET("/ws", srv.HandleWS)
	ts := httptest.NewServer(r)
	t.Cleanup(func() {
		ts.CloseClientConnections()
		ts.Close()
	})

	return srv, "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func token(t *testing.T, userID string) string {
	t.Helper()
	tok, _, err := auth.Generate(auth.DefaultOptions([]byte(testSecret)), userID)
	require.NoError(t, err)
	return tok
}

// peer is a raw websocket client with a background reader, so tests control
// every frame explicitly.
type peer struct {
	t      *testing.T
	ws     *websocket.Conn
	frames chan *protocol.Frame
}

func dialPeer(t *testing.T, url string) *peer {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	p := &peer{t: t, ws: ws, frames: make(chan *protocol.Frame, 64)}
	t.Cleanup(p.close)

	go func() {
		defer close(p.frames)
		for {
			_, data, rerr := ws.ReadMessage()
			if rerr != nil {
				return
			}
			if f, perr := protocol.ParseFrame(data); perr == nil {
				p.frames <- f
			}
		}
	}()
	return p
}

func (p *peer) close() { _ = p.ws.Close() }

func (p *peer) send(event string, payload any) {
	p.t.Helper()
	data, err := protocol.EncodeFrame(event, payload)
	require.NoError(p.t, err)
	require.NoError(p.t, p.ws.WriteMessage(websocket.TextMessage, data))
}

// recvEvent blocks until a frame with the given event arrives, skipping
// unrelated ones.
func (p *peer) recvEvent(event string, timeout time.Duration) *protocol.Frame {
	p.t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case f, ok := <-p.frames:
			if !ok {
				p.t.Fatalf("connection closed while waiting for %q", event)
				return nil
			}
			if f.Event == event {
				return f
			}
		case <-deadline:
			p.t.Fatalf("timed out waiting for %q", event)
			return nil
		}
	}
}

// recvPair waits for one frame of each event, in either order.
func (p *peer) recvPair(ev1, ev2 string, timeout time.Duration) (f1, f2 *protocol.Frame) {
	p.t.Helper()
	deadline := time.After(timeout)
	for f1 == nil || f2 == nil {
		select {
		case f, ok := <-p.frames:
			if !ok {
				p.t.Fatalf("connection closed while waiting for %q and %q", ev1, ev2)
			}
			switch {
			case f.Event == ev1 && f1 == nil:
				f1 = f
			case f.Event == ev2 && f2 == nil:
				f2 = f
			}
		case <-deadline:
			p.t.Fatalf("timed out waiting for %q and %q", ev1, ev2)
		}
	}
	return f1, f2
}

// expectNone fails if a frame with the given event shows up inside the window.
func (p *peer) expectNone(event string, window time.Duration) {
	p.t.Helper()
	deadline := time.After(window)
	for {
		select {
		case f, ok := <-p.frames:
			if !ok {
				return
			}
			if f.Event == event {
				p.t.Fatalf("unexpected %q: %v", event, f.Data)
			}
		case <-deadline:
			return
		}
	}
}

func (p *peer) authenticate(userID, tok string) {
	p.t.Helper()
	p.send(protocol.EventAuthenticate, protocol.AuthPayload{UserID: userID, Token: tok})
}

func waitOnline(t *testing.T, srv *relay.Server, userID string) {
	t.Helper()
	require.Eventually(t, func() bool {
		s, ok := srv.Registry().Lookup(userID)
		return ok && s.Presence == relay.PresenceOnline
	}, 2*time.Second, 5*time.Millisecond, "user %s never came online", userID)
}

func waitMembers(t *testing.T, srv *relay.Server, chatID string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(srv.RoomMembers(chatID)) == n
	}, 2*time.Second, 5*time.Millisecond, "room %s never reached %d members", chatID, n)
}

func TestAuthenticateBroadcastsPresence(t *testing.T) {
	srv, url := newTestRelay(t)

	a := dialPeer(t, url)
	a.authenticate("alice", token(t, "alice"))
	waitOnline(t, srv, "alice")

	b := dialPeer(t, url)
	b.authenticate("bob", token(t, "bob"))
	waitOnline(t, srv, "bob")

	// alice sees bob come online; bob gets no echo of his own presence.
	f := a.recvEvent(protocol.EventUserStatusUpdate, 2*time.Second)
	assert.Equal(t, "bob", f.Data["userId"])
	assert.Equal(t, protocol.StatusOnline, f.Data["status"])
	b.expectNone(protocol.EventUserStatusUpdate, 150*time.Millisecond)
}

func TestPreAuthEventsDropped(t *testing.T) {
	srv, url := newTestRelay(t)

	p := dialPeer(t, url)
	p.send(protocol.EventJoinChat, protocol.JoinChatPayload{ChatID: "chat1"})
	p.send(protocol.EventSendMessage, protocol.SendMessagePayload{ChatID: "chat1", Text: "hi"})

	p.expectNone(protocol.EventNewMessage, 150*time.Millisecond)
	p.expectNone(protocol.EventMessageSent, 50*time.Millisecond)
	assert.Empty(t, srv.RoomMembers("chat1"))

	// The connection is still usable: authenticating afterwards succeeds.
	p.authenticate("carol", token(t, "carol"))
	waitOnline(t, srv, "carol")
}

func TestMessageFanoutAndAck(t *testing.T) {
	srv, url := newTestRelay(t)

	a := dialPeer(t, url)
	a.authenticate("alice", token(t, "alice"))
	waitOnline(t, srv, "alice")
	b := dialPeer(t, url)
	b.authenticate("bob", token(t, "bob"))
	waitOnline(t, srv, "bob")

	a.send(protocol.EventJoinChat, protocol.JoinChatPayload{ChatID: "chat1"})
	b.send(protocol.EventJoinChat, protocol.JoinChatPayload{ChatID: "chat1"})
	waitMembers(t, srv, "chat1", 2)

	a.send(protocol.EventSendMessage, protocol.SendMessagePayload{
		ChatID: "chat1", SenderID: "alice", Text: "hola", Translation: "hello",
	})

	got := b.recvEvent(protocol.EventNewMessage, 2*time.Second)
	assert.Equal(t, "chat1", got.Data["chatId"])
	assert.Equal(t, "alice", got.Data["senderId"])
	assert.Equal(t, "hola", got.Data["text"])
	assert.Equal(t, "hello", got.Data["translation"])
	assert.Equal(t, protocol.KindText, got.Data["type"])
	assert.NotEmpty(t, got.Data["id"], "relay must assign the message id")

	// The sender receives the room fan-out and exactly one ack; the two race
	// through separate paths, so accept either order.
	own, ack := a.recvPair(protocol.EventNewMessage, protocol.EventMessageSent, 2*time.Second)
	assert.Equal(t, got.Data["id"], own.Data["id"])
	assert.Equal(t, true, ack.Data["success"])
	assert.Equal(t, got.Data["id"], ack.Data["messageId"])
	a.expectNone(protocol.EventMessageSent, 150*time.Millisecond)

	// Exactly one copy for the recipient.
	b.expectNone(protocol.EventNewMessage, 150*time.Millisecond)
}

func TestSenderIdentityOverridesClaim(t *testing.T) {
	srv, url := newTestRelay(t)

	a := dialPeer(t, url)
	a.authenticate("alice", token(t, "alice"))
	waitOnline(t, srv, "alice")
	b := dialPeer(t, url)
	b.authenticate("bob", token(t, "bob"))
	waitOnline(t, srv, "bob")

	a.send(protocol.EventJoinChat, protocol.JoinChatPayload{ChatID: "chat1"})
	b.send(protocol.EventJoinChat, protocol.JoinChatPayload{ChatID: "chat1"})
	waitMembers(t, srv, "chat1", 2)

	// A spoofed senderId in the payload must not survive the relay.
	a.send(protocol.EventSendMessage, protocol.SendMessagePayload{
		ChatID: "chat1", SenderID: "mallory", Text: "hi",
	})
	got := b.recvEvent(protocol.EventNewMessage, 2*time.Second)
	assert.Equal(t, "alice", got.Data["senderId"])
}

func TestVoiceMessageFanout(t *testing.T) {
	srv, url := newTestRelay(t)

	a := dialPeer(t, url)
	a.authenticate("alice", token(t, "alice"))
	waitOnline(t, srv, "alice")
	b := dialPeer(t, url)
	b.authenticate("bob", token(t, "bob"))
	waitOnline(t, srv, "bob")

	a.send(protocol.EventJoinChat, protocol.JoinChatPayload{ChatID: "chat1"})
	b.send(protocol.EventJoinChat, protocol.JoinChatPayload{ChatID: "chat1"})
	waitMembers(t, srv, "chat1", 2)

	a.send(protocol.EventSendVoiceMessage, protocol.SendVoiceMessagePayload{
		ChatID: "chat1", AudioData: "b64audio", Duration: 3.2,
	})

	got := b.recvEvent(protocol.EventNewMessage, 2*time.Second)
	assert.Equal(t, protocol.KindVoice, got.Data["type"])
	assert.Equal(t, "b64audio", got.Data["audioData"])
	assert.InDelta(t, 3.2, got.Data["duration"], 0.001)

	ack := a.recvEvent(protocol.EventMessageSent, 2*time.Second)
	assert.Equal(t, true, ack.Data["success"])
}

func TestMessageToEmptyRoomStillAcks(t *testing.T) {
	srv, url := newTestRelay(t)

	a := dialPeer(t, url)
	a.authenticate("alice", token(t, "alice"))
	waitOnline(t, srv, "alice")

	// alice never joined chat9: fan-out reaches nobody, the ack still comes.
	a.send(protocol.EventSendMessage, protocol.SendMessagePayload{ChatID: "chat9", Text: "anyone?"})

	ack := a.recvEvent(protocol.EventMessageSent, 2*time.Second)
	assert.Equal(t, true, ack.Data["success"])
	a.expectNone(protocol.EventNewMessage, 150*time.Millisecond)
}

func TestTypingIndicatorNoEcho(t *testing.T) {
	srv, url := newTestRelay(t)

	a := dialPeer(t, url)
	a.authenticate("alice", token(t, "alice"))
	waitOnline(t, srv, "alice")
	b := dialPeer(t, url)
	b.authenticate("bob", token(t, "bob"))
	waitOnline(t, srv, "bob")

	a.send(protocol.EventJoinChat, protocol.JoinChatPayload{ChatID: "chat1"})
	b.send(protocol.EventJoinChat, protocol.JoinChatPayload{ChatID: "chat1"})
	waitMembers(t, srv, "chat1", 2)

	a.send(protocol.EventTypingIndicator, protocol.TypingIndicatorPayload{ChatID: "chat1", IsTyping: true})

	got := b.recvEvent(protocol.EventUserTyping, 2*time.Second)
	assert.Equal(t, "alice", got.Data["senderId"])
	assert.Equal(t, true, got.Data["isTyping"])
	a.expectNone(protocol.EventUserTyping, 150*time.Millisecond)
}

func TestStatusUpdateBroadcast(t *testing.T) {
	srv, url := newTestRelay(t)

	a := dialPeer(t, url)
	a.authenticate("alice", token(t, "alice"))
	waitOnline(t, srv, "alice")
	b := dialPeer(t, url)
	b.authenticate("bob", token(t, "bob"))
	waitOnline(t, srv, "bob")

	b.send(protocol.EventUpdateStatus, protocol.UpdateStatusPayload{Status: "away"})

	f := a.recvEvent(protocol.EventUserStatusUpdate, 2*time.Second)
	for f.Data["status"] != "away" { // skip bob's earlier online broadcast
		f = a.recvEvent(protocol.EventUserStatusUpdate, 2*time.Second)
	}
	assert.Equal(t, "bob", f.Data["userId"])

	s, ok := srv.Registry().Lookup("bob")
	require.True(t, ok)
	assert.Equal(t, relay.Presence("away"), s.Presence)
}

func TestAbruptCloseBroadcastsOfflineOnce(t *testing.T) {
	srv, url := newTestRelay(t)

	a := dialPeer(t, url)
	a.authenticate("alice", token(t, "alice"))
	waitOnline(t, srv, "alice")
	b := dialPeer(t, url)
	b.authenticate("bob", token(t, "bob"))
	waitOnline(t, srv, "bob")

	a.close()

	f := b.recvEvent(protocol.EventUserStatusUpdate, 2*time.Second)
	for f.Data["status"] != protocol.StatusOffline {
		f = b.recvEvent(protocol.EventUserStatusUpdate, 2*time.Second)
	}
	assert.Equal(t, "alice", f.Data["userId"])
	b.expectNone(protocol.EventUserStatusUpdate, 200*time.Millisecond)

	s, ok := srv.Registry().Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, relay.PresenceOffline, s.Presence)
}

func TestReconnectSupersedesStaleTransport(t *testing.T) {
	srv, url := newTestRelay(t)

	b := dialPeer(t, url)
	b.authenticate("bob", token(t, "bob"))
	waitOnline(t, srv, "bob")

	first := dialPeer(t, url)
	first.authenticate("alice", token(t, "alice"))
	waitOnline(t, srv, "alice")
	firstTransport, _ := srv.Registry().Lookup("alice")

	second := dialPeer(t, url)
	second.authenticate("alice", token(t, "alice"))
	require.Eventually(t, func() bool {
		s, ok := srv.Registry().Lookup("alice")
		return ok && s.TransportID != firstTransport.TransportID
	}, 2*time.Second, 5*time.Millisecond)

	// Closing the superseded transport must not announce alice offline.
	first.close()
	deadline := time.After(300 * time.Millisecond)
drain:
	for {
		select {
		case f, ok := <-b.frames:
			if !ok {
				t.Fatal("observer connection closed")
			}
			if f.Event == protocol.EventUserStatusUpdate && f.Data["status"] == protocol.StatusOffline {
				t.Fatalf("stale transport close produced an offline broadcast: %v", f.Data)
			}
		case <-deadline:
			break drain
		}
	}

	s, ok := srv.Registry().Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, relay.PresenceOnline, s.Presence)

	// Closing the live transport announces offline exactly once.
	second.close()
	f := b.recvEvent(protocol.EventUserStatusUpdate, 2*time.Second)
	for f.Data["status"] != protocol.StatusOffline {
		f = b.recvEvent(protocol.EventUserStatusUpdate, 2*time.Second)
	}
	assert.Equal(t, "alice", f.Data["userId"])
	b.expectNone(protocol.EventUserStatusUpdate, 200*time.Millisecond)
}

func TestAuthFailureRejectsAndCloses(t *testing.T) {
	_, url := newTestRelay(t)

	p := dialPeer(t, url)
	p.authenticate("alice", "not-a-jwt")

	f := p.recvEvent(protocol.EventAuthFailed, 2*time.Second)
	assert.NotEmpty(t, f.Data["reason"])

	// The relay closes the transport shortly after rejecting.
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-p.frames:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond, "transport stayed open after auth failure")
}

func TestAuthIdentityMismatchRejected(t *testing.T) {
	srv, url := newTestRelay(t)

	p := dialPeer(t, url)
	// Token says alice, handshake claims bob.
	p.authenticate("bob", token(t, "alice"))

	f := p.recvEvent(protocol.EventAuthFailed, 2*time.Second)
	assert.Equal(t, "identity mismatch", f.Data["reason"])
	_, ok := srv.Registry().Lookup("bob")
	assert.False(t, ok)
	_, ok = srv.Registry().Lookup("alice")
	assert.False(t, ok)
}

func TestLeaveChatStopsDelivery(t *testing.T) {
	srv, url := newTestRelay(t)

	a := dialPeer(t, url)
	a.authenticate("alice", token(t, "alice"))
	waitOnline(t, srv, "alice")
	b := dialPeer(t, url)
	b.authenticate("bob", token(t, "bob"))
	waitOnline(t, srv, "bob")

	a.send(protocol.EventJoinChat, protocol.JoinChatPayload{ChatID: "chat1"})
	b.send(protocol.EventJoinChat, protocol.JoinChatPayload{ChatID: "chat1"})
	waitMembers(t, srv, "chat1", 2)

	b.send(protocol.EventLeaveChat, protocol.LeaveChatPayload{ChatID: "chat1"})
	waitMembers(t, srv, "chat1", 1)

	a.send(protocol.EventSendMessage, protocol.SendMessagePayload{ChatID: "chat1", Text: "gone?"})
	a.recvEvent(protocol.EventMessageSent, 2*time.Second)
	b.expectNone(protocol.EventNewMessage, 150*time.Millisecond)
}

func TestMalformedFrameIgnored(t *testing.T) {
	srv, url := newTestRelay(t)

	p := dialPeer(t, url)
	require.NoError(t, p.ws.WriteMessage(websocket.TextMessage, []byte("{not json")))
	require.NoError(t, p.ws.WriteMessage(websocket.TextMessage, []byte(`{"data":{"x":1}}`)))

	// Connection survives; authentication still works afterwards.
	p.authenticate("alice", token(t, "alice"))
	waitOnline(t, srv, "alice")
}
