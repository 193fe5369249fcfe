package wsclient

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"PolyChat/logger"
	"PolyChat/protocol"
	"PolyChat/tools/decode"
)

// ErrNotConnected is returned by every send operation while the logical
// connection is not CONNECTED. Callers check or ignore; nothing queues.
var ErrNotConnected = errors.New("wsclient: not connected")

// Conf tunes the reconnect behavior. Delay grows linearly:
// attempt * BaseDelay, strictly increasing up to MaxReconnectAttempts.
type Conf struct {
	URL                  string        // ws://host/ws
	BaseDelay            time.Duration // default 1s
	MaxReconnectAttempts int           // default 5
	HandshakeTimeout     time.Duration // default 10s
	WriteTimeout         time.Duration // default 10s
}

func (c *Conf) norm() {
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = 5
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
}

// Client maintains one logical relay connection on top of an unreliable
// transport. On transport drop it reconnects with linear backoff; after
// MaxReconnectAttempts consecutive failures it goes terminally DISCONNECTED
// and stays there until Connect is called again.
type Client struct {
	conf Conf

	mu         sync.Mutex
	state      State
	ws         *websocket.Conn
	userID     string
	token      string
	attempts   int
	timer      *time.Timer
	gen        uint64 // connection generation; invalidates stale goroutines/timers
	authFailed bool

	writeMu sync.Mutex

	chatCbs   map[string]func(protocol.MessageEnvelope)
	typingCbs map[string]func(protocol.UserTypingEvent)
	statusCbs map[string]func(protocol.UserStatusEvent)
	ackCb     func(protocol.MessageSentAck)
	stateCb   func(State)
}

func New(conf Conf) *Client {
	conf.norm()
	return &Client{
		conf:      conf,
		state:     StateIdle,
		chatCbs:   make(map[string]func(protocol.MessageEnvelope)),
		typingCbs: make(map[string]func(protocol.UserTypingEvent)),
		statusCbs: make(map[string]func(protocol.UserStatusEvent)),
	}
}

// Connect opens the transport and authenticates. A Connect while a previous
// connection or a pending reconnect exists supersedes it. The returned error
// reports the first dial attempt only; the backoff loop keeps going either
// way until it succeeds or exhausts its attempts.
func (c *Client) Connect(userID, token string) error {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.cancelTimerLocked()
	if c.ws != nil {
		_ = c.ws.Close()
		c.ws = nil
	}
	c.userID = userID
	c.token = token
	c.attempts = 0
	c.authFailed = false
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	return c.dial(gen)
}

func (c *Client) dial(gen uint64) error {
	dialer := websocket.Dialer{HandshakeTimeout: c.conf.HandshakeTimeout}
	ws, _, err := dialer.Dial(c.conf.URL, nil)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		if ws != nil {
			_ = ws.Close()
		}
		return nil
	}
	if err != nil {
		logger.Debugf("[wsclient] dial err: %v", err)
		c.scheduleReconnectLocked(gen)
		c.mu.Unlock()
		return err
	}
	c.ws = ws
	c.attempts = 0
	c.setStateLocked(StateConnected)
	userID, token := c.userID, c.token
	c.mu.Unlock()

	// Authenticate first; the relay drops anything else pre-auth. Then
	// announce online the way the browser client does.
	_ = c.sendFrame(protocol.EventAuthenticate, protocol.AuthPayload{UserID: userID, Token: token})
	_ = c.sendFrame(protocol.EventUpdateStatus, protocol.UpdateStatusPayload{Status: protocol.StatusOnline, UserID: userID})

	go c.readLoop(gen, ws)
	return nil
}

func (c *Client) readLoop(gen uint64, ws *websocket.Conn) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.handleDrop(gen)
			return
		}
		c.dispatch(data)
	}
}

// handleDrop runs the backoff state machine after a transport-level failure.
// Explicit Disconnect and superseding Connects bump gen, so stale read loops
// fall through here without effect.
func (c *Client) handleDrop(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen || c.state == StateDisconnected {
		return
	}
	c.ws = nil
	if c.authFailed {
		// Server closed after rejecting the token. Retrying with the same
		// token is pointless; the caller must Connect with a fresh one.
		c.setStateLocked(StateDisconnected)
		return
	}
	c.scheduleReconnectLocked(gen)
}

func (c *Client) scheduleReconnectLocked(gen uint64) {
	c.attempts++
	if c.attempts > c.conf.MaxReconnectAttempts {
		logger.Infof("[wsclient] reconnect attempts exhausted (%d), giving up", c.conf.MaxReconnectAttempts)
		c.setStateLocked(StateDisconnected)
		return
	}
	c.setStateLocked(StateReconnecting)

	delay := time.Duration(c.attempts) * c.conf.BaseDelay
	logger.Debugf("[wsclient] reconnect attempt=%d in %v", c.attempts, delay)
	c.timer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		if gen != c.gen || c.state != StateReconnecting {
			c.mu.Unlock()
			return
		}
		c.setStateLocked(StateConnecting)
		c.mu.Unlock()
		_ = c.dial(gen)
	})
}

// Disconnect tears the logical connection down: pending reconnect canceled,
// transport closed, terminal until the next Connect. Callback registrations
// are cleared, matching the original client.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.gen++
	c.cancelTimerLocked()
	ws := c.ws
	c.ws = nil
	wasConnected := c.state == StateConnected
	c.setStateLocked(StateDisconnected)
	userID := c.userID
	c.chatCbs = make(map[string]func(protocol.MessageEnvelope))
	c.typingCbs = make(map[string]func(protocol.UserTypingEvent))
	c.statusCbs = make(map[string]func(protocol.UserStatusEvent))
	c.ackCb = nil
	c.mu.Unlock()

	if ws != nil {
		if wasConnected {
			// Best-effort offline announcement before the close.
			if data, err := protocol.EncodeFrame(protocol.EventUpdateStatus, protocol.UpdateStatusPayload{
				Status: protocol.StatusOffline, UserID: userID,
			}); err == nil {
				c.writeMu.Lock()
				_ = ws.SetWriteDeadline(time.Now().Add(c.conf.WriteTimeout))
				_ = ws.WriteMessage(websocket.TextMessage, data)
				c.writeMu.Unlock()
			}
		}
		_ = ws.Close()
	}
}

func (c *Client) cancelTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// setStateLocked updates state and notifies the observer. The callback runs
// under the client lock and must not call back into the client.
func (c *Client) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	if c.stateCb != nil {
		c.stateCb(s)
	}
}

// ---- outbound API ----

func (c *Client) sendFrame(event string, payload any) error {
	c.mu.Lock()
	ws, st := c.ws, c.state
	c.mu.Unlock()
	if st != StateConnected || ws == nil {
		return ErrNotConnected
	}

	data, err := protocol.EncodeFrame(event, payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = ws.SetWriteDeadline(time.Now().Add(c.conf.WriteTimeout))
	return ws.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) SendMessage(chatID, recipientID, text, translation string) error {
	c.mu.Lock()
	sender := c.userID
	c.mu.Unlock()
	return c.sendFrame(protocol.EventSendMessage, protocol.SendMessagePayload{
		ChatID:      chatID,
		RecipientID: recipientID,
		SenderID:    sender,
		Text:        text,
		Translation: translation,
		Timestamp:   time.Now().UnixMilli(),
	})
}

func (c *Client) SendVoiceMessage(chatID, recipientID, audioData string, duration float64, translation string) error {
	c.mu.Lock()
	sender := c.userID
	c.mu.Unlock()
	return c.sendFrame(protocol.EventSendVoiceMessage, protocol.SendVoiceMessagePayload{
		ChatID:      chatID,
		RecipientID: recipientID,
		SenderID:    sender,
		AudioData:   audioData,
		Duration:    duration,
		Translation: translation,
		Timestamp:   time.Now().UnixMilli(),
	})
}

func (c *Client) SendTypingIndicator(chatID, recipientID string, isTyping bool) error {
	return c.sendFrame(protocol.EventTypingIndicator, protocol.TypingIndicatorPayload{
		ChatID:      chatID,
		RecipientID: recipientID,
		IsTyping:    isTyping,
	})
}

func (c *Client) JoinChat(chatID string) error {
	c.mu.Lock()
	userID := c.userID
	c.mu.Unlock()
	return c.sendFrame(protocol.EventJoinChat, protocol.JoinChatPayload{ChatID: chatID, UserID: userID})
}

func (c *Client) LeaveChat(chatID string) error {
	c.mu.Lock()
	userID := c.userID
	c.mu.Unlock()
	return c.sendFrame(protocol.EventLeaveChat, protocol.LeaveChatPayload{ChatID: chatID, UserID: userID})
}

func (c *Client) UpdateUserStatus(status string) error {
	c.mu.Lock()
	userID := c.userID
	c.mu.Unlock()
	return c.sendFrame(protocol.EventUpdateStatus, protocol.UpdateStatusPayload{Status: status, UserID: userID})
}

// ---- inbound dispatch ----

// dispatch is synchronous with the read loop: no batching, no debouncing.
func (c *Client) dispatch(data []byte) {
	f, err := protocol.ParseFrame(data)
	if err != nil {
		logger.Debugf("[wsclient] bad frame: %v", err)
		return
	}

	switch f.Event {
	case protocol.EventNewMessage:
		env, derr := decode.Map[protocol.MessageEnvelope](f.Data)
		if derr != nil {
			logger.Debugf("[wsclient] bad envelope: %v", derr)
			return
		}
		c.mu.Lock()
		cb := c.chatCbs[env.ChatID]
		c.mu.Unlock()
		if cb != nil {
			cb(*env)
		}

	case protocol.EventUserTyping:
		ev, derr := decode.Map[protocol.UserTypingEvent](f.Data)
		if derr != nil {
			return
		}
		c.mu.Lock()
		cb := c.typingCbs[ev.ChatID]
		c.mu.Unlock()
		if cb != nil {
			cb(*ev)
		}

	case protocol.EventUserStatusUpdate:
		ev, derr := decode.Map[protocol.UserStatusEvent](f.Data)
		if derr != nil {
			return
		}
		c.mu.Lock()
		cb := c.statusCbs[ev.UserID]
		c.mu.Unlock()
		if cb != nil {
			cb(*ev)
		}

	case protocol.EventMessageSent:
		ack, derr := decode.Map[protocol.MessageSentAck](f.Data)
		if derr != nil {
			return
		}
		c.mu.Lock()
		cb := c.ackCb
		c.mu.Unlock()
		if cb != nil {
			cb(*ack)
		}

	case protocol.EventAuthFailed:
		logger.Infof("[wsclient] authentication rejected by relay")
		c.mu.Lock()
		c.authFailed = true
		c.mu.Unlock()

	default:
		logger.Debugf("[wsclient] unhandled event=%s", f.Event)
	}
}

// ---- callback registration: one slot per key, last registration wins ----

func (c *Client) OnChatMessage(chatID string, cb func(protocol.MessageEnvelope)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chatCbs[chatID] = cb
}

func (c *Client) OnUserTyping(chatID string, cb func(protocol.UserTypingEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.typingCbs[chatID] = cb
}

func (c *Client) OnUserStatusChange(userID string, cb func(protocol.UserStatusEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusCbs[userID] = cb
}

func (c *Client) OnMessageSent(cb func(protocol.MessageSentAck)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ackCb = cb
}

func (c *Client) OnStateChange(cb func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stateCb = cb
}

func (c *Client) RemoveChatCallback(chatID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.chatCbs, chatID)
	delete(c.typingCbs, chatID)
}

func (c *Client) RemoveStatusCallback(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.statusCbs, userID)
}

// State reports the current logical state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether sends would currently succeed.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}
