package protocol

// Event names exchanged between the relay and its clients. The names are part
// of the wire contract and must not change without a protocol version bump.

// Client -> server.
const (
	EventAuthenticate     = "authenticate"
	EventJoinChat         = "join_chat"
	EventLeaveChat        = "leave_chat"
	EventSendMessage      = "send_message"
	EventSendVoiceMessage = "send_voice_message"
	EventTypingIndicator  = "typing_indicator"
	EventUpdateStatus     = "update_status"
)

// Server -> client.
const (
	EventNewMessage       = "new_message"
	EventMessageSent      = "message_sent"
	EventUserTyping       = "user_typing"
	EventUserStatusUpdate = "user_status_update"
	EventAuthFailed       = "auth_failed"
)

// Message payload kinds.
const (
	KindText  = "text"
	KindVoice = "voice"
)

// Presence states broadcast via EventUserStatusUpdate.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)
