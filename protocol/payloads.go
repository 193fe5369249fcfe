package protocol

// Payload shapes for both directions. Field names follow the original
// browser client, so all JSON keys are camelCase. Timestamps are unix
// milliseconds.

// AuthPayload carries the identity handshake. The relay does not verify the
// token itself; that is delegated to the configured verifier.
type AuthPayload struct {
	UserID string `json:"userId"`
	Token  string `json:"token"`
}

type JoinChatPayload struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId,omitempty"`
}

type LeaveChatPayload struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId,omitempty"`
}

type SendMessagePayload struct {
	ChatID      string `json:"chatId"`
	RecipientID string `json:"recipientId,omitempty"`
	SenderID    string `json:"senderId"`
	Text        string `json:"text"`
	Translation string `json:"translation,omitempty"`
	Timestamp   int64  `json:"timestamp,omitempty"`
}

type SendVoiceMessagePayload struct {
	ChatID      string  `json:"chatId"`
	RecipientID string  `json:"recipientId,omitempty"`
	SenderID    string  `json:"senderId"`
	AudioData   string  `json:"audioData"` // base64, no data-url prefix
	Duration    float64 `json:"duration"`
	Translation string  `json:"translation,omitempty"`
	Timestamp   int64   `json:"timestamp,omitempty"`
}

type TypingIndicatorPayload struct {
	ChatID      string `json:"chatId"`
	RecipientID string `json:"recipientId,omitempty"`
	IsTyping    bool   `json:"isTyping"`
}

type UpdateStatusPayload struct {
	Status string `json:"status"`
	UserID string `json:"userId,omitempty"`
}

// MessageEnvelope is fanned out as EventNewMessage. The relay assigns ID and
// Timestamp at receipt time; the envelope is never stored after fan-out.
type MessageEnvelope struct {
	ID          string  `json:"id"`
	ChatID      string  `json:"chatId"`
	SenderID    string  `json:"senderId"`
	RecipientID string  `json:"recipientId,omitempty"`
	Kind        string  `json:"type"` // KindText or KindVoice
	Text        string  `json:"text,omitempty"`
	AudioData   string  `json:"audioData,omitempty"`
	Duration    float64 `json:"duration,omitempty"`
	Translation string  `json:"translation,omitempty"`
	Timestamp   int64   `json:"timestamp"`
}

// MessageSentAck confirms receipt to the sender only.
type MessageSentAck struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId"`
	Timestamp int64  `json:"timestamp"`
}

type UserTypingEvent struct {
	ChatID    string `json:"chatId"`
	SenderID  string `json:"senderId"`
	IsTyping  bool   `json:"isTyping"`
	Timestamp int64  `json:"timestamp"`
}

type UserStatusEvent struct {
	UserID    string `json:"userId"`
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

type AuthFailedEvent struct {
	Reason string `json:"reason"`
}
