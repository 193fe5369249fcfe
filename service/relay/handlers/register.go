package handlers

import (
	"PolyChat/service/relay"
)

// RegisterAll wires every event handler into the server's dispatcher.
func RegisterAll(s *relay.Server) {
	s.Disp().Register(NewAuthHandler())
	s.Disp().Register(NewJoinChatHandler())
	s.Disp().Register(NewLeaveChatHandler())
	s.Disp().Register(NewMessageHandler())
	s.Disp().Register(NewVoiceMessageHandler())
	s.Disp().Register(NewTypingHandler())
	s.Disp().Register(NewStatusHandler())
}
