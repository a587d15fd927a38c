package protocol

import "strings"

// Event names sent by the client to the authority.
const (
	OutCreateLobby    = "create_lobby"
	OutJoinLobby      = "join_lobby"
	OutSubmitNumber   = "submit_number"
	OutPlayerReady    = "player_ready"
	OutHostStartRound = "host_start_round"
	OutFillWithBots   = "fill_with_bots"
	OutSendChat       = "send_chat_message"
	OutChatTyping     = "chat_typing"
)

// Event names pushed by the authority. "connected" is consumed by the
// transport itself (it carries the transport-assigned sid) and never
// reaches the engine.
const (
	InConnected         = "connected"
	InLobbyCreated      = "lobby_created"
	InJoinedLobby       = "joined_lobby"
	InLobbyUpdate       = "lobby_update"
	InGameStarted       = "game_started"
	InRoundResult       = "round_result"
	InPlayerEliminated  = "player_eliminated"
	InGameOver          = "game_over"
	InChatHistory       = "chat_history"
	InChatMessage       = "chat_message"
	InTypingState       = "typing_state"
	InError             = "error"
)

// MaxLobbyCodeLength caps normalized lobby codes.
const MaxLobbyCodeLength = 8

// Client -> Authority payloads.

type CreateLobbyPayload struct {
	PlayerName string `json:"player_name"`
	ClientID   string `json:"client_id"`
}

type JoinLobbyPayload struct {
	LobbyID    string `json:"lobby_id"`
	PlayerName string `json:"player_name"`
	ClientID   string `json:"client_id"`
}

type SubmitNumberPayload struct {
	LobbyID string `json:"lobby_id"`
	Number  int    `json:"number"`
}

type PlayerReadyPayload struct {
	LobbyID string `json:"lobby_id"`
	Reason  string `json:"reason"`
}

type HostStartRoundPayload struct {
	LobbyID string `json:"lobby_id"`
}

type FillWithBotsPayload struct {
	LobbyID string `json:"lobby_id"`
}

type SendChatPayload struct {
	LobbyID string `json:"lobby_id"`
	Message string `json:"message"`
}

type ChatTypingPayload struct {
	LobbyID string `json:"lobby_id"`
	Typing  bool   `json:"typing"`
}

// NormalizeLobbyCode strips non-alphanumeric runes, uppercases and caps the
// result. Codes are case-insensitive on the wire.
func NormalizeLobbyCode(value string) string {
	var b strings.Builder
	for _, r := range value {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - ('a' - 'A'))
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		}
		if b.Len() == MaxLobbyCodeLength {
			break
		}
	}
	return b.String()
}
