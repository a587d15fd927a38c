package protocol

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

var ErrUnknownEvent = errors.New("unknown event")

// ServerEvent is the closed set of authority-pushed events the engine
// reconciles against. Adding a case here forces every dispatch switch to
// handle it.
type ServerEvent interface{ isServerEvent() }

func (LobbyCreated) isServerEvent()     {}
func (JoinedLobby) isServerEvent()      {}
func (LobbyUpdate) isServerEvent()      {}
func (GameStarted) isServerEvent()      {}
func (RoundResult) isServerEvent()      {}
func (PlayerEliminated) isServerEvent() {}
func (GameOver) isServerEvent()         {}
func (ChatHistory) isServerEvent()      {}
func (ChatMessage) isServerEvent()      {}
func (TypingState) isServerEvent()      {}
func (ServerError) isServerEvent()      {}

type LobbyCreated struct {
	LobbyID string
}

type JoinedLobby struct {
	LobbyID string
}

// PlayerSnapshot is one roster entry as the authority reports it.
type PlayerSnapshot struct {
	Name            string
	Score           int
	Eliminated      bool
	IsHost          bool
	IsBot           bool
	Ready           bool
	ChoiceSubmitted bool
}

// LobbyUpdate mirrors the authority's roster broadcast. Every field except
// the lobby id may be absent; pointer fields distinguish "absent" from
// zero. RosterPartial is set when the roster arrived as a bare name->score
// map, in which case host/eliminated flags are not trustworthy.
type LobbyUpdate struct {
	LobbyID           string
	HasRoster         bool
	RosterPartial     bool
	Players           []PlayerSnapshot
	HostID            *string
	State             *string
	Round             *int
	AwaitingNextRound *bool
	AwaitingChoices   *bool
	PlayerCount       *int
	MinPlayers        *int
	AllPlayersReady   *bool
	ActiveRules       []string
}

type GameStarted struct {
	LobbyID         string
	Round           int
	AwaitingChoices bool
	HasRoster       bool
	Players         []PlayerSnapshot
	ActiveRules     []string
}

type RoundResult struct {
	LobbyID           string
	Round             *int
	Average           *float64
	Target            *float64
	Winners           []string
	Choices           map[string]int
	ScoresBefore      map[string]int
	ScoresAfter       map[string]int
	Disqualified      []string
	RuleMessages      []string
	HasRoster         bool
	Players           []PlayerSnapshot
	ActiveRules       []string
	AwaitingNextRound bool
}

type PlayerEliminated struct {
	Name        string
	Score       *int
	ActiveRules []string
	NewRules    []string
}

type GameOver struct {
	Winner string
	Score  *int
}

// ChatEntry is a single chat message. Text is trimmed but otherwise raw;
// the chat overlay decides what to drop.
type ChatEntry struct {
	ID        string
	Name      string
	PlayerID  string
	Text      string
	Timestamp int64
}

type ChatHistory struct {
	LobbyID string
	Entries []ChatEntry
}

type ChatMessage struct {
	LobbyID string
	Entry   ChatEntry
}

type TypingState struct {
	LobbyID string
	Players []string
}

type ServerError struct {
	Message string
}

// Decode turns a named wire event with a JSON payload into one member of
// the ServerEvent union. Payload shapes vary between authority versions
// (rosters as arrays or maps, numbers as ints or floats), so fields are
// probed individually rather than unmarshalled into rigid structs.
func Decode(name string, data []byte) (ServerEvent, error) {
	switch name {
	case InLobbyCreated:
		return LobbyCreated{LobbyID: lobbyID(data)}, nil
	case InJoinedLobby:
		return JoinedLobby{LobbyID: lobbyID(data)}, nil
	case InLobbyUpdate:
		return decodeLobbyUpdate(data), nil
	case InGameStarted:
		return decodeGameStarted(data), nil
	case InRoundResult:
		return decodeRoundResult(data), nil
	case InPlayerEliminated:
		return decodePlayerEliminated(data), nil
	case InGameOver:
		return decodeGameOver(data), nil
	case InChatHistory:
		return decodeChatHistory(data), nil
	case InChatMessage:
		return ChatMessage{LobbyID: lobbyID(data), Entry: chatEntry(gjson.ParseBytes(data))}, nil
	case InTypingState:
		return decodeTypingState(data), nil
	case InError:
		msg := gjson.GetBytes(data, "message").String()
		if msg == "" {
			msg = gjson.GetBytes(data, "error").String()
		}
		if msg == "" {
			msg = "Server reported an error."
		}
		return ServerError{Message: msg}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}
}

func lobbyID(data []byte) string {
	id := gjson.GetBytes(data, "lobby_id")
	if !id.Exists() {
		id = gjson.GetBytes(data, "lobbyId")
	}
	return NormalizeLobbyCode(id.String())
}

func optString(data []byte, path string) *string {
	if r := gjson.GetBytes(data, path); r.Exists() {
		s := r.String()
		return &s
	}
	return nil
}

func optInt(data []byte, path string) *int {
	if r := gjson.GetBytes(data, path); r.Exists() && r.Type == gjson.Number {
		n := int(r.Int())
		return &n
	}
	return nil
}

func optFloat(data []byte, path string) *float64 {
	if r := gjson.GetBytes(data, path); r.Exists() && r.Type == gjson.Number {
		f := r.Float()
		return &f
	}
	return nil
}

func optBool(data []byte, path string) *bool {
	if r := gjson.GetBytes(data, path); r.IsBool() {
		b := r.Bool()
		return &b
	}
	return nil
}

func stringList(r gjson.Result) []string {
	if !r.IsArray() {
		return nil
	}
	var out []string
	r.ForEach(func(_, v gjson.Result) bool {
		if s := v.String(); s != "" {
			out = append(out, s)
		}
		return true
	})
	return out
}

// roster accepts either a list of player objects or a bare name->score map
// (partial snapshot).
func roster(r gjson.Result) (players []PlayerSnapshot, partial, ok bool) {
	switch {
	case r.IsArray():
		r.ForEach(func(_, v gjson.Result) bool {
			name := v.Get("name").String()
			if name == "" {
				name = v.Get("id").String()
			}
			if name == "" {
				return true
			}
			players = append(players, PlayerSnapshot{
				Name:            name,
				Score:           int(v.Get("score").Int()),
				Eliminated:      v.Get("eliminated").Bool(),
				IsHost:          v.Get("is_host").Bool() || v.Get("isHost").Bool(),
				IsBot:           v.Get("is_bot").Bool() || v.Get("isBot").Bool(),
				Ready:           v.Get("ready").Bool() || v.Get("is_ready").Bool(),
				ChoiceSubmitted: v.Get("choice_submitted").Bool() || v.Get("choiceSubmitted").Bool(),
			})
			return true
		})
		return players, false, true
	case r.IsObject():
		r.ForEach(func(k, v gjson.Result) bool {
			players = append(players, PlayerSnapshot{Name: k.String(), Score: int(v.Int())})
			return true
		})
		return players, true, true
	default:
		return nil, false, false
	}
}

func decodeLobbyUpdate(data []byte) LobbyUpdate {
	ev := LobbyUpdate{
		LobbyID:           lobbyID(data),
		HostID:            optString(data, "host_id"),
		State:             optString(data, "state"),
		Round:             optInt(data, "round"),
		AwaitingNextRound: optBool(data, "awaiting_next_round"),
		AwaitingChoices:   optBool(data, "awaiting_choices"),
		PlayerCount:       optInt(data, "player_count"),
		MinPlayers:        optInt(data, "min_players"),
		AllPlayersReady:   optBool(data, "all_players_ready"),
		ActiveRules:       stringList(gjson.GetBytes(data, "active_rules")),
	}
	ev.Players, ev.RosterPartial, ev.HasRoster = roster(gjson.GetBytes(data, "players"))
	return ev
}

func decodeGameStarted(data []byte) GameStarted {
	ev := GameStarted{
		LobbyID:         lobbyID(data),
		Round:           int(gjson.GetBytes(data, "round").Int()),
		AwaitingChoices: true,
		ActiveRules:     stringList(gjson.GetBytes(data, "active_rules")),
	}
	if b := optBool(data, "awaiting_choices"); b != nil {
		ev.AwaitingChoices = *b
	}
	ev.Players, _, ev.HasRoster = roster(gjson.GetBytes(data, "players"))
	return ev
}

func scoreMap(r gjson.Result) map[string]int {
	if !r.IsObject() {
		return nil
	}
	out := make(map[string]int)
	r.ForEach(func(k, v gjson.Result) bool {
		if v.Type == gjson.Number {
			out[k.String()] = int(v.Int())
		}
		return true
	})
	if len(out) == 0 {
		return nil
	}
	return out
}

// choiceMap accepts {"Ann": 42} or [{"name":"Ann","choice":42}].
func choiceMap(r gjson.Result) map[string]int {
	if r.IsObject() {
		return scoreMap(r)
	}
	if !r.IsArray() {
		return nil
	}
	out := make(map[string]int)
	r.ForEach(func(_, v gjson.Result) bool {
		name := v.Get("name").String()
		if name == "" {
			return true
		}
		val := v.Get("choice")
		if !val.Exists() {
			val = v.Get("value")
		}
		if val.Type == gjson.Number {
			out[name] = int(val.Int())
		}
		return true
	})
	if len(out) == 0 {
		return nil
	}
	return out
}

func decodeRoundResult(data []byte) RoundResult {
	ev := RoundResult{
		LobbyID:      lobbyID(data),
		Round:        optInt(data, "round"),
		Average:      optFloat(data, "average"),
		Target:       optFloat(data, "target"),
		Winners:      stringList(gjson.GetBytes(data, "winners")),
		Choices:      choiceMap(gjson.GetBytes(data, "choices")),
		ScoresBefore: scoreMap(gjson.GetBytes(data, "scores_before")),
		ScoresAfter:  scoreMap(gjson.GetBytes(data, "scores_after")),
		Disqualified: stringList(gjson.GetBytes(data, "disqualified")),
		RuleMessages: stringList(gjson.GetBytes(data, "rule_messages")),
		ActiveRules:  stringList(gjson.GetBytes(data, "active_rules")),
	}
	if b := optBool(data, "awaiting_next_round"); b != nil {
		ev.AwaitingNextRound = *b
	}
	rosterField := gjson.GetBytes(data, "players_after")
	if !rosterField.Exists() {
		rosterField = gjson.GetBytes(data, "players")
	}
	ev.Players, _, ev.HasRoster = roster(rosterField)
	return ev
}

func decodePlayerEliminated(data []byte) PlayerEliminated {
	name := gjson.GetBytes(data, "name").String()
	if name == "" {
		name = gjson.GetBytes(data, "player").String()
	}
	ev := PlayerEliminated{
		Name:        name,
		Score:       optInt(data, "score"),
		ActiveRules: stringList(gjson.GetBytes(data, "active_rules")),
		NewRules:    stringList(gjson.GetBytes(data, "new_rules")),
	}
	if len(ev.NewRules) == 0 {
		if r := gjson.GetBytes(data, "new_rule"); r.Exists() && r.String() != "" {
			ev.NewRules = []string{r.String()}
		}
	}
	return ev
}

func decodeGameOver(data []byte) GameOver {
	winner := gjson.GetBytes(data, "winner").String()
	if winner == "" {
		if names := stringList(gjson.GetBytes(data, "winners")); len(names) > 0 {
			winner = strings.Join(names, ", ")
		}
	}
	return GameOver{Winner: winner, Score: optInt(data, "score")}
}

func chatEntry(v gjson.Result) ChatEntry {
	playerID := v.Get("player_id").String()
	if playerID == "" {
		playerID = v.Get("playerId").String()
	}
	return ChatEntry{
		ID:        v.Get("id").String(),
		Name:      strings.TrimSpace(v.Get("name").String()),
		PlayerID:  playerID,
		Text:      strings.TrimSpace(v.Get("message").String()),
		Timestamp: v.Get("timestamp").Int(),
	}
}

func decodeChatHistory(data []byte) ChatHistory {
	ev := ChatHistory{LobbyID: lobbyID(data)}
	gjson.GetBytes(data, "messages").ForEach(func(_, v gjson.Result) bool {
		ev.Entries = append(ev.Entries, chatEntry(v))
		return true
	})
	return ev
}

func decodeTypingState(data []byte) TypingState {
	return TypingState{
		LobbyID: lobbyID(data),
		Players: stringList(gjson.GetBytes(data, "players")),
	}
}
