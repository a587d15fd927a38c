package engine

import (
	"strings"

	"balance-scale-client/internal/chat"
)

type Phase string

const (
	PhaseWaiting  Phase = "waiting"
	PhaseRunning  Phase = "running"
	PhaseFinished Phase = "finished"
)

type Tone string

const (
	ToneInfo     Tone = "info"
	TonePositive Tone = "positive"
	ToneNegative Tone = "negative"
)

// NameLimit caps display names.
const NameLimit = 24

// DefaultMinPlayers is assumed until the authority reports its threshold.
const DefaultMinPlayers = 5

// BaseRule is always active; eliminations unlock more.
const BaseRule = "Submit a whole number between 0 and 100. Closest to 0.8x the average wins."

func DefaultRules() []string { return []string{BaseRule} }

// Player is one roster entry keyed by name. Two entries with the same name
// denote the same player.
type Player struct {
	Name            string
	Score           int
	Eliminated      bool
	IsHost          bool
	IsBot           bool
	Ready           bool
	ChoiceSubmitted bool
}

type PendingKind string

const (
	PendingCreate PendingKind = "create"
	PendingJoin   PendingKind = "join"
)

// PendingAction buffers at most one user-initiated intent until the channel
// reports connected. A new request overwrites an unflushed one.
type PendingAction struct {
	Kind      PendingKind
	LobbyCode string
}

// Config fixes the per-session parameters the engine cannot learn from
// events.
type Config struct {
	ClientID string
	// InviteLockedCode pins the join target when the client was opened
	// through an invite link; create requests are refused while set.
	InviteLockedCode string
	// ChatEnabled composes the chat/presence overlay into the session.
	ChatEnabled bool
	// ChatHistoryLimit overrides the default buffer capacity when > 0.
	ChatHistoryLimit int
}

// State is the single local projection of lobby, round and player state.
// It is owned exclusively by the session loop; consumers only ever see
// clones.
type State struct {
	// identity & connectivity
	ClientID   string
	PlayerName string
	SocketID   string
	Connected  bool

	// lobby
	LobbyID          string
	PendingLobbyCode string
	InviteLocked     bool
	HasJoined        bool
	Phase            Phase
	HostID           string
	IsHost           bool
	MinPlayers       int
	PlayerCount      int
	AllPlayersReady  bool
	Rules            []string
	Players          []Player

	// round
	RoundNumber       int
	RoundActive       bool
	AwaitingChoices   bool
	AwaitingNextRound bool
	SelectedNumber    int
	HasSelection      bool
	// SubmittedRound is the round the local submit lock belongs to; zero
	// means no submission this game. The lock releases only when an event
	// reports a strictly greater round.
	SubmittedRound int

	// local flags
	Eliminated bool
	ReadySent  bool
	Pending    *PendingAction
	JoinLocked bool

	// render surfaces
	Status     string
	Result     string
	ResultTone Tone
	JoinHint   string
	GuessHint  string

	// last round breakdown
	HasBreakdown  bool
	LastAverage   float64
	LastTarget    float64
	LastChoices   map[string]int
	Disqualified  []string
	LatestWinners map[string]bool

	// optional capability; nil when the lobby runs the chat-less variant
	Chat   *chat.Overlay
	Typing chat.Signal
}

// NewState builds the initial projection from fixed configuration.
func NewState(cfg Config) State {
	s := State{
		ClientID:      cfg.ClientID,
		Phase:         PhaseWaiting,
		MinPlayers:    DefaultMinPlayers,
		Rules:         DefaultRules(),
		LatestWinners: map[string]bool{},
		Typing:        chat.NewSignal(0),
	}
	if cfg.InviteLockedCode != "" {
		s.InviteLocked = true
		s.PendingLobbyCode = cfg.InviteLockedCode
	}
	if cfg.ChatEnabled {
		s.Chat = chat.NewOverlay(cfg.ChatHistoryLimit)
	}
	return s
}

// HasSubmitted reports whether the round lock is held for the current
// round. Round identity, not just a boolean, gates re-arming.
func (s State) HasSubmitted() bool {
	return s.SubmittedRound > 0 && s.SubmittedRound >= s.RoundNumber
}

// CanSubmit gates guess submission: round accepting input, not yet
// submitted, not eliminated.
func (s State) CanSubmit() bool {
	return s.HasJoined &&
		s.Phase == PhaseRunning &&
		s.RoundActive &&
		s.AwaitingChoices &&
		!s.Eliminated &&
		!s.HasSubmitted()
}

// ChatAvailable reports whether the chat entry points are live.
func (s State) ChatAvailable() bool {
	return s.Chat != nil && s.HasJoined && s.Connected
}

// Clone deep-copies the state so render consumers can never mutate the
// engine's copy.
func (s State) Clone() State {
	c := s
	c.Rules = append([]string(nil), s.Rules...)
	c.Players = append([]Player(nil), s.Players...)
	c.Disqualified = append([]string(nil), s.Disqualified...)
	if s.LastChoices != nil {
		c.LastChoices = make(map[string]int, len(s.LastChoices))
		for k, v := range s.LastChoices {
			c.LastChoices[k] = v
		}
	}
	if s.LatestWinners != nil {
		c.LatestWinners = make(map[string]bool, len(s.LatestWinners))
		for k := range s.LatestWinners {
			c.LatestWinners[k] = true
		}
	}
	if s.Pending != nil {
		p := *s.Pending
		c.Pending = &p
	}
	c.Chat = s.Chat.Clone()
	return c
}

func (s State) findPlayer(name string) (Player, bool) {
	for _, p := range s.Players {
		if p.Name == name {
			return p, true
		}
	}
	return Player{}, false
}

// NormalizeName trims and caps a chosen display name.
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	if len(name) > NameLimit {
		name = name[:NameLimit]
	}
	return name
}
