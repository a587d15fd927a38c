package engine

import (
	"fmt"
	"strings"
	"time"

	"balance-scale-client/pkg/protocol"
)

// ApplyIntent folds one user action into the projection. Intents that fail
// their local preconditions are no-ops surfaced only through inline hints;
// nothing invalid ever crosses the wire.
func ApplyIntent(s State, in Intent, now time.Time) (State, []Effect) {
	switch in := in.(type) {
	case RequestCreate:
		return applyRequestCreate(s, in)
	case RequestJoin:
		return applyRequestJoin(s, in)
	case SubmitNumber:
		return applySubmitNumber(s, in)
	case StartRound:
		return applyStartRound(s)
	case FillBots:
		return applyFillBots(s)
	case SendChat:
		return applySendChat(s, in, now)
	case SetTyping:
		return applySetTyping(s, in, now)
	default:
		return s, nil
	}
}

// prepareIdentity validates the chosen display name and resets the local
// game-identity flags for a fresh join attempt.
func prepareIdentity(s State, name string) (State, bool) {
	chosen := NormalizeName(name)
	if chosen == "" {
		s.JoinHint = "Please choose a display name first."
		return s, false
	}
	s.PlayerName = chosen
	s.Eliminated = false
	s.RoundNumber = 0
	s.SubmittedRound = 0
	s.HasSelection = false
	s.JoinHint = ""
	return s, true
}

func applyRequestCreate(s State, in RequestCreate) (State, []Effect) {
	if s.InviteLocked {
		if s.PendingLobbyCode != "" {
			s.JoinHint = fmt.Sprintf("This invite lets you join lobby %s.", s.PendingLobbyCode)
		}
		return s, nil
	}

	var ok bool
	s, ok = prepareIdentity(s, in.Name)
	if !ok {
		return s, nil
	}

	s.Pending = &PendingAction{Kind: PendingCreate}
	s.JoinLocked = true
	s.JoinHint = "Creating a fresh lobby for you…"
	if !s.Connected {
		s.Status = "Connecting to server…"
		return s, nil
	}
	return flushPending(s, nil)
}

func applyRequestJoin(s State, in RequestJoin) (State, []Effect) {
	var ok bool
	s, ok = prepareIdentity(s, in.Name)
	if !ok {
		return s, nil
	}

	target := protocol.NormalizeLobbyCode(in.Code)
	if s.InviteLocked || target == "" {
		target = s.PendingLobbyCode
	}
	if target == "" {
		s.JoinHint = "Enter a lobby code shared by the host."
		return s, nil
	}

	s.PendingLobbyCode = target
	s.Pending = &PendingAction{Kind: PendingJoin, LobbyCode: target}
	s.JoinLocked = true
	s.JoinHint = fmt.Sprintf("Joining lobby %s…", target)
	if !s.Connected {
		s.Status = "Connecting to server…"
		return s, nil
	}
	return flushPending(s, nil)
}

func applySubmitNumber(s State, in SubmitNumber) (State, []Effect) {
	if in.Value < 0 || in.Value > 100 {
		s.GuessHint = "Pick a whole number between 0 and 100."
		return s, nil
	}
	if !s.CanSubmit() {
		// Includes the already-submitted case: a no-op, not an error.
		return s, nil
	}

	s.SelectedNumber = in.Value
	s.HasSelection = true
	s.SubmittedRound = s.RoundNumber
	s.GuessHint = ""
	s.Status = "Waiting for other players to submit…"
	s.Result = "Guess locked in. Waiting for the round to resolve…"
	s.ResultTone = ToneInfo

	return s, []Effect{Emit{
		Event:   protocol.OutSubmitNumber,
		Payload: protocol.SubmitNumberPayload{LobbyID: s.LobbyID, Number: in.Value},
	}}
}

func applyStartRound(s State) (State, []Effect) {
	if !s.Connected || !s.IsHost || !s.AllPlayersReady {
		return s, nil
	}
	s.AwaitingNextRound = false
	return s, []Effect{Emit{
		Event:   protocol.OutHostStartRound,
		Payload: protocol.HostStartRoundPayload{LobbyID: s.LobbyID},
	}}
}

func applyFillBots(s State) (State, []Effect) {
	if !s.Connected || !s.IsHost || s.RoundActive {
		return s, nil
	}
	return s, []Effect{Emit{
		Event:   protocol.OutFillWithBots,
		Payload: protocol.FillWithBotsPayload{LobbyID: s.LobbyID},
	}}
}

func applySendChat(s State, in SendChat, now time.Time) (State, []Effect) {
	if !s.ChatAvailable() {
		return s, nil
	}
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return s, nil
	}

	effects := []Effect{Emit{
		Event:   protocol.OutSendChat,
		Payload: protocol.SendChatPayload{LobbyID: s.LobbyID, Message: text},
	}}
	if s.Typing.ShouldSend(false, now) {
		effects = append(effects, typingEmit(s, false))
	}
	return s, effects
}

func applySetTyping(s State, in SetTyping, now time.Time) (State, []Effect) {
	if !s.ChatAvailable() {
		s.Typing.Active = in.Active && s.Typing.Active
		return s, nil
	}
	if !s.Typing.ShouldSend(in.Active, now) {
		return s, nil
	}
	return s, []Effect{typingEmit(s, in.Active)}
}

func typingEmit(s State, active bool) Effect {
	return Emit{
		Event:   protocol.OutChatTyping,
		Payload: protocol.ChatTypingPayload{LobbyID: s.LobbyID, Typing: active},
	}
}
