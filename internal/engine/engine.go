package engine

import (
	"fmt"
	"time"

	"balance-scale-client/pkg/protocol"
)

// Apply folds one authority-pushed event into the projection. Events are
// validated against current local identifiers before being applied;
// duplicates and stale deliveries degrade to no-ops. The returned effects
// are outbound emissions and render notices, in order.
func Apply(s State, ev protocol.ServerEvent, now time.Time) (State, []Effect) {
	switch ev := ev.(type) {
	case protocol.LobbyCreated:
		return applyJoinSuccess(s, ev.LobbyID, true)
	case protocol.JoinedLobby:
		return applyJoinSuccess(s, ev.LobbyID, false)
	case protocol.LobbyUpdate:
		return applyLobbyUpdate(s, ev)
	case protocol.GameStarted:
		return applyGameStarted(s, ev)
	case protocol.RoundResult:
		return applyRoundResult(s, ev)
	case protocol.PlayerEliminated:
		return applyPlayerEliminated(s, ev)
	case protocol.GameOver:
		return applyGameOver(s, ev)
	case protocol.ChatHistory:
		return applyChatHistory(s, ev, now)
	case protocol.ChatMessage:
		return applyChatMessage(s, ev, now)
	case protocol.TypingState:
		return applyTypingState(s, ev)
	case protocol.ServerError:
		return applyServerError(s, ev)
	default:
		// Closed union; unreachable unless protocol grows a case.
		return s, nil
	}
}

// foreignLobby reports whether an event is addressed to a lobby other than
// the one we're in. Events sent before a disconnect can arrive after
// rejoining a different lobby.
func foreignLobby(s State, lobbyID string) bool {
	return lobbyID != "" && s.LobbyID != "" && lobbyID != s.LobbyID
}

func applyJoinSuccess(s State, lobbyID string, created bool) (State, []Effect) {
	if lobbyID == "" {
		s.JoinLocked = false
		return s, nil
	}

	s.LobbyID = lobbyID
	s.PendingLobbyCode = lobbyID
	s.Pending = nil
	s.JoinLocked = false
	s.HasJoined = true
	s.Phase = PhaseWaiting
	s.RoundNumber = 0
	s.SubmittedRound = 0
	s.HasSelection = false
	s.RoundActive = false
	s.AwaitingChoices = false
	s.AwaitingNextRound = false
	s.HasBreakdown = false
	s.LastChoices = nil
	s.Disqualified = nil
	s.LatestWinners = map[string]bool{}
	s.GuessHint = ""
	s.JoinHint = ""

	if created {
		s.Status = fmt.Sprintf("Lobby %s created. Share the code or invite link with your friends.", lobbyID)
	} else {
		s.Status = fmt.Sprintf("Joined lobby %q. Waiting for other players…", lobbyID)
	}
	s.Result = "Waiting for the first round…"
	s.ResultTone = ToneInfo

	if s.Chat != nil {
		s.Chat.Reset()
	}
	s.Typing.Reset()

	s.ReadySent = false
	var effects []Effect
	s, effects = emitReady(s, "post-join", effects)
	return s, effects
}

// emitReady fires the one-shot readiness signal if it is armed. Eliminated
// players never emit readiness.
func emitReady(s State, reason string, effects []Effect) (State, []Effect) {
	if !s.HasJoined || s.LobbyID == "" || s.PlayerName == "" || s.Eliminated || s.ReadySent {
		return s, effects
	}
	s.ReadySent = true
	effects = append(effects, Emit{
		Event:   protocol.OutPlayerReady,
		Payload: protocol.PlayerReadyPayload{LobbyID: s.LobbyID, Reason: reason},
	})
	return s, effects
}

func applyRules(s State, rules []string) State {
	if len(rules) > 0 {
		s.Rules = append([]string(nil), rules...)
	} else if len(s.Rules) == 0 {
		s.Rules = DefaultRules()
	}
	return s
}

// advanceRound is monotonic while a game is in progress; a delayed or
// duplicate snapshot can never move the round counter backwards.
func advanceRound(s State, round int) State {
	if round > s.RoundNumber {
		s.RoundNumber = round
	}
	return s
}

func syncSelfElimination(s State) State {
	if s.PlayerName == "" {
		return s
	}
	if self, ok := s.findPlayer(s.PlayerName); ok {
		s.Eliminated = s.Eliminated || self.Eliminated
	}
	return s
}

func applyLobbyUpdate(s State, ev protocol.LobbyUpdate) (State, []Effect) {
	if foreignLobby(s, ev.LobbyID) {
		return s, nil
	}

	// Host-control reset: the authority re-broadcasts a waiting snapshot
	// after game over with scores and eliminations wiped. This is the one
	// path that replaces the roster instead of merging it.
	reset := s.Phase == PhaseFinished && ev.State != nil && *ev.State == string(PhaseWaiting)
	if reset {
		s = resetForNewGame(s)
		if ev.HasRoster && !ev.RosterPartial {
			s.Players = replaceRoster(ev.Players)
		}
	} else if ev.HasRoster {
		s.Players = MergeRoster(s.Players, ev.Players, ev.RosterPartial)
	}
	s.PlayerCount = len(s.Players)
	if ev.PlayerCount != nil {
		s.PlayerCount = *ev.PlayerCount
	}
	if reset {
		if self, ok := s.findPlayer(s.PlayerName); ok {
			s.Eliminated = self.Eliminated
		}
	} else {
		s = syncSelfElimination(s)
	}

	if ev.MinPlayers != nil {
		s.MinPlayers = *ev.MinPlayers
	}
	if ev.State != nil {
		s.Phase = Phase(*ev.State)
	}
	if ev.AwaitingNextRound != nil {
		s.AwaitingNextRound = *ev.AwaitingNextRound
	}
	if ev.AwaitingChoices != nil {
		s.AwaitingChoices = *ev.AwaitingChoices
	}
	if ev.AllPlayersReady != nil {
		s.AllPlayersReady = *ev.AllPlayersReady
	}
	if ev.Round != nil {
		s = advanceRound(s, *ev.Round)
		if *ev.Round == 0 && s.Phase == PhaseWaiting && !s.RoundActive {
			s.RoundNumber = 0
			s.SubmittedRound = 0
			s.HasSelection = false
		}
	}
	if ev.State != nil && ev.AwaitingChoices != nil {
		s.RoundActive = s.Phase == PhaseRunning && *ev.AwaitingChoices
	}
	if ev.HostID != nil {
		s.HostID = *ev.HostID
	}
	// Recomputed every snapshot: the transport-assigned id changes on each
	// connect, so host identity can flip after a reconnect.
	s.IsHost = s.HostID != "" && s.Connected && s.HostID == s.SocketID

	s = applyRules(s, ev.ActiveRules)

	if s.PlayerName != "" {
		switch {
		case s.Phase == PhaseWaiting:
			if remaining := s.MinPlayers - s.PlayerCount; remaining > 0 {
				s.Status = fmt.Sprintf("Waiting for players… (%d/%d)", s.PlayerCount, s.MinPlayers)
			} else if s.IsHost {
				s.Status = "You can start the first round whenever you're ready."
			} else {
				s.Status = "Waiting for the host to start the first round."
			}
		case s.Phase == PhaseRunning && s.AwaitingChoices && !s.HasSubmitted() && !s.Eliminated:
			s.Status = "Round in progress. Make your guess!"
		}
	}

	var effects []Effect
	if s.HasJoined && s.Phase == PhaseWaiting && !s.RoundActive && !s.AwaitingChoices {
		s, effects = emitReady(s, "waiting-state", effects)
	}
	return s, effects
}

func resetForNewGame(s State) State {
	s.Phase = PhaseWaiting
	s.RoundNumber = 0
	s.SubmittedRound = 0
	s.HasSelection = false
	s.RoundActive = false
	s.AwaitingChoices = false
	s.AwaitingNextRound = false
	s.Eliminated = false
	s.ReadySent = false
	s.HasBreakdown = false
	s.LastChoices = nil
	s.Disqualified = nil
	s.LatestWinners = map[string]bool{}
	return s
}

func applyGameStarted(s State, ev protocol.GameStarted) (State, []Effect) {
	if foreignLobby(s, ev.LobbyID) || s.Phase == PhaseFinished {
		return s, nil
	}

	s.Phase = PhaseRunning
	s.RoundActive = true
	s.AwaitingNextRound = false
	s.AwaitingChoices = ev.AwaitingChoices
	s.ReadySent = false
	s.LatestWinners = map[string]bool{}
	s = advanceRound(s, ev.Round)

	// The round lock releases only on a strictly greater round number. A
	// duplicate game_started for an already-submitted round keeps input
	// disabled.
	if s.SubmittedRound < s.RoundNumber {
		s.HasSelection = false
		s.GuessHint = ""
	}

	s.HasBreakdown = false
	s.LastChoices = nil
	s.Disqualified = nil

	if ev.HasRoster {
		s.Players = MergeRoster(s.Players, ev.Players, false)
		s.PlayerCount = len(s.Players)
		s = syncSelfElimination(s)
	}
	s = applyRules(s, ev.ActiveRules)

	s.Status = fmt.Sprintf("Round %d has started! Submit your guess.", s.RoundNumber)
	s.Result = "Round in progress. Make your guess!"
	s.ResultTone = ToneInfo
	return s, nil
}

func applyRoundResult(s State, ev protocol.RoundResult) (State, []Effect) {
	if foreignLobby(s, ev.LobbyID) || s.Phase == PhaseFinished {
		return s, nil
	}

	s.RoundActive = false
	s.AwaitingNextRound = ev.AwaitingNextRound
	s.AwaitingChoices = false
	if ev.Round != nil {
		s = advanceRound(s, *ev.Round)
	}

	switch {
	case ev.HasRoster:
		s.Players = MergeRoster(s.Players, ev.Players, false)
		s.PlayerCount = len(s.Players)
	case ev.ScoresAfter != nil:
		// Score-only fallback: a partial snapshot that must not wipe
		// host/eliminated flags.
		partial := make([]protocol.PlayerSnapshot, 0, len(ev.ScoresAfter))
		for name, score := range ev.ScoresAfter {
			partial = append(partial, protocol.PlayerSnapshot{Name: name, Score: score})
		}
		s.Players = MergeRoster(s.Players, partial, true)
	}
	s = syncSelfElimination(s)
	s = applyRules(s, ev.ActiveRules)

	s.HasBreakdown = ev.Average != nil || ev.Target != nil || len(ev.Choices) > 0
	if ev.Average != nil {
		s.LastAverage = *ev.Average
	}
	if ev.Target != nil {
		s.LastTarget = *ev.Target
	}
	s.LastChoices = ev.Choices
	s.Disqualified = append([]string(nil), ev.Disqualified...)
	s.LatestWinners = map[string]bool{}
	for _, name := range ev.Winners {
		s.LatestWinners[name] = true
	}

	message, tone := "Round finished.", ToneInfo
	if ev.ScoresBefore != nil && ev.ScoresAfter != nil {
		before, okB := ev.ScoresBefore[s.PlayerName]
		after, okA := ev.ScoresAfter[s.PlayerName]
		if okB && okA {
			message, tone = DescribeScoreChange(before, after)
		}
	}
	for _, name := range ev.Disqualified {
		if name == s.PlayerName {
			message = "Duplicate choice detected. You were disqualified this round."
			tone = ToneNegative
		}
	}
	s.Result = message
	s.ResultTone = tone

	switch {
	case s.AwaitingNextRound && s.IsHost:
		s.Status = "Round complete. Start the next round when you're ready."
	case s.AwaitingNextRound:
		s.Status = "Round complete. Waiting for the host to start the next round…"
	default:
		s.Status = "Round complete."
	}

	var effects []Effect
	if s.AwaitingNextRound && !s.Eliminated {
		s.ReadySent = false
		s, effects = emitReady(s, fmt.Sprintf("after-round-%d", s.RoundNumber), effects)
	}
	return s, effects
}

func applyPlayerEliminated(s State, ev protocol.PlayerEliminated) (State, []Effect) {
	if ev.Name == "" {
		return s, nil
	}

	s = applyRules(s, ev.ActiveRules)
	for i := range s.Players {
		if s.Players[i].Name == ev.Name {
			s.Players[i].Eliminated = true
		}
	}

	ruleNotice := joinRules(ev.NewRules)

	if ev.Name == s.PlayerName {
		s.Eliminated = true
		if ruleNotice != "" {
			s.Result = ruleNotice + " You have been eliminated from the game."
			s.Status = "You are out of the game. A new rule has been added for the remaining players."
		} else {
			s.Result = "You have been eliminated from the game."
			s.Status = "You are out of the game. Watch how it ends!"
		}
		s.ResultTone = ToneNegative
	} else {
		s.Status = fmt.Sprintf("%s has been eliminated.", ev.Name)
	}

	var effects []Effect
	if ruleNotice != "" {
		effects = append(effects, Notice{Title: "New Rule", Text: ruleNotice})
	}
	return s, effects
}

func joinRules(rules []string) string {
	out := ""
	for _, r := range rules {
		if r == "" {
			continue
		}
		if out != "" {
			out += "; "
		}
		out += r
	}
	return out
}

func applyGameOver(s State, ev protocol.GameOver) (State, []Effect) {
	s.Phase = PhaseFinished
	s.RoundActive = false
	s.AwaitingChoices = false
	s.AwaitingNextRound = false
	s.ReadySent = false

	var effects []Effect
	if ev.Winner != "" {
		effects = append(effects, Notice{Title: "Game winner", Text: fmt.Sprintf("%s won the game.", ev.Winner)})
		s.Result = "Game over."
	} else {
		s.Result = "Game over! Thanks for playing."
	}
	s.ResultTone = TonePositive
	s.Status = "Game over. Waiting for the host to start a new game."
	return s, effects
}

func applyChatHistory(s State, ev protocol.ChatHistory, now time.Time) (State, []Effect) {
	if s.Chat == nil || s.LobbyID == "" || foreignLobby(s, ev.LobbyID) {
		return s, nil
	}
	s.Chat.ReplaceHistory(ev.Entries, now)
	s.Chat.ClearTyping()
	return s, nil
}

func applyChatMessage(s State, ev protocol.ChatMessage, now time.Time) (State, []Effect) {
	if s.Chat == nil || foreignLobby(s, ev.LobbyID) {
		return s, nil
	}
	s.Chat.Append(ev.Entry, now)
	return s, nil
}

func applyTypingState(s State, ev protocol.TypingState) (State, []Effect) {
	if s.Chat == nil || foreignLobby(s, ev.LobbyID) {
		return s, nil
	}
	s.Chat.SetTyping(ev.Players, s.PlayerName)
	return s, nil
}

func applyServerError(s State, ev protocol.ServerError) (State, []Effect) {
	s.Result = ev.Message
	s.ResultTone = ToneNegative
	s.Status = ev.Message
	if !s.HasJoined {
		s.JoinHint = ev.Message
		s.Pending = nil
		s.JoinLocked = false
	}
	return s, nil
}

// ApplyConnected records the new transport identity and flushes the single
// pending action, or re-joins the current lobby after a reconnect.
func ApplyConnected(s State, socketID string) (State, []Effect) {
	s.Connected = true
	s.SocketID = socketID
	s.Typing.Reset()
	// Host identity must be recomputed against the fresh transport id.
	s.IsHost = s.HostID != "" && s.HostID == s.SocketID

	var effects []Effect
	switch {
	case s.Pending != nil:
		s, effects = flushPending(s, effects)
	case s.HasJoined && s.PlayerName != "" && s.LobbyID != "" && !s.Eliminated:
		effects = append(effects, joinEmit(s, s.LobbyID))
		s.Status = "Connected! Waiting for the next round…"
	default:
		s.Status = "Connected! Choose a name to join."
	}
	return s, effects
}

func flushPending(s State, effects []Effect) (State, []Effect) {
	switch s.Pending.Kind {
	case PendingCreate:
		effects = append(effects, Emit{
			Event:   protocol.OutCreateLobby,
			Payload: protocol.CreateLobbyPayload{PlayerName: s.PlayerName, ClientID: s.ClientID},
		})
	case PendingJoin:
		if s.Pending.LobbyCode != "" {
			effects = append(effects, joinEmit(s, s.Pending.LobbyCode))
		}
	}
	return s, effects
}

func joinEmit(s State, code string) Effect {
	return Emit{
		Event: protocol.OutJoinLobby,
		Payload: protocol.JoinLobbyPayload{
			LobbyID:    code,
			PlayerName: s.PlayerName,
			ClientID:   s.ClientID,
		},
	}
}

// ApplyDisconnected clears everything tied to connectivity but preserves
// game-identity state for resumption.
func ApplyDisconnected(s State, reason string) (State, []Effect) {
	s.Connected = false
	s.SocketID = ""
	s.IsHost = false
	s.ReadySent = false
	s.Typing.Reset()
	if s.Chat != nil {
		s.Chat.ClearTyping()
	}
	if reason == "" {
		reason = "unknown reason"
	}
	s.Status = fmt.Sprintf("Disconnected (%s). Trying to reconnect…", reason)
	return s, nil
}

// ApplyConnectFailed surfaces a failed dial; the transport owns the retry
// loop.
func ApplyConnectFailed(s State, err error) (State, []Effect) {
	_ = err
	s.Status = "Unable to reach the game server. Retrying…"
	return s, nil
}
