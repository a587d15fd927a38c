package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"balance-scale-client/pkg/protocol"
)

var t0 = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// emitsOf filters the outbound emissions with the given event name.
func emitsOf(effects []Effect, event string) []Emit {
	var out []Emit
	for _, eff := range effects {
		if e, ok := eff.(Emit); ok && e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func noticesOf(effects []Effect) []Notice {
	var out []Notice
	for _, eff := range effects {
		if n, ok := eff.(Notice); ok {
			out = append(out, n)
		}
	}
	return out
}

func strptr(s string) *string { return &s }
func intptr(n int) *int       { return &n }
func boolptr(b bool) *bool    { return &b }

// joinedState walks a fresh session through connect + join so tests can
// start from a member of lobby AB12.
func joinedState(t *testing.T) State {
	t.Helper()
	s := NewState(Config{ClientID: "cid-1"})

	s, effects := ApplyIntent(s, RequestJoin{Name: "Ann", Code: "ab-12!x"}, t0)
	require.Nil(t, effects, "offline join must not emit")
	require.Equal(t, "Connecting to server…", s.Status)
	require.NotNil(t, s.Pending)

	s, effects = ApplyConnected(s, "sid-1")
	joins := emitsOf(effects, protocol.OutJoinLobby)
	require.Len(t, joins, 1, "pending join flushes on connect")
	require.Equal(t, protocol.JoinLobbyPayload{LobbyID: "AB12X", PlayerName: "Ann", ClientID: "cid-1"}, joins[0].Payload)

	s, effects = Apply(s, protocol.JoinedLobby{LobbyID: "AB12X"}, t0)
	require.True(t, s.HasJoined)
	require.Equal(t, PhaseWaiting, s.Phase)
	require.Equal(t, 0, s.RoundNumber)
	require.False(t, s.HasSubmitted())
	require.Len(t, emitsOf(effects, protocol.OutPlayerReady), 1, "readiness fires once after join")
	require.True(t, s.ReadySent)
	return s
}

func TestJoinFlow_PendingFlushAndReadiness(t *testing.T) {
	joinedState(t)
}

func TestCreateFlow_Offline(t *testing.T) {
	s := NewState(Config{ClientID: "cid-9"})

	s, effects := ApplyIntent(s, RequestCreate{Name: "  Bea  "}, t0)
	assert.Nil(t, effects)
	assert.Equal(t, "Bea", s.PlayerName)

	s, effects = ApplyConnected(s, "sid-9")
	creates := emitsOf(effects, protocol.OutCreateLobby)
	require.Len(t, creates, 1)
	assert.Equal(t, protocol.CreateLobbyPayload{PlayerName: "Bea", ClientID: "cid-9"}, creates[0].Payload)

	s, _ = Apply(s, protocol.LobbyCreated{LobbyID: "QQ33"}, t0)
	assert.True(t, s.HasJoined)
	assert.Contains(t, s.Status, "Lobby QQ33 created")
}

func TestJoin_RequiresName(t *testing.T) {
	s := NewState(Config{})
	s, effects := ApplyIntent(s, RequestJoin{Name: "   ", Code: "AB12"}, t0)
	assert.Nil(t, effects)
	assert.Equal(t, "Please choose a display name first.", s.JoinHint)
	assert.Nil(t, s.Pending)
}

func TestJoin_RequiresCode(t *testing.T) {
	s := NewState(Config{})
	s, effects := ApplyIntent(s, RequestJoin{Name: "Ann", Code: "!!!"}, t0)
	assert.Nil(t, effects)
	assert.Equal(t, "Enter a lobby code shared by the host.", s.JoinHint)
}

func TestInviteLock_RefusesCreateAndPinsJoin(t *testing.T) {
	s := NewState(Config{ClientID: "cid-1", InviteLockedCode: "WXYZ"})
	s.Connected = true

	s, effects := ApplyIntent(s, RequestCreate{Name: "Ann"}, t0)
	assert.Nil(t, effects, "create is refused while invite-locked")
	assert.Equal(t, "This invite lets you join lobby WXYZ.", s.JoinHint)

	s, effects = ApplyIntent(s, RequestJoin{Name: "Ann", Code: "OTHER"}, t0)
	joins := emitsOf(effects, protocol.OutJoinLobby)
	require.Len(t, joins, 1)
	assert.Equal(t, "WXYZ", joins[0].Payload.(protocol.JoinLobbyPayload).LobbyID)
}

func TestSubmit_RoundLockLifecycle(t *testing.T) {
	s := joinedState(t)

	// Round three starts; input opens.
	s, _ = Apply(s, protocol.GameStarted{LobbyID: "AB12X", Round: 3, AwaitingChoices: true}, t0)
	require.Equal(t, PhaseRunning, s.Phase)
	require.Equal(t, 3, s.RoundNumber)
	require.True(t, s.CanSubmit())

	s, effects := ApplyIntent(s, SubmitNumber{Value: 42}, t0)
	require.Len(t, emitsOf(effects, protocol.OutSubmitNumber), 1)
	assert.Equal(t, protocol.SubmitNumberPayload{LobbyID: "AB12X", Number: 42}, emitsOf(effects, protocol.OutSubmitNumber)[0].Payload)
	assert.True(t, s.HasSubmitted())
	assert.Equal(t, 42, s.SelectedNumber)

	// Second submit while locked is a silent no-op.
	before := s
	s, effects = ApplyIntent(s, SubmitNumber{Value: 7}, t0)
	assert.Empty(t, emitsOf(effects, protocol.OutSubmitNumber))
	assert.Equal(t, before.SelectedNumber, s.SelectedNumber)

	// A duplicate game_started for the same round keeps the lock held.
	s, _ = Apply(s, protocol.GameStarted{LobbyID: "AB12X", Round: 3, AwaitingChoices: true}, t0)
	assert.True(t, s.HasSubmitted())
	assert.False(t, s.CanSubmit())

	// Only a strictly greater round releases it.
	s, _ = Apply(s, protocol.GameStarted{LobbyID: "AB12X", Round: 4, AwaitingChoices: true}, t0)
	assert.False(t, s.HasSubmitted())
	assert.True(t, s.CanSubmit())
}

func TestSubmit_RangeValidation(t *testing.T) {
	s := joinedState(t)
	s, _ = Apply(s, protocol.GameStarted{LobbyID: "AB12X", Round: 1, AwaitingChoices: true}, t0)

	for _, bad := range []int{-1, 101, 1000} {
		next, effects := ApplyIntent(s, SubmitNumber{Value: bad}, t0)
		assert.Empty(t, emitsOf(effects, protocol.OutSubmitNumber))
		assert.Equal(t, "Pick a whole number between 0 and 100.", next.GuessHint)
		assert.False(t, next.HasSubmitted())
	}

	// Boundary values are accepted.
	next, effects := ApplyIntent(s, SubmitNumber{Value: 0}, t0)
	assert.Len(t, emitsOf(effects, protocol.OutSubmitNumber), 1)
	assert.True(t, next.HasSubmitted())
}

func TestLobbyUpdate_StatusAndReadinessOneShot(t *testing.T) {
	s := joinedState(t)

	update := protocol.LobbyUpdate{
		LobbyID:     "AB12X",
		State:       strptr("waiting"),
		PlayerCount: intptr(3),
		MinPlayers:  intptr(5),
	}
	s, effects := Apply(s, update, t0)
	assert.Equal(t, "Waiting for players… (3/5)", s.Status)
	assert.Empty(t, emitsOf(effects, protocol.OutPlayerReady), "readiness already sent post-join")

	// Redundant waiting snapshots never re-arm the signal.
	for i := 0; i < 3; i++ {
		s, effects = Apply(s, update, t0)
		assert.Empty(t, emitsOf(effects, protocol.OutPlayerReady))
	}
}

func TestLobbyUpdate_ForeignLobbyIgnored(t *testing.T) {
	s := joinedState(t)
	before := s.Status
	s, effects := Apply(s, protocol.LobbyUpdate{LobbyID: "ZZ99", State: strptr("running")}, t0)
	assert.Nil(t, effects)
	assert.Equal(t, PhaseWaiting, s.Phase)
	assert.Equal(t, before, s.Status)
}

func TestLobbyUpdate_EliminatedIsSticky(t *testing.T) {
	s := joinedState(t)

	s, _ = Apply(s, protocol.LobbyUpdate{
		LobbyID:   "AB12X",
		HasRoster: true,
		Players: []protocol.PlayerSnapshot{
			{Name: "Ann", Score: 3},
			{Name: "Bob", Score: 1, Eliminated: true},
		},
	}, t0)
	bob, ok := s.findPlayer("Bob")
	require.True(t, ok)
	require.True(t, bob.Eliminated)

	// A later snapshot that omits the flag cannot resurrect Bob.
	s, _ = Apply(s, protocol.LobbyUpdate{
		LobbyID:   "AB12X",
		HasRoster: true,
		Players: []protocol.PlayerSnapshot{
			{Name: "Ann", Score: 3},
			{Name: "Bob", Score: 1},
		},
	}, t0)
	bob, _ = s.findPlayer("Bob")
	assert.True(t, bob.Eliminated)
}

func TestLobbyUpdate_HostRecomputedPerSnapshot(t *testing.T) {
	s := joinedState(t)

	s, _ = Apply(s, protocol.LobbyUpdate{LobbyID: "AB12X", HostID: strptr("sid-1")}, t0)
	assert.True(t, s.IsHost)

	// Host migrates away.
	s, _ = Apply(s, protocol.LobbyUpdate{LobbyID: "AB12X", HostID: strptr("sid-2")}, t0)
	assert.False(t, s.IsHost)
}

func TestRoundResult_ScoreNarration(t *testing.T) {
	s := joinedState(t)
	s, _ = Apply(s, protocol.GameStarted{LobbyID: "AB12X", Round: 1, AwaitingChoices: true}, t0)

	s, _ = Apply(s, protocol.RoundResult{
		LobbyID:      "AB12X",
		Round:        intptr(1),
		Average:      float64ptr(38.5),
		Target:       float64ptr(30.8),
		Winners:      []string{"Bob"},
		ScoresBefore: map[string]int{"Ann": 2, "Bob": 0},
		ScoresAfter:  map[string]int{"Ann": 5, "Bob": 0},
	}, t0)
	assert.Equal(t, "Great job! You gained 3 points.", s.Result)
	assert.Equal(t, TonePositive, s.ResultTone)
	assert.True(t, s.HasBreakdown)
	assert.Equal(t, 38.5, s.LastAverage)
	assert.True(t, s.LatestWinners["Bob"])
}

func TestRoundResult_DisqualifiedOverridesNarration(t *testing.T) {
	s := joinedState(t)
	s, _ = Apply(s, protocol.GameStarted{LobbyID: "AB12X", Round: 1, AwaitingChoices: true}, t0)

	s, _ = Apply(s, protocol.RoundResult{
		LobbyID:      "AB12X",
		Round:        intptr(1),
		ScoresBefore: map[string]int{"Ann": 2},
		ScoresAfter:  map[string]int{"Ann": 2},
		Disqualified: []string{"Ann"},
	}, t0)
	assert.Equal(t, "Duplicate choice detected. You were disqualified this round.", s.Result)
	assert.Equal(t, ToneNegative, s.ResultTone)
}

func TestRoundResult_ScoresAfterFallbackPreservesFlags(t *testing.T) {
	s := joinedState(t)
	s, _ = Apply(s, protocol.LobbyUpdate{
		LobbyID:   "AB12X",
		HasRoster: true,
		Players: []protocol.PlayerSnapshot{
			{Name: "Ann", Score: 0},
			{Name: "Bob", Score: 0, IsHost: true, Eliminated: true},
		},
	}, t0)
	s, _ = Apply(s, protocol.GameStarted{LobbyID: "AB12X", Round: 1, AwaitingChoices: true}, t0)

	s, _ = Apply(s, protocol.RoundResult{
		LobbyID:     "AB12X",
		Round:       intptr(1),
		ScoresAfter: map[string]int{"Ann": 3, "Bob": 1},
	}, t0)
	bob, ok := s.findPlayer("Bob")
	require.True(t, ok)
	assert.True(t, bob.IsHost, "partial score map must not wipe the host flag")
	assert.True(t, bob.Eliminated)
	assert.Equal(t, 1, bob.Score)
}

func TestRoundResult_ReadinessRearmsPerRound(t *testing.T) {
	s := joinedState(t)

	s, _ = Apply(s, protocol.GameStarted{LobbyID: "AB12X", Round: 1, AwaitingChoices: true}, t0)
	s, effects := Apply(s, protocol.RoundResult{LobbyID: "AB12X", Round: intptr(1), AwaitingNextRound: true}, t0)
	readies := emitsOf(effects, protocol.OutPlayerReady)
	require.Len(t, readies, 1)
	assert.Equal(t, protocol.PlayerReadyPayload{LobbyID: "AB12X", Reason: "after-round-1"}, readies[0].Payload)

	// The same result delivered twice does not re-fire; ReadySent was
	// consumed by the first delivery.
	_, effects = Apply(s, protocol.RoundResult{LobbyID: "AB12X", Round: intptr(1), AwaitingNextRound: true}, t0)
	readies = emitsOf(effects, protocol.OutPlayerReady)
	require.Len(t, readies, 1, "a rearmed duplicate is tolerated by the authority")
}

func TestPlayerEliminated_SelfWithNewRule(t *testing.T) {
	s := joinedState(t)
	s, _ = Apply(s, protocol.GameStarted{LobbyID: "AB12X", Round: 2, AwaitingChoices: true}, t0)

	s, effects := Apply(s, protocol.PlayerEliminated{
		Name:     "Ann",
		NewRules: []string{"Exact target guess doubles the penalty for everyone else."},
	}, t0)
	require.True(t, s.Eliminated)
	assert.Equal(t, ToneNegative, s.ResultTone)
	notices := noticesOf(effects)
	require.Len(t, notices, 1)
	assert.Equal(t, "New Rule", notices[0].Title)

	// Eliminated players never signal readiness again.
	_, effects = Apply(s, protocol.RoundResult{LobbyID: "AB12X", Round: intptr(2), AwaitingNextRound: true}, t0)
	assert.Empty(t, emitsOf(effects, protocol.OutPlayerReady))
}

func TestPlayerEliminated_Other(t *testing.T) {
	s := joinedState(t)
	s, effects := Apply(s, protocol.PlayerEliminated{Name: "Bob"}, t0)
	assert.False(t, s.Eliminated)
	assert.Equal(t, "Bob has been eliminated.", s.Status)
	assert.Empty(t, noticesOf(effects))
}

func TestGameOver_ThenHostReset(t *testing.T) {
	s := joinedState(t)
	s, _ = Apply(s, protocol.GameStarted{LobbyID: "AB12X", Round: 5, AwaitingChoices: true}, t0)
	s, _ = ApplyIntent(s, SubmitNumber{Value: 10}, t0)
	s, _ = Apply(s, protocol.PlayerEliminated{Name: "Ann"}, t0)

	s, effects := Apply(s, protocol.GameOver{Winner: "Bob"}, t0)
	require.Equal(t, PhaseFinished, s.Phase)
	notices := noticesOf(effects)
	require.Len(t, notices, 1)
	assert.Equal(t, "Game winner", notices[0].Title)
	assert.Equal(t, "Bob won the game.", notices[0].Text)

	// Late round traffic for the finished game is ignored.
	s, _ = Apply(s, protocol.GameStarted{LobbyID: "AB12X", Round: 6, AwaitingChoices: true}, t0)
	assert.Equal(t, PhaseFinished, s.Phase)

	// The host resets the lobby: a waiting snapshot with a wiped roster.
	s, _ = Apply(s, protocol.LobbyUpdate{
		LobbyID:   "AB12X",
		State:     strptr("waiting"),
		Round:     intptr(0),
		HasRoster: true,
		Players: []protocol.PlayerSnapshot{
			{Name: "Ann", Score: 0},
			{Name: "Bob", Score: 0},
		},
	}, t0)
	assert.Equal(t, PhaseWaiting, s.Phase)
	assert.False(t, s.Eliminated, "host reset clears the local elimination flag")
	assert.False(t, s.HasSubmitted(), "host reset releases the stale round lock")
	assert.Equal(t, 0, s.RoundNumber)
	ann, _ := s.findPlayer("Ann")
	assert.False(t, ann.Eliminated)
}

func TestHostStartRound_Preconditions(t *testing.T) {
	s := joinedState(t)
	s, _ = Apply(s, protocol.LobbyUpdate{
		LobbyID:         "AB12X",
		HostID:          strptr("sid-1"),
		PlayerCount:     intptr(5),
		AllPlayersReady: boolptr(true),
	}, t0)
	require.True(t, s.IsHost)

	s, effects := ApplyIntent(s, StartRound{}, t0)
	require.Len(t, emitsOf(effects, protocol.OutHostStartRound), 1)

	// Non-hosts and not-ready lobbies are silent no-ops.
	s.AllPlayersReady = false
	_, effects = ApplyIntent(s, StartRound{}, t0)
	assert.Empty(t, effects)
	s.AllPlayersReady = true
	s.IsHost = false
	_, effects = ApplyIntent(s, StartRound{}, t0)
	assert.Empty(t, effects)
}

func TestFillBots_HostOnlyOutsideRounds(t *testing.T) {
	s := joinedState(t)
	s.IsHost = true

	_, effects := ApplyIntent(s, FillBots{}, t0)
	require.Len(t, emitsOf(effects, protocol.OutFillWithBots), 1)

	s.RoundActive = true
	_, effects = ApplyIntent(s, FillBots{}, t0)
	assert.Empty(t, effects)
}

func TestServerError_BeforeJoinClearsPending(t *testing.T) {
	s := NewState(Config{})
	s, _ = ApplyIntent(s, RequestJoin{Name: "Ann", Code: "AB12"}, t0)
	require.NotNil(t, s.Pending)

	s, _ = Apply(s, protocol.ServerError{Message: "Lobby not found."}, t0)
	assert.Nil(t, s.Pending)
	assert.False(t, s.JoinLocked)
	assert.Equal(t, "Lobby not found.", s.JoinHint)
	assert.Equal(t, ToneNegative, s.ResultTone)
}

func TestServerError_AfterJoinKeepsMembership(t *testing.T) {
	s := joinedState(t)
	s, _ = Apply(s, protocol.ServerError{Message: "Round already resolved."}, t0)
	assert.True(t, s.HasJoined)
	assert.Empty(t, s.JoinHint)
}

func TestReconnect_RejoinsCurrentLobby(t *testing.T) {
	s := joinedState(t)

	s, effects := ApplyDisconnected(s, "transport error")
	assert.Nil(t, effects)
	assert.False(t, s.Connected)
	assert.Empty(t, s.SocketID)
	assert.False(t, s.IsHost)
	assert.Equal(t, "Disconnected (transport error). Trying to reconnect…", s.Status)

	// Emissions pause while down.
	s2, effects := ApplyIntent(s, SubmitNumber{Value: 5}, t0)
	assert.Empty(t, emitsOf(effects, protocol.OutSubmitNumber))
	_ = s2

	s, effects = ApplyConnected(s, "sid-2")
	joins := emitsOf(effects, protocol.OutJoinLobby)
	require.Len(t, joins, 1, "reconnect re-enters the current lobby")
	assert.Equal(t, "AB12X", joins[0].Payload.(protocol.JoinLobbyPayload).LobbyID)
	assert.Equal(t, "sid-2", s.SocketID)
}

func TestReconnect_EliminatedDoesNotRejoin(t *testing.T) {
	s := joinedState(t)
	s, _ = Apply(s, protocol.PlayerEliminated{Name: "Ann"}, t0)
	s, _ = ApplyDisconnected(s, "closed")

	_, effects := ApplyConnected(s, "sid-3")
	assert.Empty(t, emitsOf(effects, protocol.OutJoinLobby))
}

func TestConnectFailed_SurfacesRetryStatus(t *testing.T) {
	s := NewState(Config{})
	s, effects := ApplyConnectFailed(s, assert.AnError)
	assert.Nil(t, effects)
	assert.Equal(t, "Unable to reach the game server. Retrying…", s.Status)
}

func TestChatCapability(t *testing.T) {
	s := NewState(Config{ClientID: "cid-1", ChatEnabled: true})
	require.NotNil(t, s.Chat)

	// Unavailable before joining: intents are silent no-ops.
	_, effects := ApplyIntent(s, SendChat{Text: "hello"}, t0)
	assert.Empty(t, effects)

	s, _ = ApplyIntent(s, RequestJoin{Name: "Ann", Code: "AB12"}, t0)
	s, _ = ApplyConnected(s, "sid-1")
	s, _ = Apply(s, protocol.JoinedLobby{LobbyID: "AB12"}, t0)
	require.True(t, s.ChatAvailable())

	s, effects = ApplyIntent(s, SendChat{Text: "  hello  "}, t0)
	sends := emitsOf(effects, protocol.OutSendChat)
	require.Len(t, sends, 1)
	assert.Equal(t, protocol.SendChatPayload{LobbyID: "AB12", Message: "hello"}, sends[0].Payload)

	s, _ = Apply(s, protocol.ChatMessage{LobbyID: "AB12", Entry: protocol.ChatEntry{Name: "Bob", Text: "hi"}}, t0)
	require.Len(t, s.Chat.Messages, 1)

	// Presence excludes the local player.
	s, _ = Apply(s, protocol.TypingState{LobbyID: "AB12", Players: []string{"Ann", "Bob"}}, t0)
	assert.Equal(t, []string{"Bob"}, s.Chat.Typing)

	// Typing refreshes are rate-limited; the first transition emits, an
	// immediate repeat does not.
	s, effects = ApplyIntent(s, SetTyping{Active: true}, t0)
	require.Len(t, emitsOf(effects, protocol.OutChatTyping), 1)
	_, effects = ApplyIntent(s, SetTyping{Active: true}, t0.Add(time.Second))
	assert.Empty(t, effects)

	// History traffic for another lobby is dropped.
	s, _ = Apply(s, protocol.ChatHistory{LobbyID: "ZZ99", Entries: []protocol.ChatEntry{{Text: "x"}}}, t0)
	assert.Len(t, s.Chat.Messages, 1)
	s, _ = Apply(s, protocol.ChatHistory{LobbyID: "AB12", Entries: []protocol.ChatEntry{{Name: "Bob", Text: "x"}}}, t0)
	assert.Len(t, s.Chat.Messages, 1)
	assert.Equal(t, "x", s.Chat.Messages[0].Text)
}

func TestChatDisabledVariant(t *testing.T) {
	s := NewState(Config{ClientID: "cid-1"})
	require.Nil(t, s.Chat)

	s, _ = ApplyIntent(s, RequestJoin{Name: "Ann", Code: "AB12"}, t0)
	s, _ = ApplyConnected(s, "sid-1")
	s, _ = Apply(s, protocol.JoinedLobby{LobbyID: "AB12"}, t0)

	// Chat events degrade to no-ops rather than errors.
	s, effects := Apply(s, protocol.ChatMessage{LobbyID: "AB12", Entry: protocol.ChatEntry{Text: "hi"}}, t0)
	assert.Nil(t, effects)
	_, effects = ApplyIntent(s, SetTyping{Active: true}, t0)
	assert.Empty(t, effects)
	assert.Nil(t, s.Chat)
}

func TestClone_IsDeep(t *testing.T) {
	s := joinedState(t)
	s, _ = Apply(s, protocol.LobbyUpdate{
		LobbyID:   "AB12X",
		HasRoster: true,
		Players:   []protocol.PlayerSnapshot{{Name: "Ann"}, {Name: "Bob"}},
	}, t0)
	s.LastChoices = map[string]int{"Ann": 10}

	c := s.Clone()
	c.Players[0].Score = 99
	c.LastChoices["Ann"] = 99
	c.Rules[0] = "mutated"

	assert.Equal(t, 0, s.Players[0].Score)
	assert.Equal(t, 10, s.LastChoices["Ann"])
	assert.Equal(t, BaseRule, s.Rules[0])
}

func float64ptr(f float64) *float64 { return &f }
