package engine

import (
	"fmt"
	"net/url"
)

// HostControls is the derived surface a host-facing renderer needs. All of
// it is recomputable from State; nothing here feeds back into transitions.
type HostControls struct {
	ShowPanel   bool
	ShowStart   bool
	ShowNext    bool
	CanStart    bool
	CanNext     bool
	ShowBots    bool
	CanFillBots bool
	BotDeficit  int
	Status      string
	Hint        string
}

// HostControls derives the host panel from the current projection.
func (s State) HostControls() HostControls {
	if !s.IsHost {
		return HostControls{Status: "Waiting for the host…"}
	}

	deficit := s.MinPlayers - s.PlayerCount
	if deficit < 0 {
		deficit = 0
	}
	enough := s.PlayerCount >= s.MinPlayers
	waitingFirst := s.Phase == PhaseWaiting
	readyInitial := waitingFirst && !s.RoundActive
	readyNext := s.Phase == PhaseRunning && s.AwaitingNextRound && !s.RoundActive
	canBots := deficit > 0 && !s.RoundActive && waitingFirst

	hc := HostControls{
		ShowPanel:   true,
		ShowStart:   !s.RoundActive && waitingFirst,
		ShowNext:    !waitingFirst && readyNext,
		CanStart:    enough && readyInitial && s.AllPlayersReady,
		CanNext:     enough && readyNext && s.AllPlayersReady,
		ShowBots:    canBots,
		CanFillBots: canBots,
		BotDeficit:  deficit,
	}

	switch {
	case s.RoundActive:
		hc.Status = "Round is currently in progress."
		hc.Hint = "You can start the next round once the results are in."
	case waitingFirst:
		hc.Status = "Waiting to start the first round."
		switch {
		case !enough && deficit > 0:
			hc.Hint = fmt.Sprintf("Waiting for %d more player(s). Use the bot button if needed.", deficit)
		case !enough:
			hc.Hint = "Waiting for additional players."
		case !s.AllPlayersReady:
			hc.Hint = "Waiting for every player to mark as ready."
		default:
			hc.Hint = `Click "Start round" when everyone is ready.`
		}
	case readyNext:
		hc.Status = "Review the round results, then start the next round."
		if s.AllPlayersReady {
			hc.Hint = `Click "Start next round" to continue.`
		} else {
			hc.Hint = "Waiting for every player to mark as ready."
		}
	case s.Phase == PhaseFinished:
		hc.Status = "Game finished."
		hc.Hint = "Refresh to start a new lobby."
	default:
		hc.Status = "Waiting for the current round to complete."
	}
	return hc
}

// InviteURL encodes the lobby code as a query parameter on the share base.
// Joining through such a link locks the join target.
func InviteURL(base, lobbyID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse invite base: %w", err)
	}
	q := u.Query()
	q.Set("lobby", lobbyID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
