package engine

import (
	"fmt"

	"balance-scale-client/pkg/protocol"
)

// MergeRoster reconciles an incoming roster snapshot with the previous
// one. Eliminated is one-way: once a player is reported eliminated, no
// later snapshot can resurrect them. When the snapshot is partial (a bare
// name->score map) the host flag is not trustworthy either and is carried
// over from the prior roster.
func MergeRoster(existing []Player, incoming []protocol.PlayerSnapshot, partial bool) []Player {
	prev := make(map[string]Player, len(existing))
	for _, p := range existing {
		prev[p.Name] = p
	}

	out := make([]Player, 0, len(incoming))
	for _, in := range incoming {
		p := Player{
			Name:            in.Name,
			Score:           in.Score,
			Eliminated:      in.Eliminated,
			IsHost:          in.IsHost,
			IsBot:           in.IsBot,
			Ready:           in.Ready,
			ChoiceSubmitted: in.ChoiceSubmitted,
		}
		if old, ok := prev[in.Name]; ok {
			p.Eliminated = p.Eliminated || old.Eliminated
			if partial {
				p.IsHost = old.IsHost
				p.IsBot = old.IsBot
			}
		}
		out = append(out, p)
	}
	return out
}

// replaceRoster drops all prior flags; used only on the authority's
// host-control reset of a finished game.
func replaceRoster(incoming []protocol.PlayerSnapshot) []Player {
	out := make([]Player, 0, len(incoming))
	for _, in := range incoming {
		out = append(out, Player{
			Name:            in.Name,
			Score:           in.Score,
			Eliminated:      in.Eliminated,
			IsHost:          in.IsHost,
			IsBot:           in.IsBot,
			Ready:           in.Ready,
			ChoiceSubmitted: in.ChoiceSubmitted,
		})
	}
	return out
}

// DescribeScoreChange phrases the local player's round outcome. A zero
// delta means they won the round outright.
func DescribeScoreChange(before, after int) (text string, tone Tone) {
	delta := after - before
	if delta == 0 {
		return "You won this round!", TonePositive
	}
	abs := delta
	if abs < 0 {
		abs = -abs
	}
	label := fmt.Sprintf("%d point", abs)
	if abs != 1 {
		label += "s"
	}
	if delta > 0 {
		return fmt.Sprintf("Great job! You gained %s.", label), TonePositive
	}
	return fmt.Sprintf("You lost %s this round.", label), ToneNegative
}
