package game

import (
	"fmt"

	"github.com/aaronzipp/avalon-moderator/internal/models"
)

// MissionSpec is the fixed requirement of one mission round
type MissionSpec struct {
	TeamSize      int
	FailsRequired int
}

var missionTable = [MaxRounds]MissionSpec{
	{TeamSize: 2, FailsRequired: 1},
	{TeamSize: 3, FailsRequired: 1},
	{TeamSize: 3, FailsRequired: 1},
	{TeamSize: 4, FailsRequired: 2},
	{TeamSize: 4, FailsRequired: 1},
}

// MissionFor returns the requirement of a round (1-based)
func MissionFor(round int) (MissionSpec, bool) {
	if round < 1 || round > MaxRounds {
		return MissionSpec{}, false
	}
	return missionTable[round-1], true
}

// Claim is what the moderator asserted in one structured state block
type Claim struct {
	Phase    models.Phase
	Round    int
	TeamSize int
	Tallies  models.Tallies
}

// Validator checks the moderator's claims against the fixed mission table.
// It only reports divergences; the moderator stays the authority on flow.
type Validator struct {
	prev *Claim
}

// Check compares c with the table and with the previous claim
func (v *Validator) Check(c Claim) []string {
	var out []string
	spec, ok := MissionFor(c.Round)
	if !ok {
		out = append(out, fmt.Sprintf("round %d is outside 1..%d", c.Round, MaxRounds))
	}
	if ok && c.TeamSize > 0 && (c.Phase == models.PhaseVoting || c.Phase == models.PhaseMission) && c.TeamSize != spec.TeamSize {
		out = append(out, fmt.Sprintf("round %d team has %d members, table requires %d", c.Round, c.TeamSize, spec.TeamSize))
	}
	t := c.Tallies
	if t.Successes < 0 || t.Successes > WinsNeeded || t.Failures < 0 || t.Failures > WinsNeeded {
		out = append(out, fmt.Sprintf("tallies %d/%d outside 0..%d", t.Successes, t.Failures, WinsNeeded))
	}
	if ok && t.Successes+t.Failures > c.Round {
		out = append(out, fmt.Sprintf("%d mission outcomes declared by round %d", t.Successes+t.Failures, c.Round))
	}
	if t.Rejects < 0 || t.Rejects > MaxRejects {
		out = append(out, fmt.Sprintf("reject count %d outside 0..%d", t.Rejects, MaxRejects))
	}
	if v.prev != nil {
		p := v.prev.Tallies
		if t.Successes < p.Successes || t.Failures < p.Failures {
			out = append(out, fmt.Sprintf("tallies went backwards from %d/%d to %d/%d", p.Successes, p.Failures, t.Successes, t.Failures))
		}
		if v.prev.Phase == models.PhaseGameOver && c.Phase != models.PhaseGameOver {
			out = append(out, fmt.Sprintf("phase %s declared after game_over", c.Phase))
		}
	}
	if t.Failures >= WinsNeeded && c.Phase != models.PhaseGameOver {
		out = append(out, "evil reached three failed missions but the match continues")
	}
	if t.Successes >= WinsNeeded && c.Phase != models.PhaseAssassinate && c.Phase != models.PhaseGameOver {
		out = append(out, "good reached three successes but no assassination was called")
	}
	prev := c
	v.prev = &prev
	return out
}

// WinnerFromTallies infers the winning side when the moderator did not name one.
// Three successes are not decisive because the assassination can still flip it.
func WinnerFromTallies(t models.Tallies) models.Team {
	if t.Failures >= WinsNeeded {
		return models.TeamEvil
	}
	return ""
}
