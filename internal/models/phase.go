package models

// Phase is the current stage of a match as declared by the moderator
type Phase string

const (
	PhaseTeamSelect  Phase = "team_select"
	PhaseSpeaking    Phase = "speaking"
	PhaseVoting      Phase = "voting"
	PhaseMission     Phase = "mission"
	PhaseAssassinate Phase = "assassinate"
	PhaseGameOver    Phase = "game_over"
)

// ParsePhase maps moderator text to a known phase
func ParsePhase(s string) (Phase, bool) {
	switch p := Phase(s); p {
	case PhaseTeamSelect, PhaseSpeaking, PhaseVoting, PhaseMission, PhaseAssassinate, PhaseGameOver:
		return p, true
	}
	return "", false
}

// IsSecretBallot reports whether utterances in this phase are ballots that
// peers must never see
func (p Phase) IsSecretBallot() bool {
	return p == PhaseVoting || p == PhaseMission
}

// Outcome records how a match ended
type Outcome string

const (
	OutcomeNone       Outcome = ""
	OutcomeTerminated Outcome = "terminated"
	OutcomeStopped    Outcome = "stopped"
	OutcomeExhausted  Outcome = "step_budget_exhausted"
)
