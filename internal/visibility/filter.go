// Package visibility decides what each participant may see of the shared
// transcript. Role names and secret ballots never reach peers; anything the
// filter does not recognise passes through untouched.
package visibility

import (
	"fmt"
	"regexp"

	"github.com/aaronzipp/avalon-moderator/internal/models"
)

const (
	// RolePlaceholder replaces a role name in a peer's message
	RolePlaceholder = "***"
	// BallotPlaceholder replaces a peer's secret ballot
	BallotPlaceholder = "[hidden]"
)

var (
	roleNamePattern = regexp.MustCompile(`(?i)\b(?:merlin|percival|(?:loyal\s+)?servants?|assassin|morgana|oberon)\b`)
	ballotPattern   = regexp.MustCompile(`(?i)my\s+vote\s+is\s*:`)
)

// VoteDeclaration wraps a ballot in the canonical marker the filter hides
func VoteDeclaration(text string) string {
	return fmt.Sprintf("<my vote is: %s>", text)
}

// IsVoteDeclaration reports whether text carries the ballot marker
func IsVoteDeclaration(text string) bool {
	return ballotPattern.MatchString(text)
}

// RedactRoles replaces every role name token in text
func RedactRoles(text string) string {
	return roleNamePattern.ReplaceAllString(text, RolePlaceholder)
}

// Filter returns the transcript as viewer (an internal handle) may see it.
// The moderator sees everything. For everyone else, messages not written by
// the moderator lose role names, and ballots written by someone other than
// the viewer are replaced. A ballot is a message carrying the vote marker or
// one appended during a voting or mission phase; phase stands in for entries
// that carry none. The input slice is never modified.
func Filter(transcript []models.Message, viewer string, phase models.Phase) []models.Message {
	out := make([]models.Message, len(transcript))
	copy(out, transcript)
	if viewer == models.ModeratorHandle {
		return out
	}
	for i, m := range out {
		if m.FromModerator() {
			continue
		}
		if m.Source != viewer && IsBallot(m, phase) {
			out[i].Content = BallotPlaceholder
			continue
		}
		out[i].Content = RedactRoles(m.Content)
	}
	return out
}

// ForObserver applies the same rules for a viewer that authored nothing,
// which is what every broadcast observer is.
func ForObserver(m models.Message, phase models.Phase) models.Message {
	return Filter([]models.Message{m}, "", phase)[0]
}

// IsBallot reports whether m is a secret ballot. Entries without a phase
// tag are judged by the current phase.
func IsBallot(m models.Message, phase models.Phase) bool {
	if IsVoteDeclaration(m.Content) {
		return true
	}
	if m.Source == models.SystemHandle {
		return false
	}
	p := m.Phase
	if p == "" {
		p = phase
	}
	return p.IsSecretBallot()
}
