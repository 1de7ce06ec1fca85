package projector

import (
	"github.com/aaronzipp/avalon-moderator/internal/models"
	"github.com/aaronzipp/avalon-moderator/internal/visibility"
)

// SubmissionPlaceholder stands in for a ballot in the public feed
const SubmissionPlaceholder = "[submission received]"

// Projection is the observer-safe rendering of one moderator reply
type Projection struct {
	State    State
	HasState bool
	// Update is nil when the reply carried no valid state block
	Update *models.StateUpdatePayload
	// Raw is the state block with every handle rewritten
	Raw     map[string]any
	Message models.MessagePayload
}

// Projector renders transcript entries for broadcast
type Projector struct {
	names *DisplayMap
}

func New(names *DisplayMap) *Projector {
	return &Projector{names: names}
}

func (p *Projector) Names() *DisplayMap {
	return p.names
}

// Moderator splits a moderator reply into its state block and narration,
// both rewritten to display names. State fields keep internal handles.
func (p *Projector) Moderator(text string) Projection {
	st, rest, ok := Extract(text)
	proj := Projection{
		State:    st,
		HasState: ok,
		Message: models.MessagePayload{
			Source:  models.ModeratorDisplayName,
			Content: p.names.Rewrite(rest),
		},
	}
	if !ok {
		return proj
	}
	if raw, isMap := p.names.RewriteValue(st.Raw).(map[string]any); isMap {
		proj.Raw = raw
	}
	proj.Update = p.StateUpdate(st)
	return proj
}

// StateUpdate converts extracted state into the public payload
func (p *Projector) StateUpdate(st State) *models.StateUpdatePayload {
	team := make([]string, 0, len(st.Team))
	for _, h := range st.Team {
		team = append(team, p.names.Rewrite(h))
	}
	return &models.StateUpdatePayload{
		Phase:     st.Phase,
		Round:     st.Round,
		Captain:   p.names.Rewrite(st.Captain),
		Team:      team,
		Tallies:   st.Tallies,
		NextActor: p.names.Rewrite(st.NextPlayer),
	}
}

// Participant renders a player's utterance. Ballots become a receipt, role
// names are masked and handles rewritten.
func (p *Projector) Participant(m models.Message, phase models.Phase) models.MessagePayload {
	source := m.Source
	if name, ok := p.names.Display(m.Source); ok {
		source = name
	}
	if m.Source != models.SystemHandle && visibility.IsBallot(m, phase) {
		return models.MessagePayload{Source: source, Content: SubmissionPlaceholder}
	}
	shown := visibility.ForObserver(m, phase)
	return models.MessagePayload{Source: source, Content: p.names.Rewrite(shown.Content)}
}
