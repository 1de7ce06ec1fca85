package game

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"github.com/aaronzipp/avalon-moderator/internal/models"
)

var (
	// ErrInvalidRosterSize is returned when a roster does not have exactly seven seats
	ErrInvalidRosterSize = errors.New("invalid roster size")
	// ErrInvalidSeat is returned for seats outside 1..7 or seated twice
	ErrInvalidSeat = errors.New("invalid seat")
	// ErrDuplicateParticipant is returned when two shells share an ID or display name
	ErrDuplicateParticipant = errors.New("duplicate participant")
	// ErrInvalidKind is returned for a shell that is neither automated nor human
	ErrInvalidKind = errors.New("invalid participant kind")
	// ErrAmbiguousID is returned when a roster ID names a different seat or a reserved speaker
	ErrAmbiguousID = errors.New("roster id collides with another identifier")
)

// SevenPlayerRoles is the fixed role multiset of a match
var SevenPlayerRoles = []models.Role{
	models.RoleMerlin,
	models.RolePercival,
	models.RoleServant,
	models.RoleServant,
	models.RoleAssassin,
	models.RoleMorgana,
	models.RoleOberon,
}

// HandleForSeat returns the internal identifier of a seat
func HandleForSeat(seat int) string {
	return fmt.Sprintf("player_%d", seat)
}

// Assignor deals roles and personas and computes knowledge sets
type Assignor struct {
	rng      *rand.Rand
	personas []string
}

// NewAssignor creates an assignor drawing from rng. A nil rng is seeded from crypto/rand.
func NewAssignor(rng *rand.Rand, personas []string) *Assignor {
	if rng == nil {
		rng = NewRand()
	}
	return &Assignor{rng: rng, personas: personas}
}

// ValidateRoster checks the shells a roster provider handed over
func ValidateRoster(shells []models.Shell) error {
	if len(shells) != RosterSize {
		return fmt.Errorf("%w: need %d, got %d", ErrInvalidRosterSize, RosterSize, len(shells))
	}
	seats := make(map[int]bool, len(shells))
	ids := make(map[string]bool, len(shells))
	names := make(map[string]bool, len(shells))
	for _, s := range shells {
		if s.Seat < 1 || s.Seat > RosterSize || seats[s.Seat] {
			return fmt.Errorf("%w: %d", ErrInvalidSeat, s.Seat)
		}
		seats[s.Seat] = true
		if s.Kind != models.KindAutomated && s.Kind != models.KindHuman {
			return fmt.Errorf("%w: %q", ErrInvalidKind, s.Kind)
		}
		if s.ID == "" || ids[s.ID] {
			return fmt.Errorf("%w: id %q", ErrDuplicateParticipant, s.ID)
		}
		ids[s.ID] = true
		name := strings.TrimSpace(s.DisplayName)
		if name == "" || names[name] {
			return fmt.Errorf("%w: name %q", ErrDuplicateParticipant, s.DisplayName)
		}
		names[name] = true
	}

	// IDs must not resolve to a different seat by name or handle
	owner := make(map[string]int, 2*len(shells)+2)
	owner[models.ModeratorHandle] = 0
	owner[models.SystemHandle] = 0
	for _, s := range shells {
		owner[strings.TrimSpace(s.DisplayName)] = s.Seat
		owner[HandleForSeat(s.Seat)] = s.Seat
	}
	for _, s := range shells {
		if seat, taken := owner[s.ID]; taken && seat != s.Seat {
			return fmt.Errorf("%w: id %q", ErrAmbiguousID, s.ID)
		}
	}
	return nil
}

// Assign builds the seven participants: a uniformly random bijection of the
// role multiset onto seats, personas for automated seats, and knowledge sets.
func (a *Assignor) Assign(shells []models.Shell) ([]*models.Participant, error) {
	if err := ValidateRoster(shells); err != nil {
		return nil, err
	}

	ordered := make([]models.Shell, len(shells))
	copy(ordered, shells)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Seat < ordered[j].Seat })

	roles := make([]models.Role, len(SevenPlayerRoles))
	copy(roles, SevenPlayerRoles)
	a.rng.Shuffle(len(roles), func(i, j int) { roles[i], roles[j] = roles[j], roles[i] })

	personas := make([]string, len(a.personas))
	copy(personas, a.personas)
	a.rng.Shuffle(len(personas), func(i, j int) { personas[i], personas[j] = personas[j], personas[i] })

	participants := make([]*models.Participant, 0, len(ordered))
	next := 0
	for i, s := range ordered {
		p := &models.Participant{
			ID:          s.ID,
			Handle:      HandleForSeat(s.Seat),
			DisplayName: strings.TrimSpace(s.DisplayName),
			Seat:        s.Seat,
			Kind:        s.Kind,
			Role:        roles[i],
		}
		if p.Kind == models.KindAutomated && len(personas) > 0 {
			p.Persona = personas[next%len(personas)]
			next++
		}
		participants = append(participants, p)
	}

	a.computeKnowledge(participants)
	return participants, nil
}

func (a *Assignor) computeKnowledge(participants []*models.Participant) {
	var merlin, morgana string
	var evilKnown []string // evil handles that take part in mutual recognition
	for _, p := range participants {
		switch p.Role {
		case models.RoleMerlin:
			merlin = p.Handle
		case models.RoleMorgana:
			morgana = p.Handle
		}
		if p.Role.Team() == models.TeamEvil && p.Role != models.RoleOberon {
			evilKnown = append(evilKnown, p.Handle)
		}
	}

	for _, p := range participants {
		switch {
		case p.Role == models.RoleMerlin:
			p.Knowledge = knowledgeOf(evilKnown, "", models.ReasonEvil)
		case p.Role == models.RolePercival:
			pair := []string{merlin, morgana}
			a.rng.Shuffle(len(pair), func(i, j int) { pair[i], pair[j] = pair[j], pair[i] })
			p.Knowledge = knowledgeOf(pair, "", models.ReasonMerlinCandidate)
		case p.Role.Team() == models.TeamEvil && p.Role != models.RoleOberon:
			p.Knowledge = knowledgeOf(evilKnown, p.Handle, models.ReasonEvilAlly)
		default:
			p.Knowledge = nil
		}
	}
}

func knowledgeOf(handles []string, self string, reason models.Reason) []models.Knowledge {
	out := make([]models.Knowledge, 0, len(handles))
	for _, h := range handles {
		if h == self {
			continue
		}
		out = append(out, models.Knowledge{Handle: h, Reason: reason})
	}
	return out
}

// KnowledgeText renders a participant's knowledge set using internal handles
func KnowledgeText(p *models.Participant) string {
	if len(p.Knowledge) == 0 {
		return "Nothing beyond your own role."
	}
	handles := make([]string, 0, len(p.Knowledge))
	for _, k := range p.Knowledge {
		handles = append(handles, k.Handle)
	}
	switch p.Knowledge[0].Reason {
	case models.ReasonEvil:
		return fmt.Sprintf("You know that %s are evil.", strings.Join(handles, ", "))
	case models.ReasonMerlinCandidate:
		return fmt.Sprintf("You know that %s are Merlin and Morgana, but not which is which.", strings.Join(handles, " and "))
	default:
		if len(handles) == 1 {
			return fmt.Sprintf("You know that %s is also evil.", handles[0])
		}
		return fmt.Sprintf("You know that %s are also evil.", strings.Join(handles, ", "))
	}
}
