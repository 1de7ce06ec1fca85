package models

// Kind distinguishes automated seats from remote humans
type Kind string

const (
	KindAutomated Kind = "automated"
	KindHuman     Kind = "human"
)

// Team is the side a role plays for
type Team string

const (
	TeamGood Team = "good"
	TeamEvil Team = "evil"
)

// Role is one of the six fixed role kinds of the 7-seat match
type Role string

const (
	RoleMerlin   Role = "Merlin"        // knows all evil (except Oberon)
	RolePercival Role = "Percival"      // sees Merlin and Morgana, not which is which
	RoleServant  Role = "Loyal Servant" // plain good, appears twice
	RoleAssassin Role = "Assassin"
	RoleMorgana  Role = "Morgana" // impersonates Merlin
	RoleOberon   Role = "Oberon"  // evil, unaware of and unknown to the other evil roles
)

// AllRoles lists the six role kinds in a stable order
var AllRoles = []Role{RoleMerlin, RolePercival, RoleServant, RoleAssassin, RoleMorgana, RoleOberon}

// Team returns the side the role belongs to
func (r Role) Team() Team {
	switch r {
	case RoleAssassin, RoleMorgana, RoleOberon:
		return TeamEvil
	default:
		return TeamGood
	}
}

// Reason explains why a participant appears in another's knowledge set
type Reason string

const (
	ReasonEvil            Reason = "evil"             // Merlin's view of the evil side
	ReasonMerlinCandidate Reason = "merlin_candidate" // Percival's ambiguous pair
	ReasonEvilAlly        Reason = "evil_ally"        // evil roles recognising each other
)

// Knowledge is one entry of a participant's knowledge set
type Knowledge struct {
	Handle string
	Reason Reason
}

// Shell is what the roster provider hands over before a match starts
type Shell struct {
	ID          string `json:"id"`
	DisplayName string `json:"name"`
	Seat        int    `json:"seat"`
	Kind        Kind   `json:"kind"`
}

// Participant is one of the seven seats of a match. Everything except
// DisplayName is fixed once the assignor has run.
type Participant struct {
	ID          string // roster/account id used by the transport
	Handle      string // stable internal identifier, never shown to observers
	DisplayName string
	Seat        int
	Kind        Kind
	Role        Role
	Persona     string // automated seats only
	Knowledge   []Knowledge
}

// IsHuman reports whether the seat is played by a remote human
func (p *Participant) IsHuman() bool {
	return p.Kind == KindHuman
}

// RoleView is what a single participant is allowed to learn about itself
type RoleView struct {
	DisplayName string `json:"display_name"`
	Seat        int    `json:"seat"`
	Role        Role   `json:"role"`
	Team        Team   `json:"team"`
	Knowledge   string `json:"knowledge"`
	Notes       string `json:"notes"`
	Persona     string `json:"persona,omitempty"`
}
