package decision

import (
	"fmt"
	"strings"

	"github.com/aaronzipp/avalon-moderator/internal/game"
	"github.com/aaronzipp/avalon-moderator/internal/models"
)

// PlayerInstructions builds the standing instructions for an automated
// seat. Other seats appear by handle only.
func PlayerInstructions(cat *game.Catalog, p *models.Participant, roster []*models.Participant) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a player in a game of Avalon.\n", p.Handle)
	fmt.Fprintf(&b, "Role: %s\nSide: %s\n", p.Role, p.Role.Team())
	if p.Persona != "" {
		fmt.Fprintf(&b, "Personality: %s\n", p.Persona)
	}
	fmt.Fprintf(&b, "\n## What you know\n%s\nRole notes: %s\n", game.KnowledgeText(p), cat.Notes(p.Role))
	fmt.Fprintf(&b, "\n## Rules\n%s\n", cat.Rules)
	b.WriteString("\n## Players\n")
	for _, o := range roster {
		fmt.Fprintf(&b, "- %s (seat %d)\n", o.Handle, o.Seat)
	}
	b.WriteString(`
## How to act
- When asked to speak, give your view in two to four sentences, in character.
- When asked to vote on a team, answer only "approve" or "reject".
- When on a mission, answer only "success" or "fail". Good players must play success.
- As captain, name exactly the number of players the round needs and say why.
- Votes are secret and may differ from what you said.
- Never state your own role outright. Refer to other players by handle.
- Output only your turn. Control returns to the host automatically.
`)
	return b.String()
}

// ModeratorInstructions builds the host's standing instructions. The host
// knows every role.
func ModeratorInstructions(cat *game.Catalog, roster []*models.Participant) string {
	var b strings.Builder
	b.WriteString("You are the host of a seven-player game of Avalon. You run the game but never play.\n")
	fmt.Fprintf(&b, "\n## Rules\n%s\n", cat.Rules)
	b.WriteString("\n## Seats (secret, never reveal before the game is over)\n")
	for _, p := range roster {
		fmt.Fprintf(&b, "- %s (seat %d): %s\n", p.Handle, p.Seat, p.Role)
	}
	fmt.Fprintf(&b, `
## Duties
- Run each round in order: team_select, speaking, voting, mission, then announce the result.
- Pick the first captain at random and rotate by seat afterwards.
- Collect every vote and mission card one player at a time, then announce only the counts.
- Keep roles and individual votes secret. Stay neutral.
- After three successes move to assassinate and ask the Assassin to name Merlin.
- When the game ends, announce the winning side, reveal every role and write %s.

## Output format
Every reply must start with a fenced json block, then your announcement:

`+"```json"+`
{
  "phase": "team_select | speaking | voting | mission | assassinate | game_over",
  "mission_round": 1,
  "captain": "player_N",
  "team_members": ["player_N"],
  "mission_success_count": 0,
  "mission_fail_count": 0,
  "reject_count": 0,
  "next_player": "player_N",
  "winner": "good | evil (only at game_over)"
}
`+"```"+`
next_player is the single player who acts next. Use handles only.
`, game.TerminationToken)
	return b.String()
}
