// Package projector turns raw transcript entries into what observers are
// allowed to see: structured state pulled out of moderator replies,
// internal handles swapped for display names, and ballots masked.
package projector

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/aaronzipp/avalon-moderator/internal/models"
)

var stateBlock = regexp.MustCompile("(?s)```(?:json)?[ \\t]*\\n?(.*?)\\n?```")

// State is the structured block a moderator embeds in its reply
type State struct {
	Phase      models.Phase
	PhaseRaw   string
	Round      int
	Captain    string
	Team       []string
	Tallies    models.Tallies
	NextPlayer string
	Winner     models.Team
	Raw        map[string]any
}

// Extract pulls the first fenced state block out of text. It returns the
// state, the remaining text with the block removed, and whether a valid
// block was found. A block that is not a JSON object leaves text untouched.
func Extract(text string) (State, string, bool) {
	loc := stateBlock.FindStringSubmatchIndex(text)
	if loc == nil {
		return State{}, text, false
	}
	body := strings.TrimSpace(text[loc[2]:loc[3]])
	if !gjson.Valid(body) {
		return State{}, text, false
	}
	res := gjson.Parse(body)
	if !res.IsObject() {
		return State{}, text, false
	}

	st := State{
		PhaseRaw:   strings.TrimSpace(res.Get("phase").String()),
		Round:      int(firstOf(res, "mission_round", "round").Int()),
		Captain:    strings.TrimSpace(res.Get("captain").String()),
		NextPlayer: strings.TrimSpace(firstOf(res, "next_player", "next_actor").String()),
		Tallies: models.Tallies{
			Successes: int(res.Get("mission_success_count").Int()),
			Failures:  int(res.Get("mission_fail_count").Int()),
			Rejects:   int(res.Get("reject_count").Int()),
		},
	}
	st.Phase, _ = models.ParsePhase(strings.ToLower(st.PhaseRaw))
	for _, m := range firstOf(res, "team_members", "team").Array() {
		if name := strings.TrimSpace(m.String()); name != "" {
			st.Team = append(st.Team, name)
		}
	}
	switch strings.ToLower(strings.TrimSpace(res.Get("winner").String())) {
	case string(models.TeamGood):
		st.Winner = models.TeamGood
	case string(models.TeamEvil):
		st.Winner = models.TeamEvil
	}
	if raw, ok := res.Value().(map[string]any); ok {
		st.Raw = raw
	}

	before := strings.TrimSpace(text[:loc[0]])
	after := strings.TrimSpace(text[loc[1]:])
	rest := strings.TrimSpace(before + "\n" + after)
	return st, rest, true
}

func firstOf(res gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if v := res.Get(k); v.Exists() {
			return v
		}
	}
	return gjson.Result{}
}
