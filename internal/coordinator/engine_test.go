package coordinator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aaronzipp/avalon-moderator/internal/decision"
	"github.com/aaronzipp/avalon-moderator/internal/game"
	"github.com/aaronzipp/avalon-moderator/internal/models"
	"github.com/aaronzipp/avalon-moderator/internal/projector"
)

var displayNames = []string{"Ann", "Bo", "Cy", "Di", "Ed", "Flo", "Gus"}

type sink struct {
	mu     sync.Mutex
	events []models.Event
}

func (s *sink) Publish(evt models.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
}

func (s *sink) ofType(t models.EventType) []models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Event
	for _, e := range s.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type recorder struct {
	mu      sync.Mutex
	summary *models.MatchSummary
}

func (r *recorder) RecordMatch(_ context.Context, s models.MatchSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summary = &s
	return nil
}

func roster(humanSeats ...int) []models.Shell {
	shells := make([]models.Shell, game.RosterSize)
	for i := range shells {
		shells[i] = models.Shell{
			ID:          fmt.Sprintf("u%d", i+1),
			DisplayName: displayNames[i],
			Seat:        i + 1,
			Kind:        models.KindAutomated,
		}
	}
	for _, s := range humanSeats {
		shells[s-1].Kind = models.KindHuman
	}
	return shells
}

func state(phase, next string, extra string) string {
	body := fmt.Sprintf(`{"phase":%q,"mission_round":1,"next_player":%q%s}`, phase, next, extra)
	return "```json\n" + body + "\n```\n"
}

func newEngine(t *testing.T, script *decision.Script, s *sink, mutate func(*Config)) *Engine {
	t.Helper()
	cfg := Config{
		Room:    "ROOM01",
		Roster:  roster(),
		Decider: script,
		Sink:    s,
		Rand:    rand.New(rand.NewSource(7)),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

func waitDone(t *testing.T, e *Engine) {
	t.Helper()
	select {
	case <-e.Done():
	case <-time.After(3 * time.Second):
		t.Fatalf("match did not finish")
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestMatchRunsToTermination(t *testing.T) {
	script := decision.NewScript().
		Say(models.ModeratorHandle,
			state("team_select", "player_1", `,"captain":"player_1","mission_success_count":0,"mission_fail_count":0,"reject_count":0`)+"player_1, pick two players.",
			state("voting", "player_2", `,"captain":"player_1","team_members":["player_1","player_2"]`)+"player_2, please vote.",
			state("game_over", "", `,"winner":"good","mission_success_count":3`)+"Good wins. "+game.TerminationToken,
		).
		Say("player_1", "I pick player_1 and player_2. I am Merlin.").
		Say("player_2", "approve")
	s := &sink{}
	rec := &recorder{}
	e := newEngine(t, script, s, func(c *Config) { c.Recorder = rec })

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, e)

	if got := s.ofType(models.EventMatchStarted); len(got) != 1 {
		t.Fatalf("match_started events = %d", len(got))
	}
	assigned := s.ofType(models.EventRoleAssigned)
	if len(assigned) != game.RosterSize {
		t.Fatalf("role_assigned events = %d", len(assigned))
	}
	for _, evt := range assigned {
		view := evt.Payload.(models.RoleView)
		if evt.Recipient == "" || evt.IsPublic() {
			t.Fatalf("role event for %s is public", view.DisplayName)
		}
		if strings.Contains(view.Knowledge, "player_") {
			t.Fatalf("knowledge leaks handles: %q", view.Knowledge)
		}
	}

	var contents []string
	for _, evt := range s.ofType(models.EventMessage) {
		p := evt.Payload.(models.MessagePayload)
		contents = append(contents, p.Source+": "+p.Content)
	}
	want := []string{
		"Host: Ann, pick two players.",
		"Ann: I pick Ann and Bo. I am ***.",
		"Host: Bo, please vote.",
		"Bo: " + projector.SubmissionPlaceholder,
		"Host: Good wins. " + game.TerminationToken,
	}
	if strings.Join(contents, "\n") != strings.Join(want, "\n") {
		t.Fatalf("messages:\n%s\nwant:\n%s", strings.Join(contents, "\n"), strings.Join(want, "\n"))
	}

	updates := s.ofType(models.EventStateUpdate)
	if len(updates) != 3 {
		t.Fatalf("state updates = %d", len(updates))
	}
	voting := updates[1].Payload.(models.StateUpdatePayload)
	if voting.Captain != "Ann" || voting.NextActor != "Bo" || strings.Join(voting.Team, ",") != "Ann,Bo" {
		t.Fatalf("voting update = %+v", voting)
	}

	ended := s.ofType(models.EventMatchEnded)
	if len(ended) != 1 {
		t.Fatalf("match_ended events = %d", len(ended))
	}
	end := ended[0].Payload.(models.MatchEndedPayload)
	if end.Outcome != models.OutcomeTerminated || end.WinningSide != models.TeamGood || len(end.Roles) != game.RosterSize {
		t.Fatalf("match_ended = %+v", end)
	}

	snap := e.Snapshot()
	if snap.Running || snap.Phase != models.PhaseGameOver || snap.Steps != 5 || snap.Tallies.Successes != 3 {
		t.Fatalf("snapshot = %+v", snap)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.summary == nil || rec.summary.Outcome != models.OutcomeTerminated || len(rec.summary.Events) == 0 {
		t.Fatalf("summary = %+v", rec.summary)
	}
	for _, evt := range rec.summary.Events {
		if evt.Type == models.EventRoleAssigned {
			t.Fatalf("archived log contains a private event")
		}
	}
}

func TestAutomatedSeatsSeeFilteredTranscript(t *testing.T) {
	script := decision.NewScript().
		Say(models.ModeratorHandle,
			state("speaking", "player_1", "")+"player_1 speaks.",
			state("voting", "player_2", "")+"player_2 votes.",
			state("voting", "player_3", "")+"player_3 votes.",
			game.TerminationToken,
		).
		Say("player_1", "I am the Assassin, honestly.").
		Say("player_2", "reject").
		Say("player_3", "approve")
	e := newEngine(t, script, &sink{}, nil)
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitDone(t, e)

	var seen []models.Message
	var host []models.Message
	for _, req := range script.Requests() {
		switch req.Actor {
		case "player_3":
			seen = req.Transcript
		case models.ModeratorHandle:
			host = req.Transcript
		}
	}
	if len(seen) == 0 {
		t.Fatalf("player_3 was never asked")
	}
	for _, m := range seen {
		if strings.Contains(strings.ToLower(m.Content), "assassin") {
			t.Fatalf("role name reached player_3: %q", m.Content)
		}
		if m.Source == "player_2" && strings.Contains(m.Content, "reject") {
			t.Fatalf("ballot reached player_3: %q", m.Content)
		}
	}
	var sawBallot bool
	for _, m := range host {
		if m.Source == "player_2" && strings.Contains(m.Content, "reject") {
			sawBallot = true
		}
	}
	if !sawBallot {
		t.Fatalf("moderator must see every ballot: %+v", host)
	}
}

func TestHumanTurnSuspendsAndResumes(t *testing.T) {
	script := decision.NewScript().
		Say(models.ModeratorHandle,
			state("speaking", "player_3", "")+"player_3, your thoughts?",
			"Thanks. "+game.TerminationToken,
		)
	s := &sink{}
	e := newEngine(t, script, s, func(c *Config) { c.Roster = roster(3) })
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "pending input", func() bool { return e.PendingInput("player_3") })
	if e.ProvideHumanInput("Ann", "not my turn") {
		t.Fatalf("automated seat accepted human input")
	}
	if !e.ProvideHumanInput("Cy", "") {
		t.Fatalf("acknowledgement rejected")
	}
	waitFor(t, "waiting_for_input", func() bool { return len(s.ofType(models.EventWaitingForInput)) == 1 })
	wait := s.ofType(models.EventWaitingForInput)[0].Payload.(models.WaitingForInputPayload)
	if wait.Player != "Cy" || wait.Prompt != "Cy, your thoughts?" {
		t.Fatalf("waiting payload = %+v", wait)
	}
	if !e.ProvideHumanInput("u3", "I trust Ann") {
		t.Fatalf("content rejected")
	}
	if e.ProvideHumanInput("u3", "again") {
		t.Fatalf("second delivery accepted")
	}
	waitDone(t, e)

	var found bool
	for _, evt := range s.ofType(models.EventMessage) {
		p := evt.Payload.(models.MessagePayload)
		if p.Source == "Cy" && p.Content == "I trust Ann" {
			found = true
		}
	}
	if !found {
		t.Fatalf("human message not broadcast")
	}
}

func TestProvideInputByIDOnlyMatchesRosterIDs(t *testing.T) {
	script := decision.NewScript().
		Say(models.ModeratorHandle,
			state("speaking", "player_3", "")+"player_3, your thoughts?",
			"Thanks. "+game.TerminationToken,
		)
	e := newEngine(t, script, &sink{}, func(c *Config) { c.Roster = roster(3) })
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "pending input", func() bool { return e.PendingInput("player_3") })

	for _, who := range []string{"Cy", "player_3", "u1"} {
		if e.ProvideInputByID(who, "hello from seat 3") {
			t.Fatalf("input accepted for %q", who)
		}
	}
	if !e.ProvideInputByID(" u3 ", "hello from seat 3") {
		t.Fatalf("input for u3 rejected")
	}
	waitDone(t, e)

	var got []models.Message
	for _, m := range script.Requests()[len(script.Requests())-1].Transcript {
		if m.Source == "player_3" {
			got = append(got, m)
		}
	}
	if len(got) != 1 || got[0].Content != "hello from seat 3" {
		t.Fatalf("seat 3 utterances = %+v", got)
	}
}

func TestStopWhileHumanPending(t *testing.T) {
	script := decision.NewScript().
		Say(models.ModeratorHandle, state("voting", "player_3", "")+"player_3, vote.")
	s := &sink{}
	e := newEngine(t, script, s, func(c *Config) { c.Roster = roster(3) })
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "pending input", func() bool { return e.PendingInput("player_3") })

	begin := time.Now()
	e.Stop()
	e.Stop()
	waitDone(t, e)
	if elapsed := time.Since(begin); elapsed > 500*time.Millisecond {
		t.Fatalf("stop took %v", elapsed)
	}
	if e.IsRunning() {
		t.Fatalf("match still running")
	}
	if e.ProvideHumanInput("Cy", "approve") {
		t.Fatalf("input accepted after stop")
	}
	ended := s.ofType(models.EventMatchEnded)
	if len(ended) != 1 || ended[0].Payload.(models.MatchEndedPayload).Outcome != models.OutcomeStopped {
		t.Fatalf("match_ended = %+v", ended)
	}
}

func TestParentContextStopsMatch(t *testing.T) {
	script := decision.NewScript().
		Say(models.ModeratorHandle, state("speaking", "player_3", "")+"player_3?")
	e := newEngine(t, script, &sink{}, func(c *Config) { c.Roster = roster(3) })
	ctx, cancel := context.WithCancel(context.Background())
	if err := e.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := e.Start(ctx); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second start err = %v", err)
	}
	waitFor(t, "pending input", func() bool { return e.PendingInput("Cy") })
	cancel()
	waitDone(t, e)
	if e.Snapshot().Outcome != models.OutcomeStopped {
		t.Fatalf("outcome = %q", e.Snapshot().Outcome)
	}
}

func TestHumanTimeoutUsesPlaceholder(t *testing.T) {
	script := decision.NewScript().
		Say(models.ModeratorHandle,
			state("speaking", "player_3", "")+"player_3?",
			"Moving on. "+game.TerminationToken,
		)
	e := newEngine(t, script, &sink{}, func(c *Config) {
		c.Roster = roster(3)
		c.HumanTimeout = 30 * time.Millisecond
	})
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitDone(t, e)

	reqs := script.Requests()
	last := reqs[len(reqs)-1]
	if last.Actor != models.ModeratorHandle {
		t.Fatalf("last request by %s", last.Actor)
	}
	var got string
	for _, m := range last.Transcript {
		if m.Source == "player_3" {
			got = m.Content
		}
	}
	if got != game.NoResponseText {
		t.Fatalf("human utterance = %q", got)
	}
	if e.Snapshot().Outcome != models.OutcomeTerminated {
		t.Fatalf("outcome = %q", e.Snapshot().Outcome)
	}
}

func TestStepBudgetExhaustion(t *testing.T) {
	script := decision.NewScript().
		Say(models.ModeratorHandle, "Hmm.", "Hmm.", "Hmm.", "Hmm.")
	s := &sink{}
	e := newEngine(t, script, s, func(c *Config) { c.MaxSteps = 3 })
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitDone(t, e)

	if len(s.ofType(models.EventError)) != 1 {
		t.Fatalf("expected one error event")
	}
	snap := e.Snapshot()
	if snap.Outcome != models.OutcomeExhausted || snap.Steps != 3 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if script.Remaining(models.ModeratorHandle) != 1 {
		t.Fatalf("moderator asked %d times", 4-script.Remaining(models.ModeratorHandle))
	}
}

func TestDecisionFailureSkipsTurn(t *testing.T) {
	script := decision.NewScript().
		Say(models.ModeratorHandle,
			state("speaking", "player_4", "")+"player_4?",
			"Fine. "+game.TerminationToken,
		)
	s := &sink{}
	e := newEngine(t, script, s, nil)
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitDone(t, e)

	errs := s.ofType(models.EventError)
	if len(errs) != 1 {
		t.Fatalf("error events = %d", len(errs))
	}
	if msg := errs[0].Payload.(models.ErrorPayload).Message; !strings.Contains(msg, "Di") || strings.Contains(msg, "player_4") {
		t.Fatalf("error message = %q", msg)
	}
	if e.Snapshot().Outcome != models.OutcomeTerminated {
		t.Fatalf("match did not continue after the failure")
	}
}

func TestDecisionRetry(t *testing.T) {
	var calls int
	var mu sync.Mutex
	d := decision.Func(func(_ context.Context, req decision.Request) (decision.Reply, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return decision.Reply{}, errors.New("transient")
		}
		return decision.Reply{Text: game.TerminationToken}, nil
	})
	e, err := New(Config{Roster: roster(), Decider: d, DecisionRetries: 1})
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitDone(t, e)
	if e.Snapshot().Outcome != models.OutcomeTerminated || calls != 2 {
		t.Fatalf("outcome %q after %d calls", e.Snapshot().Outcome, calls)
	}
}

func TestExplicitHandoffWins(t *testing.T) {
	script := decision.NewScript().
		Add(models.ModeratorHandle,
			decision.Reply{Text: state("speaking", "player_1", "") + "Go.", Handoff: "Flo"},
			decision.Reply{Text: game.TerminationToken},
		).
		Say("player_6", "Hello.")
	e := newEngine(t, script, &sink{}, nil)
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitDone(t, e)
	if script.Remaining("player_6") != 0 {
		t.Fatalf("handoff target never acted")
	}
}

func TestHandoffWithoutText(t *testing.T) {
	script := decision.NewScript().
		Add(models.ModeratorHandle,
			decision.Reply{Handoff: "player_2"},
			decision.Reply{Text: "Thanks. " + game.TerminationToken},
		).
		Say("player_2", "Hello.")
	s := &sink{}
	e := newEngine(t, script, s, nil)
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitDone(t, e)
	if script.Remaining("player_2") != 0 {
		t.Fatalf("handoff target never acted")
	}
	if n := len(s.ofType(models.EventError)); n != 0 {
		t.Fatalf("handoff-only reply reported %d errors", n)
	}
	for _, evt := range s.ofType(models.EventMessage) {
		if p := evt.Payload.(models.MessagePayload); p.Content == "" {
			t.Fatalf("empty message published: %+v", p)
		}
	}
}

func TestLowercaseTerminateIsNarration(t *testing.T) {
	script := decision.NewScript().
		Say(models.ModeratorHandle,
			"You may not terminate the vote early.",
			"Done. "+game.TerminationToken,
		)
	e := newEngine(t, script, &sink{}, nil)
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitDone(t, e)
	if script.Remaining(models.ModeratorHandle) != 0 {
		t.Fatalf("match ended on narration")
	}
	if e.Snapshot().Outcome != models.OutcomeTerminated {
		t.Fatalf("outcome = %q", e.Snapshot().Outcome)
	}
}

func TestRuleDivergenceIsRecordedNotEnforced(t *testing.T) {
	script := decision.NewScript().
		Say(models.ModeratorHandle,
			state("voting", "", `,"team_members":["player_1","player_2","player_3"]`)+"Vote.",
			game.TerminationToken,
		)
	e := newEngine(t, script, &sink{}, nil)
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitDone(t, e)
	if len(e.Divergences()) == 0 {
		t.Fatalf("oversized team not flagged")
	}
	if e.Snapshot().Outcome != models.OutcomeTerminated {
		t.Fatalf("divergence changed the flow")
	}
}

func TestNewRejectsBadRoster(t *testing.T) {
	tests := []struct {
		name   string
		roster []models.Shell
		want   error
	}{
		{"six players", roster()[:6], game.ErrInvalidRosterSize},
		{"name looks like a handle", func() []models.Shell {
			r := roster()
			r[0].DisplayName = "player_2"
			return r
		}(), projector.ErrIdentifierCollision},
		{"id is another seat's name", func() []models.Shell {
			r := roster(3)
			r[2].ID = "Ann"
			return r
		}(), game.ErrAmbiguousID},
		{"id is another seat's handle", func() []models.Shell {
			r := roster(3)
			r[2].ID = "player_1"
			return r
		}(), game.ErrAmbiguousID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(Config{Roster: tt.roster, Decider: decision.NewScript()})
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRoleInfo(t *testing.T) {
	e := newEngine(t, decision.NewScript(), &sink{}, nil)
	for _, sh := range roster() {
		view, ok := e.RoleInfo(sh.ID)
		if !ok {
			t.Fatalf("no view for %s", sh.ID)
		}
		p, _ := e.match.ByID(sh.ID)
		if view.Role != p.Role || view.DisplayName != sh.DisplayName || view.Team != p.Role.Team() {
			t.Fatalf("view = %+v", view)
		}
		if strings.Contains(view.Knowledge, "player_") {
			t.Fatalf("handles in knowledge: %q", view.Knowledge)
		}
	}
	if _, ok := e.RoleInfo("nobody"); ok {
		t.Fatalf("unknown id resolved")
	}
}

func TestPacingDelay(t *testing.T) {
	tests := []struct {
		content string
		want    time.Duration
	}{
		{"", 500 * time.Millisecond},
		{strings.Repeat("a", 40), 2 * time.Second},
		{strings.Repeat("a", 1000), 8 * time.Second},
	}
	for _, tt := range tests {
		if got := PacingDelay(tt.content); got != tt.want {
			t.Fatalf("PacingDelay(%d chars) = %v, want %v", len(tt.content), got, tt.want)
		}
	}
}
