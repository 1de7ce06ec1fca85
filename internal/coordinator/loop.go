package coordinator

import (
	"context"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/aaronzipp/avalon-moderator/internal/bridge"
	"github.com/aaronzipp/avalon-moderator/internal/decision"
	"github.com/aaronzipp/avalon-moderator/internal/game"
	"github.com/aaronzipp/avalon-moderator/internal/models"
	"github.com/aaronzipp/avalon-moderator/internal/projector"
	"github.com/aaronzipp/avalon-moderator/internal/render"
	"github.com/aaronzipp/avalon-moderator/internal/visibility"
)

const openingText = "The game begins. Choose the first captain and announce round 1."

var terminationPattern = regexp.MustCompile(`\b` + regexp.QuoteMeta(game.TerminationToken) + `\b`)

func (e *Engine) run() {
	defer close(e.done)
	e.logger.Info("match started", zap.Int("players", len(e.match.Participants)))
	e.announce()
	e.transcript = append(e.transcript, models.Message{
		Source:  models.SystemHandle,
		Content: openingText,
		Phase:   e.phase(),
		At:      time.Now(),
	})

	active := models.ModeratorHandle
	for {
		if e.ctx.Err() != nil {
			e.finish(models.OutcomeStopped)
			return
		}
		steps, ok := e.takeStep()
		if !ok {
			e.logger.Warn("step budget exhausted", zap.Int("max_steps", e.cfg.MaxSteps))
			e.publishError("The match was stopped after %d turns without finishing.", e.cfg.MaxSteps)
			e.finish(models.OutcomeExhausted)
			return
		}
		next, terminated := e.step(active, steps)
		if terminated {
			e.finish(models.OutcomeTerminated)
			return
		}
		active = next
	}
}

func (e *Engine) announce() {
	e.publish(models.EventMatchStarted, "", models.MatchStartedPayload{Players: render.PublicRoster(e.match.Participants)})
	for _, p := range e.match.Participants {
		e.publish(models.EventRoleAssigned, p.ID, e.roleView(p))
	}
}

// step gives the turn to actor and returns who acts next
func (e *Engine) step(actor string, n int) (string, bool) {
	phase := e.phase()
	ctx, span := e.tracer.Start(e.ctx, "coordinator.turn")
	defer span.End()
	span.SetAttributes(
		attribute.String("match.id", e.match.ID),
		attribute.String("turn.actor", actor),
		attribute.String("turn.phase", string(phase)),
		attribute.Int("turn.step", n),
	)
	e.logger.Debug("turn", zap.Int("step", n), zap.String("actor", actor), zap.String("phase", string(phase)))

	if actor == models.ModeratorHandle {
		return e.moderatorTurn(ctx, phase, span)
	}
	p, ok := e.match.ByHandle(actor)
	if !ok {
		return models.ModeratorHandle, false
	}

	var text string
	if p.IsHuman() {
		res, err := e.bridge.Await(ctx, p.Handle, e.lastModeratorText(), phase, e.cfg.HumanTimeout)
		if err != nil {
			span.RecordError(err)
			e.logger.Warn("human input unavailable", zap.String("player", p.Handle), zap.Error(err))
			return models.ModeratorHandle, false
		}
		span.SetAttributes(attribute.String("turn.human_outcome", res.Outcome.String()))
		if res.Outcome == bridge.Cancelled {
			return models.ModeratorHandle, false
		}
		text = res.Text
	} else {
		reply, err := e.decide(ctx, p.Handle, phase)
		if err != nil {
			if e.ctx.Err() != nil {
				return models.ModeratorHandle, false
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, "decision failed")
			e.logger.Warn("decision failed, turn skipped", zap.String("player", p.Handle), zap.Error(err))
			e.publishError("%s could not act; the turn was skipped.", p.DisplayName)
			return models.ModeratorHandle, false
		}
		if reply.Text == "" {
			e.logger.Debug("turn passed without an utterance", zap.String("player", p.Handle))
			return models.ModeratorHandle, false
		}
		text = reply.Text
		if phase.IsSecretBallot() && !visibility.IsVoteDeclaration(text) {
			text = visibility.VoteDeclaration(text)
		}
	}

	msg := models.Message{Source: p.Handle, Content: text, Phase: phase, At: time.Now()}
	e.transcript = append(e.transcript, msg)
	e.logger.Debug("utterance", zap.String("player", p.Handle), zap.String("content", text))
	payload := e.proj.Participant(msg, phase)
	e.publish(models.EventMessage, "", payload)
	e.pace(payload.Content)
	return models.ModeratorHandle, false
}

func (e *Engine) moderatorTurn(ctx context.Context, phase models.Phase, span trace.Span) (string, bool) {
	reply, err := e.decide(ctx, models.ModeratorHandle, phase)
	if err != nil {
		if e.ctx.Err() != nil {
			return models.ModeratorHandle, false
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "decision failed")
		e.logger.Warn("moderator decision failed, step skipped", zap.Error(err))
		e.publishError("The host could not respond; retrying.")
		return models.ModeratorHandle, false
	}
	if reply.Text == "" {
		return e.nextActor(reply.Handoff, projector.Projection{}), false
	}

	e.transcript = append(e.transcript, models.Message{
		Source:  models.ModeratorHandle,
		Content: reply.Text,
		Phase:   phase,
		At:      time.Now(),
	})
	e.logger.Debug("moderator", zap.String("content", reply.Text))

	proj := e.proj.Moderator(reply.Text)
	if proj.HasState {
		e.applyState(proj.State)
		e.publish(models.EventStateUpdate, "", *proj.Update)
	} else if strings.Contains(reply.Text, "```") {
		e.logger.Warn("moderator state block could not be parsed")
	}
	if proj.Message.Content != "" {
		e.publish(models.EventMessage, "", proj.Message)
		e.pace(proj.Message.Content)
	}

	if terminationPattern.MatchString(reply.Text) {
		return "", true
	}
	return e.nextActor(reply.Handoff, proj), false
}

// nextActor prefers an explicit handoff, then the declared next player.
// Anything unresolvable keeps the turn with the moderator.
func (e *Engine) nextActor(handoff string, proj projector.Projection) string {
	for _, who := range []string{handoff, proj.State.NextPlayer} {
		who = strings.TrimSpace(who)
		if who == "" || who == models.ModeratorHandle {
			continue
		}
		if p, ok := e.match.Resolve(who); ok {
			e.match.Lock()
			e.match.NextActor = p.Handle
			e.match.Unlock()
			return p.Handle
		}
		e.logger.Warn("unknown next player", zap.String("next", who))
	}
	return models.ModeratorHandle
}

// decide asks the decision capability, retrying per config
func (e *Engine) decide(ctx context.Context, actor string, phase models.Phase) (decision.Reply, error) {
	handoffs := []string{models.ModeratorHandle}
	if actor == models.ModeratorHandle {
		handoffs = e.match.Handles()
	}
	req := decision.Request{
		Actor:        actor,
		Instructions: e.instructions[actor],
		Transcript:   visibility.Filter(e.transcript, actor, phase),
		Handoffs:     handoffs,
	}

	var lastErr error
	for attempt := 0; attempt <= e.cfg.DecisionRetries; attempt++ {
		dctx, cancel := context.WithTimeout(ctx, e.cfg.DecisionTimeout)
		reply, err := e.cfg.Decider.Decide(dctx, req)
		cancel()
		if err == nil && strings.TrimSpace(reply.Text) == "" && reply.Handoff == "" {
			err = decision.ErrEmptyReply
		}
		if err == nil {
			reply.Text = strings.TrimSpace(reply.Text)
			return reply, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		e.logger.Debug("decision attempt failed", zap.String("actor", actor), zap.Int("attempt", attempt+1), zap.Error(err))
	}
	return decision.Reply{}, lastErr
}

// applyState folds a moderator claim into the match. Only keys present in
// the block are applied, and game_over never reverts.
func (e *Engine) applyState(st projector.State) {
	has := func(keys ...string) bool {
		for _, k := range keys {
			if _, ok := st.Raw[k]; ok {
				return true
			}
		}
		return false
	}

	m := e.match
	m.Lock()
	if st.PhaseRaw != "" && st.Phase == "" {
		e.logger.Warn("moderator declared an unknown phase", zap.String("phase", st.PhaseRaw))
	}
	if st.Phase != "" && m.Phase != models.PhaseGameOver {
		m.Phase = st.Phase
	}
	if has("mission_round", "round") && st.Round > 0 {
		m.Round = st.Round
	}
	if has("mission_success_count") {
		m.Tallies.Successes = st.Tallies.Successes
	}
	if has("mission_fail_count") {
		m.Tallies.Failures = st.Tallies.Failures
	}
	if has("reject_count") {
		m.Tallies.Rejects = st.Tallies.Rejects
	}
	if has("captain") {
		m.Captain = e.handleOf(st.Captain)
	}
	if has("team_members", "team") {
		team := make([]string, len(st.Team))
		for i, who := range st.Team {
			team[i] = e.handleOf(who)
		}
		m.Team = team
	}
	if st.Winner != "" {
		m.Winner = st.Winner
	}
	claim := game.Claim{Phase: st.Phase, Round: m.Round, TeamSize: len(m.Team), Tallies: m.Tallies}
	if claim.Phase == "" {
		claim.Phase = m.Phase
	}
	divergences := e.validator.Check(claim)
	m.Divergences = append(m.Divergences, divergences...)
	m.Unlock()

	for _, d := range divergences {
		e.logger.Warn("moderator claim diverges from the rules", zap.String("divergence", d))
	}
}

func (e *Engine) handleOf(who string) string {
	if p, ok := e.match.Resolve(strings.TrimSpace(who)); ok {
		return p.Handle
	}
	return who
}

func (e *Engine) finish(outcome models.Outcome) {
	m := e.match
	m.Lock()
	m.Running = false
	m.Outcome = outcome
	m.EndedAt = time.Now()
	if m.Winner == "" && outcome == models.OutcomeTerminated {
		m.Winner = game.WinnerFromTallies(m.Tallies)
	}
	roles := make(map[string]models.Role, len(m.Participants))
	for _, p := range m.Participants {
		roles[p.DisplayName] = p.Role
	}
	winner := m.Winner
	m.Unlock()

	e.bridge.CancelAll()
	e.publish(models.EventMatchEnded, "", models.MatchEndedPayload{
		WinningSide: winner,
		Outcome:     outcome,
		Roles:       roles,
	})
	e.logger.Info("match ended", zap.String("outcome", string(outcome)), zap.String("winner", string(winner)))
	e.record()
}

func (e *Engine) record() {
	if e.cfg.Recorder == nil {
		return
	}
	m := e.match
	m.RLock()
	summary := models.MatchSummary{
		MatchID:     m.ID,
		Room:        m.Room,
		Outcome:     m.Outcome,
		Winner:      m.Winner,
		Steps:       m.Steps,
		StartedAt:   m.StartedAt,
		EndedAt:     m.EndedAt,
		Divergences: append([]string(nil), m.Divergences...),
	}
	m.RUnlock()
	summary.Events = e.Events()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.cfg.Recorder.RecordMatch(ctx, summary); err != nil {
		e.logger.Warn("archive match", zap.Error(err))
	}
}

func (e *Engine) pace(content string) {
	if !e.cfg.Pacing {
		return
	}
	t := time.NewTimer(PacingDelay(content))
	defer t.Stop()
	select {
	case <-t.C:
	case <-e.ctx.Done():
	}
}

// PacingDelay is the pause after a broadcast, proportional to its length
func PacingDelay(content string) time.Duration {
	d := time.Duration(len(content)) * time.Second / 20
	return min(max(d, 500*time.Millisecond), 8*time.Second)
}

func (e *Engine) phase() models.Phase {
	e.match.RLock()
	defer e.match.RUnlock()
	return e.match.Phase
}

// takeStep counts one more turn unless the budget is spent
func (e *Engine) takeStep() (int, bool) {
	e.match.Lock()
	defer e.match.Unlock()
	if e.match.Steps >= e.cfg.MaxSteps {
		return e.match.Steps, false
	}
	e.match.Steps++
	return e.match.Steps, true
}

func (e *Engine) lastModeratorText() string {
	for i := len(e.transcript) - 1; i >= 0; i-- {
		if e.transcript[i].FromModerator() {
			_, rest, _ := projector.Extract(e.transcript[i].Content)
			return e.names.Rewrite(rest)
		}
	}
	return ""
}
