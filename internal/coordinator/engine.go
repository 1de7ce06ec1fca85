// Package coordinator runs one match: it hands the turn to exactly one
// seat at a time, follows the moderator's declared state, filters what
// each seat sees and publishes display-safe events for observers.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/aaronzipp/avalon-moderator/internal/bridge"
	"github.com/aaronzipp/avalon-moderator/internal/decision"
	"github.com/aaronzipp/avalon-moderator/internal/game"
	"github.com/aaronzipp/avalon-moderator/internal/models"
	"github.com/aaronzipp/avalon-moderator/internal/projector"
)

// ErrAlreadyStarted is returned by Start on an engine that already ran
var ErrAlreadyStarted = errors.New("match already started")

// Sink receives every event the engine publishes
type Sink interface {
	Publish(evt models.Event)
}

// SinkFunc adapts a function to Sink
type SinkFunc func(evt models.Event)

func (f SinkFunc) Publish(evt models.Event) {
	f(evt)
}

// Recorder stores the summary of a finished match
type Recorder interface {
	RecordMatch(ctx context.Context, summary models.MatchSummary) error
}

// Config wires one match. Zero MaxSteps, HumanTimeout and DecisionTimeout
// fall back to the game defaults; SettleDelay and DecisionRetries are
// taken as given.
type Config struct {
	Room     string
	Roster   []models.Shell
	Decider  decision.Decider
	Catalog  *game.Catalog
	Sink     Sink
	Recorder Recorder
	Logger   *zap.Logger
	Tracer   trace.Tracer
	Rand     *rand.Rand

	MaxSteps        int
	HumanTimeout    time.Duration
	SettleDelay     time.Duration
	DecisionTimeout time.Duration
	DecisionRetries int
	Pacing          bool
}

// Engine is the turn coordinator of one match
type Engine struct {
	cfg       Config
	match     *models.Match
	names     *projector.DisplayMap
	proj      *projector.Projector
	bridge    *bridge.Bridge
	validator game.Validator
	logger    *zap.Logger
	tracer    trace.Tracer

	instructions map[string]string
	// transcript is owned by the loop goroutine
	transcript []models.Message

	eventsMu sync.Mutex
	events   []models.Event

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

// New assigns roles and prepares a match without starting it. Roster and
// naming problems are reported here, before any match state exists.
func New(cfg Config) (*Engine, error) {
	if cfg.Decider == nil {
		return nil, errors.New("coordinator: decider is required")
	}
	if cfg.Catalog == nil {
		cat, err := game.LoadCatalog()
		if err != nil {
			return nil, err
		}
		cfg.Catalog = cat
	}
	if cfg.Rand == nil {
		cfg.Rand = game.NewRand()
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = game.MaxSteps
	}
	if cfg.HumanTimeout <= 0 {
		cfg.HumanTimeout = game.HumanInputTimeout
	}
	if cfg.DecisionTimeout <= 0 {
		cfg.DecisionTimeout = game.DecisionTimeout
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}
	if cfg.DecisionRetries < 0 {
		cfg.DecisionRetries = 0
	}
	if cfg.Sink == nil {
		cfg.Sink = SinkFunc(func(models.Event) {})
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer("github.com/aaronzipp/avalon-moderator/internal/coordinator")
	}

	participants, err := game.NewAssignor(cfg.Rand, cfg.Catalog.Personas).Assign(cfg.Roster)
	if err != nil {
		return nil, err
	}
	names, err := projector.NewDisplayMap(participants)
	if err != nil {
		return nil, err
	}

	match := models.NewMatch(uuid.NewString(), cfg.Room, participants)
	logger := cfg.Logger.With(zap.String("match_id", match.ID), zap.String("room", cfg.Room))

	e := &Engine{
		cfg:          cfg,
		match:        match,
		names:        names,
		proj:         projector.New(names),
		logger:       logger,
		tracer:       cfg.Tracer,
		instructions: make(map[string]string, len(participants)+1),
		done:         make(chan struct{}),
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.bridge = bridge.New(
		bridge.WithSettleDelay(cfg.SettleDelay),
		bridge.WithNotifier(e.notifyWaiting),
		bridge.WithLogger(logger),
	)

	e.instructions[models.ModeratorHandle] = decision.ModeratorInstructions(cfg.Catalog, participants)
	for _, p := range participants {
		if !p.IsHuman() {
			e.instructions[p.Handle] = decision.PlayerInstructions(cfg.Catalog, p, participants)
		}
	}
	return e, nil
}

// Start builds an engine and starts its loop
func Start(ctx context.Context, cfg Config) (*Engine, error) {
	e, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if err := e.Start(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// Start runs the loop in its own goroutine. Cancelling ctx stops the match.
func (e *Engine) Start(ctx context.Context) error {
	err := ErrAlreadyStarted
	e.startOnce.Do(func() {
		err = nil
		e.match.Lock()
		e.match.Running = e.ctx.Err() == nil
		e.match.StartedAt = time.Now()
		e.match.Unlock()
		context.AfterFunc(ctx, e.Stop)
		go e.run()
	})
	return err
}

// Stop cancels the match: it marks it non-running and resolves every
// pending human input as cancelled. Stopping twice is a no-op.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.match.Lock()
		e.match.Running = false
		e.match.Unlock()
		e.bridge.CancelAll()
		e.cancel()
		e.logger.Info("match stop requested")
	})
}

// Done is closed once the loop has exited
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// ID returns the match ID
func (e *Engine) ID() string {
	return e.match.ID
}

// Room returns the room code the match was started for
func (e *Engine) Room() string {
	return e.match.Room
}

// IsRunning reports whether the loop is still active
func (e *Engine) IsRunning() bool {
	return e.match.IsRunning()
}

// ProvideHumanInput delivers input for a human seat, named by display
// name, handle or roster ID. Blank text only acknowledges the turn.
// It reports false when nobody by that name is waiting.
func (e *Engine) ProvideHumanInput(who, text string) bool {
	p, ok := e.match.Resolve(strings.TrimSpace(who))
	return ok && e.provide(p, text)
}

// ProvideInputByID delivers input for the human seat with roster ID id.
// Transports use it so a caller is never matched by name or handle.
func (e *Engine) ProvideInputByID(id, text string) bool {
	p, ok := e.match.ByID(strings.TrimSpace(id))
	return ok && e.provide(p, text)
}

func (e *Engine) provide(p *models.Participant, text string) bool {
	if !p.IsHuman() {
		return false
	}
	return e.bridge.Provide(p.Handle, text)
}

// RoleInfo returns what the participant with roster ID id knows about
// itself, with every handle rewritten to a display name
func (e *Engine) RoleInfo(id string) (models.RoleView, bool) {
	p, ok := e.match.ByID(id)
	if !ok {
		return models.RoleView{}, false
	}
	return e.roleView(p), true
}

func (e *Engine) roleView(p *models.Participant) models.RoleView {
	return models.RoleView{
		DisplayName: p.DisplayName,
		Seat:        p.Seat,
		Role:        p.Role,
		Team:        p.Role.Team(),
		Knowledge:   e.names.Rewrite(game.KnowledgeText(p)),
		Notes:       e.cfg.Catalog.Notes(p.Role),
		Persona:     p.Persona,
	}
}

// Snapshot is the display-safe state of a match
type Snapshot struct {
	MatchID   string         `json:"match_id"`
	Room      string         `json:"room"`
	Phase     models.Phase   `json:"phase"`
	Round     int            `json:"round"`
	Tallies   models.Tallies `json:"tallies"`
	Captain   string         `json:"captain,omitempty"`
	Team      []string       `json:"team,omitempty"`
	NextActor string         `json:"next_actor,omitempty"`
	Running   bool           `json:"running"`
	Steps     int            `json:"steps"`
	Outcome   models.Outcome `json:"outcome,omitempty"`
	Winner    models.Team    `json:"winner,omitempty"`
}

func (e *Engine) Snapshot() Snapshot {
	m := e.match
	m.RLock()
	defer m.RUnlock()
	team := make([]string, len(m.Team))
	for i, h := range m.Team {
		team[i] = e.names.Rewrite(h)
	}
	return Snapshot{
		MatchID:   m.ID,
		Room:      m.Room,
		Phase:     m.Phase,
		Round:     m.Round,
		Tallies:   m.Tallies,
		Captain:   e.names.Rewrite(m.Captain),
		Team:      team,
		NextActor: e.names.Rewrite(m.NextActor),
		Running:   m.Running,
		Steps:     m.Steps,
		Outcome:   m.Outcome,
		Winner:    m.Winner,
	}
}

// Divergences returns the rule validator findings recorded so far
func (e *Engine) Divergences() []string {
	e.match.RLock()
	defer e.match.RUnlock()
	out := make([]string, len(e.match.Divergences))
	copy(out, e.match.Divergences)
	return out
}

// PendingInput reports whether the seat named by who is waiting on a human
func (e *Engine) PendingInput(who string) bool {
	p, ok := e.match.Resolve(who)
	return ok && e.bridge.Pending(p.Handle)
}

// Events returns the public events published so far
func (e *Engine) Events() []models.Event {
	e.eventsMu.Lock()
	defer e.eventsMu.Unlock()
	out := make([]models.Event, len(e.events))
	copy(out, e.events)
	return out
}

func (e *Engine) publish(t models.EventType, recipient string, payload any) {
	evt := models.Event{
		Type:      t,
		MatchID:   e.match.ID,
		Recipient: recipient,
		Payload:   payload,
		At:        time.Now(),
	}
	if evt.IsPublic() {
		e.eventsMu.Lock()
		e.events = append(e.events, evt)
		e.eventsMu.Unlock()
	}
	e.cfg.Sink.Publish(evt)
}

func (e *Engine) publishError(format string, args ...any) {
	e.publish(models.EventError, "", models.ErrorPayload{Message: fmt.Sprintf(format, args...)})
}

func (e *Engine) notifyWaiting(handle, prompt string) {
	name, _ := e.names.Display(handle)
	e.publish(models.EventWaitingForInput, "", models.WaitingForInputPayload{Player: name, Prompt: prompt})
}
