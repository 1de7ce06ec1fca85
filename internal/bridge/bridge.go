// Package bridge turns "it is this human's turn" into an awaitable value fed
// by an external, unreliable delivery channel.
//
// Each pending input is a pair of one-shot signals: ready fires when the
// client acknowledges it is listening, content carries the reply. The first
// resolution wins; every later attempt is rejected.
package bridge

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aaronzipp/avalon-moderator/internal/game"
	"github.com/aaronzipp/avalon-moderator/internal/models"
	"github.com/aaronzipp/avalon-moderator/internal/visibility"
)

// ErrAlreadyPending is returned when a participant already has an outstanding request
var ErrAlreadyPending = errors.New("input already pending")

// Outcome tells how a pending input was resolved
type Outcome int

const (
	Delivered Outcome = iota
	TimedOut
	Cancelled
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case TimedOut:
		return "timed_out"
	default:
		return "cancelled"
	}
}

// Result is the value a pending input resolves to
type Result struct {
	Text    string
	Outcome Outcome
}

// Notifier is told when a human has acknowledged and the prompt should be shown
type Notifier func(handle, prompt string)

// PendingInput tracks one outstanding request for a human's next utterance
type PendingInput struct {
	Handle    string
	CreatedAt time.Time
	Deadline  time.Time

	ready      chan struct{}
	readyFired bool
	content    chan Result
	resolved   bool
}

func (p *PendingInput) fireReady() {
	if !p.readyFired {
		p.readyFired = true
		close(p.ready)
	}
}

// Option customizes Bridge construction.
type Option func(*Bridge)

// WithSettleDelay overrides the pause between the handshake and the prompt.
func WithSettleDelay(d time.Duration) Option {
	return func(b *Bridge) {
		if d >= 0 {
			b.settle = d
		}
	}
}

// WithNotifier installs the waiting-for-input callback.
func WithNotifier(n Notifier) Option {
	return func(b *Bridge) {
		b.notify = n
	}
}

// WithLogger injects a logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.log = l
		}
	}
}

// Bridge owns the per-match pending input table
type Bridge struct {
	mu      sync.Mutex
	pending map[string]*PendingInput
	closed  bool
	settle  time.Duration
	notify  Notifier
	log     *zap.Logger
}

// New constructs a bridge with the default settle delay.
func New(opts ...Option) *Bridge {
	b := &Bridge{
		pending: map[string]*PendingInput{},
		settle:  game.HumanSettleDelay,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Await blocks until the human behind handle replies, the timeout elapses,
// ctx is done or the bridge is cancelled. A timeout yields the no-response
// placeholder; it is not an error. Ballots given during voting or mission
// phases come back wrapped in the vote marker.
func (b *Bridge) Await(ctx context.Context, handle, prompt string, phase models.Phase, timeout time.Duration) (Result, error) {
	if timeout <= 0 {
		timeout = game.HumanInputTimeout
	}
	p, err := b.register(handle, timeout)
	if err != nil {
		return Result{}, err
	}
	if p == nil {
		return Result{Outcome: Cancelled}, nil
	}
	defer b.remove(p)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.ready:
	case r := <-p.content:
		return b.finish(p, r, phase), nil
	case <-timer.C:
		return b.expire(p, phase), nil
	case <-ctx.Done():
		return b.abort(p, phase), nil
	}

	b.log.Debug("human acknowledged", zap.String("player", handle))
	if b.notify != nil {
		b.notify(handle, prompt)
	}

	if b.settle > 0 {
		settle := time.NewTimer(b.settle)
		select {
		case <-settle.C:
		case r := <-p.content:
			settle.Stop()
			return b.finish(p, r, phase), nil
		case <-ctx.Done():
			settle.Stop()
			return b.abort(p, phase), nil
		}
	}

	select {
	case r := <-p.content:
		return b.finish(p, r, phase), nil
	case <-timer.C:
		return b.expire(p, phase), nil
	case <-ctx.Done():
		return b.abort(p, phase), nil
	}
}

// Provide resolves the pending input of handle. Empty text is the ready
// acknowledgement; anything else is the content and implies readiness.
// It reports false when nothing is pending or the input was already resolved.
func (b *Bridge) Provide(handle, text string) bool {
	if strings.TrimSpace(text) == "" {
		return b.Acknowledge(handle)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.pending[handle]
	if !ok || p.resolved {
		return false
	}
	p.resolved = true
	p.content <- Result{Text: text, Outcome: Delivered}
	p.fireReady()
	return true
}

// Acknowledge fires the ready signal of handle's pending input
func (b *Bridge) Acknowledge(handle string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.pending[handle]
	if !ok || p.resolved || p.readyFired {
		return false
	}
	p.fireReady()
	return true
}

// CancelAll resolves every outstanding input as cancelled and refuses new
// ones. Calling it again is a no-op.
func (b *Bridge) CancelAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, p := range b.pending {
		if !p.resolved {
			p.resolved = true
			p.content <- Result{Outcome: Cancelled}
		}
	}
}

// Pending reports whether handle has an outstanding input
func (b *Bridge) Pending(handle string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.pending[handle]
	return ok
}

// PendingCount returns the number of outstanding inputs
func (b *Bridge) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *Bridge) register(handle string, timeout time.Duration) (*PendingInput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, nil
	}
	if _, ok := b.pending[handle]; ok {
		return nil, ErrAlreadyPending
	}
	now := time.Now()
	p := &PendingInput{
		Handle:    handle,
		CreatedAt: now,
		Deadline:  now.Add(timeout),
		ready:     make(chan struct{}),
		content:   make(chan Result, 1),
	}
	b.pending[handle] = p
	return p, nil
}

func (b *Bridge) remove(p *PendingInput) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending[p.Handle] == p {
		delete(b.pending, p.Handle)
	}
}

// settleWith marks p resolved with fallback unless a resolution already won the
// race, in which case that resolution is returned.
func (b *Bridge) settleWith(p *PendingInput, fallback Result, phase models.Phase) Result {
	b.mu.Lock()
	if p.resolved {
		b.mu.Unlock()
		return b.finish(p, <-p.content, phase)
	}
	p.resolved = true
	b.mu.Unlock()
	return fallback
}

func (b *Bridge) expire(p *PendingInput, phase models.Phase) Result {
	r := b.settleWith(p, Result{Text: game.NoResponseText, Outcome: TimedOut}, phase)
	if r.Outcome == TimedOut {
		b.log.Warn("human input timed out", zap.String("player", p.Handle))
	}
	return r
}

func (b *Bridge) abort(p *PendingInput, phase models.Phase) Result {
	return b.settleWith(p, Result{Outcome: Cancelled}, phase)
}

func (b *Bridge) finish(p *PendingInput, r Result, phase models.Phase) Result {
	if r.Outcome == Delivered {
		b.log.Info("human input received", zap.String("player", p.Handle))
		if phase.IsSecretBallot() {
			r.Text = visibility.VoteDeclaration(r.Text)
		}
	}
	return r
}
