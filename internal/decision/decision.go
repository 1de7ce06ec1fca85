// Package decision supplies the capability that produces each automated
// seat's next utterance. The engine only depends on the Decider interface;
// the OpenAI client and the scripted decider are interchangeable behind it.
package decision

import (
	"context"
	"errors"

	"github.com/aaronzipp/avalon-moderator/internal/models"
)

var (
	// ErrEmptyReply is returned when a decider produced no text
	ErrEmptyReply = errors.New("decider returned an empty reply")
	// ErrNoScript is returned when a scripted decider has nothing left for an actor
	ErrNoScript = errors.New("no scripted reply left")
)

// Request is everything an automated seat is allowed to know at its turn
type Request struct {
	// Actor is the internal handle of the seat deciding
	Actor string
	// Instructions are the standing instructions for the actor
	Instructions string
	// Transcript is already filtered for Actor
	Transcript []models.Message
	// Handoffs lists the handles the actor may pass control to
	Handoffs []string
}

// Reply is a decider's utterance plus an optional explicit handoff. Text
// may be empty when Handoff is set.
type Reply struct {
	Text    string
	Handoff string
}

// Decider produces the next utterance for an automated seat
type Decider interface {
	Decide(ctx context.Context, req Request) (Reply, error)
}

// Func adapts an ordinary function to the Decider interface
type Func func(ctx context.Context, req Request) (Reply, error)

func (f Func) Decide(ctx context.Context, req Request) (Reply, error) {
	return f(ctx, req)
}
