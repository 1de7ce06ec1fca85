package decision

import (
	"context"
	"fmt"
	"sync"
)

// Script replays canned replies per actor, in order. It backs offline
// matches and tests.
type Script struct {
	mu       sync.Mutex
	replies  map[string][]Reply
	requests []Request
}

func NewScript() *Script {
	return &Script{replies: make(map[string][]Reply)}
}

// Add queues replies for actor
func (s *Script) Add(actor string, replies ...Reply) *Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies[actor] = append(s.replies[actor], replies...)
	return s
}

// Say queues plain text replies for actor
func (s *Script) Say(actor string, texts ...string) *Script {
	replies := make([]Reply, len(texts))
	for i, t := range texts {
		replies[i] = Reply{Text: t}
	}
	return s.Add(actor, replies...)
}

func (s *Script) Decide(ctx context.Context, req Request) (Reply, error) {
	if err := ctx.Err(); err != nil {
		return Reply{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	queue := s.replies[req.Actor]
	if len(queue) == 0 {
		return Reply{}, fmt.Errorf("%w for %s", ErrNoScript, req.Actor)
	}
	s.replies[req.Actor] = queue[1:]
	if queue[0].Text == "" && queue[0].Handoff == "" {
		return Reply{}, ErrEmptyReply
	}
	return queue[0], nil
}

// Requests returns a copy of every request seen so far
func (s *Script) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// Remaining reports how many replies are still queued for actor
func (s *Script) Remaining(actor string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.replies[actor])
}
