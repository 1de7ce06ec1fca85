package sse

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/aaronzipp/avalon-moderator/internal/game"
	"github.com/aaronzipp/avalon-moderator/internal/models"
)

func event(t models.EventType, recipient string, at time.Time) models.Event {
	return models.Event{Type: t, MatchID: "m1", Recipient: recipient, Payload: models.MessagePayload{Source: "Host", Content: "hi"}, At: at}
}

func receive(t *testing.T, ch chan models.SSEMessage) models.SSEMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(time.Second):
		t.Fatalf("no message received")
	}
	return models.SSEMessage{}
}

func TestPublishScopesPrivateEvents(t *testing.T) {
	h := NewHub(nil)
	alice := make(chan models.SSEMessage, game.SSEBufferSize)
	bob := make(chan models.SSEMessage, game.SSEBufferSize)
	observer := make(chan models.SSEMessage, game.SSEBufferSize)
	h.AddClient(alice, "alice")
	h.AddClient(bob, "bob")
	h.AddClient(observer, "")

	h.Publish(event(models.EventRoleAssigned, "alice", time.Now()))
	h.Publish(event(models.EventMessage, "", time.Now()))

	if got := receive(t, alice); got.Event != string(models.EventRoleAssigned) {
		t.Fatalf("alice got %q first", got.Event)
	}
	for name, ch := range map[string]chan models.SSEMessage{"alice": alice, "bob": bob, "observer": observer} {
		if got := receive(t, ch); got.Event != string(models.EventMessage) {
			t.Fatalf("%s got %q", name, got.Event)
		}
		if len(ch) != 0 {
			t.Fatalf("%s has %d extra messages", name, len(ch))
		}
	}
}

func TestPrivatePayloadNotSerialisedWithRecipient(t *testing.T) {
	h := NewHub(nil)
	ch := make(chan models.SSEMessage, 1)
	h.AddClient(ch, "alice")
	h.Publish(event(models.EventRoleAssigned, "alice", time.Now()))
	msg := receive(t, ch)
	var decoded map[string]any
	if err := json.Unmarshal([]byte(msg.Data), &decoded); err != nil {
		t.Fatal(err)
	}
	if _, ok := decoded["Recipient"]; ok {
		t.Fatalf("recipient leaked into frame: %s", msg.Data)
	}
	if decoded["type"] != string(models.EventRoleAssigned) {
		t.Fatalf("type = %v", decoded["type"])
	}
}

func TestLateJoinerReplay(t *testing.T) {
	h := NewHub(nil)
	base := time.Now()
	h.Publish(event(models.EventMatchStarted, "", base))
	h.Publish(event(models.EventRoleAssigned, "alice", base.Add(time.Millisecond)))
	h.Publish(event(models.EventRoleAssigned, "bob", base.Add(2*time.Millisecond)))
	h.Publish(event(models.EventMessage, "", base.Add(3*time.Millisecond)))

	replay := h.AddClient(make(chan models.SSEMessage, 1), "alice")
	want := []models.EventType{models.EventMatchStarted, models.EventRoleAssigned, models.EventMessage}
	if len(replay) != len(want) {
		t.Fatalf("replay = %d events", len(replay))
	}
	for i, w := range want {
		if replay[i].Event != string(w) {
			t.Fatalf("replay[%d] = %q want %q", i, replay[i].Event, w)
		}
	}

	if got := h.AddClient(make(chan models.SSEMessage, 1), ""); len(got) != 2 {
		t.Fatalf("observer replay = %d events", len(got))
	}
}

func TestBacklogIsBounded(t *testing.T) {
	h := NewHub(nil)
	for i := 0; i < game.SSEBacklogSize+10; i++ {
		h.Publish(event(models.EventMessage, "", time.Now()))
	}
	if got := h.AddClient(make(chan models.SSEMessage, 1), ""); len(got) != game.SSEBacklogSize {
		t.Fatalf("replay = %d, want %d", len(got), game.SSEBacklogSize)
	}
}

func TestStalledClientsDoNotSlowPublish(t *testing.T) {
	h := NewHub(nil)
	for i := 0; i < 3; i++ {
		h.AddClient(make(chan models.SSEMessage), "") // unbuffered, never read
	}
	live := make(chan models.SSEMessage, game.SSEBufferSize)
	h.AddClient(live, "")

	const n = 10
	begin := time.Now()
	for i := 0; i < n; i++ {
		h.Publish(event(models.EventMessage, "", time.Now()))
	}
	if elapsed := time.Since(begin); elapsed > 100*time.Millisecond {
		t.Fatalf("publishing %d events took %v", n, elapsed)
	}
	if len(live) != n {
		t.Fatalf("live client got %d of %d events", len(live), n)
	}
}

func TestRemoveAndClose(t *testing.T) {
	h := NewHub(nil)
	ch := make(chan models.SSEMessage, 1)
	h.AddClient(ch, "")
	h.RemoveClient(ch)
	if h.ClientCount() != 0 {
		t.Fatalf("clients = %d", h.ClientCount())
	}
	h.Close()
	h.Close()
	select {
	case <-h.Done():
	default:
		t.Fatalf("hub not closed")
	}
}
