package render

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aaronzipp/avalon-moderator/internal/models"
)

func TestFrame(t *testing.T) {
	tests := []struct {
		name string
		msg  models.SSEMessage
		want string
	}{
		{"single line", models.SSEMessage{Event: "message", Data: `{"a":1}`}, "event: message\ndata: {\"a\":1}\n\n"},
		{"multi line", models.SSEMessage{Event: "x", Data: "a\nb"}, "event: x\ndata: a\ndata: b\n\n"},
		{"no event", models.SSEMessage{Data: "ping"}, "data: ping\n\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Frame(tt.msg); got != tt.want {
				t.Fatalf("got %q want %q", got, tt.want)
			}
		})
	}
}

func TestEvent(t *testing.T) {
	msg, err := Event(models.Event{
		Type:      models.EventStateUpdate,
		MatchID:   "m",
		Recipient: "secret",
		Payload:   models.StateUpdatePayload{Phase: models.PhaseVoting, Round: 2},
		At:        time.Unix(0, 0).UTC(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if msg.Event != "state_update" {
		t.Fatalf("event = %q", msg.Event)
	}
	if strings.Contains(msg.Data, "secret") || !strings.Contains(msg.Data, `"phase":"voting"`) {
		t.Fatalf("data = %s", msg.Data)
	}
}

func TestJSONAndPublicRoster(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, 404, "room not found")
	if rec.Code != 404 || rec.Header().Get("Content-Type") != "application/json" || !strings.Contains(rec.Body.String(), "room not found") {
		t.Fatalf("response = %d %q", rec.Code, rec.Body.String())
	}

	seats := PublicRoster([]*models.Participant{
		{DisplayName: "B", Seat: 2, Role: models.RoleMerlin},
		{DisplayName: "A", Seat: 1, Role: models.RoleAssassin},
	})
	if len(seats) != 2 || seats[0].Name != "A" || seats[1].Seat != 2 {
		t.Fatalf("seats = %+v", seats)
	}
}
