package render

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"

	"github.com/aaronzipp/avalon-moderator/internal/models"
)

// Event encodes an event as an SSE message named after its type
func Event(evt models.Event) (models.SSEMessage, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return models.SSEMessage{}, err
	}
	return models.SSEMessage{Event: string(evt.Type), Data: string(data)}, nil
}

// Frame formats a message as one SSE frame. Multi-line data is split over
// several data fields.
func Frame(msg models.SSEMessage) string {
	var b strings.Builder
	if msg.Event != "" {
		b.WriteString("event: ")
		b.WriteString(msg.Event)
		b.WriteString("\n")
	}
	for _, line := range strings.Split(msg.Data, "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	return b.String()
}

// JSON writes v with the given status
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Error writes a JSON error body
func Error(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, map[string]string{"error": msg})
}

// PublicRoster returns the observer-safe roster in seat order
func PublicRoster(participants []*models.Participant) []models.PublicSeat {
	seats := make([]models.PublicSeat, 0, len(participants))
	for _, p := range participants {
		seats = append(seats, models.PublicSeat{Name: p.DisplayName, Seat: p.Seat, Kind: p.Kind})
	}
	sort.Slice(seats, func(i, j int) bool { return seats[i].Seat < seats[j].Seat })
	return seats
}
