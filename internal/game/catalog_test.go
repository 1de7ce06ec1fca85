package game

import (
	"strings"
	"testing"

	"github.com/aaronzipp/avalon-moderator/internal/models"
)

func TestLoadCatalog(t *testing.T) {
	c, err := LoadCatalog()
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	if len(c.Personas) < RosterSize {
		t.Fatalf("persona pool too small: %d", len(c.Personas))
	}
	for _, r := range models.AllRoles {
		if c.Notes(r) == "" {
			t.Fatalf("role %s has no notes", r)
		}
	}
	if !strings.Contains(c.Rules, "round 4: 4 / 2") {
		t.Fatalf("rules summary missing mission table")
	}
}

func TestParseCatalogRejectsMissingRole(t *testing.T) {
	_, err := ParseCatalog([]byte("roles:\n  Merlin:\n    notes: x\npersonas: [a]\n"))
	if err == nil || !strings.Contains(err.Error(), "missing role") {
		t.Fatalf("expected missing role error, got %v", err)
	}
}
