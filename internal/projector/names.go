package projector

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/aaronzipp/avalon-moderator/internal/models"
)

// ErrIdentifierCollision is returned when a display name could be mistaken
// for an internal handle
var ErrIdentifierCollision = errors.New("display name collides with internal identifier")

// DisplayMap is the match-scoped, two-way mapping between internal handles
// and display names. The two key spaces are kept disjoint so rewriting is
// idempotent.
type DisplayMap struct {
	toDisplay map[string]string
	toHandle  map[string]string
	pattern   *regexp.Regexp
}

// NewDisplayMap builds the mapping for a match's participants
func NewDisplayMap(participants []*models.Participant) (*DisplayMap, error) {
	m := &DisplayMap{
		toDisplay: make(map[string]string, len(participants)),
		toHandle:  make(map[string]string, len(participants)),
	}
	handles := make([]string, 0, len(participants))
	for _, p := range participants {
		if _, dup := m.toHandle[p.DisplayName]; dup {
			return nil, fmt.Errorf("%w: %q used twice", ErrIdentifierCollision, p.DisplayName)
		}
		m.toDisplay[p.Handle] = p.DisplayName
		m.toHandle[p.DisplayName] = p.Handle
		handles = append(handles, p.Handle)
	}
	// longest first so alternation never settles on a prefix
	sort.Slice(handles, func(i, j int) bool { return len(handles[i]) > len(handles[j]) })
	quoted := make([]string, len(handles))
	for i, h := range handles {
		quoted[i] = regexp.QuoteMeta(h)
	}
	if len(quoted) > 0 {
		m.pattern = regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)\b`)
	}
	for _, p := range participants {
		if m.pattern != nil && m.pattern.MatchString(p.DisplayName) {
			return nil, fmt.Errorf("%w: %q", ErrIdentifierCollision, p.DisplayName)
		}
	}
	return m, nil
}

// Display returns the display name of a handle
func (m *DisplayMap) Display(handle string) (string, bool) {
	name, ok := m.toDisplay[handle]
	return name, ok
}

// Handle returns the handle behind a display name
func (m *DisplayMap) Handle(display string) (string, bool) {
	h, ok := m.toHandle[display]
	return h, ok
}

// Rewrite replaces every whole-word handle in text with its display name
func (m *DisplayMap) Rewrite(text string) string {
	if m == nil || m.pattern == nil || text == "" {
		return text
	}
	return m.pattern.ReplaceAllStringFunc(text, func(h string) string {
		return m.toDisplay[h]
	})
}

// RewriteValue rewrites handles inside decoded JSON: strings, arrays and
// objects, recursively. Object keys are rewritten too.
func (m *DisplayMap) RewriteValue(v any) any {
	switch t := v.(type) {
	case string:
		return m.Rewrite(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = m.RewriteValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[m.Rewrite(k)] = m.RewriteValue(e)
		}
		return out
	default:
		return v
	}
}
