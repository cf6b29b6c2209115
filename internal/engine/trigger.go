package engine

import (
	"errors"
	"sort"
	"strings"

	"github.com/civicdesk/chatflow/internal/model"
)

// ErrNoMatch is returned when no active document has a trigger matching the
// inbound event.
var ErrNoMatch = errors.New("no trigger matched")

// TriggerMatch names the flow and step a new conversation starts at.
type TriggerMatch struct {
	Document    *model.FlowDocument
	StartStepID string
}

// ResolveTrigger finds the (flow, start-step) pair for a new conversation.
//
// Keyword triggers match the trimmed inbound text case-insensitively and
// exactly, never as a substring. Button triggers match the button id exactly.
// "any" triggers are evaluated last regardless of document order. When
// several documents match, higher Priority wins, then the most recently
// activated. Documents whose matched trigger points at a missing step are
// skipped rather than matched.
func ResolveTrigger(event *model.InboundEvent, docs []*model.FlowDocument) (*TriggerMatch, error) {
	ordered := make([]*model.FlowDocument, 0, len(docs))
	for _, d := range docs {
		if d != nil && d.IsActive {
			ordered = append(ordered, d)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority > ordered[j].Priority
		}
		return ordered[i].ActivatedAt.After(ordered[j].ActivatedAt)
	})

	if m := matchPass(event, ordered, false); m != nil {
		return m, nil
	}
	// Fallback pass: "any" triggers only.
	if m := matchPass(event, ordered, true); m != nil {
		return m, nil
	}
	return nil, ErrNoMatch
}

func matchPass(event *model.InboundEvent, docs []*model.FlowDocument, anyPass bool) *TriggerMatch {
	for _, doc := range docs {
		for _, trig := range doc.Triggers {
			if (trig.Kind == model.TriggerAny) != anyPass {
				continue
			}
			if !triggerMatches(trig, event) {
				continue
			}
			if _, ok := doc.StepByID(trig.StartStepID); !ok {
				continue
			}
			return &TriggerMatch{Document: doc, StartStepID: trig.StartStepID}
		}
	}
	return nil
}

func triggerMatches(trig model.Trigger, event *model.InboundEvent) bool {
	switch trig.Kind {
	case model.TriggerKeyword:
		if event.Kind != model.EventText {
			return false
		}
		return strings.EqualFold(strings.TrimSpace(event.Text), strings.TrimSpace(trig.Value))
	case model.TriggerButtonClick:
		return event.Kind == model.EventButtonClick && event.ButtonID == trig.Value
	case model.TriggerAny:
		return true
	}
	return false
}
