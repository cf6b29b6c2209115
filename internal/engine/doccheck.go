package engine

import (
	"fmt"

	"github.com/civicdesk/chatflow/internal/model"
)

// CheckDocument statically validates a flow document before activation:
// every trigger start step and every referenced next step must exist, every
// step must be reachable from some trigger, and at least one terminal step
// must be reachable. Returns all problems found, not just the first.
func CheckDocument(doc *model.FlowDocument) []error {
	var errs []error

	if len(doc.Steps) == 0 {
		return []error{fmt.Errorf("document %s has no steps", doc.ID)}
	}
	if len(doc.Triggers) == 0 {
		errs = append(errs, fmt.Errorf("document %s has no triggers", doc.ID))
	}

	ref := func(from, to, what string) {
		if to == "" {
			return
		}
		if _, ok := doc.Steps[to]; !ok {
			errs = append(errs, fmt.Errorf("step %q: %s references missing step %q", from, what, to))
		}
	}

	for i, trig := range doc.Triggers {
		if _, ok := doc.Steps[trig.StartStepID]; !ok {
			errs = append(errs, fmt.Errorf("trigger %d (%s) starts at missing step %q", i, trig.Kind, trig.StartStepID))
		}
	}

	for id, step := range doc.Steps {
		if id != step.StepID && step.StepID != "" {
			errs = append(errs, fmt.Errorf("step key %q does not match step id %q", id, step.StepID))
		}
		ref(id, step.NextStepID, "nextStep")
		for _, b := range step.Buttons {
			ref(id, b.NextStepID, "button "+b.ID)
		}
		for _, r := range step.ExpectedResponses {
			ref(id, r.NextStepID, "expected response "+r.Value)
		}
		if step.List != nil {
			for _, sec := range step.List.Sections {
				for _, row := range sec.Rows {
					ref(id, row.NextStepID, "list row "+row.ID)
				}
			}
		}
		if step.Condition != nil {
			ref(id, step.Condition.TrueStepID, "condition true branch")
			ref(id, step.Condition.FalseStepID, "condition false branch")
		}
		if step.API != nil {
			ref(id, step.API.FailureStepID, "apiCall failure branch")
		}
		if step.Type == model.StepCondition && step.Condition == nil {
			errs = append(errs, fmt.Errorf("step %q: condition step without condition config", id))
		}
		if step.Type == model.StepCollectInput && step.Input == nil {
			errs = append(errs, fmt.Errorf("step %q: collectInput step without input config", id))
		}
		if step.Type == model.StepAPICall && step.API == nil {
			errs = append(errs, fmt.Errorf("step %q: apiCall step without api config", id))
		}
		if step.Type == model.StepDelay && (step.Delay == nil || step.NextStepID == "") {
			errs = append(errs, fmt.Errorf("step %q: delay step needs a duration and a next step", id))
		}
		if step.Type == model.StepEnd && step.NextStepID != "" {
			errs = append(errs, fmt.Errorf("step %q: end step must not have a next step", id))
		}
	}
	ref("settings", doc.Settings.EscalationStepID, "escalation step")

	reachable := reachableSteps(doc)
	for id := range doc.Steps {
		if !reachable[id] {
			errs = append(errs, fmt.Errorf("step %q is unreachable from every trigger", id))
		}
	}

	terminalReachable := false
	for id, step := range doc.Steps {
		if reachable[id] && step.Type == model.StepEnd {
			terminalReachable = true
			break
		}
	}
	if !terminalReachable {
		errs = append(errs, fmt.Errorf("no end step is reachable from any trigger"))
	}

	return errs
}

func reachableSteps(doc *model.FlowDocument) map[string]bool {
	seen := make(map[string]bool, len(doc.Steps))
	var stack []string
	push := func(id string) {
		if id != "" && !seen[id] {
			if _, ok := doc.Steps[id]; ok {
				seen[id] = true
				stack = append(stack, id)
			}
		}
	}

	for _, trig := range doc.Triggers {
		push(trig.StartStepID)
	}
	push(doc.Settings.EscalationStepID)

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		step := doc.Steps[id]

		push(step.NextStepID)
		for _, b := range step.Buttons {
			push(b.NextStepID)
		}
		for _, r := range step.ExpectedResponses {
			push(r.NextStepID)
		}
		if step.List != nil {
			for _, sec := range step.List.Sections {
				for _, row := range sec.Rows {
					push(row.NextStepID)
				}
			}
		}
		if step.Condition != nil {
			push(step.Condition.TrueStepID)
			push(step.Condition.FalseStepID)
		}
		if step.API != nil {
			push(step.API.FailureStepID)
		}
	}
	return seen
}
