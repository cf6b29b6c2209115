package engine

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/civicdesk/chatflow/internal/model"
	"github.com/civicdesk/chatflow/pkg/logger"
	"github.com/civicdesk/chatflow/pkg/metrics"
)

// EffectKind identifies a side effect the runner must perform on the
// executor's behalf.
type EffectKind string

const (
	EffectAPICall EffectKind = "apiCall"
	EffectDelay   EffectKind = "delay"
)

// SideEffect describes work the executor may not do itself: external calls
// and delayed resumptions are owned by the runner.
type SideEffect struct {
	Kind         EffectKind
	API          *model.APIConfig
	Delay        time.Duration
	ResumeStepID string
	FromStepID   string
}

// Outcome is the result of one executor pass. At most one side effect is
// produced per pass; the runner handles it and re-enters if needed.
type Outcome struct {
	Renders    []model.OutboundMessage
	Effect     *SideEffect
	Terminal   bool
	AwaitInput bool
}

// DynamicListProvider supplies runtime-populated rows for list steps whose
// source is dynamic (e.g. a department picker).
type DynamicListProvider interface {
	Options(ctx context.Context, tenantID string) ([]model.ListRow, error)
}

// Executor is the flow state machine. It mutates only the session's
// CurrentStepID, Language, RetryCount and Variables; persistence and
// lifecycle transitions belong to the runner.
type Executor struct {
	lists DynamicListProvider
	log   *logger.Logger
}

// NewExecutor creates a step executor.
func NewExecutor(lists DynamicListProvider, log *logger.Logger) *Executor {
	return &Executor{lists: lists, log: log}
}

// Enter runs a step and keeps advancing through steps that need no user
// input until the chain reaches a waiting step, a side effect, a terminal
// step or the chain-length bound.
func (e *Executor) Enter(ctx context.Context, doc *model.FlowDocument, sess *model.Session, stepID string) *Outcome {
	out := &Outcome{}
	e.enterLoop(ctx, doc, sess, stepID, out)
	return out
}

func (e *Executor) enterLoop(ctx context.Context, doc *model.FlowDocument, sess *model.Session, stepID string, out *Outcome) {
	for hops := 0; hops < doc.MaxChainLength(); hops++ {
		step, ok := doc.StepByID(stepID)
		if !ok {
			e.failClosed(doc, sess, stepID, out)
			return
		}

		sess.CurrentStepID = stepID
		sess.RetryCount = 0
		metrics.StepTransitions.WithLabelValues(sess.TenantID, string(step.Type)).Inc()

		switch step.Type {
		case model.StepMessage:
			out.Renders = append(out.Renders, e.textRender(doc, sess, step))
			if step.NextStepID == "" {
				out.Terminal = true
				return
			}
			stepID = step.NextStepID

		case model.StepInteractiveButtons:
			out.Renders = append(out.Renders, e.buttonsRender(doc, sess, step))
			out.AwaitInput = true
			return

		case model.StepList:
			render, ok := e.listRender(ctx, doc, sess, step)
			if !ok {
				e.failClosed(doc, sess, stepID, out)
				return
			}
			out.Renders = append(out.Renders, render)
			out.AwaitInput = true
			return

		case model.StepCollectInput:
			out.Renders = append(out.Renders, e.promptRender(doc, sess, step))
			out.AwaitInput = true
			return

		case model.StepCondition:
			next, ok := e.evalCondition(step, sess)
			if !ok {
				e.failClosed(doc, sess, stepID, out)
				return
			}
			stepID = next

		case model.StepAPICall:
			if step.API == nil {
				e.failClosed(doc, sess, stepID, out)
				return
			}
			out.Effect = &SideEffect{
				Kind:       EffectAPICall,
				API:        step.API,
				FromStepID: stepID,
			}
			return

		case model.StepDelay:
			if step.Delay == nil || step.NextStepID == "" {
				e.failClosed(doc, sess, stepID, out)
				return
			}
			sess.PendingResume = step.NextStepID
			out.Effect = &SideEffect{
				Kind:         EffectDelay,
				Delay:        step.Delay.Interval(),
				ResumeStepID: step.NextStepID,
				FromStepID:   stepID,
			}
			return

		case model.StepAssignDepartment:
			if !e.assignDepartment(step, sess) {
				e.failClosed(doc, sess, stepID, out)
				return
			}
			if step.NextStepID == "" {
				out.Terminal = true
				return
			}
			stepID = step.NextStepID

		case model.StepEnd:
			if len(step.Content) > 0 {
				out.Renders = append(out.Renders, e.textRender(doc, sess, step))
			}
			out.Terminal = true
			return

		default:
			e.failClosed(doc, sess, stepID, out)
			return
		}
	}

	e.log.Warn("step chain exceeded bound",
		zap.String("flow_id", doc.ID),
		zap.String("conversation_id", sess.ConversationID),
		zap.Int("max_chain_length", doc.MaxChainLength()),
	)
	e.failClosed(doc, sess, sess.CurrentStepID, out)
}

// Advance consumes one inbound event against the session's current step and
// produces the resulting outcome. Exactly one logical transition chain runs
// per call.
func (e *Executor) Advance(ctx context.Context, doc *model.FlowDocument, sess *model.Session, event *model.InboundEvent) *Outcome {
	if event.Kind == model.EventResume {
		return e.resume(ctx, doc, sess, event)
	}

	// An organic message overrides any pending delayed resumption.
	sess.PendingResume = ""

	step, ok := doc.StepByID(sess.CurrentStepID)
	if !ok {
		out := &Outcome{}
		e.failClosed(doc, sess, sess.CurrentStepID, out)
		return out
	}

	switch step.Type {
	case model.StepInteractiveButtons:
		return e.consumeButton(ctx, doc, sess, step, event)
	case model.StepList:
		return e.consumeListSelection(ctx, doc, sess, step, event)
	case model.StepCollectInput:
		return e.consumeInput(ctx, doc, sess, step, event)
	case model.StepDelay:
		// The citizen spoke before the timer fired; skip the rest of the
		// wait instead of leaving them parked on a step that expects
		// nothing.
		if step.NextStepID == "" {
			return &Outcome{Terminal: true}
		}
		return e.Enter(ctx, doc, sess, step.NextStepID)
	default:
		// The session is parked on a step that expects nothing; remind the
		// citizen without advancing.
		return &Outcome{
			Renders:    []model.OutboundMessage{e.plainText(sess, builtin("not_understood", sess.Language))},
			AwaitInput: true,
		}
	}
}

func (e *Executor) resume(ctx context.Context, doc *model.FlowDocument, sess *model.Session, event *model.InboundEvent) *Outcome {
	if sess.PendingResume == "" || sess.PendingResume != event.ResumeStepID {
		// Resumption was overridden by an organic message; nothing to do.
		return &Outcome{AwaitInput: true}
	}
	next := sess.PendingResume
	sess.PendingResume = ""
	return e.Enter(ctx, doc, sess, next)
}

func (e *Executor) consumeButton(ctx context.Context, doc *model.FlowDocument, sess *model.Session, step *model.Step, event *model.InboundEvent) *Outcome {
	if event.Kind != model.EventButtonClick && event.Kind != model.EventListSelect {
		// Free text while a button is expected is a validation failure,
		// not a trigger re-match.
		return e.retryOrEscalate(ctx, doc, sess, step, builtin("choose_option", sess.Language))
	}

	buttonID := event.ButtonID
	e.applyLanguageSelection(doc, sess, buttonID)

	for _, resp := range step.ExpectedResponses {
		if resp.Kind == model.EventButtonClick && resp.Value == buttonID {
			sess.RetryCount = 0
			return e.Enter(ctx, doc, sess, resp.NextStepID)
		}
	}
	for _, btn := range step.Buttons {
		if btn.ID != buttonID {
			continue
		}
		sess.RetryCount = 0
		next := btn.NextStepID
		if next == "" {
			next = step.NextStepID
		}
		if next == "" {
			return &Outcome{Terminal: true}
		}
		return e.Enter(ctx, doc, sess, next)
	}

	return e.retryOrEscalate(ctx, doc, sess, step, builtin("choose_option", sess.Language))
}

func (e *Executor) consumeListSelection(ctx context.Context, doc *model.FlowDocument, sess *model.Session, step *model.Step, event *model.InboundEvent) *Outcome {
	if event.Kind != model.EventListSelect && event.Kind != model.EventButtonClick {
		return e.retryOrEscalate(ctx, doc, sess, step, builtin("choose_option", sess.Language))
	}
	if step.List == nil {
		out := &Outcome{}
		e.failClosed(doc, sess, step.StepID, out)
		return out
	}

	rowID := event.ButtonID
	row, ok := e.findListRow(ctx, sess, step, rowID)
	if !ok {
		return e.retryOrEscalate(ctx, doc, sess, step, builtin("choose_option", sess.Language))
	}

	if step.List.SaveToField != "" {
		Write(sess.Variables, step.List.SaveToField, row.ID)
	}
	sess.RetryCount = 0

	next := row.NextStepID
	if next == "" {
		next = step.NextStepID
	}
	if next == "" {
		return &Outcome{Terminal: true}
	}
	return e.Enter(ctx, doc, sess, next)
}

func (e *Executor) consumeInput(ctx context.Context, doc *model.FlowDocument, sess *model.Session, step *model.Step, event *model.InboundEvent) *Outcome {
	if step.Input == nil {
		out := &Outcome{}
		e.failClosed(doc, sess, step.StepID, out)
		return out
	}

	result := Validate(event, *step.Input)
	if !result.OK {
		return e.retryOrEscalate(ctx, doc, sess, step, result.Reason)
	}

	if step.Input.SaveToField != "" {
		Write(sess.Variables, step.Input.SaveToField, result.Value)
	}
	sess.RetryCount = 0

	if step.NextStepID == "" {
		return &Outcome{Terminal: true}
	}
	return e.Enter(ctx, doc, sess, step.NextStepID)
}

// retryOrEscalate re-renders the current step with guidance, bounded by the
// document's retry ceiling. Exceeding the ceiling transitions to the
// configured escalation step, or ends the session with the error fallback.
func (e *Executor) retryOrEscalate(ctx context.Context, doc *model.FlowDocument, sess *model.Session, step *model.Step, reason string) *Outcome {
	sess.RetryCount++
	metrics.InputRetries.WithLabelValues(sess.TenantID).Inc()

	if sess.RetryCount >= doc.MaxRetries() {
		if doc.Settings.EscalationStepID != "" {
			sess.RetryCount = 0
			return e.Enter(ctx, doc, sess, doc.Settings.EscalationStepID)
		}
		text := Render(doc.Settings.ErrorFallback, sess.Language, doc.DefaultLanguage, sess.Variables)
		if text == "" {
			text = builtin("too_many_retries", sess.Language)
		}
		return &Outcome{
			Renders:  []model.OutboundMessage{e.plainText(sess, text)},
			Terminal: true,
		}
	}

	out := &Outcome{AwaitInput: true}
	out.Renders = append(out.Renders, e.plainText(sess, reason))
	switch step.Type {
	case model.StepInteractiveButtons:
		out.Renders = append(out.Renders, e.buttonsRender(doc, sess, step))
	case model.StepList:
		if render, ok := e.listRender(ctx, doc, sess, step); ok {
			out.Renders = append(out.Renders, render)
		}
	default:
		out.Renders = append(out.Renders, e.promptRender(doc, sess, step))
	}
	return out
}

// failClosed handles authoring errors at runtime: a generic apology in the
// session's language, then termination, never undefined behavior.
func (e *Executor) failClosed(doc *model.FlowDocument, sess *model.Session, stepID string, out *Outcome) {
	e.log.Error("flow references unknown or broken step",
		zap.String("flow_id", doc.ID),
		zap.String("step_id", stepID),
		zap.String("conversation_id", sess.ConversationID),
	)
	metrics.AuthoringErrors.WithLabelValues(sess.TenantID, doc.ID).Inc()

	text := Render(doc.Settings.ErrorFallback, sess.Language, doc.DefaultLanguage, sess.Variables)
	if text == "" {
		text = builtin("error_fallback", sess.Language)
	}
	out.Renders = append(out.Renders, e.plainText(sess, text))
	out.Terminal = true
	out.AwaitInput = false
	out.Effect = nil
}

// applyLanguageSelection switches the session language when a language
// button (lang_en, lang_hi, ...) is tapped.
func (e *Executor) applyLanguageSelection(doc *model.FlowDocument, sess *model.Session, buttonID string) {
	if !strings.HasPrefix(buttonID, "lang_") {
		return
	}
	lang := strings.TrimPrefix(buttonID, "lang_")
	if len(doc.SupportedLanguages) == 0 {
		sess.Language = lang
		return
	}
	for _, supported := range doc.SupportedLanguages {
		if supported == lang {
			sess.Language = lang
			return
		}
	}
}

func (e *Executor) assignDepartment(step *model.Step, sess *model.Session) bool {
	cfg := step.Department
	if cfg == nil {
		return false
	}
	field := cfg.SaveToField
	if field == "" {
		field = "department"
	}
	if cfg.FromField != "" {
		if v, ok := Lookup(sess.Variables, cfg.FromField); ok {
			Write(sess.Variables, field, v)
			return true
		}
	}
	if cfg.DepartmentID != "" {
		Write(sess.Variables, field, cfg.DepartmentID)
		return true
	}
	return cfg.FromField != "" // authored a copy from an uncollected field: skip silently
}

func (e *Executor) findListRow(ctx context.Context, sess *model.Session, step *model.Step, rowID string) (model.ListRow, bool) {
	if step.List.Source == model.ListSourceDynamic && e.lists != nil {
		rows, err := e.lists.Options(ctx, sess.TenantID)
		if err == nil {
			for _, r := range rows {
				if r.ID == rowID {
					if r.NextStepID == "" {
						r.NextStepID = step.NextStepID
					}
					return r, true
				}
			}
		}
		return model.ListRow{}, false
	}
	for _, section := range step.List.Sections {
		for _, r := range section.Rows {
			if r.ID == rowID {
				return r, true
			}
		}
	}
	return model.ListRow{}, false
}

func (e *Executor) textRender(doc *model.FlowDocument, sess *model.Session, step *model.Step) model.OutboundMessage {
	return e.plainText(sess, Render(step.Content, sess.Language, doc.DefaultLanguage, sess.Variables))
}

func (e *Executor) plainText(sess *model.Session, text string) model.OutboundMessage {
	return model.OutboundMessage{
		ConversationID: sess.ConversationID,
		TenantID:       sess.TenantID,
		Kind:           model.OutboundText,
		Text:           text,
	}
}

func (e *Executor) buttonsRender(doc *model.FlowDocument, sess *model.Session, step *model.Step) model.OutboundMessage {
	return model.OutboundMessage{
		ConversationID: sess.ConversationID,
		TenantID:       sess.TenantID,
		Kind:           model.OutboundButtons,
		Text:           Render(step.Content, sess.Language, doc.DefaultLanguage, sess.Variables),
		Buttons:        step.Buttons,
	}
}

func (e *Executor) promptRender(doc *model.FlowDocument, sess *model.Session, step *model.Step) model.OutboundMessage {
	text := Render(step.Content, sess.Language, doc.DefaultLanguage, sess.Variables)
	if text == "" && step.Input != nil {
		text = step.Input.Placeholder
	}
	return e.plainText(sess, text)
}

func (e *Executor) listRender(ctx context.Context, doc *model.FlowDocument, sess *model.Session, step *model.Step) (model.OutboundMessage, bool) {
	if step.List == nil {
		return model.OutboundMessage{}, false
	}
	sections := step.List.Sections
	if step.List.Source == model.ListSourceDynamic {
		if e.lists == nil {
			return model.OutboundMessage{}, false
		}
		rows, err := e.lists.Options(ctx, sess.TenantID)
		if err != nil {
			e.log.Error("dynamic list provider failed",
				zap.String("tenant_id", sess.TenantID),
				zap.Error(err),
			)
			return model.OutboundMessage{}, false
		}
		sections = []model.ListSection{{Rows: rows}}
	}
	return model.OutboundMessage{
		ConversationID: sess.ConversationID,
		TenantID:       sess.TenantID,
		Kind:           model.OutboundList,
		Text:           Render(step.Content, sess.Language, doc.DefaultLanguage, sess.Variables),
		ListButton:     step.List.ButtonText,
		Sections:       sections,
	}, true
}
