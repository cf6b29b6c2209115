package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/civicdesk/chatflow/internal/model"
	"github.com/civicdesk/chatflow/pkg/logger"
)

func nopLogger() *logger.Logger {
	return &logger.Logger{Logger: zap.NewNop()}
}

type fakeListProvider struct {
	rows []model.ListRow
	err  error
}

func (f *fakeListProvider) Options(ctx context.Context, tenantID string) ([]model.ListRow, error) {
	return f.rows, f.err
}

func newSession() *model.Session {
	return &model.Session{
		ConversationID: "conv-1",
		TenantID:       "t1",
		FlowID:         "f1",
		FlowVersion:    1,
		Language:       "en",
		Variables:      map[string]any{},
		Status:         model.SessionActive,
	}
}

func grievanceDoc() *model.FlowDocument {
	return &model.FlowDocument{
		ID:              "f1",
		TenantID:        "t1",
		IsActive:        true,
		Version:         1,
		DefaultLanguage: "en",
		Steps: map[string]model.Step{
			"welcome": {
				StepID:     "welcome",
				Type:       model.StepMessage,
				Content:    map[string]string{"en": "Welcome {name}"},
				NextStepID: "menu",
			},
			"menu": {
				StepID:  "menu",
				Type:    model.StepInteractiveButtons,
				Content: map[string]string{"en": "What do you need?"},
				Buttons: []model.Button{
					{ID: "btn_new", Title: "New grievance", NextStepID: "ask_desc"},
					{ID: "btn_status", Title: "Check status", NextStepID: "done"},
				},
			},
			"ask_desc": {
				StepID:  "ask_desc",
				Type:    model.StepCollectInput,
				Content: map[string]string{"en": "Describe the issue"},
				Input: &model.InputConfig{
					InputType:   model.InputText,
					SaveToField: "description",
					Validation:  model.ValidationRules{Required: true, MinLength: 5},
				},
				NextStepID: "check_rating",
			},
			"check_rating": {
				StepID: "check_rating",
				Type:   model.StepCondition,
				Condition: &model.ConditionConfig{
					Field:       "rating",
					Operator:    model.OpGt,
					Value:       3,
					TrueStepID:  "done",
					FalseStepID: "wait",
				},
			},
			"wait": {
				StepID:     "wait",
				Type:       model.StepDelay,
				Delay:      &model.DelayConfig{Duration: 30, Unit: "minutes"},
				NextStepID: "done",
			},
			"done": {
				StepID:  "done",
				Type:    model.StepEnd,
				Content: map[string]string{"en": "Thanks!"},
			},
		},
	}
}

func TestEnterChainsMessagesUntilWaitingStep(t *testing.T) {
	exec := NewExecutor(nil, nopLogger())
	doc := grievanceDoc()
	sess := newSession()
	sess.Variables["name"] = "Asha"

	out := exec.Enter(context.Background(), doc, sess, "welcome")

	require.Len(t, out.Renders, 2)
	assert.Equal(t, "Welcome Asha", out.Renders[0].Text)
	assert.Equal(t, model.OutboundButtons, out.Renders[1].Kind)
	assert.True(t, out.AwaitInput)
	assert.False(t, out.Terminal)
	assert.Equal(t, "menu", sess.CurrentStepID)
}

func TestEnterTerminalMessageWithoutNext(t *testing.T) {
	exec := NewExecutor(nil, nopLogger())
	doc := grievanceDoc()
	step := doc.Steps["welcome"]
	step.NextStepID = ""
	doc.Steps["welcome"] = step
	sess := newSession()

	out := exec.Enter(context.Background(), doc, sess, "welcome")
	assert.True(t, out.Terminal)
	require.Len(t, out.Renders, 1)
}

func TestEnterFailsClosedOnDanglingReference(t *testing.T) {
	exec := NewExecutor(nil, nopLogger())
	doc := grievanceDoc()
	step := doc.Steps["welcome"]
	step.NextStepID = "nowhere"
	doc.Steps["welcome"] = step
	sess := newSession()

	out := exec.Enter(context.Background(), doc, sess, "welcome")
	assert.True(t, out.Terminal)
	// Welcome text, then the generic apology.
	require.Len(t, out.Renders, 2)
	assert.Equal(t, builtin("error_fallback", "en"), out.Renders[1].Text)
}

func TestEnterBoundsChainLength(t *testing.T) {
	exec := NewExecutor(nil, nopLogger())
	doc := &model.FlowDocument{
		ID:              "loop",
		DefaultLanguage: "en",
		Settings:        model.FlowSettings{MaxChainLength: 5},
		Steps: map[string]model.Step{
			"a": {StepID: "a", Type: model.StepMessage, Content: map[string]string{"en": "a"}, NextStepID: "b"},
			"b": {StepID: "b", Type: model.StepMessage, Content: map[string]string{"en": "b"}, NextStepID: "a"},
		},
	}
	sess := newSession()

	out := exec.Enter(context.Background(), doc, sess, "a")
	assert.True(t, out.Terminal)
	// 5 hops of loop output plus the apology.
	assert.Len(t, out.Renders, 6)
}

func TestAdvanceButtonClick(t *testing.T) {
	exec := NewExecutor(nil, nopLogger())
	doc := grievanceDoc()
	sess := newSession()
	sess.CurrentStepID = "menu"

	out := exec.Advance(context.Background(), doc, sess, &model.InboundEvent{
		Kind: model.EventButtonClick, ButtonID: "btn_new",
	})

	require.Len(t, out.Renders, 1)
	assert.Equal(t, "Describe the issue", out.Renders[0].Text)
	assert.True(t, out.AwaitInput)
	assert.Equal(t, "ask_desc", sess.CurrentStepID)
}

func TestAdvanceFreeTextAtButtonsRetries(t *testing.T) {
	exec := NewExecutor(nil, nopLogger())
	doc := grievanceDoc()
	sess := newSession()
	sess.CurrentStepID = "menu"

	out := exec.Advance(context.Background(), doc, sess, &model.InboundEvent{
		Kind: model.EventText, Text: "I want to complain",
	})

	assert.True(t, out.AwaitInput)
	assert.Equal(t, 1, sess.RetryCount)
	require.Len(t, out.Renders, 2)
	assert.Equal(t, builtin("choose_option", "en"), out.Renders[0].Text)
	assert.Equal(t, model.OutboundButtons, out.Renders[1].Kind)
	// The session stays parked on the same step.
	assert.Equal(t, "menu", sess.CurrentStepID)
}

func TestAdvanceUnknownButtonRetries(t *testing.T) {
	exec := NewExecutor(nil, nopLogger())
	doc := grievanceDoc()
	sess := newSession()
	sess.CurrentStepID = "menu"

	out := exec.Advance(context.Background(), doc, sess, &model.InboundEvent{
		Kind: model.EventButtonClick, ButtonID: "btn_bogus",
	})
	assert.True(t, out.AwaitInput)
	assert.Equal(t, 1, sess.RetryCount)
}

func TestAdvanceRetryExhaustionEndsSessionWithFallback(t *testing.T) {
	exec := NewExecutor(nil, nopLogger())
	doc := grievanceDoc()
	doc.Settings.MaxRetries = 2
	doc.Settings.ErrorFallback = map[string]string{"en": "Please call our helpline."}
	sess := newSession()
	sess.CurrentStepID = "menu"

	bad := &model.InboundEvent{Kind: model.EventText, Text: "???"}
	out := exec.Advance(context.Background(), doc, sess, bad)
	assert.False(t, out.Terminal)

	out = exec.Advance(context.Background(), doc, sess, bad)
	assert.True(t, out.Terminal)
	require.Len(t, out.Renders, 1)
	assert.Equal(t, "Please call our helpline.", out.Renders[0].Text)
}

func TestAdvanceRetryExhaustionEscalates(t *testing.T) {
	exec := NewExecutor(nil, nopLogger())
	doc := grievanceDoc()
	doc.Settings.MaxRetries = 1
	doc.Settings.EscalationStepID = "done"
	sess := newSession()
	sess.CurrentStepID = "menu"

	out := exec.Advance(context.Background(), doc, sess, &model.InboundEvent{
		Kind: model.EventText, Text: "???",
	})
	assert.True(t, out.Terminal)
	assert.Equal(t, 0, sess.RetryCount)
	require.Len(t, out.Renders, 1)
	assert.Equal(t, "Thanks!", out.Renders[0].Text)
}

func TestAdvanceCollectInputSavesAndFollowsCondition(t *testing.T) {
	exec := NewExecutor(nil, nopLogger())
	doc := grievanceDoc()
	sess := newSession()
	sess.CurrentStepID = "ask_desc"
	sess.Variables["rating"] = float64(5)

	out := exec.Advance(context.Background(), doc, sess, &model.InboundEvent{
		Kind: model.EventText, Text: "Streetlight broken on MG Road",
	})

	assert.Equal(t, "Streetlight broken on MG Road", sess.Variables["description"])
	// rating > 3 branches straight to the end step.
	assert.True(t, out.Terminal)
	require.Len(t, out.Renders, 1)
	assert.Equal(t, "Thanks!", out.Renders[0].Text)
}

func TestAdvanceCollectInputValidationFailureRetries(t *testing.T) {
	exec := NewExecutor(nil, nopLogger())
	doc := grievanceDoc()
	sess := newSession()
	sess.CurrentStepID = "ask_desc"

	out := exec.Advance(context.Background(), doc, sess, &model.InboundEvent{
		Kind: model.EventText, Text: "hm",
	})

	assert.True(t, out.AwaitInput)
	assert.Equal(t, 1, sess.RetryCount)
	assert.NotContains(t, sess.Variables, "description")
	// Reason first, then the re-rendered prompt.
	require.Len(t, out.Renders, 2)
	assert.Equal(t, "Describe the issue", out.Renders[1].Text)
}

func TestAdvanceConditionFalseBranchProducesDelayEffect(t *testing.T) {
	exec := NewExecutor(nil, nopLogger())
	doc := grievanceDoc()
	sess := newSession()
	sess.CurrentStepID = "ask_desc"
	sess.Variables["rating"] = float64(1)

	out := exec.Advance(context.Background(), doc, sess, &model.InboundEvent{
		Kind: model.EventText, Text: "water leaking everywhere",
	})

	require.NotNil(t, out.Effect)
	assert.Equal(t, EffectDelay, out.Effect.Kind)
	assert.Equal(t, 30*time.Minute, out.Effect.Delay)
	assert.Equal(t, "done", out.Effect.ResumeStepID)
	assert.Equal(t, "done", sess.PendingResume)
}

func TestResumeMatchingPendingStep(t *testing.T) {
	exec := NewExecutor(nil, nopLogger())
	doc := grievanceDoc()
	sess := newSession()
	sess.CurrentStepID = "wait"
	sess.PendingResume = "done"

	out := exec.Advance(context.Background(), doc, sess, &model.InboundEvent{
		Kind: model.EventResume, ResumeStepID: "done",
	})

	assert.True(t, out.Terminal)
	assert.Empty(t, sess.PendingResume)
}

func TestResumeStaleResumptionIsIgnored(t *testing.T) {
	exec := NewExecutor(nil, nopLogger())
	doc := grievanceDoc()
	sess := newSession()
	sess.CurrentStepID = "menu"
	sess.PendingResume = ""

	out := exec.Advance(context.Background(), doc, sess, &model.InboundEvent{
		Kind: model.EventResume, ResumeStepID: "done",
	})

	assert.False(t, out.Terminal)
	assert.Empty(t, out.Renders)
}

func TestOrganicMessageAtDelayStepSkipsRemainingWait(t *testing.T) {
	exec := NewExecutor(nil, nopLogger())
	doc := grievanceDoc()
	sess := newSession()
	sess.CurrentStepID = "wait"
	sess.PendingResume = "done"

	out := exec.Advance(context.Background(), doc, sess, &model.InboundEvent{
		Kind: model.EventText, Text: "are you still there?",
	})

	assert.Empty(t, sess.PendingResume)
	assert.True(t, out.Terminal)
	require.Len(t, out.Renders, 1)
	assert.Equal(t, "Thanks!", out.Renders[0].Text)
}

func TestLanguageButtonSwitchesSessionLanguage(t *testing.T) {
	exec := NewExecutor(nil, nopLogger())
	doc := grievanceDoc()
	doc.SupportedLanguages = []string{"en", "hi"}
	doc.Steps["lang"] = model.Step{
		StepID:  "lang",
		Type:    model.StepInteractiveButtons,
		Content: map[string]string{"en": "Language?", "hi": "भाषा?"},
		Buttons: []model.Button{
			{ID: "lang_en", Title: "English", NextStepID: "welcome"},
			{ID: "lang_hi", Title: "हिंदी", NextStepID: "welcome"},
		},
	}
	sess := newSession()
	sess.CurrentStepID = "lang"

	exec.Advance(context.Background(), doc, sess, &model.InboundEvent{
		Kind: model.EventButtonClick, ButtonID: "lang_hi",
	})
	assert.Equal(t, "hi", sess.Language)

	// Unsupported language codes are ignored.
	sess.CurrentStepID = "lang"
	exec.Advance(context.Background(), doc, sess, &model.InboundEvent{
		Kind: model.EventButtonClick, ButtonID: "lang_fr",
	})
	assert.Equal(t, "hi", sess.Language)
}

func TestManualListSelectionSavesRow(t *testing.T) {
	exec := NewExecutor(nil, nopLogger())
	doc := grievanceDoc()
	doc.Steps["pick"] = model.Step{
		StepID:  "pick",
		Type:    model.StepList,
		Content: map[string]string{"en": "Pick a category"},
		List: &model.ListConfig{
			Source:      model.ListSourceManual,
			SaveToField: "category",
			Sections: []model.ListSection{{
				Title: "Categories",
				Rows: []model.ListRow{
					{ID: "water", Title: "Water", NextStepID: "done"},
					{ID: "roads", Title: "Roads", NextStepID: "done"},
				},
			}},
		},
	}
	sess := newSession()
	sess.CurrentStepID = "pick"

	out := exec.Advance(context.Background(), doc, sess, &model.InboundEvent{
		Kind: model.EventListSelect, ButtonID: "water",
	})

	assert.Equal(t, "water", sess.Variables["category"])
	assert.True(t, out.Terminal)
}

func TestDynamicListRendersProviderRows(t *testing.T) {
	provider := &fakeListProvider{rows: []model.ListRow{
		{ID: "dept_water", Title: "Water Supply"},
		{ID: "dept_roads", Title: "Roads"},
	}}
	exec := NewExecutor(provider, nopLogger())
	doc := grievanceDoc()
	doc.Steps["depts"] = model.Step{
		StepID:     "depts",
		Type:       model.StepList,
		Content:    map[string]string{"en": "Choose a department"},
		NextStepID: "done",
		List: &model.ListConfig{
			Source:      model.ListSourceDynamic,
			SaveToField: "department",
		},
	}
	sess := newSession()

	out := exec.Enter(context.Background(), doc, sess, "depts")
	require.Len(t, out.Renders, 1)
	require.Len(t, out.Renders[0].Sections, 1)
	assert.Len(t, out.Renders[0].Sections[0].Rows, 2)

	out = exec.Advance(context.Background(), doc, sess, &model.InboundEvent{
		Kind: model.EventListSelect, ButtonID: "dept_roads",
	})
	assert.Equal(t, "dept_roads", sess.Variables["department"])
	assert.True(t, out.Terminal)
}

func TestAssignDepartmentFromField(t *testing.T) {
	exec := NewExecutor(nil, nopLogger())
	doc := grievanceDoc()
	doc.Steps["assign"] = model.Step{
		StepID:     "assign",
		Type:       model.StepAssignDepartment,
		NextStepID: "done",
		Department: &model.DepartmentConfig{FromField: "category"},
	}
	sess := newSession()
	sess.Variables["category"] = "water"

	out := exec.Enter(context.Background(), doc, sess, "assign")
	assert.Equal(t, "water", sess.Variables["department"])
	assert.True(t, out.Terminal)
}

func TestAPICallStepProducesEffect(t *testing.T) {
	exec := NewExecutor(nil, nopLogger())
	doc := grievanceDoc()
	doc.Steps["submit"] = model.Step{
		StepID:     "submit",
		Type:       model.StepAPICall,
		NextStepID: "done",
		API: &model.APIConfig{
			Method:         "POST",
			Endpoint:       "https://api.example.com/grievances",
			SaveResponseTo: "grievance",
		},
	}
	sess := newSession()

	out := exec.Enter(context.Background(), doc, sess, "submit")
	require.NotNil(t, out.Effect)
	assert.Equal(t, EffectAPICall, out.Effect.Kind)
	assert.Equal(t, "submit", out.Effect.FromStepID)
	assert.False(t, out.Terminal)
}

func TestAdvanceOnNonWaitingStepReminds(t *testing.T) {
	exec := NewExecutor(nil, nopLogger())
	doc := grievanceDoc()
	sess := newSession()
	sess.CurrentStepID = "welcome"

	out := exec.Advance(context.Background(), doc, sess, &model.InboundEvent{
		Kind: model.EventText, Text: "hello?",
	})
	assert.True(t, out.AwaitInput)
	require.Len(t, out.Renders, 1)
	assert.Equal(t, builtin("not_understood", "en"), out.Renders[0].Text)
}
