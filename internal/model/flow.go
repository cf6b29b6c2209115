// Package model defines data structures for the flow engine.
package model

import (
	"time"
)

// StepType identifies the behavior of a flow step.
type StepType string

const (
	StepMessage            StepType = "message"
	StepInteractiveButtons StepType = "interactiveButtons"
	StepList               StepType = "list"
	StepCollectInput       StepType = "collectInput"
	StepCondition          StepType = "condition"
	StepAPICall            StepType = "apiCall"
	StepDelay              StepType = "delay"
	StepAssignDepartment   StepType = "assignDepartment"
	StepEnd                StepType = "end"
)

// TriggerKind identifies how an inbound event can start a flow.
type TriggerKind string

const (
	TriggerKeyword     TriggerKind = "keyword"
	TriggerButtonClick TriggerKind = "buttonClick"
	TriggerAny         TriggerKind = "any"
)

// Trigger maps an inbound event to the step a new conversation starts at.
type Trigger struct {
	Kind        TriggerKind `json:"kind"`
	Value       string      `json:"value,omitempty"`
	StartStepID string      `json:"start_step_id"`
}

// Button is a tappable option rendered with an interactiveButtons step.
type Button struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	NextStepID  string `json:"next_step_id,omitempty"`
}

// ExpectedResponse routes a matching inbound event to a step.
type ExpectedResponse struct {
	Kind       EventKind `json:"kind"`
	Value      string    `json:"value"`
	NextStepID string    `json:"next_step_id"`
}

// ListSource says where a list step's rows come from.
type ListSource string

const (
	ListSourceManual  ListSource = "manual"
	ListSourceDynamic ListSource = "dynamic"
)

// ListRow is one selectable row in a list step.
type ListRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	NextStepID  string `json:"next_step_id,omitempty"`
}

// ListSection groups rows under a heading.
type ListSection struct {
	Title string    `json:"title"`
	Rows  []ListRow `json:"rows"`
}

// ListConfig configures a list step. Dynamic lists are populated at render
// time by a DynamicListProvider; manual lists carry their sections inline.
type ListConfig struct {
	Source      ListSource    `json:"source"`
	ButtonText  string        `json:"button_text,omitempty"`
	Sections    []ListSection `json:"sections,omitempty"`
	SaveToField string        `json:"save_to_field,omitempty"`
}

// InputType identifies what kind of value a collectInput step expects.
type InputType string

const (
	InputText     InputType = "text"
	InputNumber   InputType = "number"
	InputEmail    InputType = "email"
	InputPhone    InputType = "phone"
	InputDate     InputType = "date"
	InputImage    InputType = "image"
	InputLocation InputType = "location"
)

// ValidationRules bound what a collectInput step accepts.
type ValidationRules struct {
	Required     bool   `json:"required"`
	MinLength    int    `json:"min_length,omitempty"`
	MaxLength    int    `json:"max_length,omitempty"`
	Pattern      string `json:"pattern,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// InputConfig configures a collectInput step.
type InputConfig struct {
	InputType   InputType       `json:"input_type"`
	SaveToField string          `json:"save_to_field"`
	Validation  ValidationRules `json:"validation"`
	Placeholder string          `json:"placeholder,omitempty"`
}

// ConditionOperator is the comparison applied by a condition step.
type ConditionOperator string

const (
	OpEquals    ConditionOperator = "equals"
	OpNotEquals ConditionOperator = "notEquals"
	OpContains  ConditionOperator = "contains"
	OpGt        ConditionOperator = "gt"
	OpLt        ConditionOperator = "lt"
	OpExists    ConditionOperator = "exists"
)

// ConditionConfig configures a condition step. Either Field/Operator/Value or
// a free-form Expression must be set; Expression wins when both are present.
type ConditionConfig struct {
	Field       string            `json:"field,omitempty"`
	Operator    ConditionOperator `json:"operator,omitempty"`
	Value       any               `json:"value,omitempty"`
	Expression  string            `json:"expression,omitempty"`
	TrueStepID  string            `json:"true_step_id"`
	FalseStepID string            `json:"false_step_id"`
}

// APIConfig configures an apiCall step. Endpoint and body values may contain
// {path} placeholders resolved against the session variables.
type APIConfig struct {
	Method         string            `json:"method"`
	Endpoint       string            `json:"endpoint"`
	Headers        map[string]string `json:"headers,omitempty"`
	Body           map[string]any    `json:"body,omitempty"`
	SaveResponseTo string            `json:"save_response_to,omitempty"`
	FailureStepID  string            `json:"failure_step_id,omitempty"`
}

// DelayConfig configures a delay step.
type DelayConfig struct {
	Duration int    `json:"duration"`
	Unit     string `json:"unit"` // seconds | minutes | hours
}

// Interval converts the configured duration to a time.Duration.
// Unknown units are treated as seconds.
func (d DelayConfig) Interval() time.Duration {
	base := time.Duration(d.Duration)
	switch d.Unit {
	case "minutes":
		return base * time.Minute
	case "hours":
		return base * time.Hour
	default:
		return base * time.Second
	}
}

// DepartmentConfig configures an assignDepartment step. DepartmentID assigns
// a fixed department; FromField copies the id collected in a prior step.
type DepartmentConfig struct {
	DepartmentID string `json:"department_id,omitempty"`
	FromField    string `json:"from_field,omitempty"`
	SaveToField  string `json:"save_to_field,omitempty"`
}

// Step is one node in the flow state machine, tagged by Type. Only the
// config block matching the type is consulted.
type Step struct {
	StepID     string            `json:"step_id"`
	Type       StepType          `json:"type"`
	Name       string            `json:"name,omitempty"`
	Content    map[string]string `json:"content,omitempty"` // language code -> text
	NextStepID string            `json:"next_step_id,omitempty"`

	Buttons           []Button           `json:"buttons,omitempty"`
	ExpectedResponses []ExpectedResponse `json:"expected_responses,omitempty"`
	List              *ListConfig        `json:"list,omitempty"`
	Input             *InputConfig       `json:"input,omitempty"`
	Condition         *ConditionConfig   `json:"condition,omitempty"`
	API               *APIConfig         `json:"api,omitempty"`
	Delay             *DelayConfig       `json:"delay,omitempty"`
	Department        *DepartmentConfig  `json:"department,omitempty"`
}

// WaitsForInput reports whether the step pauses the chain until the user
// replies.
func (s *Step) WaitsForInput() bool {
	switch s.Type {
	case StepInteractiveButtons, StepList, StepCollectInput:
		return true
	}
	return false
}

// FlowSettings carries per-document runtime policy.
type FlowSettings struct {
	SessionTimeout       time.Duration     `json:"session_timeout"`
	MaxRetries           int               `json:"max_retries"`
	MaxChainLength       int               `json:"max_chain_length,omitempty"`
	ErrorFallback        map[string]string `json:"error_fallback,omitempty"` // language -> text
	EscalationStepID     string            `json:"escalation_step_id,omitempty"`
	ResetKeywords        []string          `json:"reset_keywords,omitempty"`
	KeepVariablesOnReset bool              `json:"keep_variables_on_reset"`
}

// FlowDocument is the declarative program for one conversational flow.
type FlowDocument struct {
	ID                 string          `json:"id"`
	TenantID           string          `json:"tenant_id"`
	Name               string          `json:"name"`
	Description        string          `json:"description,omitempty"`
	IsActive           bool            `json:"is_active"`
	Version            int             `json:"version"`
	Priority           int             `json:"priority"`
	Triggers           []Trigger       `json:"triggers"`
	Steps              map[string]Step `json:"steps"`
	SupportedLanguages []string        `json:"supported_languages,omitempty"`
	DefaultLanguage    string          `json:"default_language"`
	Settings           FlowSettings    `json:"settings"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	ActivatedAt        time.Time       `json:"activated_at,omitempty"`
}

// StepByID looks up a step in the document.
func (d *FlowDocument) StepByID(id string) (*Step, bool) {
	s, ok := d.Steps[id]
	if !ok {
		return nil, false
	}
	return &s, true
}

// MaxRetries returns the configured retry ceiling, defaulting to 3.
func (d *FlowDocument) MaxRetries() int {
	if d.Settings.MaxRetries > 0 {
		return d.Settings.MaxRetries
	}
	return 3
}

// MaxChainLength bounds how many steps a single event may advance through,
// defaulting to 10. Guards against misauthored message loops.
func (d *FlowDocument) MaxChainLength() int {
	if d.Settings.MaxChainLength > 0 {
		return d.Settings.MaxChainLength
	}
	return 10
}

// SessionTimeout returns the configured idle timeout, defaulting to 30m.
func (d *FlowDocument) SessionTimeout() time.Duration {
	if d.Settings.SessionTimeout > 0 {
		return d.Settings.SessionTimeout
	}
	return 30 * time.Minute
}
