package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/civicdesk/chatflow/internal/model"
)

func checkableDoc() *model.FlowDocument {
	return &model.FlowDocument{
		ID:              "f1",
		DefaultLanguage: "en",
		Triggers: []model.Trigger{
			{Kind: model.TriggerKeyword, Value: "hi", StartStepID: "welcome"},
		},
		Steps: map[string]model.Step{
			"welcome": {
				StepID:     "welcome",
				Type:       model.StepMessage,
				Content:    map[string]string{"en": "hi"},
				NextStepID: "done",
			},
			"done": {
				StepID: "done",
				Type:   model.StepEnd,
			},
		},
	}
}

func TestCheckDocumentAcceptsValidDocument(t *testing.T) {
	assert.Empty(t, CheckDocument(checkableDoc()))
}

func TestCheckDocumentRejectsEmptyDocument(t *testing.T) {
	errs := CheckDocument(&model.FlowDocument{ID: "empty"})
	assert.Len(t, errs, 1)
}

func TestCheckDocumentFindsDanglingReferences(t *testing.T) {
	doc := checkableDoc()
	step := doc.Steps["welcome"]
	step.NextStepID = "missing"
	doc.Steps["welcome"] = step

	errs := CheckDocument(doc)
	assert.NotEmpty(t, errs)
	found := false
	for _, e := range errs {
		if strings.Contains(e.Error(), `references missing step "missing"`) {
			found = true
		}
	}
	assert.True(t, found, "expected a dangling reference problem, got %v", errs)
}

func TestCheckDocumentFindsDanglingTriggerStart(t *testing.T) {
	doc := checkableDoc()
	doc.Triggers[0].StartStepID = "missing"
	assert.NotEmpty(t, CheckDocument(doc))
}

func TestCheckDocumentFindsUnreachableStep(t *testing.T) {
	doc := checkableDoc()
	doc.Steps["island"] = model.Step{StepID: "island", Type: model.StepMessage, Content: map[string]string{"en": "hi"}}
	errs := CheckDocument(doc)
	assert.Len(t, errs, 1)
}

func TestCheckDocumentRequiresReachableEndStep(t *testing.T) {
	doc := checkableDoc()
	delete(doc.Steps, "done")
	step := doc.Steps["welcome"]
	step.NextStepID = ""
	doc.Steps["welcome"] = step

	errs := CheckDocument(doc)
	assert.NotEmpty(t, errs)
}

func TestCheckDocumentFindsMissingTypeConfigs(t *testing.T) {
	doc := checkableDoc()
	doc.Steps["cond"] = model.Step{StepID: "cond", Type: model.StepCondition}
	step := doc.Steps["welcome"]
	step.NextStepID = "cond"
	doc.Steps["welcome"] = step

	errs := CheckDocument(doc)
	assert.NotEmpty(t, errs)
}

func TestCheckDocumentRejectsEndWithNext(t *testing.T) {
	doc := checkableDoc()
	doc.Steps["done"] = model.Step{StepID: "done", Type: model.StepEnd, NextStepID: "welcome"}
	assert.NotEmpty(t, CheckDocument(doc))
}
