package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/civicdesk/chatflow/internal/dispatch"
	"github.com/civicdesk/chatflow/internal/engine"
	"github.com/civicdesk/chatflow/internal/model"
	"github.com/civicdesk/chatflow/internal/scheduler"
	"github.com/civicdesk/chatflow/internal/store"
	"github.com/civicdesk/chatflow/pkg/logger"
)

type nopInvoker struct{}

func (nopInvoker) Call(ctx context.Context, cfg model.APIConfig, vars map[string]any) (map[string]any, error) {
	return map[string]any{}, nil
}

func newWebhookRouter(t *testing.T) (*chi.Mux, *dispatch.MemoryDispatcher) {
	t.Helper()
	log := &logger.Logger{Logger: zap.NewNop()}

	flows := store.NewFlowRepository()
	ctx := context.Background()
	doc := &model.FlowDocument{
		TenantID:        "pcmc",
		Name:            "intake",
		DefaultLanguage: "en",
		Triggers: []model.Trigger{
			{Kind: model.TriggerKeyword, Value: "grievance", StartStepID: "welcome"},
		},
		Steps: map[string]model.Step{
			"welcome": {
				StepID:  "welcome",
				Type:    model.StepEnd,
				Content: map[string]string{"en": "Welcome!"},
			},
		},
	}
	saved, err := flows.Save(ctx, doc)
	require.NoError(t, err)
	_, err = flows.Activate(ctx, saved.ID, saved.Version)
	require.NoError(t, err)

	dispatcher := dispatch.NewMemoryDispatcher()
	runner := engine.NewRunner(
		flows,
		store.NewMemorySessionStore(time.Hour),
		store.NewMemoryDeduper(time.Minute),
		store.NewMemoryConversationLocks(),
		dispatcher,
		nopInvoker{},
		scheduler.NewMemoryScheduler(),
		engine.NewExecutor(nil, log),
		engine.RunnerConfig{},
		log,
	)

	r := chi.NewRouter()
	r.Post("/webhook/{tenantID}", NewWebhookHandler(runner, log).Receive)
	return r, dispatcher
}

func TestWebhookReceiveProcessesEvent(t *testing.T) {
	router, dispatcher := newWebhookRouter(t)

	body := `{"event_id":"e1","conversation_id":"+919876543210","text":"grievance"}`
	req := httptest.NewRequest(http.MethodPost, "/webhook/pcmc", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["handled"])
	assert.Equal(t, float64(1), resp["messages"])

	sent := dispatcher.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "Welcome!", sent[0].Text)
}

func TestWebhookReceiveRejectsBadPayloads(t *testing.T) {
	router, _ := newWebhookRouter(t)

	cases := []struct {
		name string
		body string
	}{
		{"not json", `{{`},
		{"missing event id", `{"conversation_id":"c1","text":"hi"}`},
		{"missing conversation id", `{"event_id":"e1","text":"hi"}`},
		{"unknown kind", `{"event_id":"e1","conversation_id":"c1","kind":"teleport"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/webhook/pcmc", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}
