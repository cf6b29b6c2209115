package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/civicdesk/chatflow/internal/model"
	"github.com/civicdesk/chatflow/pkg/logger"
	"github.com/civicdesk/chatflow/pkg/metrics"
)

// ErrSessionNotFound is returned by a SessionStore when no session exists
// for a conversation.
var ErrSessionNotFound = errors.New("session not found")

// FlowRepository reads flow documents. The engine never writes documents.
type FlowRepository interface {
	ActiveDocuments(ctx context.Context, tenantID string) ([]*model.FlowDocument, error)
	GetByID(ctx context.Context, flowID string, version int) (*model.FlowDocument, error)
}

// SessionStore persists conversation sessions. Delete exists for external
// retention jobs; the runner never calls it.
type SessionStore interface {
	Get(ctx context.Context, conversationID string) (*model.Session, error)
	Save(ctx context.Context, session *model.Session) error
	Delete(ctx context.Context, conversationID string) error
}

// Deduper drops redelivered transport events by event id.
type Deduper interface {
	// Seen marks the event id and reports whether it was already marked.
	Seen(ctx context.Context, eventID string) (bool, error)
	// Forget unmarks an event id so a redelivery is processed again.
	Forget(ctx context.Context, eventID string) error
}

// ConversationLocks serializes event handling per conversation.
type ConversationLocks interface {
	// Acquire blocks until the conversation lock is held and returns the
	// release function.
	Acquire(ctx context.Context, conversationID string) (release func(), err error)
}

// Dispatcher hands rendered content to the transport. Delivery retries are
// the dispatcher's concern, not the engine's.
type Dispatcher interface {
	Send(ctx context.Context, msg model.OutboundMessage) (model.DeliveryReceipt, error)
}

// APIInvoker performs apiCall steps against external systems.
type APIInvoker interface {
	Call(ctx context.Context, cfg model.APIConfig, vars map[string]any) (map[string]any, error)
}

// DelayScheduler schedules and cancels deferred session resumptions.
type DelayScheduler interface {
	Schedule(ctx context.Context, conversationID, tenantID, resumeStepID string, delay time.Duration) error
	Cancel(ctx context.Context, conversationID string) error
}

// Default reset keywords, used when a document configures none. A recognized
// reset keyword abandons the current position and re-enters trigger matching.
var defaultResetKeywords = []string{"hi", "hii", "hello", "start", "restart", "menu", "namaste"}

// RunnerConfig bounds the runner's handling of external calls.
type RunnerConfig struct {
	APICallTimeout time.Duration
	APIMaxRetries  int
	APIRetryWait   time.Duration
}

// Runner is the engine entry point, invoked once per inbound event. It owns
// the session lifecycle and wires trigger matching, step execution, side
// effects and dispatch together.
type Runner struct {
	flows     FlowRepository
	sessions  SessionStore
	dedup     Deduper
	locks     ConversationLocks
	dispatch  Dispatcher
	invoker   APIInvoker
	scheduler DelayScheduler
	executor  *Executor
	cfg       RunnerConfig
	log       *logger.Logger
}

// NewRunner creates a flow runner.
func NewRunner(
	flows FlowRepository,
	sessions SessionStore,
	dedup Deduper,
	locks ConversationLocks,
	dispatch Dispatcher,
	invoker APIInvoker,
	scheduler DelayScheduler,
	executor *Executor,
	cfg RunnerConfig,
	log *logger.Logger,
) *Runner {
	if cfg.APICallTimeout <= 0 {
		cfg.APICallTimeout = 15 * time.Second
	}
	if cfg.APIMaxRetries <= 0 {
		cfg.APIMaxRetries = 2
	}
	if cfg.APIRetryWait <= 0 {
		cfg.APIRetryWait = 500 * time.Millisecond
	}
	return &Runner{
		flows:     flows,
		sessions:  sessions,
		dedup:     dedup,
		locks:     locks,
		dispatch:  dispatch,
		invoker:   invoker,
		scheduler: scheduler,
		executor:  executor,
		cfg:       cfg,
		log:       log,
	}
}

// HandleEvent processes one inbound event end to end and returns the
// messages dispatched for it. Events for the same conversation are strictly
// serialized; duplicates are dropped.
func (r *Runner) HandleEvent(ctx context.Context, event *model.InboundEvent) ([]model.OutboundMessage, error) {
	release, err := r.locks.Acquire(ctx, event.ConversationID)
	if err != nil {
		return nil, err
	}
	defer release()

	if event.EventID != "" {
		seen, err := r.dedup.Seen(ctx, event.EventID)
		if err != nil {
			r.log.Warn("dedup check failed, processing anyway",
				zap.String("event_id", event.EventID), zap.Error(err))
		} else if seen {
			metrics.DuplicateEvents.WithLabelValues(event.TenantID).Inc()
			return nil, nil
		}
	}

	renders, err := r.process(ctx, event)
	if err != nil {
		if event.EventID != "" {
			// Unmark the id so the transport's redelivery is not dropped
			// as a duplicate of this failed attempt.
			if ferr := r.dedup.Forget(ctx, event.EventID); ferr != nil {
				r.log.Warn("failed to unmark event after processing error",
					zap.String("event_id", event.EventID), zap.Error(ferr))
			}
		}
		metrics.EventsProcessed.WithLabelValues(event.TenantID, "error").Inc()
		return nil, err
	}
	metrics.EventsProcessed.WithLabelValues(event.TenantID, "ok").Inc()

	for _, msg := range renders {
		if _, err := r.dispatch.Send(ctx, msg); err != nil {
			// Delivery is the transport's problem; ours ends at handing over.
			r.log.Error("dispatch failed",
				zap.String("conversation_id", msg.ConversationID), zap.Error(err))
		}
		metrics.OutboundMessages.WithLabelValues(msg.TenantID, string(msg.Kind)).Inc()
	}
	return renders, nil
}

func (r *Runner) process(ctx context.Context, event *model.InboundEvent) ([]model.OutboundMessage, error) {
	now := time.Now()

	sess, doc, expired := r.loadActive(ctx, event, now)

	if sess != nil && r.isReset(doc, event) {
		r.log.Info("reset keyword received, re-entering trigger matching",
			zap.String("conversation_id", event.ConversationID))
		vars := map[string]any{}
		if doc != nil && doc.Settings.KeepVariablesOnReset {
			vars = sess.Variables
		}
		sess.Status = model.SessionAbandoned
		sess.Touch(now)
		r.endSession(ctx, sess)
		return r.startConversation(ctx, event, vars, nil, now)
	}

	if sess == nil {
		return r.startConversation(ctx, event, map[string]any{}, expired, now)
	}

	hadPendingResume := sess.PendingResume != ""
	outcome := r.executor.Advance(ctx, doc, sess, event)
	if hadPendingResume && event.Kind != model.EventResume {
		if err := r.scheduler.Cancel(ctx, sess.ConversationID); err != nil {
			r.log.Warn("failed to cancel pending resumption",
				zap.String("conversation_id", sess.ConversationID), zap.Error(err))
		} else {
			metrics.DelayedResumptions.WithLabelValues("cancelled").Inc()
		}
	}

	return r.finish(ctx, doc, sess, outcome, now)
}

// loadActive returns the session and its pinned document when the session
// is still live. Expired or orphaned sessions are closed out here; a session
// that expired on this very event comes back as the third return so the
// caller can tell the citizen why the flow did not pick up where it left off.
func (r *Runner) loadActive(ctx context.Context, event *model.InboundEvent, now time.Time) (*model.Session, *model.FlowDocument, *model.Session) {
	sess, err := r.sessions.Get(ctx, event.ConversationID)
	if err != nil {
		if !errors.Is(err, ErrSessionNotFound) {
			r.log.Error("session load failed",
				zap.String("conversation_id", event.ConversationID), zap.Error(err))
		}
		return nil, nil, nil
	}
	if sess.Status != model.SessionActive {
		return nil, nil, nil
	}

	doc, err := r.flows.GetByID(ctx, sess.FlowID, sess.FlowVersion)
	if err != nil || doc == nil {
		r.log.Warn("pinned flow document unavailable, abandoning session",
			zap.String("conversation_id", sess.ConversationID),
			zap.String("flow_id", sess.FlowID),
			zap.Int("flow_version", sess.FlowVersion))
		sess.Status = model.SessionAbandoned
		sess.Touch(now)
		r.endSession(ctx, sess)
		return nil, nil, nil
	}

	if sess.IdleSince(now) > doc.SessionTimeout() {
		r.log.Info("session expired",
			zap.String("conversation_id", sess.ConversationID),
			zap.Duration("idle", sess.IdleSince(now)))
		sess.Status = model.SessionExpired
		sess.Touch(now)
		r.endSession(ctx, sess)
		return nil, nil, sess
	}

	return sess, doc, nil
}

func (r *Runner) startConversation(ctx context.Context, event *model.InboundEvent, vars map[string]any, expired *model.Session, now time.Time) ([]model.OutboundMessage, error) {
	// Scheduled resumptions never start conversations.
	if event.Kind == model.EventResume {
		return nil, nil
	}

	docs, err := r.flows.ActiveDocuments(ctx, event.TenantID)
	if err != nil {
		return nil, err
	}

	match, err := ResolveTrigger(event, docs)
	if errors.Is(err, ErrNoMatch) {
		metrics.EventsProcessed.WithLabelValues(event.TenantID, "no_match").Inc()
		text := builtin("not_understood", "")
		if expired != nil {
			text = builtin("session_expired", expired.Language)
		}
		return []model.OutboundMessage{{
			ConversationID: event.ConversationID,
			TenantID:       event.TenantID,
			Kind:           model.OutboundText,
			Text:           text,
		}}, nil
	}
	if err != nil {
		return nil, err
	}

	doc := match.Document
	if vars == nil {
		vars = map[string]any{}
	}
	sess := &model.Session{
		ConversationID: event.ConversationID,
		TenantID:       event.TenantID,
		FlowID:         doc.ID,
		FlowVersion:    doc.Version,
		CurrentStepID:  match.StartStepID,
		Language:       doc.DefaultLanguage,
		Variables:      vars,
		Status:         model.SessionActive,
		StartedAt:      now,
		LastActivityAt: now,
	}
	metrics.SessionsStarted.WithLabelValues(event.TenantID, doc.ID).Inc()
	metrics.ActiveSessions.WithLabelValues(event.TenantID).Inc()

	outcome := r.executor.Enter(ctx, doc, sess, match.StartStepID)
	return r.finish(ctx, doc, sess, outcome, now)
}

// finish runs outstanding side effects, settles the session lifecycle and
// persists the session.
func (r *Runner) finish(ctx context.Context, doc *model.FlowDocument, sess *model.Session, outcome *Outcome, now time.Time) ([]model.OutboundMessage, error) {
	renders := outcome.Renders

	for outcome.Effect != nil {
		effect := outcome.Effect
		switch effect.Kind {
		case EffectAPICall:
			outcome = r.runAPICall(ctx, doc, sess, effect)
		case EffectDelay:
			if err := r.scheduler.Schedule(ctx, sess.ConversationID, sess.TenantID, effect.ResumeStepID, effect.Delay); err != nil {
				r.log.Error("failed to schedule delayed resumption",
					zap.String("conversation_id", sess.ConversationID), zap.Error(err))
				out := &Outcome{}
				r.executor.failClosed(doc, sess, effect.FromStepID, out)
				outcome = out
			} else {
				metrics.DelayedResumptions.WithLabelValues("scheduled").Inc()
				outcome = &Outcome{}
			}
		default:
			outcome = &Outcome{}
		}
		renders = append(renders, outcome.Renders...)
	}

	sess.Touch(now)
	if outcome.Terminal {
		if sess.Status == model.SessionActive {
			sess.Status = model.SessionCompleted
		}
		r.endSession(ctx, sess)
	} else if err := r.sessions.Save(ctx, sess); err != nil {
		return renders, err
	}
	return renders, nil
}

// runAPICall performs an apiCall side effect with bounded retries and
// backoff, then re-enters the executor at the follow-on step. Exhaustion
// falls back to the authored failure step, or fails closed: the conversation
// is never left silently stuck.
func (r *Runner) runAPICall(ctx context.Context, doc *model.FlowDocument, sess *model.Session, effect *SideEffect) *Outcome {
	step, ok := doc.StepByID(effect.FromStepID)
	if !ok {
		out := &Outcome{}
		r.executor.failClosed(doc, sess, effect.FromStepID, out)
		return out
	}

	var (
		response map[string]any
		err      error
	)
	start := time.Now()
	for attempt := 0; attempt <= r.cfg.APIMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				err = ctx.Err()
			case <-time.After(r.cfg.APIRetryWait * time.Duration(attempt)):
			}
			if err != nil {
				break
			}
		}
		callCtx, cancel := context.WithTimeout(ctx, r.cfg.APICallTimeout)
		response, err = r.invoker.Call(callCtx, *effect.API, sess.Variables)
		cancel()
		if err == nil {
			break
		}
		r.log.Warn("apiCall attempt failed",
			zap.String("conversation_id", sess.ConversationID),
			zap.String("endpoint", effect.API.Endpoint),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	elapsed := time.Since(start).Seconds()

	if err != nil {
		metrics.RecordExternalCall(sess.TenantID, "failure", elapsed)
		if effect.API.FailureStepID != "" {
			return r.executor.Enter(ctx, doc, sess, effect.API.FailureStepID)
		}
		out := &Outcome{}
		r.executor.failClosed(doc, sess, effect.FromStepID, out)
		return out
	}

	metrics.RecordExternalCall(sess.TenantID, "success", elapsed)
	if effect.API.SaveResponseTo != "" {
		Write(sess.Variables, effect.API.SaveResponseTo, response)
	}
	if step.NextStepID == "" {
		return &Outcome{Terminal: true}
	}
	return r.executor.Enter(ctx, doc, sess, step.NextStepID)
}

func (r *Runner) endSession(ctx context.Context, sess *model.Session) {
	metrics.ActiveSessions.WithLabelValues(sess.TenantID).Dec()
	metrics.SessionsEnded.WithLabelValues(sess.TenantID, string(sess.Status)).Inc()
	if err := r.sessions.Save(ctx, sess); err != nil {
		r.log.Error("failed to persist ended session",
			zap.String("conversation_id", sess.ConversationID), zap.Error(err))
	}
}

func (r *Runner) isReset(doc *model.FlowDocument, event *model.InboundEvent) bool {
	if event.Kind != model.EventText {
		return false
	}
	keywords := defaultResetKeywords
	if doc != nil && len(doc.Settings.ResetKeywords) > 0 {
		keywords = doc.Settings.ResetKeywords
	}
	text := strings.TrimSpace(event.Text)
	for _, kw := range keywords {
		if strings.EqualFold(text, kw) {
			return true
		}
	}
	return false
}
