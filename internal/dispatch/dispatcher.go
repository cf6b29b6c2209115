// Package dispatch hands rendered messages to the messaging transport.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/civicdesk/chatflow/internal/model"
	natsclient "github.com/civicdesk/chatflow/internal/nats"
)

// NATSDispatcher publishes outbound messages to the JetStream chat stream,
// where a transport bridge picks them up for provider delivery. Delivery
// retries beyond this point are the bridge's responsibility.
type NATSDispatcher struct {
	streams *natsclient.StreamManager
}

// NewNATSDispatcher creates a JetStream-backed dispatcher.
func NewNATSDispatcher(streams *natsclient.StreamManager) *NATSDispatcher {
	return &NATSDispatcher{streams: streams}
}

// Send publishes one rendered message.
func (d *NATSDispatcher) Send(ctx context.Context, msg model.OutboundMessage) (model.DeliveryReceipt, error) {
	seq, err := d.streams.PublishOutbound(ctx, &msg)
	if err != nil {
		return model.DeliveryReceipt{}, err
	}
	return model.DeliveryReceipt{
		MessageID: uuid.Must(uuid.NewV7()).String(),
		Sequence:  seq,
		SentAt:    time.Now(),
	}, nil
}

// MemoryDispatcher records sent messages in memory. Used in tests.
type MemoryDispatcher struct {
	mu   sync.Mutex
	sent []model.OutboundMessage
}

// NewMemoryDispatcher creates an in-memory dispatcher.
func NewMemoryDispatcher() *MemoryDispatcher {
	return &MemoryDispatcher{}
}

// Send records the message.
func (d *MemoryDispatcher) Send(ctx context.Context, msg model.OutboundMessage) (model.DeliveryReceipt, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, msg)
	return model.DeliveryReceipt{
		MessageID: uuid.Must(uuid.NewV7()).String(),
		SentAt:    time.Now(),
	}, nil
}

// Sent returns a copy of everything recorded so far.
func (d *MemoryDispatcher) Sent() []model.OutboundMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]model.OutboundMessage, len(d.sent))
	copy(out, d.sent)
	return out
}
