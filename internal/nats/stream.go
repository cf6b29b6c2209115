package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/civicdesk/chatflow/internal/model"
)

const (
	// StreamName is the name of the outbound chat stream.
	StreamName = "CHATFLOW"

	// SubjectPrefix is the prefix for all chat subjects.
	SubjectPrefix = "chat"
)

// StreamManager handles JetStream stream operations for the outbound chat
// stream. Transport bridges consume it to deliver messages to the provider;
// it doubles as the conversation audit trail.
type StreamManager struct {
	client *Client
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(client *Client) *StreamManager {
	return &StreamManager{client: client}
}

// EnsureStream ensures the chat stream exists with proper configuration.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	js := m.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      90 * 24 * time.Hour,
		MaxBytes:    10 * 1024 * 1024 * 1024, // 10GB
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Outbound chat messages awaiting transport delivery",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// OutboundSubject returns the subject a rendered message is published to.
func OutboundSubject(tenantID, conversationID string) string {
	return fmt.Sprintf("%s.%s.%s.out", SubjectPrefix, tenantID, conversationID)
}

// PublishOutbound publishes a rendered message for transport delivery and
// returns its stream sequence.
func (m *StreamManager) PublishOutbound(ctx context.Context, msg *model.OutboundMessage) (uint64, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal message: %w", err)
	}

	ack, err := m.client.JetStream().Publish(ctx, OutboundSubject(msg.TenantID, msg.ConversationID), data)
	if err != nil {
		return 0, fmt.Errorf("failed to publish message: %w", err)
	}

	return ack.Sequence, nil
}
