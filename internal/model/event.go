package model

import (
	"time"
)

// EventKind identifies what kind of inbound event the transport delivered.
type EventKind string

const (
	EventText        EventKind = "text"
	EventButtonClick EventKind = "buttonClick"
	EventListSelect  EventKind = "listSelect"
	EventMedia       EventKind = "media"
	EventLocation    EventKind = "location"
	// EventResume is synthesized by the scheduler when a delay step elapses.
	EventResume EventKind = "resume"
)

// InboundEvent is one message or interaction delivered by the transport.
// EventID is the transport's message id and is the dedup key: redelivery of
// the same id must not advance the state machine twice.
type InboundEvent struct {
	EventID        string    `json:"event_id"`
	ConversationID string    `json:"conversation_id"`
	TenantID       string    `json:"tenant_id"`
	Kind           EventKind `json:"kind"`
	Text           string    `json:"text,omitempty"`
	ButtonID       string    `json:"button_id,omitempty"`
	MediaRef       string    `json:"media_ref,omitempty"`
	Latitude       float64   `json:"latitude,omitempty"`
	Longitude      float64   `json:"longitude,omitempty"`
	ResumeStepID   string    `json:"resume_step_id,omitempty"`
	ReceivedAt     time.Time `json:"received_at"`
}

// Value returns the raw payload the current step should consume.
func (e *InboundEvent) Value() string {
	switch e.Kind {
	case EventButtonClick, EventListSelect:
		return e.ButtonID
	case EventMedia:
		return e.MediaRef
	default:
		return e.Text
	}
}

// OutboundKind identifies the shape of an outbound render.
type OutboundKind string

const (
	OutboundText    OutboundKind = "text"
	OutboundButtons OutboundKind = "buttons"
	OutboundList    OutboundKind = "list"
)

// OutboundMessage is one rendered message ready for the dispatcher. The
// engine's contract ends once it has produced this; delivery retries belong
// to the transport.
type OutboundMessage struct {
	ConversationID string        `json:"conversation_id"`
	TenantID       string        `json:"tenant_id"`
	Kind           OutboundKind  `json:"kind"`
	Text           string        `json:"text"`
	Buttons        []Button      `json:"buttons,omitempty"`
	ListButton     string        `json:"list_button,omitempty"`
	Sections       []ListSection `json:"sections,omitempty"`
}

// DeliveryReceipt is returned by the dispatcher after handing a message to
// the transport.
type DeliveryReceipt struct {
	MessageID string    `json:"message_id"`
	Sequence  uint64    `json:"sequence,omitempty"`
	SentAt    time.Time `json:"sent_at"`
}
