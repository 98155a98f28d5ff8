package model

import "time"

// Timeline event types, one per source record shape.
const (
	EventBusinessCreated    = "business_created"
	EventContactCreated     = "contact_created"
	EventActivity           = "activity"
	EventEmail              = "email"
	EventSms                = "sms"
	EventOfferCreated       = "offer_created"
	EventOfferStatusChanged = "offer_status_changed"
	EventTicketCreated      = "ticket_created"
	EventTicketResolved     = "ticket_updated"
	EventTicketComment      = "ticket_comment"
)

// TimelineActor identifies who an event is attributed to.
type TimelineActor struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
}

// TimelineEvent is a derived, read-only projection of an underlying record.
// It is built on read and never persisted.
type TimelineEvent struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	Status      string         `json:"status,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Actor       *TimelineActor `json:"actor,omitempty"`
}
