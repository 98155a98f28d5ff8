package mq

import "time"

// SyncRequestedPayload asks the worker to run one sync for a mailbox connection.
type SyncRequestedPayload struct {
	ConnectionID string    `json:"connection_id"`
	OwnerID      string    `json:"owner_id"`
	Folder       string    `json:"folder,omitempty"`
	MaxMessages  int       `json:"max_messages,omitempty"`
	RequestedAt  time.Time `json:"requested_at"`
}

// EmailIngestedPayload is emitted once per newly stored email.
type EmailIngestedPayload struct {
	EmailID      string    `json:"email_id"`
	ConnectionID string    `json:"connection_id"`
	OwnerID      string    `json:"owner_id"`
	ExternalID   string    `json:"external_id"`
	FromAddress  string    `json:"from_address"`
	ToAddresses  []string  `json:"to_addresses"`
	SentAt       time.Time `json:"sent_at"`
}

const (
	RoutingKeySyncRequested = "mailbox.sync.requested"
	RoutingKeyEmailIngested = "email.ingested"
)
