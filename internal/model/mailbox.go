package model

import "time"

// Provider kind tags stored on a mailbox connection. The tag selects which
// adapter family handles the connection.
const (
	ProviderOutlook = "outlook" // paged list + per-item content fetch
	ProviderGmail   = "gmail"   // resumable delta-change stream
)

// MailboxConnection binds a user to one external mailbox via stored OAuth
// credentials. Only the credential manager mutates token fields.
type MailboxConnection struct {
	ID           string
	OwnerID      string
	Provider     string
	Email        string
	AccessToken  string
	RefreshToken string
	// Nil means the access token does not expire.
	ExpiresAt    *time.Time
	DeltaCursor  string
	LastSyncedAt *time.Time
	CreatedAt    time.Time
}

// Expired reports whether the access token needs a refresh.
func (c *MailboxConnection) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

// SyncedEmail is the canonical internal representation of one external
// message. (MailboxConnectionID, ExternalID) is the idempotency key.
type SyncedEmail struct {
	ID                  string
	OwnerID             string
	MailboxConnectionID string
	ExternalID          string
	ThreadID            string
	Subject             string
	FromAddress         string
	FromName            string
	ToAddresses         []string
	CcAddresses         []string
	SentAt              time.Time
	ReceivedAt          time.Time
	BodyText            string
	BodyHTML            string
	IsRead              bool
	IsStarred           bool
	IsDeleted           bool
	BusinessID          *string
	ContactID           *string
	CreatedAt           time.Time
}
