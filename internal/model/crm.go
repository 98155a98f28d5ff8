package model

import "time"

type User struct {
	ID           string
	WorkspaceID  string
	Name         string
	Email        string
	PasswordHash string
	Image        string
	CreatedAt    time.Time
}

type Business struct {
	ID          string
	WorkspaceID string
	Name        string
	Email       string
	Status      string
	Stage       string
	CreatedAt   time.Time
}

type Contact struct {
	ID         string
	BusinessID string
	Name       string
	Email      string
	Phone      string
	Position   string
	IsPrimary  bool
	CreatedAt  time.Time
}

type Activity struct {
	ID          string
	BusinessID  *string
	ContactID   *string
	UserID      *string
	Type        string // call, meeting, email, note
	Description string
	Outcome     string
	Completed   bool
	Date        time.Time
}

type SmsMessage struct {
	ID         string
	BusinessID *string
	ContactID  *string
	Direction  string // inbound, outbound
	Content    string
	Status     string
	SentAt     time.Time
}

type Offer struct {
	ID          string
	BusinessID  string
	Title       string
	Status      string // draft, sent, accepted, rejected, expired
	TotalAmount float64
	Currency    string
	ItemCount   int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Ticket struct {
	ID         string
	BusinessID *string
	CreatorID  *string
	AssigneeID *string
	Title      string
	Status     string
	Priority   string
	CreatedAt  time.Time
	ResolvedAt *time.Time
}

type TicketComment struct {
	ID         string
	TicketID   string
	AuthorID   string
	Content    string
	IsInternal bool
	CreatedAt  time.Time
}
