package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sailsdock/internal/mailparse"
	"sailsdock/internal/model"
	"sailsdock/internal/provider"
	"sailsdock/internal/repository"
	applog "sailsdock/pkg/logger"
	"sailsdock/pkg/metrics"
	"sailsdock/pkg/mq"
	"sailsdock/pkg/outbox"
)

// EmailStore is the persistence surface ingestion needs.
type EmailStore interface {
	CreateWithEvent(ctx context.Context, e *model.SyncedEmail, event *outbox.Event) error
	FindByConnectionAndExternalID(ctx context.Context, connectionID, externalID string) (*model.SyncedEmail, error)
}

// Options carries optional associations established before insert.
type Options struct {
	BusinessID *string
	ContactID  *string
}

// Result reports where a raw message ended up. Created is false when the
// idempotency key already existed and the stored row was reused.
type Result struct {
	EmailID    string
	ExternalID string
	Created    bool
}

type Service struct {
	emails EmailStore
	logger *zap.Logger
}

func NewService(emails EmailStore, logger *zap.Logger) *Service {
	return &Service{emails: emails, logger: logger}
}

// Ingest normalizes one raw message and stores it exactly once per
// (connection, external id). Re-ingesting an already stored message returns
// the existing row's id without modifying it.
func (s *Service) Ingest(ctx context.Context, raw provider.RawMessage, ownerID, connectionID string, opts Options) (*Result, error) {
	parsed, err := mailparse.Parse(raw.Raw)
	if err != nil {
		metrics.IncrementEmailIngested("parse_error")
		return nil, err
	}

	threadID := raw.ThreadID
	if threadID == "" {
		threadID = parsed.ThreadID
	}

	email := &model.SyncedEmail{
		ID:                  uuid.NewString(),
		OwnerID:             ownerID,
		MailboxConnectionID: connectionID,
		ExternalID:          raw.ExternalID,
		ThreadID:            threadID,
		Subject:             parsed.Subject,
		FromAddress:         parsed.FromAddress,
		FromName:            parsed.FromName,
		ToAddresses:         parsed.To,
		CcAddresses:         parsed.Cc,
		SentAt:              parsed.Date,
		ReceivedAt:          parsed.Date,
		BodyText:            parsed.Text,
		BodyHTML:            parsed.HTML,
		BusinessID:          opts.BusinessID,
		ContactID:           opts.ContactID,
	}

	event, err := ingestedEvent(email)
	if err != nil {
		metrics.IncrementEmailIngested("failed")
		return nil, err
	}

	err = s.emails.CreateWithEvent(ctx, email, event)
	if errors.Is(err, repository.ErrDuplicateEmail) {
		existing, findErr := s.emails.FindByConnectionAndExternalID(ctx, connectionID, raw.ExternalID)
		if findErr != nil {
			metrics.IncrementEmailIngested("failed")
			return nil, fmt.Errorf("resolve duplicate email: %w", findErr)
		}
		metrics.IncrementEmailIngested("duplicate")
		return &Result{EmailID: existing.ID, ExternalID: raw.ExternalID, Created: false}, nil
	}
	if err != nil {
		metrics.IncrementEmailIngested("failed")
		return nil, err
	}

	metrics.IncrementEmailIngested("created")
	applog.WithTrace(ctx, s.logger).Debug("email ingested",
		zap.String("email_id", email.ID),
		zap.String("external_id", raw.ExternalID))
	return &Result{EmailID: email.ID, ExternalID: raw.ExternalID, Created: true}, nil
}

func ingestedEvent(email *model.SyncedEmail) (*outbox.Event, error) {
	payload, err := json.Marshal(mq.EmailIngestedPayload{
		EmailID:      email.ID,
		ConnectionID: email.MailboxConnectionID,
		OwnerID:      email.OwnerID,
		ExternalID:   email.ExternalID,
		FromAddress:  email.FromAddress,
		ToAddresses:  email.ToAddresses,
		SentAt:       email.SentAt,
	})
	if err != nil {
		return nil, err
	}
	emailID := email.ID
	return &outbox.Event{
		AggregateType: "synced_email",
		AggregateID:   &emailID,
		RoutingKey:    mq.RoutingKeyEmailIngested,
		Payload:       payload,
		Status:        outbox.StatusPending,
	}, nil
}
