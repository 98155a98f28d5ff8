package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"go.uber.org/zap"

	"sailsdock/internal/model"
	"sailsdock/internal/repository"
	"sailsdock/pkg/mq"
)

type EmailAssociator interface {
	Associate(ctx context.Context, id string, businessID, contactID *string) error
}

type ContactFinder interface {
	FindByEmail(ctx context.Context, email string) (*model.Contact, error)
}

type BusinessFinder interface {
	FindByDomain(ctx context.Context, domain string) (*model.Business, error)
}

// freemailDomains never identify a business.
var freemailDomains = map[string]bool{
	"gmail.com":   true,
	"outlook.com": true,
	"hotmail.com": true,
	"yahoo.com":   true,
	"icloud.com":  true,
	"online.no":   true,
}

// EmailIngestedHandler links freshly ingested emails to CRM records: exact
// contact email match first, sender domain match second. The whole handler is
// idempotent, so redeliveries are safe.
type EmailIngestedHandler struct {
	emails     EmailAssociator
	contacts   ContactFinder
	businesses BusinessFinder
	logger     *zap.Logger
}

func NewEmailIngestedHandler(
	emails EmailAssociator,
	contacts ContactFinder,
	businesses BusinessFinder,
	logger *zap.Logger,
) *EmailIngestedHandler {
	return &EmailIngestedHandler{
		emails:     emails,
		contacts:   contacts,
		businesses: businesses,
		logger:     logger,
	}
}

func (h *EmailIngestedHandler) Handle(ctx context.Context, body json.RawMessage) error {
	var payload mq.EmailIngestedPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.logger.Error("invalid email ingested payload", zap.Error(err))
		return nil
	}

	if payload.FromAddress == "" {
		return nil
	}

	if contact, err := h.contacts.FindByEmail(ctx, payload.FromAddress); err == nil {
		err := h.emails.Associate(ctx, payload.EmailID, &contact.BusinessID, &contact.ID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		return nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	at := strings.LastIndex(payload.FromAddress, "@")
	if at < 0 {
		return nil
	}
	domain := strings.ToLower(payload.FromAddress[at+1:])
	if domain == "" || freemailDomains[domain] {
		return nil
	}

	business, err := h.businesses.FindByDomain(ctx, domain)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}
	err = h.emails.Associate(ctx, payload.EmailID, &business.ID, nil)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	return nil
}
