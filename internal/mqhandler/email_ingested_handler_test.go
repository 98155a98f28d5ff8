package mqhandler

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sailsdock/internal/model"
	"sailsdock/internal/repository"
)

type fakeAssociator struct {
	emailID    string
	businessID *string
	contactID  *string
	calls      int
}

func (f *fakeAssociator) Associate(ctx context.Context, id string, businessID, contactID *string) error {
	f.calls++
	f.emailID = id
	f.businessID = businessID
	f.contactID = contactID
	return nil
}

type fakeContacts struct {
	byEmail map[string]*model.Contact
}

func (f *fakeContacts) FindByEmail(ctx context.Context, email string) (*model.Contact, error) {
	if c, ok := f.byEmail[email]; ok {
		return c, nil
	}
	return nil, repository.ErrNotFound
}

type fakeBusinesses struct {
	byDomain map[string]*model.Business
}

func (f *fakeBusinesses) FindByDomain(ctx context.Context, domain string) (*model.Business, error) {
	if b, ok := f.byDomain[domain]; ok {
		return b, nil
	}
	return nil, repository.ErrNotFound
}

func payload(from string) json.RawMessage {
	body, _ := json.Marshal(map[string]string{
		"email_id":     "email-1",
		"from_address": from,
	})
	return body
}

func TestAssociateByContactEmail(t *testing.T) {
	assoc := &fakeAssociator{}
	contacts := &fakeContacts{byEmail: map[string]*model.Contact{
		"ola@kunde.no": {ID: "ct-1", BusinessID: "biz-1"},
	}}
	h := NewEmailIngestedHandler(assoc, contacts, &fakeBusinesses{}, zap.NewNop())

	require.NoError(t, h.Handle(context.Background(), payload("ola@kunde.no")))
	assert.Equal(t, "email-1", assoc.emailID)
	require.NotNil(t, assoc.businessID)
	assert.Equal(t, "biz-1", *assoc.businessID)
	require.NotNil(t, assoc.contactID)
	assert.Equal(t, "ct-1", *assoc.contactID)
}

func TestAssociateByDomainFallback(t *testing.T) {
	assoc := &fakeAssociator{}
	businesses := &fakeBusinesses{byDomain: map[string]*model.Business{
		"kunde.no": {ID: "biz-1"},
	}}
	h := NewEmailIngestedHandler(assoc, &fakeContacts{}, businesses, zap.NewNop())

	require.NoError(t, h.Handle(context.Background(), payload("ukjent@kunde.no")))
	require.NotNil(t, assoc.businessID)
	assert.Equal(t, "biz-1", *assoc.businessID)
	assert.Nil(t, assoc.contactID)
}

func TestFreemailDomainNotAssociated(t *testing.T) {
	assoc := &fakeAssociator{}
	businesses := &fakeBusinesses{byDomain: map[string]*model.Business{
		"gmail.com": {ID: "biz-wrong"},
	}}
	h := NewEmailIngestedHandler(assoc, &fakeContacts{}, businesses, zap.NewNop())

	require.NoError(t, h.Handle(context.Background(), payload("noen@gmail.com")))
	assert.Equal(t, 0, assoc.calls)
}

func TestNoMatchIsNotAnError(t *testing.T) {
	assoc := &fakeAssociator{}
	h := NewEmailIngestedHandler(assoc, &fakeContacts{}, &fakeBusinesses{}, zap.NewNop())

	require.NoError(t, h.Handle(context.Background(), payload("ukjent@ingensteds.no")))
	assert.Equal(t, 0, assoc.calls)
}

func TestInvalidPayloadIsDropped(t *testing.T) {
	h := NewEmailIngestedHandler(&fakeAssociator{}, &fakeContacts{}, &fakeBusinesses{}, zap.NewNop())
	assert.NoError(t, h.Handle(context.Background(), json.RawMessage("not json")))
}
