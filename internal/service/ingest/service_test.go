package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sailsdock/internal/mailparse"
	"sailsdock/internal/model"
	"sailsdock/internal/provider"
	"sailsdock/internal/repository"
	"sailsdock/pkg/outbox"
)

type fakeEmailStore struct {
	emails map[string]*model.SyncedEmail // keyed on connectionID+externalID
	events []*outbox.Event
	err    error
}

func newFakeEmailStore() *fakeEmailStore {
	return &fakeEmailStore{emails: make(map[string]*model.SyncedEmail)}
}

func (f *fakeEmailStore) key(connectionID, externalID string) string {
	return connectionID + "/" + externalID
}

func (f *fakeEmailStore) CreateWithEvent(ctx context.Context, e *model.SyncedEmail, event *outbox.Event) error {
	if f.err != nil {
		return f.err
	}
	k := f.key(e.MailboxConnectionID, e.ExternalID)
	if _, exists := f.emails[k]; exists {
		return repository.ErrDuplicateEmail
	}
	f.emails[k] = e
	if event != nil {
		f.events = append(f.events, event)
	}
	return nil
}

func (f *fakeEmailStore) FindByConnectionAndExternalID(ctx context.Context, connectionID, externalID string) (*model.SyncedEmail, error) {
	e, ok := f.emails[f.key(connectionID, externalID)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return e, nil
}

const rawMessage = "From: Kari <kari@firma.no>\r\n" +
	"To: ola@kunde.no\r\n" +
	"Subject: Hei\r\n" +
	"Date: Mon, 02 Jan 2023 15:04:05 +0100\r\n" +
	"\r\n" +
	"Hallo!\r\n"

func TestIngestCreatesEmailAndOutboxEvent(t *testing.T) {
	store := newFakeEmailStore()
	svc := NewService(store, zap.NewNop())

	raw := provider.RawMessage{ExternalID: "ext-1", ThreadID: "thr-1", Raw: rawMessage}
	result, err := svc.Ingest(context.Background(), raw, "user-1", "conn-1", Options{})
	require.NoError(t, err)

	assert.True(t, result.Created)
	assert.Equal(t, "ext-1", result.ExternalID)
	assert.NotEmpty(t, result.EmailID)

	stored := store.emails["conn-1/ext-1"]
	require.NotNil(t, stored)
	assert.Equal(t, "Hei", stored.Subject)
	assert.Equal(t, "kari@firma.no", stored.FromAddress)
	assert.Equal(t, "thr-1", stored.ThreadID)
	assert.Equal(t, "user-1", stored.OwnerID)

	require.Len(t, store.events, 1)
	assert.Equal(t, "email.ingested", store.events[0].RoutingKey)
	assert.Contains(t, string(store.events[0].Payload), result.EmailID)
}

func TestIngestIsIdempotent(t *testing.T) {
	store := newFakeEmailStore()
	svc := NewService(store, zap.NewNop())
	raw := provider.RawMessage{ExternalID: "ext-1", Raw: rawMessage}

	first, err := svc.Ingest(context.Background(), raw, "user-1", "conn-1", Options{})
	require.NoError(t, err)
	second, err := svc.Ingest(context.Background(), raw, "user-1", "conn-1", Options{})
	require.NoError(t, err)

	assert.True(t, first.Created)
	assert.False(t, second.Created)
	assert.Equal(t, first.EmailID, second.EmailID)
	assert.Len(t, store.emails, 1)
	assert.Len(t, store.events, 1)
}

func TestIngestSameExternalIDOnOtherConnection(t *testing.T) {
	store := newFakeEmailStore()
	svc := NewService(store, zap.NewNop())
	raw := provider.RawMessage{ExternalID: "ext-1", Raw: rawMessage}

	first, err := svc.Ingest(context.Background(), raw, "user-1", "conn-1", Options{})
	require.NoError(t, err)
	second, err := svc.Ingest(context.Background(), raw, "user-1", "conn-2", Options{})
	require.NoError(t, err)

	assert.True(t, second.Created)
	assert.NotEqual(t, first.EmailID, second.EmailID)
}

func TestIngestUnparsablePayloadIsParseError(t *testing.T) {
	store := newFakeEmailStore()
	svc := NewService(store, zap.NewNop())

	_, err := svc.Ingest(context.Background(), provider.RawMessage{ExternalID: "x", Raw: ""}, "user-1", "conn-1", Options{})
	require.Error(t, err)

	var parseErr *mailparse.ParseError
	assert.ErrorAs(t, err, &parseErr)
	assert.Empty(t, store.emails)
}

func TestIngestCarriesAssociations(t *testing.T) {
	store := newFakeEmailStore()
	svc := NewService(store, zap.NewNop())

	businessID := "biz-1"
	contactID := "contact-1"
	_, err := svc.Ingest(context.Background(), provider.RawMessage{ExternalID: "ext-1", Raw: rawMessage},
		"user-1", "conn-1", Options{BusinessID: &businessID, ContactID: &contactID})
	require.NoError(t, err)

	stored := store.emails["conn-1/ext-1"]
	require.NotNil(t, stored)
	require.NotNil(t, stored.BusinessID)
	assert.Equal(t, "biz-1", *stored.BusinessID)
	require.NotNil(t, stored.ContactID)
	assert.Equal(t, "contact-1", *stored.ContactID)
}
