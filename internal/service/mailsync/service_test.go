package mailsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sailsdock/config"
	"sailsdock/internal/mailparse"
	"sailsdock/internal/model"
	"sailsdock/internal/provider"
	"sailsdock/internal/service/ingest"
)

type fakeConnectionStore struct {
	conn          *model.MailboxConnection
	cursorUpdates []string
	touched       int
}

func (f *fakeConnectionStore) FindByID(ctx context.Context, id string) (*model.MailboxConnection, error) {
	c := *f.conn
	return &c, nil
}

func (f *fakeConnectionStore) UpdateDeltaCursor(ctx context.Context, id, cursor string, syncedAt time.Time) error {
	f.conn.DeltaCursor = cursor
	f.cursorUpdates = append(f.cursorUpdates, cursor)
	return nil
}

func (f *fakeConnectionStore) TouchLastSynced(ctx context.Context, id string, syncedAt time.Time) error {
	f.touched++
	return nil
}

type passthroughRefresher struct{ calls int }

func (p *passthroughRefresher) RefreshIfNeeded(ctx context.Context, conn *model.MailboxConnection) (*model.MailboxConnection, error) {
	p.calls++
	return conn, nil
}

type fakeIngestor struct {
	seen    map[string]bool
	failOn  map[string]error
	ingests []string
}

func newFakeIngestor() *fakeIngestor {
	return &fakeIngestor{seen: make(map[string]bool), failOn: make(map[string]error)}
}

func (f *fakeIngestor) Ingest(ctx context.Context, raw provider.RawMessage, ownerID, connectionID string, opts ingest.Options) (*ingest.Result, error) {
	if err, ok := f.failOn[raw.ExternalID]; ok {
		return nil, err
	}
	f.ingests = append(f.ingests, raw.ExternalID)
	created := !f.seen[raw.ExternalID]
	f.seen[raw.ExternalID] = true
	return &ingest.Result{EmailID: "email-" + raw.ExternalID, ExternalID: raw.ExternalID, Created: created}, nil
}

type fakeMarker struct {
	deleted []string
}

func (f *fakeMarker) SoftDeleteByExternalID(ctx context.Context, connectionID, externalID string) error {
	f.deleted = append(f.deleted, externalID)
	return nil
}

type fakeLocker struct {
	held     map[string]bool
	acquired []string
	released []string
}

func newFakeLocker() *fakeLocker { return &fakeLocker{held: make(map[string]bool)} }

func (f *fakeLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if f.held[key] {
		return false, nil
	}
	f.held[key] = true
	f.acquired = append(f.acquired, key)
	return true, nil
}

func (f *fakeLocker) Release(ctx context.Context, key string) error {
	delete(f.held, key)
	f.released = append(f.released, key)
	return nil
}

// scriptedDelta replays a fixed sequence of delta pages keyed by cursor.
type scriptedDelta struct {
	pages map[string]*provider.DeltaResult
	calls []string
}

func (s *scriptedDelta) Kind() string       { return model.ProviderGmail }
func (s *scriptedDelta) DeltaCapable() bool { return true }

func (s *scriptedDelta) FetchMessages(ctx context.Context, conn *model.MailboxConnection, opts provider.FetchOptions) ([]provider.RawMessage, error) {
	return nil, errors.New("not supported")
}

func (s *scriptedDelta) FetchDelta(ctx context.Context, conn *model.MailboxConnection, cursor string) (*provider.DeltaResult, error) {
	s.calls = append(s.calls, cursor)
	page, ok := s.pages[cursor]
	if !ok {
		return nil, &provider.FetchError{Provider: s.Kind(), Operation: "delta", StatusCode: 500}
	}
	return page, nil
}

func (s *scriptedDelta) SetFlags(ctx context.Context, conn *model.MailboxConnection, externalID string, flags provider.FlagUpdate) bool {
	return true
}

type scriptedList struct {
	messages []provider.RawMessage
	err      error
}

func (s *scriptedList) Kind() string       { return model.ProviderOutlook }
func (s *scriptedList) DeltaCapable() bool { return false }

func (s *scriptedList) FetchMessages(ctx context.Context, conn *model.MailboxConnection, opts provider.FetchOptions) ([]provider.RawMessage, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.messages, nil
}

func (s *scriptedList) FetchDelta(ctx context.Context, conn *model.MailboxConnection, cursor string) (*provider.DeltaResult, error) {
	return nil, errors.New("not supported")
}

func (s *scriptedList) SetFlags(ctx context.Context, conn *model.MailboxConnection, externalID string, flags provider.FlagUpdate) bool {
	return true
}

func testCfg() config.SyncConfig {
	return config.SyncConfig{MaxMessages: 50, FetchConcurrency: 2, CallTimeoutSeconds: 5, LockTTLSeconds: 60}
}

func raw(id string) provider.RawMessage {
	return provider.RawMessage{ExternalID: id, Raw: "Subject: " + id + "\r\n\r\nbody\r\n"}
}

func newDeltaFixture(pages map[string]*provider.DeltaResult) (*Service, *fakeConnectionStore, *fakeIngestor, *fakeMarker, *fakeLocker) {
	store := &fakeConnectionStore{conn: &model.MailboxConnection{
		ID:       "conn-1",
		OwnerID:  "user-1",
		Provider: model.ProviderGmail,
	}}
	ingestor := newFakeIngestor()
	marker := &fakeMarker{}
	locker := newFakeLocker()
	svc := NewService(store, &passthroughRefresher{}, provider.NewRegistry(&scriptedDelta{pages: pages}),
		ingestor, marker, locker, testCfg(), zap.NewNop())
	return svc, store, ingestor, marker, locker
}

func TestDeltaSyncAcrossPages(t *testing.T) {
	pages := map[string]*provider.DeltaResult{
		"": {
			Added:      []provider.RawMessage{raw("A"), raw("B")},
			NextCursor: "cursor-1",
		},
		"cursor-1": {
			Added:      []provider.RawMessage{raw("C")},
			RemovedIDs: []string{"A"},
			NextCursor: "cursor-2",
		},
		"cursor-2": {
			NextCursor: "cursor-2",
		},
	}
	svc, store, ingestor, marker, _ := newDeltaFixture(pages)
	ctx := context.Background()

	result, err := svc.Run(ctx, "conn-1", RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, "cursor-1", store.conn.DeltaCursor)

	result, err = svc.Run(ctx, "conn-1", RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Removed)
	assert.Equal(t, []string{"A"}, marker.deleted)
	assert.Equal(t, "cursor-2", store.conn.DeltaCursor)

	result, err = svc.Run(ctx, "conn-1", RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Fetched)
	assert.Equal(t, "cursor-2", store.conn.DeltaCursor)
	assert.Equal(t, 1, store.touched)

	assert.Equal(t, []string{"A", "B", "C"}, ingestor.ingests)
}

func TestDeltaCursorNotAdvancedOnPersistenceFailure(t *testing.T) {
	pages := map[string]*provider.DeltaResult{
		"": {
			Added:      []provider.RawMessage{raw("A"), raw("B")},
			NextCursor: "cursor-1",
		},
	}
	svc, store, ingestor, _, locker := newDeltaFixture(pages)
	ingestor.failOn["B"] = errors.New("db down")

	_, err := svc.Run(context.Background(), "conn-1", RunOptions{})
	require.Error(t, err)
	assert.Empty(t, store.conn.DeltaCursor)
	assert.Empty(t, store.cursorUpdates)
	// lock released even on failure
	assert.Len(t, locker.released, 1)

	// retry from the same cursor succeeds and re-applies idempotently
	delete(ingestor.failOn, "B")
	result, err := svc.Run(context.Background(), "conn-1", RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, "cursor-1", store.conn.DeltaCursor)
	assert.Equal(t, 1, result.Duplicates) // A was already ingested
	assert.Equal(t, 1, result.Created)    // B
}

func TestDeltaParseErrorIsSkippedNotFatal(t *testing.T) {
	pages := map[string]*provider.DeltaResult{
		"": {
			Added:      []provider.RawMessage{raw("A"), raw("bad")},
			NextCursor: "cursor-1",
		},
	}
	svc, store, ingestor, _, _ := newDeltaFixture(pages)
	ingestor.failOn["bad"] = &mailparse.ParseError{Reason: "unreadable payload"}

	result, err := svc.Run(context.Background(), "conn-1", RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, "cursor-1", store.conn.DeltaCursor)
}

func TestListSyncCountsAndSkipsParseErrors(t *testing.T) {
	store := &fakeConnectionStore{conn: &model.MailboxConnection{
		ID:       "conn-1",
		OwnerID:  "user-1",
		Provider: model.ProviderOutlook,
	}}
	ingestor := newFakeIngestor()
	ingestor.seen["B"] = true // already stored from an earlier run
	ingestor.failOn["C"] = &mailparse.ParseError{Reason: "empty payload"}

	adapter := &scriptedList{messages: []provider.RawMessage{raw("A"), raw("B"), raw("C")}}
	svc := NewService(store, &passthroughRefresher{}, provider.NewRegistry(adapter),
		ingestor, &fakeMarker{}, newFakeLocker(), testCfg(), zap.NewNop())

	result, err := svc.Run(context.Background(), "conn-1", RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, "list", result.Mode)
	assert.Equal(t, 3, result.Fetched)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Duplicates)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 1, store.touched)
}

func TestListSyncPersistenceFailureAborts(t *testing.T) {
	store := &fakeConnectionStore{conn: &model.MailboxConnection{
		ID:       "conn-1",
		OwnerID:  "user-1",
		Provider: model.ProviderOutlook,
	}}
	ingestor := newFakeIngestor()
	ingestor.failOn["B"] = errors.New("db down")

	adapter := &scriptedList{messages: []provider.RawMessage{raw("A"), raw("B"), raw("C")}}
	svc := NewService(store, &passthroughRefresher{}, provider.NewRegistry(adapter),
		ingestor, &fakeMarker{}, newFakeLocker(), testCfg(), zap.NewNop())

	_, err := svc.Run(context.Background(), "conn-1", RunOptions{})
	require.Error(t, err)
	assert.Equal(t, 0, store.touched)

	// the next pass re-applies A as a duplicate and stores B and C
	delete(ingestor.failOn, "B")
	result, err := svc.Run(context.Background(), "conn-1", RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Duplicates)
	assert.Equal(t, 2, result.Created)
}

func TestListSyncFetchFailureAborts(t *testing.T) {
	store := &fakeConnectionStore{conn: &model.MailboxConnection{
		ID:       "conn-1",
		Provider: model.ProviderOutlook,
	}}
	adapter := &scriptedList{err: &provider.FetchError{Provider: "outlook", Operation: "list", StatusCode: 503}}
	svc := NewService(store, &passthroughRefresher{}, provider.NewRegistry(adapter),
		newFakeIngestor(), &fakeMarker{}, newFakeLocker(), testCfg(), zap.NewNop())

	_, err := svc.Run(context.Background(), "conn-1", RunOptions{})
	var fetchErr *provider.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, 0, store.touched)
}

func TestConcurrentSyncBlockedByLock(t *testing.T) {
	svc, _, _, _, locker := newDeltaFixture(map[string]*provider.DeltaResult{"": {NextCursor: ""}})
	locker.held["mailbox:sync:conn-1"] = true

	_, err := svc.Run(context.Background(), "conn-1", RunOptions{})
	assert.ErrorIs(t, err, ErrSyncInProgress)
}

func TestCredentialRefreshRunsUnderLock(t *testing.T) {
	refresher := &passthroughRefresher{}
	store := &fakeConnectionStore{conn: &model.MailboxConnection{
		ID:       "conn-1",
		Provider: model.ProviderGmail,
	}}
	svc := NewService(store, refresher, provider.NewRegistry(&scriptedDelta{pages: map[string]*provider.DeltaResult{"": {}}}),
		newFakeIngestor(), &fakeMarker{}, newFakeLocker(), testCfg(), zap.NewNop())

	_, err := svc.Run(context.Background(), "conn-1", RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, refresher.calls)
}
