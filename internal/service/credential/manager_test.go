package credential

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sailsdock/internal/model"
	"sailsdock/internal/provider"
)

type fakeExchanger struct {
	calls    int
	response *TokenResponse
	err      error
}

func (f *fakeExchanger) Exchange(ctx context.Context, providerKind, refreshToken string) (*TokenResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

type fakeUpdater struct {
	calls        int
	accessToken  string
	refreshToken string
	expiresAt    *time.Time
}

func (f *fakeUpdater) UpdateTokens(ctx context.Context, id, accessToken, refreshToken string, expiresAt *time.Time) error {
	f.calls++
	f.accessToken = accessToken
	f.refreshToken = refreshToken
	f.expiresAt = expiresAt
	return nil
}

func newTestManager(exchanger Exchanger, store ConnectionUpdater, now time.Time) *Manager {
	m := NewManager(exchanger, store, zap.NewNop())
	m.now = func() time.Time { return now }
	return m
}

func freshConnection(expiresAt *time.Time) *model.MailboxConnection {
	return &model.MailboxConnection{
		ID:           "conn-1",
		Provider:     model.ProviderOutlook,
		AccessToken:  "old-access",
		RefreshToken: "old-refresh",
		ExpiresAt:    expiresAt,
	}
}

func TestRefreshSkippedWhenTokenFresh(t *testing.T) {
	now := time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)
	exchanger := &fakeExchanger{}
	updater := &fakeUpdater{}

	conn := freshConnection(&future)
	got, err := newTestManager(exchanger, updater, now).RefreshIfNeeded(context.Background(), conn)
	require.NoError(t, err)

	assert.Equal(t, 0, exchanger.calls)
	assert.Equal(t, 0, updater.calls)
	assert.Same(t, conn, got)
}

func TestRefreshSkippedWhenNoExpiry(t *testing.T) {
	exchanger := &fakeExchanger{}
	got, err := newTestManager(exchanger, &fakeUpdater{}, time.Now()).RefreshIfNeeded(context.Background(), freshConnection(nil))
	require.NoError(t, err)
	assert.Equal(t, 0, exchanger.calls)
	assert.Equal(t, "old-access", got.AccessToken)
}

func TestRefreshExpiredTokenMakesOneCall(t *testing.T) {
	now := time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	exchanger := &fakeExchanger{response: &TokenResponse{
		AccessToken:  "new-access",
		RefreshToken: "new-refresh",
		ExpiresIn:    3600,
	}}
	updater := &fakeUpdater{}

	conn := freshConnection(&past)
	got, err := newTestManager(exchanger, updater, now).RefreshIfNeeded(context.Background(), conn)
	require.NoError(t, err)

	assert.Equal(t, 1, exchanger.calls)
	assert.Equal(t, 1, updater.calls)
	assert.Equal(t, "new-access", got.AccessToken)
	assert.Equal(t, "new-refresh", got.RefreshToken)
	require.NotNil(t, got.ExpiresAt)
	assert.Equal(t, now.Add(time.Hour), *got.ExpiresAt)

	// input untouched
	assert.Equal(t, "old-access", conn.AccessToken)
}

func TestRefreshKeepsRefreshTokenWhenNotRotated(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	exchanger := &fakeExchanger{response: &TokenResponse{AccessToken: "new-access", ExpiresIn: 60}}
	updater := &fakeUpdater{}

	got, err := newTestManager(exchanger, updater, now).RefreshIfNeeded(context.Background(), freshConnection(&past))
	require.NoError(t, err)
	assert.Equal(t, "old-refresh", got.RefreshToken)
	assert.Empty(t, updater.refreshToken)
}

func TestRefreshWithoutRefreshTokenFails(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	conn := freshConnection(&past)
	conn.RefreshToken = ""

	exchanger := &fakeExchanger{}
	_, err := newTestManager(exchanger, &fakeUpdater{}, now).RefreshIfNeeded(context.Background(), conn)

	var credErr *provider.CredentialError
	require.ErrorAs(t, err, &credErr)
	assert.Equal(t, 0, exchanger.calls)
}

func TestRefreshPropagatesExchangeError(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	exchanger := &fakeExchanger{err: &provider.CredentialError{Reason: "token endpoint returned status 400"}}
	updater := &fakeUpdater{}

	_, err := newTestManager(exchanger, updater, now).RefreshIfNeeded(context.Background(), freshConnection(&past))

	var credErr *provider.CredentialError
	require.ErrorAs(t, err, &credErr)
	assert.Equal(t, 0, updater.calls)
}
