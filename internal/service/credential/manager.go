package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"sailsdock/config"
	"sailsdock/internal/model"
	"sailsdock/internal/provider"
	applog "sailsdock/pkg/logger"
)

// TokenResponse is the provider token endpoint reply. RefreshToken is empty
// when the provider does not rotate it.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// Exchanger swaps a refresh token for fresh credentials.
type Exchanger interface {
	Exchange(ctx context.Context, providerKind, refreshToken string) (*TokenResponse, error)
}

// ConnectionUpdater persists rotated credentials.
type ConnectionUpdater interface {
	UpdateTokens(ctx context.Context, id, accessToken, refreshToken string, expiresAt *time.Time) error
}

// Manager guards token freshness: RefreshIfNeeded makes exactly zero network
// calls for a fresh token and exactly one for an expired one.
type Manager struct {
	exchanger Exchanger
	store     ConnectionUpdater
	logger    *zap.Logger
	now       func() time.Time
}

func NewManager(exchanger Exchanger, store ConnectionUpdater, logger *zap.Logger) *Manager {
	return &Manager{exchanger: exchanger, store: store, logger: logger, now: time.Now}
}

// RefreshIfNeeded returns a connection whose access token is valid, refreshing
// and persisting it first when expired. The input is never mutated.
func (m *Manager) RefreshIfNeeded(ctx context.Context, conn *model.MailboxConnection) (*model.MailboxConnection, error) {
	if !conn.Expired(m.now()) {
		return conn, nil
	}

	if conn.RefreshToken == "" {
		return nil, &provider.CredentialError{ConnectionID: conn.ID, Reason: "no refresh token stored"}
	}

	resp, err := m.exchanger.Exchange(ctx, conn.Provider, conn.RefreshToken)
	if err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, &provider.CredentialError{ConnectionID: conn.ID, Reason: "token endpoint returned no access token"}
	}

	refreshed := *conn
	refreshed.AccessToken = resp.AccessToken
	if resp.RefreshToken != "" {
		refreshed.RefreshToken = resp.RefreshToken
	}
	if resp.ExpiresIn > 0 {
		expiresAt := m.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
		refreshed.ExpiresAt = &expiresAt
	} else {
		refreshed.ExpiresAt = nil
	}

	if err := m.store.UpdateTokens(ctx, conn.ID, refreshed.AccessToken, resp.RefreshToken, refreshed.ExpiresAt); err != nil {
		return nil, fmt.Errorf("persist refreshed tokens: %w", err)
	}

	applog.WithTrace(ctx, m.logger).Info("access token refreshed",
		zap.String("connection_id", conn.ID),
		zap.String("provider", conn.Provider))
	return &refreshed, nil
}

// OAuthExchanger talks to the real provider token endpoints with a standard
// refresh_token grant.
type OAuthExchanger struct {
	providers config.ProvidersConfig
	http      *http.Client
}

func NewOAuthExchanger(providers config.ProvidersConfig, timeout time.Duration) *OAuthExchanger {
	return &OAuthExchanger{providers: providers, http: &http.Client{Timeout: timeout}}
}

func (e *OAuthExchanger) providerConfig(kind string) (config.ProviderConfig, bool) {
	switch kind {
	case model.ProviderOutlook:
		return e.providers.Outlook, true
	case model.ProviderGmail:
		return e.providers.Gmail, true
	}
	return config.ProviderConfig{}, false
}

func (e *OAuthExchanger) Exchange(ctx context.Context, providerKind, refreshToken string) (*TokenResponse, error) {
	cfg, ok := e.providerConfig(providerKind)
	if !ok {
		return nil, &provider.CredentialError{Reason: "unknown provider " + providerKind}
	}

	form := url.Values{}
	form.Set("client_id", cfg.ClientID)
	form.Set("client_secret", cfg.ClientSecret)
	form.Set("refresh_token", refreshToken)
	form.Set("grant_type", "refresh_token")
	if cfg.Scope != "" {
		form.Set("scope", cfg.Scope)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, &provider.CredentialError{Reason: "token endpoint unreachable", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &provider.CredentialError{Reason: "token endpoint read failed", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &provider.CredentialError{Reason: fmt.Sprintf("token endpoint returned status %d", resp.StatusCode)}
	}

	var token TokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, &provider.CredentialError{Reason: "token endpoint returned invalid json", Err: err}
	}
	return &token, nil
}
