package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"sailsdock/config"
	"sailsdock/internal/model"
	applog "sailsdock/pkg/logger"
)

type gmailMessageRef struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
}

type gmailHistoryEntry struct {
	MessagesAdded []struct {
		Message gmailMessageRef `json:"message"`
	} `json:"messagesAdded"`
	MessagesDeleted []struct {
		Message gmailMessageRef `json:"message"`
	} `json:"messagesDeleted"`
}

type gmailHistoryResponse struct {
	History   []gmailHistoryEntry `json:"history"`
	HistoryID string              `json:"historyId"`
}

type gmailRawMessage struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
	Raw      string `json:"raw"`
}

// GmailProvider is the delta-stream family adapter. A sync run starts from a
// fixed root when no cursor is stored; each response yields the next cursor
// as a complete request URL which callers pass back verbatim.
type GmailProvider struct {
	baseURL string
	api     *apiClient
	logger  *zap.Logger
}

func NewGmailProvider(cfg config.ProviderConfig, sync config.SyncConfig, logger *zap.Logger) *GmailProvider {
	return &GmailProvider{
		baseURL: cfg.BaseURL,
		api:     newAPIClient(model.ProviderGmail, sync.CallTimeout(), logger),
		logger:  logger,
	}
}

func (p *GmailProvider) Kind() string       { return model.ProviderGmail }
func (p *GmailProvider) DeltaCapable() bool { return true }

func (p *GmailProvider) FetchMessages(ctx context.Context, conn *model.MailboxConnection, opts FetchOptions) ([]RawMessage, error) {
	return nil, &FetchError{Provider: p.Kind(), Operation: "list", Err: fmt.Errorf("provider syncs via delta stream only")}
}

func (p *GmailProvider) deltaRootURL() string {
	return p.baseURL + "/users/me/history?historyTypes=messageAdded&historyTypes=messageDeleted"
}

func (p *GmailProvider) FetchDelta(ctx context.Context, conn *model.MailboxConnection, cursor string) (*DeltaResult, error) {
	requestURL := cursor
	if requestURL == "" {
		requestURL = p.deltaRootURL()
	}

	var resp gmailHistoryResponse
	if err := p.api.getJSON(ctx, "delta", requestURL, conn.AccessToken, &resp); err != nil {
		return nil, err
	}

	addedRefs := make([]gmailMessageRef, 0)
	seenAdded := make(map[string]bool)
	removed := make([]string, 0)
	seenRemoved := make(map[string]bool)
	for _, entry := range resp.History {
		for _, m := range entry.MessagesAdded {
			if !seenAdded[m.Message.ID] {
				seenAdded[m.Message.ID] = true
				addedRefs = append(addedRefs, m.Message)
			}
		}
		for _, m := range entry.MessagesDeleted {
			if !seenRemoved[m.Message.ID] {
				seenRemoved[m.Message.ID] = true
				removed = append(removed, m.Message.ID)
			}
		}
	}

	logger := applog.WithTrace(ctx, p.logger)
	added := make([]RawMessage, 0, len(addedRefs))
	for _, ref := range addedRefs {
		raw, err := p.fetchRaw(ctx, conn, ref.ID)
		if err != nil {
			logger.Warn("raw message fetch failed, skipping",
				zap.String("external_id", ref.ID),
				zap.Error(err))
			continue
		}
		added = append(added, RawMessage{ExternalID: ref.ID, ThreadID: ref.ThreadID, Raw: raw})
	}

	result := &DeltaResult{Added: added, RemovedIDs: removed}
	if resp.HistoryID != "" {
		result.NextCursor = p.deltaRootURL() + "&startHistoryId=" + url.QueryEscape(resp.HistoryID)
	} else {
		result.NextCursor = requestURL
	}
	return result, nil
}

func (p *GmailProvider) fetchRaw(ctx context.Context, conn *model.MailboxConnection, id string) (string, error) {
	msgURL := fmt.Sprintf("%s/users/me/messages/%s?format=raw", p.baseURL, url.PathEscape(id))
	var msg gmailRawMessage
	if err := p.api.getJSON(ctx, "content", msgURL, conn.AccessToken, &msg); err != nil {
		return "", err
	}
	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(msg.Raw, "="))
	if err != nil {
		return "", &FetchError{Provider: p.Kind(), Operation: "content", Err: err}
	}
	return string(decoded), nil
}

func (p *GmailProvider) SetFlags(ctx context.Context, conn *model.MailboxConnection, externalID string, flags FlagUpdate) bool {
	add := make([]string, 0, 2)
	remove := make([]string, 0, 2)
	if flags.IsRead != nil {
		if *flags.IsRead {
			remove = append(remove, "UNREAD")
		} else {
			add = append(add, "UNREAD")
		}
	}
	if flags.IsStarred != nil {
		if *flags.IsStarred {
			add = append(add, "STARRED")
		} else {
			remove = append(remove, "STARRED")
		}
	}
	if len(add) == 0 && len(remove) == 0 {
		return true
	}

	modifyURL := fmt.Sprintf("%s/users/me/messages/%s/modify", p.baseURL, url.PathEscape(externalID))
	payload := map[string][]string{"addLabelIds": add, "removeLabelIds": remove}
	if err := p.api.sendJSON(ctx, "set_flags", "POST", modifyURL, conn.AccessToken, payload); err != nil {
		applog.WithTrace(ctx, p.logger).Warn("flag update failed",
			zap.String("external_id", externalID),
			zap.Error(err))
		return false
	}
	return true
}
