package provider

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"sailsdock/config"
	"sailsdock/internal/mailparse"
	"sailsdock/internal/model"
	applog "sailsdock/pkg/logger"
)

// wellKnownFolders maps folder names to list endpoints. Unknown names are
// passed through as custom folder ids.
var wellKnownFolders = map[string]string{
	"inbox":   "mailFolders/inbox/messages",
	"drafts":  "mailFolders/drafts/messages",
	"sent":    "mailFolders/sentItems/messages",
	"deleted": "mailFolders/deletedItems/messages",
	"junk":    "mailFolders/junkemail/messages",
	"archive": "mailFolders/archive/messages",
	"outbox":  "mailFolders/outbox/messages",
}

const listSelectFields = "id,subject,from,toRecipients,ccRecipients,receivedDateTime,bodyPreview,conversationId,internetMessageId,isRead,flag"

type outlookRecipient struct {
	EmailAddress struct {
		Name    string `json:"name"`
		Address string `json:"address"`
	} `json:"emailAddress"`
}

type outlookMessage struct {
	ID                string             `json:"id"`
	Subject           string             `json:"subject"`
	From              outlookRecipient   `json:"from"`
	ToRecipients      []outlookRecipient `json:"toRecipients"`
	CcRecipients      []outlookRecipient `json:"ccRecipients"`
	ReceivedDateTime  time.Time          `json:"receivedDateTime"`
	BodyPreview       string             `json:"bodyPreview"`
	ConversationID    string             `json:"conversationId"`
	InternetMessageID string             `json:"internetMessageId"`
}

type outlookListResponse struct {
	Value []outlookMessage `json:"value"`
}

// OutlookProvider is the paged-list family adapter: one list call for
// message metadata, then per-item content fetches with bounded concurrency.
// Items whose content fetch fails degrade to a synthesized payload built
// from the list metadata, so one bad item never discards the page.
type OutlookProvider struct {
	baseURL     string
	api         *apiClient
	concurrency int
	logger      *zap.Logger
}

func NewOutlookProvider(cfg config.ProviderConfig, sync config.SyncConfig, logger *zap.Logger) *OutlookProvider {
	concurrency := sync.FetchConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &OutlookProvider{
		baseURL:     cfg.BaseURL,
		api:         newAPIClient(model.ProviderOutlook, sync.CallTimeout(), logger),
		concurrency: concurrency,
		logger:      logger,
	}
}

func (p *OutlookProvider) Kind() string       { return model.ProviderOutlook }
func (p *OutlookProvider) DeltaCapable() bool { return false }

func (p *OutlookProvider) FetchMessages(ctx context.Context, conn *model.MailboxConnection, opts FetchOptions) ([]RawMessage, error) {
	folder := opts.Folder
	if folder == "" {
		folder = "inbox"
	}
	path, ok := wellKnownFolders[folder]
	if !ok {
		path = "mailFolders/" + url.PathEscape(folder) + "/messages"
	}

	max := opts.MaxResults
	if max <= 0 {
		max = 50
	}
	query := url.Values{}
	query.Set("$select", listSelectFields)
	query.Set("$orderby", "receivedDateTime DESC")
	query.Set("$top", strconv.Itoa(max))
	if opts.Filter != "" {
		query.Set("$filter", opts.Filter)
	}

	listURL := fmt.Sprintf("%s/%s?%s", p.baseURL, path, query.Encode())
	var resp outlookListResponse
	if err := p.api.getJSON(ctx, "list", listURL, conn.AccessToken, &resp); err != nil {
		return nil, err
	}

	logger := applog.WithTrace(ctx, p.logger)
	results := make([]RawMessage, len(resp.Value))
	sem := make(chan struct{}, p.concurrency)
	var wg sync.WaitGroup
	for i, msg := range resp.Value {
		wg.Add(1)
		go func(i int, msg outlookMessage) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = p.fetchOne(ctx, conn, msg, logger)
		}(i, msg)
	}
	wg.Wait()

	return results, nil
}

// fetchOne retrieves the full MIME payload for one listed message, falling
// back to a synthesized payload when the content endpoint fails.
func (p *OutlookProvider) fetchOne(ctx context.Context, conn *model.MailboxConnection, msg outlookMessage, logger *zap.Logger) RawMessage {
	contentURL := fmt.Sprintf("%s/messages/%s/$value", p.baseURL, url.PathEscape(msg.ID))
	raw, err := p.api.getText(ctx, "content", contentURL, conn.AccessToken)
	if err != nil {
		logger.Warn("message content fetch failed, synthesizing from summary",
			zap.String("external_id", msg.ID),
			zap.Error(err))
		raw = mailparse.SynthesizeFromSummary(summaryOf(msg))
	}
	return RawMessage{
		ExternalID: msg.ID,
		ThreadID:   msg.ConversationID,
		Raw:        raw,
	}
}

func summaryOf(msg outlookMessage) mailparse.MessageSummary {
	s := mailparse.MessageSummary{
		MessageID:   msg.InternetMessageID,
		ThreadID:    msg.ConversationID,
		Subject:     msg.Subject,
		FromAddress: msg.From.EmailAddress.Address,
		FromName:    msg.From.EmailAddress.Name,
		Date:        msg.ReceivedDateTime,
		BodyPreview: msg.BodyPreview,
	}
	for _, r := range msg.ToRecipients {
		s.To = append(s.To, r.EmailAddress.Address)
	}
	for _, r := range msg.CcRecipients {
		s.Cc = append(s.Cc, r.EmailAddress.Address)
	}
	return s
}

func (p *OutlookProvider) FetchDelta(ctx context.Context, conn *model.MailboxConnection, cursor string) (*DeltaResult, error) {
	return nil, &FetchError{Provider: p.Kind(), Operation: "delta", Err: fmt.Errorf("provider does not support delta sync")}
}

func (p *OutlookProvider) SetFlags(ctx context.Context, conn *model.MailboxConnection, externalID string, flags FlagUpdate) bool {
	patch := map[string]any{}
	if flags.IsRead != nil {
		patch["isRead"] = *flags.IsRead
	}
	if flags.IsStarred != nil {
		status := "notFlagged"
		if *flags.IsStarred {
			status = "flagged"
		}
		patch["flag"] = map[string]string{"flagStatus": status}
	}
	if len(patch) == 0 {
		return true
	}

	msgURL := fmt.Sprintf("%s/messages/%s", p.baseURL, url.PathEscape(externalID))
	if err := p.api.sendJSON(ctx, "set_flags", "PATCH", msgURL, conn.AccessToken, patch); err != nil {
		applog.WithTrace(ctx, p.logger).Warn("flag update failed",
			zap.String("external_id", externalID),
			zap.Error(err))
		return false
	}
	return true
}
