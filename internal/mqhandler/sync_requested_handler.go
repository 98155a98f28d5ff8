package mqhandler

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"sailsdock/internal/service/mailsync"
	"sailsdock/internal/util"
	"sailsdock/pkg/mq"
	pkgutil "sailsdock/pkg/util"
)

// SyncRequestedHandler consumes mailbox.sync.requested events and runs one
// sync pass. A short dedup window absorbs redelivered messages.
type SyncRequestedHandler struct {
	syncs   *mailsync.Service
	deduper *util.Deduper
	logger  *zap.Logger
}

func NewSyncRequestedHandler(syncs *mailsync.Service, deduper *util.Deduper, logger *zap.Logger) *SyncRequestedHandler {
	return &SyncRequestedHandler{syncs: syncs, deduper: deduper, logger: logger}
}

func (h *SyncRequestedHandler) Handle(ctx context.Context, body json.RawMessage) error {
	var payload mq.SyncRequestedPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.logger.Error("invalid sync request payload", zap.Error(err))
		return nil
	}

	dedupKey := "sync:" + payload.ConnectionID + ":" + payload.RequestedAt.UTC().Format("20060102T150405")
	if !h.deduper.AcquireOnce(ctx, dedupKey) {
		h.logger.Info("duplicate sync request dropped", zap.String("connection_id", payload.ConnectionID))
		return nil
	}

	result, err := h.syncs.Run(ctx, payload.ConnectionID, mailsync.RunOptions{
		Folder:      payload.Folder,
		MaxMessages: payload.MaxMessages,
	})
	if err != nil {
		if errors.Is(err, mailsync.ErrSyncInProgress) {
			h.logger.Info("sync already running", zap.String("connection_id", payload.ConnectionID))
			return nil
		}
		retryable, errType := pkgutil.IsRetryableError(err)
		h.logger.Error("sync run failed",
			zap.String("connection_id", payload.ConnectionID),
			zap.String("error_type", errType),
			zap.Bool("retryable", retryable),
			zap.Error(err))
		if retryable {
			return err
		}
		return nil
	}

	h.logger.Info("sync run completed",
		zap.String("connection_id", payload.ConnectionID),
		zap.String("mode", result.Mode),
		zap.Int("created", result.Created))
	return nil
}
