package mailsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"sailsdock/config"
	"sailsdock/internal/mailparse"
	"sailsdock/internal/model"
	"sailsdock/internal/provider"
	"sailsdock/internal/service/ingest"
	applog "sailsdock/pkg/logger"
	"sailsdock/pkg/metrics"
)

// ErrSyncInProgress means another run holds this connection's sync lock.
var ErrSyncInProgress = errors.New("sync already in progress for this connection")

type ConnectionStore interface {
	FindByID(ctx context.Context, id string) (*model.MailboxConnection, error)
	UpdateDeltaCursor(ctx context.Context, id, cursor string, syncedAt time.Time) error
	TouchLastSynced(ctx context.Context, id string, syncedAt time.Time) error
}

type CredentialRefresher interface {
	RefreshIfNeeded(ctx context.Context, conn *model.MailboxConnection) (*model.MailboxConnection, error)
}

type Ingestor interface {
	Ingest(ctx context.Context, raw provider.RawMessage, ownerID, connectionID string, opts ingest.Options) (*ingest.Result, error)
}

type EmailMarker interface {
	SoftDeleteByExternalID(ctx context.Context, connectionID, externalID string) error
}

type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type RunOptions struct {
	Folder      string
	MaxMessages int
}

type RunResult struct {
	Provider   string
	Mode       string // list or delta
	Fetched    int
	Created    int
	Duplicates int
	Removed    int
	Skipped    int
}

// Service runs one sync pass per connection. A per-connection redis lock
// keeps concurrent runs out; the credential manager runs under that lock so
// at most one refresh is in flight per connection.
type Service struct {
	connections ConnectionStore
	credentials CredentialRefresher
	providers   *provider.Registry
	ingestor    Ingestor
	emails      EmailMarker
	locker      Locker
	cfg         config.SyncConfig
	logger      *zap.Logger
}

func NewService(
	connections ConnectionStore,
	credentials CredentialRefresher,
	providers *provider.Registry,
	ingestor Ingestor,
	emails EmailMarker,
	locker Locker,
	cfg config.SyncConfig,
	logger *zap.Logger,
) *Service {
	return &Service{
		connections: connections,
		credentials: credentials,
		providers:   providers,
		ingestor:    ingestor,
		emails:      emails,
		locker:      locker,
		cfg:         cfg,
		logger:      logger,
	}
}

func lockKey(connectionID string) string {
	return "mailbox:sync:" + connectionID
}

func (s *Service) Run(ctx context.Context, connectionID string, opts RunOptions) (*RunResult, error) {
	conn, err := s.connections.FindByID(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	acquired, err := s.locker.Acquire(ctx, lockKey(connectionID), s.cfg.LockTTL())
	if err != nil {
		return nil, fmt.Errorf("acquire sync lock: %w", err)
	}
	if !acquired {
		return nil, ErrSyncInProgress
	}
	defer s.locker.Release(ctx, lockKey(connectionID))

	conn, err = s.credentials.RefreshIfNeeded(ctx, conn)
	if err != nil {
		return nil, err
	}

	adapter, err := s.providers.Get(conn.Provider)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var result *RunResult
	if adapter.DeltaCapable() {
		result, err = s.runDelta(ctx, adapter, conn)
	} else {
		result, err = s.runList(ctx, adapter, conn, opts)
	}
	if err != nil {
		return nil, err
	}
	metrics.RecordSyncRun(conn.Provider, result.Mode, time.Since(start))

	applog.WithTrace(ctx, s.logger).Info("sync run finished",
		zap.String("connection_id", conn.ID),
		zap.String("provider", conn.Provider),
		zap.String("mode", result.Mode),
		zap.Int("fetched", result.Fetched),
		zap.Int("created", result.Created),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("removed", result.Removed),
		zap.Int("skipped", result.Skipped))
	return result, nil
}

// runList performs one paged-list pass. Messages that fail to parse are
// skipped and counted; persistence failures abort the run, and the next
// list pass re-applies already-stored messages as duplicates.
func (s *Service) runList(ctx context.Context, adapter provider.MailboxProvider, conn *model.MailboxConnection, opts RunOptions) (*RunResult, error) {
	max := opts.MaxMessages
	if max <= 0 {
		max = s.cfg.MaxMessages
	}
	raws, err := adapter.FetchMessages(ctx, conn, provider.FetchOptions{
		MaxResults: max,
		Folder:     opts.Folder,
	})
	if err != nil {
		return nil, err
	}

	result := &RunResult{Provider: conn.Provider, Mode: "list", Fetched: len(raws)}
	logger := applog.WithTrace(ctx, s.logger)
	for _, raw := range raws {
		res, err := s.ingestor.Ingest(ctx, raw, conn.OwnerID, conn.ID, ingest.Options{})
		if err != nil {
			if isSkippable(err) {
				logger.Warn("message skipped during list sync",
					zap.String("external_id", raw.ExternalID),
					zap.Error(err))
				result.Skipped++
				continue
			}
			return nil, err
		}
		if res.Created {
			result.Created++
		} else {
			result.Duplicates++
		}
	}

	if err := s.connections.TouchLastSynced(ctx, conn.ID, time.Now().UTC()); err != nil {
		logger.Warn("failed to record sync watermark", zap.Error(err))
	}
	return result, nil
}

// runDelta applies one delta page. The stored cursor is replaced only after
// every change in the page has been applied, so a failed run resumes from the
// same cursor and re-applies idempotently.
func (s *Service) runDelta(ctx context.Context, adapter provider.MailboxProvider, conn *model.MailboxConnection) (*RunResult, error) {
	delta, err := adapter.FetchDelta(ctx, conn, conn.DeltaCursor)
	if err != nil {
		return nil, err
	}

	result := &RunResult{Provider: conn.Provider, Mode: "delta", Fetched: len(delta.Added)}
	logger := applog.WithTrace(ctx, s.logger)
	for _, raw := range delta.Added {
		res, err := s.ingestor.Ingest(ctx, raw, conn.OwnerID, conn.ID, ingest.Options{})
		if err != nil {
			if isSkippable(err) {
				logger.Warn("message skipped during delta sync",
					zap.String("external_id", raw.ExternalID),
					zap.Error(err))
				result.Skipped++
				continue
			}
			return nil, err
		}
		if res.Created {
			result.Created++
		} else {
			result.Duplicates++
		}
	}

	for _, externalID := range delta.RemovedIDs {
		if err := s.emails.SoftDeleteByExternalID(ctx, conn.ID, externalID); err != nil {
			return nil, err
		}
		result.Removed++
	}

	if delta.NextCursor != "" && delta.NextCursor != conn.DeltaCursor {
		if err := s.connections.UpdateDeltaCursor(ctx, conn.ID, delta.NextCursor, time.Now().UTC()); err != nil {
			return nil, fmt.Errorf("advance delta cursor: %w", err)
		}
	} else if err := s.connections.TouchLastSynced(ctx, conn.ID, time.Now().UTC()); err != nil {
		logger.Warn("failed to record sync watermark", zap.Error(err))
	}

	return result, nil
}

// isSkippable separates per-message decode failures from persistence
// failures. Only the former may be dropped without blocking the cursor.
func isSkippable(err error) bool {
	var parseErr *mailparse.ParseError
	return errors.As(err, &parseErr)
}
