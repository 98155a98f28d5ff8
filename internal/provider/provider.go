package provider

import (
	"context"
	"fmt"

	"sailsdock/internal/model"
)

// RawMessage is one message as returned by a mailbox backend: transport-format
// payload plus the provider ids the ingestion pipeline keys on.
type RawMessage struct {
	ExternalID string
	ThreadID   string
	Raw        string
}

type FetchOptions struct {
	MaxResults int
	Folder     string
	Filter     string
}

// DeltaResult is one page of a resumable change stream. NextCursor is a
// complete request target and must be passed back verbatim on the next call.
type DeltaResult struct {
	Added      []RawMessage
	RemovedIDs []string
	NextCursor string
}

type FlagUpdate struct {
	IsRead    *bool
	IsStarred *bool
}

// MailboxProvider is the common capability surface over the two backend
// families. Implementations are selected by the provider tag on a
// MailboxConnection, not by hierarchy.
type MailboxProvider interface {
	Kind() string
	// DeltaCapable reports whether this family syncs via FetchDelta
	// instead of paged listing.
	DeltaCapable() bool
	FetchMessages(ctx context.Context, conn *model.MailboxConnection, opts FetchOptions) ([]RawMessage, error)
	FetchDelta(ctx context.Context, conn *model.MailboxConnection, cursor string) (*DeltaResult, error)
	// SetFlags is best-effort: provider errors are swallowed and logged.
	SetFlags(ctx context.Context, conn *model.MailboxConnection, externalID string, flags FlagUpdate) bool
}

// Registry maps provider kind tags to adapters.
type Registry struct {
	providers map[string]MailboxProvider
}

func NewRegistry(providers ...MailboxProvider) *Registry {
	r := &Registry{providers: make(map[string]MailboxProvider)}
	for _, p := range providers {
		r.providers[p.Kind()] = p
	}
	return r
}

func (r *Registry) Get(kind string) (MailboxProvider, error) {
	p, ok := r.providers[kind]
	if !ok {
		return nil, fmt.Errorf("unsupported mailbox provider: %s", kind)
	}
	return p, nil
}
