package timeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"sailsdock/internal/model"
	"sailsdock/internal/repository"
	"sailsdock/pkg/metrics"
)

const (
	ScopeBusiness = "business"
	ScopeContact  = "contact"
)

// sourceCap bounds how many rows each source contributes to one query.
const sourceCap = 50

// ScopeNotFoundError means the scope entity does not exist in the caller's
// workspace. Surfaced as 404, never as an empty timeline.
type ScopeNotFoundError struct {
	Kind string
	ID   string
}

func (e *ScopeNotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found in workspace", e.Kind, e.ID)
}

type Options struct {
	Limit             int
	Page              int
	IncludeActivities bool
	IncludeEmails     bool
	IncludeSms        bool
	IncludeOffers     bool
	IncludeTickets    bool
}

func DefaultOptions() Options {
	return Options{
		Limit:             50,
		Page:              1,
		IncludeActivities: true,
		IncludeEmails:     true,
		IncludeSms:        true,
		IncludeOffers:     true,
		IncludeTickets:    true,
	}
}

type Result struct {
	Events  []model.TimelineEvent `json:"events"`
	Page    int                   `json:"page"`
	Limit   int                   `json:"limit"`
	Total   int                   `json:"total"`
	HasMore bool                  `json:"hasMore"`
}

type BusinessStore interface {
	FindInWorkspace(ctx context.Context, id, workspaceID string) (*model.Business, error)
}

type ContactStore interface {
	FindInWorkspace(ctx context.Context, id, workspaceID string) (*model.Contact, error)
	ListByBusiness(ctx context.Context, businessID string) ([]model.Contact, error)
}

type ActivityStore interface {
	ListByBusiness(ctx context.Context, businessID string, limit int) ([]model.Activity, error)
	ListByContact(ctx context.Context, contactID string, limit int) ([]model.Activity, error)
}

type EmailStore interface {
	ListByBusiness(ctx context.Context, businessID string, limit int) ([]model.SyncedEmail, error)
	ListByContact(ctx context.Context, contactID string, limit int) ([]model.SyncedEmail, error)
}

type SmsStore interface {
	ListByBusiness(ctx context.Context, businessID string, limit int) ([]model.SmsMessage, error)
	ListByContact(ctx context.Context, contactID string, limit int) ([]model.SmsMessage, error)
}

type OfferStore interface {
	ListByBusiness(ctx context.Context, businessID string, limit int) ([]model.Offer, error)
}

type TicketStore interface {
	ListByBusiness(ctx context.Context, businessID string, limit int) ([]model.Ticket, error)
	ListCommentsForTickets(ctx context.Context, ticketIDs []string) ([]model.TicketComment, error)
}

type UserStore interface {
	FindByIDs(ctx context.Context, ids []string) ([]model.User, error)
}

// Service assembles a merged, paginated event stream over the record sources
// attached to one business or contact. Events are derived on read; nothing
// here writes.
type Service struct {
	businesses BusinessStore
	contacts   ContactStore
	activities ActivityStore
	emails     EmailStore
	sms        SmsStore
	offers     OfferStore
	tickets    TicketStore
	users      UserStore
	logger     *zap.Logger
}

func NewService(
	businesses BusinessStore,
	contacts ContactStore,
	activities ActivityStore,
	emails EmailStore,
	sms SmsStore,
	offers OfferStore,
	tickets TicketStore,
	users UserStore,
	logger *zap.Logger,
) *Service {
	return &Service{
		businesses: businesses,
		contacts:   contacts,
		activities: activities,
		emails:     emails,
		sms:        sms,
		offers:     offers,
		tickets:    tickets,
		users:      users,
		logger:     logger,
	}
}

// GetTimeline builds the event stream for one scope. currentUser, when set,
// is used as the actor fallback for records whose author cannot be resolved.
func (s *Service) GetTimeline(ctx context.Context, workspaceID string, currentUser *model.TimelineActor, scopeKind, scopeID string, opts Options) (*Result, error) {
	start := time.Now()

	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	if opts.Page <= 0 {
		opts.Page = 1
	}

	var events []model.TimelineEvent
	var err error
	switch scopeKind {
	case ScopeBusiness:
		events, err = s.businessEvents(ctx, workspaceID, scopeID, opts)
	case ScopeContact:
		events, err = s.contactEvents(ctx, workspaceID, scopeID, opts)
	default:
		return nil, fmt.Errorf("unknown timeline scope: %s", scopeKind)
	}
	if err != nil {
		return nil, err
	}

	if err := s.resolveActors(ctx, events, currentUser); err != nil {
		return nil, err
	}

	sortEvents(events)
	total := len(events)
	page := paginate(events, opts.Page, opts.Limit)

	metrics.RecordTimelineQuery(scopeKind, time.Since(start))
	return &Result{
		Events:  page,
		Page:    opts.Page,
		Limit:   opts.Limit,
		Total:   total,
		HasMore: opts.Page*opts.Limit < total,
	}, nil
}

func (s *Service) businessEvents(ctx context.Context, workspaceID, businessID string, opts Options) ([]model.TimelineEvent, error) {
	business, err := s.businesses.FindInWorkspace(ctx, businessID, workspaceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &ScopeNotFoundError{Kind: ScopeBusiness, ID: businessID}
		}
		return nil, err
	}

	events := []model.TimelineEvent{{
		ID:        "business-created-" + business.ID,
		Type:      model.EventBusinessCreated,
		Title:     "Bedrift opprettet",
		Timestamp: business.CreatedAt,
		Metadata:  map[string]any{"name": business.Name},
	}}

	contacts, err := s.contacts.ListByBusiness(ctx, business.ID)
	if err != nil {
		return nil, err
	}
	for _, c := range contacts {
		events = append(events, model.TimelineEvent{
			ID:        "contact-created-" + c.ID,
			Type:      model.EventContactCreated,
			Title:     "Kontakt opprettet",
			Timestamp: c.CreatedAt,
			Metadata:  map[string]any{"name": c.Name},
		})
	}

	if opts.IncludeActivities {
		activities, err := s.activities.ListByBusiness(ctx, business.ID, sourceCap)
		if err != nil {
			return nil, err
		}
		events = append(events, activityEvents(activities)...)
	}
	if opts.IncludeEmails {
		emails, err := s.emails.ListByBusiness(ctx, business.ID, sourceCap)
		if err != nil {
			return nil, err
		}
		events = append(events, emailEvents(emails)...)
	}
	if opts.IncludeSms {
		messages, err := s.sms.ListByBusiness(ctx, business.ID, sourceCap)
		if err != nil {
			return nil, err
		}
		events = append(events, smsEvents(messages)...)
	}
	if opts.IncludeOffers {
		offers, err := s.offers.ListByBusiness(ctx, business.ID, sourceCap)
		if err != nil {
			return nil, err
		}
		events = append(events, offerEvents(offers)...)
	}
	if opts.IncludeTickets {
		ticketEvs, err := s.ticketEvents(ctx, business.ID)
		if err != nil {
			return nil, err
		}
		events = append(events, ticketEvs...)
	}
	return events, nil
}

// contactEvents covers the contact-scoped sources. Offers and tickets are
// business-level records and do not appear on contact timelines.
func (s *Service) contactEvents(ctx context.Context, workspaceID, contactID string, opts Options) ([]model.TimelineEvent, error) {
	contact, err := s.contacts.FindInWorkspace(ctx, contactID, workspaceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &ScopeNotFoundError{Kind: ScopeContact, ID: contactID}
		}
		return nil, err
	}

	events := []model.TimelineEvent{{
		ID:        "contact-created-" + contact.ID,
		Type:      model.EventContactCreated,
		Title:     "Kontakt opprettet",
		Timestamp: contact.CreatedAt,
		Metadata:  map[string]any{"name": contact.Name},
	}}

	if opts.IncludeActivities {
		activities, err := s.activities.ListByContact(ctx, contact.ID, sourceCap)
		if err != nil {
			return nil, err
		}
		events = append(events, activityEvents(activities)...)
	}
	if opts.IncludeEmails {
		emails, err := s.emails.ListByContact(ctx, contact.ID, sourceCap)
		if err != nil {
			return nil, err
		}
		events = append(events, emailEvents(emails)...)
	}
	if opts.IncludeSms {
		messages, err := s.sms.ListByContact(ctx, contact.ID, sourceCap)
		if err != nil {
			return nil, err
		}
		events = append(events, smsEvents(messages)...)
	}
	return events, nil
}

var activityTitles = map[string]string{
	"call":    "Telefonsamtale",
	"meeting": "Møte",
	"email":   "E-post aktivitet",
	"note":    "Notat",
}

func activityEvents(activities []model.Activity) []model.TimelineEvent {
	events := make([]model.TimelineEvent, 0, len(activities))
	for _, a := range activities {
		title, ok := activityTitles[a.Type]
		if !ok {
			title = "Aktivitet"
		}
		ev := model.TimelineEvent{
			ID:          "activity-" + a.ID,
			Type:        model.EventActivity,
			Title:       title,
			Description: a.Description,
			Timestamp:   a.Date,
			Metadata:    map[string]any{"activityType": a.Type, "completed": a.Completed},
		}
		if a.UserID != nil {
			ev.Actor = &model.TimelineActor{ID: *a.UserID}
		}
		events = append(events, ev)
	}
	return events
}

func emailEvents(emails []model.SyncedEmail) []model.TimelineEvent {
	events := make([]model.TimelineEvent, 0, len(emails))
	for _, e := range emails {
		title := e.Subject
		if title == "" {
			title = "E-post"
		}
		events = append(events, model.TimelineEvent{
			ID:          "email-" + e.ID,
			Type:        model.EventEmail,
			Title:       title,
			Description: snippet(e.BodyText, 200),
			Timestamp:   e.SentAt,
			Metadata: map[string]any{
				"from": e.FromAddress,
				"to":   e.ToAddresses,
			},
		})
	}
	return events
}

func smsEvents(messages []model.SmsMessage) []model.TimelineEvent {
	events := make([]model.TimelineEvent, 0, len(messages))
	for _, m := range messages {
		title := "SMS mottatt"
		if m.Direction == "outbound" {
			title = "SMS sendt"
		}
		events = append(events, model.TimelineEvent{
			ID:          "sms-" + m.ID,
			Type:        model.EventSms,
			Title:       title,
			Description: m.Content,
			Timestamp:   m.SentAt,
			Status:      m.Status,
			Metadata:    map[string]any{"direction": m.Direction},
		})
	}
	return events
}

// offerEvents yields a creation event per offer plus a status-change event
// when the offer has been touched since creation.
func offerEvents(offers []model.Offer) []model.TimelineEvent {
	events := make([]model.TimelineEvent, 0, len(offers))
	for _, o := range offers {
		meta := map[string]any{
			"title":       o.Title,
			"totalAmount": o.TotalAmount,
			"currency":    o.Currency,
			"itemCount":   o.ItemCount,
		}
		events = append(events, model.TimelineEvent{
			ID:        "offer-created-" + o.ID,
			Type:      model.EventOfferCreated,
			Title:     "Tilbud opprettet",
			Timestamp: o.CreatedAt,
			Status:    o.Status,
			Metadata:  meta,
		})
		if o.UpdatedAt.After(o.CreatedAt) {
			events = append(events, model.TimelineEvent{
				ID:        "offer-status-" + o.ID,
				Type:      model.EventOfferStatusChanged,
				Title:     "Tilbud oppdatert",
				Timestamp: o.UpdatedAt,
				Status:    o.Status,
				Metadata:  meta,
			})
		}
	}
	return events
}

func (s *Service) ticketEvents(ctx context.Context, businessID string) ([]model.TimelineEvent, error) {
	tickets, err := s.tickets.ListByBusiness(ctx, businessID, sourceCap)
	if err != nil {
		return nil, err
	}

	events := make([]model.TimelineEvent, 0, len(tickets))
	ticketIDs := make([]string, 0, len(tickets))
	for _, t := range tickets {
		ticketIDs = append(ticketIDs, t.ID)
		ev := model.TimelineEvent{
			ID:          "ticket-created-" + t.ID,
			Type:        model.EventTicketCreated,
			Title:       "Support sak opprettet",
			Description: t.Title,
			Timestamp:   t.CreatedAt,
			Status:      t.Status,
			Metadata:    map[string]any{"priority": t.Priority},
		}
		if t.CreatorID != nil {
			ev.Actor = &model.TimelineActor{ID: *t.CreatorID}
		}
		events = append(events, ev)

		if t.ResolvedAt != nil {
			events = append(events, model.TimelineEvent{
				ID:          "ticket-resolved-" + t.ID,
				Type:        model.EventTicketResolved,
				Title:       "Support sak løst",
				Description: t.Title,
				Timestamp:   *t.ResolvedAt,
				Status:      t.Status,
			})
		}
	}

	comments, err := s.tickets.ListCommentsForTickets(ctx, ticketIDs)
	if err != nil {
		return nil, err
	}
	for _, c := range comments {
		if c.IsInternal {
			continue
		}
		events = append(events, model.TimelineEvent{
			ID:          "ticket-comment-" + c.ID,
			Type:        model.EventTicketComment,
			Title:       "Ny kommentar",
			Description: c.Content,
			Timestamp:   c.CreatedAt,
			Actor:       &model.TimelineActor{ID: c.AuthorID},
		})
	}
	return events, nil
}

// resolveActors batch-loads the users referenced by events and fills in
// names. Unresolvable ids fall back to the current user, then to "System".
func (s *Service) resolveActors(ctx context.Context, events []model.TimelineEvent, currentUser *model.TimelineActor) error {
	idSet := make(map[string]bool)
	for i := range events {
		if events[i].Actor != nil && events[i].Actor.Name == "" {
			idSet[events[i].Actor.ID] = true
		}
	}
	if len(idSet) == 0 {
		return nil
	}

	ids := make([]string, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	users, err := s.users.FindByIDs(ctx, ids)
	if err != nil {
		return err
	}
	byID := make(map[string]model.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	for i := range events {
		actor := events[i].Actor
		if actor == nil || actor.Name != "" {
			continue
		}
		if u, ok := byID[actor.ID]; ok {
			events[i].Actor = &model.TimelineActor{ID: u.ID, Name: u.Name, Image: u.Image}
		} else if currentUser != nil {
			events[i].Actor = currentUser
		} else {
			events[i].Actor = &model.TimelineActor{ID: actor.ID, Name: "System"}
		}
	}
	return nil
}

// sortEvents orders newest first. Equal timestamps fall back to descending
// event id so ordering is stable across calls.
func sortEvents(events []model.TimelineEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Timestamp.Equal(events[j].Timestamp) {
			return events[i].Timestamp.After(events[j].Timestamp)
		}
		return events[i].ID > events[j].ID
	})
}

func paginate(events []model.TimelineEvent, page, limit int) []model.TimelineEvent {
	offset := (page - 1) * limit
	if offset >= len(events) {
		return []model.TimelineEvent{}
	}
	end := offset + limit
	if end > len(events) {
		end = len(events)
	}
	return events[offset:end]
}

// snippet truncates to at most max bytes without splitting a UTF-8 sequence.
func snippet(text string, max int) string {
	text = strings.TrimSpace(text)
	if len(text) <= max {
		return text
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}
