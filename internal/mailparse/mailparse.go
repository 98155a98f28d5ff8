package mailparse

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/jhillyerd/enmime"
)

// ParseError means the transport payload could not be decoded at all.
// Callers skip the message and count it; they never abort the sync run.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mail parse failed (%s): %v", e.Reason, e.Err)
	}
	return "mail parse failed (" + e.Reason + ")"
}

func (e *ParseError) Unwrap() error { return e.Err }

// Email holds the normalized fields extracted from one RFC822 payload.
type Email struct {
	MessageID   string
	ThreadID    string
	Subject     string
	FromAddress string
	FromName    string
	To          []string
	Cc          []string
	Date        time.Time
	Text        string
	HTML        string
}

// Parse decodes a full RFC822/MIME payload. It is tolerant of incomplete
// messages: missing headers or bodies yield zero values, a missing date
// defaults to now. An undecodable payload, or one carrying no sender, no
// subject, no message id and no body at all, returns ParseError.
func Parse(raw string) (*Email, error) {
	env, err := enmime.ReadEnvelope(strings.NewReader(raw))
	if err != nil {
		return nil, &ParseError{Reason: "unreadable payload", Err: err}
	}

	e := &Email{
		MessageID: strings.Trim(env.GetHeader("Message-ID"), "<>"),
		ThreadID:  threadID(env),
		Subject:   env.GetHeader("Subject"),
		Text:      env.Text,
		HTML:      env.HTML,
		To:        addressList(env, "To"),
		Cc:        addressList(env, "Cc"),
	}

	if from, err := env.AddressList("From"); err == nil && len(from) > 0 {
		e.FromAddress = from[0].Address
		e.FromName = from[0].Name
	}

	// enmime reads an empty or header-less payload without complaint. A
	// message with no sender, subject, id or body is junk, not an email, and
	// persisting it would burn the idempotency key for its external id.
	if e.MessageID == "" && e.Subject == "" && e.FromAddress == "" && e.Text == "" && e.HTML == "" {
		return nil, &ParseError{Reason: "empty payload"}
	}

	if d, err := mail.ParseDate(env.GetHeader("Date")); err == nil {
		e.Date = d
	} else {
		e.Date = time.Now().UTC()
	}

	return e, nil
}

// threadID prefers an explicit Thread-ID header, then falls back to the
// conversation root from In-Reply-To or References.
func threadID(env *enmime.Envelope) string {
	if id := strings.Trim(env.GetHeader("Thread-ID"), "<>"); id != "" {
		return id
	}
	if id := strings.Trim(env.GetHeader("In-Reply-To"), "<>"); id != "" {
		return id
	}
	refs := strings.Fields(env.GetHeader("References"))
	if len(refs) > 0 {
		return strings.Trim(refs[0], "<>")
	}
	return ""
}

func addressList(env *enmime.Envelope, header string) []string {
	addrs, err := env.AddressList(header)
	if err != nil || len(addrs) == 0 {
		return nil
	}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.Address)
	}
	return out
}
