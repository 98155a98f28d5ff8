package mailparse

import (
	"fmt"
	"strings"
	"time"
)

// MessageSummary is the header-level metadata a provider list call returns
// for one message, without the full body.
type MessageSummary struct {
	MessageID   string
	ThreadID    string
	Subject     string
	FromAddress string
	FromName    string
	To          []string
	Cc          []string
	Date        time.Time
	BodyPreview string
}

// SynthesizeFromSummary builds a minimal RFC822 payload from list-call
// metadata. It is the degraded path used when the per-item content fetch
// fails; the result always parses and always carries a subject, sender
// and date.
func SynthesizeFromSummary(s MessageSummary) string {
	var b strings.Builder

	from := s.FromAddress
	if from == "" {
		from = "unknown@unknown"
	}
	if s.FromName != "" {
		fmt.Fprintf(&b, "From: %s <%s>\r\n", s.FromName, from)
	} else {
		fmt.Fprintf(&b, "From: <%s>\r\n", from)
	}
	if len(s.To) > 0 {
		fmt.Fprintf(&b, "To: %s\r\n", strings.Join(s.To, ", "))
	}
	if len(s.Cc) > 0 {
		fmt.Fprintf(&b, "Cc: %s\r\n", strings.Join(s.Cc, ", "))
	}

	subject := s.Subject
	if subject == "" {
		subject = "(no subject)"
	}
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)

	date := s.Date
	if date.IsZero() {
		date = time.Now().UTC()
	}
	fmt.Fprintf(&b, "Date: %s\r\n", date.Format(time.RFC1123Z))

	if s.MessageID != "" {
		fmt.Fprintf(&b, "Message-ID: <%s>\r\n", s.MessageID)
	}
	if s.ThreadID != "" {
		fmt.Fprintf(&b, "Thread-ID: <%s>\r\n", s.ThreadID)
	}

	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	if s.BodyPreview != "" {
		b.WriteString(s.BodyPreview)
	} else {
		b.WriteString("(message content unavailable)")
	}
	b.WriteString("\r\n")

	return b.String()
}
