package mailparse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleMessage = "From: Kari Nordmann <kari@firma.no>\r\n" +
	"To: ola@kunde.no, per@kunde.no\r\n" +
	"Cc: support@firma.no\r\n" +
	"Subject: Tilbud på konsulenttimer\r\n" +
	"Date: Mon, 02 Jan 2023 15:04:05 +0100\r\n" +
	"Message-ID: <abc123@firma.no>\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Hei, her er tilbudet vi snakket om.\r\n"

func TestParseFullMessage(t *testing.T) {
	email, err := Parse(sampleMessage)
	require.NoError(t, err)

	assert.Equal(t, "Tilbud på konsulenttimer", email.Subject)
	assert.Equal(t, "kari@firma.no", email.FromAddress)
	assert.Equal(t, "Kari Nordmann", email.FromName)
	assert.Equal(t, []string{"ola@kunde.no", "per@kunde.no"}, email.To)
	assert.Equal(t, []string{"support@firma.no"}, email.Cc)
	assert.Equal(t, "abc123@firma.no", email.MessageID)
	assert.Contains(t, email.Text, "tilbudet vi snakket om")
	assert.Equal(t, 2023, email.Date.Year())
}

func TestParseMissingHeadersYieldsZeroValues(t *testing.T) {
	email, err := Parse("Subject: only a subject\r\n\r\nbody\r\n")
	require.NoError(t, err)

	assert.Equal(t, "only a subject", email.Subject)
	assert.Empty(t, email.FromAddress)
	assert.Empty(t, email.To)
	assert.Empty(t, email.Cc)
}

func TestParseEmptyPayloadIsParseError(t *testing.T) {
	email, err := Parse("")
	assert.Nil(t, email)

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, "empty payload", parseErr.Reason)

	_, err = Parse("\r\n")
	assert.ErrorAs(t, err, &parseErr)
}

func TestParseMissingDateDefaultsToNow(t *testing.T) {
	before := time.Now().Add(-time.Minute)
	email, err := Parse("Subject: no date\r\n\r\nhi\r\n")
	require.NoError(t, err)
	assert.True(t, email.Date.After(before))
}

func TestParseThreadIDFallbacks(t *testing.T) {
	email, err := Parse("Thread-ID: <thread-1>\r\nIn-Reply-To: <parent@x>\r\n\r\nbody\r\n")
	require.NoError(t, err)
	assert.Equal(t, "thread-1", email.ThreadID)

	email, err = Parse("In-Reply-To: <parent@x>\r\n\r\nbody\r\n")
	require.NoError(t, err)
	assert.Equal(t, "parent@x", email.ThreadID)

	email, err = Parse("References: <root@x> <mid@x>\r\n\r\nbody\r\n")
	require.NoError(t, err)
	assert.Equal(t, "root@x", email.ThreadID)
}

func TestSynthesizeFromSummaryRoundTrips(t *testing.T) {
	date := time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)
	raw := SynthesizeFromSummary(MessageSummary{
		MessageID:   "msg-1",
		ThreadID:    "thr-1",
		Subject:     "Møtereferat",
		FromAddress: "kari@firma.no",
		FromName:    "Kari Nordmann",
		To:          []string{"ola@kunde.no"},
		Cc:          []string{"cc@kunde.no"},
		Date:        date,
		BodyPreview: "Kort oppsummering av møtet",
	})

	email, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "Møtereferat", email.Subject)
	assert.Equal(t, "kari@firma.no", email.FromAddress)
	assert.Equal(t, "Kari Nordmann", email.FromName)
	assert.Equal(t, []string{"ola@kunde.no"}, email.To)
	assert.Equal(t, []string{"cc@kunde.no"}, email.Cc)
	assert.Equal(t, "msg-1", email.MessageID)
	assert.Equal(t, "thr-1", email.ThreadID)
	assert.True(t, email.Date.Equal(date))
	assert.Contains(t, email.Text, "Kort oppsummering")
}

func TestSynthesizeEmptySummaryStillParses(t *testing.T) {
	raw := SynthesizeFromSummary(MessageSummary{})

	email, err := Parse(raw)
	require.NoError(t, err)
	assert.NotEmpty(t, email.Subject)
	assert.NotEmpty(t, email.FromAddress)
	assert.False(t, email.Date.IsZero())
	assert.NotEmpty(t, email.Text)
}
