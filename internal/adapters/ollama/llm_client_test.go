package ollama

import (
	"testing"

	"github.com/mikey/inbox-triage/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTriageResponse_PlainJSON(t *testing.T) {
	parsed, err := parseTriageResponse(`{"category": "noise", "reason": "marketing blast"}`)
	require.NoError(t, err)
	assert.Equal(t, "noise", parsed.Category)
	assert.Equal(t, "marketing blast", parsed.Reason)
}

func TestParseTriageResponse_JSONWrappedInProse(t *testing.T) {
	text := "Sure! Here is the classification:\n```json\n{\"category\": \"fyi\", \"reason\": \"status update\"}\n```\nLet me know if you need more."
	parsed, err := parseTriageResponse(text)
	require.NoError(t, err)
	assert.Equal(t, "fyi", parsed.Category)
	assert.Equal(t, "status update", parsed.Reason)
}

func TestParseTriageResponse_NoJSON(t *testing.T) {
	_, err := parseTriageResponse("I cannot classify this email.")
	assert.Error(t, err)
}

func TestParseTriageResponse_MalformedJSON(t *testing.T) {
	_, err := parseTriageResponse(`{"category": "noise", "reason": `)
	assert.Error(t, err)
}

func TestBuildUserMessage(t *testing.T) {
	msg := &core.Message{
		Sender:  "billing@shop.com",
		Subject: "Your invoice",
		Preview: "Invoice #42 is attached",
	}
	out := buildUserMessage(msg)
	assert.Equal(t, "From: billing@shop.com\nSubject: Your invoice\nPreview: Invoice #42 is attached", out)
}

func TestBuildUserMessage_MissingFields(t *testing.T) {
	out := buildUserMessage(&core.Message{Sender: "a@x.com"})
	assert.Contains(t, out, "(no subject)")
	assert.NotContains(t, out, "Preview:")
}

func TestBuildUserMessage_PreviewTruncated(t *testing.T) {
	long := make([]rune, 500)
	for i := range long {
		long[i] = 'x'
	}
	msg := &core.Message{Sender: "a@x.com", Subject: "s", Preview: string(long)}
	out := buildUserMessage(msg)
	assert.LessOrEqual(t, len([]rune(out)), 300+len("From: a@x.com\nSubject: s\nPreview: "))
}
