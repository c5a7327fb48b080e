package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractFeatures_Deterministic(t *testing.T) {
	msg := testMessage("a", "noreply@shop.example", "Your receipt", "Thanks for your order", "2024-01-01T00:00:00Z", false)
	msg.Headers = map[string]string{HeaderListUnsubscribe: "<mailto:u@shop.example>"}

	first := ExtractFeatures(msg)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, ExtractFeatures(msg))
	}
}

func TestExtractFeatures_SenderAndDomain(t *testing.T) {
	msg := testMessage("a", "alice@example.com", "", "", "", false)
	out := ExtractFeatures(msg)

	assert.Contains(t, out, "alice@example.com")
	assert.Contains(t, out, "example.com")
	assert.NotContains(t, out, "NOREPLY_SENDER")
}

func TestExtractFeatures_NoReplyMarker(t *testing.T) {
	tests := []struct {
		sender string
		want   bool
	}{
		{"noreply@x.com", true},
		{"no-reply@x.com", true},
		{"NOTIFICATIONS@x.com", true},
		{"notification@x.com", true},
		{"receipts@x.com", true},
		{"newsletter@x.com", true},
		{"alerts@x.com", true},
		{"alert@x.com", true},
		{"updates@x.com", true},
		{"alice@x.com", false},
		{"noreplyish@x.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.sender, func(t *testing.T) {
			msg := testMessage("a", tt.sender, "", "", "", false)
			got := strings.Contains(ExtractFeatures(msg), "NOREPLY_SENDER")
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractFeatures_HeaderMarkers(t *testing.T) {
	msg := testMessage("a", "x@x.com", "Hi", "", "", false)
	msg.Headers = map[string]string{
		HeaderListUnsubscribe: "",
		HeaderPrecedence:      "Bulk",
		HeaderXMailer:         "Mailchimp",
	}
	out := ExtractFeatures(msg)

	// List-Unsubscribe counts by presence alone, even with empty value.
	assert.Contains(t, out, "HAS_LIST_UNSUBSCRIBE")
	assert.Contains(t, out, "PRECEDENCE_BULK")
	assert.Contains(t, out, "HAS_XMAILER")
}

func TestExtractFeatures_PrecedenceSubstring(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"bulk", true},
		{"LIST", true},
		{"mailing-list", true},
		{"first-class", false},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			msg := testMessage("a", "x@x.com", "", "", "", false)
			msg.Headers = map[string]string{HeaderPrecedence: tt.value}
			got := strings.Contains(ExtractFeatures(msg), "PRECEDENCE_BULK")
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractFeatures_MissingFieldsContributeNothing(t *testing.T) {
	msg := testMessage("a", "", "", "", "", false)
	assert.Equal(t, "", ExtractFeatures(msg))
}

func TestExtractFeatures_PreviewTruncated(t *testing.T) {
	msg := testMessage("a", "", "", strings.Repeat("p", 500), "", false)
	out := ExtractFeatures(msg)
	assert.Len(t, out, 200)
}

func TestExtractFeaturesBatch(t *testing.T) {
	msgs := []*Message{
		testMessage("a", "x@x.com", "One", "", "", false),
		testMessage("b", "y@y.com", "Two", "", "", false),
	}
	features := ExtractFeaturesBatch(msgs)
	assert.Len(t, features, 2)
	assert.Contains(t, features[0], "One")
	assert.Contains(t, features[1], "Two")
}
