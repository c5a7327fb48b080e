package core

import (
	"regexp"
	"strings"

	"github.com/mikey/inbox-triage/internal/utils"
)

// Feature marker tokens. The vectorizer only needs them to be stable.
const (
	markerNoReplySender  = "NOREPLY_SENDER"
	markerListUnsub      = "HAS_LIST_UNSUBSCRIBE"
	markerPrecedenceBulk = "PRECEDENCE_BULK"
	markerXMailer        = "HAS_XMAILER"
)

const featurePreviewLimit = 200

var noReplyPattern = regexp.MustCompile(`^(?i)(noreply|no-reply|notifications?|receipts?|mailer|newsletter|info|support|alerts?|updates?)@`)

// ExtractFeatures maps a message to a flat feature string used by the
// statistical vectorizer and, informally, by the LLM prompt builder. Pure
// and deterministic: identical input always produces identical output.
func ExtractFeatures(msg *Message) string {
	var parts []string

	if msg.Sender != "" {
		addr := utils.NormalizeNFC(msg.Sender)
		parts = append(parts, addr)
		if at := strings.Index(addr, "@"); at >= 0 {
			parts = append(parts, addr[at+1:])
		}
		if noReplyPattern.MatchString(addr) {
			parts = append(parts, markerNoReplySender)
		}
	}

	if msg.Subject != "" {
		parts = append(parts, utils.NormalizeNFC(msg.Subject))
	}

	if msg.HasHeader(HeaderListUnsubscribe) {
		parts = append(parts, markerListUnsub)
	}

	if prec := msg.Headers[HeaderPrecedence]; prec != "" {
		lower := strings.ToLower(prec)
		if strings.Contains(lower, "bulk") || strings.Contains(lower, "list") {
			parts = append(parts, markerPrecedenceBulk)
		}
	}

	if msg.HasHeader(HeaderXMailer) {
		parts = append(parts, markerXMailer)
	}

	if msg.Preview != "" {
		preview := utils.TruncateRunes(utils.NormalizeNFC(msg.Preview), featurePreviewLimit)
		parts = append(parts, preview)
	}

	return strings.Join(parts, " ")
}

// ExtractFeaturesBatch maps each message through ExtractFeatures
func ExtractFeaturesBatch(msgs []*Message) []string {
	features := make([]string, len(msgs))
	for i, msg := range msgs {
		features[i] = ExtractFeatures(msg)
	}
	return features
}
