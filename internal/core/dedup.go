package core

import (
	"regexp"
	"sort"
	"strings"

	"github.com/mikey/inbox-triage/internal/utils"
)

// replyPrefix matches a single leading reply/forward marker. Applied
// once, not repeatedly: "Re: Re: Hello" keeps its inner prefix and lands
// in a different group than "Hello".
var replyPrefix = regexp.MustCompile(`^(?i)(re|fwd?|fw)\s*:\s*`)

const dedupPreviewLimit = 80

type dedupKey struct {
	sender  string
	subject string
	preview string
}

func groupingKey(msg *Message) dedupKey {
	subject := replyPrefix.ReplaceAllString(msg.Subject, "")
	preview := utils.CollapseWhitespace(msg.Preview)
	return dedupKey{
		sender:  strings.ToLower(msg.Sender),
		subject: strings.ToLower(strings.TrimSpace(subject)),
		preview: utils.TruncateRunes(strings.ToLower(preview), dedupPreviewLimit),
	}
}

// Deduplicate groups messages by normalized (sender, subject, preview)
// identity and keeps one survivor per group: a flagged copy wins over an
// unflagged one, then the newest receivedAt wins. Every input message ends
// up in exactly one of the two returned slices.
//
// Messages with all-blank fields share the empty key and dedup together.
func Deduplicate(msgs []*Message) (survivors, dupes []*Message) {
	groups := make(map[dedupKey][]*Message, len(msgs))
	var order []dedupKey
	for _, msg := range msgs {
		key := groupingKey(msg)
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], msg)
	}

	survivors = make([]*Message, 0, len(order))
	for _, key := range order {
		group := groups[key]
		if len(group) == 1 {
			survivors = append(survivors, group[0])
			continue
		}
		// Flagged copies first, then newest. ISO timestamps of the same
		// format compare correctly as strings.
		sort.SliceStable(group, func(i, j int) bool {
			if group[i].Flagged() != group[j].Flagged() {
				return group[i].Flagged()
			}
			return group[i].ReceivedAt > group[j].ReceivedAt
		})
		survivors = append(survivors, group[0])
		dupes = append(dupes, group[1:]...)
	}

	return survivors, dupes
}
