package core

import (
	"context"
	"fmt"

	"github.com/mikey/inbox-triage/internal/keeplist"
	"go.uber.org/zap"
)

// Well-known folder roles
const (
	RoleInbox   = "inbox"
	RoleArchive = "archive"
)

// TriageService runs the triage pipeline: fetch, classify, dedup among
// the keep candidates, union the archive set, then dry-run or commit.
// Execution is sequential; a failing remote call aborts the run.
type TriageService struct {
	mailbox   Mailbox
	policy    TriagePolicy
	protected *keeplist.Keeplist
	logger    *zap.Logger
}

// NewTriageService creates a new triage service
func NewTriageService(
	mailbox Mailbox,
	policy TriagePolicy,
	protected *keeplist.Keeplist,
	logger *zap.Logger,
) *TriageService {
	return &TriageService{
		mailbox:   mailbox,
		policy:    policy,
		protected: protected,
		logger:    logger,
	}
}

// RunReport describes one triage run
type RunReport struct {
	Fetched int
	// Noise holds classifier-flagged archive candidates
	Noise []Verdict
	// Protected holds messages the classifier flagged but a protected
	// sender domain kept out of the archive set
	Protected []Verdict
	// Dupes holds dedup losers among the keep candidates
	Dupes []*Message
	// ArchiveIDs is the final archive set: noise ∪ dupes, one id each
	ArchiveIDs []string
	DryRun     bool
}

// Run fetches up to limit inbox messages, evaluates them, dedups the keep
// candidates and archives noise plus duplicates. With dryRun no mutation
// is performed.
func (s *TriageService) Run(ctx context.Context, limit int, dryRun bool) (*RunReport, error) {
	msgs, err := s.fetchInbox(ctx, limit)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Fetched inbox messages", zap.Int("count", len(msgs)))

	eval, err := s.policy.Evaluate(ctx, msgs)
	if err != nil {
		return nil, err
	}

	report := &RunReport{Fetched: len(msgs), DryRun: dryRun}

	// Keep-list demotion: a protected sender is never auto-archived.
	for _, v := range eval.Archive {
		if s.protected != nil && s.protected.Contains(v.Message.Sender) {
			s.logger.Info("Keeping message from protected domain",
				zap.String("id", v.Message.ID),
				zap.String("sender", v.Message.Sender))
			v.Reason = "protected domain"
			report.Protected = append(report.Protected, v)
		} else {
			report.Noise = append(report.Noise, v)
		}
	}

	// Dedup runs only over messages not already slated for archival, so
	// the survivor pool reflects the post-classification keep set.
	noiseIDs := make(map[string]bool, len(report.Noise))
	for _, v := range report.Noise {
		noiseIDs[v.Message.ID] = true
	}
	keep := make([]*Message, 0, len(msgs))
	for _, msg := range msgs {
		if !noiseIDs[msg.ID] {
			keep = append(keep, msg)
		}
	}
	_, report.Dupes = Deduplicate(keep)

	report.ArchiveIDs = s.archiveSet(report.Noise, report.Dupes)

	if len(report.ArchiveIDs) == 0 {
		s.logger.Info("Nothing to archive")
		return report, nil
	}

	if dryRun {
		s.logger.Info("Dry run, no messages moved",
			zap.Int("noise", len(report.Noise)),
			zap.Int("dupes", len(report.Dupes)),
			zap.Int("total", len(report.ArchiveIDs)))
		return report, nil
	}

	archiveID, err := s.mailbox.MailboxIDByRole(ctx, RoleArchive)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve archive mailbox: %w", err)
	}
	if err := s.mailbox.MoveMessages(ctx, report.ArchiveIDs, archiveID); err != nil {
		return nil, err
	}
	s.logger.Info("Archived messages",
		zap.Int("noise", len(report.Noise)),
		zap.Int("dupes", len(report.Dupes)),
		zap.Int("total", len(report.ArchiveIDs)))

	return report, nil
}

// ReviewReport lists the messages kept for human attention, in display
// order: review bucket first, then the uncertain band.
type ReviewReport struct {
	Fetched int
	Items   []Verdict
}

// Review fetches and evaluates inbox messages and returns the keep
// candidates for human inspection
func (s *TriageService) Review(ctx context.Context, limit int) (*ReviewReport, error) {
	msgs, err := s.fetchInbox(ctx, limit)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Fetched inbox messages", zap.Int("count", len(msgs)))

	eval, err := s.policy.Evaluate(ctx, msgs)
	if err != nil {
		return nil, err
	}

	items := make([]Verdict, 0, len(eval.Review)+len(eval.Uncertain))
	items = append(items, eval.Review...)
	items = append(items, eval.Uncertain...)

	return &ReviewReport{Fetched: len(msgs), Items: items}, nil
}

// FlagSelection flags the review items addressed by a selection
// expression (see ParseSelection) and returns how many were flagged
func (s *TriageService) FlagSelection(ctx context.Context, items []Verdict, expr string) (int, error) {
	indices := ParseSelection(expr, len(items))
	if len(indices) == 0 {
		return 0, nil
	}
	ids := make([]string, len(indices))
	for i, idx := range indices {
		ids[i] = items[idx].Message.ID
	}
	if err := s.mailbox.SetFlag(ctx, ids, true); err != nil {
		return 0, err
	}
	return len(ids), nil
}

func (s *TriageService) fetchInbox(ctx context.Context, limit int) ([]*Message, error) {
	inboxID, err := s.mailbox.MailboxIDByRole(ctx, RoleInbox)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve inbox: %w", err)
	}
	ids, err := s.mailbox.QueryIDs(ctx, Filter{InMailbox: inboxID}, limit)
	if err != nil {
		return nil, err
	}
	return s.mailbox.FetchMessages(ctx, ids)
}

// archiveSet unions noise and dupes into one id list, keeping each id
// once even when a message qualifies under both criteria
func (s *TriageService) archiveSet(noise []Verdict, dupes []*Message) []string {
	seen := make(map[string]bool, len(noise)+len(dupes))
	out := make([]string, 0, len(noise)+len(dupes))
	for _, v := range noise {
		if !seen[v.Message.ID] {
			seen[v.Message.ID] = true
			out = append(out, v.Message.ID)
		}
	}
	for _, d := range dupes {
		if !seen[d.ID] {
			seen[d.ID] = true
			out = append(out, d.ID)
		}
	}
	return out
}
