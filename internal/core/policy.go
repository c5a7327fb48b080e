package core

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// CategoricalPolicy triages messages through an LLM provider, one verdict
// per message, with an optional read-through verdict cache. Messages the
// model calls noise go to the archive bucket, everything else to review.
type CategoricalPolicy struct {
	llm    LLMClient
	cache  CacheRepository
	logger *zap.Logger
}

// NewCategoricalPolicy creates a categorical triage policy. cache may be
// nil to disable caching.
func NewCategoricalPolicy(llm LLMClient, cache CacheRepository, logger *zap.Logger) *CategoricalPolicy {
	return &CategoricalPolicy{
		llm:    llm,
		cache:  cache,
		logger: logger,
	}
}

// Evaluate classifies every message. An upstream model failure aborts the
// whole evaluation; an unknown category in a response is coerced to fyi.
func (p *CategoricalPolicy) Evaluate(ctx context.Context, msgs []*Message) (*Evaluation, error) {
	eval := &Evaluation{}
	for _, msg := range msgs {
		verdict, err := p.classifyOne(ctx, msg)
		if err != nil {
			return nil, fmt.Errorf("classification failed for message %s: %w", msg.ID, err)
		}
		if verdict.Category == CategoryNoise {
			eval.Archive = append(eval.Archive, verdict)
		} else {
			eval.Review = append(eval.Review, verdict)
		}
	}
	return eval, nil
}

func (p *CategoricalPolicy) classifyOne(ctx context.Context, msg *Message) (Verdict, error) {
	key := CacheKey(p.llm.ModelID(), msg.ID)

	if p.cache != nil {
		entry, err := p.cache.Get(ctx, key)
		if err != nil {
			p.logger.Warn("Cache lookup failed",
				zap.String("key", key),
				zap.Error(err))
		} else if entry != nil {
			p.logger.Debug("Cache hit", zap.String("key", key))
			return Verdict{Message: msg, Category: entry.Category, Reason: entry.Reason}, nil
		}
	}

	result, err := p.llm.ClassifyMessage(ctx, msg)
	if err != nil {
		return Verdict{}, err
	}

	category := NormalizeCategory(string(result.Category))

	if p.cache != nil {
		entry := &CacheEntry{
			Key:      key,
			Category: category,
			Reason:   result.Reason,
			CachedAt: time.Now(),
		}
		if err := p.cache.Set(ctx, entry); err != nil {
			p.logger.Warn("Failed to update cache",
				zap.String("key", key),
				zap.Error(err))
		}
	}

	return Verdict{Message: msg, Category: category, Reason: result.Reason}, nil
}

// ProbabilisticPolicy triages messages through a locally trained scorer.
// Probabilities at or above the archive threshold go to the archive
// bucket, the band [low, threshold) to the uncertain bucket, the rest to
// review. The bands share the threshold boundary so every message lands
// in exactly one bucket.
type ProbabilisticPolicy struct {
	scorer    Scorer
	threshold float64
	low       float64
	logger    *zap.Logger
}

// NewProbabilisticPolicy creates a probabilistic triage policy with the
// given archive threshold and uncertain-band floor
func NewProbabilisticPolicy(scorer Scorer, threshold, low float64, logger *zap.Logger) (*ProbabilisticPolicy, error) {
	if threshold < 0 || threshold > 1 {
		return nil, &ConfigError{Reason: fmt.Sprintf("archive threshold %v outside [0,1]", threshold)}
	}
	if low < 0 || low > threshold {
		return nil, &ConfigError{Reason: fmt.Sprintf("review floor %v outside [0, threshold]", low)}
	}
	return &ProbabilisticPolicy{
		scorer:    scorer,
		threshold: threshold,
		low:       low,
		logger:    logger,
	}, nil
}

// Scores returns the raw scored set for the given messages
func (p *ProbabilisticPolicy) Scores(msgs []*Message) (ScoreSet, error) {
	features := ExtractFeaturesBatch(msgs)
	probs, err := p.scorer.ScoreFeatures(features)
	if err != nil {
		return nil, err
	}
	if len(probs) != len(msgs) {
		return nil, fmt.Errorf("scorer returned %d probabilities for %d messages", len(probs), len(msgs))
	}
	scores := make(ScoreSet, len(msgs))
	for i, msg := range msgs {
		scores[i] = ScoredMessage{Message: msg, Probability: probs[i]}
	}
	return scores, nil
}

// Evaluate scores every message and partitions by the configured bands
func (p *ProbabilisticPolicy) Evaluate(ctx context.Context, msgs []*Message) (*Evaluation, error) {
	scores, err := p.Scores(msgs)
	if err != nil {
		return nil, err
	}

	eval := &Evaluation{}
	for _, sm := range scores {
		verdict := Verdict{
			Message:     sm.Message,
			Probability: sm.Probability,
			Reason:      fmt.Sprintf("transactional probability %.2f", sm.Probability),
		}
		switch {
		case sm.Probability >= p.threshold:
			eval.Archive = append(eval.Archive, verdict)
		case sm.Probability >= p.low:
			eval.Uncertain = append(eval.Uncertain, verdict)
		default:
			eval.Review = append(eval.Review, verdict)
		}
	}

	p.logger.Debug("Scored messages",
		zap.Int("total", len(msgs)),
		zap.Int("actionable", len(eval.Archive)),
		zap.Int("uncertain", len(eval.Uncertain)))

	return eval, nil
}
