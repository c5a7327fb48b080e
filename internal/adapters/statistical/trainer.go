package statistical

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/mikey/inbox-triage/internal/core"
	"go.uber.org/zap"
)

const (
	trainEpochs       = 300
	trainLearningRate = 1.0
	trainL2           = 1e-4

	// reportThreshold is the runtime archive threshold the misfit report
	// evaluates against
	reportThreshold = 0.90
)

// Misfit is a training message the fitted model gets wrong at the report
// threshold
type Misfit struct {
	Message     *core.Message
	Probability float64
}

// TrainReport summarizes a training run
type TrainReport struct {
	Total         int
	Keep          int
	Transactional int
	// FalseArchives are kept (flagged) messages the model would archive
	FalseArchives []Misfit
	// FalseKeeps are transactional messages the model would keep
	FalseKeeps []Misfit
}

// Trainer fits the triage model from the user's own mailbox: archived
// messages are transactional examples, flagged messages are keeps.
type Trainer struct {
	mailbox core.Mailbox
	logger  *zap.Logger
}

// NewTrainer creates a new trainer
func NewTrainer(mailbox core.Mailbox, logger *zap.Logger) *Trainer {
	return &Trainer{mailbox: mailbox, logger: logger}
}

// Train fetches the training corpus, fits the model and writes the
// artifact to modelPath
func (t *Trainer) Train(ctx context.Context, limit int, modelPath string) (*Model, *TrainReport, error) {
	msgs, err := t.corpus(ctx, limit)
	if err != nil {
		return nil, nil, err
	}

	// Dedup the corpus with the runtime rules so repeated notifications
	// don't dominate the transactional class.
	msgs, _ = core.Deduplicate(msgs)

	features := core.ExtractFeaturesBatch(msgs)
	labels := make([]int, len(msgs))
	var keep, transactional int
	for i, msg := range msgs {
		if msg.Flagged() {
			labels[i] = 0
			keep++
		} else {
			labels[i] = 1
			transactional++
		}
	}
	if keep == 0 || transactional == 0 {
		return nil, nil, &core.ConfigError{
			Reason: fmt.Sprintf("training corpus needs both classes, got %d keep / %d transactional (flag some messages)", keep, transactional),
		}
	}

	t.logger.Info("Fitting model",
		zap.Int("messages", len(msgs)),
		zap.Int("keep", keep),
		zap.Int("transactional", transactional))

	model := fit(features, labels)

	report := &TrainReport{Total: len(msgs), Keep: keep, Transactional: transactional}
	probs, err := model.ScoreFeatures(features)
	if err != nil {
		return nil, nil, err
	}
	for i, p := range probs {
		predicted := 0
		if p >= reportThreshold {
			predicted = 1
		}
		if predicted == labels[i] {
			continue
		}
		if labels[i] == 0 {
			report.FalseArchives = append(report.FalseArchives, Misfit{Message: msgs[i], Probability: p})
		} else {
			report.FalseKeeps = append(report.FalseKeeps, Misfit{Message: msgs[i], Probability: p})
		}
	}

	if err := model.Save(modelPath); err != nil {
		return nil, nil, err
	}
	t.logger.Info("Saved model artifact", zap.String("path", modelPath))

	return model, report, nil
}

// corpus merges archive messages with flagged inbox messages, dropping
// ids already present
func (t *Trainer) corpus(ctx context.Context, limit int) ([]*core.Message, error) {
	archiveID, err := t.mailbox.MailboxIDByRole(ctx, core.RoleArchive)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve archive mailbox: %w", err)
	}
	ids, err := t.mailbox.QueryIDs(ctx, core.Filter{InMailbox: archiveID}, limit)
	if err != nil {
		return nil, err
	}
	msgs, err := t.mailbox.FetchMessages(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, &core.ConfigError{Reason: "no messages found in archive to train on"}
	}

	inboxID, err := t.mailbox.MailboxIDByRole(ctx, core.RoleInbox)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve inbox: %w", err)
	}
	flaggedIDs, err := t.mailbox.QueryIDs(ctx, core.Filter{InMailbox: inboxID, HasKeyword: core.KeywordFlagged}, 0)
	if err != nil {
		return nil, err
	}
	flagged, err := t.mailbox.FetchMessages(ctx, flaggedIDs)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(msgs))
	for _, msg := range msgs {
		seen[msg.ID] = true
	}
	for _, msg := range flagged {
		if !seen[msg.ID] {
			msgs = append(msgs, msg)
		}
	}
	return msgs, nil
}

// fit builds the vocabulary and trains the logistic regression with
// balanced class weights by deterministic full-batch gradient descent
func fit(features []string, labels []int) *Model {
	docs := make([][]string, len(features))
	for i, text := range features {
		docs[i] = ngrams(text)
	}

	vocab, idf := buildVocabulary(docs)

	vectors := make([]map[int]float64, len(docs))
	m := &Model{data: modelData{
		Version:    ModelVersion,
		Name:       "tfidf-logreg",
		Vocabulary: vocab,
		IDF:        idf,
		Weights:    make([]float64, len(idf)),
	}}
	for i, text := range features {
		vectors[i] = m.vectorize(text)
	}

	n := len(labels)
	var nKeep, nTrans int
	for _, y := range labels {
		if y == 0 {
			nKeep++
		} else {
			nTrans++
		}
	}
	// Balanced class weights: n / (2 * n_class)
	weightKeep := float64(n) / (2 * float64(nKeep))
	weightTrans := float64(n) / (2 * float64(nTrans))

	weights := m.data.Weights
	bias := 0.0
	grad := make([]float64, len(weights))

	for epoch := 0; epoch < trainEpochs; epoch++ {
		for i := range grad {
			grad[i] = 0
		}
		gradBias := 0.0

		for i, vec := range vectors {
			z := bias
			for idx, v := range vec {
				z += weights[idx] * v
			}
			p := sigmoid(z)
			w := weightKeep
			if labels[i] == 1 {
				w = weightTrans
			}
			diff := w * (p - float64(labels[i]))
			for idx, v := range vec {
				grad[idx] += diff * v
			}
			gradBias += diff
		}

		scale := trainLearningRate / float64(n)
		for i := range weights {
			weights[i] -= scale*grad[i] + trainLearningRate*trainL2*weights[i]
		}
		bias -= scale * gradBias
	}

	m.data.Bias = bias
	return m
}

// buildVocabulary keeps the maxVocabulary most frequent terms by document
// frequency, ties broken lexicographically for determinism, and computes
// the smoothed idf per kept term
func buildVocabulary(docs [][]string) (map[string]int, []float64) {
	df := make(map[string]int)
	for _, doc := range docs {
		inDoc := make(map[string]bool, len(doc))
		for _, term := range doc {
			inDoc[term] = true
		}
		for term := range inDoc {
			df[term]++
		}
	}

	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if df[terms[i]] != df[terms[j]] {
			return df[terms[i]] > df[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > maxVocabulary {
		terms = terms[:maxVocabulary]
	}
	sort.Strings(terms)

	n := float64(len(docs))
	vocab := make(map[string]int, len(terms))
	idf := make([]float64, len(terms))
	for i, term := range terms {
		vocab[term] = i
		idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1
	}
	return vocab, idf
}
