// Package statistical implements the probabilistic triage backend: a
// tf-idf vectorizer over word 1–2-grams and a binary logistic regression
// estimating the probability that a message is transactional.
package statistical

import (
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"regexp"
	"strings"

	"github.com/mikey/inbox-triage/internal/core"
)

const (
	// ModelVersion tags the serialized artifact format
	ModelVersion = 1

	maxVocabulary = 5000
)

var wordPattern = regexp.MustCompile(`\w\w+`)

// modelData is the gob-serialized trained artifact
type modelData struct {
	Version    int
	Name       string
	Vocabulary map[string]int
	IDF        []float64
	Weights    []float64
	Bias       float64
}

// Model scores feature texts with a trained tf-idf + logistic regression
// pipeline. The positive class (probability 1) is "transactional".
type Model struct {
	data modelData
}

// Load reads a trained model artifact. A missing artifact is a
// configuration error: the run cannot proceed without it.
func Load(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &core.ConfigError{Reason: fmt.Sprintf("model artifact %s not found, run train first", path)}
		}
		return nil, fmt.Errorf("failed to open model artifact: %w", err)
	}
	defer f.Close()

	var data modelData
	if err := gob.NewDecoder(f).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode model artifact: %w", err)
	}
	if data.Version != ModelVersion {
		return nil, &core.ConfigError{Reason: fmt.Sprintf("model artifact version %d, want %d: retrain", data.Version, ModelVersion)}
	}
	return &Model{data: data}, nil
}

// Save writes the model artifact to path
func (m *Model) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create model artifact: %w", err)
	}
	defer f.Close()

	if err := gob.NewEncoder(f).Encode(m.data); err != nil {
		return fmt.Errorf("failed to encode model artifact: %w", err)
	}
	return nil
}

// ModelID identifies the trained artifact
func (m *Model) ModelID() string {
	return m.data.Name
}

// ScoreFeatures returns the transactional probability for each feature
// text
func (m *Model) ScoreFeatures(features []string) ([]float64, error) {
	if len(m.data.Vocabulary) == 0 {
		return nil, fmt.Errorf("model has an empty vocabulary")
	}
	probs := make([]float64, len(features))
	for i, text := range features {
		probs[i] = m.score(text)
	}
	return probs, nil
}

func (m *Model) score(text string) float64 {
	vec := m.vectorize(text)
	z := m.data.Bias
	for idx, v := range vec {
		z += m.data.Weights[idx] * v
	}
	return sigmoid(z)
}

// vectorize builds the l2-normalized tf-idf vector of text, sparse over
// vocabulary indices
func (m *Model) vectorize(text string) map[int]float64 {
	counts := make(map[int]int)
	for _, term := range ngrams(text) {
		if idx, ok := m.data.Vocabulary[term]; ok {
			counts[idx]++
		}
	}
	if len(counts) == 0 {
		return nil
	}

	vec := make(map[int]float64, len(counts))
	var norm float64
	for idx, tf := range counts {
		v := float64(tf) * m.data.IDF[idx]
		vec[idx] = v
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for idx := range vec {
			vec[idx] /= norm
		}
	}
	return vec
}

// ngrams tokenizes text into lowercase words of two or more characters
// and returns unigrams followed by bigrams
func ngrams(text string) []string {
	words := wordPattern.FindAllString(strings.ToLower(text), -1)
	terms := make([]string, 0, 2*len(words))
	terms = append(terms, words...)
	for i := 0; i+1 < len(words); i++ {
		terms = append(terms, words[i]+" "+words[i+1])
	}
	return terms
}

func sigmoid(z float64) float64 {
	if z < -30 {
		return 0
	}
	if z > 30 {
		return 1
	}
	return 1 / (1 + math.Exp(-z))
}
