// Package grounding implements the optional Grounding Check stage (§4.9):
// three hallucination-detection signals attached to a hit without
// suppressing it.
//
// Grounded on original_source/rag_server/hallucination_detector.py's
// three-signal design (semantic similarity, keyword overlap, grounded-
// sentence ratio) and its MIN_GROUNDED_RATIO / MIN_WORD_LENGTH constants.
package grounding

import (
	"math"
	"regexp"
	"strings"

	"github.com/veyron-labs/wikiq/internal/hit"
)

// MinWordLength is the minimum token length considered for keyword-overlap
// and grounded-sentence checks, per the source's MIN_WORD_LENGTH.
const MinWordLength = 4

// MinGroundedRatio is the fraction of a sentence's long tokens that must
// appear in the source docs for that sentence to count as grounded.
const MinGroundedRatio = 0.5

// Config holds the configured thresholds a signal must clear.
type Config struct {
	SimilarityThreshold float64 // default 0.5
	KeywordThreshold    float64 // default 0.3
}

func DefaultConfig() Config {
	return Config{SimilarityThreshold: 0.5, KeywordThreshold: 0.3}
}

// Check computes the three signals for one hit's response text against its
// document text, flags PossibleHallucination when at least two signals fall
// below their threshold, and returns the updated hit. responseEmbedding and
// docEmbedding may be nil, in which case the semantic-similarity signal is
// skipped (not counted as failing).
func Check(cfg Config, h hit.RetrievedHit, responseText string, responseEmbedding, docEmbedding []float32) hit.RetrievedHit {
	out := h.Clone()
	docText := h.ExpandedText
	if docText == "" {
		docText = h.Text
	}

	signals := hit.GroundingSignals{Evaluated: true}
	belowCount := 0
	signalCount := 0

	if responseEmbedding != nil && docEmbedding != nil {
		signals.SemanticSimilarity = cosineSimilarity(responseEmbedding, docEmbedding)
		signalCount++
		if signals.SemanticSimilarity < cfg.SimilarityThreshold {
			belowCount++
		}
	}

	signals.KeywordOverlap = keywordOverlap(responseText, docText)
	signalCount++
	if signals.KeywordOverlap < cfg.KeywordThreshold {
		belowCount++
	}

	signals.GroundingRatio = groundedSentenceRatio(responseText, docText)
	signalCount++
	if signals.GroundingRatio < MinGroundedRatio {
		belowCount++
	}

	out.GroundingSignals = signals
	out.PossibleHallucination = belowCount >= 2
	return out
}

var tokenRe = regexp.MustCompile(`[\p{L}\p{N}]+`)

func tokensOfMinLength(s string, minLen int) []string {
	var out []string
	for _, t := range tokenRe.FindAllString(strings.ToLower(s), -1) {
		if len([]rune(t)) >= minLen {
			out = append(out, t)
		}
	}
	return out
}

// keywordOverlap is the fraction of the response's long tokens (length >=
// MinWordLength) also present in the document text.
func keywordOverlap(responseText, docText string) float64 {
	respTokens := tokensOfMinLength(responseText, MinWordLength)
	if len(respTokens) == 0 {
		return 0
	}
	docSet := toSet(tokensOfMinLength(docText, MinWordLength))

	matched := 0
	for _, t := range respTokens {
		if _, ok := docSet[t]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(respTokens))
}

var sentenceSplit = regexp.MustCompile(`[.!?\n]+`)

// groundedSentenceRatio is the fraction of response sentences whose long
// tokens (length > 3) are >=50% present in the doc text.
func groundedSentenceRatio(responseText, docText string) float64 {
	sentences := sentenceSplit.Split(responseText, -1)
	docSet := toSet(tokensOfMinLength(docText, MinWordLength))

	total := 0
	grounded := 0
	for _, s := range sentences {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		total++
		tokens := tokensOfMinLength(s, MinWordLength)
		if len(tokens) == 0 {
			continue
		}
		matched := 0
		for _, t := range tokens {
			if _, ok := docSet[t]; ok {
				matched++
			}
		}
		if float64(matched)/float64(len(tokens)) >= MinGroundedRatio {
			grounded++
		}
	}

	if total == 0 {
		return 0
	}
	return float64(grounded) / float64(total)
}

func toSet(tokens []string) map[string]struct{} {
	s := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		s[t] = struct{}{}
	}
	return s
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
