// Package model defines the core value types shared across the oracle engine.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Question is an immutable research question. ContentHash is a stable hash of
// the normalized text and serves as the correlation key for runs, data points,
// and proof records.
type Question struct {
	Text        string `json:"text"`
	ContentHash string `json:"content_hash"`
}

// NewQuestion builds a Question from free text, computing its content hash.
func NewQuestion(text string) Question {
	return Question{
		Text:        text,
		ContentHash: HashText(text),
	}
}

// NormalizeText canonicalizes question text so that trivially different
// renderings ("Will BTC exceed $100K?" vs "will btc  exceed $100k?") hash to
// the same value: NFKC normalization, case folding, and whitespace collapse.
func NormalizeText(s string) string {
	s = norm.NFKC.String(strings.TrimSpace(s))
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}

// HashText returns the hex sha256 of the normalized text.
func HashText(s string) string {
	sum := sha256.Sum256([]byte(NormalizeText(s)))
	return hex.EncodeToString(sum[:])
}

// Topic is the classification of a question, produced by the external
// classifier. It is consumed by routing and discovery and never persisted
// beyond a single research call.
type Topic struct {
	Category  string   `json:"category"`
	Keywords  []string `json:"keywords"`
	Reasoning string   `json:"reasoning"`
}
