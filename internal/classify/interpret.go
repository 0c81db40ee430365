// Package classify turns raw classifier output into a validated
// ClassificationResult and builds the prompt that produces it.
package classify

import (
	"log"
	"strings"

	"feedbacktriage/internal/domain"
)

const (
	DefaultFallbackTopic = "UX"
	parseFailureReason   = "parse failure"
)

// Catalog is the subset of the topic catalog the interpreter needs.
type Catalog interface {
	CanonicalName(topic string) (string, bool)
	Owner(topic string) (string, bool)
}

type Interpreter struct {
	catalog  Catalog
	fallback string
}

func NewInterpreter(cat Catalog, fallbackTopic string) *Interpreter {
	fallbackTopic = strings.TrimSpace(fallbackTopic)
	if fallbackTopic == "" {
		fallbackTopic = DefaultFallbackTopic
	}
	return &Interpreter{catalog: cat, fallback: fallbackTopic}
}

// Interpret never fails: unparsable output degrades to a low-confidence
// result whose primary topic is the raw text.
func (in *Interpreter) Interpret(raw string) domain.ClassificationResult {
	parsed := Parse(raw)
	if !parsed.OK() {
		log.Printf("classify parse failure err=%v size=%d", parsed.Failure.Err, len(parsed.Failure.Raw))
		result := domain.ClassificationResult{
			PrimaryTopic: parsed.Failure.Raw,
			Confidence:   domain.ConfidenceLow,
			Reasoning:    parseFailureReason,
			ParseFailed:  true,
		}
		result.PrimaryTopic = in.canonical(result.PrimaryTopic)
		return result
	}

	resp := parsed.Response
	result := domain.ClassificationResult{
		PrimaryTopic:   resp.PrimaryBucket,
		SecondaryTopic: normalizeSecondary(resp.SecondaryBucket),
		Confidence:     domain.ParseConfidence(resp.Confidence),
		Reasoning:      resp.Reasoning,
	}
	if result.PrimaryTopic == "" {
		result.PrimaryTopic = in.fallback
	}
	result.PrimaryTopic = in.canonical(result.PrimaryTopic)
	in.reconcile(&result)
	return result
}

func (in *Interpreter) canonical(topic string) string {
	if name, ok := in.catalog.CanonicalName(topic); ok {
		return name
	}
	return topic
}

// reconcile upgrades a low-confidence call when both candidate topics route
// to the same owner. It never downgrades.
func (in *Interpreter) reconcile(result *domain.ClassificationResult) {
	if result.Confidence != domain.ConfidenceLow || result.SecondaryTopic == "" {
		return
	}
	primaryOwner, _ := in.catalog.Owner(result.PrimaryTopic)
	secondaryOwner, _ := in.catalog.Owner(result.SecondaryTopic)
	if primaryOwner != "" && primaryOwner == secondaryOwner {
		log.Printf("classify confidence upgraded primary=%s secondary=%s owner=%s", result.PrimaryTopic, result.SecondaryTopic, primaryOwner)
		result.Confidence = domain.ConfidenceHigh
	}
}

func normalizeSecondary(s string) string {
	switch strings.ToLower(s) {
	case "", "null", "none", "n/a":
		return ""
	}
	return s
}
