package classify

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"feedbacktriage/internal/domain"
	"feedbacktriage/internal/identity"
)

const maxDescriptionChars = 6000

var htmlTagPattern = regexp.MustCompile(`<[a-zA-Z/][^>]*>`)

// BuildPrompt renders the classification request for one item.
func BuildPrompt(item domain.FeedbackItem, topicDescriptions string, overrides []identity.Override) string {
	labels := "None"
	if len(item.Labels) > 0 {
		labels = strings.Join(item.Labels, ", ")
	}

	var overrideLines strings.Builder
	for _, o := range overrides {
		overrideLines.WriteString(fmt.Sprintf("- %s: belongs to %s regardless of topic\n", o.Keyword, o.Owner))
	}
	overrideBlock := "None\n"
	if overrideLines.Len() > 0 {
		overrideBlock = overrideLines.String()
	}

	return fmt.Sprintf(`You are a Product Operations assistant helping to triage product feedback issues.

Given the following product feedback issue, classify it into the available buckets.

## Available Buckets:
%s

## Special Features (override parent bucket):
%s
## Issue to Classify:
**Title:** %s

**Description:** %s

**Labels:** %s

## Instructions:
Analyze the issue and provide your classification in this exact JSON format:
{
    "primary_bucket": "BucketName",
    "secondary_bucket": "OtherBucketName or null if confident",
    "confidence": "high or low",
    "reasoning": "Brief explanation of why this bucket was chosen"
}

Rules:
1. primary_bucket: The most appropriate bucket (must match a bucket name exactly)
2. secondary_bucket: If you're torn between two buckets, provide the alternative. Set to null if confident.
3. confidence: "high" if clearly one bucket, "low" if could reasonably be multiple buckets
4. reasoning: 1-2 sentences explaining the classification

Respond with ONLY the JSON, nothing else.`,
		topicDescriptions, overrideBlock, strings.TrimSpace(item.Title), PlainDescription(item.Description), labels)
}

// PlainDescription flattens HTML fragments (pasted emails, widget exports)
// to text and caps the length sent to the classifier.
func PlainDescription(desc string) string {
	desc = strings.TrimSpace(desc)
	if htmlTagPattern.MatchString(desc) {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(desc)); err == nil {
			doc.Find("script, style").Remove()
			desc = collapseBlankLines(doc.Text())
		}
	}
	return truncateRunes(desc, maxDescriptionChars)
}

// truncateRunes cuts s to at most limit characters without splitting a
// multi-byte rune.
func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i] + "\n...(truncated)"
		}
		n++
	}
	return s
}

func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
