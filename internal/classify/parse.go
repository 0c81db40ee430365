package classify

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Response is the structured shape the classifier is asked to return. Empty
// strings mean the field was missing or null.
type Response struct {
	PrimaryBucket   string
	SecondaryBucket string
	Confidence      string
	Reasoning       string
}

type ParseFailure struct {
	Raw string
	Err error
}

func (f *ParseFailure) Error() string {
	return fmt.Sprintf("unparsable classifier response: %v", f.Err)
}

// Parsed is either a Response or a ParseFailure, never both.
type Parsed struct {
	Response *Response
	Failure  *ParseFailure
}

func (p Parsed) OK() bool {
	return p.Response != nil
}

var errNotObject = errors.New("response is not a JSON object")

// Parse decodes raw classifier output, tolerating a surrounding markdown code
// fence with an optional language tag.
func Parse(raw string) Parsed {
	text := stripCodeFence(raw)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &fields); err != nil {
		return Parsed{Failure: &ParseFailure{Raw: strings.TrimSpace(raw), Err: err}}
	}
	if fields == nil {
		return Parsed{Failure: &ParseFailure{Raw: strings.TrimSpace(raw), Err: errNotObject}}
	}

	return Parsed{Response: &Response{
		PrimaryBucket:   stringField(fields, "primary_bucket"),
		SecondaryBucket: stringField(fields, "secondary_bucket"),
		Confidence:      stringField(fields, "confidence"),
		Reasoning:       stringField(fields, "reasoning"),
	}}
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Language tag runs up to the first newline, e.g. "json".
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		tag := strings.TrimSpace(s[:nl])
		if tag != "" && !strings.ContainsAny(tag, "{[\"") {
			s = s[nl+1:]
		}
	} else if len(s) >= 4 && strings.EqualFold(s[:4], "json") {
		s = s[4:]
	}
	if end := strings.Index(s, "```"); end >= 0 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}

// stringField returns the trimmed string value of key. Null, missing and
// non-string values all read as empty.
func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}
