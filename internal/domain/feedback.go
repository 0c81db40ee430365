package domain

import "strings"

type TopicEntry struct {
	Name  string
	Owner string
	Note  string
}

// Routable reports whether the entry can be used to pick an owner.
func (t TopicEntry) Routable() bool {
	return strings.TrimSpace(t.Name) != "" && strings.TrimSpace(t.Owner) != ""
}

type RosterMember struct {
	ID    string // tracker user ID, used for assignment
	Name  string // display name as shown in the tracker
	Email string
}

type Assignee struct {
	ID   string
	Name string
}

type FeedbackItem struct {
	ID          string // tracker-internal UUID
	Identifier  string // human key, e.g. "PROF-23"
	Title       string
	Description string
	URL         string
	Labels      []string
	Assignee    *Assignee
}

type Confidence string

const (
	ConfidenceHigh Confidence = "high"
	ConfidenceLow  Confidence = "low"
)

// ParseConfidence maps model output onto the two tiers. Anything that is not
// recognisably "high" is treated as low.
func ParseConfidence(s string) Confidence {
	if strings.EqualFold(strings.TrimSpace(s), string(ConfidenceHigh)) {
		return ConfidenceHigh
	}
	return ConfidenceLow
}

type ClassificationResult struct {
	PrimaryTopic   string
	SecondaryTopic string
	Confidence     Confidence
	Reasoning      string
	ParseFailed    bool
}

type Outcome string

const (
	OutcomeSkipped  Outcome = "skipped"
	OutcomeAssigned Outcome = "assigned"
	OutcomeFlagged  Outcome = "flagged"
	OutcomeError    Outcome = "error"
)

type Decision struct {
	ItemID         string
	Identifier     string
	Title          string
	Outcome        Outcome
	Member         *RosterMember
	OwnerName      string
	Topic          string
	SecondaryTopic string
	Confidence     Confidence
	NeedsReview    bool
	Override       string // keyword that replaced the topic owner, if any
	Reason         string
	AuditText      string
}

// Mutation is what the tracker has to apply for an assigned decision.
type Mutation struct {
	ItemID     string
	AssigneeID string
	LabelIDs   []string
	Comment    string
}
