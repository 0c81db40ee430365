// Package decision composes the final routing verdict for a feedback item.
package decision

import (
	"fmt"

	"feedbacktriage/internal/domain"
	"feedbacktriage/internal/identity"
)

// OwnerCatalog resolves a topic to the owner name from the topic table.
type OwnerCatalog interface {
	Owner(topic string) (string, bool)
}

// Engine holds the read-only snapshots a run decides against. It carries no
// per-item state.
type Engine struct {
	Catalog    OwnerCatalog
	Normalizer *identity.Normalizer
	Roster     *identity.Roster
}

func NewEngine(cat OwnerCatalog, normalizer *identity.Normalizer, roster *identity.Roster) *Engine {
	return &Engine{Catalog: cat, Normalizer: normalizer, Roster: roster}
}

// Skip returns the skipped decision for an item that already has an owner.
func Skip(item domain.FeedbackItem) (domain.Decision, bool) {
	if item.Assignee == nil {
		return domain.Decision{}, false
	}
	return domain.Decision{
		ItemID:     item.ID,
		Identifier: item.Identifier,
		Title:      item.Title,
		Outcome:    domain.OutcomeSkipped,
		OwnerName:  item.Assignee.Name,
		Reason:     fmt.Sprintf("Already assigned to %s", item.Assignee.Name),
	}, true
}

func (e *Engine) Decide(item domain.FeedbackItem, c domain.ClassificationResult) domain.Decision {
	if d, skipped := Skip(item); skipped {
		return d
	}

	d := domain.Decision{
		ItemID:         item.ID,
		Identifier:     item.Identifier,
		Title:          item.Title,
		Topic:          c.PrimaryTopic,
		SecondaryTopic: c.SecondaryTopic,
		Confidence:     c.Confidence,
	}

	owner := ""
	if o, ok := e.Normalizer.ResolveOverride(item.Title); ok {
		owner = o.Owner
		d.Override = o.Keyword
	} else if catOwner, ok := e.Catalog.Owner(c.PrimaryTopic); ok {
		owner = catOwner
	}
	if owner == "" {
		d.Outcome = domain.OutcomeFlagged
		d.Reason = fmt.Sprintf("No owner found for topic '%s'", c.PrimaryTopic)
		return d
	}
	d.OwnerName = owner

	member, ok := e.Normalizer.FindMember(owner, e.Roster)
	if !ok {
		d.Outcome = domain.OutcomeFlagged
		d.Reason = fmt.Sprintf("Owner '%s' not found in roster", owner)
		return d
	}

	d.Outcome = domain.OutcomeAssigned
	d.Member = &member
	d.NeedsReview = c.Confidence == domain.ConfidenceLow
	d.AuditText = FormatAudit(AuditFields{
		Topic:            c.PrimaryTopic,
		AssignedTo:       member.Name,
		Confidence:       c.Confidence,
		AlternativeTopic: c.SecondaryTopic,
		Reasoning:        c.Reasoning,
	})
	return d
}

// MutationFor returns what the tracker must apply for an assigned decision.
func MutationFor(d domain.Decision, reviewLabelID string) (domain.Mutation, bool) {
	if d.Outcome != domain.OutcomeAssigned || d.Member == nil {
		return domain.Mutation{}, false
	}
	m := domain.Mutation{
		ItemID:     d.ItemID,
		AssigneeID: d.Member.ID,
		Comment:    d.AuditText,
	}
	if d.NeedsReview && reviewLabelID != "" {
		m.LabelIDs = []string{reviewLabelID}
	}
	return m, true
}
