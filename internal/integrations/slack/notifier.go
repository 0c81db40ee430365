// Package slackbot posts triage run summaries to a Slack channel.
package slackbot

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/slack-go/slack"

	"feedbacktriage/internal/domain"
)

const maxListedItems = 15

type Notifier struct {
	api     *slack.Client
	channel string
	users   *userDirectory
}

// NewNotifier posts to channel. With mentionOwners set, owners of items that
// need review are @-mentioned when their tracker name matches a Slack user.
func NewNotifier(api *slack.Client, channel string, mentionOwners bool) *Notifier {
	n := &Notifier{api: api, channel: channel}
	if mentionOwners {
		n.users = newUserDirectory(api)
	}
	return n
}

// NotifyRun posts the summary of run, listing items that need a human.
func (n *Notifier) NotifyRun(ctx context.Context, run domain.RunRecord) error {
	if n == nil || n.api == nil || n.channel == "" {
		return nil
	}
	msg := FormatRunMessage(run, n.mentions(run))
	_, _, err := n.api.PostMessageContext(ctx, n.channel, slack.MsgOptionText(msg, false))
	if err != nil {
		log.Printf("slack notify error channel=%s run=%s: %v", n.channel, run.ID, err)
		return fmt.Errorf("post run summary: %w", err)
	}
	log.Printf("slack notify posted channel=%s run=%s", n.channel, run.ID)
	return nil
}

func (n *Notifier) mentions(run domain.RunRecord) map[string]string {
	if n.users == nil {
		return nil
	}
	var names []string
	for _, d := range needsAttention(run.Decisions) {
		if name := ownerName(d); name != "" {
			names = append(names, name)
		}
	}
	resolved, _, err := n.users.resolve(names)
	if err != nil {
		return nil
	}
	return resolved
}

// FormatRunMessage renders the Slack text. mentions maps owner names to
// Slack user IDs and may be nil.
func FormatRunMessage(run domain.RunRecord, mentions map[string]string) string {
	s := run.Summary
	var b strings.Builder
	mode := "executed"
	assignedVerb := "Assigned"
	if s.DryRun {
		mode = "dry run"
		assignedVerb = "Would assign"
	}
	fmt.Fprintf(&b, "*Feedback triage* (%s)\n", mode)
	fmt.Fprintf(&b, "Processed: %d\n", s.Total)
	fmt.Fprintf(&b, "%s: %d (high: %d, low: %d)\n", assignedVerb, s.Assigned, s.AssignedHigh, s.AssignedLow)
	fmt.Fprintf(&b, "Skipped: %d\n", s.Skipped)
	fmt.Fprintf(&b, "Flagged: %d\n", s.Flagged)
	fmt.Fprintf(&b, "Errors: %d\n", s.Errors)

	attention := needsAttention(run.Decisions)
	if len(attention) == 0 {
		return strings.TrimRight(b.String(), "\n")
	}
	b.WriteString("\n*Needs attention*\n")
	for i, d := range attention {
		if i == maxListedItems {
			fmt.Fprintf(&b, "... and %d more\n", len(attention)-maxListedItems)
			break
		}
		fmt.Fprintf(&b, "• %s %s", d.Identifier, attentionLine(d))
		if id, ok := mentions[ownerName(d)]; ok && d.Outcome == domain.OutcomeAssigned {
			fmt.Fprintf(&b, " <@%s>", id)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// attentionLine describes why d is listed. Assigned items carry no reason, so
// they show where they were routed instead.
func attentionLine(d domain.Decision) string {
	if d.Outcome != domain.OutcomeAssigned {
		return fmt.Sprintf("[%s] %s", d.Outcome, d.Reason)
	}
	route := ownerName(d)
	if d.Topic != "" {
		route = d.Topic + " → " + route
	}
	if d.SecondaryTopic != "" {
		route += " (or " + d.SecondaryTopic + ")"
	}
	return "[needs review] " + route
}

func needsAttention(decisions []domain.Decision) []domain.Decision {
	var out []domain.Decision
	for _, d := range decisions {
		if d.Outcome == domain.OutcomeFlagged || d.Outcome == domain.OutcomeError || d.NeedsReview {
			out = append(out, d)
		}
	}
	return out
}

func ownerName(d domain.Decision) string {
	if d.Member != nil {
		return d.Member.Name
	}
	return d.OwnerName
}
