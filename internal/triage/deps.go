package triage

import (
	"context"

	"feedbacktriage/internal/domain"
)

// Tracker is the issue tracker the run reads items from and writes
// assignments back to.
type Tracker interface {
	TeamID(ctx context.Context) (string, error)
	TeamMembers(ctx context.Context) ([]domain.RosterMember, error)
	TriageItems(ctx context.Context) ([]domain.FeedbackItem, error)
	ItemByIdentifier(ctx context.Context, identifier string) (domain.FeedbackItem, error)
	EnsureLabel(ctx context.Context, teamID, name string) (string, error)
	AssignItem(ctx context.Context, itemID, assigneeID string, labelIDs []string) error
	AddComment(ctx context.Context, itemID, body string) error
}

// Classifier returns the raw model text for a prompt.
type Classifier interface {
	Classify(ctx context.Context, prompt string) (string, error)
}

// Recorder persists the decision trail of a finished run.
type Recorder interface {
	RecordRun(ctx context.Context, run domain.RunRecord) error
}
