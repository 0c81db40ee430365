// Package triage runs the per-item pipeline: classify, resolve the owner,
// decide, and apply the decision to the tracker.
package triage

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"feedbacktriage/internal/catalog"
	"feedbacktriage/internal/classify"
	"feedbacktriage/internal/decision"
	"feedbacktriage/internal/domain"
	"feedbacktriage/internal/identity"
)

const DefaultNeedsReviewLabel = "needs-review"

type Options struct {
	DryRun           bool
	NeedsReviewLabel string
	FallbackTopic    string
}

type Runner struct {
	tracker    Tracker
	classifier Classifier
	recorder   Recorder
	catalog    *catalog.Catalog
	normalizer *identity.Normalizer
	opts       Options
	now        func() time.Time
}

func NewRunner(tracker Tracker, classifier Classifier, cat *catalog.Catalog, normalizer *identity.Normalizer, opts Options) *Runner {
	if strings.TrimSpace(opts.NeedsReviewLabel) == "" {
		opts.NeedsReviewLabel = DefaultNeedsReviewLabel
	}
	return &Runner{
		tracker:    tracker,
		classifier: classifier,
		catalog:    cat,
		normalizer: normalizer,
		opts:       opts,
		now:        time.Now,
	}
}

// WithRecorder persists every finished run.
func (r *Runner) WithRecorder(rec Recorder) *Runner {
	r.recorder = rec
	return r
}

// session is the state owned by a single run. teamID and reviewLabelID are
// resolved on first use and reused for the rest of the run.
type session struct {
	id            string
	teamID        string
	reviewLabelID string
	topicText     string
	engine        *decision.Engine
	interpreter   *classify.Interpreter
}

// Run triages every item waiting in the tracker's triage state, or only the
// item with the given identifier when one is passed.
func (r *Runner) Run(ctx context.Context, identifier string) (domain.RunRecord, error) {
	members, err := r.tracker.TeamMembers(ctx)
	if err != nil {
		return domain.RunRecord{}, fmt.Errorf("load roster: %w", err)
	}
	if len(members) == 0 {
		return domain.RunRecord{}, fmt.Errorf("load roster: team has no members")
	}
	roster := r.normalizer.NewRoster(members)
	log.Printf("triage roster loaded members=%d", roster.Len())

	var items []domain.FeedbackItem
	if identifier != "" {
		item, err := r.tracker.ItemByIdentifier(ctx, identifier)
		if err != nil {
			return domain.RunRecord{}, fmt.Errorf("fetch item %s: %w", identifier, err)
		}
		items = []domain.FeedbackItem{item}
	} else {
		items, err = r.tracker.TriageItems(ctx)
		if err != nil {
			return domain.RunRecord{}, fmt.Errorf("fetch triage items: %w", err)
		}
	}
	return r.Process(ctx, roster, items)
}

// Process decides items in order. Per-item failures become error decisions
// and never abort the run.
func (r *Runner) Process(ctx context.Context, roster *identity.Roster, items []domain.FeedbackItem) (domain.RunRecord, error) {
	s := &session{
		id:          uuid.NewString(),
		topicText:   r.catalog.Describe(),
		engine:      decision.NewEngine(r.catalog, r.normalizer, roster),
		interpreter: classify.NewInterpreter(r.catalog, r.opts.FallbackTopic),
	}
	run := domain.RunRecord{ID: s.id, StartedAt: r.now(), DryRun: r.opts.DryRun}

	mode := "execute"
	if r.opts.DryRun {
		mode = "dry-run"
	}
	log.Printf("triage run start id=%s mode=%s items=%d topics=%d", s.id, mode, len(items), r.catalog.Len())

	for _, item := range items {
		d := r.processItem(ctx, s, item)
		log.Printf("triage item=%s outcome=%s topic=%q owner=%q confidence=%s review=%v reason=%q",
			d.Identifier, d.Outcome, d.Topic, d.OwnerName, d.Confidence, d.NeedsReview, d.Reason)
		run.Decisions = append(run.Decisions, d)
	}

	run.FinishedAt = r.now()
	run.Summary = domain.Summarize(run.Decisions, r.opts.DryRun)
	log.Printf("triage run done id=%s assigned=%d high=%d low=%d skipped=%d flagged=%d errors=%d",
		s.id, run.Summary.Assigned, run.Summary.AssignedHigh, run.Summary.AssignedLow,
		run.Summary.Skipped, run.Summary.Flagged, run.Summary.Errors)

	if r.recorder != nil {
		if err := r.recorder.RecordRun(ctx, run); err != nil {
			log.Printf("triage record run error id=%s: %v", s.id, err)
		}
	}
	return run, nil
}

func (r *Runner) processItem(ctx context.Context, s *session, item domain.FeedbackItem) domain.Decision {
	if d, skipped := decision.Skip(item); skipped {
		return d
	}

	prompt := classify.BuildPrompt(item, s.topicText, r.normalizer.Overrides())
	raw, err := r.classifier.Classify(ctx, prompt)
	if err != nil {
		return errorDecision(item, fmt.Sprintf("classification failed: %v", err))
	}
	result := s.interpreter.Interpret(raw)

	d := s.engine.Decide(item, result)
	if d.Outcome != domain.OutcomeAssigned || r.opts.DryRun {
		return d
	}

	if err := r.apply(ctx, s, d); err != nil {
		d.Outcome = domain.OutcomeError
		d.Reason = err.Error()
	}
	return d
}

func (r *Runner) apply(ctx context.Context, s *session, d domain.Decision) error {
	labelID := ""
	if d.NeedsReview {
		id, err := r.reviewLabel(ctx, s)
		if err != nil {
			return fmt.Errorf("ensure label %s: %w", r.opts.NeedsReviewLabel, err)
		}
		labelID = id
	}
	m, ok := decision.MutationFor(d, labelID)
	if !ok {
		return nil
	}
	if err := r.tracker.AssignItem(ctx, m.ItemID, m.AssigneeID, m.LabelIDs); err != nil {
		return fmt.Errorf("assign: %w", err)
	}
	if err := r.tracker.AddComment(ctx, m.ItemID, m.Comment); err != nil {
		return fmt.Errorf("add audit comment: %w", err)
	}
	return nil
}

func (r *Runner) reviewLabel(ctx context.Context, s *session) (string, error) {
	if s.reviewLabelID != "" {
		return s.reviewLabelID, nil
	}
	if s.teamID == "" {
		teamID, err := r.tracker.TeamID(ctx)
		if err != nil {
			return "", fmt.Errorf("resolve team: %w", err)
		}
		s.teamID = teamID
	}
	id, err := r.tracker.EnsureLabel(ctx, s.teamID, r.opts.NeedsReviewLabel)
	if err != nil {
		return "", err
	}
	s.reviewLabelID = id
	return id, nil
}

func errorDecision(item domain.FeedbackItem, reason string) domain.Decision {
	return domain.Decision{
		ItemID:     item.ID,
		Identifier: item.Identifier,
		Title:      item.Title,
		Outcome:    domain.OutcomeError,
		Reason:     reason,
	}
}
