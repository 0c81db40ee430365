package triage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"feedbacktriage/internal/catalog"
	"feedbacktriage/internal/domain"
	"feedbacktriage/internal/identity"
)

type assignCall struct {
	itemID     string
	assigneeID string
	labelIDs   []string
}

type fakeTracker struct {
	members     []domain.RosterMember
	items       []domain.FeedbackItem
	membersErr  error
	teamErr     error
	teamCalls   int
	assignErr   map[string]error
	ensureCalls int
	assigns     []assignCall
	comments    map[string]string
}

func (f *fakeTracker) TeamID(ctx context.Context) (string, error) {
	f.teamCalls++
	if f.teamErr != nil {
		return "", f.teamErr
	}
	return "team-1", nil
}

func (f *fakeTracker) TeamMembers(ctx context.Context) ([]domain.RosterMember, error) {
	return f.members, f.membersErr
}

func (f *fakeTracker) TriageItems(ctx context.Context) ([]domain.FeedbackItem, error) {
	return f.items, nil
}

func (f *fakeTracker) ItemByIdentifier(ctx context.Context, identifier string) (domain.FeedbackItem, error) {
	for _, item := range f.items {
		if item.Identifier == identifier {
			return item, nil
		}
	}
	return domain.FeedbackItem{}, errors.New("not found")
}

func (f *fakeTracker) EnsureLabel(ctx context.Context, teamID, name string) (string, error) {
	f.ensureCalls++
	return "label-" + name, nil
}

func (f *fakeTracker) AssignItem(ctx context.Context, itemID, assigneeID string, labelIDs []string) error {
	if err := f.assignErr[itemID]; err != nil {
		return err
	}
	f.assigns = append(f.assigns, assignCall{itemID: itemID, assigneeID: assigneeID, labelIDs: labelIDs})
	return nil
}

func (f *fakeTracker) AddComment(ctx context.Context, itemID, body string) error {
	if f.comments == nil {
		f.comments = make(map[string]string)
	}
	f.comments[itemID] = body
	return nil
}

// fakeClassifier answers based on a keyword found in the prompt title line.
type fakeClassifier struct {
	responses map[string]string
	errs      map[string]error
	calls     int
}

func (f *fakeClassifier) Classify(ctx context.Context, prompt string) (string, error) {
	f.calls++
	for key, err := range f.errs {
		if strings.Contains(prompt, "**Title:** "+key) {
			return "", err
		}
	}
	for key, resp := range f.responses {
		if strings.Contains(prompt, "**Title:** "+key) {
			return resp, nil
		}
	}
	return "I don't know", nil
}

type fakeRecorder struct {
	runs []domain.RunRecord
}

func (f *fakeRecorder) RecordRun(ctx context.Context, run domain.RunRecord) error {
	f.runs = append(f.runs, run)
	return nil
}

func newTestRunner(t *testing.T, tracker *fakeTracker, classifier *fakeClassifier, dryRun bool) *Runner {
	t.Helper()
	cat := catalog.New([]domain.TopicEntry{
		{Name: "Storage", Owner: "Owner A"},
		{Name: "Billing", Owner: "Owner C"},
		{Name: "Pricing", Owner: "Owner C"},
		{Name: "UX", Owner: "Owner D"},
	})
	normalizer := identity.NewNormalizer(identity.Tables{
		Overrides: []identity.Override{{Keyword: "native datatypes", Owner: "Owner B"}},
	})
	return NewRunner(tracker, classifier, cat, normalizer, Options{DryRun: dryRun})
}

func testMembers() []domain.RosterMember {
	return []domain.RosterMember{
		{ID: "id-a", Name: "Owner A"},
		{ID: "id-b", Name: "Owner B"},
		{ID: "id-c", Name: "Owner C"},
	}
}

func TestRunExecuteAppliesDecisions(t *testing.T) {
	tracker := &fakeTracker{
		members: testMembers(),
		items: []domain.FeedbackItem{
			{ID: "1", Identifier: "PROF-1", Title: "Add native datatypes support"},
			{ID: "2", Identifier: "PROF-2", Title: "Invoice wrong"},
			{ID: "3", Identifier: "PROF-3", Title: "Owned already", Assignee: &domain.Assignee{ID: "x", Name: "Someone"}},
			{ID: "4", Identifier: "PROF-4", Title: "Vague request"},
			{ID: "5", Identifier: "PROF-5", Title: "Slow uploads"},
			{ID: "6", Identifier: "PROF-6", Title: "Ugly buttons"},
		},
	}
	classifier := &fakeClassifier{responses: map[string]string{
		"Add native":    `{"primary_bucket": "storage", "confidence": "high", "reasoning": "storage feature"}`,
		"Invoice wrong": "```json\n{\"primary_bucket\": \"Billing\", \"secondary_bucket\": \"Storage\", \"confidence\": \"low\", \"reasoning\": \"unclear\"}\n```",
		"Slow uploads":  `{"primary_bucket": "Storage", "secondary_bucket": "Billing", "confidence": "low", "reasoning": "maybe"}`,
		"Ugly buttons":  `{"primary_bucket": "UX", "confidence": "high", "reasoning": "ui"}`,
	}}
	recorder := &fakeRecorder{}
	runner := newTestRunner(t, tracker, classifier, false).WithRecorder(recorder)

	run, err := runner.Run(context.Background(), "")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if classifier.calls != 5 {
		t.Fatalf("owned item must not be classified, calls=%d", classifier.calls)
	}

	outcomes := make(map[string]domain.Outcome)
	for _, d := range run.Decisions {
		outcomes[d.Identifier] = d.Outcome
	}
	want := map[string]domain.Outcome{
		"PROF-1": domain.OutcomeAssigned,
		"PROF-2": domain.OutcomeAssigned,
		"PROF-3": domain.OutcomeSkipped,
		"PROF-4": domain.OutcomeFlagged,
		"PROF-5": domain.OutcomeAssigned,
		"PROF-6": domain.OutcomeFlagged, // Owner D is not on the roster
	}
	for id, outcome := range want {
		if outcomes[id] != outcome {
			t.Fatalf("%s outcome = %s, want %s", id, outcomes[id], outcome)
		}
	}

	if len(tracker.assigns) != 3 {
		t.Fatalf("expected 3 assignments, got %+v", tracker.assigns)
	}
	if tracker.assigns[0].assigneeID != "id-b" || len(tracker.assigns[0].labelIDs) != 0 {
		t.Fatalf("override assignment wrong: %+v", tracker.assigns[0])
	}
	if tracker.assigns[1].assigneeID != "id-c" || len(tracker.assigns[1].labelIDs) != 1 || tracker.assigns[1].labelIDs[0] != "label-needs-review" {
		t.Fatalf("low confidence assignment must carry the review label: %+v", tracker.assigns[1])
	}
	if tracker.ensureCalls != 1 || tracker.teamCalls != 1 {
		t.Fatalf("team and review label must be resolved once per run, got team=%d label=%d", tracker.teamCalls, tracker.ensureCalls)
	}
	if !strings.Contains(tracker.comments["2"], "- **Alternative topic:** Storage") {
		t.Fatalf("unexpected audit comment: %s", tracker.comments["2"])
	}

	s := run.Summary
	if s.Assigned != 3 || s.AssignedHigh != 1 || s.AssignedLow != 2 || s.Skipped != 1 || s.Flagged != 2 || s.Errors != 0 {
		t.Fatalf("unexpected summary %+v", s)
	}
	if len(recorder.runs) != 1 || recorder.runs[0].ID != run.ID {
		t.Fatalf("run must be recorded once, got %d", len(recorder.runs))
	}
}

func TestRunDryRunMakesNoMutations(t *testing.T) {
	tracker := &fakeTracker{
		members: testMembers(),
		items:   []domain.FeedbackItem{{ID: "1", Identifier: "PROF-1", Title: "Invoice wrong"}},
	}
	classifier := &fakeClassifier{responses: map[string]string{
		"Invoice wrong": `{"primary_bucket": "Billing", "confidence": "low", "reasoning": "unclear"}`,
	}}
	run, err := newTestRunner(t, tracker, classifier, true).Run(context.Background(), "")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(tracker.assigns) != 0 || tracker.ensureCalls != 0 || len(tracker.comments) != 0 {
		t.Fatal("dry run must not touch the tracker")
	}
	if !run.Summary.DryRun || run.Summary.Assigned != 1 || run.Summary.AssignedLow != 1 {
		t.Fatalf("unexpected summary %+v", run.Summary)
	}
	if !run.Decisions[0].NeedsReview {
		t.Fatal("low confidence decision must need review")
	}
}

func TestRunIsolatesPerItemFailures(t *testing.T) {
	tracker := &fakeTracker{
		members:   testMembers(),
		assignErr: map[string]error{"1": errors.New("tracker unavailable")},
		items: []domain.FeedbackItem{
			{ID: "1", Identifier: "PROF-1", Title: "Invoice wrong"},
			{ID: "2", Identifier: "PROF-2", Title: "Model down"},
			{ID: "3", Identifier: "PROF-3", Title: "Slow uploads"},
		},
	}
	classifier := &fakeClassifier{
		responses: map[string]string{
			"Invoice wrong": `{"primary_bucket": "Billing", "confidence": "high"}`,
			"Slow uploads":  `{"primary_bucket": "Storage", "confidence": "high"}`,
		},
		errs: map[string]error{"Model down": errors.New("overloaded")},
	}
	run, err := newTestRunner(t, tracker, classifier, false).Run(context.Background(), "")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if run.Decisions[0].Outcome != domain.OutcomeError || !strings.Contains(run.Decisions[0].Reason, "tracker unavailable") {
		t.Fatalf("mutation failure must become an error decision: %+v", run.Decisions[0])
	}
	if run.Decisions[1].Outcome != domain.OutcomeError || !strings.Contains(run.Decisions[1].Reason, "overloaded") {
		t.Fatalf("classifier failure must become an error decision: %+v", run.Decisions[1])
	}
	if run.Decisions[2].Outcome != domain.OutcomeAssigned {
		t.Fatalf("processing must continue after failures: %+v", run.Decisions[2])
	}
	if run.Summary.Errors != 2 || run.Summary.Assigned != 1 {
		t.Fatalf("unexpected summary %+v", run.Summary)
	}
}

func TestRunTeamLookupFailureOnlyFailsReviewItems(t *testing.T) {
	tracker := &fakeTracker{
		members: testMembers(),
		teamErr: errors.New("team PROF not visible"),
		items: []domain.FeedbackItem{
			{ID: "1", Identifier: "PROF-1", Title: "Invoice wrong"},
			{ID: "2", Identifier: "PROF-2", Title: "Slow uploads"},
		},
	}
	classifier := &fakeClassifier{responses: map[string]string{
		"Invoice wrong": `{"primary_bucket": "Billing", "confidence": "high"}`,
		"Slow uploads":  `{"primary_bucket": "Storage", "secondary_bucket": "Billing", "confidence": "low"}`,
	}}
	run, err := newTestRunner(t, tracker, classifier, false).Run(context.Background(), "")
	if err != nil {
		t.Fatalf("team lookup failure must not abort the run: %v", err)
	}
	if run.Decisions[0].Outcome != domain.OutcomeAssigned {
		t.Fatalf("high confidence item needs no team and must be assigned: %+v", run.Decisions[0])
	}
	if run.Decisions[1].Outcome != domain.OutcomeError || !strings.Contains(run.Decisions[1].Reason, "resolve team") {
		t.Fatalf("review item must become an error decision: %+v", run.Decisions[1])
	}
	if len(tracker.assigns) != 1 || tracker.assigns[0].itemID != "1" || tracker.ensureCalls != 0 {
		t.Fatalf("unexpected tracker calls assigns=%+v ensure=%d", tracker.assigns, tracker.ensureCalls)
	}
	if run.Summary.Assigned != 1 || run.Summary.Errors != 1 {
		t.Fatalf("unexpected summary %+v", run.Summary)
	}
}

func TestRunSingleIdentifier(t *testing.T) {
	tracker := &fakeTracker{
		members: testMembers(),
		items: []domain.FeedbackItem{
			{ID: "1", Identifier: "PROF-1", Title: "Invoice wrong"},
			{ID: "2", Identifier: "PROF-2", Title: "Slow uploads"},
		},
	}
	classifier := &fakeClassifier{responses: map[string]string{
		"Slow uploads": `{"primary_bucket": "Storage", "confidence": "high"}`,
	}}
	run, err := newTestRunner(t, tracker, classifier, true).Run(context.Background(), "PROF-2")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(run.Decisions) != 1 || run.Decisions[0].Identifier != "PROF-2" {
		t.Fatalf("expected only PROF-2, got %+v", run.Decisions)
	}

	if _, err := newTestRunner(t, tracker, classifier, true).Run(context.Background(), "PROF-99"); err == nil {
		t.Fatal("expected error for unknown identifier")
	}
}

func TestRunFailsWithoutRoster(t *testing.T) {
	tracker := &fakeTracker{membersErr: errors.New("unauthorized")}
	_, err := newTestRunner(t, tracker, &fakeClassifier{}, true).Run(context.Background(), "")
	if err == nil || !strings.Contains(err.Error(), "load roster") {
		t.Fatalf("expected roster error, got %v", err)
	}

	empty := &fakeTracker{}
	if _, err := newTestRunner(t, empty, &fakeClassifier{}, true).Run(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty roster")
	}
}
