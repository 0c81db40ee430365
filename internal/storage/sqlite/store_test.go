package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"feedbacktriage/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := InitDB(filepath.Join(t.TempDir(), "triage-test.db"))
	if err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db)
}

func sampleRun(id string, startedAt time.Time, dryRun bool) domain.RunRecord {
	decisions := []domain.Decision{
		{
			ItemID: "i1", Identifier: "PROF-1", Title: "Export fails",
			Outcome: domain.OutcomeAssigned, Topic: "Export", Confidence: domain.ConfidenceHigh,
			OwnerName: "Ana Lima", Member: &domain.RosterMember{ID: "u1", Name: "Ana Lima"},
			Reason: "Assigned to Ana Lima",
		},
		{
			ItemID: "i2", Identifier: "PROF-2", Title: "Odd request",
			Outcome: domain.OutcomeFlagged, Topic: "Other", Confidence: domain.ConfidenceLow,
			Reason: "No owner found for topic 'Other'",
		},
		{
			ItemID: "i3", Identifier: "PROF-3", Title: "Already owned",
			Outcome: domain.OutcomeSkipped, Reason: "Already assigned to Ben Ode",
		},
	}
	return domain.RunRecord{
		ID:         id,
		StartedAt:  startedAt,
		FinishedAt: startedAt.Add(time.Minute),
		DryRun:     dryRun,
		Decisions:  decisions,
		Summary:    domain.Summarize(decisions, dryRun),
	}
}

func TestInitDBIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twice.db")
	for i := 0; i < 2; i++ {
		db, err := InitDB(path)
		if err != nil {
			t.Fatalf("InitDB attempt %d failed: %v", i+1, err)
		}
		_ = db.Close()
	}
}

func TestRecordRunAndListDecisions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	if err := s.RecordRun(ctx, sampleRun("run-1", base, true)); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}
	if err := s.RecordRun(ctx, sampleRun("run-2", base.Add(time.Hour), false)); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}

	all, err := s.ListDecisions(ctx, HistoryFilter{})
	if err != nil {
		t.Fatalf("ListDecisions failed: %v", err)
	}
	if len(all) != 6 {
		t.Fatalf("expected 6 decisions, got %d", len(all))
	}
	if all[0].RunID != "run-2" || all[0].DryRun {
		t.Fatalf("expected newest run first, got %+v", all[0])
	}

	flagged, err := s.ListDecisions(ctx, HistoryFilter{Outcome: domain.OutcomeFlagged})
	if err != nil {
		t.Fatalf("ListDecisions flagged failed: %v", err)
	}
	if len(flagged) != 2 {
		t.Fatalf("expected 2 flagged decisions, got %d", len(flagged))
	}
	for _, r := range flagged {
		if r.Outcome != domain.OutcomeFlagged || r.Reason != "No owner found for topic 'Other'" {
			t.Fatalf("unexpected flagged row %+v", r)
		}
	}

	one, err := s.ListDecisions(ctx, HistoryFilter{Identifier: "PROF-1", RunID: "run-1"})
	if err != nil {
		t.Fatalf("ListDecisions by identifier failed: %v", err)
	}
	if len(one) != 1 || one[0].MemberName != "Ana Lima" || one[0].Confidence != domain.ConfidenceHigh || !one[0].DryRun {
		t.Fatalf("unexpected row %+v", one)
	}

	limited, err := s.ListDecisions(ctx, HistoryFilter{Limit: 2})
	if err != nil {
		t.Fatalf("ListDecisions limited failed: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("expected limit 2, got %d", len(limited))
	}
}

func TestRecordRunWithoutDecisions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	run := domain.RunRecord{ID: "empty", StartedAt: time.Now(), FinishedAt: time.Now(), DryRun: true}
	if err := s.RecordRun(ctx, run); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}
	runs, err := s.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "empty" || runs[0].Summary.Total != 0 || !runs[0].DryRun {
		t.Fatalf("unexpected runs %+v", runs)
	}
}

func TestRecordRunDuplicateIDRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()
	if err := s.RecordRun(ctx, sampleRun("dup", base, true)); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}
	if err := s.RecordRun(ctx, sampleRun("dup", base, true)); err == nil {
		t.Fatal("expected duplicate run id to fail")
	}
	rows, err := s.ListDecisions(ctx, HistoryFilter{RunID: "dup"})
	if err != nil {
		t.Fatalf("ListDecisions failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected failed run to leave no extra decisions, got %d", len(rows))
	}
}

func TestListRunsSummary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.RecordRun(ctx, sampleRun("r", time.Now().UTC(), false)); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}
	runs, err := s.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	got := runs[0].Summary
	if got.Total != 3 || got.Assigned != 1 || got.Flagged != 1 || got.Skipped != 1 || got.Errors != 0 {
		t.Fatalf("unexpected summary %+v", got)
	}
}
