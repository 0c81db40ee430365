package domain

import "time"

type RunSummary struct {
	DryRun       bool
	Total        int
	Assigned     int
	AssignedHigh int
	AssignedLow  int
	Skipped      int
	Flagged      int
	Errors       int
}

func Summarize(decisions []Decision, dryRun bool) RunSummary {
	s := RunSummary{DryRun: dryRun, Total: len(decisions)}
	for _, d := range decisions {
		switch d.Outcome {
		case OutcomeAssigned:
			s.Assigned++
			if d.Confidence == ConfidenceHigh {
				s.AssignedHigh++
			} else {
				s.AssignedLow++
			}
		case OutcomeSkipped:
			s.Skipped++
		case OutcomeFlagged:
			s.Flagged++
		case OutcomeError:
			s.Errors++
		}
	}
	return s
}

// RunRecord is the persisted trail of one triage run.
type RunRecord struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	DryRun     bool
	Decisions  []Decision
	Summary    RunSummary
}
