// Package sqlite persists the decision trail of triage runs.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	"feedbacktriage/internal/domain"
)

const DefaultHistoryLimit = 50

func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS triage_runs (
		id          TEXT PRIMARY KEY,
		started_at  DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		dry_run     INTEGER NOT NULL DEFAULT 1,
		total       INTEGER NOT NULL DEFAULT 0,
		assigned    INTEGER NOT NULL DEFAULT 0,
		skipped     INTEGER NOT NULL DEFAULT 0,
		flagged     INTEGER NOT NULL DEFAULT 0,
		errors      INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_triage_runs_started ON triage_runs(started_at);

	CREATE TABLE IF NOT EXISTS triage_decisions (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id          TEXT NOT NULL,
		item_id         TEXT NOT NULL,
		identifier      TEXT DEFAULT '',
		title           TEXT DEFAULT '',
		outcome         TEXT NOT NULL,
		topic           TEXT DEFAULT '',
		secondary_topic TEXT DEFAULT '',
		confidence      TEXT DEFAULT '',
		owner           TEXT DEFAULT '',
		member_id       TEXT DEFAULT '',
		member_name     TEXT DEFAULT '',
		override        TEXT DEFAULT '',
		needs_review    INTEGER NOT NULL DEFAULT 0,
		reason          TEXT DEFAULT '',
		decided_at      DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_td_run ON triage_decisions(run_id);
	CREATE INDEX IF NOT EXISTS idx_td_outcome ON triage_decisions(outcome);
	CREATE INDEX IF NOT EXISTS idx_td_identifier ON triage_decisions(identifier);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Store implements the run recorder on top of an open database.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// RecordRun writes the run row and all of its decisions in one transaction.
func (s *Store) RecordRun(ctx context.Context, run domain.RunRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query, args, err := sq.Insert("triage_runs").
		Columns("id", "started_at", "finished_at", "dry_run", "total", "assigned", "skipped", "flagged", "errors").
		Values(run.ID, run.StartedAt.UTC(), run.FinishedAt.UTC(), run.DryRun,
			run.Summary.Total, run.Summary.Assigned, run.Summary.Skipped, run.Summary.Flagged, run.Summary.Errors).
		ToSql()
	if err != nil {
		return fmt.Errorf("build run insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}

	if len(run.Decisions) > 0 {
		insert := sq.Insert("triage_decisions").
			Columns("run_id", "item_id", "identifier", "title", "outcome", "topic", "secondary_topic",
				"confidence", "owner", "member_id", "member_name", "override", "needs_review", "reason", "decided_at")
		decidedAt := run.FinishedAt.UTC()
		for _, d := range run.Decisions {
			var memberID, memberName string
			if d.Member != nil {
				memberID, memberName = d.Member.ID, d.Member.Name
			}
			insert = insert.Values(run.ID, d.ItemID, d.Identifier, d.Title, string(d.Outcome), d.Topic,
				d.SecondaryTopic, string(d.Confidence), d.OwnerName, memberID, memberName, d.Override,
				d.NeedsReview, d.Reason, decidedAt)
		}
		query, args, err := insert.ToSql()
		if err != nil {
			return fmt.Errorf("build decision insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert decisions for run %s: %w", run.ID, err)
		}
	}
	return tx.Commit()
}

type HistoryFilter struct {
	Outcome    domain.Outcome
	Identifier string
	RunID      string
	Limit      int
}

// DecisionRow is one persisted decision with its run metadata.
type DecisionRow struct {
	RunID          string
	DryRun         bool
	ItemID         string
	Identifier     string
	Title          string
	Outcome        domain.Outcome
	Topic          string
	SecondaryTopic string
	Confidence     domain.Confidence
	Owner          string
	MemberName     string
	Override       string
	NeedsReview    bool
	Reason         string
	DecidedAt      time.Time
}

// ListDecisions returns recorded decisions, newest first.
func (s *Store) ListDecisions(ctx context.Context, f HistoryFilter) ([]DecisionRow, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	qb := sq.Select("d.run_id", "r.dry_run", "d.item_id", "d.identifier", "d.title", "d.outcome", "d.topic",
		"d.secondary_topic", "d.confidence", "d.owner", "d.member_name", "d.override", "d.needs_review",
		"d.reason", "d.decided_at").
		From("triage_decisions d").
		Join("triage_runs r ON r.id = d.run_id").
		OrderBy("d.decided_at DESC", "d.id DESC").
		Limit(uint64(limit))
	if f.Outcome != "" {
		qb = qb.Where(sq.Eq{"d.outcome": string(f.Outcome)})
	}
	if f.Identifier != "" {
		qb = qb.Where(sq.Eq{"d.identifier": f.Identifier})
	}
	if f.RunID != "" {
		qb = qb.Where(sq.Eq{"d.run_id": f.RunID})
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build history query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DecisionRow
	for rows.Next() {
		var (
			r          DecisionRow
			outcome    string
			confidence string
		)
		if err := rows.Scan(&r.RunID, &r.DryRun, &r.ItemID, &r.Identifier, &r.Title, &outcome, &r.Topic,
			&r.SecondaryTopic, &confidence, &r.Owner, &r.MemberName, &r.Override, &r.NeedsReview,
			&r.Reason, &r.DecidedAt); err != nil {
			return nil, err
		}
		r.Outcome = domain.Outcome(outcome)
		r.Confidence = domain.Confidence(confidence)
		out = append(out, r)
	}
	return out, rows.Err()
}

// RunRow is the stored summary of one run.
type RunRow struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	DryRun     bool
	Summary    domain.RunSummary
}

func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRow, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	query, args, err := sq.Select("id", "started_at", "finished_at", "dry_run", "total", "assigned", "skipped", "flagged", "errors").
		From("triage_runs").
		OrderBy("started_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build runs query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		var r RunRow
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.DryRun, &r.Summary.Total, &r.Summary.Assigned,
			&r.Summary.Skipped, &r.Summary.Flagged, &r.Summary.Errors); err != nil {
			return nil, err
		}
		r.Summary.DryRun = r.DryRun
		out = append(out, r)
	}
	return out, rows.Err()
}
