package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"feedbacktriage/internal/catalog"
	"feedbacktriage/internal/domain"
	"feedbacktriage/internal/integrations/linear"
	"feedbacktriage/internal/report"
	"feedbacktriage/internal/scheduler"
	"feedbacktriage/internal/storage/sqlite"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var execute bool
	var issue string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Classify and route items waiting in triage (dry run unless --execute)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			identifier := strings.TrimSpace(issue)
			if identifier != "" {
				if _, _, err := linear.ParseIdentifier(identifier); err != nil {
					return err
				}
			}

			p, err := newPipeline(cfg, !execute)
			if err != nil {
				return err
			}
			defer p.Close()

			record, err := p.run(cmd.Context(), identifier)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, report.Decisions(record.Decisions))
			fmt.Fprintln(out, report.Summary(record.Summary))
			return nil
		},
	}
	cmd.Flags().BoolVar(&execute, "execute", false, "Apply assignments, labels and comments to the tracker")
	cmd.Flags().StringVar(&issue, "issue", "", "Triage a single item by identifier, e.g. PROF-23")
	return cmd
}

func newTopicsCommand(ctx *commandContext) *cobra.Command {
	var prompt bool

	cmd := &cobra.Command{
		Use:   "topics",
		Short: "Show the topic catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cat, err := catalog.LoadFile(cfg.TopicsPath)
			if err != nil {
				return err
			}
			if prompt {
				fmt.Fprintln(cmd.OutOrStdout(), cat.Describe())
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), report.Topics(cat))
			return nil
		},
	}
	cmd.Flags().BoolVar(&prompt, "prompt", false, "Print the topic list exactly as the classifier sees it")
	return cmd
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var (
		outcome string
		issue   string
		runID   string
		limit   int
		runs    bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse recorded triage decisions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			filter, err := historyFilter(outcome, issue, runID, limit)
			if err != nil {
				return err
			}
			db, store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			if runs {
				rows, err := store.ListRuns(cmd.Context(), limit)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), report.Runs(rows))
				return nil
			}
			rows, err := store.ListDecisions(cmd.Context(), filter)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), report.History(rows))
			return nil
		},
	}
	cmd.Flags().StringVar(&outcome, "outcome", "", "Only show decisions with this outcome (assigned, flagged, skipped, error)")
	cmd.Flags().StringVar(&issue, "issue", "", "Only show decisions for this item identifier")
	cmd.Flags().StringVar(&runID, "run", "", "Only show decisions from this run")
	cmd.Flags().IntVar(&limit, "limit", sqlite.DefaultHistoryLimit, "Maximum rows to show")
	cmd.Flags().BoolVar(&runs, "runs", false, "List runs instead of decisions")
	return cmd
}

func historyFilter(outcome, issue, runID string, limit int) (sqlite.HistoryFilter, error) {
	f := sqlite.HistoryFilter{
		Identifier: strings.ToUpper(strings.TrimSpace(issue)),
		RunID:      strings.TrimSpace(runID),
		Limit:      limit,
	}
	if outcome = strings.ToLower(strings.TrimSpace(outcome)); outcome != "" {
		switch o := domain.Outcome(outcome); o {
		case domain.OutcomeAssigned, domain.OutcomeFlagged, domain.OutcomeSkipped, domain.OutcomeError:
			f.Outcome = o
		default:
			return sqlite.HistoryFilter{}, fmt.Errorf("unknown outcome %q (want assigned, flagged, skipped or error)", outcome)
		}
	}
	return f, nil
}

func newScheduleCommand(ctx *commandContext) *cobra.Command {
	var execute bool
	var schedule string

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run triage on a cron schedule until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			expr := strings.TrimSpace(schedule)
			if expr == "" {
				expr = cfg.TriageSchedule
			}
			if _, err := scheduler.Parse(expr); err != nil {
				return fmt.Errorf("triage_schedule: %w", err)
			}

			p, err := newPipeline(cfg, !execute)
			if err != nil {
				return err
			}
			defer p.Close()

			return scheduler.Run(cmd.Context(), expr, cfg.Location, func(ctx context.Context) error {
				_, err := p.run(ctx, "")
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&execute, "execute", false, "Apply assignments on every scheduled run")
	cmd.Flags().StringVar(&schedule, "cron", "", "5-field cron expression (default triage_schedule from config)")
	return cmd
}
