// Package scheduler runs a job on a 5-field cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one scheduled execution. Errors are logged and do not stop the loop.
type Job func(ctx context.Context) error

// Parse accepts a standard 5-field cron expression
// (minute hour day-of-month month day-of-week), e.g. "0 9 * * 1-5".
func Parse(expr string) (cron.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("empty schedule")
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule '%s': %w", expr, err)
	}
	return sched, nil
}

// Run blocks, invoking job at every activation of expr in loc, until ctx is
// cancelled.
func Run(ctx context.Context, expr string, loc *time.Location, job Job) error {
	sched, err := Parse(expr)
	if err != nil {
		return err
	}
	if loc == nil {
		loc = time.Local
	}
	log.Printf("triage scheduled (cron: %s)", strings.TrimSpace(expr))

	for {
		now := time.Now().In(loc)
		next := sched.Next(now)
		wait := next.Sub(now)
		log.Printf("Next triage run at %s (in %s)", next.Format("Mon Jan 2 15:04"), wait.Round(time.Minute))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Printf("triage scheduler stopped")
			return ctx.Err()
		case <-timer.C:
		}

		if err := job(ctx); err != nil {
			log.Printf("Scheduled triage error: %v", err)
		}
	}
}
