package report

import (
	"fmt"
	"strconv"
	"strings"

	"feedbacktriage/internal/catalog"
	"feedbacktriage/internal/domain"
	"feedbacktriage/internal/storage/sqlite"
)

// Decisions renders one row per item of a run.
func Decisions(decisions []domain.Decision) string {
	if len(decisions) == 0 {
		return "No items to triage."
	}
	rows := make([][]string, 0, len(decisions))
	for _, d := range decisions {
		rows = append(rows, []string{
			d.Identifier,
			shorten(d.Title, 50),
			string(d.Outcome),
			d.Topic,
			string(d.Confidence),
			assigneeName(d),
			d.Reason,
		})
	}
	return renderTable([]column{
		col("Item"), col("Title"), col("Outcome"), col("Topic"), col("Confidence"), col("Assignee"), freeText("Reason"),
	}, rows)
}

// Summary renders the run totals. Dry runs label assignments as "would assign".
func Summary(s domain.RunSummary) string {
	assigned := "Assigned"
	if s.DryRun {
		assigned = "Would assign"
	}
	rows := [][]string{
		{"Processed", strconv.Itoa(s.Total)},
		{assigned, strconv.Itoa(s.Assigned)},
		{"  high confidence", strconv.Itoa(s.AssignedHigh)},
		{"  low confidence (needs review)", strconv.Itoa(s.AssignedLow)},
		{"Skipped (already assigned)", strconv.Itoa(s.Skipped)},
		{"Flagged for manual triage", strconv.Itoa(s.Flagged)},
		{"Errors", strconv.Itoa(s.Errors)},
	}
	out := renderTable([]column{col("Summary"), count("Count")}, rows)
	if s.DryRun {
		out += "\nDry run: no changes were made. Re-run with --execute to apply."
	}
	return out
}

// History renders stored decisions, newest first.
func History(rows []sqlite.DecisionRow) string {
	if len(rows) == 0 {
		return "No recorded decisions."
	}
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		mode := "execute"
		if r.DryRun {
			mode = "dry-run"
		}
		assignee := r.MemberName
		if assignee == "" {
			assignee = r.Owner
		}
		out = append(out, []string{
			r.DecidedAt.Format("2006-01-02 15:04"),
			mode,
			r.Identifier,
			string(r.Outcome),
			r.Topic,
			string(r.Confidence),
			assignee,
			r.Reason,
		})
	}
	return renderTable([]column{
		col("When"), col("Mode"), col("Item"), col("Outcome"), col("Topic"), col("Confidence"), col("Assignee"), freeText("Reason"),
	}, out)
}

func Runs(runs []sqlite.RunRow) string {
	if len(runs) == 0 {
		return "No recorded runs."
	}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		mode := "execute"
		if r.DryRun {
			mode = "dry-run"
		}
		rows = append(rows, []string{
			r.ID,
			r.StartedAt.Format("2006-01-02 15:04"),
			mode,
			strconv.Itoa(r.Summary.Total),
			strconv.Itoa(r.Summary.Assigned),
			strconv.Itoa(r.Summary.Skipped),
			strconv.Itoa(r.Summary.Flagged),
			strconv.Itoa(r.Summary.Errors),
		})
	}
	return renderTable([]column{
		col("Run"), col("Started"), col("Mode"),
		count("Total"), count("Assigned"), count("Skipped"), count("Flagged"), count("Errors"),
	}, rows)
}

// Topics renders every catalog entry, marking those that cannot be routed.
func Topics(cat *catalog.Catalog) string {
	entries := cat.Entries()
	if len(entries) == 0 {
		return "Catalog is empty."
	}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		owner := e.Owner
		if !e.Routable() {
			owner = "(none)"
		}
		rows = append(rows, []string{e.Name, owner, e.Note})
	}
	return renderTable([]column{col("Topic"), col("Owner"), freeText("Note")}, rows) +
		fmt.Sprintf("\n%d routable topics", cat.Len())
}

func assigneeName(d domain.Decision) string {
	if d.Member != nil {
		return d.Member.Name
	}
	return d.OwnerName
}

func shorten(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
