// Package report renders run results, history and the topic catalog as
// terminal tables.
package report

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Free-text columns (reasons, notes) wrap at this width; identifiers and
// counts never do.
const wrapWidth = 60

type column struct {
	header string
	right  bool
	wrap   bool
}

func col(header string) column { return column{header: header} }
func count(header string) column { return column{header: header, right: true} }
func freeText(header string) column { return column{header: header, wrap: true} }

// renderTable draws rows under columns. Headers keep their casing; short rows
// are padded with empty cells.
func renderTable(columns []column, rows [][]string) string {
	if len(columns) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.Style().Format.Header = text.FormatDefault

	header := make(table.Row, len(columns))
	configs := make([]table.ColumnConfig, len(columns))
	for i, c := range columns {
		header[i] = c.header
		cfg := table.ColumnConfig{Number: i + 1, Align: text.AlignLeft, AlignHeader: text.AlignLeft}
		if c.right {
			cfg.Align = text.AlignRight
		}
		if c.wrap {
			cfg.WidthMax = wrapWidth
		}
		configs[i] = cfg
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, row := range rows {
		r := make(table.Row, len(columns))
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}
	return tw.Render()
}
