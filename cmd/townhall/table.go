package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// column describes one table column. Numeric columns are right-aligned.
type column struct {
	title   string
	numeric bool
}

func textColumn(title string) column  { return column{title: title} }
func countColumn(title string) column { return column{title: title, numeric: true} }

var (
	statusCountColumns = []column{textColumn("Status"), countColumn("Count")}
	jobListColumns     = []column{
		textColumn("ID"),
		textColumn("Video"),
		textColumn("Status"),
		countColumn("Attempts"),
		textColumn("Created"),
		textColumn("Last Error"),
	}
	detailColumns = []column{textColumn("Field"), textColumn("Value")}
)

// renderTable draws rows under columns. Short rows are padded with blanks and
// cells beyond the column count are dropped.
func renderTable(columns []column, rows [][]string) string {
	if len(columns) == 0 {
		return ""
	}
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	configs := make([]table.ColumnConfig, len(columns))
	titles := make([]string, len(columns))
	for i, col := range columns {
		titles[i] = col.title
		align := text.AlignLeft
		if col.numeric {
			align = text.AlignRight
		}
		configs[i] = table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft}
	}
	tw.AppendHeader(fitRow(titles, len(columns)))
	for _, cells := range rows {
		tw.AppendRow(fitRow(cells, len(columns)))
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

func fitRow(cells []string, width int) table.Row {
	row := make(table.Row, width)
	for i := range row {
		row[i] = ""
		if i < len(cells) {
			row[i] = cells[i]
		}
	}
	return row
}

// renderDetails renders label/value pairs, skipping empty values.
func renderDetails(pairs [][2]string) string {
	rows := make([][]string, 0, len(pairs))
	for _, pair := range pairs {
		if pair[1] != "" {
			rows = append(rows, pair[:])
		}
	}
	return renderTable(detailColumns, rows)
}
