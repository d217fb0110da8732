package ui

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Table renders rows with a bold header in a plain, copy-friendly layout.
func Table(out io.Writer, header []any, rows [][]any) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(header)
	for _, r := range rows {
		t.AppendRow(r)
	}
	t.Render()
}
