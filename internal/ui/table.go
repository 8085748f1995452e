package ui

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// ServerStats is what the stats table shows.
type ServerStats struct {
	Server    string
	Connected int
	Waiting   int
	Paired    int
	Matches   uint64
}

// StatsView renders the server counters as a table under a heading naming
// the server.
func StatsView(s ServerStats) string {
	heading := fmt.Sprintf("%s %s %s", IconStats, TitleStyle.Render("Rendezvous"), BoldStyle.Render(s.Server))

	t := table.NewWriter()
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Online", s.Connected},
		{"Waiting", s.Waiting},
		{"Chatting", s.Paired},
		{"Pairs formed", s.Matches},
	})

	t.SetStyle(table.StyleRounded)
	t.Style().Color.Header = text.Colors{text.FgCyan, text.Bold}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
	})
	return heading + "\n" + t.Render()
}

// RenderStats writes the stats table to w.
func RenderStats(w io.Writer, s ServerStats) {
	fmt.Fprintln(w, StatsView(s))
}
