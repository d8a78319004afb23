package main

import (
	"context"

	"github.com/artpar/datastack/internal/shell/journal"
	"github.com/artpar/datastack/internal/term"
)

// HistoryCmd lists recorded operations, newest first.
type HistoryCmd struct {
	Limit  int `help:"Maximum entries to show" default:"20"`
	Offset int `help:"Entries to skip"`
}

func (c *HistoryCmd) Run(a *app) error {
	j, err := journal.Open(a.paths.JournalFile, a.logger)
	if err != nil {
		return err
	}
	defer j.Close()

	entries, err := j.List(context.Background(), journal.ListOptions{Limit: c.Limit, Offset: c.Offset})
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		a.printer.Printf("No operations recorded yet")
		return nil
	}

	a.printer.Table([]string{"TIME", "COMMAND", "ARGUMENTS", "OUTCOME", "DETAIL"}, historyRows(entries))
	return nil
}

// historyRows flattens journal entries for the table renderer.
func historyRows(entries []journal.Entry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		args := e.Arguments
		if args == "" {
			args = "-"
		}
		detail := e.Detail
		if detail == "" {
			detail = "-"
		}
		rows = append(rows, []string{
			term.FormatTime(e.FinishedAt),
			e.Command,
			term.Truncate(args, 24),
			e.Outcome,
			term.Truncate(detail, 48),
		})
	}
	return rows
}
