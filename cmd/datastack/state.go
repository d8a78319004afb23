package main

import (
	"time"

	"github.com/artpar/datastack/internal/term"
)

// StateCmd groups state document operations.
type StateCmd struct {
	Show        StateShowCmd        `cmd:"" help:"Print the state document as JSON"`
	Checkpoints StateCheckpointsCmd `cmd:"" help:"List available checkpoints"`
	Restore     StateRestoreCmd     `cmd:"" help:"Restore the document from a checkpoint"`
}

// StateShowCmd prints the raw state document.
type StateShowCmd struct{}

func (c *StateShowCmd) Run(a *app) error {
	store, err := a.openStore()
	if err != nil {
		return err
	}
	doc, recovered, err := store.Read()
	if err != nil {
		return err
	}
	if recovered {
		a.printer.Warnf("State document was missing or corrupt; reinitialized to defaults")
	}
	return a.printer.JSON(doc)
}

// StateCheckpointsCmd lists retained checkpoints, newest first.
type StateCheckpointsCmd struct{}

func (c *StateCheckpointsCmd) Run(a *app) error {
	store, err := a.openStore()
	if err != nil {
		return err
	}
	ids, err := store.ListCheckpoints()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		a.printer.Printf("No checkpoints yet")
		return nil
	}

	rows := make([][]string, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		rows = append(rows, []string{ids[i], checkpointTime(ids[i])})
	}
	a.printer.Table([]string{"CHECKPOINT", "CREATED"}, rows)
	return nil
}

// checkpointTime renders the timestamp encoded in a checkpoint id.
func checkpointTime(id string) string {
	ts, err := time.ParseInLocation("20060102_150405", id, time.Local)
	if err != nil {
		return "-"
	}
	return term.FormatTime(ts)
}

// StateRestoreCmd replaces the live document with a checkpoint snapshot.
type StateRestoreCmd struct {
	ID string `arg:"" help:"Checkpoint id (see 'datastack state checkpoints')"`
}

func (c *StateRestoreCmd) Run(a *app) error {
	started := time.Now()
	err := c.run(a)
	a.finish(started, "state restore", c.ID, err)
	return err
}

func (c *StateRestoreCmd) run(a *app) error {
	store, err := a.openStore()
	if err != nil {
		return err
	}
	if err := store.RestoreCheckpoint(c.ID); err != nil {
		return err
	}
	a.printer.Successf("State restored from checkpoint %s", c.ID)
	return nil
}
