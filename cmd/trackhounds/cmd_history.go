// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/trackhounds/cmd/trackhounds/internal/history"
	"github.com/AleutianAI/trackhounds/pkg/ux"
)

// runHistory prints the newest runs from the journal.
func runHistory(cmd *cobra.Command, args []string) error {
	cfg, path, err := loadConfig()
	if err != nil {
		return err
	}

	// Pruning is left to the supervisor; reading never writes.
	j, err := history.Open(history.Config{Path: cfg.HistoryPath(path), Retention: -1})
	if err != nil {
		return fmt.Errorf("open run journal (a running `trackhounds serve` holds it): %w", err)
	}
	defer j.Close()

	runs, err := j.Recent(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		ux.NewPrinter().Info("No runs recorded yet.")
		return nil
	}
	return printRuns(cmd.OutOrStdout(), runs)
}

// printRuns writes runs as an aligned table, newest first.
func printRuns(w io.Writer, runs []history.Run) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tKIND\tPATH\tOUTCOME\tDURATION\tDETAIL")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Started.Local().Format(time.DateTime),
			r.Kind,
			dash(r.Path),
			r.Outcome,
			r.Duration.Round(time.Millisecond),
			dash(r.Detail),
		)
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
