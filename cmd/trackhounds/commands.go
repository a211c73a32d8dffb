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
	"github.com/spf13/cobra"

	"github.com/AleutianAI/trackhounds/pkg/ux"
)

// --- Global Command Variables ---
var (
	configPath string
	logLevel   string
	outputMode string

	historyLimit int
	watchAddr    string

	rootCmd = &cobra.Command{
		Use:   "trackhounds",
		Short: "Supervise the local trackhounds services",
		Long: `trackhounds keeps the local backend and database containers running:
it starts Docker when needed, downloads and loads the image bundle,
starts the containers and reports their status to the UI.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if outputMode != "" {
				ux.SetMode(ux.ParseMode(outputMode))
			} else {
				ux.InitMode()
			}
		},
	}

	// --- Supervisor ---
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the services and serve the UI bridge until interrupted",
		Args:  cobra.NoArgs,
		RunE:  runServe, // Defined in cmd_serve.go
	}
	downCmd = &cobra.Command{
		Use:   "down",
		Short: "Stop the backend and database containers",
		Args:  cobra.NoArgs,
		RunE:  runDown, // Defined in cmd_supervisor.go
	}
	updateCmd = &cobra.Command{
		Use:   "update",
		Short: "Download the latest image bundle and load it",
		Args:  cobra.NoArgs,
		RunE:  runUpdate, // Defined in cmd_supervisor.go
	}

	// --- Inspection ---
	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Probe Docker and show container status",
		Args:  cobra.NoArgs,
		RunE:  runStatus, // Defined in cmd_supervisor.go
	}
	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Attach to a running supervisor and show live status",
		Args:  cobra.NoArgs,
		RunE:  runWatch, // Defined in cmd_watch.go
	}
	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "List recent startup, update and shutdown runs",
		Args:  cobra.NoArgs,
		RunE:  runHistory, // Defined in cmd_history.go
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(Version)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Config file (default ~/.trackhounds/supervisor.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level override: debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&outputMode, "output", "",
		"Output style: rich or plain (default: detect from terminal)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(downCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(statusCmd)

	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchAddr, "addr", "",
		"Bridge address (default: bridge.listen from the config)")

	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to show")

	rootCmd.AddCommand(versionCmd)
}
