// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2017 Datadog, Inc.

// Command logagent runs the tailing core: it loads an input
// configuration, wires an InputSupervisor or ContainerAdapter per
// input, and runs until signalled. It replaces the teacher's
// pkg/logagent.Start (a fixed four-collaborator wiring: ConnectionManager,
// Auditor, PipelineProvider, listener/tailer/container inputs) with a
// cobra command tree over the generalized supervisor/output/sink stack.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shipperio/logshipper/pkg/agent"
	"github.com/shipperio/logshipper/pkg/checkpoint"
	"github.com/shipperio/logshipper/pkg/config"
	"github.com/shipperio/logshipper/pkg/ddlog"
)

var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "logagent",
		Short: "Tails configured files and containers, shipping enriched records to sinks",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "/etc/logagent/logagent.yaml", "path to the agent configuration file")
	root.AddCommand(newStartCmd())
	root.AddCommand(newCheckpointsCmd())
	return root
}

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start tailing every configured input until signalled",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ddlog.Configure(""); err != nil {
				return fmt.Errorf("configuring logger: %w", err)
			}
			defer ddlog.Flush()

			inputs, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			a, err := agent.New(inputs)
			if err != nil {
				return err
			}
			a.Run()
			return nil
		},
	}
}

func newCheckpointsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "checkpoints",
		Short: "List every persisted checkpoint under the configured checkpoint directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(configPath); err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			store, err := checkpoint.New(config.CheckpointDir(), config.DefaultCheckpointIntervalMs)
			if err != nil {
				return err
			}
			records, err := store.List()
			if err != nil {
				return err
			}
			for _, r := range records {
				fmt.Printf("%s\toffset=%d\tline=%d\tlast_ingest_ms=%d\n", r.FilePath, r.ByteOffset, r.LineNumber, r.LastIngestMs)
			}
			return nil
		},
	}
}
