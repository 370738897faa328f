package main

import (
	"fmt"

	"github.com/cuemby/weir/pkg/config"
	"github.com/cuemby/weir/pkg/observability"
	"github.com/cuemby/weir/pkg/pipeline"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <pipeline.yaml>",
	Short: "Build and run a pipeline file to completion or until interrupted",
	Long: `run loads a pipeline definition, builds its sources, SQL
transforms and cache endpoints into a DAG, and drives it: every source
snapshots (or streams, for a connector that supports it), every operator
processes, and every endpoint's cache is kept current as epochs commit.

The process runs until every source has terminated naturally or it
receives SIGINT/SIGTERM, at which point it stops accepting new work and
exits once the in-flight epoch has drained.`,
	Args: cobra.ExactArgs(1),
	RunE: runPipeline,
}

func runPipeline(cmd *cobra.Command, args []string) error {
	path := args[0]
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load pipeline %s: %w", path, err)
	}

	fmt.Printf("Starting pipeline %q\n", cfg.Name)
	fmt.Printf("  Sources:    %d\n", len(cfg.Sources))
	fmt.Printf("  SQL stages: %d\n", len(cfg.SQL))
	fmt.Printf("  Endpoints:  %d\n", len(cfg.Endpoints))
	fmt.Printf("  Data dir:   %s\n", cfg.DataDir)
	fmt.Printf("  Checkpoint: %s\n", cfg.Checkpoint.Backend)
	fmt.Println()

	built, err := pipeline.Build(cfg)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}
	defer built.Close()

	fmt.Printf("  Run ID:     %s\n", built.RunID)
	for _, ec := range cfg.Endpoints {
		fmt.Printf("    endpoint %-20s generation=%s\n", ec.Name, built.EndpointGenerations[ec.Name])
	}
	fmt.Println()

	ctx, cancel := signalContext()
	defer cancel()

	checkpoints, err := pipeline.OpenCheckpointStore(ctx, cfg.Checkpoint)
	if err != nil {
		return fmt.Errorf("open checkpoint store: %w", err)
	}

	events := observability.NewBroker()
	events.Start()
	defer events.Stop()
	sub := events.Subscribe()
	defer events.Unsubscribe(sub)
	go logEvents(sub)

	if err := pipeline.Run(ctx, cfg, built, checkpoints, events); err != nil {
		return fmt.Errorf("pipeline %q: %w", cfg.Name, err)
	}

	fmt.Printf("Pipeline %q finished\n", cfg.Name)
	return nil
}

func logEvents(sub observability.Subscriber) {
	for ev := range sub {
		fmt.Printf("[%s] %s: %s\n", ev.Type, ev.Node, ev.Message)
	}
}
