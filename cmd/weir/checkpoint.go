package main

import (
	"fmt"

	"github.com/cuemby/weir/pkg/config"
	"github.com/cuemby/weir/pkg/pipeline"
	"github.com/spf13/cobra"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Inspect durable checkpoints",
}

var checkpointListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pipelines with a durable checkpoint and their committed epoch",
	RunE:  runCheckpointList,
}

func init() {
	checkpointCmd.AddCommand(checkpointListCmd)
	checkpointListCmd.Flags().StringP("pipeline", "p", "", "Path to the pipeline YAML file naming the checkpoint backend (required)")
	checkpointListCmd.MarkFlagRequired("pipeline")
}

func runCheckpointList(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("pipeline")
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load pipeline %s: %w", path, err)
	}

	store, err := pipeline.OpenCheckpointStore(cmd.Context(), cfg.Checkpoint)
	if err != nil {
		return fmt.Errorf("open checkpoint store: %w", err)
	}

	names, err := store.ListPipelines(cmd.Context())
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Println("No checkpoints recorded yet")
		return nil
	}
	for _, name := range names {
		epoch, ok, err := store.LastCommittedEpoch(name)
		if err != nil {
			return fmt.Errorf("read checkpoint for %q: %w", name, err)
		}
		if !ok {
			continue
		}
		generation, _ := store.Generation(name)
		fmt.Printf("%-30s epoch=%d generation=%s\n", name, epoch, generation)
	}
	return nil
}
