package main

import (
	"fmt"
	"path/filepath"

	"github.com/cuemby/weir/pkg/cache"
	"github.com/cuemby/weir/pkg/config"
	"github.com/cuemby/weir/pkg/kvstore"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect a pipeline's cache endpoints",
}

var cacheInspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print an endpoint's schema, indexes and record count",
	RunE:  runCacheInspect,
}

func init() {
	cacheCmd.AddCommand(cacheInspectCmd)
	cacheInspectCmd.Flags().StringP("pipeline", "p", "", "Path to the pipeline YAML file (required)")
	cacheInspectCmd.Flags().StringP("endpoint", "e", "", "Endpoint name to inspect (required)")
	cacheInspectCmd.MarkFlagRequired("pipeline")
	cacheInspectCmd.MarkFlagRequired("endpoint")
}

func runCacheInspect(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("pipeline")
	endpoint, _ := cmd.Flags().GetString("endpoint")

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load pipeline %s: %w", path, err)
	}

	env, err := kvstore.OpenEnv(filepath.Join(cfg.DataDir, "cache.db"), kvstore.DefaultEnvOptions())
	if err != nil {
		return fmt.Errorf("open kv env: %w", err)
	}
	defer env.Close()

	c, err := cache.OpenExisting(env, endpoint, cache.Config{})
	if err != nil {
		return fmt.Errorf("open endpoint %q: %w", endpoint, err)
	}
	defer c.Close()

	tx, err := kvstore.BeginRO(env)
	if err != nil {
		return err
	}
	defer tx.Abort()
	count, err := c.Records().Count(tx)
	if err != nil {
		return fmt.Errorf("count records: %w", err)
	}

	schema := c.Schema()
	fmt.Printf("Endpoint %q (schema %s v%d)\n", c.Endpoint(), schema.ID, schema.Version)
	fmt.Printf("  Records: %d\n", count)
	fmt.Println("  Fields:")
	for i, f := range schema.Fields {
		pk := ""
		for _, p := range schema.PrimaryIndex {
			if p == i {
				pk = " [primary key]"
			}
		}
		nullable := ""
		if f.Nullable {
			nullable = " nullable"
		}
		fmt.Printf("    %-20s %-10s%s%s\n", f.Name, f.Type, nullable, pk)
	}
	if indexes := c.Indexes(); len(indexes) > 0 {
		fmt.Println("  Indexes:")
		for i, idx := range indexes {
			fmt.Printf("    #%d kind=%s fields=%v\n", i, indexKindName(idx.Kind), idx.FieldIndices)
		}
	}
	return nil
}

func indexKindName(k cache.IndexKind) string {
	if k == cache.FullText {
		return "full_text"
	}
	return "sorted_inverted"
}
