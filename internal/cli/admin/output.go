package admin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func addOutputFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
}

// printOutput writes v as indented JSON when --output json is set and
// calls text otherwise.
func printOutput(cmd *cobra.Command, v interface{}, text func()) error {
	format, _ := cmd.Flags().GetString("output")
	if format != "json" {
		text()
		return nil
	}
	jsonBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	fmt.Println(string(jsonBytes))
	return nil
}

func withRuntime(ctx context.Context, opts runtimeOptions, fn func(rt *runtime) error) error {
	cfg, logger, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	rt, err := newRuntime(ctx, cfg, logger, opts)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(rt)
}
