package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"pieces/internal/engine"
	"pieces/internal/types"
)

var lifecycleAll bool

var enableCmd = &cobra.Command{
	Use:   "enable [instance...]",
	Short: "Enable trigger instances (take a snapshot or register the webhook)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLifecycle(cmd.Context(), args, (*engine.Engine).Enable)
	},
}

var disableCmd = &cobra.Command{
	Use:   "disable [instance...]",
	Short: "Disable trigger instances (clear the snapshot or remove the webhook)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLifecycle(cmd.Context(), args, (*engine.Engine).Disable)
	},
}

func init() {
	enableCmd.Flags().BoolVar(&lifecycleAll, "all", false, "apply to every instance in the instances directory")
	disableCmd.Flags().BoolVar(&lifecycleAll, "all", false, "apply to every instance in the instances directory")
	rootCmd.AddCommand(enableCmd)
	rootCmd.AddCommand(disableCmd)
}

type lifecycleFunc func(*engine.Engine, context.Context, *types.InstanceDef) (*types.TriggerResult, error)

func runLifecycle(ctx context.Context, names []string, call lifecycleFunc) error {
	h, err := openHost(ctx)
	if err != nil {
		return err
	}
	defer h.Close()

	insts, err := h.selectInstances(names, lifecycleAll)
	if err != nil {
		return err
	}

	var (
		results []*types.TriggerResult
		failed  int
	)
	for _, inst := range insts {
		if err := engine.ValidateInstance(inst, h.registry); err != nil {
			return fmt.Errorf("instance %q: %w", inst.Name, err)
		}
		result, err := call(h.engine, ctx, inst)
		results = append(results, result)
		if err != nil {
			failed++
		}
	}

	if outputFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			if r.Status == types.StatusSuccess {
				fmt.Printf("%s %s %s\n", color.GreenString("✓"), r.Instance, color.HiBlackString("(%s, %dms)", r.Hook, r.DurationMs))
			} else {
				fmt.Printf("%s %s %s\n", color.RedString("✗"), r.Instance, color.RedString(r.Error))
			}
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d instance(s) failed", failed, len(results))
	}
	return nil
}
