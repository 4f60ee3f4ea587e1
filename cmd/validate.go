package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"pieces/internal/engine"
	"pieces/internal/loader"
)

var validateCmd = &cobra.Command{
	Use:   "validate <instance-file>",
	Short: "Validate a YAML trigger instance file",
	Args:  cobra.ExactArgs(1),
	RunE:  validateInstance,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validateInstance(cmd *cobra.Command, args []string) error {
	path := args[0]

	inst, err := loader.LoadInstance(path)
	if err != nil {
		return err
	}

	registry, err := defaultRegistry(cfg.PluginsDir)
	if err != nil {
		return err
	}

	if err := engine.ValidateInstance(inst, registry); err != nil {
		return err
	}

	fmt.Println(color.GreenString("Instance %q is valid.", inst.Name))
	return nil
}
