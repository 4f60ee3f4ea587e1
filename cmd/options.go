package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"pieces/internal/engine"
	"pieces/internal/loader"
	"pieces/internal/piece"
)

var (
	optionsProps    string
	optionsInstance string
)

var optionsCmd = &cobra.Command{
	Use:   "options <piece>/<trigger> <prop>",
	Short: "List the choices of a dropdown prop, loaded from the vendor",
	Long: "Loads dropdown choices such as Airtable bases and tables or Mailchimp audiences.\n" +
		"Props the lookup depends on (authentication, base) come from --props or from an instance file.",
	Args: cobra.ExactArgs(2),
	RunE: listOptions,
}

func init() {
	optionsCmd.Flags().StringVar(&optionsProps, "props", "{}", "JSON object of prop values")
	optionsCmd.Flags().StringVar(&optionsInstance, "instance", "", "instance file whose props to use")
	rootCmd.AddCommand(optionsCmd)
}

func listOptions(cmd *cobra.Command, args []string) error {
	pieceName, triggerName, ok := strings.Cut(args[0], "/")
	if !ok {
		return fmt.Errorf("expected <piece>/<trigger>, got %q", args[0])
	}
	propName := args[1]

	registry, err := defaultRegistry(cfg.PluginsDir)
	if err != nil {
		return err
	}
	t, err := registry.Trigger(pieceName, triggerName)
	if err != nil {
		return err
	}

	var def *piece.PropDef
	for i, d := range t.Meta().Props {
		if d.Name == propName {
			def = &t.Meta().Props[i]
			break
		}
	}
	if def == nil {
		return fmt.Errorf("%s has no prop %q", args[0], propName)
	}
	if def.Options == nil {
		return fmt.Errorf("prop %q has no dynamic options", propName)
	}

	props, err := optionProps()
	if err != nil {
		return err
	}

	opts, err := def.Options(cmd.Context(), props)
	if err != nil {
		return err
	}

	if outputFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(opts)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LABEL\tVALUE")
	for _, o := range opts {
		value, err := json.Marshal(o.Value)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\n", o.Label, value)
	}
	return w.Flush()
}

// optionProps resolves the props a lookup needs, with ${{ }} expressions expanded.
func optionProps() (piece.Props, error) {
	secrets, err := engine.LoadSecretsIfExists(cfg.SecretsFile)
	if err != nil {
		return nil, fmt.Errorf("loading secrets: %w", err)
	}

	if optionsInstance != "" {
		inst, err := loader.LoadInstance(optionsInstance)
		if err != nil {
			return nil, err
		}
		return engine.NewResolver(inst, secrets).ResolveMap(inst.Props)
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(optionsProps), &raw); err != nil {
		return nil, fmt.Errorf("parsing --props: %w", err)
	}
	return engine.NewResolver(nil, secrets).ResolveMap(raw)
}
