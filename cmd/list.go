package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var listInstances bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List available triggers, or trigger instances with --instances",
	Args:  cobra.NoArgs,
	RunE:  listTriggers,
}

func init() {
	listCmd.Flags().BoolVar(&listInstances, "instances", false, "list trigger instances and whether they are enabled")
	rootCmd.AddCommand(listCmd)
}

func listTriggers(cmd *cobra.Command, args []string) error {
	if listInstances {
		return listInstanceStates(cmd)
	}

	registry, err := defaultRegistry(cfg.PluginsDir)
	if err != nil {
		return err
	}

	type triggerSummary struct {
		Piece       string `json:"piece"`
		Trigger     string `json:"trigger"`
		Strategy    string `json:"strategy"`
		DisplayName string `json:"display_name"`
	}
	var summaries []triggerSummary
	for _, name := range registry.List() {
		p, _ := registry.Get(name)
		for _, t := range p.Triggers() {
			meta := t.Meta()
			summaries = append(summaries, triggerSummary{
				Piece:       name,
				Trigger:     meta.Name,
				Strategy:    string(meta.Strategy),
				DisplayName: meta.DisplayName,
			})
		}
	}

	if outputFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summaries)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PIECE\tTRIGGER\tSTRATEGY\tDESCRIPTION")
	for _, s := range summaries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.Piece, s.Trigger, s.Strategy, s.DisplayName)
	}
	return w.Flush()
}

func listInstanceStates(cmd *cobra.Command) error {
	h, err := openHost(cmd.Context())
	if err != nil {
		return err
	}
	defer h.Close()

	type instanceSummary struct {
		Name    string `json:"name"`
		Piece   string `json:"piece"`
		Trigger string `json:"trigger"`
		Enabled bool   `json:"enabled"`
	}
	insts, err := h.selectInstances(nil, true)
	if err != nil {
		return err
	}
	var summaries []instanceSummary
	for _, inst := range insts {
		enabled, err := h.engine.IsEnabled(cmd.Context(), inst)
		if err != nil {
			return err
		}
		summaries = append(summaries, instanceSummary{
			Name:    inst.Name,
			Piece:   inst.Piece,
			Trigger: inst.Trigger,
			Enabled: enabled,
		})
	}

	if outputFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summaries)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tPIECE\tTRIGGER\tSTATE")
	for _, s := range summaries {
		state := color.HiBlackString("disabled")
		if s.Enabled {
			state = color.GreenString("enabled")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.Name, s.Piece, s.Trigger, state)
	}
	return w.Flush()
}
