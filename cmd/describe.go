package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"pieces/internal/piece"
)

var describeCmd = &cobra.Command{
	Use:   "describe <piece>[/<trigger>]",
	Short: "Show the triggers of a piece, or the props of one trigger",
	Args:  cobra.ExactArgs(1),
	RunE:  describePiece,
}

func init() {
	rootCmd.AddCommand(describeCmd)
}

type propInfo struct {
	Name        string         `json:"name"`
	DisplayName string         `json:"display_name,omitempty"`
	Type        piece.PropType `json:"type"`
	Required    bool           `json:"required"`
	Dynamic     bool           `json:"dynamic_options,omitempty"`
	Description string         `json:"description,omitempty"`
}

type triggerInfo struct {
	Name        string         `json:"name"`
	DisplayName string         `json:"display_name"`
	Description string         `json:"description"`
	Strategy    piece.Strategy `json:"strategy"`
	Props       []propInfo     `json:"props"`
	Schema      map[string]any `json:"schema"`
	SampleData  any            `json:"sample_data,omitempty"`
}

func describeTrigger(t piece.Trigger) triggerInfo {
	meta := t.Meta()
	info := triggerInfo{
		Name:        meta.Name,
		DisplayName: meta.DisplayName,
		Description: meta.Description,
		Strategy:    meta.Strategy,
		Schema:      piece.Schema(meta.Props),
		SampleData:  meta.SampleData,
	}
	for _, d := range meta.Props {
		info.Props = append(info.Props, propInfo{
			Name:        d.Name,
			DisplayName: d.DisplayName,
			Type:        d.Type,
			Required:    d.Required,
			Dynamic:     d.Options != nil,
			Description: d.Description,
		})
	}
	return info
}

func describePiece(cmd *cobra.Command, args []string) error {
	pieceName, triggerName, _ := strings.Cut(args[0], "/")

	registry, err := defaultRegistry(cfg.PluginsDir)
	if err != nil {
		return err
	}
	p, ok := registry.Get(pieceName)
	if !ok {
		return fmt.Errorf("piece %q not found", pieceName)
	}

	var triggers []triggerInfo
	if triggerName != "" {
		t, err := registry.Trigger(pieceName, triggerName)
		if err != nil {
			return err
		}
		triggers = append(triggers, describeTrigger(t))
	} else {
		for _, t := range p.Triggers() {
			triggers = append(triggers, describeTrigger(t))
		}
	}

	if outputFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"name":         p.Name(),
			"display_name": p.DisplayName(),
			"triggers":     triggers,
		})
	}

	fmt.Printf("Piece:       %s (%s)\n", p.Name(), p.DisplayName())
	for _, t := range triggers {
		fmt.Printf("\nTrigger:     %s\n", t.Name)
		fmt.Printf("Name:        %s\n", t.DisplayName)
		fmt.Printf("Description: %s\n", t.Description)
		fmt.Printf("Strategy:    %s\n", t.Strategy)

		if len(t.Props) > 0 {
			fmt.Println("\nProps:")
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "  NAME\tTYPE\tREQUIRED\tDESCRIPTION")
			for _, prop := range t.Props {
				desc := prop.Description
				if prop.Dynamic {
					desc = strings.TrimSpace(desc + " (see: pieces options " + p.Name() + "/" + t.Name + " " + prop.Name + ")")
				}
				fmt.Fprintf(w, "  %s\t%s\t%v\t%s\n", prop.Name, prop.Type, prop.Required, desc)
			}
			if err := w.Flush(); err != nil {
				return err
			}
		}

		if triggerName != "" && t.SampleData != nil {
			sample, err := json.MarshalIndent(t.SampleData, "  ", "  ")
			if err != nil {
				return err
			}
			fmt.Printf("\nSample data:\n  %s\n", sample)
		}
	}
	return nil
}
