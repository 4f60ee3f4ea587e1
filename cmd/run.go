package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"pieces/internal/engine"
)

var payloadJSON string

var runCmd = &cobra.Command{
	Use:   "run <instance>",
	Short: "Invoke an enabled trigger instance once and print what it emits",
	Long: "Runs the trigger once. Polling triggers fetch and diff; webhook triggers relay the\n" +
		"payload given with --payload (inline JSON, or @file to read it from a file).",
	Args: cobra.ExactArgs(1),
	RunE: runInstance,
}

func init() {
	runCmd.Flags().StringVar(&payloadJSON, "payload", "", "webhook payload as JSON or @file")
	rootCmd.AddCommand(runCmd)
}

func readPayload(s string) (any, error) {
	if s == "" {
		return nil, nil
	}
	data := []byte(s)
	if path, ok := strings.CutPrefix(s, "@"); ok {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading payload file: %w", err)
		}
	}
	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parsing payload JSON: %w", err)
	}
	return payload, nil
}

func runInstance(cmd *cobra.Command, args []string) error {
	payload, err := readPayload(payloadJSON)
	if err != nil {
		return err
	}

	h, err := openHost(cmd.Context())
	if err != nil {
		return err
	}
	defer h.Close()

	inst, err := h.instance(args[0])
	if err != nil {
		return err
	}
	if err := engine.ValidateInstance(inst, h.registry); err != nil {
		return err
	}

	result, err := h.engine.Run(cmd.Context(), inst, payload)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
