package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// writeJSON writes v to the command's stdout as two-space indented JSON.
func writeJSON(cmd *cobra.Command, v any) error {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json output: %w", err)
	}
	payload = append(payload, '\n')
	_, err = cmd.OutOrStdout().Write(payload)
	return err
}
