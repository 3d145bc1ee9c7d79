package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newLoadCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "load <simulator_id>",
		Short: "Load datapoints into a simulator from a JSON file",
		Long:  "Reads a JSON array from --file and loads each element as one datapoint payload. Array order fixes delivery order.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			raw, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read %s: %w", file, err)
			}

			var payloads []json.RawMessage
			if err := json.Unmarshal(raw, &payloads); err != nil {
				return fmt.Errorf("parse %s: expected a JSON array: %w", file, err)
			}
			if len(payloads) == 0 {
				return fmt.Errorf("%s contains no datapoints", file)
			}

			body := make([]map[string]any, len(payloads))
			for i, p := range payloads {
				body[i] = map[string]any{"data": string(p)}
			}

			resp, err := client.Post("/api/v1/simulators/"+id+"/datapoints/", body)
			if err != nil {
				return fmt.Errorf("load datapoints: %w", err)
			}

			var data []map[string]any
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			fmt.Printf("Loaded %d datapoints into %s\n", len(data), id)
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "JSON file containing an array of payloads")
	cmd.MarkFlagRequired("file")
	return cmd
}
