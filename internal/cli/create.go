package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newCreateCmd() *cobra.Command {
	var (
		capstone string
		endpoint string
		ends     string
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a simulator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			endsAt, err := time.Parse(time.RFC3339, ends)
			if err != nil {
				return fmt.Errorf("parse --ends: %w", err)
			}

			resp, err := client.Post("/api/v1/simulators/", map[string]any{
				"capstone": capstone,
				"name":     args[0],
				"endpoint": endpoint,
				"ends":     endsAt,
			})
			if err != nil {
				return fmt.Errorf("create simulator: %w", err)
			}

			var data map[string]any
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			id, _ := data["id"].(string)
			fmt.Printf("Simulator created: %s\n", id)
			fmt.Printf("  Name:     %s\n", args[0])
			fmt.Printf("  Endpoint: %s\n", endpoint)
			fmt.Printf("  Ends:     %s\n", endsAt.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&capstone, "capstone", "", "Capstone cohort identifier")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "Endpoint template containing {app_name}")
	cmd.Flags().StringVar(&ends, "ends", "", "End of the delivery window (RFC3339)")
	cmd.MarkFlagRequired("endpoint")
	cmd.MarkFlagRequired("ends")

	return cmd
}
