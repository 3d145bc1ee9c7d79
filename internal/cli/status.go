package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <simulator_id>",
		Short: "Show a simulator and its delivery progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			resp, err := client.Get("/api/v1/simulators/" + id)
			if err != nil {
				return fmt.Errorf("get simulator: %w", err)
			}

			var data map[string]any
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			name, _ := data["name"].(string)
			status, _ := data["status"].(string)
			endpoint, _ := data["endpoint"].(string)

			fmt.Printf("Simulator: %s\n", id)
			fmt.Printf("  Name:     %s\n", name)
			fmt.Printf("  Status:   %s\n", status)
			fmt.Printf("  Endpoint: %s\n", endpoint)
			if starts, ok := data["starts"].(string); ok && starts != "" {
				fmt.Printf("  Starts:   %s\n", starts)
			}
			if ends, ok := data["ends"].(string); ok && ends != "" {
				fmt.Printf("  Ends:     %s\n", ends)
			}

			sumResp, err := client.Get("/api/v1/simulators/" + id + "/due/summary")
			if err != nil {
				return fmt.Errorf("get due summary: %w", err)
			}

			var sum struct {
				Total   int `json:"total"`
				Due     int `json:"due"`
				Queued  int `json:"queued"`
				Success int `json:"success"`
				Fail    int `json:"fail"`
			}
			if err := json.Unmarshal(sumResp.Data, &sum); err != nil {
				return fmt.Errorf("parse summary: %w", err)
			}

			fmt.Printf("  Deliveries: %d total", sum.Total)
			if sum.Due > 0 {
				fmt.Printf(", %d due", sum.Due)
			}
			if sum.Queued > 0 {
				fmt.Printf(", %d queued", sum.Queued)
			}
			if sum.Success > 0 {
				fmt.Printf(", %d success", sum.Success)
			}
			if sum.Fail > 0 {
				fmt.Printf(", %d fail", sum.Fail)
			}
			fmt.Println()

			return nil
		},
	}
}
