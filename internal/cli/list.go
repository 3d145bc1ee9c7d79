package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List simulators",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/simulators/"
			if status != "" {
				path += "?status=" + status
			}
			resp, err := client.Get(path)
			if err != nil {
				return fmt.Errorf("list simulators: %w", err)
			}

			var data []map[string]any
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			if len(data) == 0 {
				fmt.Println("No simulators found.")
				return nil
			}

			fmt.Printf("%-40s  %-10s  %-20s  %s\n", "ID", "STATUS", "NAME", "ENDS")
			fmt.Printf("%-40s  %-10s  %-20s  %s\n", "----", "------", "----", "----")
			for _, sim := range data {
				id, _ := sim["id"].(string)
				st, _ := sim["status"].(string)
				name, _ := sim["name"].(string)
				ends, _ := sim["ends"].(string)
				fmt.Printf("%-40s  %-10s  %-20s  %s\n", id, st, name, ends)
			}

			if resp.Pagination != nil && resp.Pagination.HasMore {
				fmt.Printf("\n(%d of %d shown)\n", len(data), resp.Pagination.Total)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (stopped, start, started, paused, reset, ended)")
	return cmd
}
