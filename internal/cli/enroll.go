package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newEnrollCmd() *cobra.Command {
	var appName string

	cmd := &cobra.Command{
		Use:   "enroll <simulator_id> <student>",
		Short: "Enroll a student app in a simulator",
		Long:  "Enrolls a student's deployed app. Enrolling into a started simulator schedules the remaining deliveries from now at the run's interval.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, student := args[0], args[1]

			resp, err := client.Post("/api/v1/simulators/"+id+"/apps/", map[string]any{
				"student":  student,
				"app_name": appName,
			})
			if err != nil {
				return fmt.Errorf("enroll student: %w", err)
			}

			var data struct {
				App struct {
					ID string `json:"id"`
				} `json:"app"`
				Scheduled int `json:"scheduled"`
			}
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			fmt.Printf("Enrolled %s in %s (app %s)\n", student, id, data.App.ID)
			if data.Scheduled > 0 {
				fmt.Printf("  Scheduled %d deliveries\n", data.Scheduled)
			} else if appName == "" {
				fmt.Println("  No app name set; deliveries will not be scheduled until one is")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&appName, "app-name", "", "Deployed app name substituted into the endpoint template")
	return cmd
}
