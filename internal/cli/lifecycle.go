package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start <simulator_id>",
		Short: "Request a simulator start",
		Long:  "Records a start request. The server's scheduler loop checks dispatch capacity, generates the delivery schedule, and moves the simulator to started.",
		Args:  cobra.ExactArgs(1),
		RunE:  lifecycleRunE("start"),
	}
}

func newPauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pause <simulator_id>",
		Short: "Pause a started simulator",
		Args:  cobra.ExactArgs(1),
		RunE:  lifecycleRunE("pause"),
	}
}

func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <simulator_id>",
		Short: "Request a simulator reset, deleting all scheduled deliveries and results",
		Args:  cobra.ExactArgs(1),
		RunE:  lifecycleRunE("reset"),
	}
}

func newEndCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "end <simulator_id>",
		Short: "End a started simulator, retaining recorded results",
		Args:  cobra.ExactArgs(1),
		RunE:  lifecycleRunE("end"),
	}
}

func lifecycleRunE(action string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		id := args[0]

		resp, err := client.Post("/api/v1/simulators/"+id+"/"+action, nil)
		if err != nil {
			return fmt.Errorf("%s simulator: %w", action, err)
		}

		var data map[string]any
		if err := json.Unmarshal(resp.Data, &data); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}

		status, _ := data["status"].(string)
		fmt.Printf("Simulator %s: %s\n", id, status)
		return nil
	}
}
