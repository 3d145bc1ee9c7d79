package cli

import (
	"log/slog"
	"os"

	"github.com/me/capsim/internal/logging"
	"github.com/spf13/cobra"
)

var (
	flagServer    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
	client *Client
)

// defaultServer returns the default server URL, checking CAPSIM_SERVER env var first.
func defaultServer() string {
	if s := os.Getenv("CAPSIM_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8080"
}

// NewRootCmd creates the root cobra command for the capsim CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "capsim",
		Short: "capsim sends scheduled prediction requests to capstone student apps",
		Long:  "capsim manages simulators that deliver datapoints to deployed student prediction apps on a fixed schedule and record the responses.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.New(logging.ParseLevel(flagLogLevel), flagLogFormat)
			client = NewClient(flagServer, logger)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagServer, "server", defaultServer(), "capsim server URL (or CAPSIM_SERVER env)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newCreateCmd(),
		newListCmd(),
		newStatusCmd(),
		newStartCmd(),
		newPauseCmd(),
		newResetCmd(),
		newEndCmd(),
		newLoadCmd(),
		newEnrollCmd(),
	)

	return root
}
