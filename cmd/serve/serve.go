package serve

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/foresight-go/internal/conf"
	"github.com/tphakala/foresight-go/internal/daemon"
)

// Command creates the serve command, the long-running service mode.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the retraining and forecasting service",
		Long:  "Start the training scheduler, the forecast pipeline, the drift monitor, and the HTTP API, and keep running until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := daemon.New(settings)
			if err != nil {
				return err
			}
			return d.Run(cmd.Context())
		},
	}

	// Set up flags specific to the 'serve' command
	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the serve command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().StringVar(&settings.Training.Schedule, "schedule", viper.GetString("training.schedule"), "Daily training time (HH:MM, 24-hour clock)")
	cmd.Flags().IntVar(&settings.Training.Workers, "workers", viper.GetInt("training.workers"), "Concurrent per-sensor training workers")
	cmd.Flags().BoolVar(&settings.Training.RunOnStart, "runonstart", viper.GetBool("training.runonstart"), "Run a training pass immediately at startup")
	cmd.Flags().StringVar(&settings.WebServer.Port, "port", viper.GetString("webserver.port"), "HTTP API port")
	cmd.Flags().BoolVar(&settings.Telemetry.Enabled, "telemetry", viper.GetBool("telemetry.enabled"), "Enable Prometheus telemetry endpoint")
	cmd.Flags().StringVar(&settings.Telemetry.Listen, "listen", viper.GetString("telemetry.listen"), "Listen address and port of telemetry endpoint")

	// Bind flags to the viper settings
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}

	return nil
}
