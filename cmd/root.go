package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/foresight-go/cmd/models"
	"github.com/tphakala/foresight-go/cmd/serve"
	"github.com/tphakala/foresight-go/cmd/support"
	"github.com/tphakala/foresight-go/cmd/train"
	"github.com/tphakala/foresight-go/internal/buildinfo"
	"github.com/tphakala/foresight-go/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "foresight-go",
		Short:   "Foresight-Go sensor forecasting service",
		Version: fmt.Sprintf("%s (built %s)", buildinfo.Version, buildinfo.BuildDate),
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	rootCmd.AddCommand(
		serve.Command(settings),
		train.Command(settings),
		models.Command(settings),
		support.Command(settings),
	)

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}

	return nil
}
