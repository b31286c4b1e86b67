package train

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/foresight-go/internal/conf"
	"github.com/tphakala/foresight-go/internal/daemon"
	"github.com/tphakala/foresight-go/internal/datastore"
	"github.com/tphakala/foresight-go/internal/orchestrator"
	"github.com/tphakala/foresight-go/internal/trainer"
)

// Command creates the train command, a single training pass run to
// completion in the foreground.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		tags  []string
		kinds []string
	)

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Run one training pass and exit",
		Long:  "Train, evaluate, and conditionally promote models for every eligible sensor, then print the run summary.",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := buildOptions(tags, kinds)
			if err != nil {
				return err
			}

			summary, err := daemon.TrainOnce(cmd.Context(), settings, opts)
			if summary != nil {
				printSummary(summary)
			}
			return err
		},
	}

	// Set up flags specific to the 'train' command
	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	cmd.Flags().StringSliceVar(&tags, "tags", nil, "Train only these sensor tags instead of discovering them")
	cmd.Flags().StringSliceVar(&kinds, "kinds", nil, "Model kinds to try (seasonal-regression, additive-decomposition, gradient-boosted)")

	return cmd
}

// setupFlags configures flags specific to the train command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().IntVar(&settings.Training.LookbackDays, "lookback", viper.GetInt("training.lookbackdays"), "Days of readings used as the training window")
	cmd.Flags().IntVar(&settings.Training.MinSamples, "minsamples", viper.GetInt("training.minsamples"), "Minimum readings a sensor needs to be trained")
	cmd.Flags().IntVar(&settings.Training.Workers, "workers", viper.GetInt("training.workers"), "Concurrent per-sensor training workers")

	// Bind flags to the viper settings
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}

	return nil
}

// buildOptions turns the tag and kind flags into run options; nil means the
// configured defaults apply.
func buildOptions(tags, kinds []string) (*orchestrator.RunOptions, error) {
	if len(tags) == 0 && len(kinds) == 0 {
		return nil, nil
	}

	opts := &orchestrator.RunOptions{Tags: tags}
	for _, k := range kinds {
		kind, err := trainer.ParseKind(k)
		if err != nil {
			return nil, err
		}
		opts.Kinds = append(opts.Kinds, kind)
	}
	return opts, nil
}

// printSummary writes a human-readable pass report to stdout.
func printSummary(s *orchestrator.Summary) {
	fmt.Printf("Run %s finished in %s\n", s.RunID, s.Duration().Round(time.Millisecond))
	fmt.Printf("  attempted: %d  promoted: %d  kept: %d  skipped: %d  failed: %d\n",
		s.Attempted, s.Promoted, s.Kept, s.Skipped, s.Failed)
	if s.Aborted {
		fmt.Printf("  aborted: %s\n", s.AbortReason)
	}

	for i := range s.Entities {
		e := &s.Entities[i]
		if e.Outcome == datastore.OutcomePromoted {
			fmt.Printf("  %-24s %-9s v%d %s mae=%.4f\n", e.Tag, e.Outcome, e.Version, e.Kind, e.MAE)
			continue
		}
		fmt.Printf("  %-24s %-9s %s\n", e.Tag, e.Outcome, e.Reason)
	}
}
