package models

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/foresight-go/internal/conf"
	"github.com/tphakala/foresight-go/internal/datastore"
)

// Command creates the models command for inspecting the model registry.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		tag   string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List models in the registry",
		Long:  "Show the active model for every sensor tag, or the full version history of one tag.",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := datastore.New(settings)
			if err != nil {
				return err
			}
			if err := store.Open(); err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if tag != "" {
				return printHistory(store, tag, limit)
			}
			return printActive(store)
		},
	}

	cmd.Flags().StringVar(&tag, "tag", "", "Show version history for one sensor tag")
	cmd.Flags().IntVar(&limit, "limit", 10, "Number of history versions to show")

	return cmd
}

func printActive(store datastore.Interface) error {
	active, err := store.ActiveModels()
	if err != nil {
		return err
	}
	if len(active) == 0 {
		fmt.Println("Registry is empty, no models promoted yet.")
		return nil
	}

	fmt.Printf("%-24s %-24s %8s %10s %9s  %s\n", "TAG", "KIND", "VERSION", "MAE", "SAMPLES", "DEPLOYED")
	for i := range active {
		m := &active[i]
		fmt.Printf("%-24s %-24s %8d %10.4f %9d  %s\n",
			m.Tag, m.Kind, m.Version, m.MAE, m.WindowSamples, deployedAt(m))
	}
	return nil
}

func printHistory(store datastore.Interface, tag string, limit int) error {
	history, err := store.ModelHistory(tag, limit)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		fmt.Printf("No models recorded for %s.\n", tag)
		return nil
	}

	fmt.Printf("History for %s, newest first:\n", tag)
	fmt.Printf("%8s %-24s %-7s %10s %9s  %s\n", "VERSION", "KIND", "ACTIVE", "MAE", "SAMPLES", "DEPLOYED")
	for i := range history {
		m := &history[i]
		activeMark := ""
		if m.Active {
			activeMark = "yes"
		}
		fmt.Printf("%8d %-24s %-7s %10.4f %9d  %s\n",
			m.Version, m.Kind, activeMark, m.MAE, m.WindowSamples, deployedAt(m))
	}
	return nil
}

func deployedAt(m *datastore.ModelRecord) string {
	if m.DeployedAt == nil {
		return "-"
	}
	return m.DeployedAt.Format(time.RFC3339)
}
