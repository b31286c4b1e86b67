package support

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/foresight-go/internal/conf"
	"github.com/tphakala/foresight-go/internal/datastore"
	"github.com/tphakala/foresight-go/internal/diagnostics"
)

// Command creates the support command for collecting a diagnostics archive.
func Command(settings *conf.Settings) *cobra.Command {
	var outputDir string

	cmd := &cobra.Command{
		Use:   "support",
		Short: "Collect a diagnostics archive for an issue report",
		Long:  "Write a zip archive with a system snapshot and a secret-redacted copy of the configuration, suitable for attaching to a bug report.",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("Collecting support data...")

			// The registry section is best-effort; a broken database is
			// often the very thing being reported.
			var store datastore.Interface
			if s, err := datastore.New(settings); err == nil {
				if openErr := s.Open(); openErr == nil {
					store = s
					defer func() { _ = s.Close() }()
				} else {
					fmt.Printf("Database unreachable, dump will omit registry state: %v\n", openErr)
				}
			}

			path, err := diagnostics.WriteSupportDump(settings, store, outputDir)
			if err != nil {
				return err
			}

			fmt.Printf("Support dump written to %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&outputDir, "dir", ".", "Directory to write the archive into")

	return cmd
}
