package cmd

import (
	"fmt"

	"github.com/brogergvhs/noveld/internal/config"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage scrape profiles (volume size, pacing, output folders, default book)",
	Long: `Scrape profiles are YAML files holding the defaults download and serve start from.
Without a subcommand, config prints the settings a download would use right now:
the active profile merged over the built-in defaults.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, used, err := config.LoadMerged(config.Options{
			IgnoreConfig: flagIgnoreConfig,
			Debug:        flagDebug,
		})
		if err != nil {
			return err
		}

		if used == "" {
			fmt.Print("No active profile, built-in defaults:\n\n")
		} else {
			fmt.Printf("Using %s\n  [%s]\n\n", used, cfg.Summary())
		}
		cfg.Print()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
