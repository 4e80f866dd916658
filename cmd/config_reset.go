package cmd

import (
	"fmt"

	"github.com/brogergvhs/noveld/internal/config"

	"github.com/spf13/cobra"
)

var configResetCmd = &cobra.Command{
	Use:   "reset [label]",
	Short: "Reset the current (or named) config to default values",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			path string
			err  error
		)
		if len(args) == 1 {
			path, err = config.ConfigPathByLabel(args[0])
		} else {
			path, err = config.ActiveConfigPath()
		}
		if err != nil {
			return err
		}

		if err := config.SaveYAML(config.DefaultConfig(), path); err != nil {
			return err
		}

		fmt.Printf("Reset config: %s\n", path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configResetCmd)
}
