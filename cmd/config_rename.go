package cmd

import (
	"fmt"

	"github.com/brogergvhs/noveld/internal/config"

	"github.com/spf13/cobra"
)

var configRenameCmd = &cobra.Command{
	Use:   "rename <old_label> <new_label>",
	Short: "Give a scrape profile a new label; its settings and active state are kept",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		from, to := args[0], args[1]

		if err := config.RenameConfig(from, to); err != nil {
			return err
		}

		msg := fmt.Sprintf("Scrape profile %q is now %q", from, to)
		if active, _ := config.CurrentLabel(); active == to {
			msg += " (still active)"
		}
		fmt.Println(msg)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configRenameCmd)
}
