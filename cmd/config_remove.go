package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/brogergvhs/noveld/internal/config"

	"github.com/spf13/cobra"
)

var forceRemove bool

var configRemoveCmd = &cobra.Command{
	Use:   "remove [label]",
	Short: "Delete a scrape profile; removing the active one falls back to the default profile",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		label := ""
		if len(args) == 1 {
			label = args[0]
		} else {
			picked, err := pickProfile("Scrape profile to delete")
			if err != nil {
				return err
			}
			label = picked
		}

		if !forceRemove {
			desc := label
			if path, err := config.ConfigPathByLabel(label); err == nil {
				if cfg, err := config.Load(path); err == nil {
					desc += " [" + cfg.Summary() + "]"
				}
			}
			if active, _ := config.CurrentLabel(); active == label {
				desc += ", the active profile"
			}

			fmt.Printf("Delete scrape profile %s? [y/N]: ", desc)
			resp, _ := bufio.NewReader(os.Stdin).ReadString('\n')
			if resp = strings.ToLower(strings.TrimSpace(resp)); resp != "y" && resp != "yes" {
				fmt.Println("Kept.")
				return nil
			}
		}

		switched, err := config.RemoveConfig(label)
		if err != nil {
			return err
		}

		fmt.Printf("Deleted scrape profile %q\n", label)
		if switched {
			fmt.Printf("download and serve now use %q\n", config.DefaultLabel)
		}
		return nil
	},
}

func init() {
	configRemoveCmd.Flags().BoolVarP(&forceRemove, "force", "f", false, "delete without asking")
	configCmd.AddCommand(configRemoveCmd)
}
