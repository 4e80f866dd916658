package cmd

import (
	"fmt"

	"github.com/brogergvhs/noveld/internal/config"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
)

var configSwitchCmd = &cobra.Command{
	Use:   "switch [label]",
	Short: "Make another scrape profile the active one used by download and serve",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		label := ""
		if len(args) == 1 {
			label = args[0]
		} else {
			picked, err := pickProfile("Scrape profile for download and serve")
			if err != nil {
				return err
			}
			label = picked
		}

		if err := config.SwitchConfig(label); err != nil {
			return err
		}

		path, err := config.ConfigPathByLabel(label)
		if err != nil {
			return err
		}
		cfg, err := config.Load(path)
		if err != nil {
			fmt.Printf("Active profile: %s (warning: %v)\n", label, err)
			return nil
		}
		fmt.Printf("Active profile: %s [%s]\n", label, cfg.Summary())
		return nil
	},
}

// pickProfile lists every profile with its scrape settings and returns the
// chosen label.
func pickProfile(label string) (string, error) {
	list, err := config.ListConfigs()
	if err != nil {
		return "", err
	}
	if len(list) == 0 {
		return "", fmt.Errorf("no scrape profiles found, create one with `noveld config add`")
	}

	items := make([]string, 0, len(list))
	for _, c := range list {
		item := c.Label
		if cfg, err := config.Load(c.Path); err == nil {
			item += "  [" + cfg.Summary() + "]"
		} else {
			item += "  [unreadable]"
		}
		if c.Active {
			item += "  *active*"
		}
		items = append(items, item)
	}

	prompt := promptui.Select{Label: label, Items: items, Size: 10}
	idx, _, err := prompt.Run()
	if err != nil {
		return "", fmt.Errorf("no profile selected: %w", err)
	}
	return list[idx].Label, nil
}

func init() {
	configCmd.AddCommand(configSwitchCmd)
}
