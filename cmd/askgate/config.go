package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/askgate/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key]",
	Short: "Show the effective configuration",
	Long: `Show the effective askgate configuration after every layer is merged.

Without arguments, prints every key. With one argument, prints the value
of that dotted key. The token is always masked.

Examples:
  askgate config
  askgate config ask.base_url
  ASKGATE_ASK_BASE_URL=http://staging:8000 askgate config ask.base_url`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if len(args) == 1 {
			v, err := config.Value(cfg, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(out, v)
			return nil
		}

		values := config.Values(cfg)
		for _, k := range config.Keys(cfg) {
			fmt.Fprintf(out, "%s: %s\n", k, values[k])
		}
		return nil
	},
}
