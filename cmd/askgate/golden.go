package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/askgate/internal/golden"
)

var (
	goldenIn     string
	goldenOut    string
	goldenCheck  bool
	goldenDryRun bool
)

var goldenCmd = &cobra.Command{
	Use:   "golden",
	Short: "Normalize a golden YAML set into its canonical JSON",
	Long: `Normalize a golden YAML dataset into canonical JSON.

Every field is trimmed, samples are sorted by intent, entity and question
(case-insensitive) and the JSON is written with 2-space indentation.

Modes:
  (default)   write --out atomically
  --check     exit 1 when --out is not byte-identical to the rendering
  --dry-run   print a unified diff of the change and write nothing

Examples:
  askgate golden --in data/golden/routing.yaml --out data/golden/routing.json
  askgate golden --in data/golden/routing.yaml --out data/golden/routing.json --check`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		res, err := golden.Run(golden.Options{
			In:     goldenIn,
			Out:    goldenOut,
			Check:  goldenCheck,
			DryRun: goldenDryRun,
			Diff:   out,
			Logger: logger,
		})
		if err != nil {
			return err
		}

		switch {
		case goldenCheck && !res.UpToDate:
			printFail(out, fmt.Sprintf("%s is out of date; run askgate golden --in %s --out %s", goldenOut, goldenIn, goldenOut))
			return exitCode(1)
		case goldenCheck, goldenDryRun && res.UpToDate:
			printOK(out, fmt.Sprintf("%s up to date (%d samples)", goldenOut, res.Samples))
		case res.Written:
			printOK(out, fmt.Sprintf("wrote %s (%d samples)", goldenOut, res.Samples))
		}
		return nil
	},
}

func init() {
	goldenCmd.Flags().StringVar(&goldenIn, "in", "", "Golden YAML input")
	goldenCmd.Flags().StringVar(&goldenOut, "out", "", "Canonical JSON output")
	goldenCmd.Flags().BoolVar(&goldenCheck, "check", false, "Exit 1 when --out is outdated")
	goldenCmd.Flags().BoolVar(&goldenDryRun, "dry-run", false, "Print a unified diff instead of writing")
	goldenCmd.MarkFlagRequired("in")
	goldenCmd.MarkFlagRequired("out")
	goldenCmd.MarkFlagsMutuallyExclusive("check", "dry-run")
}
