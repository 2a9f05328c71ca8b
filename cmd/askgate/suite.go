package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/askgate/internal/suite"
)

var (
	suiteDir  string
	suiteGlob string
)

var suiteCmd = &cobra.Command{
	Use:   "suite",
	Short: "Work with suite JSON v2 files",
}

var suiteValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate every suite file against the v2 contract",
	Long: `Validate every *_suite.json file in the suite directory.

Each file must be a JSON object with a "suite" equal to its file stem and a
non-empty "payloads" list whose entries carry a non-empty question. The
legacy "samples" key is rejected. Violations of all files are reported
together; the command exits 1 when any file is invalid.

Examples:
  askgate suite validate
  askgate suite validate --dir data/ops/quality/payloads --glob 'fiis_*_suite.json'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := flagOr(suiteDir, cfg.Paths.SuiteDir)
		glob := flagOr(suiteGlob, cfg.Paths.SuiteGlob)

		report, err := suite.ValidateAll(dir, glob)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, f := range report.Files {
			if len(f.Violations) == 0 {
				printOK(out, fmt.Sprintf("%s (%s, %d payloads)", f.Path, f.Suite, f.Payloads))
				continue
			}
			printFail(out, f.Path)
			for _, v := range f.Violations {
				fmt.Fprintf(out, "    - %s\n", v)
			}
		}

		if !report.OK() {
			fmt.Fprintf(out, "%d violation(s) in %d file(s)\n", report.ViolationCount(), len(report.Files))
			return exitCode(1)
		}
		fmt.Fprintf(out, "%d suite file(s) valid\n", len(report.Files))
		return nil
	},
}

// flagOr returns v unless it is empty.
func flagOr(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func init() {
	suiteValidateCmd.Flags().StringVar(&suiteDir, "dir", "", "Suite directory (default paths.suite_dir)")
	suiteValidateCmd.Flags().StringVar(&suiteGlob, "glob", "", "Suite file glob (default paths.suite_glob)")

	suiteCmd.AddCommand(suiteValidateCmd)
}
