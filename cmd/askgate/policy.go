package main

import (
	"bytes"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/askgate/internal/fileutil"
	"github.com/ShayCichocki/askgate/internal/formatpolicy"
)

var policyOut string

var policyCmd = &cobra.Command{
	Use:   "policy <policy.yaml>",
	Short: "Report duplicates in a formatting policy",
	Long: `Look for duplicates in a formatting policy file:

  placeholders  the same placeholders[*].field (case and space insensitive)
  filters       the same key twice in the filters: block
  terms         the same (name, scope, version) term

The report is Markdown, printed or written to --out.

Exit codes: 0 clean, 1 the policy could not be loaded, 2 duplicates found.

Example:
  askgate policy data/policies/formatting.yaml --out out/policy_report.md`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := formatpolicy.Check(args[0])
		if err != nil {
			return &exitError{code: 1, err: err}
		}

		var buf bytes.Buffer
		if err := formatpolicy.WriteMarkdown(&buf, report); err != nil {
			return err
		}
		if policyOut != "" {
			if err := fileutil.WriteFileAtomic(policyOut, buf.Bytes(), 0644); err != nil {
				return err
			}
			if report.OK() {
				printOK(cmd.OutOrStdout(), "no duplicates; report written to "+policyOut)
			} else {
				printFail(cmd.OutOrStdout(), "duplicates found; report written to "+policyOut)
			}
		} else if _, err := cmd.OutOrStdout().Write(buf.Bytes()); err != nil {
			return err
		}

		if !report.OK() {
			return exitCode(2)
		}
		return nil
	},
}

func init() {
	policyCmd.Flags().StringVar(&policyOut, "out", "", "Write the Markdown report to this file")
}
