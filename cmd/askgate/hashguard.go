package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/askgate/internal/hashguard"
)

var hashguardCmd = &cobra.Command{
	Use:   "hashguard",
	Short: "Fingerprint data trees and detect drift",
}

var hashguardWriteCmd = &cobra.Command{
	Use:   "write <dir>...",
	Short: "Write <dir>/.hash with the SHA-256 of every file",
	Long: `Hash every regular file under each directory and write the result,
plus a tree digest over the sorted "path:digest" lines, to <dir>/.hash.

Example:
  askgate hashguard write data/entities data/ops/quality/payloads`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, root := range args {
			tree, err := hashguard.Write(root)
			if err != nil {
				return err
			}
			printOK(cmd.OutOrStdout(), fmt.Sprintf("%s: %d files, tree %s", root, len(tree.Files), tree.Tree[:12]))
		}
		return nil
	},
}

var hashguardCheckCmd = &cobra.Command{
	Use:   "check <dir>...",
	Short: "Compare directories with their recorded .hash",
	Long: `Rebuild the fingerprint of each directory and compare it with the
recorded .hash, listing added, removed and changed files. Exits 1 when any
directory drifted.

Example:
  askgate hashguard check data/entities`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		drifted := false
		for _, root := range args {
			drift, err := hashguard.Check(root)
			if err != nil {
				return err
			}
			if drift.Clean() {
				printOK(out, root+": in sync")
				continue
			}
			drifted = true
			printFail(out, root+": drifted")
			renderPaths(out, "added", drift.Added)
			renderPaths(out, "removed", drift.Removed)
			renderPaths(out, "changed", drift.Changed)
		}
		if drifted {
			return exitCode(1)
		}
		return nil
	},
}

func renderPaths(w io.Writer, title string, paths []string) {
	for _, p := range paths {
		fmt.Fprintf(w, "    %-8s %s\n", title, p)
	}
}

func init() {
	hashguardCmd.AddCommand(hashguardWriteCmd)
	hashguardCmd.AddCommand(hashguardCheckCmd)
}
