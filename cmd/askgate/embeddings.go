package main

import (
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/askgate/internal/embhealth"
)

var (
	embManifest string
	embStore    string
)

var embeddingsCmd = &cobra.Command{
	Use:   "embeddings",
	Short: "Check the health of the embeddings store",
	Long: `Scan a JSONL embeddings store and compare it with its manifest:

  wrong_dim    vectors whose length differs from vector_dimension
  zero_or_nan  empty, all-zero or non-numeric vectors
  total        the manifest's declared chunk count, when present

Exits 0 only when every check passes. An unreadable manifest or an
unparseable store line also exits 1.

Example:
  askgate embeddings --manifest data/embeddings/manifest.json --store data/embeddings/store.jsonl`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := embhealth.Check(embManifest, embStore)
		if err != nil {
			return err
		}
		report.Render(cmd.OutOrStdout())
		if !report.OK() {
			return exitCode(1)
		}
		printOK(cmd.OutOrStdout(), "embeddings store healthy")
		return nil
	},
}

func init() {
	embeddingsCmd.Flags().StringVar(&embManifest, "manifest", "", "Embeddings manifest (JSON)")
	embeddingsCmd.Flags().StringVar(&embStore, "store", "", "Embeddings store (JSONL)")
	embeddingsCmd.MarkFlagRequired("manifest")
	embeddingsCmd.MarkFlagRequired("store")
}
