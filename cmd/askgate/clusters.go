package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/askgate/internal/cluster"
)

var (
	clustersIn          string
	clustersExportJSON  string
	clustersTop         int
	clustersExamples    int
	clustersMaxExamples int
)

var clustersCmd = &cobra.Command{
	Use:   "clusters",
	Short: "Group routing misses by (expected, got) entity",
	Long: `Read a routing miss report and split it into technical failures
(grouped by status reason) and routing clusters (grouped by expected and
chosen entity, "<none>" when absent). Clusters are ordered by size.

Examples:
  askgate clusters
  askgate clusters --top 10 --examples 3
  askgate clusters --export-json out/quality/clusters.json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		misses, err := cluster.LoadMisses(flagOr(clustersIn, cfg.Paths.Misses))
		if err != nil {
			return err
		}
		res := cluster.Build(misses, cluster.Options{MaxExamples: clustersMaxExamples})

		out := cmd.OutOrStdout()
		cluster.RenderSummary(out, res, clustersTop, clustersExamples)

		if clustersExportJSON != "" {
			if err := cluster.WriteExport(clustersExportJSON, res, time.Now()); err != nil {
				return err
			}
			printOK(out, "exported "+clustersExportJSON)
		}
		return nil
	},
}

func init() {
	f := clustersCmd.Flags()
	f.StringVar(&clustersIn, "in", "", "Miss report (default paths.misses)")
	f.StringVar(&clustersExportJSON, "export-json", "", "Also write the clusters as JSON")
	f.IntVar(&clustersTop, "top", cluster.DefaultTop, "Clusters shown in the table")
	f.IntVar(&clustersExamples, "examples", cluster.DefaultExampleClusters, "Clusters whose examples are printed")
	f.IntVar(&clustersMaxExamples, "max-examples", cluster.DefaultMaxExamples, "Examples kept per cluster")
}
