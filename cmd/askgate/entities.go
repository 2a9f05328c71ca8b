package main

import (
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/askgate/internal/entities"
	"github.com/ShayCichocki/askgate/internal/suite"
)

var (
	entitiesDir       string
	entitiesSuiteDir  string
	entitiesSuiteGlob string
	entitiesStrict    bool
)

var entitiesCmd = &cobra.Command{
	Use:   "entities",
	Short: "Report entity usage by the suites",
	Long: `List the entities of the YAML entity library with the number of suite
payloads that expect each one, the entities no suite uses, and the
entities suites expect that the library does not define.

With --strict, unknown entities exit 1.

Example:
  askgate entities --strict`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		suites, err := suite.LoadDir(flagOr(entitiesSuiteDir, cfg.Paths.SuiteDir), flagOr(entitiesSuiteGlob, cfg.Paths.SuiteGlob))
		if err != nil {
			return err
		}
		report, err := entities.BuildReport(flagOr(entitiesDir, cfg.Paths.EntitiesDir), suites)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		report.Render(out)
		if !report.OK() {
			if entitiesStrict {
				return exitCode(1)
			}
			printWarn(out, "suites reference unknown entities")
		}
		return nil
	},
}

func init() {
	entitiesCmd.Flags().StringVar(&entitiesDir, "dir", "", "Entity library directory (default paths.entities_dir)")
	entitiesCmd.Flags().StringVar(&entitiesSuiteDir, "suite-dir", "", "Suite directory (default paths.suite_dir)")
	entitiesCmd.Flags().StringVar(&entitiesSuiteGlob, "suite-glob", "", "Suite file glob (default paths.suite_glob)")
	entitiesCmd.Flags().BoolVar(&entitiesStrict, "strict", false, "Exit 1 when suites reference unknown entities")
}
