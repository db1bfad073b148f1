package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"property-comparator/config"
	"property-comparator/utils"
)

var (
	cfg    *config.Config
	logger *utils.Logger

	sourceFlag string
	jsonFlag   bool
)

var rootCmd = &cobra.Command{
	Use:           "property-comparator",
	Short:         "Score, deduplicate and rank properties for side-by-side comparison",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return err
		}
		cfg = c

		l, err := utils.NewLoggerFromConfig(cfg.Log.Level, cfg.Log.Format)
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&sourceFlag, "source", "store", "property source: store or portal")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "print JSON instead of a table")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
