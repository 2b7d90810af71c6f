// Package main implements the patentrag command line: document translation,
// corpus indexing, terminology import and a NATS translation worker.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   "patentrag",
		Short: "Retrieval-augmented Japanese to Traditional Chinese patent translation",
		Long: `patentrag translates Japanese patent sections into Traditional Chinese.
Each section is grounded with similar historical translations from a Qdrant
index and matched domain terminology before a deterministic model call, and
is scored with a reproducible confidence value.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}
	cmd.PersistentFlags().StringVarP(&a.cfgPath, "config", "c", "", "config file path (YAML)")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error); overrides config")
	cmd.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "log format (text, json); overrides config")

	cmd.AddCommand(translateCmd(a), indexCmd(a), termsCmd(a), workerCmd(a))
	return cmd
}
