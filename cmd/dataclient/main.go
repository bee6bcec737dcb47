package main

import (
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// newRootCommand creates the root command
func newRootCommand() *cobra.Command {
	var verbose bool
	rootCmd := &cobra.Command{
		Use:   "dataclient",
		Short: "Run queries and preview generated SQL",
		Long: `dataclient runs ad hoc queries against configured data sources and prints
the SQL the data client generates for model reads and writes.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log every statement")

	rootCmd.AddCommand(newQueryCommand(&verbose))
	rootCmd.AddCommand(newGenerateCommand())
	return rootCmd
}

// newLogger returns a development logger when verbose, otherwise one that
// only reports problems.
func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}
