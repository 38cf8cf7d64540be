package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wbrown/horus-datalog/datalog/logging"
	"github.com/wbrown/horus-datalog/datalog/parser"
	"github.com/wbrown/horus-datalog/datalog/query"
	"github.com/wbrown/horus-datalog/horus"
)

func main() {
	rootCmd := newRootCmd()
	registerRunCmd(rootCmd)
	registerImportCmd(rootCmd)
	registerShowCmd(rootCmd)
	registerRelationsCmd(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "horus",
		Short:             "Detect attacks in Ethereum transaction traces",
		Long:              "Run a stratified Datalog program over trace facts and report the attacks it finds.",
		PersistentPreRunE: persistentPreRunE,
		SilenceUsage:      true,
	}

	rootCmd.PersistentFlags().String("log-level", "info", `verbosity of logging ("trace", "debug", "info", "warn", "error")`)
	rootCmd.PersistentFlags().String("program", "", "rule program YAML file (default: the built-in Horus rules)")

	return rootCmd
}

func persistentPreRunE(cmd *cobra.Command, _ []string) error {
	name, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return err
	}
	level, err := logging.ParseLevel(name)
	if err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}
	logging.SetGlobalLogger(logging.NewConsole(os.Stderr, level))
	return nil
}

// loadProgram reads --program, falling back to the embedded rules.
func loadProgram(cmd *cobra.Command) (*query.Program, error) {
	path, err := cmd.Flags().GetString("program")
	if err != nil {
		return nil, err
	}
	if path == "" {
		return horus.Program()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read program: %w", err)
	}
	prog, err := parser.ParseProgram(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return prog, nil
}
