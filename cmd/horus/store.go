package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/wbrown/horus-datalog/datalog"
	"github.com/wbrown/horus-datalog/datalog/executor"
	"github.com/wbrown/horus-datalog/datalog/logging"
	"github.com/wbrown/horus-datalog/datalog/query"
	"github.com/wbrown/horus-datalog/datalog/relation"
	"github.com/wbrown/horus-datalog/datalog/storage"
)

func registerImportCmd(rootCmd *cobra.Command) {
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "copy .facts inputs into a database",
		Long:  "Load every input relation of the program from .facts files and store it in a badger database.",
		Args:  cobra.NoArgs,
		RunE:  runImport,
	}

	importCmd.Flags().String("facts", "", "directory of tab-separated .facts input files")
	importCmd.Flags().String("db", "", "badger database to write")
	_ = importCmd.MarkFlagRequired("facts")
	_ = importCmd.MarkFlagRequired("db")

	rootCmd.AddCommand(importCmd)
}

func registerShowCmd(rootCmd *cobra.Command) {
	showCmd := &cobra.Command{
		Use:   "show RELATION...",
		Short: "print stored relations as tables",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runShow,
	}

	showCmd.Flags().String("db", "", "badger database to read")
	showCmd.Flags().Int("limit", 1000, "maximum rows per relation (0 prints all)")
	_ = showCmd.MarkFlagRequired("db")

	rootCmd.AddCommand(showCmd)
}

func registerRelationsCmd(rootCmd *cobra.Command) {
	relationsCmd := &cobra.Command{
		Use:   "relations",
		Short: "list the program's relations",
		Long:  "List the relations the program declares, or with --db the relations stored in a database.",
		Args:  cobra.NoArgs,
		RunE:  runRelations,
	}

	relationsCmd.Flags().String("db", "", "list the relations stored in this database instead")

	rootCmd.AddCommand(relationsCmd)
}

func runImport(cmd *cobra.Command, _ []string) error {
	factsDir, _ := cmd.Flags().GetString("facts")
	dbPath, _ := cmd.Flags().GetString("db")

	prog, err := loadProgram(cmd)
	if err != nil {
		return err
	}
	// compiling resolves the schemas and index orders
	plan, err := executor.Compile(prog, nil, executor.DefaultOptions())
	if err != nil {
		return err
	}

	store, err := storage.NewBadgerStore(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	facts := storage.NewFactDir(factsDir)
	var errs []error
	for _, name := range prog.RelationsWithRole(query.Input) {
		rel, _ := plan.Relation(name)
		if err := facts.Load(cmd.Context(), rel, plan.Symbols()); err != nil {
			logging.Warn().Err(err).Str("relation", name).Msg("skipping relation")
			errs = append(errs, err)
			continue
		}
		if err := store.Emit(cmd.Context(), rel, plan.Symbols()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%-16s %12s tuples\n", name, humanize.Comma(int64(rel.Size())))
		rel.Purge()
	}
	return errors.Join(errs...)
}

func runShow(cmd *cobra.Command, args []string) error {
	dbPath, _ := cmd.Flags().GetString("db")
	limit, _ := cmd.Flags().GetInt("limit")

	store, err := storage.NewBadgerStore(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	symbols := datalog.NewSymbolTable()
	formatter := storage.NewTableFormatter()
	formatter.MaxRows = limit
	sink := &storage.TableSink{W: cmd.OutOrStdout(), Formatter: formatter}

	for _, name := range args {
		schema, err := store.Schema(name)
		if err != nil {
			return err
		}
		rel, err := relation.New(schema)
		if err != nil {
			return err
		}
		if err := store.Load(cmd.Context(), rel, symbols); err != nil {
			return err
		}
		if err := sink.Emit(cmd.Context(), rel, symbols); err != nil {
			return err
		}
	}
	return nil
}

func runRelations(cmd *cobra.Command, _ []string) error {
	dbPath, _ := cmd.Flags().GetString("db")
	formatter := &storage.TableFormatter{}

	if dbPath != "" {
		store, err := storage.NewBadgerStore(dbPath)
		if err != nil {
			return err
		}
		defer store.Close()

		stored, err := store.Relations()
		if err != nil {
			return err
		}
		var rows [][]string
		for _, r := range stored {
			rows = append(rows, []string{r.Name, columnList(r.Columns), humanize.Comma(int64(r.Tuples))})
		}
		fmt.Fprintln(cmd.OutOrStdout(), formatter.Format([]string{"relation", "columns", "tuples"}, rows))
		return nil
	}

	prog, err := loadProgram(cmd)
	if err != nil {
		return err
	}
	plan, err := executor.Compile(prog, nil, executor.DefaultOptions())
	if err != nil {
		return err
	}

	var rows [][]string
	for _, decl := range prog.Relations {
		rel, _ := plan.Relation(decl.Name)
		var orders []string
		for _, order := range rel.Orders() {
			orders = append(orders, fmt.Sprint(order))
		}
		rows = append(rows, []string{
			decl.Name,
			decl.Role.String(),
			fmt.Sprint(rel.Arity()),
			columnList(decl.Columns),
			strings.Join(orders, " "),
		})
	}
	fmt.Fprintln(cmd.OutOrStdout(), formatter.Format([]string{"relation", "role", "arity", "columns", "indices"}, rows))
	return nil
}

func columnList(cols []datalog.Column) string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.String()
	}
	return strings.Join(names, ", ")
}
