package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/canonical/dataclient/dialect"
)

// Parameter prefixes match the ones the client binds model writes with.
const (
	columnPrefix    = "c_"
	conditionPrefix = "w_"
)

func newGenerateCommand() *cobra.Command {
	var (
		dialectName string
		table       string
		columns     []string
		where       []string
		skip, take  int
	)
	cmd := &cobra.Command{
		Use:       "generate select|insert|update|delete|upsert",
		Short:     "Print the SQL generated for a statement",
		Example:   `  dataclient generate select --dialect sqlite3 --table Staff --columns Id,Name,Degree --where Id`,
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"select", "insert", "update", "delete", "upsert"},
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := dialect.Get(dialectName)
			if err != nil {
				return err
			}
			if table == "" {
				return fmt.Errorf("--table must be set")
			}
			stmts, err := generate(d, args[0], table, columns, where, skip, take)
			if err != nil {
				return err
			}
			for _, stmt := range stmts {
				fmt.Fprintln(cmd.OutOrStdout(), stmt)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&dialectName, "dialect", "d", "tsql2005", "SQL dialect ("+strings.Join(dialect.Names(), ", ")+")")
	cmd.Flags().StringVarP(&table, "table", "t", "", "table name")
	cmd.Flags().StringSliceVar(&columns, "columns", nil, "columns to read or write")
	cmd.Flags().StringSliceVar(&where, "where", nil, "columns to match by equality")
	cmd.Flags().IntVar(&skip, "skip", 0, "rows to skip (select only)")
	cmd.Flags().IntVar(&take, "take", 0, "rows to return (select only)")
	return cmd
}

func generate(d dialect.Dialect, kind, table string, columns, where []string, skip, take int) ([]string, error) {
	if kind != "delete" && len(columns) == 0 {
		return nil, fmt.Errorf("--columns must be set for %s", kind)
	}
	switch kind {
	case "select":
		stmt := d.BuildSelect(table, columns, pairs(where, ""))
		if skip != 0 || take != 0 {
			if take <= 0 {
				take = -1
			}
			var err error
			if stmt, err = d.DecoratePageSelect(stmt, skip, take); err != nil {
				return nil, err
			}
		}
		return []string{stmt}, nil
	case "insert":
		return []string{d.BuildInsert(table, pairs(columns, columnPrefix))}, nil
	case "update":
		return []string{d.BuildUpdate(table, pairs(columns, columnPrefix), pairs(where, conditionPrefix))}, nil
	case "delete":
		return []string{d.BuildDelete(table, pairs(where, conditionPrefix))}, nil
	case "upsert":
		return d.BuildUpsert(table, pairs(columns, columnPrefix), pairs(where, conditionPrefix)), nil
	}
	return nil, fmt.Errorf("unknown statement kind %q", kind)
}

func pairs(columns []string, prefix string) []dialect.Pair {
	var out []dialect.Pair
	for _, c := range columns {
		out = append(out, dialect.Pair{Column: c, Param: prefix + c})
	}
	return out
}
