package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/samber/lo"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"

	"github.com/canonical/dataclient"
	"github.com/canonical/dataclient/config"
)

func newQueryCommand(verbose *bool) *cobra.Command {
	var (
		configPath string
		source     string
		params     map[string]string
		procedure  bool
	)
	cmd := &cobra.Command{
		Use:   "query [flags] SQL",
		Short: "Run a query and print its rows",
		Example: `  dataclient query --source main "SELECT * FROM Staff WHERE Degree = @Degree" --param Degree=3
  dataclient query --procedure "usp_StaffByDegree" --param Degree=3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			ds, err := cfg.Source(source)
			if err != nil {
				return err
			}
			logger, err := newLogger(*verbose)
			if err != nil {
				return err
			}
			defer logger.Sync()

			client, err := dataclient.Open(ds, dataclient.WithLogger(logger))
			if err != nil {
				return err
			}
			defer client.Close()

			q := dataclient.Query{SQL: args[0]}
			if len(params) > 0 {
				m := make(dataclient.M, len(params))
				for k, v := range params {
					m[k] = v
				}
				q.Args = m
			}
			if procedure {
				q.Kind = dataclient.StoredProcedure
			}
			table, err := client.ExecuteTable(cmd.Context(), q)
			if err != nil {
				return err
			}
			return printTable(cmd.OutOrStdout(), table)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "dataclient.yaml", "configuration file")
	cmd.Flags().StringVarP(&source, "source", "s", "", "data source name (default: the configured default)")
	cmd.Flags().StringToStringVarP(&params, "param", "p", nil, "query parameter as name=value")
	cmd.Flags().BoolVar(&procedure, "procedure", false, "treat SQL as a stored procedure name")
	return cmd
}

// printTable writes table as padded columns under a header and a rule.
func printTable(w io.Writer, table *dataclient.DataTable) error {
	cells := make([][]string, len(table.Rows))
	widths := make([]int, len(table.Columns))
	for i, c := range table.Columns {
		widths[i] = len(c)
	}
	for i, row := range table.Rows {
		cells[i] = make([]string, len(row))
		for j, v := range row {
			cells[i][j] = formatValue(v)
			if j < len(widths) && len(cells[i][j]) > widths[j] {
				widths[j] = len(cells[i][j])
			}
		}
	}

	header := color.New(color.Bold, color.FgCyan)
	for i, c := range table.Columns {
		header.Fprint(w, padRight(c, widths[i]))
		if i < len(widths)-1 {
			fmt.Fprint(w, "  ")
		}
	}
	fmt.Fprintln(w)

	gray := color.New(color.FgHiBlack)
	for i, width := range widths {
		gray.Fprint(w, strings.Repeat("-", width))
		if i < len(widths)-1 {
			fmt.Fprint(w, "  ")
		}
	}
	fmt.Fprintln(w)

	for _, row := range cells {
		fmt.Fprintln(w, strings.TrimRight(strings.Join(lo.Map(row, func(cell string, i int) string {
			return padRight(cell, widths[i])
		}), "  "), " "))
	}
	_, err := color.New(color.Faint).Fprintf(w, "(%d rows)\n", len(table.Rows))
	return err
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

func formatValue(v any) string {
	if v == nil {
		return "NULL"
	}
	if b, ok := v.([]byte); ok {
		return fmt.Sprintf("0x%x", b)
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return s
}
