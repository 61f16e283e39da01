package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sahithikokkula/explorer/pkg/anonapi"
	"github.com/sahithikokkula/explorer/pkg/components"
	"github.com/sahithikokkula/explorer/pkg/explorer"
)

var (
	dataSource string
	table      string
	columns    []string
	only       []string
	seed       uint64
	jsonOutput bool
)

var (
	rootCmd = &cobra.Command{
		Use:   "explorer",
		Short: "Explore columns of an anonymized data source",
		Long: `explorer runs the column explorations against an anonymized query
service and prints the metrics they publish.`,
		SilenceUsage: true,
	}
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Explore one or more columns of a table",
		Example: `  explorer run --data-source banking --table loans --column amount
  explorer run --data-source banking --table loans --column amount --column duration --json`,
		RunE: runExploration,
	}
	dataSourcesCmd = &cobra.Command{
		Use:   "data-sources",
		Short: "List the data sources, tables and columns visible to the explorer",
		RunE:  runDataSources,
	}
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&dataSource, "data-source", "d", "", "data source to explore")
	runCmd.Flags().StringVarP(&table, "table", "t", "", "table to explore")
	runCmd.Flags().StringSliceVarP(&columns, "column", "c", nil, "column to explore, repeat for multi-column explorations")
	runCmd.Flags().StringSliceVar(&only, "only", nil, "run only the named components")
	runCmd.Flags().Uint64Var(&seed, "seed", 0, "seed for reproducible samples")
	runCmd.Flags().BoolVar(&jsonOutput, "json", false, "print the final result as JSON")
	_ = runCmd.MarkFlagRequired("data-source")
	_ = runCmd.MarkFlagRequired("table")
	_ = runCmd.MarkFlagRequired("column")

	rootCmd.AddCommand(dataSourcesCmd)
	dataSourcesCmd.Flags().BoolVar(&jsonOutput, "json", false, "print as JSON")
}

func runExploration(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	client := newClient()
	ec, err := explorer.BuildContext(ctx, client, client, dataSource, table, columns,
		explorer.ContextOptions{QueryTimeout: cfg.API.QueryTimeout})
	if err != nil {
		return err
	}
	build, err := components.NewRegistry(cfg.Components).Resolve(ec)
	if err != nil {
		return err
	}
	e := explorer.Run(ctx, ec, build, explorer.Options{
		Only:           only,
		Seed:           seed,
		MaxConcurrency: cfg.Explorer.MaxConcurrency,
		Logger:         logger,
	})

	out := cmd.OutOrStdout()
	if !jsonOutput {
		for m := range e.Updates(context.Background()) {
			printMetric(out, m)
		}
	}
	<-e.Done()
	res := e.Result()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	for _, msg := range res.Errors {
		fmt.Fprintf(cmd.ErrOrStderr(), "error: %s\n", msg)
	}
	fmt.Fprintf(out, "\nexploration %s: %s\n", res.ID, res.Status)
	if res.Status != explorer.StatusComplete {
		return fmt.Errorf("exploration finished with status %s", res.Status)
	}
	return nil
}

// printMetric writes a metric as "name = value", with the value in compact
// JSON.
func printMetric(w io.Writer, m explorer.Metric) {
	b, err := json.Marshal(m.Value)
	if err != nil {
		fmt.Fprintf(w, "%s = <%v>\n", m.Name, err)
		return
	}
	fmt.Fprintf(w, "%s = %s\n", m.Name, b)
}

func runDataSources(cmd *cobra.Command, args []string) error {
	sources, err := newClient().DataSources(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(sources)
	}
	return printDataSources(out, sources)
}

func printDataSources(w io.Writer, sources []anonapi.DataSource) error {
	sort.Slice(sources, func(i, j int) bool { return sources[i].Name < sources[j].Name })
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATA SOURCE\tTABLE\tCOLUMN\tTYPE\tFLAGS")
	for _, ds := range sources {
		for _, t := range ds.Tables {
			for _, c := range t.Columns {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", ds.Name, t.ID, c.Name, c.Type, columnFlags(c))
			}
		}
	}
	return tw.Flush()
}

func columnFlags(c anonapi.Column) string {
	var flags []string
	if c.UserID {
		flags = append(flags, "user_id")
	}
	switch {
	case !c.Isolated.Checked:
		flags = append(flags, "isolation_unchecked")
	case c.Isolated.Isolating():
		flags = append(flags, "isolating")
	}
	return strings.Join(flags, ",")
}
