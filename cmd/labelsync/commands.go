package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/labelsync/internal/core"
	"github.com/JonMunkholm/labelsync/internal/fetch"
	"github.com/JonMunkholm/labelsync/internal/jobs"
)

var consolidateCmd = &cobra.Command{
	Use:   "consolidate <kind>",
	Short: "Merge downloaded exports of one kind (mails or revenue)",
	Args:  cobra.ExactArgs(1),
	RunE:  runConsolidate,
}

var (
	consolidateSource string
	consolidateOutput string
	consolidateBegin  string
	consolidateEnd    string
	consolidateStore  bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <kind>",
	Short: "Download exports of one kind for every artist in the roster",
	Args:  cobra.ExactArgs(1),
	RunE:  runFetch,
}

var (
	fetchForce       bool
	fetchConsolidate bool
	fetchBegin       string
	fetchEnd         string
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Unpack downloaded album archives into <artist>/<album> folders",
	Args:  cobra.NoArgs,
	RunE:  runExtract,
}

var reportCmd = &cobra.Command{
	Use:   "report <kind>",
	Short: "Rewrite the PDF summary of the newest consolidated file",
	Args:  cobra.ExactArgs(1),
	RunE:  runReport,
}

var allCmd = &cobra.Command{
	Use:   "all",
	Short: "Consolidate every kind concurrently",
	Args:  cobra.NoArgs,
	RunE:  runAll,
}

var (
	allFetch bool
	allForce bool
)

func init() {
	rootCmd.AddCommand(consolidateCmd, fetchCmd, extractCmd, reportCmd, allCmd)

	consolidateCmd.Flags().StringVar(&consolidateSource, "source", "", "Source root holding mails/ and revenues/ (default OUTPUT_DIR)")
	consolidateCmd.Flags().StringVar(&consolidateOutput, "output", "", "Directory for consolidated outputs (default the reports dir)")
	consolidateCmd.Flags().StringVar(&consolidateBegin, "begin", "", "Revenue window start, YYYY-MM-DD (default first of the month)")
	consolidateCmd.Flags().StringVar(&consolidateEnd, "end", "", "Revenue window end, YYYY-MM-DD (default last of the month)")
	consolidateCmd.Flags().BoolVar(&consolidateStore, "store", true, "Also write the relational store")

	fetchCmd.Flags().BoolVar(&fetchForce, "force", false, "Clear previous downloads and outputs and re-download")
	fetchCmd.Flags().BoolVar(&fetchConsolidate, "consolidate", false, "Consolidate after downloading")
	fetchCmd.Flags().StringVar(&fetchBegin, "begin", "", "Revenue window start, YYYY-MM-DD")
	fetchCmd.Flags().StringVar(&fetchEnd, "end", "", "Revenue window end, YYYY-MM-DD")

	allCmd.Flags().BoolVar(&allFetch, "fetch", false, "Download before consolidating")
	allCmd.Flags().BoolVar(&allForce, "force", false, "Clear previous downloads before fetching")
}

func runConsolidate(cmd *cobra.Command, args []string) error {
	kind, err := kindArg(args)
	if err != nil {
		return err
	}
	a, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.RunConfig(jobs.Options{Begin: consolidateBegin, End: consolidateEnd})
	if consolidateSource != "" {
		cfg.SourceDir = consolidateSource
	}
	if consolidateOutput != "" {
		cfg.OutputDir = consolidateOutput
	}

	rep, err := a.Consolidate(cmd.Context(), kind, cfg, consolidateStore)
	if rep != nil {
		printReport(cmd.OutOrStdout(), rep)
	}
	return err
}

func runFetch(cmd *cobra.Command, args []string) error {
	kind, err := kindArg(args)
	if err != nil {
		return err
	}
	a, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	opts := jobs.Options{Fetch: true, Force: fetchForce, Begin: fetchBegin, End: fetchEnd}
	if fetchConsolidate {
		rep, err := a.Execute(cmd.Context(), jobs.Request{Kind: kind, Options: opts})
		if rep != nil {
			printReport(cmd.OutOrStdout(), rep)
		}
		return err
	}

	cfg := a.RunConfig(opts)
	results, err := a.Fetch(cmd.Context(), kind, fetchForce, cfg.DateBegin, cfg.DateEnd)
	printFetch(cmd.OutOrStdout(), results)
	if err != nil {
		return err
	}
	if n := countFailed(results); n > 0 {
		return fmt.Errorf("%d of %d downloads failed", n, len(results))
	}
	return nil
}

func runExtract(cmd *cobra.Command, _ []string) error {
	a, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.Extract(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	var failed int
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(out, "FAIL  %s: %v\n", r.Archive, r.Err)
			continue
		}
		fmt.Fprintf(out, "ok    %s -> %s (%d files)\n", r.Archive, r.Destination, r.Files)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d archives failed", failed, len(results))
	}
	return nil
}

func runReport(cmd *cobra.Command, args []string) error {
	kind, err := kindArg(args)
	if err != nil {
		return err
	}
	a, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	path, err := a.Report(cmd.Context(), kind)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

func runAll(cmd *cobra.Command, _ []string) error {
	a, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	reports, err := a.RunAll(cmd.Context(), jobs.Options{Fetch: allFetch, Force: allForce})
	kinds := make([]string, 0, len(reports))
	for k := range reports {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		printReport(cmd.OutOrStdout(), reports[core.DatasetKind(k)])
	}
	return err
}

func printReport(w io.Writer, rep *core.RunReport) {
	fmt.Fprintf(w, "%s run %s\n", rep.Kind, rep.RunID)
	if rep.NothingToDo {
		fmt.Fprintln(w, "  no source files, nothing to do")
		return
	}
	fmt.Fprintf(w, "  files      %d of %d\n", rep.FilesProcessed, rep.FilesDiscovered)
	fmt.Fprintf(w, "  unique     %d\n", rep.UniqueIdentitiesOrRows)
	keys := make([]string, 0, len(rep.Totals))
	for k := range rep.Totals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %-10s %.2f\n", strings.TrimSuffix(k, "_revenue"), rep.Totals[k])
	}
	if rep.OutputFlatPath != "" {
		fmt.Fprintf(w, "  flat       %s\n", rep.OutputFlatPath)
	}
	if rep.OutputStorePath != "" {
		fmt.Fprintf(w, "  store      %s (%d rows)\n", rep.OutputStorePath, rep.StoreRowsWritten)
	}
	if len(rep.FailedFiles) > 0 {
		fmt.Fprintf(w, "  failed     %s\n", strings.Join(rep.FailedFiles, ", "))
	}
	if rep.Warnings > 0 {
		fmt.Fprintf(w, "  warnings   %d\n", rep.Warnings)
	}
}

func printFetch(w io.Writer, results []fetch.Result) {
	for _, r := range results {
		line := fmt.Sprintf("%-9s %s", r.Status, r.Artist)
		if r.Path != "" {
			line += " -> " + r.Path
		}
		if r.Err != nil {
			line += fmt.Sprintf(" (%v)", r.Err)
		}
		fmt.Fprintln(w, line)
	}
}

func countFailed(results []fetch.Result) int {
	var n int
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}
