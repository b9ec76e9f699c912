// Command olxwh loads OLX listing exports into staging and builds the
// listings star schema from them.
//
//	olxwh provision --config pipeline.json
//	olxwh stage     --config pipeline.json [--file export.csv]
//	olxwh transform --config pipeline.json [--lenient] [--workers N] [--status]
//	olxwh run       --config pipeline.json
//	olxwh validate  --config pipeline.json
//	olxwh probe     --file export.csv [--config pipeline.json]
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"olxwarehouse/internal/probe"
	"olxwarehouse/internal/staging"
	"olxwarehouse/internal/warehouse"
)

// globalFlags are the persistent flags shared by every subcommand.
type globalFlags struct {
	configPath     string
	verbose        bool
	logMode        string
	metricsBackend string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := runMain(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// runMain executes the CLI and returns the process exit code:
// 0 on success, 1 on a failed command, 2 on a usage error.
func runMain(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		if isUsageError(err) {
			return 2
		}
		return 1
	}
	return 0
}

type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func isUsageError(err error) bool {
	_, ok := err.(usageError)
	return ok
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:           "olxwh",
		Short:         "OLX listings warehouse ETL",
		Long:          "Stages OLX real-estate listing exports and builds the market, offer, date, location and property dimensions plus the offer snapshot fact.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "probe" {
				return nil
			}
			if g.configPath == "" {
				return usageError{msg: "usage: olxwh <command> --config path/to/pipeline.json"}
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", os.Getenv("OLXWH_CONFIG"), "pipeline config JSON path (env OLXWH_CONFIG)")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "enable debug logs")
	pf.StringVar(&g.logMode, "log-mode", "dev", "log encoder: dev or prod")
	pf.StringVar(&g.metricsBackend, "metrics-backend", "", "override metrics.backend (none, datadog)")

	root.AddCommand(
		createValidateCmd(g),
		createProvisionCmd(g),
		createStageCmd(g),
		createTransformCmd(g),
		createRunCmd(g),
		createProbeCmd(g),
	)
	return root
}

func createValidateCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the pipeline configuration and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(g.configPath, cmd.ErrOrStderr()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration is valid: %s\n", g.configPath)
			return nil
		},
	}
}

func createProvisionCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "provision",
		Short: "Create the staging, dimension, fact and ledger relations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), g, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			e, err := a.engine(transformOverrides{})
			if err != nil {
				return err
			}
			return e.Provision(cmd.Context())
		},
	}
}

func createStageCmd(g *globalFlags) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "stage",
		Short: "Load a listings export into the staging relation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), g, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			e, err := a.engine(transformOverrides{})
			if err != nil {
				return err
			}
			if err := e.Provision(cmd.Context()); err != nil {
				return err
			}
			rep, err := a.stage(cmd.Context(), file)
			if err != nil {
				return err
			}
			printIngest(cmd.OutOrStdout(), rep)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "export to load (overrides source.file.path)")
	return cmd
}

type transformOverrides struct {
	lenient bool
	workers int
}

func createTransformCmd(g *globalFlags) *cobra.Command {
	var (
		o      transformOverrides
		status bool
	)
	cmd := &cobra.Command{
		Use:   "transform",
		Short: "Build the dimensions and the fact relation from staging",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), g, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			e, err := a.engine(o)
			if err != nil {
				return err
			}
			if err := e.Provision(cmd.Context()); err != nil {
				return err
			}
			if status {
				st, err := e.Status(cmd.Context())
				if err != nil {
					return err
				}
				printStatus(cmd.OutOrStdout(), st)
				return nil
			}

			rep, err := e.Run(cmd.Context())
			printRun(cmd.OutOrStdout(), rep)
			return err
		},
	}
	f := cmd.Flags()
	f.BoolVar(&o.lenient, "lenient", false, "skip ambiguous fact matches instead of failing (overrides runtime.lenient)")
	f.IntVar(&o.workers, "workers", 0, "dimension builders to run concurrently (overrides runtime.dimension_workers)")
	f.BoolVar(&status, "status", false, "print the ledger state of every step and exit")
	return cmd
}

func createRunCmd(g *globalFlags) *cobra.Command {
	var o transformOverrides
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Provision, stage the configured export and transform it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			a, err := openApp(cmd.Context(), g, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			e, err := a.engine(o)
			if err != nil {
				return err
			}
			if err := e.Provision(cmd.Context()); err != nil {
				return err
			}

			ing, err := a.stage(cmd.Context(), "")
			if err != nil {
				return err
			}
			printIngest(cmd.OutOrStdout(), ing)

			rep, err := e.Run(cmd.Context())
			printRun(cmd.OutOrStdout(), rep)
			if err != nil {
				return err
			}
			a.log.Printf("completed in %s", time.Since(start).Truncate(time.Millisecond))
			return nil
		},
	}
	f := cmd.Flags()
	f.BoolVar(&o.lenient, "lenient", false, "skip ambiguous fact matches instead of failing (overrides runtime.lenient)")
	f.IntVar(&o.workers, "workers", 0, "dimension builders to run concurrently (overrides runtime.dimension_workers)")
	return cmd
}

func createProbeCmd(g *globalFlags) *cobra.Command {
	var (
		file string
		rows int
	)
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Sample an export and report how it maps onto the staging layout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opt := probe.Options{MaxRows: rows}
			if g.configPath != "" {
				p, err := loadConfig(g.configPath, cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				if file == "" && p.Source.File != nil {
					file = p.Source.File.Path
				}
				opt.Delimiter = p.Parser.Options.Rune("comma", ',')
				opt.HeaderMap = p.Parser.Options.StringMap("header_map")
			}
			if file == "" {
				return usageError{msg: "usage: olxwh probe --file path/to/export.csv"}
			}

			f, err := os.Open(file)
			if err != nil {
				return err
			}
			defer f.Close()

			res, err := probe.Probe(f, opt)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), res.Summary())
			if missing := res.MissingRequired(); len(missing) > 0 {
				return fmt.Errorf("export lacks required columns: %s", strings.Join(missing, ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "export to sample (defaults to source.file.path)")
	cmd.Flags().IntVar(&rows, "rows", probe.DefaultMaxRows, "records to sample")
	return cmd
}

func printIngest(w io.Writer, rep staging.IngestReport) {
	fmt.Fprintf(w, "staged=%d rejected=%d\n", rep.Staged, rep.Rejected)
}

func printRun(w io.Writer, rep warehouse.RunReport) {
	for _, s := range rep.Steps {
		if s.Step == "" {
			continue
		}
		state := "ok"
		if s.Skipped {
			state = "skipped"
		}
		fmt.Fprintf(w, "%-20s %-7s rows=%d\n", s.Step, state, s.Rows)
	}
	if rep.Facts.Seen > 0 {
		fmt.Fprintf(w, "facts seen=%d inserted=%d skipped=%d\n", rep.Facts.Seen, rep.Facts.Inserted, rep.Facts.SkippedTotal())
	}
}

func printStatus(w io.Writer, st []warehouse.StepStatus) {
	for _, s := range st {
		if s.Status == warehouse.StatusPending {
			fmt.Fprintf(w, "%-20s %s\n", s.Step, s.Status)
			continue
		}
		fmt.Fprintf(w, "%-20s %-9s rows=%d run=%s at=%s\n",
			s.Step, s.Status, s.Entry.RowsWritten, s.Entry.RunID, s.Entry.RecordedAt.Format(time.RFC3339))
	}
}
