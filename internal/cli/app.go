package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/banking/fraud-dashboard/internal/analyzer"
	"github.com/banking/fraud-dashboard/internal/config"
	"github.com/banking/fraud-dashboard/internal/domain"
	"github.com/banking/fraud-dashboard/internal/report"
	"github.com/banking/fraud-dashboard/internal/service"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// App is the fraud-report command line
type App struct {
	rootCmd *cobra.Command
	out     io.Writer
}

type analyzeArgs struct {
	File        string
	AnalyzerURL string
	Timeout     time.Duration
	Out         string
	Locale      string
	Records     bool
	FlaggedOnly bool
	Verbose     bool
}

// NewApp builds the command tree
func NewApp(version string) *App {
	app := &App{out: os.Stdout}

	rootCmd := &cobra.Command{
		Use:           "fraud-report",
		Short:         "Analyze transaction CSVs and summarize fraud verdicts",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	analyzeCmd := &cobra.Command{
		Use:   "analyze <file.csv>",
		Short: "Upload a CSV to the analyzer and render the fraud report",
		Args:  cobra.ExactArgs(1),
		RunE:  app.runAnalyze,
	}
	analyzeCmd.Flags().String("analyzer-url", "", "Base URL of the analyzer service (default from config)")
	analyzeCmd.Flags().Duration("timeout", 0, "Analyzer request timeout (default from config)")
	analyzeCmd.Flags().StringP("out", "o", report.ExportFileName, "Path of the CSV export, empty to skip")
	analyzeCmd.Flags().String("locale", "", "Locale used to format numbers (default from config)")
	analyzeCmd.Flags().Bool("records", false, "Print the transaction table")
	analyzeCmd.Flags().Bool("flagged-only", false, "Limit the table and export to flagged transactions")
	analyzeCmd.Flags().BoolP("verbose", "v", false, "Log analyzer traffic to stderr")

	rootCmd.AddCommand(analyzeCmd)
	app.rootCmd = rootCmd
	return app
}

// ExecuteContext runs the CLI with the given arguments
func (app *App) ExecuteContext(ctx context.Context, args []string) error {
	app.rootCmd.SetArgs(args)
	return app.rootCmd.ExecuteContext(ctx)
}

// SetOutput redirects the rendered report
func (app *App) SetOutput(w io.Writer) {
	app.out = w
	app.rootCmd.SetOut(w)
}

func parseAnalyzeArgs(cmd *cobra.Command, args []string) analyzeArgs {
	analyzerURL, _ := cmd.Flags().GetString("analyzer-url")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	out, _ := cmd.Flags().GetString("out")
	locale, _ := cmd.Flags().GetString("locale")
	records, _ := cmd.Flags().GetBool("records")
	flaggedOnly, _ := cmd.Flags().GetBool("flagged-only")
	verbose, _ := cmd.Flags().GetBool("verbose")

	return analyzeArgs{
		File:        args[0],
		AnalyzerURL: analyzerURL,
		Timeout:     timeout,
		Out:         out,
		Locale:      locale,
		Records:     records,
		FlaggedOnly: flaggedOnly,
		Verbose:     verbose,
	}
}

func (app *App) runAnalyze(cmd *cobra.Command, args []string) error {
	a := parseAnalyzeArgs(cmd, args)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if a.AnalyzerURL != "" {
		cfg.Analyzer.BaseURL = a.AnalyzerURL
	}
	if a.Timeout > 0 {
		cfg.Analyzer.Timeout = a.Timeout
	}
	if a.Locale != "" {
		cfg.Report.Locale = a.Locale
	}

	logger := zap.NewNop()
	if a.Verbose {
		if logger, err = zap.NewDevelopment(); err != nil {
			return err
		}
	}
	defer logger.Sync()

	content, err := os.ReadFile(a.File)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", a.File, err)
	}

	svc := service.NewReportService(
		analyzer.NewClient(cfg.Analyzer),
		service.Options{Report: cfg.Report.Options()},
		logger,
	)
	defer svc.Close()

	sess := svc.CreateSession()
	if _, err := svc.SelectFile(sess.ID, filepath.Base(a.File), content); err != nil {
		return err
	}

	pterm.Info.WithWriter(app.out).Printfln("Analyzing %s with %s", filepath.Base(a.File), cfg.Analyzer.BaseURL)
	if _, err := svc.Analyze(cmd.Context(), sess.ID); err != nil {
		pterm.Error.WithWriter(app.out).Println(domain.AnalysisFailedMessage)
		return err
	}

	rep, err := svc.Report(sess.ID)
	if err != nil {
		return err
	}

	var filter report.Filter
	if a.FlaggedOnly {
		flagged := true
		filter.Flagged = &flagged
	}

	formatter := report.NewFormatter(cfg.Report.Locale)
	fmt.Fprintln(app.out, RenderSummary(formatter.Summary(rep.Summary)))
	fmt.Fprintln(app.out, RenderDistribution(rep.Distribution))
	fmt.Fprintln(app.out, RenderUsers(rep.ByUser))
	if a.Records {
		rows, err := svc.Records(sess.ID, filter)
		if err != nil {
			return err
		}
		fmt.Fprintln(app.out, RenderRecords(rows, formatter))
	}
	fmt.Fprintln(app.out, RenderNarrative(rep.Narrative))

	if a.Out == "" {
		return nil
	}
	exp, err := svc.Export(sess.ID, filter)
	if err != nil {
		return err
	}
	if err := os.WriteFile(a.Out, exp.Data, 0o644); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	pterm.Success.WithWriter(app.out).Printfln("Exported %d records to %s (sha256 %s)", exp.Records, a.Out, exp.Digest)
	return nil
}
