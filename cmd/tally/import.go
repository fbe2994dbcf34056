package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/tally/internal/cli"
	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/importer"
	"github.com/Veraticus/tally/internal/model"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import an accounting export or bank OFX file",
		Long: `Parse a transaction export, match every row to a project, payee or client,
classify expenses and write the resulting records.

Rows that cannot be imported are listed in the report; the rest of the file is
still imported. Use --dry-run to preview the report without writing anything.`,
		Args: cobra.ExactArgs(1),
		RunE: runImport,
	}

	cmd.Flags().String("format", "", "input format: csv or ofx (default: from file extension)")
	cmd.Flags().Bool("dry-run", false, "show what would be imported without saving")
	cmd.Flags().Int("workers", 1, "rows processed concurrently")
	cmd.Flags().Bool("ofx-credits-as-revenue", false, "book OFX deposits as invoices")
	cmd.Flags().BoolP("verbose", "v", false, "list every entry in the report")

	_ = viper.BindPFlag("import.workers", cmd.Flags().Lookup("workers"))

	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	path := args[0]
	format, _ := cmd.Flags().GetString("format")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	creditsAsRevenue, _ := cmd.Flags().GetBool("ofx-credits-as-revenue")
	verbose, _ := cmd.Flags().GetBool("verbose")

	if format == "" {
		format = formatFromExtension(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var (
		export *importer.Export
		txns   []model.Transaction
	)
	switch format {
	case "csv":
		export, err = importer.ParseExport(f)
		if errors.Is(err, importer.ErrNoHeader) {
			return common.NewUserError("no header row with date, amount and name or type columns found", err)
		}
		if err != nil {
			return err
		}
		txns = export.Transactions
	case "ofx":
		txns, err = importer.ParseOFX(f, importer.OFXOptions{CreditsAsRevenue: creditsAsRevenue})
		if err != nil {
			return err
		}
	default:
		return common.NewUserError(fmt.Sprintf("unknown format %q (want csv or ofx)", format), nil)
	}

	ctx := cmd.Context()
	store, err := openStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	out := cmd.OutOrStdout()
	progress := cli.NewProgress(cmd.ErrOrStderr(), len(txns), "Importing rows")
	pipeline := importer.NewPipeline(store, importer.Config{
		Thresholds: settings.Thresholds,
		Workers:    settings.Workers,
		DryRun:     dryRun,
		OnRow:      progress.Step,
	})

	interrupts := cli.NewInterruptHandler(cmd.ErrOrStderr(), "Import",
		"Rows already written were kept; the report below covers only processed rows.")
	ctx, stop := interrupts.HandleInterrupts(ctx)
	defer stop()

	var report *importer.Report
	if export != nil {
		report, err = pipeline.Import(ctx, export)
	} else {
		report, err = pipeline.Run(ctx, txns)
	}
	progress.Finish()

	if errors.Is(err, common.ErrNoProjects) {
		return common.NewUserError("no projects exist yet; add one with `tally projects add`", err)
	}
	if report != nil {
		if rerr := cli.RenderImportReport(out, report, verbose); rerr != nil {
			return rerr
		}
	}
	return err
}

func formatFromExtension(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ofx", ".qfx":
		return "ofx"
	default:
		return "csv"
	}
}
