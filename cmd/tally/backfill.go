package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/tally/internal/backfill"
	"github.com/Veraticus/tally/internal/cli"
	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/quickbooks"
)

func backfillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Link stored records to QuickBooks transactions",
		Long: `Fetch every Bill, Purchase and Invoice from QuickBooks and link expenses and
revenues that have no external id yet, matching on date, amount and
counterparty name.

Runs as a dry run unless --commit is given. Committing only fills in missing
links and never changes an existing one, so it is safe to re-run.`,
		Args: cobra.NoArgs,
		RunE: runBackfill,
	}

	cmd.Flags().String("env", "", "QuickBooks environment: sandbox or production (default: quickbooks.environment)")
	cmd.Flags().Bool("commit", false, "write the links instead of previewing them")
	cmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation before committing")
	cmd.Flags().BoolP("verbose", "v", false, "list every link in the report")
	cmd.Flags().Float64("threshold", 0, "name similarity required for a link (default: matching.backfill_threshold)")

	_ = viper.BindPFlag("matching.backfill_threshold", cmd.Flags().Lookup("threshold"))

	return cmd
}

func runBackfill(cmd *cobra.Command, _ []string) error {
	envFlag, _ := cmd.Flags().GetString("env")
	commit, _ := cmd.Flags().GetBool("commit")
	yes, _ := cmd.Flags().GetBool("yes")
	verbose, _ := cmd.Flags().GetBool("verbose")

	env, err := providerEnvironment(envFlag)
	if err != nil {
		return err
	}
	if err := settings.QuickBooks.Validate(); err != nil {
		return common.NewUserError("QuickBooks client credentials are not configured", err)
	}

	ctx := cmd.Context()
	if commit && !yes {
		ok, err := cli.NewNonBlockingReader(cmd.InOrStdin()).Confirm(ctx, cmd.ErrOrStderr(),
			fmt.Sprintf("Write external ids for matched records in %s?", env))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("Nothing written."))
			return nil
		}
	}

	store, err := openStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	progress := cli.NewProgress(cmd.ErrOrStderr(), -1, "Reconciling records")
	engine := backfill.New(store,
		quickbooks.NewTokenManager(store, settings.QuickBooks),
		quickbooks.NewClient(settings.QuickBooks, store),
		backfill.Config{
			Threshold: settings.BackfillThreshold,
			DryRun:    !commit,
			OnRecord:  progress.Step,
		})

	interrupts := cli.NewInterruptHandler(cmd.ErrOrStderr(), "Backfill",
		"Links written so far are kept; re-run backfill to continue.")
	ctx, stop := interrupts.HandleInterrupts(ctx)
	defer stop()

	report, err := engine.Run(ctx, env)
	progress.Finish()
	if report != nil {
		if rerr := cli.RenderBackfillReport(cmd.OutOrStdout(), report, verbose); rerr != nil {
			return rerr
		}
	}
	if err != nil {
		return explainAuth(err, env)
	}
	return nil
}
