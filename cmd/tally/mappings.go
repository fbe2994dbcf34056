package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/tally/internal/cli"
	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
)

func mappingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mappings",
		Short: "Manage account-path to category overrides",
		Long: `Account mappings pin an accounting account path (e.g. "Job Expenses:Job Materials")
to an expense category. Active mappings take priority over every built-in rule.`,
	}
	cmd.AddCommand(mappingsListCmd())
	cmd.AddCommand(mappingsSetCmd())
	cmd.AddCommand(mappingsToggleCmd("disable", false))
	cmd.AddCommand(mappingsToggleCmd("enable", true))
	return cmd
}

func mappingsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List account mappings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			activeOnly, _ := cmd.Flags().GetBool("active")

			ctx := cmd.Context()
			store, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			mappings, err := store.ListAccountMappings(ctx, activeOnly)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(mappings) == 0 {
				fmt.Fprintln(out, cli.FormatInfo("No account mappings."))
				return nil
			}
			fmt.Fprintln(out, cli.TableHeaderStyle.Render(fmt.Sprintf("%-50s %-15s %s", "ACCOUNT", "CATEGORY", "ACTIVE")))
			for _, m := range mappings {
				line := fmt.Sprintf("%-50s %-15s %t", m.QBAccountFullPath, m.InternalCategory, m.IsActive)
				if !m.IsActive {
					line = cli.SubtleStyle.Render(line)
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
	cmd.Flags().Bool("active", false, "only show active mappings")
	return cmd
}

func mappingsSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <account-path> <category>",
		Short: "Create or update a mapping (and activate it)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			category, err := model.ParseCategory(args[1])
			if err != nil {
				return common.NewUserError("invalid category", err)
			}

			ctx := cmd.Context()
			store, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			mapping := &model.AccountMapping{
				QBAccountFullPath: args[0],
				InternalCategory:  category,
				IsActive:          true,
			}
			if err := store.UpsertAccountMapping(ctx, mapping); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("%s -> %s", args[0], category)))
			return nil
		},
	}
}

func mappingsToggleCmd(use string, active bool) *cobra.Command {
	verb := "Deactivate"
	if active {
		verb = "Reactivate"
	}
	return &cobra.Command{
		Use:   use + " <account-path>",
		Short: verb + " a mapping without deleting it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.SetAccountMappingActive(ctx, args[0], active); err != nil {
				return common.NewUserError(fmt.Sprintf("no mapping for %q", args[0]), err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("%sd %s", use, args[0])))
			return nil
		},
	}
}
