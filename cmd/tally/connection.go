package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/tally/internal/cli"
	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/quickbooks"
)

func connectionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connection",
		Short: "Manage the QuickBooks OAuth connection",
	}
	cmd.PersistentFlags().String("env", "", "QuickBooks environment: sandbox or production (default: quickbooks.environment)")

	cmd.AddCommand(connectionStatusCmd())
	cmd.AddCommand(connectionRefreshCmd())
	cmd.AddCommand(connectionSetCmd())
	cmd.AddCommand(connectionLogCmd())
	return cmd
}

func connectionStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the active connection and token expiry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			envFlag, _ := cmd.Flags().GetString("env")
			env, err := providerEnvironment(envFlag)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			store, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			conn, err := store.GetActiveConnection(ctx, env)
			if err != nil {
				return explainAuth(fmt.Errorf("%w for %s: %v", common.ErrNoConnection, env, err), env)
			}

			now := time.Now()
			var b strings.Builder
			fmt.Fprintf(&b, "Environment:     %s\n", conn.Environment)
			fmt.Fprintf(&b, "Company (realm): %s\n", conn.RealmID)
			fmt.Fprintf(&b, "Access token:    expires %s (%s)\n",
				conn.TokenExpiresAt.Local().Format(time.RFC1123), until(now, conn.TokenExpiresAt))
			if !conn.RefreshTokenExpiresAt.IsZero() {
				fmt.Fprintf(&b, "Refresh token:   expires %s (%s)\n",
					conn.RefreshTokenExpiresAt.Local().Format(time.RFC1123), until(now, conn.RefreshTokenExpiresAt))
			}
			fmt.Fprintf(&b, "Last updated:    %s", conn.UpdatedAt.Local().Format(time.RFC1123))

			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderBox("QuickBooks connection", b.String()))
			if conn.ExpiresWithin(now, quickbooks.RefreshWindow) {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatWarning("Access token will be refreshed on next use."))
			}
			return nil
		},
	}
}

func connectionRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Exchange the refresh token for a new access token now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			envFlag, _ := cmd.Flags().GetString("env")
			env, err := providerEnvironment(envFlag)
			if err != nil {
				return err
			}
			if err := settings.QuickBooks.Validate(); err != nil {
				return common.NewUserError("QuickBooks client credentials are not configured", err)
			}

			ctx := cmd.Context()
			store, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			conn, err := quickbooks.NewTokenManager(store, settings.QuickBooks).Refresh(ctx, env)
			if err != nil {
				return explainAuth(err, env)
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf(
				"Refreshed; access token valid until %s", conn.TokenExpiresAt.Local().Format(time.RFC1123))))
			return nil
		},
	}
}

func connectionSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store tokens obtained from the QuickBooks authorization flow",
		Long: `Store a new QuickBooks connection for an environment, replacing the active one.
The tokens come from the OAuth authorization-code exchange, which happens
outside tally.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			envFlag, _ := cmd.Flags().GetString("env")
			env, err := providerEnvironment(envFlag)
			if err != nil {
				return err
			}
			access, _ := cmd.Flags().GetString("access-token")
			refresh, _ := cmd.Flags().GetString("refresh-token")
			realm, _ := cmd.Flags().GetString("realm-id")
			expiresIn, _ := cmd.Flags().GetDuration("expires-in")
			refreshExpiresIn, _ := cmd.Flags().GetDuration("refresh-expires-in")
			if expiresIn <= 0 {
				return common.NewUserError("--expires-in must be positive", fmt.Errorf("got %s", expiresIn))
			}

			now := time.Now()
			conn := &model.Connection{
				AccessToken:    access,
				RefreshToken:   refresh,
				RealmID:        realm,
				Environment:    env,
				TokenExpiresAt: now.Add(expiresIn),
			}
			if refreshExpiresIn > 0 {
				conn.RefreshTokenExpiresAt = now.Add(refreshExpiresIn)
			}

			ctx := cmd.Context()
			store, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.SaveConnection(ctx, conn); err != nil {
				return common.NewUserError("could not save connection", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf(
				"Connected %s company %s", env, realm)))
			return nil
		},
	}

	cmd.Flags().String("access-token", "", "OAuth access token")
	cmd.Flags().String("refresh-token", "", "OAuth refresh token")
	cmd.Flags().String("realm-id", "", "QuickBooks company (realm) id")
	cmd.Flags().Duration("expires-in", time.Hour, "access token lifetime")
	cmd.Flags().Duration("refresh-expires-in", 0, "refresh token lifetime, if known")
	_ = cmd.MarkFlagRequired("access-token")
	_ = cmd.MarkFlagRequired("refresh-token")
	_ = cmd.MarkFlagRequired("realm-id")

	return cmd
}

func connectionLogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show recent QuickBooks API calls",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")

			ctx := cmd.Context()
			store, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			entries, err := store.ListSyncLog(ctx, limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("No API calls recorded."))
				return nil
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cli.TableHeaderStyle.Render(fmt.Sprintf("%-20s %-11s %-12s %-8s %-8s %s",
				"TIME", "ENV", "ENTITY", "DIR", "STATUS", "MS")))
			for _, e := range entries {
				line := fmt.Sprintf("%-20s %-11s %-12s %-8s %-8s %d",
					e.CreatedAt.Local().Format("2006-01-02 15:04:05"), e.Environment, e.EntityType,
					e.Direction, e.Status, e.DurationMs)
				if e.Status == model.SyncError {
					line = cli.ErrorStyle.Render(line)
					if e.ErrorMessage != nil {
						line += "\n    " + cli.SubtleStyle.Render(*e.ErrorMessage)
					}
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
	cmd.Flags().Int("limit", 20, "number of entries to show (0 for all)")
	return cmd
}

func until(now, t time.Time) string {
	d := t.Sub(now).Round(time.Minute)
	if d < 0 {
		return fmt.Sprintf("expired %s ago", -d)
	}
	return "in " + d.String()
}
