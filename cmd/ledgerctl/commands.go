package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/josh-kwaku/credit-ledger/internal/auth"
	"github.com/josh-kwaku/credit-ledger/internal/repository"
)

func (a *app) migrateCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply every pending up migration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			if dir == "" {
				dir = a.cfg.MigrationsDir
			}
			applied, err := repository.RunMigrations(cmd.Context(), db, dir)
			if err != nil {
				return err
			}
			for _, f := range applied {
				fmt.Fprintln(a.out, f)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "migrations directory (default $MIGRATIONS_DIR)")
	return cmd
}

func userFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVar(target, "user", "", "user id")
	_ = cmd.MarkFlagRequired("user")
}

func parseUser(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("--user: %w", err)
	}
	return id, nil
}

func (a *app) verifyCmd() *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Compare one account's stored balances with its ledger",
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID, err := parseUser(user)
			if err != nil {
				return err
			}
			manager, _, err := a.services(cmd.Context())
			if err != nil {
				return err
			}
			report, err := manager.VerifyConsistency(cmd.Context(), userID)
			if err != nil {
				return err
			}
			return a.print(report)
		},
	}
	userFlag(cmd, &user)
	return cmd
}

func (a *app) repairCmd() *cobra.Command {
	var (
		user   string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Correct an account's stored balances to match its ledger",
		Long: `repair appends reconciliation entries so the ledger sums and the stored
balances agree again. Run with --dry-run first to see what would change.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID, err := parseUser(user)
			if err != nil {
				return err
			}
			_, ops, err := a.services(cmd.Context())
			if err != nil {
				return err
			}
			report, err := ops.Repair(cmd.Context(), userID, dryRun)
			if err != nil {
				return err
			}
			return a.print(report)
		},
	}
	userFlag(cmd, &user)
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report the repair without writing it")
	return cmd
}

func (a *app) reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Verify every account and alert on drift",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, ops, err := a.services(cmd.Context())
			if err != nil {
				return err
			}
			res, err := ops.ReconcileAll(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.print(res); err != nil {
				return err
			}
			if len(res.InconsistentUserIDs) > 0 {
				return fmt.Errorf("%d inconsistent accounts", len(res.InconsistentUserIDs))
			}
			return nil
		},
	}
}

func (a *app) expireSubCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "expire-sub",
		Short: "Expire every remaining SUB balance",
		Long: `expire-sub zeroes the SUB category on every account that holds any. The
scheduler runs this on the first day of each month; use this command to
catch up after an outage.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, ops, err := a.services(cmd.Context())
			if err != nil {
				return err
			}
			res, err := ops.ExpireAllSubCredits(cmd.Context())
			if err != nil {
				return err
			}
			return a.print(res)
		},
	}
}

func (a *app) reportCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize one UTC day of ledger movement",
		RunE: func(cmd *cobra.Command, _ []string) error {
			day := time.Now().UTC().Truncate(24*time.Hour).Add(-24 * time.Hour)
			if date != "" {
				d, err := time.Parse(time.DateOnly, date)
				if err != nil {
					return fmt.Errorf("--date: %w", err)
				}
				day = d
			}
			_, ops, err := a.services(cmd.Context())
			if err != nil {
				return err
			}
			report, err := ops.DailyReport(cmd.Context(), day)
			if err != nil {
				return err
			}
			return a.print(report)
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day to report, YYYY-MM-DD (default yesterday)")
	return cmd
}

// tokenCmd mints an end-user JWT for local testing.
func (a *app) tokenCmd() *cobra.Command {
	var (
		user string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a user token signed with JWT_SECRET",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.JWTSecret == "" {
				return errors.New("JWT_SECRET is not set")
			}
			userID, err := parseUser(user)
			if err != nil {
				return err
			}
			token, err := auth.GenerateToken(userID, a.cfg.JWTSecret, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, token)
			return nil
		},
	}
	userFlag(cmd, &user)
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
