package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/okian/readq/internal/adapters/repository/sqlite"
	service "github.com/okian/readq/internal/app"
	"github.com/okian/readq/internal/config"
	"github.com/okian/readq/internal/domain/ordering"
	"github.com/okian/readq/internal/domain/types"
	"github.com/spf13/cobra"
)

var (
	errUserOrAll    = errors.New("exactly one of --user or --all is required")
	errInconsistent = errors.New("inconsistent ranks found")
)

// userScope holds the --user/--all flags shared by maintenance commands.
type userScope struct {
	user string
	all  bool
}

func (u *userScope) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&u.user, "user", "", "user whose reading list to process")
	cmd.Flags().BoolVar(&u.all, "all", false, "process every user with books")
}

func (u *userScope) users(ctx context.Context, svc *service.Service) ([]string, error) {
	if (u.user == "") == !u.all {
		return nil, errUserOrAll
	}
	if u.all {
		return svc.Users(ctx)
	}
	return []string{u.user}, nil
}

func (c *cli) resequenceCmd() *cobra.Command {
	var scope userScope
	cmd := &cobra.Command{
		Use:   "resequence",
		Short: "Rewrite queue ranks to a dense 1..K sequence",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			svc, closeStore, err := c.newService(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			var results []types.ResequenceResult
			switch {
			case (scope.user == "") == !scope.all:
				return errUserOrAll
			case scope.all:
				results, err = svc.ResequenceAll(ctx)
			default:
				var res types.ResequenceResult
				res, err = svc.Resequence(ctx, scope.user)
				results = append(results, res)
			}
			if err != nil {
				return err
			}
			for _, res := range results {
				if err := printJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
			}
			return nil
		},
	}
	scope.bind(cmd)
	return cmd
}

func (c *cli) auditCmd() *cobra.Command {
	var scope userScope
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Report duplicate or missing queue ranks without changing them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			svc, closeStore, err := c.newService(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			users, err := scope.users(ctx, svc)
			if err != nil {
				return err
			}
			consistent := true
			for _, user := range users {
				report, err := svc.Audit(ctx, user)
				if err != nil {
					return fmt.Errorf("audit %s: %w", user, err)
				}
				consistent = consistent && report.Consistent
				if err := printJSON(cmd.OutOrStdout(), auditLine{UserID: user, Report: report}); err != nil {
					return err
				}
			}
			if !consistent {
				return errInconsistent
			}
			return nil
		},
	}
	scope.bind(cmd)
	return cmd
}

type auditLine struct {
	UserID string `json:"user_id"`
	ordering.Report
}

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and print the schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if c.cfg.Storage != config.StorageSQLite {
				return fmt.Errorf("migrate needs sqlite storage, got %q", c.cfg.Storage)
			}
			store, err := sqlite.Open(ctx, c.cfg.SQLitePath, sqlite.WithLogger(c.log.Named("sqlite")))
			if err != nil {
				return fmt.Errorf("failed to open database %s: %w", c.cfg.SQLitePath, err)
			}
			defer store.Close()

			version, err := store.Version(ctx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
			return err
		},
	}
}

func printJSON(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}
