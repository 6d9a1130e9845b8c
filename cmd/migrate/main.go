package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"uspguard.org/internal/migrate"
	"uspguard.org/internal/obs"
)

func main() {
	var dsn string

	rootCmd := &cobra.Command{
		Use:           "uspguard-migrate",
		Short:         "Apply the USP catalog schema and seeds to PostgreSQL",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", os.Getenv("USPGUARD_PG_DSN"), "PostgreSQL DSN")

	run := func(name, short string, fn func(*migrate.Manager, context.Context) error) *cobra.Command {
		return &cobra.Command{
			Use:   name,
			Short: short,
			RunE: func(cmd *cobra.Command, args []string) error {
				if dsn == "" {
					return errors.New("missing DSN: provide via --dsn or USPGUARD_PG_DSN")
				}
				ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
				defer cancel()

				db, err := sql.Open("pgx", dsn)
				if err != nil {
					return fmt.Errorf("open db: %w", err)
				}
				defer db.Close()

				if err := fn(migrate.NewManager(db, nil), ctx); err != nil {
					return fmt.Errorf("migrate %s: %w", name, err)
				}
				return nil
			},
		}
	}

	rootCmd.AddCommand(
		run("up", "Apply pending migrations", (*migrate.Manager).Up),
		run("down", "Roll back the latest migration", (*migrate.Manager).Down),
		run("seed", "Load the USP catalog seed", (*migrate.Manager).Seed),
		run("status", "List applied migrations", func(m *migrate.Manager, ctx context.Context) error {
			history, err := m.Status(ctx)
			if err != nil {
				return err
			}
			for _, item := range history {
				fmt.Println(item)
			}
			return nil
		}),
	)

	if err := rootCmd.Execute(); err != nil {
		obs.Logger().Error().Err(err).Msg("migrate failed")
		os.Exit(1)
	}
}
