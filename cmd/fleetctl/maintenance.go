package main

import (
	"context"
	"fmt"
	"io"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/fleetworks/fleet-api/internal/db"
	"github.com/fleetworks/fleet-api/internal/mpg"
	"github.com/fleetworks/fleet-api/internal/store"
)

var mpgCompany int64

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the embedded database schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer client.Close()

		applied, err := db.Migrate(ctx, client.Wrapper().DB(), logger)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(applied) == 0 {
			fmt.Fprintln(out, "Nothing to migrate.")
			return nil
		}
		for _, v := range applied {
			fmt.Fprintf(out, "Migrated: %s\n", v)
		}
		return nil
	},
}

var computeMPGCmd = &cobra.Command{
	Use:   "compute-mpg",
	Short: "Recompute mpg for fuel fill-ups from odometer deltas",
	Long: `Walks each vehicle's fill-ups in date order and stores
(odometer - previous odometer) / gallons, rounded to two decimals, wherever
the distance and gallons are positive.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer client.Close()

		h := client.Wrapper()
		dash, closeCache := openDashboard(ctx, h)
		defer closeCache()

		return runComputeMPG(ctx, cmd.OutOrStdout(), mpg.NewRecomputer(store.New(h, logger), logger), dash, mpgCompany)
	},
}

type recomputer interface {
	Run(ctx context.Context, companyID int64) (int, error)
}

// dashboardCache drops cached dashboard views once a command has rewritten
// the figures behind them.
type dashboardCache interface {
	Invalidate(ctx context.Context, companyID int64) error
	InvalidateAll(ctx context.Context) error
}

// runComputeMPG recomputes one company, or every company when companyID is 0.
func runComputeMPG(ctx context.Context, out io.Writer, r recomputer, cache dashboardCache, companyID int64) error {
	fmt.Fprintln(out, "Computing MPG for fuel fillups...")
	n, err := r.Run(ctx, companyID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Done. MPG updated for %d records.\n", n)
	clearDashboard(ctx, out, cache, companyID)
	return nil
}

// clearDashboard reports a failed invalidation without failing the command;
// the cached views still expire on their own.
func clearDashboard(ctx context.Context, out io.Writer, cache dashboardCache, companyID int64) {
	var err error
	if companyID == 0 {
		err = cache.InvalidateAll(ctx)
	} else {
		err = cache.Invalidate(ctx, companyID)
	}
	if err != nil {
		fmt.Fprintf(out, "Warning: dashboard cache not cleared: %v\n", err)
	}
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print record counts and fuel economy coverage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer client.Close()

		st, err := collectStats(ctx, client.Wrapper())
		if err != nil {
			return err
		}
		st.print(cmd.OutOrStdout())
		return nil
	},
}

type fleetStats struct {
	Vehicles       int64    `db:"vehicles"`
	Drivers        int64    `db:"drivers"`
	Trips          int64    `db:"trips"`
	Expenses       int64    `db:"expenses"`
	Fillups        int64    `db:"fillups"`
	FillupsWithMPG int64    `db:"fillups_with_mpg"`
	AverageMPG     *float64 `db:"average_mpg"`
}

func collectStats(ctx context.Context, q sqlx.QueryerContext) (*fleetStats, error) {
	var st fleetStats
	err := sqlx.GetContext(ctx, q, &st, `
		SELECT
			(SELECT COUNT(*) FROM vehicles WHERE deleted_at IS NULL) AS vehicles,
			(SELECT COUNT(*) FROM drivers WHERE deleted_at IS NULL) AS drivers,
			(SELECT COUNT(*) FROM trips WHERE deleted_at IS NULL) AS trips,
			(SELECT COUNT(*) FROM expenses WHERE deleted_at IS NULL) AS expenses,
			(SELECT COUNT(*) FROM fuel_fillups WHERE deleted_at IS NULL) AS fillups,
			(SELECT COUNT(*) FROM fuel_fillups WHERE deleted_at IS NULL AND mpg > 0) AS fillups_with_mpg,
			(SELECT AVG(mpg) FROM fuel_fillups WHERE deleted_at IS NULL AND mpg > 0) AS average_mpg`)
	if err != nil {
		return nil, fmt.Errorf("collect stats: %w", err)
	}
	return &st, nil
}

func (st *fleetStats) print(out io.Writer) {
	fmt.Fprintln(out, "=== Database Record Counts ===")
	fmt.Fprintf(out, "Vehicles: %d\n", st.Vehicles)
	fmt.Fprintf(out, "Drivers: %d\n", st.Drivers)
	fmt.Fprintf(out, "Trips: %d\n", st.Trips)
	fmt.Fprintf(out, "Expenses: %d\n", st.Expenses)
	fmt.Fprintf(out, "Fuel Fillups: %d\n", st.Fillups)
	fmt.Fprintf(out, "Fuel Fillups with MPG: %d\n", st.FillupsWithMPG)
	if st.AverageMPG == nil {
		fmt.Fprintln(out, "Average MPG: N/A")
		return
	}
	fmt.Fprintf(out, "Average MPG: %.2f\n", mpg.Round(*st.AverageMPG, 2))
}
