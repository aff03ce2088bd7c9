package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/star/orbitscope/internal/propagation"
	"github.com/star/orbitscope/internal/transform"
)

var propagateCmd = &cobra.Command{
	Use:   "propagate",
	Short: "Propagate the catalog to one instant and print positions",
	Long: `
Propagate every tracked object to --at (default now) and print its TEME
position in km and its sub-satellite point.

Examples:
  orbitscope propagate
  orbitscope propagate --at 2025-01-01T00:00:00Z --json
`,
	Args: cobra.NoArgs,
	RunE: runPropagate,
}

func init() {
	propagateCmd.Flags().String("file", "", "read the catalog from a local 3-line TLE file")
	propagateCmd.Flags().String("at", "", "target time, RFC 3339 (default now)")
	propagateCmd.Flags().Bool("json", false, "print JSON instead of a table")
	propagateCmd.Flags().Int("workers", 0, "propagation workers (default: number of CPUs)")

	v.BindPFlag("propagation.workers", propagateCmd.Flags().Lookup("workers"))
}

type positionRow struct {
	NORADID      int        `json:"norad_id"`
	Name         string     `json:"name"`
	PositionKm   [3]float64 `json:"position_km"`
	VelocityKmS  [3]float64 `json:"velocity_km_s"`
	LatitudeDeg  float64    `json:"latitude_deg"`
	LongitudeDeg float64    `json:"longitude_deg"`
	AltitudeKm   float64    `json:"altitude_km"`
}

func runPropagate(cmd *cobra.Command, args []string) error {
	at := time.Now().UTC()
	if s, _ := cmd.Flags().GetString("at"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Errorf("invalid --at: %w", err)
		}
		at = t.UTC()
	}

	cfg, logger, err := setup(cmd, os.Stderr)
	if err != nil {
		return err
	}

	file, _ := cmd.Flags().GetString("file")
	ds, err := loadDataset(cmd.Context(), cfg, file, logger)
	if err != nil {
		return err
	}

	objects := propagation.BuildObjects(ds.Satellites, logger)
	pool := propagation.NewWorkerPool(cfg.Propagation.Workers, logger)
	positions, ok, failed := pool.PropagateBatch(cmd.Context(), objects, at)
	if err := cmd.Context().Err(); err != nil {
		return err
	}

	rows := make([]positionRow, len(positions))
	for i, p := range positions {
		geo := transform.TEMEToGeodetic(p.Position, at)
		rows[i] = positionRow{
			NORADID:      p.NORADID,
			Name:         p.Name,
			PositionKm:   p.Position,
			VelocityKmS:  p.Velocity,
			LatitudeDeg:  geo.LatitudeDeg,
			LongitudeDeg: geo.LongitudeDeg,
			AltitudeKm:   geo.AltitudeKm,
		}
	}

	logger.Info("propagation complete", "target_time", at.Format(time.RFC3339), "success", ok, "errors", failed)

	asJSON, _ := cmd.Flags().GetBool("json")
	return printPositions(cmd.OutOrStdout(), at, rows, asJSON)
}

func printPositions(w io.Writer, at time.Time, rows []positionRow, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"timestamp": at.Format(time.RFC3339),
			"frame":     "TEME",
			"count":     len(rows),
			"positions": rows,
		})
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "NORAD\tNAME\tX km\tY km\tZ km\tLAT\tLON\tALT km\t")
	for _, r := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%.1f\t%.1f\t%.1f\t%.2f\t%.2f\t%.1f\t\n",
			r.NORADID, r.Name,
			r.PositionKm[0], r.PositionKm[1], r.PositionKm[2],
			r.LatitudeDeg, r.LongitudeDeg, r.AltitudeKm,
		)
	}
	return tw.Flush()
}
