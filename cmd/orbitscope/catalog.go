package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/star/orbitscope/internal/config"
	"github.com/star/orbitscope/internal/tle"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Print the parsed catalog",
	Long: `
Fetch and parse the catalog the way the server does and print one line per
tracked object: NORAD ID, name and epoch.

Examples:
  # First 50 Starlink objects from Celestrak
  orbitscope catalog

  # Everything in a local file, as JSON
  orbitscope catalog --file starlink.tle --max-objects 0 --json
`,
	Args: cobra.NoArgs,
	RunE: runCatalog,
}

func init() {
	catalogCmd.Flags().String("file", "", "read the catalog from a local 3-line TLE file")
	catalogCmd.Flags().Bool("json", false, "print JSON instead of a table")
}

func runCatalog(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd, os.Stderr)
	if err != nil {
		return err
	}

	file, _ := cmd.Flags().GetString("file")
	ds, err := loadDataset(cmd.Context(), cfg, file, logger)
	if err != nil {
		return err
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	return printCatalog(cmd.OutOrStdout(), ds, asJSON)
}

// loadDataset reads the catalog from file when given, otherwise through a
// loader over the network and the disk cache.
func loadDataset(ctx context.Context, cfg config.Config, file string, logger *slog.Logger) (*tle.TLEDataset, error) {
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("reading catalog file: %w", err)
		}
		entries, err := tle.Parse(bytes.NewReader(data), cfg.Tracking, logger)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", file, err)
		}
		if len(entries) == 0 {
			return nil, fmt.Errorf("%s: %w", file, tle.ErrEmptyCatalog)
		}
		return tle.NewDataset("file:"+file, time.Now().UTC(), entries), nil
	}

	var fetcher *tle.Fetcher
	if cfg.TLE.EnableFetch {
		fetcher = tle.NewFetcher(cfg.TLE.SourceURL, logger, cfg.TLE.ExtraSourceURLs...)
	}
	cache := tle.NewCache(cfg.TLE.CacheDir, cfg.TLE.MaxFiles)
	loader := tle.NewLoader(fetcher, cache, tle.NewStore(), cfg.Tracking, logger)
	return loader.Load(ctx)
}

type catalogRow struct {
	NORADID int       `json:"norad_id"`
	Name    string    `json:"name"`
	Epoch   time.Time `json:"epoch"`
	Line1   string    `json:"line1"`
	Line2   string    `json:"line2"`
}

func printCatalog(w io.Writer, ds *tle.TLEDataset, asJSON bool) error {
	if asJSON {
		rows := make([]catalogRow, len(ds.Satellites))
		for i, e := range ds.Satellites {
			rows[i] = catalogRow{NORADID: e.NORADID, Name: e.Name, Epoch: e.Epoch, Line1: e.Line1, Line2: e.Line2}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"source":     ds.Source,
			"fetched_at": ds.FetchedAt.Format(time.RFC3339),
			"count":      len(rows),
			"objects":    rows,
		})
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NORAD\tNAME\tEPOCH")
	for _, e := range ds.Satellites {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", e.NORADID, e.Name, e.Epoch.Format(time.RFC3339))
	}
	fmt.Fprintf(tw, "\n%d objects from %s\n", len(ds.Satellites), ds.Source)
	return tw.Flush()
}
