package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/star/orbitscope/internal/config"
)

var (
	v       = config.New()
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "orbitscope",
	Short: "Live 3D view of satellites propagated from a TLE catalog",
	Long: `
orbitscope fetches a three-line element set catalog (Celestrak Starlink by
default), propagates every tracked object with SGP4 and serves a browser scene
with one marker per object, updated by a server-side frame loop.

Configuration is read from defaults, then the config file (--config or
ORBITSCOPE_CONFIG), then ORBITSCOPE_* environment variables, then flags.
`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $ORBITSCOPE_CONFIG)")
	rootCmd.PersistentFlags().String("log-level", "debug", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().Int("max-objects", 50, "maximum tracked objects, 0 for no limit")
	rootCmd.PersistentFlags().Bool("no-fetch", false, "skip the network and use the disk cache only")

	v.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	v.BindPFlag("tracking.max_objects", rootCmd.PersistentFlags().Lookup("max-objects"))

	rootCmd.AddCommand(serveCmd, catalogCmd, propagateCmd)
}

// setup resolves configuration and returns a JSON logger writing to out.
func setup(cmd *cobra.Command, out io.Writer) (config.Config, *slog.Logger, error) {
	level := new(slog.LevelVar)
	level.Set(slog.LevelDebug)
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}))

	if err := config.ReadFile(v, cfgFile); err != nil {
		return config.Config{}, logger, err
	}

	cfg, err := config.Load(v, logger)
	if err != nil {
		return cfg, logger, err
	}
	level.Set(cfg.Log.Level)

	if noFetch, _ := cmd.Flags().GetBool("no-fetch"); noFetch {
		cfg.TLE.EnableFetch = false
	}

	return cfg, logger, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
