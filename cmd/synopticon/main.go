package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/michaelhil/synopticon-api-sub016/internal/config"
	"github.com/michaelhil/synopticon-api-sub016/internal/runtime"
)

const (
	appName = "synopticon"
	version = "v0.9.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339

	var (
		configPath string
		logLevel   string
		metricsOn  string
	)

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Multi-modal telemetry fusion and distribution runtime",
		Version: version,
		Long: `Synopticon ingests human sensing and simulator telemetry streams,
aligns them in time, fuses them into operator state estimates and
distributes both raw and fused data to downstream consumers.`,
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace|debug|info|warn|error)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the fusion runtime",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			setupLogging(cfg.LogLevel)
			return run(cfg, metricsOn)
		},
	}
	runCmd.Flags().StringVar(&configPath, "config", "", "path to YAML configuration")
	runCmd.Flags().StringVar(&metricsOn, "metrics-listen", "", "address for the prometheus endpoint, e.g. :9090")
	rootCmd.AddCommand(runCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s %s\n", appName, version)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

// setupLogging picks console output on a TTY and JSON otherwise.
func setupLogging(level string) {
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		log.Logger = log.Output(os.Stderr)
	}
	if lvl, err := zerolog.ParseLevel(level); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
}

func run(cfg config.Config, metricsAddr string) error {
	rt, err := runtime.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rt.Start(ctx); err != nil {
		return err
	}

	var metricsSrv *http.Server
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", rt.Metrics().Handler())
		metricsSrv = &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("metrics endpoint failed")
			}
		}()
		log.Info().Str("addr", metricsAddr).Msg("metrics endpoint up")
	}

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		metricsSrv.Shutdown(shutdownCtx)
		cancel()
	}
	rt.Stop()
	return nil
}
