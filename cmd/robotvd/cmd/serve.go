package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pipelka/robotv-go/internal/channelcache"
	"github.com/pipelka/robotv-go/internal/config"
	"github.com/pipelka/robotv-go/internal/diagapi"
	"github.com/pipelka/robotv-go/internal/hostdb"
	"github.com/pipelka/robotv-go/internal/observability"
	"github.com/pipelka/robotv-go/internal/server"
	"github.com/pipelka/robotv-go/internal/version"
)

var (
	servePort           int
	serveStreamTimeout  int
	serveAllowListFile  string
	serveDevHost        bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the robotvd live-streaming server",
	Long: `Start the robotvd TCP server.

The server accepts connections on the configured port, authenticates
them against an allow-list, and relays live MPEG transport streams to
clients that open a channel stream. Without --dev-host, it expects to
be embedded in a host process that supplies channels, timers, and
recordings through the internal hostapi.Host interface; with
--dev-host, it boots the internal/hostdb reference implementation
instead, which is useful for local development and integration tests.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "port to listen on (overrides config)")
	serveCmd.Flags().IntVarP(&serveStreamTimeout, "stream-timeout", "t", 0, "idle session timeout in seconds (overrides config)")
	serveCmd.Flags().StringVar(&serveAllowListFile, "allowed-hosts-file", "", "path to the SVDRP-style allow-list file (overrides config)")
	serveCmd.Flags().BoolVar(&serveDevHost, "dev-host", false, "boot the internal/hostdb reference host instead of requiring an embedding host process")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if logLevelFlag != "" {
		cfg.Logging.Level = logLevelFlag
	}
	if logFormatFlag != "" {
		cfg.Logging.Format = logFormatFlag
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if serveStreamTimeout != 0 {
		cfg.Server.StreamTimeout = config.Duration(time.Duration(serveStreamTimeout) * time.Second)
	}
	if serveAllowListFile != "" {
		cfg.Server.AllowListPath = serveAllowListFile
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	logger := observability.NewLogger(cfg.Logging)
	observability.SetDefault(logger)

	logger.Info("starting robotvd",
		slog.String("version", version.Version),
		slog.String("listen_addr", cfg.Server.Address()),
		slog.Bool("dev_host", serveDevHost),
	)

	if !serveDevHost {
		return fmt.Errorf("serve: no embedding host process detected; pass --dev-host to run the reference host for local development")
	}

	db, err := hostdb.Open(cfg.HostDB, logger)
	if err != nil {
		return fmt.Errorf("opening host database: %w", err)
	}
	defer db.Close()

	host := hostdb.New(db)
	cache := channelcache.New(host)
	defer cache.Shutdown()

	srvCfg := server.DefaultConfig()
	srvCfg.ListenAddr = cfg.Server.Address()
	srvCfg.AllowListPath = cfg.Server.AllowListPath
	srvCfg.AllowListReloadCron = cfg.Server.AllowListReloadCron
	srvCfg.SessionTimeout = time.Duration(cfg.Server.StreamTimeout)
	srvCfg.RingAudioSize = int(cfg.Relay.RingAudioSize)
	srvCfg.RingVideoSize = int(cfg.Relay.RingVideoSize)
	srvCfg.TimeshiftThreshold = int64(cfg.Relay.TimeshiftThreshold)
	// The original assigns the same -t/--stream-timeout value to both the
	// idle-session reaper and the channel-switch retry/signal-loss bound
	// (livestreamer.cpp's m_scanTimeout); do the same here.
	srvCfg.ScanTimeout = time.Duration(cfg.Server.StreamTimeout)

	srv := server.New(srvCfg, host, cache, logger)

	var diag *diagapi.Server
	if cfg.Diagnostics.Enabled {
		diag = diagapi.New(cfg.Diagnostics.Address, srv, version.Version, logger)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 2)

	go func() {
		if err := srv.ListenAndServe(); err != nil {
			errCh <- fmt.Errorf("TCP server: %w", err)
		}
	}()

	if diag != nil {
		go func() {
			if err := diag.ListenAndServe(); err != nil {
				errCh <- fmt.Errorf("diagnostics API: %w", err)
			}
		}()
	}

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("server failed", slog.String("error", err.Error()))
		cancel()
		srv.Stop()
		return err
	case <-ctx.Done():
	}

	srv.Stop()
	if diag != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := diag.Shutdown(shutdownCtx); err != nil {
			logger.Warn("diagnostics API shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}
