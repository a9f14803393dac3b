package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/momentics/hioload-tls/adapters"
	"github.com/momentics/hioload-tls/api"
	"github.com/momentics/hioload-tls/internal/certgen"
	"github.com/momentics/hioload-tls/lowlevel/server"
)

var (
	keyFile       string
	certFile      string
	watchIdentity bool
	maxConns      int
	statsEvery    time.Duration
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the echo server until SIGINT or SIGTERM",
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.Flags().StringVar(&keyFile, "key", "key.pem", "Private key (PEM), generated when missing")
	serverCmd.Flags().StringVar(&certFile, "cert", "cert.pem", "Certificate (PEM), generated when missing")
	serverCmd.Flags().BoolVar(&watchIdentity, "watch", false, "Reload key and certificate when the files change")
	serverCmd.Flags().IntVar(&maxConns, "max-conns", 0, "Connection limit (0 = unlimited)")
	serverCmd.Flags().DurationVar(&statsEvery, "stats", 30*time.Second, "Stats log interval (0 = off)")
}

func runServer(cmd *cobra.Command, _ []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}

	ep, err := endpoint()
	if err != nil {
		return err
	}

	var id api.Identity
	if useTLS {
		created, err := certgen.Ensure(keyFile, certFile, certgen.DefaultOptions())
		if err != nil {
			return fmt.Errorf("prepare identity: %w", err)
		}
		if created {
			log.Info("generated self-signed identity", "key", keyFile, "cert", certFile)
		}
		id = api.Identity{KeyFile: keyFile, CertFile: certFile}
	}

	cfg := server.DefaultConfig()
	cfg.Logger = log
	cfg.MaxConnections = maxConns
	cfg.WatchIdentity = watchIdentity

	ctrl := adapters.NewControlAdapter()
	srv := server.NewServer(cfg,
		server.WithControl(ctrl),
		server.WithMiddleware(
			adapters.LoggingMiddleware(log),
			adapters.MetricsMiddleware(ctrl),
		),
	)
	if err := srv.Open(ep, id); err != nil {
		return err
	}
	defer srv.Close()
	log.Info("echo server listening", "addr", srv.Addr().String(), "tls", useTLS)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var tick <-chan time.Time
	if statsEvery > 0 {
		t := time.NewTicker(statsEvery)
		defer t.Stop()
		tick = t.C
	}
	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			return nil
		case <-tick:
			log.Info("stats", "workers", srv.ActiveWorkers(), "values", ctrl.Stats())
		}
	}
}
