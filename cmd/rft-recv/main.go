// Command rft-recv listens for a sender and reassembles a whole file
// out of the DATA frames internal/receiver.Engine admits, writing the
// result to disk once the transfer is complete.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kestrelnet/rft/internal/config"
	"github.com/kestrelnet/rft/internal/fileio"
	"github.com/kestrelnet/rft/internal/handshake"
	"github.com/kestrelnet/rft/internal/metrics"
	"github.com/kestrelnet/rft/internal/receiver"
	"github.com/kestrelnet/rft/internal/transport"
)

const version = "0.1.0"

var (
	configPath string
	outPath    string
	listenAddr string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "rft-recv",
	Short: "Receive a whole file from an rft-send peer over UDP",
	RunE:  runRecv,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file (defaults apply if omitted)")
	rootCmd.Flags().StringVarP(&outPath, "out", "o", "", "path to write the received file to (required)")
	rootCmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "local address host:port to bind (overrides config.listen)")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.MarkFlagRequired("out")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runRecv(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.Listen = listenAddr
	}
	if cfg.Listen == "" {
		return fmt.Errorf("rft-recv: no listen address given (set --listen or config.listen)")
	}

	log := newLogger(cfg.LogLevel, verbose)

	local, err := net.ResolveUDPAddr("udp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("rft-recv: resolve %s: %w", cfg.Listen, err)
	}

	log.WithField("listen", cfg.Listen).Info("rft-recv: waiting for a sender")
	ch, err := transport.ListenUDP(local)
	if err != nil {
		return err
	}
	defer ch.Close()

	eng := &receiver.Engine{
		Logger:  log,
		AckIdle: time.Duration(cfg.Receiver.AckIdleMs) * time.Millisecond,
	}

	var bundle *metrics.Bundle
	if cfg.Metrics.Enabled {
		bundle = metrics.NewBundle(cfg.Metrics.Listen, cfg.Metrics.Path, "/healthz", false)
		eng.Metrics = bundle.Metrics
		bundle.AttachDedupStats(eng)
		bundle.Server.SetHealthCheck(func() metrics.HealthStatus {
			progress := fmt.Sprintf("%d frames received, %d confirmed duplicates", eng.Count(), eng.Duplicates())
			return metrics.TransferHealth(version, false, false, progress)
		})
		if err := bundle.Server.Start(context.Background()); err != nil {
			log.WithError(err).Warn("rft-recv: metrics server failed to start")
		} else {
			defer bundle.Server.Stop()
		}
	}

	sessionID := uuid.New()
	session, err := handshake.Announce(ch, handshake.RoleReceiver, sessionID, 500*time.Millisecond, time.Now().Add(30*time.Second))
	if err != nil {
		return fmt.Errorf("rft-recv: handshake: %w", err)
	}
	log.WithField("session", session.ID).Info("rft-recv: handshake complete")

	done := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Warn("rft-recv: signal received, aborting transfer")
		close(done)
	}()

	result, err := eng.Receive(done, ch)
	if err != nil {
		return fmt.Errorf("rft-recv: %w", err)
	}

	if err := fileio.WriteFile(outPath, result.Data); err != nil {
		return err
	}

	log.WithField("bytes", len(result.Data)).WithField("digest", hex.EncodeToString(result.Digest[:])).Info("rft-recv: transfer complete")
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.DefaultConfig(), nil
	}
	return config.Load(path)
}

func newLogger(level string, verbose bool) *logrus.Logger {
	log := logrus.New()
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	if verbose {
		lvl = logrus.DebugLevel
	}
	log.SetLevel(lvl)
	return log
}
