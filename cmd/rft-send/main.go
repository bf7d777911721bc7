// Command rft-send reads a whole file and drives internal/sender.Engine
// until every frame has been acknowledged by a waiting rft-recv peer.
package main

import (
	"context"
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
	"github.com/kestrelnet/rft/internal/congestion"
	"github.com/kestrelnet/rft/internal/fileio"
	"github.com/kestrelnet/rft/internal/handshake"
	"github.com/kestrelnet/rft/internal/metrics"
	"github.com/kestrelnet/rft/internal/sender"
	"github.com/kestrelnet/rft/internal/transport"
)

const version = "0.1.0"

var (
	configPath string
	filePath   string
	dialAddr   string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "rft-send",
	Short: "Send a whole file to a waiting rft-recv peer over UDP",
	RunE:  runSend,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file (defaults apply if omitted)")
	rootCmd.Flags().StringVarP(&filePath, "file", "f", "", "path to the file to send (required)")
	rootCmd.Flags().StringVarP(&dialAddr, "dial", "d", "", "receiver address host:port (overrides config.dial)")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.MarkFlagRequired("file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runSend(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if dialAddr != "" {
		cfg.Dial = dialAddr
	}
	if cfg.Dial == "" {
		return fmt.Errorf("rft-send: no receiver address given (set --dial or config.dial)")
	}

	log := newLogger(cfg.LogLevel, verbose)

	data, err := fileio.ReadFile(filePath)
	if err != nil {
		return err
	}

	remote, err := net.ResolveUDPAddr("udp", cfg.Dial)
	if err != nil {
		return fmt.Errorf("rft-send: resolve %s: %w", cfg.Dial, err)
	}

	ch, err := transport.DialUDP(remote)
	if err != nil {
		return err
	}
	defer ch.Close()

	eng := &sender.Engine{
		Logger:      log,
		DataSize:    cfg.Transfer.DataSize,
		LoopIdle:    time.Duration(cfg.Sender.LoopIdleMs) * time.Millisecond,
		TimerDriven: cfg.Sender.TimerDriven,
		RTTFloor:    time.Duration(cfg.RTT.FloorMs) * time.Millisecond,
		RTTCeil:     time.Duration(cfg.RTT.CeilMs) * time.Millisecond,
		Cubic: congestion.Params{
			C:        cfg.Cubic.C,
			Beta:     cfg.Cubic.Beta,
			MaxCwnd:  float64(cfg.Cubic.MaxCwnd),
			InitCwnd: float64(cfg.Cubic.InitCwnd),
		},
	}

	var bundle *metrics.Bundle
	if cfg.Metrics.Enabled {
		bundle = metrics.NewBundle(cfg.Metrics.Listen, cfg.Metrics.Path, "/healthz", false)
		eng.Metrics = bundle.Metrics
		bundle.AttachTransferStats(eng)
		bundle.Server.SetHealthCheck(func() metrics.HealthStatus {
			sendBase, total := eng.Progress()
			progress := fmt.Sprintf("%d/%d frames acked", sendBase, total)
			return metrics.TransferHealth(version, false, eng.InRecovery(), progress)
		})
		if err := bundle.Server.Start(context.Background()); err != nil {
			log.WithError(err).Warn("rft-send: metrics server failed to start")
		} else {
			defer bundle.Server.Stop()
		}
	}

	sessionID := uuid.New()
	session, err := handshake.Announce(ch, handshake.RoleSender, sessionID, 500*time.Millisecond, time.Now().Add(30*time.Second))
	if err != nil {
		return fmt.Errorf("rft-send: handshake: %w", err)
	}
	log.WithField("session", session.ID).Info("rft-send: handshake complete")

	done := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Warn("rft-send: signal received, aborting transfer")
		close(done)
	}()

	log.WithField("bytes", len(data)).Info("rft-send: sending")
	if err := eng.Send(done, ch, data); err != nil {
		return fmt.Errorf("rft-send: %w", err)
	}
	log.Info("rft-send: transfer complete")
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
