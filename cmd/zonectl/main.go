// Command zonectl is a small operator tool for a zoned block device
// core instance backed by a simulated device: it reports zone state,
// triggers a manual cleaning pass, and can run the metrics/monitor UI
// server standalone for local inspection.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/INLOpen/zonefs/config"
	"github.com/INLOpen/zonefs/device"
	"github.com/INLOpen/zonefs/hooks"
	"github.com/INLOpen/zonefs/sys"
	"github.com/INLOpen/zonefs/zbd"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	reportCmd := flag.NewFlagSet("report", flag.ExitOnError)
	reportConfigPath := reportCmd.String("config", "zonectl.yaml", "Path to the device config file.")
	reportDebugIO := reportCmd.Bool("debug-io", false, "Log every backing-file open/close call.")

	cleanCmd := flag.NewFlagSet("clean", flag.ExitOnError)
	cleanConfigPath := cleanCmd.String("config", "zonectl.yaml", "Path to the device config file.")
	cleanDebugIO := cleanCmd.Bool("debug-io", false, "Log every backing-file open/close call.")

	serveCmd := flag.NewFlagSet("serve", flag.ExitOnError)
	serveConfigPath := serveCmd.String("config", "zonectl.yaml", "Path to the device config file.")
	serveDebugIO := serveCmd.Bool("debug-io", false, "Log every backing-file open/close call.")

	var err error
	switch os.Args[1] {
	case "report":
		reportCmd.Parse(os.Args[2:])
		sys.SetDebugMode(*reportDebugIO)
		err = runReport(logger, *reportConfigPath)
	case "clean":
		cleanCmd.Parse(os.Args[2:])
		sys.SetDebugMode(*cleanDebugIO)
		err = runClean(logger, *cleanConfigPath)
	case "serve":
		serveCmd.Parse(os.Args[2:])
		sys.SetDebugMode(*serveDebugIO)
		err = runServe(logger, *serveConfigPath)
	default:
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "zonectl:", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: zonectl <command> [flags]

Commands:
  report   print the current state of every io zone
  clean    run one manual cleaning pass
  serve    run the metrics and monitor UI server`)
}

func openDevice(ctx context.Context, logger *slog.Logger, configPath string) (*device.ZoneDevice, *config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	sim, err := zbd.NewSimDevice(zbd.SimDeviceOptions{
		Path:           cfg.Device.Path,
		BlockSizeBytes: cfg.Device.BlockSizeBytes,
		ZoneSizeBytes:  cfg.Device.ZoneSizeBytes,
		NumZones:       cfg.Device.NumIOZones + cfg.Device.NumMetaZones + cfg.Device.NumReservedZones,
		MetaZones:      cfg.Device.NumMetaZones,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("opening backing device: %w", err)
	}

	hm := hooks.NewHookManager(logger)
	dev, err := device.Open(ctx, sim, cfg.Device, cfg.Tracing, hm, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("opening zone device: %w", err)
	}
	return dev, cfg, nil
}

func runReport(logger *slog.Logger, configPath string) error {
	ctx := context.Background()
	dev, cfg, err := openDevice(ctx, logger, configPath)
	if err != nil {
		return err
	}
	defer dev.Close(ctx)

	plain := !term.IsTerminal(int(os.Stdout.Fd()))
	total := uint32(cfg.Device.NumMetaZones + cfg.Device.NumReservedZones + cfg.Device.NumIOZones)
	for id := uint32(0); id < total; id++ {
		z, ok := dev.IOZone(id)
		if !ok {
			continue
		}
		if plain {
			fmt.Printf("%d\t%s\t%d\t%d\n", id, z.State(), z.WritePointer(), z.UsedCapacity())
		} else {
			fmt.Printf("zone %-4d state=%-6s wp=%-12d used=%d\n", id, z.State(), z.WritePointer(), z.UsedCapacity())
		}
	}
	return nil
}

func runClean(logger *slog.Logger, configPath string) error {
	ctx := context.Background()
	dev, cfg, err := openDevice(ctx, logger, configPath)
	if err != nil {
		return err
	}
	defer dev.Close(ctx)

	result, err := dev.Clean(ctx, cfg.Cleaner)
	if err != nil {
		return fmt.Errorf("cleaning: %w", err)
	}
	fmt.Printf("reclaimed %d zones, relocated %d bytes across %d files\n",
		result.ZonesReset, result.BytesCopied, result.FilesTouched)
	return nil
}

func runServe(logger *slog.Logger, configPath string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dev, cfg, err := openDevice(ctx, logger, configPath)
	if err != nil {
		return err
	}
	defer dev.Close(ctx)

	ms := device.NewMetricsServer(cfg.Debug, logger)
	go func() { _ = ms.Start() }()

	var cleanerDone chan struct{}
	if cfg.Cleaner.Enabled {
		cleanerDone = make(chan struct{})
		go runCleanerLoop(ctx, dev, cfg, logger, cleanerDone)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	cancel()
	ms.Stop()
	if cleanerDone != nil {
		<-cleanerDone
	}
	return nil
}

func runCleanerLoop(ctx context.Context, dev *device.ZoneDevice, cfg *config.Config, logger *slog.Logger, done chan struct{}) {
	defer close(done)
	interval := config.ParseDuration(cfg.Cleaner.Interval, 60*time.Second, logger)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := dev.Clean(ctx, cfg.Cleaner); err != nil {
				logger.Error("cleaning pass failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
