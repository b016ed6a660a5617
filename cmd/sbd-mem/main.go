package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	sbd "github.com/behrlich/go-sbd"
	"github.com/behrlich/go-sbd/internal/config"
	"github.com/behrlich/go-sbd/internal/logging"
)

type flags struct {
	configPath string
	size       string
	sectorSize uint32
	policy     string
	verbose    bool
}

func main() {
	var f flags

	root := &cobra.Command{
		Use:          "sbd-mem",
		Short:        "Memory-backed simple block device",
		Long:         "Create a RAM-backed block device on an in-process host, exercise it and report its geometry.\n\n" + config.Describe(),
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&f.configPath, "config", "c", config.DefaultPath, "path to configuration file")
	root.PersistentFlags().StringVar(&f.size, "size", "", "device size (e.g. 512K, 64M); overrides the configured sector count")
	root.PersistentFlags().Uint32Var(&f.sectorSize, "sector-size", 0, "logical sector size in bytes")
	root.PersistentFlags().StringVar(&f.policy, "policy", "", "out-of-range policy: drop or fail")
	root.PersistentFlags().BoolVarP(&f.verbose, "verbose", "v", false, "verbose output")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start a device, self-check it and serve until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), f)
		},
	}

	geometryCmd := &cobra.Command{
		Use:   "geometry",
		Short: "Print the geometry reported for the configured capacity",
		RunE: func(_ *cobra.Command, _ []string) error {
			params, _, err := load(f)
			if err != nil {
				return err
			}
			geo := sbd.ComputeGeometry(params.Capacity(), params.SectorSize)
			fmt.Printf("Capacity: %s (%d sectors of %d bytes)\n",
				config.FormatSize(params.Capacity()), params.SectorCount, params.SectorSize)
			fmt.Printf("Geometry: %s\n", geo)
			if rest := geo.Unaddressable(params.SectorCount); rest > 0 {
				fmt.Printf("Sectors past the last cylinder: %d\n", rest)
			}
			return nil
		},
	}

	root.AddCommand(serveCmd, geometryCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// load merges file, environment and flags, and installs the logger
func load(f flags) (sbd.Params, *logging.Logger, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return sbd.Params{}, nil, err
	}
	if f.sectorSize != 0 {
		cfg.SectorSize = f.sectorSize
	}
	if f.size != "" {
		cfg.Size = f.size
	}
	if f.policy != "" {
		cfg.RangePolicy = f.policy
	}

	logConfig := cfg.Logging()
	if f.verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	params, err := cfg.Params()
	if err != nil {
		return sbd.Params{}, nil, err
	}
	return params, logger, nil
}

func serve(ctx context.Context, f flags) error {
	params, logger, err := load(f)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	logger.Info("creating memory disk",
		"size", config.FormatSize(params.Capacity()),
		"size_bytes", params.Capacity(),
		"policy", params.RangePolicy.String())

	device, err := sbd.Start(ctx, params, &sbd.Options{Logger: logger})
	if err != nil {
		logger.Error("failed to create device", "error", err)
		return err
	}
	defer func() {
		logger.Info("stopping device")
		if err := sbd.StopAndDelete(context.Background(), device); err != nil {
			logger.Error("error stopping device", "error", err)
		} else {
			logger.Info("device stopped successfully")
		}
	}()

	if err := selfCheck(device); err != nil {
		logger.Error("self check failed", "error", err)
		return err
	}
	logger.Info("self check passed")

	info, _ := json.MarshalIndent(device.Info(), "", "  ")
	fmt.Printf("Device created: %s (major %d)\n", device.DiskName(), device.Major())
	fmt.Printf("Size: %s (%d bytes)\n", config.FormatSize(device.Size()), device.Size())
	fmt.Printf("Geometry: %s\n", device.Geometry())
	fmt.Printf("%s\n", info)
	fmt.Printf("\nPress Ctrl+C to stop...\n")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		logger.Info("received shutdown signal")
	case <-ctx.Done():
	}

	snap, _ := json.MarshalIndent(device.MetricsSnapshot(), "", "  ")
	fmt.Printf("%s\n", snap)
	return nil
}

// selfCheck writes a pattern to the first and last sectors and reads it back
func selfCheck(device *sbd.Device) error {
	size := int(device.SectorSize())
	last := device.SectorCount() - 1

	for _, sector := range []uint64{0, last} {
		pattern := bytes.Repeat([]byte{byte(sector) | 0xA5}, size)
		w := sbd.NewWrite(sector, pattern)
		device.Submit(w)
		if err := w.Err(); err != nil {
			return fmt.Errorf("write sector %d: %w", sector, err)
		}

		got := make([]byte, size)
		r := sbd.NewRead(sector, got)
		device.Submit(r)
		if err := r.Err(); err != nil {
			return fmt.Errorf("read sector %d: %w", sector, err)
		}
		if !bytes.Equal(got, pattern) {
			return fmt.Errorf("sector %d: read back differs from written data", sector)
		}
	}

	// Leave the device zeroed as it started
	for _, sector := range []uint64{0, last} {
		device.Submit(sbd.NewWrite(sector, make([]byte, size)))
	}
	return nil
}
