package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/faith0x7dc/wl-camera-shm/internal/capture"
	"github.com/faith0x7dc/wl-camera-shm/internal/config"
	"github.com/faith0x7dc/wl-camera-shm/internal/logging"
	"github.com/faith0x7dc/wl-camera-shm/internal/viewer"
)

var (
	version   = "0.1.0"
	cfgFile   string
	device    string
	quiet     bool
	logLevel  string
	logFormat string
	logFile   string
)

var rootCmd = &cobra.Command{
	Use:   "wl-camera",
	Short: "Show a V4L2 camera in a Wayland window",
	Long: `wl-camera streams YUYV frames from a V4L2 capture device and shows them
in a Wayland window through shared-memory buffers. Press Ctrl+C or close
the window to quit.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runViewer(cmd)
	},
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Print the capture device's capabilities, formats and frame sizes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return probeDevice(cmd)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printConfig(cmd)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "wl-camera v%s\n", version)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/wl-camera/wl-camera.yaml)")
	pf.StringVarP(&device, "device", "d", "/dev/video0", "V4L2 capture device")
	pf.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	pf.StringVar(&logFormat, "log-format", "text", "log format: text or json")
	pf.StringVar(&logFile, "log-file", "", "also write logs to this file, rotated at 10MB")
	rootCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not report the frame rate")

	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "wl-camera: %v\n", err)
	}
	os.Exit(exitCode(err))
}

// exitCode is 0 for a clean shutdown, including an interrupt, and 1 for
// any failure.
func exitCode(err error) int {
	if err == nil || errors.Is(err, context.Canceled) {
		return 0
	}
	return 1
}

// loadConfig resolves file, environment and flag settings, configures
// logging and rejects configs the viewer cannot run with.
func loadConfig(cmd *cobra.Command) (*config.Config, io.Closer, error) {
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	closer, err := logging.Setup(cfg.LogFormat, cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	if r := cfg.ValidateTiered(); r.HasFatals() {
		closer.Close()
		return nil, nil, fmt.Errorf("invalid config: %w", errors.Join(r.Fatals...))
	}
	return cfg, closer, nil
}

func runViewer(cmd *cobra.Command) error {
	cfg, closer, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return viewer.Run(ctx, cfg)
}

func probeDevice(cmd *cobra.Command) error {
	cfg, closer, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer closer.Close()

	info, err := capture.Probe(cfg.Device, capture.Options{})
	if err != nil {
		return err
	}
	return info.Write(cmd.OutOrStdout())
}

func printConfig(cmd *cobra.Command) error {
	cfg, closer, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer closer.Close()

	out, err := config.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}
