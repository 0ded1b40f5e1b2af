package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chaz8081/pendant/internal/config"
)

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults. The result is
// validated.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := readConfig(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func readConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		slog.Debug("Config loaded", "path", defaultPath)
		return cfg, nil
	}

	slog.Debug("No config file found, using defaults")
	return config.Default(), nil
}

func runCheckConfig(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	printBanner(cmd.OutOrStdout(), cfg)
	fmt.Fprintln(cmd.OutOrStdout(), "config OK")
	return nil
}

func runInitConfig(cmd *cobra.Command, _ []string) error {
	path, err := config.WriteDefault()
	if err != nil {
		return err
	}
	if path == "" {
		fmt.Fprintf(cmd.OutOrStdout(), "config already exists at %s\n", config.DefaultConfigPath())
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
	return nil
}

// printBanner displays the startup configuration summary.
func printBanner(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "=== pendantd ===")
	fmt.Fprintf(w, "  Device:  %s (%s %s, fw %s)\n", cfg.Device.Name, cfg.Device.Manufacturer, cfg.Device.Model, cfg.Device.Firmware)
	fmt.Fprintf(w, "  Link:    %s (default payload %d)\n", cfg.Link.Backend, cfg.Link.DefaultPayload)
	fmt.Fprintf(w, "  Stream:  %d slots x %d bytes, min payload %d\n", cfg.Stream.RingSlots, cfg.Stream.MaxFrameBytes, cfg.Stream.MinPayload)
	if cfg.Audio.Enabled {
		fmt.Fprintf(w, "  Audio:   %dHz, %dch, %d samples/frame, %s\n", cfg.Audio.SampleRate, cfg.Audio.Channels, cfg.Audio.FrameSamples, cfg.Audio.Codec)
	} else {
		fmt.Fprintln(w, "  Audio:   disabled")
	}
	switch cfg.Button.Source {
	case "hotkey":
		fmt.Fprintf(w, "  Button:  hotkey %s, tick %s\n", strings.Join(cfg.Button.HotkeyKeys, "+"), cfg.Button.Tick)
	case "gpio":
		fmt.Fprintf(w, "  Button:  gpio %d, tick %s\n", cfg.Button.GPIOPin, cfg.Button.Tick)
	default:
		fmt.Fprintln(w, "  Button:  none")
	}
	fmt.Fprintf(w, "  DFU:     %s, restart=%s\n", cfg.DFU.MarkerPath, cfg.DFU.Restart)
	if cfg.Metrics.Addr != "" {
		fmt.Fprintf(w, "  Metrics: %s\n", cfg.Metrics.Addr)
	}
	fmt.Fprintf(w, "  Log:     %s (%s)\n", cfg.LogLevel, cfg.LogFormat)
	fmt.Fprintln(w, "================")
}
