package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chaz8081/pendant/internal/codec"
)

// Config holds all daemon configuration.
type Config struct {
	Device    DeviceConfig  `yaml:"device"`
	Link      LinkConfig    `yaml:"link"`
	Stream    StreamConfig  `yaml:"stream"`
	Audio     AudioConfig   `yaml:"audio"`
	Button    ButtonConfig  `yaml:"button"`
	Battery   BatteryConfig `yaml:"battery"`
	DFU       DFUConfig     `yaml:"dfu"`
	LED       LEDConfig     `yaml:"led"`
	Storage   StorageConfig `yaml:"storage"`
	Metrics   MetricsConfig `yaml:"metrics"`
	LogLevel  string        `yaml:"log_level"`
	LogFormat string        `yaml:"log_format"` // "text" or "json"
}

// DeviceConfig holds the advertised identity of the device.
type DeviceConfig struct {
	Name         string `yaml:"name"`
	Manufacturer string `yaml:"manufacturer"`
	Model        string `yaml:"model"`
	Firmware     string `yaml:"firmware"`
}

// LinkConfig selects the BLE peripheral backend.
type LinkConfig struct {
	Backend        string `yaml:"backend"`         // "tinygo", "hci" or "none"
	DefaultPayload int    `yaml:"default_payload"` // payload size until the link reports one
	HCIDevice      int    `yaml:"hci_device"`
}

// StreamConfig holds ring buffer and pusher settings.
type StreamConfig struct {
	RingSlots     int           `yaml:"ring_slots"`
	MaxFrameBytes int           `yaml:"max_frame_bytes"`
	MinPayload    int           `yaml:"min_payload"`
	InvalidIdle   time.Duration `yaml:"invalid_idle"`
	EmptyIdle     time.Duration `yaml:"empty_idle"`
	SendRetry     time.Duration `yaml:"send_retry"`
	EnqueueRetry  time.Duration `yaml:"enqueue_retry"`
}

// AudioConfig holds microphone capture settings.
type AudioConfig struct {
	Enabled      bool   `yaml:"enabled"`
	SampleRate   uint32 `yaml:"sample_rate"`
	Channels     uint32 `yaml:"channels"`
	FrameSamples int    `yaml:"frame_samples"`
	Codec        string `yaml:"codec"` // "pcm16" or "pcm8"
}

// ButtonConfig holds gesture input settings.
type ButtonConfig struct {
	Source               string        `yaml:"source"` // "gpio", "hotkey" or "none"
	GPIOPin              int           `yaml:"gpio_pin"`
	GPIORoot             string        `yaml:"gpio_root"`
	ActiveLow            bool          `yaml:"active_low"`
	HotkeyKeys           []string      `yaml:"hotkey_keys"`
	Tick                 time.Duration `yaml:"tick"`
	Debounce             time.Duration `yaml:"debounce"`
	SinglePressTicks     uint32        `yaml:"single_press_ticks"`
	LongPressTicks       uint32        `yaml:"long_press_ticks"`
	SecondLongPressTicks uint32        `yaml:"second_long_press_ticks"`
	SingleTapTicks       uint32        `yaml:"single_tap_ticks"`
	GraceTicks           uint32        `yaml:"grace_ticks"`
	OutboxSize           int           `yaml:"outbox_size"`
}

// BatteryConfig holds battery reporting settings.
type BatteryConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Interval    time.Duration `yaml:"interval"`
	PowerSupply string        `yaml:"power_supply"`
}

// DFUConfig holds firmware-update trigger settings.
type DFUConfig struct {
	MarkerPath  string `yaml:"marker_path"`
	MarkerValue uint8  `yaml:"marker_value"`
	Restart     string `yaml:"restart"` // "reboot" or "exit"
}

// LEDConfig holds status LED settings.
type LEDConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Red      string        `yaml:"red"`
	Green    string        `yaml:"green"`
	Blue     string        `yaml:"blue"`
	Interval time.Duration `yaml:"interval"`
}

// StorageConfig holds the optional local WAV archive settings.
type StorageConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Dir         string        `yaml:"dir"`
	RotateEvery time.Duration `yaml:"rotate_every"`
}

// MetricsConfig holds the diagnostics HTTP endpoint settings.
type MetricsConfig struct {
	Addr       string `yaml:"addr"` // empty disables
	MDNSEnable bool   `yaml:"mdns_enable"`
	MDNSName   string `yaml:"mdns_name"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "pendant")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// DefaultDataDir returns the default directory for markers and archives.
func DefaultDataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "pendant")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	dataDir := DefaultDataDir()

	return &Config{
		Device: DeviceConfig{
			Name:         "Friend",
			Manufacturer: "Based Hardware",
			Model:        "Friend",
			Firmware:     "1.0.0",
		},
		Link: LinkConfig{
			Backend:        "tinygo",
			DefaultPayload: 247,
		},
		Stream: StreamConfig{
			RingSlots:     32,
			MaxFrameBytes: 320,
			MinPayload:    100,
			InvalidIdle:   10 * time.Millisecond,
			EmptyIdle:     5 * time.Millisecond,
			SendRetry:     time.Millisecond,
			EnqueueRetry:  time.Millisecond,
		},
		Audio: AudioConfig{
			Enabled:      true,
			SampleRate:   16000,
			Channels:     1,
			FrameSamples: 160,
			Codec:        "pcm16",
		},
		Button: ButtonConfig{
			Source:               "gpio",
			GPIOPin:              5,
			GPIORoot:             "/sys/class/gpio",
			HotkeyKeys:           []string{"ctrl", "shift", "b"},
			Tick:                 40 * time.Millisecond,
			Debounce:             20 * time.Millisecond,
			SinglePressTicks:     2,
			LongPressTicks:       50,
			SecondLongPressTicks: 10,
			SingleTapTicks:       10,
			GraceTicks:           10,
			OutboxSize:           16,
		},
		Battery: BatteryConfig{
			Enabled:     true,
			Interval:    15 * time.Second,
			PowerSupply: "/sys/class/power_supply/battery",
		},
		DFU: DFUConfig{
			MarkerPath:  filepath.Join(dataDir, "dfu.marker"),
			MarkerValue: 0xA8,
			Restart:     "reboot",
		},
		LED: LEDConfig{
			Enabled:  false,
			Red:      "/sys/class/leds/red/brightness",
			Green:    "/sys/class/leds/green/brightness",
			Blue:     "/sys/class/leds/blue/brightness",
			Interval: 500 * time.Millisecond,
		},
		Storage: StorageConfig{
			Enabled:     false,
			Dir:         filepath.Join(dataDir, "audio"),
			RotateEvery: 5 * time.Minute,
		},
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in paths is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.DFU.MarkerPath = expandTilde(cfg.DFU.MarkerPath)
	cfg.Storage.Dir = expandTilde(cfg.Storage.Dir)

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Device.Name == "" {
		return fmt.Errorf("device.name must not be empty")
	}

	switch c.Link.Backend {
	case "tinygo", "hci", "none":
	default:
		return fmt.Errorf("link.backend must be \"tinygo\", \"hci\" or \"none\", got %q", c.Link.Backend)
	}

	if c.Stream.RingSlots <= 0 {
		return fmt.Errorf("stream.ring_slots must be > 0")
	}
	if c.Stream.MaxFrameBytes <= 0 || c.Stream.MaxFrameBytes > 0xFFFF {
		return fmt.Errorf("stream.max_frame_bytes must be in 1..65535, got %d", c.Stream.MaxFrameBytes)
	}
	// One fragment header plus at least one payload byte.
	if c.Stream.MinPayload < 4 {
		return fmt.Errorf("stream.min_payload must be >= 4, got %d", c.Stream.MinPayload)
	}
	// The intra-frame fragment index is a single byte.
	if c.Stream.MaxFrameBytes > 256*(c.Stream.MinPayload-3) {
		return fmt.Errorf("stream.max_frame_bytes %d needs more than 256 fragments at min_payload %d", c.Stream.MaxFrameBytes, c.Stream.MinPayload)
	}

	if c.Audio.Enabled {
		if c.Audio.SampleRate == 0 {
			return fmt.Errorf("audio.sample_rate must be > 0")
		}
		if c.Audio.Channels == 0 {
			return fmt.Errorf("audio.channels must be > 0")
		}
		if c.Audio.FrameSamples <= 0 {
			return fmt.Errorf("audio.frame_samples must be > 0")
		}
		enc, err := codec.New(c.Audio.Codec)
		if err != nil {
			return fmt.Errorf("audio.codec must be \"pcm16\" or \"pcm8\", got %q", c.Audio.Codec)
		}
		frame := enc.FrameBytes(c.Audio.FrameSamples * int(c.Audio.Channels))
		if frame > c.Stream.MaxFrameBytes {
			return fmt.Errorf("audio frame of %d bytes (%d samples x %d channels, %s) exceeds stream.max_frame_bytes %d",
				frame, c.Audio.FrameSamples, c.Audio.Channels, enc.Name(), c.Stream.MaxFrameBytes)
		}
	}

	switch c.Button.Source {
	case "gpio", "hotkey", "none":
	default:
		return fmt.Errorf("button.source must be \"gpio\", \"hotkey\" or \"none\", got %q", c.Button.Source)
	}
	if c.Button.Source == "hotkey" && len(c.Button.HotkeyKeys) == 0 {
		return fmt.Errorf("button.hotkey_keys must not be empty")
	}
	if c.Button.Tick <= 0 {
		return fmt.Errorf("button.tick must be > 0")
	}

	if c.Battery.Enabled && c.Battery.Interval <= 0 {
		return fmt.Errorf("battery.interval must be > 0")
	}

	switch c.DFU.Restart {
	case "reboot", "exit":
	default:
		return fmt.Errorf("dfu.restart must be \"reboot\" or \"exit\", got %q", c.DFU.Restart)
	}
	if c.DFU.MarkerPath == "" {
		return fmt.Errorf("dfu.marker_path must not be empty")
	}

	if c.Storage.Enabled && c.Storage.Dir == "" {
		return fmt.Errorf("storage.dir must not be empty")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be \"text\" or \"json\", got %q", c.LogFormat)
	}

	return nil
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

const defaultHeader = "# pendant configuration\n# Edit values below; missing fields fall back to built-in defaults.\n\n"

// WriteDefault writes the default config to DefaultConfigPath if no file
// exists there yet. It returns the written path, or "" if a config already
// existed and was left untouched.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}

	if err := os.WriteFile(path, append([]byte(defaultHeader), data...), 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}
