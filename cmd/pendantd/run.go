package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chaz8081/pendant/internal/audio"
	"github.com/chaz8081/pendant/internal/battery"
	"github.com/chaz8081/pendant/internal/ble"
	"github.com/chaz8081/pendant/internal/button"
	"github.com/chaz8081/pendant/internal/codec"
	"github.com/chaz8081/pendant/internal/config"
	"github.com/chaz8081/pendant/internal/dfu"
	"github.com/chaz8081/pendant/internal/gpio"
	"github.com/chaz8081/pendant/internal/groutine"
	"github.com/chaz8081/pendant/internal/hotkey"
	"github.com/chaz8081/pendant/internal/led"
	"github.com/chaz8081/pendant/internal/logging"
	"github.com/chaz8081/pendant/internal/metrics"
	"github.com/chaz8081/pendant/internal/periodic"
	"github.com/chaz8081/pendant/internal/session"
	"github.com/chaz8081/pendant/internal/storage"
	"github.com/chaz8081/pendant/internal/stream"
)

func runDaemon(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if _, err := logging.Install(cfg.LogFormat, cfg.LogLevel, os.Stderr); err != nil {
		return err
	}
	metrics.BuildInfo.WithLabelValues(version, commit).Set(1)
	printBanner(cmd.OutOrStdout(), cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	enc, err := codec.New(cfg.Audio.Codec)
	if err != nil {
		return err
	}

	// Battery and button sampling start with the first session and then
	// run for the life of the process. The LED runs from the start.
	sessionTasks := periodic.New(ctx)
	ambientTasks := periodic.New(ctx)
	sessions := session.NewManager(sessionTasks)

	control := dfu.NewController(dfuMarker(cfg.DFU), newRestarter(cfg.DFU.Restart), nil, cfg.DFU.MarkerValue)

	periph, err := newPeripheral(cfg.Link)
	if err != nil {
		return err
	}
	srv := ble.NewServer(periph, sessions, control, ble.ServerOptions{
		Name:           cfg.Device.Name,
		DefaultPayload: cfg.Link.DefaultPayload,
		CodecID:        enc.ID(),
		Device: ble.DeviceInfo{
			Manufacturer: cfg.Device.Manufacturer,
			Model:        cfg.Device.Model,
			Firmware:     cfg.Device.Firmware,
		},
	})
	control.SetNotifier(srv)
	metrics.SetReadinessFunc(srv.Ready)

	if err := srv.Start(); err != nil {
		return fmt.Errorf("starting BLE server: %w", err)
	}
	defer func() {
		if err := srv.Close(); err != nil {
			slog.Warn("[BLE] close failed", "error", err)
		}
	}()

	streamOpts := stream.Options{
		Slots:         cfg.Stream.RingSlots,
		MaxFrameBytes: cfg.Stream.MaxFrameBytes,
		MinPayload:    cfg.Stream.MinPayload,
		InvalidIdle:   cfg.Stream.InvalidIdle,
		EmptyIdle:     cfg.Stream.EmptyIdle,
		SendRetry:     cfg.Stream.SendRetry,
		EnqueueRetry:  cfg.Stream.EnqueueRetry,
	}
	ring := stream.NewRingBuffer(streamOpts)
	pusher := stream.NewPusher(ring, sessions, srv, streamOpts)

	var done []<-chan struct{}
	done = append(done,
		groutine.Go(ctx, "advertiser", func(ctx context.Context) { _ = srv.Run(ctx) }),
		groutine.Go(ctx, "pusher", func(ctx context.Context) { _ = pusher.Run(ctx) }),
	)

	// Button: edge source -> debouncer -> sampler (FSM) -> outbox -> link.
	if cfg.Button.Source != "none" {
		deb := button.NewDebouncer(cfg.Button.Debounce)
		fsm := button.NewFSM(button.Thresholds{
			SinglePressTicks:     cfg.Button.SinglePressTicks,
			LongPressTicks:       cfg.Button.LongPressTicks,
			SecondLongPressTicks: cfg.Button.SecondLongPressTicks,
			SingleTapTicks:       cfg.Button.SingleTapTicks,
			GraceTicks:           cfg.Button.GraceTicks,
		})
		outbox, err := button.NewOutbox(cfg.Button.OutboxSize, srv, sessions)
		if err != nil {
			return err
		}
		sampler := button.NewSampler(deb, fsm, outbox.Push)
		sessionTasks.Add(periodic.Task{Name: "button-sampler", Interval: cfg.Button.Tick, Run: sampler.Tick})
		done = append(done, groutine.Go(ctx, "button-outbox", func(ctx context.Context) { _ = outbox.Run(ctx) }))

		stopEdges, err := startEdgeSource(ctx, cfg.Button, deb.Edge)
		if err != nil {
			return err
		}
		defer stopEdges()
	}

	var charging func() bool
	if cfg.Battery.Enabled {
		reporter := battery.NewReporter(battery.SysfsReader{Dir: cfg.Battery.PowerSupply}, srv)
		sessionTasks.Add(periodic.Task{Name: "battery", Interval: cfg.Battery.Interval, Immediate: true, Run: reporter.Tick})
		charging = reporter.Charging
	}

	if cfg.LED.Enabled {
		ind := led.SysfsIndicator{Red: cfg.LED.Red, Green: cfg.LED.Green, Blue: cfg.LED.Blue}
		status := led.NewStatus(ind, sessions, charging, cfg.Audio.Enabled)
		ambientTasks.Add(periodic.Task{Name: "led", Interval: cfg.LED.Interval, Immediate: true, Run: status.Tick})
	}
	ambientTasks.Start()

	if cfg.Audio.Enabled {
		stopAudio, err := startAudio(ctx, cfg, enc, ring)
		if err != nil {
			return err
		}
		defer stopAudio()
	}

	if cfg.Metrics.Addr != "" {
		stopMetrics, err := startMetrics(ctx, cfg.Metrics)
		if err != nil {
			return err
		}
		defer stopMetrics()
	}

	slog.Info("Ready", "name", cfg.Device.Name, "backend", cfg.Link.Backend)
	<-ctx.Done()
	slog.Info("Shutting down...")

	waitAll(done, 2*time.Second)
	sessionTasks.Wait()
	ambientTasks.Wait()
	return nil
}

func newPeripheral(cfg config.LinkConfig) (ble.Peripheral, error) {
	switch cfg.Backend {
	case "tinygo":
		return ble.NewTinyGoPeripheral(), nil
	case "hci":
		return ble.NewHCIPeripheral(cfg.HCIDevice), nil
	case "none":
		var count atomic.Int64
		return ble.NewLoopback(cfg.DefaultPayload, func(c ble.CharID, data []byte) {
			if count.Add(1)%500 == 1 {
				slog.Debug("[BLE] loopback notification", "characteristic", c, "len", len(data), "total", count.Load())
			}
		}), nil
	default:
		return nil, fmt.Errorf("unknown link backend %q", cfg.Backend)
	}
}

func dfuMarker(cfg config.DFUConfig) dfu.FileMarker {
	m := dfu.FileMarker{Path: cfg.MarkerPath}
	if v, ok, err := m.Read(); err != nil {
		slog.Warn("[DFU] reading stale marker failed", "path", cfg.MarkerPath, "error", err)
	} else if ok {
		// The bootloader consumes the marker; one left behind means the
		// previous update request was never acted on.
		slog.Warn("[DFU] clearing stale marker", "path", cfg.MarkerPath, "value", v)
		if err := m.Clear(); err != nil {
			slog.Warn("[DFU] clearing marker failed", "error", err)
		}
	}
	return m
}

func newRestarter(mode string) dfu.Restarter {
	if mode == "exit" {
		return dfu.ExitRestarter{}
	}
	return dfu.RebootRestarter{}
}

// startEdgeSource connects the configured button to onEdge and returns a
// function that stops it.
func startEdgeSource(ctx context.Context, cfg config.ButtonConfig, onEdge func(pressed bool, at time.Time)) (func(), error) {
	switch cfg.Source {
	case "gpio":
		w, err := gpio.Open(gpio.Pin{Root: cfg.GPIORoot, Number: cfg.GPIOPin, ActiveLow: cfg.ActiveLow}, onEdge)
		if err != nil {
			return nil, err
		}
		groutine.Go(ctx, "gpio-watcher", func(ctx context.Context) {
			if err := w.Run(ctx); err != nil && ctx.Err() == nil {
				slog.Error("[BUTTON] GPIO watcher stopped", "error", err)
			}
		})
		return func() { _ = w.Close() }, nil
	case "hotkey":
		l := hotkey.NewListener(cfg.HotkeyKeys, onEdge)
		groutine.Go(ctx, "hotkey", func(context.Context) { l.Start() })
		return l.Stop, nil
	default:
		return nil, fmt.Errorf("unknown button source %q", cfg.Source)
	}
}

// startAudio runs microphone -> framer -> producer -> ring buffer.
func startAudio(ctx context.Context, cfg *config.Config, enc codec.Encoder, ring *stream.RingBuffer) (func(), error) {
	var archive audio.Archive
	var wavArchive *storage.WAVArchive
	if cfg.Storage.Enabled {
		a, err := storage.NewWAVArchive(cfg.Storage.Dir, int(cfg.Audio.SampleRate), int(cfg.Audio.Channels), cfg.Storage.RotateEvery)
		if err != nil {
			return nil, err
		}
		archive, wavArchive = a, a
	}

	producer := audio.NewProducer(enc, ring, archive, 0)
	groutine.Go(ctx, "audio-producer", func(ctx context.Context) { _ = producer.Run(ctx) })

	capture, err := audio.NewCapture(cfg.Audio.SampleRate, cfg.Audio.Channels)
	if err != nil {
		return nil, err
	}
	framer := audio.NewFramer(cfg.Audio.FrameSamples*int(cfg.Audio.Channels), producer.Push)
	if err := capture.Start(framer.Write); err != nil {
		_ = capture.Close()
		return nil, err
	}
	slog.Info("[AUDIO] Capturing", "rate", cfg.Audio.SampleRate, "channels", cfg.Audio.Channels, "codec", enc.Name())

	return func() {
		if err := capture.Close(); err != nil {
			slog.Warn("[AUDIO] close failed", "error", err)
		}
		if wavArchive != nil {
			if err := wavArchive.Close(); err != nil {
				slog.Warn("[STORAGE] close failed", "error", err)
			}
		}
	}, nil
}

func startMetrics(ctx context.Context, cfg config.MetricsConfig) (func(), error) {
	httpSrv := metrics.StartHTTP(cfg.Addr)
	stopMDNS := func() {}
	if cfg.MDNSEnable {
		_, portStr, err := net.SplitHostPort(cfg.Addr)
		if err != nil {
			return nil, fmt.Errorf("metrics addr: %w", err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("metrics port: %w", err)
		}
		stopMDNS, err = metrics.StartMDNS(ctx, cfg.MDNSName, port, []string{"version=" + version})
		if err != nil {
			slog.Warn("[METRICS] mDNS disabled", "error", err)
			stopMDNS = func() {}
		}
	}
	return func() {
		stopMDNS()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}, nil
}

func waitAll(chans []<-chan struct{}, timeout time.Duration) {
	deadline := time.After(timeout)
	for _, ch := range chans {
		select {
		case <-ch:
		case <-deadline:
			slog.Warn("Timed out waiting for goroutines to stop")
			return
		}
	}
}
