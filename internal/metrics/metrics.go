// Package metrics exposes Prometheus counters for the streaming pipeline,
// session lifecycle, button and battery reporting, and serves them over
// HTTP alongside a readiness probe.
package metrics

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FramesEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pendant_frames_enqueued_total",
		Help: "Audio frames accepted into the ring buffer.",
	})
	FramesRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pendant_frames_rejected_total",
		Help: "Audio frames rejected for exceeding the slot size.",
	})
	FramesDequeued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pendant_frames_dequeued_total",
		Help: "Audio frames taken from the ring buffer by the pusher.",
	})
	FramesFlushed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pendant_frames_flushed_total",
		Help: "Queued audio frames discarded because no valid session existed.",
	})
	RingFlushes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pendant_ring_flushes_total",
		Help: "Ring buffer resets that discarded at least one frame.",
	})
	RingDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pendant_ring_depth",
		Help: "Frames currently queued in the ring buffer.",
	})
	FragmentsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pendant_fragments_sent_total",
		Help: "Audio fragments delivered to the link.",
	})
	FragmentRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pendant_fragment_retries_total",
		Help: "Fragment emissions retried after a transient link error.",
	})
	FragmentsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pendant_fragments_dropped_total",
		Help: "Fragments abandoned after a non-transient link error.",
	})
	Sessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pendant_sessions_total",
		Help: "Peer connections established.",
	})
	SessionConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pendant_session_connected",
		Help: "1 while a peer is connected.",
	})
	PayloadSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pendant_payload_size_bytes",
		Help: "Negotiated notification payload size of the current session.",
	})
	ButtonEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pendant_button_events_total",
		Help: "Classified button events by gesture.",
	}, []string{"gesture"})
	ButtonEventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pendant_button_events_dropped_total",
		Help: "Button events not delivered because notifications were off or the outbox overflowed.",
	})
	BatteryPercent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pendant_battery_percent",
		Help: "Last reported battery level.",
	})
	BatteryMillivolts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pendant_battery_millivolts",
		Help: "Last measured battery voltage.",
	})
	BatteryReadErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pendant_battery_read_errors_total",
		Help: "Failed battery reads.",
	})
	DFUTriggers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pendant_dfu_triggers_total",
		Help: "DFU control writes that requested a restart, by opcode.",
	}, []string{"op"})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pendant_build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit"})

	readinessMu sync.RWMutex
	readinessFn func() bool
)

// SetReadinessFunc installs the function consulted by /ready.
func SetReadinessFunc(fn func() bool) {
	readinessMu.Lock()
	readinessFn = fn
	readinessMu.Unlock()
}

// IsReady reports whether the daemon is ready to accept peers.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	return fn != nil && fn()
}

// Handler returns the mux serving /metrics and /ready.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})
	return mux
}

// StartHTTP serves Handler on addr in the background.
func StartHTTP(addr string) *http.Server {
	srv := &http.Server{
		Addr:    addr,
		Handler: Handler(),
	}
	go func() {
		slog.Info("[METRICS] Listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("[METRICS] HTTP server failed", "error", err)
		}
	}()
	return srv
}
