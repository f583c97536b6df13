package observability

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/yungbote/fleetmdm-backend/internal/platform/envutil"
	"github.com/yungbote/fleetmdm-backend/internal/platform/logger"
)

// Metrics is the process-wide Prometheus registry. A nil *Metrics is valid and
// records nothing, so callers never have to check whether metrics are enabled.
type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge

	membershipChanges  *CounterVec
	membershipLatency  *HistogramVec
	lockRetries        *CounterVec
	commandsQueued     *CounterVec
	notifyFailures     *Counter
	pushDeliveries     *CounterVec
	pushAttempts       *HistogramVec
	pushQueueDepth     *Gauge
	pushQueueReachable *Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", false, nil)
}

func Current() *Metrics {
	return instance
}

func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = newMetrics()
		if log != nil {
			log.Info("metrics enabled")
		}
	})
	return instance
}

func newMetrics() *Metrics {
	return &Metrics{
		apiRequests: NewCounterVec("fleetmdm_api_requests_total", "Admin API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec(
			"fleetmdm_api_request_duration_seconds",
			"Admin API latency in seconds by method/route.",
			[]string{"method", "route"},
			[]float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		),
		apiInflight: NewGauge("fleetmdm_api_inflight_requests", "In-flight admin API requests."),

		membershipChanges: NewCounterVec("fleetmdm_membership_changes_total", "Membership mutations by operation and outcome.", []string{"op", "outcome"}),
		membershipLatency: NewHistogramVec(
			"fleetmdm_membership_change_duration_seconds",
			"Membership mutation latency including lock wait.",
			[]string{"op"},
			[]float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		),
		lockRetries:        NewCounterVec("fleetmdm_membership_lock_retries_total", "Times a mutation re-read a lock set that had grown.", []string{"op"}),
		commandsQueued:     NewCounterVec("fleetmdm_commands_queued_total", "Committed commands by the operation that queued them.", []string{"op"}),
		notifyFailures:     NewCounter("fleetmdm_notify_failures_total", "Device wake-ups that could not be queued."),
		pushDeliveries:     NewCounterVec("fleetmdm_push_deliveries_total", "Push deliveries by result.", []string{"result"}),
		pushAttempts:       NewHistogramVec("fleetmdm_push_attempts", "Transport attempts per delivery.", nil, []float64{1, 2, 3, 5, 8}),
		pushQueueDepth:     NewGauge("fleetmdm_push_queue_depth", "Wake-ups waiting in the push queue."),
		pushQueueReachable: NewGauge("fleetmdm_push_queue_up", "1 when the push queue answered the last depth probe."),
	}
}

func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_ = m.WritePrometheus(w)
	})
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	for _, c := range []collector{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.membershipChanges, m.membershipLatency, m.lockRetries,
		m.commandsQueued, m.notifyFailures,
		m.pushDeliveries, m.pushAttempts, m.pushQueueDepth, m.pushQueueReachable,
	} {
		if err := c.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route)
}

func (m *Metrics) APIInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Add(1)
}

func (m *Metrics) APIInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Add(-1)
}

// ObserveMembershipChange records one finished mutation. outcome is "ok" or "error".
func (m *Metrics) ObserveMembershipChange(op, outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	m.membershipChanges.Inc(op, outcome)
	m.membershipLatency.Observe(dur.Seconds(), op)
}

func (m *Metrics) IncLockRetry(op string) {
	if m == nil {
		return
	}
	m.lockRetries.Inc(op)
}

func (m *Metrics) AddCommandsQueued(op string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.commandsQueued.Add(float64(n), op)
}

func (m *Metrics) IncNotifyFailure() {
	if m == nil {
		return
	}
	m.notifyFailures.Add(1)
}

// ObservePush records a finished delivery. result is "delivered", "skipped" or "failed".
func (m *Metrics) ObservePush(result string, attempts int) {
	if m == nil {
		return
	}
	m.pushDeliveries.Inc(result)
	if attempts > 0 {
		m.pushAttempts.Observe(float64(attempts))
	}
}

// StartQueueCollector polls depth on an interval until ctx is done.
func (m *Metrics) StartQueueCollector(ctx context.Context, log *logger.Logger, interval time.Duration, depth func(context.Context) (int64, error)) {
	if m == nil || depth == nil {
		return
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, interval)
				n, err := depth(probeCtx)
				cancel()
				if err != nil {
					m.pushQueueReachable.Set(0)
					if log != nil {
						log.Warn("metrics: push queue probe failed", "error", err)
					}
					continue
				}
				m.pushQueueReachable.Set(1)
				m.pushQueueDepth.Set(float64(n))
			}
		}
	}()
}

// StartServer exposes /metrics on its own listener when addr is set.
func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}
