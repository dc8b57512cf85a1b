package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "flariki"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		},
		[]string{"route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	ledgerEntries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_entries_total",
			Help:      "Ledger rows written by type.",
		},
		[]string{"type"},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Telegram notifications by batch and result.",
		},
		[]string{"batch", "result"},
	)

	sheetsSync = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sheets_sync_total",
			Help:      "Sheets sync attempts by task type and result.",
		},
		[]string{"task_type", "result"},
	)

	botUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bot_updates_total",
			Help:      "Telegram updates handled by the bot, by kind.",
		},
		[]string{"kind"},
	)

	botUpdateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bot_update_duration_seconds",
			Help:      "Time spent processing one update.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	balanceMismatches = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_balance_mismatches",
			Help:      "Users whose balance differs from the ledger sum at the last reconciliation.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, ledgerEntries, notifications, sheetsSync,
			botUpdates, botUpdateDuration, balanceMismatches)
	})
}

// ObserveHTTP records one served request.
func ObserveHTTP(route string, status int, elapsed time.Duration) {
	httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func IncLedger(txType string) {
	ledgerEntries.WithLabelValues(txType).Inc()
}

// AddNotifications counts delivered and failed notifications of a batch.
func AddNotifications(batch string, delivered, failed int) {
	notifications.WithLabelValues(batch, "delivered").Add(float64(delivered))
	notifications.WithLabelValues(batch, "failed").Add(float64(failed))
}

func IncSheetsSync(taskType string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	sheetsSync.WithLabelValues(taskType, result).Inc()
}

func SetBalanceMismatches(n int) {
	balanceMismatches.Set(float64(n))
}

// ObserveBotUpdate records one processed update; kind is command, text, contact, limited or panic.
func ObserveBotUpdate(kind string, elapsed time.Duration) {
	botUpdates.WithLabelValues(kind).Inc()
	botUpdateDuration.Observe(elapsed.Seconds())
}
