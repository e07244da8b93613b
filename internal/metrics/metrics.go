package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ledger Metrics
	LedgerOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_outcomes_total",
		Help: "The total number of ledger mutations by operation and result status",
	}, []string{"operation", "status"})
	LedgerErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_errors_total",
		Help: "The total number of ledger mutations that failed",
	}, []string{"operation"})
	CoinsGrantedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_coins_granted_total",
		Help: "The total number of coins granted for completed content",
	})
	CoinsSpentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_coins_spent_total",
		Help: "The total number of coins spent on game unlocks",
	})
	LedgerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_operation_latency_seconds",
		Help:    "Latency of ledger mutations",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// Auth Metrics
	SignInsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_sign_ins_total",
		Help: "The total number of sign-in attempts by result",
	}, []string{"result"})

	// Push Metrics
	WebsocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_websocket_connections",
		Help: "The number of open profile-change websocket connections",
	})
	ProfileChangesPublishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_profile_changes_published_total",
		Help: "The total number of profile changes published",
	})
	KafkaMessagesConsumedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_kafka_messages_consumed_total",
		Help: "The total number of profile change messages consumed from Kafka",
	})
	KafkaPublishErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_kafka_publish_errors_total",
		Help: "The total number of errors publishing profile changes to Kafka",
	})

	// Sync Metrics
	CacheWarmedProfilesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_cache_warmed_profiles_total",
		Help: "The total number of profile totals written to the cache by the sync worker",
	})
)
