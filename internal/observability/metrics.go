package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the vault service.
type Metrics struct {
	// --- Core Processing ---
	CoreEventsApplied  *prometheus.CounterVec
	CoreEventsRejected *prometheus.CounterVec
	CoreEventDuration  *prometheus.HistogramVec
	CoreJournals       *prometheus.CounterVec
	CoreStateHashDur   prometheus.Histogram
	CoreSequence       prometheus.Gauge

	// --- Vault ---
	VaultTotalAssets   prometheus.Gauge
	VaultTotalSupply   prometheus.Gauge
	VaultTotalDebt     prometheus.Gauge
	VaultIdleAssets    prometheus.Gauge
	VaultSharePrice    prometheus.Gauge
	VaultAssetsMoved   *prometheus.CounterVec
	VaultRealizedLoss  prometheus.Counter
	StrategyReportsBps *prometheus.HistogramVec

	// --- Channel & Backpressure ---
	ChannelSize         *prometheus.GaugeVec
	ChannelCapacity     *prometheus.GaugeVec
	ChannelUtilization  *prometheus.GaugeVec
	ProjectionDrops     *prometheus.CounterVec
	PublishDrops        prometheus.Counter
	PersistBackpressure prometheus.Counter

	// --- Idempotency & Ordering ---
	IdempotencyDuplicates *prometheus.CounterVec
	DedupLRUSize          prometheus.Gauge
	DedupTier2Duration    prometheus.Histogram
	EventSequenceGap      *prometheus.CounterVec
	EventOutOfOrder       *prometheus.CounterVec

	// --- Persistence ---
	PersistEventsWritten   prometheus.Counter
	PersistJournalsWritten prometheus.Counter
	PersistBatchSize       prometheus.Histogram
	PersistBatchDur        prometheus.Histogram
	PersistErrors          *prometheus.CounterVec
	PersistRetry           prometheus.Counter
	PersistLastSequence    prometheus.Gauge

	// --- Projection ---
	ProjectionUpdateDur *prometheus.HistogramVec
	ProjectionLastSeq   prometheus.Gauge

	// --- Snapshot ---
	SnapshotTaken     prometheus.Counter
	SnapshotDuration  prometheus.Histogram
	SnapshotSizeBytes prometheus.Gauge
	SnapshotLastSeq   prometheus.Gauge
	ReplayEventsTotal prometheus.Counter
	ReplayDuration    prometheus.Gauge

	// --- API ---
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewMetrics creates all metrics and registers them with reg.
// Pass prometheus.NewRegistry() in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}
	dbBuckets := []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25}

	return &Metrics{
		// Core Processing
		CoreEventsApplied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "yv_core_events_applied_total",
			Help: "Commands successfully applied by core",
		}, []string{"event_type"}),

		CoreEventsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "yv_core_events_rejected_total",
			Help: "Commands rejected (dedup, gap, vault error)",
		}, []string{"event_type", "reason"}),

		CoreEventDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "yv_core_event_apply_duration_seconds",
			Help:    "Time to apply a single command in core",
			Buckets: latencyBuckets,
		}, []string{"event_type"}),

		CoreJournals: f.NewCounterVec(prometheus.CounterOpts{
			Name: "yv_core_journals_generated_total",
			Help: "Journal entries generated",
		}, []string{"journal_type"}),

		CoreStateHashDur: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "yv_core_state_hash_duration_seconds",
			Help:    "Time to compute state hash",
			Buckets: latencyBuckets,
		}),

		CoreSequence: f.NewGauge(prometheus.GaugeOpts{
			Name: "yv_core_sequence",
			Help: "Current global sequence number",
		}),

		// Vault
		VaultTotalAssets: f.NewGauge(prometheus.GaugeOpts{
			Name: "yv_vault_total_assets",
			Help: "Pool value in asset base units",
		}),

		VaultTotalSupply: f.NewGauge(prometheus.GaugeOpts{
			Name: "yv_vault_total_supply",
			Help: "Outstanding shares",
		}),

		VaultTotalDebt: f.NewGauge(prometheus.GaugeOpts{
			Name: "yv_vault_total_debt",
			Help: "Assets lent to the strategy",
		}),

		VaultIdleAssets: f.NewGauge(prometheus.GaugeOpts{
			Name: "yv_vault_idle_assets",
			Help: "Assets held in custody",
		}),

		VaultSharePrice: f.NewGauge(prometheus.GaugeOpts{
			Name: "yv_vault_share_price",
			Help: "Assets per share",
		}),

		VaultAssetsMoved: f.NewCounterVec(prometheus.CounterOpts{
			Name: "yv_vault_assets_moved_total",
			Help: "Asset base units moved by vault operations",
		}, []string{"operation"}),

		VaultRealizedLoss: f.NewCounter(prometheus.CounterOpts{
			Name: "yv_vault_realized_loss_total",
			Help: "Strategy losses passed on to withdrawing owners",
		}),

		StrategyReportsBps: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "yv_strategy_report_bps",
			Help:    "Strategy gain or loss as basis points of its holdings",
			Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
		}, []string{"kind"}),

		// Channel & Backpressure
		ChannelSize: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "yv_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ChannelCapacity: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "yv_channel_capacity",
			Help: "Channel capacity (constant)",
		}, []string{"name"}),

		ChannelUtilization: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "yv_channel_utilization",
			Help: "Channel size / capacity (0.0-1.0)",
		}, []string{"name"}),

		ProjectionDrops: f.NewCounterVec(prometheus.CounterOpts{
			Name: "yv_projection_drops_total",
			Help: "Events dropped due to full projection channel",
		}, []string{"projection"}),

		PublishDrops: f.NewCounter(prometheus.CounterOpts{
			Name: "yv_publish_drops_total",
			Help: "Events dropped due to full publish channel",
		}),

		PersistBackpressure: f.NewCounter(prometheus.CounterOpts{
			Name: "yv_persist_backpressure_total",
			Help: "Times core blocked on persist channel",
		}),

		// Idempotency & Ordering
		IdempotencyDuplicates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "yv_idempotency_duplicates_total",
			Help: "Duplicates caught (lru/postgres)",
		}, []string{"event_type", "tier"}),

		DedupLRUSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "yv_dedup_lru_size",
			Help: "Current LRU occupancy",
		}),

		DedupTier2Duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "yv_dedup_tier2_duration_seconds",
			Help:    "Postgres dedup lookup latency",
			Buckets: latencyBuckets,
		}),

		EventSequenceGap: f.NewCounterVec(prometheus.CounterOpts{
			Name: "yv_event_sequence_gap_total",
			Help: "Source sequence gaps",
		}, []string{"partition_kind"}),

		EventOutOfOrder: f.NewCounterVec(prometheus.CounterOpts{
			Name: "yv_event_out_of_order_total",
			Help: "Out-of-order rejections",
		}, []string{"partition_kind"}),

		// Persistence
		PersistEventsWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "yv_persist_events_written_total",
			Help: "Events written to Postgres",
		}),

		PersistJournalsWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "yv_persist_journals_written_total",
			Help: "Journal entries written to Postgres",
		}),

		PersistBatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "yv_persist_batch_size",
			Help:    "Events per batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistBatchDur: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "yv_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: dbBuckets,
		}),

		PersistErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "yv_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistRetry: f.NewCounter(prometheus.CounterOpts{
			Name: "yv_persist_retry_total",
			Help: "Persistence retries",
		}),

		PersistLastSequence: f.NewGauge(prometheus.GaugeOpts{
			Name: "yv_persist_last_sequence",
			Help: "Last persisted sequence",
		}),

		// Projection
		ProjectionUpdateDur: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "yv_projection_update_duration_seconds",
			Help:    "Projection table update duration",
			Buckets: dbBuckets,
		}, []string{"projection"}),

		ProjectionLastSeq: f.NewGauge(prometheus.GaugeOpts{
			Name: "yv_projection_last_sequence",
			Help: "Last sequence applied to projections",
		}),

		// Snapshot
		SnapshotTaken: f.NewCounter(prometheus.CounterOpts{
			Name: "yv_snapshot_taken_total",
			Help: "Snapshots created",
		}),

		SnapshotDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "yv_snapshot_duration_seconds",
			Help:    "Snapshot creation time",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
		}),

		SnapshotSizeBytes: f.NewGauge(prometheus.GaugeOpts{
			Name: "yv_snapshot_size_bytes",
			Help: "Last snapshot size",
		}),

		SnapshotLastSeq: f.NewGauge(prometheus.GaugeOpts{
			Name: "yv_snapshot_last_sequence",
			Help: "Sequence of last snapshot",
		}),

		ReplayEventsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "yv_replay_events_total",
			Help: "Events replayed on startup",
		}),

		ReplayDuration: f.NewGauge(prometheus.GaugeOpts{
			Name: "yv_replay_duration_seconds",
			Help: "Total replay time",
		}),

		// API
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "yv_api_requests_total",
			Help: "API requests",
		}, []string{"method", "code"}),

		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "yv_api_request_duration_seconds",
			Help:    "API latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"method"}),
	}
}

// SetChannelMetrics updates channel utilization metrics.
func (m *Metrics) SetChannelMetrics(name string, size, capacity int) {
	m.ChannelSize.WithLabelValues(name).Set(float64(size))
	m.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
	if capacity > 0 {
		m.ChannelUtilization.WithLabelValues(name).Set(float64(size) / float64(capacity))
	}
}

// SetVaultStats publishes a pool reading. price is assets per share.
func (m *Metrics) SetVaultStats(totalAssets, totalSupply, totalDebt, idle uint64, price float64) {
	m.VaultTotalAssets.Set(float64(totalAssets))
	m.VaultTotalSupply.Set(float64(totalSupply))
	m.VaultTotalDebt.Set(float64(totalDebt))
	m.VaultIdleAssets.Set(float64(idle))
	m.VaultSharePrice.Set(price)
}
