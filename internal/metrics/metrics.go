package metrics

import (
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/the-standard/smart-vault/internal/utils"
)

const namespace = "smartvault"

// VaultMetrics tracks ledger operations and liquidations.
type VaultMetrics struct {
	operations     *prometheus.CounterVec
	liquidations   prometheus.Counter
	liquidatedDebt prometheus.Counter
	openVaults     prometheus.Gauge
}

// OracleMetrics tracks rejected feed readings.
type OracleMetrics struct {
	rejections *prometheus.CounterVec
}

// SweepMetrics tracks keeper sweeps.
type SweepMetrics struct {
	cycles   *prometheus.CounterVec
	duration prometheus.Histogram
}

var (
	vaultOnce     sync.Once
	vaultRegistry *VaultMetrics

	oracleOnce     sync.Once
	oracleRegistry *OracleMetrics

	sweepOnce     sync.Once
	sweepRegistry *SweepMetrics
)

// Vault returns the lazily registered vault metrics.
func Vault() *VaultMetrics {
	vaultOnce.Do(func() {
		vaultRegistry = &VaultMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "vault",
				Name:      "operations_total",
				Help:      "Vault ledger operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			liquidations: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "vault",
				Name:      "liquidations_total",
				Help:      "Vaults moved to the liquidated state.",
			}),
			liquidatedDebt: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "vault",
				Name:      "liquidated_debt_total",
				Help:      "Debt cleared by liquidations, in whole debt tokens.",
			}),
			openVaults: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "vault",
				Name:      "open",
				Help:      "Vaults issued by the directory.",
			}),
		}
		prometheus.MustRegister(vaultRegistry.operations, vaultRegistry.liquidations, vaultRegistry.liquidatedDebt, vaultRegistry.openVaults)
	})
	return vaultRegistry
}

// ObserveOperation records the outcome of one ledger operation. The outcome is "ok" or the error kind.
func (m *VaultMetrics) ObserveOperation(operation, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
}

// ObserveLiquidation counts one liquidation and the 18 decimal debt it cleared.
func (m *VaultMetrics) ObserveLiquidation(debt sdkmath.Int) {
	if m == nil {
		return
	}
	m.liquidations.Inc()
	if amount, err := utils.SDKIntToFloat64(debt, 18); err == nil {
		m.liquidatedDebt.Add(amount)
	}
}

func (m *VaultMetrics) SetOpenVaults(count int) {
	if m == nil {
		return
	}
	m.openVaults.Set(float64(count))
}

// Oracle returns the lazily registered oracle metrics.
func Oracle() *OracleMetrics {
	oracleOnce.Do(func() {
		oracleRegistry = &OracleMetrics{
			rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "oracle",
				Name:      "rejections_total",
				Help:      "Feed readings rejected by validation, segmented by reason.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(oracleRegistry.rejections)
	})
	return oracleRegistry
}

func (m *OracleMetrics) RecordRejection(reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(reason).Inc()
}

// Sweep returns the lazily registered keeper metrics.
func Sweep() *SweepMetrics {
	sweepOnce.Do(func() {
		sweepRegistry = &SweepMetrics{
			cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "keeper",
				Name:      "sweeps_total",
				Help:      "Liquidation sweeps segmented by result.",
			}, []string{"result"}),
			duration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "keeper",
				Name:      "sweep_duration_seconds",
				Help:      "Wall clock duration of liquidation sweeps.",
				Buckets:   prometheus.DefBuckets,
			}),
		}
		prometheus.MustRegister(sweepRegistry.cycles, sweepRegistry.duration)
	})
	return sweepRegistry
}

// ObserveSweep records a finished sweep. Result is "liquidated", "empty" or "failed".
func (m *SweepMetrics) ObserveSweep(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(result).Inc()
	m.duration.Observe(elapsed.Seconds())
}
