package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type LedgerMetrics struct {
	purchases       *prometheus.CounterVec
	purchaseUsd     *prometheus.CounterVec
	claims          *prometheus.CounterVec
	referralRewards *prometheus.CounterVec
	stakeDeposits   prometheus.Counter
	stakeUnstakes   prometheus.Counter
	totalStaked     prometheus.Gauge
	rpcRequests     *prometheus.CounterVec
	rpcLatency      *prometheus.HistogramVec
}

var (
	ledgerOnce     sync.Once
	ledgerRegistry *LedgerMetrics
)

func Ledger() *LedgerMetrics {
	ledgerOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			purchases: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "ico_purchases_total",
				Help: "Count of successful purchases by sale type and payment asset.",
			}, []string{"sale_type", "asset"}),
			purchaseUsd: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "ico_purchase_usd_total",
				Help: "USD value of successful purchases by sale type.",
			}, []string{"sale_type"}),
			claims: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "ico_claims_total",
				Help: "Count of deferred-settlement claims by sale type.",
			}, []string{"sale_type"}),
			referralRewards: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "ico_referral_rewards_total",
				Help: "Count of referral reward accruals by payout mode.",
			}, []string{"mode"}),
			stakeDeposits: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "ico_stake_deposits_total",
				Help: "Count of opened stake positions.",
			}),
			stakeUnstakes: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "ico_stake_unstakes_total",
				Help: "Count of closed stake positions.",
			}),
			totalStaked: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "ico_total_staked",
				Help: "Sum of active stake principals in base token units.",
			}),
			rpcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "ico_rpc_requests_total",
				Help: "Count of RPC requests by method and status code.",
			}, []string{"method", "status"}),
			rpcLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "ico_rpc_latency_seconds",
				Help:    "RPC handler latency by method.",
				Buckets: prometheus.DefBuckets,
			}, []string{"method"}),
		}
		prometheus.MustRegister(
			ledgerRegistry.purchases,
			ledgerRegistry.purchaseUsd,
			ledgerRegistry.claims,
			ledgerRegistry.referralRewards,
			ledgerRegistry.stakeDeposits,
			ledgerRegistry.stakeUnstakes,
			ledgerRegistry.totalStaked,
			ledgerRegistry.rpcRequests,
			ledgerRegistry.rpcLatency,
		)
	})
	return ledgerRegistry
}

func (m *LedgerMetrics) ObservePurchase(saleType, asset string, usd float64) {
	if m == nil {
		return
	}
	if saleType == "" {
		saleType = "unknown"
	}
	if asset == "" {
		asset = "unknown"
	}
	m.purchases.WithLabelValues(saleType, asset).Inc()
	if usd > 0 {
		m.purchaseUsd.WithLabelValues(saleType).Add(usd)
	}
}

func (m *LedgerMetrics) ObserveClaim(saleType string) {
	if m == nil {
		return
	}
	if saleType == "" {
		saleType = "unknown"
	}
	m.claims.WithLabelValues(saleType).Inc()
}

func (m *LedgerMetrics) ObserveReferralReward(deferred bool) {
	if m == nil {
		return
	}
	mode := "immediate"
	if deferred {
		mode = "deferred"
	}
	m.referralRewards.WithLabelValues(mode).Inc()
}

func (m *LedgerMetrics) ObserveStakeDeposit() {
	if m == nil {
		return
	}
	m.stakeDeposits.Inc()
}

func (m *LedgerMetrics) ObserveUnstake() {
	if m == nil {
		return
	}
	m.stakeUnstakes.Inc()
}

func (m *LedgerMetrics) SetTotalStaked(amount float64) {
	if m == nil {
		return
	}
	m.totalStaked.Set(amount)
}

func (m *LedgerMetrics) ObserveRPC(method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	m.rpcRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.rpcLatency.WithLabelValues(method).Observe(duration.Seconds())
}
