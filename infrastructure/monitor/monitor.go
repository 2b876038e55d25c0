package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"execution-sim-go/risk"
	"execution-sim-go/sim"
)

// Monitor Prometheus监控指标收集器
type Monitor struct {
	registry *prometheus.Registry

	// 成交指标
	orders      *prometheus.CounterVec
	legs        *prometheus.CounterVec
	midFills    prometheus.Counter
	contracts   prometheus.Counter
	slippage    prometheus.Histogram
	latency     prometheus.Histogram
	slipCostUSD prometheus.Counter

	// 风控指标
	decisions     *prometheus.CounterVec
	worstCaseLoss prometheus.Histogram
	notchIndex    prometheus.Gauge
	lossLimit     prometheus.Gauge
	realizedToday prometheus.Gauge
	dailyPnL      prometheus.Gauge
	notchMoves    *prometheus.CounterVec
}

// Config 监控配置
type Config struct {
	Namespace string
	Subsystem string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Namespace: "execsim",
		Subsystem: "backtest",
	}
}

// New 创建新的Monitor实例，使用独立 registry
func New(cfg Config) *Monitor {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Monitor{
		registry: reg,

		orders: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "orders_total",
				Help:      "模拟订单数（按成交状态与 profile）",
			},
			[]string{"profile", "status"},
		),
		legs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "legs_total",
				Help:      "模拟单腿数（按状态与原因）",
			},
			[]string{"status", "reason"},
		),
		midFills: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "mid_fills_total",
			Help:      "按中间价成交的腿数",
		}),
		contracts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "filled_contracts_total",
			Help:      "累计成交张数",
		}),
		slippage: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "leg_slippage_dollars",
			Help:      "单腿相对决策中间价的滑点（每张，美元，正数不利）",
			Buckets:   []float64{-0.05, 0, 0.01, 0.02, 0.05, 0.10, 0.20, 0.50},
		}),
		latency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "fill_latency_seconds",
			Help:      "模拟成交延迟分布（秒）",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
		}),
		slipCostUSD: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "slippage_cost_dollars_total",
			Help:      "累计不利滑点成本（美元）",
		}),

		decisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "gate_decisions_total",
				Help:      "风控准入决策数（按原因）",
			},
			[]string{"reason"},
		),
		worstCaseLoss: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "worst_case_loss_dollars",
			Help:      "准入检查时的最坏成交亏损（美元）",
			Buckets:   []float64{50, 100, 200, 300, 500, 750, 1000},
		}),
		notchIndex: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "notch_index",
			Help:      "当前亏损上限档位（0 最宽松）",
		}),
		lossLimit: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "daily_loss_limit_dollars",
			Help:      "当前生效的日亏损上限",
		}),
		realizedToday: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "realized_today_dollars",
			Help:      "当日已实现盈亏",
		}),
		dailyPnL: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "last_day_pnl_dollars",
			Help:      "最近一个收盘日的盈亏",
		}),
		notchMoves: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "notch_adjustments_total",
				Help:      "档位调整次数（按规则）",
			},
			[]string{"reason"},
		),
	}
}

// RecordFill 记录一次模拟结果
func (m *Monitor) RecordFill(res sim.FillResult) {
	m.orders.WithLabelValues(res.Profile, res.Status.String()).Inc()
	for _, l := range res.Legs {
		m.legs.WithLabelValues(l.Status.String(), l.Reason).Inc()
		if l.Filled == 0 {
			continue
		}
		m.contracts.Add(float64(l.Filled))
		m.slippage.Observe(l.Slippage)
		m.latency.Observe(l.LatencyMs / 1000)
		if l.MidFill {
			m.midFills.Inc()
		}
	}
	if res.SlippageCost > 0 {
		m.slipCostUSD.Add(res.SlippageCost)
	}
}

// RecordDecision 记录准入决策并刷新账本视图
func (m *Monitor) RecordDecision(d risk.Decision) {
	m.decisions.WithLabelValues(d.Reason).Inc()
	if d.WorstCaseLoss > 0 {
		m.worstCaseLoss.Observe(d.WorstCaseLoss)
	}
	if d.Reason == risk.RejectLedgerUnavailable {
		return
	}
	m.notchIndex.Set(float64(d.NotchIndex))
	m.lossLimit.Set(d.Limit)
	m.realizedToday.Set(d.RealizedToday)
}

// RecordNotch 记录日终档位调整
func (m *Monitor) RecordNotch(a risk.NotchAdjustment) {
	m.notchMoves.WithLabelValues(a.Reason).Inc()
	m.dailyPnL.Set(a.DailyPnL)
	m.notchIndex.Set(float64(a.NewIndex))
	m.lossLimit.Set(a.NewLimit)
	m.realizedToday.Set(0)
}

// UpdateLedger 直接同步账本快照（启动或恢复时）
func (m *Monitor) UpdateLedger(st risk.LedgerState) {
	m.notchIndex.Set(float64(st.NotchIndex))
	m.lossLimit.Set(st.Limit())
	m.realizedToday.Set(st.RealizedToday)
}

// Handler 返回HTTP handler用于暴露指标
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 返回prometheus registry
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}
