package checkout

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 购买流程指标
type Metrics struct {
	transitions  *prometheus.CounterVec
	transactions *prometheus.CounterVec
	rejections   *prometheus.CounterVec
	readDuration *prometheus.HistogramVec
}

// NewMetrics 创建并注册指标；reg 为 nil 时指标不注册但仍可使用
// 同一 Registerer 上重复创建会复用已注册的指标
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "shop",
				Subsystem: "checkout",
				Name:      "transitions_total",
				Help:      "State machine transitions by target phase",
			},
			[]string{"phase"},
		),
		transactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "shop",
				Subsystem: "checkout",
				Name:      "transactions_total",
				Help:      "Submitted transactions by kind and final status",
			},
			[]string{"kind", "status"},
		),
		rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "shop",
				Subsystem: "checkout",
				Name:      "rejected_attempts_total",
				Help:      "Purchase attempts stopped before any submission",
			},
			[]string{"reason"},
		),
		readDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "shop",
				Subsystem: "ledger",
				Name:      "read_duration_seconds",
				Help:      "Ledger read latency",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"operation", "result"},
		),
	}

	if reg != nil {
		m.transitions = register(reg, m.transitions)
		m.transactions = register(reg, m.transactions)
		m.rejections = register(reg, m.rejections)
		m.readDuration = register(reg, m.readDuration)
	}
	return m
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return c
}

func (m *Metrics) transition(phase Phase) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(phase)).Inc()
}

func (m *Metrics) transaction(kind string, status string) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) rejection(reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) observeRead(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.readDuration.WithLabelValues(operation, result).Observe(time.Since(start).Seconds())
}
