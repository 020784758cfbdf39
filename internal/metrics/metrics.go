// Package metrics はセッション検証とプロバイダー呼び出しのメトリクスを記録します。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder はメトリクスの記録先です。
// 無効時は Noop、本番では Prometheus を使います。
type Recorder interface {
	// RecordVerification はセッション検証の各ステップの結果を記録します。
	RecordVerification(strategy string, authorized bool)
	// RecordProviderCall はプロバイダー呼び出しの結果と所要時間を記録します。
	RecordProviderCall(operation, outcome string, elapsed time.Duration)
}

// プロバイダー呼び出しの outcome ラベルです。
const (
	OutcomeOK             = "ok"
	OutcomeProviderError  = "provider_error"
	OutcomeTransportError = "transport_error"
)

// Prometheus は Prometheus にメトリクスを記録します。
type Prometheus struct {
	verificationsTotal    *prometheus.CounterVec
	providerCallsTotal    *prometheus.CounterVec
	providerCallDurations *prometheus.HistogramVec
}

// NewPrometheus は reg に登録済みの Recorder を返します。
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	verificationsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wiki_gate_session_verifications_total",
		Help: "Session verification steps by strategy and result",
	}, []string{"strategy", "result"})

	providerCallsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wiki_gate_provider_calls_total",
		Help: "Calls to the identity provider by operation and outcome",
	}, []string{"operation", "outcome"})

	providerCallDurations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wiki_gate_provider_call_duration_seconds",
		Help:    "Latency of identity provider calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	reg.MustRegister(verificationsTotal, providerCallsTotal, providerCallDurations)

	return &Prometheus{
		verificationsTotal:    verificationsTotal,
		providerCallsTotal:    providerCallsTotal,
		providerCallDurations: providerCallDurations,
	}
}

func (p *Prometheus) RecordVerification(strategy string, authorized bool) {
	result := "rejected"
	if authorized {
		result = "authorized"
	}
	p.verificationsTotal.WithLabelValues(strategy, result).Inc()
}

func (p *Prometheus) RecordProviderCall(operation, outcome string, elapsed time.Duration) {
	p.providerCallsTotal.WithLabelValues(operation, outcome).Inc()
	p.providerCallDurations.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// Noop は何も記録しません。
type Noop struct{}

func (Noop) RecordVerification(string, bool) {}

func (Noop) RecordProviderCall(string, string, time.Duration) {}

var (
	_ Recorder = (*Prometheus)(nil)
	_ Recorder = Noop{}
)
