package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Registry 本进程的指标注册表（不使用全局 DefaultRegisterer，测试之间互不干扰）
var Registry = prometheus.NewRegistry()

var (
	// APICalls 业务调用次数，result: ok|business_error|auth_expired|auth_failed|transport_error|canceled
	APICalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kis_api_calls_total",
			Help: "KIS business calls by HTTP method and result",
		},
		[]string{"method", "result"},
	)

	SessionRefresh = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kis_session_refresh_total",
		Help: "Forced token refreshes (session expiry or explicit)",
	})

	TokenIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kis_token_issued_total",
		Help: "Tokens issued by the auth endpoint",
	})

	HashKeyFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kis_hashkey_failures_total",
		Help: "Hash key requests that failed; the call proceeded without the header",
	})

	PagesFetched = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kis_pages_fetched_total",
		Help: "Pages fetched by the pagination driver",
	})

	ThrottleWait = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "kis_throttle_wait_seconds",
		Help:    "Time spent waiting on the rate limiter",
		Buckets: []float64{0, 0.005, 0.01, 0.02, 0.04, 0.06, 0.1, 0.25, 1},
	})
)

func init() {
	Registry.MustRegister(APICalls, SessionRefresh, TokenIssued, HashKeyFailures, PagesFetched, ThrottleWait)
}

// WriteText 以 Prometheus 文本格式输出全部指标（kis-call -metrics 使用）
func WriteText(w io.Writer) error {
	families, err := Registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
