package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const PrometheusNamespace = "oidc_rp"

const (
	HTTPClientRequestLabelMethod     = "method"
	HTTPClientRequestLabelURL        = "url"
	HTTPClientRequestLabelStatusCode = "status_code"
	HTTPClientRequestLabelError      = "error"

	AuthenticationLabelFlow   = "flow"
	AuthenticationLabelResult = "result"
)

const (
	HTTPRequestErrorDo                   = "do_request_error"
	HTTPRequestErrorReadBody             = "read_body_error"
	HTTPRequestErrorDecodeBody           = "decode_body_error"
	HTTPRequestErrorUnexpectedStatusCode = "unexpected_status_code"
)

const (
	ResultSuccess  = "success"
	ResultRejected = "rejected"
	ResultTimeout  = "timeout"
	ResultCanceled = "canceled"
	ResultError    = "error"
)

var requestDurationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

var callbackWaitBuckets = []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300}

var (
	prometheusMetrics     *PrometheusMetrics
	prometheusMetricsOnce sync.Once
)

// PrometheusMetrics represents the collector of metrics.
type PrometheusMetrics struct {
	HTTPClientRequestDuration *prometheus.HistogramVec
	AuthenticationsTotal      *prometheus.CounterVec
	CallbackWaitDuration      *prometheus.HistogramVec
}

// GetPrometheusMetrics returns the process wide collector,
// registering it with the default registry on first use.
func GetPrometheusMetrics() *PrometheusMetrics {
	prometheusMetricsOnce.Do(func() {
		prometheusMetrics = newPrometheusMetrics()
		prometheusMetrics.MustRegister()
	})
	return prometheusMetrics
}

func newPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		HTTPClientRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: PrometheusNamespace,
				Name:      "http_client_request_duration_seconds",
				Help:      "A histogram of the http client request durations to OP endpoints.",
				Buckets:   requestDurationBuckets,
			},
			[]string{HTTPClientRequestLabelMethod, HTTPClientRequestLabelURL,
				HTTPClientRequestLabelStatusCode, HTTPClientRequestLabelError},
		),
		AuthenticationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: PrometheusNamespace,
				Name:      "authentications_total",
				Help:      "Number of completed authentication attempts by flow and result.",
			},
			[]string{AuthenticationLabelFlow, AuthenticationLabelResult},
		),
		CallbackWaitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: PrometheusNamespace,
				Name:      "callback_wait_duration_seconds",
				Help:      "A histogram of the time spent waiting for the authorization callback.",
				Buckets:   callbackWaitBuckets,
			},
			[]string{AuthenticationLabelResult},
		),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(
		pm.HTTPClientRequestDuration,
		pm.AuthenticationsTotal,
		pm.CallbackWaitDuration,
	)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.HTTPClientRequestDuration)
	prometheus.Unregister(pm.AuthenticationsTotal)
	prometheus.Unregister(pm.CallbackWaitDuration)
}

func (pm *PrometheusMetrics) ObserveHTTPClientRequest(
	method string, targetURL string, statusCode int, elapsed time.Duration, errorType string,
) {
	pm.HTTPClientRequestDuration.With(prometheus.Labels{
		HTTPClientRequestLabelMethod:     method,
		HTTPClientRequestLabelURL:        targetURL,
		HTTPClientRequestLabelStatusCode: strconv.Itoa(statusCode),
		HTTPClientRequestLabelError:      errorType,
	}).Observe(elapsed.Seconds())
}

func (pm *PrometheusMetrics) IncAuthentication(flow string, result string) {
	pm.AuthenticationsTotal.With(prometheus.Labels{
		AuthenticationLabelFlow:   flow,
		AuthenticationLabelResult: result,
	}).Inc()
}

func (pm *PrometheusMetrics) ObserveCallbackWait(result string, elapsed time.Duration) {
	pm.CallbackWaitDuration.With(prometheus.Labels{
		AuthenticationLabelResult: result,
	}).Observe(elapsed.Seconds())
}
