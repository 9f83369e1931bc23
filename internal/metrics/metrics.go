package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "tronity",
	Name:      "request_duration_seconds",
	Help:      "Duration of Tronity API requests.",
	Buckets:   prometheus.DefBuckets,
}, []string{"connector", "op", "status"})

var tokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "tronity",
	Name:      "token_refresh_total",
	Help:      "Total number of token requests by result.",
}, []string{"connector", "result"})

var pollCycles = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "connector",
	Name:      "poll_cycles_total",
	Help:      "Total number of poll cycles by result.",
}, []string{"connector", "result"})

var pollDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "connector",
	Name:      "poll_duration_seconds",
	Help:      "Duration of complete poll cycles.",
	Buckets:   prometheus.DefBuckets,
}, []string{"connector"})

var vehiclesGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "connector",
	Name:      "vehicles",
	Help:      "Number of vehicles managed by the connector.",
}, []string{"connector"})

var healthyGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "connector",
	Name:      "healthy",
	Help:      "1 if the connector is healthy.",
}, []string{"connector"})

var mappingErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "connector",
	Name:      "mapping_errors_total",
	Help:      "Total number of fields that could not be mapped.",
}, []string{"connector", "document"})

// ObserveRequest 记录 Tronity API 请求耗时
func ObserveRequest(connector, op string, status int, elapsed time.Duration) {
	if len(connector) == 0 || len(op) == 0 {
		return
	}
	requestDuration.With(prometheus.Labels{
		"connector": connector,
		"op":        op,
		"status":    strconv.Itoa(status),
	}).Observe(elapsed.Seconds())
}

// ObserveTokenRefresh 记录令牌获取结果
func ObserveTokenRefresh(connector, result string) {
	if len(connector) == 0 {
		return
	}
	tokenRefreshes.With(prometheus.Labels{"connector": connector, "result": result}).Inc()
}

// ObservePoll 记录一次轮询的结果和耗时
func ObservePoll(connector, result string, elapsed time.Duration) {
	if len(connector) == 0 {
		return
	}
	pollCycles.With(prometheus.Labels{"connector": connector, "result": result}).Inc()
	pollDuration.With(prometheus.Labels{"connector": connector}).Observe(elapsed.Seconds())
}

// ObserveVehicles 记录连接器管理的车辆数
func ObserveVehicles(connector string, count int) {
	if len(connector) == 0 {
		return
	}
	vehiclesGauge.With(prometheus.Labels{"connector": connector}).Set(float64(count))
}

// ObserveMappingError 记录字段映射失败
func ObserveMappingError(connector, document string) {
	if len(connector) == 0 {
		return
	}
	mappingErrors.With(prometheus.Labels{"connector": connector, "document": document}).Inc()
}

// SetHealthy 设置连接器健康状态
func SetHealthy(connector string, healthy bool) {
	if len(connector) == 0 {
		return
	}
	v := 0.0
	if healthy {
		v = 1
	}
	healthyGauge.With(prometheus.Labels{"connector": connector}).Set(v)
}
