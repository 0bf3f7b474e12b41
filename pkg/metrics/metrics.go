// Package metrics HTTP 请求与组织操作的 Prometheus 指标
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder 处理器与中间件上报指标的接口
type Recorder interface {
	RecordRequest(method, route string, status int, duration time.Duration)
	RecordOrgOperation(op string, err error)
	RecordLogin(provider string, created bool)
}

// Collector Prometheus 实现
type Collector struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	orgOps   *prometheus.CounterVec
	logins   *prometheus.CounterVec
}

var _ Recorder = (*Collector)(nil)

// NewCollector 创建并注册指标
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quickcap_http_requests_total",
			Help: "HTTP requests by method, route pattern and status code.",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quickcap_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		orgOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quickcap_org_operations_total",
			Help: "Organization operations by name and result.",
		}, []string{"operation", "result"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quickcap_logins_total",
			Help: "Completed OAuth logins by provider and whether the user was new.",
		}, []string{"provider", "new_user"}),
	}

	reg.MustRegister(c.requests, c.latency, c.orgOps, c.logins)
	return c
}

// RecordRequest 记录一次 HTTP 请求
func (c *Collector) RecordRequest(method, route string, status int, duration time.Duration) {
	c.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.latency.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordOrgOperation 记录组织操作结果
func (c *Collector) RecordOrgOperation(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.orgOps.WithLabelValues(op, result).Inc()
}

// RecordLogin 记录登录
func (c *Collector) RecordLogin(provider string, created bool) {
	c.logins.WithLabelValues(provider, strconv.FormatBool(created)).Inc()
}

// Handler 以 Prometheus 文本格式输出 registry
func Handler(reg prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// Nop 丢弃所有指标
type Nop struct{}

func (Nop) RecordRequest(string, string, int, time.Duration) {}
func (Nop) RecordOrgOperation(string, error) {}
func (Nop) RecordLogin(string, bool) {}
