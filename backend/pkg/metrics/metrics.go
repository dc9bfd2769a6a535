package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 考勤连续性追踪指标，注册到默认 Registry，由 /metrics 暴露
var (
	submissionsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moeen_continuity_submissions_total",
		Help: "Attendance submissions recorded, by detector outcome",
	}, []string{"outcome"})

	alertsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "moeen_continuity_alerts_created_total",
		Help: "Missed-absence alerts created by gap detection",
	})

	alertsDismissed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "moeen_continuity_alerts_dismissed_total",
		Help: "Missed-absence alerts moved from pending to ignored",
	})

	scheduleIngestions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moeen_continuity_schedule_ingestions_total",
		Help: "Schedule ingestions, by source",
	}, []string{"source"})

	persistenceLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "moeen_continuity_persistence_seconds",
		Help:    "Latency of document load/save round trips",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"op", "result"})

	lockFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "moeen_continuity_lock_fallbacks_total",
		Help: "Owner locks acquired locally because Redis was unavailable",
	})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "moeen_http_request_duration_seconds",
		Help:    "HTTP request latency, by route and status",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// SubmissionRecorded 记录一次提交及其检测结果
func SubmissionRecorded(outcome string, newAlerts int) {
	submissionsRecorded.WithLabelValues(outcome).Inc()
	if newAlerts > 0 {
		alertsCreated.Add(float64(newAlerts))
	}
}

// AlertDismissed 记录一次告警忽略
func AlertDismissed() { alertsDismissed.Inc() }

// ScheduleIngested 记录一次课表导入，source 为 api | ics
func ScheduleIngested(source string) { scheduleIngestions.WithLabelValues(source).Inc() }

// LockFallback 记录一次 Redis 锁降级
func LockFallback() { lockFallbacks.Inc() }

// ObservePersistence 记录存储操作耗时
func ObservePersistence(op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	persistenceLatency.WithLabelValues(op, result).Observe(time.Since(start).Seconds())
}

// ObserveHTTP 记录一次 HTTP 请求耗时；route 为路由模板，未匹配时为空
func ObserveHTTP(method, route string, status int, start time.Time) {
	if route == "" {
		route = "unmatched"
	}
	httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
}
