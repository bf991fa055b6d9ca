package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	registerOnce             sync.Once
	mutationRequests         *prometheus.CounterVec
	mirrorReloads            *prometheus.CounterVec
	mirrorReloadDuration     *prometheus.HistogramVec
	mirrorRecords            *prometheus.GaugeVec
	dashboardComputeDuration *prometheus.HistogramVec
	notificationDeliveries   *prometheus.CounterVec
	defaultDurationBuckets   = prometheus.DefBuckets
)

const namespaceMetrics = "promptmanager"

// MustRegister 初始化 Prometheus 指标并注册 Go 运行时采样器，需在启动阶段调用一次。
func MustRegister() {
	registerOnce.Do(func() {
		mutationRequests = registerCounterVec(prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespaceMetrics,
				Subsystem: "store",
				Name:      "mutations_total",
				Help:      "写操作次数，按操作与结果统计。",
			},
			[]string{"operation", "result"},
		))
		mirrorReloads = registerCounterVec(prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespaceMetrics,
				Subsystem: "mirror",
				Name:      "reloads_total",
				Help:      "本地镜像整体重载次数，按结果统计。",
			},
			[]string{"result"},
		))
		mirrorReloadDuration = registerHistogramVec(prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespaceMetrics,
				Subsystem: "mirror",
				Name:      "reload_duration_seconds",
				Help:      "本地镜像重载耗时。",
				Buckets:   defaultDurationBuckets,
			},
			[]string{"result"},
		))
		mirrorRecords = registerGaugeVec(prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespaceMetrics,
				Subsystem: "mirror",
				Name:      "records",
				Help:      "本地镜像中的记录数，按是否软删除区分。",
			},
			[]string{"state"},
		))
		dashboardComputeDuration = registerHistogramVec(prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespaceMetrics,
				Subsystem: "dashboard",
				Name:      "compute_duration_seconds",
				Help:      "统计快照的计算耗时。",
				Buckets:   defaultDurationBuckets,
			},
			[]string{"trigger"},
		))
		notificationDeliveries = registerCounterVec(prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespaceMetrics,
				Subsystem: "moderation",
				Name:      "notifications_total",
				Help:      "删除申请通知的投递次数，按渠道与结果统计。",
			},
			[]string{"channel", "result"},
		))

		registerRuntimeCollectors()
	})
}

// RecordMutation 记录一次写操作的结果。
func RecordMutation(operation, result string) {
	if mutationRequests == nil {
		return
	}
	mutationRequests.WithLabelValues(normalizeLabel(operation, "unknown"), normalizeLabel(result, "unknown")).Inc()
}

// ObserveMirrorReload 记录镜像重载的结果、耗时与当前记录数。
func ObserveMirrorReload(result string, duration time.Duration, active, deleted int) {
	if mirrorReloads == nil {
		return
	}
	label := normalizeLabel(result, "unknown")
	mirrorReloads.WithLabelValues(label).Inc()
	mirrorReloadDuration.WithLabelValues(label).Observe(duration.Seconds())
	if label == "success" {
		mirrorRecords.WithLabelValues("active").Set(float64(active))
		mirrorRecords.WithLabelValues("deleted").Set(float64(deleted))
	}
}

// ObserveDashboardCompute 记录统计快照的计算耗时。
func ObserveDashboardCompute(trigger string, duration time.Duration) {
	if dashboardComputeDuration == nil {
		return
	}
	dashboardComputeDuration.WithLabelValues(normalizeLabel(trigger, "snapshot")).Observe(duration.Seconds())
}

// RecordNotification 记录一次删除申请通知的投递结果。
func RecordNotification(channel, result string) {
	if notificationDeliveries == nil {
		return
	}
	notificationDeliveries.WithLabelValues(normalizeLabel(channel, "unknown"), normalizeLabel(result, "unknown")).Inc()
}

func normalizeLabel(value string, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

func registerCounterVec(vec *prometheus.CounterVec) *prometheus.CounterVec {
	if err := prometheus.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
		panic(err)
	}
	return vec
}

func registerHistogramVec(vec *prometheus.HistogramVec) *prometheus.HistogramVec {
	if err := prometheus.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing
			}
		}
		panic(err)
	}
	return vec
}

func registerGaugeVec(vec *prometheus.GaugeVec) *prometheus.GaugeVec {
	if err := prometheus.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing
			}
		}
		panic(err)
	}
	return vec
}

func registerRuntimeCollectors() {
	for _, c := range []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := prometheus.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				panic(err)
			}
		}
	}
}
