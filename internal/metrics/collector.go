// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// 路由指标
	routeRequestsTotal  *prometheus.CounterVec
	routeFallbacksTotal *prometheus.CounterVec

	// 流式指标
	streamInterruptionsTotal *prometheus.CounterVec
	transcriptionsTotal      *prometheus.CounterVec

	// 配置缓存指标
	configCacheHits   *prometheus.CounterVec
	configCacheMisses *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器。reg 为 nil 时使用默认注册表。
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// 路由指标
	c.routeRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "route_requests_total",
			Help:      "Total number of routed model requests",
		},
		[]string{"modality", "platform"},
	)

	c.routeFallbacksTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "route_fallbacks_total",
			Help:      "Total number of fallbacks to the system default model",
		},
		[]string{"reason"},
	)

	// 流式指标
	c.streamInterruptionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_interruptions_total",
			Help:      "Total number of streams ended by mid-stream failure recovery",
		},
		[]string{"platform"},
	)

	c.transcriptionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcriptions_total",
			Help:      "Total number of completed speech transcriptions",
		},
		[]string{"platform"},
	)

	// 配置缓存指标
	c.configCacheHits = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_cache_hits_total",
			Help:      "Total number of model config cache hits",
		},
		[]string{"layer"},
	)

	c.configCacheMisses = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_cache_misses_total",
			Help:      "Total number of model config cache misses",
		},
		[]string{"layer"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 路由指标记录
// =============================================================================

// RecordRouteRequest 记录一次路由请求
func (c *Collector) RecordRouteRequest(modality, platform string) {
	c.routeRequestsTotal.WithLabelValues(modality, platform).Inc()
}

// RecordFallback 记录一次降级
func (c *Collector) RecordFallback(reason string) {
	c.routeFallbacksTotal.WithLabelValues(reason).Inc()
}

// =============================================================================
// 🌊 流式指标记录
// =============================================================================

// RecordStreamInterruption 记录一次流中断恢复
func (c *Collector) RecordStreamInterruption(platform string) {
	c.streamInterruptionsTotal.WithLabelValues(platform).Inc()
}

// RecordTranscription 记录一次语音转写完成
func (c *Collector) RecordTranscription(platform string) {
	c.transcriptionsTotal.WithLabelValues(platform).Inc()
}

// =============================================================================
// 💾 配置缓存指标记录
// =============================================================================

// RecordConfigCacheHit 记录配置缓存命中
func (c *Collector) RecordConfigCacheHit(layer string) {
	c.configCacheHits.WithLabelValues(layer).Inc()
}

// RecordConfigCacheMiss 记录配置缓存未命中
func (c *Collector) RecordConfigCacheMiss(layer string) {
	c.configCacheMisses.WithLabelValues(layer).Inc()
}
