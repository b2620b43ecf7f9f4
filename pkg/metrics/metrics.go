package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 模型调用延迟（毫秒）
	LLMCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_call_latency_ms",
			Help:    "Model provider call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(100, 2, 10), // 100ms to ~100s
		},
		[]string{"provider", "status"},
	)

	// 对话轮次计数
	ChatTurnCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_turn_count",
			Help: "Total number of chat turns handled",
		},
		[]string{"outcome"}, // outcome: greeting, answered, tools, model_error, timeout
	)

	// 工具调用计数
	ToolCallCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tool_call_count",
			Help: "Total number of tool invocations requested by the model",
		},
		[]string{"tool", "status"}, // status: ok, error, unknown
	)

	// 数据库查询延迟（秒）
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation", "table"},
	)

	SlowQueryCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "db_slow_query_count",
			Help: "Total number of queries slower than the configured threshold",
		},
	)

	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"method", "path", "status"},
	)

	// Outbox 发布计数
	OutboxPublishCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_publish_count",
			Help: "Outbox events publish attempts",
		},
		[]string{"routing_key", "status"},
	)

	// 任务生成计数
	TaskGenerationCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "task_generation_count",
			Help: "Total number of tasks created",
		},
		[]string{"source"}, // source: chat, api, recurrence
	)
)

// RecordLLMCallLatency 记录模型调用延迟
func RecordLLMCallLatency(provider, status string, duration time.Duration) {
	LLMCallLatency.WithLabelValues(provider, status).Observe(float64(duration.Milliseconds()))
}

// IncrementChatTurn 增加对话轮次计数
func IncrementChatTurn(outcome string) {
	ChatTurnCount.WithLabelValues(outcome).Inc()
}

// IncrementToolCall 增加工具调用计数
func IncrementToolCall(tool, status string) {
	ToolCallCount.WithLabelValues(tool, status).Inc()
}

// RecordDBQueryDuration 记录数据库查询延迟
func RecordDBQueryDuration(operation, table string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// IncrementSlowQuery 记录慢查询
func IncrementSlowQuery() {
	SlowQueryCount.Inc()
}

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// IncrementOutboxPublish 记录 outbox 发布结果
func IncrementOutboxPublish(routingKey, status string) {
	OutboxPublishCount.WithLabelValues(routingKey, status).Inc()
}

// IncrementTaskGeneration 增加任务生成计数
func IncrementTaskGeneration(source string) {
	TaskGenerationCount.WithLabelValues(source).Inc()
}
