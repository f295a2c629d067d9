package core

// SentinelKey is the zap field key that carries the request context.Context
// to the otelzap bridge. Console and file cores drop it.
const SentinelKey = "__obs_ctx__"

// SystemFieldPrefix is reserved for internal fields.
const SystemFieldPrefix = "__obs_"

// Protocols understood by the exporter registry.
const (
	ProtocolHTTP    = "http"
	ProtocolGRPC    = "grpc"
	ProtocolConsole = "console"
)

// Backend names, in registry order.
const (
	BackendHoneycomb  = "honeycomb"
	BackendGrafana    = "grafana"
	BackendSentry     = "sentry"
	BackendDatadog    = "datadog"
	BackendClickStack = "clickstack"
	BackendCollector  = "collector"
	BackendConsole    = "console"
)
