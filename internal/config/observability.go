package config

// DatadogConfig holds Datadog APM tracing configuration.
//
// Tracing uses the local Datadog Agent for OTLP ingestion; the agent holds
// the API key, so none appears here. See internal/observability for the
// exporter setup.
type DatadogConfig struct {
	// AgentHost is the Datadog Agent OTLP endpoint (default: localhost:4318)
	AgentHost string `mapstructure:"agent_host" json:"agent_host"`
	// Environment is the deployment environment tag (default: dev)
	Environment string `mapstructure:"environment" json:"environment"`
	// ServiceName is the service name in Datadog APM (default: ragchat)
	ServiceName string `mapstructure:"service_name" json:"service_name"`
}
