package domain

import (
	"log/slog"
	"time"
)

// MemoryDataDir selects in-memory storage instead of an on-disk database;
// useful for tests and throwaway setups.
const MemoryDataDir = ":memory:"

type Config struct {
	Logger *slog.Logger `json:"-" yaml:"-"`

	DataDir string `json:"data_dir" yaml:"data_dir"`

	Engine     EngineConfig     `json:"engine" yaml:"engine"`
	Dispatcher DispatcherConfig `json:"dispatcher" yaml:"dispatcher"`
	Retention  RetentionConfig  `json:"retention" yaml:"retention"`
	Webhook    WebhookConfig    `json:"webhook" yaml:"webhook"`
}

type EngineConfig struct {
	WorkerCount      int           `json:"worker_count" yaml:"worker_count"`
	NodeTimeout      time.Duration `json:"node_timeout" yaml:"node_timeout"`
	ExecutionTimeout time.Duration `json:"execution_timeout" yaml:"execution_timeout"`
}

type ConflictPolicyType string

const (
	ConflictPolicyQueue            ConflictPolicyType = "queue"
	ConflictPolicyReject           ConflictPolicyType = "reject"
	ConflictPolicyParallelIsolated ConflictPolicyType = "parallel-isolated"
)

type DispatcherConfig struct {
	ConflictPolicy ConflictPolicyType `json:"conflict_policy" yaml:"conflict_policy"`
	QueueDepth     int                `json:"queue_depth" yaml:"queue_depth"`
}

type RetentionConfig struct {
	MaxRetainedPerGraph int           `json:"max_retained_per_graph" yaml:"max_retained_per_graph"`
	RetentionWindow     time.Duration `json:"retention_window" yaml:"retention_window"`
}

type WebhookConfig struct {
	// Disabled turns the HTTP ingress off entirely; BindAddr is ignored.
	Disabled       bool     `json:"disabled" yaml:"disabled"`
	BindAddr       string   `json:"bind_addr" yaml:"bind_addr"`
	AllowedOrigins []string `json:"allowed_origins,omitempty" yaml:"allowed_origins,omitempty"`
	EmitObserve    bool     `json:"emit_observe" yaml:"emit_observe"`
}

func (c *Config) Validate() error {
	if c.Engine.WorkerCount <= 0 {
		return Error{
			Type:    ErrorTypeInvalidInput,
			Message: "engine worker count must be positive",
			Details: map[string]interface{}{"worker_count": c.Engine.WorkerCount},
			Err:     ErrInvalidConfig,
		}
	}
	if c.Engine.NodeTimeout <= 0 {
		return Error{
			Type:    ErrorTypeInvalidInput,
			Message: "node timeout must be positive",
			Details: map[string]interface{}{"node_timeout": c.Engine.NodeTimeout.String()},
			Err:     ErrInvalidConfig,
		}
	}
	switch c.Dispatcher.ConflictPolicy {
	case ConflictPolicyQueue, ConflictPolicyReject, ConflictPolicyParallelIsolated:
	default:
		return Error{
			Type:    ErrorTypeInvalidInput,
			Message: "unknown conflict policy",
			Details: map[string]interface{}{"conflict_policy": string(c.Dispatcher.ConflictPolicy)},
			Err:     ErrInvalidConfig,
		}
	}
	if c.Retention.MaxRetainedPerGraph < 0 {
		return Error{
			Type:    ErrorTypeInvalidInput,
			Message: "retention count cannot be negative",
			Details: map[string]interface{}{"max_retained_per_graph": c.Retention.MaxRetainedPerGraph},
			Err:     ErrInvalidConfig,
		}
	}
	return nil
}
