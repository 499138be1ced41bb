package domain

import (
	"time"

	"dario.cat/mergo"
)

func DefaultConfig() *Config {
	return &Config{
		DataDir:    "./data",
		Engine:     DefaultEngineConfig(),
		Dispatcher: DefaultDispatcherConfig(),
		Retention:  DefaultRetentionConfig(),
		Webhook:    DefaultWebhookConfig(),
	}
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		WorkerCount:      8,
		NodeTimeout:      300 * time.Second,
		ExecutionTimeout: 30 * time.Minute,
	}
}

func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		ConflictPolicy: ConflictPolicyQueue,
		QueueDepth:     64,
	}
}

func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		MaxRetainedPerGraph: 10,
		RetentionWindow:     10 * time.Minute,
	}
}

func DefaultWebhookConfig() WebhookConfig {
	return WebhookConfig{
		BindAddr:    ":8080",
		EmitObserve: false,
	}
}

// ApplyDefaults overlays the default configuration under any explicitly set
// fields, so a caller only specifies what it wants to change.
func ApplyDefaults(config *Config) (*Config, error) {
	if config == nil {
		return DefaultConfig(), nil
	}

	merged := *config
	if err := mergo.Merge(&merged, DefaultConfig()); err != nil {
		return nil, Error{
			Type:    ErrorTypeInternal,
			Message: "failed to merge configuration defaults",
			Err:     err,
		}
	}

	return &merged, nil
}
