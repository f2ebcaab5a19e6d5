// Package config provides configuration parsing and validation for the
// alert core service.
package config

import (
	"fmt"
	"time"
)

// Config holds all configuration parameters for the alert core service.
type Config struct {
	PostgresDSN  string
	KafkaBrokers string
	RawTopic     string
	GroupID      string
	RedisAddr    string

	GroupingWindow    time.Duration
	SweepInterval     time.Duration
	DispatchBatchSize int
	SweepBatchSize    int
}

// Validate checks that all required configuration fields are set and have
// valid values. Returns an error if validation fails, nil otherwise.
func (c *Config) Validate() error {
	if c.PostgresDSN == "" {
		return fmt.Errorf("postgres-dsn cannot be empty")
	}
	if c.KafkaBrokers == "" {
		return fmt.Errorf("kafka-brokers cannot be empty")
	}
	if c.RawTopic == "" {
		return fmt.Errorf("raw-topic cannot be empty")
	}
	if c.GroupID == "" {
		return fmt.Errorf("group-id cannot be empty")
	}
	if c.GroupingWindow <= 0 {
		return fmt.Errorf("grouping-window must be positive")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep-interval must be positive")
	}
	if c.DispatchBatchSize <= 0 {
		return fmt.Errorf("dispatch-batch-size must be positive")
	}
	if c.SweepBatchSize <= 0 {
		return fmt.Errorf("sweep-batch-size must be positive")
	}
	return nil
}
