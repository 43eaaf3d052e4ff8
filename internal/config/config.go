// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package config implements the engine's YAML configuration, adapted
// from the teacher's internal/config (LoadAgentConfig/LoadServerConfig):
// unmarshal, then validate() in place to apply defaults and reject
// invalid combinations.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EngineConfig is the root configuration for a logpipe daemon: its
// identity, logging, sources, destinations, and the graph wiring them
// together.
type EngineConfig struct {
	Engine       EngineInfo        `yaml:"engine"`
	Logging      LoggingConfig     `yaml:"logging"`
	ControlSocket string           `yaml:"control_socket"`
	WebUIAddr    string            `yaml:"webui_addr"`
	PersistFile  string            `yaml:"persist_file"`
	Sources      []SourceConfig    `yaml:"sources"`
	Destinations []DestinationConfig `yaml:"destinations"`
	Nodes        []NodeConfig      `yaml:"nodes"`
	Edges        []EdgeConfig      `yaml:"edges"`
	Entry        string            `yaml:"entry"`
}

type EngineInfo struct {
	Name string `yaml:"name"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

type SourceConfig struct {
	Name         string `yaml:"name"`
	Type         string `yaml:"type"` // "tcptls" | "file"
	Listen       string `yaml:"listen"`
	Path         string `yaml:"path"`
	Parser       string `yaml:"parser"` // "rfc3164" | "rfc5424" | "json"
	WindowSize   int64  `yaml:"window_size"`
	RateLimitBps int    `yaml:"rate_limit_bytes_per_sec"`
	OnError      string `yaml:"on_error"`
	AckMode      string `yaml:"ack_mode"` // "instant" | "early" | "batched" (default)
	CACert       string `yaml:"ca_cert"`
	Cert         string `yaml:"cert"`
	Key          string `yaml:"key"`
}

type DestinationConfig struct {
	Name           string        `yaml:"name"`
	Type           string        `yaml:"type"` // "tcptls" | "file" | "s3"
	Addr           string        `yaml:"addr"`
	Path           string        `yaml:"path"`
	Formatter      string        `yaml:"formatter"`
	Compress       bool          `yaml:"compress"`
	QueueDir       string        `yaml:"queue_dir"`
	QueueMemOnly   bool          `yaml:"queue_memory_only"`
	QueueMaxEvents int           `yaml:"queue_max_events"`
	QueueMaxBytes  string        `yaml:"queue_max_bytes"`
	SegmentMaxBytes string       `yaml:"segment_max_bytes"`
	DebugLogDir    string        `yaml:"debug_log_dir"`
	CACert         string        `yaml:"ca_cert"`
	Cert           string        `yaml:"cert"`
	Key            string        `yaml:"key"`
	DSCP           string        `yaml:"ip_tos"`
	Retry          RetryConfig   `yaml:"retry"`
	Batch          BatchConfig   `yaml:"batch"`
}

type RetryConfig struct {
	BaseBackoff string `yaml:"base_backoff"`
	MaxBackoff  string `yaml:"max_backoff"`
	MaxAttempts int    `yaml:"max_attempts"`
}

type BatchConfig struct {
	MaxEvents int    `yaml:"max_events"`
	MaxBytes  string `yaml:"max_bytes"`
	MaxLinger string `yaml:"max_linger"`
}

type NodeConfig struct {
	Name   string            `yaml:"name"`
	Type   string            `yaml:"type"`
	Params map[string]string `yaml:"params"`
}

type EdgeConfig struct {
	From string   `yaml:"from"`
	To   []string `yaml:"to"`
}

// Load reads and validates an EngineConfig from path.
func Load(path string) (*EngineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var cfg EngineConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *EngineConfig) validate() error {
	if c.Engine.Name == "" {
		c.Engine.Name = "logpipe"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.PersistFile == "" {
		c.PersistFile = "/var/lib/logpipe/state.bin"
	}
	if c.Entry == "" && len(c.Sources) > 0 {
		return fmt.Errorf("entry node must be set when sources are configured")
	}

	if len(c.Sources) == 0 {
		return fmt.Errorf("at least one source must be configured")
	}
	seen := make(map[string]bool)
	for i := range c.Sources {
		s := &c.Sources[i]
		if s.Name == "" {
			return fmt.Errorf("sources[%d]: name is required", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate source name %q", s.Name)
		}
		seen[s.Name] = true
		if s.WindowSize <= 0 {
			s.WindowSize = 1000
		}
		if s.Parser == "" {
			s.Parser = "rfc3164"
		}
		if s.OnError == "" {
			s.OnError = "drop-message"
		}
	}

	for i := range c.Destinations {
		d := &c.Destinations[i]
		if d.Name == "" {
			return fmt.Errorf("destinations[%d]: name is required", i)
		}
		if d.Batch.MaxEvents <= 0 {
			d.Batch.MaxEvents = 100
		}
		if d.Retry.MaxAttempts <= 0 {
			d.Retry.MaxAttempts = 5
		}
		if d.Retry.BaseBackoff == "" {
			d.Retry.BaseBackoff = "1s"
		}
		if d.Retry.MaxBackoff == "" {
			d.Retry.MaxBackoff = "30s"
		}
		if d.Batch.MaxLinger == "" {
			d.Batch.MaxLinger = "1s"
		}
		if d.QueueMaxEvents <= 0 {
			d.QueueMaxEvents = 10000
		}
	}

	return nil
}

// ParseByteSize parses human-readable byte sizes ("256mb", "1gb", "512",
// "64kb"), adapted verbatim in behavior from the teacher's
// config.ParseByteSize: longest-suffix-first matching, plain integers
// treated as raw bytes.
var byteSizeRe = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*([a-zA-Z]*)$`)

func ParseByteSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("config: empty byte size")
	}
	m := byteSizeRe.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("config: invalid byte size %q", s)
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("config: invalid byte size %q: %w", s, err)
	}
	unit := strings.ToLower(m[2])
	var mult float64 = 1
	switch unit {
	case "", "b":
		mult = 1
	case "kb", "k":
		mult = 1 << 10
	case "mb", "m":
		mult = 1 << 20
	case "gb", "g":
		mult = 1 << 30
	default:
		return 0, fmt.Errorf("config: unknown byte size unit %q", unit)
	}
	return int64(value * mult), nil
}

// ParseDuration wraps time.ParseDuration with a config-specific error
// message, matching the teacher's config error-wrapping convention.
func ParseDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	return d, nil
}
