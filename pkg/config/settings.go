// Copyright © 2025 jackelyj <dreamerlyj@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
//

package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Repository backends.
const (
	BackendMemory  = "memory"
	BackendFile    = "file"
	BackendSQL     = "sql"
	BackendRedis   = "redis"
	BackendWebhook = "webhook"
	BackendNone    = "none"
)

// Settings is the typed view of the msgpipe configuration.
type Settings struct {
	Logging    LoggingSettings    `mapstructure:"logging"`
	Endpoint   EndpointSettings   `mapstructure:"endpoint"`
	Pipeline   PipelineSettings   `mapstructure:"pipeline"`
	Repository RepositorySettings `mapstructure:"repository"`
}

type LoggingSettings struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error dpanic panic fatal"`
}

type EndpointSettings struct {
	Address       string        `mapstructure:"address" validate:"required"`
	AcceptTimeout time.Duration `mapstructure:"accept_timeout" validate:"gt=0"`
	// Debug adds failure stacks to responses.
	Debug bool `mapstructure:"debug"`
	// Metrics serves GET /metrics.
	Metrics bool `mapstructure:"metrics"`
}

type PipelineSettings struct {
	FailFast       string `mapstructure:"fail_fast" validate:"oneof=raise capture off"`
	Resolution     string `mapstructure:"resolution" validate:"oneof=constructor factory"`
	FieldInjection bool   `mapstructure:"field_injection"`
	// Validation enables the payload validation middleware.
	Validation bool `mapstructure:"validation"`
	// Tracing enables the OpenTelemetry middleware.
	Tracing bool `mapstructure:"tracing"`
}

type RepositorySettings struct {
	Backend         string          `mapstructure:"backend" validate:"oneof=memory file sql redis webhook none"`
	PropagateErrors bool            `mapstructure:"propagate_errors"`
	File            FileSettings    `mapstructure:"file"`
	SQL             SQLSettings     `mapstructure:"sql"`
	Redis           RedisSettings   `mapstructure:"redis"`
	Webhook         WebhookSettings `mapstructure:"webhook"`
}

type FileSettings struct {
	Path     string `mapstructure:"path"`
	Compress bool   `mapstructure:"compress"`
}

type SQLSettings struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

type RedisSettings struct {
	Addr   string `mapstructure:"addr"`
	Stream string `mapstructure:"stream"`
	MaxLen int64  `mapstructure:"max_len" validate:"gte=0"`
}

type WebhookSettings struct {
	URL     string        `mapstructure:"url" validate:"omitempty,url"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gte=0"`
}

// Defaults lists every key with its default value.
func Defaults() map[string]any {
	return map[string]any{
		"logging.level":               "info",
		"endpoint.address":            ":8080",
		"endpoint.accept_timeout":     500 * time.Millisecond,
		"endpoint.debug":              false,
		"endpoint.metrics":            true,
		"pipeline.fail_fast":          "raise",
		"pipeline.resolution":         "constructor",
		"pipeline.field_injection":    false,
		"pipeline.validation":         true,
		"pipeline.tracing":            false,
		"repository.backend":          BackendMemory,
		"repository.propagate_errors": false,
		"repository.file.path":        "data/messages.bin",
		"repository.file.compress":    false,
		"repository.sql.dsn":          "",
		"repository.sql.table":        "pipeline_messages",
		"repository.redis.addr":       "localhost:6379",
		"repository.redis.stream":     "msgpipe:messages",
		"repository.redis.max_len":    0,
		"repository.webhook.url":      "",
		"repository.webhook.timeout":  5 * time.Second,
	}
}

// ApplyDefaults registers Defaults on m.
func ApplyDefaults(m *Manager) {
	for key, value := range Defaults() {
		m.SetDefault(key, value)
	}
}

// Load reads the layered configuration and returns validated settings.
func Load(options Options) (*Settings, error) {
	m := NewManager(options)
	ApplyDefaults(m)
	if err := m.Load(); err != nil {
		return nil, err
	}
	return FromManager(m)
}

// FromManager unmarshals and validates the settings held by m.
func FromManager(m *Manager) (*Settings, error) {
	var s Settings
	if err := m.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field values and the settings required by the selected backend.
func (s *Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	r := s.Repository
	var missing string
	switch r.Backend {
	case BackendFile:
		if r.File.Path == "" {
			missing = "repository.file.path"
		}
	case BackendSQL:
		if r.SQL.DSN == "" {
			missing = "repository.sql.dsn"
		}
	case BackendRedis:
		if r.Redis.Addr == "" {
			missing = "repository.redis.addr"
		}
	case BackendWebhook:
		if r.Webhook.URL == "" {
			missing = "repository.webhook.url"
		}
	}
	if missing != "" {
		return fmt.Errorf("invalid settings: %s is required for the %s backend", missing, r.Backend)
	}
	return nil
}
