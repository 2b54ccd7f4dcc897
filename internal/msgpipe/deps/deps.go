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

// Package deps assembles the msgpipe server from its settings.
package deps

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/innovationmech/msgpipe/internal/demo"
	"github.com/innovationmech/msgpipe/pkg/config"
	"github.com/innovationmech/msgpipe/pkg/endpoint"
	"github.com/innovationmech/msgpipe/pkg/logger"
	"github.com/innovationmech/msgpipe/pkg/pipeline"
	"github.com/innovationmech/msgpipe/pkg/pipeline/builder"
	"github.com/innovationmech/msgpipe/pkg/pipeline/handlers"
	"github.com/innovationmech/msgpipe/pkg/pipeline/middleware"
	"github.com/innovationmech/msgpipe/pkg/repository"
	"github.com/innovationmech/msgpipe/pkg/repository/file"
	redisrepo "github.com/innovationmech/msgpipe/pkg/repository/redis"
	sqlrepo "github.com/innovationmech/msgpipe/pkg/repository/sql"
	"github.com/innovationmech/msgpipe/pkg/repository/webhook"
	"github.com/innovationmech/msgpipe/pkg/testrun"
)

var (
	// ErrServiceInitialization wraps failures while building the service.
	ErrServiceInitialization = errors.New("service initialization failed")
	// ErrRepositoryInitialization wraps failures while opening the repository.
	ErrRepositoryInitialization = errors.New("repository initialization failed")
)

// OpenRepository opens the backend selected by s. The "none" backend returns
// a nil repository and no error.
func OpenRepository(s config.RepositorySettings) (repository.Repository, error) {
	switch s.Backend {
	case config.BackendNone:
		return nil, nil
	case config.BackendMemory, "":
		return repository.NewMemory(), nil
	case config.BackendFile:
		var opts []file.Option
		if s.File.Compress {
			opts = append(opts, file.WithCompression())
		}
		return file.Open(s.File.Path, opts...)
	case config.BackendSQL:
		return sqlrepo.Open(s.SQL.DSN, sqlrepo.WithTable(s.SQL.Table))
	case config.BackendRedis:
		return redisrepo.Dial(s.Redis.Addr, redisrepo.WithStream(s.Redis.Stream), redisrepo.WithMaxLen(s.Redis.MaxLen))
	case config.BackendWebhook:
		return webhook.New(s.Webhook.URL, webhook.WithTimeout(s.Webhook.Timeout))
	default:
		return nil, fmt.Errorf("%w: unknown repository backend %q", pipeline.ErrConfiguration, s.Backend)
	}
}

// Dependencies holds everything the serve and replay commands need.
type Dependencies struct {
	Settings   *config.Settings
	Repository repository.Repository
	Metrics    *prometheus.Registry
	Recorder   *testrun.Recorder
	App        *demo.App
	Endpoint   *endpoint.Endpoint
}

// Option adjusts NewDependencies.
type Option func(*options)

type options struct {
	recorder   *testrun.Recorder
	repository repository.Repository
	logger     *zap.Logger
}

// WithRecorder records every dispatch into rec.
func WithRecorder(rec *testrun.Recorder) Option {
	return func(o *options) { o.recorder = rec }
}

// WithRepository uses repo instead of opening the configured backend.
func WithRepository(repo repository.Repository) Option {
	return func(o *options) { o.repository = repo }
}

// WithLogger sets the logger handed to every component.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// NewDependencies builds the demo service and its endpoint from settings.
func NewDependencies(settings *config.Settings, opts ...Option) (*Dependencies, error) {
	if settings == nil {
		return nil, fmt.Errorf("%w: nil settings", ErrServiceInitialization)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	log := logger.OrDefault(o.logger)

	d := &Dependencies{Settings: settings, Recorder: o.recorder, Repository: o.repository}
	if d.Repository == nil {
		repo, err := OpenRepository(settings.Repository)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRepositoryInitialization, err)
		}
		d.Repository = repo
	}

	build, err := d.builderOptions(log)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("%w: %w", ErrServiceInitialization, err)
	}
	var demoOpts []demo.Option
	if !settings.Pipeline.Validation {
		demoOpts = append(demoOpts, demo.WithoutValidation())
	}
	demoOpts = append(demoOpts, demo.WithBuilder(build...))
	d.App, err = demo.New(demoOpts...)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("%w: %w", ErrServiceInitialization, err)
	}

	epOpts := []endpoint.Option{
		endpoint.WithAddress(settings.Endpoint.Address),
		endpoint.WithAcceptTimeout(settings.Endpoint.AcceptTimeout),
		endpoint.WithDebug(settings.Endpoint.Debug),
		endpoint.WithLogger(log),
	}
	if d.Metrics != nil {
		epOpts = append(epOpts, endpoint.WithMetrics(d.Metrics))
	}
	d.Endpoint, err = endpoint.New(d.App.Service, epOpts...)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("%w: %w", ErrServiceInitialization, err)
	}

	log.Info("initialized msgpipe dependencies",
		zap.String("repository", settings.Repository.Backend),
		zap.String("fail_fast", settings.Pipeline.FailFast),
		zap.Strings("content_types", d.App.Service.Types().Names()))
	return d, nil
}

// builderOptions translates the pipeline settings. Tracing, metrics and
// logging run in front of the locator in that order; the recorder and the
// repository run last.
func (d *Dependencies) builderOptions(log *zap.Logger) ([]builder.Option, error) {
	s := d.Settings
	mode, err := handlers.ParseFailFastMode(s.Pipeline.FailFast)
	if err != nil {
		return nil, err
	}
	strategy, err := handlers.ParseStrategy(s.Pipeline.Resolution)
	if err != nil {
		return nil, err
	}

	var front []pipeline.Middleware
	if s.Pipeline.Tracing {
		front = append(front, middleware.NewTracing(otel.GetTracerProvider()))
	}
	if s.Endpoint.Metrics {
		d.Metrics = prometheus.NewRegistry()
		cfg := middleware.DefaultMetricsConfig()
		cfg.Registerer = d.Metrics
		metrics, err := middleware.NewMetrics(cfg)
		if err != nil {
			return nil, err
		}
		front = append(front, metrics)
	}
	front = append(front, middleware.NewLogging(log))

	var back []pipeline.Middleware
	if d.Recorder != nil {
		back = append(back, d.Recorder)
	}
	if d.Repository != nil {
		back = append(back, repository.NewMiddleware(d.Repository,
			repository.WithPropagateErrors(s.Repository.PropagateErrors),
			repository.WithLogger(log)))
	}

	return []builder.Option{func(b *builder.Builder) {
		b.WithFailFast(mode).
			WithResolution(strategy).
			WithFieldInjection(s.Pipeline.FieldInjection).
			WithLogger(log)
		for _, mw := range front {
			b.UseBefore(handlers.LocatorID, mw)
		}
		if len(back) > 0 {
			b.Use(back...)
		}
	}}, nil
}

// Validate checks that every component is present.
func (d *Dependencies) Validate() error {
	if d == nil {
		return fmt.Errorf("dependencies struct is nil")
	}
	if d.App == nil || d.App.Service == nil {
		return fmt.Errorf("service is nil")
	}
	if d.Endpoint == nil {
		return fmt.Errorf("endpoint is nil")
	}
	if d.Repository == nil && d.Settings.Repository.Backend != config.BackendNone {
		return fmt.Errorf("repository is nil")
	}
	return nil
}

// Close releases the repository.
func (d *Dependencies) Close() error {
	if d.Repository == nil {
		return nil
	}
	return d.Repository.Close()
}
