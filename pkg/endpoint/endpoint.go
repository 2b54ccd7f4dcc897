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

// Package endpoint exposes a pipeline service over HTTP.
//
// Every message is submitted with
//
//	POST /{kind}/{contentType}
//
// where kind is command, event or query (or 0, 1, 2) and contentType is the
// full or short type name known to the service's type registry. The request
// body is the JSON payload and the response body is the terminal message.
package endpoint

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/innovationmech/msgpipe/pkg/logger"
	"github.com/innovationmech/msgpipe/pkg/pipeline"
)

// ErrNotStarted is returned by Stop before Start.
var ErrNotStarted = errors.New("endpoint not started")

// Config holds endpoint settings.
type Config struct {
	// Address to listen on, ":0" picks a free port.
	Address string
	// AcceptTimeout bounds each wait for a connection.
	AcceptTimeout time.Duration
	// Debug adds failure detail, including stacks, to response bodies.
	Debug bool
}

// DefaultConfig returns the settings used by New.
func DefaultConfig() Config {
	return Config{Address: ":8080", AcceptTimeout: DefaultAcceptTimeout}
}

// Option configures an Endpoint.
type Option func(*Endpoint)

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(e *Endpoint) { e.config = cfg }
}

// WithAddress sets the listen address.
func WithAddress(addr string) Option {
	return func(e *Endpoint) { e.config.Address = addr }
}

// WithAcceptTimeout sets the accept poll interval.
func WithAcceptTimeout(d time.Duration) Option {
	return func(e *Endpoint) { e.config.AcceptTimeout = d }
}

// WithDebug toggles failure detail in responses.
func WithDebug(debug bool) Option {
	return func(e *Endpoint) { e.config.Debug = debug }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Endpoint) { e.logger = l }
}

// WithMetrics serves the gatherer's metrics on GET /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(e *Endpoint) { e.gatherer = g }
}

// Endpoint is an HTTP front for a pipeline service.
type Endpoint struct {
	service  *pipeline.Service
	config   Config
	logger   *zap.Logger
	gatherer prometheus.Gatherer
	router   *gin.Engine

	mu       sync.Mutex
	server   *http.Server
	listener *pollingListener
	addr     string
	ready    chan struct{}
	done     chan struct{}
}

// New builds the router for svc. The endpoint does not listen until Start.
func New(svc *pipeline.Service, opts ...Option) (*Endpoint, error) {
	if svc == nil {
		return nil, fmt.Errorf("%w: endpoint needs a service", pipeline.ErrConfiguration)
	}
	e := &Endpoint{
		service: svc,
		config:  DefaultConfig(),
		ready:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logger.OrDefault(e.logger)

	e.router = gin.New()
	e.router.HandleMethodNotAllowed = true
	// Full content type names contain slashes and arrive escaped.
	e.router.UseRawPath = true
	e.router.Use(gin.Recovery(), requestLogger(e.logger))
	e.router.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method not allowed"})
	})
	e.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "expected POST /{kind}/{contentType}"})
	})
	if e.gatherer != nil {
		e.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(e.gatherer, promhttp.HandlerOpts{})))
	}
	e.router.POST("/:kind/:contentType", e.dispatch)
	return e, nil
}

// Handler returns the HTTP handler, for embedding or for tests.
func (e *Endpoint) Handler() http.Handler {
	return e.router
}

// Start listens on the configured address and serves in the background.
// Calling Start on a running endpoint is a no-op.
func (e *Endpoint) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.server != nil {
		return nil
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", e.config.Address)
	if err != nil {
		return fmt.Errorf("failed to create endpoint listener: %w", err)
	}
	e.listener = newPollingListener(ln, e.config.AcceptTimeout)
	e.addr = ln.Addr().String()
	e.server = &http.Server{Handler: e.router}
	e.done = make(chan struct{})

	server, listener, done := e.server, e.listener, e.done
	select {
	case <-e.ready:
	default:
		close(e.ready)
	}
	e.logger.Info("Starting message endpoint", zap.String("address", e.addr))

	go func() {
		defer close(done)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, net.ErrClosed) {
			e.logger.Error("message endpoint failed to serve", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound address once started.
func (e *Endpoint) Addr() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.addr
}

// Ready is closed once the endpoint is listening.
func (e *Endpoint) Ready() <-chan struct{} {
	return e.ready
}

// Stop stops accepting connections and waits until in-flight requests finish
// or ctx ends.
func (e *Endpoint) Stop(ctx context.Context) error {
	e.mu.Lock()
	server, listener, done := e.server, e.listener, e.done
	e.server, e.listener = nil, nil
	e.mu.Unlock()

	if server == nil {
		return ErrNotStarted
	}
	listener.stop()
	if err := server.Shutdown(ctx); err != nil {
		e.logger.Error("message endpoint shutdown error", zap.Error(err))
		return err
	}
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	e.logger.Info("message endpoint stopped")
	return nil
}
