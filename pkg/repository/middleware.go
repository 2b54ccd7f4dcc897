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

package repository

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/innovationmech/msgpipe/pkg/logger"
	"github.com/innovationmech/msgpipe/pkg/pipeline"
)

// MiddlewareID is the id of the repository middleware.
const MiddlewareID = "repository"

// Middleware persists every finished message after the chain has run.
// Persistence failures are logged and swallowed unless propagation is enabled.
type Middleware struct {
	repo      Repository
	propagate bool
	logger    *zap.Logger
}

// MiddlewareOption configures a Middleware.
type MiddlewareOption func(*Middleware)

// WithPropagateErrors makes persistence failures part of the invocation result.
func WithPropagateErrors(propagate bool) MiddlewareOption {
	return func(m *Middleware) { m.propagate = propagate }
}

// WithLogger sets the logger for swallowed failures.
func WithLogger(l *zap.Logger) MiddlewareOption {
	return func(m *Middleware) { m.logger = l }
}

// NewMiddleware wraps repo.
func NewMiddleware(repo Repository, opts ...MiddlewareOption) *Middleware {
	m := &Middleware{repo: repo}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logger.OrDefault(m.logger)
	return m
}

// ID implements pipeline.Middleware.
func (m *Middleware) ID() string { return MiddlewareID }

// Execute does nothing; the message is stored in PostAction.
func (m *Middleware) Execute(*pipeline.MessageContext) error { return nil }

// PostAction appends the message to the repository.
func (m *Middleware) PostAction(mc *pipeline.MessageContext) error {
	msg := mc.Message
	if !msg.Status().Terminal() {
		m.logger.Warn("message not persisted, status is not terminal",
			zap.String("message_id", msg.ID.String()),
			zap.Stringer("status", msg.Status()))
		return nil
	}
	err := m.repo.Add(mc.Context(), msg)
	if err == nil {
		return nil
	}
	err = fmt.Errorf("%w: %w", pipeline.ErrRepository, err)
	if m.propagate {
		return err
	}
	m.logger.Warn("message not persisted",
		zap.String("message_id", msg.ID.String()),
		zap.String("content_type", msg.ContentType),
		zap.Error(err))
	return nil
}

// Repository returns the wrapped repository.
func (m *Middleware) Repository() Repository {
	return m.repo
}
