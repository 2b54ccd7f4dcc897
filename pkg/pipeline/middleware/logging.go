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

package middleware

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/innovationmech/msgpipe/pkg/logger"
	"github.com/innovationmech/msgpipe/pkg/pipeline"
)

// LoggingID is the middleware id of Logging.
const LoggingID = "logging"

// Logging writes one structured line per finished dispatch.
type Logging struct {
	logger *zap.Logger
}

// NewLogging creates the middleware. A nil logger uses the process-wide one.
func NewLogging(l *zap.Logger) *Logging {
	return &Logging{logger: logger.OrDefault(l)}
}

// ID implements pipeline.Middleware.
func (l *Logging) ID() string { return LoggingID }

// Execute logs the start of the dispatch at debug level.
func (l *Logging) Execute(mc *pipeline.MessageContext) error {
	if ce := l.logger.Check(zapcore.DebugLevel, "dispatch started"); ce != nil {
		ce.Write(
			zap.String("message_id", mc.Message.ID.String()),
			zap.Stringer("kind", mc.Message.Kind),
			zap.String("content_type", mc.Message.ContentType))
	}
	return nil
}

// PostAction logs the outcome. Failures are logged at warn level.
func (l *Logging) PostAction(mc *pipeline.MessageContext) error {
	msg := mc.Message
	fields := []zap.Field{
		zap.String("message_id", msg.ID.String()),
		zap.Stringer("kind", msg.Kind),
		zap.String("content_type", msg.ContentType),
		zap.Stringer("status", msg.Status()),
		zap.Duration("duration", msg.Duration()),
	}
	switch msg.Status() {
	case pipeline.Failed:
		fields = append(fields, zap.String("error_type", msg.ErrorType()), zap.Error(msg.Err()))
		l.logger.Warn("dispatch failed", fields...)
	case pipeline.Rejected:
		if err := msg.Err(); err != nil {
			fields = append(fields, zap.Error(err))
		}
		l.logger.Info("dispatch rejected", fields...)
	default:
		l.logger.Info("dispatch finished", fields...)
	}
	return nil
}
