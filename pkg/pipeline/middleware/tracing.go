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
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/innovationmech/msgpipe/pkg/pipeline"
)

// TracingID is the middleware id of Tracing.
const TracingID = "tracing"

type spanKey struct{}

// Tracing opens a span per dispatch and makes it the parent of everything the
// handlers do with their context. Place it first in the chain.
type Tracing struct {
	tracer oteltrace.Tracer
}

// NewTracing creates the middleware. A nil provider uses the global one.
func NewTracing(tp oteltrace.TracerProvider) *Tracing {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Tracing{tracer: tp.Tracer("github.com/innovationmech/msgpipe/pkg/pipeline")}
}

// ID implements pipeline.Middleware.
func (t *Tracing) ID() string { return TracingID }

// Execute starts the span and installs it in the dispatch context.
func (t *Tracing) Execute(mc *pipeline.MessageContext) error {
	msg := mc.Message
	ctx, span := t.tracer.Start(mc.Context(), "msgpipe."+msg.Kind.String()+" "+pipeline.ShortName(msg.ContentType),
		oteltrace.WithSpanKind(oteltrace.SpanKindInternal),
		oteltrace.WithAttributes(
			attribute.String("msgpipe.message_id", msg.ID.String()),
			attribute.String("msgpipe.kind", msg.Kind.String()),
			attribute.String("msgpipe.content_type", msg.ContentType),
		))
	mc.SetContext(ctx)
	mc.Set(spanKey{}, span)
	return nil
}

// PostAction ends the span with the final status.
func (t *Tracing) PostAction(mc *pipeline.MessageContext) error {
	v, ok := mc.Get(spanKey{})
	if !ok {
		return nil
	}
	mc.Delete(spanKey{})
	span := v.(oteltrace.Span)
	msg := mc.Message
	span.SetAttributes(
		attribute.String("msgpipe.status", msg.Status().String()),
		attribute.Int64("msgpipe.duration_ms", msg.DurationMillis()),
	)
	switch msg.Status() {
	case pipeline.Failed:
		if err := msg.Err(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Error, "failed")
		}
	case pipeline.Rejected:
		span.SetStatus(codes.Error, "rejected")
	default:
		span.SetStatus(codes.Ok, "")
	}
	span.End()
	return nil
}
