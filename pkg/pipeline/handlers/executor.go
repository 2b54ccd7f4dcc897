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

package handlers

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/innovationmech/msgpipe/pkg/logger"
	"github.com/innovationmech/msgpipe/pkg/pipeline"
)

// ExecutorID is the middleware id of the Executor.
const ExecutorID = "executor"

// Executor calls the resolved handlers and records the outcome on the message.
//
// A handler error is the normal way into Failed and does not abort the chain.
// Messages already rejected by an earlier middleware are left untouched.
type Executor struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewExecutor creates an executor. A nil logger uses the process-wide one.
func NewExecutor(l *zap.Logger) *Executor {
	return &Executor{logger: logger.OrDefault(l), now: time.Now}
}

// ID implements pipeline.Middleware.
func (e *Executor) ID() string { return ExecutorID }

// Execute runs the handlers with the dispatch's own context.
func (e *Executor) Execute(mc *pipeline.MessageContext) error {
	return e.ExecuteContext(mc.Context(), mc)
}

// ExecuteContext runs the handlers, passing ctx to those that accept one.
func (e *Executor) ExecuteContext(ctx context.Context, mc *pipeline.MessageContext) error {
	msg := mc.Message
	if msg.Status() != pipeline.Processing {
		return nil
	}
	v, ok := mc.Get(targetsKey{})
	if !ok {
		return &pipeline.DispatchError{
			Op:          ExecutorID,
			Kind:        msg.Kind,
			ContentType: msg.ContentType,
			Cause:       fmt.Errorf("%w: executor needs a resolver in front of it", pipeline.ErrConfiguration),
		}
	}
	targets := v.([]target)

	var (
		failures error
		result   any
	)
	start := e.now()
	for _, t := range targets {
		out, err := call(ctx, t, msg.Content)
		if err != nil {
			failures = multierr.Append(failures, err)
			continue
		}
		if out != nil {
			result = out
		}
	}
	elapsed := e.now().Sub(start)

	if err := msg.SetDuration(elapsed); err != nil {
		e.logger.Warn("execution duration already recorded",
			zap.String("message_id", msg.ID.String()), zap.Error(err))
	}

	if failures != nil {
		return e.transition(msg, msg.Fail(failures))
	}
	if result != nil {
		mc.Result = result
	}
	return e.transition(msg, msg.Complete())
}

func (e *Executor) transition(msg *pipeline.Message, err error) error {
	if err != nil {
		e.logger.Warn("executor could not change message status",
			zap.String("message_id", msg.ID.String()),
			zap.String("status", msg.Status().String()),
			zap.Error(err))
	}
	return nil
}

// call invokes one handler. Panics become the returned error.
func call(ctx context.Context, t target, payload any) (result any, err error) {
	b := t.binding
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = fmt.Errorf("handler %s panicked: %w", b, e)
				return
			}
			err = fmt.Errorf("handler %s panicked: %v", b, r)
		}
	}()

	pv := reflect.ValueOf(payload)
	if !pv.IsValid() || !pv.Type().AssignableTo(b.Payload) {
		return nil, fmt.Errorf("%w: %T cannot be passed to %s", pipeline.ErrInvalidPayload, payload, b)
	}
	args := make([]reflect.Value, 0, 3+len(t.extra))
	args = append(args, t.receiver)
	if b.WithContext {
		args = append(args, reflect.ValueOf(&ctx).Elem())
	}
	args = append(args, pv)
	args = append(args, t.extra...)

	out := b.Method.Func.Call(args)
	return unpack(out)
}

// unpack splits handler results into value and error.
func unpack(out []reflect.Value) (any, error) {
	var value any
	var err error
	for _, o := range out {
		if o.Type() == errorType {
			if !o.IsNil() {
				err = o.Interface().(error)
			}
			continue
		}
		if isNil(o) {
			continue
		}
		value = o.Interface()
	}
	return value, err
}

func isNil(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		return v.IsNil()
	}
	return false
}
