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

package pipeline

import (
	"context"
	"fmt"
	"reflect"
)

// Binding pairs a payload type with the handler method that accepts it.
type Binding struct {
	Kind Kind
	// Module is the declaring type of the handler method (a pointer to struct).
	Module reflect.Type
	Method reflect.Method
	// Payload is the exact parameter type the method accepts.
	Payload reflect.Type
	// WithContext is true when the first parameter is a context.Context.
	WithContext bool
	// Extra holds the parameter types after the payload, resolved per call.
	Extra []reflect.Type
}

func (b Binding) String() string {
	return fmt.Sprintf("%s.%s", b.Module, b.Method.Name)
}

// MessageContext is the mutable state of one dispatch. It is owned by a single
// pipeline invocation and must not be shared between dispatches.
type MessageContext struct {
	Message *Message
	// Pipeline is the chain currently executing the message.
	Pipeline *Pipeline
	Provider ServiceProvider
	// Result receives the handler's return value, for queries in particular.
	Result any
	// Bindings are the handler bindings found by the locator.
	Bindings []Binding

	ctx     context.Context
	items   map[any]any
	failure *CapturedFailure
}

// NewMessageContext creates the dispatch state for msg.
func NewMessageContext(ctx context.Context, msg *Message, provider ServiceProvider) *MessageContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &MessageContext{
		Message:  msg,
		Provider: provider,
		ctx:      ctx,
		items:    make(map[any]any),
	}
}

// Context returns the cancellation context of the dispatch.
func (mc *MessageContext) Context() context.Context {
	if mc.ctx == nil {
		return context.Background()
	}
	return mc.ctx
}

// SetContext replaces the dispatch context for the remaining steps, for
// example to carry a tracing span. A nil ctx is ignored.
func (mc *MessageContext) SetContext(ctx context.Context) {
	if ctx != nil {
		mc.ctx = ctx
	}
}

// Set stores middleware-private state that is not persisted.
func (mc *MessageContext) Set(key, value any) {
	if mc.items == nil {
		mc.items = make(map[any]any)
	}
	mc.items[key] = value
}

// Get returns state stored with Set.
func (mc *MessageContext) Get(key any) (any, bool) {
	v, ok := mc.items[key]
	return v, ok
}

// Delete removes state stored with Set.
func (mc *MessageContext) Delete(key any) {
	delete(mc.items, key)
}

// Status is shorthand for mc.Message.Status().
func (mc *MessageContext) Status() Status {
	return mc.Message.Status()
}

// Err is shorthand for mc.Message.Err().
func (mc *MessageContext) Err() error {
	return mc.Message.Err()
}

// Capture records a failure for deferred inspection instead of raising it.
func (mc *MessageContext) Capture(f *CapturedFailure) {
	mc.failure = f
}

// Failure returns the failure recorded by Capture, if any.
func (mc *MessageContext) Failure() *CapturedFailure {
	return mc.failure
}
