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

import "context"

// Middleware is one named step of a pipeline. Its id must be unique within a chain.
type Middleware interface {
	ID() string
	// Execute runs the step on the blocking path.
	Execute(mc *MessageContext) error
}

// ContextMiddleware is implemented by middleware that can honour cancellation.
// InvokeContext prefers ExecuteContext over Execute when both exist.
type ContextMiddleware interface {
	Middleware
	ExecuteContext(ctx context.Context, mc *MessageContext) error
}

// PostActioner is implemented by middleware that must run after the main
// chain, whatever the outcome. Post-actions run in chain order.
type PostActioner interface {
	PostAction(mc *MessageContext) error
}

// Func builds a middleware from plain functions.
type Func struct {
	Name string
	Run  func(mc *MessageContext) error
	Post func(mc *MessageContext) error
}

// NewFunc returns a middleware named id that runs fn.
func NewFunc(id string, fn func(mc *MessageContext) error) *Func {
	return &Func{Name: id, Run: fn}
}

func (f *Func) ID() string { return f.Name }

func (f *Func) Execute(mc *MessageContext) error {
	if f.Run == nil {
		return nil
	}
	return f.Run(mc)
}

func (f *Func) PostAction(mc *MessageContext) error {
	if f.Post == nil {
		return nil
	}
	return f.Post(mc)
}
