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
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"
)

// Pipeline is an ordered middleware chain bound to one or more message kinds.
//
// The chain may be edited while dispatches run: every invocation works on a
// snapshot taken when it starts.
type Pipeline struct {
	mu         sync.RWMutex
	kinds      []Kind
	middleware []Middleware
}

// New creates an empty pipeline accepting the given kinds.
func New(kinds ...Kind) *Pipeline {
	seen := make(map[Kind]bool, len(kinds))
	p := &Pipeline{}
	for _, k := range kinds {
		if !seen[k] {
			seen[k] = true
			p.kinds = append(p.kinds, k)
		}
	}
	return p
}

// Kinds returns the accepted kinds.
func (p *Pipeline) Kinds() []Kind {
	return append([]Kind(nil), p.kinds...)
}

// Accepts reports whether the pipeline handles kind.
func (p *Pipeline) Accepts(kind Kind) bool {
	for _, k := range p.kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Append adds middleware to the end of the chain. If any id collides with the
// chain or with another member of the batch, nothing is added.
func (p *Pipeline) Append(middleware ...Middleware) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkIDs(middleware...); err != nil {
		return err
	}
	p.middleware = append(p.middleware, middleware...)
	return nil
}

// InsertAfter places mw right after afterID, or at the end when afterID is empty.
func (p *Pipeline) InsertAfter(mw Middleware, afterID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkIDs(mw); err != nil {
		return err
	}
	if afterID == "" {
		p.middleware = append(p.middleware, mw)
		return nil
	}
	i := p.indexOf(afterID)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrMiddlewareNotFound, afterID)
	}
	p.insertAt(i+1, mw)
	return nil
}

// InsertBefore places mw right before beforeID, or at the front when beforeID is empty.
func (p *Pipeline) InsertBefore(mw Middleware, beforeID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkIDs(mw); err != nil {
		return err
	}
	if beforeID == "" {
		p.insertAt(0, mw)
		return nil
	}
	i := p.indexOf(beforeID)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrMiddlewareNotFound, beforeID)
	}
	p.insertAt(i, mw)
	return nil
}

// Remove deletes the middleware with the given id.
func (p *Pipeline) Remove(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	i := p.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrMiddlewareNotFound, id)
	}
	p.middleware = append(p.middleware[:i:i], p.middleware[i+1:]...)
	return nil
}

// Middleware returns the middleware registered under id.
func (p *Pipeline) Middleware(id string) (Middleware, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if i := p.indexOf(id); i >= 0 {
		return p.middleware[i], true
	}
	return nil, false
}

// IDs returns the middleware ids in chain order.
func (p *Pipeline) IDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, len(p.middleware))
	for i, mw := range p.middleware {
		ids[i] = mw.ID()
	}
	return ids
}

// Len returns the number of middleware in the chain.
func (p *Pipeline) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.middleware)
}

// Invoke runs the chain on the blocking path.
func (p *Pipeline) Invoke(mc *MessageContext) error {
	return p.run(mc, false)
}

// InvokeContext runs the chain with cancellation. Middleware implementing
// ContextMiddleware receive ctx. A cancelled dispatch still ends in a
// terminal status: the message is failed with ErrCancelled.
func (p *Pipeline) InvokeContext(ctx context.Context, mc *MessageContext) error {
	if ctx == nil {
		ctx = context.Background()
	}
	mc.ctx = ctx
	return p.run(mc, true)
}

// run reads mc.Context() before every step so that a middleware may replace it.
func (p *Pipeline) run(mc *MessageContext, withContext bool) error {
	if mc == nil || mc.Message == nil {
		return ErrInvalidPayload
	}
	if !p.Accepts(mc.Message.Kind) {
		return fmt.Errorf("%w: %s", ErrPipelineNotFound, mc.Message.Kind)
	}
	mc.Pipeline = p

	p.mu.RLock()
	steps := append([]Middleware(nil), p.middleware...)
	p.mu.RUnlock()

	var stepErr error
	for _, mw := range steps {
		ctx := mc.Context()
		if err := ctx.Err(); err != nil {
			stepErr = cancelled(err)
			break
		}
		if err := execute(ctx, mw, mc, withContext); err != nil {
			stepErr = err
			break
		}
	}

	if mc.Message.Status() == Processing {
		switch {
		case stepErr != nil:
			_ = mc.Message.Fail(stepErr)
		case mc.Context().Err() != nil:
			stepErr = cancelled(mc.Context().Err())
			_ = mc.Message.Fail(stepErr)
		}
	}

	var postErr error
	for _, mw := range steps {
		pa, ok := mw.(PostActioner)
		if !ok {
			continue
		}
		if err := postAction(mw.ID(), pa, mc); err != nil && (stepErr == nil || !errors.Is(err, stepErr)) {
			postErr = multierr.Append(postErr, err)
		}
	}
	return multierr.Combine(stepErr, postErr)
}

func execute(ctx context.Context, mw Middleware, mc *MessageContext, withContext bool) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("middleware %q panicked: %v", mw.ID(), r)
		}
	}()
	if withContext {
		if cm, ok := mw.(ContextMiddleware); ok {
			return cm.ExecuteContext(ctx, mc)
		}
	}
	return mw.Execute(mc)
}

func postAction(id string, pa PostActioner, mc *MessageContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("post-action of %q panicked: %v", id, r)
		}
	}()
	return pa.PostAction(mc)
}

func cancelled(cause error) error {
	return fmt.Errorf("%w: %w", ErrCancelled, cause)
}

// checkIDs must be called with the write lock held.
func (p *Pipeline) checkIDs(batch ...Middleware) error {
	seen := make(map[string]bool, len(p.middleware)+len(batch))
	for _, mw := range p.middleware {
		seen[mw.ID()] = true
	}
	for _, mw := range batch {
		if mw == nil {
			return fmt.Errorf("%w: nil middleware", ErrConfiguration)
		}
		id := mw.ID()
		if id == "" {
			return fmt.Errorf("%w: empty middleware id", ErrConfiguration)
		}
		if seen[id] {
			return fmt.Errorf("%w: %q", ErrDuplicateMiddleware, id)
		}
		seen[id] = true
	}
	return nil
}

func (p *Pipeline) indexOf(id string) int {
	for i, mw := range p.middleware {
		if mw.ID() == id {
			return i
		}
	}
	return -1
}

func (p *Pipeline) insertAt(i int, mw Middleware) {
	p.middleware = append(p.middleware, nil)
	copy(p.middleware[i+1:], p.middleware[i:])
	p.middleware[i] = mw
}
