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
	"sync"
)

// Service routes payloads to the pipeline registered for their kind.
// At most one pipeline may be registered per kind.
type Service struct {
	mu        sync.RWMutex
	pipelines map[Kind]*Pipeline
	provider  ServiceProvider
	types     *TypeRegistry
}

// NewService creates a service whose dispatches resolve collaborators through provider.
func NewService(provider ServiceProvider) *Service {
	if provider == nil {
		provider = NewServices()
	}
	return &Service{
		pipelines: make(map[Kind]*Pipeline),
		provider:  provider,
		types:     NewTypeRegistry(),
	}
}

// Register adds p for every kind it accepts. If any of those kinds already
// has a pipeline, nothing is registered.
func (s *Service) Register(p *Pipeline) error {
	if p == nil || len(p.Kinds()) == 0 {
		return fmt.Errorf("%w: pipeline accepts no kind", ErrConfiguration)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range p.Kinds() {
		if _, exists := s.pipelines[k]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicatePipeline, k)
		}
	}
	for _, k := range p.Kinds() {
		s.pipelines[k] = p
	}
	return nil
}

// Unregister removes the pipeline registered for kind.
func (s *Service) Unregister(kind Kind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pipelines[kind]; !exists {
		return fmt.Errorf("%w: %s", ErrPipelineNotFound, kind)
	}
	delete(s.pipelines, kind)
	return nil
}

// Pipeline returns the pipeline registered for kind.
func (s *Service) Pipeline(kind Kind) (*Pipeline, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pipelines[kind]
	return p, ok
}

// Types returns the content-type registry used to decode remote payloads.
func (s *Service) Types() *TypeRegistry {
	return s.types
}

// Provider returns the collaborator provider handed to every dispatch.
func (s *Service) Provider() ServiceProvider {
	return s.provider
}

// Command dispatches payload as a command.
func (s *Service) Command(ctx context.Context, payload any) (*MessageContext, error) {
	return s.Dispatch(ctx, Command, payload)
}

// Event dispatches payload as an event.
func (s *Service) Event(ctx context.Context, payload any) (*MessageContext, error) {
	return s.Dispatch(ctx, Event, payload)
}

// Query dispatches payload as a query; the answer is in the returned context's Result.
func (s *Service) Query(ctx context.Context, payload any) (*MessageContext, error) {
	return s.Dispatch(ctx, Query, payload)
}

// Dispatch wraps payload in a message of the given kind and runs it through
// the matching pipeline. The context is returned even when err is not nil so
// that callers can read the final status.
func (s *Service) Dispatch(ctx context.Context, kind Kind, payload any) (*MessageContext, error) {
	msg, err := NewMessage(kind, payload)
	if err != nil {
		return nil, err
	}
	mc := NewMessageContext(ctx, msg, s.provider)
	return mc, s.Invoke(mc)
}

// Invoke runs an already built context through the pipeline for its kind.
func (s *Service) Invoke(mc *MessageContext) error {
	p, ok := s.Pipeline(mc.Message.Kind)
	if !ok {
		err := fmt.Errorf("%w: %s", ErrPipelineNotFound, mc.Message.Kind)
		_ = mc.Message.Fail(err)
		return err
	}
	if mc.Provider == nil {
		mc.Provider = s.provider
	}
	return p.InvokeContext(mc.Context(), mc)
}

// QueryResult dispatches a query and converts its result to R.
func QueryResult[R any](ctx context.Context, s *Service, payload any) (R, error) {
	var zero R
	mc, err := s.Query(ctx, payload)
	if err != nil {
		return zero, err
	}
	if mc.Status() != Completed {
		if e := mc.Err(); e != nil {
			return zero, e
		}
		return zero, fmt.Errorf("query ended with status %s", mc.Status())
	}
	if mc.Result == nil {
		return zero, nil
	}
	r, ok := mc.Result.(R)
	if !ok {
		return zero, fmt.Errorf("query result is %T, not %T", mc.Result, zero)
	}
	return r, nil
}
