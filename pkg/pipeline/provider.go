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
	"fmt"
	"reflect"
	"sync"
)

// ServiceProvider supplies handler collaborators by type. It is the seam for
// dependency-injection containers.
type ServiceProvider interface {
	Resolve(t reflect.Type) (any, error)
}

// ServiceProviderFunc adapts a function to ServiceProvider.
type ServiceProviderFunc func(t reflect.Type) (any, error)

// Resolve implements ServiceProvider.
func (f ServiceProviderFunc) Resolve(t reflect.Type) (any, error) {
	return f(t)
}

// Services is a map-backed ServiceProvider.
//
// A lookup for an interface type that was not registered directly falls back
// to the single registered value implementing it.
type Services struct {
	mu        sync.RWMutex
	values    map[reflect.Type]any
	factories map[reflect.Type]func() (any, error)
}

// NewServices creates a provider pre-populated with values.
func NewServices(values ...any) *Services {
	s := &Services{
		values:    make(map[reflect.Type]any),
		factories: make(map[reflect.Type]func() (any, error)),
	}
	s.Provide(values...)
	return s
}

// Provide registers values under their dynamic types.
func (s *Services) Provide(values ...any) *Services {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range values {
		if v != nil {
			s.values[reflect.TypeOf(v)] = v
		}
	}
	return s
}

// ProvideAs registers value under an explicit type, usually an interface.
// Pass the type as a nil pointer, e.g. (*io.Writer)(nil).
func (s *Services) ProvideAs(typ any, value any) *Services {
	t := reflect.TypeOf(typ)
	if t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Interface {
		t = t.Elem()
	}
	s.mu.Lock()
	s.values[t] = value
	s.mu.Unlock()
	return s
}

// ProvideFunc registers a factory invoked on every resolution of t.
func (s *Services) ProvideFunc(t reflect.Type, factory func() (any, error)) *Services {
	s.mu.Lock()
	s.factories[t] = factory
	s.mu.Unlock()
	return s
}

// Resolve implements ServiceProvider.
func (s *Services) Resolve(t reflect.Type) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if f, ok := s.factories[t]; ok {
		return f()
	}
	if v, ok := s.values[t]; ok {
		return v, nil
	}
	if t.Kind() == reflect.Interface {
		var found any
		for vt, v := range s.values {
			if vt.Implements(t) {
				if found != nil {
					return nil, fmt.Errorf("%w: several services implement %s", ErrDependencyResolution, t)
				}
				found = v
			}
		}
		if found != nil {
			return found, nil
		}
	}
	return nil, fmt.Errorf("%w: no service registered for %s", ErrDependencyResolution, t)
}
