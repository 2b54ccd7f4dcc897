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

	"github.com/innovationmech/msgpipe/pkg/pipeline"
)

var (
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
)

// Module is a type registered as containing handler methods.
//
// A module is built either from a constructor, whose parameters are supplied
// by the dispatch's ServiceProvider, or from a ready instance shared by every
// dispatch.
type Module struct {
	Name string

	typ      reflect.Type
	ctor     reflect.Value
	instance reflect.Value
}

// NewModule registers the type returned by constructor. The constructor has
// the form func(deps...) *T or func(deps...) (*T, error).
func NewModule(constructor any) (*Module, error) {
	v := reflect.ValueOf(constructor)
	if !v.IsValid() || v.Kind() != reflect.Func {
		return nil, fmt.Errorf("%w: module constructor must be a function, got %T", pipeline.ErrConfiguration, constructor)
	}
	ft := v.Type()
	if ft.IsVariadic() {
		return nil, fmt.Errorf("%w: module constructor %s is variadic", pipeline.ErrConfiguration, ft)
	}
	switch {
	case ft.NumOut() == 1:
	case ft.NumOut() == 2 && ft.Out(1) == errorType:
	default:
		return nil, fmt.Errorf("%w: module constructor %s must return T or (T, error)", pipeline.ErrConfiguration, ft)
	}
	out := ft.Out(0)
	if out.Kind() == reflect.Interface {
		return nil, fmt.Errorf("%w: module constructor %s must return a concrete type", pipeline.ErrConfiguration, ft)
	}
	return &Module{Name: pipeline.TypeName(out), typ: out, ctor: v}, nil
}

// MustModule is NewModule that panics on error, for static registration.
func MustModule(constructor any) *Module {
	m, err := NewModule(constructor)
	if err != nil {
		panic(err)
	}
	return m
}

// ModuleOf registers a ready instance. Its handlers run on that instance for
// every dispatch and it is never released by the pipeline.
func ModuleOf(instance any) *Module {
	v := reflect.ValueOf(instance)
	if !v.IsValid() {
		panic("handlers: ModuleOf(nil)")
	}
	return &Module{Name: pipeline.TypeName(v.Type()), typ: v.Type(), instance: v}
}

// Type returns the declaring type of the module's handler methods.
func (m *Module) Type() reflect.Type {
	return m.typ
}

// Dependencies lists the constructor parameter types.
func (m *Module) Dependencies() []reflect.Type {
	if !m.ctor.IsValid() {
		return nil
	}
	ft := m.ctor.Type()
	deps := make([]reflect.Type, ft.NumIn())
	for i := range deps {
		deps[i] = ft.In(i)
	}
	return deps
}
