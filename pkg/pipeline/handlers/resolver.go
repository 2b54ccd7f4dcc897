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
	"fmt"
	"io"
	"reflect"

	"go.uber.org/zap"

	"github.com/innovationmech/msgpipe/pkg/logger"
	"github.com/innovationmech/msgpipe/pkg/pipeline"
)

// ResolverID is the middleware id of the Resolver.
const ResolverID = "resolver"

// Strategy selects how handler instances are obtained.
type Strategy int

const (
	// ConstructorResolution calls the module constructor with collaborators from
	// the ServiceProvider. Instances implementing io.Closer are closed after the dispatch.
	ConstructorResolution Strategy = iota
	// FactoryResolution asks the ServiceProvider for the module type itself, the
	// usual arrangement with a DI container. The container owns the instance.
	FactoryResolution
)

func (s Strategy) String() string {
	if s == FactoryResolution {
		return "factory"
	}
	return "constructor"
}

// ParseStrategy parses "constructor" or "factory".
func ParseStrategy(name string) (Strategy, error) {
	switch name {
	case "", "constructor":
		return ConstructorResolution, nil
	case "factory":
		return FactoryResolution, nil
	}
	return 0, fmt.Errorf("%w: unknown resolution strategy %q", pipeline.ErrConfiguration, name)
}

var (
	messageContextType  = reflect.TypeOf((*pipeline.MessageContext)(nil))
	serviceProviderType = reflect.TypeOf((*pipeline.ServiceProvider)(nil)).Elem()
)

type targetsKey struct{}

// target is a binding ready to be called.
type target struct {
	binding  pipeline.Binding
	receiver reflect.Value
	extra    []reflect.Value
}

type releaseKey struct{}

// Resolver turns the located bindings into live handler instances and resolves
// every extra handler parameter. A parameter nobody can supply aborts the
// dispatch before any handler runs.
type Resolver struct {
	locator        *Locator
	strategy       Strategy
	fieldInjection bool
	logger         *zap.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithStrategy selects the instance strategy.
func WithStrategy(s Strategy) ResolverOption {
	return func(r *Resolver) { r.strategy = s }
}

// WithFieldInjection fills exported, zero-valued fields of constructed instances
// from the ServiceProvider. Fields that cannot be satisfied are logged and left alone.
func WithFieldInjection(enabled bool) ResolverOption {
	return func(r *Resolver) { r.fieldInjection = enabled }
}

// WithResolverLogger sets the logger.
func WithResolverLogger(l *zap.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = l }
}

// NewResolver creates a resolver for the modules known to locator.
func NewResolver(locator *Locator, opts ...ResolverOption) *Resolver {
	r := &Resolver{locator: locator}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logger.OrDefault(r.logger)
	return r
}

// ID implements pipeline.Middleware.
func (r *Resolver) ID() string { return ResolverID }

// Execute resolves an instance and the extra arguments for each binding.
// Messages already out of Processing are left alone.
func (r *Resolver) Execute(mc *pipeline.MessageContext) error {
	if mc.Message.Status() != pipeline.Processing {
		return nil
	}
	instances := make(map[reflect.Type]reflect.Value)
	targets := make([]target, 0, len(mc.Bindings))

	for _, b := range mc.Bindings {
		recv, ok := instances[b.Module]
		if !ok {
			var err error
			recv, err = r.instance(mc, b.Module)
			if err != nil {
				return r.fail(mc, b.Module, err)
			}
			instances[b.Module] = recv
		}
		extra := make([]reflect.Value, len(b.Extra))
		for i, t := range b.Extra {
			v, err := resolveValue(mc, t)
			if err != nil {
				return r.fail(mc, t, err)
			}
			extra[i] = v
		}
		targets = append(targets, target{binding: b, receiver: recv, extra: extra})
	}
	mc.Set(targetsKey{}, targets)
	return nil
}

// PostAction releases instances created for this dispatch.
func (r *Resolver) PostAction(mc *pipeline.MessageContext) error {
	v, ok := mc.Get(releaseKey{})
	if !ok {
		return nil
	}
	mc.Delete(releaseKey{})
	for _, c := range v.([]io.Closer) {
		if err := c.Close(); err != nil {
			r.logger.Warn("release handler instance failed",
				zap.String("message_id", mc.Message.ID.String()),
				zap.String("instance", fmt.Sprintf("%T", c)),
				zap.Error(err))
		}
	}
	return nil
}

func (r *Resolver) fail(mc *pipeline.MessageContext, t reflect.Type, err error) error {
	return &pipeline.DispatchError{
		Op:          ResolverID,
		Kind:        mc.Message.Kind,
		ContentType: mc.Message.ContentType,
		Type:        t,
		Cause:       err,
	}
}

func (r *Resolver) instance(mc *pipeline.MessageContext, t reflect.Type) (reflect.Value, error) {
	m, ok := r.locator.Module(t)
	if !ok {
		return reflect.Value{}, fmt.Errorf("%w: module %s is not registered", pipeline.ErrDependencyResolution, t)
	}
	if r.strategy == FactoryResolution {
		return resolveValue(mc, t)
	}
	if m.instance.IsValid() {
		return m.instance, nil
	}

	var v reflect.Value
	if m.ctor.IsValid() {
		ft := m.ctor.Type()
		args := make([]reflect.Value, ft.NumIn())
		for i := range args {
			a, err := resolveValue(mc, ft.In(i))
			if err != nil {
				return reflect.Value{}, err
			}
			args[i] = a
		}
		out := m.ctor.Call(args)
		if len(out) == 2 && !out[1].IsNil() {
			return reflect.Value{}, fmt.Errorf("%w: constructing %s: %w", pipeline.ErrDependencyResolution, t, out[1].Interface().(error))
		}
		v = out[0]
	} else if t.Kind() == reflect.Pointer {
		v = reflect.New(t.Elem())
	} else {
		v = reflect.New(t).Elem()
	}

	if r.fieldInjection {
		r.injectFields(mc, v)
	}
	if c, ok := v.Interface().(io.Closer); ok {
		r.track(mc, c)
	}
	return v, nil
}

func (r *Resolver) track(mc *pipeline.MessageContext, c io.Closer) {
	var closers []io.Closer
	if v, ok := mc.Get(releaseKey{}); ok {
		closers = v.([]io.Closer)
	}
	mc.Set(releaseKey{}, append(closers, c))
}

// injectFields satisfies exported zero fields; failures are logged per field.
func (r *Resolver) injectFields(mc *pipeline.MessageContext, v reflect.Value) {
	s := v
	if s.Kind() == reflect.Pointer {
		if s.IsNil() {
			return
		}
		s = s.Elem()
	}
	if s.Kind() != reflect.Struct {
		return
	}
	for i := 0; i < s.NumField(); i++ {
		field := s.Type().Field(i)
		fv := s.Field(i)
		if !field.IsExported() || !fv.CanSet() || !fv.IsZero() {
			continue
		}
		val, err := resolveValue(mc, field.Type)
		if err != nil {
			r.logger.Warn("field injection skipped",
				zap.String("module", s.Type().String()),
				zap.String("field", field.Name),
				zap.Error(err))
			continue
		}
		fv.Set(val)
	}
}

// resolveValue asks the dispatch's provider for a value assignable to t.
func resolveValue(mc *pipeline.MessageContext, t reflect.Type) (reflect.Value, error) {
	switch t {
	case messageContextType:
		return reflect.ValueOf(mc), nil
	case contextType:
		return reflect.ValueOf(mc.Context()), nil
	case serviceProviderType:
		if mc.Provider != nil {
			return reflect.ValueOf(&mc.Provider).Elem(), nil
		}
	}
	if mc.Provider == nil {
		return reflect.Value{}, fmt.Errorf("%w: no provider to resolve %s", pipeline.ErrDependencyResolution, t)
	}
	got, err := mc.Provider.Resolve(t)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("%w: %s: %w", pipeline.ErrDependencyResolution, t, err)
	}
	v := reflect.ValueOf(got)
	if !v.IsValid() {
		return reflect.Value{}, fmt.Errorf("%w: provider returned nil for %s", pipeline.ErrDependencyResolution, t)
	}
	if !v.Type().AssignableTo(t) {
		return reflect.Value{}, fmt.Errorf("%w: provider returned %s for %s", pipeline.ErrDependencyResolution, v.Type(), t)
	}
	return v, nil
}
