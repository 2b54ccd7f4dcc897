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

// Package builder assembles the default dispatch chain and ready-to-use services.
package builder

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/innovationmech/msgpipe/pkg/logger"
	"github.com/innovationmech/msgpipe/pkg/pipeline"
	"github.com/innovationmech/msgpipe/pkg/pipeline/handlers"
)

type placement int

const (
	atEnd placement = iota
	before
	after
)

type insertion struct {
	where  placement
	target string
	mw     []pipeline.Middleware
}

// Builder provides a fluent API for composing a pipeline. The default chain is
// locator, resolver, executor and, unless disabled, fail-fast. The first
// configuration error is kept and reported by Build.
type Builder struct {
	kinds          []pipeline.Kind
	modules        []*handlers.Module
	prefixes       map[pipeline.Kind]string
	strategy       handlers.Strategy
	fieldInjection bool
	failFast       handlers.FailFastMode
	logger         *zap.Logger
	inserts        []insertion
	err            error
}

// New creates a builder for a pipeline accepting kinds.
func New(kinds ...pipeline.Kind) *Builder {
	prefixes := make(map[pipeline.Kind]string, len(handlers.DefaultPrefixes))
	for k, p := range handlers.DefaultPrefixes {
		prefixes[k] = p
	}
	return &Builder{
		kinds:    kinds,
		prefixes: prefixes,
		failFast: handlers.Raise,
	}
}

// WithModules registers handler modules.
func (b *Builder) WithModules(modules ...*handlers.Module) *Builder {
	b.modules = append(b.modules, modules...)
	return b
}

// WithHandlers registers modules from their constructors.
func (b *Builder) WithHandlers(constructors ...any) *Builder {
	for _, c := range constructors {
		m, err := handlers.NewModule(c)
		if err != nil {
			b.fail(err)
			continue
		}
		b.modules = append(b.modules, m)
	}
	return b
}

// WithResolution selects how handler instances are obtained.
func (b *Builder) WithResolution(s handlers.Strategy) *Builder {
	b.strategy = s
	return b
}

// WithFieldInjection enables filling exported fields of constructed handlers.
func (b *Builder) WithFieldInjection(enabled bool) *Builder {
	b.fieldInjection = enabled
	return b
}

// WithPrefix overrides the handler method prefix for kind.
func (b *Builder) WithPrefix(kind pipeline.Kind, prefix string) *Builder {
	if prefix == "" {
		b.fail(fmt.Errorf("%w: empty handler prefix for %s", pipeline.ErrConfiguration, kind))
		return b
	}
	b.prefixes[kind] = prefix
	return b
}

// WithFailFast sets the failure policy. Off leaves the fail-fast post-action out of the chain.
func (b *Builder) WithFailFast(mode handlers.FailFastMode) *Builder {
	b.failFast = mode
	return b
}

// WithLogger sets the logger handed to the default middleware.
func (b *Builder) WithLogger(l *zap.Logger) *Builder {
	b.logger = l
	return b
}

// Use appends middleware after the default chain.
func (b *Builder) Use(mw ...pipeline.Middleware) *Builder {
	b.inserts = append(b.inserts, insertion{where: atEnd, mw: mw})
	return b
}

// UseBefore inserts mw in front of the middleware with id target.
func (b *Builder) UseBefore(target string, mw pipeline.Middleware) *Builder {
	b.inserts = append(b.inserts, insertion{where: before, target: target, mw: []pipeline.Middleware{mw}})
	return b
}

// UseAfter inserts mw right after the middleware with id target.
func (b *Builder) UseAfter(target string, mw pipeline.Middleware) *Builder {
	b.inserts = append(b.inserts, insertion{where: after, target: target, mw: []pipeline.Middleware{mw}})
	return b
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Build scans the modules and assembles the chain.
func (b *Builder) Build() (*pipeline.Pipeline, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.kinds) == 0 {
		return nil, fmt.Errorf("%w: builder needs at least one kind", pipeline.ErrConfiguration)
	}
	log := logger.OrDefault(b.logger)

	locator, err := handlers.NewLocator(b.kinds, b.modules, b.prefixes)
	if err != nil {
		return nil, err
	}
	p := pipeline.New(b.kinds...)
	chain := []pipeline.Middleware{
		locator,
		handlers.NewResolver(locator,
			handlers.WithStrategy(b.strategy),
			handlers.WithFieldInjection(b.fieldInjection),
			handlers.WithResolverLogger(log)),
		handlers.NewExecutor(log),
	}
	if b.failFast != handlers.Off {
		chain = append(chain, handlers.NewFailFast(b.failFast))
	}
	if err := p.Append(chain...); err != nil {
		return nil, err
	}

	for _, ins := range b.inserts {
		switch ins.where {
		case before:
			err = p.InsertBefore(ins.mw[0], ins.target)
		case after:
			err = p.InsertAfter(ins.mw[0], ins.target)
		default:
			err = p.Append(ins.mw...)
		}
		if err != nil {
			return nil, err
		}
	}

	log.Debug("pipeline built",
		zap.Stringer("kinds", kindList(b.kinds)),
		zap.Strings("middleware", p.IDs()),
		zap.Int("handlers", len(locator.Bindings())))
	return p, nil
}

// Locator returns the locator of a pipeline built by this package.
func Locator(p *pipeline.Pipeline) (*handlers.Locator, bool) {
	mw, ok := p.Middleware(handlers.LocatorID)
	if !ok {
		return nil, false
	}
	l, ok := mw.(*handlers.Locator)
	return l, ok
}

type kindList []pipeline.Kind

func (k kindList) String() string {
	return fmt.Sprint([]pipeline.Kind(k))
}
