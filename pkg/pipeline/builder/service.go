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

package builder

import (
	"github.com/innovationmech/msgpipe/pkg/pipeline"
	"github.com/innovationmech/msgpipe/pkg/pipeline/handlers"
)

// Option adjusts the builder of every pipeline created by NewService.
type Option func(*Builder)

// NewService builds one pipeline per message kind over the same modules and
// registers them on a new Service. Payload types handled by the modules are
// added to the service's TypeRegistry.
func NewService(provider pipeline.ServiceProvider, modules []*handlers.Module, opts ...Option) (*pipeline.Service, error) {
	svc := pipeline.NewService(provider)
	for _, kind := range pipeline.Kinds {
		b := New(kind).WithModules(modules...)
		for _, opt := range opts {
			opt(b)
		}
		p, err := b.Build()
		if err != nil {
			return nil, err
		}
		if err := svc.Register(p); err != nil {
			return nil, err
		}
		if l, ok := Locator(p); ok {
			for _, t := range l.PayloadTypes() {
				svc.Types().RegisterType(t)
			}
		}
	}
	return svc, nil
}

// Kinds restricts an option to pipelines of the given kinds.
func Kinds(opt Option, kinds ...pipeline.Kind) Option {
	return func(b *Builder) {
		for _, k := range b.kinds {
			for _, want := range kinds {
				if k == want {
					opt(b)
					return
				}
			}
		}
	}
}
