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

package demo

import (
	"github.com/innovationmech/msgpipe/pkg/pipeline"
	"github.com/innovationmech/msgpipe/pkg/pipeline/builder"
	"github.com/innovationmech/msgpipe/pkg/pipeline/handlers"
	"github.com/innovationmech/msgpipe/pkg/pipeline/middleware"
)

// App is a ready users service with its in-process collaborators.
type App struct {
	Service *pipeline.Service
	Users   *MemoryUsers
	Work    *UnitOfWork
	Stats   *Stats
	Outbox  *Outbox
}

type setup struct {
	validation bool
	build      []builder.Option
}

// Option configures New.
type Option func(*setup)

// WithoutValidation drops the payload validation middleware.
func WithoutValidation() Option {
	return func(s *setup) { s.validation = false }
}

// WithBuilder applies opts to the builder of every pipeline.
func WithBuilder(opts ...builder.Option) Option {
	return func(s *setup) { s.build = append(s.build, opts...) }
}

// Modules returns the handler modules of the users domain.
func Modules() []*handlers.Module {
	return []*handlers.Module{
		handlers.MustModule(NewUserModule),
		handlers.MustModule(NewWelcomeModule),
		handlers.MustModule(NewCensusModule),
	}
}

// New wires the users domain into a service. Validation runs in front of
// handler resolution unless WithoutValidation is given.
func New(opts ...Option) (*App, error) {
	s := setup{validation: true}
	for _, opt := range opts {
		opt(&s)
	}

	app := &App{
		Users:  NewMemoryUsers(),
		Work:   &UnitOfWork{},
		Stats:  &Stats{},
		Outbox: &Outbox{},
	}
	provider := pipeline.NewServices(app.Work, app.Stats, app.Outbox).
		ProvideAs((*UserRepository)(nil), app.Users)

	build := s.build
	if s.validation {
		validation := middleware.NewValidation()
		build = append([]builder.Option{func(b *builder.Builder) {
			b.UseBefore(handlers.ResolverID, validation)
		}}, build...)
	}
	svc, err := builder.NewService(provider, Modules(), build...)
	if err != nil {
		return nil, err
	}
	provider.ProvideAs((*Publisher)(nil), svc)
	app.Service = svc
	return app, nil
}
