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
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/innovationmech/msgpipe/pkg/pipeline"
	"github.com/innovationmech/msgpipe/pkg/pipeline/builder"
	"github.com/innovationmech/msgpipe/pkg/pipeline/handlers"
	"github.com/innovationmech/msgpipe/pkg/repository"
)

// DeleteUser has no handler.
type DeleteUser struct {
	ID int `json:"id"`
}

type DemoSuite struct {
	suite.Suite
	app  *App
	repo *repository.Memory
	ctx  context.Context
}

func TestDemoSuite(t *testing.T) {
	suite.Run(t, new(DemoSuite))
}

func (s *DemoSuite) SetupTest() {
	s.ctx = context.Background()
	s.repo = repository.NewMemory()
	audit := repository.NewMiddleware(s.repo)
	app, err := New(WithBuilder(func(b *builder.Builder) { b.Use(audit) }))
	s.Require().NoError(err)
	s.app = app
}

func (s *DemoSuite) TestCreateUserCompletes() {
	mc, err := s.app.Service.Command(s.ctx, &CreateUser{First: "Ann", Last: "Lee"})
	s.Require().NoError(err)
	s.Equal(pipeline.Completed, mc.Status())

	id, ok := mc.Result.(int)
	s.Require().True(ok)
	s.GreaterOrEqual(id, 1)
	s.Equal(id, mc.Message.ExtraData[UserIDKey])
	s.EqualValues(1, s.app.Work.Commits())
	s.True(mc.Message.HasDuration())

	u, err := s.app.Users.Find(s.ctx, id)
	s.Require().NoError(err)
	s.Equal("Lee", u.Last)
}

func (s *DemoSuite) TestUserCreatedReachesBothListeners() {
	_, err := s.app.Service.Command(s.ctx, &CreateUser{First: "Ann", Last: "Lee"})
	s.Require().NoError(err)
	_, err = s.app.Service.Command(s.ctx, &CreateUser{First: "Bo", Last: "Kim"})
	s.Require().NoError(err)

	s.EqualValues(2, s.app.Stats.Welcomed.Load())
	s.EqualValues(2, s.app.Stats.Counted.Load())
	s.Equal([]string{"Ann Lee", "Bo Kim"}, s.app.Outbox.Mails())

	events, err := s.repo.Query(s.ctx, repository.Filter{Kinds: []pipeline.Kind{pipeline.Event}})
	s.Require().NoError(err)
	s.Len(events, 2)
	s.Equal(pipeline.Completed, events[0].Status)
}

func (s *DemoSuite) TestHandlerNotFound() {
	mc, err := s.app.Service.Command(s.ctx, &DeleteUser{ID: 1})
	s.Require().Error(err)
	s.ErrorIs(err, pipeline.ErrHandlerNotFound)
	s.Equal(pipeline.Failed, mc.Status())

	completed, err := s.repo.Query(s.ctx, repository.Filter{Statuses: []pipeline.Status{pipeline.Completed}})
	s.Require().NoError(err)
	s.Empty(completed)

	failed, err := s.repo.Query(s.ctx, repository.Filter{Statuses: []pipeline.Status{pipeline.Failed}})
	s.Require().NoError(err)
	s.Require().Len(failed, 1)
	s.Contains(failed[0].ErrorMessage, pipeline.ErrHandlerNotFound.Error())
}

func (s *DemoSuite) TestValidationRejectsWithoutCallingHandler() {
	mc, err := s.app.Service.Command(s.ctx, &CreateUser{First: "Ann"})
	s.Require().NoError(err)
	s.Equal(pipeline.Rejected, mc.Status())
	s.ErrorIs(mc.Err(), pipeline.ErrRejected)
	s.EqualValues(0, s.app.Stats.Creates.Load())
	s.Zero(s.app.Users.Len())
	s.Equal("Last:required", mc.Message.ExtraData["validation.failed"])

	rejected, err := s.repo.Query(s.ctx, repository.Filter{Statuses: []pipeline.Status{pipeline.Rejected}})
	s.Require().NoError(err)
	s.Len(rejected, 1)
}

func (s *DemoSuite) TestGetUser() {
	mc, err := s.app.Service.Command(s.ctx, &CreateUser{First: "Ann", Last: "Lee"})
	s.Require().NoError(err)

	u, err := pipeline.QueryResult[*User](s.ctx, s.app.Service, GetUser{ID: mc.Result.(int)})
	s.Require().NoError(err)
	s.Equal(&User{ID: 1, First: "Ann", Last: "Lee"}, u)

	_, err = pipeline.QueryResult[*User](s.ctx, s.app.Service, GetUser{ID: 42})
	s.ErrorIs(err, ErrUserNotFound)
	s.EqualValues(2, s.app.Stats.Lookups.Load())
}

func (s *DemoSuite) TestPayloadsStayWithTheirKind() {
	mc, err := s.app.Service.Command(s.ctx, &CreateUser{First: "Ann", Last: "Lee"})
	s.Require().NoError(err)
	id := mc.Result.(int)

	mc, err = s.app.Service.Command(s.ctx, GetUser{ID: id})
	s.ErrorIs(err, pipeline.ErrHandlerNotFound)
	s.Equal(pipeline.Failed, mc.Status())
	s.Nil(mc.Result)

	mc, err = s.app.Service.Query(s.ctx, &RenameUser{ID: id, First: "Al", Last: "Lee"})
	s.ErrorIs(err, pipeline.ErrHandlerNotFound)
	s.Equal(pipeline.Failed, mc.Status())

	u, err := s.app.Users.Find(s.ctx, id)
	s.Require().NoError(err)
	s.Equal("Ann", u.First)
	s.EqualValues(0, s.app.Stats.Lookups.Load())
	s.EqualValues(0, s.app.Stats.Renames.Load())
}

func (s *DemoSuite) TestRenameUnknownUserRaises() {
	_, err := s.app.Service.Command(s.ctx, &RenameUser{ID: 7, First: "A", Last: "B"})
	s.ErrorIs(err, ErrUserNotFound)
	s.Zero(s.app.Work.Commits())
}

func TestCaptureModeKeepsFailureOnContext(t *testing.T) {
	app, err := New(WithBuilder(func(b *builder.Builder) { b.WithFailFast(handlers.Capture) }))
	require.NoError(t, err)

	mc, err := app.Service.Command(context.Background(), &RenameUser{ID: 7, First: "A", Last: "B"})
	require.NoError(t, err)
	assert.Equal(t, pipeline.Failed, mc.Status())
	require.NotNil(t, mc.Failure())
	assert.ErrorIs(t, mc.Failure().Rethrow(), ErrUserNotFound)
}

func TestWithoutValidation(t *testing.T) {
	app, err := New(WithoutValidation())
	require.NoError(t, err)

	mc, err := app.Service.Command(context.Background(), &CreateUser{})
	require.NoError(t, err)
	assert.Equal(t, pipeline.Completed, mc.Status())
	assert.EqualValues(t, 1, app.Stats.Creates.Load())
}

func TestFieldInjection(t *testing.T) {
	app, err := New(WithBuilder(func(b *builder.Builder) { b.WithFieldInjection(true) }))
	require.NoError(t, err)
	_, err = app.Service.Command(context.Background(), &CreateUser{First: "Ann", Last: "Lee"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, app.Stats.Counted.Load())
}
