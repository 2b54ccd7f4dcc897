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

package deps

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/innovationmech/msgpipe/internal/demo"
	"github.com/innovationmech/msgpipe/pkg/config"
	"github.com/innovationmech/msgpipe/pkg/pipeline"
	"github.com/innovationmech/msgpipe/pkg/pipeline/handlers"
	"github.com/innovationmech/msgpipe/pkg/pipeline/middleware"
	"github.com/innovationmech/msgpipe/pkg/repository"
	"github.com/innovationmech/msgpipe/pkg/repository/file"
	redisrepo "github.com/innovationmech/msgpipe/pkg/repository/redis"
	"github.com/innovationmech/msgpipe/pkg/repository/webhook"
	"github.com/innovationmech/msgpipe/pkg/testrun"
)

func defaultSettings(t *testing.T) *config.Settings {
	t.Helper()
	opts := config.DefaultOptions()
	opts.WorkDir = t.TempDir()
	s, err := config.Load(opts)
	require.NoError(t, err)
	return s
}

func TestOpenRepository(t *testing.T) {
	s := defaultSettings(t).Repository

	repo, err := OpenRepository(s)
	require.NoError(t, err)
	assert.IsType(t, &repository.Memory{}, repo)

	s.Backend = config.BackendNone
	repo, err = OpenRepository(s)
	require.NoError(t, err)
	assert.Nil(t, repo)

	s.Backend = config.BackendFile
	s.File.Path = filepath.Join(t.TempDir(), "audit", "messages.bin")
	s.File.Compress = true
	repo, err = OpenRepository(s)
	require.NoError(t, err)
	require.IsType(t, &file.Repository{}, repo)
	assert.Equal(t, s.File.Path, repo.(*file.Repository).Path())
	require.NoError(t, repo.Close())

	s.Backend = config.BackendRedis
	s.Redis.Stream = "audit"
	repo, err = OpenRepository(s)
	require.NoError(t, err)
	require.IsType(t, &redisrepo.Repository{}, repo)
	assert.Equal(t, "audit", repo.(*redisrepo.Repository).Stream())
	require.NoError(t, repo.Close())

	s.Backend = config.BackendWebhook
	s.Webhook.URL = "http://audit.internal/api"
	repo, err = OpenRepository(s)
	require.NoError(t, err)
	assert.IsType(t, &webhook.Repository{}, repo)

	s.Backend = "tape"
	_, err = OpenRepository(s)
	assert.ErrorIs(t, err, pipeline.ErrConfiguration)
}

func TestNewDependenciesServesDemo(t *testing.T) {
	gin.SetMode(gin.TestMode)
	settings := defaultSettings(t)
	rec := testrun.NewRecorder(testrun.MetadataStep{Name: "deps"})

	d, err := NewDependencies(settings, WithRecorder(rec), WithLogger(zap.NewNop()))
	require.NoError(t, err)
	defer d.Close()
	require.NoError(t, d.Validate())

	p, ok := d.App.Service.Pipeline(pipeline.Command)
	require.True(t, ok)
	assert.Equal(t, []string{
		middleware.MetricsID, middleware.LoggingID, handlers.LocatorID, middleware.ValidationID,
		handlers.ResolverID, handlers.ExecutorID, handlers.FailFastID, testrun.RecorderID, repository.MiddlewareID,
	}, p.IDs())

	req := httptest.NewRequest(http.MethodPost, "/command/CreateUser", strings.NewReader(`{"first":"Ann","last":"Lee"}`))
	w := httptest.NewRecorder()
	d.Endpoint.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Completed", body["status"])
	assert.EqualValues(t, 1, body["result"])

	records, err := d.Repository.Query(context.Background(), repository.Filter{})
	require.NoError(t, err)
	// The command and the UserCreated event it published.
	assert.Len(t, records, 2)
	assert.Len(t, rec.Run().Invocations(), 2)

	n, err := testutil.GatherAndCount(d.Metrics, "msgpipe_pipeline_messages_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	mreq := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	mw := httptest.NewRecorder()
	d.Endpoint.Handler().ServeHTTP(mw, mreq)
	assert.Equal(t, http.StatusOK, mw.Code)
	assert.Contains(t, mw.Body.String(), "msgpipe_pipeline_messages_total")
}

func TestNewDependenciesHonoursSettings(t *testing.T) {
	settings := defaultSettings(t)
	settings.Repository.Backend = config.BackendNone
	settings.Endpoint.Metrics = false
	settings.Pipeline.Validation = false
	settings.Pipeline.Tracing = true
	settings.Pipeline.FailFast = "off"

	d, err := NewDependencies(settings, WithLogger(zap.NewNop()))
	require.NoError(t, err)
	require.NoError(t, d.Validate())
	assert.Nil(t, d.Metrics)

	p, ok := d.App.Service.Pipeline(pipeline.Event)
	require.True(t, ok)
	assert.Equal(t, []string{
		middleware.TracingID, middleware.LoggingID, handlers.LocatorID,
		handlers.ResolverID, handlers.ExecutorID,
	}, p.IDs())

	mc, err := d.App.Service.Command(context.Background(), &demo.CreateUser{})
	require.NoError(t, err)
	assert.Equal(t, pipeline.Completed, mc.Status())
}

func TestNewDependenciesUsesGivenRepository(t *testing.T) {
	repo := repository.NewMemory()
	d, err := NewDependencies(defaultSettings(t), WithRepository(repo), WithLogger(zap.NewNop()))
	require.NoError(t, err)
	assert.Same(t, repo, d.Repository)
}

func TestNewDependenciesErrors(t *testing.T) {
	_, err := NewDependencies(nil)
	assert.ErrorIs(t, err, ErrServiceInitialization)

	settings := defaultSettings(t)
	settings.Pipeline.FailFast = "sometimes"
	_, err = NewDependencies(settings, WithLogger(zap.NewNop()))
	assert.ErrorIs(t, err, ErrServiceInitialization)
	assert.ErrorIs(t, err, pipeline.ErrConfiguration)

	settings = defaultSettings(t)
	settings.Repository.Backend = "tape"
	_, err = NewDependencies(settings)
	assert.ErrorIs(t, err, ErrRepositoryInitialization)
}
