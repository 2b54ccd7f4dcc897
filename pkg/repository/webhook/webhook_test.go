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

package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innovationmech/msgpipe/pkg/pipeline"
	"github.com/innovationmech/msgpipe/pkg/repository"
)

type invoice struct {
	Number string `json:"number"`
}

// auditServer is a minimal remote audit service.
type auditServer struct {
	mu      sync.Mutex
	records []*repository.Record
	queries []queryRequest
}

func (s *auditServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch r.URL.Path {
	case "/audit/messages":
		var rec repository.Record
		if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.records = append(s.records, &rec)
		w.WriteHeader(http.StatusCreated)
	case "/audit/messages/query":
		var q queryRequest
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.queries = append(s.queries, q)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s.records)
	default:
		http.NotFound(w, r)
	}
}

func completed(t *testing.T, kind pipeline.Kind, number string) *pipeline.Message {
	t.Helper()
	msg, err := pipeline.NewMessage(kind, &invoice{Number: number})
	require.NoError(t, err)
	require.NoError(t, msg.Complete())
	return msg
}

func TestAddAndQuery(t *testing.T) {
	srv := &auditServer{}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	repo, err := New(ts.URL+"/audit/", WithTimeout(time.Second))
	require.NoError(t, err)
	defer repo.Close()

	ctx := context.Background()
	first := completed(t, pipeline.Command, "A-1")
	second := completed(t, pipeline.Event, "A-2")
	require.NoError(t, repo.Add(ctx, first))
	require.NoError(t, repo.Add(ctx, second))
	require.Len(t, srv.records, 2)
	assert.JSONEq(t, `{"number":"A-1"}`, string(srv.records[0].Content))

	from := time.Now().Add(-time.Hour)
	records, err := repo.Query(ctx, repository.Filter{Kinds: []pipeline.Kind{pipeline.Event}, From: from})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, second.ID, records[0].ID)

	require.Len(t, srv.queries, 1)
	assert.Equal(t, []pipeline.Kind{pipeline.Event}, srv.queries[0].Kinds)
	require.NotNil(t, srv.queries[0].From)
	assert.True(t, from.Equal(*srv.queries[0].From))
	assert.Nil(t, srv.queries[0].To)
}

func TestServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "disk full", http.StatusInsufficientStorage)
	}))
	defer ts.Close()

	repo, err := New(ts.URL)
	require.NoError(t, err)
	err = repo.Add(context.Background(), completed(t, pipeline.Command, "B-1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "507")
	assert.Contains(t, err.Error(), "disk full")

	_, err = repo.Query(context.Background(), repository.Filter{})
	assert.Error(t, err)
}

func TestTimeout(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()
	defer close(release)

	repo, err := New(ts.URL, WithTimeout(50*time.Millisecond))
	require.NoError(t, err)
	err = repo.Add(context.Background(), completed(t, pipeline.Query, "C-1"))
	assert.Error(t, err)
}

func TestRejectsProcessingMessage(t *testing.T) {
	repo, err := New("http://127.0.0.1:1")
	require.NoError(t, err)
	msg, err := pipeline.NewMessage(pipeline.Command, &invoice{})
	require.NoError(t, err)
	assert.ErrorIs(t, repo.Add(context.Background(), msg), pipeline.ErrInvalidTransition)
}

func TestNewValidatesURL(t *testing.T) {
	for _, raw := range []string{"", "audit.local", "ftp://audit.local", "http://"} {
		_, err := New(raw)
		assert.ErrorIs(t, err, pipeline.ErrConfiguration, raw)
	}
}
