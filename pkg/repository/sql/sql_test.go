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

package sql

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/innovationmech/msgpipe/pkg/pipeline"
	"github.com/innovationmech/msgpipe/pkg/repository"
)

type invoice struct {
	Number string `json:"number"`
}

func setupTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, func()) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	require.NoError(t, err)

	cleanup := func() {
		sqlDB.Close()
	}
	return gormDB, mock, cleanup
}

func finished(t *testing.T, fail error) *pipeline.Message {
	t.Helper()
	msg, err := pipeline.NewMessage(pipeline.Command, &invoice{Number: "INV-1"})
	require.NoError(t, err)
	require.NoError(t, msg.SetDuration(7*time.Millisecond))
	if fail != nil {
		require.NoError(t, msg.Fail(fail))
	} else {
		require.NoError(t, msg.Complete())
	}
	return msg
}

func TestRepository_Add(t *testing.T) {
	tests := []struct {
		name        string
		fail        error
		setupMock   func(sqlmock.Sqlmock, *pipeline.Message)
		expectError string
	}{
		{
			name: "success_completed_message",
			setupMock: func(mock sqlmock.Sqlmock, msg *pipeline.Message) {
				mock.ExpectBegin()
				mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `pipeline_messages`")).
					WithArgs(
						msg.ID.String(),
						uint8(pipeline.Command),
						msg.ContentType,
						sqlmock.AnyArg(), // Content
						sqlmock.AnyArg(), // ExtraData
						sqlmock.AnyArg(), // CreatedAt
						int64(7),
						uint8(pipeline.Completed),
						"",
						"",
					).
					WillReturnResult(sqlmock.NewResult(1, 1))
				mock.ExpectCommit()
			},
		},
		{
			name: "success_failed_message_keeps_error",
			fail: errors.New("duplicate invoice"),
			setupMock: func(mock sqlmock.Sqlmock, msg *pipeline.Message) {
				mock.ExpectBegin()
				mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `pipeline_messages`")).
					WithArgs(
						msg.ID.String(),
						uint8(pipeline.Command),
						msg.ContentType,
						sqlmock.AnyArg(),
						sqlmock.AnyArg(),
						sqlmock.AnyArg(),
						int64(7),
						uint8(pipeline.Failed),
						"*errors.errorString",
						"duplicate invoice",
					).
					WillReturnResult(sqlmock.NewResult(1, 1))
				mock.ExpectCommit()
			},
		},
		{
			name: "error_database_failure",
			setupMock: func(mock sqlmock.Sqlmock, msg *pipeline.Message) {
				mock.ExpectBegin()
				mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `pipeline_messages`")).
					WillReturnError(errors.New("database connection failed"))
				mock.ExpectRollback()
			},
			expectError: "database connection failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, cleanup := setupTestDB(t)
			defer cleanup()

			msg := finished(t, tt.fail)
			tt.setupMock(mock, msg)

			repo, err := New(db)
			require.NoError(t, err)
			err = repo.Add(context.Background(), msg)
			if tt.expectError != "" {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectError)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRepository_AddRejectsUnfinishedMessage(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	msg, err := pipeline.NewMessage(pipeline.Command, &invoice{})
	require.NoError(t, err)
	repo, err := New(db)
	require.NoError(t, err)
	assert.ErrorIs(t, repo.Add(context.Background(), msg), pipeline.ErrInvalidTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Query(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	id1, id2 := uuid.New(), uuid.New()
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "kind", "content_type", "content", "extra_data", "created_at",
		"duration_ms", "status", "error_type", "error_message",
	}).
		AddRow(id1.String(), 0, "example.com/billing.Invoice", []byte(`{"number":"A"}`), nil, created, 3, 1, "", "").
		AddRow(id2.String(), 0, "example.com/billing.Invoice", []byte(`{"number":"B"}`), []byte(`{"k":"v"}`), created.Add(time.Second), 9, 2, "*errors.errorString", "boom")

	mock.ExpectQuery("SELECT \\* FROM `pipeline_messages` WHERE kind IN").
		WillReturnRows(rows)

	repo, err := New(db)
	require.NoError(t, err)
	records, err := repo.Query(context.Background(), repository.Filter{
		Kinds:        []pipeline.Kind{pipeline.Command},
		Statuses:     []pipeline.Status{pipeline.Completed, pipeline.Failed},
		ContentTypes: []string{"Invoice"},
		From:         created.Add(-time.Hour),
		MinDuration:  time.Millisecond,
		Limit:        10,
	})
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, id1, records[0].ID)
	assert.Equal(t, pipeline.Completed, records[0].Status)
	assert.JSONEq(t, `{"number":"A"}`, string(records[0].Content))
	assert.Nil(t, records[0].ExtraData)

	assert.Equal(t, id2, records[1].ID)
	assert.Equal(t, pipeline.Failed, records[1].Status)
	assert.Equal(t, "boom", records[1].ErrorMessage)
	assert.Equal(t, 9*time.Millisecond, records[1].Duration())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_QueryLimitAfterContentTypeCheck(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	first, third := uuid.New(), uuid.New()
	rows := sqlmock.NewRows([]string{
		"id", "kind", "content_type", "content", "extra_data", "created_at",
		"duration_ms", "status", "error_type", "error_message",
	}).
		AddRow(first.String(), 0, "example.com/billing.Invoice", nil, nil, created, 1, 1, "", "").
		// matched by the case-insensitive LIKE only
		AddRow(uuid.NewString(), 0, "example.com/billing.INVOICE", nil, nil, created.Add(time.Second), 1, 1, "", "").
		AddRow(third.String(), 0, "example.com/billing.Invoice", nil, nil, created.Add(2*time.Second), 1, 1, "", "")

	mock.ExpectQuery("SELECT \\* FROM `pipeline_messages` WHERE .*content_type LIKE .*ORDER BY created_at$").
		WillReturnRows(rows)

	repo, err := New(db)
	require.NoError(t, err)
	records, err := repo.Query(context.Background(), repository.Filter{
		ContentTypes: []string{"Invoice"},
		Limit:        2,
	})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, first, records[0].ID)
	assert.Equal(t, third, records[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_QueryError(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT \\* FROM `audit`").WillReturnError(errors.New("timeout"))

	repo, err := New(db, WithTable("audit"))
	require.NoError(t, err)
	_, err = repo.Query(context.Background(), repository.Filter{})
	assert.EqualError(t, err, "timeout")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRequiresDB(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, pipeline.ErrConfiguration)
}
