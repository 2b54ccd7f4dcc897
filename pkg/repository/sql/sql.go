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

// Package sql stores audit records in a relational database through gorm.
package sql

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/innovationmech/msgpipe/pkg/pipeline"
	"github.com/innovationmech/msgpipe/pkg/repository"
)

// DefaultTable is the table used when none is configured.
const DefaultTable = "pipeline_messages"

// MessageRecord is the table row of one audit record.
type MessageRecord struct {
	ID           string    `gorm:"primaryKey;size:36"`
	Kind         uint8     `gorm:"not null;index:idx_kind_status"`
	ContentType  string    `gorm:"size:255;not null;index"`
	Content      []byte    `gorm:"type:blob"`
	ExtraData    []byte    `gorm:"type:blob"`
	CreatedAt    time.Time `gorm:"not null;index"`
	DurationMS   int64     `gorm:"not null"`
	Status       uint8     `gorm:"not null;index:idx_kind_status"`
	ErrorType    string    `gorm:"size:255"`
	ErrorMessage string    `gorm:"type:text"`
}

func toRow(r *repository.Record) *MessageRecord {
	return &MessageRecord{
		ID:           r.ID.String(),
		Kind:         uint8(r.Kind),
		ContentType:  r.ContentType,
		Content:      r.Content,
		ExtraData:    r.ExtraData,
		CreatedAt:    r.CreatedAt,
		DurationMS:   r.DurationMS,
		Status:       uint8(r.Status),
		ErrorType:    r.ErrorType,
		ErrorMessage: r.ErrorMessage,
	}
}

func (m *MessageRecord) record() (*repository.Record, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return nil, fmt.Errorf("row %q: %w", m.ID, err)
	}
	r := &repository.Record{
		ID:           id,
		Kind:         pipeline.Kind(m.Kind),
		ContentType:  m.ContentType,
		CreatedAt:    m.CreatedAt.UTC(),
		DurationMS:   m.DurationMS,
		Status:       pipeline.Status(m.Status),
		ErrorType:    m.ErrorType,
		ErrorMessage: m.ErrorMessage,
	}
	if len(m.Content) > 0 {
		r.Content = m.Content
	}
	if len(m.ExtraData) > 0 {
		r.ExtraData = m.ExtraData
	}
	return r, nil
}

// Option configures a Repository.
type Option func(*Repository)

// WithTable overrides the table name.
func WithTable(name string) Option {
	return func(r *Repository) {
		if name != "" {
			r.table = name
		}
	}
}

// WithAutoMigrate creates or updates the table when the repository is built.
func WithAutoMigrate() Option {
	return func(r *Repository) { r.migrate = true }
}

// Repository is a gorm-backed repository.Repository.
type Repository struct {
	db      *gorm.DB
	table   string
	migrate bool
}

// New wraps an open gorm connection.
func New(db *gorm.DB, opts ...Option) (*Repository, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: nil database", pipeline.ErrConfiguration)
	}
	r := &Repository{db: db, table: DefaultTable}
	for _, opt := range opts {
		opt(r)
	}
	if r.migrate {
		if err := r.db.Table(r.table).AutoMigrate(&MessageRecord{}); err != nil {
			return nil, fmt.Errorf("migrate %s: %w", r.table, err)
		}
	}
	return r, nil
}

// Open connects to MySQL using dsn and migrates the table.
func Open(dsn string, opts ...Option) (*Repository, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return New(db, append([]Option{WithAutoMigrate()}, opts...)...)
}

// Add implements repository.Repository.
func (r *Repository) Add(ctx context.Context, msg *pipeline.Message) error {
	rec, err := repository.FromMessage(msg)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Table(r.table).Create(toRow(rec)).Error
}

// Query implements repository.Repository.
func (r *Repository) Query(ctx context.Context, f repository.Filter) ([]*repository.Record, error) {
	q := r.db.WithContext(ctx).Table(r.table)
	if len(f.Kinds) > 0 {
		kinds := make([]uint8, len(f.Kinds))
		for i, k := range f.Kinds {
			kinds[i] = uint8(k)
		}
		q = q.Where("kind IN ?", kinds)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]uint8, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = uint8(s)
		}
		q = q.Where("status IN ?", statuses)
	}
	if len(f.ContentTypes) > 0 {
		cond := r.db.Where("content_type IN ?", f.ContentTypes)
		for _, ct := range f.ContentTypes {
			cond = cond.Or("content_type LIKE ?", "%."+ct)
		}
		q = q.Where(cond)
	}
	if !f.From.IsZero() {
		q = q.Where("created_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		q = q.Where("created_at < ?", f.To)
	}
	if f.MinDuration > 0 {
		q = q.Where("duration_ms >= ?", f.MinDuration.Milliseconds())
	}
	if f.MaxDuration > 0 {
		q = q.Where("duration_ms <= ?", f.MaxDuration.Milliseconds())
	}
	// with content types the limit applies after the local recheck below
	if f.Limit > 0 && len(f.ContentTypes) == 0 {
		q = q.Limit(f.Limit)
	}

	var rows []MessageRecord
	if err := q.Order("created_at").Find(&rows).Error; err != nil {
		return nil, err
	}
	records := make([]*repository.Record, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].record()
		if err != nil {
			return nil, err
		}
		// the LIKE match may be looser than the short-name rule
		if len(f.ContentTypes) > 0 && !f.Match(rec) {
			continue
		}
		records = append(records, rec)
		if f.Limit > 0 && len(records) == f.Limit {
			break
		}
	}
	return records, nil
}

// Close closes the underlying connection pool.
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
