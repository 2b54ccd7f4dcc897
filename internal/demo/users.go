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

// Package demo is a small users domain served by the msgpipe binary and used
// by the end-to-end tests.
package demo

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// CreateUser registers a user. The handler answers with the new id.
type CreateUser struct {
	First string `json:"first" validate:"required"`
	Last  string `json:"last" validate:"required"`
}

// GetUser looks a user up by id.
type GetUser struct {
	ID int `json:"id" validate:"gt=0"`
}

// RenameUser changes the names of an existing user.
type RenameUser struct {
	ID    int    `json:"id" validate:"gt=0"`
	First string `json:"first" validate:"required"`
	Last  string `json:"last" validate:"required"`
}

// UserCreated is published after a user is stored.
type UserCreated struct {
	ID    int    `json:"id"`
	First string `json:"first"`
	Last  string `json:"last"`
}

// User is the stored record.
type User struct {
	ID    int    `json:"id"`
	First string `json:"first"`
	Last  string `json:"last"`
}

// ErrUserNotFound is returned for unknown ids.
var ErrUserNotFound = errors.New("user not found")

// UserRepository stores users.
type UserRepository interface {
	Insert(ctx context.Context, u *User) (int, error)
	Update(ctx context.Context, u *User) error
	Find(ctx context.Context, id int) (*User, error)
}

// MemoryUsers is an in-process UserRepository. Ids start at 1.
type MemoryUsers struct {
	mu    sync.RWMutex
	seq   int
	users map[int]User
}

func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{users: make(map[int]User)}
}

func (r *MemoryUsers) Insert(ctx context.Context, u *User) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	u.ID = r.seq
	r.users[u.ID] = *u
	return u.ID, nil
}

func (r *MemoryUsers) Update(ctx context.Context, u *User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[u.ID]; !ok {
		return ErrUserNotFound
	}
	r.users[u.ID] = *u
	return nil
}

func (r *MemoryUsers) Find(ctx context.Context, id int) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

// Len returns the number of stored users.
func (r *MemoryUsers) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

// UnitOfWork counts the commits of state-changing handlers.
type UnitOfWork struct {
	commits atomic.Int64
}

// Commit marks the end of one unit of work.
func (u *UnitOfWork) Commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	u.commits.Add(1)
	return nil
}

// Commits returns the number of successful commits.
func (u *UnitOfWork) Commits() int64 {
	return u.commits.Load()
}

// Stats counts handler invocations.
type Stats struct {
	Creates  atomic.Int64
	Renames  atomic.Int64
	Lookups  atomic.Int64
	Welcomed atomic.Int64
	Counted  atomic.Int64
}

// Outbox collects welcome mails instead of sending them.
type Outbox struct {
	mu    sync.Mutex
	mails []string
}

func (o *Outbox) Send(to string) {
	o.mu.Lock()
	o.mails = append(o.mails, to)
	o.mu.Unlock()
}

// Mails returns the recipients so far.
func (o *Outbox) Mails() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.mails...)
}
