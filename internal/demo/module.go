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
	"fmt"

	"github.com/innovationmech/msgpipe/pkg/pipeline"
)

// UserIDKey is the ExtraData key holding the id assigned by CreateUser.
const UserIDKey = "user.id"

// Publisher dispatches events. *pipeline.Service satisfies it.
type Publisher interface {
	Event(ctx context.Context, payload any) (*pipeline.MessageContext, error)
}

// UserModule handles the user commands and queries.
type UserModule struct {
	users UserRepository
	stats *Stats
}

func NewUserModule(users UserRepository, stats *Stats) *UserModule {
	return &UserModule{users: users, stats: stats}
}

func (m *UserModule) HandleCreateUser(ctx context.Context, cmd *CreateUser, mc *pipeline.MessageContext,
	uow *UnitOfWork, events Publisher) (int, error) {
	m.stats.Creates.Add(1)
	u := &User{First: cmd.First, Last: cmd.Last}
	id, err := m.users.Insert(ctx, u)
	if err != nil {
		return 0, err
	}
	if err := uow.Commit(ctx); err != nil {
		return 0, err
	}
	mc.Message.ExtraData[UserIDKey] = id
	if _, err := events.Event(ctx, &UserCreated{ID: id, First: u.First, Last: u.Last}); err != nil {
		return id, fmt.Errorf("publish user created: %w", err)
	}
	return id, nil
}

func (m *UserModule) HandleRenameUser(ctx context.Context, cmd *RenameUser, uow *UnitOfWork) error {
	m.stats.Renames.Add(1)
	if err := m.users.Update(ctx, &User{ID: cmd.ID, First: cmd.First, Last: cmd.Last}); err != nil {
		return err
	}
	return uow.Commit(ctx)
}

func (m *UserModule) QueryUser(ctx context.Context, q GetUser) (*User, error) {
	m.stats.Lookups.Add(1)
	return m.users.Find(ctx, q.ID)
}

// WelcomeModule sends a welcome mail to every new user.
type WelcomeModule struct {
	outbox *Outbox
	stats  *Stats
}

func NewWelcomeModule(outbox *Outbox, stats *Stats) *WelcomeModule {
	return &WelcomeModule{outbox: outbox, stats: stats}
}

func (m *WelcomeModule) OnUserCreated(e *UserCreated) {
	m.stats.Welcomed.Add(1)
	m.outbox.Send(e.First + " " + e.Last)
}

// CensusModule counts users. Its Stats field is filled by field injection
// when that is enabled, and by the constructor otherwise.
type CensusModule struct {
	Stats *Stats
}

func NewCensusModule(stats *Stats) *CensusModule {
	return &CensusModule{Stats: stats}
}

func (m *CensusModule) OnUserCreated(e *UserCreated) error {
	if m.Stats == nil {
		return fmt.Errorf("census: no stats for user %d", e.ID)
	}
	m.Stats.Counted.Add(1)
	return nil
}
