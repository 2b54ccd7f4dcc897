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

package handlers

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/innovationmech/msgpipe/pkg/pipeline"
)

type createOrder struct {
	Item string
	Qty  int
}

type getOrder struct {
	ID int
}

type orderPlaced struct {
	ID int
}

type auditable interface {
	AuditKey() string
}

type refundOrder struct {
	ID int
}

func (r refundOrder) AuditKey() string { return fmt.Sprintf("refund-%d", r.ID) }

var errOutOfStock = errors.New("out of stock")

// store is a collaborator resolved from the provider.
type store struct {
	orders map[int]string
	closed int
}

func newStore() *store { return &store{orders: make(map[int]string)} }

type orderModule struct {
	store *store
}

func newOrderModule(s *store) *orderModule { return &orderModule{store: s} }

func (m *orderModule) HandleCreate(ctx context.Context, cmd *createOrder) (int, error) {
	if cmd.Qty <= 0 {
		return 0, errOutOfStock
	}
	id := len(m.store.orders) + 1
	m.store.orders[id] = cmd.Item
	return id, nil
}

func (m *orderModule) QueryGet(q getOrder) string {
	return m.store.orders[q.ID]
}

func (m *orderModule) HandleRefund(r auditable, mc *pipeline.MessageContext) {
	mc.Message.ExtraData["audit"] = r.AuditKey()
}

// helper methods without a payload are not handlers
func (m *orderModule) HandleNothing() {}

func (m *orderModule) Close() error {
	m.store.closed++
	return nil
}

type mailer struct {
	sent []int
}

type notifyModule struct{}

func (notifyModule) OnOrderPlaced(e orderPlaced, m *mailer) error {
	m.sent = append(m.sent, e.ID)
	return nil
}

type statsModule struct {
	Mailer *mailer
	fail   bool
}

func (s *statsModule) OnPlaced(e orderPlaced) error {
	if s.fail {
		return fmt.Errorf("stats for %d unavailable", e.ID)
	}
	if s.Mailer == nil {
		return errors.New("mailer not injected")
	}
	return nil
}

func (s *statsModule) OnPanic(e *orderPlaced) {
	panic("stats exploded")
}

func dispatch(t *testing.T, p *pipeline.Pipeline, provider pipeline.ServiceProvider, kind pipeline.Kind, payload any) (*pipeline.MessageContext, error) {
	t.Helper()
	msg, err := pipeline.NewMessage(kind, payload)
	require.NoError(t, err)
	mc := pipeline.NewMessageContext(context.Background(), msg, provider)
	return mc, p.Invoke(mc)
}

func chain(t *testing.T, kind pipeline.Kind, locator *Locator, opts []ResolverOption, mode FailFastMode) *pipeline.Pipeline {
	t.Helper()
	p := pipeline.New(kind)
	require.NoError(t, p.Append(
		locator,
		NewResolver(locator, opts...),
		NewExecutor(nil),
		NewFailFast(mode),
	))
	return p
}
