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
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innovationmech/msgpipe/pkg/pipeline"
)

func TestCommandCompletesWithResult(t *testing.T) {
	st := newStore()
	p := chain(t, pipeline.Command, commandLocator(t, MustModule(newOrderModule)), nil, Raise)

	mc, err := dispatch(t, p, pipeline.NewServices(st), pipeline.Command, &createOrder{Item: "book", Qty: 1})
	require.NoError(t, err)
	assert.Equal(t, pipeline.Completed, mc.Status())
	assert.Equal(t, 1, mc.Result)
	assert.True(t, mc.Message.HasDuration())
	assert.Equal(t, "book", st.orders[1])
	assert.Equal(t, 1, st.closed, "constructed instance is released")
}

func TestCommandFailurePolicies(t *testing.T) {
	tests := []struct {
		mode     FailFastMode
		raised   bool
		captured bool
	}{
		{Raise, true, false},
		{Capture, false, true},
		{Off, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			p := chain(t, pipeline.Command, commandLocator(t, MustModule(newOrderModule)), nil, tt.mode)
			mc, err := dispatch(t, p, pipeline.NewServices(newStore()), pipeline.Command, &createOrder{Item: "book"})

			assert.Equal(t, pipeline.Failed, mc.Status())
			assert.Same(t, errOutOfStock, mc.Err())
			assert.True(t, mc.Message.HasDuration())
			if tt.raised {
				assert.Same(t, errOutOfStock, err)
			} else {
				assert.NoError(t, err)
			}
			if tt.captured {
				require.NotNil(t, mc.Failure())
				assert.Same(t, errOutOfStock, mc.Failure().Rethrow())
				assert.Equal(t, FailFastID, mc.Failure().Middleware)
				assert.Equal(t, true, mc.Message.ExtraData["failure.captured"])
			} else {
				assert.Nil(t, mc.Failure())
			}
		})
	}
}

func TestMissingDependencyAbortsBeforeExecution(t *testing.T) {
	p := chain(t, pipeline.Command, commandLocator(t, MustModule(newOrderModule)), nil, Off)
	mc, err := dispatch(t, p, pipeline.NewServices(), pipeline.Command, &createOrder{Item: "book", Qty: 1})

	require.Error(t, err)
	assert.ErrorIs(t, err, pipeline.ErrDependencyResolution)
	var de *pipeline.DispatchError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, ResolverID, de.Op)
	assert.Equal(t, reflect.TypeOf(&orderModule{}), de.Type)
	assert.Contains(t, err.Error(), "*handlers.store")
	assert.Equal(t, pipeline.Failed, mc.Status())
	assert.False(t, mc.Message.HasDuration())
}

func TestConstructorError(t *testing.T) {
	broken := MustModule(func(*store) (*orderModule, error) { return nil, errors.New("no database") })
	p := chain(t, pipeline.Command, commandLocator(t, broken), nil, Raise)
	_, err := dispatch(t, p, pipeline.NewServices(newStore()), pipeline.Command, &createOrder{Qty: 1})
	assert.ErrorIs(t, err, pipeline.ErrDependencyResolution)
	assert.Contains(t, err.Error(), "no database")
}

func TestHandlerNotFoundFailsMessage(t *testing.T) {
	p := chain(t, pipeline.Command, commandLocator(t, MustModule(newOrderModule)), nil, Off)
	mc, err := dispatch(t, p, pipeline.NewServices(newStore()), pipeline.Command, orderPlaced{})
	assert.ErrorIs(t, err, pipeline.ErrHandlerNotFound)
	assert.Equal(t, pipeline.Failed, mc.Status())

	var de *pipeline.DispatchError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, pipeline.Command, de.Kind)
	assert.Equal(t, mc.Message.ContentType, de.ContentType)
}

func TestHandlerReceivesMessageContext(t *testing.T) {
	p := chain(t, pipeline.Command, commandLocator(t, MustModule(newOrderModule)), nil, Raise)
	mc, err := dispatch(t, p, pipeline.NewServices(newStore()), pipeline.Command, refundOrder{ID: 3})
	require.NoError(t, err)
	assert.Equal(t, pipeline.Completed, mc.Status())
	assert.Equal(t, "refund-3", mc.Message.ExtraData["audit"])
	assert.Nil(t, mc.Result)
}

func TestFactoryResolutionUsesProviderInstance(t *testing.T) {
	st := newStore()
	st.orders[5] = "lamp"
	l, err := NewLocator([]pipeline.Kind{pipeline.Query}, []*Module{MustModule(newOrderModule)}, nil)
	require.NoError(t, err)
	p := chain(t, pipeline.Query, l, []ResolverOption{WithStrategy(FactoryResolution)}, Raise)

	mc, err := dispatch(t, p, pipeline.NewServices(&orderModule{store: st}), pipeline.Query, getOrder{ID: 5})
	require.NoError(t, err)
	assert.Equal(t, "lamp", mc.Result)
	assert.Zero(t, st.closed, "provider owns the instance")
}

func eventLocator(t *testing.T, modules ...*Module) *Locator {
	t.Helper()
	l, err := NewLocator([]pipeline.Kind{pipeline.Event}, modules, nil)
	require.NoError(t, err)
	return l
}

func TestEventReachesEveryListener(t *testing.T) {
	m := &mailer{}
	l := eventLocator(t, ModuleOf(notifyModule{}), MustModule(func() *statsModule { return &statsModule{} }))
	p := chain(t, pipeline.Event, l, []ResolverOption{WithFieldInjection(true)}, Raise)

	mc, err := dispatch(t, p, pipeline.NewServices(m), pipeline.Event, orderPlaced{ID: 9})
	require.NoError(t, err)
	assert.Equal(t, pipeline.Completed, mc.Status())
	assert.Equal(t, []int{9}, m.sent)
	assert.Len(t, mc.Bindings, 2)
}

func TestEventWithoutFieldInjection(t *testing.T) {
	l := eventLocator(t, MustModule(func() *statsModule { return &statsModule{} }))
	p := chain(t, pipeline.Event, l, nil, Off)

	mc, err := dispatch(t, p, pipeline.NewServices(&mailer{}), pipeline.Event, orderPlaced{ID: 1})
	require.NoError(t, err)
	assert.Equal(t, pipeline.Failed, mc.Status())
	assert.EqualError(t, mc.Err(), "mailer not injected")
}

func TestEventListenerFailureDoesNotStopOthers(t *testing.T) {
	m := &mailer{}
	l := eventLocator(t, ModuleOf(&statsModule{fail: true, Mailer: m}), ModuleOf(notifyModule{}))
	p := chain(t, pipeline.Event, l, nil, Off)

	mc, err := dispatch(t, p, pipeline.NewServices(m), pipeline.Event, orderPlaced{ID: 4})
	require.NoError(t, err)
	assert.Equal(t, pipeline.Failed, mc.Status())
	assert.Contains(t, mc.Message.ErrorMessage(), "stats for 4 unavailable")
	assert.Equal(t, []int{4}, m.sent)
}

func TestEventWithoutListenersCompletes(t *testing.T) {
	p := chain(t, pipeline.Event, eventLocator(t, ModuleOf(notifyModule{})), nil, Raise)
	mc, err := dispatch(t, p, pipeline.NewServices(), pipeline.Event, getOrder{})
	require.NoError(t, err)
	assert.Equal(t, pipeline.Completed, mc.Status())
}

func TestHandlerPanicFailsMessage(t *testing.T) {
	p := chain(t, pipeline.Event, eventLocator(t, ModuleOf(&statsModule{})), nil, Raise)
	mc, err := dispatch(t, p, pipeline.NewServices(), pipeline.Event, &orderPlaced{ID: 2})
	require.Error(t, err)
	assert.Equal(t, pipeline.Failed, mc.Status())
	assert.Contains(t, err.Error(), "stats exploded")
}

func TestExecutorSkipsRejectedMessage(t *testing.T) {
	l := commandLocator(t, MustModule(newOrderModule))
	p := chain(t, pipeline.Command, l, nil, Raise)
	require.NoError(t, p.InsertBefore(pipeline.NewFunc("gate", func(mc *pipeline.MessageContext) error {
		return mc.Message.Reject(pipeline.ErrRejected)
	}), ExecutorID))

	st := newStore()
	mc, err := dispatch(t, p, pipeline.NewServices(st), pipeline.Command, &createOrder{Item: "x", Qty: 1})
	require.NoError(t, err)
	assert.Equal(t, pipeline.Rejected, mc.Status())
	assert.False(t, mc.Message.HasDuration())
	assert.Empty(t, st.orders)
}

func TestResolverSkipsRejectedMessage(t *testing.T) {
	l := commandLocator(t, MustModule(newOrderModule))
	p := chain(t, pipeline.Command, l, nil, Raise)
	require.NoError(t, p.InsertBefore(pipeline.NewFunc("gate", func(mc *pipeline.MessageContext) error {
		return mc.Message.Reject(pipeline.ErrRejected)
	}), ResolverID))

	// No *store is provided, so resolving the module would fail.
	mc, err := dispatch(t, p, pipeline.NewServices(), pipeline.Command, &createOrder{Item: "x", Qty: 1})
	require.NoError(t, err)
	assert.Equal(t, pipeline.Rejected, mc.Status())
}

func TestExecutorNeedsResolver(t *testing.T) {
	p := pipeline.New(pipeline.Command)
	require.NoError(t, p.Append(commandLocator(t, MustModule(newOrderModule)), NewExecutor(nil)))
	_, err := dispatch(t, p, pipeline.NewServices(), pipeline.Command, &createOrder{Item: "x", Qty: 1})
	assert.ErrorIs(t, err, pipeline.ErrConfiguration)
}

func TestParseOptions(t *testing.T) {
	s, err := ParseStrategy("factory")
	require.NoError(t, err)
	assert.Equal(t, FactoryResolution, s)
	s, err = ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, ConstructorResolution, s)
	_, err = ParseStrategy("magic")
	assert.ErrorIs(t, err, pipeline.ErrConfiguration)

	for _, name := range []string{"raise", "capture", "off"} {
		m, err := ParseFailFastMode(name)
		require.NoError(t, err)
		assert.Equal(t, name, m.String())
	}
	_, err = ParseFailFastMode("loud")
	assert.ErrorIs(t, err, pipeline.ErrConfiguration)
}
