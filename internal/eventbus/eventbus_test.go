package eventbus

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDispatchInvokesObserver(t *testing.T) {
	b := New()
	var got Event
	done := make(chan struct{}, 1)

	b.Subscribe(func(evt Event, userData interface{}) {
		got = evt
		done <- struct{}{}
	}, nil)

	b.Dispatch(Event{Kind: IdentityLoaded, Fingerprint: "abc"})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("observer not invoked")
	}
	require.Equal(t, IdentityLoaded, got.Kind)
	require.Equal(t, "abc", got.Fingerprint)
}

func TestDispatchWithoutObserverIsNoop(t *testing.T) {
	b := New()
	require.NotPanics(t, func() {
		b.Dispatch(Event{Kind: DhtConnected})
	})
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	var calls int64
	b.Subscribe(func(evt Event, userData interface{}) {
		atomic.AddInt64(&calls, 1)
	}, nil)

	b.Unsubscribe()
	b.Dispatch(Event{Kind: DhtConnected})

	require.Equal(t, int64(0), atomic.LoadInt64(&calls))
	require.False(t, b.HasObserver())
}

func TestSubscribeReplacesPreviousObserver(t *testing.T) {
	b := New()
	var firstCalled, secondCalled int64

	b.Subscribe(func(evt Event, userData interface{}) {
		atomic.AddInt64(&firstCalled, 1)
	}, nil)
	b.Subscribe(func(evt Event, userData interface{}) {
		atomic.AddInt64(&secondCalled, 1)
	}, nil)

	b.Dispatch(Event{Kind: DhtConnected})

	require.Equal(t, int64(0), atomic.LoadInt64(&firstCalled))
	require.Equal(t, int64(1), atomic.LoadInt64(&secondCalled))
}

func TestUserDataPassedThrough(t *testing.T) {
	b := New()
	type ctx struct{ name string }
	var received interface{}
	done := make(chan struct{}, 1)

	b.Subscribe(func(evt Event, userData interface{}) {
		received = userData
		done <- struct{}{}
	}, &ctx{name: "hello"})

	b.Dispatch(Event{Kind: MessageSent})
	<-done

	c, ok := received.(*ctx)
	require.True(t, ok)
	require.Equal(t, "hello", c.name)
}
