package codegrid

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher() *dispatcher {
	return newDispatcher(zerolog.Nop())
}

func TestDispatchInvokesListenersInRegistrationOrder(t *testing.T) {
	d := newTestDispatcher()

	var order []int
	for i := 0; i < 5; i++ {
		i := i
		d.register("tick", func(string, Event) {
			order = append(order, i)
		}, false)
	}

	handled := d.dispatch(OriginServer, Event{Name: "tick"})
	require.True(t, handled)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestDispatchSkipsRemovedListeners(t *testing.T) {
	d := newTestDispatcher()

	var calls []string
	d.register("tick", func(string, Event) { calls = append(calls, "a") }, false)
	b := d.register("tick", func(string, Event) { calls = append(calls, "b") }, false)
	d.register("tick", func(string, Event) { calls = append(calls, "c") }, false)

	require.True(t, d.remove(b))
	d.dispatch(OriginServer, Event{Name: "tick"})
	assert.Equal(t, []string{"a", "c"}, calls)
}

func TestRemoveUnknownIDIsNoOp(t *testing.T) {
	d := newTestDispatcher()
	assert.False(t, d.remove("nope"))

	id := d.register("tick", func(string, Event) {}, false)
	require.True(t, d.remove(id))
	assert.False(t, d.remove(id), "second removal of the same id")
}

func TestOnceListenerFiresAtMostOnce(t *testing.T) {
	d := newTestDispatcher()

	calls := 0
	d.register("tick", func(string, Event) { calls++ }, true)

	d.dispatch(OriginServer, Event{Name: "tick"})
	d.dispatch(OriginServer, Event{Name: "tick"})
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, d.count("tick"))
}

func TestOnceRemovalDoesNotDisturbIteration(t *testing.T) {
	d := newTestDispatcher()

	var calls []string
	d.register("tick", func(string, Event) { calls = append(calls, "once") }, true)
	d.register("tick", func(string, Event) { calls = append(calls, "after") }, false)

	d.dispatch(OriginServer, Event{Name: "tick"})
	assert.Equal(t, []string{"once", "after"}, calls)

	d.dispatch(OriginServer, Event{Name: "tick"})
	assert.Equal(t, []string{"once", "after", "after"}, calls)
}

func TestDispatchWithoutListenersReturnsNotHandled(t *testing.T) {
	d := newTestDispatcher()
	assert.False(t, d.dispatch(OriginServer, Event{Name: "nobody-home"}))
}

func TestPanickingListenerDoesNotBreakDelivery(t *testing.T) {
	d := newTestDispatcher()

	var calls []string
	d.register("tick", func(string, Event) { panic("boom") }, false)
	d.register("tick", func(string, Event) { calls = append(calls, "survivor") }, false)

	handled := d.dispatch(OriginServer, Event{Name: "tick"})
	assert.True(t, handled)
	assert.Equal(t, []string{"survivor"}, calls)
}

func TestListenerRemovingLaterListenerMidDispatch(t *testing.T) {
	d := newTestDispatcher()

	var calls []string
	var victim CallbackID
	d.register("tick", func(string, Event) {
		calls = append(calls, "first")
		d.remove(victim)
	}, false)
	victim = d.register("tick", func(string, Event) {
		calls = append(calls, "victim")
	}, false)

	d.dispatch(OriginServer, Event{Name: "tick"})
	assert.Equal(t, []string{"first"}, calls)
}

func TestDispatchPassesOriginAndPayload(t *testing.T) {
	d := newTestDispatcher()

	var gotOrigin string
	var gotName EventName
	d.register(EventNewPlayer, func(origin string, ev Event) {
		gotOrigin = origin
		gotName = ev.Name
	}, false)

	d.dispatch("p1", Event{Name: EventNewPlayer})
	assert.Equal(t, "p1", gotOrigin)
	assert.Equal(t, EventNewPlayer, gotName)
}
