package codegrid

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EventCallback handles one dispatched event. origin identifies the party
// that produced the event: a player id, OriginServer, or empty for local
// lifecycle events.
type EventCallback func(origin string, event Event)

// CallbackID is the opaque token returned by On and Once, used to remove a
// listener. An id is never reused while its registration is live.
type CallbackID string

type listener struct {
	name EventName
	cb   EventCallback
	once bool
}

// dispatcher is the name-keyed listener registry. It serves protocol
// events, game-specific events, and local lifecycle events through a single
// delivery path. Delivery is synchronous so listeners observe events in
// wire order, and listeners for one name fire in registration order.
type dispatcher struct {
	mu     sync.Mutex
	log    zerolog.Logger
	byName map[EventName][]CallbackID
	byID   map[CallbackID]*listener
}

func newDispatcher(log zerolog.Logger) *dispatcher {
	return &dispatcher{
		log:    log,
		byName: make(map[EventName][]CallbackID),
		byID:   make(map[CallbackID]*listener),
	}
}

// register adds a listener for name and returns its id. Once listeners are
// removed immediately after their first invocation.
func (d *dispatcher) register(name EventName, cb EventCallback, once bool) CallbackID {
	id := CallbackID(uuid.NewString())

	d.mu.Lock()
	d.byName[name] = append(d.byName[name], id)
	d.byID[id] = &listener{name: name, cb: cb, once: once}
	d.mu.Unlock()

	d.log.Trace().
		Str("event", string(name)).
		Str("id", string(id)).
		Bool("once", once).
		Msg("listener registered")
	return id
}

// remove deletes the listener with the given id from both indexes. Removing
// an unknown id is a safe no-op and returns false.
func (d *dispatcher) remove(id CallbackID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.removeLocked(id)
}

func (d *dispatcher) removeLocked(id CallbackID) bool {
	l, ok := d.byID[id]
	if !ok {
		return false
	}
	delete(d.byID, id)

	ids := d.byName[l.name]
	for i, other := range ids {
		if other == id {
			d.byName[l.name] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(d.byName[l.name]) == 0 {
		delete(d.byName, l.name)
	}
	return true
}

// dispatch delivers the event to every listener registered for its name, in
// registration order, and reports whether anyone was listening. A listener
// panic is recovered and logged so one faulty listener cannot break
// delivery to the others.
func (d *dispatcher) dispatch(origin string, ev Event) bool {
	d.mu.Lock()
	ids := d.byName[ev.Name]
	if len(ids) == 0 {
		d.mu.Unlock()
		return false
	}

	// Snapshot so a listener registering or removing mid-dispatch cannot
	// disturb this delivery round.
	snapshot := make([]CallbackID, len(ids))
	copy(snapshot, ids)
	d.mu.Unlock()

	for _, id := range snapshot {
		d.mu.Lock()
		l, ok := d.byID[id]
		if ok && l.once {
			d.removeLocked(id)
		}
		d.mu.Unlock()
		if !ok {
			// Removed by an earlier listener in this round.
			continue
		}
		d.invoke(id, l, origin, ev)
	}
	return true
}

func (d *dispatcher) invoke(id CallbackID, l *listener, origin string, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().
				Str("event", string(ev.Name)).
				Str("id", string(id)).
				Interface("panic", r).
				Msg("listener panicked")
		}
	}()
	l.cb(origin, ev)
}

// count returns the number of live listeners for name.
func (d *dispatcher) count(name EventName) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.byName[name])
}
