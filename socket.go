package codegrid

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const socketHandshakeTimeout = 30 * time.Second

// socketPath is where the server upgrades to the event protocol.
const socketPath = "/ws"

type connState int

const (
	stateIdle connState = iota
	stateConnecting
	stateOpen
	stateClosed
)

// socket owns the single active WebSocket connection of a client. It opens,
// tears down, and reopens the physical connection, routes inbound frames to
// the dispatcher, and exposes fire-and-forget send. A mid-session error
// closes the socket and surfaces as a local close event; reconnection is
// always caller-initiated, never silent.
type socket struct {
	mu sync.Mutex

	host       string
	log        zerolog.Logger
	tn         *transportNegotiator
	dialer     *websocket.Dialer
	dispatcher *dispatcher

	conn    *websocket.Conn
	state   connState
	closing bool

	// onReplace runs whenever the physical connection is torn down, so
	// connection-scoped listeners can be invalidated.
	onReplace func()

	// gen increments whenever the physical connection is replaced, so
	// stale read loops recognize they no longer own the socket.
	gen int
}

func newSocket(host string, log zerolog.Logger, tn *transportNegotiator, d *dispatcher, dialer *websocket.Dialer) *socket {
	if dialer == nil {
		dialer = &websocket.Dialer{HandshakeTimeout: socketHandshakeTimeout}
	}
	return &socket{
		host:       host,
		log:        log,
		tn:         tn,
		dialer:     dialer,
		dispatcher: d,
	}
}

// open establishes the connection, probing candidate schemes in negotiated
// order. If a connection is already open it is closed first and a fresh one
// is opened (close-then-reopen policy). Only one open sequence runs at a
// time; a concurrent call blocks until the in-flight attempt settles.
func (s *socket) open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		s.teardownLocked()
	}
	s.state = stateConnecting
	s.closing = false

	var lastErr error
	for _, scheme := range s.tn.schemes("ws") {
		url := scheme + "://" + s.host + socketPath
		conn, _, err := s.dialer.DialContext(ctx, url, nil)
		if err != nil {
			s.log.Debug().Err(err).Str("url", url).Msg("dial attempt failed")
			lastErr = err
			continue
		}

		s.tn.observe(secureScheme(scheme))
		s.conn = conn
		s.state = stateOpen
		s.gen++
		gen := s.gen

		s.log.Info().Str("url", url).Msg("socket open")
		go s.readLoop(conn, gen)
		go s.dispatcher.dispatch("", Event{Name: EventReady})
		return nil
	}

	s.state = stateIdle
	s.tn.reset()
	return fmt.Errorf("%w: dial %s: %v", ErrNetwork, s.host, lastErr)
}

// send serializes the envelope and transmits it. Send is fire-and-forget:
// when the socket is not open the message is logged and dropped, it is
// never queued or retried.
func (s *socket) send(name EventName, payload any) error {
	ev, err := newEvent(name, payload)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateOpen || s.conn == nil {
		s.log.Error().Str("event", string(name)).Msg("send dropped: socket not open")
		return ErrNotConnected
	}
	if err := s.conn.WriteJSON(ev); err != nil {
		s.log.Error().Err(err).Str("event", string(name)).Msg("send failed")
		return fmt.Errorf("%w: send %s: %v", ErrNetwork, name, err)
	}
	return nil
}

// isOpen reports whether a physical connection is currently up.
func (s *socket) isOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateOpen
}

// close tears down the connection. Idempotent.
func (s *socket) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		s.state = stateClosed
		return
	}
	s.teardownLocked()
	s.state = stateClosed
}

func (s *socket) teardownLocked() {
	s.closing = true
	if s.onReplace != nil {
		s.onReplace()
	}
	_ = s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	_ = s.conn.Close()
	s.conn = nil
}

// readLoop pulls frames off the wire and routes them through the
// dispatcher. A malformed frame is logged and dropped without killing the
// connection; a read error ends the loop and dispatches the local close
// event, unless the teardown was requested locally by the same client.
func (s *socket) readLoop(conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			stale := s.gen != gen
			expected := s.closing
			if !stale && s.conn == conn {
				s.conn = nil
				s.state = stateClosed
				if s.onReplace != nil {
					s.onReplace()
				}
			}
			s.mu.Unlock()

			if stale {
				return
			}
			if expected {
				s.log.Debug().Msg("socket closed")
			} else {
				s.log.Error().Err(err).Msg("socket error, connection lost")
			}
			s.dispatcher.dispatch("", Event{Name: EventClose})
			return
		}

		origin, ev, err := decodeFrame(data)
		if err != nil {
			s.log.Warn().Err(err).Msg("dropping malformed message")
			continue
		}

		s.log.Trace().
			Str("event", string(ev.Name)).
			Str("origin", origin).
			Msg("event received")

		if !s.dispatcher.dispatch(origin, ev) {
			s.log.Trace().Str("event", string(ev.Name)).Msg("event not handled")
		}
	}
}
