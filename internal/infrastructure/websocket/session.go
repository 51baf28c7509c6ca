package websocket

import (
	"sync"
	"time"

	"bidding-core/internal/domain"
	"bidding-core/pkg/logger"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Transport is the part of *websocket.Conn a session uses.
type Transport interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	Close() error
}

type Options struct {
	SendBuffer     int
	WriteTimeout   time.Duration
	PongTimeout    time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
	MessageRate    float64
	MessageBurst   int
}

func DefaultOptions() Options {
	return Options{
		SendBuffer:     64,
		WriteTimeout:   10 * time.Second,
		PongTimeout:    60 * time.Second,
		PingInterval:   54 * time.Second,
		MaxMessageSize: 4096,
		MessageRate:    10,
		MessageBurst:   20,
	}
}

// Session is one observer connection. Only writePump writes to the
// transport; everybody else goes through enqueue.
type Session struct {
	id      string
	conn    Transport
	send    chan []byte
	done    chan struct{}
	limiter *rate.Limiter
	log     logger.Logger

	closeOnce sync.Once

	// mu guards joined and closed. Lock order is Session.mu, then Hub.mu.
	mu     sync.Mutex
	joined map[string]struct{}
	closed bool
}

func newSession(id string, conn Transport, opts Options, log logger.Logger) *Session {
	limit := rate.Inf
	if opts.MessageRate > 0 {
		limit = rate.Limit(opts.MessageRate)
	}
	burst := opts.MessageBurst
	if burst <= 0 {
		burst = 1
	}

	return &Session{
		id:      id,
		conn:    conn,
		send:    make(chan []byte, opts.SendBuffer),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(limit, burst),
		log:     log.With("session_id", id),
		joined:  make(map[string]struct{}),
	}
}

func (s *Session) ID() string {
	return s.id
}

// Done is closed once the session has been closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Topics lists the auctions the session is currently joined to.
func (s *Session) Topics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	topics := make([]string, 0, len(s.joined))
	for id := range s.joined {
		topics = append(topics, id)
	}
	return topics
}

// enqueue never blocks. A full buffer means the peer cannot keep up, and
// the caller treats it as a delivery failure.
func (s *Session) enqueue(msg []byte) error {
	select {
	case <-s.done:
		return domain.ErrSessionClosed
	default:
	}

	select {
	case s.send <- msg:
		return nil
	case <-s.done:
		return domain.ErrSessionClosed
	default:
		return domain.ErrSlowConsumer
	}
}

func (s *Session) writePump(opts Options, onFailure func(error)) {
	var ping <-chan time.Time
	if opts.PingInterval > 0 {
		ticker := time.NewTicker(opts.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case msg := <-s.send:
			if opts.WriteTimeout > 0 {
				s.conn.SetWriteDeadline(time.Now().Add(opts.WriteTimeout))
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				onFailure(err)
				return
			}

		case <-ping:
			var deadline time.Time
			if opts.WriteTimeout > 0 {
				deadline = time.Now().Add(opts.WriteTimeout)
			}
			if err := s.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				onFailure(err)
				return
			}

		case <-s.done:
			return
		}
	}
}

// readPump returns when the transport fails or the session is closed.
func (s *Session) readPump(opts Options, handle func([]byte)) error {
	if opts.MaxMessageSize > 0 {
		s.conn.SetReadLimit(opts.MaxMessageSize)
	}
	if opts.PongTimeout > 0 {
		s.conn.SetReadDeadline(time.Now().Add(opts.PongTimeout))
		s.conn.SetPongHandler(func(string) error {
			return s.conn.SetReadDeadline(time.Now().Add(opts.PongTimeout))
		})
	}

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return err
		}
		handle(data)
	}
}
