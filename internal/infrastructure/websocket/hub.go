package websocket

import (
	"encoding/json"
	"sync"

	"bidding-core/internal/domain"
	"bidding-core/internal/metrics"
	"bidding-core/pkg/logger"
	"bidding-core/pkg/utils"
)

type topic struct {
	// mu serializes delivery on this topic so every member sees events in
	// the same order.
	mu       sync.Mutex
	sessions map[*Session]struct{}
	lastSeq  int64
}

// Hub owns the subscription table. It is only changed through Join, Leave
// and Close.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]*topic

	opts    Options
	metrics metrics.MetricsCollector
	log     logger.Logger
}

func NewHub(opts Options, m metrics.MetricsCollector, log logger.Logger) *Hub {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultOptions().SendBuffer
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &Hub{
		topics:  make(map[string]*topic),
		opts:    opts,
		metrics: m,
		log:     log,
	}
}

// Register hands a new connection to the hub as a Connected session and
// starts its writer.
func (h *Hub) Register(conn Transport) *Session {
	s := newSession(utils.GenerateID("sess"), conn, h.opts, h.log)
	h.metrics.SessionOpened()

	go s.writePump(h.opts, func(err error) {
		h.log.Warn("Session write failed", "session_id", s.id, "error", err)
		h.metrics.RecordDeliveryFailure()
		h.Close(s)
	})

	h.log.Debug("Session registered", "session_id", s.id)
	return s
}

// Serve registers conn and runs its read loop until the connection ends.
// The session is always closed on return.
func (h *Hub) Serve(conn Transport) {
	s := h.Register(conn)
	defer h.Close(s)

	err := s.readPump(h.opts, func(data []byte) {
		h.handleMessage(s, data)
	})
	h.log.Debug("Session read loop ended", "session_id", s.id, "error", err)
}

// Join is idempotent.
func (h *Hub) Join(s *Session, auctionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.ErrSessionClosed
	}
	if _, ok := s.joined[auctionID]; ok {
		return nil
	}

	h.mu.Lock()
	t, ok := h.topics[auctionID]
	if !ok {
		t = &topic{sessions: make(map[*Session]struct{})}
		h.topics[auctionID] = t
	}
	t.mu.Lock()
	t.sessions[s] = struct{}{}
	t.mu.Unlock()
	h.mu.Unlock()

	s.joined[auctionID] = struct{}{}
	return nil
}

// Leave is idempotent.
func (h *Hub) Leave(s *Session, auctionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.joined[auctionID]; !ok {
		return
	}
	delete(s.joined, auctionID)
	h.detach(s, auctionID)
}

// detach removes s from a topic and drops the topic once it is empty.
func (h *Hub) detach(s *Session, auctionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	t, ok := h.topics[auctionID]
	if !ok {
		return
	}
	t.mu.Lock()
	delete(t.sessions, s)
	empty := len(t.sessions) == 0
	t.mu.Unlock()

	if empty {
		delete(h.topics, auctionID)
	}
}

// Close deregisters s from every topic and shuts its connection. Safe to
// call any number of times from any goroutine.
func (h *Hub) Close(s *Session) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.done)
		joined := s.joined
		s.joined = make(map[string]struct{})
		for auctionID := range joined {
			h.detach(s, auctionID)
		}
		s.mu.Unlock()

		if err := s.conn.Close(); err != nil {
			h.log.Debug("Session transport close failed", "session_id", s.id, "error", err)
		}
		h.metrics.SessionClosed()
		h.log.Debug("Session closed", "session_id", s.id, "topics", len(joined))
	})
}

// OnAuctionEvent forwards event to every session joined to auctionID at
// this moment. Price updates older than the last one delivered on the
// topic are dropped. A session that cannot take the event is closed and
// does not affect the others.
func (h *Hub) OnAuctionEvent(auctionID string, event *domain.ChangeEvent) {
	h.mu.RLock()
	t, ok := h.topics[auctionID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		h.log.Error("Failed to encode change event", "auction_id", auctionID, "error", err)
		return
	}

	var failed []*Session

	t.mu.Lock()
	if event.Type == domain.PriceUpdated && event.Sequence > 0 {
		if event.Sequence <= t.lastSeq {
			t.mu.Unlock()
			h.log.Debug("Dropped stale price update", "auction_id", auctionID,
				"sequence", event.Sequence, "last_sequence", t.lastSeq)
			return
		}
		t.lastSeq = event.Sequence
	}
	for s := range t.sessions {
		if err := s.enqueue(payload); err != nil {
			h.log.Warn("Failed to forward change event", "auction_id", auctionID,
				"session_id", s.id, "error", err)
			failed = append(failed, s)
		}
	}
	t.mu.Unlock()

	// Closing takes the session lock, so it must happen outside the topic lock.
	for _, s := range failed {
		h.metrics.RecordDeliveryFailure()
		h.Close(s)
	}
}

// CloseTopic detaches every session from auctionID. The sessions stay open.
func (h *Hub) CloseTopic(auctionID string) {
	h.mu.RLock()
	t, ok := h.topics[auctionID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	t.mu.Lock()
	members := make([]*Session, 0, len(t.sessions))
	for s := range t.sessions {
		members = append(members, s)
	}
	t.mu.Unlock()

	for _, s := range members {
		h.Leave(s, auctionID)
	}
}

// SubscriberCount reports how many sessions are joined to auctionID.
func (h *Hub) SubscriberCount(auctionID string) int {
	h.mu.RLock()
	t, ok := h.topics[auctionID]
	h.mu.RUnlock()
	if !ok {
		return 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}
