package websocket

import (
	"encoding/json"
	"strings"
)

// Inbound message types.
const (
	MsgJoinAuction  = "JOIN_AUCTION"
	MsgLeaveAuction = "LEAVE_AUCTION"
	MsgPing         = "PING"
)

// Outbound control message types. Change events are forwarded as they are.
const (
	MsgJoined = "JOINED"
	MsgLeft   = "LEFT"
	MsgPong   = "PONG"
	MsgError  = "ERROR"
)

type inboundMessage struct {
	Type      string `json:"type"`
	AuctionID string `json:"auctionId"`
}

type controlMessage struct {
	Type      string `json:"type"`
	AuctionID string `json:"auctionId,omitempty"`
	Message   string `json:"message,omitempty"`
}

func (h *Hub) handleMessage(s *Session, data []byte) {
	if !s.limiter.Allow() {
		h.reply(s, controlMessage{Type: MsgError, Message: "rate limit exceeded"})
		return
	}

	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.reply(s, controlMessage{Type: MsgError, Message: "malformed message"})
		return
	}

	auctionID := strings.TrimSpace(msg.AuctionID)

	switch strings.ToUpper(msg.Type) {
	case MsgJoinAuction:
		if auctionID == "" {
			h.reply(s, controlMessage{Type: MsgError, Message: "auctionId required"})
			return
		}
		if err := h.Join(s, auctionID); err != nil {
			return
		}
		h.log.Debug("Session joined auction", "session_id", s.id, "auction_id", auctionID)
		h.reply(s, controlMessage{Type: MsgJoined, AuctionID: auctionID})

	case MsgLeaveAuction:
		if auctionID == "" {
			h.reply(s, controlMessage{Type: MsgError, Message: "auctionId required"})
			return
		}
		h.Leave(s, auctionID)
		h.reply(s, controlMessage{Type: MsgLeft, AuctionID: auctionID})

	case MsgPing:
		h.reply(s, controlMessage{Type: MsgPong})

	default:
		h.reply(s, controlMessage{Type: MsgError, Message: "unknown message type"})
	}
}

// reply shares the send buffer with change events, so a peer that stopped
// reading is closed here too.
func (h *Hub) reply(s *Session, msg controlMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := s.enqueue(payload); err != nil {
		h.metrics.RecordDeliveryFailure()
		h.Close(s)
	}
}
