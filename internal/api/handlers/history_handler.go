package handlers

import (
	"net/http"
	"time"

	"bidding-core/internal/domain"
	"bidding-core/pkg/logger"

	"github.com/gorilla/mux"
)

// HistoryHandler serves the accepted-bid history recorded by the analytics
// service.
type HistoryHandler struct {
	bidRepo domain.BidRepository
	log     logger.Logger
}

type BidHistoryEntry struct {
	BidderID  string    `json:"bidder_id"`
	Amount    float64   `json:"amount"`
	Sequence  int64     `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
}

func NewHistoryHandler(bidRepo domain.BidRepository, log logger.Logger) *HistoryHandler {
	return &HistoryHandler{bidRepo: bidRepo, log: log}
}

func (h *HistoryHandler) GetBidHistory(w http.ResponseWriter, r *http.Request) {
	auctionID := mux.Vars(r)["auctionID"]

	events, err := h.bidRepo.GetBidHistory(r.Context(), auctionID)
	if err != nil {
		h.log.Error("Failed to load bid history", "auction_id", auctionID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load bid history")
		return
	}

	entries := make([]BidHistoryEntry, 0, len(events))
	for _, e := range events {
		entries = append(entries, BidHistoryEntry{
			BidderID:  e.UserID,
			Amount:    e.Amount,
			Sequence:  e.Sequence,
			Timestamp: e.Timestamp,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"auction_id": auctionID,
		"bids":       entries,
	})
}
