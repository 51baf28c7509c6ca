package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"bidding-core/internal/domain"
	"bidding-core/pkg/logger"

	"github.com/gorilla/mux"
)

// BidPlacer is the part of the bid service the HTTP layer needs.
type BidPlacer interface {
	PlaceBid(ctx context.Context, auctionID, bidderID string, amount float64) (domain.BidResult, error)
	GetAuctionState(ctx context.Context, auctionID string) (*domain.AuctionRecord, error)
}

type BidHandler struct {
	bids BidPlacer
	log  logger.Logger
}

type PlaceBidRequest struct {
	BidderID string  `json:"bidder_id"`
	Amount   float64 `json:"amount"`
}

type PlaceBidResponse struct {
	Status          string  `json:"status"`
	Reason          string  `json:"reason,omitempty"`
	AuctionID       string  `json:"auction_id"`
	CurrentPrice    float64 `json:"current_price,omitempty"`
	WinningBidderID string  `json:"winning_bidder_id,omitempty"`
	Version         int64   `json:"version,omitempty"`
}

func NewBidHandler(bids BidPlacer, log logger.Logger) *BidHandler {
	return &BidHandler{
		bids: bids,
		log:  log,
	}
}

func (h *BidHandler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	auctionID := mux.Vars(r)["auctionID"]

	var req PlaceBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.bids.PlaceBid(r.Context(), auctionID, req.BidderID, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidBid):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrLedgerUnavailable):
			writeError(w, http.StatusServiceUnavailable, "bid ledger unavailable")
		default:
			h.log.Error("Failed to place bid", "auction_id", auctionID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to place bid")
		}
		return
	}

	resp := PlaceBidResponse{AuctionID: auctionID}
	if result.Outcome == domain.BidAccepted {
		resp.Status = "accepted"
	} else {
		resp.Status = "rejected"
		resp.Reason = result.Outcome.Reason()
	}
	if result.Outcome != domain.BidNotFound {
		resp.CurrentPrice = result.Record.CurrentPrice
		resp.WinningBidderID = result.Record.WinningBidderID
		resp.Version = result.Record.Version
	}

	writeJSON(w, outcomeStatus(result.Outcome), resp)
}

// GetState returns the live ledger record of an auction.
func (h *BidHandler) GetState(w http.ResponseWriter, r *http.Request) {
	auctionID := mux.Vars(r)["auctionID"]

	rec, err := h.bids.GetAuctionState(r.Context(), auctionID)
	if errors.Is(err, domain.ErrAuctionNotFound) {
		writeError(w, http.StatusNotFound, domain.BidNotFound.Reason())
		return
	}
	if err != nil {
		h.log.Error("Failed to read auction state", "auction_id", auctionID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "bid ledger unavailable")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

func outcomeStatus(outcome domain.BidOutcome) int {
	switch outcome {
	case domain.BidAccepted:
		return http.StatusOK
	case domain.BidTooLow:
		return http.StatusConflict
	case domain.BidExpired:
		return http.StatusForbidden
	case domain.BidNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
