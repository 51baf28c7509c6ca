package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"bidding-core/internal/domain"
	"bidding-core/pkg/logger"

	"github.com/labstack/echo/v4"
)

// AuctionAdmin is the lifecycle surface of the auction manager.
type AuctionAdmin interface {
	CreateAuction(ctx context.Context, sellerID string, startTime, endTime time.Time, startingPrice float64) (*domain.Auction, error)
	StartNow(ctx context.Context, auctionID string) (*domain.Auction, error)
	ExtendAuction(ctx context.Context, auctionID string, newEndTime time.Time) (*domain.AuctionRecord, error)
	GetAuction(ctx context.Context, auctionID string) (*domain.Auction, error)
}

type AuctionHandler struct {
	auctionManager AuctionAdmin
	log            logger.Logger
}

type CreateAuctionRequest struct {
	SellerID    string    `json:"seller_id"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	StartingBid float64   `json:"starting_bid"`
}

type ExtendAuctionRequest struct {
	EndTime time.Time `json:"end_time"`
}

type AuctionResponse struct {
	AuctionID    string    `json:"auction_id"`
	SellerID     string    `json:"seller_id,omitempty"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	StartingBid  float64   `json:"starting_bid"`
	CurrentPrice float64   `json:"current_price"`
	WinnerID     string    `json:"winner_id,omitempty"`
	Status       string    `json:"status"`
}

func NewAuctionHandler(auctionManager AuctionAdmin, log logger.Logger) *AuctionHandler {
	return &AuctionHandler{
		auctionManager: auctionManager,
		log:            log,
	}
}

// Register mounts the admin routes on g.
func (h *AuctionHandler) Register(g *echo.Group) {
	g.POST("/auctions", h.CreateAuction)
	g.GET("/auctions/:id", h.GetAuction)
	g.POST("/auctions/:id/start", h.StartAuction)
	g.POST("/auctions/:id/extend", h.ExtendAuction)
}

func (h *AuctionHandler) CreateAuction(c echo.Context) error {
	var req CreateAuctionRequest
	if err := c.Bind(&req); err != nil {
		h.log.Warn("Failed to bind request", "error", err)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	if req.SellerID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "seller_id is required"})
	}
	if req.StartingBid <= 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Starting bid must be positive"})
	}

	auction, err := h.auctionManager.CreateAuction(c.Request().Context(), req.SellerID, req.StartTime, req.EndTime, req.StartingBid)
	if err != nil {
		return h.fail(c, "create", "", err)
	}

	h.log.Info("Auction created successfully", "auction_id", auction.ID)
	return c.JSON(http.StatusCreated, toAuctionResponse(auction))
}

func (h *AuctionHandler) GetAuction(c echo.Context) error {
	auctionID := c.Param("id")

	auction, err := h.auctionManager.GetAuction(c.Request().Context(), auctionID)
	if err != nil {
		return h.fail(c, "get", auctionID, err)
	}

	return c.JSON(http.StatusOK, toAuctionResponse(auction))
}

// StartAuction opens a pending auction now instead of at its scheduled start.
func (h *AuctionHandler) StartAuction(c echo.Context) error {
	auctionID := c.Param("id")

	auction, err := h.auctionManager.StartNow(c.Request().Context(), auctionID)
	if err != nil {
		return h.fail(c, "start", auctionID, err)
	}

	return c.JSON(http.StatusOK, toAuctionResponse(auction))
}

// ExtendAuction takes either ?seconds=N, added to the current end time, or a
// JSON body with an absolute end_time.
func (h *AuctionHandler) ExtendAuction(c echo.Context) error {
	auctionID := c.Param("id")
	ctx := c.Request().Context()

	var newEnd time.Time
	if raw := c.QueryParam("seconds"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "seconds must be a positive integer"})
		}
		auction, err := h.auctionManager.GetAuction(ctx, auctionID)
		if err != nil {
			return h.fail(c, "extend", auctionID, err)
		}
		newEnd = auction.EndTime.Add(time.Duration(seconds) * time.Second)
	} else {
		var req ExtendAuctionRequest
		if err := c.Bind(&req); err != nil || req.EndTime.IsZero() {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Extension duration or end_time required"})
		}
		newEnd = req.EndTime
	}

	rec, err := h.auctionManager.ExtendAuction(ctx, auctionID, newEnd)
	if err != nil {
		return h.fail(c, "extend", auctionID, err)
	}

	return c.JSON(http.StatusOK, rec)
}

func (h *AuctionHandler) fail(c echo.Context, op, auctionID string, err error) error {
	switch {
	case errors.Is(err, domain.ErrAuctionNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown auction"})
	case errors.Is(err, domain.ErrInvalidBid):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrInvalidState):
		status := http.StatusConflict
		if op == "create" {
			status = http.StatusBadRequest
		}
		return c.JSON(status, map[string]string{"error": err.Error()})
	}

	h.log.Error("Auction operation failed", "op", op, "auction_id", auctionID, "error", err)
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to " + op + " auction"})
}

func toAuctionResponse(a *domain.Auction) AuctionResponse {
	return AuctionResponse{
		AuctionID:    a.ID,
		SellerID:     a.SellerID,
		StartTime:    a.StartTime,
		EndTime:      a.EndTime,
		StartingBid:  a.StartingPrice,
		CurrentPrice: a.CurrentPrice,
		WinnerID:     a.WinnerID,
		Status:       a.Status.String(),
	}
}
