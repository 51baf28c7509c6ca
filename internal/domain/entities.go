package domain

import (
	"time"
)

// Auction is the durable record of an auction. Version is the ledger version
// last mirrored, so a restored ledger entry keeps counting from it.
type Auction struct {
	ID            string
	SellerID      string
	StartTime     time.Time
	EndTime       time.Time
	StartingPrice float64
	CurrentPrice  float64
	WinnerID      string
	Status        AuctionStatus
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Duration is the length of the bidding window.
func (a *Auction) Duration() time.Duration {
	return a.EndTime.Sub(a.StartTime)
}

type AuctionStatus int

const (
	AuctionPending AuctionStatus = iota
	AuctionActive
	AuctionEnded
	AuctionCancelled
)

func (s AuctionStatus) String() string {
	switch s {
	case AuctionPending:
		return "pending"
	case AuctionActive:
		return "active"
	case AuctionEnded:
		return "ended"
	case AuctionCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// AuctionRecord is the ledger entry of a live auction. CurrentPrice only
// grows, and Version counts the accepted raises that produced it.
type AuctionRecord struct {
	AuctionID       string    `json:"auctionId"`
	CurrentPrice    float64   `json:"currentPrice"`
	WinningBidderID string    `json:"winningBidderId,omitempty"`
	EndTime         time.Time `json:"endTime"`
	Version         int64     `json:"version"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// HasWinner reports whether any bid has been accepted yet.
func (r *AuctionRecord) HasWinner() bool {
	return r.WinningBidderID != ""
}

type BidAttempt struct {
	AuctionID   string
	Amount      float64
	BidderID    string
	SubmittedAt time.Time
}

type BidOutcome int

const (
	BidAccepted BidOutcome = iota
	BidTooLow
	BidExpired
	BidNotFound
)

func (o BidOutcome) String() string {
	switch o {
	case BidAccepted:
		return "ACCEPTED"
	case BidTooLow:
		return "TOO_LOW"
	case BidExpired:
		return "EXPIRED"
	case BidNotFound:
		return "NOT_FOUND"
	default:
		return "UNKNOWN"
	}
}

// Reason is the caller-visible rejection reason. Accepted has none.
func (o BidOutcome) Reason() string {
	switch o {
	case BidTooLow:
		return "bid too low"
	case BidExpired:
		return "auction closed"
	case BidNotFound:
		return "unknown auction"
	default:
		return ""
	}
}

// BidResult is what one compare-and-raise produced. For accepted bids Record
// is the state after the raise, otherwise the state that caused the rejection
// (zero value for NotFound).
type BidResult struct {
	Outcome BidOutcome
	Record  AuctionRecord
}

type ChangeEventType string

const (
	PriceUpdated    ChangeEventType = "PRICE_UPDATE"
	AuctionExtended ChangeEventType = "AUCTION_EXTENDED"
	AuctionClosed   ChangeEventType = "AUCTION_CLOSED"
)

// ChangeEvent is the payload broadcast on an auction topic and forwarded
// verbatim to every joined session.
type ChangeEvent struct {
	Type      ChangeEventType `json:"type"`
	AuctionID string          `json:"auctionId"`
	NewPrice  float64         `json:"newPrice"`
	BidderID  string          `json:"bidderId,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Sequence  int64           `json:"sequence,omitempty"`
	EndTime   *time.Time      `json:"endTime,omitempty"`
}

// NewPriceUpdate builds the event for an accepted raise.
func NewPriceUpdate(rec AuctionRecord) *ChangeEvent {
	return &ChangeEvent{
		Type:      PriceUpdated,
		AuctionID: rec.AuctionID,
		NewPrice:  rec.CurrentPrice,
		BidderID:  rec.WinningBidderID,
		Timestamp: rec.UpdatedAt,
		Sequence:  rec.Version,
	}
}

type BidEvent struct {
	AuctionID string
	UserID    string
	Amount    float64
	Sequence  int64
	Timestamp time.Time
}

type ScheduledJob struct {
	ID        string
	AuctionID string
	JobType   JobType
	RunAt     time.Time
	Status    JobStatus
	CreatedAt time.Time
}

type JobType string

const (
	JobStartAuction JobType = "start_auction"
	JobEndAuction   JobType = "end_auction"
)

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobExecuted  JobStatus = "executed"
	JobCancelled JobStatus = "cancelled"
)
