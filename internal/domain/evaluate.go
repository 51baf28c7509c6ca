package domain

import "time"

// EvaluateBid decides the outcome of attempt against rec without mutating it.
// A nil record means the auction has no ledger entry. Bidding is open strictly
// before EndTime, and a bid must exceed the current price; ties lose.
func EvaluateBid(rec *AuctionRecord, attempt BidAttempt) BidOutcome {
	if rec == nil {
		return BidNotFound
	}
	if !attempt.SubmittedAt.Before(rec.EndTime) {
		return BidExpired
	}
	if attempt.Amount <= rec.CurrentPrice {
		return BidTooLow
	}
	return BidAccepted
}

// Raise applies an accepted attempt to rec.
func (r *AuctionRecord) Raise(attempt BidAttempt) {
	r.CurrentPrice = attempt.Amount
	r.WinningBidderID = attempt.BidderID
	r.Version++
	r.UpdatedAt = attempt.SubmittedAt
}

// UnixMillis is the ledger's wire representation of instants.
func UnixMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func FromUnixMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
