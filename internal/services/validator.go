package services

import (
	"fmt"
	"strings"

	"bidding-core/internal/domain"
)

const maxIdentifierLength = 64

// ValidateAttempt checks bid input before it reaches the ledger and returns
// the amount rounded to monetary precision. Whether the amount is high
// enough is the ledger's call, not ours.
func ValidateAttempt(auctionID, bidderID string, amount float64) (float64, error) {
	if err := validateIdentifier("auction id", auctionID); err != nil {
		return 0, err
	}
	if err := validateIdentifier("bidder id", bidderID); err != nil {
		return 0, err
	}
	return domain.NormalizeAmount(amount)
}

func validateIdentifier(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s is required", domain.ErrInvalidBid, name)
	}
	if len(value) > maxIdentifierLength {
		return fmt.Errorf("%w: %s longer than %d characters", domain.ErrInvalidBid, name, maxIdentifierLength)
	}
	return nil
}
