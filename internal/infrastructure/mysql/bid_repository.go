package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"bidding-core/internal/domain"
)

// MySQLBidRepository stores the history of accepted bids. Rows are keyed by
// (auction_id, sequence) so a redelivered event is stored once.
type MySQLBidRepository struct {
	db *sql.DB
}

func NewMySQLBidRepository(db *sql.DB) *MySQLBidRepository {
	return &MySQLBidRepository{db: db}
}

func (r *MySQLBidRepository) SaveBidEvent(ctx context.Context, event *domain.BidEvent) error {
	query := `
        INSERT IGNORE INTO bid_events (auction_id, sequence, user_id, amount, timestamp, created_at)
        VALUES (?, ?, ?, ?, ?, ?)
    `
	_, err := r.db.ExecContext(ctx, query,
		event.AuctionID, event.Sequence, event.UserID, event.Amount,
		event.Timestamp, time.Now())
	if err != nil {
		return fmt.Errorf("save bid event for %s: %w", event.AuctionID, err)
	}
	return nil
}

func (r *MySQLBidRepository) GetBidHistory(ctx context.Context, auctionID string) ([]*domain.BidEvent, error) {
	query := `
        SELECT auction_id, sequence, user_id, amount, timestamp
        FROM bid_events
        WHERE auction_id = ?
        ORDER BY sequence ASC
    `

	rows, err := r.db.QueryContext(ctx, query, auctionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*domain.BidEvent
	for rows.Next() {
		var event domain.BidEvent

		err := rows.Scan(&event.AuctionID, &event.Sequence, &event.UserID,
			&event.Amount, &event.Timestamp)
		if err != nil {
			return nil, err
		}

		events = append(events, &event)
	}

	return events, rows.Err()
}
