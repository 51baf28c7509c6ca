package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bidding-core/internal/domain"
)

const auctionColumns = `id, seller_id, start_time, end_time, starting_price, current_price,
        winner_id, status, version, created_at, updated_at`

type MySQLAuctionRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewMySQLAuctionRepository(db *sql.DB) *MySQLAuctionRepository {
	return &MySQLAuctionRepository{db: db, now: time.Now}
}

func (r *MySQLAuctionRepository) CreateAuction(ctx context.Context, auction *domain.Auction) error {
	query := `
        INSERT INTO auctions (` + auctionColumns + `)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	_, err := r.db.ExecContext(ctx, query,
		auction.ID, auction.SellerID, auction.StartTime, auction.EndTime,
		auction.StartingPrice, auction.CurrentPrice, auction.WinnerID,
		int(auction.Status), auction.Version, auction.CreatedAt, auction.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert auction %s: %w", auction.ID, err)
	}
	return nil
}

func (r *MySQLAuctionRepository) GetAuction(ctx context.Context, auctionID string) (*domain.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE id = ?`

	auction, err := scanAuction(r.db.QueryRowContext(ctx, query, auctionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("auction %s: %w", auctionID, domain.ErrAuctionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get auction %s: %w", auctionID, err)
	}
	return auction, nil
}

func (r *MySQLAuctionRepository) UpdateAuctionStatus(ctx context.Context, auctionID string, status domain.AuctionStatus) error {
	query := `UPDATE auctions SET status = ?, updated_at = ? WHERE id = ?`
	return r.execOne(ctx, auctionID, query, int(status), r.now(), auctionID)
}

func (r *MySQLAuctionRepository) UpdateAuctionWindow(ctx context.Context, auctionID string, startTime, endTime time.Time) error {
	query := `UPDATE auctions SET start_time = ?, end_time = ?, updated_at = ? WHERE id = ?`
	return r.execOne(ctx, auctionID, query, startTime, endTime, r.now(), auctionID)
}

// UpdateAuctionPrice only ever raises the stored price, so sync writes that
// complete out of order cannot move it backwards. Price and version rise
// together, so the version written is always the one that set the price. A
// stale write is not an error.
func (r *MySQLAuctionRepository) UpdateAuctionPrice(ctx context.Context, record domain.AuctionRecord) error {
	query := `
        UPDATE auctions SET current_price = ?, winner_id = ?, version = ?, updated_at = ?
        WHERE id = ? AND current_price < ?
    `
	_, err := r.db.ExecContext(ctx, query,
		record.CurrentPrice, record.WinningBidderID, record.Version, r.now(),
		record.AuctionID, record.CurrentPrice)
	if err != nil {
		return fmt.Errorf("update price of auction %s: %w", record.AuctionID, err)
	}
	return nil
}

// FinalizeAuction records the terminal state. Neither the final price nor
// the version goes below what durability sync already wrote.
func (r *MySQLAuctionRepository) FinalizeAuction(ctx context.Context, final domain.AuctionRecord) error {
	query := `
        UPDATE auctions
        SET status = ?,
            winner_id = IF(current_price > ?, winner_id, ?),
            current_price = GREATEST(current_price, ?),
            version = GREATEST(version, ?),
            updated_at = ?
        WHERE id = ?
    `
	return r.execOne(ctx, final.AuctionID, query,
		int(domain.AuctionEnded), final.CurrentPrice, final.WinningBidderID, final.CurrentPrice,
		final.Version, r.now(), final.AuctionID)
}

func (r *MySQLAuctionRepository) GetActiveAuctions(ctx context.Context) ([]*domain.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE status = ?`

	rows, err := r.db.QueryContext(ctx, query, int(domain.AuctionActive))
	if err != nil {
		return nil, fmt.Errorf("query active auctions: %w", err)
	}
	defer rows.Close()

	var auctions []*domain.Auction
	for rows.Next() {
		auction, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		auctions = append(auctions, auction)
	}

	return auctions, rows.Err()
}

// execOne runs an update that must hit the auction row. MySQL reports zero
// affected rows when nothing changed, so a miss is confirmed with a lookup.
func (r *MySQLAuctionRepository) execOne(ctx context.Context, auctionID, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update auction %s: %w", auctionID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}

	var exists int
	err = r.db.QueryRowContext(ctx, `SELECT 1 FROM auctions WHERE id = ?`, auctionID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("auction %s: %w", auctionID, domain.ErrAuctionNotFound)
	}
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAuction(row rowScanner) (*domain.Auction, error) {
	var (
		auction domain.Auction
		winner  sql.NullString
		status  int
	)
	err := row.Scan(&auction.ID, &auction.SellerID, &auction.StartTime, &auction.EndTime,
		&auction.StartingPrice, &auction.CurrentPrice, &winner,
		&status, &auction.Version, &auction.CreatedAt, &auction.UpdatedAt)
	if err != nil {
		return nil, err
	}

	auction.WinnerID = winner.String
	auction.Status = domain.AuctionStatus(status)
	return &auction, nil
}
