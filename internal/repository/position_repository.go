package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PositionRepository checkpoints a brm.Manager's derivative position ledger
// so a restart can call RestoreFillAmountPosition instead of starting every
// market flat.
type PositionRepository struct {
	db *sql.DB
}

type StoredPosition struct {
	ExchangeAccountId string
	Symbol            string
	Quantity          decimal.Decimal
}

func NewPositionRepository(db *sql.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

func (r *PositionRepository) SavePosition(exchangeAccountId, symbol string, quantity decimal.Decimal) error {
	query := `
		INSERT INTO positions (exchange_account_id, symbol, quantity, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (exchange_account_id, symbol)
		DO UPDATE SET quantity = $3, updated_at = $4
	`

	_, err := r.db.Exec(query, exchangeAccountId, symbol, quantity, time.Now())
	if err != nil {
		return fmt.Errorf("failed to save position for %s/%s: %w", exchangeAccountId, symbol, err)
	}
	return nil
}

func (r *PositionRepository) LoadPositions() ([]StoredPosition, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `SELECT exchange_account_id, symbol, quantity FROM positions`)
	if err != nil {
		return nil, fmt.Errorf("failed to load positions: %w", err)
	}
	defer rows.Close()

	positions := make([]StoredPosition, 0)
	for rows.Next() {
		var p StoredPosition
		if err := rows.Scan(&p.ExchangeAccountId, &p.Symbol, &p.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, nil
}
