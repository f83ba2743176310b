package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// BalanceRepository persists each user's raw exchange balance — the figure
// a brm.Manager is seeded with at startup via SetRawBalance. It does not
// track a locked/reserved amount: that ledger lives entirely in the
// manager's in-memory reserved-amount tree and is never duplicated here.
type BalanceRepository struct {
	db *sql.DB
}

type Balance struct {
	UserID    string
	Asset     string
	Amount    decimal.Decimal
	UpdatedAt time.Time
}

func NewBalanceRepository(db *sql.DB) *BalanceRepository {
	return &BalanceRepository{db: db}
}

func (r *BalanceRepository) GetBalance(userID, asset string) (*Balance, error) {
	query := `
		SELECT user_id, asset, amount, updated_at
		FROM balances
		WHERE user_id = $1 AND asset = $2
	`

	balance := &Balance{}
	var updatedAt sql.NullString
	err := r.db.QueryRow(query, userID, asset).Scan(
		&balance.UserID, &balance.Asset, &balance.Amount, &updatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return &Balance{
				UserID:    userID,
				Asset:     asset,
				Amount:    decimal.Zero,
				UpdatedAt: time.Now(),
			}, nil
		}
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}

	if updatedAt.Valid {
		if t, err := time.Parse("2006-01-02 15:04:05", updatedAt.String); err == nil {
			balance.UpdatedAt = t
		} else if t, err := time.Parse(time.RFC3339, updatedAt.String); err == nil {
			balance.UpdatedAt = t
		}
	}

	return balance, nil
}

func (r *BalanceRepository) GetAllBalances(userID string) ([]*Balance, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	query := `
		SELECT user_id, asset, amount, updated_at
		FROM balances
		WHERE user_id = $1
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get balances: %w", err)
	}
	defer rows.Close()

	balances := make([]*Balance, 0)
	for rows.Next() {
		balance := &Balance{}
		var updatedAt sql.NullString
		err := rows.Scan(&balance.UserID, &balance.Asset, &balance.Amount, &updatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}

		if updatedAt.Valid {
			if t, err := time.Parse("2006-01-02 15:04:05", updatedAt.String); err == nil {
				balance.UpdatedAt = t
			} else if t, err := time.Parse(time.RFC3339, updatedAt.String); err == nil {
				balance.UpdatedAt = t
			}
		}

		balances = append(balances, balance)
	}

	return balances, nil
}

// SetBalance overwrites the raw balance for userID/asset, used both by demo
// seeding and by a periodic checkpoint of brm.Manager's RawBalances.
func (r *BalanceRepository) SetBalance(userID, asset string, amount decimal.Decimal) error {
	now := time.Now()
	query := `
		INSERT INTO balances (user_id, asset, amount, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, asset)
		DO UPDATE SET amount = $3, updated_at = $4
	`

	_, err := r.db.Exec(query, userID, asset, amount, now)
	if err != nil {
		return fmt.Errorf("failed to set balance for %s/%s (%s): %w", userID, asset, amount, err)
	}
	return nil
}
