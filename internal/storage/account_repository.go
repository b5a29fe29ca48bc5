package storage

import (
	"context"
	"fmt"
	"time"
)

// AccountRepository persists producer verification flags and sale
// proceeds balances.
type AccountRepository struct {
	db *PostgresDB
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *PostgresDB) *AccountRepository {
	return &AccountRepository{db: db}
}

// MarkVerified records the producer flag for an address. Idempotent;
// the flag is never unset.
func (r *AccountRepository) MarkVerified(ctx context.Context, address string) error {
	query := `
		INSERT INTO producers (address, verified_at)
		VALUES ($1, $2)
		ON CONFLICT (address) DO NOTHING
	`

	_, err := r.db.Pool().Exec(ctx, query, address, time.Now())
	if err != nil {
		return fmt.Errorf("failed to mark producer verified: %w", err)
	}

	return nil
}

// ListVerified returns all verified producer addresses, for rehydration
func (r *AccountRepository) ListVerified(ctx context.Context) ([]string, error) {
	query := `SELECT address FROM producers ORDER BY verified_at`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list producers: %w", err)
	}
	defer rows.Close()

	var addresses []string
	for rows.Next() {
		var address string
		if err := rows.Scan(&address); err != nil {
			return nil, fmt.Errorf("failed to scan producer: %w", err)
		}
		addresses = append(addresses, address)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating producers: %w", err)
	}

	return addresses, nil
}

// AddProceeds credits a sale payment to the seller's balance
func (r *AccountRepository) AddProceeds(ctx context.Context, address string, amount int64) error {
	query := `
		INSERT INTO balances (address, balance, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (address) DO UPDATE
		SET balance = balances.balance + EXCLUDED.balance, updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.Pool().Exec(ctx, query, address, amount, time.Now())
	if err != nil {
		return fmt.Errorf("failed to add proceeds: %w", err)
	}

	return nil
}

// ListBalances returns every non-zero proceeds balance, for rehydration
func (r *AccountRepository) ListBalances(ctx context.Context) (map[string]int64, error) {
	query := `SELECT address, balance FROM balances`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list balances: %w", err)
	}
	defer rows.Close()

	balances := make(map[string]int64)
	for rows.Next() {
		var address string
		var balance int64
		if err := rows.Scan(&address, &balance); err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		balances[address] = balance
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating balances: %w", err)
	}

	return balances, nil
}
