package storage

import (
	"context"
	"fmt"

	"github.com/carbon-registry/internal/models"
	"github.com/jackc/pgx/v5"
)

// CreditRepository handles durable persistence of minted carbon credits.
type CreditRepository struct {
	db *PostgresDB
}

// NewCreditRepository creates a new credit repository
func NewCreditRepository(db *PostgresDB) *CreditRepository {
	return &CreditRepository{db: db}
}

// Create inserts a freshly minted credit
func (r *CreditRepository) Create(ctx context.Context, credit *models.CarbonCredit) error {
	query := `
		INSERT INTO credits (id, producer, owner, carbon_reduced, project_type, iot_device_id, is_verified, price, for_sale, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.Pool().Exec(ctx, query,
		credit.ID,
		credit.Producer,
		credit.Owner,
		credit.CarbonReduced,
		credit.ProjectType,
		credit.IoTDeviceID,
		credit.IsVerified,
		credit.Price,
		credit.ForSale,
		credit.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create credit: %w", err)
	}

	return nil
}

// UpdateListing updates a credit's sale state after list, delist or purchase
func (r *CreditRepository) UpdateListing(ctx context.Context, credit *models.CarbonCredit) error {
	query := `
		UPDATE credits
		SET owner = $2, price = $3, for_sale = $4
		WHERE id = $1
	`

	result, err := r.db.Pool().Exec(ctx, query,
		credit.ID,
		credit.Owner,
		credit.Price,
		credit.ForSale,
	)
	if err != nil {
		return fmt.Errorf("failed to update credit listing: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("credit not found: %d", credit.ID)
	}

	return nil
}

// ListAll returns every credit ordered by token id, for ledger rehydration
func (r *CreditRepository) ListAll(ctx context.Context) ([]*models.CarbonCredit, error) {
	query := `
		SELECT id, producer, owner, carbon_reduced, project_type, iot_device_id, is_verified, price, for_sale, created_at
		FROM credits
		ORDER BY id
	`

	return r.list(ctx, query)
}

func (r *CreditRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.CarbonCredit, error) {
	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list credits: %w", err)
	}
	defer rows.Close()

	var credits []*models.CarbonCredit
	for rows.Next() {
		credit, err := r.scanOne(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan credit: %w", err)
		}
		credits = append(credits, credit)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating credits: %w", err)
	}

	return credits, nil
}

func (r *CreditRepository) scanOne(row pgx.Row) (*models.CarbonCredit, error) {
	var credit models.CarbonCredit
	err := row.Scan(
		&credit.ID,
		&credit.Producer,
		&credit.Owner,
		&credit.CarbonReduced,
		&credit.ProjectType,
		&credit.IoTDeviceID,
		&credit.IsVerified,
		&credit.Price,
		&credit.ForSale,
		&credit.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &credit, nil
}
