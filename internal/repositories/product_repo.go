package repositories

import (
	"context"
	"errors"

	"pluspoint/internal/common"
	"pluspoint/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type ProductRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	DecrementStock(ctx context.Context, id uuid.UUID, quantity int) (bool, error)
	IncrementStock(ctx context.Context, id uuid.UUID, quantity int) error
}

type productRepo struct {
	db DB
}

func NewProductRepo(db DB) ProductRepository {
	return &productRepo{db: db}
}

func (r *productRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	product := &models.Product{}
	query := `
		SELECT id, name, hsn_sac, unit_price, tax_rate, stock, created_at, updated_at
		FROM products
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, id).Scan(&product.ID, &product.Name, &product.HSNSAC, &product.UnitPrice, &product.TaxRate, &product.Stock, &product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, common.WrapPersistence("get product", err)
	}
	return product, nil
}

// DecrementStock atomically reduces stock, refusing to go negative.
// Returns false when the available stock was insufficient.
func (r *productRepo) DecrementStock(ctx context.Context, id uuid.UUID, quantity int) (bool, error) {
	query := `
		UPDATE products
		SET stock = stock - $2, updated_at = NOW()
		WHERE id = $1 AND stock >= $2
	`
	tag, err := r.db.Exec(ctx, query, id, quantity)
	if err != nil {
		return false, common.WrapPersistence("decrement stock", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *productRepo) IncrementStock(ctx context.Context, id uuid.UUID, quantity int) error {
	query := `
		UPDATE products
		SET stock = stock + $2, updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.Exec(ctx, query, id, quantity)
	return common.WrapPersistence("increment stock", err)
}
