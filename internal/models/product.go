package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is the minimal catalog record the pipeline needs: pricing
// snapshot inputs and a simple stock count. Catalog management itself
// lives elsewhere.
type Product struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	HSNSAC    *string   `json:"hsn_sac" db:"hsn_sac"`
	UnitPrice float64   `json:"unit_price" db:"unit_price"`
	TaxRate   float64   `json:"tax_rate" db:"tax_rate"`
	Stock     int       `json:"stock" db:"stock"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
