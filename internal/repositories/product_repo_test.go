package repositories

import (
	"context"
	"testing"
	"time"

	"pluspoint/internal/common"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type ProductRepoTestSuite struct {
	suite.Suite
	mock      pgxmock.PgxPoolIface
	repo      ProductRepository
	productID uuid.UUID
	context   context.Context
}

func (suite *ProductRepoTestSuite) SetupTest() {
	mock, err := pgxmock.NewPool()
	assert.NoError(suite.T(), err)
	suite.mock = mock

	suite.repo = NewProductRepo(mock)
	suite.productID = uuid.New()
	suite.context = context.Background()
}

func (suite *ProductRepoTestSuite) TearDownTest() {
	suite.mock.Close()
}

func TestProductRepoTestSuite(t *testing.T) {
	suite.Run(t, new(ProductRepoTestSuite))
}

func (suite *ProductRepoTestSuite) TestGetByID_Success() {
	now := time.Now()
	suite.mock.ExpectQuery(`SELECT id, name, hsn_sac, unit_price, tax_rate, stock, created_at, updated_at\s+FROM products`).
		WithArgs(suite.productID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "hsn_sac", "unit_price", "tax_rate", "stock", "created_at", "updated_at"}).
			AddRow(suite.productID, "Wireless Mouse", common.StringPtr("84716060"), 500.0, 18.0, 25, now, now))

	product, err := suite.repo.GetByID(suite.context, suite.productID)

	assert.NoError(suite.T(), err)
	assert.NotNil(suite.T(), product)
	assert.Equal(suite.T(), "Wireless Mouse", product.Name)
	require.NotNil(suite.T(), product.HSNSAC)
	assert.Equal(suite.T(), "84716060", *product.HSNSAC)
	assert.Equal(suite.T(), 25, product.Stock)
	assert.NoError(suite.T(), suite.mock.ExpectationsWereMet())
}

func (suite *ProductRepoTestSuite) TestGetByID_NotFoundReturnsNil() {
	suite.mock.ExpectQuery(`SELECT id, name, hsn_sac, unit_price, tax_rate, stock, created_at, updated_at\s+FROM products`).
		WithArgs(suite.productID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "hsn_sac", "unit_price", "tax_rate", "stock", "created_at", "updated_at"}))

	product, err := suite.repo.GetByID(suite.context, suite.productID)

	assert.NoError(suite.T(), err)
	assert.Nil(suite.T(), product)
}

func (suite *ProductRepoTestSuite) TestDecrementStock_Success() {
	suite.mock.ExpectExec(`UPDATE products\s+SET stock = stock - \$2, updated_at = NOW\(\)\s+WHERE id = \$1 AND stock >= \$2`).
		WithArgs(suite.productID, 3).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ok, err := suite.repo.DecrementStock(suite.context, suite.productID, 3)

	assert.NoError(suite.T(), err)
	assert.True(suite.T(), ok)
	assert.NoError(suite.T(), suite.mock.ExpectationsWereMet())
}

func (suite *ProductRepoTestSuite) TestDecrementStock_InsufficientStock() {
	suite.mock.ExpectExec(`UPDATE products\s+SET stock = stock - \$2, updated_at = NOW\(\)\s+WHERE id = \$1 AND stock >= \$2`).
		WithArgs(suite.productID, 100).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err := suite.repo.DecrementStock(suite.context, suite.productID, 100)

	assert.NoError(suite.T(), err)
	assert.False(suite.T(), ok)
}

func (suite *ProductRepoTestSuite) TestIncrementStock_Success() {
	suite.mock.ExpectExec(`UPDATE products\s+SET stock = stock \+ \$2, updated_at = NOW\(\)\s+WHERE id = \$1`).
		WithArgs(suite.productID, 3).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := suite.repo.IncrementStock(suite.context, suite.productID, 3)

	assert.NoError(suite.T(), err)
	assert.NoError(suite.T(), suite.mock.ExpectationsWereMet())
}
