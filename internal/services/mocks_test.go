package services

import (
	"context"
	"io"
	"time"

	"pluspoint/internal/models"
	"pluspoint/internal/repositories"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// Mock repositories and collaborators shared by the service tests.

type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) Create(ctx context.Context, order *models.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *MockOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockOrderRepository) GetByOrderNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	args := m.Called(ctx, orderNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockOrderRepository) GetByExternalOrderRef(ctx context.Context, externalOrderRef string) (*models.Order, error) {
	args := m.Called(ctx, externalOrderRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockOrderRepository) List(ctx context.Context, limit, offset int) ([]*models.Order, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]*models.Order), args.Error(1)
}

func (m *MockOrderRepository) UpdateStatusIf(ctx context.Context, orderID uuid.UUID, expected models.OrderStatus, entry models.StatusHistoryEntry) (bool, error) {
	args := m.Called(ctx, orderID, expected, entry)
	return args.Bool(0), args.Error(1)
}

func (m *MockOrderRepository) UpdatePayment(ctx context.Context, order *models.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *MockOrderRepository) GetStatusHistory(ctx context.Context, orderID uuid.UUID) ([]models.StatusHistoryEntry, error) {
	args := m.Called(ctx, orderID)
	return args.Get(0).([]models.StatusHistoryEntry), args.Error(1)
}

type MockProductRepository struct {
	mock.Mock
}

func (m *MockProductRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Product), args.Error(1)
}

func (m *MockProductRepository) DecrementStock(ctx context.Context, id uuid.UUID, quantity int) (bool, error) {
	args := m.Called(ctx, id, quantity)
	return args.Bool(0), args.Error(1)
}

func (m *MockProductRepository) IncrementStock(ctx context.Context, id uuid.UUID, quantity int) error {
	args := m.Called(ctx, id, quantity)
	return args.Error(0)
}

type MockSequenceRepository struct {
	mock.Mock
}

func (m *MockSequenceRepository) Allocate(ctx context.Context, kind repositories.SequenceKind, subType, period string) (string, error) {
	args := m.Called(ctx, kind, subType, period)
	return args.String(0), args.Error(1)
}

func (m *MockSequenceRepository) OrderNumber(ctx context.Context, at time.Time) (string, error) {
	args := m.Called(ctx, at)
	return args.String(0), args.Error(1)
}

func (m *MockSequenceRepository) InvoiceNumber(ctx context.Context, invoiceType models.InvoiceType, at time.Time) (string, error) {
	args := m.Called(ctx, invoiceType, at)
	return args.String(0), args.Error(1)
}

type MockInvoiceRepository struct {
	mock.Mock
}

func (m *MockInvoiceRepository) Create(ctx context.Context, invoice *models.Invoice) error {
	args := m.Called(ctx, invoice)
	return args.Error(0)
}

func (m *MockInvoiceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) GetByOrderAndType(ctx context.Context, orderID uuid.UUID, invoiceType models.InvoiceType) (*models.Invoice, error) {
	args := m.Called(ctx, orderID, invoiceType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) UpdatePayment(ctx context.Context, invoice *models.Invoice) error {
	args := m.Called(ctx, invoice)
	return args.Error(0)
}

func (m *MockInvoiceRepository) UpdateEngagement(ctx context.Context, invoice *models.Invoice) error {
	args := m.Called(ctx, invoice)
	return args.Error(0)
}

func (m *MockInvoiceRepository) UpdateCompliance(ctx context.Context, invoice *models.Invoice) error {
	args := m.Called(ctx, invoice)
	return args.Error(0)
}

func (m *MockInvoiceRepository) UpdateDelivery(ctx context.Context, invoiceID uuid.UUID, delivery map[models.DeliveryChannel]*models.DeliveryChannelState) error {
	args := m.Called(ctx, invoiceID, delivery)
	return args.Error(0)
}

func (m *MockInvoiceRepository) UpdatePDFObjectKey(ctx context.Context, invoiceID uuid.UUID, objectKey string) error {
	args := m.Called(ctx, invoiceID, objectKey)
	return args.Error(0)
}

func (m *MockInvoiceRepository) ListDuePastDate(ctx context.Context, asOf time.Time, limit int) ([]*models.Invoice, error) {
	args := m.Called(ctx, asOf, limit)
	return args.Get(0).([]*models.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) MarkOverdueIf(ctx context.Context, invoiceID uuid.UUID) (bool, error) {
	args := m.Called(ctx, invoiceID)
	return args.Bool(0), args.Error(1)
}

type MockStorageService struct {
	mock.Mock
}

func (m *MockStorageService) UploadPDF(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64) error {
	args := m.Called(ctx, bucketName, objectName, reader, objectSize)
	return args.Error(0)
}

func (m *MockStorageService) GetPresignedURL(bucketName, objectName string, expiry time.Duration) (string, error) {
	args := m.Called(bucketName, objectName, expiry)
	return args.String(0), args.Error(1)
}

func (m *MockStorageService) EnsureBucketExists(ctx context.Context, bucketName string) error {
	args := m.Called(ctx, bucketName)
	return args.Error(0)
}

type MockCacheService struct {
	mock.Mock
}

func (m *MockCacheService) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockCacheService) SetOrder(ctx context.Context, order *models.Order, ttl time.Duration) error {
	args := m.Called(ctx, order, ttl)
	return args.Error(0)
}

func (m *MockCacheService) DeleteOrder(ctx context.Context, orderID uuid.UUID) error {
	args := m.Called(ctx, orderID)
	return args.Error(0)
}

func (m *MockCacheService) GetInvoice(ctx context.Context, invoiceID uuid.UUID) (*models.Invoice, error) {
	args := m.Called(ctx, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invoice), args.Error(1)
}

func (m *MockCacheService) SetInvoice(ctx context.Context, invoice *models.Invoice, ttl time.Duration) error {
	args := m.Called(ctx, invoice, ttl)
	return args.Error(0)
}

func (m *MockCacheService) DeleteInvoice(ctx context.Context, invoiceID uuid.UUID) error {
	args := m.Called(ctx, invoiceID)
	return args.Error(0)
}

func (m *MockCacheService) EnqueueRetry(ctx context.Context, notification *models.Notification) error {
	args := m.Called(ctx, notification)
	return args.Error(0)
}

func (m *MockCacheService) DequeueRetry(ctx context.Context) (*models.Notification, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Notification), args.Error(1)
}

func (m *MockCacheService) RetryQueueLength(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCacheService) IsRateLimited(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

func (m *MockCacheService) MarkEventProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, eventID, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockCacheService) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

type MockBroadcaster struct {
	mock.Mock
}

func (m *MockBroadcaster) OrderUpdated(ctx context.Context, order *models.Order) {
	m.Called(ctx, order)
}

type MockDeliveryService struct {
	mock.Mock
}

func (m *MockDeliveryService) DispatchInvoice(ctx context.Context, invoice *models.Invoice, order *models.Order) error {
	args := m.Called(ctx, invoice, order)
	return args.Error(0)
}

func (m *MockDeliveryService) NotifyOrderEvent(ctx context.Context, order *models.Order, event models.NotificationEvent) error {
	args := m.Called(ctx, order, event)
	return args.Error(0)
}

func (m *MockDeliveryService) RecordDelivered(ctx context.Context, invoiceID uuid.UUID, channel models.DeliveryChannel, providerMessageID *string) (*models.Invoice, error) {
	args := m.Called(ctx, invoiceID, channel, providerMessageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invoice), args.Error(1)
}

func (m *MockDeliveryService) SuccessRate(invoice *models.Invoice) float64 {
	args := m.Called(invoice)
	return args.Get(0).(float64)
}

func (m *MockDeliveryService) RetryFailedDispatches(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// stubSender is a scriptable channel transport for delivery tests
type stubSender struct {
	channel models.DeliveryChannel
	results []models.SendResult
	calls   int
}

func (s *stubSender) Channel() models.DeliveryChannel { return s.channel }

func (s *stubSender) Send(ctx context.Context, n *models.Notification) models.SendResult {
	result := s.results[s.calls%len(s.results)]
	s.calls++
	return result
}

type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*models.Order, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockOrderService) GetOrderByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockOrderService) GetOrderByExternalRef(ctx context.Context, externalOrderRef string) (*models.Order, error) {
	args := m.Called(ctx, externalOrderRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockOrderService) ListOrders(ctx context.Context, limit, offset int) ([]*models.Order, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]*models.Order), args.Error(1)
}

func (m *MockOrderService) AdvanceStatus(ctx context.Context, order *models.Order, newStatus models.OrderStatus, actor string) (bool, error) {
	args := m.Called(ctx, order, newStatus, actor)
	return args.Bool(0), args.Error(1)
}

func (m *MockOrderService) CancelOrder(ctx context.Context, orderID uuid.UUID, actor string) error {
	args := m.Called(ctx, orderID, actor)
	return args.Error(0)
}

func (m *MockOrderService) ReturnOrder(ctx context.Context, orderID uuid.UUID, actor string) error {
	args := m.Called(ctx, orderID, actor)
	return args.Error(0)
}

func (m *MockOrderService) CanCancel(order *models.Order) bool {
	args := m.Called(order)
	return args.Bool(0)
}

func (m *MockOrderService) CanReturn(order *models.Order, now time.Time) bool {
	args := m.Called(order, now)
	return args.Bool(0)
}

func (m *MockOrderService) ComputeRefundAmount(order *models.Order) float64 {
	args := m.Called(order)
	return args.Get(0).(float64)
}

type MockInvoiceService struct {
	mock.Mock
}

func (m *MockInvoiceService) GenerateFromOrder(ctx context.Context, order *models.Order, invoiceType models.InvoiceType) (*models.Invoice, bool, error) {
	args := m.Called(ctx, order, invoiceType)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.Invoice), args.Bool(1), args.Error(2)
}

func (m *MockInvoiceService) GetInvoiceByID(ctx context.Context, invoiceID uuid.UUID) (*models.Invoice, error) {
	args := m.Called(ctx, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invoice), args.Error(1)
}

func (m *MockInvoiceService) GetByOrderAndType(ctx context.Context, orderID uuid.UUID, invoiceType models.InvoiceType) (*models.Invoice, error) {
	args := m.Called(ctx, orderID, invoiceType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invoice), args.Error(1)
}

func (m *MockInvoiceService) RecordPayment(ctx context.Context, invoiceID uuid.UUID, amount float64, paidAt time.Time) (*models.Invoice, error) {
	args := m.Called(ctx, invoiceID, amount, paidAt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invoice), args.Error(1)
}

func (m *MockInvoiceService) MarkViewed(ctx context.Context, invoiceID uuid.UUID) (*models.Invoice, error) {
	args := m.Called(ctx, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invoice), args.Error(1)
}

func (m *MockInvoiceService) MarkDownloaded(ctx context.Context, invoiceID uuid.UUID) (*models.Invoice, error) {
	args := m.Called(ctx, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invoice), args.Error(1)
}

func (m *MockInvoiceService) GenerateEInvoice(ctx context.Context, invoiceID uuid.UUID) (*models.Invoice, error) {
	args := m.Called(ctx, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invoice), args.Error(1)
}

func (m *MockInvoiceService) GeneratePDF(ctx context.Context, invoiceID uuid.UUID) (string, error) {
	args := m.Called(ctx, invoiceID)
	return args.String(0), args.Error(1)
}

func (m *MockInvoiceService) MarkOverdueInvoices(ctx context.Context, asOf time.Time) (int, error) {
	args := m.Called(ctx, asOf)
	return args.Int(0), args.Error(1)
}

func (m *MockInvoiceService) ApplyRefund(ctx context.Context, invoiceID uuid.UUID, amount float64) (*models.Invoice, error) {
	args := m.Called(ctx, invoiceID, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invoice), args.Error(1)
}
