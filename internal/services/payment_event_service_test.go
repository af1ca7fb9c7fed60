package services

import (
	"context"
	"testing"
	"time"

	"pluspoint/internal/common"
	"pluspoint/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type PaymentEventServiceTestSuite struct {
	suite.Suite
	orderRepo       *MockOrderRepository
	orderService    *MockOrderService
	invoiceService  *MockInvoiceService
	deliveryService *MockDeliveryService
	broadcaster     *MockBroadcaster
	cache           *MockCacheService
	service         PaymentEventServiceInterface
	ctx             context.Context
}

func (suite *PaymentEventServiceTestSuite) SetupTest() {
	suite.orderRepo = &MockOrderRepository{}
	suite.orderService = &MockOrderService{}
	suite.invoiceService = &MockInvoiceService{}
	suite.deliveryService = &MockDeliveryService{}
	suite.broadcaster = &MockBroadcaster{}
	suite.cache = &MockCacheService{}
	suite.service = NewPaymentEventService(suite.orderRepo, suite.orderService,
		suite.invoiceService, suite.deliveryService, suite.broadcaster, suite.cache)
	suite.ctx = context.Background()
}

func TestPaymentEventServiceTestSuite(t *testing.T) {
	suite.Run(t, new(PaymentEventServiceTestSuite))
}

func (suite *PaymentEventServiceTestSuite) pendingOrder() *models.Order {
	return &models.Order{
		ID:          uuid.New(),
		OrderNumber: "PP2508310001",
		Status:      models.OrderStatusPending,
		Payment: models.PaymentInfo{
			Status:           models.PaymentStatusPending,
			ExternalOrderRef: "order_R4zpXYZ001",
		},
		Pricing: models.PricingBreakdown{Total: 1230, Currency: "INR"},
	}
}

func (suite *PaymentEventServiceTestSuite) capturedEvent() *PaymentEvent {
	return &PaymentEvent{
		EventID:            "evt_001",
		Type:               EventPaymentCaptured,
		ExternalOrderRef:   "order_R4zpXYZ001",
		ExternalPaymentRef: "pay_R4zpABC001",
		Amount:             1230,
		OccurredAt:         time.Now(),
	}
}

func (suite *PaymentEventServiceTestSuite) expectFinish(order *models.Order) {
	suite.broadcaster.On("OrderUpdated", suite.ctx, order).Return()
	suite.cache.On("DeleteOrder", suite.ctx, order.ID).Return(nil)
}

func (suite *PaymentEventServiceTestSuite) TestCaptured_ConfirmsOrderAndIssuesInvoice() {
	order := suite.pendingOrder()
	event := suite.capturedEvent()
	invoice := &models.Invoice{ID: uuid.New(), InvoiceNumber: "INV25080001",
		Totals: models.InvoiceTotals{GrandTotal: 1230}}

	suite.orderRepo.On("GetByExternalOrderRef", suite.ctx, event.ExternalOrderRef).Return(order, nil)
	suite.orderService.On("AdvanceStatus", suite.ctx, order, models.OrderStatusConfirmed, ActorAutomated).
		Return(true, nil)
	suite.orderRepo.On("UpdatePayment", suite.ctx, order).Return(nil)
	suite.invoiceService.On("GenerateFromOrder", suite.ctx, order, models.InvoiceTypeTax).
		Return(invoice, true, nil)
	suite.invoiceService.On("RecordPayment", suite.ctx, invoice.ID, 1230.0, event.OccurredAt).
		Return(invoice, nil)
	suite.deliveryService.On("DispatchInvoice", suite.ctx, invoice, order).Return(nil)
	suite.deliveryService.On("NotifyOrderEvent", suite.ctx, order, models.NotificationEventOrderConfirmed).Return(nil)
	suite.expectFinish(order)

	outcome, err := suite.service.HandlePaymentEvent(suite.ctx, event)

	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), OutcomeProcessed, outcome)
	assert.Equal(suite.T(), models.PaymentStatusCompleted, order.Payment.Status)
	require.NotNil(suite.T(), order.Payment.ExternalPaymentRef)
	assert.Equal(suite.T(), "pay_R4zpABC001", *order.Payment.ExternalPaymentRef)
	assert.NotNil(suite.T(), order.Payment.PaidAt)
	suite.invoiceService.AssertExpectations(suite.T())
}

func (suite *PaymentEventServiceTestSuite) TestCaptured_RedeliveryIsNoOp() {
	order := suite.pendingOrder()
	order.Status = models.OrderStatusConfirmed
	event := suite.capturedEvent()

	suite.orderRepo.On("GetByExternalOrderRef", suite.ctx, event.ExternalOrderRef).Return(order, nil)

	outcome, err := suite.service.HandlePaymentEvent(suite.ctx, event)

	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), OutcomeAlreadyProcessed, outcome)
	suite.invoiceService.AssertNotCalled(suite.T(), "GenerateFromOrder", mock.Anything, mock.Anything, mock.Anything)
	suite.deliveryService.AssertNotCalled(suite.T(), "DispatchInvoice", mock.Anything, mock.Anything, mock.Anything)
}

func (suite *PaymentEventServiceTestSuite) TestCaptured_ConcurrentLoserBacksOff() {
	order := suite.pendingOrder()
	event := suite.capturedEvent()

	suite.orderRepo.On("GetByExternalOrderRef", suite.ctx, event.ExternalOrderRef).Return(order, nil)
	suite.orderService.On("AdvanceStatus", suite.ctx, order, models.OrderStatusConfirmed, ActorAutomated).
		Return(false, nil)

	outcome, err := suite.service.HandlePaymentEvent(suite.ctx, event)

	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), OutcomeAlreadyProcessed, outcome)
	suite.orderRepo.AssertNotCalled(suite.T(), "UpdatePayment", mock.Anything, mock.Anything)
	suite.invoiceService.AssertNotCalled(suite.T(), "GenerateFromOrder", mock.Anything, mock.Anything, mock.Anything)
}

func (suite *PaymentEventServiceTestSuite) TestCaptured_ExistingInvoiceNotRedispatched() {
	order := suite.pendingOrder()
	event := suite.capturedEvent()
	invoice := &models.Invoice{ID: uuid.New(), InvoiceNumber: "INV25080001",
		Totals: models.InvoiceTotals{GrandTotal: 1230}, PaymentStatus: models.PaymentStatusPaid}

	suite.orderRepo.On("GetByExternalOrderRef", suite.ctx, event.ExternalOrderRef).Return(order, nil)
	suite.orderService.On("AdvanceStatus", suite.ctx, order, models.OrderStatusConfirmed, ActorAutomated).
		Return(true, nil)
	suite.orderRepo.On("UpdatePayment", suite.ctx, order).Return(nil)
	suite.invoiceService.On("GenerateFromOrder", suite.ctx, order, models.InvoiceTypeTax).
		Return(invoice, false, nil)
	// The invoice is already settled; the precondition failure is tolerated
	suite.invoiceService.On("RecordPayment", suite.ctx, invoice.ID, 1230.0, event.OccurredAt).
		Return(invoice, common.NewPreconditionFailed("record payment", "already fully paid"))
	suite.deliveryService.On("NotifyOrderEvent", suite.ctx, order, models.NotificationEventOrderConfirmed).Return(nil)
	suite.expectFinish(order)

	outcome, err := suite.service.HandlePaymentEvent(suite.ctx, event)

	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), OutcomeProcessed, outcome)
	suite.deliveryService.AssertNotCalled(suite.T(), "DispatchInvoice", mock.Anything, mock.Anything, mock.Anything)
}

func (suite *PaymentEventServiceTestSuite) TestFailed_RecordsReasonAndKeepsOrderPending() {
	order := suite.pendingOrder()
	event := &PaymentEvent{
		EventID:          "evt_002",
		Type:             EventPaymentFailed,
		ExternalOrderRef: "order_R4zpXYZ001",
		FailureReason:    "card_declined",
	}

	suite.orderRepo.On("GetByExternalOrderRef", suite.ctx, event.ExternalOrderRef).Return(order, nil)
	suite.orderRepo.On("UpdatePayment", suite.ctx, order).Return(nil)
	suite.deliveryService.On("NotifyOrderEvent", suite.ctx, order, models.NotificationEventPaymentFailed).Return(nil)
	suite.expectFinish(order)

	outcome, err := suite.service.HandlePaymentEvent(suite.ctx, event)

	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), OutcomeProcessed, outcome)
	assert.Equal(suite.T(), models.OrderStatusPending, order.Status)
	assert.Equal(suite.T(), models.PaymentStatusFailed, order.Payment.Status)
	assert.Equal(suite.T(), "card_declined", *order.Payment.FailureReason)
}

func (suite *PaymentEventServiceTestSuite) TestFailed_SameReasonRedeliveryIsNoOp() {
	order := suite.pendingOrder()
	order.Payment.Status = models.PaymentStatusFailed
	order.Payment.FailureReason = common.StringPtr("card_declined")
	event := &PaymentEvent{
		Type:             EventPaymentFailed,
		ExternalOrderRef: "order_R4zpXYZ001",
		FailureReason:    "card_declined",
	}

	suite.orderRepo.On("GetByExternalOrderRef", suite.ctx, event.ExternalOrderRef).Return(order, nil)

	outcome, err := suite.service.HandlePaymentEvent(suite.ctx, event)

	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), OutcomeAlreadyProcessed, outcome)
	suite.orderRepo.AssertNotCalled(suite.T(), "UpdatePayment", mock.Anything, mock.Anything)
}

func (suite *PaymentEventServiceTestSuite) TestFailed_AfterCaptureIsNoOp() {
	order := suite.pendingOrder()
	order.Status = models.OrderStatusShipped
	event := &PaymentEvent{
		Type:             EventPaymentFailed,
		ExternalOrderRef: "order_R4zpXYZ001",
		FailureReason:    "card_declined",
	}

	suite.orderRepo.On("GetByExternalOrderRef", suite.ctx, event.ExternalOrderRef).Return(order, nil)

	outcome, err := suite.service.HandlePaymentEvent(suite.ctx, event)

	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), OutcomeAlreadyProcessed, outcome)
}

func (suite *PaymentEventServiceTestSuite) refundEvent(id string, amount float64) *PaymentEvent {
	return &PaymentEvent{
		EventID:          id,
		Type:             EventRefundProcessed,
		ExternalOrderRef: "order_R4zpXYZ001",
		Amount:           amount,
		OccurredAt:       time.Now(),
	}
}

func (suite *PaymentEventServiceTestSuite) TestRefund_PartialAccumulates() {
	order := suite.pendingOrder()
	order.Status = models.OrderStatusDelivered
	order.Payment.Status = models.PaymentStatusCompleted
	event := suite.refundEvent("evt_rf_001", 500)
	invoice := &models.Invoice{ID: uuid.New(), InvoiceNumber: "INV25080001"}

	suite.orderRepo.On("GetByExternalOrderRef", suite.ctx, event.ExternalOrderRef).Return(order, nil)
	suite.cache.On("MarkEventProcessed", suite.ctx, "evt_rf_001", eventDedupTTL).Return(true, nil)
	suite.orderRepo.On("UpdatePayment", suite.ctx, order).Return(nil)
	suite.invoiceService.On("GetByOrderAndType", suite.ctx, order.ID, models.InvoiceTypeTax).Return(invoice, nil)
	suite.invoiceService.On("ApplyRefund", suite.ctx, invoice.ID, 500.0).Return(invoice, nil)
	suite.deliveryService.On("NotifyOrderEvent", suite.ctx, order, models.NotificationEventRefundDone).Return(nil)
	suite.expectFinish(order)

	outcome, err := suite.service.HandlePaymentEvent(suite.ctx, event)

	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), OutcomeProcessed, outcome)
	assert.InDelta(suite.T(), 500, order.Payment.RefundedAmount, 0.001)
	// Order not in a refundable branch: bookkeeping only
	assert.Equal(suite.T(), models.OrderStatusDelivered, order.Status)
	assert.Equal(suite.T(), models.PaymentStatusCompleted, order.Payment.Status)
	suite.orderService.AssertNotCalled(suite.T(), "AdvanceStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	// The refund lands on the invoice's payment bookkeeping too
	suite.invoiceService.AssertExpectations(suite.T())
}

func (suite *PaymentEventServiceTestSuite) TestRefund_RedeliveredEventIDIsNoOp() {
	order := suite.pendingOrder()
	event := suite.refundEvent("evt_rf_001", 500)

	suite.orderRepo.On("GetByExternalOrderRef", suite.ctx, event.ExternalOrderRef).Return(order, nil)
	suite.cache.On("MarkEventProcessed", suite.ctx, "evt_rf_001", eventDedupTTL).Return(false, nil)

	outcome, err := suite.service.HandlePaymentEvent(suite.ctx, event)

	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), OutcomeAlreadyProcessed, outcome)
	assert.Zero(suite.T(), order.Payment.RefundedAmount)
	suite.orderRepo.AssertNotCalled(suite.T(), "UpdatePayment", mock.Anything, mock.Anything)
}

func (suite *PaymentEventServiceTestSuite) TestRefund_FullOnCancelledIssuesCreditNote() {
	order := suite.pendingOrder()
	order.Status = models.OrderStatusCancelled
	order.Payment.Status = models.PaymentStatusCompleted
	event := suite.refundEvent("evt_rf_002", 1230)
	creditNote := &models.Invoice{ID: uuid.New(), InvoiceNumber: "CN25080001", InvoiceType: models.InvoiceTypeCredit}

	suite.orderRepo.On("GetByExternalOrderRef", suite.ctx, event.ExternalOrderRef).Return(order, nil)
	suite.cache.On("MarkEventProcessed", suite.ctx, "evt_rf_002", eventDedupTTL).Return(true, nil)
	suite.orderRepo.On("UpdatePayment", suite.ctx, order).Return(nil)
	taxInvoice := &models.Invoice{ID: uuid.New(), InvoiceNumber: "INV25080001"}
	suite.invoiceService.On("GetByOrderAndType", suite.ctx, order.ID, models.InvoiceTypeTax).Return(taxInvoice, nil)
	suite.invoiceService.On("ApplyRefund", suite.ctx, taxInvoice.ID, 1230.0).Return(taxInvoice, nil)
	suite.orderService.On("AdvanceStatus", suite.ctx, order, models.OrderStatusRefunded, ActorAutomated).
		Return(true, nil)
	suite.invoiceService.On("GenerateFromOrder", suite.ctx, order, models.InvoiceTypeCredit).
		Return(creditNote, true, nil)
	suite.deliveryService.On("NotifyOrderEvent", suite.ctx, order, models.NotificationEventRefundDone).Return(nil)
	suite.expectFinish(order)

	outcome, err := suite.service.HandlePaymentEvent(suite.ctx, event)

	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), OutcomeProcessed, outcome)
	assert.InDelta(suite.T(), 1230, order.Payment.RefundedAmount, 0.001)
	assert.Equal(suite.T(), models.PaymentStatusRefunded, order.Payment.Status)
	suite.invoiceService.AssertExpectations(suite.T())
}

func (suite *PaymentEventServiceTestSuite) TestRefund_AmountClampedAtOrderTotal() {
	order := suite.pendingOrder()
	order.Status = models.OrderStatusReturned
	order.Payment.Status = models.PaymentStatusCompleted
	order.Payment.RefundedAmount = 1000
	event := suite.refundEvent("evt_rf_003", 1000)

	suite.orderRepo.On("GetByExternalOrderRef", suite.ctx, event.ExternalOrderRef).Return(order, nil)
	suite.cache.On("MarkEventProcessed", suite.ctx, "evt_rf_003", eventDedupTTL).Return(true, nil)
	suite.orderRepo.On("UpdatePayment", suite.ctx, order).Return(nil)
	// No tax invoice was ever issued for this order; the refund stays
	// order-side bookkeeping.
	suite.invoiceService.On("GetByOrderAndType", suite.ctx, order.ID, models.InvoiceTypeTax).Return(nil, nil)
	suite.orderService.On("AdvanceStatus", suite.ctx, order, models.OrderStatusRefunded, ActorAutomated).
		Return(true, nil)
	suite.invoiceService.On("GenerateFromOrder", suite.ctx, order, models.InvoiceTypeCredit).
		Return(&models.Invoice{ID: uuid.New()}, true, nil)
	suite.deliveryService.On("NotifyOrderEvent", suite.ctx, order, models.NotificationEventRefundDone).Return(nil)
	suite.expectFinish(order)

	outcome, err := suite.service.HandlePaymentEvent(suite.ctx, event)

	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), OutcomeProcessed, outcome)
	assert.InDelta(suite.T(), 1230, order.Payment.RefundedAmount, 0.001)
}

func (suite *PaymentEventServiceTestSuite) TestRefund_UnpaidInvoiceTolerated() {
	order := suite.pendingOrder()
	order.Status = models.OrderStatusDelivered
	order.Payment.Status = models.PaymentStatusCompleted
	event := suite.refundEvent("evt_rf_005", 500)
	invoice := &models.Invoice{ID: uuid.New(), InvoiceNumber: "INV25080001"}

	suite.orderRepo.On("GetByExternalOrderRef", suite.ctx, event.ExternalOrderRef).Return(order, nil)
	suite.cache.On("MarkEventProcessed", suite.ctx, "evt_rf_005", eventDedupTTL).Return(true, nil)
	suite.orderRepo.On("UpdatePayment", suite.ctx, order).Return(nil)
	suite.invoiceService.On("GetByOrderAndType", suite.ctx, order.ID, models.InvoiceTypeTax).Return(invoice, nil)
	suite.invoiceService.On("ApplyRefund", suite.ctx, invoice.ID, 500.0).
		Return(invoice, common.NewPreconditionFailed("apply refund", "no payment recorded"))
	suite.deliveryService.On("NotifyOrderEvent", suite.ctx, order, models.NotificationEventRefundDone).Return(nil)
	suite.expectFinish(order)

	outcome, err := suite.service.HandlePaymentEvent(suite.ctx, event)

	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), OutcomeProcessed, outcome)
}

func (suite *PaymentEventServiceTestSuite) TestRefund_RejectsAmountAboveTotal() {
	order := suite.pendingOrder()
	event := suite.refundEvent("evt_rf_004", 5000)

	suite.orderRepo.On("GetByExternalOrderRef", suite.ctx, event.ExternalOrderRef).Return(order, nil)
	suite.cache.On("MarkEventProcessed", suite.ctx, "evt_rf_004", eventDedupTTL).Return(true, nil)

	outcome, err := suite.service.HandlePaymentEvent(suite.ctx, event)

	assert.Equal(suite.T(), OutcomeIgnored, outcome)
	assert.True(suite.T(), common.IsValidation(err))
}

func (suite *PaymentEventServiceTestSuite) TestUnknownOrderRefIsIgnored() {
	event := suite.capturedEvent()

	suite.orderRepo.On("GetByExternalOrderRef", suite.ctx, event.ExternalOrderRef).Return(nil, nil)

	outcome, err := suite.service.HandlePaymentEvent(suite.ctx, event)

	assert.Equal(suite.T(), OutcomeIgnored, outcome)
	assert.True(suite.T(), common.IsValidation(err))
}

func (suite *PaymentEventServiceTestSuite) TestUnknownEventTypeAcknowledged() {
	order := suite.pendingOrder()
	event := &PaymentEvent{Type: "payment.authorized", ExternalOrderRef: "order_R4zpXYZ001"}

	suite.orderRepo.On("GetByExternalOrderRef", suite.ctx, event.ExternalOrderRef).Return(order, nil)

	outcome, err := suite.service.HandlePaymentEvent(suite.ctx, event)

	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), OutcomeIgnored, outcome)
}

func (suite *PaymentEventServiceTestSuite) TestMissingOrderRefIsValidationError() {
	outcome, err := suite.service.HandlePaymentEvent(suite.ctx, &PaymentEvent{Type: EventPaymentCaptured})

	assert.Equal(suite.T(), OutcomeIgnored, outcome)
	assert.True(suite.T(), common.IsValidation(err))
}
