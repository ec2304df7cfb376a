/**
 * @description
 * RabbitMQ-backed Notifier. Settlement events are published to a durable
 * topic exchange consumed by the notification service; routing keys follow
 * the notification.<event> convention.
 *
 * @dependencies
 * - pkg/rabbitmq: The shared event producer.
 */

package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rentiva/settlement-service/internal/domain"
	"github.com/rentiva/settlement-service/pkg/rabbitmq"
)

const (
	routingKeyRefundCompleted = "notification.refund_completed"
	routingKeyBillPending     = "notification.bill_pending"
	routingKeyPaymentResult   = "notification.payment_result"
)

// RefundCompletedEvent is published after a refund transaction commits.
type RefundCompletedEvent struct {
	CustomerID     uuid.UUID       `json:"customer_id"`
	ContractNumber string          `json:"contract_number"`
	Amount         decimal.Decimal `json:"amount"`
	Method         string          `json:"method"`
	Timestamp      time.Time       `json:"timestamp"`
}

// BillPendingEvent is published when a return produces a rental bill.
type BillPendingEvent struct {
	CustomerID     uuid.UUID       `json:"customer_id"`
	ContractNumber string          `json:"contract_number"`
	Amount         decimal.Decimal `json:"amount"`
	Timestamp      time.Time       `json:"timestamp"`
}

// PaymentResultEvent is published after a verified gateway callback.
type PaymentResultEvent struct {
	CustomerID     uuid.UUID `json:"customer_id"`
	ContractNumber string    `json:"contract_number"`
	Success        bool      `json:"success"`
	Reason         string    `json:"reason,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// AMQPNotifier publishes settlement notifications through RabbitMQ.
type AMQPNotifier struct {
	producer rabbitmq.Publisher
	exchange string
}

// NewAMQPNotifier creates a notifier publishing to the given exchange.
func NewAMQPNotifier(producer rabbitmq.Publisher, exchange string) *AMQPNotifier {
	return &AMQPNotifier{producer: producer, exchange: exchange}
}

func (n *AMQPNotifier) NotifyRefundCompleted(ctx context.Context, customerID uuid.UUID, contractNumber string, amount decimal.Decimal, method domain.RefundMethod) error {
	return n.producer.Publish(ctx, n.exchange, routingKeyRefundCompleted, RefundCompletedEvent{
		CustomerID:     customerID,
		ContractNumber: contractNumber,
		Amount:         amount,
		Method:         string(method),
		Timestamp:      time.Now(),
	})
}

func (n *AMQPNotifier) NotifyBillPending(ctx context.Context, customerID uuid.UUID, contractNumber string, amount decimal.Decimal) error {
	return n.producer.Publish(ctx, n.exchange, routingKeyBillPending, BillPendingEvent{
		CustomerID:     customerID,
		ContractNumber: contractNumber,
		Amount:         amount,
		Timestamp:      time.Now(),
	})
}

func (n *AMQPNotifier) NotifyPaymentResult(ctx context.Context, customerID uuid.UUID, contractNumber string, success bool, reason string) error {
	return n.producer.Publish(ctx, n.exchange, routingKeyPaymentResult, PaymentResultEvent{
		CustomerID:     customerID,
		ContractNumber: contractNumber,
		Success:        success,
		Reason:         reason,
		Timestamp:      time.Now(),
	})
}
