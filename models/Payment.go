package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	PaymentStatusPending   = "PENDING"
	PaymentStatusCompleted = "COMPLETED"
	PaymentStatusFailed    = "FAILED"
	PaymentStatusRefunded  = "REFUNDED"
)

const (
	PaymentTypeBooking = "BOOKING"
	PaymentTypeRefund  = "REFUND"
)

type Payment struct {
	gorm.Model
	BookingID   uint    `json:"bookingID" gorm:"index"`
	Booking     Booking `json:"booking,omitempty" gorm:"foreignKey:BookingID"`
	PayerID     uint    `json:"payerID" gorm:"index"`
	Payer       User    `json:"payer,omitempty" gorm:"foreignKey:PayerID"`
	RecipientID uint    `json:"recipientID" gorm:"index"`
	Recipient   User    `json:"recipient,omitempty" gorm:"foreignKey:RecipientID"`

	// Set on REFUND rows only, pointing at the payment being reversed.
	OriginalPaymentID *uint `json:"originalPaymentID" gorm:"index"`

	Amount      float64 `json:"amount" gorm:"not null"`
	Currency    string  `json:"currency" gorm:"size:10;default:MYR"`
	PaymentType string  `json:"paymentType" gorm:"type:varchar(20);default:BOOKING"`
	Status      string  `json:"status" gorm:"type:varchar(20);default:PENDING;index"`

	StripePaymentIntentID string `json:"stripePaymentIntentID" gorm:"index"`
	StripeClientSecret    string `json:"-"`
	StripeRefundID        string `json:"stripeRefundID"`
	Reason                string `json:"reason" gorm:"type:text"`

	CompletedAt *time.Time `json:"completedAt"`
}

func (p *Payment) IsRefund() bool {
	return p.PaymentType == PaymentTypeRefund
}

// RefundedAmount sums every COMPLETED refund linked to this payment. Always
// derived from the refund rows, never cached, so concurrent refunds cannot
// drift from the stored truth.
func RefundedAmount(db *gorm.DB, paymentID uint) (float64, error) {
	var total float64
	err := db.Model(&Payment{}).
		Where("original_payment_id = ? AND payment_type = ? AND status = ?",
			paymentID, PaymentTypeRefund, PaymentStatusCompleted).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	return total, err
}
