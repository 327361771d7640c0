package routes

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/kataras/iris/v12"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/arifmarias/petbnb/models"
	"github.com/arifmarias/petbnb/services"
	"github.com/arifmarias/petbnb/storage"
	"github.com/arifmarias/petbnb/utils"
)

// webhookEventTTL is how long a processed Stripe event ID is remembered for
// replay suppression.
const webhookEventTTL = 24 * time.Hour

func defaultCurrency() string {
	if currency := os.Getenv("CURRENCY"); currency != "" {
		return currency
	}
	return "MYR"
}

// CreatePaymentIntent starts (or resumes) payment collection for a booking.
// A booking keeps at most one pending payment row: re-requesting refreshes
// that row's intent instead of piling up orphans.
func CreatePaymentIntent(ctx iris.Context) {
	user := currentUser(ctx)
	if user == nil {
		return
	}

	booking := getBookingForUser(ctx, user, false)
	if booking == nil {
		return
	}

	if booking.OwnerID != user.ID {
		utils.CreateForbidden(ctx, "only the booking owner can pay for it")
		return
	}

	if booking.Status != models.BookingStatusPending && booking.Status != models.BookingStatusPaymentRequired {
		utils.CreateInvalidState(ctx, "booking is not payable in status "+booking.Status)
		return
	}

	var payment models.Payment
	pendingExists := storage.DB.
		Where("booking_id = ? AND payment_type = ? AND status = ?",
			booking.ID, models.PaymentTypeBooking, models.PaymentStatusPending).
		Limit(1).Find(&payment)
	if pendingExists.Error != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	createdRow := false
	if pendingExists.RowsAffected == 0 {
		payment = models.Payment{
			BookingID:   booking.ID,
			PayerID:     user.ID,
			RecipientID: booking.Caregiver.UserID,
			Amount:      booking.TotalPrice,
			Currency:    defaultCurrency(),
			PaymentType: models.PaymentTypeBooking,
			Status:      models.PaymentStatusPending,
		}
		if err := storage.DB.Create(&payment).Error; err != nil {
			utils.CreateInternalServerError(ctx)
			return
		}
		createdRow = true
	}

	// A pending row already tied to an intent is handed back as-is. Minting a
	// fresh intent here would orphan the secret the customer may already be
	// paying with.
	if payment.StripePaymentIntentID == "" {
		metadata := map[string]string{
			"booking_id": strconv.FormatUint(uint64(booking.ID), 10),
			"payment_id": strconv.FormatUint(uint64(payment.ID), 10),
			"payer_id":   strconv.FormatUint(uint64(user.ID), 10),
		}

		intent, intentErr := services.Processor.CreatePaymentIntent(payment.Amount, payment.Currency, metadata)
		if intentErr != nil {
			// A payment row without a processor intent is unusable; roll it
			// back so the next attempt starts clean.
			if createdRow {
				storage.DB.Delete(&payment)
			}
			utils.CreateExternalServiceError(ctx, "payment provider rejected the request")
			return
		}

		if err := storage.DB.Model(&payment).Updates(map[string]interface{}{
			"stripe_payment_intent_id": intent.ID,
			"stripe_client_secret":     intent.ClientSecret,
		}).Error; err != nil {
			utils.CreateInternalServerError(ctx)
			return
		}
		payment.StripePaymentIntentID = intent.ID
		payment.StripeClientSecret = intent.ClientSecret
	}

	if booking.Status == models.BookingStatusPending {
		if err := storage.DB.Model(booking).Update("status", models.BookingStatusPaymentRequired).Error; err != nil {
			utils.CreateInternalServerError(ctx)
			return
		}
		booking.Status = models.BookingStatusPaymentRequired
	}

	ctx.JSON(iris.Map{
		"paymentID":     payment.ID,
		"clientSecret":  payment.StripeClientSecret,
		"amount":        payment.Amount,
		"currency":      payment.Currency,
		"bookingStatus": booking.Status,
	})
}

// StripeWebhook ingests payment events from the processor. Events are
// verified, deduplicated through a Redis ledger, and then re-checked against
// payment status inside the transaction, so a replayed or duplicated event
// can never double-apply.
func StripeWebhook(ctx iris.Context) {
	payload, bodyErr := ctx.GetBody()
	if bodyErr != nil {
		utils.CreateValidationError(ctx, "could not read webhook payload")
		return
	}

	event, verifyErr := services.Processor.VerifyWebhook(payload, ctx.GetHeader("Stripe-Signature"))
	if verifyErr != nil {
		utils.CreateAuthenticationError(ctx, "webhook signature verification failed")
		return
	}

	var ledgerKey string
	ledgerClaimed := false
	if event.ID != "" && storage.Redis != nil {
		ledgerKey = fmt.Sprintf("stripe:event:%s", event.ID)
		firstDelivery, redisErr := storage.Redis.SetNX(context.Background(), ledgerKey, "1", webhookEventTTL).Result()
		if redisErr == nil && !firstDelivery {
			ctx.JSON(iris.Map{"received": true, "duplicate": true})
			return
		}
		ledgerClaimed = redisErr == nil
	}

	var handleErr error
	switch event.Type {
	case services.EventPaymentSucceeded:
		handleErr = applyPaymentSucceeded(event)
	case services.EventPaymentFailed:
		handleErr = applyPaymentFailed(event)
	}

	if handleErr != nil {
		// The event was not applied, so the processor must retry it. Release
		// the ledger claim or the retry would be swallowed as a duplicate.
		if ledgerClaimed {
			storage.Redis.Del(context.Background(), ledgerKey)
		}
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.JSON(iris.Map{"received": true})
}

// applyPaymentSucceeded settles the matching payment row and confirms its
// booking in one transaction. An unknown intent is not an error: the event is
// acknowledged so the processor stops retrying.
func applyPaymentSucceeded(event *services.WebhookEvent) error {
	var confirmed bool

	txErr := storage.DB.Transaction(func(tx *gorm.DB) error {
		var payment models.Payment
		if err := lockForUpdate(tx).
			Where("stripe_payment_intent_id = ?", event.PaymentIntentID).
			First(&payment).Error; err != nil {
			return err
		}

		// Status re-check covers replays that beat the Redis ledger.
		if payment.Status == models.PaymentStatusCompleted {
			return nil
		}

		now := time.Now()
		if err := tx.Model(&payment).Updates(map[string]interface{}{
			"status":       models.PaymentStatusCompleted,
			"completed_at": &now,
		}).Error; err != nil {
			return err
		}

		var booking models.Booking
		if err := tx.First(&booking, payment.BookingID).Error; err != nil {
			return err
		}
		if models.ValidBookingTransition(booking.Status, models.BookingStatusConfirmed) {
			if err := tx.Model(&booking).Update("status", models.BookingStatusConfirmed).Error; err != nil {
				return err
			}
		}

		confirmed = true
		return nil
	})

	if txErr == gorm.ErrRecordNotFound {
		return nil
	}
	if txErr != nil {
		return txErr
	}

	if confirmed {
		notifyPaymentOutcome(event.PaymentIntentID, true, "")
	}
	return nil
}

func applyPaymentFailed(event *services.WebhookEvent) error {
	var payment models.Payment
	paymentExists := storage.DB.
		Where("stripe_payment_intent_id = ?", event.PaymentIntentID).
		Limit(1).Find(&payment)
	if paymentExists.Error != nil {
		return paymentExists.Error
	}
	if paymentExists.RowsAffected == 0 {
		return nil
	}

	if payment.Status == models.PaymentStatusPending {
		reason := event.FailureMessage
		if reason == "" {
			reason = "payment failed"
		}
		if err := storage.DB.Model(&payment).Updates(map[string]interface{}{
			"status": models.PaymentStatusFailed,
			"reason": reason,
		}).Error; err != nil {
			return err
		}
		notifyPaymentOutcome(event.PaymentIntentID, false, reason)
	}
	return nil
}

// notifyPaymentOutcome emails the payer (and on success the caregiver) once a
// webhook settles a payment. Failures only log.
func notifyPaymentOutcome(paymentIntentID string, succeeded bool, failureReason string) {
	var payment models.Payment
	if err := storage.DB.
		Where("stripe_payment_intent_id = ?", paymentIntentID).
		First(&payment).Error; err != nil {
		return
	}

	var booking models.Booking
	if err := storage.DB.Preload("Pet").Preload("Caregiver").Preload("Caregiver.User").
		First(&booking, payment.BookingID).Error; err != nil {
		return
	}

	var payer models.User
	if err := storage.DB.First(&payer, payment.PayerID).Error; err != nil {
		return
	}

	details := bookingEmailDetails(&booking, &booking.Pet, &payer, &booking.Caregiver)
	if succeeded {
		go services.NotificationServiceInstance.SendPaymentConfirmation(payer.Email, details, paymentIntentID)
		go services.NotificationServiceInstance.SendPaymentReceivedToCaregiver(booking.Caregiver.User.Email, details)
	} else {
		go services.NotificationServiceInstance.SendPaymentFailed(payer.Email, details, failureReason)
	}
}

// RefundPayment issues a full or partial refund against a completed payment.
// Admins and the booking's parties (payer, caregiver) may request one. The
// source row is locked for the duration and the refunded total is always
// derived from refund rows, so concurrent requests cannot oversubscribe.
func RefundPayment(ctx iris.Context) {
	user := currentUser(ctx)
	if user == nil {
		return
	}

	id := ctx.Params().Get("id")

	var input RefundInput
	err := ctx.ReadJSON(&input)
	if err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}
	if !services.ValidRefundReason(input.Reason) {
		utils.CreateValidationError(ctx, "reason must be one of duplicate, fraudulent, requested_by_customer")
		return
	}

	var refund models.Payment
	var bookingCancelled bool

	txErr := storage.DB.Transaction(func(tx *gorm.DB) error {
		var original models.Payment
		if err := lockForUpdate(tx).
			Where("id = ?", id).First(&original).Error; err != nil {
			return err
		}

		if !user.IsAdmin() && original.PayerID != user.ID && original.RecipientID != user.ID {
			return errRefundForbidden
		}

		if original.PaymentType != models.PaymentTypeBooking {
			return errRefundTarget
		}
		if original.Status != models.PaymentStatusCompleted && original.Status != models.PaymentStatusRefunded {
			return errRefundState
		}

		refunded, sumErr := models.RefundedAmount(tx, original.ID)
		if sumErr != nil {
			return sumErr
		}

		amount := input.Amount
		remaining := original.Amount - refunded
		if amount <= 0 {
			amount = remaining
		}
		if amount > remaining+amountEpsilon {
			return errRefundExceeds
		}

		refund = models.Payment{
			BookingID:         original.BookingID,
			PayerID:           original.PayerID,
			RecipientID:       original.RecipientID,
			OriginalPaymentID: &original.ID,
			Amount:            amount,
			Currency:          original.Currency,
			PaymentType:       models.PaymentTypeRefund,
			Status:            models.PaymentStatusPending,
			Reason:            input.Reason,
		}
		if err := tx.Create(&refund).Error; err != nil {
			return err
		}

		result, processorErr := services.Processor.CreateRefund(original.StripePaymentIntentID, amount, input.Reason)
		if processorErr != nil {
			return errRefundProcessor
		}

		now := time.Now()
		if err := tx.Model(&refund).Updates(map[string]interface{}{
			"status":           models.PaymentStatusCompleted,
			"stripe_refund_id": result.ID,
			"completed_at":     &now,
		}).Error; err != nil {
			return err
		}
		refund.Status = models.PaymentStatusCompleted
		refund.StripeRefundID = result.ID
		refund.CompletedAt = &now

		if refunded+amount >= original.Amount-amountEpsilon {
			if err := tx.Model(&original).Update("status", models.PaymentStatusRefunded).Error; err != nil {
				return err
			}

			var booking models.Booking
			if err := tx.First(&booking, original.BookingID).Error; err == nil {
				if !models.BookingStatusTerminal(booking.Status) {
					if err := tx.Model(&booking).Update("status", models.BookingStatusCancelled).Error; err != nil {
						return err
					}
					bookingCancelled = true
				}
			}
		}

		return nil
	})

	switch txErr {
	case nil:
	case gorm.ErrRecordNotFound:
		utils.CreateNotFound(ctx, "payment not found")
		return
	case errRefundForbidden:
		utils.CreateForbidden(ctx, "you cannot refund this payment")
		return
	case errRefundTarget:
		utils.CreateValidationError(ctx, "refunds can only target booking payments")
		return
	case errRefundState:
		utils.CreateInvalidState(ctx, "payment is not refundable")
		return
	case errRefundExceeds:
		utils.CreateValidationError(ctx, "refund exceeds remaining refundable amount")
		return
	case errRefundProcessor:
		utils.CreateExternalServiceError(ctx, "payment provider rejected the refund")
		return
	default:
		utils.CreateInternalServerError(ctx)
		return
	}

	go sendRefundEmail(refund)

	ctx.StatusCode(iris.StatusCreated)
	ctx.JSON(iris.Map{
		"refund":           refund,
		"bookingCancelled": bookingCancelled,
	})
}

func sendRefundEmail(refund models.Payment) {
	var payer models.User
	if err := storage.DB.First(&payer, refund.PayerID).Error; err != nil {
		return
	}
	var booking models.Booking
	if err := storage.DB.Preload("Pet").Preload("Caregiver").Preload("Caregiver.User").
		First(&booking, refund.BookingID).Error; err != nil {
		return
	}
	details := bookingEmailDetails(&booking, &booking.Pet, &payer, &booking.Caregiver)
	services.NotificationServiceInstance.SendRefundConfirmation(payer.Email, details, refund.Amount, refund.Reason, refund.StripeRefundID)
}

// GetPaymentRefunds lists the refund rows against one payment plus the
// derived totals.
func GetPaymentRefunds(ctx iris.Context) {
	user := currentUser(ctx)
	if user == nil {
		return
	}

	id := ctx.Params().Get("id")

	var payment models.Payment
	paymentExists := storage.DB.Where("id = ?", id).Find(&payment)
	if paymentExists.Error != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	if paymentExists.RowsAffected == 0 {
		utils.CreateNotFound(ctx, "payment not found")
		return
	}

	if !user.IsAdmin() && payment.PayerID != user.ID && payment.RecipientID != user.ID {
		utils.CreateForbidden(ctx, "not your payment")
		return
	}

	var refunds []models.Payment
	if err := storage.DB.
		Where("original_payment_id = ? AND payment_type = ?", payment.ID, models.PaymentTypeRefund).
		Order("id").Find(&refunds).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	refundedTotal, sumErr := models.RefundedAmount(storage.DB, payment.ID)
	if sumErr != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.JSON(iris.Map{
		"payment":         payment,
		"refunds":         refunds,
		"refundedAmount":  refundedTotal,
		"remainingAmount": payment.Amount - refundedTotal,
	})
}

// GetPaymentHistory lists payments the requester participates in.
func GetPaymentHistory(ctx iris.Context) {
	user := currentUser(ctx)
	if user == nil {
		return
	}

	page := ctx.URLParamIntDefault("page", 1)
	perPage := ctx.URLParamIntDefault("per_page", 20)
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	query := storage.DB.Model(&models.Payment{})
	if !user.IsAdmin() {
		query = query.Where("payer_id = ? OR recipient_id = ?", user.ID, user.ID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	var payments []models.Payment
	if err := query.Order("created_at DESC").
		Offset((page - 1) * perPage).Limit(perPage).
		Find(&payments).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	utils.JSONPage(ctx, payments, page, perPage, total)
}

// GetBookingPayments lists every payment row attached to a booking.
func GetBookingPayments(ctx iris.Context) {
	user := currentUser(ctx)
	if user == nil {
		return
	}

	booking := getBookingForUser(ctx, user, false)
	if booking == nil {
		return
	}

	var payments []models.Payment
	if err := storage.DB.Where("booking_id = ?", booking.ID).Order("id").Find(&payments).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.JSON(payments)
}

// amountEpsilon absorbs float drift when comparing money totals.
const amountEpsilon = 0.005

// lockForUpdate takes a row lock where the dialect has one. SQLite has no
// FOR UPDATE; its writes serialize through the single writer anyway.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

var (
	errRefundForbidden = fmt.Errorf("refund not permitted for this user")
	errRefundTarget    = fmt.Errorf("refund target must be a booking payment")
	errRefundState     = fmt.Errorf("payment not refundable")
	errRefundExceeds   = fmt.Errorf("refund exceeds remaining amount")
	errRefundProcessor = fmt.Errorf("refund rejected by processor")
)

type RefundInput struct {
	Amount float64 `json:"amount" validate:"gte=0"`
	Reason string  `json:"reason" validate:"required"`
}
