package services

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"github.com/stripe/stripe-go/v76/refund"
	"github.com/stripe/stripe-go/v76/webhook"
	"golang.org/x/exp/slices"
)

// Webhook event types the reconciliation flow consumes. Everything else is
// acknowledged and ignored.
const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
)

// RefundReasons is the closed set Stripe accepts.
var RefundReasons = []string{"duplicate", "fraudulent", "requested_by_customer"}

func ValidRefundReason(reason string) bool {
	return slices.Contains(RefundReasons, reason)
}

type PaymentIntent struct {
	ID           string
	ClientSecret string
}

type RefundResult struct {
	ID string
}

// WebhookEvent is the processor-agnostic view of a verified webhook payload.
type WebhookEvent struct {
	ID              string
	Type            string
	PaymentIntentID string
	FailureMessage  string
}

// PaymentProcessor is the outbound surface of the hosted payment API. The
// routes only ever talk to this interface.
type PaymentProcessor interface {
	CreatePaymentIntent(amount float64, currency string, metadata map[string]string) (*PaymentIntent, error)
	CreateRefund(paymentIntentID string, amount float64, reason string) (*RefundResult, error)
	VerifyWebhook(payload []byte, signature string) (*WebhookEvent, error)
}

// Processor is the process-wide payment processor. Tests swap in a stub.
var Processor PaymentProcessor = &StripeService{}

type StripeService struct{}

func InitializeStripe() {
	stripe.Key = os.Getenv("STRIPE_SECRET_KEY")
	if stripe.Key == "" {
		log.Println("STRIPE_SECRET_KEY not set, payment processing disabled")
	}
}

// CreatePaymentIntent charges in minor currency units and tags the intent
// with the metadata bag (booking id, payment id, platform fee).
func (s *StripeService) CreatePaymentIntent(amount float64, currency string, metadata map[string]string) (*PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(toMinorUnits(amount)),
		Currency: stripe.String(strings.ToLower(currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	params.AddMetadata("platform_fee_minor", strconv.FormatInt(CalculateApplicationFee(amount), 10))
	params.SetIdempotencyKey(uuid.NewString())

	intent, err := paymentintent.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe payment intent: %w", err)
	}

	return &PaymentIntent{ID: intent.ID, ClientSecret: intent.ClientSecret}, nil
}

func (s *StripeService) CreateRefund(paymentIntentID string, amount float64, reason string) (*RefundResult, error) {
	if !ValidRefundReason(reason) {
		reason = "requested_by_customer"
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentIntentID),
		Reason:        stripe.String(reason),
	}
	if amount > 0 {
		params.Amount = stripe.Int64(toMinorUnits(amount))
	}
	params.SetIdempotencyKey(uuid.NewString())

	r, err := refund.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe refund: %w", err)
	}

	return &RefundResult{ID: r.ID}, nil
}

// VerifyWebhook checks the signature against the shared secret before any
// payload content is trusted. Fails closed.
func (s *StripeService) VerifyWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEvent(payload, signature, os.Getenv("STRIPE_WEBHOOK_SECRET"))
	if err != nil {
		return nil, fmt.Errorf("webhook signature verification failed: %w", err)
	}

	out := &WebhookEvent{ID: event.ID, Type: string(event.Type)}

	if out.Type == EventPaymentSucceeded || out.Type == EventPaymentFailed {
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return nil, fmt.Errorf("webhook payload parse: %w", err)
		}
		out.PaymentIntentID = intent.ID
		if intent.LastPaymentError != nil {
			out.FailureMessage = intent.LastPaymentError.Msg
		}
	}

	return out, nil
}

// CalculateApplicationFee computes the platform's cut in minor units from
// PLATFORM_FEE_PERCENT (default 10).
func CalculateApplicationFee(amount float64) int64 {
	percent := 10.0
	if env := os.Getenv("PLATFORM_FEE_PERCENT"); env != "" {
		if parsed, err := strconv.ParseFloat(env, 64); err == nil {
			percent = parsed
		}
	}
	return toMinorUnits(amount * percent / 100)
}

func toMinorUnits(amount float64) int64 {
	return int64(amount*100 + 0.5)
}
