package services

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"gopkg.in/gomail.v2"
)

// Mailer is the outbound email surface. Dispatch is fire-and-forget: callers
// run the Send* helpers in a goroutine and every failure is logged, never
// returned to the request that triggered it.
type Mailer interface {
	Send(to, subject, htmlBody string) error
}

// NotificationService sends transactional email for the booking, payment and
// review lifecycle.
type NotificationService struct {
	mailer Mailer
}

func NewNotificationService() *NotificationService {
	return &NotificationService{mailer: &smtpMailer{}}
}

// NewNotificationServiceWithMailer lets tests inject a recording mailer.
func NewNotificationServiceWithMailer(m Mailer) *NotificationService {
	return &NotificationService{mailer: m}
}

type smtpMailer struct{}

func (m *smtpMailer) Send(to, subject, htmlBody string) error {
	host := os.Getenv("SMTP_HOST")
	if host == "" {
		return fmt.Errorf("SMTP_HOST not configured")
	}
	port := 587
	if env := os.Getenv("SMTP_PORT"); env != "" {
		if parsed, err := strconv.Atoi(env); err == nil {
			port = parsed
		}
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", os.Getenv("SMTP_FROM"))
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)

	dialer := gomail.NewDialer(host, port, os.Getenv("SMTP_USERNAME"), os.Getenv("SMTP_PASSWORD"))
	return dialer.DialAndSend(msg)
}

func (ns *NotificationService) send(to, subject, htmlBody string) {
	if err := ns.mailer.Send(to, subject, htmlBody); err != nil {
		log.Printf("Failed to send %q email to %s: %v", subject, to, err)
	}
}

func (ns *NotificationService) SendVerificationEmail(email, token string) {
	verifyURL := fmt.Sprintf("%s/verify-email?token=%s", os.Getenv("FRONTEND_URL"), token)
	html := fmt.Sprintf(`
		<p>Hi there,</p>
		<p>Thanks for signing up with PetBnB! Please verify your email by clicking the link below:</p>
		<p><a href="%s">Verify Email</a></p>
		<p>If you didn't register for PetBnB, please ignore this email.</p>`, verifyURL)
	ns.send(email, "Verify your PetBnB email", html)
}

func (ns *NotificationService) SendResetPasswordEmail(email, token string) {
	resetURL := fmt.Sprintf("%s/reset-password?token=%s", os.Getenv("FRONTEND_URL"), token)
	html := fmt.Sprintf(`
		<p>Hi there,</p>
		<p>You requested to reset your PetBnB password. Click the link below to proceed:</p>
		<p><a href="%s">Reset Password</a></p>
		<p>If you didn't request this, please ignore this email.</p>
		<p>The link will expire in 30 minutes.</p>`, resetURL)
	ns.send(email, "Reset your PetBnB password", html)
}

// BookingDetails is the structured detail bag attached to booking lifecycle
// emails.
type BookingDetails struct {
	BookingID     uint
	PetName       string
	ServiceType   string
	StartDate     string
	EndDate       string
	OwnerName     string
	CaregiverName string
	TotalPrice    float64
	Currency      string
}

func (d BookingDetails) table() string {
	return fmt.Sprintf(`
		<ul>
			<li>Booking: #%d</li>
			<li>Pet: %s</li>
			<li>Service: %s</li>
			<li>From: %s</li>
			<li>To: %s</li>
			<li>Total: %.2f %s</li>
		</ul>`, d.BookingID, d.PetName, d.ServiceType, d.StartDate, d.EndDate, d.TotalPrice, d.Currency)
}

func (ns *NotificationService) SendBookingRequestToCaregiver(email string, details BookingDetails) {
	html := fmt.Sprintf(`
		<p>Hi %s,</p>
		<p>%s has requested a booking for their pet.</p>%s
		<p>Log in to PetBnB to respond.</p>`, details.CaregiverName, details.OwnerName, details.table())
	ns.send(email, "New booking request on PetBnB", html)
}

func (ns *NotificationService) SendBookingCreatedToOwner(email string, details BookingDetails) {
	html := fmt.Sprintf(`
		<p>Hi %s,</p>
		<p>Your booking request has been sent to %s.</p>%s`,
		details.OwnerName, details.CaregiverName, details.table())
	ns.send(email, "Your PetBnB booking request", html)
}

func (ns *NotificationService) SendBookingStatusUpdate(email string, details BookingDetails, status string) {
	html := fmt.Sprintf(`
		<p>Hi there,</p>
		<p>Your booking is now <strong>%s</strong>.</p>%s`, status, details.table())
	ns.send(email, fmt.Sprintf("PetBnB booking %s", status), html)
}

func (ns *NotificationService) SendPaymentConfirmation(email string, details BookingDetails, transactionID string) {
	html := fmt.Sprintf(`
		<p>Hi there,</p>
		<p>We received your payment of %.2f %s.</p>%s
		<p>Transaction reference: %s</p>`,
		details.TotalPrice, details.Currency, details.table(), transactionID)
	ns.send(email, "PetBnB payment received", html)
}

func (ns *NotificationService) SendPaymentReceivedToCaregiver(email string, details BookingDetails) {
	html := fmt.Sprintf(`
		<p>Hi %s,</p>
		<p>Booking #%d has been paid and is confirmed.</p>%s`,
		details.CaregiverName, details.BookingID, details.table())
	ns.send(email, "PetBnB booking confirmed", html)
}

func (ns *NotificationService) SendPaymentFailed(email string, details BookingDetails, reason string) {
	if reason == "" {
		reason = "Payment failed"
	}
	html := fmt.Sprintf(`
		<p>Hi there,</p>
		<p>Your payment for booking #%d did not go through: %s.</p>
		<p>Please try again from your bookings page.</p>`, details.BookingID, reason)
	ns.send(email, "PetBnB payment failed", html)
}

func (ns *NotificationService) SendRefundConfirmation(email string, details BookingDetails, amount float64, reason, reference string) {
	html := fmt.Sprintf(`
		<p>Hi there,</p>
		<p>A refund of %.2f %s has been issued for booking #%d.</p>
		<p>Reason: %s</p>
		<p>Reference: %s</p>`, amount, details.Currency, details.BookingID, reason, reference)
	ns.send(email, "PetBnB refund issued", html)
}

func (ns *NotificationService) SendReviewNotification(email string, details BookingDetails, rating int, comment, reviewerName string) {
	html := fmt.Sprintf(`
		<p>Hi %s,</p>
		<p>%s left a %d-star review on booking #%d.</p>
		<p>%s</p>`, details.CaregiverName, reviewerName, rating, details.BookingID, comment)
	ns.send(email, "New review on PetBnB", html)
}

// Global notification service instance
var NotificationServiceInstance = NewNotificationService()
