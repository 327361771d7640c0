package models

import (
	"time"

	"golang.org/x/exp/slices"
	"gorm.io/gorm"
)

const (
	BookingStatusPending         = "PENDING"
	BookingStatusPaymentRequired = "PAYMENT_REQUIRED"
	BookingStatusConfirmed       = "CONFIRMED"
	BookingStatusCompleted       = "COMPLETED"
	BookingStatusCancelled       = "CANCELLED"
	BookingStatusRejected        = "REJECTED"
)

const (
	ServiceTypeBoarding = "BOARDING"
	ServiceTypeDaycare  = "DAYCARE"
	ServiceTypeWalking  = "WALKING"
)

// ReviewWindow is how long after end_date an owner may still leave a review.
const ReviewWindow = 7 * 24 * time.Hour

// CancelNotice is the minimum lead time an owner needs to cancel.
const CancelNotice = 24 * time.Hour

type Booking struct {
	gorm.Model
	PetID               uint             `json:"petID" gorm:"not null;index"`
	Pet                 Pet              `json:"pet,omitempty" gorm:"foreignKey:PetID"`
	OwnerID             uint             `json:"ownerID" gorm:"not null;index"`
	Owner               User             `json:"owner,omitempty" gorm:"foreignKey:OwnerID"`
	CaregiverID         uint             `json:"caregiverID" gorm:"not null;index"`
	Caregiver           CaregiverProfile `json:"caregiver,omitempty" gorm:"foreignKey:CaregiverID"`
	ServiceType         string           `json:"serviceType" gorm:"type:varchar(20);not null"`
	StartDate           time.Time        `json:"startDate" gorm:"not null"`
	EndDate             time.Time        `json:"endDate" gorm:"not null"`
	Status              string           `json:"status" gorm:"type:varchar(20);default:PENDING;index"`
	TotalPrice          float64          `json:"totalPrice" gorm:"not null"`
	SpecialInstructions string           `json:"specialInstructions" gorm:"type:text"`

	Payments []Payment `json:"payments,omitempty" gorm:"foreignKey:BookingID"`
	ChatRoom *ChatRoom `json:"chatRoom,omitempty" gorm:"foreignKey:BookingID"`
}

// bookingTransitions is the allowed status graph. CANCELLED and REJECTED are
// absorbing; CONFIRMED is only ever entered by a verified payment event.
var bookingTransitions = map[string][]string{
	BookingStatusPending:         {BookingStatusPaymentRequired, BookingStatusCancelled, BookingStatusRejected},
	BookingStatusPaymentRequired: {BookingStatusConfirmed, BookingStatusCancelled, BookingStatusRejected},
	BookingStatusConfirmed:       {BookingStatusCompleted, BookingStatusCancelled},
	BookingStatusCompleted:       {},
	BookingStatusCancelled:       {},
	BookingStatusRejected:        {},
}

// ValidBookingTransition reports whether a booking may move from one status
// to another.
func ValidBookingTransition(from, to string) bool {
	allowed, ok := bookingTransitions[from]
	return ok && slices.Contains(allowed, to)
}

func BookingStatusTerminal(status string) bool {
	return status == BookingStatusCompleted ||
		status == BookingStatusCancelled ||
		status == BookingStatusRejected
}

// CanCancelBooking decides cancellation eligibility for an actor. Admins can
// cancel any non-terminal booking; owners only their own PENDING or CONFIRMED
// bookings with at least 24 hours notice before the start date.
func CanCancelBooking(booking *Booking, actor *User, now time.Time) bool {
	if actor.IsAdmin() {
		return !BookingStatusTerminal(booking.Status)
	}

	if booking.Status != BookingStatusPending && booking.Status != BookingStatusConfirmed {
		return false
	}

	if actor.ID != booking.OwnerID {
		return false
	}

	return booking.StartDate.Sub(now) >= CancelNotice
}

// CanReviewBooking decides review eligibility: only the owner, only once the
// booking is COMPLETED, and only inside the window [end_date, end_date+7d].
// A booking marked COMPLETED ahead of its end date is not reviewable until
// the stay is actually over.
func CanReviewBooking(booking *Booking, actor *User, now time.Time) bool {
	if actor.ID != booking.OwnerID {
		return false
	}

	if booking.Status != BookingStatusCompleted {
		return false
	}

	elapsed := now.Sub(booking.EndDate)
	return elapsed >= 0 && elapsed <= ReviewWindow
}
