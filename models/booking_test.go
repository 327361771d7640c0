package models

import (
	"testing"
	"time"
)

func TestValidBookingTransition(t *testing.T) {
	allowed := []struct{ from, to string }{
		{BookingStatusPending, BookingStatusPaymentRequired},
		{BookingStatusPending, BookingStatusCancelled},
		{BookingStatusPending, BookingStatusRejected},
		{BookingStatusPaymentRequired, BookingStatusConfirmed},
		{BookingStatusPaymentRequired, BookingStatusCancelled},
		{BookingStatusPaymentRequired, BookingStatusRejected},
		{BookingStatusConfirmed, BookingStatusCompleted},
		{BookingStatusConfirmed, BookingStatusCancelled},
	}
	for _, tc := range allowed {
		if !ValidBookingTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be allowed", tc.from, tc.to)
		}
	}

	denied := []struct{ from, to string }{
		{BookingStatusPending, BookingStatusConfirmed},
		{BookingStatusPending, BookingStatusCompleted},
		{BookingStatusConfirmed, BookingStatusPending},
		{BookingStatusCompleted, BookingStatusCancelled},
		{BookingStatusCancelled, BookingStatusPending},
		{BookingStatusRejected, BookingStatusConfirmed},
		{"BOGUS", BookingStatusPending},
	}
	for _, tc := range denied {
		if ValidBookingTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be denied", tc.from, tc.to)
		}
	}
}

func TestCanCancelBooking(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	owner := &User{Role: "user"}
	owner.ID = 7
	stranger := &User{Role: "user"}
	stranger.ID = 8
	admin := &User{Role: "admin"}
	admin.ID = 9

	booking := func(status string, startsIn time.Duration) *Booking {
		b := &Booking{
			OwnerID:   owner.ID,
			Status:    status,
			StartDate: now.Add(startsIn),
		}
		return b
	}

	if !CanCancelBooking(booking(BookingStatusPending, 48*time.Hour), owner, now) {
		t.Error("owner should cancel a PENDING booking with 48h notice")
	}
	if !CanCancelBooking(booking(BookingStatusConfirmed, 24*time.Hour), owner, now) {
		t.Error("owner should cancel a CONFIRMED booking with exactly 24h notice")
	}
	if CanCancelBooking(booking(BookingStatusConfirmed, 23*time.Hour), owner, now) {
		t.Error("owner must not cancel with less than 24h notice")
	}
	if CanCancelBooking(booking(BookingStatusPaymentRequired, 48*time.Hour), owner, now) {
		t.Error("owner must not cancel a PAYMENT_REQUIRED booking")
	}
	if CanCancelBooking(booking(BookingStatusPending, 48*time.Hour), stranger, now) {
		t.Error("a non-owner must not cancel")
	}

	// Admins cancel any non-terminal booking regardless of notice.
	if !CanCancelBooking(booking(BookingStatusPaymentRequired, time.Hour), admin, now) {
		t.Error("admin should cancel a PAYMENT_REQUIRED booking")
	}
	if !CanCancelBooking(booking(BookingStatusConfirmed, -time.Hour), admin, now) {
		t.Error("admin should cancel a CONFIRMED booking already started")
	}
	for _, status := range []string{BookingStatusCompleted, BookingStatusCancelled, BookingStatusRejected} {
		if CanCancelBooking(booking(status, 48*time.Hour), admin, now) {
			t.Errorf("admin must not cancel a %s booking", status)
		}
	}
}

func TestCanReviewBooking(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	owner := &User{Role: "user"}
	owner.ID = 7
	stranger := &User{Role: "user"}
	stranger.ID = 8

	booking := func(status string, endedAgo time.Duration) *Booking {
		return &Booking{
			OwnerID: owner.ID,
			Status:  status,
			EndDate: now.Add(-endedAgo),
		}
	}

	if !CanReviewBooking(booking(BookingStatusCompleted, 3*24*time.Hour), owner, now) {
		t.Error("owner should review a COMPLETED booking that ended 3 days ago")
	}
	if CanReviewBooking(booking(BookingStatusCompleted, 8*24*time.Hour), owner, now) {
		t.Error("review window closes 7 days after the end date")
	}
	if CanReviewBooking(booking(BookingStatusCompleted, -24*time.Hour), owner, now) {
		t.Error("a booking completed ahead of its end date is not reviewable until it ends")
	}
	if !CanReviewBooking(booking(BookingStatusCompleted, 0), owner, now) {
		t.Error("the window opens at the end date itself")
	}
	if CanReviewBooking(booking(BookingStatusConfirmed, time.Hour), owner, now) {
		t.Error("only COMPLETED bookings are reviewable")
	}
	if CanReviewBooking(booking(BookingStatusCompleted, time.Hour), stranger, now) {
		t.Error("only the owner may review")
	}
}
