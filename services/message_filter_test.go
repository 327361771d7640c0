package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/arifmarias/petbnb/models"
)

func openFilterTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{}, &models.Pet{}, &models.CaregiverProfile{},
		&models.Booking{}, &models.ChatRoom{}, &models.ChatRoomParticipant{},
		&models.Message{},
	))
	return db
}

func seedRoomWithBooking(t *testing.T, db *gorm.DB, status string) *models.ChatRoom {
	t.Helper()
	booking := models.Booking{PetID: 1, OwnerID: 1, CaregiverID: 1, Status: status}
	require.NoError(t, db.Create(&booking).Error)
	room := models.ChatRoom{BookingID: &booking.ID}
	require.NoError(t, db.Create(&room).Error)
	return &room
}

func TestContainsContactInfo(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    bool
		reason  string
	}{
		{"plain text", "See you at the park at 5", false, ""},
		{"email", "reach me at jane.doe+pets@example.com please", true, "email"},
		{"phone", "call +60 12-345 6789 anytime", true, "phone"},
		{"instagram url", "find me on instagram.com/janedoe", true, "social"},
		{"handle", "my handle is @jane.doe", true, "social"},
		{"whatsapp link", "ping me on wa.me/60123456789", true, "WhatsApp"},
		{"whatsapp word", "I'm on WhatsApp", true, "WhatsApp"},
		{"telegram link", "t.me/janedoe works too", true, "Telegram"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, reason := ContainsContactInfo(tc.content)
			assert.Equal(t, tc.want, got)
			if tc.want {
				assert.Contains(t, reason, tc.reason)
			} else {
				assert.Empty(t, reason)
			}
		})
	}
}

func TestValidateMessageBasicRules(t *testing.T) {
	db := openFilterTestDB(t)
	room := seedRoomWithBooking(t, db, models.BookingStatusConfirmed)

	ok, reason := ValidateMessage(db, room.ID, "   ")
	assert.False(t, ok)
	assert.Contains(t, reason, "empty")

	ok, reason = ValidateMessage(db, room.ID, strings.Repeat("a", models.MaxMessageLength+1))
	assert.False(t, ok)
	assert.Contains(t, reason, "too long")

	ok, reason = ValidateMessage(db, room.ID, "Rex had a great walk today!")
	assert.True(t, ok)
	assert.Empty(t, reason)
}

func TestValidateMessageContactPolicy(t *testing.T) {
	db := openFilterTestDB(t)
	contact := "email me at owner@example.com"

	pendingRoom := seedRoomWithBooking(t, db, models.BookingStatusPending)
	ok, reason := ValidateMessage(db, pendingRoom.ID, contact)
	assert.False(t, ok, "contact info must be blocked while PENDING")
	assert.NotEmpty(t, reason)

	confirmedRoom := seedRoomWithBooking(t, db, models.BookingStatusConfirmed)
	ok, _ = ValidateMessage(db, confirmedRoom.ID, contact)
	assert.True(t, ok, "contact info is allowed once CONFIRMED")

	completedRoom := seedRoomWithBooking(t, db, models.BookingStatusCompleted)
	ok, _ = ValidateMessage(db, completedRoom.ID, contact)
	assert.True(t, ok, "contact info is allowed when COMPLETED")

	cancelledRoom := seedRoomWithBooking(t, db, models.BookingStatusCancelled)
	ok, _ = ValidateMessage(db, cancelledRoom.ID, contact)
	assert.False(t, ok, "contact info must stay blocked after cancellation")
}

func TestValidateMessageDirectRoomNeverAllowsContact(t *testing.T) {
	db := openFilterTestDB(t)

	room := models.ChatRoom{}
	require.NoError(t, db.Create(&room).Error)

	ok, reason := ValidateMessage(db, room.ID, "call me on +49 170 1234567")
	assert.False(t, ok)
	assert.NotEmpty(t, reason)

	ok, _ = ValidateMessage(db, room.ID, "the dog park was lovely")
	assert.True(t, ok)
}
