package services

import (
	"regexp"
	"strings"

	"golang.org/x/exp/slices"
	"gorm.io/gorm"

	"github.com/arifmarias/petbnb/models"
)

// Contact sharing is only allowed once a booking is paid for.
var contactAllowedStatuses = []string{
	models.BookingStatusConfirmed,
	models.BookingStatusCompleted,
}

var (
	emailPattern    = regexp.MustCompile(`[\w\.\-+]+@[\w\-]+\.[\w\.\-]+`)
	phonePattern    = regexp.MustCompile(`(\+?\d[\d\s\-\(\)]{7,}\d)`)
	socialPattern   = regexp.MustCompile(`(?i)(instagram\.com|facebook\.com|twitter\.com|linkedin\.com|@[\w\.]{3,})`)
	whatsappPattern = regexp.MustCompile(`(?i)(wa\.me|whatsapp)`)
	telegramPattern = regexp.MustCompile(`(?i)(t\.me|telegram)`)
)

type contactSignal struct {
	pattern *regexp.Regexp
	reason  string
}

// Platform links are checked before the bare phone pattern so a wa.me URL
// reads as a WhatsApp share, not a phone number.
var contactSignals = []contactSignal{
	{emailPattern, "sharing email addresses is not allowed before the booking is confirmed"},
	{whatsappPattern, "sharing WhatsApp contacts is not allowed before the booking is confirmed"},
	{telegramPattern, "sharing Telegram contacts is not allowed before the booking is confirmed"},
	{phonePattern, "sharing phone numbers is not allowed before the booking is confirmed"},
	{socialPattern, "sharing social media handles is not allowed before the booking is confirmed"},
}

// ContainsContactInfo scans the content for contact details. It returns the
// reason for the first signal that matches.
func ContainsContactInfo(content string) (bool, string) {
	for _, signal := range contactSignals {
		if signal.pattern.MatchString(content) {
			return true, signal.reason
		}
	}
	return false, ""
}

// ValidateMessage enforces the chat content policy for the room. Messages
// are rejected when empty, over length, or when they contain contact details
// while the room's booking has not reached a contact-allowed status. Rooms
// without a booking never allow contact sharing.
func ValidateMessage(db *gorm.DB, roomID uint, content string) (bool, string) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return false, "message content cannot be empty"
	}
	if len(content) > models.MaxMessageLength {
		return false, "message content is too long"
	}

	hasContact, reason := ContainsContactInfo(content)
	if !hasContact {
		return true, ""
	}

	var room models.ChatRoom
	if err := db.First(&room, roomID).Error; err != nil {
		return false, reason
	}
	if room.BookingID == nil {
		return false, reason
	}

	var booking models.Booking
	if err := db.First(&booking, *room.BookingID).Error; err != nil {
		return false, reason
	}
	if slices.Contains(contactAllowedStatuses, booking.Status) {
		return true, ""
	}
	return false, reason
}
