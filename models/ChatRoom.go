package models

import (
	"time"

	"gorm.io/gorm"
)

// ChatRoom scopes a conversation to (usually) one booking between its owner
// and caregiver. BookingID is nullable to support direct rooms; access to
// those is gated by ChatRoomParticipant rows instead.
type ChatRoom struct {
	gorm.Model
	BookingID *uint    `json:"bookingID" gorm:"uniqueIndex"`
	Booking   *Booking `json:"booking,omitempty" gorm:"foreignKey:BookingID"`

	Messages     []Message             `json:"messages,omitempty" gorm:"foreignKey:ChatRoomID;constraint:OnDelete:CASCADE"`
	Participants []ChatRoomParticipant `json:"participants,omitempty" gorm:"foreignKey:ChatRoomID;constraint:OnDelete:CASCADE"`
}

type ChatRoomParticipant struct {
	ChatRoomID uint       `json:"chatRoomID" gorm:"primaryKey;autoIncrement:false"`
	UserID     uint       `json:"userID" gorm:"primaryKey;autoIncrement:false"`
	User       User       `json:"user,omitempty" gorm:"foreignKey:UserID"`
	JoinedAt   time.Time  `json:"joinedAt" gorm:"autoCreateTime"`
	LastReadAt *time.Time `json:"lastReadAt"`
}
