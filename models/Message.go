package models

import (
	"time"

	"gorm.io/gorm"
)

// MaxMessageLength bounds chat message content.
const MaxMessageLength = 4000

type Message struct {
	gorm.Model
	ChatRoomID      uint   `json:"chatRoomID" gorm:"not null;index"`
	SenderID        uint   `json:"senderID" gorm:"not null;index"`
	Sender          User   `json:"sender,omitempty" gorm:"foreignKey:SenderID"`
	Content         string `json:"content" gorm:"type:text;not null"`
	IsRead          bool   `json:"isRead" gorm:"default:false"`
	IsSystemMessage bool   `json:"isSystemMessage" gorm:"default:false"`

	ReadBy []MessageReadStatus `json:"readBy,omitempty" gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE"`
}

// MessageReadStatus tracks per-participant read receipts, independent of the
// message's own aggregate IsRead flag.
type MessageReadStatus struct {
	MessageID uint      `json:"messageID" gorm:"primaryKey;autoIncrement:false"`
	UserID    uint      `json:"userID" gorm:"primaryKey;autoIncrement:false"`
	ReadAt    time.Time `json:"readAt" gorm:"autoCreateTime"`
}
