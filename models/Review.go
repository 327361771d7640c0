package models

import "gorm.io/gorm"

type Review struct {
	gorm.Model
	BookingID   uint             `json:"bookingID" gorm:"not null;uniqueIndex"`
	Booking     Booking          `json:"booking,omitempty" gorm:"foreignKey:BookingID"`
	CaregiverID uint             `json:"caregiverID" gorm:"not null;index"`
	Caregiver   CaregiverProfile `json:"caregiver,omitempty" gorm:"foreignKey:CaregiverID"`
	ReviewerID  uint             `json:"reviewerID" gorm:"not null;index"`
	Reviewer    User             `json:"reviewer,omitempty" gorm:"foreignKey:ReviewerID"`
	Rating      int              `json:"rating" gorm:"not null;check:rating >= 1 AND rating <= 5"`
	Comment     string           `json:"comment" gorm:"type:text"`
}
