package models

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	gorm.Model
	Email             string     `json:"email" gorm:"uniqueIndex;size:255;not null"`
	Password          string     `json:"-"`
	FullName          string     `json:"fullName" gorm:"size:255"`
	Phone             string     `json:"phone" gorm:"size:50"`
	Address           string     `json:"address" gorm:"type:text"`
	UserType          string     `json:"userType" gorm:"type:varchar(20);not null;index"` // owner, caregiver
	Role              string     `json:"role" gorm:"type:varchar(20);default:user;index"` // user, admin, super_admin
	SocialLogin       bool       `json:"socialLogin"`
	SocialProvider    string     `json:"socialProvider"`
	IsActive          *bool      `json:"isActive" gorm:"default:true"`
	IsVerified        *bool      `json:"isVerified" gorm:"default:false"`
	VerificationToken string     `json:"-" gorm:"size:512"`
	ResetToken        string     `json:"-" gorm:"size:512"`
	ProfilePicture    string     `json:"profilePicture" gorm:"size:512"`
	LastLogin         *time.Time `json:"lastLogin"`

	Pets             []Pet             `json:"pets,omitempty" gorm:"foreignKey:OwnerID"`
	CaregiverProfile *CaregiverProfile `json:"caregiverProfile,omitempty" gorm:"foreignKey:UserID"`
}

// Active reports whether the account may authenticate. A nil flag counts as
// active so rows predating the column keep working.
func (u *User) Active() bool {
	return u.IsActive == nil || *u.IsActive
}

func (u *User) Verified() bool {
	return u.IsVerified != nil && *u.IsVerified
}

func (u *User) IsAdmin() bool {
	return u.Role == "admin" || u.Role == "super_admin"
}
