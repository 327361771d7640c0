package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type CaregiverProfile struct {
	gorm.Model
	UserID            uint           `json:"userID" gorm:"not null;uniqueIndex"`
	User              User           `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Bio               string         `json:"bio" gorm:"type:text"`
	YearsOfExperience int            `json:"yearsOfExperience"`
	ServicesOffered   datatypes.JSON `json:"servicesOffered"`  // subset of BOARDING, DAYCARE, WALKING
	AcceptedPetTypes  datatypes.JSON `json:"acceptedPetTypes"` // subset of pet type values
	PricePerNight     float64        `json:"pricePerNight"`
	PricePerWalk      float64        `json:"pricePerWalk"`
	PricePerDay       float64        `json:"pricePerDay"`
	AvailableFrom     *time.Time     `json:"availableFrom"`
	AvailableTo       *time.Time     `json:"availableTo"`
	MaximumPets       int            `json:"maximumPets" gorm:"default:1"`
	HomeType          string         `json:"homeType" gorm:"size:50"`
	HasFencedYard     bool           `json:"hasFencedYard" gorm:"default:false"`
	IsAvailable       *bool          `json:"isAvailable" gorm:"default:true"`
	Rating            float64        `json:"rating" gorm:"default:0"`
	TotalReviews      int            `json:"totalReviews" gorm:"default:0"`
}

func (c *CaregiverProfile) Available() bool {
	return c.IsAvailable == nil || *c.IsAvailable
}

// Services decodes the JSON services column into a string slice.
func (c *CaregiverProfile) Services() []string {
	var services []string
	if c.ServicesOffered != nil {
		json.Unmarshal(c.ServicesOffered, &services)
	}
	return services
}

func (c *CaregiverProfile) PetTypes() []string {
	var types []string
	if c.AcceptedPetTypes != nil {
		json.Unmarshal(c.AcceptedPetTypes, &types)
	}
	return types
}
