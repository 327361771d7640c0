package models

import "gorm.io/gorm"

const (
	PetTypeDog   = "dog"
	PetTypeCat   = "cat"
	PetTypeBird  = "bird"
	PetTypeFish  = "fish"
	PetTypeOther = "other"
)

type Pet struct {
	gorm.Model
	OwnerID             uint    `json:"ownerID" gorm:"not null;index"`
	Owner               User    `json:"owner,omitempty" gorm:"foreignKey:OwnerID"`
	Name                string  `json:"name" gorm:"size:100;not null"`
	PetType             string  `json:"petType" gorm:"type:varchar(20);not null"` // dog, cat, bird, fish, other
	Breed               string  `json:"breed" gorm:"size:100"`
	Age                 int     `json:"age"`
	Size                string  `json:"size" gorm:"size:50"`
	Weight              float64 `json:"weight"`
	Gender              string  `json:"gender" gorm:"size:20"`
	IsNeutered          bool    `json:"isNeutered" gorm:"default:false"`
	MedicalConditions   string  `json:"medicalConditions" gorm:"type:text"`
	VaccinationStatus   string  `json:"vaccinationStatus" gorm:"type:text"`
	SpecialRequirements string  `json:"specialRequirements" gorm:"type:text"`
}
