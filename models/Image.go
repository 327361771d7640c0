package models

import "gorm.io/gorm"

// ImageEntityType discriminates what an image is attached to. The linkage is
// soft (no foreign key) so one table serves users, pets and caregivers.
const (
	ImageEntityUser      = "user"
	ImageEntityPet       = "pet"
	ImageEntityCaregiver = "caregiver"
)

func ValidImageEntityType(entityType string) bool {
	switch entityType {
	case ImageEntityUser, ImageEntityPet, ImageEntityCaregiver:
		return true
	}
	return false
}

type Image struct {
	gorm.Model
	PublicID     string `json:"publicID" gorm:"not null"`
	URL          string `json:"url" gorm:"not null;size:512"`
	ThumbnailURL string `json:"thumbnailURL" gorm:"size:512"`
	EntityType   string `json:"entityType" gorm:"type:varchar(20);not null;index:idx_images_entity"`
	EntityID     uint   `json:"entityID" gorm:"not null;index:idx_images_entity"`
	SortOrder    int    `json:"sortOrder" gorm:"default:1"`
}

// LookupImageEntity resolves the owning record for an image, one query per
// variant of the soft association.
func LookupImageEntity(db *gorm.DB, img *Image) (interface{}, error) {
	switch img.EntityType {
	case ImageEntityUser:
		var user User
		if err := db.First(&user, img.EntityID).Error; err != nil {
			return nil, err
		}
		return &user, nil
	case ImageEntityPet:
		var pet Pet
		if err := db.First(&pet, img.EntityID).Error; err != nil {
			return nil, err
		}
		return &pet, nil
	case ImageEntityCaregiver:
		var caregiver CaregiverProfile
		if err := db.First(&caregiver, img.EntityID).Error; err != nil {
			return nil, err
		}
		return &caregiver, nil
	}
	return nil, gorm.ErrRecordNotFound
}
