package routes

import (
	"fmt"
	"time"

	"github.com/kataras/iris/v12"

	"github.com/arifmarias/petbnb/models"
	"github.com/arifmarias/petbnb/storage"
	"github.com/arifmarias/petbnb/utils"
)

// UploadImage pushes a base64 image to Cloudinary and attaches the result to
// a user, pet or caregiver profile.
func UploadImage(ctx iris.Context) {
	user := currentUser(ctx)
	if user == nil {
		return
	}

	var input UploadImageInput
	err := ctx.ReadJSON(&input)
	if err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	if !models.ValidImageEntityType(input.EntityType) {
		utils.CreateValidationError(ctx, "invalid entity type")
		return
	}

	if !canManageImageEntity(ctx, user, input.EntityType, input.EntityID) {
		return
	}

	publicID := fmt.Sprintf("%s/%d/%d", input.EntityType, input.EntityID, time.Now().UnixNano()/int64(time.Millisecond))
	upload, uploadErr := storage.UploadBase64Image(input.Image, publicID)
	if uploadErr != nil {
		utils.CreateExternalServiceError(ctx, "image upload failed")
		return
	}

	sortOrder := input.SortOrder
	if sortOrder < 1 {
		sortOrder = 1
	}

	image := models.Image{
		PublicID:     upload.PublicID,
		URL:          upload.URL,
		ThumbnailURL: upload.ThumbnailURL,
		EntityType:   input.EntityType,
		EntityID:     input.EntityID,
		SortOrder:    sortOrder,
	}
	if err := storage.DB.Create(&image).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	if input.EntityType == models.ImageEntityUser && input.EntityID == user.ID {
		storage.DB.Model(user).Update("profile_picture", image.URL)
	}

	ctx.StatusCode(iris.StatusCreated)
	ctx.JSON(image)
}

func GetEntityImages(ctx iris.Context) {
	entityType := ctx.Params().Get("entityType")
	entityID := ctx.Params().Get("entityID")

	if !models.ValidImageEntityType(entityType) {
		utils.CreateValidationError(ctx, "invalid entity type")
		return
	}

	var images []models.Image
	if err := storage.DB.
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("sort_order, id").Find(&images).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.JSON(images)
}

func DeleteImage(ctx iris.Context) {
	user := currentUser(ctx)
	if user == nil {
		return
	}

	id := ctx.Params().Get("id")

	var image models.Image
	imageExists := storage.DB.Where("id = ?", id).Find(&image)
	if imageExists.Error != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	if imageExists.RowsAffected == 0 {
		utils.CreateNotFound(ctx, "image not found")
		return
	}

	if !canManageImageEntity(ctx, user, image.EntityType, image.EntityID) {
		return
	}

	storage.DeleteImage(image.PublicID)

	if err := storage.DB.Delete(&image).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.StatusCode(iris.StatusNoContent)
}

// canManageImageEntity writes the error response itself when the entity is
// missing or the requester does not own it.
func canManageImageEntity(ctx iris.Context, user *models.User, entityType string, entityID uint) bool {
	if user.IsAdmin() {
		return true
	}

	probe := models.Image{EntityType: entityType, EntityID: entityID}
	entity, lookupErr := models.LookupImageEntity(storage.DB, &probe)
	if lookupErr != nil {
		utils.CreateNotFound(ctx, "entity not found")
		return false
	}

	switch owner := entity.(type) {
	case *models.User:
		if owner.ID == user.ID {
			return true
		}
	case *models.Pet:
		if owner.OwnerID == user.ID {
			return true
		}
	case *models.CaregiverProfile:
		if owner.UserID == user.ID {
			return true
		}
	}

	utils.CreateForbidden(ctx, "you cannot manage images for this entity")
	return false
}

type UploadImageInput struct {
	Image      string `json:"image" validate:"required"`
	EntityType string `json:"entityType" validate:"required"`
	EntityID   uint   `json:"entityID" validate:"required"`
	SortOrder  int    `json:"sortOrder"`
}
