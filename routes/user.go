package routes

import (
	"github.com/kataras/iris/v12"
	jsonWT "github.com/kataras/iris/v12/middleware/jwt"

	"github.com/arifmarias/petbnb/models"
	"github.com/arifmarias/petbnb/storage"
	"github.com/arifmarias/petbnb/utils"
)

func GetCurrentUser(ctx iris.Context) {
	userID := ctx.Values().Get("userID").(uint)

	var user models.User
	if err := storage.DB.Preload("CaregiverProfile").First(&user, userID).Error; err != nil {
		utils.CreateNotFound(ctx, "user not found")
		return
	}

	ctx.JSON(user)
}

func UpdateCurrentUser(ctx iris.Context) {
	userID := ctx.Values().Get("userID").(uint)

	var user models.User
	if err := storage.DB.First(&user, userID).Error; err != nil {
		utils.CreateNotFound(ctx, "user not found")
		return
	}

	var input UpdateUserInput
	err := ctx.ReadJSON(&input)
	if err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	if input.FullName != nil {
		user.FullName = *input.FullName
	}
	if input.Phone != nil {
		user.Phone = *input.Phone
	}
	if input.Address != nil {
		user.Address = *input.Address
	}
	if input.ProfilePicture != nil {
		user.ProfilePicture = *input.ProfilePicture
	}

	if err := storage.DB.Save(&user).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.JSON(user)
}

// DeactivateCurrentUser soft-disables the account. Bookings and payments are
// kept; the user just cannot authenticate any more.
func DeactivateCurrentUser(ctx iris.Context) {
	userID := ctx.Values().Get("userID").(uint)

	var user models.User
	if err := storage.DB.First(&user, userID).Error; err != nil {
		utils.CreateNotFound(ctx, "user not found")
		return
	}

	inactive := false
	if err := storage.DB.Model(&user).Update("is_active", &inactive).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.StatusCode(iris.StatusNoContent)
}

func GetUserByID(ctx iris.Context) {
	id := ctx.Params().Get("id")

	var user models.User
	userExists := storage.DB.Where("id = ?", id).Find(&user)
	if userExists.Error != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	if userExists.RowsAffected == 0 {
		utils.CreateNotFound(ctx, "user not found")
		return
	}

	ctx.JSON(iris.Map{
		"ID":             user.ID,
		"fullName":       user.FullName,
		"userType":       user.UserType,
		"profilePicture": user.ProfilePicture,
	})
}

func currentUser(ctx iris.Context) *models.User {
	claims := jsonWT.Get(ctx).(*utils.AccessToken)

	var user models.User
	if err := storage.DB.First(&user, claims.ID).Error; err != nil {
		utils.CreateAuthenticationError(ctx, "user not found")
		return nil
	}
	if !user.Active() {
		utils.CreateForbidden(ctx, "account is deactivated")
		return nil
	}
	return &user
}

type UpdateUserInput struct {
	FullName       *string `json:"fullName"`
	Phone          *string `json:"phone"`
	Address        *string `json:"address"`
	ProfilePicture *string `json:"profilePicture"`
}
