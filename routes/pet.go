package routes

import (
	"golang.org/x/exp/slices"

	"github.com/kataras/iris/v12"

	"github.com/arifmarias/petbnb/models"
	"github.com/arifmarias/petbnb/storage"
	"github.com/arifmarias/petbnb/utils"
)

var petTypes = []string{
	models.PetTypeDog, models.PetTypeCat, models.PetTypeBird,
	models.PetTypeFish, models.PetTypeOther,
}

func CreatePet(ctx iris.Context) {
	user := currentUser(ctx)
	if user == nil {
		return
	}

	var input PetInput
	err := ctx.ReadJSON(&input)
	if err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	if !slices.Contains(petTypes, input.PetType) {
		utils.CreateValidationError(ctx, "invalid pet type")
		return
	}

	pet := models.Pet{
		OwnerID:             user.ID,
		Name:                input.Name,
		PetType:             input.PetType,
		Breed:               input.Breed,
		Age:                 input.Age,
		Size:                input.Size,
		Weight:              input.Weight,
		Gender:              input.Gender,
		IsNeutered:          input.IsNeutered,
		MedicalConditions:   input.MedicalConditions,
		VaccinationStatus:   input.VaccinationStatus,
		SpecialRequirements: input.SpecialRequirements,
	}

	if err := storage.DB.Create(&pet).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.StatusCode(iris.StatusCreated)
	ctx.JSON(pet)
}

func GetMyPets(ctx iris.Context) {
	user := currentUser(ctx)
	if user == nil {
		return
	}

	var pets []models.Pet
	if err := storage.DB.Where("owner_id = ?", user.ID).Order("id").Find(&pets).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.JSON(pets)
}

func GetPet(ctx iris.Context) {
	user := currentUser(ctx)
	if user == nil {
		return
	}

	pet := getOwnedPet(ctx, user)
	if pet == nil {
		return
	}

	ctx.JSON(pet)
}

func UpdatePet(ctx iris.Context) {
	user := currentUser(ctx)
	if user == nil {
		return
	}

	pet := getOwnedPet(ctx, user)
	if pet == nil {
		return
	}

	var input PetInput
	err := ctx.ReadJSON(&input)
	if err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	if !slices.Contains(petTypes, input.PetType) {
		utils.CreateValidationError(ctx, "invalid pet type")
		return
	}

	pet.Name = input.Name
	pet.PetType = input.PetType
	pet.Breed = input.Breed
	pet.Age = input.Age
	pet.Size = input.Size
	pet.Weight = input.Weight
	pet.Gender = input.Gender
	pet.IsNeutered = input.IsNeutered
	pet.MedicalConditions = input.MedicalConditions
	pet.VaccinationStatus = input.VaccinationStatus
	pet.SpecialRequirements = input.SpecialRequirements

	if err := storage.DB.Save(pet).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.JSON(pet)
}

func DeletePet(ctx iris.Context) {
	user := currentUser(ctx)
	if user == nil {
		return
	}

	pet := getOwnedPet(ctx, user)
	if pet == nil {
		return
	}

	// A pet with booking history cannot be removed outright.
	var activeBookings int64
	storage.DB.Model(&models.Booking{}).
		Where("pet_id = ? AND status NOT IN ?", pet.ID,
			[]string{models.BookingStatusCompleted, models.BookingStatusCancelled, models.BookingStatusRejected}).
		Count(&activeBookings)
	if activeBookings > 0 {
		utils.CreateInvalidState(ctx, "pet has active bookings")
		return
	}

	if err := storage.DB.Delete(pet).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.StatusCode(iris.StatusNoContent)
}

func getOwnedPet(ctx iris.Context, user *models.User) *models.Pet {
	id := ctx.Params().Get("id")

	var pet models.Pet
	petExists := storage.DB.Where("id = ?", id).Find(&pet)
	if petExists.Error != nil {
		utils.CreateInternalServerError(ctx)
		return nil
	}
	if petExists.RowsAffected == 0 {
		utils.CreateNotFound(ctx, "pet not found")
		return nil
	}

	if pet.OwnerID != user.ID && !user.IsAdmin() {
		utils.CreateForbidden(ctx, "not your pet")
		return nil
	}

	return &pet
}

type PetInput struct {
	Name                string  `json:"name" validate:"required,max=100"`
	PetType             string  `json:"petType" validate:"required"`
	Breed               string  `json:"breed" validate:"max=100"`
	Age                 int     `json:"age" validate:"gte=0,lte=100"`
	Size                string  `json:"size" validate:"max=50"`
	Weight              float64 `json:"weight" validate:"gte=0"`
	Gender              string  `json:"gender" validate:"max=20"`
	IsNeutered          bool    `json:"isNeutered"`
	MedicalConditions   string  `json:"medicalConditions"`
	VaccinationStatus   string  `json:"vaccinationStatus"`
	SpecialRequirements string  `json:"specialRequirements"`
}
