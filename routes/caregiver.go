package routes

import (
	"encoding/json"
	"time"

	"golang.org/x/exp/slices"

	"github.com/kataras/iris/v12"
	"gorm.io/datatypes"

	"github.com/arifmarias/petbnb/models"
	"github.com/arifmarias/petbnb/storage"
	"github.com/arifmarias/petbnb/utils"
)

var serviceTypes = []string{
	models.ServiceTypeBoarding, models.ServiceTypeDaycare, models.ServiceTypeWalking,
}

func CreateCaregiverProfile(ctx iris.Context) {
	user := currentUser(ctx)
	if user == nil {
		return
	}

	if user.UserType != "caregiver" {
		utils.CreateForbidden(ctx, "only caregiver accounts can create a caregiver profile")
		return
	}

	var existing models.CaregiverProfile
	found := storage.DB.Where("user_id = ?", user.ID).Limit(1).Find(&existing)
	if found.Error != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	if found.RowsAffected > 0 {
		utils.CreateInvalidState(ctx, "caregiver profile already exists")
		return
	}

	var input CaregiverProfileInput
	err := ctx.ReadJSON(&input)
	if err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	profile, buildErr := buildCaregiverProfile(&input)
	if buildErr != "" {
		utils.CreateValidationError(ctx, buildErr)
		return
	}
	profile.UserID = user.ID

	if err := storage.DB.Create(profile).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.StatusCode(iris.StatusCreated)
	ctx.JSON(profile)
}

func UpdateCaregiverProfile(ctx iris.Context) {
	user := currentUser(ctx)
	if user == nil {
		return
	}

	var profile models.CaregiverProfile
	found := storage.DB.Where("user_id = ?", user.ID).Limit(1).Find(&profile)
	if found.Error != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	if found.RowsAffected == 0 {
		utils.CreateNotFound(ctx, "caregiver profile not found")
		return
	}

	var input CaregiverProfileInput
	err := ctx.ReadJSON(&input)
	if err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	updated, buildErr := buildCaregiverProfile(&input)
	if buildErr != "" {
		utils.CreateValidationError(ctx, buildErr)
		return
	}

	profile.Bio = updated.Bio
	profile.YearsOfExperience = updated.YearsOfExperience
	profile.ServicesOffered = updated.ServicesOffered
	profile.AcceptedPetTypes = updated.AcceptedPetTypes
	profile.PricePerNight = updated.PricePerNight
	profile.PricePerWalk = updated.PricePerWalk
	profile.PricePerDay = updated.PricePerDay
	profile.AvailableFrom = updated.AvailableFrom
	profile.AvailableTo = updated.AvailableTo
	profile.MaximumPets = updated.MaximumPets
	profile.HomeType = updated.HomeType
	profile.HasFencedYard = updated.HasFencedYard
	profile.IsAvailable = input.IsAvailable

	if err := storage.DB.Save(&profile).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.JSON(profile)
}

func GetMyCaregiverProfile(ctx iris.Context) {
	user := currentUser(ctx)
	if user == nil {
		return
	}

	var profile models.CaregiverProfile
	found := storage.DB.Where("user_id = ?", user.ID).Limit(1).Find(&profile)
	if found.Error != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	if found.RowsAffected == 0 {
		utils.CreateNotFound(ctx, "caregiver profile not found")
		return
	}

	ctx.JSON(profile)
}

func GetCaregiver(ctx iris.Context) {
	id := ctx.Params().Get("id")

	var profile models.CaregiverProfile
	found := storage.DB.Preload("User").Where("id = ?", id).Find(&profile)
	if found.Error != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	if found.RowsAffected == 0 {
		utils.CreateNotFound(ctx, "caregiver not found")
		return
	}

	ctx.JSON(profile)
}

// SearchCaregivers lists available caregivers, optionally filtered by service
// type, accepted pet type, price ceiling and minimum rating. The JSON columns
// are matched in memory after the SQL filters narrow the set.
func SearchCaregivers(ctx iris.Context) {
	serviceType := ctx.URLParamDefault("service_type", "")
	petType := ctx.URLParamDefault("pet_type", "")
	maxPrice := ctx.URLParamFloat64Default("max_price", 0)
	minRating := ctx.URLParamFloat64Default("min_rating", 0)
	page := ctx.URLParamIntDefault("page", 1)
	perPage := ctx.URLParamIntDefault("per_page", 20)
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	if serviceType != "" && !slices.Contains(serviceTypes, serviceType) {
		utils.CreateValidationError(ctx, "invalid service type")
		return
	}
	if petType != "" && !slices.Contains(petTypes, petType) {
		utils.CreateValidationError(ctx, "invalid pet type")
		return
	}

	query := storage.DB.Model(&models.CaregiverProfile{}).
		Preload("User").
		Where("is_available = ?", true)
	if minRating > 0 {
		query = query.Where("rating >= ?", minRating)
	}

	var profiles []models.CaregiverProfile
	if err := query.Order("rating DESC, id").Find(&profiles).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	filtered := make([]models.CaregiverProfile, 0, len(profiles))
	for i := range profiles {
		p := &profiles[i]
		if serviceType != "" && !slices.Contains(p.Services(), serviceType) {
			continue
		}
		if petType != "" && !slices.Contains(p.PetTypes(), petType) {
			continue
		}
		if maxPrice > 0 && serviceRate(p, serviceType) > maxPrice {
			continue
		}
		filtered = append(filtered, *p)
	}

	total := int64(len(filtered))
	start := (page - 1) * perPage
	if start > len(filtered) {
		start = len(filtered)
	}
	end := start + perPage
	if end > len(filtered) {
		end = len(filtered)
	}

	utils.JSONPage(ctx, filtered[start:end], page, perPage, total)
}

// serviceRate picks the price column relevant to the requested service; with
// no service filter the nightly rate is the comparison basis.
func serviceRate(p *models.CaregiverProfile, serviceType string) float64 {
	switch serviceType {
	case models.ServiceTypeDaycare:
		return p.PricePerDay
	case models.ServiceTypeWalking:
		return p.PricePerWalk
	default:
		return p.PricePerNight
	}
}

func buildCaregiverProfile(input *CaregiverProfileInput) (*models.CaregiverProfile, string) {
	for _, service := range input.ServicesOffered {
		if !slices.Contains(serviceTypes, service) {
			return nil, "invalid service type: " + service
		}
	}
	for _, petType := range input.AcceptedPetTypes {
		if !slices.Contains(petTypes, petType) {
			return nil, "invalid pet type: " + petType
		}
	}
	if input.AvailableFrom != nil && input.AvailableTo != nil && input.AvailableTo.Before(*input.AvailableFrom) {
		return nil, "availableTo must be after availableFrom"
	}

	services, _ := json.Marshal(input.ServicesOffered)
	petTypesJSON, _ := json.Marshal(input.AcceptedPetTypes)

	maxPets := input.MaximumPets
	if maxPets < 1 {
		maxPets = 1
	}

	return &models.CaregiverProfile{
		Bio:               input.Bio,
		YearsOfExperience: input.YearsOfExperience,
		ServicesOffered:   datatypes.JSON(services),
		AcceptedPetTypes:  datatypes.JSON(petTypesJSON),
		PricePerNight:     input.PricePerNight,
		PricePerWalk:      input.PricePerWalk,
		PricePerDay:       input.PricePerDay,
		AvailableFrom:     input.AvailableFrom,
		AvailableTo:       input.AvailableTo,
		MaximumPets:       maxPets,
		HomeType:          input.HomeType,
		HasFencedYard:     input.HasFencedYard,
		IsAvailable:       input.IsAvailable,
	}, ""
}

type CaregiverProfileInput struct {
	Bio               string     `json:"bio"`
	YearsOfExperience int        `json:"yearsOfExperience" validate:"gte=0,lte=80"`
	ServicesOffered   []string   `json:"servicesOffered" validate:"required,min=1"`
	AcceptedPetTypes  []string   `json:"acceptedPetTypes" validate:"required,min=1"`
	PricePerNight     float64    `json:"pricePerNight" validate:"gte=0"`
	PricePerWalk      float64    `json:"pricePerWalk" validate:"gte=0"`
	PricePerDay       float64    `json:"pricePerDay" validate:"gte=0"`
	AvailableFrom     *time.Time `json:"availableFrom"`
	AvailableTo       *time.Time `json:"availableTo"`
	MaximumPets       int        `json:"maximumPets"`
	HomeType          string     `json:"homeType" validate:"max=50"`
	HasFencedYard     bool       `json:"hasFencedYard"`
	IsAvailable       *bool      `json:"isAvailable"`
}
