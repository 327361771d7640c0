package routes

import (
	"time"

	"golang.org/x/exp/slices"

	"github.com/kataras/iris/v12"

	"github.com/arifmarias/petbnb/models"
	"github.com/arifmarias/petbnb/services"
	"github.com/arifmarias/petbnb/storage"
	"github.com/arifmarias/petbnb/utils"
)

func CreateBooking(ctx iris.Context) {
	user := currentUser(ctx)
	if user == nil {
		return
	}

	var input CreateBookingInput
	err := ctx.ReadJSON(&input)
	if err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	if !slices.Contains(serviceTypes, input.ServiceType) {
		utils.CreateValidationError(ctx, "invalid service type")
		return
	}
	if !input.EndDate.After(input.StartDate) {
		utils.CreateValidationError(ctx, "endDate must be after startDate")
		return
	}
	if input.StartDate.Before(time.Now()) {
		utils.CreateValidationError(ctx, "startDate must be in the future")
		return
	}

	var pet models.Pet
	petExists := storage.DB.Where("id = ?", input.PetID).Find(&pet)
	if petExists.Error != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	if petExists.RowsAffected == 0 {
		utils.CreateNotFound(ctx, "pet not found")
		return
	}
	if pet.OwnerID != user.ID {
		utils.CreateForbidden(ctx, "not your pet")
		return
	}

	var caregiver models.CaregiverProfile
	caregiverExists := storage.DB.Preload("User").Where("id = ?", input.CaregiverID).Find(&caregiver)
	if caregiverExists.Error != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	if caregiverExists.RowsAffected == 0 {
		utils.CreateNotFound(ctx, "caregiver not found")
		return
	}
	if caregiver.UserID == user.ID {
		utils.CreateValidationError(ctx, "cannot book your own services")
		return
	}
	if !caregiver.Available() {
		utils.CreateInvalidState(ctx, "caregiver is not accepting bookings")
		return
	}
	if !slices.Contains(caregiver.Services(), input.ServiceType) {
		utils.CreateValidationError(ctx, "caregiver does not offer this service")
		return
	}
	if !slices.Contains(caregiver.PetTypes(), pet.PetType) {
		utils.CreateValidationError(ctx, "caregiver does not accept this pet type")
		return
	}

	totalPrice := calculateBookingPrice(&caregiver, input.ServiceType, input.StartDate, input.EndDate)
	if totalPrice <= 0 {
		utils.CreateValidationError(ctx, "caregiver has no rate for this service")
		return
	}

	booking := models.Booking{
		PetID:               pet.ID,
		OwnerID:             user.ID,
		CaregiverID:         caregiver.ID,
		ServiceType:         input.ServiceType,
		StartDate:           input.StartDate,
		EndDate:             input.EndDate,
		Status:              models.BookingStatusPending,
		TotalPrice:          totalPrice,
		SpecialInstructions: input.SpecialInstructions,
	}

	if err := storage.DB.Create(&booking).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	details := bookingEmailDetails(&booking, &pet, user, &caregiver)
	go services.NotificationServiceInstance.SendBookingRequestToCaregiver(caregiver.User.Email, details)
	go services.NotificationServiceInstance.SendBookingCreatedToOwner(user.Email, details)

	ctx.StatusCode(iris.StatusCreated)
	ctx.JSON(booking)
}

// GetMyBookings lists bookings scoped to the requester: owners see what they
// booked, caregivers what was booked with them, admins everything.
func GetMyBookings(ctx iris.Context) {
	user := currentUser(ctx)
	if user == nil {
		return
	}

	status := ctx.URLParamDefault("status", "")
	page := ctx.URLParamIntDefault("page", 1)
	perPage := ctx.URLParamIntDefault("per_page", 20)
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	query := storage.DB.Model(&models.Booking{}).
		Preload("Pet").
		Preload("Caregiver").
		Preload("Caregiver.User")

	switch {
	case user.IsAdmin():
		// unscoped
	case user.UserType == "caregiver":
		var profile models.CaregiverProfile
		found := storage.DB.Where("user_id = ?", user.ID).Limit(1).Find(&profile)
		if found.Error != nil {
			utils.CreateInternalServerError(ctx)
			return
		}
		if found.RowsAffected == 0 {
			utils.JSONPage(ctx, []models.Booking{}, page, perPage, 0)
			return
		}
		query = query.Preload("Owner").Where("caregiver_id = ?", profile.ID)
	default:
		query = query.Where("owner_id = ?", user.ID)
	}

	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	var bookings []models.Booking
	if err := query.Order("created_at DESC").
		Offset((page - 1) * perPage).Limit(perPage).
		Find(&bookings).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	utils.JSONPage(ctx, bookings, page, perPage, total)
}

func GetBooking(ctx iris.Context) {
	user := currentUser(ctx)
	if user == nil {
		return
	}

	booking := getBookingForUser(ctx, user, false)
	if booking == nil {
		return
	}

	ctx.JSON(booking)
}

// UpdateBookingStatus moves a booking along its lifecycle. Caregivers accept
// (PAYMENT_REQUIRED), reject, or complete their own bookings; admins may apply
// any allowed transition. CONFIRMED is reserved for the payment webhook.
func UpdateBookingStatus(ctx iris.Context) {
	user := currentUser(ctx)
	if user == nil {
		return
	}

	var input UpdateBookingStatusInput
	err := ctx.ReadJSON(&input)
	if err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	booking := getBookingForUser(ctx, user, true)
	if booking == nil {
		return
	}

	if input.Status == models.BookingStatusConfirmed {
		utils.CreateValidationError(ctx, "bookings are confirmed through payment")
		return
	}
	if input.Status == models.BookingStatusCancelled {
		utils.CreateValidationError(ctx, "use the cancel endpoint to cancel a booking")
		return
	}

	if !user.IsAdmin() {
		var profile models.CaregiverProfile
		found := storage.DB.Where("user_id = ?", user.ID).Limit(1).Find(&profile)
		if found.Error != nil {
			utils.CreateInternalServerError(ctx)
			return
		}
		if found.RowsAffected == 0 || profile.ID != booking.CaregiverID {
			utils.CreateForbidden(ctx, "only the caregiver or an admin can update this booking")
			return
		}
	}

	if !models.ValidBookingTransition(booking.Status, input.Status) {
		utils.CreateInvalidState(ctx, "cannot move booking from "+booking.Status+" to "+input.Status)
		return
	}

	if err := storage.DB.Model(booking).Update("status", input.Status).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	booking.Status = input.Status

	var owner models.User
	if storage.DB.First(&owner, booking.OwnerID).Error == nil {
		details := bookingEmailDetails(booking, &booking.Pet, &owner, &booking.Caregiver)
		go services.NotificationServiceInstance.SendBookingStatusUpdate(owner.Email, details, booking.Status)
	}

	ctx.JSON(booking)
}

// CancelBooking applies the cancellation policy. The distinct invalid_state
// reply separates "not allowed for you" from "not allowed in this state".
func CancelBooking(ctx iris.Context) {
	user := currentUser(ctx)
	if user == nil {
		return
	}

	booking := getBookingForUser(ctx, user, true)
	if booking == nil {
		return
	}

	if models.BookingStatusTerminal(booking.Status) {
		utils.CreateInvalidState(ctx, "booking is already "+booking.Status)
		return
	}

	if !models.CanCancelBooking(booking, user, time.Now()) {
		if user.ID == booking.OwnerID && !user.IsAdmin() {
			if booking.Status != models.BookingStatusPending && booking.Status != models.BookingStatusConfirmed {
				utils.CreateInvalidState(ctx, "booking cannot be cancelled in status "+booking.Status)
				return
			}
			utils.CreateInvalidState(ctx, "bookings require at least 24 hours notice to cancel")
			return
		}
		utils.CreateForbidden(ctx, "you cannot cancel this booking")
		return
	}

	if err := storage.DB.Model(booking).Update("status", models.BookingStatusCancelled).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	booking.Status = models.BookingStatusCancelled

	var owner models.User
	var caregiverUser models.User
	if storage.DB.First(&owner, booking.OwnerID).Error == nil {
		details := bookingEmailDetails(booking, &booking.Pet, &owner, &booking.Caregiver)
		go services.NotificationServiceInstance.SendBookingStatusUpdate(owner.Email, details, booking.Status)
		if storage.DB.First(&caregiverUser, booking.Caregiver.UserID).Error == nil {
			go services.NotificationServiceInstance.SendBookingStatusUpdate(caregiverUser.Email, details, booking.Status)
		}
	}

	ctx.JSON(booking)
}

// calculateBookingPrice derives the total from the caregiver's rate card.
// Boarding charges per night; daycare and walking charge per calendar day,
// with a same-day visit counting as one.
func calculateBookingPrice(caregiver *models.CaregiverProfile, serviceType string, start, end time.Time) float64 {
	days := int(end.Sub(start).Hours() / 24)
	if days < 1 {
		days = 1
	}

	switch serviceType {
	case models.ServiceTypeBoarding:
		return float64(days) * caregiver.PricePerNight
	case models.ServiceTypeDaycare:
		return float64(days) * caregiver.PricePerDay
	case models.ServiceTypeWalking:
		return float64(days) * caregiver.PricePerWalk
	}
	return 0
}

// getBookingForUser loads the booking and enforces visibility: owner,
// caregiver or admin. forUpdate keeps associations loaded for notifications.
func getBookingForUser(ctx iris.Context, user *models.User, forUpdate bool) *models.Booking {
	id := ctx.Params().Get("id")

	var booking models.Booking
	query := storage.DB.Preload("Pet").Preload("Caregiver").Preload("Caregiver.User")
	bookingExists := query.Where("id = ?", id).Find(&booking)
	if bookingExists.Error != nil {
		utils.CreateInternalServerError(ctx)
		return nil
	}
	if bookingExists.RowsAffected == 0 {
		utils.CreateNotFound(ctx, "booking not found")
		return nil
	}

	if user.IsAdmin() || booking.OwnerID == user.ID || booking.Caregiver.UserID == user.ID {
		return &booking
	}

	utils.CreateForbidden(ctx, "not your booking")
	return nil
}

func bookingEmailDetails(booking *models.Booking, pet *models.Pet, owner *models.User, caregiver *models.CaregiverProfile) services.BookingDetails {
	caregiverName := caregiver.User.FullName
	return services.BookingDetails{
		BookingID:     booking.ID,
		PetName:       pet.Name,
		ServiceType:   booking.ServiceType,
		StartDate:     booking.StartDate.Format("2006-01-02"),
		EndDate:       booking.EndDate.Format("2006-01-02"),
		OwnerName:     owner.FullName,
		CaregiverName: caregiverName,
		TotalPrice:    booking.TotalPrice,
		Currency:      defaultCurrency(),
	}
}

type CreateBookingInput struct {
	PetID               uint      `json:"petID" validate:"required"`
	CaregiverID         uint      `json:"caregiverID" validate:"required"`
	ServiceType         string    `json:"serviceType" validate:"required"`
	StartDate           time.Time `json:"startDate" validate:"required"`
	EndDate             time.Time `json:"endDate" validate:"required"`
	SpecialInstructions string    `json:"specialInstructions"`
}

type UpdateBookingStatusInput struct {
	Status string `json:"status" validate:"required"`
}
