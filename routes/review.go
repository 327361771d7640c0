package routes

import (
	"time"

	"github.com/kataras/iris/v12"
	"gorm.io/gorm"

	"github.com/arifmarias/petbnb/models"
	"github.com/arifmarias/petbnb/services"
	"github.com/arifmarias/petbnb/storage"
	"github.com/arifmarias/petbnb/utils"
)

func CreateReview(ctx iris.Context) {
	user := currentUser(ctx)
	if user == nil {
		return
	}

	var input CreateReviewInput
	err := ctx.ReadJSON(&input)
	if err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	var booking models.Booking
	bookingExists := storage.DB.Preload("Pet").Preload("Caregiver").Preload("Caregiver.User").
		Where("id = ?", input.BookingID).Find(&booking)
	if bookingExists.Error != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	if bookingExists.RowsAffected == 0 {
		utils.CreateNotFound(ctx, "booking not found")
		return
	}

	if !models.CanReviewBooking(&booking, user, time.Now()) {
		if booking.OwnerID != user.ID {
			utils.CreateForbidden(ctx, "only the booking owner can review it")
			return
		}
		if booking.Status != models.BookingStatusCompleted {
			utils.CreateInvalidState(ctx, "only completed bookings can be reviewed")
			return
		}
		if time.Now().Before(booking.EndDate) {
			utils.CreateInvalidState(ctx, "the booking can be reviewed once it has ended")
			return
		}
		utils.CreateInvalidState(ctx, "the review window for this booking has closed")
		return
	}

	var existing models.Review
	found := storage.DB.Where("booking_id = ?", booking.ID).Limit(1).Find(&existing)
	if found.Error != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	if found.RowsAffected > 0 {
		utils.CreateInvalidState(ctx, "booking already reviewed")
		return
	}

	review := models.Review{
		BookingID:   booking.ID,
		CaregiverID: booking.CaregiverID,
		ReviewerID:  user.ID,
		Rating:      input.Rating,
		Comment:     input.Comment,
	}

	txErr := storage.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&review).Error; err != nil {
			return err
		}
		return recomputeCaregiverRating(tx, booking.CaregiverID)
	})
	if txErr != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	details := bookingEmailDetails(&booking, &booking.Pet, user, &booking.Caregiver)
	go services.NotificationServiceInstance.SendReviewNotification(
		booking.Caregiver.User.Email, details, review.Rating, review.Comment, user.FullName)

	ctx.StatusCode(iris.StatusCreated)
	ctx.JSON(review)
}

func GetCaregiverReviews(ctx iris.Context) {
	id := ctx.Params().Get("id")
	page := ctx.URLParamIntDefault("page", 1)
	perPage := ctx.URLParamIntDefault("per_page", 20)
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	var caregiver models.CaregiverProfile
	caregiverExists := storage.DB.Where("id = ?", id).Find(&caregiver)
	if caregiverExists.Error != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	if caregiverExists.RowsAffected == 0 {
		utils.CreateNotFound(ctx, "caregiver not found")
		return
	}

	query := storage.DB.Model(&models.Review{}).Where("caregiver_id = ?", caregiver.ID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	var reviews []models.Review
	if err := query.Preload("Reviewer").Order("created_at DESC").
		Offset((page - 1) * perPage).Limit(perPage).
		Find(&reviews).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	utils.JSONPage(ctx, reviews, page, perPage, total)
}

func GetBookingReview(ctx iris.Context) {
	user := currentUser(ctx)
	if user == nil {
		return
	}

	booking := getBookingForUser(ctx, user, false)
	if booking == nil {
		return
	}

	var review models.Review
	found := storage.DB.Preload("Reviewer").Where("booking_id = ?", booking.ID).Limit(1).Find(&review)
	if found.Error != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	if found.RowsAffected == 0 {
		utils.CreateNotFound(ctx, "booking has no review")
		return
	}

	ctx.JSON(review)
}

// recomputeCaregiverRating rebuilds the caregiver's aggregate from the review
// rows rather than adjusting increments, so it self-heals after deletions.
func recomputeCaregiverRating(tx *gorm.DB, caregiverID uint) error {
	type aggregate struct {
		Average float64
		Count   int64
	}
	var agg aggregate
	if err := tx.Model(&models.Review{}).
		Where("caregiver_id = ?", caregiverID).
		Select("COALESCE(AVG(rating), 0) AS average, COUNT(*) AS count").
		Scan(&agg).Error; err != nil {
		return err
	}

	return tx.Model(&models.CaregiverProfile{}).
		Where("id = ?", caregiverID).
		Updates(map[string]interface{}{
			"rating":        agg.Average,
			"total_reviews": agg.Count,
		}).Error
}

type CreateReviewInput struct {
	BookingID uint   `json:"bookingID" validate:"required"`
	Rating    int    `json:"rating" validate:"required,gte=1,lte=5"`
	Comment   string `json:"comment" validate:"max=4000"`
}
