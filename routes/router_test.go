package routes

import (
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/middleware/jwt"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/arifmarias/petbnb/models"
	"github.com/arifmarias/petbnb/services"
	"github.com/arifmarias/petbnb/storage"
	"github.com/arifmarias/petbnb/utils"
)

// setupTestDB swaps the global DB for an in-memory sqlite instance and quiets
// outbound email for the duration of the test.
func setupTestDB(t *testing.T) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	// A second pool connection to :memory: would be a fresh empty database;
	// pin the pool so concurrent handlers share the one that was migrated.
	if sqlDB, dbErr := db.DB(); dbErr == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(
		&models.User{}, &models.Pet{}, &models.CaregiverProfile{},
		&models.Booking{}, &models.Payment{}, &models.Review{},
		&models.ChatRoom{}, &models.ChatRoomParticipant{},
		&models.Message{}, &models.MessageReadStatus{}, &models.Image{},
	); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}

	prevDB := storage.DB
	storage.DB = db
	prevNotifier := services.NotificationServiceInstance
	services.NotificationServiceInstance = services.NewNotificationServiceWithMailer(discardMailer{})
	t.Cleanup(func() {
		storage.DB = prevDB
		services.NotificationServiceInstance = prevNotifier
	})
}

type discardMailer struct{}

func (discardMailer) Send(to, subject, htmlBody string) error { return nil }

// buildTestApp mounts the booking and payment routes behind the real access
// token verifier.
func buildTestApp() *iris.Application {
	os.Setenv("ACCESS_TOKEN_SECRET", "testsecret")
	app := iris.New()
	app.Validator = validator.New()

	accessTokenVerifier := jwt.NewVerifier(jwt.HS256, []byte(os.Getenv("ACCESS_TOKEN_SECRET")))
	accessTokenVerifierMiddleware := accessTokenVerifier.Verify(func() interface{} { return new(utils.AccessToken) })

	bookings := app.Party("/api/bookings", accessTokenVerifierMiddleware)
	{
		bookings.Post("/", CreateBooking)
		bookings.Get("/{id:uint}", GetBooking)
		bookings.Patch("/{id:uint}/status", UpdateBookingStatus)
		bookings.Post("/{id:uint}/cancel", CancelBooking)
		bookings.Post("/{id:uint}/payment-intent", CreatePaymentIntent)
	}

	payments := app.Party("/api/payments")
	{
		payments.Post("/webhook", StripeWebhook)
		payments.Post("/{id:uint}/refund", accessTokenVerifierMiddleware, RefundPayment)
		payments.Get("/{id:uint}/refunds", accessTokenVerifierMiddleware, GetPaymentRefunds)
	}

	chat := app.Party("/api/chat", accessTokenVerifierMiddleware)
	{
		chat.Post("/rooms", CreateChatRoom)
		chat.Get("/rooms", GetMyChatRooms)
		chat.Get("/rooms/{id:uint}/messages", GetChatHistory)
		chat.Post("/rooms/{id:uint}/read", MarkMessagesRead)
	}

	// Websocket does its own token handling.
	app.Get("/api/chat/rooms/{id:uint}/ws", ChatWebSocket)

	if err := app.Build(); err != nil {
		panic(err)
	}
	return app
}

func signTestToken(user *models.User) string {
	signer := jwt.NewSigner(jwt.HS256, os.Getenv("ACCESS_TOKEN_SECRET"), time.Hour)
	token, _ := signer.Sign(utils.AccessToken{ID: user.ID, Role: user.Role})
	return string(token)
}

func createTestUser(t *testing.T, email, userType, role string) *models.User {
	t.Helper()
	user := models.User{
		Email:    email,
		Password: "x",
		FullName: email,
		UserType: userType,
		Role:     role,
	}
	if err := storage.DB.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return &user
}

func createTestCaregiver(t *testing.T, user *models.User) *models.CaregiverProfile {
	t.Helper()
	offered, _ := json.Marshal([]string{models.ServiceTypeBoarding, models.ServiceTypeWalking})
	accepted, _ := json.Marshal([]string{models.PetTypeDog, models.PetTypeCat})
	profile := models.CaregiverProfile{
		UserID:           user.ID,
		ServicesOffered:  datatypes.JSON(offered),
		AcceptedPetTypes: datatypes.JSON(accepted),
		PricePerNight:    50,
		PricePerWalk:     15,
		PricePerDay:      40,
	}
	if err := storage.DB.Create(&profile).Error; err != nil {
		t.Fatalf("create caregiver profile: %v", err)
	}
	return &profile
}

func createTestBooking(t *testing.T, owner *models.User, caregiver *models.CaregiverProfile, status string, start, end time.Time) *models.Booking {
	t.Helper()
	pet := models.Pet{OwnerID: owner.ID, Name: "Rex", PetType: models.PetTypeDog}
	if err := storage.DB.Create(&pet).Error; err != nil {
		t.Fatalf("create pet: %v", err)
	}
	booking := models.Booking{
		PetID:       pet.ID,
		OwnerID:     owner.ID,
		CaregiverID: caregiver.ID,
		ServiceType: models.ServiceTypeBoarding,
		StartDate:   start,
		EndDate:     end,
		Status:      status,
		TotalPrice:  100,
	}
	if err := storage.DB.Create(&booking).Error; err != nil {
		t.Fatalf("create booking: %v", err)
	}
	return &booking
}

// stubProcessor decodes the webhook payload directly as a WebhookEvent and
// records intent/refund calls.
type stubProcessor struct {
	intentCalls  int
	refundCalls  int
	failIntent   bool
	failRefund   bool
	failVerify   bool
	lastMetadata map[string]string
}

func (s *stubProcessor) CreatePaymentIntent(amount float64, currency string, metadata map[string]string) (*services.PaymentIntent, error) {
	s.intentCalls++
	s.lastMetadata = metadata
	if s.failIntent {
		return nil, fmt.Errorf("stripe unavailable")
	}
	return &services.PaymentIntent{
		ID:           fmt.Sprintf("pi_test_%d", s.intentCalls),
		ClientSecret: fmt.Sprintf("pi_test_%d_secret", s.intentCalls),
	}, nil
}

func (s *stubProcessor) CreateRefund(paymentIntentID string, amount float64, reason string) (*services.RefundResult, error) {
	s.refundCalls++
	if s.failRefund {
		return nil, fmt.Errorf("stripe unavailable")
	}
	return &services.RefundResult{ID: fmt.Sprintf("re_test_%d", s.refundCalls)}, nil
}

func (s *stubProcessor) VerifyWebhook(payload []byte, signature string) (*services.WebhookEvent, error) {
	if s.failVerify {
		return nil, fmt.Errorf("bad signature")
	}
	var event services.WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

func useStubProcessor(t *testing.T) *stubProcessor {
	t.Helper()
	stub := &stubProcessor{}
	prev := services.Processor
	services.Processor = stub
	t.Cleanup(func() { services.Processor = prev })
	return stub
}
