package main

import (
	"fmt"
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/middleware/jwt"

	"github.com/arifmarias/petbnb/routes"
	"github.com/arifmarias/petbnb/services"
	"github.com/arifmarias/petbnb/storage"
	"github.com/arifmarias/petbnb/utils"
)

func main() {
	// Only load .env in development
	if os.Getenv("RENDER") == "" {
		godotenv.Load()
	}

	// Initialize services
	storage.InitializeDB()
	storage.InitializeRedis()
	storage.InitializeCloudinary()
	services.InitializeStripe()

	app := iris.New()
	app.Validator = validator.New()

	// CORS configuration
	app.AllowMethods(iris.MethodOptions)
	app.UseRouter(func(ctx iris.Context) {
		ctx.Header("Access-Control-Allow-Origin", ctx.GetHeader("Origin"))
		ctx.Header("Vary", "Origin")
		ctx.Header("Access-Control-Allow-Credentials", "true")
		ctx.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Requested-With, Stripe-Signature")
		ctx.Header("Access-Control-Allow-Methods", "GET,POST,PATCH,PUT,DELETE,OPTIONS")
		if ctx.Method() == iris.MethodOptions {
			ctx.StatusCode(iris.StatusNoContent)
			return
		}
		ctx.Next()
	})

	// Minimal middleware - compression only
	app.Use(iris.Compression)

	// JWT Verifiers
	accessTokenVerifier := jwt.NewVerifier(jwt.HS256, []byte(os.Getenv("ACCESS_TOKEN_SECRET")))
	accessTokenVerifier.WithDefaultBlocklist()
	accessTokenVerifierMiddleware := accessTokenVerifier.Verify(func() interface{} {
		return new(utils.AccessToken)
	})

	refreshTokenVerifier := jwt.NewVerifier(jwt.HS256, []byte(os.Getenv("REFRESH_TOKEN_SECRET")))
	refreshTokenVerifier.WithDefaultBlocklist()
	refreshTokenVerifierMiddleware := refreshTokenVerifier.Verify(func() interface{} {
		return new(jwt.Claims)
	})

	refreshTokenVerifier.Extractors = append(refreshTokenVerifier.Extractors, func(ctx iris.Context) string {
		var tokenInput utils.RefreshTokenInput
		err := ctx.ReadJSON(&tokenInput)
		if err != nil {
			return ""
		}
		return tokenInput.RefreshToken
	})

	// Health check endpoint
	app.Get("/health", func(ctx iris.Context) {
		ctx.JSON(iris.Map{"status": "ok"})
	})

	// Routes
	auth := app.Party("/api/auth")
	{
		auth.Post("/register", routes.Register)
		auth.Post("/login", routes.Login)
		auth.Post("/google", routes.GoogleLoginOrSignUp)
		auth.Post("/verify-email", routes.VerifyEmail)
		auth.Post("/forgotpassword", routes.ForgotPassword)
		auth.Post("/resetpassword", routes.ResetPassword)
		auth.Post("/refresh", refreshTokenVerifierMiddleware, utils.RefreshToken)
	}

	user := app.Party("/api/user")
	{
		user.Get("/me", accessTokenVerifierMiddleware, utils.UserIDFromTokenMiddleware, routes.GetCurrentUser)
		user.Patch("/me", accessTokenVerifierMiddleware, utils.UserIDFromTokenMiddleware, routes.UpdateCurrentUser)
		user.Delete("/me", accessTokenVerifierMiddleware, utils.UserIDFromTokenMiddleware, routes.DeactivateCurrentUser)
		user.Get("/{id:uint}", accessTokenVerifierMiddleware, routes.GetUserByID)
	}

	pets := app.Party("/api/pets", accessTokenVerifierMiddleware)
	{
		pets.Post("/", routes.CreatePet)
		pets.Get("/", routes.GetMyPets)
		pets.Get("/{id:uint}", routes.GetPet)
		pets.Put("/{id:uint}", routes.UpdatePet)
		pets.Delete("/{id:uint}", routes.DeletePet)
	}

	caregivers := app.Party("/api/caregivers")
	{
		caregivers.Get("/search", routes.SearchCaregivers)
		caregivers.Post("/profile", accessTokenVerifierMiddleware, routes.CreateCaregiverProfile)
		caregivers.Put("/profile", accessTokenVerifierMiddleware, routes.UpdateCaregiverProfile)
		caregivers.Get("/profile", accessTokenVerifierMiddleware, routes.GetMyCaregiverProfile)
		caregivers.Get("/{id:uint}", routes.GetCaregiver)
		caregivers.Get("/{id:uint}/reviews", routes.GetCaregiverReviews)
	}

	bookings := app.Party("/api/bookings", accessTokenVerifierMiddleware)
	{
		bookings.Post("/", routes.CreateBooking)
		bookings.Get("/", routes.GetMyBookings)
		bookings.Get("/{id:uint}", routes.GetBooking)
		bookings.Patch("/{id:uint}/status", routes.UpdateBookingStatus)
		bookings.Post("/{id:uint}/cancel", routes.CancelBooking)
		bookings.Post("/{id:uint}/payment-intent", routes.CreatePaymentIntent)
		bookings.Get("/{id:uint}/payments", routes.GetBookingPayments)
		bookings.Get("/{id:uint}/review", routes.GetBookingReview)
	}

	payments := app.Party("/api/payments")
	{
		payments.Post("/webhook", routes.StripeWebhook)
		payments.Get("/history", accessTokenVerifierMiddleware, routes.GetPaymentHistory)
		payments.Post("/{id:uint}/refund", accessTokenVerifierMiddleware, routes.RefundPayment)
		payments.Get("/{id:uint}/refunds", accessTokenVerifierMiddleware, routes.GetPaymentRefunds)
	}

	reviews := app.Party("/api/reviews", accessTokenVerifierMiddleware)
	{
		reviews.Post("/", routes.CreateReview)
	}

	chat := app.Party("/api/chat")
	{
		chat.Post("/rooms", accessTokenVerifierMiddleware, routes.CreateChatRoom)
		chat.Get("/rooms", accessTokenVerifierMiddleware, routes.GetMyChatRooms)
		chat.Get("/rooms/{id:uint}/messages", accessTokenVerifierMiddleware, routes.GetChatHistory)
		chat.Post("/rooms/{id:uint}/read", accessTokenVerifierMiddleware, routes.MarkMessagesRead)
		chat.Post("/rooms/{id:uint}/typing", accessTokenVerifierMiddleware, routes.SetTypingStatus)
		chat.Get("/rooms/{id:uint}/typing", accessTokenVerifierMiddleware, routes.GetTypingStatus)
		// Websocket does its own token handling (query param or header).
		chat.Get("/rooms/{id:uint}/ws", routes.ChatWebSocket)
	}

	images := app.Party("/api/images")
	{
		images.Post("/", accessTokenVerifierMiddleware, routes.UploadImage)
		images.Get("/{entityType}/{entityID:uint}", routes.GetEntityImages)
		images.Delete("/{id:uint}", accessTokenVerifierMiddleware, routes.DeleteImage)
	}

	// Get port from environment
	port := os.Getenv("PORT")
	if port == "" {
		port = "4000"
	}
	addr := "0.0.0.0:" + port

	fmt.Printf("Server starting on %s\n", addr)

	// Start server
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
