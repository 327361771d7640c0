package routes

import (
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
	"github.com/kataras/iris/v12"
	jsonWT "github.com/kataras/iris/v12/middleware/jwt"
	"golang.org/x/crypto/bcrypt"

	"github.com/arifmarias/petbnb/models"
	"github.com/arifmarias/petbnb/services"
	"github.com/arifmarias/petbnb/storage"
	"github.com/arifmarias/petbnb/utils"
)

const googleJWKSEndpoint = "https://www.googleapis.com/oauth2/v3/certs"

func Register(ctx iris.Context) {
	var userInput RegisterUserInput
	err := ctx.ReadJSON(&userInput)
	if err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	if userInput.UserType != "owner" && userInput.UserType != "caregiver" {
		utils.CreateValidationError(ctx, "userType must be owner or caregiver")
		return
	}

	var newUser models.User
	userExists, userExistsErr := getAndHandleUserExists(&newUser, userInput.Email)
	if userExistsErr != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	if userExists {
		utils.CreateEmailAlreadyRegistered(ctx)
		return
	}

	hashedPassword, hashErr := hashAndSaltPassword(userInput.Password)
	if hashErr != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	newUser = models.User{
		Email:       strings.ToLower(userInput.Email),
		Password:    hashedPassword,
		FullName:    userInput.FullName,
		Phone:       userInput.Phone,
		Address:     userInput.Address,
		UserType:    userInput.UserType,
		Role:        "user",
		SocialLogin: false,
	}

	if err := storage.DB.Create(&newUser).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	verificationToken, tokenErr := utils.CreateVerificationToken(newUser.ID, newUser.Email)
	if tokenErr == nil {
		storage.DB.Model(&newUser).Update("verification_token", verificationToken)
		go services.NotificationServiceInstance.SendVerificationEmail(newUser.Email, verificationToken)
	}

	returnUser(newUser, ctx)
}

func Login(ctx iris.Context) {
	var userInput LoginUserInput
	err := ctx.ReadJSON(&userInput)
	if err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	var existingUser models.User
	errorMsg := "invalid email or password"
	userExists, userExistsErr := getAndHandleUserExists(&existingUser, userInput.Email)
	if userExistsErr != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	if !userExists {
		utils.CreateAuthenticationError(ctx, errorMsg)
		return
	}

	if existingUser.SocialLogin {
		utils.CreateAuthenticationError(ctx, "social login account")
		return
	}

	passwordErr := bcrypt.CompareHashAndPassword([]byte(existingUser.Password), []byte(userInput.Password))
	if passwordErr != nil {
		utils.CreateAuthenticationError(ctx, errorMsg)
		return
	}

	if !existingUser.Active() {
		utils.CreateForbidden(ctx, "account is deactivated")
		return
	}

	now := time.Now()
	storage.DB.Model(&existingUser).Update("last_login", now)
	existingUser.LastLogin = &now

	returnUser(existingUser, ctx)
}

// GoogleLoginOrSignUp verifies a Google ID token against Google's published
// JWKS, then signs the user in, creating the account on first sight.
func GoogleLoginOrSignUp(ctx iris.Context) {
	var userInput GoogleUserInput
	err := ctx.ReadJSON(&userInput)
	if err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	res, httpErr := http.Get(googleJWKSEndpoint)
	if httpErr != nil {
		utils.CreateExternalServiceError(ctx, "could not reach identity provider")
		return
	}
	defer res.Body.Close()

	body, bodyErr := io.ReadAll(res.Body)
	if bodyErr != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	jwks, jwksErr := keyfunc.NewJSON(body)
	if jwksErr != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	token, tokenErr := jwt.Parse(userInput.IDToken, jwks.Keyfunc)
	if tokenErr != nil || !token.Valid {
		utils.CreateAuthenticationError(ctx, "invalid identity token")
		return
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		utils.CreateAuthenticationError(ctx, "invalid identity token")
		return
	}

	email, _ := claims["email"].(string)
	if email == "" {
		utils.CreateAuthenticationError(ctx, "identity token has no email")
		return
	}

	var user models.User
	userExists, userExistsErr := getAndHandleUserExists(&user, email)
	if userExistsErr != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	if !userExists {
		name, _ := claims["name"].(string)
		picture, _ := claims["picture"].(string)
		userType := userInput.UserType
		if userType != "caregiver" {
			userType = "owner"
		}

		verified := true
		user = models.User{
			Email:          strings.ToLower(email),
			FullName:       name,
			UserType:       userType,
			Role:           "user",
			SocialLogin:    true,
			SocialProvider: "Google",
			IsVerified:     &verified,
			ProfilePicture: picture,
		}
		if err := storage.DB.Create(&user).Error; err != nil {
			utils.CreateInternalServerError(ctx)
			return
		}

		returnUser(user, ctx)
		return
	}

	if user.SocialLogin && user.SocialProvider == "Google" {
		if !user.Active() {
			utils.CreateForbidden(ctx, "account is deactivated")
			return
		}
		returnUser(user, ctx)
		return
	}

	utils.CreateEmailAlreadyRegistered(ctx)
}

// VerifyEmail consumes the token mailed at registration. The token is both a
// signed JWT (so it expires) and checked against the stored copy (so it is
// single use).
func VerifyEmail(ctx iris.Context) {
	var input VerifyEmailInput
	err := ctx.ReadJSON(&input)
	if err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	verifiedToken, verifyErr := emailTokenVerifier().VerifyToken([]byte(input.Token))
	if verifyErr != nil {
		utils.CreateAuthenticationError(ctx, "invalid or expired verification token")
		return
	}

	var claims utils.VerificationToken
	if err := verifiedToken.Claims(&claims); err != nil {
		utils.CreateAuthenticationError(ctx, "invalid or expired verification token")
		return
	}

	var user models.User
	if err := storage.DB.First(&user, claims.ID).Error; err != nil {
		utils.CreateNotFound(ctx, "user not found")
		return
	}

	if user.Verified() {
		ctx.JSON(iris.Map{"verified": true})
		return
	}

	if user.VerificationToken != input.Token {
		utils.CreateAuthenticationError(ctx, "invalid or expired verification token")
		return
	}

	verified := true
	updates := map[string]interface{}{
		"is_verified":        &verified,
		"verification_token": "",
	}
	if err := storage.DB.Model(&user).Updates(updates).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.JSON(iris.Map{"verified": true})
}

func ForgotPassword(ctx iris.Context) {
	var emailInput EmailRegisteredInput
	err := ctx.ReadJSON(&emailInput)
	if err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	var user models.User
	userExists, userExistsErr := getAndHandleUserExists(&user, emailInput.Email)
	if userExistsErr != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	// Same response either way so the endpoint cannot be used to probe for
	// registered addresses.
	if userExists && !user.SocialLogin {
		token, tokenErr := utils.CreateForgotPasswordToken(user.ID, user.Email)
		if tokenErr == nil {
			storage.DB.Model(&user).Update("reset_token", token)
			go services.NotificationServiceInstance.SendResetPasswordEmail(user.Email, token)
		}
	}

	ctx.JSON(iris.Map{"emailSent": true})
}

func ResetPassword(ctx iris.Context) {
	var input ResetPasswordInput
	err := ctx.ReadJSON(&input)
	if err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	verifiedToken, verifyErr := emailTokenVerifier().VerifyToken([]byte(input.Token))
	if verifyErr != nil {
		utils.CreateAuthenticationError(ctx, "invalid or expired reset token")
		return
	}

	var claims utils.ForgotPasswordToken
	if err := verifiedToken.Claims(&claims); err != nil {
		utils.CreateAuthenticationError(ctx, "invalid or expired reset token")
		return
	}

	var user models.User
	if err := storage.DB.First(&user, claims.ID).Error; err != nil {
		utils.CreateNotFound(ctx, "user not found")
		return
	}

	if user.ResetToken == "" || user.ResetToken != input.Token {
		utils.CreateAuthenticationError(ctx, "invalid or expired reset token")
		return
	}

	hashedPassword, hashErr := hashAndSaltPassword(input.Password)
	if hashErr != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	updates := map[string]interface{}{
		"password":    hashedPassword,
		"reset_token": "",
	}
	if err := storage.DB.Model(&user).Updates(updates).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.JSON(iris.Map{"passwordReset": true})
}

func emailTokenVerifier() *jsonWT.Verifier {
	return jsonWT.NewVerifier(jsonWT.HS256, []byte(os.Getenv("EMAIL_TOKEN_SECRET")))
}

func getAndHandleUserExists(user *models.User, email string) (exists bool, err error) {
	userExistsQuery := storage.DB.Where("email = ?", strings.ToLower(email)).Limit(1).Find(&user)

	if userExistsQuery.Error != nil {
		return false, userExistsQuery.Error
	}

	return userExistsQuery.RowsAffected > 0, nil
}

func hashAndSaltPassword(password string) (hashedPassword string, err error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}

	return string(bytes), nil
}

func returnUser(user models.User, ctx iris.Context) {
	tokenPair, tokenErr := utils.CreateTokenPair(user.ID)
	if tokenErr != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.JSON(iris.Map{
		"ID":           user.ID,
		"email":        user.Email,
		"fullName":     user.FullName,
		"userType":     user.UserType,
		"role":         user.Role,
		"isVerified":   user.Verified(),
		"accessToken":  string(tokenPair.AccessToken),
		"refreshToken": string(tokenPair.RefreshToken),
	})
}

type RegisterUserInput struct {
	Email    string `json:"email" validate:"required,max=256,email"`
	Password string `json:"password" validate:"required,min=8,max=256"`
	FullName string `json:"fullName" validate:"required,max=256"`
	Phone    string `json:"phone" validate:"max=50"`
	Address  string `json:"address" validate:"max=1024"`
	UserType string `json:"userType" validate:"required"`
}

type LoginUserInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type GoogleUserInput struct {
	IDToken  string `json:"idToken" validate:"required"`
	UserType string `json:"userType"`
}

type VerifyEmailInput struct {
	Token string `json:"token" validate:"required"`
}

type EmailRegisteredInput struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordInput struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8,max=256"`
}
