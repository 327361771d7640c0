package utils

import (
	"github.com/go-playground/validator/v10"
	"github.com/kataras/iris/v12"
)

// Stable machine-checkable error kinds surfaced in the "error" field.
const (
	ErrNotFound        = "not_found"
	ErrForbidden       = "forbidden"
	ErrInvalidState    = "invalid_state"
	ErrValidation      = "validation_error"
	ErrExternalService = "external_service_error"
	ErrAuthentication  = "authentication_error"
	ErrInternal        = "internal_error"
)

type PageMeta struct {
	Page    int   `json:"page"`
	PerPage int   `json:"per_page"`
	Total   int64 `json:"total"`
}

func JSONPage(ctx iris.Context, data interface{}, page, perPage int, total int64) {
	ctx.JSON(iris.Map{
		"data": data,
		"meta": PageMeta{Page: page, PerPage: perPage, Total: total},
	})
}

func JSONError(ctx iris.Context, status int, code, message string) {
	ctx.StatusCode(status)
	ctx.JSON(iris.Map{"error": code, "message": message})
}

func CreateNotFound(ctx iris.Context, message string) {
	JSONError(ctx, iris.StatusNotFound, ErrNotFound, message)
}

func CreateForbidden(ctx iris.Context, message string) {
	JSONError(ctx, iris.StatusForbidden, ErrForbidden, message)
}

// CreateInvalidState reports an operation that is not valid for the entity's
// current lifecycle state (e.g. paying a cancelled booking).
func CreateInvalidState(ctx iris.Context, message string) {
	JSONError(ctx, iris.StatusConflict, ErrInvalidState, message)
}

func CreateValidationError(ctx iris.Context, message string) {
	JSONError(ctx, iris.StatusBadRequest, ErrValidation, message)
}

func CreateExternalServiceError(ctx iris.Context, message string) {
	JSONError(ctx, iris.StatusBadGateway, ErrExternalService, message)
}

func CreateAuthenticationError(ctx iris.Context, message string) {
	JSONError(ctx, iris.StatusUnauthorized, ErrAuthentication, message)
}

func CreateEmailAlreadyRegistered(ctx iris.Context) {
	JSONError(ctx, iris.StatusConflict, ErrValidation, "email already registered")
}

func CreateInternalServerError(ctx iris.Context) {
	JSONError(ctx, iris.StatusInternalServerError, ErrInternal, "an internal error occurred")
}

// HandleValidationErrors translates ReadJSON/validator failures into a
// field-level error response.
func HandleValidationErrors(err error, ctx iris.Context) {
	if errs, ok := err.(validator.ValidationErrors); ok {
		fields := make([]iris.Map, 0, len(errs))
		for _, fieldErr := range errs {
			fields = append(fields, iris.Map{
				"field": fieldErr.Field(),
				"tag":   fieldErr.Tag(),
				"value": fieldErr.Param(),
			})
		}
		ctx.StatusCode(iris.StatusBadRequest)
		ctx.JSON(iris.Map{"error": ErrValidation, "message": "validation failed", "fields": fields})
		return
	}
	CreateValidationError(ctx, err.Error())
}
