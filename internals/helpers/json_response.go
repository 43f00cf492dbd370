// file: internals/helpers/json_response.go
package helper

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// ExposeErrorDetails adds wrapped causes to error bodies. Only set in development.
var ExposeErrorDetails bool

/* ===============================
   Error helpers (standard shape)
=================================*/

type ErrorResponse struct {
	Success   bool                `json:"success"`
	Error     string              `json:"error"`
	ErrorCode string              `json:"error_code,omitempty"`
	Details   string              `json:"details,omitempty"`
	Errors    map[string][]string `json:"errors,omitempty"`
}

// HTTPError is implemented by domain errors that know their transport status.
type HTTPError interface {
	error
	HTTPStatus() int
	PublicMessage() string
}

func statusToErrorCode(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return "BAD_REQUEST"
	case fiber.StatusUnauthorized:
		return "UNAUTHORIZED"
	case fiber.StatusForbidden:
		return "FORBIDDEN"
	case fiber.StatusNotFound:
		return "NOT_FOUND"
	case fiber.StatusUnprocessableEntity:
		return "VALIDATION_ERROR"
	case fiber.StatusConflict:
		return "CONFLICT"
	default:
		if status >= 500 {
			return "INTERNAL_ERROR"
		}
		return "ERROR"
	}
}

// JsonError: generic error with {success:false, error}.
func JsonError(c *fiber.Ctx, status int, message string) error {
	return JsonErrorDetail(c, status, message, nil)
}

// JsonErrorDetail is JsonError plus the cause when ExposeErrorDetails is on.
func JsonErrorDetail(c *fiber.Ctx, status int, message string, cause error) error {
	if status == 0 {
		status = fiber.StatusInternalServerError
	}
	if strings.TrimSpace(message) == "" {
		message = fiber.ErrInternalServerError.Message
		if fe := fiber.NewError(status); fe.Message != "" {
			message = fe.Message
		}
	}

	resp := ErrorResponse{
		Success:   false,
		Error:     message,
		ErrorCode: statusToErrorCode(status),
	}
	if ExposeErrorDetails && cause != nil {
		resp.Details = cause.Error()
	}
	return c.Status(status).JSON(resp)
}

// JsonFromError maps domain and fiber errors to the standard error body.
func JsonFromError(c *fiber.Ctx, err error) error {
	var he HTTPError
	if errors.As(err, &he) {
		return JsonErrorDetail(c, he.HTTPStatus(), he.PublicMessage(), err)
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return JsonError(c, fe.Code, fe.Message)
	}
	return JsonErrorDetail(c, fiber.StatusInternalServerError, "internal server error", err)
}

// JsonValidationError: field-level validation failures (400).
func JsonValidationError(c *fiber.Ctx, fieldErrors map[string][]string) error {
	if fieldErrors == nil {
		fieldErrors = map[string][]string{}
	}
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
		Success:   false,
		Error:     "validation failed",
		ErrorCode: "VALIDATION_ERROR",
		Errors:    fieldErrors,
	})
}

// FieldErrors flattens validator.ValidationErrors into field -> failed tags.
func FieldErrors(err error) map[string][]string {
	out := map[string][]string{}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		out["_"] = []string{err.Error()}
		return out
	}
	for _, fe := range ve {
		out[fe.Field()] = append(out[fe.Field()], fe.Tag())
	}
	return out
}

/* ===============================
   JSON responses (standard success)
=================================*/

// JsonOK writes body as-is with 200. Payment routes keep their flat documented shapes.
func JsonOK(c *fiber.Ctx, body any) error {
	return c.Status(fiber.StatusOK).JSON(body)
}

// JsonSuccess: {success:true} ack used by webhook routes.
func JsonSuccess(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"success": true})
}
