package errors

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"github.com/aihub/support-rag/internal/ledger"
)

// Translate 将各层返回的错误转换为AppError
func Translate(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		return translateValidationErrors(validationErrors)
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return NewNotFoundError("Record").WithCause(err)
	case errors.Is(err, ledger.ErrIndexOutOfRange),
		errors.Is(err, ledger.ErrInvalidRange),
		errors.Is(err, ledger.ErrTurnNotFound):
		return NewBusinessError(ErrCodeInvalidState, "Invalid conversation edit").WithCause(err)
	case errors.Is(err, context.DeadlineExceeded):
		return NewSystemError(ErrCodeTimeout, "Operation timed out").WithCause(err)
	case errors.Is(err, context.Canceled):
		return NewBusinessError(ErrCodeBadRequest, "Request canceled").WithCause(err)
	}

	var netErr *net.OpError
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return NewSystemError(ErrCodeTimeout, "Operation timed out").WithCause(err)
		}
		return NewSystemError(ErrCodeExternalService, "Network error").WithCause(err)
	}

	if isDatabaseError(err) {
		return translateDatabaseError(err)
	}

	return NewSystemError(ErrCodeInternalServer, "Internal server error").WithCause(err)
}

func translateValidationErrors(validationErrors validator.ValidationErrors) *AppError {
	details := make([]map[string]interface{}, 0, len(validationErrors))
	for _, fieldError := range validationErrors {
		details = append(details, map[string]interface{}{
			"field":   fieldError.Field(),
			"tag":     fieldError.Tag(),
			"message": validationMessage(fieldError),
		})
	}
	return NewValidationError("Validation failed").WithDetails(map[string]interface{}{
		"errors": details,
	})
}

func translateDatabaseError(err error) *AppError {
	errMsg := err.Error()

	switch {
	case strings.Contains(errMsg, "duplicate key value"), strings.Contains(errMsg, "violates unique constraint"):
		return NewBusinessError(ErrCodeConflict, "Resource already exists").WithCause(err)
	case strings.Contains(errMsg, "violates not-null constraint"):
		return NewBusinessError(ErrCodeBadRequest, "Required field is missing").WithCause(err)
	case strings.Contains(errMsg, "different vector dimensions"), strings.Contains(errMsg, "expected") && strings.Contains(errMsg, "dimensions"):
		return NewBusinessError(ErrCodeBadRequest, "Embedding dimensions do not match the table").WithCause(err)
	case strings.Contains(errMsg, "connection refused"), strings.Contains(errMsg, "no such host"):
		return NewSystemError(ErrCodeConnectionFailed, "Database connection failed").WithCause(err)
	}
	return NewSystemError(ErrCodeDatabaseError, "Database operation failed").WithCause(err)
}

func isDatabaseError(err error) bool {
	errMsg := strings.ToLower(err.Error())
	for _, keyword := range []string{"pq:", "sqlstate", "postgres", "relation", "constraint", "duplicate key", "vector"} {
		if strings.Contains(errMsg, keyword) {
			return true
		}
	}
	return false
}

func validationMessage(fieldError validator.FieldError) string {
	field := fieldError.Field()
	switch fieldError.Tag() {
	case "required":
		return field + " is required"
	case "notblank":
		return field + " must not be blank"
	case "min":
		return field + " must be at least " + fieldError.Param()
	case "max":
		return field + " must be at most " + fieldError.Param()
	case "gte":
		return field + " must be greater than or equal to " + fieldError.Param()
	case "lte":
		return field + " must be less than or equal to " + fieldError.Param()
	case "gt":
		return field + " must be greater than " + fieldError.Param()
	case "oneof":
		return field + " must be one of: " + fieldError.Param()
	default:
		return field + " is invalid"
	}
}
