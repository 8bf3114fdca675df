package http

import (
	"errors"
	"io"
	"net/http"

	"smartclean/internal/core/domain"
	apperrors "smartclean/pkg/errors"

	"github.com/gin-gonic/gin"
)

// toAppError maps scheduler sentinels onto transport errors.
func toAppError(err error) *apperrors.AppError {
	switch {
	case errors.Is(err, domain.ErrMissingIdentity):
		return apperrors.NewAppError(apperrors.ErrCodeMissingIdentity, "Email required", http.StatusBadRequest)
	case errors.Is(err, domain.ErrInvalidIdentity):
		return apperrors.NewAppError(apperrors.ErrCodeInvalidIdentity, "Invalid email format", http.StatusBadRequest)
	case errors.Is(err, domain.ErrAlreadyActive):
		return apperrors.NewAppError(apperrors.ErrCodeAlreadyActive, "Already your turn", http.StatusBadRequest)
	case errors.Is(err, domain.ErrNotInLine):
		return apperrors.NewAppError(apperrors.ErrCodeNotInLine, "User not found in queue", http.StatusNotFound)
	case errors.Is(err, domain.ErrNoActiveTurn):
		return apperrors.NewAppError(apperrors.ErrCodeNoActiveTurn, "No active user", http.StatusForbidden)
	case errors.Is(err, domain.ErrNotYourTurn):
		return apperrors.NewAppError(apperrors.ErrCodeNotYourTurn, "Not your turn", http.StatusForbidden)
	case errors.Is(err, domain.ErrUnauthorized):
		return apperrors.NewUnauthorizedError("Unauthorized")
	case errors.Is(err, domain.ErrUnknownIntent):
		return apperrors.NewInvalidInputError("Unknown device intent")
	}
	if appErr := apperrors.GetAppError(err); appErr != nil {
		return appErr
	}
	return apperrors.WrapError(err, apperrors.ErrCodeInternal, "Internal server error", http.StatusInternalServerError)
}

// fail hands the error to ErrorHandlerMiddleware.
func fail(c *gin.Context, err error) {
	_ = c.Error(toAppError(err))
	c.Abort()
}

// bindOptionalJSON accepts an empty body as the zero value.
func bindOptionalJSON(c *gin.Context, dst interface{}) error {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		return apperrors.WrapError(err, apperrors.ErrCodeInvalidInput, "Malformed JSON body", http.StatusBadRequest)
	}
	return nil
}

type identityRequest struct {
	Email string `json:"email"`
}
