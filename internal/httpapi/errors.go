package httpapi

import (
	"errors"
	"net/http"

	"github.com/MarkoPoloResearchLab/travelbook/pkg/travel"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// fieldErrors are parse failures from travel's value constructors; they do not wrap ErrValidation.
var fieldErrors = []error{
	travel.ErrInvalidUserID,
	travel.ErrInvalidEmail,
	travel.ErrInvalidAmountCents,
	travel.ErrInvalidCurrency,
	travel.ErrInvalidTxRef,
	travel.ErrInvalidTitle,
	travel.ErrInvalidListingID,
	travel.ErrInvalidBookingID,
	travel.ErrInvalidStayDates,
	travel.ErrInvalidRating,
	travel.ErrInvalidMetadata,
}

// classifyError maps a domain error onto an HTTP status and a stable error code.
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, travel.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, travel.ErrGatewayRejected):
		return http.StatusBadRequest, "gateway_rejected"
	case errors.Is(err, travel.ErrGatewayUnavailable):
		return http.StatusServiceUnavailable, "gateway_unavailable"
	case errors.Is(err, travel.ErrPaymentNotFound):
		return http.StatusNotFound, "payment_not_found"
	case errors.Is(err, travel.ErrListingNotFound):
		return http.StatusNotFound, "listing_not_found"
	case errors.Is(err, travel.ErrBookingNotFound):
		return http.StatusNotFound, "booking_not_found"
	case errors.Is(err, travel.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, travel.ErrDuplicateBooking):
		return http.StatusConflict, "duplicate_booking"
	case errors.Is(err, travel.ErrBookingAlreadyPaid):
		return http.StatusConflict, "booking_already_paid"
	case errors.Is(err, travel.ErrDuplicateSlug):
		return http.StatusConflict, "duplicate_slug"
	}
	for _, fieldErr := range fieldErrors {
		if errors.Is(err, fieldErr) {
			return http.StatusBadRequest, "validation_error"
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

func (handler *httpHandler) respondError(ctx *gin.Context, operation string, err error) {
	status, code := classifyError(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		handler.logger.Error(operation+" failed", zap.Error(err))
		message = "internal error"
	} else if status == http.StatusServiceUnavailable {
		handler.logger.Warn(operation+" failed", zap.Error(err))
	}
	ctx.JSON(status, errorResponse(code, message))
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

// invalidPayload reports a body that failed to bind; the same kind as a domain validation failure.
func invalidPayload(ctx *gin.Context, err error) {
	ctx.JSON(http.StatusBadRequest, errorResponse("validation_error", err.Error()))
}
