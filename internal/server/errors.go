package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/commissary/internal/audit/domain"
	catalogdomain "github.com/smallbiznis/commissary/internal/catalog/domain"
	"github.com/smallbiznis/commissary/internal/commission"
	idempotencydomain "github.com/smallbiznis/commissary/internal/idempotency/domain"
	partnerdomain "github.com/smallbiznis/commissary/internal/partner/domain"
	saledomain "github.com/smallbiznis/commissary/internal/sale/domain"
	"github.com/smallbiznis/commissary/internal/webhook"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case isVerificationError(err):
		// One shape for bad mac, malformed header and stale timestamp so
		// the response is not a signing oracle.
		return http.StatusBadRequest, errorPayload{
			Type:    "verification_error",
			Message: "signature verification failed",
		}
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}
	case errors.Is(err, saledomain.ErrUnknownPartner):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "unknown_partner",
			Message: "referenced partner does not exist",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, catalogdomain.ErrCatalogUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "catalog service unavailable",
		}
	case errors.Is(err, saledomain.ErrLedgerConflict):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "conflict",
			Message: "concurrent write in progress",
		}
	default:
		// Storage and transaction faults land here; 5xx tells the
		// notification source to redeliver.
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isVerificationError(err error) bool {
	switch {
	case errors.Is(err, webhook.ErrMalformedSignature),
		errors.Is(err, webhook.ErrSignatureMismatch),
		errors.Is(err, webhook.ErrStaleTimestamp):
		return true
	default:
		return false
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, webhook.ErrInvalidPayload),
		errors.Is(err, webhook.ErrInvalidEvent),
		errors.Is(err, webhook.ErrInvalidAmount),
		errors.Is(err, webhook.ErrInvalidPartner),
		errors.Is(err, commission.ErrInvalidInput),
		errors.Is(err, catalogdomain.ErrInvalidProduct),
		errors.Is(err, idempotencydomain.ErrInvalidKey),
		errors.Is(err, auditdomain.ErrInvalidPageToken),
		errors.Is(err, auditdomain.ErrInvalidTimeRange):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, partnerdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}
