package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/crateflow/internal/audit/domain"
	deliverydomain "github.com/smallbiznis/crateflow/internal/delivery/domain"
	invoicedomain "github.com/smallbiznis/crateflow/internal/invoice/domain"
	"github.com/smallbiznis/crateflow/internal/lock"
	masterdatadomain "github.com/smallbiznis/crateflow/internal/masterdata/domain"
	paymentdomain "github.com/smallbiznis/crateflow/internal/payment/domain"
	pricingdomain "github.com/smallbiznis/crateflow/internal/pricing/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

// errorRule maps a group of domain sentinels to one HTTP status.
type errorRule struct {
	status  int
	kind    string
	targets []error
}

var errorRules = []errorRule{
	{
		status: http.StatusBadRequest,
		kind:   "validation_error",
		targets: []error{
			ErrInvalidRequest,
			invoicedomain.ErrInvalidID,
			invoicedomain.ErrInvalidClient,
			invoicedomain.ErrInvalidStatus,
			invoicedomain.ErrInvalidReason,
			paymentdomain.ErrInvalidInvoice,
			paymentdomain.ErrInvalidClient,
			paymentdomain.ErrInvalidAmount,
			paymentdomain.ErrInvalidMethod,
			paymentdomain.ErrInvalidPeriod,
			paymentdomain.ErrSplitMismatch,
			paymentdomain.ErrAccountRequired,
			pricingdomain.ErrInvalidClient,
			pricingdomain.ErrInvalidContainer,
			pricingdomain.ErrInvalidPrice,
			deliverydomain.ErrInvalidClient,
			deliverydomain.ErrInvalidContainer,
			deliverydomain.ErrInvalidTrip,
			deliverydomain.ErrInvalidQuantity,
			deliverydomain.ErrEmptyTrip,
			deliverydomain.ErrInvalidInvoice,
			auditdomain.ErrInvalidAction,
			auditdomain.ErrInvalidPageToken,
		},
	},
	{
		status: http.StatusNotFound,
		kind:   "not_found",
		targets: []error{
			ErrNotFound,
			invoicedomain.ErrNotFound,
			paymentdomain.ErrInvoiceNotFound,
			paymentdomain.ErrNoOpenInvoices,
			masterdatadomain.ErrClientNotFound,
			masterdatadomain.ErrClientInactive,
			masterdatadomain.ErrContainerNotFound,
			gorm.ErrRecordNotFound,
		},
	},
	{
		status: http.StatusConflict,
		kind:   "conflict",
		targets: []error{
			invoicedomain.ErrInvalidState,
			invoicedomain.ErrAlreadyProcessed,
			invoicedomain.ErrHasPayments,
			invoicedomain.ErrConcurrentModification,
			paymentdomain.ErrNotConfirmed,
			paymentdomain.ErrAlreadySettled,
			paymentdomain.ErrInvalidState,
			pricingdomain.ErrDuplicateEffectiveDate,
			pricingdomain.ErrBackdated,
			gorm.ErrDuplicatedKey,
		},
	},
	{
		status: http.StatusUnprocessableEntity,
		kind:   "unprocessable",
		targets: []error{
			pricingdomain.ErrPriceNotSet,
			invoicedomain.ErrNoBillableDeliveries,
			invoicedomain.ErrNoLineItems,
			paymentdomain.ErrExceedsBalance,
			paymentdomain.ErrNothingOutstanding,
		},
	},
	{
		status:  http.StatusServiceUnavailable,
		kind:    "service_unavailable",
		targets: []error{lock.ErrLockTimeout},
	},
	{
		status:  http.StatusInternalServerError,
		kind:    "internal_error",
		targets: []error{paymentdomain.ErrAllocationFailed},
	},
}

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

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, internalPayload()
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	for _, rule := range errorRules {
		for _, target := range rule.targets {
			if !errors.Is(err, target) {
				continue
			}
			code := target.Error()
			if rule.status == http.StatusInternalServerError {
				payload := internalPayload()
				payload.Code = code
				return rule.status, payload
			}
			payload := errorPayload{
				Type:    rule.kind,
				Code:    code,
				Message: err.Error(),
			}
			if rule.status == http.StatusBadRequest {
				payload.Errors = []ValidationError{{
					Field:   validationErrorField(code),
					Code:    code,
					Message: err.Error(),
				}}
			}
			return rule.status, payload
		}
	}

	return http.StatusInternalServerError, internalPayload()
}

func internalPayload() errorPayload {
	return errorPayload{
		Type:    "internal_error",
		Message: "internal server error",
	}
}

// classifyErrorForLog feeds the request logger the same taxonomy clients see.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	return payload.Type, payload.Code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}
