package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/backoffice/internal/audit/domain"
	authdomain "github.com/smallbiznis/backoffice/internal/auth/domain"
	"github.com/smallbiznis/backoffice/internal/authorization"
	featuredomain "github.com/smallbiznis/backoffice/internal/feature/domain"
	merchantdomain "github.com/smallbiznis/backoffice/internal/merchant/domain"
	roledomain "github.com/smallbiznis/backoffice/internal/role/domain"
	"github.com/smallbiznis/backoffice/internal/routeguard"
	subscriptiondomain "github.com/smallbiznis/backoffice/internal/subscription/domain"
	userdomain "github.com/smallbiznis/backoffice/internal/user/domain"
	"github.com/smallbiznis/backoffice/pkg/db"
	"github.com/smallbiznis/backoffice/pkg/db/pagination"
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
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
	ErrTooManyRequests    = errors.New("too_many_requests")
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

// validationErrors are caller mistakes reported as 400 with a field code.
var validationErrors = []error{
	ErrInvalidRequest,
	errInvalidSnowflakeID,
	pagination.ErrInvalidPageToken,
	featuredomain.ErrInvalidSlug,
	featuredomain.ErrInvalidName,
	featuredomain.ErrInvalidRoleType,
	featuredomain.ErrInvalidHierarchyLevel,
	featuredomain.ErrInvalidID,
	featuredomain.ErrImmutableField,
	roledomain.ErrInvalidID,
	roledomain.ErrInvalidName,
	roledomain.ErrInvalidType,
	roledomain.ErrInvalidHierarchyLevel,
	roledomain.ErrInvalidAction,
	roledomain.ErrFeatureNotFound,
	roledomain.ErrFeatureTypeMismatch,
	roledomain.ErrHierarchyCeilingExceeded,
	userdomain.ErrInvalidID,
	userdomain.ErrInvalidEmail,
	userdomain.ErrInvalidPassword,
	userdomain.ErrInvalidRole,
	userdomain.ErrMerchantRequired,
	userdomain.ErrMerchantNotAllowed,
	userdomain.ErrRoleNotFound,
	userdomain.ErrRoleTypeMismatch,
	authdomain.ErrInvalidPassword,
	authdomain.ErrPasswordUnchanged,
	merchantdomain.ErrInvalidID,
	merchantdomain.ErrInvalidName,
	merchantdomain.ErrInvalidEmail,
	merchantdomain.ErrInvalidPageToken,
	subscriptiondomain.ErrInvalidID,
	subscriptiondomain.ErrInvalidTarget,
	subscriptiondomain.ErrInvalidTrialDays,
	auditdomain.ErrInvalidAction,
	auditdomain.ErrInvalidPageToken,
	auditdomain.ErrInvalidTimeRange,
}

// conflictErrors are refused transitions and uniqueness violations. The
// error type carries the reason.
var conflictErrors = []error{
	merchantdomain.ErrInvalidStateTransition,
	subscriptiondomain.ErrInvalidStateTransition,
	subscriptiondomain.ErrMerchantNotActive,
	subscriptiondomain.ErrAlreadyProvisioned,
	roledomain.ErrSystemRoleProtected,
	roledomain.ErrRoleNameTaken,
	featuredomain.ErrFeatureInUse,
	featuredomain.ErrSlugTaken,
	userdomain.ErrEmailTaken,
}

var notFoundErrors = []error{
	ErrNotFound,
	featuredomain.ErrNotFound,
	roledomain.ErrNotFound,
	userdomain.ErrNotFound,
	merchantdomain.ErrNotFound,
	subscriptiondomain.ErrNotFound,
	gorm.ErrRecordNotFound,
}

var conflictMessages = map[string]string{
	"invalid_state_transition":    "the current state does not allow this transition",
	"merchant_not_active":         "the merchant is not active",
	"subscription_already_exists": "the merchant already has a subscription",
	"system_role_protected":       "system roles cannot be deleted",
	"role_name_taken":             "a role with this name already exists",
	"feature_in_use":              "the feature is granted by at least one role",
	"feature_slug_taken":          "a feature with this slug already exists",
	"email_taken":                 "a user with this email already exists",
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if target := matchAny(err, validationErrors); target != nil {
		code := target.Error()
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	if target := matchAny(err, conflictErrors); target != nil {
		code := target.Error()
		return http.StatusConflict, errorPayload{
			Type:    code,
			Message: conflictMessages[code],
		}
	}

	switch {
	case errors.Is(err, authorization.ErrUnauthenticated),
		errors.Is(err, authdomain.ErrInvalidSession),
		errors.Is(err, authdomain.ErrSessionExpired),
		errors.Is(err, authdomain.ErrSessionRevoked):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthenticated",
			Message: "authentication required",
		}
	case errors.Is(err, authdomain.ErrInvalidCredentials):
		return http.StatusUnauthorized, errorPayload{
			Type:    "invalid_credentials",
			Message: "invalid email or password",
		}
	case errors.Is(err, authorization.ErrUnauthorized):
		return http.StatusForbidden, errorPayload{
			Type:    "unauthorized",
			Message: "you do not have access to this resource",
		}
	case errors.Is(err, routeguard.ErrPasswordChangeRequired):
		return http.StatusForbidden, errorPayload{
			Type:    "password_change_required",
			Message: "change your password to continue",
		}
	case errors.Is(err, routeguard.ErrSubscriptionInactive):
		return http.StatusForbidden, errorPayload{
			Type:    "subscription_inactive",
			Message: "the merchant subscription is not active",
		}
	case errors.Is(err, ErrTooManyRequests):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "too_many_requests",
			Message: "too many attempts, try again later",
		}
	case matchAny(err, notFoundErrors) != nil:
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrServiceUnavailable), db.IsContentionErr(err):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog returns the response type and code written to the
// request log line.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	if status >= http.StatusInternalServerError {
		return payload.Type, ""
	}
	return payload.Type, code
}

func matchAny(err error, targets []error) error {
	for _, target := range targets {
		if errors.Is(err, target) {
			return target
		}
	}
	return nil
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "invalid_snowflake_id":
		return "id"
	case "feature_immutable_field":
		return "feature"
	case "feature_type_mismatch", "feature_not_found":
		return "grants"
	case "role_not_found", "role_type_mismatch":
		return "roleIds"
	case "merchant_required", "merchant_not_allowed":
		return "merchantId"
	case "password_unchanged":
		return "newPassword"
	case "hierarchy_ceiling_exceeded":
		return "hierarchyLevel"
	case "invalid_time_range":
		return "until"
	}
	return strings.TrimPrefix(code, "invalid_")
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "feature_type_mismatch":
		return "feature belongs to a different role type"
	case "hierarchy_ceiling_exceeded":
		return "feature requires a higher hierarchy level"
	case "role_type_mismatch":
		return "role does not match the user's role family"
	case "feature_immutable_field":
		return "slug, role type and page level cannot change"
	case "invalid_time_range":
		return "since must be before until"
	default:
		return "invalid value"
	}
}
