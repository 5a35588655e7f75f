package moysklad

import (
	"errors"
	"fmt"
	"strings"
)

// ==================== 哨兵错误 ====================

// Error is a sentinel error raised by the client before or around a remote call.
type Error string

func (e Error) Error() string { return string(e) }

const (
	ErrAPINotConfigured  Error = "api_not_configured: MoySklad API token or login/password is not set"
	ErrAuthFailed        Error = "auth_failed: token rejected and no login/password configured for fallback"
	ErrWebhookPermission Error = "webhook_permission_error: registering webhooks requires administrator rights in MoySklad"
	ErrLimitLatched      Error = "rate limit latch is open, call skipped"
	ErrInvalidOrder      Error = "invalid_order_data: order is missing agent or positions"
	ErrCustomerData      Error = "customer_data_missing: phone or email is required to find or create a counterparty"
)

// Remote error codes with special handling.
const (
	CodeBadMetadataType  = 1005
	CodeRateLimit        = 1049
	CodeHeaderError      = 1062
	CodeAuthError        = 1056
	CodeFilterError      = 1034
	CodeUnknownPath      = 1002
	CodeDeprecatedURL    = 1998
	CodeAccessDenied     = 14010
	CodeWebhookForbidden = 30004
)

// ==================== APIError ====================

// APIError is a decoded non-2xx response. Message is the human readable
// diagnostic, the remaining fields keep the raw response for callers.
type APIError struct {
	StatusCode int
	Code       int
	Message    string
	MoreInfo   string
	Body       []byte
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("moysklad api error %d (http %d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("moysklad api error (http %d): %s", e.StatusCode, e.Message)
}

// errorBody is the remote error envelope.
type errorBody struct {
	Errors []struct {
		Error    string `json:"error"`
		Code     int    `json:"code"`
		MoreInfo string `json:"moreInfo"`
	} `json:"errors"`
}

// describe maps a known code to a richer message.
func describe(code int, msg, moreInfo string) string {
	switch code {
	case CodeBadMetadataType:
		return "invalid metadata type, the MoySklad API may have changed"
	case CodeHeaderError:
		return "request header error, check the API settings"
	case CodeAuthError:
		return "authentication error, check the API token or login/password"
	case CodeFilterError:
		return "filter error: " + msg + ". More info: " + moreInfo
	case CodeUnknownPath:
		return "unknown path: " + msg + ". More info: " + moreInfo
	case CodeDeprecatedURL:
		return "JSON API is no longer supported at this URL: " + msg
	case CodeAccessDenied:
		return "access denied: " + msg + ". More info: " + moreInfo
	case CodeRateLimit:
		return "request rate limit exceeded: " + msg
	}
	if moreInfo != "" {
		return "More info: " + moreInfo
	}
	if msg != "" {
		return msg
	}
	return "unknown API error"
}

// ==================== 判定工具 ====================

// IsRateLimit reports whether err is a remote rate-limit error.
func IsRateLimit(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == CodeRateLimit || apiErr.StatusCode == 429
	}
	return false
}

// IsNotFound reports whether err is a remote 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 404
}

// IsAccessDenied reports a permission problem: http 403, code 14010 or 30004.
func IsAccessDenied(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.StatusCode == 403 || apiErr.Code == CodeAccessDenied || apiErr.Code == CodeWebhookForbidden {
		return true
	}
	return strings.Contains(apiErr.Message, "administrator")
}
