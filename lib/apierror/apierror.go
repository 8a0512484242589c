package apierror

import (
	"errors"
	"net/http"
)

// Error IDs for user-input validation failures. These are stable
// identifiers surfaced to API clients; messages may change, IDs may not.
const (
	ErrInvalidFilterSyntax     = "invalid_filter_syntax"
	ErrUnknownAttribute        = "unknown_attribute"
	ErrUnknownOperator         = "unknown_operator"
	ErrUnsupportedCombination  = "unsupported_combination"
	ErrValueTooShort           = "value_too_short"
	ErrInvalidOrderSyntax      = "invalid_order_syntax"
	ErrUnknownOrderAttribute   = "unknown_order_attribute"
	ErrUnknownDirection        = "unknown_direction"
	ErrIncompatibleOrderFilter = "incompatible_order_filter"
	ErrInvalidParameter        = "invalid_parameter"
)

type ErrorDetail struct {
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

type InternalErrorDetail struct {
	ErrorID string `json:"error_id"`
	ErrorDetail
}

type PublicErrorDetail struct {
	ErrorID string `json:"errorCode"`
	ErrorDetail
}

// APIError is an error carrying enough structure to be written directly
// to an HTTP response: a status code, a stable error ID, and separate
// public and internal detail payloads.
type APIError interface {
	Error() string
	HTTPStatusCode() int
	ErrorID() string
	PublicErrorDetail() PublicErrorDetail
	InternalErrorDetail() InternalErrorDetail
}

type errorOptions struct {
	httpCode int
	errorID  string
	public   PublicErrorDetail
	internal InternalErrorDetail
}

func (e *errorOptions) PublicErrorDetail() PublicErrorDetail {
	rv := e.public
	rv.ErrorID = e.errorID
	return rv
}

func (e *errorOptions) InternalErrorDetail() InternalErrorDetail {
	rv := e.internal
	rv.ErrorID = e.errorID
	if rv.Message == "" {
		rv.Message = e.public.Message
	}
	return rv
}

func (e *errorOptions) HTTPStatusCode() int {
	if e.httpCode == 0 {
		return http.StatusInternalServerError
	}
	return e.httpCode
}

func (e *errorOptions) ErrorID() string {
	return e.errorID
}

func (e *errorOptions) Error() string {
	return e.public.Message
}

type ErrorOption func(*errorOptions)

func WithHTTPCode(code int) ErrorOption {
	return func(opts *errorOptions) {
		opts.httpCode = code
	}
}

func WithErrorID(errorID string) ErrorOption {
	return func(opts *errorOptions) {
		opts.errorID = errorID
	}
}

func WithPublicMessage(message string) ErrorOption {
	return func(opts *errorOptions) {
		opts.public.Message = message
	}
}

func WithInternalMessage(message string) ErrorOption {
	return func(opts *errorOptions) {
		opts.internal.Message = message
	}
}

func WithPublicData(key string, value interface{}) ErrorOption {
	return func(opts *errorOptions) {
		if opts.public.Data == nil {
			opts.public.Data = make(map[string]interface{})
		}
		opts.public.Data[key] = value
	}
}

func WithInternalData(key string, value interface{}) ErrorOption {
	return func(opts *errorOptions) {
		if opts.internal.Data == nil {
			opts.internal.Data = make(map[string]interface{})
		}
		opts.internal.Data[key] = value
	}
}

func New(options ...ErrorOption) APIError {
	opts := errorOptions{}
	for _, option := range options {
		option(&opts)
	}

	if opts.httpCode == 0 {
		opts.httpCode = http.StatusInternalServerError
	}

	if opts.public.Message == "" {
		opts.public.Message = "Internal server error"
	}

	if opts.errorID == "" {
		opts.errorID = "unknown_error"
	}

	return &opts
}

// NewIllegalQuery builds the conventional rejection for a malformed query
// parameter: HTTP 409 with the given error ID and public message.
func NewIllegalQuery(errorID, message string) APIError {
	return New(
		WithHTTPCode(http.StatusConflict),
		WithErrorID(errorID),
		WithPublicMessage(message),
	)
}

func asError(err error) (APIError, bool) {
	var maybeErr APIError
	if errors.As(err, &maybeErr) {
		return maybeErr, true
	}

	return nil, false
}

func AsAPIError(err error) APIError {
	apiErr, ok := asError(err)
	if ok {
		return apiErr
	}

	return New(
		WithErrorID("unknown_error"),
		WithHTTPCode(http.StatusInternalServerError),
		WithPublicMessage("Internal server error"),
		WithInternalMessage("non-API error: "+err.Error()),
	)
}

// HasErrorID reports whether err is an APIError with the given ID.
func HasErrorID(err error, errorID string) bool {
	apiErr, ok := asError(err)
	if !ok {
		return false
	}
	return apiErr.ErrorID() == errorID
}
