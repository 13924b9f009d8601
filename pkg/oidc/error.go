package oidc

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
)

type errorType string

const (
	InvalidRequest           errorType = "invalid_request"
	InvalidScope             errorType = "invalid_scope"
	InvalidClient            errorType = "invalid_client"
	InvalidGrant             errorType = "invalid_grant"
	UnauthorizedClient       errorType = "unauthorized_client"
	UnsupportedResponseType  errorType = "unsupported_response_type"
	AccessDenied             errorType = "access_denied"
	ServerError              errorType = "server_error"
	InteractionRequired      errorType = "interaction_required"
	LoginRequired            errorType = "login_required"
	ConsentRequired          errorType = "consent_required"
	RequestNotSupported      errorType = "request_not_supported"
	RequestURINotSupported   errorType = "request_uri_not_supported"
	InvalidRequestObject     errorType = "invalid_request_object"
	InvalidRequestURI        errorType = "invalid_request_uri"
	InvalidRedirectURI       errorType = "invalid_redirect_uri"
	InvalidClientMetadata    errorType = "invalid_client_metadata"
	InvalidToken             errorType = "invalid_token"
	RegistrationNotSupported errorType = "registration_not_supported"
)

var (
	ErrInvalidRequest = func() *Error {
		return &Error{
			ErrorType: InvalidRequest,
		}
	}
	ErrInvalidScope = func() *Error {
		return &Error{
			ErrorType: InvalidScope,
		}
	}
	ErrInvalidClient = func() *Error {
		return &Error{
			ErrorType: InvalidClient,
		}
	}
	ErrAccessDenied = func() *Error {
		return &Error{
			ErrorType: AccessDenied,
		}
	}
	ErrServerError = func() *Error {
		return &Error{
			ErrorType: ServerError,
		}
	}
	ErrLoginRequired = func() *Error {
		return &Error{
			ErrorType: LoginRequired,
		}
	}
	ErrInvalidRequestObject = func() *Error {
		return &Error{
			ErrorType: InvalidRequestObject,
		}
	}
	ErrInvalidRequestURI = func() *Error {
		return &Error{
			ErrorType: InvalidRequestURI,
		}
	}
	ErrInvalidRedirectURI = func() *Error {
		return &Error{
			ErrorType: InvalidRedirectURI,
		}
	}
	ErrInvalidClientMetadata = func() *Error {
		return &Error{
			ErrorType: InvalidClientMetadata,
		}
	}
	ErrInvalidToken = func() *Error {
		return &Error{
			ErrorType: InvalidToken,
		}
	}
	ErrRegistrationNotSupported = func() *Error {
		return &Error{
			ErrorType:   RegistrationNotSupported,
			Description: "the openid provider has no registration endpoint",
		}
	}
)

// Error is an OAuth 2.0 / OpenID Connect error response,
// as returned by the OP in a redirect or in a JSON body.
type Error struct {
	Parent      error     `json:"-" schema:"-"`
	ErrorType   errorType `json:"error" schema:"error"`
	Description string    `json:"error_description,omitempty" schema:"error_description,omitempty"`
	State       string    `json:"state,omitempty" schema:"state,omitempty"`
}

func (e *Error) Error() string {
	message := "ErrorType=" + string(e.ErrorType)
	if e.Description != "" {
		message += " Description=" + e.Description
	}
	if e.Parent != nil {
		message += " Parent=" + e.Parent.Error()
	}
	return message
}

func (e *Error) Unwrap() error {
	return e.Parent
}

// Is returns true if target is of type *Error
// and the ErrorType, and Description and State when set on target, are equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.ErrorType == t.ErrorType &&
		(e.Description == t.Description || t.Description == "") &&
		(e.State == t.State || t.State == "")
}

func (e *Error) WithParent(err error) *Error {
	e.Parent = err
	return e
}

func (e *Error) WithDescription(desc string, args ...any) *Error {
	e.Description = fmt.Sprintf(desc, args...)
	return e
}

// ParseErrorResponse builds an *Error from the
// error parameters of an authorization response.
func ParseErrorResponse(params url.Values) *Error {
	return &Error{
		ErrorType:   errorType(params.Get("error")),
		Description: params.Get("error_description"),
		State:       params.Get("state"),
	}
}

// DefaultToServerError checks if the error is an Error
// if not the provided error will be wrapped into a ServerError
func DefaultToServerError(err error, description string) *Error {
	oauth := new(Error)
	if ok := errors.As(err, &oauth); !ok {
		oauth.ErrorType = ServerError
		oauth.Description = description
		oauth.Parent = err
	}
	return oauth
}

// LogLevel returns an appropriate [slog.Level] for the error:
// server errors are [slog.LevelError], user interaction
// outcomes like a denied consent [slog.LevelInfo].
func (e *Error) LogLevel() slog.Level {
	switch e.ErrorType {
	case ServerError:
		return slog.LevelError
	case AccessDenied, LoginRequired, ConsentRequired, InteractionRequired:
		return slog.LevelInfo
	}
	return slog.LevelWarn
}

func (e *Error) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, 4)
	if e.Parent != nil {
		attrs = append(attrs, slog.Any("parent", e.Parent))
	}
	if e.Description != "" {
		attrs = append(attrs, slog.String("description", e.Description))
	}
	if e.ErrorType != "" {
		attrs = append(attrs, slog.String("type", string(e.ErrorType)))
	}
	if e.State != "" {
		attrs = append(attrs, slog.String("state", e.State))
	}
	return slog.GroupValue(attrs...)
}
