package errors

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// FromError converts a service error into an echo error carrying the
// standardized body. The original error is kept as Internal for logging.
func FromError(err error) *echo.HTTPError {
	httpErr := MapErrorToHTTP(err)
	return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse()).SetInternal(err)
}

// HTTPErrorHandler renders every error as ErrorResponse and logs server failures.
func HTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var he *echo.HTTPError
		if !errors.As(err, &he) {
			he = FromError(err)
		}

		var body ErrorResponse
		switch msg := he.Message.(type) {
		case ErrorResponse:
			body = msg
		case string:
			body = NewErrorResponse(msg, codeForStatus(he.Code))
		case error:
			body = NewErrorResponse(msg.Error(), codeForStatus(he.Code))
		default:
			body = NewErrorResponse(http.StatusText(he.Code), codeForStatus(he.Code))
		}

		if he.Code >= http.StatusInternalServerError {
			cause := he.Internal
			if cause == nil {
				cause = err
			}
			log.Error().
				Err(cause).
				Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
				Str("method", c.Request().Method).
				Str("uri", c.Request().RequestURI).
				Int("status", he.Code).
				Msg("request failed")
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(he.Code)
		} else {
			err = c.JSON(he.Code, body)
		}
		if err != nil {
			log.Error().Err(err).Msg("write error response")
		}
	}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "BAD_REQUEST"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusServiceUnavailable:
		return "SERVICE_TIMEOUT"
	case http.StatusInternalServerError:
		return "INTERNAL_ERROR"
	}
	return strings.ToUpper(strings.ReplaceAll(http.StatusText(status), " ", "_"))
}
