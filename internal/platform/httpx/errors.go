package httpx

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/healthassist/healthassist/pkg/apperr"
)

// ErrBodyTooLarge is what the body limiter returns, either before the handler
// runs or from a Read of the limited body.
var ErrBodyTooLarge = echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")

// ErrorHandler is installed as echo's HTTPErrorHandler. It is the only place
// errors become responses: apperr kinds and echo errors map to a status and
// an {ok:false} envelope, and anything unclassified becomes a logged 500.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, message := Classify(err)
		rid, _ := c.Get("request_id").(string)
		if status >= http.StatusInternalServerError {
			logger.Error().Err(err).
				Str("request_id", rid).
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Msg("request failed")
		} else {
			logger.Debug().Err(err).Str("request_id", rid).Int("status", status).Msg("request rejected")
		}

		body := Envelope{OK: false, Message: message, Data: nil}
		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, body)
		}
		if werr != nil {
			logger.Error().Err(werr).Str("request_id", rid).Msg("write error response")
		}
	}
}

// Classify resolves the status and client message for err, the same way the
// error handler does. The request logger uses it to record the status of
// errors the handler has not written yet.
func Classify(err error) (int, string) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		status := appErr.Kind.HTTPStatus()
		if appErr.Kind == apperr.KindInternal {
			return status, "internal server error"
		}
		return status, appErr.Message
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		if he.Code >= http.StatusInternalServerError {
			return he.Code, http.StatusText(he.Code)
		}
		if msg, ok := he.Message.(string); ok {
			return he.Code, msg
		}
		return he.Code, fmt.Sprint(he.Message)
	}

	return http.StatusInternalServerError, "internal server error"
}
