// Package httpx holds the response envelope, the request validation layer and
// the error translation point shared by every handler.
package httpx

import (
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Envelope is the body of every API response.
type Envelope struct {
	OK      bool        `json:"ok"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// Respond writes a successful envelope.
func Respond(c echo.Context, status int, message string, data interface{}) error {
	return c.JSON(status, Envelope{OK: true, Message: message, Data: data})
}

// Configure installs the validator and the error handler on e.
func Configure(e *echo.Echo, logger zerolog.Logger) {
	e.Validator = NewValidator()
	e.HTTPErrorHandler = ErrorHandler(logger)
}
