package middleware

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestTimeout puts a deadline on the request context. A path listed in
// perPath uses its own budget instead of def, which lets slow upstream calls
// such as the OCR relay outlive the default. A non-positive budget means no
// deadline.
//
// The handler keeps running on the request goroutine, so the error returned
// by whichever call noticed the deadline is what the error handler sees.
func RequestTimeout(def time.Duration, perPath map[string]time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			budget := def
			if d, ok := perPath[c.Request().URL.Path]; ok {
				budget = d
			}
			if budget <= 0 {
				return next(c)
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), budget)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
