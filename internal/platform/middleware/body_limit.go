package middleware

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/healthassist/healthassist/internal/platform/httpx"
)

// BodyLimit caps the request body. JSON endpoints get jsonLimit; multipart
// uploads to uploadPath get uploadLimit plus room for the multipart framing.
// Oversized bodies are rejected with 413 either up front from Content-Length
// or while the handler reads the body.
func BodyLimit(jsonLimit, uploadLimit int64, uploadPath string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}

			limit := jsonLimit
			if req.Method == http.MethodPost && req.URL.Path == uploadPath {
				limit = uploadLimit + multipartOverhead
			}

			if req.ContentLength > limit {
				return errBodyTooLarge
			}
			req.Body = &limitedReadCloser{ReadCloser: req.Body, remaining: limit}
			return next(c)
		}
	}
}

const multipartOverhead = 64 << 10

var errBodyTooLarge = httpx.ErrBodyTooLarge

type limitedReadCloser struct {
	io.ReadCloser
	remaining int64
	exceeded  bool
}

func (r *limitedReadCloser) Read(p []byte) (int, error) {
	if r.exceeded {
		return 0, errBodyTooLarge
	}
	if int64(len(p)) > r.remaining+1 {
		p = p[:r.remaining+1]
	}
	n, err := r.ReadCloser.Read(p)
	r.remaining -= int64(n)
	if r.remaining < 0 {
		r.exceeded = true
		return 0, errBodyTooLarge
	}
	return n, err
}
