// Package handler adapts the HTTP surface onto the reservation services.
// Handlers decode and authorize requests; every business rule lives in
// the service package.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/slot-reservation/internal/apperror"
	"github.com/iliyamo/slot-reservation/internal/logger"
	"github.com/iliyamo/slot-reservation/internal/middleware"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details,omitempty"`
}

// respondError renders err with the status of its kind. Store failures are
// logged with their cause and answered with a generic message.
func respondError(c echo.Context, log *logger.Logger, err error) error {
	e := apperror.As(err)
	if e.HTTPStatus >= http.StatusInternalServerError {
		log.Error("request failed",
			"request_id", middleware.RequestID(c),
			"method", c.Request().Method,
			"path", c.Path(),
			"error", err,
		)
		return c.JSON(e.HTTPStatus, errorBody{Error: "internal server error", Code: e.Code})
	}
	return c.JSON(e.HTTPStatus, errorBody{Error: e.Message, Code: e.Code, Details: e.Details})
}

// bindStrict decodes a JSON body into dst and rejects unknown fields. An
// empty body leaves dst untouched.
func bindStrict(c echo.Context, dst any) error {
	dec := json.NewDecoder(io.LimitReader(c.Request().Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return apperror.Validationf("invalid body: %v", err)
	}
	if dec.More() {
		return apperror.Validation("invalid body: trailing data")
	}
	return nil
}

func parseID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, apperror.Validationf("%s must be a positive integer", name)
	}
	return id, nil
}

// currentUser reads the authenticated user set by JWTAuth.
func currentUser(c echo.Context) (uint64, error) {
	id := middleware.UserID(c)
	if id == 0 {
		return 0, apperror.Unauthorized("authentication required")
	}
	return id, nil
}
