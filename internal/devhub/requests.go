package devhub

import (
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// CustomValidator wraps the go-playground/validator library to implement Echo's Validator interface.
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator creates a new CustomValidator.
func NewValidator() *CustomValidator {
	return &CustomValidator{validator: validator.New()}
}

// Validate implements the echo.Validator interface. Failures are reported as
// 400 responses.
func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// PublishRequest is the form body of a publish.
type PublishRequest struct {
	Topics []string `form:"topic" validate:"required,min=1,dive,required"`
	Data   string   `form:"data"`
	ID     string   `form:"id"`
	Type   string   `form:"type"`
}

// hasLineBreak reports whether a single-line SSE field would break framing.
func (r PublishRequest) hasLineBreak() bool {
	return strings.ContainsAny(r.ID+r.Type, "\r\n")
}
