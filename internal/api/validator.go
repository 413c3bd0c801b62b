package api

import (
	"net/http"
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var referencePattern = regexp.MustCompile(`^[A-Za-z0-9-]{1,64}$`)

// CustomValidator はEcho用のカスタムバリデーター
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator は新しいバリデーターを作成する
// booking_reference タグは呼び出し元が指定する予約番号の形式を検証する
func NewValidator() *CustomValidator {
	v := validator.New()
	_ = v.RegisterValidation("booking_reference", func(fl validator.FieldLevel) bool {
		return referencePattern.MatchString(fl.Field().String())
	})
	return &CustomValidator{validator: v}
}

// Validate はリクエストのバリデーションを実行する
func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}
