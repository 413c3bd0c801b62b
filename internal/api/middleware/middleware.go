package middleware

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const requestBodyLimit = "1M"

// SetupMiddleware は共通ミドルウェアを設定する
func SetupMiddleware(e *echo.Echo) {
	// リクエストID
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: NewRequestID,
	}))

	// 構造化リクエストログ（zap）
	e.Use(RequestLogger())

	// パニックリカバリー
	e.Use(middleware.Recover())

	e.Use(middleware.BodyLimit(requestBodyLimit))

	// CORS
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{echo.GET, echo.HEAD, echo.POST, echo.PATCH},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderXRequestID, "X-Agency-ID", "X-User-ID"},
	}))
}
