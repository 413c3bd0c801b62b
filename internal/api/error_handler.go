package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-blockseat-booking/internal/application"
	"github.com/sanosuguru/go-blockseat-booking/internal/pkg/logger"
)

const internalErrorMessage = "内部サーバーエラー"

// ErrorResponse はエラーレスポンスの統一フォーマット
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// StatusOf はアプリケーションエラーの分類をHTTPステータスに変換する
func StatusOf(err error) int {
	switch application.KindOf(err) {
	case application.KindNotFound:
		return http.StatusNotFound
	case application.KindBadRequest:
		return http.StatusBadRequest
	case application.KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// CustomHTTPErrorHandler はカスタムエラーハンドラー
// ハンドラーが返したドメインエラーはここでステータスコードに変換される
func CustomHTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var (
		code    = http.StatusInternalServerError
		message = internalErrorMessage
	)

	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			message = m
		} else {
			message = http.StatusText(code)
		}
	} else {
		code = StatusOf(err)
		// 内部エラーの詳細はレスポンスに含めない
		if code != http.StatusInternalServerError {
			message = err.Error()
		}
	}

	// エラーログを出力（5xx エラーの場合）
	if code >= 500 {
		logger.Error("サーバーエラー",
			zap.Int("status", code),
			zap.String("path", c.Request().URL.Path),
			zap.Error(err),
		)
	}

	if err := c.JSON(code, ErrorResponse{
		Error: message,
		Code:  code,
	}); err != nil {
		logger.Error("エラーレスポンス送信失敗", zap.Error(err))
	}
}
