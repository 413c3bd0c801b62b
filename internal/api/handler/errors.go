package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-blockseat-booking/internal/api"
)

// httpError はサービスのエラーをHTTPエラーに変換する
// 内部エラーはそのまま返し、エラーハンドラー側でログ出力と秘匿を行う
func httpError(err error) error {
	status := api.StatusOf(err)
	if status == http.StatusInternalServerError {
		return err
	}
	return echo.NewHTTPError(status, err.Error())
}
