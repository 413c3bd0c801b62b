package handler

import "github.com/labstack/echo/v4"

// Routes は公開するハンドラーの組み合わせ
type Routes struct {
	Booking   *BookingHandler
	BlockSeat *BlockSeatHandler
	Health    *HealthHandler
}

// Register はルーティングを登録する
func (r Routes) Register(e *echo.Echo) {
	e.GET("/health", r.Health.Check)

	v1 := e.Group("/api/v1")

	v1.POST("/bookings", r.Booking.Create)
	v1.GET("/bookings", r.Booking.List)
	v1.GET("/bookings/reference/:reference", r.Booking.GetByReference)
	v1.GET("/bookings/:id", r.Booking.GetByID)
	v1.PATCH("/bookings/:id/status", r.Booking.UpdateStatus)

	v1.GET("/block-seats/:id", r.BlockSeat.GetByID)
	v1.GET("/block-seats/:id/classes/:class_id/availability", r.BlockSeat.GetAvailability)
}
