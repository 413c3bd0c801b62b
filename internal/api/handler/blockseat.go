package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"

	"github.com/sanosuguru/go-blockseat-booking/internal/domain/blockseat"
)

type BlockSeatHandler struct {
	service BlockSeatServiceInterface
}

func NewBlockSeatHandler(s BlockSeatServiceInterface) *BlockSeatHandler {
	return &BlockSeatHandler{service: s}
}

type ClassResponse struct {
	ClassID        int    `json:"class_id" example:"1"`
	Name           string `json:"name" example:"Economy"`
	TotalSeats     int    `json:"total_seats" example:"30"`
	AvailableSeats int    `json:"available_seats" example:"12"`
	BookedSeats    int    `json:"booked_seats" example:"18"`
	Price          int64  `json:"price" example:"45000"`
	Baggage        string `json:"baggage,omitempty" example:"30kg"`
}

type TripDateResponse struct {
	DepartureDate string  `json:"departure_date"`
	ReturnDate    *string `json:"return_date,omitempty"`
}

type BlockSeatResponse struct {
	ID             string             `json:"id"`
	WholesalerID   string             `json:"wholesaler_id"`
	Name           string             `json:"name"`
	AirlineCode    string             `json:"airline_code"`
	AirlineName    string             `json:"airline_name"`
	From           string             `json:"from"`
	To             string             `json:"to"`
	TripType       string             `json:"trip_type"`
	AvailableDates []TripDateResponse `json:"available_dates"`
	Classes        []ClassResponse    `json:"classes"`
	Status         string             `json:"status"`
	Currency       string             `json:"currency"`
}

type AvailabilityResponse struct {
	BlockSeatID    string `json:"block_seat_id"`
	ClassID        int    `json:"class_id"`
	AvailableSeats int    `json:"available_seats"`
	Cached         bool   `json:"cached"`
}

func toBlockSeatResponse(bs *blockseat.BlockSeat) BlockSeatResponse {
	return BlockSeatResponse{
		ID: bs.ID, WholesalerID: bs.WholesalerID, Name: bs.Name,
		AirlineCode: bs.Airline.Code, AirlineName: bs.Airline.Name,
		From: bs.Route.From, To: bs.Route.To, TripType: string(bs.Route.TripType),
		AvailableDates: lo.Map(bs.AvailableDates, func(d blockseat.TripDate, _ int) TripDateResponse {
			return TripDateResponse{DepartureDate: d.DepartureDate.Format(dateLayout), ReturnDate: formatDate(d.ReturnDate)}
		}),
		Classes: lo.Map(bs.Classes, func(c blockseat.Class, _ int) ClassResponse {
			return ClassResponse{
				ClassID: c.ClassID, Name: c.Name, TotalSeats: c.TotalSeats,
				AvailableSeats: c.AvailableSeats, BookedSeats: c.BookedSeats,
				Price: c.Price, Baggage: c.Baggage,
			}
		}),
		Status:   string(bs.Status),
		Currency: bs.Currency,
	}
}

// GetByID godoc
// @Summary ブロックシートを取得
// @Tags block-seats
// @Produce json
// @Param id path string true "ブロックシートID"
// @Success 200 {object} BlockSeatResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /block-seats/{id} [get]
func (h *BlockSeatHandler) GetByID(c echo.Context) error {
	bs, err := h.service.GetBlockSeat(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toBlockSeatResponse(bs))
}

// GetAvailability godoc
// @Summary クラスの空席数を取得
// @Description 表示用の値で、キャッシュから返す場合があります
// @Tags block-seats
// @Produce json
// @Param id path string true "ブロックシートID"
// @Param class_id path int true "クラスID"
// @Success 200 {object} AvailabilityResponse
// @Failure 400 {object} api.ErrorResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /block-seats/{id}/classes/{class_id}/availability [get]
func (h *BlockSeatHandler) GetAvailability(c echo.Context) error {
	classID, err := strconv.Atoi(c.Param("class_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "クラスIDが不正です")
	}
	a, err := h.service.GetClassAvailability(c.Request().Context(), c.Param("id"), classID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, AvailabilityResponse{
		BlockSeatID:    a.BlockSeatID,
		ClassID:        a.ClassID,
		AvailableSeats: a.AvailableSeats,
		Cached:         a.FromCache,
	})
}
