package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"

	"github.com/sanosuguru/go-blockseat-booking/internal/application"
	"github.com/sanosuguru/go-blockseat-booking/internal/domain/booking"
)

const (
	headerAgencyID = "X-Agency-ID"
	headerUserID   = "X-User-ID"
	dateLayout     = "2006-01-02"
)

type BookingHandler struct {
	service BookingServiceInterface
}

func NewBookingHandler(s BookingServiceInterface) *BookingHandler {
	return &BookingHandler{service: s}
}

type TripRequest struct {
	DepartureDate string  `json:"departure_date" validate:"required,datetime=2006-01-02" example:"2026-11-01"`
	ReturnDate    *string `json:"return_date,omitempty" validate:"omitempty,datetime=2006-01-02" example:"2026-11-08"`
}

type PassengerRequest struct {
	Title          string  `json:"title,omitempty" example:"MR"`
	FirstName      string  `json:"first_name" validate:"required,max=100" example:"Taro"`
	LastName       string  `json:"last_name" validate:"required,max=100" example:"Yamada"`
	Type           string  `json:"type,omitempty" validate:"omitempty,oneof=ADT CHD INF" example:"ADT"`
	DateOfBirth    *string `json:"date_of_birth,omitempty" validate:"omitempty,datetime=2006-01-02"`
	PassportNumber string  `json:"passport_number,omitempty" validate:"max=20"`
	Nationality    string  `json:"nationality,omitempty" validate:"omitempty,len=2"`
}

type ContactRequest struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email" validate:"required,email" example:"agent@example.com"`
	Phone string `json:"phone,omitempty"`
}

type CreateBookingRequest struct {
	BlockSeatID string             `json:"block_seat_id" validate:"required" example:"550e8400-e29b-41d4-a716-446655440000"`
	ClassID     int                `json:"class_id" validate:"gte=0" example:"1"`
	Trip        TripRequest        `json:"trip"`
	Passengers  []PassengerRequest `json:"passengers" validate:"required,min=1,dive"`
	Contact     ContactRequest     `json:"contact"`
	Reference   string             `json:"reference,omitempty" validate:"omitempty,booking_reference"`
	Notes       string             `json:"notes,omitempty" validate:"max=1000"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=CONFIRMED CANCELLED" example:"CANCELLED"`
}

type TripResponse struct {
	TripType      string  `json:"trip_type"`
	DepartureDate string  `json:"departure_date"`
	ReturnDate    *string `json:"return_date,omitempty"`
}

type PassengerResponse struct {
	Title          string  `json:"title,omitempty"`
	FirstName      string  `json:"first_name"`
	LastName       string  `json:"last_name"`
	Type           string  `json:"type,omitempty"`
	DateOfBirth    *string `json:"date_of_birth,omitempty"`
	PassportNumber string  `json:"passport_number,omitempty"`
	Nationality    string  `json:"nationality,omitempty"`
}

type ContactResponse struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type PriceResponse struct {
	Currency           string   `json:"currency"`
	UnitPrice          int64    `json:"unit_price"`
	TotalAmount        int64    `json:"total_amount"`
	SupplierCommission *float64 `json:"supplier_commission,omitempty"`
	AgencyCommission   *float64 `json:"agency_commission,omitempty"`
}

type AuditResponse struct {
	At     time.Time      `json:"at"`
	By     *string        `json:"by,omitempty"`
	Action string         `json:"action"`
	Meta   map[string]any `json:"meta,omitempty"`
}

type BookingResponse struct {
	ID           string              `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Reference    string              `json:"reference" example:"BS-20261018-7KQ2ZD"`
	PNR          *string             `json:"pnr,omitempty"`
	BlockSeatID  string              `json:"block_seat_id"`
	AgencyID     string              `json:"agency_id"`
	WholesalerID *string             `json:"wholesaler_id,omitempty"`
	ClassID      int                 `json:"class_id"`
	Trip         TripResponse        `json:"trip"`
	Passengers   []PassengerResponse `json:"passengers"`
	Quantity     int                 `json:"quantity"`
	Contact      ContactResponse     `json:"contact"`
	Price        PriceResponse       `json:"price"`
	Status       string              `json:"status" example:"CONFIRMED"`
	Notes        string              `json:"notes,omitempty"`
	Audit        []AuditResponse     `json:"audit"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(dateLayout)
	return &s
}

func parseDate(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func toBookingResponse(b *booking.Booking) BookingResponse {
	return BookingResponse{
		ID: b.ID, Reference: b.Reference, PNR: b.PNR,
		BlockSeatID: b.BlockSeatID, AgencyID: b.AgencyID, WholesalerID: b.WholesalerID,
		ClassID: b.ClassID,
		Trip: TripResponse{
			TripType:      b.Trip.TripType,
			DepartureDate: b.Trip.DepartureDate.Format(dateLayout),
			ReturnDate:    formatDate(b.Trip.ReturnDate),
		},
		Passengers: lo.Map(b.Passengers, func(p booking.Passenger, _ int) PassengerResponse {
			return PassengerResponse{
				Title: p.Title, FirstName: p.FirstName, LastName: p.LastName, Type: p.Type,
				DateOfBirth: formatDate(p.DateOfBirth), PassportNumber: p.PassportNumber, Nationality: p.Nationality,
			}
		}),
		Quantity: b.Quantity,
		Contact:  ContactResponse{Name: b.Contact.Name, Email: b.Contact.Email, Phone: b.Contact.Phone},
		Price: PriceResponse{
			Currency:           b.PriceSnapshot.Currency,
			UnitPrice:          b.PriceSnapshot.UnitPrice,
			TotalAmount:        b.PriceSnapshot.TotalAmount,
			SupplierCommission: b.PriceSnapshot.Commission.Supplier,
			AgencyCommission:   b.PriceSnapshot.Commission.Agency,
		},
		Status: string(b.Status),
		Notes:  b.Notes,
		Audit: lo.Map(b.Audit, func(a booking.AuditEntry, _ int) AuditResponse {
			return AuditResponse{At: a.At, By: a.By, Action: a.Action, Meta: a.Meta}
		}),
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
	}
}

func toCreateBookingInput(req *CreateBookingRequest, agencyID string, actorID *string) (application.CreateBookingInput, error) {
	departure, err := time.Parse(dateLayout, req.Trip.DepartureDate)
	if err != nil {
		return application.CreateBookingInput{}, err
	}
	ret, err := parseDate(req.Trip.ReturnDate)
	if err != nil {
		return application.CreateBookingInput{}, err
	}

	passengers := make([]booking.Passenger, 0, len(req.Passengers))
	for _, p := range req.Passengers {
		dob, err := parseDate(p.DateOfBirth)
		if err != nil {
			return application.CreateBookingInput{}, err
		}
		passengers = append(passengers, booking.Passenger{
			Title: p.Title, FirstName: p.FirstName, LastName: p.LastName, Type: p.Type,
			DateOfBirth: dob, PassportNumber: p.PassportNumber, Nationality: p.Nationality,
		})
	}

	return application.CreateBookingInput{
		BlockSeatID: req.BlockSeatID,
		AgencyID:    agencyID,
		ClassID:     req.ClassID,
		Trip:        booking.Trip{DepartureDate: departure, ReturnDate: ret},
		Passengers:  passengers,
		Contact:     booking.Contact{Name: req.Contact.Name, Email: req.Contact.Email, Phone: req.Contact.Phone},
		Reference:   req.Reference,
		Notes:       req.Notes,
		ActorID:     actorID,
	}, nil
}

func actorFrom(c echo.Context) *string {
	if id := c.Request().Header.Get(headerUserID); id != "" {
		return &id
	}
	return nil
}

// Create godoc
// @Summary 予約を作成
// @Description ブロックシートの座席を確保して確定済みの予約を作成します
// @Tags bookings
// @Accept json
// @Produce json
// @Param X-Agency-ID header string true "代理店ID"
// @Param X-User-ID header string false "操作者ID"
// @Param request body CreateBookingRequest true "予約情報"
// @Success 201 {object} BookingResponse
// @Failure 400 {object} api.ErrorResponse
// @Failure 401 {object} api.ErrorResponse
// @Failure 404 {object} api.ErrorResponse
// @Failure 409 {object} api.ErrorResponse "座席の競合または予約番号の重複"
// @Router /bookings [post]
func (h *BookingHandler) Create(c echo.Context) error {
	agencyID := c.Request().Header.Get(headerAgencyID)
	if agencyID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "代理店IDが必要です")
	}
	var req CreateBookingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	input, err := toCreateBookingInput(&req, agencyID, actorFrom(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "日付の形式が不正です")
	}
	b, err := h.service.CreateBooking(c.Request().Context(), input)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, toBookingResponse(b))
}

// UpdateStatus godoc
// @Summary 予約ステータスを変更
// @Description 確定またはキャンセルに変更します。確定済みのキャンセルでは座席が解放されます
// @Tags bookings
// @Accept json
// @Produce json
// @Param id path string true "予約ID"
// @Param X-User-ID header string false "操作者ID"
// @Param request body UpdateStatusRequest true "変更先ステータス"
// @Success 200 {object} BookingResponse
// @Failure 400 {object} api.ErrorResponse
// @Failure 404 {object} api.ErrorResponse
// @Failure 409 {object} api.ErrorResponse
// @Router /bookings/{id}/status [patch]
func (h *BookingHandler) UpdateStatus(c echo.Context) error {
	var req UpdateStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	b, err := h.service.UpdateBookingStatus(c.Request().Context(), application.UpdateBookingStatusInput{
		BookingID:    c.Param("id"),
		TargetStatus: booking.Status(req.Status),
		ActorID:      actorFrom(c),
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toBookingResponse(b))
}

// GetByID godoc
// @Summary 予約を取得
// @Tags bookings
// @Produce json
// @Param id path string true "予約ID"
// @Success 200 {object} BookingResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /bookings/{id} [get]
func (h *BookingHandler) GetByID(c echo.Context) error {
	b, err := h.service.GetBooking(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toBookingResponse(b))
}

// GetByReference godoc
// @Summary 予約番号で予約を取得
// @Tags bookings
// @Produce json
// @Param reference path string true "予約番号"
// @Success 200 {object} BookingResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /bookings/reference/{reference} [get]
func (h *BookingHandler) GetByReference(c echo.Context) error {
	b, err := h.service.GetBookingByReference(c.Request().Context(), c.Param("reference"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toBookingResponse(b))
}

// List godoc
// @Summary 代理店の予約一覧を取得
// @Tags bookings
// @Produce json
// @Param X-Agency-ID header string true "代理店ID"
// @Param limit query int false "取得件数" default(20)
// @Param offset query int false "オフセット" default(0)
// @Success 200 {array} BookingResponse
// @Failure 401 {object} api.ErrorResponse
// @Router /bookings [get]
func (h *BookingHandler) List(c echo.Context) error {
	agencyID := c.Request().Header.Get(headerAgencyID)
	if agencyID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "代理店IDが必要です")
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	bookings, err := h.service.ListAgencyBookings(c.Request().Context(), agencyID, limit, offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, lo.Map(bookings, func(b *booking.Booking, _ int) BookingResponse {
		return toBookingResponse(b)
	}))
}
