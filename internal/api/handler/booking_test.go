package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-blockseat-booking/internal/application"
	"github.com/sanosuguru/go-blockseat-booking/internal/domain/blockseat"
	"github.com/sanosuguru/go-blockseat-booking/internal/domain/booking"
)

// MockBookingService はBookingServiceInterfaceのモック
type MockBookingService struct {
	mock.Mock
}

func (m *MockBookingService) CreateBooking(ctx context.Context, input application.CreateBookingInput) (*booking.Booking, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*booking.Booking), args.Error(1)
}

func (m *MockBookingService) UpdateBookingStatus(ctx context.Context, input application.UpdateBookingStatusInput) (*booking.Booking, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*booking.Booking), args.Error(1)
}

func (m *MockBookingService) GetBooking(ctx context.Context, id string) (*booking.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*booking.Booking), args.Error(1)
}

func (m *MockBookingService) GetBookingByReference(ctx context.Context, reference string) (*booking.Booking, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*booking.Booking), args.Error(1)
}

func (m *MockBookingService) ListAgencyBookings(ctx context.Context, agencyID string, limit, offset int) ([]*booking.Booking, error) {
	args := m.Called(ctx, agencyID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*booking.Booking), args.Error(1)
}

func newTestBooking() *booking.Booking {
	agency := 5.0
	b := booking.NewBooking("BS-20261018-7KQ2ZD", "bs-1", "agency-1", 1,
		booking.Trip{TripType: "ONE_WAY", DepartureDate: time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)},
		[]booking.Passenger{{FirstName: "Taro", LastName: "Yamada", Type: "ADT"}},
		booking.Contact{Email: "agent@example.com"},
		booking.PriceSnapshot{Currency: "USD", UnitPrice: 45000, TotalAmount: 45000, Commission: booking.Commission{Agency: &agency}},
		nil,
	)
	b.ID = "bk-1"
	return b
}

const validCreateBody = `{
	"block_seat_id": "bs-1",
	"class_id": 1,
	"trip": {"departure_date": "2026-11-01"},
	"passengers": [{"first_name": "Taro", "last_name": "Yamada", "type": "ADT"}],
	"contact": {"email": "agent@example.com"}
}`

func newJSONRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func assertHTTPError(t *testing.T, err error, code int) {
	t.Helper()
	var he *echo.HTTPError
	require.True(t, errors.As(err, &he), "HTTPErrorではありません: %v", err)
	assert.Equal(t, code, he.Code)
}

func TestBookingHandler_Create(t *testing.T) {
	e := NewTestEcho()

	t.Run("正常に予約を作成できる", func(t *testing.T) {
		mockService := new(MockBookingService)
		mockService.On("CreateBooking", mock.Anything, mock.MatchedBy(func(in application.CreateBookingInput) bool {
			return in.AgencyID == "agency-1" &&
				in.BlockSeatID == "bs-1" &&
				in.ActorID != nil && *in.ActorID == "user-1" &&
				len(in.Passengers) == 1 &&
				in.Trip.DepartureDate.Equal(time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC))
		})).Return(newTestBooking(), nil)

		req := newJSONRequest(http.MethodPost, "/api/v1/bookings", validCreateBody)
		req.Header.Set("X-Agency-ID", "agency-1")
		req.Header.Set("X-User-ID", "user-1")
		rec := httptest.NewRecorder()

		err := NewBookingHandler(mockService).Create(e.NewContext(req, rec))

		require.NoError(t, err)
		assert.Equal(t, http.StatusCreated, rec.Code)

		var resp BookingResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "BS-20261018-7KQ2ZD", resp.Reference)
		assert.Equal(t, "CONFIRMED", resp.Status)
		assert.Equal(t, "2026-11-01", resp.Trip.DepartureDate)
		assert.Equal(t, int64(45000), resp.Price.TotalAmount)
		require.NotNil(t, resp.Price.AgencyCommission)
		require.Len(t, resp.Passengers, 1)
		assert.Equal(t, "Taro", resp.Passengers[0].FirstName)
		require.Len(t, resp.Audit, 1)
		assert.Equal(t, "BOOK", resp.Audit[0].Action)
		mockService.AssertExpectations(t)
	})

	t.Run("代理店IDがない場合は401", func(t *testing.T) {
		mockService := new(MockBookingService)
		req := newJSONRequest(http.MethodPost, "/api/v1/bookings", validCreateBody)
		rec := httptest.NewRecorder()

		err := NewBookingHandler(mockService).Create(e.NewContext(req, rec))

		assertHTTPError(t, err, http.StatusUnauthorized)
		mockService.AssertNotCalled(t, "CreateBooking", mock.Anything, mock.Anything)
	})

	t.Run("入力検証エラーは400", func(t *testing.T) {
		bodies := map[string]string{
			"搭乗者なし":   `{"block_seat_id":"bs-1","trip":{"departure_date":"2026-11-01"},"passengers":[],"contact":{"email":"a@example.com"}}`,
			"日付形式不正":  `{"block_seat_id":"bs-1","trip":{"departure_date":"11/01/2026"},"passengers":[{"first_name":"A","last_name":"B"}],"contact":{"email":"a@example.com"}}`,
			"メール形式不正": `{"block_seat_id":"bs-1","trip":{"departure_date":"2026-11-01"},"passengers":[{"first_name":"A","last_name":"B"}],"contact":{"email":"invalid"}}`,
			"予約番号形式不正": `{"block_seat_id":"bs-1","trip":{"departure_date":"2026-11-01"},"passengers":[{"first_name":"A","last_name":"B"}],"contact":{"email":"a@example.com"},"reference":"BAD REF!"}`,
			"JSON不正":   `{invalid`,
		}
		for name, body := range bodies {
			t.Run(name, func(t *testing.T) {
				mockService := new(MockBookingService)
				req := newJSONRequest(http.MethodPost, "/api/v1/bookings", body)
				req.Header.Set("X-Agency-ID", "agency-1")
				rec := httptest.NewRecorder()

				err := NewBookingHandler(mockService).Create(e.NewContext(req, rec))

				assertHTTPError(t, err, http.StatusBadRequest)
				mockService.AssertNotCalled(t, "CreateBooking", mock.Anything, mock.Anything)
			})
		}
	})

	t.Run("サービスのエラーを分類して返す", func(t *testing.T) {
		tests := []struct {
			name string
			err  error
			code int
		}{
			{"ブロックシートなし", blockseat.ErrBlockSeatNotFound, http.StatusNotFound},
			{"空席不足", blockseat.ErrInsufficientSeats, http.StatusBadRequest},
			{"座席の競合", blockseat.ErrSeatConflict, http.StatusConflict},
			{"予約番号使用済み", application.ErrReferenceTaken, http.StatusConflict},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				mockService := new(MockBookingService)
				mockService.On("CreateBooking", mock.Anything, mock.Anything).Return(nil, tt.err)
				req := newJSONRequest(http.MethodPost, "/api/v1/bookings", validCreateBody)
				req.Header.Set("X-Agency-ID", "agency-1")
				rec := httptest.NewRecorder()

				err := NewBookingHandler(mockService).Create(e.NewContext(req, rec))

				assertHTTPError(t, err, tt.code)
			})
		}
	})

	t.Run("内部エラーは詳細を隠して500", func(t *testing.T) {
		mockService := new(MockBookingService)
		mockService.On("CreateBooking", mock.Anything, mock.Anything).Return(nil, errors.New("pq: connection refused"))
		e.POST("/api/v1/bookings", NewBookingHandler(mockService).Create)

		req := newJSONRequest(http.MethodPost, "/api/v1/bookings", validCreateBody)
		req.Header.Set("X-Agency-ID", "agency-1")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "pq:")
	})
}

func TestBookingHandler_UpdateStatus(t *testing.T) {
	e := NewTestEcho()

	newContext := func(body string, rec *httptest.ResponseRecorder) echo.Context {
		req := newJSONRequest(http.MethodPatch, "/api/v1/bookings/bk-1/status", body)
		req.Header.Set("X-User-ID", "user-1")
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues("bk-1")
		return c
	}

	t.Run("キャンセルできる", func(t *testing.T) {
		cancelled := newTestBooking()
		cancelled.ApplyTransition(booking.StatusCancelled, nil, nil)
		mockService := new(MockBookingService)
		mockService.On("UpdateBookingStatus", mock.Anything, mock.MatchedBy(func(in application.UpdateBookingStatusInput) bool {
			return in.BookingID == "bk-1" && in.TargetStatus == booking.StatusCancelled && *in.ActorID == "user-1"
		})).Return(cancelled, nil)
		rec := httptest.NewRecorder()

		err := NewBookingHandler(mockService).UpdateStatus(newContext(`{"status":"CANCELLED"}`, rec))

		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"CANCELLED"`)
	})

	t.Run("PENDINGは受け付けない", func(t *testing.T) {
		mockService := new(MockBookingService)
		rec := httptest.NewRecorder()

		err := NewBookingHandler(mockService).UpdateStatus(newContext(`{"status":"PENDING"}`, rec))

		assertHTTPError(t, err, http.StatusBadRequest)
		mockService.AssertNotCalled(t, "UpdateBookingStatus", mock.Anything, mock.Anything)
	})

	t.Run("不正な遷移は400", func(t *testing.T) {
		mockService := new(MockBookingService)
		mockService.On("UpdateBookingStatus", mock.Anything, mock.Anything).Return(nil, booking.ErrInvalidTransition)
		rec := httptest.NewRecorder()

		err := NewBookingHandler(mockService).UpdateStatus(newContext(`{"status":"CONFIRMED"}`, rec))

		assertHTTPError(t, err, http.StatusBadRequest)
	})

	t.Run("予約が見つからない場合は404", func(t *testing.T) {
		mockService := new(MockBookingService)
		mockService.On("UpdateBookingStatus", mock.Anything, mock.Anything).Return(nil, booking.ErrBookingNotFound)
		rec := httptest.NewRecorder()

		err := NewBookingHandler(mockService).UpdateStatus(newContext(`{"status":"CANCELLED"}`, rec))

		assertHTTPError(t, err, http.StatusNotFound)
	})
}

func TestBookingHandler_Get(t *testing.T) {
	e := NewTestEcho()

	t.Run("IDで取得できる", func(t *testing.T) {
		mockService := new(MockBookingService)
		mockService.On("GetBooking", mock.Anything, "bk-1").Return(newTestBooking(), nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/bookings/bk-1", nil), rec)
		c.SetParamNames("id")
		c.SetParamValues("bk-1")

		require.NoError(t, NewBookingHandler(mockService).GetByID(c))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"id":"bk-1"`)
	})

	t.Run("予約番号で取得できる", func(t *testing.T) {
		mockService := new(MockBookingService)
		mockService.On("GetBookingByReference", mock.Anything, "BS-20261018-7KQ2ZD").Return(newTestBooking(), nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
		c.SetParamNames("reference")
		c.SetParamValues("BS-20261018-7KQ2ZD")

		require.NoError(t, NewBookingHandler(mockService).GetByReference(c))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("存在しない場合は404", func(t *testing.T) {
		mockService := new(MockBookingService)
		mockService.On("GetBooking", mock.Anything, "missing").Return(nil, booking.ErrBookingNotFound)
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
		c.SetParamNames("id")
		c.SetParamValues("missing")

		assertHTTPError(t, NewBookingHandler(mockService).GetByID(c), http.StatusNotFound)
	})
}

func TestBookingHandler_List(t *testing.T) {
	e := NewTestEcho()

	t.Run("代理店の予約一覧を取得できる", func(t *testing.T) {
		mockService := new(MockBookingService)
		mockService.On("ListAgencyBookings", mock.Anything, "agency-1", 10, 5).
			Return([]*booking.Booking{newTestBooking(), newTestBooking()}, nil)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/bookings?limit=10&offset=5", nil)
		req.Header.Set("X-Agency-ID", "agency-1")
		rec := httptest.NewRecorder()

		require.NoError(t, NewBookingHandler(mockService).List(e.NewContext(req, rec)))

		var resp []BookingResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Len(t, resp, 2)
	})

	t.Run("空の一覧は空配列", func(t *testing.T) {
		mockService := new(MockBookingService)
		mockService.On("ListAgencyBookings", mock.Anything, "agency-1", 0, 0).Return([]*booking.Booking{}, nil)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/bookings", nil)
		req.Header.Set("X-Agency-ID", "agency-1")
		rec := httptest.NewRecorder()

		require.NoError(t, NewBookingHandler(mockService).List(e.NewContext(req, rec)))
		assert.JSONEq(t, `[]`, rec.Body.String())
	})

	t.Run("代理店IDがない場合は401", func(t *testing.T) {
		rec := httptest.NewRecorder()
		err := NewBookingHandler(new(MockBookingService)).List(e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/bookings", nil), rec))
		assertHTTPError(t, err, http.StatusUnauthorized)
	})
}
