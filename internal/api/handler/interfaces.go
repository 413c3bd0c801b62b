package handler

import (
	"context"

	"github.com/sanosuguru/go-blockseat-booking/internal/application"
	"github.com/sanosuguru/go-blockseat-booking/internal/domain/blockseat"
	"github.com/sanosuguru/go-blockseat-booking/internal/domain/booking"
)

// BookingServiceInterface は予約サービスのインターフェース
type BookingServiceInterface interface {
	CreateBooking(ctx context.Context, input application.CreateBookingInput) (*booking.Booking, error)
	UpdateBookingStatus(ctx context.Context, input application.UpdateBookingStatusInput) (*booking.Booking, error)
	GetBooking(ctx context.Context, id string) (*booking.Booking, error)
	GetBookingByReference(ctx context.Context, reference string) (*booking.Booking, error)
	ListAgencyBookings(ctx context.Context, agencyID string, limit, offset int) ([]*booking.Booking, error)
}

// BlockSeatServiceInterface はブロックシートサービスのインターフェース
type BlockSeatServiceInterface interface {
	GetBlockSeat(ctx context.Context, id string) (*blockseat.BlockSeat, error)
	GetClassAvailability(ctx context.Context, blockSeatID string, classID int) (*application.ClassAvailability, error)
}

// HealthChecker は依存先の疎通確認
type HealthChecker func(ctx context.Context) error
