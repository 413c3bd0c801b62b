package application

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sanosuguru/go-blockseat-booking/internal/domain/blockseat"
	"github.com/sanosuguru/go-blockseat-booking/internal/domain/booking"
	"github.com/sanosuguru/go-blockseat-booking/internal/domain/transaction"
)

// === Mock implementations ===

// MockTx implements transaction.Tx
type MockTx struct {
	mock.Mock
}

func (m *MockTx) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockTx) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

// MockTxManager implements transaction.Manager
// WithTx は登録された戻り値がエラーでなければ fn をそのまま実行する
type MockTxManager struct {
	mock.Mock
	tx *MockTx
}

func (m *MockTxManager) Begin(ctx context.Context) (transaction.Tx, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(transaction.Tx), args.Error(1)
}

func (m *MockTxManager) WithTx(ctx context.Context, fn func(ctx context.Context, tx transaction.Tx) error) error {
	args := m.Called(ctx)
	if err := args.Error(0); err != nil {
		return err
	}
	return fn(ctx, m.tx)
}

// MockBlockSeatRepository implements blockseat.Repository
type MockBlockSeatRepository struct {
	mock.Mock
}

func (m *MockBlockSeatRepository) Create(ctx context.Context, bs *blockseat.BlockSeat) error {
	args := m.Called(ctx, bs)
	return args.Error(0)
}

func (m *MockBlockSeatRepository) GetByID(ctx context.Context, id string) (*blockseat.BlockSeat, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*blockseat.BlockSeat), args.Error(1)
}

func (m *MockBlockSeatRepository) GetByIDTx(ctx context.Context, tx transaction.Tx, id string) (*blockseat.BlockSeat, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*blockseat.BlockSeat), args.Error(1)
}

func (m *MockBlockSeatRepository) ReserveSeats(ctx context.Context, tx transaction.Tx, blockSeatID string, classID, quantity int) error {
	args := m.Called(ctx, tx, blockSeatID, classID, quantity)
	return args.Error(0)
}

func (m *MockBlockSeatRepository) ReleaseSeats(ctx context.Context, tx transaction.Tx, blockSeatID string, classID, quantity int) error {
	args := m.Called(ctx, tx, blockSeatID, classID, quantity)
	return args.Error(0)
}

func (m *MockBlockSeatRepository) ListClassLedgers(ctx context.Context, tx transaction.Tx) ([]blockseat.ClassLedger, error) {
	args := m.Called(ctx, tx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]blockseat.ClassLedger), args.Error(1)
}

// MockBookingRepository implements booking.Repository
type MockBookingRepository struct {
	mock.Mock
}

func (m *MockBookingRepository) Create(ctx context.Context, tx transaction.Tx, b *booking.Booking) error {
	args := m.Called(ctx, tx, b)
	return args.Error(0)
}

func (m *MockBookingRepository) ExistsByReference(ctx context.Context, tx transaction.Tx, reference string) (bool, error) {
	args := m.Called(ctx, tx, reference)
	return args.Bool(0), args.Error(1)
}

func (m *MockBookingRepository) GetByID(ctx context.Context, id string) (*booking.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*booking.Booking), args.Error(1)
}

func (m *MockBookingRepository) GetByIDForUpdate(ctx context.Context, tx transaction.Tx, id string) (*booking.Booking, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*booking.Booking), args.Error(1)
}

func (m *MockBookingRepository) GetByReference(ctx context.Context, reference string) (*booking.Booking, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*booking.Booking), args.Error(1)
}

func (m *MockBookingRepository) ListByAgency(ctx context.Context, agencyID string, limit, offset int) ([]*booking.Booking, error) {
	args := m.Called(ctx, agencyID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*booking.Booking), args.Error(1)
}

func (m *MockBookingRepository) UpdateStatus(ctx context.Context, tx transaction.Tx, b *booking.Booking, from booking.Status, entry booking.AuditEntry) error {
	args := m.Called(ctx, tx, b, from, entry)
	return args.Error(0)
}

func (m *MockBookingRepository) SumConfirmedByClass(ctx context.Context, tx transaction.Tx) ([]booking.ClassBookedTotal, error) {
	args := m.Called(ctx, tx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]booking.ClassBookedTotal), args.Error(1)
}

// MockAvailabilityCache implements AvailabilityCache
type MockAvailabilityCache struct {
	mock.Mock
}

func (m *MockAvailabilityCache) GetAvailable(ctx context.Context, blockSeatID string, classID int) (int, error) {
	args := m.Called(ctx, blockSeatID, classID)
	return args.Int(0), args.Error(1)
}

func (m *MockAvailabilityCache) SetAvailable(ctx context.Context, blockSeatID string, classID, available int, ttl time.Duration) error {
	args := m.Called(ctx, blockSeatID, classID, available, ttl)
	return args.Error(0)
}

func (m *MockAvailabilityCache) Invalidate(ctx context.Context, blockSeatID string, classID int) error {
	args := m.Called(ctx, blockSeatID, classID)
	return args.Error(0)
}

// MockEventPublisher implements BookingEventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) PublishBookingCreated(ctx context.Context, b *booking.Booking) error {
	args := m.Called(ctx, b)
	return args.Error(0)
}

func (m *MockEventPublisher) PublishBookingStatusChanged(ctx context.Context, b *booking.Booking, from booking.Status) error {
	args := m.Called(ctx, b, from)
	return args.Error(0)
}

// === Fixtures ===

var testDeparture = time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)

func newTestBlockSeat(tripType blockseat.TripType, totalSeats int) *blockseat.BlockSeat {
	date := blockseat.TripDate{DepartureDate: testDeparture}
	if tripType == blockseat.TripTypeRoundTrip {
		ret := testDeparture.AddDate(0, 0, 7)
		date.ReturnDate = &ret
	}
	agency := 5.0
	bs := blockseat.NewBlockSeat("ws-1", "NRT-BKK 11月",
		blockseat.Airline{Code: "TG", Name: "Thai Airways"},
		blockseat.Route{From: "NRT", To: "BKK", TripType: tripType},
		[]blockseat.TripDate{date},
		[]blockseat.Class{{ClassID: 1, Name: "Economy", TotalSeats: totalSeats, Price: 45000}},
		"USD",
	)
	bs.ID = "bs-1"
	bs.Commission.Agency = &agency
	return bs
}

func passengers(n int) []booking.Passenger {
	ps := make([]booking.Passenger, n)
	for i := range ps {
		ps[i] = booking.Passenger{FirstName: "Passenger", LastName: string(rune('A' + i))}
	}
	return ps
}
