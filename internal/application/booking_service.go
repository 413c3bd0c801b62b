package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-blockseat-booking/internal/domain/blockseat"
	"github.com/sanosuguru/go-blockseat-booking/internal/domain/booking"
	"github.com/sanosuguru/go-blockseat-booking/internal/domain/transaction"
	"github.com/sanosuguru/go-blockseat-booking/internal/pkg/logger"
	"github.com/sanosuguru/go-blockseat-booking/internal/pkg/metrics"
)

const (
	// 採番した予約番号が挿入時に重複した場合の再実行回数
	maxDuplicateReferenceReruns = 2

	defaultListLimit = 20
	maxListLimit     = 100
)

// AvailabilityCache は空席数の読み取りキャッシュ
type AvailabilityCache interface {
	GetAvailable(ctx context.Context, blockSeatID string, classID int) (int, error)
	SetAvailable(ctx context.Context, blockSeatID string, classID, available int, ttl time.Duration) error
	Invalidate(ctx context.Context, blockSeatID string, classID int) error
}

// BookingEventPublisher はコミット後の予約イベントを発行する
type BookingEventPublisher interface {
	PublishBookingCreated(ctx context.Context, b *booking.Booking) error
	PublishBookingStatusChanged(ctx context.Context, b *booking.Booking, from booking.Status) error
}

type BookingService struct {
	txManager     transaction.Manager
	bookingRepo   booking.Repository
	blockSeatRepo blockseat.Repository
	allocator     *SeatAllocator
	references    *ReferenceGenerator
	cache         AvailabilityCache
	events        BookingEventPublisher
	metrics       *metrics.Metrics
}

// BookingServiceOption は BookingService の任意の依存を設定する
type BookingServiceOption func(*BookingService)

func WithAvailabilityCache(c AvailabilityCache) BookingServiceOption {
	return func(s *BookingService) { s.cache = c }
}

func WithEventPublisher(p BookingEventPublisher) BookingServiceOption {
	return func(s *BookingService) { s.events = p }
}

func WithMetrics(m *metrics.Metrics) BookingServiceOption {
	return func(s *BookingService) { s.metrics = m }
}

func NewBookingService(txm transaction.Manager, br booking.Repository, bsr blockseat.Repository, refs *ReferenceGenerator, opts ...BookingServiceOption) *BookingService {
	s := &BookingService{
		txManager:     txm,
		bookingRepo:   br,
		blockSeatRepo: bsr,
		allocator:     NewSeatAllocator(bsr),
		references:    refs,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateBookingInput struct {
	BlockSeatID string
	AgencyID    string
	ClassID     int
	Trip        booking.Trip
	Passengers  []booking.Passenger
	Contact     booking.Contact
	Reference   string // 空の場合は採番する
	Notes       string
	ActorID     *string
}

// CreateBooking は座席の確保と予約の登録を1トランザクションで行う
func (s *BookingService) CreateBooking(ctx context.Context, input CreateBookingInput) (*booking.Booking, error) {
	b, err := s.createBooking(ctx, input)
	s.recordBooking(err)
	if err != nil {
		if KindOf(err) == KindInternal {
			logger.Error("予約作成に失敗", zap.String("block_seat_id", input.BlockSeatID), zap.Error(err))
		}
		return nil, err
	}

	s.invalidateAvailability(ctx, b.BlockSeatID, b.ClassID)
	s.publishCreated(ctx, b)
	logger.WithBooking(b.Reference, b.BlockSeatID, b.ClassID).Info("予約を作成しました",
		zap.String("booking_id", b.ID),
		zap.String("agency_id", b.AgencyID),
		zap.Int("quantity", b.Quantity),
	)
	return b, nil
}

func (s *BookingService) createBooking(ctx context.Context, input CreateBookingInput) (*booking.Booking, error) {
	if input.BlockSeatID == "" {
		return nil, booking.ErrBlockSeatIDRequired
	}
	if input.AgencyID == "" {
		return nil, booking.ErrAgencyIDRequired
	}
	if len(input.Passengers) == 0 {
		return nil, booking.ErrPassengersRequired
	}

	for rerun := 0; ; rerun++ {
		var created *booking.Booking
		err := s.txManager.WithTx(ctx, func(ctx context.Context, tx transaction.Tx) error {
			b, err := s.bookInTx(ctx, tx, input)
			if err != nil {
				return err
			}
			created = b
			return nil
		})
		if err == nil {
			return created, nil
		}
		if !errors.Is(err, booking.ErrDuplicateReference) {
			return nil, err
		}
		if input.Reference != "" {
			return nil, fmt.Errorf("%w: %s", ErrReferenceTaken, input.Reference)
		}
		if rerun >= maxDuplicateReferenceReruns {
			return nil, fmt.Errorf("%w: %w", ErrReferenceGenerationExhausted, err)
		}
		logger.Warn("採番した予約番号が重複したため再実行します", zap.Int("rerun", rerun+1))
	}
}

// bookInTx は予約作成の各手順をトランザクション内で実行する
func (s *BookingService) bookInTx(ctx context.Context, tx transaction.Tx, input CreateBookingInput) (*booking.Booking, error) {
	reference, err := s.resolveReference(ctx, tx, input.Reference)
	if err != nil {
		return nil, err
	}

	// トランザクション内で読み直した状態で検証する
	bs, err := s.blockSeatRepo.GetByIDTx(ctx, tx, input.BlockSeatID)
	if err != nil {
		return nil, err
	}

	quantity := len(input.Passengers)
	class, err := s.allocator.Reserve(ctx, tx, bs, AllocationRequest{
		ClassID:       input.ClassID,
		Quantity:      quantity,
		DepartureDate: input.Trip.DepartureDate,
		ReturnDate:    input.Trip.ReturnDate,
	})
	if err != nil {
		return nil, err
	}

	trip := booking.Trip{
		TripType:      string(bs.Route.TripType),
		DepartureDate: blockseat.NormalizeDate(input.Trip.DepartureDate),
	}
	if bs.Route.TripType == blockseat.TripTypeRoundTrip && input.Trip.ReturnDate != nil {
		ret := blockseat.NormalizeDate(*input.Trip.ReturnDate)
		trip.ReturnDate = &ret
	}

	price := booking.PriceSnapshot{
		Currency:    bs.Currency,
		UnitPrice:   class.Price,
		TotalAmount: class.Price * int64(quantity),
		Commission:  booking.Commission{Supplier: bs.Commission.Supplier, Agency: bs.Commission.Agency},
	}

	b := booking.NewBooking(reference, bs.ID, input.AgencyID, class.ClassID, trip, input.Passengers, input.Contact, price, input.ActorID)
	wholesalerID := bs.WholesalerID
	b.WholesalerID = &wholesalerID
	b.Notes = input.Notes
	if err := b.Validate(); err != nil {
		return nil, err
	}

	if err := s.bookingRepo.Create(ctx, tx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// resolveReference は指定された予約番号の使用可否を確認するか、新しく採番する
func (s *BookingService) resolveReference(ctx context.Context, tx transaction.Tx, requested string) (string, error) {
	exists := func(ctx context.Context, reference string) (bool, error) {
		return s.bookingRepo.ExistsByReference(ctx, tx, reference)
	}
	if requested == "" {
		return s.references.Generate(ctx, exists)
	}
	used, err := exists(ctx, requested)
	if err != nil {
		return "", fmt.Errorf("予約番号の確認に失敗: %w", err)
	}
	if used {
		return "", booking.ErrDuplicateReference
	}
	return requested, nil
}

type UpdateBookingStatusInput struct {
	BookingID    string
	TargetStatus booking.Status
	ActorID      *string
}

// UpdateBookingStatus は予約ステータスを変更する
// 同一ステータスへの変更は何もせず現在の予約を返す
// 確定済みのキャンセルでは座席の解放とステータス更新を同一トランザクションで行う
func (s *BookingService) UpdateBookingStatus(ctx context.Context, input UpdateBookingStatusInput) (*booking.Booking, error) {
	if !input.TargetStatus.IsValid() {
		return nil, booking.ErrInvalidStatus
	}
	if input.TargetStatus != booking.StatusConfirmed && input.TargetStatus != booking.StatusCancelled {
		return nil, ErrUnsupportedTargetStatus
	}

	var (
		result   *booking.Booking
		from     booking.Status
		changed  bool
		released bool
	)
	err := s.txManager.WithTx(ctx, func(ctx context.Context, tx transaction.Tx) error {
		result, from, changed, released = nil, "", false, false

		// 同じ予約への同時変更はここで直列化される
		b, err := s.bookingRepo.GetByIDForUpdate(ctx, tx, input.BookingID)
		if err != nil {
			return err
		}
		change, release, err := b.PlanTransition(input.TargetStatus)
		if err != nil {
			return err
		}
		if !change {
			result = b
			return nil
		}

		from = b.Status
		if release {
			if err := s.allocator.Release(ctx, tx, b.BlockSeatID, b.ClassID, b.Quantity); err != nil {
				s.recordRelease(err)
				return err
			}
		}
		entry := b.ApplyTransition(input.TargetStatus, input.ActorID, map[string]any{"from": string(from)})
		if err := s.bookingRepo.UpdateStatus(ctx, tx, b, from, entry); err != nil {
			return err
		}
		result, changed, released = b, true, release
		return nil
	})
	if err != nil {
		if KindOf(err) == KindInternal {
			logger.Error("予約ステータス変更に失敗", zap.String("booking_id", input.BookingID), zap.Error(err))
		}
		return nil, err
	}

	if released {
		s.recordRelease(nil)
		s.invalidateAvailability(ctx, result.BlockSeatID, result.ClassID)
	}
	if changed {
		s.publishStatusChanged(ctx, result, from)
		logger.WithBooking(result.Reference, result.BlockSeatID, result.ClassID).Info("予約ステータスを変更しました",
			zap.String("booking_id", result.ID),
			zap.String("from", string(from)),
			zap.String("to", string(result.Status)),
			zap.Bool("seats_released", released),
		)
	}
	return result, nil
}

func (s *BookingService) GetBooking(ctx context.Context, id string) (*booking.Booking, error) {
	return s.bookingRepo.GetByID(ctx, id)
}

func (s *BookingService) GetBookingByReference(ctx context.Context, reference string) (*booking.Booking, error) {
	return s.bookingRepo.GetByReference(ctx, reference)
}

func (s *BookingService) ListAgencyBookings(ctx context.Context, agencyID string, limit, offset int) ([]*booking.Booking, error) {
	if agencyID == "" {
		return nil, booking.ErrAgencyIDRequired
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.bookingRepo.ListByAgency(ctx, agencyID, limit, offset)
}

// invalidateAvailability はコミット後に空席数キャッシュを破棄する
func (s *BookingService) invalidateAvailability(ctx context.Context, blockSeatID string, classID int) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, blockSeatID, classID); err != nil {
		logger.Warn("キャッシュ無効化エラー", zap.String("block_seat_id", blockSeatID), zap.Int("class_id", classID), zap.Error(err))
	}
}

// イベント発行の失敗は予約の結果に影響させない
func (s *BookingService) publishCreated(ctx context.Context, b *booking.Booking) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishBookingCreated(ctx, b); err != nil {
		logger.Warn("予約作成イベントの発行に失敗", zap.String("reference", b.Reference), zap.Error(err))
	}
}

func (s *BookingService) publishStatusChanged(ctx context.Context, b *booking.Booking, from booking.Status) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishBookingStatusChanged(ctx, b, from); err != nil {
		logger.Warn("ステータス変更イベントの発行に失敗", zap.String("reference", b.Reference), zap.Error(err))
	}
}

func (s *BookingService) recordBooking(err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.BookingsTotal.WithLabelValues(resultLabel(err)).Inc()
}

func (s *BookingService) recordRelease(err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.SeatReleasesTotal.WithLabelValues(resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	if err == nil {
		return metrics.ResultSuccess
	}
	switch KindOf(err) {
	case KindNotFound:
		return metrics.ResultNotFound
	case KindBadRequest:
		return metrics.ResultBadRequest
	case KindConflict:
		return metrics.ResultConflict
	}
	return metrics.ResultError
}
