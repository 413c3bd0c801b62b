package application

import (
	"context"
	"time"

	"github.com/sanosuguru/go-blockseat-booking/internal/domain/blockseat"
	"github.com/sanosuguru/go-blockseat-booking/internal/domain/transaction"
)

// AllocationRequest は座席確保の要求
type AllocationRequest struct {
	ClassID       int
	Quantity      int
	DepartureDate time.Time
	ReturnDate    *time.Time
}

// SeatAllocator はクラス単位の座席プールを増減する
// 座席数の変更は必ずストア側の条件付き更新で行い、アプリケーション側で読み書きしない
type SeatAllocator struct {
	repo blockseat.Repository
}

func NewSeatAllocator(repo blockseat.Repository) *SeatAllocator {
	return &SeatAllocator{repo: repo}
}

// Reserve は事前条件を確認したうえで座席を確保する
// 事前の空席チェックは早期にわかりやすいエラーを返すためのもので、同時実行の保証は条件付き更新が担う
func (a *SeatAllocator) Reserve(ctx context.Context, tx transaction.Tx, bs *blockseat.BlockSeat, req AllocationRequest) (*blockseat.Class, error) {
	if !bs.IsBookable() {
		return nil, blockseat.ErrBlockSeatNotBookable
	}
	if _, err := bs.MatchTripDate(req.DepartureDate, req.ReturnDate); err != nil {
		return nil, err
	}
	class, err := bs.FindClass(req.ClassID)
	if err != nil {
		return nil, err
	}
	if req.Quantity <= 0 {
		return nil, blockseat.ErrInvalidQuantity
	}
	if class.AvailableSeats < req.Quantity {
		return nil, blockseat.ErrInsufficientSeats
	}

	if err := a.repo.ReserveSeats(ctx, tx, bs.ID, req.ClassID, req.Quantity); err != nil {
		return nil, err
	}
	return class, nil
}

// Release は確保済みの座席を空席に戻す
// 更新対象が見つからない場合は台帳の不整合として ErrSeatConflict を返す
func (a *SeatAllocator) Release(ctx context.Context, tx transaction.Tx, blockSeatID string, classID, quantity int) error {
	return a.repo.ReleaseSeats(ctx, tx, blockSeatID, classID, quantity)
}
