package application

import (
	"errors"

	"github.com/sanosuguru/go-blockseat-booking/internal/domain/blockseat"
	"github.com/sanosuguru/go-blockseat-booking/internal/domain/booking"
)

// アプリケーション層のエラー定義
var (
	ErrReferenceTaken               = errors.New("指定された予約番号はすでに使用されています")
	ErrReferenceGenerationExhausted = errors.New("予約番号の採番に失敗しました")
	ErrUnsupportedTargetStatus      = errors.New("変更先のステータスは CONFIRMED または CANCELLED のみ指定できます")
)

// ErrorKind は呼び出し元に見せるエラーの分類
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindNotFound
	KindBadRequest
	KindConflict
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "NOT_FOUND"
	case KindBadRequest:
		return "BAD_REQUEST"
	case KindConflict:
		return "CONFLICT"
	}
	return "INTERNAL"
}

var (
	notFoundErrors = []error{
		blockseat.ErrBlockSeatNotFound,
		blockseat.ErrBlockSeatNotBookable,
		booking.ErrBookingNotFound,
	}
	badRequestErrors = []error{
		blockseat.ErrClassNotFound,
		blockseat.ErrTripDateUnavailable,
		blockseat.ErrReturnDateRequired,
		blockseat.ErrInsufficientSeats,
		blockseat.ErrInvalidQuantity,
		blockseat.ErrInvalidTripType,
		booking.ErrInvalidStatus,
		booking.ErrInvalidTransition,
		booking.ErrBlockSeatIDRequired,
		booking.ErrAgencyIDRequired,
		booking.ErrPassengersRequired,
		booking.ErrQuantityMismatch,
		booking.ErrReferenceRequired,
		ErrUnsupportedTargetStatus,
	}
	conflictErrors = []error{
		blockseat.ErrSeatConflict,
		booking.ErrStatusConflict,
		ErrReferenceTaken,
	}
)

// KindOf はエラーを分類する
// 未知のエラーやトランザクション基盤の障害は KindInternal になる
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindInternal
	}
	if errors.Is(err, ErrReferenceGenerationExhausted) {
		return KindInternal
	}
	for _, target := range notFoundErrors {
		if errors.Is(err, target) {
			return KindNotFound
		}
	}
	for _, target := range badRequestErrors {
		if errors.Is(err, target) {
			return KindBadRequest
		}
	}
	for _, target := range conflictErrors {
		if errors.Is(err, target) {
			return KindConflict
		}
	}
	return KindInternal
}
