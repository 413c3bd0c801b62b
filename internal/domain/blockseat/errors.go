package blockseat

import "errors"

// BlockSeat ドメインのエラー定義
var (
	ErrBlockSeatNotFound    = errors.New("ブロックシートが見つかりません")
	ErrBlockSeatNotBookable = errors.New("ブロックシートは予約受付中ではありません")
	ErrClassNotFound        = errors.New("指定されたクラスは提供されていません")
	ErrTripDateUnavailable  = errors.New("指定された日程は提供されていません")
	ErrReturnDateRequired   = errors.New("往復便には復路日が必要です")
	ErrReturnDateMismatch   = errors.New("復路日は往復便の場合のみ指定できます")
	ErrInsufficientSeats    = errors.New("空席が不足しています")
	ErrSeatConflict         = errors.New("座席はすでに確保できなくなりました")
	ErrInvalidQuantity      = errors.New("座席数は1以上である必要があります")
	ErrNegativeSeats        = errors.New("座席数は0以上である必要があります")
	ErrSeatLedgerMismatch   = errors.New("空席数と予約済み数の合計が総座席数と一致しません")
	ErrInvalidPrice         = errors.New("価格は0以上である必要があります")
	ErrWholesalerIDRequired = errors.New("ホールセラーIDは必須です")
	ErrNameRequired         = errors.New("名称は必須です")
	ErrInvalidTripType      = errors.New("旅程種別が不正です")
	ErrCurrencyRequired     = errors.New("通貨は必須です")
	ErrClassesRequired      = errors.New("クラスは1つ以上必要です")
	ErrDuplicateClassID     = errors.New("クラスIDが重複しています")
)
