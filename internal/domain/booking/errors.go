package booking

import "errors"

// Booking ドメインのエラー定義
var (
	ErrBookingNotFound     = errors.New("予約が見つかりません")
	ErrInvalidStatus       = errors.New("不正な予約ステータスです")
	ErrInvalidTransition   = errors.New("このステータスには変更できません")
	ErrStatusConflict      = errors.New("予約ステータスが他の処理によって変更されました")
	ErrDuplicateReference  = errors.New("予約番号が重複しています")
	ErrBlockSeatIDRequired = errors.New("ブロックシートIDは必須です")
	ErrAgencyIDRequired    = errors.New("代理店IDは必須です")
	ErrPassengersRequired  = errors.New("搭乗者は1名以上必要です")
	ErrQuantityMismatch    = errors.New("座席数と搭乗者数が一致しません")
	ErrReferenceRequired   = errors.New("予約番号は必須です")
)
