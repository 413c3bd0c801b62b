package blockseat

import (
	"context"

	"github.com/sanosuguru/go-blockseat-booking/internal/domain/transaction"
)

// ClassLedger は監査用のクラス単位の座席台帳
type ClassLedger struct {
	BlockSeatID    string
	ClassID        int
	TotalSeats     int
	AvailableSeats int
	BookedSeats    int
}

// Repository はブロックシートリポジトリのインターフェース
type Repository interface {
	// Create は新しいブロックシートをクラスと共に作成する
	Create(ctx context.Context, bs *BlockSeat) error

	// GetByID はIDからブロックシートを取得する
	GetByID(ctx context.Context, id string) (*BlockSeat, error)

	// GetByIDTx はトランザクション内でブロックシートを取得する
	GetByIDTx(ctx context.Context, tx transaction.Tx, id string) (*BlockSeat, error)

	// ReserveSeats は空席を予約済みに移す条件付き更新（トランザクション必須）
	// 空席数が quantity 未満の場合は ErrSeatConflict を返す
	ReserveSeats(ctx context.Context, tx transaction.Tx, blockSeatID string, classID, quantity int) error

	// ReleaseSeats は予約済みを空席に戻す条件付き更新（トランザクション必須）
	ReleaseSeats(ctx context.Context, tx transaction.Tx, blockSeatID string, classID, quantity int) error

	// ListClassLedgers は全クラスの座席台帳を取得する
	ListClassLedgers(ctx context.Context, tx transaction.Tx) ([]ClassLedger, error)
}
