package booking

import (
	"context"

	"github.com/sanosuguru/go-blockseat-booking/internal/domain/transaction"
)

// ClassBookedTotal は確定済み予約の座席数をクラス単位で集計したもの
type ClassBookedTotal struct {
	BlockSeatID string `db:"block_seat_id"`
	ClassID     int    `db:"class_id"`
	Quantity    int    `db:"quantity"`
}

// Repository は予約リポジトリのインターフェース
type Repository interface {
	// Create は新しい予約を作成する（トランザクション必須）
	// 予約番号が重複した場合は ErrDuplicateReference を返す
	Create(ctx context.Context, tx transaction.Tx, b *Booking) error

	// ExistsByReference は予約番号が使用済みかを返す
	ExistsByReference(ctx context.Context, tx transaction.Tx, reference string) (bool, error)

	// GetByID はIDから予約を取得する
	GetByID(ctx context.Context, id string) (*Booking, error)

	// GetByIDForUpdate はトランザクション内で行ロック付きで予約を取得する
	GetByIDForUpdate(ctx context.Context, tx transaction.Tx, id string) (*Booking, error)

	// GetByReference は予約番号から予約を取得する
	GetByReference(ctx context.Context, reference string) (*Booking, error)

	// ListByAgency は代理店の予約一覧を取得する
	ListByAgency(ctx context.Context, agencyID string, limit, offset int) ([]*Booking, error)

	// UpdateStatus は現在のステータスが from の場合のみステータスを更新し監査ログを追記する
	// 条件に一致しない場合は ErrStatusConflict を返す
	UpdateStatus(ctx context.Context, tx transaction.Tx, b *Booking, from Status, entry AuditEntry) error

	// SumConfirmedByClass は確定済み予約の座席数をクラス単位で集計する
	SumConfirmedByClass(ctx context.Context, tx transaction.Tx) ([]ClassBookedTotal, error)
}
