package transaction

import (
	"context"
	"errors"
)

// ErrTimeout はトランザクションがタイムアウトした場合のエラー
var ErrTimeout = errors.New("トランザクションがタイムアウトしました")

// Tx はトランザクションを表すインターフェース
// ドメイン層がインフラ層（sqlx等）に依存しないようにするための抽象化
type Tx interface {
	// Commit はトランザクションをコミットする
	Commit() error
	// Rollback はトランザクションをロールバックする
	Rollback() error
}

// Manager はトランザクションを管理するインターフェース
type Manager interface {
	// Begin は新しいトランザクションを開始する
	Begin(ctx context.Context) (Tx, error)

	// WithTx は fn をトランザクション内で実行する
	// fn がエラーを返した場合はロールバックし、成功時のみコミットする
	// 一時的な競合（シリアライゼーション失敗等）は fn ごと再実行される
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// SnapshotRunner は読み取り専用の一貫したスナップショットを提供する
type SnapshotRunner interface {
	// WithSnapshot は fn 内の複数の読み取りを同一時点のデータに対して実行する
	WithSnapshot(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
