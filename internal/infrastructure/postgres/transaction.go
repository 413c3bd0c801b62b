package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-blockseat-booking/internal/domain/transaction"
	"github.com/sanosuguru/go-blockseat-booking/internal/pkg/logger"
	"github.com/sanosuguru/go-blockseat-booking/internal/pkg/metrics"
)

// 再実行対象の PostgreSQL エラーコード
const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqUniqueViolation      = "23505"
)

// ErrTxUnavailable はリポジトリに sqlx 以外の Tx が渡された場合のエラー
var ErrTxUnavailable = errors.New("トランザクションが取得できません")

// TxWrapper は sqlx.Tx を transaction.Tx インターフェースでラップする
type TxWrapper struct {
	*sqlx.Tx
}

// Commit はトランザクションをコミットする
func (t *TxWrapper) Commit() error {
	return t.Tx.Commit()
}

// Rollback はトランザクションをロールバックする
func (t *TxWrapper) Rollback() error {
	return t.Tx.Rollback()
}

// TxOptions は WithTx の動作設定
type TxOptions struct {
	Timeout       time.Duration
	MaxRetries    int
	RetryInterval time.Duration
}

// DefaultTxOptions はデフォルトのトランザクション設定
var DefaultTxOptions = TxOptions{
	Timeout:       5 * time.Second,
	MaxRetries:    3,
	RetryInterval: 50 * time.Millisecond,
}

// TxManager は sqlx.DB を使用したトランザクションマネージャー
type TxManager struct {
	db      *sqlx.DB
	opts    TxOptions
	metrics *metrics.Metrics
}

// NewTxManager は新しい TxManager を作成する
func NewTxManager(db *sqlx.DB, opts TxOptions, m *metrics.Metrics) *TxManager {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTxOptions.Timeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultTxOptions.RetryInterval
	}
	return &TxManager{db: db, opts: opts, metrics: m}
}

// Begin は新しいトランザクションを開始する
func (m *TxManager) Begin(ctx context.Context) (transaction.Tx, error) {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &TxWrapper{Tx: tx}, nil
}

// WithTx は fn をトランザクション内で実行する
// シリアライゼーション失敗・デッドロックのみ指数バックオフで再実行する
func (m *TxManager) WithTx(ctx context.Context, fn func(ctx context.Context, tx transaction.Tx) error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = m.opts.RetryInterval
	policy.MaxElapsedTime = 0

	var b backoff.BackOff = backoff.WithMaxRetries(policy, uint64(m.opts.MaxRetries))
	b = backoff.WithContext(b, ctx)

	op := func() error {
		err := m.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if isRetryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	notify := func(err error, wait time.Duration) {
		logger.Warn("トランザクションを再実行します", zap.Error(err), zap.Duration("wait", wait))
		if m.metrics != nil {
			m.metrics.TransactionRetriesTotal.Inc()
		}
	}

	return backoff.RetryNotify(op, b, notify)
}

// runOnce はタイムアウト付きで1回分のトランザクションを実行する
// どの経路で抜けてもコミットかロールバックのどちらかが必ず行われる
func (m *TxManager) runOnce(ctx context.Context, fn func(ctx context.Context, tx transaction.Tx) error) (err error) {
	txCtx, cancel := context.WithTimeout(ctx, m.opts.Timeout)
	defer cancel()

	tx, err := m.Begin(txCtx)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", withTimeout(txCtx, ctx, err))
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			logger.Warn("ロールバックに失敗", zap.Error(rbErr))
		}
		if p := recover(); p != nil {
			panic(p)
		}
	}()

	if err = fn(txCtx, tx); err != nil {
		return withTimeout(txCtx, ctx, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("コミットに失敗: %w", withTimeout(txCtx, ctx, err))
	}
	committed = true
	return nil
}

// WithSnapshot は fn を読み取り専用の REPEATABLE READ トランザクションで実行する
// fn 内の読み取りはすべて同じスナップショットを参照する。書き込みを伴わないため常にロールバックで終える
func (m *TxManager) WithSnapshot(ctx context.Context, fn func(ctx context.Context, tx transaction.Tx) error) error {
	txCtx, cancel := context.WithTimeout(ctx, m.opts.Timeout)
	defer cancel()

	stx, err := m.db.BeginTxx(txCtx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return fmt.Errorf("読み取りトランザクション開始に失敗: %w", withTimeout(txCtx, ctx, err))
	}
	defer func() {
		if rbErr := stx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			logger.Warn("ロールバックに失敗", zap.Error(rbErr))
		}
	}()

	if err := fn(txCtx, &TxWrapper{Tx: stx}); err != nil {
		return withTimeout(txCtx, ctx, err)
	}
	return nil
}

// withTimeout はトランザクション固有のタイムアウトを ErrTimeout として識別可能にする
// 呼び出し元のキャンセルはそのまま返す
func withTimeout(txCtx, parent context.Context, err error) error {
	if errors.Is(txCtx.Err(), context.DeadlineExceeded) && parent.Err() == nil {
		return fmt.Errorf("%w: %w", transaction.ErrTimeout, err)
	}
	return err
}

func isRetryable(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqSerializationFailure || pqErr.Code == pqDeadlockDetected
	}
	return false
}

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != pqUniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

// UnwrapTx は transaction.Tx から sqlx.Tx を取り出す
// リポジトリ実装で使用する
func UnwrapTx(tx transaction.Tx) *sqlx.Tx {
	if wrapper, ok := tx.(*TxWrapper); ok {
		return wrapper.Tx
	}
	return nil
}

func unwrapTx(tx transaction.Tx) (*sqlx.Tx, error) {
	stx := UnwrapTx(tx)
	if stx == nil {
		return nil, ErrTxUnavailable
	}
	return stx, nil
}

var (
	_ transaction.Manager        = (*TxManager)(nil)
	_ transaction.SnapshotRunner = (*TxManager)(nil)
)
