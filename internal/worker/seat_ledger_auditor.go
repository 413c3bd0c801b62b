package worker

import (
	"context"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-blockseat-booking/internal/domain/blockseat"
	"github.com/sanosuguru/go-blockseat-booking/internal/domain/booking"
	"github.com/sanosuguru/go-blockseat-booking/internal/domain/transaction"
	"github.com/sanosuguru/go-blockseat-booking/internal/pkg/logger"
	"github.com/sanosuguru/go-blockseat-booking/internal/pkg/metrics"
)

// 不整合の種類
const (
	ViolationSeatSum     = "seat_sum_mismatch"
	ViolationBookedTotal = "booked_total_mismatch"
)

// LedgerSource はクラス単位の座席台帳を返す
type LedgerSource interface {
	ListClassLedgers(ctx context.Context, tx transaction.Tx) ([]blockseat.ClassLedger, error)
}

// BookedTotalSource は確定済み予約の座席数を集計する
type BookedTotalSource interface {
	SumConfirmedByClass(ctx context.Context, tx transaction.Tx) ([]booking.ClassBookedTotal, error)
}

// LedgerViolation は検出した台帳の不整合
type LedgerViolation struct {
	BlockSeatID    string
	ClassID        int
	Kind           string
	TotalSeats     int
	AvailableSeats int
	BookedSeats    int
	ConfirmedSeats int
}

type classKey struct {
	blockSeatID string
	classID     int
}

// SeatLedgerAuditor は座席台帳と予約の整合性を定期的に確認するワーカー
// 検出のみを行い、データは変更しない
type SeatLedgerAuditor struct {
	snapshots transaction.SnapshotRunner
	ledgers   LedgerSource
	bookings  BookedTotalSource
	metrics   *metrics.Metrics
	interval  time.Duration
	stopCh    chan struct{}
	doneCh    chan struct{}
	stopOnce  sync.Once
}

// NewSeatLedgerAuditor は新しい監査ワーカーを作成
// 台帳と予約の集計は snapshots が提供する同一スナップショットから読む
func NewSeatLedgerAuditor(snapshots transaction.SnapshotRunner, ledgers LedgerSource, bookings BookedTotalSource, m *metrics.Metrics, interval time.Duration) *SeatLedgerAuditor {
	return &SeatLedgerAuditor{
		snapshots: snapshots,
		ledgers:   ledgers,
		bookings:  bookings,
		metrics:   m,
		interval:  interval,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start は監査を開始する
// 起動直後に1回実行し、その後は interval ごとに実行する
func (a *SeatLedgerAuditor) Start(ctx context.Context) {
	logger.Info("座席台帳監査開始", zap.Duration("interval", a.interval))

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	defer close(a.doneCh)

	a.run(ctx)
	for {
		select {
		case <-ctx.Done():
			logger.Info("座席台帳監査停止（コンテキストキャンセル）")
			return
		case <-a.stopCh:
			logger.Info("座席台帳監査停止（シグナル受信）")
			return
		case <-ticker.C:
			a.run(ctx)
		}
	}
}

// Stop は監査を停止し、実行中の監査の終了を待つ
func (a *SeatLedgerAuditor) Stop() {
	a.stopOnce.Do(func() { close(a.stopCh) })
	<-a.doneCh
}

func (a *SeatLedgerAuditor) run(ctx context.Context) {
	violations, err := a.Audit(ctx)
	if err != nil {
		logger.Error("座席台帳監査に失敗", zap.Error(err))
		return
	}
	if len(violations) == 0 {
		logger.Debug("座席台帳の不整合なし")
	}
}

// Audit は全クラスの座席台帳を検査して不整合を返す
func (a *SeatLedgerAuditor) Audit(ctx context.Context) ([]LedgerViolation, error) {
	var (
		ledgers []blockseat.ClassLedger
		totals  []booking.ClassBookedTotal
	)
	err := a.snapshots.WithSnapshot(ctx, func(ctx context.Context, tx transaction.Tx) error {
		var err error
		if ledgers, err = a.ledgers.ListClassLedgers(ctx, tx); err != nil {
			return err
		}
		totals, err = a.bookings.SumConfirmedByClass(ctx, tx)
		return err
	})
	if err != nil {
		return nil, err
	}

	confirmed := lo.Associate(totals, func(t booking.ClassBookedTotal) (classKey, int) {
		return classKey{blockSeatID: t.BlockSeatID, classID: t.ClassID}, t.Quantity
	})

	var violations []LedgerViolation
	for _, l := range ledgers {
		v := LedgerViolation{
			BlockSeatID:    l.BlockSeatID,
			ClassID:        l.ClassID,
			TotalSeats:     l.TotalSeats,
			AvailableSeats: l.AvailableSeats,
			BookedSeats:    l.BookedSeats,
			ConfirmedSeats: confirmed[classKey{blockSeatID: l.BlockSeatID, classID: l.ClassID}],
		}
		if l.AvailableSeats < 0 || l.BookedSeats < 0 || l.AvailableSeats+l.BookedSeats != l.TotalSeats {
			v.Kind = ViolationSeatSum
			violations = append(violations, v)
			continue
		}
		if l.BookedSeats != v.ConfirmedSeats {
			v.Kind = ViolationBookedTotal
			violations = append(violations, v)
		}
	}

	for _, v := range violations {
		logger.Error("座席台帳の不整合を検出",
			zap.String("block_seat_id", v.BlockSeatID),
			zap.Int("class_id", v.ClassID),
			zap.String("kind", v.Kind),
			zap.Int("total_seats", v.TotalSeats),
			zap.Int("available_seats", v.AvailableSeats),
			zap.Int("booked_seats", v.BookedSeats),
			zap.Int("confirmed_seats", v.ConfirmedSeats),
		)
	}
	if a.metrics != nil {
		a.metrics.LedgerViolations.Set(float64(len(violations)))
	}
	return violations, nil
}
