package application

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-blockseat-booking/internal/domain/blockseat"
	redisinfra "github.com/sanosuguru/go-blockseat-booking/internal/infrastructure/redis"
	"github.com/sanosuguru/go-blockseat-booking/internal/pkg/logger"
)

const defaultAvailabilityTTL = 30 * time.Second

// ClassAvailability はクラスの空席状況
type ClassAvailability struct {
	BlockSeatID    string
	ClassID        int
	AvailableSeats int
	FromCache      bool
}

type BlockSeatService struct {
	repo  blockseat.Repository
	cache AvailabilityCache
	ttl   time.Duration
}

func NewBlockSeatService(repo blockseat.Repository, cache AvailabilityCache, ttl time.Duration) *BlockSeatService {
	if ttl <= 0 {
		ttl = defaultAvailabilityTTL
	}
	return &BlockSeatService{repo: repo, cache: cache, ttl: ttl}
}

// GetBlockSeat は論理削除されていないブロックシートを返す
func (s *BlockSeatService) GetBlockSeat(ctx context.Context, id string) (*blockseat.BlockSeat, error) {
	bs, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if bs.IsDeleted {
		return nil, blockseat.ErrBlockSeatNotFound
	}
	return bs, nil
}

// GetClassAvailability はクラスの空席数を返す
// 表示用の値であり、予約可否の判定には使わない
func (s *BlockSeatService) GetClassAvailability(ctx context.Context, blockSeatID string, classID int) (*ClassAvailability, error) {
	// キャッシュから取得を試みる
	if s.cache != nil {
		available, err := s.cache.GetAvailable(ctx, blockSeatID, classID)
		if err == nil {
			logger.Debug("キャッシュヒット", zap.String("block_seat_id", blockSeatID), zap.Int("class_id", classID))
			return &ClassAvailability{BlockSeatID: blockSeatID, ClassID: classID, AvailableSeats: available, FromCache: true}, nil
		}
		if !errors.Is(err, redisinfra.ErrCacheMiss) {
			logger.Warn("キャッシュ取得エラー", zap.Error(err))
		}
	}

	// DBから取得
	bs, err := s.GetBlockSeat(ctx, blockSeatID)
	if err != nil {
		return nil, err
	}
	class, err := bs.FindClass(classID)
	if err != nil {
		return nil, err
	}

	// キャッシュに保存
	// 読み取りと保存の間に予約が確定して無効化された場合、古い値が ttl の間残りうる
	// 表示用の値なので ttl をずれの上限として許容する
	if s.cache != nil {
		if cacheErr := s.cache.SetAvailable(ctx, blockSeatID, classID, class.AvailableSeats, s.ttl); cacheErr != nil {
			logger.Warn("キャッシュ保存エラー", zap.Error(cacheErr))
		}
	}

	return &ClassAvailability{BlockSeatID: blockSeatID, ClassID: classID, AvailableSeats: class.AvailableSeats}, nil
}
