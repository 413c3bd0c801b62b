package application

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	referenceAlphabet      = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	referenceRandomLength  = 6
	fallbackRandomLength   = 4
	maxReferenceAttempts   = 3
	defaultReferencePrefix = "BS"
)

// ReferenceExistsFunc は予約番号が使用済みかを返す
type ReferenceExistsFunc func(ctx context.Context, reference string) (bool, error)

// ReferenceGenerator は予約番号を採番する
type ReferenceGenerator struct {
	prefix string
	now    func() time.Time
	random func(n int) string
}

// NewReferenceGenerator は新しい ReferenceGenerator を作成する
func NewReferenceGenerator(prefix string) *ReferenceGenerator {
	if prefix == "" {
		prefix = defaultReferencePrefix
	}
	return &ReferenceGenerator{prefix: prefix, now: time.Now, random: randomAlphanumeric}
}

// WithClock は日付部分に使う時計を差し替える
func (g *ReferenceGenerator) WithClock(now func() time.Time) *ReferenceGenerator {
	g.now = now
	return g
}

// Generate は未使用の予約番号を返す
// 3回とも使用済みだった場合は存在確認なしのフォールバック形式を返す
func (g *ReferenceGenerator) Generate(ctx context.Context, exists ReferenceExistsFunc) (string, error) {
	for i := 0; i < maxReferenceAttempts; i++ {
		candidate := g.candidate()
		used, err := exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("予約番号の確認に失敗: %w", err)
		}
		if !used {
			return candidate, nil
		}
	}
	return g.fallback(), nil
}

// candidate は {PREFIX}-{YYYYMMDD}-{6桁英数字} 形式の候補を返す
func (g *ReferenceGenerator) candidate() string {
	return fmt.Sprintf("%s-%s-%s", g.prefix, g.now().UTC().Format("20060102"), g.random(referenceRandomLength))
}

// fallback は {エポックミリ秒}-{4桁英数字} 形式の予約番号を返す
func (g *ReferenceGenerator) fallback() string {
	return fmt.Sprintf("%d-%s", g.now().UnixMilli(), g.random(fallbackRandomLength))
}

// randomAlphanumeric は大文字英数字のランダム文字列を返す
// 乱数源には UUIDv4 のバイト列を使い、偏りが出ないよう 252 以上の値は捨てる
func randomAlphanumeric(n int) string {
	const unbiasedLimit = 256 - 256%len(referenceAlphabet)

	out := make([]byte, 0, n)
	for len(out) < n {
		id := uuid.New()
		for i, b := range id {
			// 6 バイト目と 8 バイト目はバージョンとバリアントのビットを含む
			if i == 6 || i == 8 || int(b) >= unbiasedLimit {
				continue
			}
			out = append(out, referenceAlphabet[int(b)%len(referenceAlphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out)
}
