package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-blockseat-booking/internal/pkg/logger"
)

// RunMigrations はスキーマを最新まで適用し、適用後のバージョンをログに残す
// migrationsPath はディレクトリパスか、スキーム付きのソースURL
func RunMigrations(db *sql.DB, migrationsPath string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("マイグレーションドライバー作成エラー: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(sourceURL(migrationsPath), "postgres", driver)
	if err != nil {
		return fmt.Errorf("マイグレーションインスタンス作成エラー: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("マイグレーション実行エラー: %w", err)
	}

	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		logger.Info("適用済みのマイグレーションはありません")
	case err != nil:
		return fmt.Errorf("マイグレーションバージョン取得エラー: %w", err)
	case dirty:
		return fmt.Errorf("マイグレーション %d が途中で失敗しています", version)
	default:
		logger.Info("スキーマは最新です", zap.Uint("version", version))
	}

	return nil
}

// sourceURL はスキームのないパスを file ソースとして扱う
func sourceURL(path string) string {
	if strings.Contains(path, "://") {
		return path
	}
	return "file://" + path
}
