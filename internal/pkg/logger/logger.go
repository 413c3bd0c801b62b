package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ServiceName はすべてのログに付与されるサービス名
const ServiceName = "blockseat-booking"

var log *zap.Logger

func init() {
	log = NewLogger("development")
}

// NewLogger は環境に応じたロガーを作成する
// 設定が不正な場合は何も出力しないロガーを返す
func NewLogger(env string) *zap.Logger {
	logger, err := newConfig(env, os.Getenv("LOG_LEVEL")).Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// newConfig は production では JSON、それ以外ではカラー付きコンソール出力の設定を返す
// level が解釈できない場合は環境の既定レベルのままにする
func newConfig(env, level string) zap.Config {
	var config zap.Config
	if env == "production" {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if level != "" {
		var lvl zapcore.Level
		if err := lvl.UnmarshalText([]byte(level)); err == nil {
			config.Level = zap.NewAtomicLevelAt(lvl)
		}
	}

	config.InitialFields = map[string]interface{}{"service": ServiceName}
	return config
}

func Get() *zap.Logger {
	return log
}

func Set(l *zap.Logger) {
	log = l
}

func Info(msg string, fields ...zap.Field) {
	log.Info(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	log.Error(msg, fields...)
}

func Debug(msg string, fields ...zap.Field) {
	log.Debug(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	log.Warn(msg, fields...)
}

func Fatal(msg string, fields ...zap.Field) {
	log.Fatal(msg, fields...)
}

// WithBooking は予約操作用のフィールドを付与したロガーを返す
func WithBooking(reference, blockSeatID string, classID int) *zap.Logger {
	return log.With(
		zap.String("reference", reference),
		zap.String("block_seat_id", blockSeatID),
		zap.Int("class_id", classID),
	)
}

func With(fields ...zap.Field) *zap.Logger {
	return log.With(fields...)
}

func Sync() error {
	return log.Sync()
}
