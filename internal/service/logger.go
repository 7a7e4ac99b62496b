package service

import (
	"log"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger 是全局日志接口
// 在其他模块中使用：service.Logger.Info("Session loaded", zap.Int("ticks", n))
var Logger = zap.NewNop()

// NewLogger 构建生产环境配置的 Zap 日志, level 为空时使用 info
func NewLogger(level string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()

	// 格式化时间
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.TimeKey = "time"

	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		config.Level = zap.NewAtomicLevelAt(lvl)
	}

	return config.Build()
}

// InitLogger 初始化全局日志
func InitLogger(level string) {
	l, err := NewLogger(level)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	Logger = l
}
