// internal/service/config.go
package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ReplayConfig 定义了回放引擎的参数
type ReplayConfig struct {
	BarInterval     string    // K 线周期, 如 "10s", "1m", "5m"
	TimerIntervalMs int       // 定时器间隔 (毫秒)
	Speed           float64   // 初始倍速
	AvailableSpeeds []float64 // 允许的倍速
	AutoPlay        bool      // 载入后自动播放
}

// SessionConfig 定义了要回放的会话文件
type SessionConfig struct {
	Path      string // .bin.gz 或已解压的 .bin 文件
	Synthetic bool   // 不读文件, 生成演示数据
}

// ServerConfig 定义了图表推送服务
type ServerConfig struct {
	ListenAddr   string
	TickRate     float64 // 每秒最多推送的 tick 消息数
	TickBurst    int
	OrderBookMin float64 // 推送盘口时的最小数量
}

// IndicatorConfig 定义了指标参数
type IndicatorConfig struct {
	ROCLength  int
	RVOLLength int
}

// LogConfig 日志配置
type LogConfig struct {
	Level string
}

type Config struct {
	Replay     ReplayConfig    `mapstructure:"Replay"`
	Session    SessionConfig   `mapstructure:"Session"`
	Server     ServerConfig    `mapstructure:"Server"`
	Indicators IndicatorConfig `mapstructure:"Indicators"`
	Log        LogConfig       `mapstructure:"Log"`
}

// BarIntervalSeconds 解析 K 线周期
func (c *Config) BarIntervalSeconds() (float64, error) {
	d, err := ParseIntervalDuration(c.Replay.BarInterval)
	if err != nil {
		return 0, err
	}
	return d.Seconds(), nil
}

// TimerInterval 回放定时器间隔
func (c *Config) TimerInterval() time.Duration {
	return time.Duration(c.Replay.TimerIntervalMs) * time.Millisecond
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("Replay.BarInterval", "1m")
	v.SetDefault("Replay.TimerIntervalMs", 100)
	v.SetDefault("Replay.Speed", 1.0)
	v.SetDefault("Replay.AvailableSpeeds", []float64{0.25, 0.5, 1, 2, 5, 10, 25, 50, 100})
	v.SetDefault("Replay.AutoPlay", false)
	v.SetDefault("Session.Path", "")
	v.SetDefault("Session.Synthetic", false)
	v.SetDefault("Server.ListenAddr", ":8080")
	v.SetDefault("Server.TickRate", 50.0)
	v.SetDefault("Server.TickBurst", 10)
	v.SetDefault("Server.OrderBookMin", 0.0)
	v.SetDefault("Indicators.ROCLength", 9)
	v.SetDefault("Indicators.RVOLLength", 20)
	v.SetDefault("Log.Level", "info")
}

// LoadConfig 读取并解析配置文件; 配置文件不存在时使用默认值
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	// 设置配置文件的名称、类型和路径
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.SetEnvPrefix("REPLAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	if _, err := cfg.BarIntervalSeconds(); err != nil {
		return nil, fmt.Errorf("invalid Replay.BarInterval: %w", err)
	}
	return &cfg, nil
}
