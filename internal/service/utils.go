package service

import (
	"fmt"
	"time"
)

// 将 time.Duration 格式化为标准的 K 线周期字符串，如 "1m", "5m", "1h"
func FormatInterval(d time.Duration) string {
	// 优先处理小时 (h)
	if d >= time.Hour && d%time.Hour == 0 {
		return fmt.Sprintf("%dh", d/time.Hour)
	}

	// 接着处理分钟 (m)
	if d >= time.Minute && d%time.Minute == 0 {
		return fmt.Sprintf("%dm", d/time.Minute)
	}

	// 接着处理秒 (s)
	if d >= time.Second && d%time.Second == 0 {
		return fmt.Sprintf("%ds", d/time.Second)
	}

	return d.String()
}

// FormatSeconds 格式化以秒表示的 K 线周期
func FormatSeconds(seconds float64) string {
	return FormatInterval(time.Duration(seconds * float64(time.Second)))
}

// 将 K 线周期字符串解析为 time.Duration
// 例如 "1m" -> 1*time.Minute, "10s" -> 10*time.Second
func ParseIntervalDuration(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid interval format: %q", s)
	}

	unit := s[len(s)-1:]
	valueStr := s[:len(s)-1]

	var unitDuration time.Duration
	switch unit {
	case "s":
		unitDuration = time.Second
	case "m":
		unitDuration = time.Minute
	case "h":
		unitDuration = time.Hour
	case "d":
		unitDuration = 24 * time.Hour
	default:
		return 0, fmt.Errorf("unsupported interval unit: %s", unit)
	}

	var value int
	if _, err := fmt.Sscanf(valueStr, "%d", &value); err != nil {
		return 0, fmt.Errorf("invalid interval value: %s", valueStr)
	}
	if value <= 0 {
		return 0, fmt.Errorf("interval must be positive: %s", s)
	}

	return time.Duration(value) * unitDuration, nil
}
