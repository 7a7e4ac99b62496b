package replay

import (
	"sync"
	"time"
)

// Scheduler 启动一个周期性定时器. 同一时间引擎只持有一个定时器,
// 每次改变播放状态前都会先调用 cancel.
type Scheduler interface {
	Start(interval time.Duration, fn func()) (cancel func())
}

// TickerScheduler 基于 time.Ticker 的默认实现, 每个定时器一个 goroutine
type TickerScheduler struct{}

// Start 实现 Scheduler; cancel 不会等待正在执行的 fn
func (TickerScheduler) Start(interval time.Duration, fn func()) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				select {
				case <-done:
					return
				default:
				}
				fn()
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}
