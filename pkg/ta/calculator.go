package ta

import (
	"sync"

	"github.com/markcheno/go-talib"
	"go.uber.org/zap"

	"tick-replay/internal/model"
)

const (
	DefaultROCLength  = 9
	DefaultRVOLLength = 20

	maxHistory = 500
)

// Indicators 最新一根已收盘 K 线对应的指标值
type Indicators struct {
	Time      float64 `json:"time"`
	ROC       float64 `json:"roc"`       // 100 * (close - close[n]) / close[n]
	RVOL      float64 `json:"rvol"`      // 当前成交量 / 前 n 根平均成交量
	MA        float64 `json:"ma"`        // 收盘价简单均线 (RVOLLength 周期)
	ROCReady  bool    `json:"rocReady"`  // 历史足够计算 ROC
	RVOLReady bool    `json:"rvolReady"` // 历史足够计算 RVOL 与 MA
}

// TACalculator 基于回放产生的已收盘 K 线计算 ROC / 相对成交量
type TACalculator struct {
	mu         sync.RWMutex
	Close      []float64 // 收盘价序列
	Volume     []float64 // 成交量序列
	ROCLength  int
	RVOLLength int
	latest     Indicators
	Logger     *zap.Logger
}

// NewTACalculator 初始化技术指标计算器
func NewTACalculator(rocLength, rvolLength int, logger *zap.Logger) *TACalculator {
	if rocLength <= 0 {
		rocLength = DefaultROCLength
	}
	if rvolLength <= 0 {
		rvolLength = DefaultRVOLLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TACalculator{
		Close:      make([]float64, 0, 100),
		Volume:     make([]float64, 0, 100),
		ROCLength:  rocLength,
		RVOLLength: rvolLength,
		Logger:     logger,
	}
}

// UpdateBar 追加一根已收盘的 K 线并重新计算指标
func (tc *TACalculator) UpdateBar(bar model.Bar) Indicators {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	// FIFO: 保持历史数据长度
	tc.Close = append(tc.Close, bar.Close)
	tc.Volume = append(tc.Volume, bar.Volume)
	if len(tc.Close) > maxHistory {
		tc.Close = tc.Close[len(tc.Close)-maxHistory:]
		tc.Volume = tc.Volume[len(tc.Volume)-maxHistory:]
	}

	tc.latest = tc.calculate(bar.Time)
	return tc.latest
}

// calculate 集中计算所有需要的指标
func (tc *TACalculator) calculate(t float64) Indicators {
	ind := Indicators{Time: t}
	n := len(tc.Close)

	// --- 变化率 (ROC) ---
	if n > tc.ROCLength {
		roc := talib.Roc(tc.Close, tc.ROCLength)
		ind.ROC = roc[n-1]
		ind.ROCReady = true
	}

	// --- 相对成交量 (RVOL) 与均线 ---
	// 当前 K 线与它之前 RVOLLength 根的平均成交量比较
	if n > tc.RVOLLength {
		prevVolumes := tc.Volume[:n-1]
		avg := talib.Sma(prevVolumes, tc.RVOLLength)
		if base := avg[len(avg)-1]; base > 0 {
			ind.RVOL = tc.Volume[n-1] / base
		}
		ma := talib.Sma(tc.Close, tc.RVOLLength)
		ind.MA = ma[n-1]
		ind.RVOLReady = true
	} else {
		tc.Logger.Debug("Not enough history for RVOL", zap.Int("len", n), zap.Int("need", tc.RVOLLength+1))
	}

	return ind
}

// Latest 返回最近一次计算结果
func (tc *TACalculator) Latest() Indicators {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.latest
}

// Reset 清空历史 (回放 seek / stop 后 K 线整体重建时调用)
func (tc *TACalculator) Reset() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.Close = tc.Close[:0]
	tc.Volume = tc.Volume[:0]
	tc.latest = Indicators{}
}

// Rebuild 用一组已收盘 K 线重建历史
func (tc *TACalculator) Rebuild(bars []model.Bar) Indicators {
	tc.Reset()
	var ind Indicators
	for _, b := range bars {
		ind = tc.UpdateBar(b)
	}
	return ind
}
