package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"tick-replay/internal/api"
	"tick-replay/internal/metrics"
	"tick-replay/internal/model"
	"tick-replay/internal/orderbook"
	"tick-replay/internal/replay"
	"tick-replay/internal/service"
	"tick-replay/internal/session"
	"tick-replay/pkg/ta"
)

func main() {
	configPath := flag.String("config", "config", "directory containing config.yaml")
	sessionPath := flag.String("session", "", "session file (.bin or .bin.gz), overrides Session.Path")
	synthetic := flag.Bool("synthetic", false, "replay a generated demo session")
	flag.Parse()

	cfg, err := service.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	service.InitLogger(cfg.Log.Level)
	defer service.Logger.Sync()

	if *sessionPath != "" {
		cfg.Session.Path = *sessionPath
	}
	if *synthetic {
		cfg.Session.Synthetic = true
	}

	// 1. 载入会话
	ticks, err := loadTicks(cfg)
	if err != nil {
		service.Logger.Fatal("Failed to load session", zap.Error(err))
	}

	// 2. 回放引擎
	barInterval, err := cfg.BarIntervalSeconds()
	if err != nil {
		service.Logger.Fatal("Invalid bar interval", zap.String("interval", cfg.Replay.BarInterval), zap.Error(err))
	}
	engine := replay.NewEngine(replay.Config{
		BarInterval:     barInterval,
		TimerInterval:   cfg.TimerInterval(),
		Speed:           cfg.Replay.Speed,
		AvailableSpeeds: cfg.Replay.AvailableSpeeds,
		Logger:          service.Logger,
	})
	defer engine.Dispose()

	// 3. 盘口与指标, 先于推送注册, 保证推送时读到的是最新值
	book := orderbook.NewView(service.Logger.Named("orderbook"))
	calc := ta.NewTACalculator(cfg.Indicators.ROCLength, cfg.Indicators.RVOLLength, service.Logger.Named("ta"))

	engine.On(replay.EventTick, func(ev replay.Event) { book.ApplyTick(ev.Tick) })
	engine.On(replay.EventBar, func(ev replay.Event) { calc.UpdateBar(ev.Bar) })
	engine.On(replay.EventReset, func(replay.Event) {
		// 盘口无法按游标重建, seek 之后从空盘口重新累积
		book.Clear()
		calc.Rebuild(closedBars(engine.Bars()))
	})

	collector := metrics.NewCollector(prometheus.DefaultRegisterer)
	collector.Attach(engine)

	hub := api.NewBroadcaster(engine, api.Options{
		TickRate:  cfg.Server.TickRate,
		TickBurst: cfg.Server.TickBurst,
		OrderBook: func() any {
			return book.AggregatedOrderBook(cfg.Server.OrderBookMin, orderbook.DefaultPriceDecimals)
		},
		Indicators: func() any { return calc.Latest() },
		Logger:     service.Logger.Named("ws"),
	})
	hub.Attach(engine)
	defer hub.Close()

	engine.Load(ticks)
	st := engine.State()
	service.Logger.Info("Replay ready",
		zap.Int("ticks", len(ticks)),
		zap.Float64("start", st.StartTime),
		zap.Float64("end", st.EndTime),
		zap.String("barInterval", service.FormatSeconds(engine.BarInterval())))

	if cfg.Replay.AutoPlay {
		engine.Play()
	}

	// 4. HTTP: /ws 推送与控制, /metrics 指标
	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		service.Logger.Info("HTTP server listening", zap.String("addr", cfg.Server.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			service.Logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	service.Logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		service.Logger.Error("HTTP shutdown error", zap.Error(err))
	}
}

func loadTicks(cfg *service.Config) ([]model.Tick, error) {
	if cfg.Session.Synthetic || cfg.Session.Path == "" {
		service.Logger.Info("Using synthetic demo session")
		gz, err := session.Synthesize(session.DefaultSyntheticOptions())
		if err != nil {
			return nil, err
		}
		return session.Decode(gz, service.Logger)
	}
	return session.Load(cfg.Session.Path, service.Logger)
}

// closedBars 去掉仍在形成中的最后一根
func closedBars(bars []model.Bar) []model.Bar {
	if len(bars) == 0 {
		return nil
	}
	return bars[:len(bars)-1]
}
