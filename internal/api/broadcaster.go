package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"tick-replay/internal/model"
	"tick-replay/internal/replay"
	"tick-replay/internal/service"
)

// 推送给图表客户端的消息类型
const (
	MsgSnapshot  = "snapshot"
	MsgTick      = "tick"
	MsgBar       = "bar"
	MsgState     = "state"
	MsgEnded     = "ended"
	MsgReset     = "reset"
	MsgOrderBook = "orderbook"
	MsgError     = "error"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

// Message 是推送消息的统一信封
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Snapshot 新客户端连接时下发的完整视图
type Snapshot struct {
	ClientID string       `json:"clientId"`
	State    replay.State `json:"state"`
	Bars     []model.Bar  `json:"bars"`
}

// BarMessage K 线收盘消息, 附带最新指标
type BarMessage struct {
	Bar        model.Bar `json:"bar"`
	Indicators any       `json:"indicators,omitempty"`
}

// ControlMessage 客户端发来的播放控制指令
//
//	{"op":"play"} {"op":"seek","value":1700000000.5} {"op":"speed","value":10}
//	{"op":"interval","interval":"5m"} {"op":"step","value":-1}
type ControlMessage struct {
	Op       string  `json:"op"`
	Value    float64 `json:"value"`
	Interval string  `json:"interval"`
}

// Controller 是回放引擎暴露给客户端的控制面, *replay.Engine 满足该接口
type Controller interface {
	Play()
	Pause()
	Stop()
	SeekTo(timestamp float64)
	SeekToPercent(p float64)
	StepForward(n int)
	StepBackward(n int)
	SetSpeed(speed float64)
	SetBarInterval(seconds float64)
	State() replay.State
	Bars() []model.Bar
}

// Subscriber 事件订阅面, *replay.Engine 与 *replay.Emitter 都满足
type Subscriber interface {
	On(t replay.EventType, h replay.Handler) replay.Subscription
}

// Options Broadcaster 参数
type Options struct {
	TickRate   float64 // 每秒最多推送的 tick 消息数, <= 0 表示不限速
	TickBurst  int
	OrderBook  func() any // 非空时每条 tick 之后推送一次盘口
	Indicators func() any // 非空时随 bar 消息推送指标
	Logger     *zap.Logger
}

type client struct {
	id        string
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.send) })
}

// Broadcaster 把回放事件以 JSON 推送给所有 websocket 客户端, 并接收控制指令
type Broadcaster struct {
	ctrl     Controller
	opts     Options
	logger   *zap.Logger
	upgrader websocket.Upgrader
	limiter  *rate.Limiter

	mu      sync.RWMutex
	clients map[string]*client
	closed  bool
}

// NewBroadcaster 创建推送中心
func NewBroadcaster(ctrl Controller, opts Options) *Broadcaster {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	limit := rate.Inf
	if opts.TickRate > 0 {
		limit = rate.Limit(opts.TickRate)
	}
	if opts.TickBurst <= 0 {
		opts.TickBurst = 1
	}
	return &Broadcaster{
		ctrl:     ctrl,
		opts:     opts,
		logger:   opts.Logger,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		limiter:  rate.NewLimiter(limit, opts.TickBurst),
		clients:  make(map[string]*client),
	}
}

// Attach 订阅引擎事件
func (b *Broadcaster) Attach(bus Subscriber) {
	bus.On(replay.EventTick, func(ev replay.Event) {
		// 高倍速下 tick 数量远超图表刷新能力, 超出速率的直接丢弃
		if !b.limiter.Allow() {
			return
		}
		b.Broadcast(MsgTick, ev.Tick)
		if b.opts.OrderBook != nil {
			b.Broadcast(MsgOrderBook, b.opts.OrderBook())
		}
	})
	bus.On(replay.EventBar, func(ev replay.Event) {
		msg := BarMessage{Bar: ev.Bar}
		if b.opts.Indicators != nil {
			msg.Indicators = b.opts.Indicators()
		}
		b.Broadcast(MsgBar, msg)
	})
	bus.On(replay.EventStateChange, func(ev replay.Event) {
		b.Broadcast(MsgState, ev.State)
	})
	bus.On(replay.EventEnded, func(ev replay.Event) {
		b.Broadcast(MsgEnded, ev.State)
	})
	bus.On(replay.EventReset, func(ev replay.Event) {
		b.Broadcast(MsgReset, b.ctrl.Bars())
	})
}

// Broadcast 序列化一次并扇出到所有客户端; 发送缓冲满的客户端会丢消息
func (b *Broadcaster) Broadcast(msgType string, data any) {
	payload, err := json.Marshal(Message{Type: msgType, Data: data})
	if err != nil {
		b.logger.Error("Failed to marshal broadcast message", zap.String("type", msgType), zap.Error(err))
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, c := range b.clients {
		select {
		case c.send <- payload:
		default:
			b.logger.Warn("Client send buffer full, dropping message",
				zap.String("client", c.id), zap.String("type", msgType))
		}
	}
}

// ClientCount 当前连接数
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// ServeHTTP 升级为 websocket 并启动读写协程
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}

	// 先入队快照再注册, 保证客户端收到的第一条消息是快照
	snap, err := json.Marshal(Message{Type: MsgSnapshot, Data: Snapshot{
		ClientID: c.id,
		State:    b.ctrl.State(),
		Bars:     b.ctrl.Bars(),
	}})
	if err != nil {
		b.logger.Error("Failed to marshal snapshot", zap.Error(err))
		conn.Close()
		return
	}
	c.send <- snap

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		conn.Close()
		return
	}
	b.clients[c.id] = c
	b.mu.Unlock()

	b.logger.Info("Chart client connected", zap.String("client", c.id), zap.String("remote", r.RemoteAddr))

	go b.writePump(c)
	go b.readPump(c)
}

func (b *Broadcaster) unregister(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c.id]; ok {
		delete(b.clients, c.id)
		c.close()
	}
	b.mu.Unlock()
}

// Close 断开所有客户端
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, c := range b.clients {
		c.close()
		delete(b.clients, id)
	}
}

func (b *Broadcaster) readPump(c *client) {
	defer func() {
		b.unregister(c)
		c.conn.Close()
		b.logger.Info("Chart client disconnected", zap.String("client", c.id))
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				b.logger.Warn("Error reading WS message", zap.String("client", c.id), zap.Error(err))
			}
			return
		}

		var ctl ControlMessage
		if err := json.Unmarshal(message, &ctl); err != nil {
			b.reply(c, MsgError, "invalid control message")
			continue
		}
		if err := b.handleControl(ctl); err != nil {
			b.reply(c, MsgError, err.Error())
		}
	}
}

func (b *Broadcaster) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// reply 只发给单个客户端
func (b *Broadcaster) reply(c *client, msgType string, data any) {
	payload, err := json.Marshal(Message{Type: msgType, Data: data})
	if err != nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if _, ok := b.clients[c.id]; !ok {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}

// handleControl 把控制指令转成引擎调用
func (b *Broadcaster) handleControl(ctl ControlMessage) error {
	b.logger.Debug("Control message", zap.String("op", ctl.Op), zap.Float64("value", ctl.Value))

	switch ctl.Op {
	case "play":
		b.ctrl.Play()
	case "pause":
		b.ctrl.Pause()
	case "stop":
		b.ctrl.Stop()
	case "seek":
		b.ctrl.SeekTo(ctl.Value)
	case "seekPercent":
		b.ctrl.SeekToPercent(ctl.Value)
	case "speed":
		b.ctrl.SetSpeed(ctl.Value)
	case "step":
		n := int(ctl.Value)
		switch {
		case n > 0:
			b.ctrl.StepForward(n)
		case n < 0:
			b.ctrl.StepBackward(-n)
		default:
			b.ctrl.StepForward(1)
		}
	case "interval":
		d, err := service.ParseIntervalDuration(ctl.Interval)
		if err != nil {
			return err
		}
		b.ctrl.SetBarInterval(d.Seconds())
	default:
		return fmt.Errorf("unknown op %q", ctl.Op)
	}
	return nil
}
