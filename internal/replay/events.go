package replay

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"tick-replay/internal/model"
)

// EventType 事件类型
type EventType string

const (
	EventTick        EventType = "tick"        // 每处理一个 Tick
	EventBar         EventType = "bar"         // K 线收盘 (携带已完成的 K 线)
	EventStateChange EventType = "stateChange" // Status / CurrentTime / Speed 变化
	EventEnded       EventType = "ended"       // 回放播放到末尾
	EventReset       EventType = "reset"       // K 线被整体重建 (load/stop/seek/改周期)
)

// Event 是分发给订阅者的事件, 只有与 Type 对应的字段有意义
type Event struct {
	Type  EventType
	Tick  model.Tick
	Bar   model.Bar
	State State
}

// Handler 事件回调
type Handler func(Event)

// Subscription 标识一个已注册的回调, 传给 Off 取消
type Subscription struct {
	Type EventType
	id   uint64
}

// Bus 回放引擎的发布/订阅接口
type Bus interface {
	On(t EventType, h Handler) Subscription
	Off(sub Subscription) bool
	Emit(ev Event)
}

type subscriber struct {
	id      uint64
	handler Handler
}

// Emitter 是一个按事件类型分发的发布/订阅实现.
// 单个订阅者 panic 只会被记录, 不影响其它订阅者.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[EventType][]subscriber
	nextID   uint64
	logger   *zap.Logger
}

var _ Bus = (*Emitter)(nil)

// NewEmitter 创建事件分发器
func NewEmitter(logger *zap.Logger) *Emitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Emitter{
		handlers: make(map[EventType][]subscriber),
		logger:   logger,
	}
}

// On 注册回调
func (em *Emitter) On(t EventType, h Handler) Subscription {
	em.mu.Lock()
	defer em.mu.Unlock()

	em.nextID++
	em.handlers[t] = append(em.handlers[t], subscriber{id: em.nextID, handler: h})
	return Subscription{Type: t, id: em.nextID}
}

// Off 取消注册, 返回是否找到该订阅
func (em *Emitter) Off(sub Subscription) bool {
	em.mu.Lock()
	defer em.mu.Unlock()

	subs := em.handlers[sub.Type]
	for i, s := range subs {
		if s.id == sub.id {
			em.handlers[sub.Type] = append(subs[:i:i], subs[i+1:]...)
			return true
		}
	}
	return false
}

// Emit 依次调用该类型的所有回调
func (em *Emitter) Emit(ev Event) {
	em.mu.RLock()
	subs := em.handlers[ev.Type]
	em.mu.RUnlock()

	for _, s := range subs {
		em.call(s, ev)
	}
}

func (em *Emitter) call(s subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			em.logger.Error("Replay event handler panicked",
				zap.String("event", string(ev.Type)),
				zap.Uint64("subscription", s.id),
				zap.String("panic", fmt.Sprint(r)))
		}
	}()
	s.handler(ev)
}

// Clear 移除所有订阅者
func (em *Emitter) Clear() {
	em.mu.Lock()
	defer em.mu.Unlock()
	em.handlers = make(map[EventType][]subscriber)
}
