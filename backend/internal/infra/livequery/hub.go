package livequery

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EventKind 描述触发变更的写操作类型。
type EventKind string

const (
	EventCreated           EventKind = "created"
	EventUpdated           EventKind = "updated"
	EventRated             EventKind = "rated"
	EventUsed              EventKind = "used"
	EventDeleted           EventKind = "deleted"
	EventDeletionRequested EventKind = "deletion_requested"
	EventCommented         EventKind = "commented"
	EventImported          EventKind = "imported"
)

// Event 只是一个"集合已变化"的信号，订阅方收到后整体重载，不依赖事件内容做增量修补。
type Event struct {
	Kind     EventKind `json:"kind"`
	PromptID string    `json:"prompt_id,omitempty"`
	Origin   string    `json:"origin"`
	At       time.Time `json:"at"`
}

// Hub 在进程内分发变更事件，可选地通过 Redis pub/sub 与其他实例互通。
type Hub struct {
	mu         sync.Mutex
	subs       map[uint64]chan Event
	nextID     uint64
	instanceID string
	redis      *redis.Client
	channel    string
	logger     *zap.SugaredLogger
}

// NewHub 创建事件中心，logger 为空时使用 Nop。
func NewHub(logger *zap.SugaredLogger) *Hub {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Hub{
		subs:       make(map[uint64]chan Event),
		instanceID: uuid.NewString(),
		logger:     logger,
	}
}

// AttachRedis 启用跨实例广播，需在 Run 之前调用。
func (h *Hub) AttachRedis(client *redis.Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.redis = client
	h.channel = channel
}

// InstanceID 返回当前实例标识，用于过滤 Redis 回环消息。
func (h *Hub) InstanceID() string {
	return h.instanceID
}

// Subscribe 注册订阅者。通道容量为 1，订阅方未及时消费时后续事件被合并。
// 返回的 cancel 可重复调用。
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 1)
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish 通知本地订阅者，并在启用 Redis 时广播给其他实例。
// 本地分发总会完成，返回的错误只代表跨实例广播失败。
func (h *Hub) Publish(ctx context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	if ev.Origin == "" {
		ev.Origin = h.instanceID
	}
	h.deliver(ev)

	h.mu.Lock()
	client, channel := h.redis, h.channel
	h.mu.Unlock()
	if client == nil {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode change event: %w", err)
	}
	if err := client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish change event: %w", err)
	}
	return nil
}

func (h *Hub) deliver(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Run 在启用 Redis 时持续接收其他实例的事件，直到 ctx 结束；未启用时只等待 ctx。
func (h *Hub) Run(ctx context.Context) error {
	h.mu.Lock()
	client, channel := h.redis, h.channel
	h.mu.Unlock()
	if client == nil {
		<-ctx.Done()
		return nil
	}

	pubsub := client.Subscribe(ctx, channel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}
	h.logger.Infow("change bridge subscribed", "channel", channel, "instance", h.instanceID)

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				h.logger.Warnw("drop malformed change event", "error", err)
				continue
			}
			if ev.Origin == h.instanceID {
				continue
			}
			h.deliver(ev)
		}
	}
}
