package mirror

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	promptdomain "github.com/antrhizom/prompt-managerin/backend/internal/domain/prompt"
	"github.com/antrhizom/prompt-managerin/backend/internal/infra/livequery"
	"github.com/antrhizom/prompt-managerin/backend/internal/infra/metrics"

	"go.uber.org/zap"
)

// ErrNotStarted 表示在 Start 之前调用了 Run。
var ErrNotStarted = errors.New("mirror not started")

// Loader 读取完整的 Prompt 集合，按创建时间倒序。
type Loader interface {
	ListAll(ctx context.Context) ([]promptdomain.Prompt, error)
}

// Source 提供集合变化的信号。
type Source interface {
	Subscribe() (<-chan livequery.Event, func())
}

// Snapshot 是某一时刻未删除记录的不可变视图，只能整体替换。
type Snapshot struct {
	Version  uint64                `json:"version"`
	LoadedAt time.Time             `json:"loaded_at"`
	Records  []promptdomain.Record `json:"records"`
	Deleted  int                   `json:"-"`
}

// Find 在快照中按 ID 查找记录。
func (s *Snapshot) Find(id string) (promptdomain.Record, bool) {
	if s == nil {
		return promptdomain.Record{}, false
	}
	for _, rec := range s.Records {
		if rec.ID == id {
			return rec, true
		}
	}
	return promptdomain.Record{}, false
}

// Mirror 维护 Record Store 的本地镜像：收到变更信号就整体重载，从不做增量修补。
type Mirror struct {
	loader Loader
	source Source
	logger *zap.SugaredLogger

	current  atomic.Pointer[Snapshot]
	version  uint64
	reloadMu sync.Mutex

	events      <-chan livequery.Event
	unsubscribe func()

	listenersMu sync.RWMutex
	listeners   []func(*Snapshot)

	watchersMu sync.Mutex
	watchers   map[uint64]chan *Snapshot
	nextWatch  uint64
}

// New 创建镜像，logger 为空时使用 Nop。
func New(loader Loader, source Source, logger *zap.SugaredLogger) *Mirror {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	m := &Mirror{
		loader:   loader,
		source:   source,
		logger:   logger,
		watchers: make(map[uint64]chan *Snapshot),
	}
	m.current.Store(&Snapshot{Records: []promptdomain.Record{}})
	return m
}

// Start 先订阅变更再做首次加载，避免漏掉两者之间的写入；首次加载失败时返回错误。
func (m *Mirror) Start(ctx context.Context) error {
	if m.source != nil {
		m.events, m.unsubscribe = m.source.Subscribe()
	}
	if err := m.Refresh(ctx); err != nil {
		if m.unsubscribe != nil {
			m.unsubscribe()
			m.unsubscribe = nil
		}
		return fmt.Errorf("initial mirror load: %w", err)
	}
	return nil
}

// Run 消费变更信号直到 ctx 结束。重载失败时保留旧快照并等待下一次信号。
func (m *Mirror) Run(ctx context.Context) error {
	if m.events == nil {
		return ErrNotStarted
	}
	defer func() {
		if m.unsubscribe != nil {
			m.unsubscribe()
		}
		m.closeWatchers()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-m.events:
			if !ok {
				return nil
			}
			if err := m.Refresh(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				m.logger.Warnw("mirror reload failed", "trigger", ev.Kind, "prompt_id", ev.PromptID, "error", err)
			}
		}
	}
}

// Refresh 同步重载全部记录并替换快照。
func (m *Mirror) Refresh(ctx context.Context) error {
	m.reloadMu.Lock()
	defer m.reloadMu.Unlock()

	started := time.Now()
	items, err := m.loader.ListAll(ctx)
	if err != nil {
		metrics.ObserveMirrorReload("error", time.Since(started), 0, 0)
		return err
	}

	records := make([]promptdomain.Record, 0, len(items))
	deleted := 0
	for i := range items {
		if items[i].Deleted {
			deleted++
			continue
		}
		records = append(records, items[i].Record())
	}

	m.version++
	snap := &Snapshot{
		Version:  m.version,
		LoadedAt: time.Now(),
		Records:  records,
		Deleted:  deleted,
	}
	m.current.Store(snap)
	metrics.ObserveMirrorReload("success", time.Since(started), len(records), deleted)
	m.logger.Debugw("mirror reloaded", "version", snap.Version, "records", len(records), "deleted", deleted)

	m.listenersMu.RLock()
	listeners := append([]func(*Snapshot){}, m.listeners...)
	m.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(snap)
	}
	m.broadcast(snap)
	return nil
}

// Snapshot 返回当前快照，首次加载前为空快照。
func (m *Mirror) Snapshot() *Snapshot {
	return m.current.Load()
}

// OnSnapshot 注册快照回调，回调在重载协程中同步执行，应尽快返回。
func (m *Mirror) OnSnapshot(fn func(*Snapshot)) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Watch 返回一个只保留最新快照的通道，供流式接口推送；cancel 后通道关闭。
func (m *Mirror) Watch() (<-chan *Snapshot, func()) {
	ch := make(chan *Snapshot, 1)
	m.watchersMu.Lock()
	id := m.nextWatch
	m.nextWatch++
	if m.watchers == nil {
		close(ch)
	} else {
		m.watchers[id] = ch
	}
	m.watchersMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.watchersMu.Lock()
			defer m.watchersMu.Unlock()
			if existing, ok := m.watchers[id]; ok {
				delete(m.watchers, id)
				close(existing)
			}
		})
	}
}

func (m *Mirror) broadcast(snap *Snapshot) {
	m.watchersMu.Lock()
	defer m.watchersMu.Unlock()
	for _, ch := range m.watchers {
		select {
		case ch <- snap:
			continue
		default:
		}
		// 丢弃尚未被消费的旧快照，只保留最新的。
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func (m *Mirror) closeWatchers() {
	m.watchersMu.Lock()
	defer m.watchersMu.Unlock()
	for id, ch := range m.watchers {
		delete(m.watchers, id)
		close(ch)
	}
	m.watchers = nil
}
