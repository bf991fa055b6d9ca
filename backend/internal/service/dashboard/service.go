package dashboard

import (
	"sync"
	"time"

	promptdomain "github.com/antrhizom/prompt-managerin/backend/internal/domain/prompt"
	"github.com/antrhizom/prompt-managerin/backend/internal/infra/metrics"
	"github.com/antrhizom/prompt-managerin/backend/internal/service/mirror"

	"go.uber.org/zap"
)

// CatalogSource 提供当前生效的枚举目录。
type CatalogSource interface {
	Get() promptdomain.Catalog
}

// SnapshotFeed 是镜像对外暴露的快照通知能力。
type SnapshotFeed interface {
	Snapshot() *mirror.Snapshot
	OnSnapshot(fn func(*mirror.Snapshot))
}

// Snapshot 是带计算时间的统计结果。
type Snapshot struct {
	ComputedAt time.Time `json:"computed_at" yaml:"computed_at"`
	Stats      `yaml:",inline"`
}

// Service 缓存最近一次统计结果，镜像快照或目录变化时整体重算。
type Service struct {
	catalog CatalogSource      // 目录来源，用于预置零值分组。
	logger  *zap.SugaredLogger // 统一日志实例。

	mu       sync.RWMutex      // 保护 last 与 current。
	last     *mirror.Snapshot  // 最近一次收到的镜像快照。
	current  Snapshot          // 最近一次计算结果。
	computed bool              // 是否已经计算过。
}

// NewService 创建统计服务，logger 为空时使用 Nop。
func NewService(catalog CatalogSource, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{catalog: catalog, logger: logger}
}

// Attach 注册到镜像，并立即基于当前快照计算一次。
func (s *Service) Attach(feed SnapshotFeed) {
	feed.OnSnapshot(func(snap *mirror.Snapshot) { s.Recompute(snap, "snapshot") })
	s.Recompute(feed.Snapshot(), "attach")
}

// Recompute 基于给定快照重算统计。版本不高于已计算版本的快照会被忽略。
func (s *Service) Recompute(snap *mirror.Snapshot, trigger string) {
	if snap == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.computed && s.last != nil && snap.Version < s.last.Version {
		return
	}
	s.computeLocked(snap, trigger)
}

// CatalogChanged 在目录热更新后用最近的快照重算。
func (s *Service) CatalogChanged(promptdomain.Catalog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return
	}
	s.computeLocked(s.last, "catalog")
}

// Current 返回最近一次统计结果。
func (s *Service) Current() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *Service) computeLocked(snap *mirror.Snapshot, trigger string) {
	started := time.Now()
	stats := Compute(snap.Records, s.catalog.Get())
	stats.Version = snap.Version
	elapsed := time.Since(started)

	s.last = snap
	s.current = Snapshot{ComputedAt: started, Stats: stats}
	s.computed = true
	metrics.ObserveDashboardCompute(trigger, elapsed)
	s.logger.Debugw("dashboard recomputed", "trigger", trigger, "version", snap.Version, "records", stats.Records, "elapsed", elapsed)
}
