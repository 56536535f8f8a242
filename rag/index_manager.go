package rag

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// IndexState 索引管理器状态
type IndexState int32

const (
	// StateUninitialized 还没有加载或构建任何索引
	StateUninitialized IndexState = iota
	// StateReady 索引可用（终态）
	StateReady
)

// String returns the state name.
func (s IndexState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// IndexStats 索引规模与位置
type IndexStats struct {
	Indexed      bool   `json:"indexed"`
	TotalVectors int    `json:"total_vectors"`
	Location     string `json:"location"`
	Dimension    int    `json:"dimension"`
	State        string `json:"state"`
}

// IndexObserver 接收索引规模变化（用于指标）
type IndexObserver interface {
	ObserveIndexSize(vectors int)
}

// IndexManager 管理向量索引的加载、追加与持久化
//
// 读操作基于原子发布的不可变快照；写操作（构建新快照 + 持久化 + 发布）由 writeMu 串行化。
// 持久化失败时不发布新快照，索引保持上一次持久化的状态。
type IndexManager struct {
	store    IndexStore
	logger   *zap.Logger
	observer IndexObserver

	writeMu  sync.Mutex
	snapshot atomic.Pointer[FlatIndex]
	state    atomic.Int32
}

// IndexManagerOption 配置 IndexManager
type IndexManagerOption func(*IndexManager)

// WithIndexObserver 设置索引规模观察者
func WithIndexObserver(o IndexObserver) IndexManagerOption {
	return func(m *IndexManager) {
		m.observer = o
	}
}

// NewIndexManager 创建索引管理器
func NewIndexManager(store IndexStore, logger *zap.Logger, opts ...IndexManagerOption) *IndexManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &IndexManager{
		store:  store,
		logger: logger.With(zap.String("component", "index_manager")),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.snapshot.Store(NewFlatIndex(0))
	return m
}

// State 当前状态
func (m *IndexManager) State() IndexState {
	return IndexState(m.state.Load())
}

// Ready reports whether State() == StateReady.
func (m *IndexManager) Ready() bool {
	return m.State() == StateReady
}

// Load 从存储读取索引。没有已持久化的索引时返回 (false, nil)；数据损坏时返回 CORRUPT_INDEX 错误。
// 已经 READY 时直接返回 true。
func (m *IndexManager) Load(ctx context.Context) (bool, error) {
	if m.Ready() {
		return true, nil
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if m.Ready() {
		return true, nil
	}

	snap, err := m.store.Load(ctx)
	if errors.Is(err, ErrIndexNotFound) {
		m.logger.Info("no persisted index yet", zap.String("location", m.store.Location()))
		return false, nil
	}
	if err != nil {
		m.logger.Error("failed to load index", zap.String("location", m.store.Location()), zap.Error(err))
		return false, err
	}

	ix, err := NewFlatIndex(snap.Dimension).Append(snap.Entries)
	if err != nil {
		return false, fmt.Errorf("rebuild index from snapshot: %w", err)
	}
	m.publish(ix)

	m.logger.Info("index loaded",
		zap.String("location", m.store.Location()),
		zap.Int("total_vectors", ix.Len()),
		zap.Int("dimension", ix.Dimension()))
	return true, nil
}

// BuildOrAppend 创建或追加索引并自动持久化。不做内容去重：重复追加会产生重复记录。
func (m *IndexManager) BuildOrAppend(ctx context.Context, chunks []Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("got %d chunks but %d vectors", len(chunks), len(vectors))
	}

	entries := make([]Entry, len(chunks))
	for i := range chunks {
		entries[i] = Entry{
			ID:     uuid.NewString(),
			Vector: vectors[i],
			Chunk:  chunks[i],
		}
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	// 先与存储对齐，其他写入方（例如同时运行的 CLI）追加的记录不会被覆盖
	base, err := m.reconcile(ctx)
	if err != nil {
		return err
	}
	next, err := base.Append(entries)
	if err != nil {
		return err
	}

	if err := m.persist(ctx, next); err != nil {
		return err
	}
	m.publish(next)

	m.logger.Info("index updated",
		zap.Int("appended", len(entries)),
		zap.Int("total_vectors", next.Len()))
	return nil
}

// Persist 与存储对齐后写入当前快照
func (m *IndexManager) Persist(ctx context.Context) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	current := m.snapshot.Load()
	ix, err := m.reconcile(ctx)
	if err != nil {
		return err
	}
	if err := m.persist(ctx, ix); err != nil {
		return err
	}
	if ix != current {
		m.publish(ix)
	}
	return nil
}

// reconcile 以存储中的记录为基础，补上只存在于内存中的记录。
// 没有持久化索引时直接返回当前快照；存储损坏时返回错误，不会覆盖它。
// 调用方必须持有 writeMu。
func (m *IndexManager) reconcile(ctx context.Context) (*FlatIndex, error) {
	current := m.snapshot.Load()

	snap, err := m.store.Load(ctx)
	if errors.Is(err, ErrIndexNotFound) {
		return current, nil
	}
	if err != nil {
		return nil, err
	}

	persisted := make(map[string]struct{}, len(snap.Entries))
	for _, e := range snap.Entries {
		persisted[e.ID] = struct{}{}
	}
	var localOnly []Entry
	for _, e := range current.Entries() {
		if _, ok := persisted[e.ID]; !ok {
			localOnly = append(localOnly, e)
		}
	}
	if len(localOnly) == 0 && len(snap.Entries) == current.Len() {
		return current, nil
	}

	merged, err := NewFlatIndex(snap.Dimension).Append(snap.Entries)
	if err != nil {
		return nil, fmt.Errorf("rebuild index from snapshot: %w", err)
	}
	if merged, err = merged.Append(localOnly); err != nil {
		return nil, err
	}
	m.logger.Info("merged index changes from store",
		zap.String("location", m.store.Location()),
		zap.Int("persisted", len(snap.Entries)),
		zap.Int("local_only", len(localOnly)))
	return merged, nil
}

func (m *IndexManager) persist(ctx context.Context, ix *FlatIndex) error {
	snap := &Snapshot{
		Version:   snapshotVersion,
		Dimension: ix.Dimension(),
		Entries:   ix.Entries(),
		SavedAt:   time.Now().UTC(),
	}
	if err := m.store.Save(ctx, snap); err != nil {
		m.logger.Error("failed to persist index", zap.String("location", m.store.Location()), zap.Error(err))
		return fmt.Errorf("persist index: %w", err)
	}
	return nil
}

func (m *IndexManager) publish(ix *FlatIndex) {
	m.snapshot.Store(ix)
	m.state.Store(int32(StateReady))
	if m.observer != nil {
		m.observer.ObserveIndexSize(ix.Len())
	}
}

// Stats 索引规模与位置，任何状态下都可调用
func (m *IndexManager) Stats() IndexStats {
	ix := m.snapshot.Load()
	state := m.State()
	return IndexStats{
		Indexed:      state == StateReady,
		TotalVectors: ix.Len(),
		Location:     m.store.Location(),
		Dimension:    ix.Dimension(),
		State:        state.String(),
	}
}

// Search 在当前快照上检索
func (m *IndexManager) Search(query []float64, k int) ([]RetrievalResult, error) {
	return m.snapshot.Load().Search(query, k)
}

// Name 健康检查名称
func (m *IndexManager) Name() string {
	return "vector_index"
}

// Check 存储中的索引损坏时报告不健康；尚未建立索引不算故障
func (m *IndexManager) Check(ctx context.Context) error {
	if m.Ready() {
		return nil
	}
	if _, err := m.Load(ctx); err != nil {
		return err
	}
	return nil
}
