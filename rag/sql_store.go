package rag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/policyqa/types"
)

// sqlIndex 索引头记录
type sqlIndex struct {
	Name      string `gorm:"primaryKey;size:128"`
	Version   int
	Dimension int
	Count     int
	UpdatedAt time.Time
}

func (sqlIndex) TableName() string { return "policy_indexes" }

// sqlVector 单条向量记录
type sqlVector struct {
	ID            string    `gorm:"primaryKey;size:36"`
	IndexName     string    `gorm:"size:128;index:idx_policy_vectors_order,priority:1"`
	Position      int       `gorm:"index:idx_policy_vectors_order,priority:2"`
	Text          string    `gorm:"type:text"`
	PolicyTitle   string    `gorm:"size:512"`
	SourcePath    string    `gorm:"size:1024"`
	SequenceIndex int
	Vector        []float64 `gorm:"type:text;serializer:json"`
}

func (sqlVector) TableName() string { return "policy_vectors" }

// TxRunner 在事务中执行 fn；可替换为带重试的实现（例如 database.PoolManager.WithTransactionRetry）
type TxRunner func(ctx context.Context, fn func(tx *gorm.DB) error) error

// SQLStoreOption 配置 SQLStore
type SQLStoreOption func(*SQLStore)

// WithTxRunner 替换默认的单次事务执行方式
func WithTxRunner(run TxRunner) SQLStoreOption {
	return func(s *SQLStore) { s.runTx = run }
}

// SQLStore 基于 GORM 的索引存储（sqlite / postgres / mysql）
//
// 每次 Save 在一个事务中追加新增记录并更新索引头，事务失败时保留上一次提交的状态。
// 存储只增不减：多个写入方共享同一张表时不会互相覆盖。
type SQLStore struct {
	db        *gorm.DB
	name      string
	location  string
	batchSize int
	runTx     TxRunner
	logger    *zap.Logger
}

// NewSQLStore 创建 SQL 存储并迁移表结构
func NewSQLStore(ctx context.Context, db *gorm.DB, name, location string, logger *zap.Logger, opts ...SQLStoreOption) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if name == "" {
		name = "index"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.WithContext(ctx).AutoMigrate(&sqlIndex{}, &sqlVector{}); err != nil {
		return nil, fmt.Errorf("migrate index tables: %w", err)
	}
	s := &SQLStore{
		db:        db,
		name:      name,
		location:  location,
		batchSize: 200,
		logger:    logger.With(zap.String("component", "sql_index_store")),
	}
	s.runTx = func(ctx context.Context, fn func(tx *gorm.DB) error) error {
		return s.db.WithContext(ctx).Transaction(fn)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Location 返回存储位置描述
func (s *SQLStore) Location() string {
	return s.location
}

// Load 读取索引头和全部向量
func (s *SQLStore) Load(ctx context.Context) (*Snapshot, error) {
	db := s.db.WithContext(ctx)

	var head sqlIndex
	if err := db.Where("name = ?", s.name).First(&head).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrIndexNotFound
		}
		return nil, fmt.Errorf("read index header: %w", err)
	}

	var rows []sqlVector
	if err := db.Where("index_name = ?", s.name).Order("position asc").Find(&rows).Error; err != nil {
		return nil, types.NewCorruptIndexError(s.location, err)
	}
	if len(rows) != head.Count {
		return nil, types.NewCorruptIndexError(s.location,
			fmt.Errorf("header declares %d vectors, found %d", head.Count, len(rows)))
	}

	snap := &Snapshot{
		Version:   head.Version,
		Dimension: head.Dimension,
		Entries:   make([]Entry, len(rows)),
		SavedAt:   head.UpdatedAt,
	}
	for i, r := range rows {
		snap.Entries[i] = Entry{
			ID:     r.ID,
			Vector: r.Vector,
			Chunk: Chunk{
				Text:          r.Text,
				PolicyTitle:   r.PolicyTitle,
				SourcePath:    r.SourcePath,
				SequenceIndex: r.SequenceIndex,
			},
		}
	}
	if err := snap.validate(); err != nil {
		return nil, types.NewCorruptIndexError(s.location, err)
	}

	s.logger.Debug("index loaded", zap.String("name", s.name), zap.Int("entries", len(rows)))
	return snap, nil
}

// Save 追加快照中尚未落库的记录（按 ID 判断），从不删除已存储的记录。
// 其他写入方先行追加的记录保持原位，新记录排在其后。
func (s *SQLStore) Save(ctx context.Context, snap *Snapshot) error {
	return s.runTx(ctx, func(tx *gorm.DB) error {
		var storedIDs []string
		if err := tx.Model(&sqlVector{}).Where("index_name = ?", s.name).Pluck("id", &storedIDs).Error; err != nil {
			return fmt.Errorf("list stored vectors: %w", err)
		}
		stored := make(map[string]struct{}, len(storedIDs))
		for _, id := range storedIDs {
			stored[id] = struct{}{}
		}

		position := len(storedIDs)
		rows := make([]sqlVector, 0, len(snap.Entries))
		for _, e := range snap.Entries {
			if _, ok := stored[e.ID]; ok {
				continue
			}
			rows = append(rows, sqlVector{
				ID:            e.ID,
				IndexName:     s.name,
				Position:      position,
				Text:          e.Chunk.Text,
				PolicyTitle:   e.Chunk.PolicyTitle,
				SourcePath:    e.Chunk.SourcePath,
				SequenceIndex: e.Chunk.SequenceIndex,
				Vector:        e.Vector,
			})
			position++
		}
		if len(rows) > 0 {
			err := tx.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(rows, s.batchSize).Error
			if err != nil {
				return fmt.Errorf("insert vectors: %w", err)
			}
		}

		var count int64
		if err := tx.Model(&sqlVector{}).Where("index_name = ?", s.name).Count(&count).Error; err != nil {
			return fmt.Errorf("count stored vectors: %w", err)
		}

		head := sqlIndex{
			Name:      s.name,
			Version:   snap.Version,
			Dimension: snap.Dimension,
			Count:     int(count),
			UpdatedAt: snap.SavedAt,
		}
		if err := tx.Save(&head).Error; err != nil {
			return fmt.Errorf("write index header: %w", err)
		}

		s.logger.Debug("index persisted",
			zap.String("name", s.name),
			zap.Int("appended", len(rows)),
			zap.Int64("entries", count))
		return nil
	})
}
