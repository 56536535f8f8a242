package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/policyqa/types"
)

// ErrIndexNotFound 存储位置中还没有任何已持久化的索引
var ErrIndexNotFound = errors.New("no persisted index")

// snapshotVersion 持久化格式版本
const snapshotVersion = 1

// Snapshot 索引的持久化形态
type Snapshot struct {
	Version   int       `json:"version"`
	Dimension int       `json:"dimension"`
	Entries   []Entry   `json:"entries"`
	SavedAt   time.Time `json:"saved_at"`
}

// validate 校验快照内部一致性，失败说明数据损坏
func (s *Snapshot) validate() error {
	if s.Version != snapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d", s.Version)
	}
	for i, e := range s.Entries {
		if len(e.Vector) != s.Dimension {
			return fmt.Errorf("entry %d has dimension %d, snapshot declares %d", i, len(e.Vector), s.Dimension)
		}
	}
	return nil
}

// IndexStore 索引的持久化位置
type IndexStore interface {
	// Load 读取快照；不存在时返回 ErrIndexNotFound，无法解析时返回 CORRUPT_INDEX 错误
	Load(ctx context.Context) (*Snapshot, error)

	// Save 以崩溃安全的方式写入快照
	Save(ctx context.Context, snap *Snapshot) error

	// Location 存储位置描述（目录或 DSN 中的库名）
	Location() string
}

// =============================================================================
// 📁 FileStore
// =============================================================================

// FileStore 基于本地目录的索引存储，写入临时文件后重命名
type FileStore struct {
	dir    string
	name   string
	logger *zap.Logger
}

// NewFileStore 创建文件存储；目录在首次 Save 时创建
func NewFileStore(dir, name string, logger *zap.Logger) *FileStore {
	if name == "" {
		name = "index"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{
		dir:    dir,
		name:   name,
		logger: logger.With(zap.String("component", "file_index_store")),
	}
}

// Location 返回索引目录
func (s *FileStore) Location() string {
	return s.dir
}

func (s *FileStore) path() string {
	return filepath.Join(s.dir, s.name+".json")
}

// Load 读取索引文件
func (s *FileStore) Load(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path())
	if os.IsNotExist(err) {
		return nil, ErrIndexNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read index file: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, types.NewCorruptIndexError(s.path(), err)
	}
	if err := snap.validate(); err != nil {
		return nil, types.NewCorruptIndexError(s.path(), err)
	}

	s.logger.Debug("index loaded",
		zap.String("path", s.path()),
		zap.Int("entries", len(snap.Entries)))
	return &snap, nil
}

// Save 原子写: 写入临时文件后重命名
func (s *FileStore) Save(ctx context.Context, snap *Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, s.name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp index file: %w", err)
	}
	tempPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tempPath) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write temp index file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp index file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp index file: %w", err)
	}
	if err := os.Rename(tempPath, s.path()); err != nil {
		cleanup()
		return fmt.Errorf("replace index file: %w", err)
	}

	s.logger.Debug("index persisted",
		zap.String("path", s.path()),
		zap.Int("entries", len(snap.Entries)),
		zap.Int("bytes", len(data)))
	return nil
}
