package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DocumentIndexer 摄入单个文件（Service 满足此接口）
type DocumentIndexer interface {
	IndexDocument(ctx context.Context, path, title string) (*IndexResult, error)
	Supports(path string) bool
}

// InboxEvent 一次自动摄入的结果
type InboxEvent struct {
	Path   string
	Result *IndexResult
	Err    error
}

// InboxWatcher 监听投递目录，把新建或改写的政策文件自动摄入索引
//
// 同一路径的连续事件在 debounce 内合并为一次；同一 (路径, 修改时间) 只摄入一次。
type InboxWatcher struct {
	indexer  DocumentIndexer
	dir      string
	debounce time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
	seen    map[string]time.Time
	ready   chan string

	onEvent func(InboxEvent)
}

// InboxOption 配置 InboxWatcher
type InboxOption func(*InboxWatcher)

// WithInboxCallback 每次摄入完成后回调
func WithInboxCallback(fn func(InboxEvent)) InboxOption {
	return func(w *InboxWatcher) {
		w.onEvent = fn
	}
}

// NewInboxWatcher 创建监听器，debounce <= 0 时使用 500ms
func NewInboxWatcher(indexer DocumentIndexer, dir string, debounce time.Duration, logger *zap.Logger, opts ...InboxOption) *InboxWatcher {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &InboxWatcher{
		indexer:  indexer,
		dir:      dir,
		debounce: debounce,
		logger:   logger.With(zap.String("component", "inbox_watcher"), zap.String("dir", dir)),
		pending:  make(map[string]*time.Timer),
		seen:     make(map[string]time.Time),
		ready:    make(chan string, 64),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Scan 摄入目录中已有的文件
func (w *InboxWatcher) Scan(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("read inbox: %w", err)
	}
	for _, e := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if e.IsDir() {
			continue
		}
		w.process(ctx, filepath.Join(w.dir, e.Name()))
	}
	return nil
}

// Run 监听目录直到 ctx 结束。目录不存在时会先创建。
func (w *InboxWatcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("create inbox: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watch inbox: %w", err)
	}
	w.logger.Info("inbox watcher started", zap.Duration("debounce", w.debounce))

	defer w.stopTimers()
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("inbox watcher stopped")
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
				w.schedule(ctx, ev.Name)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("fsnotify error", zap.Error(err))

		case path := <-w.ready:
			w.process(ctx, path)
		}
	}
}

// schedule 为路径（重新）启动去抖计时器
func (w *InboxWatcher) schedule(ctx context.Context, path string) {
	if !w.eligible(path) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		select {
		case w.ready <- path:
		case <-ctx.Done():
		}
	})
}

func (w *InboxWatcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
}

func (w *InboxWatcher) eligible(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~") {
		return false
	}
	return w.indexer.Supports(path)
}

// process 摄入一个文件；同一修改时间的文件只处理一次
func (w *InboxWatcher) process(ctx context.Context, path string) {
	if !w.eligible(path) {
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}

	w.mu.Lock()
	last, done := w.seen[path]
	if done && last.Equal(info.ModTime()) {
		w.mu.Unlock()
		return
	}
	w.seen[path] = info.ModTime()
	w.mu.Unlock()

	result, err := w.indexer.IndexDocument(ctx, path, "")
	if err != nil {
		w.logger.Warn("inbox file not indexed", zap.String("file", filepath.Base(path)), zap.Error(err))
	} else {
		w.logger.Info("inbox file indexed",
			zap.String("file", filepath.Base(path)),
			zap.Int("chunks", result.Chunks))
	}
	if w.onEvent != nil {
		w.onEvent(InboxEvent{Path: path, Result: result, Err: err})
	}
}
