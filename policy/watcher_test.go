package policy

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/policyqa/testutil"
	"github.com/BaSui01/policyqa/testutil/fixtures"
)

type eventLog struct {
	mu     sync.Mutex
	events []InboxEvent
}

func (l *eventLog) record(ev InboxEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) snapshot() []InboxEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]InboxEvent(nil), l.events...)
}

func TestInboxWatcher_Scan(t *testing.T) {
	h := newHarness(t, t.TempDir())
	dir := fixtures.PolicyDir(t)
	fixtures.WriteFile(t, dir, "notes.docx", "unsupported")

	log := &eventLog{}
	w := NewInboxWatcher(h.svc, dir, 10*time.Millisecond, nil, WithInboxCallback(log.record))
	require.NoError(t, w.Scan(context.Background()))

	events := log.snapshot()
	assert.Len(t, events, 3)
	for _, ev := range events {
		assert.NoError(t, ev.Err)
	}

	// 未改动的文件不会重复摄入
	vectors := h.svc.Status(context.Background()).TotalVectors
	require.NoError(t, w.Scan(context.Background()))
	assert.Len(t, log.snapshot(), 3)
	assert.Equal(t, vectors, h.svc.Status(context.Background()).TotalVectors)
}

func TestInboxWatcher_ScanMissingDir(t *testing.T) {
	h := newHarness(t, t.TempDir())
	w := NewInboxWatcher(h.svc, filepath.Join(t.TempDir(), "missing"), 0, nil)
	assert.Error(t, w.Scan(context.Background()))
}

func TestInboxWatcher_IndexesNewFiles(t *testing.T) {
	h := newHarness(t, t.TempDir())
	inbox := filepath.Join(t.TempDir(), "inbox")

	log := &eventLog{}
	w := NewInboxWatcher(h.svc, inbox, 20*time.Millisecond, nil, WithInboxCallback(log.record))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Run 会创建目录
	testutil.AssertEventuallyTrue(t, func() bool {
		_, err := os.Stat(inbox)
		return err == nil
	}, 2*time.Second)
	// 等待 fsnotify 注册完成
	time.Sleep(50 * time.Millisecond)

	fixtures.WriteFile(t, inbox, ".hidden.txt", fixtures.ExpenseText)
	fixtures.WriteFile(t, inbox, "leave.txt", fixtures.LeavePolicyText)

	testutil.AssertEventuallyTrue(t, func() bool {
		return len(log.snapshot()) == 1
	}, 5*time.Second)

	ev := log.snapshot()[0]
	assert.Equal(t, filepath.Join(inbox, "leave.txt"), ev.Path)
	require.NoError(t, ev.Err)
	assert.Equal(t, ev.Result.Chunks, h.svc.Status(context.Background()).TotalVectors)

	ans, err := h.svc.Ask(context.Background(), "How many casual leaves do I get?", nil)
	require.NoError(t, err)
	assert.Contains(t, ans.Text, "12")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestInboxWatcher_Eligible(t *testing.T) {
	h := newHarness(t, t.TempDir())
	w := NewInboxWatcher(h.svc, t.TempDir(), 0, nil)

	assert.True(t, w.eligible("/in/leave.pdf"))
	assert.True(t, w.eligible("/in/remote.md"))
	assert.False(t, w.eligible("/in/.leave.txt.swp"))
	assert.False(t, w.eligible("/in/leave.txt~"))
	assert.False(t, w.eligible("/in/leave.docx"))
}
