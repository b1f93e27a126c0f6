package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nareon/subtitles-cleaner/pkg/contract"
)

func newStore(t *testing.T) (*Store, string) {
	t.Helper()
	p := filepath.Join(t.TempDir(), "s1.ckpt.json")
	s, err := New(p, "s1")
	require.NoError(t, err)
	return s, p
}

func TestLoadMissing(t *testing.T) {
	s, _ := newStore(t)
	cp, ok, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, contract.Checkpoint{}, cp)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s, p := newStore(t)
	ts := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	want := contract.Checkpoint{
		ShardID: "s1", LastProcessedLineNumber: 10, LinesKept: 7, LinesDropped: 3,
		TextBytes: 140, MetaBytes: 700, UpdatedAt: ts,
	}
	require.NoError(t, s.Save(context.Background(), want))

	s2, err := New(p, "s1")
	require.NoError(t, err)
	got, ok, err := s2.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)

	// 无残留临时文件
	entries, err := os.ReadDir(filepath.Dir(p))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSaveFillsDefaults(t *testing.T) {
	s, _ := newStore(t)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	require.NoError(t, s.Save(context.Background(), contract.Checkpoint{}))
	cp, ok, err := s.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, contract.ShardID("s1"), cp.ShardID)
	assert.Equal(t, fixed, cp.UpdatedAt)
}

func TestSaveMonotonic(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	require.NoError(t, s.Save(ctx, contract.Checkpoint{LastProcessedLineNumber: 5, LinesKept: 5, TextBytes: 50, MetaBytes: 300}))
	// 相同值允许（幂等）
	require.NoError(t, s.Save(ctx, contract.Checkpoint{LastProcessedLineNumber: 5, LinesKept: 5, TextBytes: 50, MetaBytes: 300}))

	err := s.Save(ctx, contract.Checkpoint{LastProcessedLineNumber: 4, LinesKept: 4, TextBytes: 40, MetaBytes: 240})
	assert.ErrorIs(t, err, contract.ErrInvariantViolation)
	err = s.Save(ctx, contract.Checkpoint{LastProcessedLineNumber: 6, LinesKept: 6, TextBytes: 10, MetaBytes: 360})
	assert.ErrorIs(t, err, contract.ErrInvariantViolation)

	// 被拒绝的写入不改变磁盘内容
	cp, _, err := s.Load(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 5, cp.LastProcessedLineNumber)
}

func TestSaveRejectsInconsistent(t *testing.T) {
	s, p := newStore(t)
	err := s.Save(context.Background(), contract.Checkpoint{LastProcessedLineNumber: 3, LinesKept: 1, LinesDropped: 1, MetaBytes: 10})
	assert.ErrorIs(t, err, contract.ErrInvariantViolation)
	err = s.Save(context.Background(), contract.Checkpoint{ShardID: "other"})
	assert.ErrorIs(t, err, contract.ErrInvariantViolation)
	_, statErr := os.Stat(p)
	assert.True(t, os.IsNotExist(statErr))
}

func TestLoadCorrupt(t *testing.T) {
	cases := map[string]string{
		"empty":         "",
		"not json":      "{oops",
		"unknown field": `{"shard_id":"s1","last_processed_line_number":0,"extra":1}`,
		"wrong shard":   `{"shard_id":"s2","last_processed_line_number":0}`,
		"inconsistent":  `{"shard_id":"s1","last_processed_line_number":3,"lines_kept":1,"lines_dropped":1,"meta_bytes":10}`,
		"negative":      `{"shard_id":"s1","last_processed_line_number":0,"text_bytes":-1}`,
		"trailing":      `{"shard_id":"s1"} {}`,
		"no meta bytes": `{"shard_id":"s1","last_processed_line_number":1,"lines_kept":1}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			s, p := newStore(t)
			require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
			_, ok, err := s.Load(context.Background())
			assert.False(t, ok)
			assert.ErrorIs(t, err, contract.ErrCorruptCheckpoint)
			// 文件保持原样
			b, _ := os.ReadFile(p)
			assert.Equal(t, body, string(b))
		})
	}
}

func TestNewInvalid(t *testing.T) {
	_, err := New("", "s1")
	assert.ErrorIs(t, err, contract.ErrPathInvalid)
	_, err = New("x.json", "")
	assert.ErrorIs(t, err, contract.ErrPathInvalid)
}

func TestSaveCanceled(t *testing.T) {
	s, p := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Save(ctx, contract.Checkpoint{}), context.Canceled)
	_, err := os.Stat(p)
	assert.True(t, os.IsNotExist(err))
}
