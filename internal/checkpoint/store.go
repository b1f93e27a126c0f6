package checkpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nareon/subtitles-cleaner/internal/fsutil"
	"github.com/nareon/subtitles-cleaner/pkg/contract"
)

// Store: 单个分片的检查点存储，由且仅由一个 Worker 持有。
// 约束：
//  1. Load 对缺失文件返回 (零值, false, nil)；存在但非法时返回 ErrCorruptCheckpoint，绝不静默重置；
//  2. Save 拒绝任何回退（行号、计数或工件长度变小），并经 fsutil 原子落盘；
//  3. 不可并发使用。
type Store struct {
	path  string
	shard contract.ShardID
	last  *contract.Checkpoint
	now   func() time.Time
}

// New 创建分片 shard 在 path 处的检查点存储。
func New(path string, shard contract.ShardID) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: empty checkpoint path", contract.ErrPathInvalid)
	}
	if shard == "" {
		return nil, fmt.Errorf("%w: empty shard id", contract.ErrPathInvalid)
	}
	return &Store{path: path, shard: shard, now: time.Now}, nil
}

// Path 返回检查点文件路径。
func (s *Store) Path() string { return s.path }

// Load 读取并校验检查点；成功时同时作为后续 Save 的单调基线。
func (s *Store) Load(ctx context.Context) (contract.Checkpoint, bool, error) {
	var zero contract.Checkpoint
	if err := ctx.Err(); err != nil {
		return zero, false, err
	}
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("read checkpoint: %w", err)
	}
	cp, err := Decode(b)
	if err != nil {
		return zero, false, fmt.Errorf("%w: %s: %v", contract.ErrCorruptCheckpoint, s.path, err)
	}
	if err := check(cp, s.shard); err != nil {
		return zero, false, fmt.Errorf("%w: %s: %v", contract.ErrCorruptCheckpoint, s.path, err)
	}
	s.last = &cp
	return cp, true, nil
}

// Save 原子覆盖写检查点。ShardID 为空时取存储自身的分片；UpdatedAt 为零时取当前时间。
func (s *Store) Save(ctx context.Context, cp contract.Checkpoint) error {
	if cp.ShardID == "" {
		cp.ShardID = s.shard
	}
	if err := check(cp, s.shard); err != nil {
		return fmt.Errorf("%w: %v", contract.ErrInvariantViolation, err)
	}
	if s.last != nil {
		if err := monotonic(*s.last, cp); err != nil {
			return fmt.Errorf("%w: %v", contract.ErrInvariantViolation, err)
		}
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = s.now().UTC()
	}
	b, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	b = append(b, '\n')
	if err := fsutil.WriteFileAtomic(ctx, s.path, b, nil); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	s.last = &cp
	return nil
}

// Decode 严格解析检查点 JSON（拒绝未知字段与尾随数据）。
func Decode(b []byte) (contract.Checkpoint, error) {
	var cp contract.Checkpoint
	if len(bytes.TrimSpace(b)) == 0 {
		return cp, errors.New("empty file")
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cp); err != nil {
		return cp, err
	}
	if dec.More() {
		return cp, errors.New("trailing data")
	}
	return cp, nil
}

func check(cp contract.Checkpoint, shard contract.ShardID) error {
	if cp.ShardID != shard {
		return fmt.Errorf("shard_id %q, want %q", cp.ShardID, shard)
	}
	if cp.LastProcessedLineNumber < 0 || cp.LinesKept < 0 || cp.LinesDropped < 0 || cp.TextBytes < 0 || cp.MetaBytes < 0 {
		return errors.New("negative counter")
	}
	if int64(cp.LastProcessedLineNumber) != cp.LinesKept+cp.LinesDropped {
		return fmt.Errorf("kept(%d)+dropped(%d) != last_processed_line_number(%d)",
			cp.LinesKept, cp.LinesDropped, cp.LastProcessedLineNumber)
	}
	if cp.LastProcessedLineNumber > 0 && cp.MetaBytes == 0 {
		return errors.New("meta_bytes is zero with processed lines")
	}
	return nil
}

func monotonic(prev, next contract.Checkpoint) error {
	switch {
	case next.LastProcessedLineNumber < prev.LastProcessedLineNumber:
		return fmt.Errorf("line number regress %d -> %d", prev.LastProcessedLineNumber, next.LastProcessedLineNumber)
	case next.LinesKept < prev.LinesKept || next.LinesDropped < prev.LinesDropped:
		return errors.New("counter regress")
	case next.TextBytes < prev.TextBytes || next.MetaBytes < prev.MetaBytes:
		return errors.New("artifact length regress")
	}
	return nil
}
