package worker

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/nareon/subtitles-cleaner/internal/classify"
	"github.com/nareon/subtitles-cleaner/internal/diag"
	"github.com/nareon/subtitles-cleaner/pkg/contract"
)

// DefaultBatchSize 为默认批大小（每批结束时 flush 并推进检查点）。
const DefaultBatchSize = 1000

// Settings: 单个分片运行所需的全部输入。
type Settings struct {
	// ShardID 为空时取 ShardPath 基名去扩展名。
	ShardID        contract.ShardID
	ShardPath      string
	TextPath       string
	MetaPath       string
	CheckpointPath string
	BatchSize      int
	Classifier     *classify.Classifier
	// Progress 可选；为 nil 时不输出终端进度。
	Progress *diag.Terminal

	hooks *hooks
}

// hooks: 测试注入点，用于在确定位置模拟崩溃。
type hooks struct {
	afterLine       func(contract.LineNumber) error
	afterFlush      func(contract.LineNumber) error
	afterCheckpoint func(contract.LineNumber) error
	onState         func(State)
}

// normalize 校验并补全设置；错误包裹 contract.ErrInvalidConfig。
func (s *Settings) normalize() error {
	if strings.TrimSpace(s.ShardPath) == "" {
		return fmt.Errorf("%w: shard path is required", contract.ErrInvalidConfig)
	}
	if s.ShardID == "" {
		id, err := contract.ShardIDFromPath(s.ShardPath)
		if err != nil {
			return fmt.Errorf("%w: %v", contract.ErrInvalidConfig, err)
		}
		s.ShardID = id
	}
	paths := map[string]string{
		"shard":      s.ShardPath,
		"text":       s.TextPath,
		"meta":       s.MetaPath,
		"checkpoint": s.CheckpointPath,
	}
	seen := make(map[string]string, len(paths))
	for _, name := range []string{"shard", "text", "meta", "checkpoint"} {
		p := paths[name]
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("%w: %s path is required", contract.ErrInvalidConfig, name)
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("%w: %s path: %v", contract.ErrInvalidConfig, name, err)
		}
		if other, dup := seen[abs]; dup {
			return fmt.Errorf("%w: %s path equals %s path", contract.ErrInvalidConfig, name, other)
		}
		seen[abs] = name
	}
	if s.BatchSize == 0 {
		s.BatchSize = DefaultBatchSize
	}
	if s.BatchSize < 1 {
		return fmt.Errorf("%w: batch_size must be >= 1", contract.ErrInvalidConfig)
	}
	if s.Classifier == nil {
		return fmt.Errorf("%w: classifier is required", contract.ErrInvalidConfig)
	}
	return nil
}
