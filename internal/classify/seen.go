package classify

import "github.com/nareon/subtitles-cleaner/pkg/contract"

// SeenSet: 分片内已保留行的去重键集合。
// 生命周期与一次 Worker 运行相同；不持久化，续跑时由元数据回放重建。
type SeenSet struct {
	keys map[contract.DedupKey]struct{}
}

// NewSeenSet 创建空集合。
func NewSeenSet() *SeenSet {
	return &SeenSet{keys: make(map[contract.DedupKey]struct{})}
}

// Add 插入 k；若 k 已存在返回 false。
func (s *SeenSet) Add(k contract.DedupKey) bool {
	if _, ok := s.keys[k]; ok {
		return false
	}
	s.keys[k] = struct{}{}
	return true
}

// Has 报告 k 是否已存在。
func (s *SeenSet) Has(k contract.DedupKey) bool {
	_, ok := s.keys[k]
	return ok
}

func (s *SeenSet) Len() int { return len(s.keys) }
